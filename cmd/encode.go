package cmd

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flashliquidator/config"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build routing data and executor calldata",
}

var routeOpts struct {
	adapter string
	fee     uint32
	path    []string
	fees    []uint
	tokens  []string
	hops    []string
	payload string
}

var encodeRouteCmd = &cobra.Command{
	Use:   "route",
	Short: "Encode routing data for an adapter",
	Long: `route encodes the routing envelope the liquidator hands to its adapter.

  uniswapv3    --fee for a single pool, or --path with --fees for a packed path
  multirouter  --tokens and one --hop "level,tokenIn,tokenOut,router,fee,amountIn[,stable]" per allocation
  direct       no payload
  <tag>        --payload carries raw hex for any other tag`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := buildRoute()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(data))
		return nil
	},
}

var liquidateOpts struct {
	user       string
	collateral string
	debt       string
	amount     string
	minOut     string
	route      string
	flashFee   uint32
}

var encodeLiquidateCmd = &cobra.Command{
	Use:   "liquidate",
	Short: "Encode liquidate or liquidateWithFee calldata",
	RunE: func(cmd *cobra.Command, args []string) error {
		call, err := buildLiquidateCall()
		if err != nil {
			return err
		}
		data, err := routing.EncodeLiquidate(*call)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(data))
		return nil
	},
}

var setAdapterOpts struct {
	tag     string
	address string
}

var encodeSetAdapterCmd = &cobra.Command{
	Use:   "set-adapter",
	Short: "Encode setAdapter calldata; the zero address unregisters the tag",
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, err := routing.ParseTag(setAdapterOpts.tag)
		if err != nil {
			return err
		}
		addr, err := parseAddress("address", setAdapterOpts.address)
		if err != nil {
			return err
		}
		data, err := routing.EncodeSetAdapter(tag, addr)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(data))
		return nil
	},
}

var rescueOpts struct {
	token  string
	amount string
	max    bool
	to     string
}

var encodeRescueCmd = &cobra.Command{
	Use:   "rescue",
	Short: "Encode rescueTokens calldata; the zero token rescues native currency",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := parseAddress("token", rescueOpts.token)
		if err != nil {
			return err
		}
		to, err := parseAddress("to", rescueOpts.to)
		if err != nil {
			return err
		}
		amount := new(big.Int)
		if !rescueOpts.max {
			if amount, err = config.ParseAmount(rescueOpts.amount); err != nil {
				return err
			}
		}
		data, err := routing.EncodeRescueTokens(routing.RescueCall{Token: token, Amount: amount, Max: rescueOpts.max, To: to})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(data))
		return nil
	},
}

func init() {
	f := encodeRouteCmd.Flags()
	f.StringVar(&routeOpts.adapter, "adapter", "uniswapv3", "adapter name or tag")
	f.Uint32Var(&routeOpts.fee, "fee", 3000, "single pool fee tier")
	f.StringSliceVar(&routeOpts.path, "path", nil, "token path for a packed uniswap v3 route")
	f.UintSliceVar(&routeOpts.fees, "fees", nil, "fee tier per path hop")
	f.StringSliceVar(&routeOpts.tokens, "tokens", nil, "multi-router token list")
	f.StringArrayVar(&routeOpts.hops, "hop", nil, "multi-router allocation, repeatable")
	f.StringVar(&routeOpts.payload, "payload", "", "raw hex payload for other tags")

	f = encodeLiquidateCmd.Flags()
	f.StringVar(&liquidateOpts.user, "user", "", "borrower to liquidate")
	f.StringVar(&liquidateOpts.collateral, "collateral", "", "collateral asset, zero for native")
	f.StringVar(&liquidateOpts.debt, "debt", "", "debt asset")
	f.StringVar(&liquidateOpts.amount, "amount", "max", `debt to cover, or "max"`)
	f.StringVar(&liquidateOpts.minOut, "min-out", "0", "minimum swap output")
	f.StringVar(&liquidateOpts.route, "route", "", "routing data from encode route")
	f.Uint32Var(&liquidateOpts.flashFee, "flash-fee", 0, "flash pool fee tier, selects liquidateWithFee")
	for _, name := range []string{"user", "collateral", "debt", "route"} {
		_ = encodeLiquidateCmd.MarkFlagRequired(name)
	}

	f = encodeSetAdapterCmd.Flags()
	f.StringVar(&setAdapterOpts.tag, "tag", "", "adapter name or tag")
	f.StringVar(&setAdapterOpts.address, "address", "", "adapter address")
	_ = encodeSetAdapterCmd.MarkFlagRequired("tag")
	_ = encodeSetAdapterCmd.MarkFlagRequired("address")

	f = encodeRescueCmd.Flags()
	f.StringVar(&rescueOpts.token, "token", "", "token to rescue, zero for native")
	f.StringVar(&rescueOpts.amount, "amount", "0", "amount to rescue")
	f.BoolVar(&rescueOpts.max, "max", false, "rescue the entire balance")
	f.StringVar(&rescueOpts.to, "to", "", "recipient")
	_ = encodeRescueCmd.MarkFlagRequired("token")
	_ = encodeRescueCmd.MarkFlagRequired("to")

	encodeCmd.AddCommand(encodeRouteCmd, encodeLiquidateCmd, encodeSetAdapterCmd, encodeRescueCmd)
}

func buildRoute() ([]byte, error) {
	tag, err := routing.ParseTag(routeOpts.adapter)
	if err != nil {
		return nil, err
	}

	switch tag {
	case routing.TagUniswapV3:
		if len(routeOpts.path) == 0 {
			return routing.UniswapV3SingleHop(routeOpts.fee)
		}
		tokens, err := parseAddresses(routeOpts.path)
		if err != nil {
			return nil, err
		}
		if len(routeOpts.fees) == 0 {
			return routing.UniswapV3Route(tokens, routeOpts.fee)
		}
		fees := make([]uint32, len(routeOpts.fees))
		for i, f := range routeOpts.fees {
			fees[i] = uint32(f)
		}
		return routing.UniswapV3MultiHop(tokens, fees)

	case routing.TagMultiRouter:
		tokens, err := parseAddresses(routeOpts.tokens)
		if err != nil {
			return nil, err
		}
		var levels [][]routing.Hop
		for _, raw := range routeOpts.hops {
			level, hop, err := parseHop(raw)
			if err != nil {
				return nil, err
			}
			for len(levels) <= level {
				levels = append(levels, nil)
			}
			levels[level] = append(levels[level], hop)
		}
		return routing.MultiRouter(tokens, levels)

	case routing.TagDirect:
		return routing.Direct()

	default:
		payload, err := hexutil.Decode(orEmptyHex(routeOpts.payload))
		if err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
		return routing.Wrap(tag, payload)
	}
}

// parseHop reads "level,tokenIn,tokenOut,router,fee,amountIn[,stable]"
func parseHop(raw string) (int, routing.Hop, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 6 && len(parts) != 7 {
		return 0, routing.Hop{}, fmt.Errorf("hop %q: want 6 or 7 fields, got %d", raw, len(parts))
	}
	level, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || level < 0 {
		return 0, routing.Hop{}, fmt.Errorf("hop %q: invalid level", raw)
	}
	in, err := parseAddress("tokenIn", parts[1])
	if err != nil {
		return 0, routing.Hop{}, err
	}
	out, err := parseAddress("tokenOut", parts[2])
	if err != nil {
		return 0, routing.Hop{}, err
	}
	router, err := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 8)
	if err != nil {
		return 0, routing.Hop{}, fmt.Errorf("hop %q: invalid router index", raw)
	}
	fee, err := strconv.ParseUint(strings.TrimSpace(parts[4]), 10, 32)
	if err != nil {
		return 0, routing.Hop{}, fmt.Errorf("hop %q: invalid fee", raw)
	}
	amount, err := config.ParseAmount(parts[5])
	if err != nil {
		return 0, routing.Hop{}, fmt.Errorf("hop %q: %w", raw, err)
	}
	hop := routing.Hop{
		TokenIn:     in,
		TokenOut:    out,
		RouterIndex: uint8(router),
		Fee:         uint32(fee),
		AmountIn:    amount,
	}
	if len(parts) == 7 {
		if hop.Stable, err = strconv.ParseBool(strings.TrimSpace(parts[6])); err != nil {
			return 0, routing.Hop{}, fmt.Errorf("hop %q: invalid stable flag", raw)
		}
	}
	return level, hop, nil
}

func buildLiquidateCall() (*routing.LiquidateCall, error) {
	call := &routing.LiquidateCall{FlashFeeTier: liquidateOpts.flashFee}
	var err error
	if call.User, err = parseAddress("user", liquidateOpts.user); err != nil {
		return nil, err
	}
	if call.Collateral, err = parseAddress("collateral", liquidateOpts.collateral); err != nil {
		return nil, err
	}
	if call.Debt, err = parseAddress("debt", liquidateOpts.debt); err != nil {
		return nil, err
	}
	if strings.EqualFold(liquidateOpts.amount, "max") {
		call.DebtAmount = new(big.Int).Set(math.MaxBig256)
	} else if call.DebtAmount, err = config.ParseAmount(liquidateOpts.amount); err != nil {
		return nil, err
	}
	if call.MinAmountOut, err = config.ParseAmount(liquidateOpts.minOut); err != nil {
		return nil, err
	}
	if call.RoutingData, err = hexutil.Decode(liquidateOpts.route); err != nil {
		return nil, fmt.Errorf("invalid route: %w", err)
	}
	if _, err := routing.DecodeEnvelope(call.RoutingData); err != nil {
		return nil, err
	}
	return call, nil
}

func parseAddress(name, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseAddresses(list []string) ([]common.Address, error) {
	out := make([]common.Address, len(list))
	for i, s := range list {
		addr, err := parseAddress(fmt.Sprintf("token %d", i), s)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

func orEmptyHex(s string) string {
	if s == "" {
		return "0x"
	}
	return s
}
