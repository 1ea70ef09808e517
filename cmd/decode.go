package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flashliquidator/routing"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Inspect routing data and executor calldata",
}

var decodeRouteCmd = &cobra.Command{
	Use:   "route <hex>",
	Short: "Decode a routing envelope and its adapter payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hexutil.Decode(args[0])
		if err != nil {
			return fmt.Errorf("invalid hex: %w", err)
		}
		return printRoute(cmd.OutOrStdout(), data, "")
	},
}

var decodeCallCmd = &cobra.Command{
	Use:   "call <hex>",
	Short: "Decode liquidator calldata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := hexutil.Decode(args[0])
		if err != nil {
			return fmt.Errorf("invalid hex: %w", err)
		}
		return printCall(cmd.OutOrStdout(), data)
	},
}

func init() {
	decodeCmd.AddCommand(decodeRouteCmd, decodeCallCmd)
}

func printRoute(w io.Writer, data []byte, indent string) error {
	env, err := routing.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%sadapter: %s\n", indent, env.Tag)

	switch env.Tag {
	case routing.TagUniswapV3:
		p, err := routing.DecodeUniswapV3(env.Payload)
		if err != nil {
			return err
		}
		if !p.MultiHop {
			fmt.Fprintf(w, "%sfee:     %d\n", indent, p.Fee)
			return nil
		}
		tokens, fees, err := routing.DecodePath(p.Path)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%spath:\n", indent)
		for i, token := range tokens {
			fmt.Fprintf(w, "%s  %s\n", indent, token.Hex())
			if i < len(fees) {
				fmt.Fprintf(w, "%s    fee %d\n", indent, fees[i])
			}
		}

	case routing.TagMultiRouter:
		p, err := routing.DecodeMultiRouter(env.Payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%stokens:\n", indent)
		for _, token := range p.Tokens {
			fmt.Fprintf(w, "%s  %s\n", indent, token.Hex())
		}
		for i, level := range p.Hops {
			fmt.Fprintf(w, "%slevel %d:\n", indent, i)
			for _, hop := range level {
				fmt.Fprintf(w, "%s  %s -> %s router=%d fee=%d in=%s stable=%t\n", indent,
					hop.TokenIn.Hex(), hop.TokenOut.Hex(), hop.RouterIndex, hop.Fee, hop.AmountIn, hop.Stable)
			}
		}
		fmt.Fprintf(w, "%sfirst level input: %s\n", indent, p.FirstLevelInput())

	default:
		fmt.Fprintf(w, "%spayload: %s\n", indent, hexutil.Encode(env.Payload))
	}
	return nil
}

func printCall(w io.Writer, data []byte) error {
	name, err := routing.MethodName(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "method: %s\n", name)

	switch name {
	case "liquidate", "liquidateWithFee":
		c, err := routing.DecodeLiquidate(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "user:       %s\n", c.User.Hex())
		fmt.Fprintf(w, "collateral: %s\n", c.Collateral.Hex())
		fmt.Fprintf(w, "debt:       %s\n", c.Debt.Hex())
		if c.DebtAmount.Cmp(math.MaxBig256) == 0 {
			fmt.Fprintln(w, "amount:     max")
		} else {
			fmt.Fprintf(w, "amount:     %s\n", c.DebtAmount)
		}
		fmt.Fprintf(w, "min out:    %s\n", c.MinAmountOut)
		if c.FlashFeeTier != 0 {
			fmt.Fprintf(w, "flash fee:  %d\n", c.FlashFeeTier)
		}
		fmt.Fprintln(w, "route:")
		return printRoute(w, c.RoutingData, "  ")

	case "rescueTokens":
		c, err := routing.DecodeRescueTokens(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "token:  %s\n", c.Token.Hex())
		if c.Max {
			fmt.Fprintln(w, "amount: entire balance")
		} else {
			fmt.Fprintf(w, "amount: %s\n", c.Amount)
		}
		fmt.Fprintf(w, "to:     %s\n", c.To.Hex())

	case "setAdapter":
		tag, addr, err := routing.DecodeSetAdapter(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "tag:     %s\n", tag)
		fmt.Fprintf(w, "adapter: %s\n", addr.Hex())

	default:
		return fmt.Errorf("no decoder for %s", name)
	}
	return nil
}
