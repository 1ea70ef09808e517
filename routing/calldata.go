package routing

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// LiquidatorABI is the executor's external interface
const LiquidatorABI = `[
	{"type":"function","name":"liquidate","stateMutability":"nonpayable","inputs":[
		{"name":"user","type":"address"},{"name":"collateral","type":"address"},{"name":"debt","type":"address"},
		{"name":"debtAmount","type":"uint256"},{"name":"minAmountOut","type":"uint256"},{"name":"swapData","type":"bytes"}],
		"outputs":[{"name":"profit","type":"uint256"}]},
	{"type":"function","name":"liquidateWithFee","stateMutability":"nonpayable","inputs":[
		{"name":"user","type":"address"},{"name":"collateral","type":"address"},{"name":"debt","type":"address"},
		{"name":"debtAmount","type":"uint256"},{"name":"minAmountOut","type":"uint256"},{"name":"swapData","type":"bytes"},
		{"name":"flashFeeTier","type":"uint24"}],
		"outputs":[{"name":"profit","type":"uint256"}]},
	{"type":"function","name":"rescueTokens","stateMutability":"nonpayable","inputs":[
		{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"max","type":"bool"},{"name":"to","type":"address"}],
		"outputs":[]},
	{"type":"function","name":"setAdapter","stateMutability":"nonpayable","inputs":[
		{"name":"adapterType","type":"uint8"},{"name":"adapter","type":"address"}],
		"outputs":[]},
	{"type":"function","name":"adapters","stateMutability":"view","inputs":[
		{"name":"adapterType","type":"uint8"}],
		"outputs":[{"name":"","type":"address"}]}
]`

// PoolABI is the subset of the lending pool used for direct liquidation
const PoolABI = `[
	{"type":"function","name":"liquidationCall","stateMutability":"nonpayable","inputs":[
		{"name":"collateralAsset","type":"address"},{"name":"debtAsset","type":"address"},{"name":"user","type":"address"},
		{"name":"debtToCover","type":"uint256"},{"name":"receiveAToken","type":"bool"}],
		"outputs":[]}
]`

var (
	liquidatorABI = mustParseABI(LiquidatorABI)
	poolABI       = mustParseABI(PoolABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// LiquidateCall holds the arguments of liquidate / liquidateWithFee. A
// zero FlashFeeTier selects liquidate.
type LiquidateCall struct {
	User         common.Address
	Collateral   common.Address
	Debt         common.Address
	DebtAmount   *big.Int
	MinAmountOut *big.Int
	RoutingData  []byte
	FlashFeeTier uint32
}

// RescueCall holds the arguments of rescueTokens
type RescueCall struct {
	Token  common.Address
	Amount *big.Int
	Max    bool
	To     common.Address
}

// EncodeLiquidate builds executor calldata for a liquidation
func EncodeLiquidate(c LiquidateCall) ([]byte, error) {
	if c.DebtAmount == nil || c.MinAmountOut == nil {
		return nil, fmt.Errorf("debt amount and min amount out are required")
	}
	routing := c.RoutingData
	if routing == nil {
		routing = []byte{}
	}
	if c.FlashFeeTier == 0 {
		return liquidatorABI.Pack("liquidate", c.User, c.Collateral, c.Debt, c.DebtAmount, c.MinAmountOut, routing)
	}
	if c.FlashFeeTier > maxUint24 {
		return nil, fmt.Errorf("%w: %d", ErrFeeOutOfRange, c.FlashFeeTier)
	}
	return liquidatorABI.Pack("liquidateWithFee", c.User, c.Collateral, c.Debt, c.DebtAmount, c.MinAmountOut, routing,
		new(big.Int).SetUint64(uint64(c.FlashFeeTier)))
}

// EncodeRescueTokens builds executor calldata for a rescue
func EncodeRescueTokens(c RescueCall) ([]byte, error) {
	amount := c.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	return liquidatorABI.Pack("rescueTokens", c.Token, amount, c.Max, c.To)
}

// EncodeSetAdapter builds executor calldata for a registry update
func EncodeSetAdapter(tag Tag, adapter common.Address) ([]byte, error) {
	return liquidatorABI.Pack("setAdapter", uint8(tag), adapter)
}

// EncodePoolLiquidation builds lending-pool calldata for a liquidation
// without a flash facility
func EncodePoolLiquidation(collateral, debt, user common.Address, debtToCover *big.Int, receiveAToken bool) ([]byte, error) {
	return poolABI.Pack("liquidationCall", collateral, debt, user, debtToCover, receiveAToken)
}

// MethodName returns the executor method selected by calldata
func MethodName(data []byte) (string, error) {
	if len(data) < 4 {
		return "", fmt.Errorf("invalid data length")
	}
	method, err := liquidatorABI.MethodById(data[:4])
	if err != nil {
		return "", fmt.Errorf("failed to decode method: %w", err)
	}
	return method.Name, nil
}

// DecodeLiquidate decodes liquidate or liquidateWithFee calldata
func DecodeLiquidate(data []byte) (*LiquidateCall, error) {
	params, name, err := unpackCall(data)
	if err != nil {
		return nil, err
	}
	if name != "liquidate" && name != "liquidateWithFee" {
		return nil, fmt.Errorf("unexpected method %s", name)
	}

	c := &LiquidateCall{}
	var ok bool
	if c.User, ok = params["user"].(common.Address); !ok {
		return nil, fmt.Errorf("invalid user")
	}
	if c.Collateral, ok = params["collateral"].(common.Address); !ok {
		return nil, fmt.Errorf("invalid collateral")
	}
	if c.Debt, ok = params["debt"].(common.Address); !ok {
		return nil, fmt.Errorf("invalid debt")
	}
	if c.DebtAmount, ok = params["debtAmount"].(*big.Int); !ok {
		return nil, fmt.Errorf("invalid debtAmount")
	}
	if c.MinAmountOut, ok = params["minAmountOut"].(*big.Int); !ok {
		return nil, fmt.Errorf("invalid minAmountOut")
	}
	if c.RoutingData, ok = params["swapData"].([]byte); !ok {
		return nil, fmt.Errorf("invalid swapData")
	}
	if name == "liquidateWithFee" {
		tier, ok := params["flashFeeTier"].(*big.Int)
		if !ok || !tier.IsUint64() || tier.Uint64() > maxUint24 {
			return nil, fmt.Errorf("invalid flashFeeTier")
		}
		c.FlashFeeTier = uint32(tier.Uint64())
	}
	return c, nil
}

// DecodeRescueTokens decodes rescueTokens calldata
func DecodeRescueTokens(data []byte) (*RescueCall, error) {
	params, name, err := unpackCall(data)
	if err != nil {
		return nil, err
	}
	if name != "rescueTokens" {
		return nil, fmt.Errorf("unexpected method %s", name)
	}
	c := &RescueCall{}
	var ok bool
	if c.Token, ok = params["token"].(common.Address); !ok {
		return nil, fmt.Errorf("invalid token")
	}
	if c.Amount, ok = params["amount"].(*big.Int); !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if c.Max, ok = params["max"].(bool); !ok {
		return nil, fmt.Errorf("invalid max")
	}
	if c.To, ok = params["to"].(common.Address); !ok {
		return nil, fmt.Errorf("invalid to")
	}
	return c, nil
}

// DecodeSetAdapter decodes setAdapter calldata
func DecodeSetAdapter(data []byte) (Tag, common.Address, error) {
	params, name, err := unpackCall(data)
	if err != nil {
		return 0, common.Address{}, err
	}
	if name != "setAdapter" {
		return 0, common.Address{}, fmt.Errorf("unexpected method %s", name)
	}
	tag, ok := params["adapterType"].(uint8)
	if !ok {
		return 0, common.Address{}, fmt.Errorf("invalid adapterType")
	}
	adapter, ok := params["adapter"].(common.Address)
	if !ok {
		return 0, common.Address{}, fmt.Errorf("invalid adapter")
	}
	return Tag(tag), adapter, nil
}

func unpackCall(data []byte) (map[string]interface{}, string, error) {
	if len(data) < 4 {
		return nil, "", fmt.Errorf("invalid data length")
	}
	method, err := liquidatorABI.MethodById(data[:4])
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode method: %w", err)
	}
	params := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(params, data[4:]); err != nil {
		return nil, "", fmt.Errorf("failed to decode parameters: %w", err)
	}
	return params, method.Name, nil
}
