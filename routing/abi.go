package routing

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	abiUint8, _   = abi.NewType("uint8", "", nil)
	abiUint24, _  = abi.NewType("uint24", "", nil)
	abiBool, _    = abi.NewType("bool", "", nil)
	abiBytes, _   = abi.NewType("bytes", "", nil)
	abiAddrs, _   = abi.NewType("address[]", "", nil)
	abiHopGrid, _ = abi.NewType("tuple[][]", "SwapAlloc[][]", []abi.ArgumentMarshaling{
		{Name: "tokenIn", Type: "address"},
		{Name: "tokenOut", Type: "address"},
		{Name: "routerIndex", Type: "uint8"},
		{Name: "fee", Type: "uint24"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "stable", Type: "bool"},
	})
)

// maxUint24 bounds fee tiers on the wire
const maxUint24 = 1<<24 - 1
