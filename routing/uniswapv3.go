package routing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	pathAddrSize = common.AddressLength
	pathFeeSize  = 3
	pathHopSize  = pathAddrSize + pathFeeSize
)

// UniswapV3Payload is abi.encode(bool isMultiHop, bytes pathOrFee). A
// single hop carries abi.encode(uint24 fee); a multi hop carries a packed
// path.
type UniswapV3Payload struct {
	MultiHop bool
	Fee      uint32
	Path     []byte
}

var (
	uniswapV3Args = abi.Arguments{
		{Name: "isMultiHop", Type: abiBool},
		{Name: "pathOrFee", Type: abiBytes},
	}
	feeArgs = abi.Arguments{{Name: "fee", Type: abiUint24}}
)

// EncodeUniswapV3 packs the payload (without envelope)
func EncodeUniswapV3(p UniswapV3Payload) ([]byte, error) {
	var inner []byte
	if p.MultiHop {
		if _, _, err := DecodePath(p.Path); err != nil {
			return nil, err
		}
		inner = p.Path
	} else {
		if p.Fee > maxUint24 {
			return nil, fmt.Errorf("%w: %d", ErrFeeOutOfRange, p.Fee)
		}
		var err error
		inner, err = feeArgs.Pack(new(big.Int).SetUint64(uint64(p.Fee)))
		if err != nil {
			return nil, fmt.Errorf("failed to pack fee: %w", err)
		}
	}
	data, err := uniswapV3Args.Pack(p.MultiHop, inner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack uniswap v3 payload: %w", err)
	}
	return data, nil
}

// DecodeUniswapV3 unpacks a payload produced by EncodeUniswapV3
func DecodeUniswapV3(data []byte) (UniswapV3Payload, error) {
	out, err := uniswapV3Args.Unpack(data)
	if err != nil {
		return UniswapV3Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	multiHop, ok := out[0].(bool)
	if !ok {
		return UniswapV3Payload{}, fmt.Errorf("%w: isMultiHop", ErrMalformedPayload)
	}
	inner, ok := out[1].([]byte)
	if !ok {
		return UniswapV3Payload{}, fmt.Errorf("%w: pathOrFee", ErrMalformedPayload)
	}

	if multiHop {
		if _, _, err := DecodePath(inner); err != nil {
			return UniswapV3Payload{}, err
		}
		return UniswapV3Payload{MultiHop: true, Path: inner}, nil
	}

	feeOut, err := feeArgs.Unpack(inner)
	if err != nil {
		return UniswapV3Payload{}, fmt.Errorf("%w: fee: %v", ErrMalformedPayload, err)
	}
	fee, ok := feeOut[0].(*big.Int)
	if !ok || !fee.IsUint64() || fee.Uint64() > maxUint24 {
		return UniswapV3Payload{}, fmt.Errorf("%w: fee", ErrMalformedPayload)
	}
	return UniswapV3Payload{Fee: uint32(fee.Uint64())}, nil
}

// EncodePath packs token(20) | fee(3) | token(20) | ... for len(fees) hops
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 || len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("%w: %d tokens, %d fees", ErrMalformedPath, len(tokens), len(fees))
	}
	path := make([]byte, 0, pathAddrSize+len(fees)*pathHopSize)
	for i, token := range tokens {
		path = append(path, token.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			if fee > maxUint24 {
				return nil, fmt.Errorf("%w: %d", ErrFeeOutOfRange, fee)
			}
			path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return path, nil
}

// DecodePath splits a packed path into its tokens and fees
func DecodePath(path []byte) ([]common.Address, []uint32, error) {
	if len(path) < pathAddrSize+pathHopSize || (len(path)-pathAddrSize)%pathHopSize != 0 {
		return nil, nil, fmt.Errorf("%w: length %d", ErrMalformedPath, len(path))
	}
	hops := (len(path) - pathAddrSize) / pathHopSize
	tokens := make([]common.Address, 0, hops+1)
	fees := make([]uint32, 0, hops)

	tokens = append(tokens, common.BytesToAddress(path[:pathAddrSize]))
	for i := 0; i < hops; i++ {
		off := pathAddrSize + i*pathHopSize
		fees = append(fees, uint32(path[off])<<16|uint32(path[off+1])<<8|uint32(path[off+2]))
		tokens = append(tokens, common.BytesToAddress(path[off+pathFeeSize:off+pathHopSize]))
	}
	return tokens, fees, nil
}

// UniswapV3SingleHop builds a full envelope for a single-pool swap
func UniswapV3SingleHop(fee uint32) ([]byte, error) {
	payload, err := EncodeUniswapV3(UniswapV3Payload{Fee: fee})
	if err != nil {
		return nil, err
	}
	return Wrap(TagUniswapV3, payload)
}

// UniswapV3MultiHop builds a full envelope for a packed-path swap
func UniswapV3MultiHop(tokens []common.Address, fees []uint32) ([]byte, error) {
	path, err := EncodePath(tokens, fees)
	if err != nil {
		return nil, err
	}
	payload, err := EncodeUniswapV3(UniswapV3Payload{MultiHop: true, Path: path})
	if err != nil {
		return nil, err
	}
	return Wrap(TagUniswapV3, payload)
}

// UniswapV3Route picks single hop for a two-token route and a uniform-fee
// packed path otherwise
func UniswapV3Route(tokens []common.Address, fee uint32) ([]byte, error) {
	if len(tokens) == 2 {
		return UniswapV3SingleHop(fee)
	}
	if len(tokens) < 2 {
		return nil, fmt.Errorf("%w: %d tokens", ErrMalformedPath, len(tokens))
	}
	fees := make([]uint32, len(tokens)-1)
	for i := range fees {
		fees[i] = fee
	}
	return UniswapV3MultiHop(tokens, fees)
}

// Direct builds the envelope for the passthrough adapter
func Direct() ([]byte, error) {
	return Wrap(TagDirect, nil)
}
