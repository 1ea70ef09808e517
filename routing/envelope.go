// Package routing implements the wire format that tells the liquidator
// which swap adapter to use and how: an outer envelope carrying an
// adapter tag, and one payload shape per adapter.
package routing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	ErrMalformedEnvelope = errors.New("malformed routing envelope")
	ErrMalformedPayload  = errors.New("malformed adapter payload")
	ErrMalformedPath     = errors.New("malformed packed path")
	ErrFeeOutOfRange     = errors.New("fee does not fit in uint24")
	ErrUnknownTag        = errors.New("unknown adapter tag")
)

// Tag selects a swap adapter. IDs 3 and up are reserved.
type Tag uint8

const (
	TagMultiRouter Tag = 0
	TagUniswapV3   Tag = 1
	TagDirect      Tag = 2
)

func (t Tag) String() string {
	switch t {
	case TagMultiRouter:
		return "multirouter"
	case TagUniswapV3:
		return "uniswapv3"
	case TagDirect:
		return "direct"
	default:
		return "tag(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseTag accepts an adapter name or a numeric tag
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "multirouter", "liquidswap":
		return TagMultiRouter, nil
	case "uniswapv3", "univ3":
		return TagUniswapV3, nil
	case "direct":
		return TagDirect, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTag, s)
	}
	return Tag(n), nil
}

// DefaultTagForChain returns the adapter a deployment on chainID routes
// through unless told otherwise
func DefaultTagForChain(chainID uint64) Tag {
	switch chainID {
	case 998, 999:
		return TagMultiRouter
	case 9745, 42220, 42161, 8453, 10:
		return TagUniswapV3
	default:
		return TagMultiRouter
	}
}

// Envelope is the outer routing record: abi.encode(uint8 adapterType, bytes adapterData)
type Envelope struct {
	Tag     Tag
	Payload []byte
}

var envelopeArgs = abi.Arguments{
	{Name: "adapterType", Type: abiUint8},
	{Name: "adapterData", Type: abiBytes},
}

// EncodeEnvelope packs an envelope
func EncodeEnvelope(env Envelope) ([]byte, error) {
	payload := env.Payload
	if payload == nil {
		payload = []byte{}
	}
	data, err := envelopeArgs.Pack(uint8(env.Tag), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to pack envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope reads the adapter tag and raw payload
func DecodeEnvelope(data []byte) (Envelope, error) {
	out, err := envelopeArgs.Unpack(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	tag, ok := out[0].(uint8)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: adapterType", ErrMalformedEnvelope)
	}
	payload, ok := out[1].([]byte)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: adapterData", ErrMalformedEnvelope)
	}
	return Envelope{Tag: Tag(tag), Payload: payload}, nil
}

// Wrap encodes payload under tag
func Wrap(tag Tag, payload []byte) ([]byte, error) {
	return EncodeEnvelope(Envelope{Tag: tag, Payload: payload})
}
