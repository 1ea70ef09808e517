package liquidator

import (
	"errors"

	"github.com/michaelpento.lv/flashliquidator/adapters"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

// Configuration errors
var (
	ErrNoPoolFound    = errors.New("no flash pool found")
	ErrUnknownAdapter = errors.New("adapter tag not registered")
	ErrNotAdapter     = errors.New("registered address does not implement swap")
	ErrInvalidFeeTier = errors.New("invalid flash fee tier")
	ErrZeroAddress    = errors.New("zero address")
	ErrInvalidAmount  = errors.New("invalid debt amount")
)

// Authorization errors
var (
	ErrNotOwner         = errors.New("caller is not the owner")
	ErrReentrantCall    = errors.New("reentrant call")
	ErrInvalidCallback  = errors.New("invalid flash callback")
	ErrInvalidInitiator = errors.New("invalid flash loan initiator")
	ErrAssetMismatch    = errors.New("flash loan asset mismatch")
)

// Economic errors
var (
	ErrSlippageExceeded      = errors.New("swap output below minimum")
	ErrInsufficientRepayment = errors.New("balance does not cover flash repayment")
)

// Kind classifies a failed call
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAuthorization
	KindEconomic
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthorization:
		return "authorization"
	case KindEconomic:
		return "economic"
	default:
		return "unknown"
	}
}

var (
	authorizationErrors = []error{ErrNotOwner, ErrReentrantCall, ErrInvalidCallback, ErrInvalidInitiator, ErrAssetMismatch}
	economicErrors      = []error{ErrSlippageExceeded, ErrInsufficientRepayment, adapters.ErrInsufficientOutput}
	configurationErrors = []error{
		ErrNoPoolFound, ErrUnknownAdapter, ErrNotAdapter, ErrInvalidFeeTier, ErrZeroAddress, ErrInvalidAmount,
		routing.ErrMalformedEnvelope,
	}
)

// KindOf returns the kind of err. Authorization wins over economic, and
// economic over configuration, when an error chain carries several.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, target := range authorizationErrors {
		if errors.Is(err, target) {
			return KindAuthorization
		}
	}
	for _, target := range economicErrors {
		if errors.Is(err, target) {
			return KindEconomic
		}
	}
	for _, target := range configurationErrors {
		if errors.Is(err, target) {
			return KindConfiguration
		}
	}
	return KindUnknown
}
