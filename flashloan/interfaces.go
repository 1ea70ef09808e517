package flashloan

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrReserveNotFound  = errors.New("reserve not found")
	ErrNotReceiver      = errors.New("receiver does not implement executeOperation")
	ErrReceiverRejected = errors.New("flash loan receiver returned false")
	ErrHealthyPosition  = errors.New("health factor not below threshold")
	ErrNoDebt           = errors.New("user has no debt in reserve")
	ErrNoCollateral     = errors.New("user has no collateral in reserve")
	ErrHealthFactor     = errors.New("health factor would fall below threshold")
)

// LendingPool is the subset of an Aave V3 pool a liquidator needs
type LendingPool interface {
	Address() common.Address
	ReserveData(asset common.Address) (ReserveData, error)
	// FlashLoanSimple lends amount of asset to receiver, calls its
	// ExecuteOperation with caller as initiator, then pulls amount plus
	// premium back from receiver
	FlashLoanSimple(caller, receiver, asset common.Address, amount *big.Int, params []byte, referralCode uint16) error
	// LiquidationCall repays up to debtToCover of user's debt from caller
	// and sends the discounted collateral to caller
	LiquidationCall(caller, collateral, debt, user common.Address, debtToCover *big.Int, receiveAToken bool) error
}

// Receiver is implemented by contracts that take simple flash loans
type Receiver interface {
	ExecuteOperation(caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (bool, error)
}
