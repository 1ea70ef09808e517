package liquidator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/routing"
)

// enter takes the global busy flag and checks the caller is the owner.
// The busy check comes first so a nested call fails as reentrant.
func (l *Liquidator) enter(caller common.Address) (func(), error) {
	if !l.busy.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	if caller != l.owner {
		l.busy.Store(false)
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return func() { l.busy.Store(false) }, nil
}

// SetAdapter maps tag to addr, overwriting any previous mapping. The zero
// address unregisters the tag. The address is not checked for the swap
// capability until a liquidation uses it.
func (l *Liquidator) SetAdapter(caller common.Address, tag routing.Tag, addr common.Address) error {
	release, err := l.enter(caller)
	if err != nil {
		return err
	}
	defer release()

	if err := l.host.Call(func() error { return l.emitAdapterUpdated(tag, addr) }); err != nil {
		return err
	}
	previous := l.registry.Adapter(tag)
	l.registry.set(tag, addr)

	l.logger.Info("Adapter updated",
		zap.Stringer("tag", tag),
		zap.String("previous", previous.Hex()),
		zap.String("adapter", addr.Hex()))
	return nil
}

// SetDefaultFlashFeeTier changes the tier Liquidate selects pools with
func (l *Liquidator) SetDefaultFlashFeeTier(caller common.Address, tier uint32) error {
	release, err := l.enter(caller)
	if err != nil {
		return err
	}
	defer release()

	if err := l.registry.setDefaultFlashFeeTier(tier); err != nil {
		return err
	}
	l.logger.Info("Default flash fee tier updated", zap.Uint32("tier", tier))
	return nil
}

// RescueAsset sends stranded funds to recipient. The zero asset address
// means native currency; useEntireBalance ignores amount.
func (l *Liquidator) RescueAsset(caller, asset common.Address, amount *big.Int, useEntireBalance bool, recipient common.Address) error {
	release, err := l.enter(caller)
	if err != nil {
		return err
	}
	defer release()

	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: recipient", ErrZeroAddress)
	}
	if !useEntireBalance && (amount == nil || amount.Sign() < 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	var sent *big.Int
	err = l.host.Call(func() error {
		if asset == (common.Address{}) {
			sent = l.host.NativeBalance(l.address)
			if !useEntireBalance {
				sent = new(big.Int).Set(amount)
			}
			return l.host.TransferNative(l.address, recipient, sent)
		}
		token := l.host.Token(asset)
		sent = token.BalanceOf(l.address)
		if !useEntireBalance {
			sent = new(big.Int).Set(amount)
		}
		return token.Transfer(l.address, recipient, sent)
	})
	if err != nil {
		return fmt.Errorf("failed to rescue %s: %w", asset.Hex(), err)
	}

	l.logger.Info("Rescued asset",
		zap.String("asset", asset.Hex()),
		zap.Stringer("amount", sent),
		zap.String("recipient", recipient.Hex()))
	return nil
}

// TransferOwnership hands the privileged role to newOwner
func (l *Liquidator) TransferOwnership(caller, newOwner common.Address) error {
	release, err := l.enter(caller)
	if err != nil {
		return err
	}
	defer release()

	if newOwner == (common.Address{}) {
		return fmt.Errorf("%w: new owner", ErrZeroAddress)
	}
	previous := l.owner
	l.emitOwnershipTransferred(previous, newOwner)
	l.owner = newOwner

	l.logger.Info("Ownership transferred",
		zap.String("previous", previous.Hex()),
		zap.String("owner", newOwner.Hex()))
	return nil
}
