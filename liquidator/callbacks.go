package liquidator

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/adapters"
	"github.com/michaelpento.lv/flashliquidator/utils/bigmath"
)

// UniswapV3FlashCallback is called by the flash pool once the debt asset
// has been sent. The caller must be the pool recorded for the attempt in
// flight; nothing else is trusted before that check.
func (l *Liquidator) UniswapV3FlashCallback(caller common.Address, fee0, fee1 *big.Int, data []byte) error {
	fp := l.params
	if fp == nil || fp.flashPool == (common.Address{}) || caller != fp.flashPool {
		return fmt.Errorf("%w: flash callback from %s", ErrInvalidCallback, caller.Hex())
	}
	if fp.consumed {
		return fmt.Errorf("%w: flash callback already handled", ErrInvalidCallback)
	}

	fee := fee1
	if fp.debtIsToken0 {
		fee = fee0
	}
	if fee == nil || fee.Sign() < 0 {
		return fmt.Errorf("%w: invalid fee", ErrInvalidCallback)
	}
	fp.consumed = true
	fp.fee = new(big.Int).Set(fee)

	if err := l.liquidationSequence(fp); err != nil {
		return err
	}

	owed := new(big.Int).Add(fp.debtToCover, fp.fee)
	debtToken := l.host.Token(fp.debt)
	if bal := debtToken.BalanceOf(l.address); bal.Cmp(owed) < 0 {
		return fmt.Errorf("%w: have %s, owe %s", ErrInsufficientRepayment, bal, owed)
	}
	if err := debtToken.Transfer(l.address, caller, owed); err != nil {
		return fmt.Errorf("failed to repay flash swap: %w", err)
	}
	return nil
}

// ExecuteOperation is called by the lending pool with the borrowed asset.
// The pool pulls amount plus premium back through the allowance granted
// here.
func (l *Liquidator) ExecuteOperation(caller, asset common.Address, amount, premium *big.Int, initiator common.Address, params []byte) (bool, error) {
	if caller != l.pool.Address() {
		return false, fmt.Errorf("%w: flash loan callback from %s", ErrInvalidCallback, caller.Hex())
	}
	if initiator != l.address {
		return false, fmt.Errorf("%w: %s", ErrInvalidInitiator, initiator.Hex())
	}
	fp := l.params
	if fp == nil || fp.premium == nil {
		return false, fmt.Errorf("%w: no flash loan in flight", ErrInvalidCallback)
	}
	if fp.consumed {
		return false, fmt.Errorf("%w: flash loan callback already handled", ErrInvalidCallback)
	}
	if asset != fp.debt {
		return false, fmt.Errorf("%w: got %s, want %s", ErrAssetMismatch, asset.Hex(), fp.debt.Hex())
	}
	if amount == nil || premium == nil || premium.Sign() < 0 {
		return false, fmt.Errorf("%w: invalid amounts", ErrInvalidCallback)
	}
	fp.consumed = true
	fp.premium = new(big.Int).Set(premium)
	fp.fee = new(big.Int).Set(premium)

	if err := l.liquidationSequence(fp); err != nil {
		return false, err
	}

	owed := new(big.Int).Add(amount, premium)
	debtToken := l.host.Token(fp.debt)
	if bal := debtToken.BalanceOf(l.address); bal.Cmp(owed) < 0 {
		return false, fmt.Errorf("%w: have %s, owe %s", ErrInsufficientRepayment, bal, owed)
	}
	if err := debtToken.Approve(l.address, caller, owed); err != nil {
		return false, fmt.Errorf("failed to approve repayment: %w", err)
	}
	return true, nil
}

// liquidationSequence repays the position, wraps any native payout and
// swaps the collateral back into the debt asset
func (l *Liquidator) liquidationSequence(fp *flashParams) error {
	poolAddr := l.pool.Address()
	debtToken := l.host.Token(fp.debt)
	collToken := l.host.Token(fp.collateral)

	if err := debtToken.Approve(l.address, poolAddr, math.MaxBig256); err != nil {
		return fmt.Errorf("failed to approve pool: %w", err)
	}

	reserve, err := l.pool.ReserveData(fp.debt)
	if err != nil {
		return fmt.Errorf("failed to read debt reserve: %w", err)
	}
	variableDebt := l.host.Token(reserve.VariableDebtToken)
	owedBefore := variableDebt.BalanceOf(fp.user)
	collBefore := collToken.BalanceOf(l.address)

	if err := l.pool.LiquidationCall(l.address, fp.collateral, fp.debt, fp.user, fp.debtToCover, false); err != nil {
		return fmt.Errorf("liquidation call failed: %w", err)
	}

	if native := l.host.NativeBalance(l.address); native.Sign() > 0 {
		if l.wrappedNative == (common.Address{}) {
			l.logger.Warn("Native payout left unwrapped, no wrapped native configured",
				zap.Stringer("amount", native))
		} else {
			if err := l.host.WrappedNative(l.wrappedNative).Deposit(l.address, native); err != nil {
				return fmt.Errorf("failed to wrap native collateral: %w", err)
			}
			l.logger.Debug("Wrapped native collateral", zap.Stringer("amount", native))
		}
	}

	// with collateral == debt the repayment is netted out of the delta
	received := bigmath.SubFloor(collToken.BalanceOf(l.address), collBefore)
	if fp.collateral == fp.debt {
		repaid := bigmath.SubFloor(owedBefore, variableDebt.BalanceOf(fp.user))
		received.Add(received, repaid)
	}
	fp.collateralReceived = received

	if fp.collateral == fp.debt {
		return nil
	}
	balance := collToken.BalanceOf(l.address)
	if balance.Sign() == 0 {
		return nil
	}
	return l.swap(fp, balance)
}

// swap hands the entire collateral balance to the adapter named by the
// routing envelope
func (l *Liquidator) swap(fp *flashParams, amount *big.Int) error {
	env, err := l.decoder.Decode(fp.routingData)
	if err != nil {
		return fmt.Errorf("failed to decode routing data: %w", err)
	}

	addr := l.registry.Adapter(env.Tag)
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: %s", ErrUnknownAdapter, env.Tag)
	}
	c, ok := l.host.Contract(addr)
	if !ok {
		return fmt.Errorf("%w: nothing deployed at %s", ErrNotAdapter, addr.Hex())
	}
	adapter, ok := c.(adapters.Adapter)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAdapter, addr.Hex())
	}

	if err := l.host.Token(fp.collateral).Transfer(l.address, addr, amount); err != nil {
		return fmt.Errorf("failed to fund adapter: %w", err)
	}
	out, err := adapter.Swap(l.address, fp.collateral, fp.debt, amount, fp.minAmountOut, env.Payload)
	if err != nil {
		return fmt.Errorf("%s adapter swap failed: %w", env.Tag, err)
	}
	if out.Cmp(fp.minAmountOut) < 0 {
		return fmt.Errorf("%w: got %s, want at least %s", ErrSlippageExceeded, out, fp.minAmountOut)
	}

	fp.swapped = true
	fp.adapterTag = env.Tag
	l.logger.Debug("Swapped collateral",
		zap.Stringer("adapter", env.Tag),
		zap.Stringer("amountIn", amount),
		zap.Stringer("amountOut", out))
	return nil
}
