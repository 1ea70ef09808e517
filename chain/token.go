package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	approvalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
)

// TransferTopic is the topic of ERC20 Transfer logs emitted by the host
func TransferTopic() common.Hash { return transferTopic }

// Token is an ERC20 view over a token address on a host
type Token struct {
	host    *Host
	address common.Address
}

// Token returns a handle for the token at addr. Any address can hold a
// token ledger; balances start at zero.
func (h *Host) Token(addr common.Address) *Token {
	return &Token{host: h, address: addr}
}

// Address returns the token contract address
func (t *Token) Address() common.Address {
	return t.address
}

// BalanceOf returns the balance held by holder
func (t *Token) BalanceOf(holder common.Address) *big.Int {
	if holders, ok := t.host.state.balances[t.address]; ok {
		if v, ok := holders[holder]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

// TotalSupply returns the minted supply
func (t *Token) TotalSupply() *big.Int {
	if v, ok := t.host.state.supply[t.address]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Allowance returns how much spender may pull from owner
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	if entries, ok := t.host.state.allowances[t.address]; ok {
		if v, ok := entries[allowanceKey{owner: owner, spender: spender}]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

// Transfer moves amount from caller to to
func (t *Token) Transfer(caller, to common.Address, amount *big.Int) error {
	return t.move(caller, to, amount)
}

// TransferFrom moves amount from from to to using caller's allowance. An
// allowance of max uint256 is never consumed.
func (t *Token) TransferFrom(caller, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	allowed := t.Allowance(from, caller)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s may pull %s from %s, needs %s",
			ErrInsufficientAllowance, caller.Hex(), allowed, from.Hex(), amount)
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	if allowed.Cmp(math.MaxBig256) != 0 {
		t.setAllowance(from, caller, allowed.Sub(allowed, amount))
	}
	return nil
}

// Approve sets the allowance of spender over caller's balance
func (t *Token) Approve(caller, spender common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	t.setAllowance(caller, spender, new(big.Int).Set(amount))
	t.host.EmitLog(t.address,
		[]common.Hash{approvalTopic, common.BytesToHash(caller.Bytes()), common.BytesToHash(spender.Bytes())},
		common.LeftPadBytes(amount.Bytes(), 32))
	return nil
}

// Mint credits amount to holder and grows the supply
func (t *Token) Mint(holder common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	t.setBalance(holder, new(big.Int).Add(t.BalanceOf(holder), amount))
	t.host.state.supply[t.address] = new(big.Int).Add(t.TotalSupply(), amount)
	t.emitTransfer(common.Address{}, holder, amount)
	return nil
}

// Burn debits amount from holder and shrinks the supply
func (t *Token) Burn(holder common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := t.BalanceOf(holder)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, burning %s",
			ErrInsufficientBalance, holder.Hex(), bal, t.address.Hex(), amount)
	}
	t.setBalance(holder, bal.Sub(bal, amount))
	t.host.state.supply[t.address] = new(big.Int).Sub(t.TotalSupply(), amount)
	t.emitTransfer(holder, common.Address{}, amount)
	return nil
}

func (t *Token) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := t.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), bal, t.address.Hex(), amount)
	}
	t.setBalance(from, bal.Sub(bal, amount))
	t.setBalance(to, new(big.Int).Add(t.BalanceOf(to), amount))
	t.emitTransfer(from, to, amount)
	return nil
}

func (t *Token) setBalance(holder common.Address, v *big.Int) {
	holders, ok := t.host.state.balances[t.address]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		t.host.state.balances[t.address] = holders
	}
	holders[holder] = v
}

func (t *Token) setAllowance(owner, spender common.Address, v *big.Int) {
	entries, ok := t.host.state.allowances[t.address]
	if !ok {
		entries = make(map[allowanceKey]*big.Int)
		t.host.state.allowances[t.address] = entries
	}
	entries[allowanceKey{owner: owner, spender: spender}] = v
}

func (t *Token) emitTransfer(from, to common.Address, amount *big.Int) {
	t.host.EmitLog(t.address,
		[]common.Hash{transferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		common.LeftPadBytes(amount.Bytes(), 32))
}

// WrappedNative is the ERC20 wrapper of the native currency. The wrapper
// contract holds the native backing at its own address.
type WrappedNative struct {
	*Token
}

// WrappedNative returns a handle for the wrapped-native token at addr
func (h *Host) WrappedNative(addr common.Address) *WrappedNative {
	return &WrappedNative{Token: h.Token(addr)}
}

// Deposit wraps amount of caller's native currency 1:1
func (w *WrappedNative) Deposit(caller common.Address, amount *big.Int) error {
	if err := w.host.TransferNative(caller, w.address, amount); err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}
	return w.Mint(caller, amount)
}

// Withdraw unwraps amount of caller's wrapped balance back to native
func (w *WrappedNative) Withdraw(caller common.Address, amount *big.Int) error {
	if err := w.Burn(caller, amount); err != nil {
		return fmt.Errorf("failed to withdraw: %w", err)
	}
	return w.host.TransferNative(w.address, caller, amount)
}
