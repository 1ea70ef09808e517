package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func TestTokenTransfers(t *testing.T) {
	h := NewHost()
	token := h.Token(usdc)
	require.NoError(t, token.Mint(alice, big.NewInt(1000)))

	t.Run("transfer", func(t *testing.T) {
		require.NoError(t, token.Transfer(alice, bob, big.NewInt(400)))
		assert.Equal(t, big.NewInt(600), token.BalanceOf(alice))
		assert.Equal(t, big.NewInt(400), token.BalanceOf(bob))
		assert.Equal(t, big.NewInt(1000), token.TotalSupply())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		err := token.Transfer(bob, alice, big.NewInt(401))
		require.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, big.NewInt(400), token.BalanceOf(bob))
	})

	t.Run("transferFrom consumes allowance", func(t *testing.T) {
		require.NoError(t, token.Approve(alice, bob, big.NewInt(100)))
		require.NoError(t, token.TransferFrom(bob, alice, bob, big.NewInt(60)))
		assert.Equal(t, big.NewInt(40), token.Allowance(alice, bob))

		err := token.TransferFrom(bob, alice, bob, big.NewInt(41))
		require.ErrorIs(t, err, ErrInsufficientAllowance)
	})

	t.Run("max allowance is not consumed", func(t *testing.T) {
		require.NoError(t, token.Approve(alice, bob, math.MaxBig256))
		require.NoError(t, token.TransferFrom(bob, alice, bob, big.NewInt(10)))
		assert.Equal(t, math.MaxBig256, token.Allowance(alice, bob))
	})

	t.Run("burn", func(t *testing.T) {
		supply := token.TotalSupply()
		require.NoError(t, token.Burn(bob, big.NewInt(10)))
		assert.Equal(t, new(big.Int).Sub(supply, big.NewInt(10)), token.TotalSupply())
	})
}

func TestCallRevertsOnError(t *testing.T) {
	h := NewHost()
	token := h.Token(usdc)
	require.NoError(t, token.Mint(alice, big.NewInt(1000)))
	h.Fund(alice, big.NewInt(5))
	before := h.Digest()
	logs := len(h.Logs())

	boom := errors.New("boom")
	err := h.Call(func() error {
		require.NoError(t, token.Transfer(alice, bob, big.NewInt(500)))
		require.NoError(t, h.TransferNative(alice, bob, big.NewInt(5)))
		return h.Call(func() error {
			require.NoError(t, token.Transfer(alice, bob, big.NewInt(500)))
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, before, h.Digest())
	assert.Equal(t, big.NewInt(1000), token.BalanceOf(alice))
	assert.Equal(t, big.NewInt(5), h.NativeBalance(alice))
	assert.Len(t, h.Logs(), logs)
}

func TestCallKeepsInnerRevertLocal(t *testing.T) {
	h := NewHost()
	token := h.Token(usdc)
	require.NoError(t, token.Mint(alice, big.NewInt(1000)))

	err := h.Call(func() error {
		require.NoError(t, token.Transfer(alice, bob, big.NewInt(100)))
		inner := h.Call(func() error {
			require.NoError(t, token.Transfer(alice, bob, big.NewInt(100)))
			return errors.New("inner")
		})
		require.Error(t, inner)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), token.BalanceOf(bob))
}

func TestCallRevertsOnPanic(t *testing.T) {
	h := NewHost()
	token := h.Token(usdc)
	require.NoError(t, token.Mint(alice, big.NewInt(1000)))
	before := h.Digest()

	assert.Panics(t, func() {
		_ = h.Call(func() error {
			_ = token.Transfer(alice, bob, big.NewInt(1))
			panic("unexpected")
		})
	})
	assert.Equal(t, before, h.Digest())
}

func TestWrappedNative(t *testing.T) {
	h := NewHost()
	w := h.WrappedNative(weth)
	h.Fund(alice, big.NewInt(10))

	require.NoError(t, w.Deposit(alice, big.NewInt(7)))
	assert.Equal(t, big.NewInt(3), h.NativeBalance(alice))
	assert.Equal(t, big.NewInt(7), w.BalanceOf(alice))
	assert.Equal(t, big.NewInt(7), h.NativeBalance(weth))

	require.NoError(t, w.Withdraw(alice, big.NewInt(2)))
	assert.Equal(t, big.NewInt(5), h.NativeBalance(alice))
	assert.Equal(t, big.NewInt(5), w.BalanceOf(alice))

	err := w.Deposit(alice, big.NewInt(6))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestDeploy(t *testing.T) {
	h := NewHost()
	type stub struct{ name string }

	require.NoError(t, h.Deploy(alice, &stub{name: "a"}))
	err := h.Deploy(alice, &stub{name: "b"})
	require.ErrorIs(t, err, ErrAddressInUse)

	c, ok := h.Contract(alice)
	require.True(t, ok)
	assert.Equal(t, "a", c.(*stub).name)

	_, ok = h.Contract(bob)
	assert.False(t, ok)
}

func TestDigestTracksState(t *testing.T) {
	h := NewHost()
	empty := h.Digest()

	token := h.Token(usdc)
	require.NoError(t, token.Mint(alice, big.NewInt(1)))
	assert.NotEqual(t, empty, h.Digest())

	id := h.Snapshot()
	minted := h.Digest()
	require.NoError(t, token.Transfer(alice, bob, big.NewInt(1)))
	assert.NotEqual(t, minted, h.Digest())

	require.NoError(t, h.RevertToSnapshot(id))
	assert.Equal(t, minted, h.Digest())
	require.ErrorIs(t, h.RevertToSnapshot(id), ErrUnknownSnapshot)
}
