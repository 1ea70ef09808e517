package uniswap

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/utils/bigmath"
)

// FlashTopic is keccak256("Flash(address,address,uint256,uint256,uint256,uint256)")
var FlashTopic = crypto.Keccak256Hash([]byte("Flash(address,address,uint256,uint256,uint256,uint256)"))

// Pool is a flash-capable pool. Liquidity is whatever token balance the
// pool address holds.
type Pool struct {
	host    *chain.Host
	address common.Address
	token0  common.Address
	token1  common.Address
	fee     uint32
	locked  bool
	logger  *zap.Logger
}

func (p *Pool) Address() common.Address { return p.address }
func (p *Pool) Token0() common.Address  { return p.token0 }
func (p *Pool) Token1() common.Address  { return p.token1 }
func (p *Pool) Fee() uint32             { return p.fee }

// Flash lends amount0/amount1 to recipient and calls back into caller,
// which must implement dex.FlashCallback. The pool's balances must have
// grown by at least the fee on each side when the callback returns.
func (p *Pool) Flash(caller, recipient common.Address, amount0, amount1 *big.Int, data []byte) error {
	return p.host.Call(func() error {
		if p.locked {
			return dex.ErrPoolLocked
		}
		p.locked = true
		defer func() { p.locked = false }()

		c, ok := p.host.Contract(caller)
		if !ok {
			return fmt.Errorf("%w: %s", dex.ErrNoFlashCallback, caller.Hex())
		}
		callback, ok := c.(dex.FlashCallback)
		if !ok {
			return fmt.Errorf("%w: %s", dex.ErrNoFlashCallback, caller.Hex())
		}

		t0 := p.host.Token(p.token0)
		t1 := p.host.Token(p.token1)
		fee0 := bigmath.CalculateFlashFee(amount0, p.fee)
		fee1 := bigmath.CalculateFlashFee(amount1, p.fee)
		balance0Before := t0.BalanceOf(p.address)
		balance1Before := t1.BalanceOf(p.address)

		if amount0 != nil && amount0.Sign() > 0 {
			if err := t0.Transfer(p.address, recipient, amount0); err != nil {
				return fmt.Errorf("failed to lend token0: %w", err)
			}
		}
		if amount1 != nil && amount1.Sign() > 0 {
			if err := t1.Transfer(p.address, recipient, amount1); err != nil {
				return fmt.Errorf("failed to lend token1: %w", err)
			}
		}

		if err := callback.UniswapV3FlashCallback(p.address, fee0, fee1, data); err != nil {
			return err
		}

		paid0 := new(big.Int).Sub(t0.BalanceOf(p.address), balance0Before)
		paid1 := new(big.Int).Sub(t1.BalanceOf(p.address), balance1Before)
		if paid0.Cmp(fee0) < 0 {
			return fmt.Errorf("%w: token0 paid %s, owed %s", dex.ErrFlashNotRepaid, paid0, fee0)
		}
		if paid1.Cmp(fee1) < 0 {
			return fmt.Errorf("%w: token1 paid %s, owed %s", dex.ErrFlashNotRepaid, paid1, fee1)
		}

		p.host.EmitLog(p.address,
			[]common.Hash{FlashTopic, common.BytesToHash(caller.Bytes()), common.BytesToHash(recipient.Bytes())},
			packWords(bigmath.Clone(amount0), bigmath.Clone(amount1), paid0, paid1))

		p.logger.Debug("Flash repaid",
			zap.String("pool", p.address.Hex()),
			zap.String("paid0", paid0.String()),
			zap.String("paid1", paid1.String()))
		return nil
	})
}

func packWords(values ...*big.Int) []byte {
	out := make([]byte, 0, 32*len(values))
	for _, v := range values {
		if v == nil {
			v = new(big.Int)
		}
		out = append(out, common.LeftPadBytes(v.Bytes(), 32)...)
	}
	return out
}
