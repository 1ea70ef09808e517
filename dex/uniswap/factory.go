// Package uniswap is an in-memory Uniswap V3 style deployment: a factory
// with deterministic pool addresses, flash-capable pools and a fixed-rate
// router.
package uniswap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashliquidator/chain"
	"github.com/michaelpento.lv/flashliquidator/dex"
)

// PoolInitCodeHash is the Uniswap V3 pool init code hash
var PoolInitCodeHash = common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54")

type poolKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

// Factory creates and indexes pools
type Factory struct {
	host    *chain.Host
	address common.Address
	pools   map[poolKey]*Pool
	logger  *zap.Logger
}

// NewFactory deploys a factory at address
func NewFactory(host *chain.Host, address common.Address, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	f := &Factory{
		host:    host,
		address: address,
		pools:   make(map[poolKey]*Pool),
		logger:  logger,
	}
	if err := host.Deploy(address, f); err != nil {
		return nil, fmt.Errorf("failed to deploy factory: %w", err)
	}
	return f, nil
}

// Address returns the factory address
func (f *Factory) Address() common.Address {
	return f.address
}

// CreatePool deploys a pool for the pair at a fee tier
func (f *Factory) CreatePool(tokenA, tokenB common.Address, fee uint32) (*Pool, error) {
	if tokenA == tokenB {
		return nil, dex.ErrIdenticalTokens
	}
	if !dex.ValidFeeTier(fee) {
		return nil, fmt.Errorf("%w: %d", dex.ErrInvalidFeeTier, fee)
	}
	token0, token1 := dex.SortTokens(tokenA, tokenB)
	key := poolKey{token0: token0, token1: token1, fee: fee}
	if _, ok := f.pools[key]; ok {
		return nil, fmt.Errorf("%w: %s/%s %d", dex.ErrPoolExists, token0.Hex(), token1.Hex(), fee)
	}

	pool := &Pool{
		host:    f.host,
		address: f.poolFor(token0, token1, fee),
		token0:  token0,
		token1:  token1,
		fee:     fee,
		logger:  f.logger.With(zap.String("component", "pool")),
	}
	if err := f.host.Deploy(pool.address, pool); err != nil {
		return nil, fmt.Errorf("failed to deploy pool: %w", err)
	}
	f.pools[key] = pool

	f.logger.Debug("Pool created",
		zap.String("pool", pool.address.Hex()),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.Uint32("fee", fee))
	return pool, nil
}

// GetPool returns the pool address or the zero address
func (f *Factory) GetPool(tokenA, tokenB common.Address, fee uint32) common.Address {
	token0, token1 := dex.SortTokens(tokenA, tokenB)
	if pool, ok := f.pools[poolKey{token0: token0, token1: token1, fee: fee}]; ok {
		return pool.address
	}
	return common.Address{}
}

// poolFor computes the CREATE2 address of a pool
func (f *Factory) poolFor(token0, token1 common.Address, fee uint32) common.Address {
	salt := crypto.Keccak256(
		common.LeftPadBytes(token0.Bytes(), 32),
		common.LeftPadBytes(token1.Bytes(), 32),
		common.LeftPadBytes([]byte{byte(fee >> 16), byte(fee >> 8), byte(fee)}, 32),
	)
	return common.BytesToAddress(crypto.Keccak256([]byte{
		0xff,
	}, f.address.Bytes(), salt, PoolInitCodeHash.Bytes()))
}
