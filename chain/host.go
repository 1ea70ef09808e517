// Package chain provides an in-process execution host for contract-style
// components: token and native balances, allowances, an event log, and
// call frames that revert every effect when they fail.
package chain

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNegativeAmount        = errors.New("negative amount")
	ErrAddressInUse          = errors.New("address already has a contract")
	ErrUnknownSnapshot       = errors.New("unknown snapshot")
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// ledger is the revertible part of the host state
type ledger struct {
	native     map[common.Address]*big.Int
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
	supply     map[common.Address]*big.Int
	logs       []*types.Log
}

func newLedger() *ledger {
	return &ledger{
		native:     make(map[common.Address]*big.Int),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int),
		supply:     make(map[common.Address]*big.Int),
	}
}

func (l *ledger) clone() *ledger {
	c := newLedger()
	for addr, v := range l.native {
		c.native[addr] = new(big.Int).Set(v)
	}
	for token, holders := range l.balances {
		m := make(map[common.Address]*big.Int, len(holders))
		for holder, v := range holders {
			m[holder] = new(big.Int).Set(v)
		}
		c.balances[token] = m
	}
	for token, entries := range l.allowances {
		m := make(map[allowanceKey]*big.Int, len(entries))
		for key, v := range entries {
			m[key] = new(big.Int).Set(v)
		}
		c.allowances[token] = m
	}
	for token, v := range l.supply {
		c.supply[token] = new(big.Int).Set(v)
	}
	c.logs = make([]*types.Log, len(l.logs))
	copy(c.logs, l.logs)
	return c
}

// Host stands in for the chain. All calls into contracts deployed on a
// host are expected to be serialized by the caller; the host is not safe
// for concurrent use.
type Host struct {
	state       *ledger
	snapshots   []*ledger
	contracts   map[common.Address]any
	blockNumber uint64
}

// NewHost creates an empty host at block 1
func NewHost() *Host {
	return &Host{
		state:       newLedger(),
		contracts:   make(map[common.Address]any),
		blockNumber: 1,
	}
}

// Deploy binds a contract implementation to an address
func (h *Host) Deploy(addr common.Address, contract any) error {
	if _, ok := h.contracts[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAddressInUse, addr.Hex())
	}
	h.contracts[addr] = contract
	return nil
}

// Contract returns the implementation deployed at addr
func (h *Host) Contract(addr common.Address) (any, bool) {
	c, ok := h.contracts[addr]
	return c, ok
}

// BlockNumber returns the current block number
func (h *Host) BlockNumber() uint64 {
	return h.blockNumber
}

// AdvanceBlock moves the host to the next block
func (h *Host) AdvanceBlock() uint64 {
	h.blockNumber++
	return h.blockNumber
}

// Snapshot records the current ledger and returns its id
func (h *Host) Snapshot() int {
	h.snapshots = append(h.snapshots, h.state.clone())
	return len(h.snapshots) - 1
}

// RevertToSnapshot restores the ledger recorded by id and drops every
// snapshot taken after it
func (h *Host) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(h.snapshots) {
		return fmt.Errorf("%w: %d", ErrUnknownSnapshot, id)
	}
	h.state = h.snapshots[id]
	h.snapshots = h.snapshots[:id]
	return nil
}

func (h *Host) discard(id int) {
	if id >= 0 && id < len(h.snapshots) {
		h.snapshots = h.snapshots[:id]
	}
}

// Call runs fn as one call frame: if fn fails (or panics) every ledger
// effect made inside it is reverted.
func (h *Host) Call(fn func() error) (err error) {
	id := h.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			_ = h.RevertToSnapshot(id)
			panic(r)
		}
	}()

	if err = fn(); err != nil {
		_ = h.RevertToSnapshot(id)
		return err
	}
	h.discard(id)
	return nil
}

// NativeBalance returns the native currency balance of addr
func (h *Host) NativeBalance(addr common.Address) *big.Int {
	if v, ok := h.state.native[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Fund credits native currency to addr out of thin air (genesis allocation)
func (h *Host) Fund(addr common.Address, amount *big.Int) {
	h.state.native[addr] = new(big.Int).Add(h.NativeBalance(addr), amount)
}

// TransferNative moves native currency from one account to another
func (h *Host) TransferNative(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := h.NativeBalance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: native %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	h.state.native[from] = bal.Sub(bal, amount)
	h.state.native[to] = new(big.Int).Add(h.NativeBalance(to), amount)
	return nil
}

// EmitLog appends an event log emitted by addr
func (h *Host) EmitLog(addr common.Address, topics []common.Hash, data []byte) {
	h.state.logs = append(h.state.logs, &types.Log{
		Address:     addr,
		Topics:      topics,
		Data:        data,
		BlockNumber: h.blockNumber,
		Index:       uint(len(h.state.logs)),
	})
}

// Logs returns every log emitted so far
func (h *Host) Logs() []*types.Log {
	out := make([]*types.Log, len(h.state.logs))
	copy(out, h.state.logs)
	return out
}

// Digest returns a hash of the whole ledger. Two hosts (or one host at two
// points in time) with equal digests hold identical balances, allowances,
// supplies and logs.
func (h *Host) Digest() uint64 {
	d := xxhash.New()
	var buf [8]byte

	writeAmount := func(v *big.Int) {
		b := v.Bytes()
		binary.BigEndian.PutUint64(buf[:], uint64(len(b)))
		d.Write(buf[:])
		if v.Sign() < 0 {
			d.Write([]byte{1})
		}
		d.Write(b)
	}

	for _, addr := range sortedAddresses(h.state.native) {
		if h.state.native[addr].Sign() == 0 {
			continue
		}
		d.Write(addr.Bytes())
		writeAmount(h.state.native[addr])
	}
	d.Write([]byte("balances"))
	for _, token := range sortedKeys(h.state.balances) {
		holders := h.state.balances[token]
		for _, holder := range sortedAddresses(holders) {
			if holders[holder].Sign() == 0 {
				continue
			}
			d.Write(token.Bytes())
			d.Write(holder.Bytes())
			writeAmount(holders[holder])
		}
	}
	d.Write([]byte("allowances"))
	for _, token := range sortedKeys(h.state.allowances) {
		entries := h.state.allowances[token]
		keys := make([]allowanceKey, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if c := bytes.Compare(keys[i].owner.Bytes(), keys[j].owner.Bytes()); c != 0 {
				return c < 0
			}
			return bytes.Compare(keys[i].spender.Bytes(), keys[j].spender.Bytes()) < 0
		})
		for _, k := range keys {
			if entries[k].Sign() == 0 {
				continue
			}
			d.Write(token.Bytes())
			d.Write(k.owner.Bytes())
			d.Write(k.spender.Bytes())
			writeAmount(entries[k])
		}
	}
	d.Write([]byte("supply"))
	for _, token := range sortedAddresses(h.state.supply) {
		d.Write(token.Bytes())
		writeAmount(h.state.supply[token])
	}
	d.Write([]byte("logs"))
	for _, l := range h.state.logs {
		d.Write(l.Address.Bytes())
		for _, topic := range l.Topics {
			d.Write(topic.Bytes())
		}
		d.Write(l.Data)
	}
	return d.Sum64()
}

func sortedAddresses(m map[common.Address]*big.Int) []common.Address {
	out := make([]common.Address, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0 })
	return out
}

func sortedKeys[V any](m map[common.Address]V) []common.Address {
	out := make([]common.Address, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Bytes(), out[j].Bytes()) < 0 })
	return out
}
