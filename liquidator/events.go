package liquidator

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/michaelpento.lv/flashliquidator/routing"
)

const eventsABI = `[
	{"type":"event","name":"LiquidationExecuted","anonymous":false,"inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"collateral","type":"address","indexed":true},
		{"name":"debt","type":"address","indexed":true},
		{"name":"debtAmount","type":"uint256","indexed":false},
		{"name":"collateralReceived","type":"uint256","indexed":false},
		{"name":"profit","type":"uint256","indexed":false}]},
	{"type":"event","name":"AdapterUpdated","anonymous":false,"inputs":[
		{"name":"adapterType","type":"uint8","indexed":true},
		{"name":"adapter","type":"address","indexed":false}]},
	{"type":"event","name":"OwnershipTransferred","anonymous":false,"inputs":[
		{"name":"previousOwner","type":"address","indexed":true},
		{"name":"newOwner","type":"address","indexed":true}]}
]`

var (
	liquidationExecutedEvent abi.Event
	adapterUpdatedEvent      abi.Event
	ownershipEvent           abi.Event
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(eventsABI))
	if err != nil {
		panic(fmt.Sprintf("invalid events ABI: %v", err))
	}
	liquidationExecutedEvent = parsed.Events["LiquidationExecuted"]
	adapterUpdatedEvent = parsed.Events["AdapterUpdated"]
	ownershipEvent = parsed.Events["OwnershipTransferred"]
}

// LiquidationExecutedTopic identifies LiquidationExecuted logs
func LiquidationExecutedTopic() common.Hash { return liquidationExecutedEvent.ID }

// AdapterUpdatedTopic identifies AdapterUpdated logs
func AdapterUpdatedTopic() common.Hash { return adapterUpdatedEvent.ID }

// LiquidationExecuted is the result event of one liquidation
type LiquidationExecuted struct {
	User               common.Address
	Collateral         common.Address
	Debt               common.Address
	DebtAmount         *big.Int
	CollateralReceived *big.Int
	Profit             *big.Int
	Raw                *types.Log
}

// AdapterUpdated is emitted on every registry write
type AdapterUpdated struct {
	Tag     routing.Tag
	Adapter common.Address
	Raw     *types.Log
}

func (l *Liquidator) emitLiquidationExecuted(user, collateral, debt common.Address, debtAmount, collateralReceived, profit *big.Int) error {
	data, err := liquidationExecutedEvent.Inputs.NonIndexed().Pack(debtAmount, collateralReceived, profit)
	if err != nil {
		return fmt.Errorf("failed to pack LiquidationExecuted: %w", err)
	}
	l.host.EmitLog(l.address, []common.Hash{
		liquidationExecutedEvent.ID,
		common.BytesToHash(user.Bytes()),
		common.BytesToHash(collateral.Bytes()),
		common.BytesToHash(debt.Bytes()),
	}, data)
	return nil
}

func (l *Liquidator) emitAdapterUpdated(tag routing.Tag, adapter common.Address) error {
	data, err := adapterUpdatedEvent.Inputs.NonIndexed().Pack(adapter)
	if err != nil {
		return fmt.Errorf("failed to pack AdapterUpdated: %w", err)
	}
	l.host.EmitLog(l.address, []common.Hash{
		adapterUpdatedEvent.ID,
		common.BigToHash(big.NewInt(int64(tag))),
	}, data)
	return nil
}

func (l *Liquidator) emitOwnershipTransferred(previous, next common.Address) {
	l.host.EmitLog(l.address, []common.Hash{
		ownershipEvent.ID,
		common.BytesToHash(previous.Bytes()),
		common.BytesToHash(next.Bytes()),
	}, nil)
}

// ParseLiquidationExecuted decodes a LiquidationExecuted log
func ParseLiquidationExecuted(log *types.Log) (*LiquidationExecuted, error) {
	if len(log.Topics) != 4 || log.Topics[0] != liquidationExecutedEvent.ID {
		return nil, fmt.Errorf("not a LiquidationExecuted log")
	}
	values, err := liquidationExecutedEvent.Inputs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack LiquidationExecuted: %w", err)
	}
	ev := &LiquidationExecuted{
		User:       common.BytesToAddress(log.Topics[1].Bytes()),
		Collateral: common.BytesToAddress(log.Topics[2].Bytes()),
		Debt:       common.BytesToAddress(log.Topics[3].Bytes()),
		Raw:        log,
	}
	var ok bool
	if ev.DebtAmount, ok = values[0].(*big.Int); !ok {
		return nil, fmt.Errorf("invalid debtAmount")
	}
	if ev.CollateralReceived, ok = values[1].(*big.Int); !ok {
		return nil, fmt.Errorf("invalid collateralReceived")
	}
	if ev.Profit, ok = values[2].(*big.Int); !ok {
		return nil, fmt.Errorf("invalid profit")
	}
	return ev, nil
}

// ParseAdapterUpdated decodes an AdapterUpdated log
func ParseAdapterUpdated(log *types.Log) (*AdapterUpdated, error) {
	if len(log.Topics) != 2 || log.Topics[0] != adapterUpdatedEvent.ID {
		return nil, fmt.Errorf("not an AdapterUpdated log")
	}
	tag := log.Topics[1].Big()
	if !tag.IsUint64() || tag.Uint64() > 255 {
		return nil, fmt.Errorf("invalid adapterType topic")
	}
	values, err := adapterUpdatedEvent.Inputs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack AdapterUpdated: %w", err)
	}
	adapter, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("invalid adapter")
	}
	return &AdapterUpdated{Tag: routing.Tag(tag.Uint64()), Adapter: adapter, Raw: log}, nil
}

// FindLiquidations returns every LiquidationExecuted log emitted by addr
func FindLiquidations(logs []*types.Log, addr common.Address) []*LiquidationExecuted {
	var out []*LiquidationExecuted
	for _, log := range logs {
		if log.Address != addr {
			continue
		}
		if ev, err := ParseLiquidationExecuted(log); err == nil {
			out = append(out, ev)
		}
	}
	return out
}
