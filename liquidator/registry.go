package liquidator

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flashliquidator/dex"
	"github.com/michaelpento.lv/flashliquidator/routing"
)

// Registry is the owner-mutable configuration a liquidator reads on every
// attempt: the adapter tag table and the default flash fee tier. Writes go
// through the liquidator's owner-only entry points.
type Registry struct {
	adapters       map[routing.Tag]common.Address
	defaultFeeTier uint32
}

// NewRegistry validates feeTier and copies adapters. A zero fee tier means
// dex.FeeMedium.
func NewRegistry(feeTier uint32, adapters map[routing.Tag]common.Address) (*Registry, error) {
	if feeTier == 0 {
		feeTier = dex.FeeMedium
	}
	if !dex.ValidFeeTier(feeTier) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeTier, feeTier)
	}

	r := &Registry{
		adapters:       make(map[routing.Tag]common.Address, len(adapters)),
		defaultFeeTier: feeTier,
	}
	for tag, addr := range adapters {
		r.set(tag, addr)
	}
	return r, nil
}

// Adapter returns the address registered for tag, or the zero address
func (r *Registry) Adapter(tag routing.Tag) common.Address {
	return r.adapters[tag]
}

// Tags returns the registered tags in ascending order
func (r *Registry) Tags() []routing.Tag {
	tags := make([]routing.Tag, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// DefaultFlashFeeTier returns the fee tier Liquidate uses
func (r *Registry) DefaultFlashFeeTier() uint32 {
	return r.defaultFeeTier
}

// set overwrites the mapping for tag. The zero address unregisters it.
func (r *Registry) set(tag routing.Tag, addr common.Address) {
	if addr == (common.Address{}) {
		delete(r.adapters, tag)
		return
	}
	r.adapters[tag] = addr
}

func (r *Registry) setDefaultFlashFeeTier(tier uint32) error {
	if !dex.ValidFeeTier(tier) {
		return fmt.Errorf("%w: %d", ErrInvalidFeeTier, tier)
	}
	r.defaultFeeTier = tier
	return nil
}
