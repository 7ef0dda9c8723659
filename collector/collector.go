// Package collector maintains the ordered set of fee collectors and their
// relative shares, and splits amounts proportionally among them.
package collector

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/types"
)

// Sentinel errors.
var (
	ErrDuplicateCollector = errors.New("collector: already registered")
	ErrUnknownCollector   = errors.New("collector: not registered")
	ErrInvalidCollector   = errors.New("collector: invalid address or share")
)

// Collector is a registered fee recipient. Share is relative: shares need not
// add up to 10000, splits normalize by the live total.
type Collector struct {
	Address common.Address `json:"address" yaml:"address"`
	Share   types.BPS      `json:"share"   yaml:"share"`
}

// Share is one collector's part of a proportional split.
type Share struct {
	Index     int            `json:"index"`
	Collector common.Address `json:"collector"`
	Amount    types.Amount   `json:"amount"`
}

// Registry is an insertion-ordered collection of collectors with unique
// addresses. It is not safe for concurrent use.
type Registry struct {
	items []Collector
}

// NewRegistry returns a registry seeded with collectors, validating each.
func NewRegistry(collectors ...Collector) (*Registry, error) {
	r := &Registry{}
	for _, c := range collectors {
		if err := r.Add(c.Address, c.Share); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) indexOf(address common.Address) int {
	for i, c := range r.items {
		if c.Address == address {
			return i
		}
	}
	return -1
}

func validate(address common.Address, share types.BPS) error {
	if types.IsZeroAddress(address) {
		return fmt.Errorf("%w: zero address", ErrInvalidCollector)
	}
	if share == 0 {
		return fmt.Errorf("%w: zero share for %s", ErrInvalidCollector, address.Hex())
	}
	return nil
}

// Add appends a collector.
func (r *Registry) Add(address common.Address, share types.BPS) error {
	if err := validate(address, share); err != nil {
		return err
	}
	if r.indexOf(address) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateCollector, address.Hex())
	}
	r.items = append(r.items, Collector{Address: address, Share: share})
	return nil
}

// Remove deletes a collector, keeping the relative order of the rest.
func (r *Registry) Remove(address common.Address) error {
	i := r.indexOf(address)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCollector, address.Hex())
	}
	r.items = append(r.items[:i], r.items[i+1:]...)
	return nil
}

// UpdateShare replaces a collector's share in place.
func (r *Registry) UpdateShare(address common.Address, share types.BPS) error {
	i := r.indexOf(address)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownCollector, address.Hex())
	}
	if err := validate(address, share); err != nil {
		return err
	}
	r.items[i].Share = share
	return nil
}

// Contains reports whether address is registered.
func (r *Registry) Contains(address common.Address) bool {
	return r.indexOf(address) >= 0
}

// TotalShares returns the live sum of all shares.
func (r *Registry) TotalShares() uint64 {
	var total uint64
	for _, c := range r.items {
		total += uint64(c.Share)
	}
	return total
}

// Len returns the number of collectors.
func (r *Registry) Len() int { return len(r.items) }

// List returns a copy of the collectors in insertion order.
func (r *Registry) List() []Collector {
	return append([]Collector(nil), r.items...)
}

// Replace swaps the whole collector list, validating it first. Used when
// rebuilding state from the journal.
func (r *Registry) Replace(collectors []Collector) error {
	next, err := NewRegistry(collectors...)
	if err != nil {
		return err
	}
	r.items = next.items
	return nil
}

// ProportionalSplit apportions amount among collectors in insertion order:
// each gets floor(amount*share/total) and the truncation remainder goes to
// the last collector, so the parts always add up to amount. With no shares
// registered it returns no parts and the whole amount as unallocated.
func (r *Registry) ProportionalSplit(amount types.Amount) ([]Share, types.Amount, error) {
	total := r.TotalShares()
	if total == 0 {
		return nil, amount, nil
	}

	parts := make([]Share, len(r.items))
	allocated := types.ZeroAmount()
	for i, c := range r.items {
		part, err := amount.MulDiv(uint64(c.Share), total)
		if err != nil {
			return nil, types.ZeroAmount(), fmt.Errorf("collector: split for %s: %w", c.Address.Hex(), err)
		}
		parts[i] = Share{Index: i, Collector: c.Address, Amount: part}
		if allocated, err = allocated.Add(part); err != nil {
			return nil, types.ZeroAmount(), err
		}
	}

	remainder, err := amount.Sub(allocated)
	if err != nil {
		return nil, types.ZeroAmount(), err
	}
	last := len(parts) - 1
	if parts[last].Amount, err = parts[last].Amount.Add(remainder); err != nil {
		return nil, types.ZeroAmount(), err
	}
	return parts, types.ZeroAmount(), nil
}
