// Package lot models one fee processing or distribution request and tracks
// it through its lifecycle.
package lot

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/types"
)

// ErrInvalidTransition is returned when a lot is moved to a state that is not
// reachable from its current one.
var ErrInvalidTransition = errors.New("lot: invalid state transition")

// Kind distinguishes processing lots from distribution lots.
type Kind string

const (
	KindProcess    Kind = "process"
	KindDistribute Kind = "distribute"
)

// State is a lot's position in its lifecycle.
type State string

const (
	StateAccrued              State = "accrued"
	StateProcessingRequested  State = "processing_requested"
	StateDistributed          State = "distributed"
	StateRolledBack           State = "rolled_back"
	StatePartiallyDistributed State = "partially_distributed"
)

var transitions = map[State][]State{
	StateAccrued:              {StateProcessingRequested},
	StateProcessingRequested:  {StateDistributed, StateRolledBack, StatePartiallyDistributed},
	StatePartiallyDistributed: {StateDistributed, StatePartiallyDistributed},
}

// CanTransition reports whether a lot in state s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// AllocationStatus tracks one collector's payout within a lot.
type AllocationStatus string

const (
	AllocationPending AllocationStatus = "pending"
	AllocationPaid    AllocationStatus = "paid"
	AllocationFailed  AllocationStatus = "failed"
)

// Allocation is one collector's apportioned part of a lot.
type Allocation struct {
	Index     int              `json:"index"`
	Collector common.Address   `json:"collector"`
	Amount    types.Amount     `json:"amount"`
	AmountOut types.Amount     `json:"amount_out"`
	Status    AllocationStatus `json:"status"`
	Error     string           `json:"error,omitempty"`
	Attempts  int              `json:"attempts"`
}

// Lot is a single processFees or distributeFees request.
type Lot struct {
	types.Entity
	ID              id.LotID     `json:"id"`
	Kind            Kind         `json:"kind"`
	Amount          types.Amount `json:"amount"`
	MinOut          types.Amount `json:"min_out"`
	ConvertToNative bool         `json:"convert_to_native"`
	State           State        `json:"state"`

	// Set on processing lots.
	Burned         types.Amount   `json:"burned"`
	Liquidity      types.Amount   `json:"liquidity"`
	LiquidityOut   types.Amount   `json:"liquidity_out"`
	LiquidityOwner common.Address `json:"liquidity_owner"`
	CollectorShare types.Amount   `json:"collector_share"`

	Allocations   []Allocation `json:"allocations,omitempty"`
	FailedIndices []int        `json:"failed_indices,omitempty"`
	Remaining     types.Amount `json:"remaining"`
	Reason        string       `json:"reason,omitempty"`
}

// New creates an accrued lot for amount.
func New(kind Kind, amount types.Amount) *Lot {
	return &Lot{
		Entity: types.NewEntity(),
		ID:     id.NewLotID(),
		Kind:   kind,
		Amount: amount,
		State:  StateAccrued,
	}
}

// Transition moves the lot to next and touches its update time.
func (l *Lot) Transition(next State) error {
	if !l.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.State, next)
	}
	l.State = next
	l.Touch()
	return nil
}

// Refresh recomputes FailedIndices and Remaining from the allocations.
func (l *Lot) Refresh() error {
	var failed []int
	remaining := types.ZeroAmount()
	for _, a := range l.Allocations {
		if a.Status != AllocationFailed {
			continue
		}
		failed = append(failed, a.Index)
		var err error
		if remaining, err = remaining.Add(a.Amount); err != nil {
			return err
		}
	}
	l.FailedIndices = failed
	l.Remaining = remaining
	return nil
}

// Paid returns the indices of allocations that were paid out.
func (l *Lot) Paid() []int {
	var out []int
	for _, a := range l.Allocations {
		if a.Status == AllocationPaid {
			out = append(out, a.Index)
		}
	}
	return out
}
