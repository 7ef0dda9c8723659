// Package journal defines the append-only record of committed engine
// mutations. Replaying entries in sequence order rebuilds balances, fee
// configuration, collectors, exclusion flags and settings exactly.
package journal

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/balance"
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/types"
)

// Kind names the mutation a journal entry records.
type Kind string

const (
	KindGenesis    Kind = "genesis"
	KindTransfer   Kind = "transfer"
	KindConfig     Kind = "config"
	KindCollectors Kind = "collectors"
	KindExclusion  Kind = "exclusion"
	KindSettings   Kind = "settings"
	KindProcess    Kind = "process"
	KindDistribute Kind = "distribute"
)

// Settings is the administrative settings record.
type Settings struct {
	Administrator        common.Address `json:"administrator"`
	FeeReceiver          common.Address `json:"fee_receiver"`
	SwapRouter           common.Address `json:"swap_router"`
	LiquidityOwner       common.Address `json:"liquidity_owner"`
	AutoprocessFees      bool           `json:"autoprocess_fees"`
	AutoprocessThreshold types.Amount   `json:"autoprocess_threshold"`
}

// Exclusion records a change of an account's excludedFromFees flag.
type Exclusion struct {
	Account  common.Address `json:"account"`
	Excluded bool           `json:"excluded"`
}

// Entry is one committed mutation. Postings are applied as a single batch;
// the non-nil state records replace the engine's current ones. Collectors
// is authoritative (even when empty) for genesis and collectors entries.
type Entry struct {
	ID         id.EntryID            `json:"id"`
	Sequence   uint64                `json:"sequence"`
	Kind       Kind                  `json:"kind"`
	Caller     common.Address        `json:"caller"`
	Postings   []balance.Posting     `json:"postings,omitempty"`
	Config     *policy.Configuration `json:"config,omitempty"`
	Collectors []collector.Collector `json:"collectors,omitempty"`
	Exclusions []Exclusion           `json:"exclusions,omitempty"`
	Settings   *Settings             `json:"settings,omitempty"`
	Token      *types.Token          `json:"token,omitempty"`
	LotID      id.LotID              `json:"lot_id"`
	Metadata   map[string]string     `json:"metadata,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// NewEntry returns an entry of kind with a fresh ID and timestamp. The
// sequence number is assigned by the engine.
func NewEntry(kind Kind, caller common.Address) *Entry {
	return &Entry{
		ID:        id.NewEntryID(),
		Kind:      kind,
		Caller:    caller,
		CreatedAt: time.Now().UTC(),
	}
}

// ReplacesCollectors reports whether replaying e swaps the collector list.
func (e *Entry) ReplacesCollectors() bool {
	return e.Kind == KindGenesis || e.Kind == KindCollectors
}
