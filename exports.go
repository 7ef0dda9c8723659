package feeledger

import (
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/types"
)

// Re-export common types so callers rarely need the leaf packages.

// Amount is re-exported from types package.
type Amount = types.Amount

// BPS is re-exported from types package.
type BPS = types.BPS

// Token is re-exported from types package.
type Token = types.Token

// Configuration is re-exported from policy package.
type Configuration = policy.Configuration

// Collector is re-exported from collector package.
type Collector = collector.Collector

// Settings is re-exported from journal package.
type Settings = journal.Settings

// Lot is re-exported from lot package.
type Lot = lot.Lot

// Re-export constructors
var (
	NewAmount     = types.NewAmount
	ParseAmount   = types.ParseAmount
	Units         = types.Units
	ParseAddress  = types.ParseAddress
	DefaultConfig = policy.DefaultConfiguration
)
