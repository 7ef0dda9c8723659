package feeledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/balance"
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/types"
)

// DefaultSwapRouter is the router address the stock deployment configures.
var DefaultSwapRouter = common.HexToAddress("0x1689E7B1F10000AE47eBfE339a4f69dECd19F602")

// DefaultInitialWholeTokens is the stock initial supply in whole tokens.
const DefaultInitialWholeTokens = 1_000_000

// Genesis is the deployment configuration consumed once, when the journal is
// empty.
type Genesis struct {
	Token          types.Token           `json:"token"`
	InitialSupply  types.Amount          `json:"initial_supply"`
	Administrator  common.Address        `json:"administrator"`
	FeeReceiver    common.Address        `json:"fee_receiver"`
	SwapRouter     common.Address        `json:"swap_router"`
	LiquidityOwner common.Address        `json:"liquidity_owner"`
	Collectors     []collector.Collector `json:"collectors"`
	Config         policy.Configuration  `json:"config"`
	Excluded       []common.Address      `json:"excluded,omitempty"`

	AutoprocessFees      bool         `json:"autoprocess_fees"`
	AutoprocessThreshold types.Amount `json:"autoprocess_threshold"`
}

// DefaultGenesis reproduces the stock deployment: one million tokens at nine
// decimals minted to admin, admin as fee receiver, liquidity owner and sole
// collector with share 100, and the default fee configuration.
func DefaultGenesis(admin common.Address) Genesis {
	token := types.DefaultToken()
	supply, _ := types.Units(DefaultInitialWholeTokens, token.Decimals) //nolint:errcheck // fits in 256 bits
	return Genesis{
		Token:          token,
		InitialSupply:  supply,
		Administrator:  admin,
		FeeReceiver:    admin,
		SwapRouter:     DefaultSwapRouter,
		LiquidityOwner: admin,
		Collectors:     []collector.Collector{{Address: admin, Share: 100}},
		Config:         policy.DefaultConfiguration(),
	}
}

// Validate checks the genesis against the fee policy and collector registry
// invariants.
func (g Genesis) Validate() error {
	var errs MultiError

	if types.IsZeroAddress(g.Administrator) {
		errs.Add(ValidationError{Field: "administrator", Message: "must not be the zero address"})
	}
	if types.IsZeroAddress(g.FeeReceiver) {
		errs.Add(ValidationError{Field: "fee_receiver", Message: "must not be the zero address"})
	}
	if g.InitialSupply.IsZero() {
		errs.Add(ValidationError{Field: "initial_supply", Message: "must be positive"})
	}
	if err := g.Config.Validate(); err != nil {
		errs.Add(fmt.Errorf("config: %w", err))
	}
	if _, err := collector.NewRegistry(g.Collectors...); err != nil {
		errs.Add(fmt.Errorf("collectors: %w", err))
	}
	for _, a := range g.Excluded {
		if types.IsZeroAddress(a) {
			errs.Add(ValidationError{Field: "excluded", Message: "must not contain the zero address"})
			break
		}
	}

	if len(errs.Errors) == 1 {
		return errs.First()
	}
	return errs.ErrOrNil()
}

// entry builds the genesis journal entry.
func (g Genesis) entry() (*journal.Entry, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	entry := journal.NewEntry(journal.KindGenesis, g.Administrator)
	entry.Postings = []balance.Posting{balance.Mint(g.Administrator, g.InitialSupply)}
	cfg := g.Config
	entry.Config = &cfg
	entry.Collectors = append([]collector.Collector{}, g.Collectors...)
	for _, a := range g.Excluded {
		entry.Exclusions = append(entry.Exclusions, journal.Exclusion{Account: a, Excluded: true})
	}
	liquidityOwner := g.LiquidityOwner
	if types.IsZeroAddress(liquidityOwner) {
		liquidityOwner = g.Administrator
	}
	entry.Settings = &journal.Settings{
		Administrator:        g.Administrator,
		FeeReceiver:          g.FeeReceiver,
		SwapRouter:           g.SwapRouter,
		LiquidityOwner:       liquidityOwner,
		AutoprocessFees:      g.AutoprocessFees,
		AutoprocessThreshold: g.AutoprocessThreshold,
	}
	token := g.Token
	entry.Token = &token
	return entry, nil
}
