// Package policy holds the fee configuration: buy, sell and plain-transfer
// rates, and the split of processed fees among burn, liquidity and
// collectors. Authorization is the caller's concern; this package only
// enforces value bounds.
package policy

import (
	"errors"
	"fmt"

	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

// MaxFeeBps is the upper bound for any fee rate.
const MaxFeeBps types.BPS = types.MaxBPS

// Sentinel errors.
var (
	ErrRateTooHigh  = errors.New("policy: tax too high")
	ErrInvalidSplit = errors.New("policy: split ratios must sum to 10000")
)

// Configuration is the full fee configuration record.
type Configuration struct {
	BuyFeeBps          types.BPS `json:"buy_fee_bps"          yaml:"buyFeeBps"`
	SellFeeBps         types.BPS `json:"sell_fee_bps"         yaml:"sellFeeBps"`
	TransferFeeBps     types.BPS `json:"transfer_fee_bps"     yaml:"transferFeeBps"`
	BurnRatioBps       types.BPS `json:"burn_ratio_bps"       yaml:"burnRatioBps"`
	LiquidityRatioBps  types.BPS `json:"liquidity_ratio_bps"  yaml:"liquidityRatioBps"`
	CollectorsRatioBps types.BPS `json:"collectors_ratio_bps" yaml:"collectorsRatioBps"`
}

// DefaultConfiguration is the deployment default: 5% on buys and sells, no
// plain-transfer fee, processed fees split evenly between liquidity and
// collectors.
func DefaultConfiguration() Configuration {
	return Configuration{
		BuyFeeBps:          500,
		SellFeeBps:         500,
		TransferFeeBps:     0,
		BurnRatioBps:       0,
		LiquidityRatioBps:  5000,
		CollectorsRatioBps: 5000,
	}
}

// Validate checks rate bounds and the split sum.
func (c Configuration) Validate() error {
	if err := checkRate("buy", c.BuyFeeBps); err != nil {
		return err
	}
	if err := checkRate("sell", c.SellFeeBps); err != nil {
		return err
	}
	if err := checkRate("transfer", c.TransferFeeBps); err != nil {
		return err
	}
	return checkSplit(c.BurnRatioBps, c.LiquidityRatioBps, c.CollectorsRatioBps)
}

// RateFor returns the fee rate that applies to a transfer class.
func (c Configuration) RateFor(class swap.Class) types.BPS {
	switch class {
	case swap.Buy:
		return c.BuyFeeBps
	case swap.Sell:
		return c.SellFeeBps
	default:
		return c.TransferFeeBps
	}
}

func checkRate(name string, bps types.BPS) error {
	if bps > MaxFeeBps {
		return fmt.Errorf("%w: %s rate %d exceeds %d", ErrRateTooHigh, name, bps, MaxFeeBps)
	}
	return nil
}

func checkSplit(burn, liquidity, collectors types.BPS) error {
	if sum := types.SumBPS(burn, liquidity, collectors); sum != types.BPSDenominator {
		return fmt.Errorf("%w: got %d", ErrInvalidSplit, sum)
	}
	return nil
}

// Policy owns the current configuration. A failed setter leaves it unchanged.
type Policy struct {
	cfg Configuration
}

// New returns a Policy holding cfg after validating it.
func New(cfg Configuration) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{cfg: cfg}, nil
}

// Current returns a copy of the configuration.
func (p *Policy) Current() Configuration { return p.cfg }

// RateFor returns the current rate for class.
func (p *Policy) RateFor(class swap.Class) types.BPS { return p.cfg.RateFor(class) }

// SetTaxRates sets the buy and sell rates.
func (p *Policy) SetTaxRates(buyBps, sellBps types.BPS) error {
	if err := checkRate("buy", buyBps); err != nil {
		return err
	}
	if err := checkRate("sell", sellBps); err != nil {
		return err
	}
	p.cfg.BuyFeeBps, p.cfg.SellFeeBps = buyBps, sellBps
	return nil
}

// SetTransferFee sets the rate for plain transfers.
func (p *Policy) SetTransferFee(bps types.BPS) error {
	if err := checkRate("transfer", bps); err != nil {
		return err
	}
	p.cfg.TransferFeeBps = bps
	return nil
}

// SetSplitRatios sets the burn/liquidity/collectors split.
func (p *Policy) SetSplitRatios(burn, liquidity, collectors types.BPS) error {
	if err := checkSplit(burn, liquidity, collectors); err != nil {
		return err
	}
	p.cfg.BurnRatioBps, p.cfg.LiquidityRatioBps, p.cfg.CollectorsRatioBps = burn, liquidity, collectors
	return nil
}

// Replace installs a whole configuration after validating it.
func (p *Policy) Replace(cfg Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	p.cfg = cfg
	return nil
}

// Split is the three-way division of an amount being processed.
type Split struct {
	Burn       types.Amount `json:"burn"`
	Liquidity  types.Amount `json:"liquidity"`
	Collectors types.Amount `json:"collectors"`
}

// SplitAmount divides amount by the current ratios. Burn and liquidity are
// floored; collectors take what is left.
func (p *Policy) SplitAmount(amount types.Amount) (Split, error) {
	burn, err := amount.ApplyBPS(p.cfg.BurnRatioBps)
	if err != nil {
		return Split{}, err
	}
	liquidity, err := amount.ApplyBPS(p.cfg.LiquidityRatioBps)
	if err != nil {
		return Split{}, err
	}
	rest, err := amount.Sub(burn)
	if err == nil {
		rest, err = rest.Sub(liquidity)
	}
	if err != nil {
		return Split{}, err
	}
	return Split{Burn: burn, Liquidity: liquidity, Collectors: rest}, nil
}
