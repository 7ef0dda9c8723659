package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/id"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

// step is one scripted engine operation. Caller defaults to the
// administrator.
type step struct {
	Op      string `yaml:"op"`
	Caller  string `yaml:"caller"`
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
	MinOut  string `yaml:"minOut"`
	Lot     string `yaml:"lot"`

	Convert  bool `yaml:"convert"`
	Excluded bool `yaml:"excluded"`
	Enabled  bool `yaml:"enabled"`
	Fail     bool `yaml:"fail"`

	Buy        types.BPS `yaml:"buy"`
	Sell       types.BPS `yaml:"sell"`
	Rate       types.BPS `yaml:"rate"`
	Burn       types.BPS `yaml:"burn"`
	Liquidity  types.BPS `yaml:"liquidity"`
	Collectors types.BPS `yaml:"collectors"`
	Share      types.BPS `yaml:"share"`

	// ExpectError makes the step pass only when it fails with a message
	// containing this text.
	ExpectError string `yaml:"expectError"`
}

// simRouter converts at a fixed rate and can be switched to fail.
type simRouter struct {
	rateBps uint64
	fail    bool
}

var errSimulatedSwap = errors.New("simulated router failure")

func (r *simRouter) Convert(_ context.Context, amount types.Amount, _, _ common.Address) (types.Amount, error) {
	if r.fail {
		return types.Amount{}, errSimulatedSwap
	}
	return amount.MulDiv(r.rateBps, uint64(types.MaxBPS))
}

// runner applies steps to an engine and reports each outcome to out.
type runner struct {
	engine  *feeledger.Engine
	router  *simRouter
	admin   common.Address
	out     io.Writer
	lastLot id.LotID
}

func (r *runner) run(ctx context.Context, steps []step) error {
	for i, s := range steps {
		msg, err := r.apply(ctx, s)
		switch {
		case s.ExpectError != "" && err == nil:
			return fmt.Errorf("step %d (%s): expected error containing %q", i+1, s.Op, s.ExpectError)
		case s.ExpectError != "" && !strings.Contains(err.Error(), s.ExpectError):
			return fmt.Errorf("step %d (%s): expected error containing %q, got: %w", i+1, s.Op, s.ExpectError, err)
		case s.ExpectError != "":
			fmt.Fprintf(r.out, "%3d %-18s expected error: %v\n", i+1, s.Op, err)
		case err != nil:
			var partial *feeledger.PartialDistributionError
			if !errors.As(err, &partial) {
				return fmt.Errorf("step %d (%s): %w", i+1, s.Op, err)
			}
			fmt.Fprintf(r.out, "%3d %-18s partial: %v\n", i+1, s.Op, err)
		default:
			fmt.Fprintf(r.out, "%3d %-18s %s\n", i+1, s.Op, msg)
		}
	}
	return nil
}

func (r *runner) apply(ctx context.Context, s step) (string, error) {
	caller := r.admin
	if s.Caller != "" {
		c, err := feeledger.ParseAddress(s.Caller)
		if err != nil {
			return "", fmt.Errorf("caller: %w", err)
		}
		caller = c
	}
	ctx = feeledger.WithCaller(ctx, caller)

	switch s.Op {
	case "transfer":
		from, to, amount, err := parseTransfer(s)
		if err != nil {
			return "", err
		}
		rc, err := r.engine.Transfer(ctx, from, to, amount)
		if err != nil {
			return "", err
		}
		msg := fmt.Sprintf("%s net=%s fee=%s", rc.Class, rc.Net, rc.Fee)
		if !rc.AutoprocessLot.IsNil() {
			r.lastLot = rc.AutoprocessLot
			msg += " autoprocessed=" + rc.AutoprocessLot.String()
		}
		return msg, nil

	case "process":
		amount, err := parseAmount(s.Amount, r.engine.FeeHoldingBalance())
		if err != nil {
			return "", err
		}
		minOut, err := parseAmount(s.MinOut, types.Amount{})
		if err != nil {
			return "", err
		}
		l, err := r.engine.ProcessFees(ctx, amount, minOut)
		if l != nil {
			r.lastLot = l.ID
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("lot=%s burned=%s liquidity_out=%s collectors=%s",
			l.ID, l.Burned, l.LiquidityOut, l.CollectorShare), nil

	case "distribute":
		amount, err := parseAmount(s.Amount, r.engine.FeeHoldingBalance())
		if err != nil {
			return "", err
		}
		l, err := r.engine.DistributeFees(ctx, amount, s.Convert)
		if l != nil {
			r.lastLot = l.ID
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("lot=%s paid=%d state=%s", l.ID, len(l.Paid()), l.State), nil

	case "retry":
		lotID := r.lastLot
		if s.Lot != "" {
			parsed, err := id.ParseLotID(s.Lot)
			if err != nil {
				return "", err
			}
			lotID = parsed
		}
		l, err := r.engine.RetryDistribution(ctx, lotID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("lot=%s state=%s", l.ID, l.State), nil

	case "router":
		r.router.fail = s.Fail
		return fmt.Sprintf("fail=%t", s.Fail), nil

	case "setTaxRates":
		return "ok", r.engine.SetTaxRates(ctx, s.Buy, s.Sell)
	case "setTransferFee":
		return "ok", r.engine.SetTransferFee(ctx, s.Rate)
	case "setSplitRatios":
		return "ok", r.engine.SetSplitRatios(ctx, s.Burn, s.Liquidity, s.Collectors)
	case "setAutoprocess":
		return "ok", r.engine.SetAutoprocessFees(ctx, s.Enabled)
	}

	account, err := feeledger.ParseAddress(s.Account)
	if err != nil {
		return "", fmt.Errorf("%s: account: %w", s.Op, err)
	}
	switch s.Op {
	case "addCollector":
		return "ok", r.engine.AddCollector(ctx, account, s.Share)
	case "removeCollector":
		return "ok", r.engine.RemoveCollector(ctx, account)
	case "updateCollector":
		return "ok", r.engine.UpdateCollectorShare(ctx, account, s.Share)
	case "exclude":
		return "ok", r.engine.SetExcludedFromFees(ctx, account, s.Excluded)
	case "setFeeReceiver":
		return "ok", r.engine.SetFeeReceiver(ctx, account)
	case "setLiquidityOwner":
		return "ok", r.engine.SetLiquidityOwner(ctx, account)
	case "setSwapRouter":
		return "ok", r.engine.SetSwapRouter(ctx, account)
	case "transferAdministration":
		if err := r.engine.TransferAdministration(ctx, account); err != nil {
			return "", err
		}
		r.admin = account
		return "ok", nil
	default:
		return "", fmt.Errorf("unknown op %q", s.Op)
	}
}

func parseTransfer(s step) (from, to common.Address, amount types.Amount, err error) {
	if from, err = feeledger.ParseAddress(s.From); err != nil {
		return from, to, amount, fmt.Errorf("from: %w", err)
	}
	if to, err = feeledger.ParseAddress(s.To); err != nil {
		return from, to, amount, fmt.Errorf("to: %w", err)
	}
	if amount, err = feeledger.ParseAmount(s.Amount); err != nil {
		return from, to, amount, fmt.Errorf("amount: %w", err)
	}
	return from, to, amount, nil
}

// parseAmount parses s, returning def when s is empty.
func parseAmount(s string, def types.Amount) (types.Amount, error) {
	if s == "" {
		return def, nil
	}
	a, err := feeledger.ParseAmount(s)
	if err != nil {
		return a, fmt.Errorf("amount: %w", err)
	}
	return a, nil
}

var _ swap.Router = (*simRouter)(nil)
