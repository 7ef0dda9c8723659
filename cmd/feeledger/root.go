package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/store/memory"
	"github.com/xraph/feeledger/swap"
)

// flags shared by every subcommand; they override the environment.
type rootFlags struct {
	envFile    string
	deployment string
	admin      string
	logLevel   string
	logFormat  string
}

// newRootCmd builds the CLI command tree.
func newRootCmd() *cobra.Command {
	var f rootFlags

	root := &cobra.Command{
		Use:   "feeledger",
		Short: "Run a token fee engine deployment.",
		Long: "feeledger starts a fee engine from a YAML deployment file on an " +
			"in-memory journal, prints its genesis state, and replays scripted " +
			"transfers and fee operations through it.",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.envFile, "env-file", "", "dotenv file to load (default: ./.env when present)")
	pf.StringVarP(&f.deployment, "deployment", "d", "", "YAML deployment file (env FEELEDGER_DEPLOYMENT)")
	pf.StringVar(&f.admin, "admin", "", "administrator address (env FEELEDGER_ADMINISTRATOR)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (env FEELEDGER_LOG_LEVEL)")
	pf.StringVar(&f.logFormat, "log-format", "", "text or json (env FEELEDGER_LOG_FORMAT)")

	root.AddCommand(
		&cobra.Command{
			Use:   "genesis",
			Short: "Start the deployment and print its initial state.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDeployment(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), f, false)
			},
		},
		&cobra.Command{
			Use:   "simulate",
			Short: "Replay the deployment's steps and print the final state.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runDeployment(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), f, true)
			},
		},
	)
	return root
}

func runDeployment(ctx context.Context, out, errOut io.Writer, f rootFlags, withSteps bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadEnv(f.envFile)
	if err != nil {
		return err
	}
	override(&cfg.Deployment, f.deployment)
	override(&cfg.Administrator, f.admin)
	override(&cfg.LogLevel, f.logLevel)
	override(&cfg.LogFormat, f.logFormat)

	logger, err := newLogger(errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	d, err := readDeployment(cfg.Deployment, cfg.Administrator)
	if err != nil {
		return err
	}

	router := &simRouter{rateBps: cfg.SwapRateBps}
	engine := feeledger.New(memory.New(),
		feeledger.WithLogger(logger),
		feeledger.WithGenesis(d.Genesis),
		feeledger.WithRouter(router),
		feeledger.WithClassifier(swap.NewPairSet(d.Pairs...)),
	)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = engine.Stop() }()

	if withSteps {
		r := &runner{engine: engine, router: router, admin: d.Genesis.Administrator, out: out}
		if err := r.run(ctx, d.Steps); err != nil {
			return err
		}
	}

	snap, err := snapshot(ctx, engine)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return enc.Close()
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// state is the YAML view of an engine printed after a run.
type state struct {
	Token         string            `yaml:"token"`
	Sequence      uint64            `yaml:"sequence"`
	TotalSupply   string            `yaml:"totalSupply"`
	Administrator string            `yaml:"administrator"`
	FeeHolding    string            `yaml:"feeHolding"`
	Config        map[string]uint32 `yaml:"config"`
	Collectors    []collectorSpec   `yaml:"collectors"`
	Balances      map[string]string `yaml:"balances"`
	Excluded      []string          `yaml:"excluded,omitempty"`
	Lots          []lotState        `yaml:"lots,omitempty"`
}

type lotState struct {
	ID        string `yaml:"id"`
	Kind      string `yaml:"kind"`
	State     string `yaml:"state"`
	Amount    string `yaml:"amount"`
	Remaining string `yaml:"remaining,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
}

func snapshot(ctx context.Context, e *feeledger.Engine) (*state, error) {
	cfg := e.FeeConfiguration()
	s := &state{
		Token:         e.Token().Symbol,
		Sequence:      e.Sequence(),
		TotalSupply:   e.TotalSupply().String(),
		Administrator: e.Administrator().Hex(),
		FeeHolding:    e.FeeHoldingBalance().String(),
		Config: map[string]uint32{
			"buyFeeBps":          uint32(cfg.BuyFeeBps),
			"sellFeeBps":         uint32(cfg.SellFeeBps),
			"transferFeeBps":     uint32(cfg.TransferFeeBps),
			"burnRatioBps":       uint32(cfg.BurnRatioBps),
			"liquidityRatioBps":  uint32(cfg.LiquidityRatioBps),
			"collectorsRatioBps": uint32(cfg.CollectorsRatioBps),
		},
		Balances: map[string]string{},
	}
	// Registration order decides who receives split remainders.
	for _, c := range e.Collectors() {
		s.Collectors = append(s.Collectors, collectorSpec{Address: c.Address.Hex(), Share: c.Share})
	}
	for _, a := range e.Accounts() {
		if a.Balance.IsPositive() {
			s.Balances[a.Address.Hex()] = a.Balance.String()
		}
		if a.ExcludedFromFees {
			s.Excluded = append(s.Excluded, a.Address.Hex())
		}
	}

	lots, err := e.Lots(ctx, lot.ListOpts{})
	if err != nil {
		return nil, err
	}
	for _, l := range lots {
		ls := lotState{
			ID:     l.ID.String(),
			Kind:   string(l.Kind),
			State:  string(l.State),
			Amount: l.Amount.String(),
			Reason: l.Reason,
		}
		if l.Remaining.IsPositive() {
			ls.Remaining = l.Remaining.String()
		}
		s.Lots = append(s.Lots, ls)
	}
	return s, nil
}
