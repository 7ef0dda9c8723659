package feeledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/balance"
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/plugin"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/store"
	"github.com/xraph/feeledger/swap"
	"github.com/xraph/feeledger/types"
)

// DefaultFeeHoldingAccount is the account fees accrue to unless overridden
// with WithFeeHoldingAccount.
var DefaultFeeHoldingAccount = common.HexToAddress("0x000000000000000000000000000000000000FeE5")

// DefaultSwapTimeout bounds a single router call.
const DefaultSwapTimeout = 30 * time.Second

const replayPageSize = 500

// Engine is the fee engine. It owns the balance ledger, fee policy and
// collector registry, serializes every mutation behind one lock, and
// records each committed mutation in the store's journal.
type Engine struct {
	mu      sync.RWMutex
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// State rebuilt from the journal
	ledger     *balance.Ledger
	collectors *collector.Registry
	policy     *policy.Policy
	settings   journal.Settings
	token      types.Token
	sequence   uint64

	// Collaborators
	router     swap.Router
	classifier swap.Classifier
	authorizer Authorizer
	guard      *AdminGuard

	// Configuration
	feeHolding  common.Address
	swapTimeout time.Duration
	genesis     *Genesis
	skipMigrate bool
	started     bool
	stopped     bool
}

// New creates an Engine backed by s. Call Start before using it.
func New(s store.Store, opts ...Option) *Engine {
	initial, _ := policy.New(policy.DefaultConfiguration()) //nolint:errcheck // default configuration is valid
	registry, _ := collector.NewRegistry()                  //nolint:errcheck // empty registry cannot fail

	e := &Engine{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		ledger:      balance.New(),
		collectors:  registry,
		policy:      initial,
		token:       types.DefaultToken(),
		classifier:  swap.PlainOnly,
		guard:       &AdminGuard{},
		feeHolding:  DefaultFeeHoldingAccount,
		swapTimeout: DefaultSwapTimeout,
	}
	e.authorizer = e.guard

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithGenesis sets the state committed on first start, when the journal is
// still empty.
func WithGenesis(g Genesis) Option {
	return func(e *Engine) {
		e.genesis = &g
	}
}

// WithRouter sets the swap router used to convert fees.
func WithRouter(r swap.Router) Option {
	return func(e *Engine) {
		e.router = r
	}
}

// WithClassifier sets the transfer classifier. Defaults to swap.PlainOnly.
func WithClassifier(c swap.Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithAuthorizer replaces the default administrator check.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) {
		if a != nil {
			e.authorizer = a
		}
	}
}

// WithSwapTimeout bounds each router call.
func WithSwapTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.swapTimeout = d
		}
	}
}

// WithFeeHoldingAccount overrides the account fees accrue to.
func WithFeeHoldingAccount(a common.Address) Option {
	return func(e *Engine) {
		if !types.IsZeroAddress(a) {
			e.feeHolding = a
		}
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithoutMigrate skips store migration on Start, for schemas managed
// elsewhere.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.skipMigrate = true
	}
}

// Start migrates the store, replays the journal and, on an empty journal,
// commits the configured genesis.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	if err := e.start(ctx); err != nil {
		e.mu.Unlock()
		return err
	}
	e.started = true
	seq, supply, n := e.sequence, e.ledger.TotalSupply(), e.collectors.Len()
	e.mu.Unlock()

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("fee engine started",
		"sequence", seq,
		"total_supply", supply.String(),
		"collectors", n,
		"fee_holding", e.feeHolding.Hex(),
	)
	return nil
}

func (e *Engine) start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
	}
	if err := e.replay(ctx); err != nil {
		return err
	}
	if e.sequence == 0 && e.genesis != nil {
		entry, err := e.genesis.entry()
		if err != nil {
			return err
		}
		if err := e.commit(ctx, entry); err != nil {
			return fmt.Errorf("feeledger: commit genesis: %w", err)
		}
		e.logger.Info("genesis committed",
			"administrator", e.settings.Administrator.Hex(),
			"initial_supply", e.ledger.TotalSupply().String(),
		)
	}
	return nil
}

// replay rebuilds state from the journal. Entries must be contiguous from
// sequence 1; any gap or invalid entry is reported as ErrJournalCorrupt.
func (e *Engine) replay(ctx context.Context) error {
	for {
		entries, err := e.store.ListEntries(ctx, journal.ListOpts{
			AfterSequence: e.sequence,
			Limit:         replayPageSize,
		})
		if err != nil {
			return fmt.Errorf("feeledger: list journal: %w", err)
		}
		for _, entry := range entries {
			if entry.Sequence != e.sequence+1 {
				return fmt.Errorf("%w: expected sequence %d, got %d", ErrJournalCorrupt, e.sequence+1, entry.Sequence)
			}
			st, err := e.stage(entry)
			if err != nil {
				return fmt.Errorf("%w: entry %d (%s): %w", ErrJournalCorrupt, entry.Sequence, entry.Kind, err)
			}
			e.apply(entry, st)
		}
		if len(entries) < replayPageSize {
			break
		}
	}

	if err := e.ledger.CheckConservation(); err != nil {
		return err
	}
	if e.sequence > 0 {
		e.logger.Debug("journal replayed", "entries", e.sequence)
	}
	return nil
}

// Stop shuts down plugins and closes the store. It is terminal: a stopped
// engine cannot be started again; create a new one over a fresh store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	e.started = false
	e.stopped = true
	e.mu.Unlock()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	var errs MultiError
	errs.Add(e.store.Close())
	return errs.ErrOrNil()
}

// ──────────────────────────────────────────────────
// Commit pipeline
// ──────────────────────────────────────────────────

// staged is a validated entry waiting to be applied.
type staged struct {
	batch      *balance.Batch
	collectors *collector.Registry
	policy     *policy.Policy
}

// stage validates entry against current state without mutating anything.
func (e *Engine) stage(entry *journal.Entry) (*staged, error) {
	st := &staged{}

	batch, err := e.ledger.Prepare(entry.Postings...)
	if err != nil {
		return nil, err
	}
	st.batch = batch

	if entry.ReplacesCollectors() {
		if st.collectors, err = collector.NewRegistry(entry.Collectors...); err != nil {
			return nil, err
		}
	}
	if entry.Config != nil {
		if st.policy, err = policy.New(*entry.Config); err != nil {
			return nil, err
		}
	}
	if entry.Settings != nil && types.IsZeroAddress(entry.Settings.Administrator) {
		return nil, fmt.Errorf("%w: administrator", ErrZeroAddress)
	}
	return st, nil
}

// apply makes a staged entry visible. It cannot fail.
func (e *Engine) apply(entry *journal.Entry, st *staged) {
	st.batch.Commit()
	if st.collectors != nil {
		e.collectors = st.collectors
	}
	if st.policy != nil {
		e.policy = st.policy
	}
	for _, x := range entry.Exclusions {
		e.ledger.SetExcluded(x.Account, x.Excluded)
	}
	if entry.Settings != nil {
		e.settings = *entry.Settings
		e.guard.Set(e.settings.Administrator)
	}
	if entry.Token != nil {
		e.token = *entry.Token
	}
	e.sequence = entry.Sequence
}

// commit validates entry, appends it to the journal and applies it. Nothing
// becomes visible unless the append succeeds. Caller holds e.mu.
func (e *Engine) commit(ctx context.Context, entry *journal.Entry) error {
	st, err := e.stage(entry)
	if err != nil {
		return err
	}
	entry.Sequence = e.sequence + 1
	if err := e.store.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("feeledger: append journal entry %d: %w", entry.Sequence, err)
	}
	e.apply(entry, st)
	return nil
}

// checkStarted is called with e.mu held.
func (e *Engine) checkStarted() error {
	if !e.started {
		return ErrNotStarted
	}
	return nil
}

// notifyUnauthorized reports a refused privileged call to plugins. Called
// after the lock is released.
func (e *Engine) notifyUnauthorized(ctx context.Context, operation string, err error) {
	if errors.Is(err, ErrUnauthorized) {
		caller, _ := CallerFrom(ctx)
		e.logger.Warn("unauthorized call refused",
			"operation", operation,
			"caller", caller.Hex(),
		)
		e.plugins.EmitUnauthorized(ctx, caller, operation)
	}
}
