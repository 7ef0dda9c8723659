package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/journal"
	"github.com/xraph/feeledger/lot"
	"github.com/xraph/feeledger/policy"
)

// DefaultTimeout bounds a single plugin call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event only touches the plugins
// that implement its hook.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onTransfer         []OnTransfer
	onFeesProcessed    []OnFeesProcessed
	onFeesDistributed  []OnFeesDistributed
	onSwapFailed       []OnSwapFailed
	onConfigChanged    []OnConfigChanged
	onCollectorChanged []OnCollectorChanged
	onExclusionChanged []OnExclusionChanged
	onSettingsChanged  []OnSettingsChanged
	onUnauthorized     []OnUnauthorized
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call plugin timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnTransfer); ok {
		r.onTransfer = append(r.onTransfer, v)
	}
	if v, ok := p.(OnFeesProcessed); ok {
		r.onFeesProcessed = append(r.onFeesProcessed, v)
	}
	if v, ok := p.(OnFeesDistributed); ok {
		r.onFeesDistributed = append(r.onFeesDistributed, v)
	}
	if v, ok := p.(OnSwapFailed); ok {
		r.onSwapFailed = append(r.onSwapFailed, v)
	}
	if v, ok := p.(OnConfigChanged); ok {
		r.onConfigChanged = append(r.onConfigChanged, v)
	}
	if v, ok := p.(OnCollectorChanged); ok {
		r.onCollectorChanged = append(r.onCollectorChanged, v)
	}
	if v, ok := p.(OnExclusionChanged); ok {
		r.onExclusionChanged = append(r.onExclusionChanged, v)
	}
	if v, ok := p.(OnSettingsChanged); ok {
		r.onSettingsChanged = append(r.onSettingsChanged, v)
	}
	if v, ok := p.(OnUnauthorized); ok {
		r.onUnauthorized = append(r.onUnauthorized, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnTransfer", reflect.TypeOf((*OnTransfer)(nil)).Elem()},
	{"OnFeesProcessed", reflect.TypeOf((*OnFeesProcessed)(nil)).Elem()},
	{"OnFeesDistributed", reflect.TypeOf((*OnFeesDistributed)(nil)).Elem()},
	{"OnSwapFailed", reflect.TypeOf((*OnSwapFailed)(nil)).Elem()},
	{"OnConfigChanged", reflect.TypeOf((*OnConfigChanged)(nil)).Elem()},
	{"OnCollectorChanged", reflect.TypeOf((*OnCollectorChanged)(nil)).Elem()},
	{"OnExclusionChanged", reflect.TypeOf((*OnExclusionChanged)(nil)).Elem()},
	{"OnSettingsChanged", reflect.TypeOf((*OnSettingsChanged)(nil)).Elem()},
	{"OnUnauthorized", reflect.TypeOf((*OnUnauthorized)(nil)).Elem()},
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var out []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs fn for every plugin in hooks, logging failures. Plugin errors
// never propagate to the engine.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, hooks func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := hooks(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	emit(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitTransfer emits a transfer event.
func (r *Registry) EmitTransfer(ctx context.Context, evt *TransferEvent) {
	emit(ctx, r, "OnTransfer", func(r *Registry) []OnTransfer { return r.onTransfer },
		func(p OnTransfer) error { return p.OnTransfer(ctx, evt) })
}

// EmitFeesProcessed emits a fees processed event.
func (r *Registry) EmitFeesProcessed(ctx context.Context, l *lot.Lot) {
	emit(ctx, r, "OnFeesProcessed", func(r *Registry) []OnFeesProcessed { return r.onFeesProcessed },
		func(p OnFeesProcessed) error { return p.OnFeesProcessed(ctx, l) })
}

// EmitFeesDistributed emits a fees distributed event.
func (r *Registry) EmitFeesDistributed(ctx context.Context, l *lot.Lot) {
	emit(ctx, r, "OnFeesDistributed", func(r *Registry) []OnFeesDistributed { return r.onFeesDistributed },
		func(p OnFeesDistributed) error { return p.OnFeesDistributed(ctx, l) })
}

// EmitSwapFailed emits a swap failure event.
func (r *Registry) EmitSwapFailed(ctx context.Context, l *lot.Lot, swapErr error) {
	emit(ctx, r, "OnSwapFailed", func(r *Registry) []OnSwapFailed { return r.onSwapFailed },
		func(p OnSwapFailed) error { return p.OnSwapFailed(ctx, l, swapErr) })
}

// EmitConfigChanged emits a fee configuration change.
func (r *Registry) EmitConfigChanged(ctx context.Context, oldCfg, newCfg policy.Configuration) {
	emit(ctx, r, "OnConfigChanged", func(r *Registry) []OnConfigChanged { return r.onConfigChanged },
		func(p OnConfigChanged) error { return p.OnConfigChanged(ctx, oldCfg, newCfg) })
}

// EmitCollectorChanged emits a collector registry change.
func (r *Registry) EmitCollectorChanged(ctx context.Context, change CollectorChange) {
	emit(ctx, r, "OnCollectorChanged", func(r *Registry) []OnCollectorChanged { return r.onCollectorChanged },
		func(p OnCollectorChanged) error { return p.OnCollectorChanged(ctx, change) })
}

// EmitExclusionChanged emits a fee exclusion change.
func (r *Registry) EmitExclusionChanged(ctx context.Context, account common.Address, excluded bool) {
	emit(ctx, r, "OnExclusionChanged", func(r *Registry) []OnExclusionChanged { return r.onExclusionChanged },
		func(p OnExclusionChanged) error { return p.OnExclusionChanged(ctx, account, excluded) })
}

// EmitSettingsChanged emits a settings change.
func (r *Registry) EmitSettingsChanged(ctx context.Context, oldSettings, newSettings journal.Settings) {
	emit(ctx, r, "OnSettingsChanged", func(r *Registry) []OnSettingsChanged { return r.onSettingsChanged },
		func(p OnSettingsChanged) error { return p.OnSettingsChanged(ctx, oldSettings, newSettings) })
}

// EmitUnauthorized emits a refused privileged call.
func (r *Registry) EmitUnauthorized(ctx context.Context, caller common.Address, operation string) {
	emit(ctx, r, "OnUnauthorized", func(r *Registry) []OnUnauthorized { return r.onUnauthorized },
		func(p OnUnauthorized) error { return p.OnUnauthorized(ctx, caller, operation) })
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the fee pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
