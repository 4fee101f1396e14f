// Package loader fetches alert rules from the backend and feeds them to the
// alert rule list store.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/qiniu/alertview/internal/alertlist"
	"github.com/qiniu/alertview/internal/grafana"
	"github.com/qiniu/alertview/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ErrLoadInProgress is returned by Load while another load is running.
var ErrLoadInProgress = errors.New("loader: load already in progress")

// RuleSource lists raw alert rules from the backend.
type RuleSource interface {
	ListAlertRules(ctx context.Context, opts grafana.ListOptions) ([]alertlist.RawAlertRule, error)
}

// Dispatcher applies commands to the list state. *alertlist.Store satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd alertlist.Command) (alertlist.RulesState, error)
}

// Recorder receives load outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveLoad(result string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) ObserveLoad(string, time.Duration) {}

// Loader runs fetch cycles against a RuleSource and applies them to the store.
// At most one cycle runs at a time.
type Loader struct {
	source   RuleSource
	store    Dispatcher
	cache    SnapshotCache
	recorder Recorder
	opts     grafana.ListOptions

	inFlight atomic.Bool
	pending  atomic.Bool
}

type Option func(*Loader)

func WithCache(c SnapshotCache) Option {
	return func(l *Loader) {
		if c != nil {
			l.cache = c
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(l *Loader) {
		if r != nil {
			l.recorder = r
		}
	}
}

// WithListOptions sets the filter sent on every fetch.
func WithListOptions(opts grafana.ListOptions) Option {
	return func(l *Loader) { l.opts = opts }
}

// New returns a loader with a NoopCache and no metrics unless options say otherwise.
func New(source RuleSource, store Dispatcher, opts ...Option) *Loader {
	l := &Loader{
		source:   source,
		store:    store,
		cache:    NoopCache{},
		recorder: noopRecorder{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load runs one fetch cycle: BeginLoading, fetch, cache, RulesLoaded.
// A failed fetch leaves the state loading until the next successful cycle.
func (l *Loader) Load(ctx context.Context) error {
	if !l.inFlight.CompareAndSwap(false, true) {
		return ErrLoadInProgress
	}
	return l.run(ctx)
}

// Reload is Load for callers that changed backend state and must see the
// result. While a load is running it queues one more cycle after it and
// returns nil. A queued cycle is dropped if the running one fails.
func (l *Loader) Reload(ctx context.Context) error {
	l.pending.Store(true)
	if !l.inFlight.CompareAndSwap(false, true) {
		log.Debug().Msg("Loader: reload queued behind running load")
		return nil
	}
	return l.run(ctx)
}

// run holds inFlight on entry and releases it on return.
func (l *Loader) run(ctx context.Context) error {
	for {
		l.pending.Store(false)
		err := l.loadOnce(ctx)
		l.inFlight.Store(false)
		if err != nil || ctx.Err() != nil || !l.pending.Load() {
			return err
		}
		// a Reload arrived during the cycle; take the slot back unless
		// another caller already did
		if !l.inFlight.CompareAndSwap(false, true) {
			return nil
		}
	}
}

func (l *Loader) loadOnce(ctx context.Context) error {
	if _, err := l.store.Dispatch(ctx, alertlist.BeginLoading{}); err != nil {
		return fmt.Errorf("begin loading: %w", err)
	}

	start := time.Now()
	rules, err := l.source.ListAlertRules(ctx, l.opts)
	elapsed := time.Since(start)
	if err != nil {
		l.recorder.ObserveLoad(metrics.ResultError, elapsed)
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("Loader: fetch alert rules failed")
		return fmt.Errorf("fetch alert rules: %w", err)
	}
	l.recorder.ObserveLoad(metrics.ResultSuccess, elapsed)

	if err := l.cache.Put(ctx, rules); err != nil {
		log.Warn().Err(err).Msg("Loader: write snapshot cache failed")
	}

	if _, err := l.store.Dispatch(ctx, alertlist.RulesLoaded{Rules: rules}); err != nil {
		return fmt.Errorf("apply alert rules: %w", err)
	}
	log.Info().Int("count", len(rules)).Dur("elapsed", elapsed).Msg("Loader: alert rules loaded")
	return nil
}

// InFlight reports whether a load is currently running.
func (l *Loader) InFlight() bool { return l.inFlight.Load() }

// WarmStart applies the cached payload, if any, so the list is populated
// before the first fetch completes. It reports whether the cache was used.
func (l *Loader) WarmStart(ctx context.Context) (bool, error) {
	rules, ok, err := l.cache.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Loader: read snapshot cache failed")
		return false, nil
	}
	if !ok {
		return false, nil
	}
	if _, err := l.store.Dispatch(ctx, alertlist.RulesLoaded{Rules: rules}); err != nil {
		return false, fmt.Errorf("apply cached alert rules: %w", err)
	}
	l.recorder.ObserveLoad(metrics.ResultCacheHit, 0)
	log.Info().Int("count", len(rules)).Msg("Loader: warm start from snapshot cache")
	return true, nil
}
