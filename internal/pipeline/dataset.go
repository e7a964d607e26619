package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"weak"

	"github.com/roach88/flowstate/internal/anim"
	"github.com/roach88/flowstate/internal/data"
	"github.com/roach88/flowstate/internal/engine"
	"github.com/roach88/flowstate/internal/future"
)

// Dataset is the explicit context every pipeline object is created in.
// It owns the animation settings and the execution resources; there is no
// process-wide state.
type Dataset struct {
	animation   *anim.Settings
	coordinator future.Executor
	pool        future.Executor
	workers     int
	logger      *slog.Logger
	metrics     *engine.Metrics
	journal     Journal
	clock       *engine.Clock

	mu   sync.Mutex
	apps []weak.Pointer[ModifierApplication]
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithCoordinator sets the executor that runs cache bookkeeping.
// Default: future.Inline.
func WithCoordinator(exec future.Executor) Option {
	return func(d *Dataset) {
		d.coordinator = exec
	}
}

// WithPool sets the executor for modifier computations and the number of
// goroutines ParallelFor may use. Default: future.Inline with one worker.
func WithPool(exec future.Executor, workers int) Option {
	return func(d *Dataset) {
		d.pool = exec
		d.workers = max(1, workers)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dataset) {
		d.logger = l
	}
}

// WithMetrics records cache activity in Prometheus metrics.
func WithMetrics(m *engine.Metrics) Option {
	return func(d *Dataset) {
		d.metrics = m
	}
}

// WithJournal records cache activity in j.
func WithJournal(j Journal) Option {
	return func(d *Dataset) {
		d.journal = j
	}
}

// WithAnimationSettings uses s instead of fresh settings.
func WithAnimationSettings(s *anim.Settings) Option {
	return func(d *Dataset) {
		d.animation = s
	}
}

// WithClock sets the clock that hands out evaluation generations.
func WithClock(c *engine.Clock) Option {
	return func(d *Dataset) {
		d.clock = c
	}
}

// NewDataset creates a dataset. Without options everything runs inline on
// the calling goroutine, which keeps tests deterministic.
func NewDataset(opts ...Option) *Dataset {
	d := &Dataset{
		animation:   anim.NewSettings(),
		coordinator: future.Inline,
		pool:        future.Inline,
		workers:     1,
		logger:      slog.Default(),
		clock:       engine.NewClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Animation returns the animation settings.
func (d *Dataset) Animation() *anim.Settings { return d.animation }

// Coordinator returns the executor for cache bookkeeping.
func (d *Dataset) Coordinator() future.Executor { return d.coordinator }

// Pool returns the executor for modifier computations.
func (d *Dataset) Pool() future.Executor { return d.pool }

// Workers returns how many goroutines a single computation may use.
func (d *Dataset) Workers() int { return d.workers }

// Logger returns the structured logger.
func (d *Dataset) Logger() *slog.Logger { return d.logger }

// Metrics returns the metrics, possibly nil.
func (d *Dataset) Metrics() *engine.Metrics { return d.metrics }

// ParallelFor runs fn over [0, n) with the dataset's worker budget.
func (d *Dataset) ParallelFor(ctx context.Context, n int, fn func(ctx context.Context, start, end int) error) error {
	return engine.ParallelFor(ctx, n, d.workers, fn)
}

func (d *Dataset) record(ev JournalEvent) {
	if d.journal != nil {
		d.journal.Record(ev)
	}
}

func (d *Dataset) hasJournal() bool { return d.journal != nil }

// registerApplication remembers app for GlobalStatus without keeping it alive.
func (d *Dataset) registerApplication(app *ModifierApplication) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apps = append(d.apps, weak.Make(app))
}

// ApplicationsOf returns the live applications of mod in creation order.
func (d *Dataset) ApplicationsOf(mod Modifier) []*ModifierApplication {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []*ModifierApplication
	kept := d.apps[:0]
	for _, p := range d.apps {
		app := p.Value()
		if app == nil {
			continue
		}
		kept = append(kept, p)
		if app.Modifier() == mod {
			out = append(out, app)
		}
	}
	clear(d.apps[len(kept):])
	d.apps = kept
	return out
}

// GlobalStatus merges the statuses of every application of mod: the most
// severe type wins and distinct messages are concatenated.
func (d *Dataset) GlobalStatus(mod Modifier) data.Status {
	apps := d.ApplicationsOf(mod)
	statuses := make([]data.Status, len(apps))
	for i, app := range apps {
		statuses[i] = app.Status()
	}
	return data.MergeStatus(statuses...)
}
