// Package forecast scores recent memes by virality, persists the score back
// to each meme, raises alerts on large moves, and snapshots the top scorers.
//
// A pass is stateless: everything is re-derived from the store. Store
// failures never abort a pass; each stage reports its failures in its
// result and the pass moves on.
package forecast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lazypower/trendcast/internal/metrics"
	"github.com/lazypower/trendcast/internal/store"
)

// Defaults for a standalone pass.
const (
	DefaultWindowHours    = 6
	DefaultTopN           = 5
	DefaultAlertThreshold = 75
	DefaultSpikeRatio     = 0.5
)

var (
	ErrInvalidWindow = errors.New("window must be a positive number of hours")
	ErrEmptyBatch    = errors.New("no memes to snapshot")
)

// Store is the document store the pass reads from and writes to.
// *store.DB satisfies it.
type Store interface {
	Query(ctx context.Context, collection, field, op string, value any) ([]store.Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
}

// Notifier receives alerts after they have been written to the store.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// Options tunes a pass.
type Options struct {
	WindowHours    float64
	TopN           int
	AlertThreshold float64
	SpikeRatio     float64
}

// DefaultOptions returns the standalone job defaults: 6 hour window, top 5.
func DefaultOptions() Options {
	return Options{
		WindowHours:    DefaultWindowHours,
		TopN:           DefaultTopN,
		AlertThreshold: DefaultAlertThreshold,
		SpikeRatio:     DefaultSpikeRatio,
	}
}

// Forecaster runs forecast passes against a Store.
type Forecaster struct {
	store    Store
	opts     Options
	now      func() time.Time
	notifier Notifier
	metrics  *metrics.Metrics

	mu     sync.Mutex // serializes Run
	stopCh chan struct{}

	statusMu sync.Mutex
	status   Status
}

// Status summarizes the most recent completed pass.
type Status struct {
	FinishedAt time.Time
	Fetched    int
	Alerts     int
	Failures   int
	Snapshot   bool
}

// LastRun returns the status of the most recent pass; ok is false before
// the first pass completes.
func (f *Forecaster) LastRun() (st Status, ok bool) {
	f.statusMu.Lock()
	defer f.statusMu.Unlock()
	return f.status, !f.status.FinishedAt.IsZero()
}

// New creates a Forecaster. Zero-valued options fall back to the defaults.
func New(st Store, opts Options) *Forecaster {
	def := DefaultOptions()
	if opts.WindowHours == 0 {
		opts.WindowHours = def.WindowHours
	}
	if opts.TopN == 0 {
		opts.TopN = def.TopN
	}
	if opts.AlertThreshold == 0 {
		opts.AlertThreshold = def.AlertThreshold
	}
	if opts.SpikeRatio == 0 {
		opts.SpikeRatio = def.SpikeRatio
	}
	return &Forecaster{
		store: st,
		opts:  opts,
		now:   time.Now,
	}
}

// SetClock replaces the wall clock used for scoring and timestamps.
func (f *Forecaster) SetClock(now func() time.Time) {
	f.now = now
}

// SetNotifier configures an additional alert sink.
func (f *Forecaster) SetNotifier(n Notifier) {
	f.notifier = n
}

// SetMetrics configures the collectors updated during a pass.
func (f *Forecaster) SetMetrics(m *metrics.Metrics) {
	f.metrics = m
}

// Options returns the options in effect.
func (f *Forecaster) Options() Options {
	return f.opts
}

// Report is the outcome of one pass.
type Report struct {
	Fetch    FetchResult
	Updates  []UpdateResult
	Snapshot SnapshotResult
	Duration time.Duration
}

// Alerts returns the alerts raised during the pass, including any whose
// store write failed.
func (r Report) Alerts() []Alert {
	var out []Alert
	for _, u := range r.Updates {
		if u.Alert != nil {
			out = append(out, *u.Alert)
		}
	}
	return out
}

// Failures counts the store and sink operations that failed during the pass.
func (r Report) Failures() int {
	n := 0
	if r.Fetch.Err != nil {
		n++
	}
	for _, u := range r.Updates {
		if u.AlertErr != nil {
			n++
		}
		if u.NotifyErr != nil {
			n++
		}
		if u.ScoreErr != nil {
			n++
		}
	}
	if r.Snapshot.Err != nil && !errors.Is(r.Snapshot.Err, ErrEmptyBatch) {
		n++
	}
	return n
}

// Run executes one full pass: fetch the trending window, score and update
// every meme in order, then snapshot the same batch.
func (f *Forecaster) Run(ctx context.Context) Report {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	var r Report

	r.Fetch = f.FetchTrending(ctx, f.opts.WindowHours)
	for _, m := range r.Fetch.Memes {
		score := Score(m, f.now())
		f.metrics.Scored()
		r.Updates = append(r.Updates, f.UpdateForecast(ctx, m.ID, score, m))
	}
	r.Snapshot = f.SnapshotTop(ctx, r.Fetch.Memes, f.opts.TopN)

	r.Duration = time.Since(start)
	f.metrics.RunFinished(r.Duration.Seconds())

	f.statusMu.Lock()
	f.status = Status{
		FinishedAt: f.now(),
		Fetched:    len(r.Fetch.Memes),
		Alerts:     len(r.Alerts()),
		Failures:   r.Failures(),
		Snapshot:   r.Snapshot.Written,
	}
	f.statusMu.Unlock()
	return r
}
