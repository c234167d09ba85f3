// Package engine corrects extracted text units in bounded, throttled
// batches and writes accepted results back into the document.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/nnfix/internal/extract"
	"github.com/hyperifyio/nnfix/internal/metrics"
	"github.com/hyperifyio/nnfix/internal/remote"
)

const (
	// DefaultBatchSize caps in-flight correction calls.
	DefaultBatchSize = 20
	// DefaultBatchDelay is the pause between consecutive batches.
	DefaultBatchDelay = 50 * time.Millisecond
)

// Config holds the two load levers on the remote service.
type Config struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Observer receives progress. Calls are serialized by the engine.
type Observer interface {
	Start(total int)
	Advance()
	Finish()
}

// Stats summarizes one run.
type Stats struct {
	Total     int           `json:"total"`
	Changed   int           `json:"changed"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Batches   []int         `json:"batches"`
	Duration  time.Duration `json:"duration"`
}

// Processed is the number of settled units.
func (s Stats) Processed() int { return s.Changed + s.Unchanged + s.Failed + s.Skipped }

// Engine runs correction passes. One Engine may serve many runs.
type Engine struct {
	cfg       Config
	corrector remote.Corrector
	// Sleep waits between batches; tests replace it.
	Sleep func(ctx context.Context, d time.Duration)
}

// New returns an Engine, filling zero config fields with defaults. A
// negative BatchDelay disables throttling.
func New(cfg Config, corrector remote.Corrector) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	return &Engine{cfg: cfg, corrector: corrector, Sleep: sleepCtx}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Run corrects units. Batch N+1 starts only after every unit of batch N has
// settled, so at most BatchSize calls are in flight. A unit failure is logged
// and counted; it never aborts its siblings. With zero units Run returns
// immediately and the observer is not called.
func (e *Engine) Run(ctx context.Context, units []extract.TextUnit, obs Observer) Stats {
	stats := Stats{Total: len(units)}
	if len(units) == 0 {
		return stats
	}
	if obs == nil {
		obs = nopObserver{}
	}
	start := time.Now()
	r := &run{engine: e, obs: obs, stats: &stats}

	obs.Start(len(units))
	batches := Partition(units, e.cfg.BatchSize)
	for i, batch := range batches {
		if ctx.Err() != nil {
			r.skip(batch)
			continue
		}
		stats.Batches = append(stats.Batches, len(batch))
		r.runBatch(ctx, i, batch)
		if i < len(batches)-1 && e.cfg.BatchDelay > 0 && ctx.Err() == nil {
			e.Sleep(ctx, e.cfg.BatchDelay)
		}
	}
	obs.Finish()

	stats.Duration = time.Since(start)
	metrics.RunDuration.Observe(stats.Duration.Seconds())
	log.Info().
		Int("total", stats.Total).
		Int("changed", stats.Changed).
		Int("unchanged", stats.Unchanged).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("batches", len(stats.Batches)).
		Dur("duration", stats.Duration).
		Msg("correction run finished")
	return stats
}

// Partition splits units into consecutive groups of at most size.
func Partition(units []extract.TextUnit, size int) [][]extract.TextUnit {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]extract.TextUnit, 0, (len(units)+size-1)/size)
	for start := 0; start < len(units); start += size {
		end := min(start+size, len(units))
		out = append(out, units[start:end])
	}
	return out
}

type run struct {
	engine *Engine
	obs    Observer
	stats  *Stats
	// mu serializes document mutation, stats and observer calls.
	mu sync.Mutex
}

func (r *run) runBatch(ctx context.Context, index int, batch []extract.TextUnit) {
	var g errgroup.Group
	for _, u := range batch {
		g.Go(func() error {
			r.correct(ctx, index, u)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *run) correct(ctx context.Context, batch int, u extract.TextUnit) {
	res, err := r.engine.corrector.Correct(ctx, u.Body)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.stats.Failed++
		metrics.Units.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Int("batch", batch).Str("unit", preview(u.Body)).Msg("unit correction failed")
	case res.Unchanged || res.Corrected == "":
		r.stats.Unchanged++
		metrics.Units.WithLabelValues("unchanged").Inc()
	default:
		u.Apply(res.Corrected)
		r.stats.Changed++
		metrics.Units.WithLabelValues("changed").Inc()
	}
	r.obs.Advance()
}

func (r *run) skip(batch []extract.TextUnit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range batch {
		r.stats.Skipped++
		metrics.Units.WithLabelValues("skipped").Inc()
		r.obs.Advance()
	}
}

func preview(s string) string {
	const max = 40
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "…"
		}
		n++
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type nopObserver struct{}

func (nopObserver) Start(int) {}
func (nopObserver) Advance()  {}
func (nopObserver) Finish()   {}
