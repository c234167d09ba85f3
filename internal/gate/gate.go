// Package gate decides, per page load or activation, whether a page is
// confidently written in the source variant and should be corrected
// without the user asking.
package gate

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/nnfix/internal/dedup"
	"github.com/hyperifyio/nnfix/internal/metrics"
	"github.com/hyperifyio/nnfix/internal/remote"
)

const (
	DefaultSourceCode = "nno"
	DefaultThreshold  = 0.5
	DefaultMinSample  = 50
)

// State is the terminal state of one gate evaluation.
type State string

const (
	Skipped            State = "skipped"
	SampleFailed       State = "sample-failed"
	InsufficientSignal State = "insufficient-signal"
	IdentifyFailed     State = "identify-failed"
	NoTrigger          State = "no-trigger"
	Trigger            State = "trigger"
)

// Decision is the outcome of Decide.
type Decision struct {
	State       State
	Best        string
	BestScore   float64
	SourceScore float64
	SampleLen   int
	Err         error
}

// Triggered reports whether correction should run.
func (d Decision) Triggered() bool { return d.State == Trigger }

// Sampler extracts the identification sample from the page. It is only
// invoked after the dedup check, so skipped pages are never touched.
type Sampler func(ctx context.Context) (string, error)

// Config tunes the decision rule.
type Config struct {
	SourceCode string
	Threshold  float64
	MinSample  int
}

// Gate owns its dedup cache; nothing else writes to it.
type Gate struct {
	cfg        Config
	cache      dedup.Cache
	identifier remote.Identifier
}

// DefaultConfig is the stock decision rule.
func DefaultConfig() Config {
	return Config{SourceCode: DefaultSourceCode, Threshold: DefaultThreshold, MinSample: DefaultMinSample}
}

// New builds a Gate. An empty SourceCode or non-positive MinSample takes the
// default. Threshold is used as given; zero accepts any positive score.
func New(cfg Config, cache dedup.Cache, identifier remote.Identifier) *Gate {
	if cfg.SourceCode == "" {
		cfg.SourceCode = DefaultSourceCode
	}
	if cfg.MinSample <= 0 {
		cfg.MinSample = DefaultMinSample
	}
	if cache == nil {
		cache = dedup.NewMemory(nil, 0)
	}
	return &Gate{cfg: cfg, cache: cache, identifier: identifier}
}

// Decide runs one evaluation for key. The cache is marked only once an
// identification succeeded, and before the threshold is applied: a
// low-confidence answer still suppresses re-checks for the window while a
// failed call leaves the page eligible for the next event.
func (g *Gate) Decide(ctx context.Context, key string, sample Sampler) Decision {
	d := g.decide(ctx, key, sample)
	metrics.GateDecisions.WithLabelValues(string(d.State)).Inc()
	ev := log.Debug()
	if d.Err != nil {
		ev = log.Info().Err(d.Err)
	}
	ev.Str("url", key).
		Str("state", string(d.State)).
		Str("best", d.Best).
		Float64("best_score", d.BestScore).
		Float64("source_score", d.SourceScore).
		Msg("gate decision")
	return d
}

func (g *Gate) decide(ctx context.Context, key string, sample Sampler) Decision {
	d := Decision{SourceScore: -1}
	if g.cache.IsRecentlyChecked(ctx, key) {
		d.State = Skipped
		return d
	}
	if sample == nil {
		d.State = SampleFailed
		d.Err = errors.New("no sampler")
		return d
	}
	text, err := sample(ctx)
	if err != nil {
		d.State = SampleFailed
		d.Err = err
		return d
	}
	d.SampleLen = utf8.RuneCountInString(text)
	if d.SampleLen < g.cfg.MinSample {
		d.State = InsufficientSignal
		return d
	}
	if g.identifier == nil {
		d.State = IdentifyFailed
		d.Err = remote.ErrUnknown
		return d
	}
	scores, err := g.identifier.Identify(ctx, text)
	if err != nil {
		d.State = IdentifyFailed
		d.Err = err
		return d
	}
	best, bestScore, ok := scores.Best()
	d.Best, d.BestScore = best, bestScore
	d.SourceScore = scores.Score(g.cfg.SourceCode)

	g.cache.MarkChecked(ctx, key)

	if ok && best == g.cfg.SourceCode && bestScore > g.cfg.Threshold {
		d.State = Trigger
	} else {
		d.State = NoTrigger
	}
	return d
}
