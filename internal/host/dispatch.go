// Package host turns page events into gate evaluations and correction
// runs. It stands in for the browser surfaces: page load and activation
// notifications, the manual action, page access and user notifications.
package host

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/nnfix/internal/engine"
	"github.com/hyperifyio/nnfix/internal/extract"
	"github.com/hyperifyio/nnfix/internal/gate"
	"github.com/hyperifyio/nnfix/internal/progress"
)

// Kind names the trigger behind an event.
type Kind string

const (
	Load     Kind = "load"
	Activate Kind = "activate"
	Manual   Kind = "manual"
)

// Event is one trigger. Ready reports whether the page finished loading;
// automatic events for pages still loading are ignored. HTML, when set,
// is the document itself and URL only identifies it.
type Event struct {
	Kind  Kind
	URL   string
	Ready bool
	HTML  string
}

// Outcome reports what Handle did.
type Outcome struct {
	Kind Kind
	// Ignored is set for automatic events on pages that are not ready.
	Ignored bool
	// Busy is set when a run for the same page was already in progress.
	Busy bool
	// Decision is zero for manual events.
	Decision gate.Decision
	// Ran reports whether the correction engine was invoked.
	Ran       bool
	Stats     engine.Stats
	Page      *Page
	Indicator *progress.Indicator
	Err       error
}

const notifyTitle = "nnfix"

// Dispatcher wires events to the gate and the engine.
type Dispatcher struct {
	Loader   Loader
	Gate     *gate.Gate
	Engine   *engine.Engine
	Notifier Notifier
	// Progress returns the indicator manager for a page, or nil for no
	// progress display.
	Progress     func(p *Page) *progress.Manager
	SampleBudget int

	mu   sync.Mutex
	busy map[string]bool
}

// Handle processes ev. It never panics and never returns an error to the
// caller beyond Outcome.Err; automatic failures are logged only, manual
// failures are also shown through the Notifier.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (out Outcome) {
	out.Kind = ev.Kind
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("url", ev.URL).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("event handler panicked")
			out.Err = fmt.Errorf("internal error: %v", r)
		}
	}()

	switch ev.Kind {
	case Load, Activate:
		if !ev.Ready {
			out.Ignored = true
			return out
		}
		d.auto(ctx, ev, &out)
	case Manual:
		d.manual(ctx, ev, &out)
	default:
		out.Err = fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return out
}

func (d *Dispatcher) auto(ctx context.Context, ev Event, out *Outcome) {
	key := PageKey(ev.URL, ev.HTML)
	if !d.acquire(key) {
		out.Busy = true
		log.Debug().Str("url", key).Msg("correction in progress, event ignored")
		return
	}
	defer d.release(key)

	if d.Gate == nil {
		out.Err = errors.New("no gate configured")
		return
	}
	var page *Page
	sampler := func(ctx context.Context) (string, error) {
		p, err := d.Loader.Load(ctx, ev.URL, ev.HTML)
		if err != nil {
			return "", err
		}
		page = p
		return p.Sample(d.sampleBudget()), nil
	}
	out.Decision = d.Gate.Decide(ctx, key, sampler)
	out.Page = page
	if errors.Is(out.Decision.Err, ErrRestricted) {
		log.Debug().Str("url", key).Msg("restricted page skipped")
	}
	if !out.Decision.Triggered() {
		return
	}
	d.run(ctx, page, out)
}

func (d *Dispatcher) manual(ctx context.Context, ev Event, out *Outcome) {
	key := PageKey(ev.URL, ev.HTML)
	if !d.acquire(key) {
		out.Busy = true
		d.notify("Retting pågår allerede på denne siden.")
		return
	}
	defer d.release(key)

	page, err := d.Loader.Load(ctx, ev.URL, ev.HTML)
	if err != nil {
		out.Err = err
		if errors.Is(err, ErrRestricted) {
			d.notify("Denne siden kan ikke endres.")
		} else {
			d.notify("Kunne ikke lese siden: " + err.Error())
		}
		log.Warn().Err(err).Str("url", key).Msg("manual correction failed")
		return
	}
	out.Page = page
	d.run(ctx, page, out)
}

func (d *Dispatcher) run(ctx context.Context, page *Page, out *Outcome) {
	if d.Engine == nil || page == nil {
		out.Err = errors.New("no engine configured")
		return
	}
	units := page.Units()
	var obs engine.Observer
	var ro *progress.RunObserver
	if d.Progress != nil {
		if m := d.Progress(page); m != nil {
			ro = m.Observer()
			obs = ro
		}
	}
	out.Ran = true
	out.Stats = d.Engine.Run(ctx, units, obs)
	if ro != nil {
		out.Indicator = ro.Indicator()
	}
	log.Info().Str("url", page.Key).Str("kind", string(out.Kind)).Int("units", len(units)).Int("changed", out.Stats.Changed).Msg("page corrected")
}

func (d *Dispatcher) notify(msg string) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.Notify(notifyTitle, msg)
}

func (d *Dispatcher) sampleBudget() int {
	if d.SampleBudget <= 0 {
		return extract.DefaultSampleBudget
	}
	return d.SampleBudget
}

func (d *Dispatcher) acquire(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy == nil {
		d.busy = make(map[string]bool)
	}
	if d.busy[key] {
		return false
	}
	d.busy[key] = true
	return true
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.busy, key)
}
