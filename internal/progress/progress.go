// Package progress is the correction progress indicator: a state machine
// with no knowledge of how it is drawn. Renderers draw it.
package progress

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Phase of an indicator.
type Phase int

const (
	Idle Phase = iota
	Running
	Complete
	Removed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// State is a snapshot handed to renderers.
type State struct {
	Total     int
	Processed int
	Phase     Phase
}

// Label is the human readable phase label.
func (s State) Label() string {
	if s.Phase == Complete || s.Phase == Removed {
		return "Ferdig"
	}
	return "Retter tekst"
}

// Renderer draws an indicator. Calls for one indicator are serialized.
type Renderer interface {
	Show(State)
	Update(State)
	Complete(State)
	Fade(d time.Duration)
	Remove()
}

// Timing controls the completion display.
type Timing struct {
	// Hold is how long the completion state stays fully visible.
	Hold time.Duration
	// Fade is the opacity transition before the indicator is detached.
	Fade time.Duration
}

// DefaultTiming matches the browser overlay: 1.5s hold, 300ms fade.
var DefaultTiming = Timing{Hold: 1500 * time.Millisecond, Fade: 300 * time.Millisecond}

// Indicator tracks one correction run.
type Indicator struct {
	clock    clock.Clock
	timing   Timing
	renderer Renderer

	mu      sync.Mutex
	state   State
	timer   *clock.Timer
	removed chan struct{}
}

func newIndicator(c clock.Clock, t Timing, r Renderer) *Indicator {
	if r == nil {
		r = Nop{}
	}
	return &Indicator{clock: c, timing: t, renderer: r, removed: make(chan struct{})}
}

// Start moves Idle -> Running with processed at zero.
func (i *Indicator) Start(total int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state.Phase != Idle {
		return
	}
	i.state = State{Total: total, Phase: Running}
	i.renderer.Show(i.state)
	if total <= 0 {
		i.completeLocked()
	}
}

// Advance records one settled unit. It is ignored outside Running and never
// moves processed past total.
func (i *Indicator) Advance() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state.Phase != Running || i.state.Processed >= i.state.Total {
		return
	}
	i.state.Processed++
	i.renderer.Update(i.state)
	if i.state.Processed == i.state.Total {
		i.completeLocked()
	}
}

// Finish is part of the engine observer contract; completion is driven by
// the processed count, so there is nothing left to do.
func (i *Indicator) Finish() {}

// State returns a snapshot.
func (i *Indicator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Done is closed once the indicator has been detached.
func (i *Indicator) Done() <-chan struct{} { return i.removed }

func (i *Indicator) completeLocked() {
	i.state.Phase = Complete
	i.renderer.Complete(i.state)
	i.timer = i.clock.AfterFunc(i.timing.Hold, i.fade)
}

func (i *Indicator) fade() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state.Phase != Complete {
		return
	}
	i.renderer.Fade(i.timing.Fade)
	i.timer = i.clock.AfterFunc(i.timing.Fade, i.Remove)
}

// Remove detaches the indicator at once, cancelling pending timers.
func (i *Indicator) Remove() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state.Phase == Removed {
		return
	}
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	if i.state.Phase != Idle {
		i.renderer.Remove()
	}
	i.state.Phase = Removed
	close(i.removed)
}

// Manager keeps at most one indicator alive.
type Manager struct {
	clock    clock.Clock
	timing   Timing
	renderer func() Renderer

	mu      sync.Mutex
	current *Indicator
}

// NewManager builds a Manager. newRenderer is called once per indicator.
func NewManager(c clock.Clock, t Timing, newRenderer func() Renderer) *Manager {
	if c == nil {
		c = clock.New()
	}
	if t.Hold <= 0 && t.Fade <= 0 {
		t = DefaultTiming
	}
	if newRenderer == nil {
		newRenderer = func() Renderer { return Nop{} }
	}
	return &Manager{clock: c, timing: t, renderer: newRenderer}
}

// Begin replaces any visible indicator with a new running one.
func (m *Manager) Begin(total int) *Indicator {
	m.mu.Lock()
	prev := m.current
	ind := newIndicator(m.clock, m.timing, m.renderer())
	m.current = ind
	m.mu.Unlock()

	if prev != nil {
		prev.Remove()
	}
	ind.Start(total)
	return ind
}

// Current returns the live indicator, if any.
func (m *Manager) Current() *Indicator {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	select {
	case <-m.current.Done():
		return nil
	default:
		return m.current
	}
}

// Observer returns a per-run observer bound to the indicator created when
// the run starts. Late updates from a replaced run land on its own removed
// indicator and are dropped.
func (m *Manager) Observer() *RunObserver {
	return &RunObserver{manager: m}
}

// RunObserver adapts a Manager to the engine observer contract.
type RunObserver struct {
	manager   *Manager
	indicator *Indicator
}

func (o *RunObserver) Start(total int) { o.indicator = o.manager.Begin(total) }

func (o *RunObserver) Advance() {
	if o.indicator != nil {
		o.indicator.Advance()
	}
}

func (o *RunObserver) Finish() {}

// Indicator returns the indicator of this run, nil before Start.
func (o *RunObserver) Indicator() *Indicator { return o.indicator }

// Nop draws nothing.
type Nop struct{}

func (Nop) Show(State)          {}
func (Nop) Update(State)        {}
func (Nop) Complete(State)      {}
func (Nop) Fade(time.Duration)  {}
func (Nop) Remove()             {}
