package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hyperifyio/nnfix/internal/extract"
	"github.com/hyperifyio/nnfix/internal/remote"
)

// recorder collects an ordered event log shared by corrector and sleep.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type mapCorrector struct {
	rec      *recorder
	replace  map[string]string
	fail     map[string]bool
	delay    time.Duration
	inFlight int32
	maxSeen  int32
}

func (m *mapCorrector) Correct(_ context.Context, text string) (remote.CorrectionResult, error) {
	cur := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&m.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt32(&m.maxSeen, prev, cur) {
			break
		}
	}
	if m.rec != nil {
		m.rec.add("call")
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.fail[text] {
		return remote.CorrectionResult{}, errors.New("service unavailable")
	}
	if out, ok := m.replace[text]; ok {
		return remote.NewResult(text, out), nil
	}
	return remote.NewResult(text, text), nil
}

type countingObserver struct {
	mu        sync.Mutex
	total     int
	processed []int
	finished  int
}

func (o *countingObserver) Start(total int) { o.total = total }
func (o *countingObserver) Advance() {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := 1
	if n := len(o.processed); n > 0 {
		next = o.processed[n-1] + 1
	}
	o.processed = append(o.processed, next)
}
func (o *countingObserver) Finish() { o.finished++ }

func parseUnits(t *testing.T, doc string) (*html.Node, []extract.TextUnit) {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return root, extract.Collect(root, extract.CorrectionPass, nil)
}

func paragraphs(n int) string {
	var b strings.Builder
	b.WriteString("<body>")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "<p>Avsnitt nummer %d</p>", i)
	}
	b.WriteString("</body>")
	return b.String()
}

func TestRun_BatchesAndThrottle(t *testing.T) {
	_, units := parseUnits(t, paragraphs(45))
	if len(units) != 45 {
		t.Fatalf("units=%d, want 45", len(units))
	}
	rec := &recorder{}
	e := New(Config{BatchSize: 20, BatchDelay: 50 * time.Millisecond}, &mapCorrector{rec: rec})
	var pauses []time.Duration
	e.Sleep = func(_ context.Context, d time.Duration) {
		pauses = append(pauses, d)
		rec.add("pause")
	}

	stats := e.Run(context.Background(), units, nil)

	if fmt.Sprint(stats.Batches) != "[20 20 5]" {
		t.Fatalf("batches=%v, want [20 20 5]", stats.Batches)
	}
	if len(pauses) != 2 || pauses[0] != 50*time.Millisecond {
		t.Fatalf("pauses=%v, want two 50ms pauses", pauses)
	}
	var shape []string
	count := 0
	for _, ev := range rec.events {
		if ev == "pause" {
			shape = append(shape, fmt.Sprint(count), "pause")
			count = 0
			continue
		}
		count++
	}
	shape = append(shape, fmt.Sprint(count))
	if strings.Join(shape, ",") != "20,pause,20,pause,5" {
		t.Fatalf("event shape %v", shape)
	}
}

func TestRun_InFlightNeverExceedsBatchSize(t *testing.T) {
	_, units := parseUnits(t, paragraphs(50))
	c := &mapCorrector{delay: 5 * time.Millisecond}
	e := New(Config{BatchSize: 7, BatchDelay: -1}, c)
	e.Run(context.Background(), units, nil)
	if got := atomic.LoadInt32(&c.maxSeen); got > 7 || got < 1 {
		t.Fatalf("max in flight=%d, want 1..7", got)
	}
}

func TestRun_AppliesWhitespaceAndSkipsNoOps(t *testing.T) {
	root, units := parseUnits(t, "<body><p>\n\t Eg er her.  </p><p>Oslo</p><p>Feil her</p></body>")
	oslo := units[1].Node
	c := &mapCorrector{
		replace: map[string]string{"Eg er her.": "Jeg er *her.", "Oslo": "*Oslo"},
		fail:    map[string]bool{"Feil her": true},
	}
	obs := &countingObserver{}
	stats := New(Config{BatchDelay: -1}, c).Run(context.Background(), units, obs)

	if got := units[0].Node.Data; got != "\n\t Jeg er her.  " {
		t.Fatalf("corrected node = %q", got)
	}
	if oslo.Data != "Oslo" {
		t.Fatalf("no-op unit was rewritten to %q", oslo.Data)
	}
	if units[2].Node.Data != "Feil her" {
		t.Fatalf("failed unit was modified: %q", units[2].Node.Data)
	}
	if stats.Changed != 1 || stats.Unchanged != 1 || stats.Failed != 1 || stats.Processed() != 3 {
		t.Fatalf("stats %+v", stats)
	}
	if obs.total != 3 || fmt.Sprint(obs.processed) != "[1 2 3]" || obs.finished != 1 {
		t.Fatalf("observer total=%d processed=%v finished=%d", obs.total, obs.processed, obs.finished)
	}

	var b strings.Builder
	if err := html.Render(&b, root); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(b.String(), "Jeg er her.") {
		t.Fatalf("rendered document missing correction: %s", b.String())
	}
}

func TestRun_EchoedTextWithMarkerCharactersIsUntouched(t *testing.T) {
	_, units := parseUnits(t, "<body><p>Følg @nrk og #valg2025 på nett</p><p>Pris *inkl. mva</p></body>")
	before := make([]string, len(units))
	for i, u := range units {
		before[i] = u.Node.Data
	}
	stats := New(Config{BatchDelay: -1}, &mapCorrector{}).Run(context.Background(), units, nil)

	for i, u := range units {
		if u.Node.Data != before[i] {
			t.Errorf("node %d rewritten from %q to %q", i, before[i], u.Node.Data)
		}
	}
	if stats.Changed != 0 || stats.Unchanged != 2 {
		t.Fatalf("stats %+v", stats)
	}
}

func TestRun_ZeroUnits(t *testing.T) {
	obs := &countingObserver{}
	stats := New(Config{}, &mapCorrector{}).Run(context.Background(), nil, obs)
	if stats.Total != 0 || obs.total != 0 || obs.finished != 0 {
		t.Fatalf("zero units must not touch the observer: %+v %+v", stats, obs)
	}
}

func TestRun_CancelledContextStillCompletesProgress(t *testing.T) {
	_, units := parseUnits(t, paragraphs(10))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obs := &countingObserver{}
	stats := New(Config{BatchSize: 4}, &mapCorrector{}).Run(ctx, units, obs)
	if stats.Skipped != 10 || len(obs.processed) != 10 || obs.finished != 1 {
		t.Fatalf("stats %+v processed=%d", stats, len(obs.processed))
	}
}

func TestPartition(t *testing.T) {
	units := make([]extract.TextUnit, 41)
	got := Partition(units, 20)
	if len(got) != 3 || len(got[0]) != 20 || len(got[1]) != 20 || len(got[2]) != 1 {
		t.Fatalf("partition sizes wrong: %d batches", len(got))
	}
	if len(Partition(nil, 20)) != 0 {
		t.Fatalf("empty input should give no batches")
	}
}
