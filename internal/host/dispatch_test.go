package host

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/hyperifyio/nnfix/internal/dedup"
	"github.com/hyperifyio/nnfix/internal/engine"
	"github.com/hyperifyio/nnfix/internal/fetch"
	"github.com/hyperifyio/nnfix/internal/gate"
	"github.com/hyperifyio/nnfix/internal/overlay"
	"github.com/hyperifyio/nnfix/internal/progress"
	"github.com/hyperifyio/nnfix/internal/remote"
)

const nynorskPage = `<html><head><title>Side</title></head><body>
<p>Eg likar ikkje denne teksten fordi han er skriven på nynorsk.</p>
<p>Kvar dag går eg til skulen.</p>
</body></html>`

type fakeIdentifier struct {
	scores remote.LanguageScores
	calls  int32
}

func (f *fakeIdentifier) Identify(context.Context, string) (remote.LanguageScores, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.scores, nil
}

// wordCorrector swaps a few Nynorsk words.
type wordCorrector struct{}

func (wordCorrector) Correct(_ context.Context, text string) (remote.CorrectionResult, error) {
	r := strings.NewReplacer("Eg ", "Jeg ", " eg ", " jeg ", "ikkje", "ikke", "Kvar", "Hver", "skulen", "skolen")
	return remote.NewResult(text, r.Replace(text)), nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(_, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func newDispatcher(id remote.Identifier, c remote.Corrector) (*Dispatcher, *recordingNotifier, *clock.Mock) {
	clk := clock.NewMock()
	n := &recordingNotifier{}
	eng := engine.New(engine.Config{BatchSize: 2, BatchDelay: -1}, c)
	return &Dispatcher{
		Loader:   &DocumentLoader{},
		Gate:     gate.New(gate.DefaultConfig(), dedup.NewMemory(clk, dedup.DefaultWindow), id),
		Engine:   eng,
		Notifier: n,
	}, n, clk
}

func TestHandle_ManualCorrectsInlineDocument(t *testing.T) {
	d, n, _ := newDispatcher(&fakeIdentifier{}, wordCorrector{})
	out := d.Handle(context.Background(), Event{Kind: Manual, URL: "https://example.no/a", HTML: nynorskPage})
	if out.Err != nil || !out.Ran {
		t.Fatalf("outcome %+v", out)
	}
	if out.Stats.Changed != 2 {
		t.Fatalf("changed=%d", out.Stats.Changed)
	}
	doc, err := out.Page.HTML()
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if !strings.Contains(doc, "Jeg likar ikke denne") || !strings.Contains(doc, "Hver dag går jeg til skolen.") {
		t.Fatalf("document not corrected: %s", doc)
	}
	if !strings.Contains(doc, "<title>Side</title>") {
		t.Fatalf("title should be untouched: %s", doc)
	}
	if n.count() != 0 {
		t.Fatalf("unexpected notifications %v", n.msgs)
	}
}

func TestHandle_AutoIgnoresPagesStillLoading(t *testing.T) {
	id := &fakeIdentifier{scores: remote.LanguageScores{"nno": 0.9}}
	d, _, _ := newDispatcher(id, wordCorrector{})
	out := d.Handle(context.Background(), Event{Kind: Load, URL: "https://example.no/", HTML: nynorskPage})
	if !out.Ignored || out.Ran || id.calls != 0 {
		t.Fatalf("outcome %+v calls=%d", out, id.calls)
	}
}

func TestHandle_AutoTriggersOnceWithinWindow(t *testing.T) {
	id := &fakeIdentifier{scores: remote.LanguageScores{"nno": 0.9, "nob": 0.1}}
	d, _, clk := newDispatcher(id, wordCorrector{})
	ev := Event{Kind: Load, URL: "https://example.no/side", Ready: true, HTML: nynorskPage}

	out := d.Handle(context.Background(), ev)
	if out.Decision.State != gate.Trigger || !out.Ran || out.Stats.Changed != 2 {
		t.Fatalf("first outcome %+v", out)
	}

	ev.Kind = Activate
	out = d.Handle(context.Background(), ev)
	if out.Decision.State != gate.Skipped || out.Ran {
		t.Fatalf("second outcome %+v", out)
	}
	if id.calls != 1 {
		t.Fatalf("identify calls=%d", id.calls)
	}

	clk.Add(dedup.DefaultWindow)
	out = d.Handle(context.Background(), ev)
	if out.Decision.State != gate.Trigger {
		t.Fatalf("after window: %+v", out.Decision)
	}
}

func TestHandle_ManualIgnoresDedupWindow(t *testing.T) {
	id := &fakeIdentifier{scores: remote.LanguageScores{"nno": 0.9}}
	cache := dedup.NewMemory(clock.NewMock(), dedup.DefaultWindow)
	d := &Dispatcher{
		Loader: &DocumentLoader{},
		Gate:   gate.New(gate.DefaultConfig(), cache, id),
		Engine: engine.New(engine.Config{BatchSize: 2, BatchDelay: -1}, wordCorrector{}),
	}
	url := "https://example.no/sjekka"
	cache.MarkChecked(context.Background(), PageKey(url, nynorskPage))

	auto := d.Handle(context.Background(), Event{Kind: Load, URL: url, Ready: true, HTML: nynorskPage})
	if auto.Decision.State != gate.Skipped || auto.Ran {
		t.Fatalf("automatic event inside the window: %+v", auto)
	}
	out := d.Handle(context.Background(), Event{Kind: Manual, URL: url, HTML: nynorskPage})
	if !out.Ran || out.Stats.Changed == 0 || out.Err != nil {
		t.Fatalf("manual correction suppressed: %+v", out)
	}
	if id.calls != 0 {
		t.Fatalf("manual correction must not identify, calls=%d", id.calls)
	}
}

func TestHandle_AutoNoTriggerForOtherLanguage(t *testing.T) {
	id := &fakeIdentifier{scores: remote.LanguageScores{"nob": 0.8, "nno": 0.2}}
	d, n, _ := newDispatcher(id, wordCorrector{})
	out := d.Handle(context.Background(), Event{Kind: Load, URL: "https://example.no/", Ready: true, HTML: nynorskPage})
	if out.Decision.State != gate.NoTrigger || out.Ran {
		t.Fatalf("outcome %+v", out)
	}
	if n.count() != 0 {
		t.Fatalf("automatic path must not notify")
	}
}

func TestHandle_ManualRestrictedNotifies(t *testing.T) {
	d, n, _ := newDispatcher(&fakeIdentifier{}, wordCorrector{})
	out := d.Handle(context.Background(), Event{Kind: Manual, URL: "chrome://settings"})
	if !errors.Is(out.Err, ErrRestricted) || out.Ran {
		t.Fatalf("outcome %+v", out)
	}
	if n.count() != 1 {
		t.Fatalf("notifications=%d", n.count())
	}
}

func TestHandle_AutoRestrictedIsSilent(t *testing.T) {
	id := &fakeIdentifier{scores: remote.LanguageScores{"nno": 1}}
	d, n, _ := newDispatcher(id, wordCorrector{})
	out := d.Handle(context.Background(), Event{Kind: Load, URL: "about:blank", Ready: true})
	if out.Decision.State != gate.SampleFailed || !errors.Is(out.Decision.Err, ErrRestricted) {
		t.Fatalf("decision %+v", out.Decision)
	}
	if n.count() != 0 || id.calls != 0 {
		t.Fatalf("notify=%d identify=%d", n.count(), id.calls)
	}
}

type blockingCorrector struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingCorrector) Correct(ctx context.Context, text string) (remote.CorrectionResult, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return remote.NewResult(text, text), nil
}

func TestHandle_BusyPageIgnoresOverlappingEvents(t *testing.T) {
	bc := &blockingCorrector{entered: make(chan struct{}), release: make(chan struct{})}
	id := &fakeIdentifier{scores: remote.LanguageScores{"nno": 0.9}}
	d, n, _ := newDispatcher(id, bc)
	ev := Event{Kind: Manual, URL: "https://example.no/busy", HTML: nynorskPage}

	done := make(chan Outcome, 1)
	go func() { done <- d.Handle(context.Background(), ev) }()
	<-bc.entered

	if out := d.Handle(context.Background(), ev); !out.Busy || out.Ran {
		t.Fatalf("manual while busy: %+v", out)
	}
	if n.count() != 1 {
		t.Fatalf("manual while busy should notify once, got %d", n.count())
	}
	auto := Event{Kind: Activate, URL: ev.URL, Ready: true, HTML: nynorskPage}
	if out := d.Handle(context.Background(), auto); !out.Busy || id.calls != 0 {
		t.Fatalf("auto while busy: %+v", out)
	}
	other := d.Handle(context.Background(), Event{Kind: Load, URL: "https://example.no/annan", Ready: true, HTML: "<p>kort</p>"})
	if other.Busy {
		t.Fatalf("other pages must not be blocked")
	}

	close(bc.release)
	first := <-done
	if !first.Ran || first.Stats.Unchanged != 2 {
		t.Fatalf("first run %+v", first)
	}
	if out := d.Handle(context.Background(), ev); out.Busy || !out.Ran {
		t.Fatalf("page should be free again: %+v", out)
	}
}

type panickingLoader struct{}

func (panickingLoader) Load(context.Context, string, string) (*Page, error) { panic("boom") }

func TestHandle_RecoversFromPanics(t *testing.T) {
	d, _, _ := newDispatcher(&fakeIdentifier{}, wordCorrector{})
	d.Loader = panickingLoader{}
	out := d.Handle(context.Background(), Event{Kind: Manual, URL: "https://example.no/"})
	if out.Err == nil || !strings.Contains(out.Err.Error(), "boom") {
		t.Fatalf("err=%v", out.Err)
	}
	// the page lock is released even after a panic
	d.Loader = &DocumentLoader{}
	if out := d.Handle(context.Background(), Event{Kind: Manual, URL: "https://example.no/", HTML: nynorskPage}); out.Busy || out.Err != nil {
		t.Fatalf("after panic: %+v", out)
	}
}

func TestHandle_OverlayProgress(t *testing.T) {
	d, _, _ := newDispatcher(&fakeIdentifier{}, wordCorrector{})
	clk := clock.NewMock()
	d.Progress = func(p *Page) *progress.Manager {
		return progress.NewManager(clk, progress.DefaultTiming, func() progress.Renderer {
			return p.Locked(overlay.New(p.Root))
		})
	}
	out := d.Handle(context.Background(), Event{Kind: Manual, URL: "https://example.no/", HTML: nynorskPage})
	if out.Indicator == nil || out.Indicator.State().Phase != progress.Complete {
		t.Fatalf("indicator %+v", out.Indicator)
	}
	doc, _ := out.Page.HTML()
	if !strings.Contains(doc, `id="nnfix-indicator"`) || !strings.Contains(doc, "Ferdig") || !strings.Contains(doc, "2 / 2") {
		t.Fatalf("overlay not drawn: %s", doc)
	}
	deadline := time.Now().Add(2 * time.Second)
	for done := false; !done; {
		select {
		case <-out.Indicator.Done():
			done = true
		default:
			if time.Now().After(deadline) {
				t.Fatalf("indicator never removed")
			}
			clk.Add(100 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
	doc, _ = out.Page.HTML()
	if strings.Contains(doc, `id="nnfix-indicator"`) {
		t.Fatalf("overlay not removed")
	}
}

func TestHandle_UnknownKind(t *testing.T) {
	d, _, _ := newDispatcher(&fakeIdentifier{}, wordCorrector{})
	if out := d.Handle(context.Background(), Event{Kind: "reload"}); out.Err == nil {
		t.Fatalf("expected error")
	}
}

func TestDocumentLoader_Sources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<p>Frå nettet</p>"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "side.html")
	if err := os.WriteFile(path, []byte("<p>Frå disken</p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := &DocumentLoader{Fetcher: &fetch.Client{}}
	ctx := context.Background()

	p, err := l.Load(ctx, srv.URL, "")
	if err != nil || len(p.Units()) != 1 || p.Units()[0].Body != "Frå nettet" {
		t.Fatalf("http: %v", err)
	}
	p, err = l.Load(ctx, "file://"+path, "")
	if err != nil || p.Units()[0].Body != "Frå disken" {
		t.Fatalf("file: %v", err)
	}
	for _, u := range []string{"about:blank", "chrome://extensions", "view-source:https://example.no"} {
		if _, err := l.Load(ctx, u, ""); !errors.Is(err, ErrRestricted) {
			t.Fatalf("%s: want ErrRestricted, got %v", u, err)
		}
	}
	if _, err := l.Load(ctx, "", ""); err == nil {
		t.Fatalf("expected error without url or document")
	}
}

func TestPageKey(t *testing.T) {
	if got := PageKey("https://example.no/a#del2", ""); got != "https://example.no/a" {
		t.Fatalf("fragment kept: %q", got)
	}
	a, b := PageKey("", "<p>a</p>"), PageKey("", "<p>b</p>")
	if a == b || !strings.HasPrefix(a, "inline:") {
		t.Fatalf("inline keys %q %q", a, b)
	}
}
