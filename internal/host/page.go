package host

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/nnfix/internal/extract"
	"github.com/hyperifyio/nnfix/internal/fetch"
	"github.com/hyperifyio/nnfix/internal/progress"
	"github.com/hyperifyio/nnfix/internal/render"
)

// ErrRestricted is returned for pages that cannot be modified, such as
// browser-internal URLs.
var ErrRestricted = errors.New("restricted page")

// Page is a parsed document ready for sampling and correction.
type Page struct {
	// Key identifies the page for dedup and the busy check.
	Key  string
	URL  string
	Root *html.Node
	// Rendered is set when hidden-element markers from a browser render
	// are present in Root.
	Rendered bool

	mu sync.Mutex
}

// NewPage parses doc. An empty rawURL derives the key from the content.
func NewPage(rawURL, doc string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Page{Key: PageKey(rawURL, doc), URL: rawURL, Root: root}, nil
}

// PageKey returns rawURL without its fragment, or a content hash for
// documents that have no URL.
func PageKey(rawURL, doc string) string {
	if rawURL == "" {
		sum := sha256.Sum256([]byte(doc))
		return "inline:" + hex.EncodeToString(sum[:8])
	}
	if u, err := url.Parse(rawURL); err == nil {
		u.Fragment = ""
		return u.String()
	}
	return rawURL
}

// Sample returns the identification sample.
func (p *Page) Sample(budget int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return extract.Sample(p.Root, extract.InlineStyler{}, budget)
}

// Units returns the units eligible for correction.
func (p *Page) Units() []extract.TextUnit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return extract.Collect(p.Root, extract.CorrectionPass, extract.InlineStyler{})
}

// HTML serializes the document without render markers.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	var buf bytes.Buffer
	err := html.Render(&buf, p.Root)
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	if !p.Rendered {
		return buf.String(), nil
	}
	return render.StripString(buf.String())
}

// Locked wraps r so its DOM writes cannot interleave with HTML. Indicator
// timers fire on their own goroutines.
func (p *Page) Locked(r progress.Renderer) progress.Renderer {
	return &lockedRenderer{mu: &p.mu, r: r}
}

type lockedRenderer struct {
	mu *sync.Mutex
	r  progress.Renderer
}

func (l *lockedRenderer) Show(s progress.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Show(s)
}

func (l *lockedRenderer) Update(s progress.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Update(s)
}

func (l *lockedRenderer) Complete(s progress.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Complete(s)
}

func (l *lockedRenderer) Fade(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Fade(d)
}

func (l *lockedRenderer) Remove() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Remove()
}

// Loader gives the dispatcher access to a page's document.
type Loader interface {
	Load(ctx context.Context, rawURL, doc string) (*Page, error)
}

// Fetcher downloads a page.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (fetch.Page, error)
}

// BrowserRenderer loads a page in a real browser.
type BrowserRenderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// DocumentLoader parses supplied HTML, or else fetches http(s) URLs and
// reads file URLs from disk. Other schemes are restricted.
type DocumentLoader struct {
	Fetcher Fetcher
	// Browser, when set, is used instead of Fetcher for http(s) pages.
	Browser BrowserRenderer
}

func (l *DocumentLoader) Load(ctx context.Context, rawURL, doc string) (*Page, error) {
	scheme := ""
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRestricted, err)
		}
		scheme = strings.ToLower(u.Scheme)
		switch scheme {
		case "http", "https", "file":
		default:
			return nil, fmt.Errorf("%w: %s", ErrRestricted, rawURL)
		}
	}
	if doc != "" {
		return NewPage(rawURL, doc)
	}

	switch scheme {
	case "":
		return nil, errors.New("no url or document")
	case "file":
		u, _ := url.Parse(rawURL)
		b, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", u.Path, err)
		}
		return NewPage(rawURL, string(b))
	}

	if l.Browser != nil {
		out, err := l.Browser.Render(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		p, err := NewPage(rawURL, out)
		if err != nil {
			return nil, err
		}
		p.Rendered = true
		return p, nil
	}
	if l.Fetcher == nil {
		return nil, errors.New("no fetcher configured")
	}
	fp, err := l.Fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("url", rawURL).Bool("cached", fp.FromCache).Int("bytes", len(fp.Body)).Msg("page loaded")
	return NewPage(rawURL, string(fp.Body))
}
