// Package fetch downloads HTML pages for correction. It retries transient
// failures, revalidates against an optional on-disk cache and decodes the
// body to UTF-8.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/semaphore"

	"github.com/hyperifyio/nnfix/internal/cache"
)

// DefaultMaxBytes caps a downloaded page.
const DefaultMaxBytes = 8 << 20

// ErrScheme is returned for URLs that are not http or https.
var ErrScheme = errors.New("unsupported URL scheme")

// StatusError carries a non-2xx response code.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Code) }

// Transient reports whether a retry can help.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Page is a downloaded document.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
	FromCache   bool
}

// Client wraps http.Client with retry, a concurrency cap and caching.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts       int
	PerRequestTimeout time.Duration
	Cache             *cache.PageCache
	// BypassCache skips lookups and conditional headers but still stores
	// the fresh response.
	BypassCache bool
	// RedirectMaxHops defaults to 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests. Zero means unlimited.
	MaxConcurrent int64
	// MaxBytes defaults to DefaultMaxBytes.
	MaxBytes int64
	// Sleep waits between attempts; tests replace it.
	Sleep func(context.Context, time.Duration) error

	semOnce sync.Once
	sem     *semaphore.Weighted
}

// Get returns the page at rawURL, serving it from cache on 304.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return Page{}, fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}

	var (
		cached     cache.Entry
		cachedBody []byte
		haveCached bool
	)
	if c.Cache != nil && !c.BypassCache {
		e, b, err := c.Cache.Lookup(ctx, rawURL)
		switch {
		case err == nil:
			cached, cachedBody, haveCached = e, b, true
		case !errors.Is(err, cache.ErrMiss):
			log.Debug().Err(err).Str("url", rawURL).Msg("page cache lookup failed")
		}
	}

	attempts := max(c.MaxAttempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := c.sleep(ctx, time.Duration(i)*200*time.Millisecond); err != nil {
				return Page{}, err
			}
		}
		res, err := c.tryOnce(ctx, rawURL, cached, haveCached)
		if err == nil {
			if res.notModified {
				if c.Cache != nil {
					_ = c.Cache.Touch(ctx, rawURL)
				}
				return Page{URL: rawURL, ContentType: cached.ContentType, Body: cachedBody, FromCache: true}, nil
			}
			if c.Cache != nil {
				entry := cache.Entry{URL: rawURL, ContentType: res.page.ContentType, ETag: res.etag, LastModified: res.lastModified}
				if err := c.Cache.Save(ctx, entry, res.page.Body); err != nil {
					log.Debug().Err(err).Str("url", rawURL).Msg("page cache save failed")
				}
			}
			return res.page, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		log.Debug().Err(err).Str("url", rawURL).Int("attempt", i+1).Msg("fetch retry")
	}
	return Page{}, lastErr
}

type attempt struct {
	page         Page
	etag         string
	lastModified string
	notModified  bool
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, cached cache.Entry, conditional bool) (attempt, error) {
	if err := c.acquire(ctx); err != nil {
		return attempt{}, err
	}
	defer c.release()

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attempt{}, fmt.Errorf("new request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if conditional {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return attempt{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && conditional {
		return attempt{notModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return attempt{}, &StatusError{Code: resp.StatusCode}
	}
	ct := resp.Header.Get("Content-Type")
	if !isHTMLContentType(ct) {
		return attempt{}, fmt.Errorf("unsupported content type: %s", ct)
	}
	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return attempt{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > limit {
		return attempt{}, fmt.Errorf("page exceeds %d bytes", limit)
	}
	body, err := toUTF8(raw, ct)
	if err != nil {
		return attempt{}, err
	}
	return attempt{
		page:         Page{URL: resp.Request.URL.String(), ContentType: ct, Body: body},
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

// toUTF8 decodes raw using the Content-Type charset or the document's meta
// declaration.
func toUTF8(raw []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	return io.ReadAll(r)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Transient()
}

func (c *Client) httpClient() *http.Client {
	base := http.Client{Timeout: c.PerRequestTimeout}
	if c.HTTPClient != nil {
		base = *c.HTTPClient
	}
	base.CheckRedirect = c.checkRedirect
	return &base
}

func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	hops := c.RedirectMaxHops
	if hops <= 0 {
		hops = 5
	}
	if len(via) >= hops {
		return errors.New("too many redirects")
	}
	if !isHTTPScheme(req.URL) {
		return fmt.Errorf("redirect: %w", ErrScheme)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.semOnce.Do(func() { c.sem = semaphore.NewWeighted(c.MaxConcurrent) })
	return c.sem.Acquire(ctx, 1)
}

func (c *Client) release() {
	if c.sem != nil {
		c.sem.Release(1)
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}
