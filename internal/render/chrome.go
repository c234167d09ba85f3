// Package render loads pages in headless Chrome so hidden elements are
// judged by computed style instead of inline attributes.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"github.com/hyperifyio/nnfix/internal/dom"
	"github.com/hyperifyio/nnfix/internal/extract"
)

// DefaultTimeout bounds one page render.
const DefaultTimeout = 30 * time.Second

// markHidden tags every element whose computed style hides it. The markers
// are read by extract.InlineStyler and removed again by Strip.
var markHidden = fmt.Sprintf(`(() => {
  let n = 0;
  for (const el of document.querySelectorAll('*')) {
    const cs = window.getComputedStyle(el);
    if (cs.display === 'none') { el.setAttribute(%[1]q, 'display'); n++; }
    else if (cs.visibility === 'hidden' || cs.visibility === 'collapse') { el.setAttribute(%[1]q, 'visibility'); n++; }
  }
  return n;
})()`, extract.HiddenMarker)

// Chrome renders pages through chromedp.
type Chrome struct {
	// ExecPath overrides the browser binary. Empty lets chromedp search.
	ExecPath  string
	UserAgent string
	Timeout   time.Duration
	// Headful shows the browser window; useful when debugging selectors.
	Headful bool
}

// Render navigates to url, marks hidden elements and returns the
// serialized document.
func (c *Chrome) Render(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !c.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()

	var (
		marked int
		out    string
	)
	start := time.Now()
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(markHidden, &marked),
		chromedp.OuterHTML("html", &out, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	log.Debug().Str("url", url).Int("hidden", marked).Dur("took", time.Since(start)).Msg("page rendered")
	return "<!DOCTYPE html>" + out, nil
}

// Strip removes the hidden-element markers left by Render.
func Strip(root *html.Node) {
	dom.RemoveAttr(root, extract.HiddenMarker)
}

// StripString is Strip for a serialized document.
func StripString(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	Strip(root)
	var b strings.Builder
	if err := html.Render(&b, root); err != nil {
		return "", err
	}
	return b.String(), nil
}
