// Package overlay draws the progress indicator into the document being
// corrected, as the fixed-position element a browser page would show.
package overlay

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hyperifyio/nnfix/internal/extract"
	"github.com/hyperifyio/nnfix/internal/progress"
)

const (
	ElementID = "nnfix-indicator"
	StyleID   = "nnfix-indicator-style"

	countClass = "nnfix-indicator__count"
	labelClass = "nnfix-indicator__label"
	iconClass  = "nnfix-indicator__icon"
	spinClass  = "nnfix-indicator__icon--spin"
	doneClass  = "nnfix-indicator--done"
)

const stylesheet = `@keyframes nnfix-spin { from { transform: rotate(0deg); } to { transform: rotate(360deg); } }
#nnfix-indicator { position: fixed; right: 16px; bottom: 16px; z-index: 2147483647; display: flex; gap: 8px; align-items: center; padding: 8px 14px; border-radius: 18px; background: #1f1f1f; color: #f0f0f0; font: 13px/1.4 system-ui, sans-serif; box-shadow: 0 2px 8px rgba(0,0,0,.3); }
#nnfix-indicator .nnfix-indicator__icon { display: inline-block; }
#nnfix-indicator .nnfix-indicator__icon--spin { animation: nnfix-spin 1s linear infinite; }
#nnfix-indicator.nnfix-indicator--done { background: #237804; }`

// Renderer implements progress.Renderer on a parsed document.
type Renderer struct {
	doc *goquery.Document
	el  *goquery.Selection
}

// New returns a Renderer drawing into root.
func New(root *html.Node) *Renderer {
	return &Renderer{doc: goquery.NewDocumentFromNode(root)}
}

var _ progress.Renderer = (*Renderer)(nil)

func (r *Renderer) Show(s progress.State) {
	r.ensureStyle()
	// at most one overlay per document, whoever created it
	r.doc.Find("#" + ElementID).Remove()

	body := r.doc.Find("body").First()
	if body.Length() == 0 {
		return
	}
	body.AppendHtml(fmt.Sprintf(
		`<div id="%s" %s role="status" aria-live="polite"><span class="%s %s">⟳</span><span class="%s">%s</span><span class="%s">%s</span></div>`,
		ElementID, extract.IgnoreMarker, iconClass, spinClass,
		countClass, counter(s), labelClass, s.Label(),
	))
	r.el = body.ChildrenFiltered("#" + ElementID).Last()
}

func (r *Renderer) Update(s progress.State) {
	if r.el == nil {
		return
	}
	r.el.Find("." + countClass).SetText(counter(s))
}

func (r *Renderer) Complete(s progress.State) {
	if r.el == nil {
		return
	}
	r.el.AddClass(doneClass)
	r.el.Find("." + countClass).SetText(counter(s))
	r.el.Find("." + labelClass).SetText(s.Label())
	icon := r.el.Find("." + iconClass)
	icon.RemoveClass(spinClass)
	icon.SetText("✓")
}

func (r *Renderer) Fade(d time.Duration) {
	if r.el == nil {
		return
	}
	r.el.SetAttr("style", fmt.Sprintf("opacity: 0; transition: opacity %dms ease", d.Milliseconds()))
}

func (r *Renderer) Remove() {
	if r.el == nil {
		return
	}
	r.el.Remove()
	r.el = nil
}

// ensureStyle inserts the shared stylesheet once per document.
func (r *Renderer) ensureStyle() {
	if r.doc.Find("#"+StyleID).Length() > 0 {
		return
	}
	target := r.doc.Find("head").First()
	if target.Length() == 0 {
		target = r.doc.Find("body").First()
	}
	target.AppendHtml(`<style id="` + StyleID + `">` + stylesheet + `</style>`)
}

func counter(s progress.State) string {
	return strings.TrimSpace(fmt.Sprintf("%d / %d", s.Processed, s.Total))
}
