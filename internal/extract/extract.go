package extract

import (
    "iter"
    "strings"
    "unicode"
    "unicode/utf8"

    "golang.org/x/net/html"

    "github.com/hyperifyio/nnfix/internal/dom"
)

// TextUnit is one mutable text leaf. Body is the trimmed payload sent for
// correction; Leading and Trailing hold the exact whitespace around it.
type TextUnit struct {
    Node     *html.Node
    Leading  string
    Body     string
    Trailing string
}

// Text returns the current content of the underlying node.
func (u TextUnit) Text() string {
    if u.Node == nil {
        return ""
    }
    return u.Node.Data
}

// Apply replaces the node content with corrected, keeping the original
// surrounding whitespace byte for byte.
func (u TextUnit) Apply(corrected string) {
    if u.Node == nil {
        return
    }
    u.Node.Data = u.Leading + corrected + u.Trailing
}

// Pass holds the per-call-site thresholds of the eligibility filter.
type Pass struct {
    Name string
    // MinLen is the minimum trimmed length in characters.
    MinLen int
    // MaxLen is the maximum trimmed length; zero means unbounded. Longer
    // units are skipped, never truncated.
    MaxLen int
    // SkipEditable rejects text inside editable regions.
    SkipEditable bool
}

var (
    // SamplePass feeds language identification. Editable regions are
    // allowed because the text is only read.
    SamplePass = Pass{Name: "sample", MinLen: 10}
    // CorrectionPass selects the units that will be rewritten.
    CorrectionPass = Pass{Name: "correct", MinLen: 2, MaxLen: 500, SkipEditable: true}
)

// IgnoreMarker excludes an element and its subtree from every pass. The
// progress overlay carries it so a re-run never corrects its own labels.
const IgnoreMarker = "data-nnfix-ignore"

// Units returns the eligible text units under root in document order.
func Units(root *html.Node, pass Pass, styler Styler) iter.Seq[TextUnit] {
    if styler == nil {
        styler = InlineStyler{}
    }
    visit := func(n *html.Node) dom.Verdict {
        if n.Type == html.ElementNode {
            if _, ok := dom.Attr(n, IgnoreMarker); ok {
                return dom.SkipSubtree
            }
            return dom.Reject
        }
        if n.Type != html.TextNode {
            return dom.Reject
        }
        if Classify(n, pass, styler) != Eligible {
            return dom.Reject
        }
        return dom.Accept
    }
    return func(yield func(TextUnit) bool) {
        for n := range dom.Walk(root, visit) {
            if !yield(newUnit(n)) {
                return
            }
        }
    }
}

// Collect materializes Units into a slice.
func Collect(root *html.Node, pass Pass, styler Styler) []TextUnit {
    var out []TextUnit
    for u := range Units(root, pass, styler) {
        out = append(out, u)
    }
    return out
}

func newUnit(n *html.Node) TextUnit {
    leading, body, trailing := splitSpace(n.Data)
    return TextUnit{Node: n, Leading: leading, Body: body, Trailing: trailing}
}

func splitSpace(s string) (string, string, string) {
    left := strings.TrimLeftFunc(s, unicode.IsSpace)
    leading := s[:len(s)-len(left)]
    body := strings.TrimRightFunc(left, unicode.IsSpace)
    trailing := left[len(body):]
    return leading, body, trailing
}

func charLen(s string) int { return utf8.RuneCountInString(s) }
