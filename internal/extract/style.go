package extract

import (
    "strings"

    "golang.org/x/net/html"

    "github.com/hyperifyio/nnfix/internal/dom"
)

// HiddenMarker is set by the browser renderer on elements whose computed
// style hides them. Its value is "display" or "visibility".
const HiddenMarker = "data-nnfix-hidden"

// Styler resolves whether an element is rendered.
type Styler interface {
    Hidden(el *html.Node) bool
}

// InlineStyler approximates computed style from markup alone: inline style
// declarations, the hidden attribute, elements browsers never render, and
// markers left by the browser renderer.
type InlineStyler struct{}

var neverRendered = map[string]bool{
    "head":     true,
    "title":    true,
    "meta":     true,
    "link":     true,
    "base":     true,
    "template": true,
    "datalist": true,
}

func (InlineStyler) Hidden(el *html.Node) bool {
    if el == nil {
        return false
    }
    // display:none anywhere up the chain removes the whole subtree
    for cur := el; cur != nil; cur = dom.ParentElement(cur) {
        if displayNone(cur) {
            return true
        }
    }
    // visibility inherits and a nearer explicit value wins; the browser
    // marker already carries the inherited value, so only el's own counts
    if v, ok := markerValue(el); ok && v == "visibility" {
        return true
    }
    for cur := el; cur != nil; cur = dom.ParentElement(cur) {
        switch styleValue(cur, "visibility") {
        case "hidden", "collapse":
            return true
        case "visible":
            return false
        }
    }
    return false
}

func displayNone(el *html.Node) bool {
    if neverRendered[strings.ToLower(el.Data)] {
        return true
    }
    if v, ok := markerValue(el); ok && v == "display" {
        return true
    }
    if d := styleValue(el, "display"); d != "" {
        return d == "none"
    }
    for _, a := range el.Attr {
        if strings.EqualFold(a.Key, "hidden") {
            return true
        }
    }
    return false
}

func markerValue(el *html.Node) (string, bool) {
    for _, a := range el.Attr {
        if a.Key == HiddenMarker {
            return strings.ToLower(strings.TrimSpace(a.Val)), true
        }
    }
    return "", false
}

// styleValue returns the last declared value of prop in the inline style
// attribute, lowercased and without !important.
func styleValue(el *html.Node, prop string) string {
    var style string
    for _, a := range el.Attr {
        if strings.EqualFold(a.Key, "style") {
            style = a.Val
            break
        }
    }
    if style == "" {
        return ""
    }
    value := ""
    for _, decl := range strings.Split(style, ";") {
        k, v, ok := strings.Cut(decl, ":")
        if !ok || !strings.EqualFold(strings.TrimSpace(k), prop) {
            continue
        }
        v = strings.ToLower(strings.TrimSpace(v))
        v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
        value = v
    }
    return value
}
