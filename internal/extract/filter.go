package extract

import (
    "strings"

    "golang.org/x/net/html"

    "github.com/hyperifyio/nnfix/internal/dom"
)

// Reason explains why a text node was accepted or rejected.
type Reason int

const (
    Eligible Reason = iota
    NoParent
    ExcludedTag
    Editable
    Hidden
    TooShort
    TooLong
    NoLetters
)

func (r Reason) String() string {
    switch r {
    case Eligible:
        return "eligible"
    case NoParent:
        return "no-parent"
    case ExcludedTag:
        return "excluded-tag"
    case Editable:
        return "editable"
    case Hidden:
        return "hidden"
    case TooShort:
        return "too-short"
    case TooLong:
        return "too-long"
    case NoLetters:
        return "no-letters"
    }
    return "unknown"
}

var excludedTags = map[string]bool{
    "script":   true,
    "style":    true,
    "noscript": true,
    "textarea": true,
    "input":    true,
    "select":   true,
}

// Classify applies the eligibility rules to a text node, short-circuiting in
// a fixed order: parent, tag, editability, visibility, length, letters.
func Classify(n *html.Node, pass Pass, styler Styler) Reason {
    if n == nil || n.Type != html.TextNode {
        return NoParent
    }
    parent := n.Parent
    if parent == nil || parent.Type != html.ElementNode {
        return NoParent
    }
    if excludedTags[strings.ToLower(parent.Data)] {
        return ExcludedTag
    }
    if pass.SkipEditable && isEditable(parent) {
        return Editable
    }
    if styler.Hidden(parent) {
        return Hidden
    }
    _, body, _ := splitSpace(n.Data)
    l := charLen(body)
    if l < pass.MinLen {
        return TooShort
    }
    if pass.MaxLen > 0 && l > pass.MaxLen {
        return TooLong
    }
    if !hasLetter(body) {
        return NoLetters
    }
    return Eligible
}

// isEditable resolves contenteditable inheritance: the nearest element with
// the attribute decides, "false" switches editing off for its subtree.
func isEditable(el *html.Node) bool {
    for cur := el; cur != nil; cur = dom.ParentElement(cur) {
        for _, a := range cur.Attr {
            if !strings.EqualFold(a.Key, "contenteditable") {
                continue
            }
            switch strings.ToLower(strings.TrimSpace(a.Val)) {
            case "", "true", "plaintext-only":
                return true
            case "false":
                return false
            }
        }
    }
    return false
}

// hasLetter reports whether s contains a basic Latin letter or one of the
// Norwegian letters æ, ø, å in either case.
func hasLetter(s string) bool {
    for _, r := range s {
        switch {
        case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
            return true
        case r == 'æ', r == 'ø', r == 'å', r == 'Æ', r == 'Ø', r == 'Å':
            return true
        }
    }
    return false
}
