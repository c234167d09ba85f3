// Package dom provides a predicate-driven traversal over x/net/html trees.
package dom

import (
	"iter"
	"strings"

	"golang.org/x/net/html"
)

// Verdict is the answer a Visitor gives for one node.
type Verdict int

const (
	// Reject skips the node but still descends into its children.
	Reject Verdict = iota
	// Accept yields the node and descends into its children.
	Accept
	// SkipSubtree skips the node and all of its descendants.
	SkipSubtree
)

// Visitor classifies a node during Walk.
type Visitor func(n *html.Node) Verdict

// Walk returns the accepted nodes under root in document order. The sequence
// is lazy and can be ranged over again; each iteration re-walks the live tree.
// Callers may mutate the Data of yielded nodes but must not detach them while
// iterating.
func Walk(root *html.Node, visit Visitor) iter.Seq[*html.Node] {
	return func(yield func(*html.Node) bool) {
		if root == nil {
			return
		}
		walk(root, visit, yield)
	}
}

func walk(n *html.Node, visit Visitor, yield func(*html.Node) bool) bool {
	switch visit(n) {
	case SkipSubtree:
		return true
	case Accept:
		if !yield(n) {
			return false
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit, yield) {
			return false
		}
	}
	return true
}

// ParentElement returns the closest element ancestor of n, or nil.
func ParentElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
		if p.Type == html.DocumentNode {
			return nil
		}
	}
	return nil
}

// Attr returns the value of the attribute key (case-insensitive) on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// RemoveAttr deletes every attribute named key from n and its descendants.
func RemoveAttr(root *html.Node, key string) {
	for n := range Walk(root, elements) {
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			if !strings.EqualFold(a.Key, key) {
				kept = append(kept, a)
			}
		}
		n.Attr = kept
	}
}

func elements(n *html.Node) Verdict {
	if n.Type == html.ElementNode {
		return Accept
	}
	return Reject
}
