package dom

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	n, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return n
}

func textOf(n *html.Node) Verdict {
	if n.Type == html.TextNode {
		return Accept
	}
	return Reject
}

func TestWalk_DocumentOrderAndSkip(t *testing.T) {
	root := parse(t, `<body><p>one</p><div id="skip"><p>two</p></div><p>three</p></body>`)
	visit := func(n *html.Node) Verdict {
		if v, ok := Attr(n, "id"); ok && v == "skip" {
			return SkipSubtree
		}
		return textOf(n)
	}
	var got []string
	for n := range Walk(root, visit) {
		got = append(got, n.Data)
	}
	if strings.Join(got, ",") != "one,three" {
		t.Fatalf("got %v", got)
	}
}

func TestWalk_Restartable(t *testing.T) {
	root := parse(t, `<p>a</p><p>b</p>`)
	seq := Walk(root, textOf)
	count := func() int {
		c := 0
		for range seq {
			c++
		}
		return c
	}
	if count() != 2 || count() != 2 {
		t.Fatalf("expected the sequence to be restartable")
	}
}

func TestWalk_EarlyBreak(t *testing.T) {
	root := parse(t, `<p>a</p><p>b</p><p>c</p>`)
	var got []string
	for n := range Walk(root, textOf) {
		got = append(got, n.Data)
		if len(got) == 2 {
			break
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestParentElementAndRemoveAttr(t *testing.T) {
	root := parse(t, `<div data-x="1"><span data-x="2">hi</span></div>`)
	span := findElement(root, "span")
	if span == nil {
		t.Fatal("span not found")
	}
	if p := ParentElement(span.FirstChild); p != span {
		t.Fatalf("unexpected parent %v", p)
	}
	RemoveAttr(root, "data-x")
	if _, ok := Attr(span, "data-x"); ok {
		t.Fatalf("attribute not removed from span")
	}
	if _, ok := Attr(findElement(root, "div"), "data-x"); ok {
		t.Fatalf("attribute not removed from div")
	}
}

// findElement returns the first element named tag under root.
func findElement(root *html.Node, tag string) *html.Node {
	for n := range Walk(root, elements) {
		if strings.EqualFold(n.Data, tag) {
			return n
		}
	}
	return nil
}
