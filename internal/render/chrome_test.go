package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hyperifyio/nnfix/internal/extract"
)

func TestStripRemovesMarkers(t *testing.T) {
	in := `<html><body><div data-nnfix-hidden="display"><p data-nnfix-hidden="visibility">x</p></div><p>y</p></body></html>`
	out, err := StripString(in)
	if err != nil {
		t.Fatalf("strip: %v", err)
	}
	if strings.Contains(out, extract.HiddenMarker) {
		t.Fatalf("marker left in %q", out)
	}
	if !strings.Contains(out, "<p>x</p>") {
		t.Fatalf("content lost: %q", out)
	}
}

func findChrome() string {
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func TestChrome_MarksComputedHidden(t *testing.T) {
	path := findChrome()
	if path == "" {
		t.Skip("no chrome binary on PATH")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><style>.gone{display:none}.ghost{visibility:hidden}</style></head>
<body><p class="gone">Skjult tekst</p><p class="ghost">Usynleg tekst</p><p>Synleg tekst</p></body></html>`))
	}))
	defer srv.Close()

	c := &Chrome{ExecPath: path, Timeout: 20 * time.Second}
	doc, err := c.Render(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var got []string
	for _, u := range extract.Collect(root, extract.CorrectionPass, nil) {
		got = append(got, u.Body)
	}
	if strings.Join(got, "|") != "Synleg tekst" {
		t.Fatalf("units=%q", got)
	}
}
