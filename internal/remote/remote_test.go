package remote

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestLanguageScores_BestAndScore(t *testing.T) {
	s := LanguageScores{"nob": 0.6, "nno": 0.4}
	if code, score, _ := s.Best(); code != "nob" || score != 0.6 {
		t.Fatalf("best = %s %v", code, score)
	}
	if s.Score("dan") != -1 {
		t.Fatalf("absent score should be -1")
	}
	tie := LanguageScores{"swe": 0.5, "dan": 0.5}
	if code, _, _ := tie.Best(); code != "dan" {
		t.Fatalf("tie resolved to %s, want dan", code)
	}
	if _, _, ok := (LanguageScores{}).Best(); ok {
		t.Fatalf("empty scores should report no best")
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"  Jeg *kjem hjem. ":       "Jeg kjem hjem.",
		"#gått og @sett":           "gått og sett",
		"(*ukjent) ord":            "(ukjent) ord",
		"5 * 3 = 15":               "5 * 3 = 15",
		"e\u0301n":                 "\u00e9n",
		"e-post: ola@example.com": "e-post: ola@example.com",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewResult_Unchanged(t *testing.T) {
	if r := NewResult(" Oslo ", "*Oslo"); !r.Unchanged {
		t.Fatalf("marker-only difference should be unchanged: %+v", r)
	}
	if r := NewResult("Eg", "Jeg"); r.Unchanged || r.Corrected != "Jeg" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestNewResult_KeepsMarkerCharactersFromOriginal(t *testing.T) {
	for _, in := range []string{"Følg @nrk og #valg2025", "Pris *inkl. mva", "#1 på lista"} {
		r := NewResult(in, in)
		if !r.Unchanged || r.Corrected != in {
			t.Errorf("echo of %q: %+v", in, r)
		}
	}
	// the service marks an unknown word that already carried a handle
	if r := NewResult("Eg følgjer @nrk", "Jeg følger *@nrk"); r.Corrected != "Jeg følger @nrk" {
		t.Fatalf("corrected=%q", r.Corrected)
	}
	// markers the original never had are still removed
	if r := NewResult("Følg @nrk i dag", "Følg @nrk *idag"); r.Corrected != "Følg @nrk idag" {
		t.Fatalf("corrected=%q", r.Corrected)
	}
}

type countingCorrector struct {
	calls int
	err   error
}

func (c *countingCorrector) Correct(_ context.Context, text string) (CorrectionResult, error) {
	c.calls++
	if c.err != nil {
		return CorrectionResult{}, c.err
	}
	return NewResult(text, text+"!"), nil
}

func TestMemoCorrector(t *testing.T) {
	inner := &countingCorrector{}
	m, err := NewMemoCorrector(inner, 2)
	if err != nil {
		t.Fatalf("new memo: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Correct(context.Background(), "meny"); err != nil {
			t.Fatalf("correct: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("inner calls=%d, want 1", inner.calls)
	}

	failing := &countingCorrector{err: errors.New("down")}
	m, _ = NewMemoCorrector(failing, 2)
	_, _ = m.Correct(context.Background(), "meny")
	_, _ = m.Correct(context.Background(), "meny")
	if failing.calls != 2 || m.Len() != 0 {
		t.Fatalf("failures must not be memoized: calls=%d len=%d", failing.calls, m.Len())
	}
}

type fakeChat struct {
	req   openai.ChatCompletionRequest
	reply string
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}}}, nil
}

func TestLLMCorrector(t *testing.T) {
	chat := &fakeChat{reply: "Jeg er her.\n"}
	c := &LLMCorrector{Client: chat, Model: "test-model"}
	res, err := c.Correct(context.Background(), "Eg er her.")
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if res.Corrected != "Jeg er her." || res.Unchanged {
		t.Fatalf("result = %+v", res)
	}
	if chat.req.Model != "test-model" || len(chat.req.Messages) != 2 || chat.req.Messages[1].Content != "Eg er her." {
		t.Fatalf("unexpected request %+v", chat.req)
	}

	if _, err := (&LLMCorrector{Client: &fakeChat{reply: "  "}, Model: "m"}).Correct(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on empty reply")
	}
	if _, err := (&LLMCorrector{}).Correct(context.Background(), "x"); err == nil {
		t.Fatalf("expected error when not configured")
	}
}

func TestLinguaIdentifier_ReturnsKnownCodes(t *testing.T) {
	if testing.Short() {
		t.Skip("loads language models")
	}
	id := NewLinguaIdentifier()
	scores, err := id.Identify(context.Background(), "Eg har ikkje sett han sidan i fjor, men han skal visst ha flytta heim att.")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	known := map[string]bool{"nno": true, "nob": true, "dan": true, "swe": true, "eng": true}
	for code := range scores {
		if !known[code] {
			t.Fatalf("unexpected code %q", code)
		}
	}
}
