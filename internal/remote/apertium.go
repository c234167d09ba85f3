package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLangPair converts Nynorsk into Bokmål.
const DefaultLangPair = "nno|nob"

// Apertium implements Identifier and Corrector against an Apertium APy
// compatible service (/identifyLang and /translate).
type Apertium struct {
	BaseURL    string
	LangPair   string
	HTTPClient *http.Client
	UserAgent  string
	// PerRequestTimeout bounds each call. Zero leaves it to HTTPClient.
	PerRequestTimeout time.Duration
	// MaxConcurrent caps in-flight requests for this client across every
	// run sharing it. Zero means unlimited.
	MaxConcurrent int64

	sem     *semaphore.Weighted
	semOnce sync.Once
}

// Identify posts the sample as form field q and decodes a code->score object.
func (a *Apertium) Identify(ctx context.Context, text string) (LanguageScores, error) {
	endpoint, err := a.endpoint("identifyLang")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	form := url.Values{}
	form.Set("q", text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", ErrUnknown, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := a.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	var scores LanguageScores
	if err := json.Unmarshal(body, &scores); err != nil {
		return nil, fmt.Errorf("%w: decode scores: %v", ErrUnknown, err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: empty scores", ErrUnknown)
	}
	return scores, nil
}

// Correct translates text with the configured language pair.
func (a *Apertium) Correct(ctx context.Context, text string) (CorrectionResult, error) {
	endpoint, err := a.endpoint("translate")
	if err != nil {
		return CorrectionResult{}, err
	}
	u, _ := url.Parse(endpoint)
	q := u.Query()
	q.Set("q", text)
	q.Set("langpair", a.langPair())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return CorrectionResult{}, fmt.Errorf("new request: %w", err)
	}
	body, err := a.do(req)
	if err != nil {
		return CorrectionResult{}, err
	}
	var tr translateResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return CorrectionResult{}, fmt.Errorf("decode translation: %w", err)
	}
	if tr.ResponseStatus != 0 && tr.ResponseStatus != http.StatusOK {
		return CorrectionResult{}, fmt.Errorf("translation status: %d", tr.ResponseStatus)
	}
	if tr.ResponseData.TranslatedText == nil {
		return CorrectionResult{}, fmt.Errorf("translation missing responseData.translatedText")
	}
	return NewResult(text, *tr.ResponseData.TranslatedText), nil
}

type translateResponse struct {
	ResponseData struct {
		TranslatedText *string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus int `json:"responseStatus"`
}

func (a *Apertium) langPair() string {
	if strings.TrimSpace(a.LangPair) == "" {
		return DefaultLangPair
	}
	return a.LangPair
}

func (a *Apertium) endpoint(path string) (string, error) {
	if strings.TrimSpace(a.BaseURL) == "" {
		return "", fmt.Errorf("missing apertium base url")
	}
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	return u.String(), nil
}

func (a *Apertium) do(req *http.Request) ([]byte, error) {
	if err := a.acquire(req.Context()); err != nil {
		return nil, err
	}
	defer a.release()

	if a.UserAgent != "" {
		req.Header.Set("User-Agent", a.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	if a.PerRequestTimeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), a.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}
	hc := a.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}

func (a *Apertium) acquire(ctx context.Context) error {
	if a.MaxConcurrent <= 0 {
		return nil
	}
	a.semOnce.Do(func() { a.sem = semaphore.NewWeighted(a.MaxConcurrent) })
	return a.sem.Acquire(ctx, 1)
}

func (a *Apertium) release() {
	if a.sem != nil {
		a.sem.Release(1)
	}
}
