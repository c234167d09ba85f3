package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hyperifyio/nnfix/internal/dedup"
	"github.com/hyperifyio/nnfix/internal/engine"
	"github.com/hyperifyio/nnfix/internal/extract"
	"github.com/hyperifyio/nnfix/internal/gate"
	"github.com/hyperifyio/nnfix/internal/progress"
	"github.com/hyperifyio/nnfix/internal/remote"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Renderer, backend and identifier choices.
const (
	RendererTerminal = "terminal"
	RendererOverlay  = "overlay"
	RendererNone     = "none"

	BackendApertium = "apertium"
	BackendLLM      = "llm"

	IdentifierApertium = "apertium"
	IdentifierLingua   = "lingua"
)

// DefaultUserAgent identifies nnfix to the translation service and to
// fetched sites.
const DefaultUserAgent = "nnfix/1.0 (+https://github.com/hyperifyio/nnfix)"

// Config holds runtime configuration for the application.
type Config struct {
	// Translation service
	ApertiumURL     string
	LangPair        string
	UserAgent       string
	ServiceTimeout  time.Duration
	MemoSize        int
	MaxInFlight     int
	Backend         string
	LLMBaseURL      string
	LLMModel        string
	LLMAPIKey       string
	LLMSystemPrompt string

	// Gate
	Identifier   string
	SourceCode   string
	Threshold    float64
	MinSample    int
	SampleBudget int
	DedupWindow  time.Duration
	RedisAddr    string

	// Engine
	BatchSize  int
	BatchDelay time.Duration

	// Indicator
	Renderer      string
	IndicatorHold time.Duration
	IndicatorFade time.Duration

	// Page acquisition
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	CacheBypass      bool
	Chrome           bool
	ChromePath       string
	ChromeTimeout    time.Duration
	ChromeHeadful    bool

	ListenAddr string
	Verbose    bool
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		ApertiumURL:    "http://localhost:2737",
		LangPair:       remote.DefaultLangPair,
		UserAgent:      DefaultUserAgent,
		ServiceTimeout: 15 * time.Second,
		MemoSize:       4096,
		MaxInFlight:    64,
		Backend:        BackendApertium,
		Identifier:     IdentifierApertium,
		SourceCode:     gate.DefaultSourceCode,
		Threshold:      gate.DefaultThreshold,
		MinSample:      gate.DefaultMinSample,
		SampleBudget:   extract.DefaultSampleBudget,
		DedupWindow:    dedup.DefaultWindow,
		BatchSize:      engine.DefaultBatchSize,
		BatchDelay:     engine.DefaultBatchDelay,
		Renderer:       RendererTerminal,
		IndicatorHold:  progress.DefaultTiming.Hold,
		IndicatorFade:  progress.DefaultTiming.Fade,
		CacheDir:       ".nnfix-cache",
		ListenAddr:     "127.0.0.1:8787",
	}
}

// ValidateConfig rejects settings the pipeline cannot run with.
func ValidateConfig(cfg Config) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if cfg.BatchSize <= 0 {
		return invalid("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return invalid("threshold must be within [0,1], got %g", cfg.Threshold)
	}
	if cfg.MinSample < 0 || cfg.SampleBudget < 0 || cfg.MemoSize < 0 || cfg.MaxInFlight < 0 {
		return invalid("negative limits are not allowed")
	}
	if cfg.DedupWindow <= 0 {
		return invalid("dedup window must be positive")
	}
	if strings.TrimSpace(cfg.SourceCode) == "" {
		return invalid("source language code is required")
	}

	needApertium := cfg.Backend == BackendApertium || cfg.Identifier == IdentifierApertium
	if needApertium {
		u, err := url.Parse(strings.TrimSpace(cfg.ApertiumURL))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return invalid("apertium url %q must be an absolute http(s) URL (or set APERTIUM_URL)", cfg.ApertiumURL)
		}
	}
	switch cfg.Backend {
	case BackendApertium:
	case BackendLLM:
		if strings.TrimSpace(cfg.LLMModel) == "" {
			return invalid("llm.model is required for the llm backend (or set LLM_MODEL)")
		}
	default:
		return invalid("unknown backend %q", cfg.Backend)
	}
	switch cfg.Identifier {
	case IdentifierApertium, IdentifierLingua:
	default:
		return invalid("unknown identifier %q", cfg.Identifier)
	}
	switch cfg.Renderer {
	case RendererTerminal, RendererOverlay, RendererNone:
	default:
		return invalid("unknown renderer %q", cfg.Renderer)
	}
	return nil
}
