// Package app assembles nnfix from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/nnfix/internal/cache"
	"github.com/hyperifyio/nnfix/internal/dedup"
	"github.com/hyperifyio/nnfix/internal/engine"
	"github.com/hyperifyio/nnfix/internal/fetch"
	"github.com/hyperifyio/nnfix/internal/gate"
	"github.com/hyperifyio/nnfix/internal/host"
	"github.com/hyperifyio/nnfix/internal/llm"
	"github.com/hyperifyio/nnfix/internal/overlay"
	"github.com/hyperifyio/nnfix/internal/progress"
	"github.com/hyperifyio/nnfix/internal/remote"
	"github.com/hyperifyio/nnfix/internal/render"
)

// App owns the long-lived pieces: the dedup cache, the remote clients and
// the dispatcher that ties them together.
type App struct {
	cfg        Config
	dispatcher *host.Dispatcher
	memo       *remote.MemoCorrector
	redis      *redis.Client
}

// Options carries process-level collaborators that are not configuration.
type Options struct {
	// Clock drives the dedup window and indicator timers. Nil means real time.
	Clock clock.Clock
	// Status receives the terminal indicator and notifications. Nil means stderr.
	Status io.Writer
}

// New validates cfg and builds the application graph.
func New(ctx context.Context, cfg Config, opts Options) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	status := opts.Status
	if status == nil {
		status = os.Stderr
	}

	a := &App{cfg: cfg}
	serviceClient := newServiceHTTPClient(cfg.BatchSize, cfg.ServiceTimeout)
	apertium := &remote.Apertium{
		BaseURL:           cfg.ApertiumURL,
		LangPair:          cfg.LangPair,
		HTTPClient:        serviceClient,
		UserAgent:         cfg.UserAgent,
		PerRequestTimeout: cfg.ServiceTimeout,
		MaxConcurrent:     int64(cfg.MaxInFlight),
	}

	identifier, err := a.buildIdentifier(apertium)
	if err != nil {
		return nil, err
	}
	corrector, err := a.buildCorrector(ctx, apertium, serviceClient)
	if err != nil {
		return nil, err
	}

	checked, err := a.buildDedup(ctx, clk)
	if err != nil {
		return nil, err
	}

	loader, err := a.buildLoader()
	if err != nil {
		return nil, err
	}

	a.dispatcher = &host.Dispatcher{
		Loader: loader,
		Gate: gate.New(gate.Config{
			SourceCode: cfg.SourceCode,
			Threshold:  cfg.Threshold,
			MinSample:  cfg.MinSample,
		}, checked, remote.CountedIdentifier{Inner: identifier}),
		Engine:       engine.New(engine.Config{BatchSize: cfg.BatchSize, BatchDelay: cfg.BatchDelay}, remote.CountedCorrector{Inner: corrector}),
		Notifier:     a.notifier(status),
		Progress:     a.progressFor(clk, status),
		SampleBudget: cfg.SampleBudget,
	}
	log.Debug().
		Str("backend", cfg.Backend).
		Str("identifier", cfg.Identifier).
		Str("renderer", cfg.Renderer).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_delay", cfg.BatchDelay).
		Bool("redis", a.redis != nil).
		Msg("app ready")
	return a, nil
}

// Dispatcher returns the event dispatcher.
func (a *App) Dispatcher() *host.Dispatcher { return a.dispatcher }

// Config returns the effective configuration.
func (a *App) Config() Config { return a.cfg }

// Close releases network resources.
func (a *App) Close() {
	if a.memo != nil {
		log.Debug().Int("entries", a.memo.Len()).Msg("correction memo released")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Debug().Err(err).Msg("redis close")
		}
	}
}

func (a *App) buildIdentifier(apertium *remote.Apertium) (remote.Identifier, error) {
	switch a.cfg.Identifier {
	case IdentifierLingua:
		return remote.NewLinguaIdentifier(), nil
	case IdentifierApertium:
		return apertium, nil
	}
	return nil, fmt.Errorf("%w: unknown identifier %q", ErrInvalidConfig, a.cfg.Identifier)
}

func (a *App) buildCorrector(ctx context.Context, apertium *remote.Apertium, hc *http.Client) (remote.Corrector, error) {
	var inner remote.Corrector
	switch a.cfg.Backend {
	case BackendApertium:
		inner = apertium
	case BackendLLM:
		provider := llm.NewOpenAIProvider(a.cfg.LLMBaseURL, a.cfg.LLMAPIKey, hc)
		preflightLLM(ctx, provider)
		inner = &remote.LLMCorrector{Client: provider, Model: a.cfg.LLMModel, SystemPrompt: a.cfg.LLMSystemPrompt}
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, a.cfg.Backend)
	}
	if a.cfg.MemoSize == 0 {
		return inner, nil
	}
	memo, err := remote.NewMemoCorrector(inner, a.cfg.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("correction memo: %w", err)
	}
	a.memo = memo
	return memo, nil
}

// preflightLLM lists models to surface connectivity problems early. It
// never fails startup.
func preflightLLM(ctx context.Context, p *llm.OpenAIProvider) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := p.CountModels(ctx)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
	case n == 0:
		log.Warn().Msg("LLM returned zero models")
	default:
		log.Info().Int("count", n).Msg("LLM models available")
	}
}

func (a *App) buildDedup(ctx context.Context, clk clock.Clock) (dedup.Cache, error) {
	if a.cfg.RedisAddr == "" {
		return dedup.NewMemory(clk, a.cfg.DedupWindow), nil
	}
	client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", a.cfg.RedisAddr, err)
	}
	a.redis = client
	return dedup.NewRedis(client, a.cfg.DedupWindow), nil
}

func (a *App) buildLoader() (*host.DocumentLoader, error) {
	if a.cfg.Chrome {
		return &host.DocumentLoader{Browser: &render.Chrome{
			ExecPath:  a.cfg.ChromePath,
			UserAgent: a.cfg.UserAgent,
			Timeout:   a.cfg.ChromeTimeout,
			Headful:   a.cfg.ChromeHeadful,
		}}, nil
	}
	var pages *cache.PageCache
	if a.cfg.CacheDir != "" {
		if a.cfg.CacheClear {
			if err := cache.Clear(a.cfg.CacheDir); err != nil {
				return nil, fmt.Errorf("clear cache: %w", err)
			}
		}
		if a.cfg.CacheMaxAge > 0 {
			n, err := cache.Purge(a.cfg.CacheDir, a.cfg.CacheMaxAge, time.Now().UTC())
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("expired pages purged")
			}
		}
		pages = &cache.PageCache{Dir: a.cfg.CacheDir, MaxAge: a.cfg.CacheMaxAge, StrictPerms: a.cfg.CacheStrictPerms}
	}
	return &host.DocumentLoader{Fetcher: &fetch.Client{
		UserAgent:         a.cfg.UserAgent,
		MaxAttempts:       3,
		PerRequestTimeout: 30 * time.Second,
		Cache:             pages,
		BypassCache:       a.cfg.CacheBypass,
		MaxConcurrent:     4,
	}}, nil
}

// notifier prints to the terminal next to the terminal indicator. With the
// overlay or no indicator, stdout may carry the document, so notices go to
// the log.
func (a *App) notifier(status io.Writer) host.Notifier {
	if a.cfg.Renderer == RendererTerminal {
		return host.TerminalNotifier{Out: status}
	}
	return host.LogNotifier{}
}

func (a *App) progressFor(clk clock.Clock, status io.Writer) func(*host.Page) *progress.Manager {
	timing := progress.Timing{Hold: a.cfg.IndicatorHold, Fade: a.cfg.IndicatorFade}
	switch a.cfg.Renderer {
	case RendererTerminal:
		shared := progress.NewManager(clk, timing, func() progress.Renderer { return progress.NewTerminal(status) })
		return func(*host.Page) *progress.Manager { return shared }
	case RendererOverlay:
		return func(p *host.Page) *progress.Manager {
			return progress.NewManager(clk, timing, func() progress.Renderer { return p.Locked(overlay.New(p.Root)) })
		}
	}
	return nil
}
