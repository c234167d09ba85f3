package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/nnfix/internal/app"
)

// configFlags binds persistent flags to a Config holding the defaults, and
// copies only the flags the user actually set onto the layered config.
type configFlags struct {
	v      app.Config
	bound  []binding
	config string
	env    []string
}

type binding struct {
	name string
	copy func(dst *app.Config)
}

func newConfigFlags(cmd *cobra.Command) *configFlags {
	f := &configFlags{v: app.Defaults()}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.config, "config", "", "Path to YAML or JSON config file")
	pf.StringSliceVar(&f.env, "env-file", []string{".env"}, "Dotenv files to load before reading the environment")

	f.str(cmd, "apertium.url", "Apertium APy base URL (env APERTIUM_URL)", func(c *app.Config) *string { return &c.ApertiumURL })
	f.str(cmd, "langpair", "Translation language pair", func(c *app.Config) *string { return &c.LangPair })
	f.str(cmd, "user-agent", "User-Agent for the service and fetched pages", func(c *app.Config) *string { return &c.UserAgent })
	f.dur(cmd, "service.timeout", "Per-request timeout for the translation service", func(c *app.Config) *time.Duration { return &c.ServiceTimeout })
	f.num(cmd, "memo.size", "Remembered corrections per process (0 disables)", func(c *app.Config) *int { return &c.MemoSize })
	f.num(cmd, "service.maxInFlight", "Cap on concurrent translation requests across all pages (0 unlimited)", func(c *app.Config) *int { return &c.MaxInFlight })
	f.str(cmd, "backend", "Correction backend: apertium or llm", func(c *app.Config) *string { return &c.Backend })
	f.str(cmd, "identifier", "Language identifier: apertium or lingua", func(c *app.Config) *string { return &c.Identifier })
	f.str(cmd, "llm.base", "OpenAI-compatible base URL (env LLM_BASE_URL)", func(c *app.Config) *string { return &c.LLMBaseURL })
	f.str(cmd, "llm.model", "Model name (env LLM_MODEL)", func(c *app.Config) *string { return &c.LLMModel })
	f.str(cmd, "llm.key", "API key (env LLM_API_KEY)", func(c *app.Config) *string { return &c.LLMAPIKey })

	f.str(cmd, "source", "ISO 639-3 code of the variant to convert", func(c *app.Config) *string { return &c.SourceCode })
	f.float(cmd, "threshold", "Minimum identification score to trigger automatic correction", func(c *app.Config) *float64 { return &c.Threshold })
	f.num(cmd, "min-sample", "Minimum sample characters for identification", func(c *app.Config) *int { return &c.MinSample })
	f.num(cmd, "sample-budget", "Maximum sample characters sent for identification", func(c *app.Config) *int { return &c.SampleBudget })
	f.dur(cmd, "window", "Suppress re-checking a page for this long", func(c *app.Config) *time.Duration { return &c.DedupWindow })
	f.str(cmd, "redis", "Redis address for a shared dedup cache (env REDIS_ADDR)", func(c *app.Config) *string { return &c.RedisAddr })

	f.num(cmd, "batch-size", "Concurrent corrections per batch", func(c *app.Config) *int { return &c.BatchSize })
	f.dur(cmd, "batch-delay", "Pause between batches (negative disables)", func(c *app.Config) *time.Duration { return &c.BatchDelay })

	f.str(cmd, "renderer", "Progress display: terminal, overlay or none", func(c *app.Config) *string { return &c.Renderer })
	f.dur(cmd, "hold", "How long the completed indicator stays visible", func(c *app.Config) *time.Duration { return &c.IndicatorHold })
	f.dur(cmd, "fade", "Indicator fade-out duration", func(c *app.Config) *time.Duration { return &c.IndicatorFade })

	f.str(cmd, "cache.dir", "Page cache directory", func(c *app.Config) *string { return &c.CacheDir })
	f.dur(cmd, "cache.maxAge", "Purge cached pages older than this (0 keeps them)", func(c *app.Config) *time.Duration { return &c.CacheMaxAge })
	f.flag(cmd, "cache.clear", "Clear the page cache before running", func(c *app.Config) *bool { return &c.CacheClear })
	f.flag(cmd, "cache.strictPerms", "Restrict cache permissions (0700 dirs, 0600 files)", func(c *app.Config) *bool { return &c.CacheStrictPerms })
	f.flag(cmd, "cache.bypass", "Refetch pages without revalidating cached copies", func(c *app.Config) *bool { return &c.CacheBypass })
	f.flag(cmd, "chrome", "Load pages in headless Chrome to honour computed styles", func(c *app.Config) *bool { return &c.Chrome })
	f.dur(cmd, "chrome.timeout", "Time limit for loading and rendering one page in Chrome", func(c *app.Config) *time.Duration { return &c.ChromeTimeout })
	f.flag(cmd, "chrome.headful", "Show the Chrome window while rendering", func(c *app.Config) *bool { return &c.ChromeHeadful })
	f.str(cmd, "chrome.path", "Chrome binary path", func(c *app.Config) *string { return &c.ChromePath })
	f.str(cmd, "listen", "Address for the serve command", func(c *app.Config) *string { return &c.ListenAddr })

	pf.BoolVarP(&f.v.Verbose, "verbose", "v", false, "Verbose logging")
	f.bound = append(f.bound, binding{"verbose", func(dst *app.Config) { dst.Verbose = f.v.Verbose }})
	return f
}

func (f *configFlags) str(cmd *cobra.Command, name, usage string, field func(*app.Config) *string) {
	p := field(&f.v)
	cmd.PersistentFlags().StringVar(p, name, *p, usage)
	f.bound = append(f.bound, binding{name, func(dst *app.Config) { *field(dst) = *p }})
}

func (f *configFlags) num(cmd *cobra.Command, name, usage string, field func(*app.Config) *int) {
	p := field(&f.v)
	cmd.PersistentFlags().IntVar(p, name, *p, usage)
	f.bound = append(f.bound, binding{name, func(dst *app.Config) { *field(dst) = *p }})
}

func (f *configFlags) float(cmd *cobra.Command, name, usage string, field func(*app.Config) *float64) {
	p := field(&f.v)
	cmd.PersistentFlags().Float64Var(p, name, *p, usage)
	f.bound = append(f.bound, binding{name, func(dst *app.Config) { *field(dst) = *p }})
}

func (f *configFlags) dur(cmd *cobra.Command, name, usage string, field func(*app.Config) *time.Duration) {
	p := field(&f.v)
	cmd.PersistentFlags().DurationVar(p, name, *p, usage)
	f.bound = append(f.bound, binding{name, func(dst *app.Config) { *field(dst) = *p }})
}

func (f *configFlags) flag(cmd *cobra.Command, name, usage string, field func(*app.Config) *bool) {
	p := field(&f.v)
	cmd.PersistentFlags().BoolVar(p, name, *p, usage)
	f.bound = append(f.bound, binding{name, func(dst *app.Config) { *field(dst) = *p }})
}

// resolve layers defaults, config file, environment and changed flags, in
// increasing precedence.
func (f *configFlags) resolve(cmd *cobra.Command) (app.Config, error) {
	if err := app.LoadEnvFiles(f.env...); err != nil {
		return app.Config{}, err
	}
	cfg := app.Defaults()
	if f.config != "" {
		fc, err := app.LoadConfigFile(f.config)
		if err != nil {
			return app.Config{}, err
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	for _, b := range f.bound {
		if cmd.Flags().Changed(b.name) {
			b.copy(&cfg)
		}
	}
	return cfg, nil
}
