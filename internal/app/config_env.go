package app

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. Call it after ApplyFileConfig so env beats the file, and before flags
// so explicit flags win.
func ApplyEnvOverrides(cfg *Config) {
    if cfg == nil { return }

    setString := func(dst *string, keys ...string) {
        for _, k := range keys {
            if v := strings.TrimSpace(os.Getenv(k)); v != "" {
                *dst = v
                return
            }
        }
    }
    setInt := func(dst *int, key string) {
        if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
            *dst = n
        }
    }
    setFloat := func(dst *float64, key string) {
        if f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64); err == nil {
            *dst = f
        }
    }
    setDuration := func(dst *time.Duration, key string) {
        if d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key))); err == nil {
            *dst = d
        }
    }
    setBool := func(dst *bool, key string) {
        switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
        case "1", "true", "yes", "on":
            *dst = true
        case "0", "false", "no", "off":
            *dst = false
        }
    }

    setString(&cfg.ApertiumURL, "NNFIX_APERTIUM_URL", "APERTIUM_URL")
    setString(&cfg.LangPair, "NNFIX_LANGPAIR")
    setString(&cfg.UserAgent, "NNFIX_USER_AGENT")
    setDuration(&cfg.ServiceTimeout, "NNFIX_SERVICE_TIMEOUT")
    setInt(&cfg.MemoSize, "NNFIX_MEMO_SIZE")
    setInt(&cfg.MaxInFlight, "NNFIX_MAX_IN_FLIGHT")
    setString(&cfg.Backend, "NNFIX_BACKEND")
    setString(&cfg.LLMBaseURL, "LLM_BASE_URL")
    setString(&cfg.LLMModel, "LLM_MODEL")
    setString(&cfg.LLMAPIKey, "LLM_API_KEY")

    setString(&cfg.Identifier, "NNFIX_IDENTIFIER")
    setString(&cfg.SourceCode, "NNFIX_SOURCE")
    setFloat(&cfg.Threshold, "NNFIX_THRESHOLD")
    setInt(&cfg.MinSample, "NNFIX_MIN_SAMPLE")
    setInt(&cfg.SampleBudget, "NNFIX_SAMPLE_BUDGET")
    setDuration(&cfg.DedupWindow, "NNFIX_DEDUP_WINDOW")
    setString(&cfg.RedisAddr, "NNFIX_REDIS_ADDR", "REDIS_ADDR")

    setInt(&cfg.BatchSize, "NNFIX_BATCH_SIZE")
    setDuration(&cfg.BatchDelay, "NNFIX_BATCH_DELAY")

    setString(&cfg.Renderer, "NNFIX_RENDERER")
    setDuration(&cfg.IndicatorHold, "NNFIX_INDICATOR_HOLD")
    setDuration(&cfg.IndicatorFade, "NNFIX_INDICATOR_FADE")

    setString(&cfg.CacheDir, "NNFIX_CACHE_DIR", "CACHE_DIR")
    setDuration(&cfg.CacheMaxAge, "NNFIX_CACHE_MAX_AGE")
    setBool(&cfg.CacheClear, "NNFIX_CACHE_CLEAR")
    setBool(&cfg.CacheStrictPerms, "NNFIX_CACHE_STRICT_PERMS")
    setBool(&cfg.CacheBypass, "NNFIX_CACHE_BYPASS")
    setBool(&cfg.Chrome, "NNFIX_CHROME")
    setString(&cfg.ChromePath, "NNFIX_CHROME_PATH")
    setDuration(&cfg.ChromeTimeout, "NNFIX_CHROME_TIMEOUT")
    setBool(&cfg.ChromeHeadful, "NNFIX_CHROME_HEADFUL")

    setString(&cfg.ListenAddr, "NNFIX_LISTEN")
    setBool(&cfg.Verbose, "NNFIX_VERBOSE")
}
