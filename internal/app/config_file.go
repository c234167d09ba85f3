package app

import (
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "time"

    yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
    Service struct {
        URL         string        `yaml:"url" json:"url"`
        LangPair    string        `yaml:"langPair" json:"langPair"`
        UserAgent   string        `yaml:"userAgent" json:"userAgent"`
        Timeout     time.Duration `yaml:"timeout" json:"timeout"`
        MemoSize    int           `yaml:"memoSize" json:"memoSize"`
        MaxInFlight int           `yaml:"maxInFlight" json:"maxInFlight"`
    } `yaml:"service" json:"service"`

    Backend    string `yaml:"backend" json:"backend"`
    Identifier string `yaml:"identifier" json:"identifier"`

    LLM struct {
        BaseURL      string `yaml:"base" json:"base"`
        Model        string `yaml:"model" json:"model"`
        APIKey       string `yaml:"key" json:"key"`
        SystemPrompt string `yaml:"systemPrompt" json:"systemPrompt"`
    } `yaml:"llm" json:"llm"`

    Gate struct {
        Source       string        `yaml:"source" json:"source"`
        Threshold    *float64      `yaml:"threshold" json:"threshold"`
        MinSample    int           `yaml:"minSample" json:"minSample"`
        SampleBudget int           `yaml:"sampleBudget" json:"sampleBudget"`
        Window       time.Duration `yaml:"window" json:"window"`
        Redis        string        `yaml:"redis" json:"redis"`
    } `yaml:"gate" json:"gate"`

    Engine struct {
        BatchSize  int            `yaml:"batchSize" json:"batchSize"`
        BatchDelay *time.Duration `yaml:"batchDelay" json:"batchDelay"`
    } `yaml:"engine" json:"engine"`

    Indicator struct {
        Renderer string        `yaml:"renderer" json:"renderer"`
        Hold     time.Duration `yaml:"hold" json:"hold"`
        Fade     time.Duration `yaml:"fade" json:"fade"`
    } `yaml:"indicator" json:"indicator"`

    Cache struct {
        Dir         string        `yaml:"dir" json:"dir"`
        MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
        Clear       bool          `yaml:"clear" json:"clear"`
        StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
        Bypass      bool          `yaml:"bypass" json:"bypass"`
    } `yaml:"cache" json:"cache"`

    Chrome struct {
        Enable  bool          `yaml:"enable" json:"enable"`
        Path    string        `yaml:"path" json:"path"`
        Timeout time.Duration `yaml:"timeout" json:"timeout"`
        Headful bool          `yaml:"headful" json:"headful"`
    } `yaml:"chrome" json:"chrome"`

    Listen  string `yaml:"listen" json:"listen"`
    Verbose bool   `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
    var fc FileConfig
    b, err := os.ReadFile(path)
    if err != nil {
        return fc, err
    }
    switch filepath.Ext(path) {
    case ".yaml", ".yml":
        if err := yaml.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse yaml: %w", err)
        }
    case ".json":
        if err := json.Unmarshal(b, &fc); err != nil {
            return fc, fmt.Errorf("parse json: %w", err)
        }
    default:
        if err := yaml.Unmarshal(b, &fc); err != nil {
            if jerr := json.Unmarshal(b, &fc); jerr != nil {
                return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
            }
        }
    }
    return fc, nil
}

// ApplyFileConfig overlays every value set in fc onto cfg. It runs on top
// of Defaults and below env and flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
    if cfg == nil { return }

    str := func(dst *string, v string) { if v != "" { *dst = v } }
    num := func(dst *int, v int) { if v > 0 { *dst = v } }
    dur := func(dst *time.Duration, v time.Duration) { if v > 0 { *dst = v } }

    str(&cfg.ApertiumURL, fc.Service.URL)
    str(&cfg.LangPair, fc.Service.LangPair)
    str(&cfg.UserAgent, fc.Service.UserAgent)
    dur(&cfg.ServiceTimeout, fc.Service.Timeout)
    num(&cfg.MemoSize, fc.Service.MemoSize)
    num(&cfg.MaxInFlight, fc.Service.MaxInFlight)
    str(&cfg.Backend, fc.Backend)
    str(&cfg.Identifier, fc.Identifier)

    str(&cfg.LLMBaseURL, fc.LLM.BaseURL)
    str(&cfg.LLMModel, fc.LLM.Model)
    str(&cfg.LLMAPIKey, fc.LLM.APIKey)
    str(&cfg.LLMSystemPrompt, fc.LLM.SystemPrompt)

    str(&cfg.SourceCode, fc.Gate.Source)
    if fc.Gate.Threshold != nil { cfg.Threshold = *fc.Gate.Threshold }
    num(&cfg.MinSample, fc.Gate.MinSample)
    num(&cfg.SampleBudget, fc.Gate.SampleBudget)
    dur(&cfg.DedupWindow, fc.Gate.Window)
    str(&cfg.RedisAddr, fc.Gate.Redis)

    num(&cfg.BatchSize, fc.Engine.BatchSize)
    if fc.Engine.BatchDelay != nil { cfg.BatchDelay = *fc.Engine.BatchDelay }

    str(&cfg.Renderer, fc.Indicator.Renderer)
    dur(&cfg.IndicatorHold, fc.Indicator.Hold)
    dur(&cfg.IndicatorFade, fc.Indicator.Fade)

    str(&cfg.CacheDir, fc.Cache.Dir)
    dur(&cfg.CacheMaxAge, fc.Cache.MaxAge)
    if fc.Cache.Clear { cfg.CacheClear = true }
    if fc.Cache.StrictPerms { cfg.CacheStrictPerms = true }
    if fc.Cache.Bypass { cfg.CacheBypass = true }
    if fc.Chrome.Enable { cfg.Chrome = true }
    str(&cfg.ChromePath, fc.Chrome.Path)
    dur(&cfg.ChromeTimeout, fc.Chrome.Timeout)
    if fc.Chrome.Headful { cfg.ChromeHeadful = true }

    str(&cfg.ListenAddr, fc.Listen)
    if fc.Verbose { cfg.Verbose = true }
}
