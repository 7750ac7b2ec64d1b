package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Agents     AgentsConfig     `yaml:"agents" mapstructure:"agents"`
	Lock       LockConfig       `yaml:"lock" mapstructure:"lock"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the document store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	Model            string `yaml:"model" mapstructure:"model"`
	WebSearchMaxUses int    `yaml:"web_search_max_uses" mapstructure:"web_search_max_uses"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SearchConfig selects and guards the web-search-capable model.
type SearchConfig struct {
	Provider                string  `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs             int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute       float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxAttempts             int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs            int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	CircuitFailureThreshold int     `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// AgentsConfig tunes the tracking orchestrators.
type AgentsConfig struct {
	DetectionMaxTokens int `yaml:"detection_max_tokens" mapstructure:"detection_max_tokens"`
	MonitorMaxTokens   int `yaml:"monitor_max_tokens" mapstructure:"monitor_max_tokens"`
	RecapMaxTokens     int `yaml:"recap_max_tokens" mapstructure:"recap_max_tokens"`
	CasesMaxTokens     int `yaml:"cases_max_tokens" mapstructure:"cases_max_tokens"`
	MonitorConcurrency int `yaml:"monitor_concurrency" mapstructure:"monitor_concurrency"`
	DedupMarginDays    int `yaml:"dedup_margin_days" mapstructure:"dedup_margin_days"`
	RunTimeoutMins     int `yaml:"run_timeout_mins" mapstructure:"run_timeout_mins"`
	// CheckSourceLinks verifies new sources with HTTP requests before saving.
	CheckSourceLinks bool `yaml:"check_source_links" mapstructure:"check_source_links"`
}

// LockConfig configures the per-agent run lease.
type LockConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"` // "redis", "local" or "none"
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLMins  int    `yaml:"ttl_mins" mapstructure:"ttl_mins"`
}

// ServerConfig configures the trigger server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CronSecret     string   `yaml:"cron_secret" mapstructure:"cron_secret"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// ScheduleConfig holds cron specs (seconds field first) for the in-process
// scheduler. An empty spec disables that agent.
type ScheduleConfig struct {
	Detection string `yaml:"detection" mapstructure:"detection"`
	Monitor   string `yaml:"monitor" mapstructure:"monitor"`
	Recap     string `yaml:"recap" mapstructure:"recap"`
	Cases     string `yaml:"cases" mapstructure:"cases"`
}

// MonitoringConfig configures agent health checks and alerting.
type MonitoringConfig struct {
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleAfterHours      int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic            map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	WebSearchPerThousand float64                 `yaml:"web_search_per_thousand" mapstructure:"web_search_per_thousand"`
	Perplexity           PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials have no default but must be known keys so env overrides
	// reach Unmarshal.
	for _, key := range []string{
		"store.database_url", "anthropic.key", "perplexity.key",
		"server.cron_secret", "lock.redis_url", "monitoring.webhook_url",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.web_search_max_uses", 5)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("search.provider", "anthropic")
	v.SetDefault("search.timeout_secs", 120)
	v.SetDefault("search.requests_per_minute", 20)
	v.SetDefault("search.max_attempts", 1)
	v.SetDefault("search.initial_backoff_ms", 1000)
	v.SetDefault("search.max_backoff_ms", 15000)
	v.SetDefault("search.circuit_failure_threshold", 5)
	v.SetDefault("search.circuit_reset_secs", 60)
	v.SetDefault("agents.detection_max_tokens", 4000)
	v.SetDefault("agents.monitor_max_tokens", 2000)
	v.SetDefault("agents.recap_max_tokens", 6000)
	v.SetDefault("agents.cases_max_tokens", 4000)
	v.SetDefault("agents.monitor_concurrency", 1)
	v.SetDefault("agents.dedup_margin_days", 7)
	v.SetDefault("agents.run_timeout_mins", 5)
	v.SetDefault("agents.check_source_links", false)
	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttl_mins", 10)
	v.SetDefault("schedule.detection", "0 0 8 * * *")
	v.SetDefault("schedule.monitor", "0 0 9 * * *")
	v.SetDefault("schedule.recap", "0 0 6 1 * *")
	v.SetDefault("schedule.cases", "0 30 8 * * *")
	v.SetDefault("monitoring.lookback_hours", 72)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.stale_after_hours", 48)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("pricing.web_search_per_thousand", 10.0)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.perplexity.per_mtok", 1.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by a command mode: "agents" (any
// orchestrator run), "serve" (agents plus the trigger server) or "store"
// (commands that only touch the database).
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store":
		errs = append(errs, c.validateStore()...)
	case "agents":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateAgents()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateAgents()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.CronSecret == "" {
			errs = append(errs, "server.cron_secret is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	return errs
}

func (c *Config) validateAgents() []string {
	var errs []string
	switch c.Search.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "perplexity":
		if c.Perplexity.Key == "" {
			errs = append(errs, "perplexity.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("search.provider %q is not supported", c.Search.Provider))
	}
	if c.Agents.MonitorConcurrency < 1 || c.Agents.MonitorConcurrency > 20 {
		errs = append(errs, "agents.monitor_concurrency must be between 1 and 20")
	}
	if c.Agents.DedupMarginDays < 0 {
		errs = append(errs, "agents.dedup_margin_days must be >= 0")
	}
	switch c.Lock.Driver {
	case "redis":
		if c.Lock.RedisURL == "" {
			errs = append(errs, "lock.redis_url is required")
		}
	case "local", "none":
	default:
		errs = append(errs, fmt.Sprintf("lock.driver %q is not supported", c.Lock.Driver))
	}
	return errs
}

// Redacted returns a copy with credentials masked, for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.Anthropic.Key = mask(c.Anthropic.Key)
	c.Perplexity.Key = mask(c.Perplexity.Key)
	c.Server.CronSecret = mask(c.Server.CronSecret)
	c.Store.DatabaseURL = mask(c.Store.DatabaseURL)
	c.Lock.RedisURL = mask(c.Lock.RedisURL)
	c.Monitoring.WebhookURL = mask(c.Monitoring.WebhookURL)
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
