// Package config loads the backtester configuration: built-in defaults,
// then an optional YAML file, then BACKTEST_* environment variables.
// Command-line flags are applied by the caller before Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/backtest"
	"swing-backtest/internal/stats"
)

// EnvPrefix prefixes every environment override, e.g. BACKTEST_SYMBOL or
// BACKTEST_REDIS_ADDR.
const EnvPrefix = "BACKTEST"

// Config is the complete backtester configuration.
type Config struct {
	Symbol     string           `yaml:"symbol" envconfig:"SYMBOL" validate:"required"`
	Source     SourceConfig     `yaml:"source" envconfig:"SOURCE"`
	Run        RunConfig        `yaml:"run" envconfig:"RUN"`
	Strategies []StrategyConfig `yaml:"strategies" ignored:"true" validate:"dive"`
	Journal    JournalConfig    `yaml:"journal" envconfig:"JOURNAL"`
	Redis      RedisConfig      `yaml:"redis" envconfig:"REDIS"`
	Metrics    MetricsConfig    `yaml:"metrics" envconfig:"METRICS"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Schedule   ScheduleConfig   `yaml:"schedule" envconfig:"SCHEDULE"`
	Report     ReportConfig     `yaml:"report" envconfig:"REPORT"`
	Notify     NotifyConfig     `yaml:"notify" envconfig:"NOTIFY"`
}

// SourceConfig selects where daily bars come from: a CSV/XLSX file or the
// bars table of a SQLite database.
type SourceConfig struct {
	Kind string `yaml:"kind" envconfig:"KIND" validate:"oneof=file db"`
	Path string `yaml:"path" envconfig:"PATH" validate:"required_if=Kind file"`
	DB   string `yaml:"db" envconfig:"DB" validate:"required_if=Kind db"`
}

// RunConfig tunes the simulation.
type RunConfig struct {
	Initial      float64 `yaml:"initial" envconfig:"INITIAL" validate:"gt=0"`
	RiskFreeRate float64 `yaml:"risk_free_rate" envconfig:"RISK_FREE_RATE" validate:"gte=0"`
	SlippageBps  float64 `yaml:"slippage_bps" envconfig:"SLIPPAGE_BPS" validate:"gte=0,lt=10000"`
	Parallelism  int     `yaml:"parallelism" envconfig:"PARALLELISM" validate:"gte=0"`
}

// StrategyConfig selects one strategy. Params are decoded by the strategy
// itself.
type StrategyConfig struct {
	Name   string    `yaml:"name" validate:"required"`
	ID     string    `yaml:"id"`
	Params yaml.Node `yaml:"params" validate:"-"`
}

// JournalConfig enables the SQLite results journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path" envconfig:"PATH"`
}

// RedisConfig enables the Redis publisher when Addr is set.
type RedisConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR"`
	Password        string        `yaml:"password" envconfig:"PASSWORD"`
	DB              int           `yaml:"db" envconfig:"DB" validate:"gte=0"`
	StreamMaxLen    int64         `yaml:"stream_max_len" envconfig:"STREAM_MAX_LEN" validate:"gte=0"`
	LatestTTL       time.Duration `yaml:"latest_ttl" envconfig:"LATEST_TTL" validate:"gte=0"`
	BreakerFailures int           `yaml:"breaker_failures" envconfig:"BREAKER_FAILURES" validate:"gte=1"`
	BreakerReset    time.Duration `yaml:"breaker_reset" envconfig:"BREAKER_RESET" validate:"gt=0"`
	MaxBuffered     int           `yaml:"max_buffered" envconfig:"MAX_BUFFERED" validate:"gte=0"`
}

// MetricsConfig enables the node_exporter textfile when Textfile is set.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" envconfig:"TEXTFILE"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// ScheduleConfig turns the backtester into a long-running process that
// re-runs on a cron schedule and optionally serves results over HTTP.
type ScheduleConfig struct {
	Cron     string `yaml:"cron" envconfig:"CRON" validate:"omitempty,cron"`
	HTTPAddr string `yaml:"http_addr" envconfig:"HTTP_ADDR" validate:"omitempty,hostname_port"`

	// SkipHolidays skips activations until a new NSE session has closed
	// once a first run has succeeded.
	SkipHolidays bool `yaml:"skip_holidays" envconfig:"SKIP_HOLIDAYS"`
}

// ReportConfig selects the optional report sections.
type ReportConfig struct {
	Currency string `yaml:"currency" envconfig:"CURRENCY"`
	Yearly   bool   `yaml:"yearly" envconfig:"YEARLY"`
	Trades   bool   `yaml:"trades" envconfig:"TRADES"`
}

// NotifyConfig enables run alerts. Any combination of channels may be set.
type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url" envconfig:"WEBHOOK_URL" validate:"omitempty,url"`
	TelegramToken  string `yaml:"telegram_token" envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID string `yaml:"telegram_chat_id" envconfig:"TELEGRAM_CHAT_ID" validate:"required_with=TelegramToken"`
	LossOnly       bool   `yaml:"loss_only" envconfig:"LOSS_ONLY"`
}

// Enabled reports whether any alert channel is configured.
func (n NotifyConfig) Enabled() bool {
	return n.WebhookURL != "" || n.TelegramToken != ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source: SourceConfig{Kind: "file"},
		Run: RunConfig{
			Initial:      stats.DefaultInitial,
			RiskFreeRate: stats.DefaultRiskFreeRate,
		},
		Redis: RedisConfig{
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
			MaxBuffered:     1000,
		},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Schedule: ScheduleConfig{SkipHolidays: true},
		Report:   ReportConfig{Currency: "₹", Yearly: true},
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and the environment. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config from env: %w", err)
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the configuration, reporting every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// StrategySpecs converts the configured strategies. An empty list yields
// nil; the caller decides what to run by default.
func (c *Config) StrategySpecs() []backtest.StrategySpec {
	if len(c.Strategies) == 0 {
		return nil
	}
	specs := make([]backtest.StrategySpec, 0, len(c.Strategies))
	for i := range c.Strategies {
		sc := &c.Strategies[i]
		spec := backtest.StrategySpec{Name: sc.Name, ID: sc.ID}
		if sc.Params.Kind != 0 {
			spec.Params = &sc.Params
		}
		specs = append(specs, spec)
	}
	return specs
}

// Options returns the backtest options for this configuration.
func (c *Config) Options() backtest.Options {
	return backtest.Options{
		Symbol:       c.Symbol,
		Initial:      c.Run.Initial,
		RiskFreeRate: c.Run.RiskFreeRate,
		SlippageBps:  c.Run.SlippageBps,
		Parallelism:  c.Run.Parallelism,
	}
}
