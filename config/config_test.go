package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const sampleYAML = `
symbol: NIFTY
source:
  path: data/nifty.csv
run:
  initial: 50000
  slippage_bps: 5
strategies:
  - name: ma-trend
  - name: ma-trend
    id: ma-trend-weekly
    params:
      timeframe: weekly
      fast: 2
      slow: 40
redis:
  addr: localhost:6379
schedule:
  cron: "30 18 * * 1-5"
  http_addr: ":8080"
`

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeFile(t, sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "NIFTY", cfg.Symbol)
	assert.Equal(t, "file", cfg.Source.Kind, "default kept")
	assert.Equal(t, 50000.0, cfg.Run.Initial)
	assert.Equal(t, 2.0, cfg.Run.RiskFreeRate, "default kept")
	assert.Equal(t, 5, cfg.Redis.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.Redis.BreakerReset)

	specs := cfg.StrategySpecs()
	require.Len(t, specs, 2)
	assert.Nil(t, specs[0].Params)
	assert.Equal(t, "ma-trend", specs[0].Label())
	assert.Equal(t, "ma-trend-weekly", specs[1].Label())
	require.NotNil(t, specs[1].Params)
	assert.Equal(t, yaml.MappingNode, specs[1].Params.Kind)

	opts := cfg.Options()
	assert.Equal(t, "NIFTY", opts.Symbol)
	assert.Equal(t, 5.0, opts.SlippageBps)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BACKTEST_SYMBOL", "BANKNIFTY")
	t.Setenv("BACKTEST_RUN_INITIAL", "1000")
	t.Setenv("BACKTEST_REDIS_BREAKER_RESET", "5s")
	t.Setenv("BACKTEST_LOGGING_FORMAT", "text")
	t.Setenv("BACKTEST_REPORT_YEARLY", "false")
	t.Setenv("BACKTEST_NOTIFY_WEBHOOK_URL", "https://hooks.example.com/bt")

	cfg, err := Load(writeFile(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "BANKNIFTY", cfg.Symbol)
	assert.Equal(t, 1000.0, cfg.Run.Initial)
	assert.Equal(t, 5*time.Second, cfg.Redis.BreakerReset)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Report.Yearly)
	assert.True(t, cfg.Notify.Enabled())
	assert.True(t, cfg.Schedule.SkipHolidays, "default kept")
	assert.Len(t, cfg.Strategies, 2, "strategies never come from env")
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Run, cfg.Run)
	assert.Nil(t, cfg.StrategySpecs())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeFile(t, "symbol: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Symbol = "NIFTY"
		c.Source.Path = "nifty.csv"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing symbol", func(c *Config) { c.Symbol = "" }, "Config.Symbol"},
		{"bad source kind", func(c *Config) { c.Source.Kind = "ftp" }, "Config.Source.Kind"},
		{"file without path", func(c *Config) { c.Source.Path = "" }, "Config.Source.Path"},
		{"db without db", func(c *Config) { c.Source.Kind = "db" }, "Config.Source.DB"},
		{"zero capital", func(c *Config) { c.Run.Initial = 0 }, "Config.Run.Initial"},
		{"negative slippage", func(c *Config) { c.Run.SlippageBps = -1 }, "Config.Run.SlippageBps"},
		{"bad cron", func(c *Config) { c.Schedule.Cron = "every day" }, "Config.Schedule.Cron"},
		{"bad http addr", func(c *Config) { c.Schedule.HTTPAddr = "8080" }, "Config.Schedule.HTTPAddr"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Config.Logging.Level"},
		{"bad webhook", func(c *Config) { c.Notify.WebhookURL = "not a url" }, "Config.Notify.WebhookURL"},
		{"telegram without chat", func(c *Config) { c.Notify.TelegramToken = "t" }, "Config.Notify.TelegramChatID"},
		{"unnamed strategy", func(c *Config) { c.Strategies = []StrategyConfig{{ID: "x"}} }, "Config.Strategies[0].Name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	c := Default()
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Symbol")
	assert.Contains(t, err.Error(), "Config.Source.Path")
}
