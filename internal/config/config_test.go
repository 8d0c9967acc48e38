package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ridopark/eventtrader/pkg/backtester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleYAML = `
mode: backtest
symbols: [aapl, " msft "]
start_date: "2024-01-01"
end_date: "2024-06-30"
initial_capital: 50000
timeframe: 1d
optimize_every: 20
strategy:
  name: ma_crossover
  parameters:
    short_period: 5
    long_period: 20
portfolio:
  policy: long_only
  sizing: equity
  sizing_value: 10
  order_kind: limit
  limit_expiry: 48h
  rebalance: quarterly
broker:
  commission: stepped
  slippage: 0.001
data:
  source: csv
  csv_dir: ./bars
  cache_dsn: "file:cache.db"
output:
  equity_curve: out/equity.csv
logging:
  level: debug
  pretty: false
`

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Symbols)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, 50000.0, cfg.InitialCapital)
	assert.Equal(t, 20, cfg.OptimizeEvery)
	assert.Equal(t, "ma_crossover", cfg.Strategy.Name)
	assert.EqualValues(t, 5, cfg.Strategy.Parameters["short_period"])
	assert.Equal(t, "LIMIT", cfg.Portfolio.OrderKind)
	assert.Equal(t, 48*time.Hour, cfg.Portfolio.LimitExpiry)
	assert.Equal(t, "stepped", cfg.Broker.Commission)
	assert.Equal(t, "csv", cfg.Data.Source)
	assert.Equal(t, "file:cache.db", cfg.Data.CacheDSN)
	assert.Equal(t, "out/equity.csv", cfg.Output.EquityCurve)
	assert.EqualValues(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Pretty)

	// untouched sections keep their defaults
	assert.Equal(t, 0.001, cfg.Broker.CommissionRate)
	assert.Equal(t, time.Minute, cfg.Heartbeat)
	assert.Equal(t, 5432, cfg.Data.Postgres.Port)
}

func TestEngineConfigCoversWholeEndDay(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	ec := cfg.Engine()
	assert.Equal(t, backtester.ModeBacktest, ec.Mode)
	assert.Equal(t, time.Date(2024, 6, 30, 23, 59, 59, 999999999, time.UTC), ec.EndDate)
	assert.Equal(t, []string{"AAPL", "MSFT"}, ec.Symbols)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADER_SYMBOLS", "TSLA,NVDA")
	t.Setenv("TRADER_BROKER_SLIPPAGE", "0.002")
	t.Setenv("TRADER_MODE", "live")
	t.Setenv("TRADER_HEARTBEAT", "30s")
	t.Setenv("POSTGRES_HOST", "db.internal")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"TSLA", "NVDA"}, cfg.Symbols)
	assert.Equal(t, 0.002, cfg.Broker.Slippage)
	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat)
	assert.Equal(t, "db.internal", cfg.Data.Postgres.Host)
	assert.Equal(t, "host=db.internal port=5432 user=postgres password= dbname=trading_data sslmode=disable",
		cfg.Data.Postgres.ConnectionString())
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"no symbols", nil, "symbols"},
		{"bad mode", map[string]string{"TRADER_MODE": "paper"}, "invalid engine mode"},
		{"bad capital", map[string]string{"TRADER_INITIAL_CAPITAL": "-1"}, "initial_capital"},
		{"bad sizing", map[string]string{"TRADER_PORTFOLIO_SIZING": "kelly"}, "portfolio.sizing"},
		{"bad order kind", map[string]string{"TRADER_PORTFOLIO_ORDER_KIND": "stop"}, "order_kind"},
		{"bad commission", map[string]string{"TRADER_BROKER_COMMISSION": "flat"}, "broker.commission"},
		{"bad source", map[string]string{"TRADER_DATA_SOURCE": "parquet"}, "data.source"},
		{"bad dates", map[string]string{"TRADER_START_DATE": "2024-02-01", "TRADER_END_DATE": "2024-01-01"}, "before start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want != "symbols" {
				t.Setenv("TRADER_SYMBOLS", "AAPL")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRejectsBadDate(t *testing.T) {
	_, err := Load(writeFile(t, "config.yaml", "symbols: [AAPL]\nstart_date: yesterday\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	loaded, err := LoadDotEnv(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.False(t, loaded)

	const key = "TRADER_TEST_DOTENV_VALUE"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	path := writeFile(t, ".env", key+"=from-file\n")

	loaded, err = LoadDotEnv(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "from-file", os.Getenv(key))
}
