package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/ridopark/eventtrader/pkg/backtester"
	"github.com/ridopark/eventtrader/pkg/event"
	"github.com/ridopark/eventtrader/pkg/logging"
	"github.com/ridopark/eventtrader/pkg/strategy"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRADER_BROKER_SLIPPAGE
const EnvPrefix = "TRADER"

var ErrInvalidConfig = errors.New("invalid config")

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}

// Config is the full run configuration
type Config struct {
	Mode           string                  `mapstructure:"mode"`
	Symbols        []string                `mapstructure:"symbols"`
	StartDate      time.Time               `mapstructure:"start_date"`
	EndDate        time.Time               `mapstructure:"end_date"`
	InitialCapital float64                 `mapstructure:"initial_capital"`
	Timeframe      string                  `mapstructure:"timeframe"`
	OptimizeEvery  int                     `mapstructure:"optimize_every"`
	Heartbeat      time.Duration           `mapstructure:"heartbeat"`
	Strategy       strategy.StrategyConfig `mapstructure:"strategy"`
	Portfolio      PortfolioConfig         `mapstructure:"portfolio"`
	Broker         BrokerConfig            `mapstructure:"broker"`
	Data           DataConfig              `mapstructure:"data"`
	Output         OutputConfig            `mapstructure:"output"`
	Logging        logging.Config          `mapstructure:"logging"`
}

type PortfolioConfig struct {
	Policy      string        `mapstructure:"policy"`
	Sizing      string        `mapstructure:"sizing"`
	SizingValue float64       `mapstructure:"sizing_value"`
	OrderKind   string        `mapstructure:"order_kind"`
	LimitExpiry time.Duration `mapstructure:"limit_expiry"`
	Rebalance   string        `mapstructure:"rebalance"`
}

type BrokerConfig struct {
	Commission     string  `mapstructure:"commission"`
	CommissionRate float64 `mapstructure:"commission_rate"`
	Slippage       float64 `mapstructure:"slippage"`
}

// DataConfig selects where bars come from. CacheDSN, when set, puts a SQLite
// store in front of the source.
type DataConfig struct {
	Source   string         `mapstructure:"source"`
	CSVDir   string         `mapstructure:"csv_dir"`
	CacheDSN string         `mapstructure:"cache_dsn"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnectionString returns DSN when set, otherwise a lib/pq keyword string
func (p PostgresConfig) ConnectionString() string {
	if p.DSN != "" {
		return p.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type OutputConfig struct {
	EquityCurve string `mapstructure:"equity_curve"`
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are not an error; existing variables are never overridden.
func LoadDotEnv(files ...string) (bool, error) {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load env file: %w", err)
	}
	return true, nil
}

// Load reads the YAML file at path (optional) and applies TRADER_* overrides.
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the unprefixed names are the ones docker-compose files already export
	for key, env := range map[string]string{
		"data.postgres.host":     "POSTGRES_HOST",
		"data.postgres.port":     "POSTGRES_PORT",
		"data.postgres.user":     "POSTGRES_USER",
		"data.postgres.password": "POSTGRES_PASSWORD",
		"data.postgres.dbname":   "POSTGRES_DB",
		"logging.level":          "LOG_LEVEL",
	} {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDateHook(),
		)
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := logging.DefaultConfig()

	v.SetDefault("mode", string(backtester.ModeBacktest))
	v.SetDefault("symbols", []string{})
	v.SetDefault("start_date", "")
	v.SetDefault("end_date", "")
	v.SetDefault("initial_capital", 100000.0)
	v.SetDefault("timeframe", "1d")
	v.SetDefault("optimize_every", 0)
	v.SetDefault("heartbeat", "1m")

	v.SetDefault("strategy.name", "buy_and_hold")
	v.SetDefault("strategy.symbols", []string{})

	v.SetDefault("portfolio.policy", "default")
	v.SetDefault("portfolio.sizing", "fixed")
	v.SetDefault("portfolio.sizing_value", 100)
	v.SetDefault("portfolio.order_kind", string(event.OrderKindMarket))
	v.SetDefault("portfolio.limit_expiry", "72h")
	v.SetDefault("portfolio.rebalance", "none")

	v.SetDefault("broker.commission", "percentage")
	v.SetDefault("broker.commission_rate", 0.001)
	v.SetDefault("broker.slippage", 0.0)

	v.SetDefault("data.source", "timescaledb")
	v.SetDefault("data.csv_dir", "data")
	v.SetDefault("data.cache_dsn", "")
	v.SetDefault("data.postgres.dsn", "")
	v.SetDefault("data.postgres.host", "localhost")
	v.SetDefault("data.postgres.port", 5432)
	v.SetDefault("data.postgres.user", "postgres")
	v.SetDefault("data.postgres.password", "")
	v.SetDefault("data.postgres.dbname", "trading_data")
	v.SetDefault("data.postgres.sslmode", "disable")

	v.SetDefault("output.equity_curve", "")

	v.SetDefault("logging.level", string(defaults.Level))
	v.SetDefault("logging.pretty", defaults.Pretty)
	v.SetDefault("logging.time_format", defaults.TimeFormat)
	v.SetDefault("logging.enable_file", defaults.EnableFile)
	v.SetDefault("logging.log_dir", defaults.LogDir)
	v.SetDefault("logging.log_file", defaults.LogFileName)
	v.SetDefault("logging.max_size_mb", defaults.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.MaxBackups)
	v.SetDefault("logging.max_age_days", defaults.MaxAgeDays)
}

// stringToDateHook accepts plain dates as well as full timestamps
func stringToDateHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
			return data, nil
		}
		s := strings.TrimSpace(data.(string))
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
}

func (c *Config) normalize() {
	symbols := c.Symbols[:0]
	for _, s := range c.Symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			symbols = append(symbols, s)
		}
	}
	c.Symbols = symbols
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Data.Source = strings.ToLower(strings.TrimSpace(c.Data.Source))
	c.Portfolio.OrderKind = strings.ToUpper(strings.TrimSpace(c.Portfolio.OrderKind))
}

// Engine returns the engine's view of the config. A date-only end date
// covers the whole day.
func (c *Config) Engine() backtester.Config {
	end := c.EndDate
	if !end.IsZero() && end.Equal(end.Truncate(24*time.Hour)) {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	symbols := make([]string, len(c.Symbols))
	copy(symbols, c.Symbols)
	return backtester.Config{
		Mode:           backtester.Mode(c.Mode),
		Symbols:        symbols,
		StartDate:      c.StartDate,
		EndDate:        end,
		InitialCapital: c.InitialCapital,
		Timeframe:      c.Timeframe,
		OptimizeEvery:  c.OptimizeEvery,
		Heartbeat:      c.Heartbeat,
	}
}
