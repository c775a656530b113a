// Package config loads the backtest settings file once at startup.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"sp500-backtest/services/engine"
)

// EnvPrefix is prepended to every environment override, e.g. BACKTEST_STARTING_CAPITAL
const EnvPrefix = "BACKTEST"

var ErrInvalidSettings = errors.New("invalid settings")

type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
	GRPCPort int `mapstructure:"grpc_port"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type ClickHouseConfig struct {
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table"`
}

// Enabled reports whether a ClickHouse address was configured
func (c ClickHouseConfig) Enabled() bool { return c.Addr != "" }

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// JournalConfig selects the journal sinks; empty values disable a sink
type JournalConfig struct {
	CSVPath         string      `mapstructure:"csv_path"`
	ClickHouseTable string      `mapstructure:"clickhouse_table"`
	Kafka           KafkaConfig `mapstructure:"kafka"`
	MySQL           MySQLConfig `mapstructure:"mysql"`
}

// Settings mirrors config/settings.json
type Settings struct {
	Environment         string          `mapstructure:"environment"`
	Filters             map[string]bool `mapstructure:"filters"`
	StartingCapital     float64         `mapstructure:"starting_capital"`
	RiskPerTradePercent float64         `mapstructure:"risk_per_trade_percent"`
	MultiTP             bool            `mapstructure:"multi_tp"`
	NewsFilter          bool            `mapstructure:"news_filter"`
	DataDir             string          `mapstructure:"data_dir"`
	Asset               string          `mapstructure:"asset"`

	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Journal    JournalConfig    `mapstructure:"journal"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("starting_capital", 10000.0)
	v.SetDefault("risk_per_trade_percent", 1.0)
	v.SetDefault("multi_tp", false)
	v.SetDefault("news_filter", false)
	v.SetDefault("data_dir", "data")
	v.SetDefault("asset", "SPX")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9091)
	v.SetDefault("clickhouse.addr", "")
	v.SetDefault("clickhouse.database", "backtest")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.table", "bars")
	v.SetDefault("journal.csv_path", "")
	v.SetDefault("journal.clickhouse_table", "")
	v.SetDefault("journal.kafka.brokers", []string{})
	v.SetDefault("journal.kafka.topic", "backtest.journal")
	v.SetDefault("journal.mysql.dsn", "")
}

// Load reads the settings file (JSON, YAML or TOML by extension) and applies
// BACKTEST_* environment overrides. An empty path loads defaults only.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if s.Filters == nil {
		s.Filters = map[string]bool{}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings the engine would not accept
func (s *Settings) Validate() error {
	if s.StartingCapital <= 0 {
		return fmt.Errorf("%w: starting_capital must be positive, got %v", ErrInvalidSettings, s.StartingCapital)
	}
	// risk_per_trade_percent is passed through untouched; only garbage is refused
	if s.RiskPerTradePercent < 0 || math.IsNaN(s.RiskPerTradePercent) || math.IsInf(s.RiskPerTradePercent, 0) {
		return fmt.Errorf("%w: risk_per_trade_percent must be a non-negative number, got %v", ErrInvalidSettings, s.RiskPerTradePercent)
	}
	if _, err := engine.NewFilterSet(s.Filters); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if strings.TrimSpace(s.Asset) == "" {
		return fmt.Errorf("%w: asset is empty", ErrInvalidSettings)
	}
	return nil
}

// RunConfig converts the settings into the engine's run contract.
func (s *Settings) RunConfig() engine.RunConfig {
	filters, _ := engine.NewFilterSet(s.Filters) // checked by Validate
	return engine.RunConfig{
		Filters:         filters,
		StartingCapital: decimal.NewFromFloat(s.StartingCapital),
		RiskPerTradePct: s.RiskPerTradePercent,
		MultiTakeProfit: s.MultiTP,
		NewsFilter:      s.NewsFilter,
	}
}
