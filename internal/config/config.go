// Package config loads and validates the application configuration from a
// YAML file with environment overrides. Unknown keys are rejected so a typo
// fails at startup instead of silently running with a default.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"tokenradar/internal/domain"
)

// Config is the full application configuration.
type Config struct {
	Scanner ScannerConfig `mapstructure:"scanner"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Trading TradingConfig `mapstructure:"trading"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// ScannerConfig controls token discovery and enrichment.
type ScannerConfig struct {
	ScanIntervalSeconds int      `mapstructure:"scan_interval_seconds"`
	TokensPerScan       int      `mapstructure:"tokens_per_scan"`
	Chains              []string `mapstructure:"chains"`
	MarketBaseURL       string   `mapstructure:"market_base_url"`
	SecurityBaseURL     string   `mapstructure:"security_base_url"`

	// NitterBaseURL enables social enrichment when set.
	NitterBaseURL string `mapstructure:"nitter_base_url"`
}

// MonitorConfig controls open-position tracking.
type MonitorConfig struct {
	IntervalSeconds int `mapstructure:"monitor_interval_seconds"`
}

// TradingConfig controls signal execution and its safety rails.
type TradingConfig struct {
	MaxPositionSizePct   float64 `mapstructure:"max_position_size_pct"`
	MaxOpenPositions     int     `mapstructure:"max_open_positions"`
	MaxDailyTrades       int     `mapstructure:"max_daily_trades"`
	MaxDailyLossUSD      float64 `mapstructure:"max_daily_loss_usd"`
	EmergencyStop        bool    `mapstructure:"emergency_stop"`
	MinConfidenceToTrade float64 `mapstructure:"min_confidence_to_trade"`
	DefaultSlippagePct   float64 `mapstructure:"default_slippage_pct"`

	// RPCURLs maps chain name to its JSON-RPC endpoint.
	RPCURLs map[string]string `mapstructure:"rpc_urls"`

	// WalletKey and OpenAIAPIKey are secrets. They are expected from the
	// environment, never written to logs or API responses.
	WalletKey    string `mapstructure:"wallet_key"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`
}

// CacheConfig bounds the in-memory token cache.
type CacheConfig struct {
	MaxEntries int `mapstructure:"cache_max_entries"`
	TTLHours   int `mapstructure:"cache_ttl_hours"`
}

// StorageConfig selects the persistence backends. Empty DSNs fall back to
// in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads the config file at path (optional) and applies TOKENRADAR_*
// environment overrides. Returns an error on unknown keys or invalid values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TOKENRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scanner.scan_interval_seconds", 300)
	v.SetDefault("scanner.tokens_per_scan", 10)
	v.SetDefault("monitor.monitor_interval_seconds", 30)
	v.SetDefault("trading.max_position_size_pct", 10.0)
	v.SetDefault("trading.max_open_positions", 5)
	v.SetDefault("trading.max_daily_trades", 10)
	v.SetDefault("trading.max_daily_loss_usd", 100.0)
	v.SetDefault("trading.emergency_stop", false)
	v.SetDefault("trading.min_confidence_to_trade", 60.0)
	v.SetDefault("trading.default_slippage_pct", 1.0)
	v.SetDefault("cache.cache_max_entries", 200)
	v.SetDefault("cache.cache_ttl_hours", 48)
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("log.level", "info")
}

// Validate checks ranges. The scan interval floor keeps the scanner inside
// the public feeds' rate limits.
func (c *Config) Validate() error {
	var problems []string

	if c.Scanner.ScanIntervalSeconds < 60 {
		problems = append(problems, "scanner.scan_interval_seconds must be at least 60")
	}
	if c.Scanner.TokensPerScan < 1 || c.Scanner.TokensPerScan > 50 {
		problems = append(problems, "scanner.tokens_per_scan must be within [1, 50]")
	}
	for _, raw := range c.Scanner.Chains {
		if _, ok := domain.NormalizeChain(raw); !ok {
			problems = append(problems, fmt.Sprintf("scanner.chains: unsupported chain %q", raw))
		}
	}
	if c.Monitor.IntervalSeconds < 5 {
		problems = append(problems, "monitor.monitor_interval_seconds must be at least 5")
	}
	if c.Trading.MaxPositionSizePct <= 0 || c.Trading.MaxPositionSizePct > 100 {
		problems = append(problems, "trading.max_position_size_pct must be within (0, 100]")
	}
	if c.Trading.MaxOpenPositions < 1 {
		problems = append(problems, "trading.max_open_positions must be at least 1")
	}
	if c.Trading.MaxDailyTrades < 1 {
		problems = append(problems, "trading.max_daily_trades must be at least 1")
	}
	if c.Trading.MinConfidenceToTrade < 0 || c.Trading.MinConfidenceToTrade > 100 {
		problems = append(problems, "trading.min_confidence_to_trade must be within [0, 100]")
	}
	if c.Trading.DefaultSlippagePct < 0 || c.Trading.DefaultSlippagePct > 100 {
		problems = append(problems, "trading.default_slippage_pct must be within [0, 100]")
	}
	if c.Cache.MaxEntries < 1 {
		problems = append(problems, "cache.cache_max_entries must be at least 1")
	}
	if c.Cache.TTLHours < 1 {
		problems = append(problems, "cache.cache_ttl_hours must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EnabledChains resolves the configured chain list to canonical chains.
// An empty list means all supported chains.
func (c *Config) EnabledChains() []domain.Chain {
	if len(c.Scanner.Chains) == 0 {
		return domain.SupportedChains
	}
	out := make([]domain.Chain, 0, len(c.Scanner.Chains))
	for _, raw := range c.Scanner.Chains {
		if chain, ok := domain.NormalizeChain(raw); ok {
			out = append(out, chain)
		}
	}
	return out
}

// Redacted returns a loggable view of the config with secrets masked.
func (c *Config) Redacted() map[string]any {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "[redacted]"
	}
	return map[string]any{
		"scanner": c.Scanner,
		"monitor": c.Monitor,
		"trading": map[string]any{
			"max_position_size_pct":   c.Trading.MaxPositionSizePct,
			"max_open_positions":      c.Trading.MaxOpenPositions,
			"max_daily_trades":        c.Trading.MaxDailyTrades,
			"max_daily_loss_usd":      c.Trading.MaxDailyLossUSD,
			"emergency_stop":          c.Trading.EmergencyStop,
			"min_confidence_to_trade": c.Trading.MinConfidenceToTrade,
			"default_slippage_pct":    c.Trading.DefaultSlippagePct,
			"rpc_urls":                c.Trading.RPCURLs,
			"wallet_key":              mask(c.Trading.WalletKey),
			"openai_api_key":          mask(c.Trading.OpenAIAPIKey),
			"openai_model":            c.Trading.OpenAIModel,
		},
		"cache": c.Cache,
		"storage": map[string]any{
			"postgres_dsn":   mask(c.Storage.PostgresDSN),
			"clickhouse_dsn": mask(c.Storage.ClickHouseDSN),
			"redis_addr":     c.Storage.RedisAddr,
			"redis_password": mask(c.Storage.RedisPassword),
		},
		"server": c.Server,
		"log":    c.Log,
	}
}
