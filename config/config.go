package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so interval settings can be written as
// "5m" / "30s" in the yaml file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Coinpulse CoinpulseConfig `yaml:"coinpulse"`
	Market    MarketConfig    `yaml:"market"`
	Collector CollectorConfig `yaml:"collector"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type CoinpulseConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MarketConfig struct {
	Venue      string               `yaml:"venue"`
	APIServer  string               `yaml:"api_server"`
	WebServer  string               `yaml:"web_server"`
	Key        string               `yaml:"key"`
	Secret     string               `yaml:"secret"`
	Timeout    Duration             `yaml:"timeout"`
	RateLimit  RateLimitConfig      `yaml:"rate_limit"`
	Connection ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	MaxConnsPerHost int      `yaml:"max_conns_per_host"`
	IdleConnTimeout Duration `yaml:"idle_conn_timeout"`
}

type CollectorConfig struct {
	Coins         []string `yaml:"coins"`
	TickInterval  Duration `yaml:"tick_interval"`
	DepthInterval Duration `yaml:"depth_interval"`
	OrderInterval Duration `yaml:"order_interval"`
	TrendInterval Duration `yaml:"trend_interval"`
	DepthEnabled  bool     `yaml:"depth_enabled"`
	OrderEnabled  bool     `yaml:"order_enabled"`
}

// AnalyticsConfig carries the tunables of the aggregation engine. The wave
// sentinel is a display convention for "no matching day found", not a value
// computed from data.
type AnalyticsConfig struct {
	BarWidths            []Duration         `yaml:"bar_widths"`
	WaveThresholds       map[string]float64 `yaml:"wave_thresholds"`
	WaveSentinel         string             `yaml:"wave_sentinel"`
	BiggestOrdersPercent float64            `yaml:"biggest_orders_percent"`
	BiggestOrdersHours   int                `yaml:"biggest_orders_hours"`
	AmountByPriceHours   int                `yaml:"amount_by_price_hours"`
}

// BarWidthsStd returns the configured bar bucket widths as time.Durations,
// falling back to the 5/10/30 minute defaults when none are configured.
func (a AnalyticsConfig) BarWidthsStd() []time.Duration {
	if len(a.BarWidths) == 0 {
		return []time.Duration{5 * time.Minute, 10 * time.Minute, 30 * time.Minute}
	}
	widths := make([]time.Duration, len(a.BarWidths))
	for i, w := range a.BarWidths {
		widths[i] = w.Std()
	}
	return widths
}

type StorageConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatchEnabled bool   `yaml:"cloudwatch_enabled"`
	Region            string `yaml:"region"`
	Namespace         string `yaml:"namespace"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Analytics: AnalyticsConfig{
			WaveSentinel:         "> 3",
			BiggestOrdersPercent: 0.3,
			BiggestOrdersHours:   24,
			AmountByPriceHours:   72,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(config.Analytics.WaveThresholds) == 0 {
		config.Analytics.WaveThresholds = map[string]float64{"20": 1.2, "10": 1.1}
	}

	// Override credentials from environment variables if available
	if v := os.Getenv("MARKET_KEY"); v != "" {
		config.Market.Key = strings.TrimSpace(v)
	}
	if v := os.Getenv("MARKET_SECRET"); v != "" {
		config.Market.Secret = strings.TrimSpace(v)
	}
	if config.Storage.Postgres.Enabled {
		if v := os.Getenv("POSTGRES_DSN"); v != "" {
			config.Storage.Postgres.DSN = strings.TrimSpace(v)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Coinpulse.Name == "" {
		return fmt.Errorf("coinpulse.name is required")
	}

	if cfg.Coinpulse.Version == "" {
		return fmt.Errorf("coinpulse.version is required")
	}

	if cfg.Market.APIServer == "" {
		return fmt.Errorf("market.api_server is required")
	}

	if cfg.Market.WebServer == "" {
		return fmt.Errorf("market.web_server is required")
	}

	if cfg.Collector.TickInterval <= 0 {
		return fmt.Errorf("collector.tick_interval must be greater than 0")
	}

	if cfg.Collector.TrendInterval <= 0 {
		return fmt.Errorf("collector.trend_interval must be greater than 0")
	}

	if cfg.Collector.DepthEnabled && cfg.Collector.DepthInterval <= 0 {
		return fmt.Errorf("collector.depth_interval must be greater than 0 when depth polling is enabled")
	}

	if cfg.Collector.OrderEnabled && cfg.Collector.OrderInterval <= 0 {
		return fmt.Errorf("collector.order_interval must be greater than 0 when order polling is enabled")
	}

	for label, ratio := range cfg.Analytics.WaveThresholds {
		if ratio <= 1 {
			return fmt.Errorf("analytics.wave_thresholds[%s] must be greater than 1, got %v", label, ratio)
		}
	}

	if cfg.Analytics.BiggestOrdersPercent <= 0 || cfg.Analytics.BiggestOrdersPercent > 1 {
		return fmt.Errorf("analytics.biggest_orders_percent must be in (0, 1]")
	}

	if cfg.Storage.Postgres.Enabled && cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required when postgres is enabled")
	}

	if cfg.Server.Enabled && cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required when the server is enabled")
	}

	return nil
}
