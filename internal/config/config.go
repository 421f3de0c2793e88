package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/jefflunt/tiny-outcome/internal/outcome"
)

const (
	defaultHTTPAddr     = ":8080"
	defaultQueueSize    = 1024
	defaultRateLimit    = 500
	defaultBurst        = 1000
	defaultRedisAddr    = "127.0.0.1:6379"
	defaultRedisTTL     = time.Hour
	defaultRecentLimit  = 100
	defaultPrecision    = 500
	defaultWarmup       = "one_third"
	defaultThreshold    = 0.66
	defaultLatelyWindow = 20
	defaultMaxSignals   = 1024
	defaultLogLevel     = "info"
)

type Config struct {
	HTTP    HTTPConfig               `yaml:"http"`
	Redis   RedisConfig              `yaml:"redis"`
	Tracker TrackerConfig            `yaml:"tracker"`
	Signals map[string]TrackerConfig `yaml:"signals"`
	Log     LogConfig                `yaml:"log"`

	// MaxSignals caps how many trackers are held at once, configured or not.
	MaxSignals int `yaml:"max_signals"`
}

type HTTPConfig struct {
	Addr      string  `yaml:"addr"`
	QueueSize int     `yaml:"queue_size"`
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	TTL         time.Duration `yaml:"ttl"`
	RecentLimit int           `yaml:"recent_limit"`
}

// TrackerConfig describes one tracker. Zero fields in a per-signal override
// inherit the default tracker settings.
type TrackerConfig struct {
	Precision    int     `yaml:"precision"`
	Warmup       string  `yaml:"warmup"`
	Threshold    float64 `yaml:"threshold"`
	LatelyWindow int     `yaml:"lately_window"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads the YAML file at path (if any), applies environment overrides
// and defaults, then validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file or environment is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	cfg.HTTP.Addr = readEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Redis.Addr = readEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = readEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = readEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Enabled = readEnvBool("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Tracker.Precision = readEnvInt("TRACKER_PRECISION", cfg.Tracker.Precision)
	cfg.Tracker.Warmup = readEnv("TRACKER_WARMUP", cfg.Tracker.Warmup)
	cfg.Tracker.Threshold = readEnvFloat("TRACKER_THRESHOLD", cfg.Tracker.Threshold)
	cfg.MaxSignals = readEnvInt("MAX_SIGNALS", cfg.MaxSignals)
	cfg.Log.Level = readEnv("LOG_LEVEL", cfg.Log.Level)
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = defaultHTTPAddr
	}
	if c.HTTP.QueueSize == 0 {
		c.HTTP.QueueSize = defaultQueueSize
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = defaultRateLimit
	}
	if c.HTTP.Burst == 0 {
		c.HTTP.Burst = defaultBurst
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = defaultRedisTTL
	}
	if c.Redis.RecentLimit == 0 {
		c.Redis.RecentLimit = defaultRecentLimit
	}
	if c.Tracker.Precision == 0 {
		c.Tracker.Precision = defaultPrecision
	}
	if c.Tracker.Warmup == "" {
		c.Tracker.Warmup = defaultWarmup
	}
	if c.Tracker.Threshold == 0 {
		c.Tracker.Threshold = defaultThreshold
	}
	if c.Tracker.LatelyWindow == 0 {
		c.Tracker.LatelyWindow = defaultLatelyWindow
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.MaxSignals == 0 {
		c.MaxSignals = defaultMaxSignals
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("http.queue_size must be positive, got %d", c.HTTP.QueueSize))
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("http.rate_limit must not be negative, got %g", c.HTTP.RateLimit))
	}
	if c.HTTP.Burst < 1 {
		errs = append(errs, fmt.Errorf("http.burst must be positive, got %d", c.HTTP.Burst))
	}
	if c.Redis.RecentLimit < 1 {
		errs = append(errs, fmt.Errorf("redis.recent_limit must be positive, got %d", c.Redis.RecentLimit))
	}
	if c.MaxSignals < 1 {
		errs = append(errs, fmt.Errorf("max_signals must be positive, got %d", c.MaxSignals))
	} else if len(c.Signals) > c.MaxSignals {
		errs = append(errs, fmt.Errorf("max_signals %d is below the %d configured signals", c.MaxSignals, len(c.Signals)))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if err := c.Tracker.validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracker: %w", err))
	}
	for name := range c.Signals {
		if name == "" {
			errs = append(errs, errors.New("signals: empty signal name"))
			continue
		}
		if err := c.TrackerFor(name).validate(); err != nil {
			errs = append(errs, fmt.Errorf("signals.%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// TrackerFor merges the override for signal, if any, over the defaults.
func (c *Config) TrackerFor(signal string) TrackerConfig {
	tc := c.Tracker
	override, ok := c.Signals[signal]
	if !ok {
		return tc
	}
	if override.Precision != 0 {
		tc.Precision = override.Precision
	}
	if override.Warmup != "" {
		tc.Warmup = override.Warmup
	}
	if override.Threshold != 0 {
		tc.Threshold = override.Threshold
	}
	if override.LatelyWindow != 0 {
		tc.LatelyWindow = override.LatelyWindow
	}
	return tc
}

// NewTracker builds an empty tracker from the settings.
func (tc TrackerConfig) NewTracker() (*outcome.Tracker, error) {
	warmup, err := outcome.ParseWarmup(tc.Warmup)
	if err != nil {
		return nil, err
	}
	return outcome.New(tc.Precision, warmup)
}

func (tc TrackerConfig) validate() error {
	if _, err := tc.NewTracker(); err != nil {
		return err
	}
	if tc.Threshold < 0 || tc.Threshold > 1 {
		return fmt.Errorf("%w: threshold %g outside [0, 1]", outcome.ErrInvalidConfiguration, tc.Threshold)
	}
	if tc.LatelyWindow < 1 {
		return fmt.Errorf("%w: lately_window must be positive, got %d", outcome.ErrInvalidConfiguration, tc.LatelyWindow)
	}
	return nil
}

func readEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func readEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func readEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func readEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}
