package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	App struct {
		RenderMode        string `toml:"render_mode"` // snapshot | append
		RenderEveryMs     int    `toml:"render_every_ms"`
		HeartbeatEverySec int    `toml:"heartbeat_every_sec"`
		Color             bool   `toml:"color"`
		Verbose           bool   `toml:"verbose"`
		DumpLabels        bool   `toml:"dump_labels"`
	} `toml:"app"`

	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`

	Gamma struct {
		BaseURL          string  `toml:"base_url"`
		EventsLimit      int     `toml:"events_limit"`
		MaxRetries       *int    `toml:"max_retries"` // nil 取默认值, 0 关闭重试
		TimeoutSec       int     `toml:"timeout_sec"`
		RateLimitRPS     float64 `toml:"rate_limit_rps"`
		LabelConcurrency int     `toml:"label_concurrency"`
	} `toml:"gamma"`

	Feed struct {
		WsURL          string `toml:"ws_url"`
		StartTimeoutMs int    `toml:"start_timeout_ms"`
		PingEverySec   int    `toml:"ping_every_sec"`
		BackoffMinMs   int    `toml:"backoff_min_ms"`
		BackoffMaxMs   int    `toml:"backoff_max_ms"`
		ReadTimeoutSec int    `toml:"read_timeout_sec"`
	} `toml:"feed"`

	Assets struct {
		List []string `toml:"list"` // optional; skips discovery when set
	} `toml:"assets"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
		Path    string `toml:"path"`
	} `toml:"metrics"`

	Storage struct {
		PersistTimeoutMs int `toml:"persist_timeout_ms"`
	} `toml:"storage"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Redis struct {
		Enabled    bool   `toml:"enabled"`
		Addr       string `toml:"addr"`
		Password   string `toml:"password"`
		DB         int    `toml:"db"`
		Prefix     string `toml:"prefix"`
		TTLSeconds int    `toml:"ttl_seconds"`
		Channel    string `toml:"channel"`
	} `toml:"redis"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`
}

// Load reads path (a missing file is fine), then .env, then environment
// overrides, then defaults and validation.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("GAMMA_BASE_API")); v != "" {
		cfg.Gamma.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKET_WS")); v != "" {
		cfg.Feed.WsURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VERBOSE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.Verbose = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
}

func applyDefaults(cfg *Config) {
	cfg.App.RenderMode = strings.ToLower(strings.TrimSpace(cfg.App.RenderMode))
	if cfg.App.RenderMode == "" {
		cfg.App.RenderMode = "snapshot"
	}
	if cfg.App.RenderEveryMs <= 0 {
		cfg.App.RenderEveryMs = 250
	}
	if cfg.App.HeartbeatEverySec <= 0 {
		cfg.App.HeartbeatEverySec = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Gamma.EventsLimit <= 0 {
		cfg.Gamma.EventsLimit = 100
	}
	if cfg.Gamma.MaxRetries == nil {
		n := defaultGammaRetries
		cfg.Gamma.MaxRetries = &n
	}
	if cfg.Gamma.TimeoutSec <= 0 {
		cfg.Gamma.TimeoutSec = 15
	}
	if cfg.Gamma.LabelConcurrency <= 0 {
		cfg.Gamma.LabelConcurrency = 8
	}
	if cfg.Feed.StartTimeoutMs <= 0 {
		cfg.Feed.StartTimeoutMs = 5000
	}
	if cfg.Feed.PingEverySec <= 0 {
		cfg.Feed.PingEverySec = 10
	}
	if cfg.Feed.BackoffMinMs <= 0 {
		cfg.Feed.BackoffMinMs = 1000
	}
	if cfg.Feed.BackoffMaxMs <= 0 {
		cfg.Feed.BackoffMaxMs = 15000
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9100"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Storage.PersistTimeoutMs <= 0 {
		cfg.Storage.PersistTimeoutMs = 2000
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/polyticker.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "polyticker"
	}
	if cfg.Redis.TTLSeconds <= 0 {
		cfg.Redis.TTLSeconds = 3600
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "polyticker:quotes"
	}
	cfg.Assets.List = normalizeAssets(cfg.Assets.List)
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Gamma.BaseURL) == "" {
		return errors.New("gamma.base_url is empty (set GAMMA_BASE_API)")
	}
	if strings.TrimSpace(cfg.Feed.WsURL) == "" {
		return errors.New("feed.ws_url is empty (set MARKET_WS)")
	}
	switch cfg.App.RenderMode {
	case "snapshot", "append":
	default:
		return fmt.Errorf("app.render_mode %q must be snapshot or append", cfg.App.RenderMode)
	}
	if cfg.Gamma.MaxRetries != nil && *cfg.Gamma.MaxRetries < 0 {
		return errors.New("gamma.max_retries is negative")
	}
	if cfg.Feed.BackoffMaxMs < cfg.Feed.BackoffMinMs {
		return errors.New("feed.backoff_max_ms is below feed.backoff_min_ms")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	return nil
}

// normalizeAssets trims and de-duplicates, keeping order. Asset ids are
// opaque so case is left alone.
func normalizeAssets(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

const defaultGammaRetries = 3

// GammaRetries is the discovery retry budget; an unset key means the default.
func (c *Config) GammaRetries() int {
	if c.Gamma.MaxRetries == nil {
		return defaultGammaRetries
	}
	return *c.Gamma.MaxRetries
}

func (c *Config) RenderEvery() time.Duration {
	return time.Duration(c.App.RenderEveryMs) * time.Millisecond
}

func (c *Config) HeartbeatEvery() time.Duration {
	return time.Duration(c.App.HeartbeatEverySec) * time.Second
}

func (c *Config) PersistTimeout() time.Duration {
	return time.Duration(c.Storage.PersistTimeoutMs) * time.Millisecond
}
