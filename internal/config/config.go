// Package config loads and hot-reloads the conversion service's
// configuration: the browser pool's tuning parameters plus the ambient
// HTTP, logging, and rate-limiting settings around it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"html2pdf/pkg/pool"
)

// ServiceConfig is the full on-disk configuration for the conversion
// service. Pool fields map directly onto pool.Config; everything else is
// ambient (server, logging, chrome launch, rate limiting).
type ServiceConfig struct {
	Pool   PoolSection   `yaml:"pool"`
	Server ServerSection `yaml:"server"`
	Log    LogSection    `yaml:"log"`
	Chrome ChromeSection `yaml:"chrome"`
}

// PoolSection mirrors pool.Config with YAML-friendly duration strings.
type PoolSection struct {
	MaxSize         int    `yaml:"max_size"`
	WarmupCount     int    `yaml:"warmup_count"`
	PingInterval    string `yaml:"ping_interval"`
	InstanceTTL     string `yaml:"instance_ttl"`
	MaxPingFailures int    `yaml:"max_ping_failures"`
	WarmupTimeout   string `yaml:"warmup_timeout"`
	StaggerInterval string `yaml:"stagger_interval"`
}

// ServerSection configures the HTTP adapter.
type ServerSection struct {
	ListenAddr         string `yaml:"listen_addr"`
	RequestsPerSecond  int    `yaml:"requests_per_second"`
	RateLimitBurst     int    `yaml:"rate_limit_burst"`
	MaxRequestBodyMB   int    `yaml:"max_request_body_mb"`
	ConvertTimeoutSecs int    `yaml:"convert_timeout_seconds"`
}

// LogSection configures the structured logger.
type LogSection struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days"`
	Compress    bool   `yaml:"compress"`
	Development bool   `yaml:"development"`
}

// ChromeSection configures the browser factory.
type ChromeSection struct {
	ExecPath   string            `yaml:"exec_path"`
	Headless   bool              `yaml:"headless"`
	ProxyURL   string            `yaml:"proxy_url"`
	ExtraFlags map[string]string `yaml:"extra_flags"`
}

// Default returns production-sensible defaults; Load overlays whatever the
// YAML file and environment provide on top of this.
func Default() ServiceConfig {
	return ServiceConfig{
		Pool: PoolSection{
			MaxSize:         5,
			WarmupCount:     3,
			PingInterval:    "15s",
			InstanceTTL:     "1h",
			MaxPingFailures: 3,
			WarmupTimeout:   "60s",
			StaggerInterval: "30s",
		},
		Server: ServerSection{
			ListenAddr:         ":8080",
			RequestsPerSecond:  10,
			RateLimitBurst:     20,
			MaxRequestBodyMB:   16,
			ConvertTimeoutSecs: 30,
		},
		Log: LogSection{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Chrome: ChromeSection{
			Headless: true,
		},
	}
}

// Load reads path as YAML over the defaults, then applies HTML2PDF_*
// environment overrides for the fields operators most often need to tune
// without a redeploy.
func Load(path string) (ServiceConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ServiceConfig{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ServiceConfig{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.Server.ListenAddr = normalizeListenAddr(cfg.Server.ListenAddr)
	return cfg, nil
}

func applyEnvOverrides(cfg *ServiceConfig) {
	if v := os.Getenv("HTML2PDF_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("HTML2PDF_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HTML2PDF_POOL_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxSize = n
		}
	}
	if v := os.Getenv("HTML2PDF_CHROME_EXEC_PATH"); v != "" {
		cfg.Chrome.ExecPath = v
	}
	if v := os.Getenv("HTML2PDF_CHROME_PROXY_URL"); v != "" {
		cfg.Chrome.ProxyURL = v
	}
}

// PoolConfig converts the YAML-friendly PoolSection into a validated
// pool.Config via the builder, so the same MaxSize/WarmupCount invariant
// the pool enforces internally is checked here too, with a config-shaped
// error message.
func (c ServiceConfig) PoolConfig() (pool.Config, error) {
	b := pool.NewConfigBuilder().
		MaxSize(c.Pool.MaxSize).
		WarmupCount(c.Pool.WarmupCount).
		MaxPingFailures(c.Pool.MaxPingFailures)

	durations := map[string]string{
		"ping_interval":    c.Pool.PingInterval,
		"instance_ttl":     c.Pool.InstanceTTL,
		"warmup_timeout":   c.Pool.WarmupTimeout,
		"stagger_interval": c.Pool.StaggerInterval,
	}
	parsed := make(map[string]time.Duration, len(durations))
	for field, raw := range durations {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return pool.Config{}, fmt.Errorf("pool.%s: invalid duration %q: %w", field, raw, err)
		}
		parsed[field] = d
	}

	if d, ok := parsed["ping_interval"]; ok {
		b = b.PingInterval(d)
	}
	if d, ok := parsed["instance_ttl"]; ok {
		b = b.InstanceTTL(d)
	}
	if d, ok := parsed["warmup_timeout"]; ok {
		b = b.WarmupTimeout(d)
	}
	if d, ok := parsed["stagger_interval"]; ok {
		b = b.StaggerInterval(d)
	}

	return b.Build()
}

// normalizeListenAddr ensures an address has a leading colon when only a
// port was provided, matching how operators tend to write it in YAML.
func normalizeListenAddr(addr string) string {
	if addr == "" {
		return ":8080"
	}
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
