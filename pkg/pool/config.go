package pool

import (
	"fmt"
	"time"

	"html2pdf/pkg/poolerr"
)

// Config is the immutable, validated tuning record for a Pool. Build one
// with NewConfigBuilder; the zero value is not guaranteed valid.
type Config struct {
	// MaxSize is the maximum number of tracked instances (idle + in-flight).
	MaxSize int
	// WarmupCount is the number of instances to pre-create at startup.
	// Must be <= MaxSize.
	WarmupCount int
	// PingInterval is the keep-alive loop's period.
	PingInterval time.Duration
	// InstanceTTL is the hard lifetime cap per instance.
	InstanceTTL time.Duration
	// MaxPingFailures is the number of consecutive ping failures at which an
	// instance is retired.
	MaxPingFailures int
	// WarmupTimeout caps the entire warmup phase.
	WarmupTimeout time.Duration
	// StaggerInterval spaces out warmup creations and doubles as the grace
	// margin applied to near-expiry instances on acquire.
	StaggerInterval time.Duration
}

// DefaultConfig returns the production-sensible defaults documented in the
// pool's design: 5 instances, 3 warmed, 15s pings, 1h TTL, retirement after
// 3 consecutive ping failures, 60s warmup budget, 30s stagger.
func DefaultConfig() Config {
	return Config{
		MaxSize:         5,
		WarmupCount:     3,
		PingInterval:    15 * time.Second,
		InstanceTTL:     time.Hour,
		MaxPingFailures: 3,
		WarmupTimeout:   60 * time.Second,
		StaggerInterval: 30 * time.Second,
	}
}

// ConfigBuilder builds a Config with fluent setters and validates it on
// Build. Construct one with NewConfigBuilder, which seeds it with
// DefaultConfig.
type ConfigBuilder struct {
	cfg Config
}

// NewConfigBuilder returns a builder seeded with DefaultConfig.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{cfg: DefaultConfig()}
}

func (b *ConfigBuilder) MaxSize(n int) *ConfigBuilder {
	b.cfg.MaxSize = n
	return b
}

func (b *ConfigBuilder) WarmupCount(n int) *ConfigBuilder {
	b.cfg.WarmupCount = n
	return b
}

func (b *ConfigBuilder) PingInterval(d time.Duration) *ConfigBuilder {
	b.cfg.PingInterval = d
	return b
}

func (b *ConfigBuilder) InstanceTTL(d time.Duration) *ConfigBuilder {
	b.cfg.InstanceTTL = d
	return b
}

func (b *ConfigBuilder) MaxPingFailures(n int) *ConfigBuilder {
	b.cfg.MaxPingFailures = n
	return b
}

func (b *ConfigBuilder) WarmupTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.WarmupTimeout = d
	return b
}

func (b *ConfigBuilder) StaggerInterval(d time.Duration) *ConfigBuilder {
	b.cfg.StaggerInterval = d
	return b
}

// Build validates the accumulated configuration. MaxSize must be positive
// and WarmupCount must not exceed it; all other fields are accepted as-is,
// including pathological zero durations, since the pool never rejects them.
func (b *ConfigBuilder) Build() (Config, error) {
	if b.cfg.MaxSize <= 0 {
		return Config{}, fmt.Errorf("%w: max_size must be greater than 0", poolerr.ErrConfigInvalid)
	}
	if b.cfg.WarmupCount > b.cfg.MaxSize {
		return Config{}, fmt.Errorf("%w: warmup_count (%d) cannot exceed max_size (%d)", poolerr.ErrConfigInvalid, b.cfg.WarmupCount, b.cfg.MaxSize)
	}
	return b.cfg, nil
}
