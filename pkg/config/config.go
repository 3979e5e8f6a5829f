// Package config loads and hot-reloads the tickflow YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	yaml "go.yaml.in/yaml/v3"

	"github.com/vnykmshr/tickflow/pkg/common/validation"
)

// Config is the full tickflow configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" json:"log"`
	Host      HostConfig      `yaml:"host" json:"host"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Plugins   []PluginConfig  `yaml:"plugins" json:"plugins"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" json:"snapshot"`
}

type LogConfig struct {
	Level   string `yaml:"level" json:"level"`
	Console bool   `yaml:"console" json:"console"`
}

// HostConfig controls the tick loop.
type HostConfig struct {
	// TargetFPS is the tick rate. It can change on reload.
	TargetFPS float64 `yaml:"target_fps" json:"target_fps"`

	// CollectTimeout is the budget of the entity collection job.
	CollectTimeout time.Duration `yaml:"collect_timeout" json:"collect_timeout"`

	// ReportSchedule is a cron expression (seconds field supported) for the
	// statistics report job. Empty disables reports.
	ReportSchedule string `yaml:"report_schedule" json:"report_schedule"`

	// ReportTimeout is the budget of one report run.
	ReportTimeout time.Duration `yaml:"report_timeout" json:"report_timeout"`
}

type SchedulerConfig struct {
	TimingWindow int  `yaml:"timing_window" json:"timing_window"`
	RetainTiming bool `yaml:"retain_timing" json:"retain_timing"`
	LockOSThread bool `yaml:"lock_os_thread" json:"lock_os_thread"`
}

// PluginConfig enables one plugin tick job.
type PluginConfig struct {
	Name    string        `yaml:"name" json:"name"`
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type HTTPConfig struct {
	// Addr is the listen address of the observability server. Empty disables it.
	Addr string `yaml:"addr" json:"addr"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// TelemetryConfig configures the Redis report publisher. An empty Addrs
// disables publishing.
type TelemetryConfig struct {
	Addrs    []string      `yaml:"addrs" json:"addrs"`
	Password string        `yaml:"password" json:"-"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// SnapshotConfig points at a captured memory image served as the remote
// process. Empty Path disables it.
type SnapshotConfig struct {
	Path string `yaml:"path" json:"path"`
	Base uint64 `yaml:"base" json:"base"`
}

// Default returns the configuration used for omitted fields.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Host: HostConfig{
			TargetFPS:      60,
			CollectTimeout: 500 * time.Millisecond,
			ReportSchedule: "@every 10s",
			ReportTimeout:  2 * time.Second,
		},
		Scheduler: SchedulerConfig{TimingWindow: 512},
		Metrics:   MetricsConfig{Enabled: true, Namespace: "tickflow"},
		Telemetry: TelemetryConfig{Prefix: "tickflow", TTL: time.Minute},
	}
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var reportParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	const module = "config"

	if err := validation.ValidatePositiveFloat(module, "host.target_fps", c.Host.TargetFPS); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration(module, "host.collect_timeout", c.Host.CollectTimeout); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration(module, "host.report_timeout", c.Host.ReportTimeout); err != nil {
		return err
	}
	if c.Host.ReportSchedule != "" {
		if _, err := reportParser.Parse(c.Host.ReportSchedule); err != nil {
			return fmt.Errorf("config: host.report_schedule %q: %w", c.Host.ReportSchedule, err)
		}
	}
	if err := validation.ValidatePositive(module, "scheduler.timing_window", c.Scheduler.TimingWindow); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Plugins))
	for i, p := range c.Plugins {
		field := fmt.Sprintf("plugins[%d]", i)
		if err := validation.ValidateNotEmpty(module, field+".name", strings.TrimSpace(p.Name)); err != nil {
			return err
		}
		if seen[p.Name] {
			return fmt.Errorf("config: %s: duplicate plugin %q", field, p.Name)
		}
		seen[p.Name] = true
		if err := validation.ValidateNonNegativeDuration(module, field+".timeout", p.Timeout); err != nil {
			return err
		}
	}

	if len(c.Telemetry.Addrs) > 0 {
		if err := validation.ValidateNotEmpty(module, "telemetry.prefix", c.Telemetry.Prefix); err != nil {
			return err
		}
		if err := validation.ValidateNonNegativeDuration(module, "telemetry.ttl", c.Telemetry.TTL); err != nil {
			return err
		}
	}
	return nil
}

// EnabledPlugins returns the enabled plugins in file order.
func (c *Config) EnabledPlugins() []PluginConfig {
	out := make([]PluginConfig, 0, len(c.Plugins))
	for _, p := range c.Plugins {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}
