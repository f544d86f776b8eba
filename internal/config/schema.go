// Package config loads workspace settings from .workq/config.yaml.
//
// Every key can be overridden from the environment with a WQ_ prefix and
// dots replaced by underscores, e.g. WQ_REMOTE_TYPE=dir or
// WQ_SYNC_INTERVAL=1m.
package config

import "time"

// Config represents the full workspace configuration.
type Config struct {
	Remote    RemoteConfig    `yaml:"remote" mapstructure:"remote"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Daemon    DaemonConfig    `yaml:"daemon" mapstructure:"daemon"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// RemoteConfig selects the remote source. An empty Type means the
// workspace is local-only.
type RemoteConfig struct {
	Type    string        `yaml:"type" mapstructure:"type"`
	Dir     string        `yaml:"dir,omitempty" mapstructure:"dir"`
	Command string        `yaml:"command,omitempty" mapstructure:"command"`
	Args    []string      `yaml:"args,omitempty" mapstructure:"args"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CacheConfig configures the listing cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	// Interval between daemon syncs.
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	PullMaxElapsed time.Duration `yaml:"pull_max_elapsed" mapstructure:"pull_max_elapsed"`
}

// DaemonConfig configures the background sync daemon.
type DaemonConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// DashboardConfig configures the status dashboard.
type DashboardConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	Port int    `yaml:"port" mapstructure:"port"`
}

// LogConfig configures the rotating daemon log. File is relative to the
// .workq directory unless absolute.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// TelemetryConfig toggles OpenTelemetry export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Stdout  bool `yaml:"stdout" mapstructure:"stdout"`
}
