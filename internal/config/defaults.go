package config

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 30 * time.Second,
		},
		Sync: SyncConfig{
			Interval:       5 * time.Minute,
			PullMaxElapsed: 30 * time.Second,
		},
		Daemon: DaemonConfig{
			Debounce: 100 * time.Millisecond,
		},
		Dashboard: DashboardConfig{
			Addr: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			File:       "daemon.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// setDefaults registers every key with v. AutomaticEnv only resolves keys
// viper already knows about, so this has to list all of them.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("remote.type", cfg.Remote.Type)
	v.SetDefault("remote.dir", cfg.Remote.Dir)
	v.SetDefault("remote.command", cfg.Remote.Command)
	v.SetDefault("remote.args", cfg.Remote.Args)
	v.SetDefault("remote.timeout", cfg.Remote.Timeout)

	v.SetDefault("cache.ttl", cfg.Cache.TTL)

	v.SetDefault("sync.interval", cfg.Sync.Interval)
	v.SetDefault("sync.pull_max_elapsed", cfg.Sync.PullMaxElapsed)

	v.SetDefault("daemon.debounce", cfg.Daemon.Debounce)

	v.SetDefault("dashboard.addr", cfg.Dashboard.Addr)
	v.SetDefault("dashboard.port", cfg.Dashboard.Port)

	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)

	v.SetDefault("telemetry.enabled", cfg.Telemetry.Enabled)
	v.SetDefault("telemetry.stdout", cfg.Telemetry.Stdout)
}
