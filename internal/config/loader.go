package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/workq/internal/remote"
)

const (
	// DirName is the workspace metadata directory.
	DirName = ".workq"

	// FileName is the config file inside DirName.
	FileName = "config.yaml"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "WQ"
)

// ErrNoWorkspace is returned by FindRoot when no .workq directory exists
// in the start directory or any parent.
var ErrNoWorkspace = errors.New("not in a workq workspace (run 'wq init')")

// Load reads root/.workq/config.yaml over the defaults and applies
// environment overrides. A missing file is not an error.
func Load(root string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := Path(root)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to root/.workq/config.yaml.
func Save(root string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	header := []byte("# workq workspace configuration\n")
	if err := os.WriteFile(path, append(header, data...), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	switch remote.Kind(c.Remote.Type) {
	case remote.KindNone:
	case remote.KindDir:
		if c.Remote.Dir == "" {
			return fmt.Errorf("remote.dir is required for remote type %q", c.Remote.Type)
		}
	case remote.KindCLI:
		if c.Remote.Command == "" {
			return fmt.Errorf("remote.command is required for remote type %q", c.Remote.Type)
		}
	default:
		return fmt.Errorf("unknown remote type %q (want %q or %q)", c.Remote.Type, remote.KindDir, remote.KindCLI)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.PullMaxElapsed <= 0 {
		return fmt.Errorf("sync.pull_max_elapsed must be positive")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

// RemoteKind returns the configured remote backend.
func (c *Config) RemoteKind() remote.Kind {
	return remote.Kind(c.Remote.Type)
}

// RemoteSourceConfig converts the remote section for remote.Open. A relative
// remote.dir is resolved against root.
func (c *Config) RemoteSourceConfig(root string, logger *log.Logger) remote.Config {
	dir := c.Remote.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return remote.Config{
		Dir:     dir,
		Command: c.Remote.Command,
		Args:    c.Remote.Args,
		WorkDir: root,
		Timeout: c.Remote.Timeout,
		Logger:  logger,
	}
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath(root string) string {
	if filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(root, DirName, c.Log.File)
}

// Path returns the config file path for the workspace at root.
func Path(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// ItemsDir returns the directory holding item files.
func ItemsDir(root string) string {
	return filepath.Join(root, DirName, "items")
}

// DBPath returns the SQLite database path.
func DBPath(root string) string {
	return filepath.Join(root, DirName, "workq.db")
}

// FindRoot walks up from start to the first directory containing .workq.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoWorkspace
		}
		dir = parent
	}
}
