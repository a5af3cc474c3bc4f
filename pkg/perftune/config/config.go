package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/perftune/pkg/perftune/logging"
	"github.com/jamesainslie/perftune/pkg/perftune/types"
)

// ThresholdsConfig holds detector thresholds. Byte thresholds accept
// human sizes such as "1GB" or "750MiB".
type ThresholdsConfig struct {
	CPU     float64 `mapstructure:"cpu"`
	Memory  float64 `mapstructure:"memory"`
	Network string  `mapstructure:"network"`
	Storage string  `mapstructure:"storage"`
}

// ApplyConfig controls the kernel settings applicator.
type ApplyConfig struct {
	DryRun bool   `mapstructure:"dry_run"`
	Root   string `mapstructure:"root"`
}

// StoreConfig controls the data point store used by the daemon.
type StoreConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// RotationConfig configures log rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// DaemonConfig configures perftuned.
type DaemonConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	SocketPath string `mapstructure:"socket_path"`
	PIDPath    string `mapstructure:"pid_path"`
}

// Config is the full application configuration.
type Config struct {
	Interval      time.Duration    `mapstructure:"interval"`
	Source        string           `mapstructure:"source"`
	KnowledgeBase string           `mapstructure:"knowledge_base"`
	Optimize      bool             `mapstructure:"optimize"`
	Thresholds    ThresholdsConfig `mapstructure:"thresholds"`
	Apply         ApplyConfig      `mapstructure:"apply"`
	Store         StoreConfig      `mapstructure:"store"`
	Metrics       MetricsConfig    `mapstructure:"metrics"`
	Logging       LoggingConfig    `mapstructure:"logging"`
	Daemon        DaemonConfig     `mapstructure:"daemon"`
}

// NewViper returns a viper instance with defaults, search paths and
// environment binding. A non-empty file overrides the search paths.
func NewViper(file string) *viper.Viper {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", AppName))
		}
	}

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("source", DefaultSource)
	v.SetDefault("knowledge_base", DefaultKnowledgeBasePath())
	v.SetDefault("optimize", false)

	v.SetDefault("thresholds.cpu", DefaultCPUThreshold)
	v.SetDefault("thresholds.memory", DefaultMemoryThreshold)
	v.SetDefault("thresholds.network", DefaultNetworkThreshold)
	v.SetDefault("thresholds.storage", DefaultStorageThreshold)

	v.SetDefault("apply.dry_run", false)
	v.SetDefault("apply.root", "/")

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "")
	v.SetDefault("store.retention", DefaultStoreRetention)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_backups", DefaultLogMaxBackups)
	v.SetDefault("logging.components", map[string]string{})

	v.SetDefault("daemon.binary_path", "")
	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
}

// Load reads the default config file (if any) plus the environment.
func Load() (*Config, error) {
	return LoadViper(NewViper(""))
}

// LoadFile reads an explicit config file plus the environment.
func LoadFile(path string) (*Config, error) {
	return LoadViper(NewViper(path))
}

// LoadViper reads v's config file, tolerating its absence, and decodes the
// result. Flags bound to v before the call take precedence.
func LoadViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", types.ErrValidation, c.Interval)
	}
	if _, err := c.DetectorThresholds(); err != nil {
		return err
	}
	switch c.Source {
	case "auto", "proc", "portable":
	default:
		return fmt.Errorf("%w: source must be auto, proc or portable, got %q", types.ErrValidation, c.Source)
	}
	return nil
}

// DetectorThresholds converts the configured thresholds.
func (c *Config) DetectorThresholds() (types.Thresholds, error) {
	network, err := humanize.ParseBytes(c.Thresholds.Network)
	if err != nil {
		return types.Thresholds{}, fmt.Errorf("%w: thresholds.network: %w", types.ErrValidation, err)
	}
	storage, err := humanize.ParseBytes(c.Thresholds.Storage)
	if err != nil {
		return types.Thresholds{}, fmt.Errorf("%w: thresholds.storage: %w", types.ErrValidation, err)
	}
	th := types.Thresholds{
		CPU:     c.Thresholds.CPU,
		Memory:  c.Thresholds.Memory,
		Network: network,
		Storage: storage,
	}
	if err := th.Validate(); err != nil {
		return types.Thresholds{}, err
	}
	return th, nil
}

// LoggingSettings converts the logging section for logging.Init.
func (c *Config) LoggingSettings() logging.Config {
	rot := logging.DefaultRotationConfig()
	if n, err := humanize.ParseBytes(c.Logging.Rotation.MaxSize); err == nil && n > 0 {
		rot.MaxSize = int64(n)
	}
	if c.Logging.Rotation.MaxBackups > 0 {
		rot.MaxBackups = c.Logging.Rotation.MaxBackups
	}
	return logging.Config{
		Level:      c.Logging.Level,
		Path:       c.Logging.Path,
		Rotation:   rot,
		Components: c.Logging.Components,
	}
}

// StorePath returns the configured store path or the XDG default.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return DefaultDBPath()
}

// SocketPath returns the configured socket path or the XDG default.
func (c *Config) SocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return DefaultSocketPath()
}

// PIDPath returns the configured PID file path or the XDG default.
func (c *Config) PIDPath() string {
	if c.Daemon.PIDPath != "" {
		return c.Daemon.PIDPath
	}
	return DefaultPIDPath()
}

// ConfigDir is $XDG_CONFIG_HOME/perftune.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigPath is the default config file location.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir is $XDG_DATA_HOME/perftune, holding the store, socket and PID file.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// StateDir is $XDG_STATE_HOME/perftune, holding logs and the status file.
func StateDir() string {
	return filepath.Join(xdg.StateHome, AppName)
}

// DefaultKnowledgeBasePath is the knowledge base next to the config file.
func DefaultKnowledgeBasePath() string {
	return filepath.Join(ConfigDir(), DefaultKnowledgeBase)
}

// DefaultSocketPath is the daemon's Unix socket.
func DefaultSocketPath() string { return filepath.Join(DataDir(), AppName+".sock") }

// DefaultPIDPath is the daemon's PID file.
func DefaultPIDPath() string { return filepath.Join(DataDir(), AppName+".pid") }

// DefaultDBPath is the data point store directory.
func DefaultDBPath() string { return filepath.Join(DataDir(), AppName+".db") }

// EnsureDir creates dir with 0755 permissions.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
