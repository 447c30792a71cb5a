// Package config handles configuration loading for Nova.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/nova/internal/metrics"
)

// ProjectConfigName is the project-level config file searched for from the
// working directory upwards.
const ProjectConfigName = ".nova.yaml"

// EnvPrefix prefixes every environment override, e.g. NOVA_SCHEDULER_MAX_WORKERS.
const EnvPrefix = "NOVA"

// Tracker backends.
const (
	BackendBeads  = "beads"
	BackendSQLite = "sqlite"
)

// Config holds all configuration for Nova.
type Config struct {
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Pricing    metrics.Pricing  `mapstructure:"pricing"`
	Server     ServerConfig     `mapstructure:"server"`
	Milestones MilestonesConfig `mapstructure:"milestones"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Control    ControlConfig    `mapstructure:"control"`
}

// TrackerConfig selects and configures the task store.
type TrackerConfig struct {
	// Backend is beads or sqlite.
	Backend string `mapstructure:"backend"`
	// BeadsBin is the bd binary.
	BeadsBin string `mapstructure:"beads_bin"`
	// WorkDir is where bd runs.
	WorkDir string `mapstructure:"work_dir"`
	// DBPath is the SQLite database for the sqlite backend.
	DBPath string `mapstructure:"db_path"`
	// LoadConcurrency bounds parallel bd calls while loading a graph.
	LoadConcurrency int `mapstructure:"load_concurrency"`
}

// SchedulerConfig holds dispatch loop settings.
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	MaxWorkers   int           `mapstructure:"max_workers"`
	ExitWhenIdle bool          `mapstructure:"exit_when_idle"`
}

// WorkerConfig describes the agent process run for each task.
type WorkerConfig struct {
	Command   string        `mapstructure:"command"`
	Args      []string      `mapstructure:"args"`
	WorkDir   string        `mapstructure:"work_dir"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KillGrace time.Duration `mapstructure:"kill_grace"`
	LogDir    string        `mapstructure:"log_dir"`
}

// ServerConfig holds projection API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// CacheTTL bounds how long a projection is served from cache. Zero disables it.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// MilestonesConfig points at the milestone definitions.
type MilestonesConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File additionally receives every log line when set.
	File string `mapstructure:"file"`
}

// ControlConfig holds the operator signal directory.
type ControlConfig struct {
	SignalsDir string `mapstructure:"signals_dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (NOVA_SECTION_KEY)
// 2. Project config (.nova.yaml in current directory or parent)
// 3. User config (~/.config/nova/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if path := findProjectConfig(); path != "" {
		project := viper.New()
		project.SetConfigFile(path)
		if err := project.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", path, err)
		}
		if err := v.MergeConfigMap(project.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific file on top of the defaults.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Tracker: TrackerConfig{
			Backend:         BackendBeads,
			BeadsBin:        "bd",
			DBPath:          filepath.Join(".nova", "tracker.db"),
			LoadConcurrency: 8,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 2 * time.Second,
			MaxWorkers:   3,
			ExitWhenIdle: true,
		},
		Worker: WorkerConfig{
			Command:   "claude",
			Args:      []string{"-p", "--output-format", "json"},
			Timeout:   30 * time.Minute,
			KillGrace: 10 * time.Second,
			LogDir:    filepath.Join(".nova", "logs"),
		},
		Pricing: metrics.DefaultPricing(),
		Server: ServerConfig{
			Addr:     "127.0.0.1:8474",
			CacheTTL: 2 * time.Second,
		},
		Milestones: MilestonesConfig{
			Path: filepath.Join(".nova", "milestones.yaml"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Control: ControlConfig{
			SignalsDir: filepath.Join(".nova", "control"),
		},
	}
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	switch c.Tracker.Backend {
	case BackendBeads, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("tracker.backend: unknown backend %q", c.Tracker.Backend))
	}
	if c.Tracker.Backend == BackendSQLite && c.Tracker.DBPath == "" {
		errs = append(errs, errors.New("tracker.db_path: required for the sqlite backend"))
	}
	if c.Scheduler.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_workers: must be at least 1, got %d", c.Scheduler.MaxWorkers))
	}
	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, errors.New("scheduler.tick_interval: must be positive"))
	}
	if c.Worker.Command == "" {
		errs = append(errs, errors.New("worker.command: required"))
	}
	if c.Worker.Timeout <= 0 {
		errs = append(errs, errors.New("worker.timeout: must be positive"))
	}
	if c.Worker.KillGrace < 0 {
		errs = append(errs, errors.New("worker.kill_grace: must not be negative"))
	}
	p := c.Pricing
	if p.InputPerMillion < 0 || p.OutputPerMillion < 0 || p.CacheReadPerMillion < 0 || p.CacheCreationPerMillion < 0 {
		errs = append(errs, errors.New("pricing: prices must not be negative"))
	}
	if c.Server.CacheTTL < 0 {
		errs = append(errs, errors.New("server.cache_ttl: must not be negative"))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// UserConfigPath returns the path to the user config file.
func UserConfigPath() string {
	return filepath.Join(userConfigDir(), "config.yaml")
}

// ProjectConfigPath returns the path to the project config file if it exists.
func ProjectConfigPath() string {
	return findProjectConfig()
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Worker.Command = os.ExpandEnv(cfg.Worker.Command)
	cfg.Tracker.DBPath = os.ExpandEnv(cfg.Tracker.DBPath)
	return cfg, nil
}

// setDefaults registers every key so environment overrides resolve.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("tracker.backend", d.Tracker.Backend)
	v.SetDefault("tracker.beads_bin", d.Tracker.BeadsBin)
	v.SetDefault("tracker.work_dir", d.Tracker.WorkDir)
	v.SetDefault("tracker.db_path", d.Tracker.DBPath)
	v.SetDefault("tracker.load_concurrency", d.Tracker.LoadConcurrency)

	v.SetDefault("scheduler.tick_interval", d.Scheduler.TickInterval.String())
	v.SetDefault("scheduler.max_workers", d.Scheduler.MaxWorkers)
	v.SetDefault("scheduler.exit_when_idle", d.Scheduler.ExitWhenIdle)

	v.SetDefault("worker.command", d.Worker.Command)
	v.SetDefault("worker.args", d.Worker.Args)
	v.SetDefault("worker.work_dir", d.Worker.WorkDir)
	v.SetDefault("worker.timeout", d.Worker.Timeout.String())
	v.SetDefault("worker.kill_grace", d.Worker.KillGrace.String())
	v.SetDefault("worker.log_dir", d.Worker.LogDir)

	v.SetDefault("pricing.input_per_million", d.Pricing.InputPerMillion)
	v.SetDefault("pricing.output_per_million", d.Pricing.OutputPerMillion)
	v.SetDefault("pricing.cache_read_per_million", d.Pricing.CacheReadPerMillion)
	v.SetDefault("pricing.cache_creation_per_million", d.Pricing.CacheCreationPerMillion)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cache_ttl", d.Server.CacheTTL.String())

	v.SetDefault("milestones.path", d.Milestones.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)

	v.SetDefault("control.signals_dir", d.Control.SignalsDir)
}

// userConfigDir returns the XDG config directory for Nova.
func userConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nova")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "nova")
	}
	return filepath.Join(home, ".config", "nova")
}

// findProjectConfig searches for .nova.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return ""
		}
		cwd = parent
	}
}
