package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	fileName          = "config.yaml"
	defaultStatusAddr = "127.0.0.1:7419"
)

type Config struct {
	PrefsFile      string        `yaml:"prefs_file"`
	LogFile        string        `yaml:"log_file"`
	LogLevel       string        `yaml:"log_level"`
	Powercfg       string        `yaml:"powercfg"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	SchemeMarker   string        `yaml:"scheme_marker"`

	// StatusAddr is the listen address of the local status surface. Empty
	// disables it.
	StatusAddr string `yaml:"status_addr"`

	Notify                 bool          `yaml:"notify"`
	ApplyOnStart           bool          `yaml:"apply_on_start"`
	RollbackOnPersistError bool          `yaml:"rollback_on_persist_error"`
	ShutdownTimeout        time.Duration `yaml:"shutdown_timeout"`

	// Path is the config file that was read, if any.
	Path string `yaml:"-"`
}

// Flags carries command-line overrides. Empty strings mean "not set";
// StatusAddr is a pointer so that an explicit empty value can disable the
// status surface.
type Flags struct {
	ConfigPath string
	PrefsFile  string
	LogLevel   string
	StatusAddr *string
}

// Dir returns the volt home directory: $VOLT_HOME or ~/.volt.
func Dir() string {
	if v := os.Getenv("VOLT_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".volt"
	}
	return filepath.Join(home, ".volt")
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	dir := Dir()
	return &Config{
		PrefsFile:       filepath.Join(dir, "power_plans.json"),
		LogFile:         filepath.Join(dir, "logs", "volt.log"),
		LogLevel:        "info",
		Powercfg:        "powercfg",
		CommandTimeout:  15 * time.Second,
		SchemeMarker:    "Power Scheme GUID:",
		StatusAddr:      defaultStatusAddr,
		Notify:          true,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load resolves configuration from flags > env > config file > defaults.
func Load(flags Flags) (*Config, error) {
	cfg := Defaults()

	// 1. Config file over defaults
	cfgPath := flags.ConfigPath
	explicit := cfgPath != ""
	if !explicit {
		cfgPath = filepath.Join(Dir(), fileName)
	}
	data, err := os.ReadFile(cfgPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", cfgPath, err)
		}
		cfg.Path = cfgPath
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// 2. Environment variables override config file
	if v := os.Getenv("VOLT_PREFS_FILE"); v != "" {
		cfg.PrefsFile = v
	}
	if v := os.Getenv("VOLT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("VOLT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("VOLT_POWERCFG"); v != "" {
		cfg.Powercfg = v
	}
	if v, ok := os.LookupEnv("VOLT_STATUS_ADDR"); ok {
		cfg.StatusAddr = v
	}

	// 3. CLI flags override everything
	if flags.PrefsFile != "" {
		cfg.PrefsFile = flags.PrefsFile
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if flags.StatusAddr != nil {
		cfg.StatusAddr = *flags.StatusAddr
	}

	cfg.PrefsFile = expandHome(cfg.PrefsFile)
	cfg.LogFile = expandHome(cfg.LogFile)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q (debug, info, warn or error)", c.LogLevel)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive, got %s", c.CommandTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.PrefsFile == "" {
		return fmt.Errorf("prefs_file is required")
	}
	if strings.TrimSpace(c.Powercfg) == "" {
		return fmt.Errorf("powercfg is required")
	}
	return nil
}

// Level returns the parsed log level. It is valid after Load.
func (c *Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
