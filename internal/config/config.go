// Package config handles TOML configuration loading with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/medobsmind/obswatch/internal/format"
)

// Environment variables that override file settings.
const (
	EnvDBPath   = "OBSWATCH_DB_PATH"
	EnvNtfyURL  = "OBSWATCH_NTFY_URL"
	EnvLogLevel = "OBSWATCH_LOG_LEVEL"
)

// Config is the top-level configuration for obswatch.
type Config struct {
	Instance  InstanceConfig  `toml:"instance"`
	Guardrail GuardrailConfig `toml:"guardrail"`
	Alerting  AlertingConfig  `toml:"alerting"`
	Cooldown  CooldownConfig  `toml:"cooldown"`
	Ntfy      NtfyConfig      `toml:"ntfy"`
	DB        DBConfig        `toml:"db"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

// InstanceConfig identifies the ward or unit this instance serves.
type InstanceConfig struct {
	Ward string `toml:"ward"`
}

// GuardrailConfig sets the confidence thresholds for explanation checks.
type GuardrailConfig struct {
	LowThreshold  float64 `toml:"low_threshold"`
	HighThreshold float64 `toml:"high_threshold"`
}

// AlertingConfig controls when a score raises an alert.
type AlertingConfig struct {
	MinSeverity string `toml:"min_severity"`
	COPDScale   bool   `toml:"copd_scale"`
}

// CooldownConfig controls notification dedup per patient.
type CooldownConfig struct {
	Window             Duration `toml:"window"`
	AggregateThreshold int      `toml:"aggregate_threshold"`
}

// NtfyConfig controls the ntfy notification target.
type NtfyConfig struct {
	URL             string            `toml:"url"`
	PriorityMap     map[string]string `toml:"priority_map"`
	AlertSeverities []string          `toml:"alert_severities"`
}

// DBConfig controls alert storage.
type DBConfig struct {
	Path      string   `toml:"path"`
	Retention Duration `toml:"retention"`
}

// MetricsConfig controls the Prometheus listener. Empty disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration wraps time.Duration for TOML string parsing (e.g. "5m", "30d").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = format.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Instance: InstanceConfig{
			Ward: "default",
		},
		Guardrail: GuardrailConfig{
			LowThreshold:  0.60,
			HighThreshold: 0.85,
		},
		Alerting: AlertingConfig{
			MinSeverity: "medium",
		},
		Cooldown: CooldownConfig{
			Window:             Duration{15 * time.Minute},
			AggregateThreshold: 3,
		},
		Ntfy: NtfyConfig{
			PriorityMap: map[string]string{
				"critical": "urgent",
				"high":     "high",
				"medium":   "default",
				"low":      "low",
			},
			AlertSeverities: []string{"critical", "high"},
		},
		DB: DBConfig{
			Retention: Duration{90 * 24 * time.Hour},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "obswatch", "config.toml")
}

// Load reads configuration from the given path, falling back to defaults
// for any unset fields, then applies overrides from ".env" in the working
// directory and the process environment. If the file does not exist,
// returns defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, ".env")
}

// LoadWithEnv is Load with an explicit dotenv file. A missing dotenv file is
// ignored. Process environment wins over dotenv values.
func LoadWithEnv(path, envFile string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	env, err := readDotenv(envFile)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readDotenv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return env, nil
}

func (c *Config) applyEnv(dotenv map[string]string) {
	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}
	if v := lookup(EnvDBPath); v != "" {
		c.DB.Path = v
	}
	if v := lookup(EnvNtfyURL); v != "" {
		c.Ntfy.URL = v
	}
	if v := lookup(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Alerting.MinSeverity) {
	case "critical", "high", "medium", "low":
	default:
		return fmt.Errorf("alerting.min_severity: unknown severity %q", c.Alerting.MinSeverity)
	}
	g := c.Guardrail
	if g.LowThreshold < 0 || g.HighThreshold <= 0 || g.HighThreshold > 1 || g.LowThreshold > g.HighThreshold {
		return fmt.Errorf("guardrail thresholds must satisfy 0 <= low <= high <= 1 and high > 0, got %.2f/%.2f",
			g.LowThreshold, g.HighThreshold)
	}
	if c.Cooldown.AggregateThreshold < 0 {
		return fmt.Errorf("cooldown.aggregate_threshold must not be negative")
	}
	return nil
}

// DBPath returns the alert database path, defaulting to the XDG data dir.
func (c *Config) DBPath() string {
	if c.DB.Path != "" {
		return c.DB.Path
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "obswatch", "alerts.db")
}

// ShouldNotify returns true if the given severity is in the configured
// notification severities.
func (c *Config) ShouldNotify(severity string) bool {
	for _, s := range c.Ntfy.AlertSeverities {
		if strings.EqualFold(s, severity) {
			return true
		}
	}
	return false
}

// NtfyPriority maps a severity string to an ntfy priority string.
func (c *Config) NtfyPriority(severity string) string {
	if p, ok := c.Ntfy.PriorityMap[severity]; ok {
		return p
	}
	return "default"
}
