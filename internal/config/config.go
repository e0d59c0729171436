package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Cycle     CycleConfig     `yaml:"cycle"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// MigrationsPath is the directory holding the SQL migrations.
	MigrationsPath string `yaml:"migrations_path"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
	// DevUser is the login used for requests when Tailscale is disabled.
	DevUser string `yaml:"dev_user"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// CycleConfig tunes the cycle analysis. Zero values fall back to the
// engine defaults.
type CycleConfig struct {
	// Baseline pins the baseline temperature. When unset it is derived from
	// the first BaselineWindow days of each analyzed range.
	Baseline          *float64      `yaml:"baseline"`
	BaselineWindow    int           `yaml:"baseline_window"`
	BaselineMethod    string        `yaml:"baseline_method"`
	TemperatureMetric string        `yaml:"temperature_metric"`
	HRVMetric         string        `yaml:"hrv_metric"`
	HRVPairWindow     time.Duration `yaml:"hrv_pair_window"`
	RiseDiff          float64       `yaml:"rise_diff"`
	LowerBand         float64       `yaml:"lower_band"`
	UpperBand         float64       `yaml:"upper_band"`
	QuartileFraction  float64       `yaml:"quartile_fraction"`
}

// DefaultCycleConfig returns the cycle settings used when a section is empty.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		BaselineWindow:    6,
		BaselineMethod:    "mean",
		TemperatureMetric: "basal_body_temperature",
		HRVMetric:         "heart_rate_variability",
		HRVPairWindow:     2 * time.Hour,
	}
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix CYCLESENSE_ and underscore-separated paths:
//
//	CYCLESENSE_SERVER_HOST, CYCLESENSE_SERVER_PORT,
//	CYCLESENSE_DB_HOST, CYCLESENSE_DB_PORT, CYCLESENSE_DB_NAME,
//	CYCLESENSE_DB_USER, CYCLESENSE_DB_PASSWORD, CYCLESENSE_DB_SSLMODE,
//	CYCLESENSE_AUTH_API_KEY, CYCLESENSE_TAILSCALE_ENABLED,
//	CYCLESENSE_TAILSCALE_HOSTNAME, CYCLESENSE_CYCLE_BASELINE
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{MigrationsPath: "migrations"},
		Auth:   AuthConfig{DevUser: "local"},
		Cycle:  DefaultCycleConfig(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CYCLESENSE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CYCLESENSE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CYCLESENSE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("CYCLESENSE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("CYCLESENSE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("CYCLESENSE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("CYCLESENSE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("CYCLESENSE_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("CYCLESENSE_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("CYCLESENSE_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("CYCLESENSE_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("CYCLESENSE_CYCLE_BASELINE"); v != "" {
		if b, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cycle.Baseline = &b
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return c.Cycle.validate()
}

func (c CycleConfig) validate() error {
	switch c.BaselineMethod {
	case "", "mean", "median":
	default:
		return fmt.Errorf("cycle.baseline_method must be mean or median, got %q", c.BaselineMethod)
	}
	if c.BaselineWindow < 0 {
		return fmt.Errorf("cycle.baseline_window must not be negative")
	}
	if c.QuartileFraction < 0 || c.QuartileFraction > 1 {
		return fmt.Errorf("cycle.quartile_fraction must be in [0, 1]")
	}
	if c.RiseDiff < 0 || c.LowerBand < 0 || c.UpperBand < 0 {
		return fmt.Errorf("cycle thresholds must not be negative")
	}
	if c.HRVPairWindow < 0 {
		return fmt.Errorf("cycle.hrv_pair_window must not be negative")
	}
	return nil
}
