// Package config loads the harness configuration from a YAML file.
// Values may reference environment variables with ${VAR}; a .env file next
// to the process is honored so database credentials can stay out of the
// config file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend kinds understood by the harness.
const (
	KindPostgres   = "postgres"
	KindTimescale  = "timescale"
	KindClickHouse = "clickhouse"
)

type Config struct {
	Generator GeneratorConfig `yaml:"generator"`
	Loader    LoaderConfig    `yaml:"loader"`
	Backends  []BackendConfig `yaml:"backends"`
	Report    ReportConfig    `yaml:"report"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type GeneratorConfig struct {
	StartDate       string `yaml:"start_date"`
	EndDate         string `yaml:"end_date"`
	Instruments     int    `yaml:"instruments"`
	FirstInstrument int32  `yaml:"first_instrument"`
}

type LoaderConfig struct {
	BatchSize int `yaml:"batch_size"`
	Workers   int `yaml:"workers"`
}

type BackendConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

type ReportConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"`
	File   FileLogConfig `yaml:"file"`
}

type FileLogConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads, env-expands, parses and validates the config file at path.
func Load(path string) (*Config, error) {
	// Best effort; a missing .env just means the environment is already set.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Generator.Instruments == 0 {
		c.Generator.Instruments = 100
	}
	if c.Generator.FirstInstrument == 0 {
		c.Generator.FirstInstrument = 1
	}
	if c.Loader.BatchSize == 0 {
		c.Loader.BatchSize = 1000
	}
	if c.Loader.Workers == 0 {
		c.Loader.Workers = 4
	}
	if c.Report.Path == "" {
		c.Report.Path = "benchmark_results.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.File.MaxSizeMB == 0 {
		c.Logging.File.MaxSizeMB = 100
	}
	if c.Logging.File.MaxBackups == 0 {
		c.Logging.File.MaxBackups = 3
	}
}

// Validate rejects configurations the harness cannot run with.
func (c *Config) Validate() error {
	start, end, err := c.Generator.DateRange()
	if err != nil {
		return err
	}
	if start.After(end) {
		return fmt.Errorf("generator: start_date %s is after end_date %s",
			c.Generator.StartDate, c.Generator.EndDate)
	}
	if c.Generator.Instruments < 1 {
		return fmt.Errorf("generator: instruments must be >= 1, got %d", c.Generator.Instruments)
	}
	if c.Generator.FirstInstrument < 1 {
		return fmt.Errorf("generator: first_instrument must be >= 1, got %d", c.Generator.FirstInstrument)
	}
	if c.Loader.BatchSize < 1 {
		return fmt.Errorf("loader: batch_size must be >= 1, got %d", c.Loader.BatchSize)
	}
	if c.Loader.Workers < 1 {
		return fmt.Errorf("loader: workers must be >= 1, got %d", c.Loader.Workers)
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}
	seen := map[string]bool{}
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
		switch b.Kind {
		case KindPostgres, KindTimescale, KindClickHouse:
		default:
			return fmt.Errorf("backends[%d] %s: unknown kind %q", i, b.Name, b.Kind)
		}
		if b.DSN == "" {
			return fmt.Errorf("backends[%d] %s: dsn is required", i, b.Name)
		}
	}
	return nil
}

// DateRange parses the configured start and end dates.
func (g GeneratorConfig) DateRange() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", g.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("generator: bad start_date %q: %w", g.StartDate, err)
	}
	end, err := time.Parse("2006-01-02", g.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("generator: bad end_date %q: %w", g.EndDate, err)
	}
	return start, end, nil
}
