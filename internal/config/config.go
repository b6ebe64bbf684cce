// Package config loads the modelhub YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/privgraph/modelhub/internal/noise"
	"github.com/privgraph/modelhub/internal/payload"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "MODELHUB_CONFIG"

type Config struct {
	Database   Database   `yaml:"database"`
	Server     Server     `yaml:"server"`
	Deploy     Deploy     `yaml:"deploy"`
	Backend    Backend    `yaml:"backend"`
	Privacy    Privacy    `yaml:"privacy"`
	Encryption Encryption `yaml:"encryption"`
	Aggregate  Aggregate  `yaml:"aggregate"`
}

type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

type Server struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
}

type Deploy struct {
	BaseURL string `yaml:"base_url"`
}

type Backend struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Privacy struct {
	Epsilon     float64 `yaml:"epsilon"`
	Sensitivity float64 `yaml:"sensitivity"`
}

type Encryption struct {
	KeyBits       int    `yaml:"key_bits"`
	Workers       int    `yaml:"workers"`
	PayloadFormat string `yaml:"payload_format"`
}

type Aggregate struct {
	Workers int `yaml:"workers"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: Database{Driver: "sqlite"},
		Server:   Server{Listen: ":8080", LogLevel: "info"},
		Deploy:   Deploy{BaseURL: "http://localhost:8080/predict"},
		Backend:  Backend{URL: "http://localhost:5000", Timeout: 5 * time.Minute},
		Privacy: Privacy{
			Epsilon:     noise.DefaultEpsilon,
			Sensitivity: noise.DefaultSensitivity,
		},
		Encryption: Encryption{
			KeyBits:       payload.DefaultKeyBits,
			Workers:       4,
			PayloadFormat: string(payload.FormatFramed),
		},
		Aggregate: Aggregate{Workers: 8},
	}
}

// Load reads the file at path over the defaults. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

// LoadFromEnv loads the file named by $MODELHUB_CONFIG, if any.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(EnvPath))
}

// Unmarshal parses conf over the defaults and validates the result.
func Unmarshal(conf []byte) (*Config, error) {
	out := Default()
	if err := yaml.Unmarshal(conf, out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver: unknown driver %q (valid: sqlite, postgres)", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn: required for postgres")
	}
	if !(c.Privacy.Epsilon > 0) || !(c.Privacy.Sensitivity > 0) {
		return fmt.Errorf("privacy: epsilon and sensitivity must be positive")
	}
	if _, err := payload.ParseFormat(c.Encryption.PayloadFormat); err != nil {
		return fmt.Errorf("encryption.payload_format: %w", err)
	}
	if c.Encryption.Workers < 1 || c.Aggregate.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}
