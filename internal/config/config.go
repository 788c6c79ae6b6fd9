package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration
type Config struct {
	DataDir         string `env:"RSVP_DATA_DIR" envDefault:"data"`
	DatabaseFile    string `env:"RSVP_DATABASE_FILE" envDefault:"rsvp.db"`
	BaseURL         string `env:"RSVP_BASE_URL" envDefault:"http://localhost:5173"`
	DefaultLanguage string `env:"RSVP_DEFAULT_LANGUAGE" envDefault:"en"`
	OperatorRole    string `env:"RSVP_OPERATOR_ROLE" envDefault:"admin"`
	LogLevel        string `env:"RSVP_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig loads configuration from environment variables or defaults
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// DatabasePath returns the full path of the SQLite database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseFile)
}
