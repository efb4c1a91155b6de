package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	ServerAddr       string        `env:"SERVER_ADDR"       envDefault:"0.0.0.0:8080"`
	LogLevel         string        `env:"LOG_LEVEL"         envDefault:"info"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	DatabaseMaxConns int32         `env:"DATABASE_MAX_CONNS" envDefault:"4"`
	MigrationsDir    string        `env:"MIGRATIONS_DIR"    envDefault:"internal/migrations"`
	RulesFile        string        `env:"RULES_FILE"`
	SessionRetention time.Duration `env:"SESSION_RETENTION" envDefault:"10m"`
	GCInterval       time.Duration `env:"GC_INTERVAL"       envDefault:"1m"`
	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS"   envSeparator:","`
	Narrator         NarratorConfig
}

// NarratorConfig selects the optional recap storyteller. An empty provider disables it.
type NarratorConfig struct {
	Provider string        `env:"NARRATOR_PROVIDER"`
	Model    string        `env:"NARRATOR_MODEL"   envDefault:"llama3"`
	URL      string        `env:"NARRATOR_URL"`
	APIKey   string        `env:"NARRATOR_API_KEY"`
	Timeout  time.Duration `env:"NARRATOR_TIMEOUT" envDefault:"20s"`
}

// Load reads configuration from environment, after an optional .env file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SessionRetention <= 0 {
		return nil, fmt.Errorf("SESSION_RETENTION must be positive")
	}
	if cfg.GCInterval <= 0 {
		return nil, fmt.Errorf("GC_INTERVAL must be positive")
	}
	return &cfg, nil
}
