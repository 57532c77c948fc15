// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the service settings. Telemetry settings are read separately
// by the otel adapter.
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	DatabasePath    string        `env:"DATABASE_PATH" envDefault:"foodflow.db"`
	JWTSecret       string        `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"foodflow-auth"`
	SweepSchedule   string        `env:"EXPIRY_SWEEP_SCHEDULE" envDefault:"*/1 * * * *"`
	QueueMaxWorkers int           `env:"QUEUE_MAX_WORKERS" envDefault:"2"`
	LogLevel        slog.Level    `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads the given dotenv files (".env" when none are named) into the
// process environment without overriding variables already set, then parses
// Config. Missing dotenv files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.QueueMaxWorkers < 1 {
		return Config{}, fmt.Errorf("QUEUE_MAX_WORKERS must be at least 1, got %d", cfg.QueueMaxWorkers)
	}
	return cfg, nil
}
