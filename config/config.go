// Package config loads server configuration from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the server configuration.
type Config struct {
	Port           int           `env:"PORT"            envDefault:"8080"`
	DBPath         string        `env:"DB_PATH"         envDefault:"insurance.db"`
	JWTSecret      string        `env:"JWT_SECRET,required"`
	JWTIssuer      string        `env:"JWT_ISSUER"      envDefault:"motor-insurance"`
	RedisAddr      string        `env:"REDIS_ADDR"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL"  envDefault:"1h"`
	ReminderWindow time.Duration `env:"REMINDER_WINDOW" envDefault:"168h"`
	CORSOrigins    []string      `env:"CORS_ORIGINS"    envDefault:"*" envSeparator:","`
	LogLevel       string        `env:"LOG_LEVEL"       envDefault:"info"`
	SeedPolicies   bool          `env:"SEED_POLICIES"   envDefault:"false"`
}

// Load reads envFile (if it exists) and parses the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.ReminderWindow < 0 {
		errs = append(errs, errors.New("REMINDER_WINDOW must not be negative"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
