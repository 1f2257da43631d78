// Package config loads server settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"program-events/db"
)

type App struct {
	// Network
	HTTPAddr       string        `envconfig:"HTTP_ADDR" default:":8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"5s"`
	// Comma-separated proxy IPs or CIDRs allowed to set X-Forwarded-For
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
	// DB
	DBDriver string     `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string     `envconfig:"DB_DSN" default:"file:events.db?cache=shared&mode=rwc&_pragma=foreign_keys(1)&_time_format=sqlite"`
	Dialect  db.Dialect `ignored:"true"` // parsed from DBDriver by Load
	// JWT
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	// Rate limit, per client IP and fixed window
	RateLimit       int           `envconfig:"RATE_LIMIT" default:"60"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"10s"`
	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads envFile when it exists, then the process environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (App, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return App{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return App{}, err
	}
	dialect, err := db.ParseDialect(c.DBDriver)
	if err != nil {
		return App{}, err
	}
	c.Dialect = dialect
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		return App{}, errors.New("RATE_LIMIT and RATE_LIMIT_WINDOW must be positive")
	}
	return c, nil
}

// Level parses LogLevel, defaulting to info.
func (c App) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger builds the process logger: JSON by default, text when LOG_FORMAT=text.
func (c App) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
