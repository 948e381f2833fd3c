/*
Package config loads process configuration.

SOURCES (later wins):
  1. Built-in defaults
  2. .env file in the working directory, if present (godotenv)
  3. Environment variables
  4. Command-line flags (pflag)

VARIABLES:
  PORT                HTTP port (default 8080)
  DB_PATH             SQLite path, ":memory:" allowed (default parkingpass.db)
  ADMIN_CODE          Static access code for /api/admin routes (required)
  LOG_LEVEL           logrus level (default info)
  RECONCILE_INTERVAL  Party-day reconciliation period, 0 disables (default 1h)
  ALLOWED_ORIGINS     Comma-separated CORS origins

Business settings (price, limits, timezone) are not here. They live in the
database and are edited through the admin API.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type Config struct {
	Port              int
	DBPath            string
	AdminCode         string
	LogLevel          string
	ReconcileInterval time.Duration
	AllowedOrigins    []string
}

func defaults() Config {
	return Config{
		Port:              8080,
		DBPath:            "parkingpass.db",
		LogLevel:          "info",
		ReconcileInterval: time.Hour,
		AllowedOrigins:    []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Load reads .env, the environment and then args (without the program
// name). pflag.ErrHelp is returned unchanged when -h is given.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv, args)
}

// FromEnv is Load without touching the process environment.
func FromEnv(getenv func(string) string, args []string) (Config, error) {
	cfg := defaults()

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	cfg.AdminCode = getenv("ADMIN_CODE")
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("RECONCILE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("RECONCILE_INTERVAL: %w", err)
		}
		cfg.ReconcileInterval = d
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	flagSet := pflag.NewFlagSet("parkingpass", pflag.ContinueOnError)
	flagSet.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flagSet.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	flagSet.StringVar(&cfg.AdminCode, "admin-code", cfg.AdminCode, "access code for admin routes")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flagSet.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "party-day reconciliation period, 0 disables")
	flagSet.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "CORS allowed origins")
	if err := flagSet.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.AdminCode == "" {
		return errors.New("ADMIN_CODE is required")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("reconcile interval must not be negative: %s", c.ReconcileInterval)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
