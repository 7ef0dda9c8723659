package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envConfig is the CLI configuration read from FEELEDGER_* variables.
type envConfig struct {
	LogLevel      string `env:"FEELEDGER_LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"FEELEDGER_LOG_FORMAT" envDefault:"text"`
	Deployment    string `env:"FEELEDGER_DEPLOYMENT"`
	Administrator string `env:"FEELEDGER_ADMINISTRATOR"`
	SwapRateBps   uint64 `env:"FEELEDGER_SWAP_RATE_BPS" envDefault:"10000"`
}

// loadEnv loads envFile (or ./.env when empty and present) and parses the
// environment into an envConfig.
func loadEnv(envFile string) (envConfig, error) {
	var cfg envConfig
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// newLogger builds the slog logger selected by level and format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
