// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the trading service.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Trading   Trading   `yaml:"trading"`
	Feed      Feed      `yaml:"feed"`
	Candles   Candles   `yaml:"candles"`
	Strategy  Strategy  `yaml:"strategy"`
	Journal   Journal   `yaml:"journal"`
	NATS      NATS      `yaml:"nats"`
	Tracing   Tracing   `yaml:"tracing"`
	Profiling Profiling `yaml:"profiling"`
}

// Server holds network listener configuration.
type Server struct {
	Port        int `yaml:"port"`
	MetricsPort int `yaml:"metrics_port"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Trading defines portfolio and execution parameters.
type Trading struct {
	InitialCapital     float64  `yaml:"initial_capital"`
	CommissionPerShare float64  `yaml:"commission_per_share"`
	Symbols            []string `yaml:"symbols"`
}

// Feed controls the synthetic market data feed.
type Feed struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	Scenario        string `yaml:"scenario"`
}

// Candles controls candle aggregation and archival.
type Candles struct {
	IntervalSeconds int    `yaml:"interval_seconds"`
	History         int    `yaml:"history"`
	ArchiveDir      string `yaml:"archive_dir"`
}

// Strategy controls the momentum strategy loop.
type Strategy struct {
	Enabled         bool    `yaml:"enabled"`
	ShortWindow     int     `yaml:"short_window"`
	LongWindow      int     `yaml:"long_window"`
	Threshold       float64 `yaml:"threshold"`
	PositionSize    float64 `yaml:"position_size"`
	IntervalSeconds int     `yaml:"interval_seconds"`
}

// Journal configures the SQLite trade journal.
type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NATS configures the event stream publisher.
type NATS struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Tracing configures OpenTelemetry export.
type Tracing struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
}

// Profiling configures continuous profiling.
type Profiling struct {
	Enabled       bool   `yaml:"enabled"`
	ServerAddress string `yaml:"server_address"`
}

// Default returns the built-in configuration used when no file or
// override supplies a value.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:        8080,
			MetricsPort: 9090,
		},
		Logging: Logging{
			Level: "info",
		},
		Trading: Trading{
			InitialCapital:     100000,
			CommissionPerShare: 0,
			Symbols:            []string{"AAPL", "MSFT", "GOOGL", "TSLA"},
		},
		Feed: Feed{
			IntervalSeconds: 5,
			Scenario:        "normal",
		},
		Candles: Candles{
			IntervalSeconds: 60,
			History:         500,
			ArchiveDir:      "",
		},
		Strategy: Strategy{
			Enabled:         false,
			ShortWindow:     5,
			LongWindow:      20,
			Threshold:       0.01,
			PositionSize:    100,
			IntervalSeconds: 60,
		},
		Journal: Journal{
			Enabled: false,
			Path:    "trading.db",
		},
		NATS: NATS{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "trading",
		},
		Tracing: Tracing{
			Enabled:     false,
			ServiceName: "algo-trading",
			Endpoint:    "localhost:4317",
		},
		Profiling: Profiling{
			Enabled:       false,
			ServerAddress: "http://localhost:4040",
		},
	}
}

// Load reads the YAML configuration file at the given path into the
// defaults, then applies environment variable overrides. A missing file
// is not an error; the defaults plus overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Run on defaults.
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and
// overrides the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Trading.InitialCapital = f
		}
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.Enabled = true
		cfg.NATS.URL = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("PYROSCOPE_ADDRESS"); v != "" {
		cfg.Profiling.Enabled = true
		cfg.Profiling.ServerAddress = v
	}
}
