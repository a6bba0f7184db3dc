// Package config provides shared configuration defaults for pawndbg and
// loading of the optional YAML config file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRemotePort is the default TCP port of the GDB remote stub.
const DefaultRemotePort = 12345

// DefaultMetricsAddr is the default listen address of the metrics endpoint.
// Empty means disabled.
const DefaultMetricsAddr = ""

// DefaultHistoryFile is where the interactive console keeps its command
// history, relative to the user's home directory.
const DefaultHistoryFile = ".pawndbg_history"

// Config is the on-disk configuration. Every field is optional; zero
// values fall back to the defaults above.
type Config struct {
	// RemotePort is the TCP port the GDB remote stub listens on. 0 keeps
	// the remote stub off.
	RemotePort int `yaml:"remote_port"`

	// MetricsAddr is the listen address of the Prometheus endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// HistoryFile overrides the console history location.
	HistoryFile string `yaml:"history_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json"`

	// Tracing controls the OpenTelemetry exporter.
	Tracing struct {
		Enabled      bool    `yaml:"enabled"`
		Exporter     string  `yaml:"exporter"`
		OTLPEndpoint string  `yaml:"otlp_endpoint"`
		SamplingRate float64 `yaml:"sampling_rate"`
	} `yaml:"tracing"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		MetricsAddr: DefaultMetricsAddr,
		HistoryFile: DefaultHistoryFile,
		LogLevel:    "info",
	}
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SamplingRate = 1.0
	return cfg
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
