// Package config loads sim-server configuration from defaults, an optional
// YAML file, and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/item-routing-simulator/internal/logging"
	"github.com/signalsfoundry/item-routing-simulator/internal/observability"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all server configuration.
type Config struct {
	Server     ServerConfig                `yaml:"server"`
	Simulation SimulationConfig            `yaml:"simulation"`
	Log        LogConfig                   `yaml:"log"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SimulationConfig bounds what a single request may ask for.
type SimulationConfig struct {
	MaxRounds     int     `yaml:"max_rounds"`
	MaxAgents     int     `yaml:"max_agents"`
	DefaultRounds int     `yaml:"default_rounds"`
	RunHistory    int     `yaml:"run_history"`
	RateLimit     float64 `yaml:"rate_limit"` // run requests per second; 0 disables
	RateBurst     int     `yaml:"rate_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Logging converts the log section into a logging.Config.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format}
}

// Load reads configuration from a YAML file, then applies environment
// variable overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, fmt.Errorf("load yaml config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			MetricsAddr:     ":9090",
			ShutdownTimeout: 10 * time.Second,
		},
		Simulation: SimulationConfig{
			MaxRounds:     100000,
			MaxAgents:     256,
			DefaultRounds: 20,
			RunHistory:    1024,
			RateLimit:     20,
			RateBurst:     40,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: observability.DefaultTracingConfig(),
	}
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SIM_HTTP_ADDR"); v != "" {
		cfg.Server.HTTPAddr = v
	}
	if v := os.Getenv("SIM_GRPC_ADDR"); v != "" {
		cfg.Server.GRPCAddr = v
	}
	if v := os.Getenv("SIM_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	if v := os.Getenv("SIM_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("SIM_MAX_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.MaxRounds = n
		}
	}
	if v := os.Getenv("SIM_MAX_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Simulation.MaxAgents = n
		}
	}
	if v := os.Getenv("SIM_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Simulation.RateLimit = f
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	cfg.Tracing = observability.ApplyTracingEnv(cfg.Tracing)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.HTTPAddr == "" {
		bad("server.http_addr is empty")
	}
	if c.Server.GRPCAddr == "" {
		bad("server.grpc_addr is empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		bad("server.shutdown_timeout must be positive")
	}
	if c.Simulation.MaxRounds <= 0 {
		bad("simulation.max_rounds must be positive, got %d", c.Simulation.MaxRounds)
	}
	if c.Simulation.MaxAgents < 2 {
		bad("simulation.max_agents must be at least 2, got %d", c.Simulation.MaxAgents)
	}
	if c.Simulation.DefaultRounds <= 0 || c.Simulation.DefaultRounds > c.Simulation.MaxRounds {
		bad("simulation.default_rounds must be in [1,%d], got %d", c.Simulation.MaxRounds, c.Simulation.DefaultRounds)
	}
	if c.Simulation.RunHistory <= 0 {
		bad("simulation.run_history must be positive")
	}
	if c.Simulation.RateLimit < 0 {
		bad("simulation.rate_limit must not be negative")
	}
	if c.Simulation.RateLimit > 0 && c.Simulation.RateBurst <= 0 {
		bad("simulation.rate_burst must be positive when rate_limit is set")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		bad("log.format %q is not text or json", c.Log.Format)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		bad("tracing.sample_ratio must be in [0,1]")
	}
	return errors.Join(errs...)
}
