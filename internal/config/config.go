// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string        `yaml:"environment"`
	Server      ServerConfig  `yaml:"server"`
	Storage     StorageConfig `yaml:"storage"`
	Sampler     SamplerConfig `yaml:"sampler"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Logging     LoggingConfig `yaml:"logging"`
	Limits      LimitsConfig  `yaml:"limits"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SamplerConfig struct {
	Interval time.Duration `yaml:"interval"`
	Source   string        `yaml:"source"`
	Fields   []string      `yaml:"fields"`
	Seed     int64         `yaml:"seed"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type LimitsConfig struct {
	MaxRequestSize int `yaml:"max_request_size"`
}

// DefaultFields are the measurements of the reference weather shield.
var DefaultFields = []string{
	"CelsiusTemperature",
	"Humidity",
	"BarometricPressure",
	"Altitude",
	"AmbientLight",
}

// Default returns a configuration that runs without a config file.
func Default() *Config {
	return &Config{
		Environment: "default",
		Server: ServerConfig{
			Port:            50001,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    "data",
		},
		Sampler: SamplerConfig{
			Interval: 2 * time.Second,
			Source:   "simulated",
			Fields:   append([]string(nil), DefaultFields...),
		},
		Metrics: MetricsConfig{
			Port: 9100,
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Limits: LimitsConfig{
			MaxRequestSize: 64 * 1024,
		},
	}
}

// Address is the query server's listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if c.Sampler.Interval <= 0 {
		errs = append(errs, errors.New("sampler.interval must be positive"))
	}
	if c.Sampler.Source != "simulated" && c.Sampler.Source != "none" {
		errs = append(errs, fmt.Errorf("sampler.source %q is not supported", c.Sampler.Source))
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage is enabled"))
	}
	if c.Limits.MaxRequestSize <= 0 {
		errs = append(errs, errors.New("limits.max_request_size must be positive"))
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
	}
	return errors.Join(errs...)
}

func findProjectRoot() (string, error) {
	// Start from the current working directory
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find the config directory
	for {
		if _, err := os.Stat(filepath.Join(dir, "config")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("could not find project root (no config directory found)")
		}
		dir = parent
	}
}

// LoadConfig reads config/<env>.yaml (or .yml) from the project root over
// the defaults.
func LoadConfig(env string) (*Config, error) {
	projectRoot, err := findProjectRoot()
	if err != nil {
		return nil, fmt.Errorf("error finding project root: %w", err)
	}

	// Try loading with .yaml extension first
	configPath := filepath.Join(projectRoot, "config", fmt.Sprintf("%s.yaml", env))
	if _, err := os.Stat(configPath); err != nil {
		configPath = filepath.Join(projectRoot, "config", fmt.Sprintf("%s.yml", env))
	}

	config, err := LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	config.Environment = env
	return config, nil
}

// LoadFile reads one YAML file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return config, nil
}
