package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default output paths, relative to the working directory.
const (
	DefaultJSONOutput = "report.json"
	DefaultHTMLOutput = "report.html"
)

// Config represents an optional tdt configuration file.
type Config struct {
	Includes    []string     `yaml:"includes"`     // include globs
	Pattern     string       `yaml:"pattern"`      // line regexp
	Output      OutputConfig `yaml:"output"`       // report destinations
	Template    string       `yaml:"template"`     // mustache template path (empty = built-in)
	Workers     int          `yaml:"workers"`      // concurrent blames (default: 1)
	MetricsFile string       `yaml:"metrics_file"` // Prometheus textfile path (empty = disabled)
}

// OutputConfig contains report output paths.
type OutputConfig struct {
	JSON string `yaml:"json"`
	HTML string `yaml:"html"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Output.JSON == "" {
		c.Output.JSON = DefaultJSONOutput
	}
	if c.Output.HTML == "" {
		c.Output.HTML = DefaultHTMLOutput
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	for i, inc := range c.Includes {
		if inc == "" {
			return fmt.Errorf("includes[%d] is empty", i)
		}
	}
	if c.Output.JSON == c.Output.HTML {
		return fmt.Errorf("output.json and output.html must differ")
	}
	return nil
}
