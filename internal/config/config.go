// Package config loads the gateway configuration from YAML or JSON text,
// with environment-variable interpolation applied to the raw text before
// decoding.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Logger    LoggerConfig     `yaml:"logger"`
	Sources   []SourceConfig   `yaml:"sources"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Plugins   []PluginConfig   `yaml:"plugins"`
}

// ServerConfig is the standalone shell's bind address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggerConfig selects the log handler and level.
type LoggerConfig struct {
	Format               string `yaml:"format"`
	Filter               string `yaml:"filter"`
	PrintPerformanceInfo bool   `yaml:"print_performance_info"`
}

// SourceConfig declares one upstream source.
type SourceConfig struct {
	Type   string         `yaml:"type"`
	ID     string         `yaml:"id"`
	Config map[string]any `yaml:"config"`
}

// EndpointConfig mounts a route at Path, bound to the source named by From.
// Endpoint-level plugins extend the global plugin list, they do not replace
// it.
type EndpointConfig struct {
	Path    string         `yaml:"path"`
	From    string         `yaml:"from"`
	Plugins []PluginConfig `yaml:"plugins"`
}

// PluginConfig declares one plugin instance.
type PluginConfig struct {
	Type   string         `yaml:"type"`
	Config map[string]any `yaml:"config"`
}

// Source types recognized by the loader.
const (
	SourceTypeGraphQL    = "graphql"
	SourceTypeFederation = "federation"
	SourceTypeMock       = "mock"
)

// Load reads, interpolates, decodes and validates a config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates inline config text. YAML is a superset of
// JSON, so both formats go through the same decoder.
func Parse(raw []byte) (*Config, error) {
	interpolated, err := Interpolate(string(raw), os.LookupEnv)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9000
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
}

func (c *Config) validate() error {
	switch c.Logger.Format {
	case "json", "pretty", "compact":
	default:
		return fmt.Errorf("unknown logger format %q", c.Logger.Format)
	}

	sourceIDs := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d] is missing an id", i)
		}
		if sourceIDs[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		sourceIDs[src.ID] = true

		switch src.Type {
		case SourceTypeGraphQL, SourceTypeFederation, SourceTypeMock:
		default:
			return fmt.Errorf("source %q has unknown type %q", src.ID, src.Type)
		}
	}

	if len(c.Endpoints) == 0 {
		return fmt.Errorf("config declares no endpoints")
	}
	for i, ep := range c.Endpoints {
		if ep.Path == "" {
			return fmt.Errorf("endpoints[%d] is missing a path", i)
		}
		if !sourceIDs[ep.From] {
			return fmt.Errorf("endpoint %q references unknown source %q", ep.Path, ep.From)
		}
	}

	return nil
}
