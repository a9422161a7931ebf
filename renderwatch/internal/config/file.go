// Package config handles renderwatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level renderwatch configuration.
type Config struct {
	Profiler ProfilerConfig `yaml:"profiler"`
	Store    StoreConfig    `yaml:"store"`
	Serve    ServeConfig    `yaml:"serve"`
	Sinks    []SinkConfig   `yaml:"sinks"`
	Demo     DemoConfig     `yaml:"demo"`
}

// ProfilerConfig mirrors the programmatic profiler options that can be
// expressed in a file.
type ProfilerConfig struct {
	Session        string        `yaml:"session"`
	SnapshotDOM    bool          `yaml:"snapshot_dom"`
	Sanitize       bool          `yaml:"sanitize"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// StoreConfig locates the SQLite render store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServeConfig controls the inspection server.
type ServeConfig struct {
	Listen string `yaml:"listen"`
	MCP    bool   `yaml:"mcp"` // mount the MCP endpoint at /mcp
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string `yaml:"type"`    // stdout | webhook | store
	URL     string `yaml:"url"`     // for webhook
	Retries int    `yaml:"retries"` // for webhook

	// Webhook delivery blocks the profiled commit; these bound it.
	Backoff time.Duration `yaml:"backoff"` // first retry delay, doubled per attempt
	Timeout time.Duration `yaml:"timeout"` // per attempt
}

// DemoConfig drives the bundled demo component.
type DemoConfig struct {
	Updates  int           `yaml:"updates"`
	Interval time.Duration `yaml:"interval"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Profiler.DefaultTimeout <= 0 {
		c.Profiler.DefaultTimeout = time.Second
	}
	if c.Store.Path == "" {
		c.Store.Path = "renders.db"
	}
	if c.Serve.Listen == "" {
		c.Serve.Listen = "127.0.0.1:8089"
	}
	if c.Demo.Updates <= 0 {
		c.Demo.Updates = 3
	}
	if c.Demo.Interval <= 0 {
		c.Demo.Interval = 100 * time.Millisecond
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
}

func (c *Config) validate() error {
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout", "store":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook requires url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
