package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config controls logging and how captured traces are displayed.
type Config struct {
	Log struct {
		Debug   bool `yaml:"debug"`
		NoColor bool `yaml:"no_color"`
	} `yaml:"log"`
	Capture struct {
		// ContextLines is the number of source lines shown around each
		// frame's call site; 0 disables source context.
		ContextLines int `yaml:"context_lines"`
		// SkipPrefixes hides frames whose package path starts with any
		// of these prefixes.
		SkipPrefixes []string `yaml:"skip_prefixes"`
	} `yaml:"capture"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Capture.SkipPrefixes = []string{"runtime", "testing"}
	return cfg
}

func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
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
