// Package config loads optional YAML configuration for the CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File mirrors the YAML config file. Zero values mean "use the default";
// command-line flags override anything set here.
type File struct {
	Model          string `yaml:"model"`
	MaxToolRounds  int    `yaml:"max_tool_rounds"`
	Debug          bool   `yaml:"debug"`
	EnablePlanning bool   `yaml:"enable_planning"`
	Shell          string `yaml:"shell"`
	StateDir       string `yaml:"state_dir"`
	HistoryPath    string `yaml:"history_path"`
}

// Load reads a config file. A missing file is not an error; it yields the
// zero value so every setting falls back to its default.
func Load(path string) (File, error) {
	var cfg File

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
