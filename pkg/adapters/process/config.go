package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandConfig describes one verification or fix command.
type CommandConfig struct {
	Name        string            `yaml:"name" json:"name" mapstructure:"name"`
	Command     string            `yaml:"command" json:"command" mapstructure:"command"`
	Args        []string          `yaml:"args" json:"args" mapstructure:"args"`
	Environment map[string]string `yaml:"env" json:"env" mapstructure:"env"`
	Description string            `yaml:"description" json:"description" mapstructure:"description"`
	// For names the verification commands a fix command addresses. Empty means any.
	For []string `yaml:"for" json:"for" mapstructure:"for"`
}

// ConfigFile represents the structure of verify.yaml.
type ConfigFile struct {
	Commands []CommandConfig `yaml:"commands" json:"commands"`
}

// LoadCommands reads a configuration file (YAML or JSON) and returns its commands
// in file order. A missing file yields no commands.
func LoadCommands(path string) ([]CommandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read verify config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	seen := make(map[string]bool, len(cfg.Commands))
	out := make([]CommandConfig, 0, len(cfg.Commands))
	for _, c := range cfg.Commands {
		if c.Command == "" {
			continue
		}
		if c.Name == "" {
			c.Name = c.Command
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate verify command %q", c.Name)
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out, nil
}
