package parser

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a configuration document. Unknown keys are rejected so
// typos in widget definitions surface at load time.
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFile reads, substitutes and validates a configuration file
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	cfg, err := ParseYAML(content)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	cfg.Dir = filepath.Dir(path)

	if err := SubstituteEnvVarsInConfig(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StorePath resolves the file store path against the config directory
func (c *Config) StorePath() string {
	if c.Store.Path == "" || filepath.IsAbs(c.Store.Path) || c.Dir == "" {
		return c.Store.Path
	}
	return filepath.Join(c.Dir, c.Store.Path)
}
