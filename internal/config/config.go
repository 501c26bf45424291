package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"auditline/internal/domain"
	"auditline/internal/logging"
)

// Config models auditline.yml.
type Config struct {
	Storage struct {
		ObservationsKey string `yaml:"observations_key"`
		AssigneesKey    string `yaml:"assignees_key"`
		ThemeKey        string `yaml:"theme_key"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Serve struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"serve"`
	Defaults struct {
		Severity domain.Severity `yaml:"severity"`
	} `yaml:"defaults"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with al config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default() if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	keys := map[string]string{
		"storage.observations_key": c.Storage.ObservationsKey,
		"storage.assignees_key":    c.Storage.AssigneesKey,
		"storage.theme_key":        c.Storage.ThemeKey,
	}
	seen := map[string]string{}
	for _, field := range []string{"storage.observations_key", "storage.assignees_key", "storage.theme_key"} {
		key := keys[field]
		if key == "" {
			return fmt.Errorf("config.%s is required", field)
		}
		if other, ok := seen[key]; ok {
			return fmt.Errorf("config.%s duplicates config.%s (%q)", field, other, key)
		}
		seen[key] = field
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("config.log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	if !logging.ValidFormat(c.Log.Format) {
		return fmt.Errorf("config.log.format %q must be text or json", c.Log.Format)
	}
	if c.Serve.Addr == "" {
		return fmt.Errorf("config.serve.addr is required")
	}
	if c.Serve.BasePath != "" && c.Serve.BasePath[0] != '/' {
		return fmt.Errorf("config.serve.base_path must start with /")
	}
	if !c.Defaults.Severity.Valid() {
		return fmt.Errorf("config.defaults.severity %q is not a severity", c.Defaults.Severity)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "auditline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// WriteDefault writes the default config into workspace. An existing file is
// only replaced when force is set.
func WriteDefault(workspace string, force bool) (string, error) {
	path := Path(workspace)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config %s already exists (use --force to overwrite)", path)
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	if err := os.WriteFile(path, []byte(GenerateDefault()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config back to YAML.
func (c *Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const defaultTemplate = `storage:
  observations_key: audit-observations
  assignees_key: audit-assignees
  theme_key: darkMode

log:
  level: info
  format: text

serve:
  addr: 127.0.0.1:8080
  base_path: /v0

defaults:
  severity: High
`
