// Package settings loads the application configuration: a YAML config file
// for agentdeck itself plus per-tool settings files in the formats the
// tools use (JSON with comments for claude-style settings).
package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/agentdeck/agentdeck/transcript"
)

// TranscriptConfig bounds the in-memory transcript buffers.
type TranscriptConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int    `yaml:"maxBytes"`
}

// RelayConfig enables the outbound event relay.
type RelayConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// ProviderConfig carries per-tool overrides.
type ProviderConfig struct {
	Env       map[string]string `yaml:"env"`
	Model     string            `yaml:"model"`
	ExtraArgs []string          `yaml:"extraArgs"`
}

// Config is the full agentdeck configuration.
type Config struct {
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Transcript TranscriptConfig          `yaml:"transcript"`
	Relay      RelayConfig               `yaml:"relay"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Transcript: TranscriptConfig{
			Dir:      defaultTranscriptDir(),
			MaxBytes: transcript.DefaultMaxBytes,
		},
	}
}

func defaultTranscriptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentdeck/transcripts"
	}
	return home + "/.agentdeck/transcripts"
}

// Load reads a YAML config file. A missing file yields the defaults; a
// present but malformed file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Transcript.MaxBytes <= 0 {
		cfg.Transcript.MaxBytes = transcript.DefaultMaxBytes
	}
	if cfg.Transcript.Dir == "" {
		cfg.Transcript.Dir = defaultTranscriptDir()
	}
	return cfg, nil
}

// Provider returns the overrides for one provider id, zero-valued when the
// config has none.
func (c *Config) Provider(id string) ProviderConfig {
	if c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[id]
}

// ReadProviderSettings parses a tool's own settings file. Claude-style
// settings files allow comments and trailing commas, so the content goes
// through a JSONC pass first.
func ReadProviderSettings(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("read provider settings: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON(data), &out); err != nil {
		return nil, fmt.Errorf("parse provider settings %s: %w", path, err)
	}
	return out, nil
}
