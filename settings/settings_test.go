package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/transcript"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, transcript.DefaultMaxBytes, cfg.Transcript.MaxBytes)
	assert.NotEmpty(t, cfg.Transcript.Dir)
	assert.False(t, cfg.Relay.Enabled)
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transcript:
  dir: /tmp/transcripts
  maxBytes: 1048576
relay:
  enabled: true
  url: ws://localhost:9000/events
providers:
  claude:
    model: opus
    extraArgs: ["--dangerously-skip-permissions"]
    env:
      ANTHROPIC_BASE_URL: http://localhost:8080
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/transcripts", cfg.Transcript.Dir)
	assert.Equal(t, 1048576, cfg.Transcript.MaxBytes)
	assert.True(t, cfg.Relay.Enabled)
	assert.Equal(t, "ws://localhost:9000/events", cfg.Relay.URL)

	pc := cfg.Provider("claude")
	assert.Equal(t, "opus", pc.Model)
	assert.Equal(t, []string{"--dangerously-skip-permissions"}, pc.ExtraArgs)
	assert.Equal(t, "http://localhost:8080", pc.Env["ANTHROPIC_BASE_URL"])

	// Unknown providers read as zero-valued overrides.
	assert.Empty(t, cfg.Provider("codex").ExtraArgs)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transcript: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadBackfillsZeroCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  enabled: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, transcript.DefaultMaxBytes, cfg.Transcript.MaxBytes)
}

func TestReadProviderSettingsToleratesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  // model for headless runs
  "model": "sonnet",
  "permissions": {
    "allow": ["Read", "Grep"], // trailing comma next line
  },
}`), 0o644))

	got, err := ReadProviderSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "sonnet", got["model"])
	perms := got["permissions"].(map[string]interface{})
	assert.Equal(t, []interface{}{"Read", "Grep"}, perms["allow"])
}

func TestReadProviderSettingsMissingFile(t *testing.T) {
	got, err := ReadProviderSettings(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, got)
}
