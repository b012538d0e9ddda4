// Package provider declares the per-tool conventions and capabilities of the
// supported coding-agent CLIs behind one interface. Heterogeneous tool
// behavior is modeled as a closed set of variants plus capability flags;
// callers must branch on the flags rather than assume uniform support.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sentinel errors for capability gaps.
var (
	// ErrHeadlessUnsupported is returned by BuildHeadlessCommand for
	// providers whose Capabilities().Headless is false.
	ErrHeadlessUnsupported = errors.New("provider does not support headless execution")
	// ErrStructuredUnsupported is returned when a structured adapter is
	// requested from a provider without structured-mode support.
	ErrStructuredUnsupported = errors.New("provider does not support structured sessions")
)

// SettingsFormat identifies how a provider persists its settings file.
type SettingsFormat string

const (
	SettingsJSON SettingsFormat = "json"
	SettingsTOML SettingsFormat = "toml"
	SettingsYAML SettingsFormat = "yaml"
)

// Conventions describes where a tool keeps its configuration on disk.
type Conventions struct {
	// ConfigDir is the tool's configuration directory relative to $HOME.
	ConfigDir string
	// InstructionsFile is the per-project instructions filename (e.g.
	// CLAUDE.md, AGENTS.md).
	InstructionsFile string
	// MCPConfigFile is the per-project MCP server configuration filename.
	MCPConfigFile string
	// SettingsFormat is the settings file format.
	SettingsFormat SettingsFormat
}

// Capabilities is the per-provider feature matrix.
type Capabilities struct {
	// Headless indicates non-interactive one-shot execution support.
	Headless bool
	// StreamJSON indicates headless output can be newline-delimited JSON.
	// Without it, headless sessions run in text mode.
	StreamJSON bool
	// Hooks indicates the tool emits hook payloads we can normalize.
	Hooks bool
	// SessionResume indicates a previous session can be continued by id.
	SessionResume bool
	// Permissions indicates tool-approval gating is supported.
	Permissions bool
	// Structured indicates an adapter-driven structured session mode.
	Structured bool
}

// OutputFormat selects how headless stdout is interpreted.
type OutputFormat string

const (
	// OutputStreamJSON parses stdout as newline-delimited JSON events.
	OutputStreamJSON OutputFormat = "stream-json"
	// OutputText accumulates stdout verbatim.
	OutputText OutputFormat = "text"
)

// SpawnOptions configures a spawn or headless command build.
type SpawnOptions struct {
	Env            map[string]string
	Prompt         string
	Model          string
	WorkDir        string
	SystemPrompt   string
	PermissionMode string
	// Resume is a previous session id to continue. Ignored by providers
	// without SessionResume capability.
	Resume string
	// OutputFormat is the requested headless output interpretation. An
	// empty value means OutputStreamJSON where supported, OutputText
	// otherwise.
	OutputFormat OutputFormat
	ExtraArgs    []string
}

// SpawnCommand is the provider's answer to "how do I run you": a binary
// name (not yet resolved to a path), an argv tail, and extra environment.
type SpawnCommand struct {
	Env    map[string]string
	Binary string
	Args   []string
}

// Availability is the result of probing a provider binary. It is a value,
// never an error: a missing binary is an expected state, not a failure.
type Availability struct {
	Available bool
	Path      string
	Version   string
	Err       string
}

// ModelOption is one selectable model for a provider.
type ModelOption struct {
	ID      string
	Label   string
	Default bool
}

// Provider is the uniform interface over one coding-agent CLI integration.
// Descriptors are immutable: constructed at startup, never mutated.
type Provider interface {
	// ID returns the stable provider identifier (e.g. "claude").
	ID() string

	// DisplayName returns the human-readable tool name.
	DisplayName() string

	// Conventions returns the tool's on-disk configuration conventions.
	Conventions() Conventions

	// Capabilities returns the feature matrix for this tool.
	Capabilities() Capabilities

	// CheckAvailability probes for the tool binary. It never returns an
	// error; absence is reported through the Availability value.
	CheckAvailability(ctx context.Context) Availability

	// BuildSpawnCommand builds the interactive spawn command.
	BuildSpawnCommand(opts SpawnOptions) (SpawnCommand, error)

	// BuildHeadlessCommand builds the non-interactive command. Providers
	// without Headless capability return ErrHeadlessUnsupported.
	BuildHeadlessCommand(opts SpawnOptions) (SpawnCommand, error)

	// ParseHookEvent maps one raw hook payload into the canonical shape.
	// Unrecognized payloads return ok=false and are dropped, not errored.
	ParseHookEvent(raw []byte) (HookEvent, bool)

	// DefaultPermissions returns the tool names auto-approved under the
	// given permission kind.
	DefaultPermissions(kind string) []string

	// ToolVerb returns a short present-progressive verb for a tool name,
	// for UI display ("Edit" -> "Editing").
	ToolVerb(name string) string

	// ModelOptions returns the selectable models for this tool.
	ModelOptions() []ModelOption

	// ReadInstructions reads the per-project instructions file from dir.
	ReadInstructions(dir string) (string, error)

	// WriteInstructions writes the per-project instructions file in dir.
	WriteInstructions(dir, content string) error

	// CreateStructuredAdapter returns a fresh structured-session adapter,
	// or ErrStructuredUnsupported when Capabilities().Structured is false.
	CreateStructuredAdapter() (StructuredAdapter, error)
}

// readInstructionsFile is the shared ReadInstructions implementation.
func readInstructionsFile(dir, filename string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read instructions: %w", err)
	}
	return string(data), nil
}

// writeInstructionsFile is the shared WriteInstructions implementation.
func writeInstructionsFile(dir, filename, content string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write instructions: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write instructions: %w", err)
	}
	return nil
}
