package provider

import (
	"encoding/json"
	"strings"

	"github.com/agentdeck/agentdeck/binpath"
)

// Codex integrates the Codex CLI. Headless JSON output and hook payloads
// are supported; there is no structured adapter and no permission protocol.
type Codex struct {
	descriptor
}

// NewCodex constructs the Codex provider descriptor.
func NewCodex(resolver *binpath.Resolver) *Codex {
	return &Codex{descriptor: descriptor{
		resolver:    resolver,
		id:          "codex",
		displayName: "Codex",
		conventions: Conventions{
			ConfigDir:        ".codex",
			InstructionsFile: "AGENTS.md",
			MCPConfigFile:    "config.toml",
			SettingsFormat:   SettingsTOML,
		},
		caps: Capabilities{
			Headless:      true,
			StreamJSON:    true,
			Hooks:         true,
			SessionResume: true,
		},
		candidates: []string{"codex"},
		wellKnownPaths: []string{
			"~/.local/bin/codex",
			"/usr/local/bin/codex",
			"/opt/homebrew/bin/codex",
		},
		models: []ModelOption{
			{ID: "gpt-5-codex", Label: "GPT-5 Codex", Default: true},
			{ID: "gpt-5", Label: "GPT-5"},
		},
		toolVerbs: map[string]string{
			"shell":       "Executing",
			"apply_patch": "Patching",
		},
	}}
}

// BuildSpawnCommand builds the interactive invocation.
func (p *Codex) BuildSpawnCommand(opts SpawnOptions) (SpawnCommand, error) {
	var args []string
	if opts.Model != "" {
		args = append(args, "-m", opts.Model)
	}
	if opts.Resume != "" {
		args = append(args, "resume", opts.Resume)
	}
	args = append(args, opts.ExtraArgs...)
	return SpawnCommand{Binary: "codex", Args: args, Env: opts.Env}, nil
}

// BuildHeadlessCommand builds `codex exec --json`. Codex has no plain-text
// headless mode worth using; text output requests drop the --json flag.
func (p *Codex) BuildHeadlessCommand(opts SpawnOptions) (SpawnCommand, error) {
	args := []string{"exec"}
	// The resume subcommand takes the session id positionally, directly
	// after "exec resume".
	if opts.Resume != "" {
		args = append(args, "resume", opts.Resume)
	}

	format := opts.OutputFormat
	if format == "" || format == OutputStreamJSON {
		args = append(args, "--json")
	}

	if opts.Model != "" {
		args = append(args, "-m", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, opts.Prompt)

	return SpawnCommand{Binary: "codex", Args: args, Env: opts.Env}, nil
}

// codexHookPayload is the raw Codex event envelope: the interesting data is
// nested under msg with its own type discriminator.
type codexHookPayload struct {
	Msg struct {
		Type             string   `json:"type"`
		CallID           string   `json:"call_id"`
		Command          []string `json:"command"`
		ExitCode         *int     `json:"exit_code"`
		Message          string   `json:"message"`
		LastAgentMessage string   `json:"last_agent_message"`
	} `json:"msg"`
}

// ParseHookEvent maps a Codex event envelope to the canonical shape.
func (p *Codex) ParseHookEvent(raw []byte) (HookEvent, bool) {
	var payload codexHookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return HookEvent{}, false
	}

	command := strings.Join(payload.Msg.Command, " ")
	switch payload.Msg.Type {
	case "exec_command_begin":
		return HookEvent{
			Kind:      HookPreTool,
			ToolName:  "shell",
			ToolInput: map[string]interface{}{"command": command},
		}, true
	case "exec_command_end":
		if payload.Msg.ExitCode != nil && *payload.Msg.ExitCode != 0 {
			return HookEvent{Kind: HookToolError, ToolName: "shell", Message: command}, true
		}
		return HookEvent{
			Kind:      HookPostTool,
			ToolName:  "shell",
			ToolInput: map[string]interface{}{"command": command},
		}, true
	case "task_complete":
		return HookEvent{Kind: HookStop, Message: payload.Msg.LastAgentMessage}, true
	case "error":
		return HookEvent{Kind: HookToolError, Message: payload.Msg.Message}, true
	case "agent_message":
		return HookEvent{Kind: HookNotification, Message: payload.Msg.Message}, true
	default:
		return HookEvent{}, false
	}
}

// CreateStructuredAdapter reports structured mode as unsupported.
func (p *Codex) CreateStructuredAdapter() (StructuredAdapter, error) {
	return nil, ErrStructuredUnsupported
}
