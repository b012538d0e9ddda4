package provider

import (
	"encoding/json"

	"github.com/agentdeck/agentdeck/binpath"
)

// Claude integrates the Claude Code CLI. It is the most capable variant:
// headless stream-json output, hooks, resumable sessions, permission
// gating, and a structured adapter.
type Claude struct {
	descriptor
}

// NewClaude constructs the Claude provider descriptor.
func NewClaude(resolver *binpath.Resolver) *Claude {
	return &Claude{descriptor: descriptor{
		resolver:    resolver,
		id:          "claude",
		displayName: "Claude Code",
		conventions: Conventions{
			ConfigDir:        ".claude",
			InstructionsFile: "CLAUDE.md",
			MCPConfigFile:    ".mcp.json",
			SettingsFormat:   SettingsJSON,
		},
		caps: Capabilities{
			Headless:      true,
			StreamJSON:    true,
			Hooks:         true,
			SessionResume: true,
			Permissions:   true,
			Structured:    true,
		},
		candidates: []string{"claude"},
		wellKnownPaths: []string{
			"~/.claude/local/claude",
			"~/.local/bin/claude",
			"/usr/local/bin/claude",
			"/opt/homebrew/bin/claude",
		},
		models: []ModelOption{
			{ID: "sonnet", Label: "Sonnet", Default: true},
			{ID: "opus", Label: "Opus"},
			{ID: "haiku", Label: "Haiku"},
		},
		toolVerbs: map[string]string{
			"Edit":  "Editing",
			"Write": "Writing",
			"Read":  "Reading",
			"Bash":  "Executing",
			"Glob":  "Searching",
			"Grep":  "Searching",
		},
		permissions: map[string][]string{
			"read": {"Read", "Glob", "Grep"},
			"edit": {"Read", "Glob", "Grep", "Edit", "Write"},
			"all":  {"Read", "Glob", "Grep", "Edit", "Write", "Bash"},
		},
	}}
}

// BuildSpawnCommand builds the interactive invocation.
func (p *Claude) BuildSpawnCommand(opts SpawnOptions) (SpawnCommand, error) {
	var args []string
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	args = append(args, opts.ExtraArgs...)
	return SpawnCommand{Binary: "claude", Args: args, Env: opts.Env}, nil
}

// BuildHeadlessCommand builds the one-shot non-interactive invocation.
// Stream-json output requires --verbose, or the CLI suppresses the
// per-message events.
func (p *Claude) BuildHeadlessCommand(opts SpawnOptions) (SpawnCommand, error) {
	args := []string{"-p", opts.Prompt}

	format := opts.OutputFormat
	if format == "" {
		format = OutputStreamJSON
	}
	args = append(args, "--output-format", string(format))
	if format == OutputStreamJSON {
		args = append(args, "--verbose")
	}

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	args = append(args, opts.ExtraArgs...)

	return SpawnCommand{Binary: "claude", Args: args, Env: opts.Env}, nil
}

// claudeHookPayload is the raw hook shape Claude Code emits.
type claudeHookPayload struct {
	ToolInput     map[string]interface{} `json:"tool_input"`
	HookEventName string                 `json:"hook_event_name"`
	ToolName      string                 `json:"tool_name"`
	Message       string                 `json:"message"`
}

// ParseHookEvent maps a Claude Code hook payload to the canonical shape.
func (p *Claude) ParseHookEvent(raw []byte) (HookEvent, bool) {
	var payload claudeHookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return HookEvent{}, false
	}

	switch payload.HookEventName {
	case "PreToolUse":
		return HookEvent{Kind: HookPreTool, ToolName: payload.ToolName, ToolInput: payload.ToolInput}, true
	case "PostToolUse":
		return HookEvent{Kind: HookPostTool, ToolName: payload.ToolName, ToolInput: payload.ToolInput}, true
	case "Stop", "SubagentStop":
		return HookEvent{Kind: HookStop, Message: payload.Message}, true
	case "Notification":
		return HookEvent{Kind: HookNotification, Message: payload.Message}, true
	case "PermissionRequest":
		return HookEvent{Kind: HookPermissionRequest, ToolName: payload.ToolName, ToolInput: payload.ToolInput, Message: payload.Message}, true
	default:
		return HookEvent{}, false
	}
}

// CreateStructuredAdapter returns a fresh stream-json stdin/stdout adapter.
func (p *Claude) CreateStructuredAdapter() (StructuredAdapter, error) {
	return newClaudeAdapter(p.resolver), nil
}
