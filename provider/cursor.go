package provider

import (
	"encoding/json"

	"github.com/agentdeck/agentdeck/binpath"
)

// Cursor integrates the Cursor Agent CLI. It runs one-shot with stream-json
// output; tool activity arrives as tool_call started/completed events.
type Cursor struct {
	descriptor
}

// NewCursor constructs the Cursor provider descriptor.
func NewCursor(resolver *binpath.Resolver) *Cursor {
	return &Cursor{descriptor: descriptor{
		resolver:    resolver,
		id:          "cursor",
		displayName: "Cursor Agent",
		conventions: Conventions{
			ConfigDir:        ".cursor",
			InstructionsFile: "AGENTS.md",
			MCPConfigFile:    "mcp.json",
			SettingsFormat:   SettingsJSON,
		},
		caps: Capabilities{
			Headless:   true,
			StreamJSON: true,
			Hooks:      true,
		},
		// The Cursor CLI installs as "cursor-agent" but some channels
		// shipped plain "agent".
		candidates: []string{"cursor-agent", "agent"},
		wellKnownPaths: []string{
			"~/.local/bin/cursor-agent",
			"/usr/local/bin/cursor-agent",
		},
		models: []ModelOption{
			{ID: "auto", Label: "Auto", Default: true},
		},
	}}
}

// BuildSpawnCommand builds the interactive invocation.
func (p *Cursor) BuildSpawnCommand(opts SpawnOptions) (SpawnCommand, error) {
	args := []string{"chat"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)
	return SpawnCommand{Binary: "cursor-agent", Args: args, Env: opts.Env}, nil
}

// BuildHeadlessCommand builds `agent chat -p <prompt> --output-format ...`.
func (p *Cursor) BuildHeadlessCommand(opts SpawnOptions) (SpawnCommand, error) {
	format := opts.OutputFormat
	if format == "" {
		format = OutputStreamJSON
	}
	args := []string{"chat", "-p", opts.Prompt, "--output-format", string(format)}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	args = append(args, opts.ExtraArgs...)
	return SpawnCommand{Binary: "cursor-agent", Args: args, Env: opts.Env}, nil
}

// cursorHookPayload is the raw Cursor tool_call event. The tool_call field
// is keyed by the tool type, each value holding that tool's arguments.
type cursorHookPayload struct {
	ToolCall map[string]map[string]interface{} `json:"tool_call"`
	Type     string                            `json:"type"`
	Subtype  string                            `json:"subtype"`
	Result   string                            `json:"result"`
	IsError  bool                              `json:"is_error"`
}

// ParseHookEvent maps a Cursor stream event to the canonical shape.
func (p *Cursor) ParseHookEvent(raw []byte) (HookEvent, bool) {
	var payload cursorHookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return HookEvent{}, false
	}

	switch payload.Type {
	case "tool_call":
		name, input := firstToolCall(payload.ToolCall)
		if name == "" {
			return HookEvent{}, false
		}
		switch payload.Subtype {
		case "started":
			return HookEvent{Kind: HookPreTool, ToolName: name, ToolInput: input}, true
		case "completed":
			return HookEvent{Kind: HookPostTool, ToolName: name, ToolInput: input}, true
		}
		return HookEvent{}, false
	case "result":
		if payload.IsError {
			return HookEvent{Kind: HookToolError, Message: payload.Result}, true
		}
		return HookEvent{Kind: HookStop, Message: payload.Result}, true
	default:
		return HookEvent{}, false
	}
}

// CreateStructuredAdapter reports structured mode as unsupported.
func (p *Cursor) CreateStructuredAdapter() (StructuredAdapter, error) {
	return nil, ErrStructuredUnsupported
}

func firstToolCall(calls map[string]map[string]interface{}) (string, map[string]interface{}) {
	for name, args := range calls {
		return name, args
	}
	return "", nil
}
