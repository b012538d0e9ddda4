package provider

// HookKind identifies the canonical lifecycle moment a hook event reports.
type HookKind string

const (
	// HookPreTool fires before a tool invocation runs.
	HookPreTool HookKind = "pre_tool"
	// HookPostTool fires after a tool invocation completes.
	HookPostTool HookKind = "post_tool"
	// HookToolError fires when a tool invocation fails.
	HookToolError HookKind = "tool_error"
	// HookStop fires when the agent finishes a turn or the session ends.
	HookStop HookKind = "stop"
	// HookNotification carries informational output (stderr lines, status).
	HookNotification HookKind = "notification"
	// HookPermissionRequest fires when the agent asks to run a gated tool.
	HookPermissionRequest HookKind = "permission_request"
)

// HookEvent is the canonical, provider-agnostic notification shape. Each
// provider maps its own raw hook payload (field names vary per tool) into
// this one; consumers never see tool-specific shapes.
type HookEvent struct {
	ToolInput map[string]interface{} `json:"toolInput,omitempty"`
	Kind      HookKind               `json:"kind"`
	ToolName  string                 `json:"toolName,omitempty"`
	Message   string                 `json:"message,omitempty"`
}
