package provider

import "context"

// StructuredEventKind discriminates structured-session event kinds.
type StructuredEventKind string

const (
	StructuredText              StructuredEventKind = "text"
	StructuredThinking          StructuredEventKind = "thinking"
	StructuredToolStart         StructuredEventKind = "tool_start"
	StructuredToolEnd           StructuredEventKind = "tool_end"
	StructuredTurnComplete      StructuredEventKind = "turn_complete"
	StructuredPermissionRequest StructuredEventKind = "permission_request"
	StructuredError             StructuredEventKind = "error"
)

// StructuredEvent is one typed event yielded by a structured-session
// adapter. Events arrive strictly ordered on the adapter's channel.
type StructuredEvent struct {
	ToolInput  map[string]interface{} `json:"toolInput,omitempty"`
	ToolResult interface{}            `json:"toolResult,omitempty"`
	Kind       StructuredEventKind    `json:"kind"`
	Text       string                 `json:"text,omitempty"`
	ToolName   string                 `json:"toolName,omitempty"`
	ToolCallID string                 `json:"toolCallId,omitempty"`
	RequestID  string                 `json:"requestId,omitempty"`
	Message    string                 `json:"message,omitempty"`
	DurationMs int64                  `json:"durationMs,omitempty"`
	CostUSD    float64                `json:"costUsd,omitempty"`
	IsError    bool                   `json:"isError,omitempty"`
}

// HookEquivalent maps a structured event to its canonical hook event, if it
// has one. Text and thinking events are broadcast-only and return ok=false.
func (e StructuredEvent) HookEquivalent() (HookEvent, bool) {
	switch e.Kind {
	case StructuredToolStart:
		return HookEvent{Kind: HookPreTool, ToolName: e.ToolName, ToolInput: e.ToolInput}, true
	case StructuredToolEnd:
		return HookEvent{Kind: HookPostTool, ToolName: e.ToolName, ToolInput: e.ToolInput}, true
	case StructuredTurnComplete:
		return HookEvent{Kind: HookStop, Message: e.Message}, true
	case StructuredPermissionRequest:
		return HookEvent{Kind: HookPermissionRequest, ToolName: e.ToolName, ToolInput: e.ToolInput, Message: e.Message}, true
	case StructuredError:
		return HookEvent{Kind: HookToolError, ToolName: e.ToolName, Message: e.Message}, true
	default:
		return HookEvent{}, false
	}
}

// Terminal reports whether the event ends the session's event stream.
func (e StructuredEvent) Terminal() bool {
	return e.Kind == StructuredTurnComplete
}

// StructuredOptions configures an adapter start.
type StructuredOptions struct {
	Prompt       string
	Model        string
	WorkDir      string
	SystemPrompt string
	// Tools are client-side tool definitions advertised to the agent.
	Tools []ToolDef
}

// StructuredAdapter drives one structured session. Start yields an ordered
// event stream; the channel closes when the session ends or is cancelled.
// Cancel must be observable synchronously by the canceller: after Cancel
// returns, the adapter produces no further events.
type StructuredAdapter interface {
	Start(ctx context.Context, opts StructuredOptions) (<-chan StructuredEvent, error)
	SendMessage(ctx context.Context, text string) error
	RespondToPermission(ctx context.Context, requestID string, allow bool, message string) error
	Cancel() error
	Dispose() error
}
