package headless

import (
	"encoding/json"

	"github.com/agentdeck/agentdeck/provider"
)

// streamRecord is the slice of a stream-json stdout line the classifier
// needs. Cost and duration stay on the raw record in the transcript; the
// canonical hook shape does not carry them.
type streamRecord struct {
	Message *streamMessage `json:"message"`
	Type    string         `json:"type"`
	Result  string         `json:"result"`
}

type streamMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Input   map[string]interface{} `json:"input"`
	Type    string                 `json:"type"`
	Name    string                 `json:"name"`
	Content json.RawMessage        `json:"content"`
}

// classifyStreamLine maps one parsed stdout line to its hook events.
// Assistant messages yield one pre_tool per tool-invocation block, user
// messages one post_tool per tool-result block, and a terminal result
// record yields stop with the result text. Anything else yields nothing.
func classifyStreamLine(rec streamRecord) []provider.HookEvent {
	switch rec.Type {
	case "assistant":
		if rec.Message == nil {
			return nil
		}
		var hooks []provider.HookEvent
		for _, block := range rec.Message.Content {
			if block.Type != "tool_use" {
				continue
			}
			hooks = append(hooks, provider.HookEvent{
				Kind:      provider.HookPreTool,
				ToolName:  block.Name,
				ToolInput: block.Input,
			})
		}
		return hooks
	case "user":
		if rec.Message == nil {
			return nil
		}
		var hooks []provider.HookEvent
		for _, block := range rec.Message.Content {
			if block.Type != "tool_result" {
				continue
			}
			hooks = append(hooks, provider.HookEvent{Kind: provider.HookPostTool})
		}
		return hooks
	case "result":
		return []provider.HookEvent{{
			Kind:    provider.HookStop,
			Message: rec.Result,
		}}
	}
	return nil
}
