package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/binpath"
	"github.com/agentdeck/agentdeck/internal/ndjson"
	"github.com/agentdeck/agentdeck/internal/procattr"
)

// claudeAdapter drives a Claude Code stream-json session over stdin/stdout.
// Events are produced strictly in arrival order; Cancel is synchronous: no
// event is emitted after it returns.
type claudeAdapter struct {
	resolver    *binpath.Resolver
	events      chan StructuredEvent
	done        chan struct{}
	stdin       io.WriteCloser
	proc        *claudeProc
	tools       []ToolDef
	toolsByName map[string]ToolDef
	startTime   time.Time
	writeMu     sync.Mutex
	mu          sync.Mutex
	doneOnce    sync.Once
	closeOnce   sync.Once
	started     bool
}

// claudeProc is the spawned CLI process and its stdout reader.
type claudeProc struct {
	wait   func() error
	signal func() error
	reader *ndjson.Reader
}

func newClaudeAdapter(resolver *binpath.Resolver) *claudeAdapter {
	return &claudeAdapter{
		resolver: resolver,
		events:   make(chan StructuredEvent, 64),
		done:     make(chan struct{}),
	}
}

// Start spawns the CLI and begins translating its output. The returned
// channel closes when the session ends or Cancel is called.
func (a *claudeAdapter) Start(ctx context.Context, opts StructuredOptions) (<-chan StructuredEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil, fmt.Errorf("structured session already started")
	}

	binary, err := a.resolver.Resolve(ctx, []string{"claude"}, nil)
	if err != nil {
		return nil, err
	}

	args := []string{
		"--print",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}

	cmd := procattr.Command(ctx, binary, args...)
	procattr.Set(cmd)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn claude: %w", err)
	}

	a.stdin = stdin
	a.proc = &claudeProc{
		reader: ndjson.NewReader(stdout),
		wait:   cmd.Wait,
		signal: func() error { return procattr.Terminate(cmd.Process) },
	}
	a.tools = opts.Tools
	a.toolsByName = make(map[string]ToolDef, len(opts.Tools))
	for _, tool := range opts.Tools {
		a.toolsByName[tool.Name] = tool
	}
	a.startTime = time.Now()
	a.started = true

	go a.readLoop(a.proc.reader)

	if opts.Prompt != "" {
		if err := a.writeUserMessage(opts.Prompt); err != nil {
			return nil, err
		}
	}

	return a.events, nil
}

// SendMessage writes a user message into the running session.
func (a *claudeAdapter) SendMessage(ctx context.Context, text string) error {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return fmt.Errorf("structured session not started")
	}
	return a.writeUserMessage(text)
}

// RespondToPermission answers a pending can_use_tool control request.
func (a *claudeAdapter) RespondToPermission(ctx context.Context, requestID string, allow bool, message string) error {
	behavior := "deny"
	if allow {
		behavior = "allow"
	}
	return a.writeJSON(map[string]interface{}{
		"type": "control_response",
		"response": map[string]interface{}{
			"subtype":    "success",
			"request_id": requestID,
			"response":   map[string]interface{}{"behavior": behavior, "message": message},
		},
	})
}

// Cancel terminates the session. Closing done first makes cancellation
// observable to the emit path before the process has actually exited, so no
// new event is produced after Cancel returns. Idempotent.
func (a *claudeAdapter) Cancel() error {
	a.mu.Lock()
	proc := a.proc
	started := a.started
	a.mu.Unlock()

	a.doneOnce.Do(func() { close(a.done) })
	if proc != nil {
		_ = proc.signal()
	}
	if !started {
		// Nothing will ever read the process; close the stream here.
		a.closeOnce.Do(func() { close(a.events) })
	}
	return nil
}

// Dispose releases the process. Safe after Cancel.
func (a *claudeAdapter) Dispose() error {
	a.mu.Lock()
	proc := a.proc
	stdin := a.stdin
	a.proc = nil
	a.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if proc != nil {
		_ = proc.wait()
	}
	return nil
}

// readLoop translates CLI output lines into structured events until EOF or
// cancellation. The reader is handed in rather than re-read from a.proc:
// Dispose clears a.proc under the mutex while this loop runs unlocked.
func (a *claudeAdapter) readLoop(reader *ndjson.Reader) {
	for {
		select {
		case <-a.done:
			return
		default:
		}

		line, err := reader.ReadLine()
		if err != nil {
			if err != io.EOF {
				a.emit(StructuredEvent{Kind: StructuredError, Message: err.Error()})
			}
			a.finish()
			return
		}
		a.handleLine(line)
	}
}

// finish ends the event stream. The read loop is the only event producer,
// so it alone closes the channel; Cancel only closes done.
func (a *claudeAdapter) finish() {
	a.doneOnce.Do(func() { close(a.done) })
	a.closeOnce.Do(func() { close(a.events) })
}

// handleLine classifies one stream-json line. Malformed lines are skipped.
func (a *claudeAdapter) handleLine(line []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &base); err != nil {
		return
	}

	switch base.Type {
	case "assistant":
		a.handleAssistant(line)
	case "user":
		a.handleUser(line)
	case "result":
		a.handleResult(line)
	case "control_request":
		a.handleControlRequest(line)
	}
}

type claudeContentBlock struct {
	Input     map[string]interface{} `json:"input"`
	Content   interface{}            `json:"content"`
	Type      string                 `json:"type"`
	Text      string                 `json:"text"`
	Thinking  string                 `json:"thinking"`
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	ToolUseID string                 `json:"tool_use_id"`
	IsError   bool                   `json:"is_error"`
}

type claudeMessageLine struct {
	Message struct {
		Content []claudeContentBlock `json:"content"`
	} `json:"message"`
}

func (a *claudeAdapter) handleAssistant(line []byte) {
	var msg claudeMessageLine
	if err := json.Unmarshal(line, &msg); err != nil {
		return
	}
	for _, block := range msg.Message.Content {
		switch block.Type {
		case "text":
			a.emit(StructuredEvent{Kind: StructuredText, Text: block.Text})
		case "thinking":
			a.emit(StructuredEvent{Kind: StructuredThinking, Text: block.Thinking})
		case "tool_use":
			a.emit(StructuredEvent{
				Kind:       StructuredToolStart,
				ToolName:   block.Name,
				ToolCallID: block.ID,
				ToolInput:  block.Input,
			})
		}
	}
}

func (a *claudeAdapter) handleUser(line []byte) {
	var msg claudeMessageLine
	if err := json.Unmarshal(line, &msg); err != nil {
		return
	}
	for _, block := range msg.Message.Content {
		if block.Type != "tool_result" {
			continue
		}
		a.emit(StructuredEvent{
			Kind:       StructuredToolEnd,
			ToolCallID: block.ToolUseID,
			ToolResult: block.Content,
			IsError:    block.IsError,
		})
	}
}

func (a *claudeAdapter) handleResult(line []byte) {
	var msg struct {
		Result     string  `json:"result"`
		CostUSD    float64 `json:"cost_usd"`
		TotalCost  float64 `json:"total_cost_usd"`
		DurationMs int64   `json:"duration_ms"`
		IsError    bool    `json:"is_error"`
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		return
	}
	cost := msg.CostUSD
	if cost == 0 {
		cost = msg.TotalCost
	}
	duration := msg.DurationMs
	if duration == 0 {
		duration = time.Since(a.startTime).Milliseconds()
	}
	a.emit(StructuredEvent{
		Kind:       StructuredTurnComplete,
		Message:    msg.Result,
		CostUSD:    cost,
		DurationMs: duration,
		IsError:    msg.IsError,
	})
}

// handleControlRequest surfaces permission requests and serves client tool
// calls (tools registered via StructuredOptions.Tools).
func (a *claudeAdapter) handleControlRequest(line []byte) {
	var msg struct {
		RequestID string `json:"request_id"`
		Request   struct {
			Subtype    string                 `json:"subtype"`
			ToolName   string                 `json:"tool_name"`
			Input      map[string]interface{} `json:"input"`
			MCPMessage json.RawMessage        `json:"mcp_message"`
		} `json:"request"`
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		return
	}

	switch msg.Request.Subtype {
	case "can_use_tool":
		a.emit(StructuredEvent{
			Kind:      StructuredPermissionRequest,
			RequestID: msg.RequestID,
			ToolName:  msg.Request.ToolName,
			ToolInput: msg.Request.Input,
		})
	case "mcp_message":
		a.handleToolCall(msg.RequestID, msg.Request.MCPMessage)
	}
}

// handleToolCall invokes a registered client tool and writes the response.
// Tool handlers can block, so the call runs on its own goroutine.
func (a *claudeAdapter) handleToolCall(requestID string, raw json.RawMessage) {
	var rpc struct {
		Method string `json:"method"`
		Params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"params"`
	}
	if err := json.Unmarshal(raw, &rpc); err != nil || rpc.Method != "tools/call" {
		return
	}

	tool, ok := a.toolsByName[rpc.Params.Name]
	if !ok {
		return
	}

	go func() {
		result, err := tool.Invoke(context.Background(), rpc.Params.Arguments)
		isError := err != nil
		if isError {
			result = err.Error()
			a.emit(StructuredEvent{Kind: StructuredError, ToolName: tool.Name, Message: result})
		}
		_ = a.writeJSON(map[string]interface{}{
			"type": "control_response",
			"response": map[string]interface{}{
				"subtype":    "success",
				"request_id": requestID,
				"response": map[string]interface{}{
					"content": []map[string]interface{}{{"type": "text", "text": result}},
					"isError": isError,
				},
			},
		})
	}()
}

// emit sends an event unless the session was cancelled. A stalled consumer
// blocks the read loop once the buffer fills; cancellation unblocks it, so
// ordering is preserved without events ever being dropped mid-session.
func (a *claudeAdapter) emit(ev StructuredEvent) {
	select {
	case <-a.done:
		return
	default:
	}
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *claudeAdapter) writeUserMessage(text string) error {
	return a.writeJSON(map[string]interface{}{
		"type": "user",
		"message": map[string]interface{}{
			"role": "user",
			"content": []map[string]interface{}{
				{"type": "text", "text": text},
			},
		},
	})
}

func (a *claudeAdapter) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if a.stdin == nil {
		return fmt.Errorf("structured session not started")
	}
	if _, err := a.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to claude stdin: %w", err)
	}
	return nil
}
