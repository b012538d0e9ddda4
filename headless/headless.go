// Package headless spawns and supervises non-interactive agent CLI
// sessions. Each session is keyed by agent id, owns its process and
// transcript log, interprets stdout in either stream-json or plain-text
// mode, and collapses process close and process error into exactly one
// exit notification.
package headless

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/broadcast"
	"github.com/agentdeck/agentdeck/eventbus"
	"github.com/agentdeck/agentdeck/internal/ndjson"
	"github.com/agentdeck/agentdeck/internal/procattr"
	"github.com/agentdeck/agentdeck/provider"
	"github.com/agentdeck/agentdeck/transcript"
)

// Broadcast channels consumed by the UI layer.
const (
	ChannelHook   = "agent:hook"
	ChannelExit   = "agent:exit"
	ChannelOutput = "agent:output"
)

// Environment variables stripped from the child environment so a spawned
// agent never believes it is nested inside another orchestrator instance.
var strippedEnvVars = []string{"AGENTDECK", "AGENTDECK_SESSION_ID"}

// stopMessageLimit caps the synthetic text-mode stop message length.
const stopMessageLimit = 500

// ErrNoSession is returned by operations against an agent id with no
// active headless session.
var ErrNoSession = errors.New("no active headless session")

// StartOptions configures one headless run.
type StartOptions struct {
	AgentID    string
	ProviderID string
	Spawn      provider.SpawnOptions
}

// ExitPayload is the broadcast payload for session termination.
type ExitPayload struct {
	AgentID  string `json:"agentId"`
	ExitCode int    `json:"exitCode"`
}

// OutputPayload is the broadcast payload for raw session output.
type OutputPayload struct {
	AgentID string `json:"agentId"`
	Data    string `json:"data"`
}

// session is the live state for one running agent process.
type session struct {
	startedAt   time.Time
	cmd         *exec.Cmd
	store       *transcript.Store
	done        chan struct{}
	agentID     string
	providerID  string
	textBuf     strings.Builder
	mode        provider.OutputFormat
	readers     sync.WaitGroup
	cleanupOnce sync.Once
	killOnce    sync.Once
	textMu      sync.Mutex
}

// terminate sends the polite termination signal at most once. There is no
// forced-kill escalation for processes that ignore it.
func (s *session) terminate() {
	s.killOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = procattr.Terminate(s.cmd.Process)
		}
	})
}

// Manager owns all active headless sessions.
type Manager struct {
	transcripts *transcript.Manager
	registry    *provider.Registry
	bus         *eventbus.Bus
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
	sessions    map[string]*session
	mu          sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a headless session manager.
func NewManager(registry *provider.Registry, transcripts *transcript.Manager, bus *eventbus.Bus, broadcaster *broadcast.Broadcaster, opts ...Option) *Manager {
	m := &Manager{
		registry:    registry,
		transcripts: transcripts,
		bus:         bus,
		broadcaster: broadcaster,
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "headless")
	return m
}

// Start spawns a headless session for an agent id. An already-active
// session for the same id is terminated first and its cleanup awaited, so
// the id never has two live processes.
func (m *Manager) Start(ctx context.Context, opts StartOptions) error {
	if opts.AgentID == "" {
		return errors.New("agent id is required")
	}

	m.mu.Lock()
	prior := m.sessions[opts.AgentID]
	m.mu.Unlock()
	if prior != nil {
		prior.terminate()
		select {
		case <-prior.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p, ok := m.registry.Get(opts.ProviderID)
	if !ok {
		return fmt.Errorf("unknown provider %q", opts.ProviderID)
	}
	if !p.Capabilities().Headless {
		return fmt.Errorf("provider %q: %w", opts.ProviderID, provider.ErrHeadlessUnsupported)
	}

	// Stream mode where the tool can emit it, text otherwise. An explicit
	// stream request against a text-only tool is downgraded, not rejected;
	// the session's synthetic notification tells consumers.
	mode := opts.Spawn.OutputFormat
	if mode == "" || (mode == provider.OutputStreamJSON && !p.Capabilities().StreamJSON) {
		if p.Capabilities().StreamJSON {
			mode = provider.OutputStreamJSON
		} else {
			mode = provider.OutputText
		}
	}
	opts.Spawn.OutputFormat = mode

	spawn, err := p.BuildHeadlessCommand(opts.Spawn)
	if err != nil {
		return fmt.Errorf("build headless command: %w", err)
	}

	avail := p.CheckAvailability(ctx)
	if !avail.Available {
		return fmt.Errorf("provider %q binary unavailable: %s", opts.ProviderID, avail.Err)
	}

	store, err := m.transcripts.Open(opts.AgentID)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}

	// The process must outlive the Start call, so it gets its own context.
	cmd := procattr.Command(context.Background(), avail.Path, spawn.Args...)
	procattr.Set(cmd)
	cmd.Dir = opts.Spawn.WorkDir
	cmd.Env = buildEnv(spawn.Env, opts.Spawn.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = m.transcripts.Close(opts.AgentID)
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = m.transcripts.Close(opts.AgentID)
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = m.transcripts.Close(opts.AgentID)
		return fmt.Errorf("stderr pipe: %w", err)
	}

	s := &session{
		agentID:    opts.AgentID,
		providerID: opts.ProviderID,
		mode:       mode,
		cmd:        cmd,
		store:      store,
		startedAt:  time.Now(),
		done:       make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		// Spawn failure still collapses to one normalized exit
		// notification so consumers never see a stuck "running" agent.
		m.finish(s, 1)
		return fmt.Errorf("spawn %s: %w", avail.Path, err)
	}
	// Headless agents never read interactive input.
	_ = stdin.Close()

	m.mu.Lock()
	m.sessions[opts.AgentID] = s
	m.mu.Unlock()

	m.logger.Info("headless session started",
		"agent_id", opts.AgentID, "provider", opts.ProviderID,
		"mode", string(mode), "pid", cmd.Process.Pid)
	m.bus.PublishSpawn(eventbus.SpawnEvent{AgentID: opts.AgentID, ProviderID: opts.ProviderID})

	if mode == provider.OutputText {
		m.emitHook(s, provider.HookEvent{
			Kind:    provider.HookNotification,
			Message: fmt.Sprintf("%s is running in text mode; structured events are unavailable", p.DisplayName()),
		})
	}

	s.readers.Add(2)
	go m.readStdout(s, stdout)
	go m.readStderr(s, stderr)
	go m.wait(s)

	return nil
}

// Kill sends the termination signal to an agent's tracked process. The
// exit notification follows from the normal wait path.
func (m *Manager) Kill(agentID string) error {
	m.mu.Lock()
	s, ok := m.sessions[agentID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w for agent %q", ErrNoSession, agentID)
	}
	s.terminate()
	return nil
}

// Active reports whether an agent id has a live session.
func (m *Manager) Active(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[agentID]
	return ok
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// KillAll terminates every live session, for shutdown.
func (m *Manager) KillAll() {
	m.mu.Lock()
	live := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()
	for _, s := range live {
		s.terminate()
	}
}

// readStdout consumes the child's stdout until close, in the session's
// output mode.
func (m *Manager) readStdout(s *session, r io.Reader) {
	defer s.readers.Done()
	if s.mode == provider.OutputText {
		m.readText(s, r)
		return
	}
	m.readStream(s, r)
}

// readStream feeds stdout through the incremental newline-delimited JSON
// parser. A trailing unterminated record is flushed on close. Malformed
// lines are dropped, non-fatally.
func (m *Manager) readStream(s *session, r io.Reader) {
	nd := ndjson.NewReader(r)
	for {
		line, err := nd.ReadLine()
		if err != nil {
			if err != io.EOF {
				m.logger.Warn("stdout read failed", "agent_id", s.agentID, "error", err)
			}
			return
		}

		var rec streamRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			m.logger.Debug("dropping malformed stream line", "agent_id", s.agentID, "error", err)
			continue
		}

		if err := s.store.Append(line); err != nil {
			m.logger.Warn("transcript append failed", "agent_id", s.agentID, "error", err)
		}
		m.bus.PublishRaw(eventbus.RawEvent{AgentID: s.agentID, Data: append([]byte(nil), line...)})

		for _, hook := range classifyStreamLine(rec) {
			m.emitHook(s, hook)
		}
	}
}

// readText accumulates stdout verbatim, never parsing it.
func (m *Manager) readText(s *session, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			s.textMu.Lock()
			s.textBuf.WriteString(chunk)
			s.textMu.Unlock()
			m.bus.PublishRaw(eventbus.RawEvent{AgentID: s.agentID, Data: []byte(chunk)})
			m.broadcaster.Send(ChannelOutput, OutputPayload{AgentID: s.agentID, Data: chunk})
		}
		if err != nil {
			return
		}
	}
}

// readStderr forwards stderr lines verbatim as notification hook events.
func (m *Manager) readStderr(s *session, r io.Reader) {
	defer s.readers.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		m.emitHook(s, provider.HookEvent{Kind: provider.HookNotification, Message: line})
	}
}

// wait blocks until the process exits and runs cleanup exactly once.
func (m *Manager) wait(s *session) {
	s.readers.Wait()
	err := s.cmd.Wait()
	m.finish(s, exitCode(err))
}

// finish is the single terminal path for a session: text-mode synthesis,
// transcript close, table removal, and the one exit notification. The
// one-shot guard makes racing close/error signals collapse to one run.
func (m *Manager) finish(s *session, code int) {
	s.cleanupOnce.Do(func() {
		if s.mode == provider.OutputText {
			m.synthesizeTextResult(s)
		}

		if err := m.transcripts.Close(s.agentID); err != nil {
			m.logger.Warn("transcript close failed", "agent_id", s.agentID, "error", err)
		}

		m.mu.Lock()
		if m.sessions[s.agentID] == s {
			delete(m.sessions, s.agentID)
		}
		m.mu.Unlock()

		m.logger.Info("headless session ended", "agent_id", s.agentID, "exit_code", code)
		m.broadcaster.Send(ChannelExit, ExitPayload{AgentID: s.agentID, ExitCode: code})
		m.bus.PublishExit(eventbus.ExitEvent{AgentID: s.agentID, ExitCode: code})

		close(s.done)
	})
}

// synthesizeTextResult manufactures the single result record for a
// text-mode session that produced output. Silent sessions synthesize
// nothing.
func (m *Manager) synthesizeTextResult(s *session) {
	s.textMu.Lock()
	text := s.textBuf.String()
	s.textMu.Unlock()
	if text == "" {
		return
	}

	entry, err := json.Marshal(map[string]interface{}{
		"type":        "result",
		"result":      text,
		"cost_usd":    0,
		"duration_ms": time.Since(s.startedAt).Milliseconds(),
	})
	if err == nil {
		if err := s.store.Append(entry); err != nil {
			m.logger.Warn("transcript append failed", "agent_id", s.agentID, "error", err)
		}
	}

	m.emitHook(s, provider.HookEvent{
		Kind:    provider.HookStop,
		Message: truncate(text, stopMessageLimit),
	})
}

// emitHook broadcasts a hook event to UI consumers and forwards it to the
// internal bus, synchronously, in the handling step that produced it.
func (m *Manager) emitHook(s *session, ev provider.HookEvent) {
	payload := eventbus.HookEvent{AgentID: s.agentID, Event: ev}
	m.broadcaster.Send(ChannelHook, payload)
	m.bus.PublishHook(payload)
}

// buildEnv assembles the child environment: the inherited environment
// minus the orchestrator nesting markers, then the provider's additions,
// then caller overrides.
func buildEnv(providerEnv, overrides map[string]string) []string {
	env := make([]string, 0, len(os.Environ()))
	for _, kv := range os.Environ() {
		if isStrippedEnv(kv) {
			continue
		}
		env = append(env, kv)
	}
	env = applyEnv(env, providerEnv)
	env = applyEnv(env, overrides)
	return env
}

func isStrippedEnv(kv string) bool {
	for _, name := range strippedEnvVars {
		if strings.HasPrefix(kv, name+"=") {
			return true
		}
	}
	return false
}

// applyEnv overlays key=value pairs, replacing existing keys in place.
func applyEnv(env []string, vars map[string]string) []string {
	for key, value := range vars {
		prefix := key + "="
		replaced := false
		for i, kv := range env {
			if strings.HasPrefix(kv, prefix) {
				env[i] = prefix + value
				replaced = true
				break
			}
		}
		if !replaced {
			env = append(env, prefix+value)
		}
	}
	return env
}

// exitCode normalizes a Wait error: clean exit is 0, a process-reported
// status keeps its code, anything else is the synthetic failure code 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}

// truncate limits a message to n characters.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
