// Package structured manages adapter-driven agent sessions: typed events
// instead of raw CLI output. Registration is observable before the first
// event arrives, consumption runs on a background goroutine per session in
// strict stream order, and cancellation is idempotent for unknown ids.
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentdeck/agentdeck/broadcast"
	"github.com/agentdeck/agentdeck/eventbus"
	"github.com/agentdeck/agentdeck/provider"
	"github.com/agentdeck/agentdeck/transcript"
)

// ChannelEvent is the broadcast channel for structured session events.
const ChannelEvent = "agent:structured"

// ErrNoSession is returned by operations against an agent id with no
// registered structured session.
var ErrNoSession = errors.New("no structured session")

// EventPayload is the broadcast payload for one structured event.
type EventPayload struct {
	AgentID string                   `json:"agentId"`
	Event   provider.StructuredEvent `json:"event"`
}

// session pairs one registered adapter with its transcript store.
type session struct {
	adapter provider.StructuredAdapter
	store   *transcript.Store
}

// Manager owns all registered structured sessions.
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

// NewManager creates a structured session manager.
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
	m.logger = m.logger.With("component", "structured")
	return m
}

// Start creates a structured session for an agent id. The session is
// registered before the adapter produces its first event, so existence
// queries are true immediately regardless of event timing.
func (m *Manager) Start(ctx context.Context, agentID, providerID string, opts provider.StructuredOptions) error {
	if agentID == "" {
		return errors.New("agent id is required")
	}

	p, ok := m.registry.Get(providerID)
	if !ok {
		return fmt.Errorf("unknown provider %q", providerID)
	}
	adapter, err := p.CreateStructuredAdapter()
	if err != nil {
		return fmt.Errorf("provider %q: %w", providerID, err)
	}

	m.mu.Lock()
	if _, exists := m.sessions[agentID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("structured session already active for agent %q", agentID)
	}
	store, err := m.transcripts.Open(agentID)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("open transcript: %w", err)
	}
	s := &session{adapter: adapter, store: store}
	m.sessions[agentID] = s
	m.mu.Unlock()

	events, err := adapter.Start(ctx, opts)
	if err != nil {
		m.deregister(agentID, s)
		_ = adapter.Dispose()
		return fmt.Errorf("start structured session: %w", err)
	}

	m.logger.Info("structured session started", "agent_id", agentID, "provider", providerID)
	m.bus.PublishSpawn(eventbus.SpawnEvent{AgentID: agentID, ProviderID: providerID})

	go m.consume(agentID, s, events)
	return nil
}

// consume iterates the adapter's event stream in order: append, broadcast,
// and forward the hook equivalent when one exists. The session deregisters
// on a terminal event or stream close.
func (m *Manager) consume(agentID string, s *session, events <-chan provider.StructuredEvent) {
	for ev := range events {
		if raw, err := json.Marshal(ev); err == nil {
			if err := s.store.Append(raw); err != nil {
				m.logger.Warn("transcript append failed", "agent_id", agentID, "error", err)
			}
			m.bus.PublishRaw(eventbus.RawEvent{AgentID: agentID, Data: raw})
		}

		m.broadcaster.Send(ChannelEvent, EventPayload{AgentID: agentID, Event: ev})

		if hook, ok := ev.HookEquivalent(); ok {
			m.bus.PublishHook(eventbus.HookEvent{AgentID: agentID, Event: hook})
		}

		if ev.Terminal() {
			break
		}
	}

	_ = s.adapter.Dispose()
	m.deregister(agentID, s)
	m.logger.Info("structured session ended", "agent_id", agentID)
}

// SendMessage delivers a user message to an active session.
func (m *Manager) SendMessage(ctx context.Context, agentID, text string) error {
	s, err := m.lookup(agentID)
	if err != nil {
		return err
	}
	return s.adapter.SendMessage(ctx, text)
}

// RespondToPermission answers a pending permission request on an active
// session.
func (m *Manager) RespondToPermission(ctx context.Context, agentID, requestID string, allow bool, message string) error {
	s, err := m.lookup(agentID)
	if err != nil {
		return err
	}
	return s.adapter.RespondToPermission(ctx, requestID, allow, message)
}

// Cancel stops a session: adapter cancel, then dispose, then deregister.
// Cancelling an unknown id is a safe no-op.
func (m *Manager) Cancel(agentID string) error {
	m.mu.Lock()
	s, ok := m.sessions[agentID]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.adapter.Cancel(); err != nil {
		m.logger.Warn("adapter cancel failed", "agent_id", agentID, "error", err)
	}
	_ = s.adapter.Dispose()
	m.deregister(agentID, s)
	return nil
}

// Active reports whether an agent id has a registered session.
func (m *Manager) Active(agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[agentID]
	return ok
}

// ActiveSessionCount returns the number of registered sessions.
func (m *Manager) ActiveSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// lookup resolves an active session or fails with a descriptive error.
func (m *Manager) lookup(agentID string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[agentID]
	if !ok {
		return nil, fmt.Errorf("%w for agent %q", ErrNoSession, agentID)
	}
	return s, nil
}

// deregister removes the session and closes its transcript. Cancel and the
// consumption goroutine can race here; the identity check makes the second
// call a no-op.
func (m *Manager) deregister(agentID string, s *session) {
	m.mu.Lock()
	current, ok := m.sessions[agentID]
	if !ok || current != s {
		m.mu.Unlock()
		return
	}
	delete(m.sessions, agentID)
	m.mu.Unlock()

	if err := m.transcripts.Close(agentID); err != nil {
		m.logger.Warn("transcript close failed", "agent_id", agentID, "error", err)
	}
}
