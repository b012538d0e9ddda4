package structured

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/broadcast"
	"github.com/agentdeck/agentdeck/eventbus"
	"github.com/agentdeck/agentdeck/provider"
	"github.com/agentdeck/agentdeck/transcript"
)

type permResponse struct {
	requestID string
	message   string
	allow     bool
}

type fakeAdapter struct {
	mu        sync.Mutex
	events    chan provider.StructuredEvent
	startErr  error
	messages  []string
	responses []permResponse
	cancelled bool
	disposed  bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{events: make(chan provider.StructuredEvent, 16)}
}

func (a *fakeAdapter) Start(ctx context.Context, opts provider.StructuredOptions) (<-chan provider.StructuredEvent, error) {
	if a.startErr != nil {
		return nil, a.startErr
	}
	return a.events, nil
}

func (a *fakeAdapter) SendMessage(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, text)
	return nil
}

func (a *fakeAdapter) RespondToPermission(ctx context.Context, requestID string, allow bool, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses = append(a.responses, permResponse{requestID: requestID, allow: allow, message: message})
	return nil
}

func (a *fakeAdapter) Cancel() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelled = true
	return nil
}

func (a *fakeAdapter) Dispose() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disposed = true
	return nil
}

// fakeStructuredProvider hands out a pre-built adapter.
type fakeStructuredProvider struct {
	id      string
	adapter provider.StructuredAdapter
	caps    provider.Capabilities
}

func (p *fakeStructuredProvider) ID() string                              { return p.id }
func (p *fakeStructuredProvider) DisplayName() string                     { return p.id }
func (p *fakeStructuredProvider) Conventions() provider.Conventions       { return provider.Conventions{} }
func (p *fakeStructuredProvider) Capabilities() provider.Capabilities     { return p.caps }
func (p *fakeStructuredProvider) DefaultPermissions(string) []string      { return nil }
func (p *fakeStructuredProvider) ToolVerb(name string) string             { return name }
func (p *fakeStructuredProvider) ModelOptions() []provider.ModelOption    { return nil }
func (p *fakeStructuredProvider) ReadInstructions(string) (string, error) { return "", nil }
func (p *fakeStructuredProvider) WriteInstructions(string, string) error  { return nil }

func (p *fakeStructuredProvider) CheckAvailability(context.Context) provider.Availability {
	return provider.Availability{Available: true}
}

func (p *fakeStructuredProvider) BuildSpawnCommand(provider.SpawnOptions) (provider.SpawnCommand, error) {
	return provider.SpawnCommand{}, nil
}

func (p *fakeStructuredProvider) BuildHeadlessCommand(provider.SpawnOptions) (provider.SpawnCommand, error) {
	return provider.SpawnCommand{}, provider.ErrHeadlessUnsupported
}

func (p *fakeStructuredProvider) ParseHookEvent([]byte) (provider.HookEvent, bool) {
	return provider.HookEvent{}, false
}

func (p *fakeStructuredProvider) CreateStructuredAdapter() (provider.StructuredAdapter, error) {
	if !p.caps.Structured {
		return nil, provider.ErrStructuredUnsupported
	}
	return p.adapter, nil
}

type captureTarget struct {
	mu   sync.Mutex
	sent []EventPayload
}

func (t *captureTarget) ID() string      { return "capture" }
func (t *captureTarget) Destroyed() bool { return false }

func (t *captureTarget) Send(channel string, payload interface{}) {
	if channel != ChannelEvent {
		return
	}
	t.mu.Lock()
	t.sent = append(t.sent, payload.(EventPayload))
	t.mu.Unlock()
}

func (t *captureTarget) payloads() []EventPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]EventPayload, len(t.sent))
	copy(out, t.sent)
	return out
}

type harness struct {
	manager     *Manager
	transcripts *transcript.Manager
	adapter     *fakeAdapter
	target      *captureTarget
	hooks       *hookRecorder
}

type hookRecorder struct {
	mu    sync.Mutex
	hooks []eventbus.HookEvent
}

func (r *hookRecorder) all() []eventbus.HookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]eventbus.HookEvent, len(r.hooks))
	copy(out, r.hooks)
	return out
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	adapter := newFakeAdapter()
	p := &fakeStructuredProvider{
		id:      "fake",
		adapter: adapter,
		caps:    provider.Capabilities{Structured: true},
	}
	bus := eventbus.New()
	bus.SetActive(true)
	hooks := &hookRecorder{}
	bus.SubscribeHook(func(ev eventbus.HookEvent) {
		hooks.mu.Lock()
		hooks.hooks = append(hooks.hooks, ev)
		hooks.mu.Unlock()
	})

	target := &captureTarget{}
	broadcaster := broadcast.New(func() []broadcast.Target { return []broadcast.Target{target} })
	transcripts := transcript.NewManager(t.TempDir())
	return &harness{
		manager:     NewManager(provider.NewRegistryWith(p), transcripts, bus, broadcaster),
		transcripts: transcripts,
		adapter:     adapter,
		target:      target,
		hooks:       hooks,
	}
}

func TestStartRegistersBeforeEvents(t *testing.T) {
	h := newHarness(t)

	err := h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{Prompt: "hi"})
	require.NoError(t, err)

	// No events have been produced yet; the session is already queryable.
	assert.True(t, h.manager.Active("a1"))
	assert.Equal(t, 1, h.manager.ActiveSessionCount())
}

func TestConsumptionAppendsBroadcastsAndForwards(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{}))

	h.adapter.events <- provider.StructuredEvent{
		Kind:      provider.StructuredToolStart,
		ToolName:  "Edit",
		ToolInput: map[string]interface{}{"file_path": "/f.ts"},
	}
	h.adapter.events <- provider.StructuredEvent{Kind: provider.StructuredText, Text: "working"}
	h.adapter.events <- provider.StructuredEvent{Kind: provider.StructuredTurnComplete, Message: "done"}

	require.Eventually(t, func() bool {
		return !h.manager.Active("a1")
	}, time.Second, 5*time.Millisecond)

	// All three events broadcast, in order.
	payloads := h.target.payloads()
	require.Len(t, payloads, 3)
	assert.Equal(t, provider.StructuredToolStart, payloads[0].Event.Kind)
	assert.Equal(t, provider.StructuredText, payloads[1].Event.Kind)
	assert.Equal(t, provider.StructuredTurnComplete, payloads[2].Event.Kind)

	// Only the tool start and terminal events have hook equivalents.
	hooks := h.hooks.all()
	require.Len(t, hooks, 2)
	assert.Equal(t, provider.HookPreTool, hooks[0].Event.Kind)
	assert.Equal(t, "Edit", hooks[0].Event.ToolName)
	assert.Equal(t, provider.HookStop, hooks[1].Event.Kind)
	assert.Equal(t, "done", hooks[1].Event.Message)

	// Transcript holds one record per event, readable after close.
	page, err := h.transcripts.Page("a1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalEvents)
}

func TestStreamCloseDeregisters(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{}))

	close(h.adapter.events)

	require.Eventually(t, func() bool {
		return !h.manager.Active("a1")
	}, time.Second, 5*time.Millisecond)
	h.adapter.mu.Lock()
	defer h.adapter.mu.Unlock()
	assert.True(t, h.adapter.disposed)
}

func TestSendMessageDelegates(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{}))

	require.NoError(t, h.manager.SendMessage(context.Background(), "a1", "continue"))
	h.adapter.mu.Lock()
	assert.Equal(t, []string{"continue"}, h.adapter.messages)
	h.adapter.mu.Unlock()
}

func TestRespondToPermissionDelegates(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{}))

	require.NoError(t, h.manager.RespondToPermission(context.Background(), "a1", "req-1", true, "go ahead"))
	h.adapter.mu.Lock()
	require.Len(t, h.adapter.responses, 1)
	assert.Equal(t, permResponse{requestID: "req-1", allow: true, message: "go ahead"}, h.adapter.responses[0])
	h.adapter.mu.Unlock()
}

func TestOperationsAgainstUnknownSession(t *testing.T) {
	h := newHarness(t)

	err := h.manager.SendMessage(context.Background(), "ghost", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSession))
	assert.Contains(t, err.Error(), "ghost")

	err = h.manager.RespondToPermission(context.Background(), "ghost", "r", true, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestCancelStopsAndDeregisters(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{}))

	require.NoError(t, h.manager.Cancel("a1"))
	assert.False(t, h.manager.Active("a1"))
	assert.Equal(t, 0, h.manager.ActiveSessionCount())

	h.adapter.mu.Lock()
	assert.True(t, h.adapter.cancelled)
	assert.True(t, h.adapter.disposed)
	h.adapter.mu.Unlock()
}

func TestCancelUnknownIDIsNoOp(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Cancel("ghost"))
}

func TestStartWithoutStructuredCapability(t *testing.T) {
	p := &fakeStructuredProvider{id: "plain"}
	bus := eventbus.New()
	broadcaster := broadcast.New(func() []broadcast.Target { return nil })
	m := NewManager(provider.NewRegistryWith(p), transcript.NewManager(t.TempDir()), bus, broadcaster)

	err := m.Start(context.Background(), "a1", "plain", provider.StructuredOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrStructuredUnsupported))
}

func TestStartFailureDeregisters(t *testing.T) {
	h := newHarness(t)
	h.adapter.startErr = errors.New("spawn failed")

	err := h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{})
	require.Error(t, err)
	assert.False(t, h.manager.Active("a1"))
}

func TestDuplicateStartRejected(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{}))

	err := h.manager.Start(context.Background(), "a1", "fake", provider.StructuredOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already active")
}
