package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck/agentdeck/eventbus"
	"github.com/agentdeck/agentdeck/provider"
)

// wsServer accepts one websocket client and records every envelope.
type wsServer struct {
	server *httptest.Server
	mu     sync.Mutex
	got    []Envelope
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{}
	upgrader := websocket.Upgrader{}
	ws.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ws.mu.Lock()
			ws.got = append(ws.got, env)
			ws.mu.Unlock()
		}
	}))
	t.Cleanup(ws.server.Close)
	return ws
}

func (ws *wsServer) url() string {
	return "ws" + strings.TrimPrefix(ws.server.URL, "http")
}

func (ws *wsServer) envelopes() []Envelope {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]Envelope, len(ws.got))
	copy(out, ws.got)
	return out
}

func TestConnectActivatesBusAndForwards(t *testing.T) {
	ws := newWSServer(t)
	bus := eventbus.New()
	require.False(t, bus.Active())

	r, err := Connect(context.Background(), ws.url(), bus)
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, bus.Active())

	bus.PublishSpawn(eventbus.SpawnEvent{AgentID: "a1", ProviderID: "claude"})
	bus.PublishHook(eventbus.HookEvent{
		AgentID: "a1",
		Event:   provider.HookEvent{Kind: provider.HookStop, Message: "done"},
	})
	bus.PublishRaw(eventbus.RawEvent{AgentID: "a1", Data: []byte(`{"type":"result"}`)})
	bus.PublishExit(eventbus.ExitEvent{AgentID: "a1", ExitCode: 0})

	require.Eventually(t, func() bool {
		return len(ws.envelopes()) == 4
	}, 2*time.Second, 10*time.Millisecond)

	envs := ws.envelopes()
	channels := make([]string, len(envs))
	for i, env := range envs {
		channels[i] = env.Channel
		assert.Equal(t, "a1", env.AgentID)
	}
	assert.ElementsMatch(t, []string{ChannelSpawn, ChannelHook, ChannelRaw, ChannelExit}, channels)
}

func TestCloseDeactivatesAndUnsubscribes(t *testing.T) {
	ws := newWSServer(t)
	bus := eventbus.New()

	r, err := Connect(context.Background(), ws.url(), bus)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.False(t, bus.Active())
	assert.Equal(t, 0, bus.ListenerCount())

	// A second close is harmless.
	require.NoError(t, r.Close())
}

func TestConnectFailure(t *testing.T) {
	bus := eventbus.New()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, "ws://127.0.0.1:1/nope", bus)
	require.Error(t, err)
	assert.False(t, bus.Active())
}
