// Package relay forwards internal bus events to an external websocket
// endpoint. The bus is gated on the relay: connecting flips the bus active
// so publishes start flowing, closing flips it back so publishing returns
// to a near-zero-cost no-op.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/eventbus"
)

// Envelope is the wire shape for one forwarded event.
type Envelope struct {
	Payload interface{} `json:"payload"`
	Channel string      `json:"channel"`
	AgentID string      `json:"agentId"`
}

// Wire channel names, one per bus topic.
const (
	ChannelRaw   = "raw"
	ChannelHook  = "hook"
	ChannelExit  = "exit"
	ChannelSpawn = "spawn"
)

// Relay is one live websocket connection subscribed to all bus topics.
type Relay struct {
	conn   *websocket.Conn
	bus    *eventbus.Bus
	logger *slog.Logger
	unsubs []eventbus.Unsubscribe
	// writeMu serializes writes; the websocket allows one writer at a time.
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// Connect dials the endpoint, subscribes to every bus topic, and activates
// the bus.
func Connect(ctx context.Context, url string, bus *eventbus.Bus, opts ...Option) (*Relay, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}

	r := &Relay{conn: conn, bus: bus}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "relay")

	r.unsubs = []eventbus.Unsubscribe{
		bus.SubscribeRaw(func(ev eventbus.RawEvent) {
			r.forward(ChannelRaw, ev.AgentID, string(ev.Data))
		}),
		bus.SubscribeHook(func(ev eventbus.HookEvent) {
			r.forward(ChannelHook, ev.AgentID, ev.Event)
		}),
		bus.SubscribeExit(func(ev eventbus.ExitEvent) {
			r.forward(ChannelExit, ev.AgentID, ev.ExitCode)
		}),
		bus.SubscribeSpawn(func(ev eventbus.SpawnEvent) {
			r.forward(ChannelSpawn, ev.AgentID, ev.ProviderID)
		}),
	}
	bus.SetActive(true)
	r.logger.Info("relay connected", "url", url)
	return r, nil
}

// forward writes one envelope. Write failures are logged, not propagated;
// the bus contract is fire-and-forget.
func (r *Relay) forward(channel, agentID string, payload interface{}) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	env := Envelope{Channel: channel, AgentID: agentID, Payload: payload}
	if err := r.conn.WriteJSON(env); err != nil {
		r.logger.Warn("relay write failed", "channel", channel, "error", err)
	}
}

// Close unsubscribes from the bus, deactivates it, and closes the
// connection. Safe to call more than once.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		for _, unsub := range r.unsubs {
			unsub()
		}
		r.bus.SetActive(false)
		err = r.conn.Close()
		r.logger.Info("relay closed")
	})
	return err
}
