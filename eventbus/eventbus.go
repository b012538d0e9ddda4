// Package eventbus is a gated in-process pub/sub relay. It decouples the
// session managers from the optional external relay: when the gate is
// inactive every publish is a near-zero-cost no-op, so producers emit
// unconditionally without caring whether anything downstream listens.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/agentdeck/agentdeck/provider"
)

// RawEvent is an unparsed transcript record from one agent's output stream.
type RawEvent struct {
	AgentID string
	Data    []byte
}

// HookEvent pairs an agent with one normalized hook event.
type HookEvent struct {
	AgentID string
	Event   provider.HookEvent
}

// ExitEvent reports process termination.
type ExitEvent struct {
	AgentID  string
	ExitCode int
}

// SpawnEvent reports that an agent session started.
type SpawnEvent struct {
	AgentID    string
	ProviderID string
}

// Unsubscribe removes one listener when called. Safe to call more than once.
type Unsubscribe func()

// topic is one typed channel of the bus.
type topic[T any] struct {
	listeners map[int]func(T)
	mu        sync.Mutex
	nextID    int
}

func newTopic[T any]() *topic[T] {
	return &topic[T]{listeners: make(map[int]func(T))}
}

func (t *topic[T]) subscribe(fn func(T)) Unsubscribe {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *topic[T]) publish(ev T) {
	t.mu.Lock()
	fns := make([]func(T), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (t *topic[T]) removeAll() {
	t.mu.Lock()
	clear(t.listeners)
	t.mu.Unlock()
}

func (t *topic[T]) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// Bus carries the four event channels behind one active gate.
type Bus struct {
	raw    *topic[RawEvent]
	hook   *topic[HookEvent]
	exit   *topic[ExitEvent]
	spawn  *topic[SpawnEvent]
	active atomic.Bool
}

// New creates an inactive Bus.
func New() *Bus {
	return &Bus{
		raw:   newTopic[RawEvent](),
		hook:  newTopic[HookEvent](),
		exit:  newTopic[ExitEvent](),
		spawn: newTopic[SpawnEvent](),
	}
}

// SetActive flips the gate. While inactive, publishes reach no listener.
func (b *Bus) SetActive(active bool) { b.active.Store(active) }

// Active reports the gate state.
func (b *Bus) Active() bool { return b.active.Load() }

// PublishRaw relays an unparsed transcript record.
func (b *Bus) PublishRaw(ev RawEvent) {
	if !b.active.Load() {
		return
	}
	b.raw.publish(ev)
}

// PublishHook relays a normalized hook event.
func (b *Bus) PublishHook(ev HookEvent) {
	if !b.active.Load() {
		return
	}
	b.hook.publish(ev)
}

// PublishExit relays a process exit.
func (b *Bus) PublishExit(ev ExitEvent) {
	if !b.active.Load() {
		return
	}
	b.exit.publish(ev)
}

// PublishSpawn relays a session start.
func (b *Bus) PublishSpawn(ev SpawnEvent) {
	if !b.active.Load() {
		return
	}
	b.spawn.publish(ev)
}

// SubscribeRaw adds a raw-event listener.
func (b *Bus) SubscribeRaw(fn func(RawEvent)) Unsubscribe { return b.raw.subscribe(fn) }

// SubscribeHook adds a hook-event listener.
func (b *Bus) SubscribeHook(fn func(HookEvent)) Unsubscribe { return b.hook.subscribe(fn) }

// SubscribeExit adds an exit listener.
func (b *Bus) SubscribeExit(fn func(ExitEvent)) Unsubscribe { return b.exit.subscribe(fn) }

// SubscribeSpawn adds a spawn listener.
func (b *Bus) SubscribeSpawn(fn func(SpawnEvent)) Unsubscribe { return b.spawn.subscribe(fn) }

// RemoveAllListeners drops every listener on every channel.
func (b *Bus) RemoveAllListeners() {
	b.raw.removeAll()
	b.hook.removeAll()
	b.exit.removeAll()
	b.spawn.removeAll()
}

// ListenerCount returns the total listener count across channels, for
// diagnostics.
func (b *Bus) ListenerCount() int {
	return b.raw.count() + b.hook.count() + b.exit.count() + b.spawn.count()
}
