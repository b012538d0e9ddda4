// Package broadcast fans payloads out to every live UI consumer, with
// optional per-channel batching for high-frequency channels. Channels with
// no policy send immediately; batched channels group calls by key, collapse
// or queue them within a window, and flush on one timer per group.
package broadcast

import (
	"log/slog"
	"sync"
	"time"
)

// Target is one live UI consumer. Destroyed targets are skipped silently at
// send time; enumeration happens on every send so late-created consumers
// are picked up automatically.
type Target interface {
	ID() string
	Destroyed() bool
	Send(channel string, payload interface{})
}

// Policy configures batching for one channel.
type Policy struct {
	// Key derives a grouping key from the payload; nil groups the whole
	// channel together.
	Key func(payload interface{}) string
	// MergeFn combines a pending payload with an incoming one. Nil means
	// replace-with-latest.
	MergeFn func(pending, incoming interface{}) interface{}
	// Interval is the batching window. Non-positive sends immediately.
	Interval time.Duration
	// Merge collapses all calls in a window into one send per group.
	// False queues every call and flushes them individually in order.
	Merge bool
}

// pendingBatch is the queued state for one group key.
type pendingBatch struct {
	timer     *time.Timer
	merged    interface{}
	channel   string
	queue     []interface{}
	hasMerged bool
}

// Broadcaster sends to every live target, throttled per channel policy.
type Broadcaster struct {
	targets  func() []Target
	logger   *slog.Logger
	policies map[string]Policy
	pending  map[string]*pendingBatch
	mu       sync.Mutex
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) { b.logger = logger }
}

// New creates a Broadcaster over a live-target enumeration.
func New(targets func() []Target, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		targets:  targets,
		policies: make(map[string]Policy),
		pending:  make(map[string]*pendingBatch),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "broadcast")
	return b
}

// SetPolicy installs the batching policy for a channel.
func (b *Broadcaster) SetPolicy(channel string, policy Policy) {
	b.mu.Lock()
	b.policies[channel] = policy
	b.mu.Unlock()
}

// Send delivers a payload to every live target, immediately or batched
// depending on the channel's policy.
func (b *Broadcaster) Send(channel string, payload interface{}) {
	b.mu.Lock()
	policy, ok := b.policies[channel]
	if !ok || policy.Interval <= 0 {
		b.mu.Unlock()
		b.sendNow(channel, payload)
		return
	}

	key := channel
	if policy.Key != nil {
		key += "\x00" + policy.Key(payload)
	}

	batch, scheduled := b.pending[key]
	if !scheduled {
		batch = &pendingBatch{channel: channel}
		b.pending[key] = batch
		// One timer per group; later calls never reset it.
		batch.timer = time.AfterFunc(policy.Interval, func() { b.flushGroup(key) })
	}

	if policy.Merge {
		if batch.hasMerged && policy.MergeFn != nil {
			batch.merged = policy.MergeFn(batch.merged, payload)
		} else {
			batch.merged = payload
		}
		batch.hasMerged = true
	} else {
		batch.queue = append(batch.queue, payload)
	}
	b.mu.Unlock()
}

// Flush synchronously drains every scheduled batch, for shutdown: nothing
// buffered is lost.
func (b *Broadcaster) Flush() {
	b.mu.Lock()
	keys := make([]string, 0, len(b.pending))
	for key := range b.pending {
		keys = append(keys, key)
	}
	b.mu.Unlock()

	for _, key := range keys {
		b.flushGroup(key)
	}
}

// flushGroup pops and delivers one group's batch.
func (b *Broadcaster) flushGroup(key string) {
	b.mu.Lock()
	batch, ok := b.pending[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, key)
	batch.timer.Stop()
	b.mu.Unlock()

	if batch.hasMerged {
		b.sendNow(batch.channel, batch.merged)
	}
	for _, payload := range batch.queue {
		b.sendNow(batch.channel, payload)
	}
}

// sendNow delivers to every live target, skipping destroyed ones.
func (b *Broadcaster) sendNow(channel string, payload interface{}) {
	for _, target := range b.targets() {
		if target.Destroyed() {
			continue
		}
		target.Send(channel, payload)
	}
}
