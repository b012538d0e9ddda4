package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	payload interface{}
	channel string
}

type fakeTarget struct {
	mu        sync.Mutex
	id        string
	sent      []sentMessage
	destroyed bool
}

func (t *fakeTarget) ID() string { return t.id }

func (t *fakeTarget) Destroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

func (t *fakeTarget) Send(channel string, payload interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentMessage{channel: channel, payload: payload})
}

func (t *fakeTarget) messages() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sentMessage, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTarget) destroy() {
	t.mu.Lock()
	t.destroyed = true
	t.mu.Unlock()
}

func staticTargets(targets ...*fakeTarget) func() []Target {
	return func() []Target {
		out := make([]Target, len(targets))
		for i, t := range targets {
			out[i] = t
		}
		return out
	}
}

func TestSendImmediateWithoutPolicy(t *testing.T) {
	a := &fakeTarget{id: "a"}
	b := &fakeTarget{id: "b"}
	br := New(staticTargets(a, b))

	br.Send("agent:event", "hello")

	require.Len(t, a.messages(), 1)
	require.Len(t, b.messages(), 1)
	assert.Equal(t, "agent:event", a.messages()[0].channel)
	assert.Equal(t, "hello", a.messages()[0].payload)
}

func TestSendSkipsDestroyedTargets(t *testing.T) {
	a := &fakeTarget{id: "a"}
	b := &fakeTarget{id: "b"}
	br := New(staticTargets(a, b))

	b.destroy()
	br.Send("agent:event", "hello")

	assert.Len(t, a.messages(), 1)
	assert.Empty(t, b.messages())
}

func TestMergeCollapsesToLatest(t *testing.T) {
	a := &fakeTarget{id: "a"}
	br := New(staticTargets(a))
	br.SetPolicy("status", Policy{Interval: 20 * time.Millisecond, Merge: true})

	br.Send("status", "first")
	br.Send("status", "second")
	br.Send("status", "third")

	assert.Empty(t, a.messages())

	require.Eventually(t, func() bool {
		return len(a.messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "third", a.messages()[0].payload)
}

func TestMergeFnCombinesPayloads(t *testing.T) {
	a := &fakeTarget{id: "a"}
	br := New(staticTargets(a))
	br.SetPolicy("counter", Policy{
		Interval: 20 * time.Millisecond,
		Merge:    true,
		MergeFn: func(pending, incoming interface{}) interface{} {
			return pending.(int) + incoming.(int)
		},
	})

	br.Send("counter", 1)
	br.Send("counter", 2)
	br.Send("counter", 3)

	require.Eventually(t, func() bool {
		return len(a.messages()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 6, a.messages()[0].payload)
}

func TestQueueModeFlushesInOrder(t *testing.T) {
	a := &fakeTarget{id: "a"}
	br := New(staticTargets(a))
	br.SetPolicy("log", Policy{Interval: 20 * time.Millisecond, Merge: false})

	br.Send("log", "one")
	br.Send("log", "two")
	br.Send("log", "three")

	require.Eventually(t, func() bool {
		return len(a.messages()) == 3
	}, time.Second, 5*time.Millisecond)
	msgs := a.messages()
	assert.Equal(t, "one", msgs[0].payload)
	assert.Equal(t, "two", msgs[1].payload)
	assert.Equal(t, "three", msgs[2].payload)
}

func TestKeyFnSeparatesGroups(t *testing.T) {
	type update struct {
		agentID string
		text    string
	}
	a := &fakeTarget{id: "a"}
	br := New(staticTargets(a))
	br.SetPolicy("agent:update", Policy{
		Interval: 20 * time.Millisecond,
		Merge:    true,
		Key:      func(payload interface{}) string { return payload.(update).agentID },
	})

	br.Send("agent:update", update{agentID: "x", text: "x1"})
	br.Send("agent:update", update{agentID: "y", text: "y1"})
	br.Send("agent:update", update{agentID: "x", text: "x2"})

	require.Eventually(t, func() bool {
		return len(a.messages()) == 2
	}, time.Second, 5*time.Millisecond)

	got := map[string]string{}
	for _, msg := range a.messages() {
		u := msg.payload.(update)
		got[u.agentID] = u.text
	}
	assert.Equal(t, map[string]string{"x": "x2", "y": "y1"}, got)
}

func TestFlushDrainsSynchronously(t *testing.T) {
	a := &fakeTarget{id: "a"}
	br := New(staticTargets(a))
	br.SetPolicy("status", Policy{Interval: time.Hour, Merge: true})
	br.SetPolicy("log", Policy{Interval: time.Hour, Merge: false})

	br.Send("status", "latest")
	br.Send("log", "l1")
	br.Send("log", "l2")

	assert.Empty(t, a.messages())
	br.Flush()

	msgs := a.messages()
	require.Len(t, msgs, 3)

	// Nothing left behind; a second flush is a no-op.
	br.Flush()
	assert.Len(t, a.messages(), 3)
}

func TestZeroIntervalSendsImmediately(t *testing.T) {
	a := &fakeTarget{id: "a"}
	br := New(staticTargets(a))
	br.SetPolicy("status", Policy{Interval: 0, Merge: true})

	br.Send("status", "now")
	assert.Len(t, a.messages(), 1)
}
