package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/high-moctane/modguard"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func decode(t *testing.T, msg kafka.Message) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	return ev
}

func TestNewEvent(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*60*60))
	ev := NewEvent(TypeVerdictIssued, "test", now, nil)

	_, err := uuid.Parse(ev.EventID)
	assert.NoError(t, err)
	assert.Equal(t, TypeVerdictIssued, ev.EventType)
	assert.Equal(t, "test", ev.Source)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
	assert.True(t, ev.Timestamp.Equal(now))
	assert.NotNil(t, ev.Payload)
}

func TestPublisher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &fakeWriter{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPublisher(w, &Option{Now: func() time.Time { return now }})

	v := modguard.Verdict{ClientID: 7, Username: "mallory", BlacklistedModIDs: []modguard.ModID{3000000001}}
	p.OnCheck(ctx, 7, false)
	p.OnVerdict(ctx, v)
	p.OnEnforce(ctx, v)
	p.OnKick(ctx, 7, modguard.ErrClientGone)
	p.OnVerdictCleared(ctx, 8)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(w.messages()) == 4 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, w.closed)

	msgs := w.messages()
	var types []string
	for _, m := range msgs {
		ev := decode(t, m)
		assert.Equal(t, "modguard", ev.Source)
		assert.True(t, ev.Timestamp.Equal(now))
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{TypeVerdictIssued, TypePlayerEnforced, TypePlayerKicked, TypeVerdictCleared}, types)

	assert.Equal(t, "7", string(msgs[0].Key))
	assert.Equal(t, "8", string(msgs[3].Key))

	issued := decode(t, msgs[0])
	assert.Equal(t, "mallory", issued.Payload["username"])
	assert.Equal(t, []any{3000000001.0}, issued.Payload["blacklisted_mod_ids"])

	kicked := decode(t, msgs[2])
	assert.Equal(t, false, kicked.Payload["ok"])
	assert.Equal(t, modguard.ErrClientGone.Error(), kicked.Payload["error"])
}

func TestPublisher_QueueFull(t *testing.T) {
	ctx := context.Background()
	p := NewPublisher(&fakeWriter{}, &Option{QueueSize: 1})

	p.OnVerdictCleared(ctx, 1)
	assert.NotPanics(t, func() { p.OnVerdictCleared(ctx, 2) })
	assert.Len(t, p.queue, 1)
}

func TestPublisher_WriteError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(w, nil)

	p.OnKick(ctx, 1, nil)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return len(p.queue) == 0 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, w.messages())
}

func TestPublisher_FlushOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &fakeWriter{}
	p := NewPublisher(w, nil)

	p.OnVerdictCleared(ctx, 1)
	p.OnVerdictCleared(ctx, 2)
	p.OnVerdictCleared(ctx, 3)
	cancel()

	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
	assert.True(t, w.closed)
	assert.Empty(t, p.queue)

	var keys []string
	for _, m := range w.messages() {
		keys = append(keys, string(m.Key))
	}
	assert.Equal(t, []string{"1", "2", "3"}, keys)
}

func TestPublisher_FlushFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(w, &Option{FlushTimeout: time.Second})

	p.OnKick(ctx, 1, nil)
	p.OnKick(ctx, 2, nil)
	cancel()

	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
	assert.True(t, w.closed)
	assert.Empty(t, p.queue)
	assert.Empty(t, w.messages())
}
