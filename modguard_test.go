package modguard

import (
	"context"
	"sync"
	"time"
)

// Workshop-range ids used across tests. Anything below
// DefaultLocalModThreshold counts as local.
const (
	modA ModID = 3000000001
	modB ModID = 3000000002
	modC ModID = 3000000003
)

// recordingHost is a host that remembers every command it was given.
type recordingHost struct {
	hub *Hub[ModDescriptor]

	mu            sync.Mutex
	notServer     bool
	disconnectErr error
	broadcastErr  error
	disconnects   []ClientID
	broadcasts    []string
	requests      [][]ModID
}

var (
	_ Transport        = (*recordingHost)(nil)
	_ Broadcaster      = (*recordingHost)(nil)
	_ MetadataProvider = (*recordingHost)(nil)
)

func newRecordingHost() *recordingHost {
	return &recordingHost{hub: NewHub[ModDescriptor]()}
}

func (h *recordingHost) IsServer() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.notServer
}

func (h *recordingHost) Disconnect(ctx context.Context, clientID ClientID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects = append(h.disconnects, clientID)
	return h.disconnectErr
}

func (h *recordingHost) Broadcast(ctx context.Context, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.broadcastErr != nil {
		return h.broadcastErr
	}
	h.broadcasts = append(h.broadcasts, msg)
	return nil
}

func (h *recordingHost) RequestDetails(ctx context.Context, modIDs []ModID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, append([]ModID(nil), modIDs...))
	return nil
}

func (h *recordingHost) Subscribe(fn func(ctx context.Context, d ModDescriptor)) *Subscription {
	return h.hub.Subscribe(fn)
}

func (h *recordingHost) Disconnects() []ClientID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ClientID(nil), h.disconnects...)
}

func (h *recordingHost) Broadcasts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.broadcasts...)
}

func (h *recordingHost) Requests() [][]ModID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]ModID(nil), h.requests...)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testSettings returns default settings with edit applied.
func testSettings(edit func(s *Settings)) SettingsSource {
	s := DefaultSettings()
	if edit != nil {
		edit(s)
	}
	return StaticSettings(s)
}
