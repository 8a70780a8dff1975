package modguard

import (
	"context"
)

// NopHost is a host that does nothing but answer correctly.
// It claims to be the server, accepts every disconnect and broadcast,
// and never delivers metadata. Useful as a default and a base for tests.
type NopHost struct {
	hub *Hub[ModDescriptor]
}

// NewNopHost creates a new NopHost.
func NewNopHost() *NopHost {
	return &NopHost{hub: NewHub[ModDescriptor]()}
}

// IsServer implements Transport.
func (h *NopHost) IsServer() bool { return true }

// Disconnect implements Transport.
func (h *NopHost) Disconnect(ctx context.Context, clientID ClientID) error { return nil }

// Broadcast implements Broadcaster.
func (h *NopHost) Broadcast(ctx context.Context, msg string) error { return nil }

// RequestDetails implements MetadataProvider.
func (h *NopHost) RequestDetails(ctx context.Context, modIDs []ModID) error { return nil }

// Subscribe implements MetadataProvider.
func (h *NopHost) Subscribe(fn func(ctx context.Context, d ModDescriptor)) *Subscription {
	return h.hub.Subscribe(fn)
}
