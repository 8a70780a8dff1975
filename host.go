package modguard

import (
	"context"
	"errors"
)

var (
	// ErrClientGone is returned by a Transport when the client already left.
	ErrClientGone = errors.New("client is not connected")

	// ErrNotServer means the host is not authoritative for connections.
	ErrNotServer = errors.New("host is not the server")

	// ErrHostUnavailable means no host session is attached.
	ErrHostUnavailable = errors.New("host unavailable")
)

// Transport is the host's network layer.
type Transport interface {
	// IsServer reports whether the host currently owns client connections.
	IsServer() bool

	// Disconnect removes the client from the game.
	// Returns ErrClientGone if the client has already left.
	Disconnect(ctx context.Context, clientID ClientID) error
}

// Broadcaster is the host's chat sink. Delivery is best-effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg string) error
}

// MetadataProvider resolves mod metadata asynchronously.
//
// RequestDetails only asks; descriptors arrive later, one at a time and in
// no particular order, through the handlers registered with Subscribe.
// Some may never arrive.
type MetadataProvider interface {
	RequestDetails(ctx context.Context, modIDs []ModID) error
	Subscribe(fn func(ctx context.Context, d ModDescriptor)) *Subscription
}
