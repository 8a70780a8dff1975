package modguard

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
)

type ctxKeySessionID struct{}

// GetSessionID returns the host bridge session id carried by ctx, or "".
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeySessionID{}).(string)
	return id
}

func ctxWithSessionID(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeySessionID{}, uuid.NewString())
}

type ctxKeyRemoteAddr struct{}

// GetRemoteAddr returns the host's address carried by ctx, or "".
func GetRemoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(ctxKeyRemoteAddr{}).(string)
	return addr
}

func ctxWithRemoteAddr(ctx context.Context, r *http.Request) context.Context {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return context.WithValue(ctx, ctxKeyRemoteAddr{}, addr)
}
