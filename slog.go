package modguard

import (
	"context"
	"log/slog"
)

var _ slog.Handler = (*slogModguardHandler)(nil)

type slogModguardHandler struct {
	h slog.Handler
}

// WithSlogModguardHandler wraps handler so that every record is grouped
// under "modguard" and carries the bridge session from its context.
func WithSlogModguardHandler(handler slog.Handler) slog.Handler {
	return &slogModguardHandler{handler}
}

func (h *slogModguardHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}

func (h *slogModguardHandler) Handle(ctx context.Context, record slog.Record) error {
	var attrs []slog.Attr
	if id := GetSessionID(ctx); id != "" {
		attrs = append(attrs, slog.String("sessionID", id))
	}
	if addr := GetRemoteAddr(ctx); addr != "" {
		attrs = append(attrs, slog.String("remoteAddr", addr))
	}
	return h.h.WithGroup("modguard").WithAttrs(attrs).Handle(ctx, record)
}

func (h *slogModguardHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return WithSlogModguardHandler(h.h.WithAttrs(attrs))
}

func (h *slogModguardHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return WithSlogModguardHandler(h.h.WithGroup(name))
}

func loggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
