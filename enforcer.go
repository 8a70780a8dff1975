package modguard

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultKickGrace is how long a kick notice stays visible before the
// disconnect.
const DefaultKickGrace = 3 * time.Second

// Enforcer turns a stored verdict into a kick.
type Enforcer struct {
	settings  SettingsSource
	verdicts  *VerdictTracker
	pending   *PendingTracker
	scheduler *Scheduler

	cache       *MetadataCache
	transport   Transport
	broadcaster Broadcaster
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time
	grace       time.Duration
}

// EnforcerOption configures an Enforcer.
type EnforcerOption struct {
	// Cache names mods in the kick notice. Without it ids are shown.
	Cache *MetadataCache

	Transport   Transport
	Broadcaster Broadcaster
	Observer    Observer
	Logger      *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// Grace defaults to DefaultKickGrace.
	Grace time.Duration
}

// NewEnforcer creates an Enforcer. pending may be nil.
func NewEnforcer(settings SettingsSource, verdicts *VerdictTracker, pending *PendingTracker, scheduler *Scheduler, opt *EnforcerOption) *Enforcer {
	if opt == nil {
		opt = &EnforcerOption{}
	}
	e := &Enforcer{
		settings:    settings,
		verdicts:    verdicts,
		pending:     pending,
		scheduler:   scheduler,
		cache:       opt.Cache,
		transport:   opt.Transport,
		broadcaster: opt.Broadcaster,
		observer:    opt.Observer,
		logger:      loggerOrDiscard(opt.Logger),
		now:         opt.Now,
		grace:       opt.Grace,
	}
	if e.transport == nil {
		e.transport = NewNopHost()
	}
	if e.broadcaster == nil {
		e.broadcaster = NewNopHost()
	}
	if e.observer == nil {
		e.observer = NopObserver{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.grace <= 0 {
		e.grace = DefaultKickGrace
	}
	return e
}

func (e *Enforcer) modName(id ModID) string {
	if e.cache == nil {
		return id.String()
	}
	return e.cache.ResolveOrID(id)
}

// Enforce kicks clientID if it has a verdict and reports whether it did.
// The verdict is consumed first, so a repeated or concurrent call for the
// same verdict is a no-op. The disconnect runs from the scheduler once the
// grace period is over.
func (e *Enforcer) Enforce(ctx context.Context, clientID ClientID) bool {
	v, ok := e.verdicts.Take(clientID)
	if !ok {
		e.logger.WarnContext(ctx, "no verdict to enforce", "clientID", clientID)
		return false
	}

	if e.pending != nil {
		e.pending.Cancel(clientID)
	}
	e.observer.OnEnforce(ctx, v)

	if e.settings.Settings().BroadcastKicks {
		msg := FormatKickNotice(v, e.modName)
		if err := e.broadcaster.Broadcast(ctx, msg); err != nil {
			e.logger.WarnContext(ctx, "failed to broadcast kick notice", "clientID", clientID, "error", err)
		}
	}

	e.logger.InfoContext(ctx, "kicking player",
		"clientID", clientID,
		"username", v.Username,
		"blacklisted", v.BlacklistedModIDs,
		"localMod", v.HasLocalModViolation,
		"grace", e.grace)

	e.scheduler.Schedule(clientID, e.now().Add(e.grace), func(ctx context.Context) {
		e.disconnect(ctx, v)
	})
	return true
}

func (e *Enforcer) disconnect(ctx context.Context, v Verdict) {
	if !e.transport.IsServer() {
		e.logger.ErrorContext(ctx, "cannot kick player: host is not the server", "clientID", v.ClientID)
		e.observer.OnKick(ctx, v.ClientID, ErrNotServer)
		return
	}

	err := e.transport.Disconnect(ctx, v.ClientID)
	switch {
	case err == nil:
		e.logger.InfoContext(ctx, "kicked player", "clientID", v.ClientID, "username", v.Username)
	case errors.Is(err, ErrClientGone):
		e.logger.InfoContext(ctx, "player left before kick", "clientID", v.ClientID, "username", v.Username)
	default:
		e.logger.ErrorContext(ctx, "failed to kick player", "clientID", v.ClientID, "error", err)
	}
	e.observer.OnKick(ctx, v.ClientID, err)
}
