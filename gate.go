package modguard

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	// DefaultCheckCooldown suppresses repeated connect events for one client.
	DefaultCheckCooldown = 2 * time.Second

	// DefaultCooldownRetention is how long a check stamp is kept around.
	DefaultCooldownRetention = 10 * time.Second
)

// Admission is what AdmitPlayer did with a player.
type Admission int

const (
	// AdmissionSkipped: a check for the client ran within the cooldown.
	AdmissionSkipped Admission = iota
	// AdmissionAllowed: no violation.
	AdmissionAllowed
	// AdmissionFlagged: a verdict is waiting for a team join.
	AdmissionFlagged
	// AdmissionEnforced: the player is being kicked.
	AdmissionEnforced
	// AdmissionPending: clean so far, metadata still on its way.
	AdmissionPending
)

func (a Admission) String() string {
	switch a {
	case AdmissionSkipped:
		return "skipped"
	case AdmissionAllowed:
		return "allowed"
	case AdmissionFlagged:
		return "flagged"
	case AdmissionEnforced:
		return "enforced"
	case AdmissionPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Gate is the entry point the host drives. It owns every tracker and ties
// the connect, metadata, team join and disconnect events together.
type Gate struct {
	settings SettingsSource
	policy   *Policy

	cache     *MetadataCache
	pending   *PendingTracker
	verdicts  *VerdictTracker
	scheduler *Scheduler
	enforcer  *Enforcer

	provider    MetadataProvider
	broadcaster Broadcaster
	observer    Observer
	logger      *slog.Logger
	now         func() time.Time

	cooldown          time.Duration
	cooldownRetention time.Duration

	mu        sync.Mutex
	lastCheck map[ClientID]time.Time
	// connected holds clients admitted and not yet disconnected.
	connected map[ClientID]struct{}
}

// GateOption configures a Gate. Every field is optional.
type GateOption struct {
	// Cache is shared with whatever else needs descriptors.
	// A fresh in-memory cache is used when nil.
	Cache *MetadataCache

	// Host collaborators. NopHost stands in for missing ones.
	Transport   Transport
	Broadcaster Broadcaster
	Provider    MetadataProvider

	Observer Observer
	Logger   *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	CheckCooldown     time.Duration
	CooldownRetention time.Duration
	PendingTimeout    time.Duration
	KickGrace         time.Duration
}

// NewGate creates a Gate reading policy from settings on every evaluation.
func NewGate(settings SettingsSource, opt *GateOption) *Gate {
	if opt == nil {
		opt = &GateOption{}
	}

	nop := NewNopHost()
	g := &Gate{
		settings:          settings,
		policy:            NewPolicy(settings),
		cache:             opt.Cache,
		verdicts:          NewVerdictTracker(),
		scheduler:         NewScheduler(),
		provider:          opt.Provider,
		broadcaster:       opt.Broadcaster,
		observer:          opt.Observer,
		logger:            loggerOrDiscard(opt.Logger),
		now:               opt.Now,
		cooldown:          opt.CheckCooldown,
		cooldownRetention: opt.CooldownRetention,
		lastCheck:         make(map[ClientID]time.Time),
		connected:         make(map[ClientID]struct{}),
	}
	if g.cache == nil {
		g.cache = NewMetadataCache(&MetadataCacheOption{Logger: opt.Logger})
	}
	if g.provider == nil {
		g.provider = nop
	}
	if g.broadcaster == nil {
		g.broadcaster = nop
	}
	if g.observer == nil {
		g.observer = NopObserver{}
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.cooldown <= 0 {
		g.cooldown = DefaultCheckCooldown
	}
	if g.cooldownRetention < g.cooldown {
		g.cooldownRetention = max(DefaultCooldownRetention, g.cooldown)
	}

	g.pending = NewPendingTracker(g.cache, g.finalize, &PendingTrackerOption{
		IsLocal: g.policy.IsLocal,
		Timeout: opt.PendingTimeout,
	})
	g.enforcer = NewEnforcer(settings, g.verdicts, g.pending, g.scheduler, &EnforcerOption{
		Cache:       g.cache,
		Transport:   opt.Transport,
		Broadcaster: g.broadcaster,
		Observer:    g.observer,
		Logger:      opt.Logger,
		Now:         g.now,
		Grace:       opt.KickGrace,
	})
	return g
}

// Cache returns the metadata cache.
func (g *Gate) Cache() *MetadataCache { return g.cache }

// Verdicts returns the verdict tracker.
func (g *Gate) Verdicts() *VerdictTracker { return g.verdicts }

// Pending returns the pending resolution tracker.
func (g *Gate) Pending() *PendingTracker { return g.pending }

// Scheduler returns the queue of delayed kicks.
func (g *Gate) Scheduler() *Scheduler { return g.scheduler }

// Enforce kicks clientID if it is flagged.
func (g *Gate) Enforce(ctx context.Context, clientID ClientID) bool {
	return g.enforcer.Enforce(ctx, clientID)
}

// AdmitPlayer evaluates a connecting player.
//
// The blacklist and local-mod rules only need ids, so a verdict is stored
// right away. Ids without metadata are requested from the provider and the
// player is evaluated once more when they arrive or time out.
func (g *Gate) AdmitPlayer(ctx context.Context, p Player) Admission {
	now := g.now()
	g.markConnected(p.ClientID)
	if !g.stamp(p.ClientID, now) {
		g.logger.DebugContext(ctx, "skipping duplicate check", "clientID", p.ClientID, "username", p.Username)
		g.observer.OnCheck(ctx, p.ClientID, true)
		return AdmissionSkipped
	}
	g.observer.OnCheck(ctx, p.ClientID, false)

	g.logger.InfoContext(ctx, "checking player mods",
		"clientID", p.ClientID,
		"externalID", p.ExternalID,
		"username", p.Username,
		"mods", len(p.ModIDs))

	missing := g.pending.Register(ctx, p, now)
	if len(missing) > 0 {
		g.evaluate(ctx, p)

		if g.pending.Has(p.ClientID) {
			g.logger.DebugContext(ctx, "requesting mod details", "clientID", p.ClientID, "modIDs", missing)
			if err := g.provider.RequestDetails(ctx, missing); err != nil {
				g.logger.WarnContext(ctx, "failed to request mod details", "clientID", p.ClientID, "error", err)
			}
		}
	}

	switch {
	case g.verdicts.IsFlagged(p.ClientID):
		return AdmissionFlagged
	case g.scheduler.Scheduled(p.ClientID):
		return AdmissionEnforced
	case g.pending.Has(p.ClientID):
		return AdmissionPending
	default:
		return AdmissionAllowed
	}
}

// stamp records a check for clientID unless one ran within the cooldown.
func (g *Gate) stamp(clientID ClientID, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastCheck[clientID]; ok && now.Sub(last) < g.cooldown {
		return false
	}
	g.lastCheck[clientID] = now
	return true
}

func (g *Gate) markConnected(clientID ClientID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected[clientID] = struct{}{}
}

// isConnected reports whether clientID has been admitted and has not
// disconnected since.
func (g *Gate) isConnected(clientID ClientID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.connected[clientID]
	return ok
}

func (g *Gate) finalize(ctx context.Context, check PendingCheck, reason ResolveReason) {
	if reason != ResolvedImmediately {
		g.logger.DebugContext(ctx, "pending check resolved",
			"clientID", check.ClientID,
			"reason", reason,
			"unresolved", len(check.Awaiting))
		g.observer.OnPendingResolved(ctx, check.ClientID, reason)
	}

	if !g.isConnected(check.ClientID) {
		g.logger.DebugContext(ctx, "player left before evaluation", "clientID", check.ClientID)
		return
	}
	g.evaluate(ctx, check.Player)

	if g.settings.Settings().AnnounceMods && g.isConnected(check.ClientID) {
		msg := FormatModAnnouncement(check.Username, check.ModIDs, g.policy.IsLocal, g.cache.ResolveOrID)
		if err := g.broadcaster.Broadcast(ctx, msg); err != nil {
			g.logger.WarnContext(ctx, "failed to announce mods", "clientID", check.ClientID, "error", err)
		}
	}
}

// evaluate classifies p and updates its verdict.
func (g *Gate) evaluate(ctx context.Context, p Player) {
	c := g.policy.Classify(p.ModIDs)
	if !c.Violates() {
		if g.verdicts.Clear(p.ClientID) {
			g.logger.InfoContext(ctx, "cleared stale verdict", "clientID", p.ClientID, "username", p.Username)
			g.observer.OnVerdictCleared(ctx, p.ClientID)
		} else {
			g.logger.DebugContext(ctx, "player has no blacklisted or local mods", "clientID", p.ClientID, "username", p.Username)
		}
		return
	}

	v := Verdict{
		ClientID:             p.ClientID,
		Username:             p.Username,
		BlacklistedModIDs:    c.Blacklisted,
		HasLocalModViolation: c.LocalViolation,
	}
	prev, had := g.verdicts.Get(p.ClientID)
	if err := g.verdicts.Set(v); err != nil {
		g.logger.ErrorContext(ctx, "failed to store verdict", "clientID", p.ClientID, "error", err)
		return
	}

	if !had || !sameVerdict(prev, v) {
		switch {
		case v.HasLocalModViolation && len(v.BlacklistedModIDs) > 0:
			g.logger.InfoContext(ctx, "player has local mod and blacklisted mods",
				"clientID", p.ClientID, "username", p.Username, "blacklisted", v.BlacklistedModIDs)
		case v.HasLocalModViolation:
			g.logger.InfoContext(ctx, "player has local mod", "clientID", p.ClientID, "username", p.Username)
		default:
			g.logger.InfoContext(ctx, "player has blacklisted mods",
				"clientID", p.ClientID, "username", p.Username, "blacklisted", v.BlacklistedModIDs)
		}
		g.observer.OnVerdict(ctx, v)
	}

	// OnDisconnect may have run while the verdict was being stored.
	if !g.isConnected(p.ClientID) {
		g.verdicts.Clear(p.ClientID)
		g.logger.DebugContext(ctx, "dropped verdict of departed player", "clientID", p.ClientID)
		return
	}

	if !g.settings.Settings().KickOnTeamJoin {
		g.enforcer.Enforce(ctx, p.ClientID)
	}
}

func sameVerdict(a, b Verdict) bool {
	return a.HasLocalModViolation == b.HasLocalModViolation &&
		slices.Equal(a.BlacklistedModIDs, b.BlacklistedModIDs)
}

// GuardTeamJoin decides whether clientID may join team. Joining an active
// team while flagged is denied and starts the kick. Other teams are
// always allowed.
func (g *Gate) GuardTeamJoin(ctx context.Context, clientID ClientID, team Team) bool {
	if !team.IsActive() {
		return true
	}
	if !g.verdicts.IsFlagged(clientID) {
		return true
	}

	g.logger.InfoContext(ctx, "blocked team join", "clientID", clientID, "team", team)
	g.observer.OnTeamJoinDenied(ctx, clientID, team)
	g.enforcer.Enforce(ctx, clientID)
	return false
}

// OnMetadata records d and advances every check waiting for it.
func (g *Gate) OnMetadata(ctx context.Context, d ModDescriptor) {
	if g.cache.Record(ctx, d) {
		g.logger.DebugContext(ctx, "mod details received", "modID", d.ID, "title", d.Title)
	}
	g.pending.OnMetadataArrived(ctx, d.ID)
}

// OnDisconnect forgets clientID. A kick still in its grace period is
// dropped.
func (g *Gate) OnDisconnect(ctx context.Context, clientID ClientID) {
	// Unmarked before the verdict is cleared; evaluate checks the mark
	// after storing one.
	g.mu.Lock()
	delete(g.connected, clientID)
	delete(g.lastCheck, clientID)
	g.mu.Unlock()

	g.verdicts.Clear(clientID)
	g.pending.Cancel(clientID)
	if n := g.scheduler.Cancel(clientID); n > 0 {
		g.logger.DebugContext(ctx, "dropped scheduled kick", "clientID", clientID)
	}
}

// Tick expires pending checks, runs due kicks and prunes old check stamps.
func (g *Gate) Tick(ctx context.Context) {
	now := g.now()
	g.pending.SweepTimeouts(ctx, now)
	g.scheduler.RunDue(ctx, now)

	g.mu.Lock()
	for id, at := range g.lastCheck {
		if now.Sub(at) > g.cooldownRetention {
			delete(g.lastCheck, id)
		}
	}
	g.mu.Unlock()
}

// Run subscribes to the metadata provider and calls Tick every interval
// until ctx is done.
func (g *Gate) Run(ctx context.Context, interval time.Duration) error {
	sub := g.provider.Subscribe(g.OnMetadata)
	defer sub.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.Tick(ctx)
		}
	}
}
