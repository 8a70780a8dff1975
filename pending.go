package modguard

import (
	"context"
	"sync"
	"time"
)

// DefaultPendingTimeout bounds how long a player waits on mod metadata.
const DefaultPendingTimeout = 10 * time.Second

// ResolveReason tells why a pending check was finalized.
type ResolveReason int

const (
	// ResolvedImmediately: every mod was already known at registration.
	ResolvedImmediately ResolveReason = iota
	// ResolvedComplete: the last awaited descriptor arrived.
	ResolvedComplete
	// ResolvedTimeout: the deadline passed first.
	ResolvedTimeout
)

func (r ResolveReason) String() string {
	switch r {
	case ResolvedImmediately:
		return "immediate"
	case ResolvedComplete:
		return "complete"
	case ResolvedTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// FinalizeFunc receives a check exactly once, after it left the tracker.
type FinalizeFunc func(ctx context.Context, check PendingCheck, reason ResolveReason)

// PendingTracker holds players whose mod metadata is still on its way.
//
// A check leaves the tracker exactly once: when its last awaited id
// arrives, when its deadline passes, or when it is cancelled. Finalize is
// called for the first two, always after the check was removed and the
// tracker lock released.
type PendingTracker struct {
	mu     sync.Mutex
	checks map[ClientID]*PendingCheck

	cache    *MetadataCache
	local    func(ModID) bool
	timeout  time.Duration
	finalize FinalizeFunc
}

// PendingTrackerOption configures a PendingTracker.
type PendingTrackerOption struct {
	// IsLocal marks ids that never get metadata. They are not awaited.
	IsLocal func(ModID) bool

	// Timeout defaults to DefaultPendingTimeout.
	Timeout time.Duration
}

// NewPendingTracker creates a tracker resolving against cache.
func NewPendingTracker(cache *MetadataCache, finalize FinalizeFunc, opt *PendingTrackerOption) *PendingTracker {
	t := &PendingTracker{
		checks:   make(map[ClientID]*PendingCheck),
		cache:    cache,
		local:    func(ModID) bool { return false },
		timeout:  DefaultPendingTimeout,
		finalize: finalize,
	}
	if opt != nil {
		if opt.IsLocal != nil {
			t.local = opt.IsLocal
		}
		if opt.Timeout > 0 {
			t.timeout = opt.Timeout
		}
	}
	return t
}

// Register starts tracking p and returns the ids that still need metadata.
// If nothing is missing, p is finalized before Register returns and the
// result is nil. A newer registration for the same client replaces the old
// check without finalizing it.
func (t *PendingTracker) Register(ctx context.Context, p Player, now time.Time) []ModID {
	check := PendingCheck{
		Player:   p,
		Awaiting: make(map[ModID]struct{}),
		Deadline: now.Add(t.timeout),
	}
	check.ModIDs = append([]ModID(nil), p.ModIDs...)

	var missing []ModID
	for _, id := range p.ModIDs {
		if _, dup := check.Awaiting[id]; dup {
			continue
		}
		if t.local(id) || t.cache.Has(id) {
			continue
		}
		check.Awaiting[id] = struct{}{}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		t.Cancel(p.ClientID)
		t.finalize(ctx, check, ResolvedImmediately)
		return nil
	}

	t.mu.Lock()
	t.checks[p.ClientID] = &check
	t.mu.Unlock()

	return missing
}

// OnMetadataArrived marks modID resolved for every check awaiting it and
// finalizes the checks it completes.
func (t *PendingTracker) OnMetadataArrived(ctx context.Context, modID ModID) int {
	t.mu.Lock()
	var done []PendingCheck
	for _, check := range t.checks {
		if _, ok := check.Awaiting[modID]; !ok {
			continue
		}
		delete(check.Awaiting, modID)
		if len(check.Awaiting) == 0 {
			done = append(done, check.clone())
		}
	}
	for _, check := range done {
		delete(t.checks, check.ClientID)
	}
	t.mu.Unlock()

	for _, check := range done {
		t.finalize(ctx, check, ResolvedComplete)
	}
	return len(done)
}

// SweepTimeouts finalizes every check whose deadline is not after now.
// The checks are evaluated with whatever metadata is known at that point.
func (t *PendingTracker) SweepTimeouts(ctx context.Context, now time.Time) int {
	t.mu.Lock()
	var expired []PendingCheck
	for _, check := range t.checks {
		if !now.Before(check.Deadline) {
			expired = append(expired, check.clone())
		}
	}
	for _, check := range expired {
		delete(t.checks, check.ClientID)
	}
	t.mu.Unlock()

	for _, check := range expired {
		t.finalize(ctx, check, ResolvedTimeout)
	}
	return len(expired)
}

// Cancel drops the check for clientID without finalizing it.
func (t *PendingTracker) Cancel(clientID ClientID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.checks[clientID]
	delete(t.checks, clientID)
	return ok
}

// Get returns a copy of the check for clientID.
func (t *PendingTracker) Get(clientID ClientID) (PendingCheck, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	check, ok := t.checks[clientID]
	if !ok {
		return PendingCheck{}, false
	}
	return check.clone(), true
}

// Has reports whether clientID is waiting on metadata.
func (t *PendingTracker) Has(clientID ClientID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.checks[clientID]
	return ok
}

// List returns a copy of every check.
func (t *PendingTracker) List() []PendingCheck {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PendingCheck, 0, len(t.checks))
	for _, check := range t.checks {
		out = append(out, check.clone())
	}
	return out
}

// Len returns the number of checks.
func (t *PendingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.checks)
}
