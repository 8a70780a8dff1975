package modguard

import (
	"cmp"
	"errors"
	"slices"
	"sync"
)

// ErrCleanVerdict is returned when storing a verdict without violations.
var ErrCleanVerdict = errors.New("verdict has no violation")

// VerdictTracker holds the pending enforcement decision of each connected
// player. There is at most one verdict per client.
type VerdictTracker struct {
	mu sync.RWMutex
	m  map[ClientID]Verdict
}

// NewVerdictTracker creates an empty tracker.
func NewVerdictTracker() *VerdictTracker {
	return &VerdictTracker{m: make(map[ClientID]Verdict)}
}

// Set stores v, replacing any earlier verdict for the same client.
func (t *VerdictTracker) Set(v Verdict) error {
	if !v.IsViolation() {
		return ErrCleanVerdict
	}
	v = v.clone()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[v.ClientID] = v
	return nil
}

// Clear removes the verdict for clientID and reports whether there was one.
func (t *VerdictTracker) Clear(clientID ClientID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.m[clientID]
	delete(t.m, clientID)
	return ok
}

// Take removes and returns the verdict for clientID.
// Of two concurrent callers, only one gets it.
func (t *VerdictTracker) Take(clientID ClientID) (Verdict, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.m[clientID]
	if ok {
		delete(t.m, clientID)
	}
	return v, ok
}

// Get returns a copy of the verdict for clientID.
func (t *VerdictTracker) Get(clientID ClientID) (Verdict, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.m[clientID]
	if !ok {
		return Verdict{}, false
	}
	return v.clone(), true
}

// IsFlagged reports whether clientID has a verdict.
func (t *VerdictTracker) IsFlagged(clientID ClientID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.m[clientID]
	return ok
}

// List returns every verdict ordered by client id.
func (t *VerdictTracker) List() []Verdict {
	t.mu.RLock()
	out := make([]Verdict, 0, len(t.m))
	for _, v := range t.m {
		out = append(out, v.clone())
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b Verdict) int {
		return cmp.Compare(a.ClientID, b.ClientID)
	})
	return out
}

// Len returns the number of flagged players.
func (t *VerdictTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}
