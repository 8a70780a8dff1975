package modguard

import (
	"context"
)

// Observer is notified of what the Gate decides. Implementations must not
// block; they run on the caller's goroutine.
type Observer interface {
	// OnCheck is called for every connect event. skipped is true when the
	// cooldown suppressed evaluation.
	OnCheck(ctx context.Context, clientID ClientID, skipped bool)

	// OnVerdict is called when a verdict is stored or replaced.
	OnVerdict(ctx context.Context, v Verdict)

	// OnVerdictCleared is called when a re-check removed a stale verdict.
	OnVerdictCleared(ctx context.Context, clientID ClientID)

	OnPendingResolved(ctx context.Context, clientID ClientID, reason ResolveReason)

	OnTeamJoinDenied(ctx context.Context, clientID ClientID, team Team)

	// OnEnforce is called once the verdict was taken for enforcement.
	OnEnforce(ctx context.Context, v Verdict)

	// OnKick is called after the disconnect attempt. err is nil on success.
	OnKick(ctx context.Context, clientID ClientID, err error)
}

// NopObserver ignores everything. Embed it to implement part of Observer.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) OnCheck(context.Context, ClientID, bool)                    {}
func (NopObserver) OnVerdict(context.Context, Verdict)                         {}
func (NopObserver) OnVerdictCleared(context.Context, ClientID)                 {}
func (NopObserver) OnPendingResolved(context.Context, ClientID, ResolveReason) {}
func (NopObserver) OnTeamJoinDenied(context.Context, ClientID, Team)           {}
func (NopObserver) OnEnforce(context.Context, Verdict)                         {}
func (NopObserver) OnKick(context.Context, ClientID, error)                     {}

type multiObserver []Observer

// Observers fans every notification out to obs in order.
// Nil entries are skipped.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) OnCheck(ctx context.Context, clientID ClientID, skipped bool) {
	for _, o := range m {
		o.OnCheck(ctx, clientID, skipped)
	}
}

func (m multiObserver) OnVerdict(ctx context.Context, v Verdict) {
	for _, o := range m {
		o.OnVerdict(ctx, v)
	}
}

func (m multiObserver) OnVerdictCleared(ctx context.Context, clientID ClientID) {
	for _, o := range m {
		o.OnVerdictCleared(ctx, clientID)
	}
}

func (m multiObserver) OnPendingResolved(ctx context.Context, clientID ClientID, reason ResolveReason) {
	for _, o := range m {
		o.OnPendingResolved(ctx, clientID, reason)
	}
}

func (m multiObserver) OnTeamJoinDenied(ctx context.Context, clientID ClientID, team Team) {
	for _, o := range m {
		o.OnTeamJoinDenied(ctx, clientID, team)
	}
}

func (m multiObserver) OnEnforce(ctx context.Context, v Verdict) {
	for _, o := range m {
		o.OnEnforce(ctx, v)
	}
}

func (m multiObserver) OnKick(ctx context.Context, clientID ClientID, err error) {
	for _, o := range m {
		o.OnKick(ctx, clientID, err)
	}
}
