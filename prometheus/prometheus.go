package prometheus

import (
	"context"
	"errors"

	"github.com/high-moctane/modguard"
	"github.com/prometheus/client_golang/prometheus"
)

var _ modguard.Observer = (*Observer)(nil)

// Observer counts the Gate's decisions.
type Observer struct {
	checksTotal          *prometheus.CounterVec
	verdictsTotal        *prometheus.CounterVec
	verdictsClearedTotal prometheus.Counter
	pendingResolvedTotal *prometheus.CounterVec
	teamJoinDeniedTotal  *prometheus.CounterVec
	enforcementsTotal    prometheus.Counter
	kicksTotal           *prometheus.CounterVec
}

func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_checks_total",
				Help: "Number of player connect checks.",
			},
			[]string{"result"},
		),
		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_verdicts_total",
				Help: "Number of verdicts stored.",
			},
			[]string{"kind"},
		),
		verdictsClearedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modguard_verdicts_cleared_total",
			Help: "Number of verdicts cleared by a clean re-check.",
		}),
		pendingResolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_pending_resolved_total",
				Help: "Number of pending checks finalized.",
			},
			[]string{"reason"},
		),
		teamJoinDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_team_join_denied_total",
				Help: "Number of team joins denied.",
			},
			[]string{"team"},
		),
		enforcementsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modguard_enforcements_total",
			Help: "Number of verdicts enforced.",
		}),
		kicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modguard_kicks_total",
				Help: "Number of disconnect attempts.",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(o.checksTotal)
	reg.MustRegister(o.verdictsTotal)
	reg.MustRegister(o.verdictsClearedTotal)
	reg.MustRegister(o.pendingResolvedTotal)
	reg.MustRegister(o.teamJoinDeniedTotal)
	reg.MustRegister(o.enforcementsTotal)
	reg.MustRegister(o.kicksTotal)

	return o
}

// RegisterGauges exports the current size of the gate's trackers.
func RegisterGauges(reg prometheus.Registerer, gate *modguard.Gate) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "modguard_flagged_players",
			Help: "Current number of flagged players.",
		},
		func() float64 { return float64(gate.Verdicts().Len()) },
	))
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "modguard_pending_checks",
			Help: "Current number of players waiting on mod metadata.",
		},
		func() float64 { return float64(gate.Pending().Len()) },
	))
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "modguard_cached_mods",
			Help: "Current number of cached mod descriptors.",
		},
		func() float64 { return float64(gate.Cache().Len()) },
	))
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "modguard_scheduled_kicks",
			Help: "Current number of kicks waiting for their grace period.",
		},
		func() float64 { return float64(gate.Scheduler().Len()) },
	))
}

func (o *Observer) OnCheck(ctx context.Context, clientID modguard.ClientID, skipped bool) {
	if skipped {
		o.checksTotal.WithLabelValues("skipped").Inc()
		return
	}
	o.checksTotal.WithLabelValues("checked").Inc()
}

func verdictKind(v modguard.Verdict) string {
	switch {
	case v.HasLocalModViolation && len(v.BlacklistedModIDs) > 0:
		return "both"
	case v.HasLocalModViolation:
		return "local"
	default:
		return "blacklisted"
	}
}

func (o *Observer) OnVerdict(ctx context.Context, v modguard.Verdict) {
	o.verdictsTotal.WithLabelValues(verdictKind(v)).Inc()
}

func (o *Observer) OnVerdictCleared(ctx context.Context, clientID modguard.ClientID) {
	o.verdictsClearedTotal.Inc()
}

func (o *Observer) OnPendingResolved(ctx context.Context, clientID modguard.ClientID, reason modguard.ResolveReason) {
	o.pendingResolvedTotal.WithLabelValues(reason.String()).Inc()
}

func (o *Observer) OnTeamJoinDenied(ctx context.Context, clientID modguard.ClientID, team modguard.Team) {
	o.teamJoinDeniedTotal.WithLabelValues(team.String()).Inc()
}

func (o *Observer) OnEnforce(ctx context.Context, v modguard.Verdict) {
	o.enforcementsTotal.Inc()
}

func (o *Observer) OnKick(ctx context.Context, clientID modguard.ClientID, err error) {
	o.kicksTotal.WithLabelValues(kickResult(err)).Inc()
}

func kickResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, modguard.ErrClientGone):
		return "gone"
	case errors.Is(err, modguard.ErrNotServer):
		return "not_server"
	default:
		return "error"
	}
}
