package modguard

import (
	"strconv"
	"time"
)

// ClientID is the host-assigned connection id of a player.
type ClientID uint64

// ModID identifies a mod. Workshop ids are large; anything below the
// configured floor is treated as a local mod.
type ModID uint64

func (id ModID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Team is the team a player asks to join.
type Team int

const (
	TeamNone Team = iota
	TeamSpectator
	TeamBlue
	TeamRed
)

// IsActive reports whether the team takes part in play.
func (t Team) IsActive() bool {
	return t == TeamBlue || t == TeamRed
}

func (t Team) String() string {
	switch t {
	case TeamNone:
		return "None"
	case TeamSpectator:
		return "Spectator"
	case TeamBlue:
		return "Blue"
	case TeamRed:
		return "Red"
	default:
		return "Team(" + strconv.Itoa(int(t)) + ")"
	}
}

// Player is what the host tells us about a connecting player.
type Player struct {
	ClientID   ClientID
	ExternalID uint64
	Username   string
	ModIDs     []ModID
}

// ModDescriptor is the resolved metadata of a mod.
type ModDescriptor struct {
	ID          ModID  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PreviewURL  string `json:"preview_url"`
}

// Verdict is a finalized enforcement decision for a connected player.
type Verdict struct {
	ClientID             ClientID `json:"client_id"`
	Username             string   `json:"username"`
	BlacklistedModIDs    []ModID  `json:"blacklisted_mod_ids"`
	HasLocalModViolation bool     `json:"has_local_mod_violation"`
}

// IsViolation reports whether the verdict carries at least one violation.
func (v *Verdict) IsViolation() bool {
	return len(v.BlacklistedModIDs) > 0 || v.HasLocalModViolation
}

func (v *Verdict) clone() Verdict {
	c := *v
	c.BlacklistedModIDs = append([]ModID(nil), v.BlacklistedModIDs...)
	return c
}

// PendingCheck holds a player whose mod metadata has not fully arrived.
type PendingCheck struct {
	Player
	Awaiting map[ModID]struct{}
	Deadline time.Time
}

func (c *PendingCheck) clone() PendingCheck {
	out := *c
	out.ModIDs = append([]ModID(nil), c.ModIDs...)
	out.Awaiting = make(map[ModID]struct{}, len(c.Awaiting))
	for id := range c.Awaiting {
		out.Awaiting[id] = struct{}{}
	}
	return out
}
