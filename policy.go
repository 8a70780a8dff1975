package modguard

// Classification is the outcome of checking one player's mods.
type Classification struct {
	// Blacklisted holds the blacklisted ids in the player's order, without
	// duplicates.
	Blacklisted []ModID

	LocalViolation bool
}

// Violates reports whether the player breaks policy.
func (c Classification) Violates() bool {
	return len(c.Blacklisted) > 0 || c.LocalViolation
}

// Policy decides which mods a player may run.
// It keeps no state of its own; every call reads the current settings.
type Policy struct {
	settings SettingsSource
}

// NewPolicy creates a Policy reading from settings.
func NewPolicy(settings SettingsSource) *Policy {
	return &Policy{settings: settings}
}

// IsBlacklisted reports whether modID is on the blacklist.
func (p *Policy) IsBlacklisted(modID ModID) bool {
	return p.settings.Settings().isBlacklisted(modID)
}

// IsLocal reports whether modID lies below the workshop id floor.
func (p *Policy) IsLocal(modID ModID) bool {
	return isLocal(p.settings.Settings(), modID)
}

func isLocal(s *Settings, modID ModID) bool {
	return modID < s.LocalModThreshold
}

// Classify checks modIDs against the blacklist and the local-mod rule.
// The two checks are independent. A disabled system classifies everyone
// as clean.
func (p *Policy) Classify(modIDs []ModID) Classification {
	s := p.settings.Settings()
	if !s.Enabled {
		return Classification{}
	}

	var c Classification
	seen := make(map[ModID]struct{}, len(modIDs))
	for _, id := range modIDs {
		if s.KickPlayersWithLocalMods && isLocal(s, id) {
			c.LocalViolation = true
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if s.isBlacklisted(id) {
			c.Blacklisted = append(c.Blacklisted, id)
		}
	}
	return c
}
