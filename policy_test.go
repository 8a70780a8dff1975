package modguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Classify(t *testing.T) {
	tests := []struct {
		name string
		edit func(s *Settings)
		mods []ModID
		want Classification
	}{
		{
			name: "clean",
			edit: func(s *Settings) { s.BlacklistedModIDs = []ModID{modA} },
			mods: []ModID{modB, modC},
			want: Classification{},
		},
		{
			name: "no mods",
			edit: func(s *Settings) { s.BlacklistedModIDs = []ModID{modA} },
			mods: nil,
			want: Classification{},
		},
		{
			name: "blacklisted intersection keeps player order",
			edit: func(s *Settings) { s.BlacklistedModIDs = []ModID{modA, modC} },
			mods: []ModID{modC, modB, modA},
			want: Classification{Blacklisted: []ModID{modC, modA}},
		},
		{
			name: "duplicates reported once",
			edit: func(s *Settings) { s.BlacklistedModIDs = []ModID{modA} },
			mods: []ModID{modA, modA},
			want: Classification{Blacklisted: []ModID{modA}},
		},
		{
			name: "local mod ignored when rule is off",
			edit: nil,
			mods: []ModID{1},
			want: Classification{},
		},
		{
			name: "local mod",
			edit: func(s *Settings) { s.KickPlayersWithLocalMods = true },
			mods: []ModID{1, modB},
			want: Classification{LocalViolation: true},
		},
		{
			name: "local and blacklisted",
			edit: func(s *Settings) {
				s.KickPlayersWithLocalMods = true
				s.BlacklistedModIDs = []ModID{modA}
			},
			mods: []ModID{modA, 0},
			want: Classification{Blacklisted: []ModID{modA}, LocalViolation: true},
		},
		{
			name: "blacklisted local id",
			edit: func(s *Settings) { s.BlacklistedModIDs = []ModID{111} },
			mods: []ModID{111, 222},
			want: Classification{Blacklisted: []ModID{111}},
		},
		{
			name: "custom threshold",
			edit: func(s *Settings) {
				s.KickPlayersWithLocalMods = true
				s.LocalModThreshold = 101
			},
			mods: []ModID{101, modA},
			want: Classification{},
		},
		{
			name: "disabled overrides everything",
			edit: func(s *Settings) {
				s.Enabled = false
				s.KickPlayersWithLocalMods = true
				s.BlacklistedModIDs = []ModID{modA}
			},
			mods: []ModID{modA, 1},
			want: Classification{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(testSettings(tt.edit))
			got := p.Classify(tt.mods)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want.Blacklisted) > 0 || tt.want.LocalViolation, got.Violates())
		})
	}
}

func TestPolicy_ReadsCurrentSettings(t *testing.T) {
	store := NewConfigStore("unused", nil)
	p := NewPolicy(store)

	assert.False(t, p.IsBlacklisted(modA))

	s := DefaultSettings()
	s.BlacklistedModIDs = []ModID{modA}
	store.Store(s)

	assert.True(t, p.IsBlacklisted(modA))
	assert.Equal(t, []ModID{modA}, p.Classify([]ModID{modA}).Blacklisted)
}

func TestPolicy_IsLocal(t *testing.T) {
	p := NewPolicy(testSettings(nil))

	assert.True(t, p.IsLocal(0))
	assert.True(t, p.IsLocal(100))
	assert.True(t, p.IsLocal(DefaultLocalModThreshold-1))
	assert.False(t, p.IsLocal(DefaultLocalModThreshold))
	assert.False(t, p.IsLocal(modA))
}
