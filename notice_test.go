package modguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatKickNotice(t *testing.T) {
	names := map[ModID]string{modA: "Better Sticks", modB: "Big Heads"}
	name := func(id ModID) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id.String()
	}

	tests := []struct {
		name string
		v    Verdict
		want string
	}{
		{
			name: "local and blacklisted",
			v:    Verdict{Username: "alice", HasLocalModViolation: true, BlacklistedModIDs: []ModID{modA, modB}},
			want: "<b><color=#FF6666>[Blacklist]</color></b> <b>alice</b> will be kicked for using a <b>local mod</b> and 2 blacklisted mod: <b>Better Sticks, Big Heads</b>",
		},
		{
			name: "local only",
			v:    Verdict{Username: "bob", HasLocalModViolation: true},
			want: "<b><color=#FF6666>[Blacklist]</color></b> <b>bob</b> will be kicked for using a <b>local mod</b>.",
		},
		{
			name: "single blacklisted",
			v:    Verdict{Username: "carol", BlacklistedModIDs: []ModID{modA}},
			want: "<b><color=#FF6666>[Blacklist]</color></b> <b>carol</b> will be kicked for using blacklisted mod: <b>Better Sticks</b>",
		},
		{
			name: "several blacklisted, one unresolved",
			v:    Verdict{Username: "dave", BlacklistedModIDs: []ModID{modA, modC}},
			want: "<b><color=#FF6666>[Blacklist]</color></b> <b>dave</b> will be kicked for using 2 blacklisted mod: <b>Better Sticks, 3000000003</b>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatKickNotice(tt.v, name))
		})
	}
}

func TestFormatModAnnouncement(t *testing.T) {
	isLocal := func(id ModID) bool { return id < DefaultLocalModThreshold }
	name := func(id ModID) string { return "mod-" + id.String() }

	tests := []struct {
		name string
		mods []ModID
		want string
	}{
		{
			name: "no mods",
			mods: nil,
			want: "<size=14><b>eve</b> has no mods.</size>",
		},
		{
			name: "one mod",
			mods: []ModID{modA},
			want: "<size=14><b>eve</b> has 1 mod: mod-3000000001</size>",
		},
		{
			name: "workshop and local",
			mods: []ModID{modA, 5, modB, 6},
			want: "<size=14><b>eve</b> has 4 mods: mod-3000000001, mod-3000000002, & 2 local mods</size>",
		},
		{
			name: "local only",
			mods: []ModID{5},
			want: "<size=14><b>eve</b> has 1 mod: 1 local mod</size>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatModAnnouncement("eve", tt.mods, isLocal, name))
		})
	}
}
