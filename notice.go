package modguard

import (
	"strconv"
	"strings"
)

const noticePrefix = "<b><color=#FF6666>[Blacklist]</color></b> "

// FormatKickNotice builds the chat line announcing that v's player is about
// to be kicked. name turns a mod id into something readable.
func FormatKickNotice(v Verdict, name func(ModID) string) string {
	var b strings.Builder
	b.WriteString(noticePrefix)
	b.WriteString("<b>" + v.Username + "</b> will be kicked for using ")

	n := len(v.BlacklistedModIDs)
	switch {
	case v.HasLocalModViolation && n > 0:
		b.WriteString("a <b>local mod</b> and " + strconv.Itoa(n) + " blacklisted mod: <b>")
		b.WriteString(joinModNames(v.BlacklistedModIDs, name))
		b.WriteString("</b>")
	case v.HasLocalModViolation:
		b.WriteString("a <b>local mod</b>.")
	case n == 1:
		b.WriteString("blacklisted mod: <b>" + name(v.BlacklistedModIDs[0]) + "</b>")
	default:
		b.WriteString(strconv.Itoa(n) + " blacklisted mod: <b>")
		b.WriteString(joinModNames(v.BlacklistedModIDs, name))
		b.WriteString("</b>")
	}
	return b.String()
}

func joinModNames(ids []ModID, name func(ModID) string) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = name(id)
	}
	return strings.Join(names, ", ")
}

// FormatModAnnouncement builds the chat line listing a player's mods.
// Local mods are counted rather than named.
func FormatModAnnouncement(username string, modIDs []ModID, isLocal func(ModID) bool, name func(ModID) string) string {
	if len(modIDs) == 0 {
		return "<size=14><b>" + username + "</b> has no mods.</size>"
	}

	var titles []string
	local := 0
	for _, id := range modIDs {
		if isLocal(id) {
			local++
			continue
		}
		titles = append(titles, name(id))
	}

	list := strings.Join(titles, ", ")
	if local > 0 {
		if list != "" {
			list += ", & "
		}
		list += strconv.Itoa(local) + " local mod" + plural(local)
	}

	return "<size=14><b>" + username + "</b> has " + strconv.Itoa(len(modIDs)) + " mod" + plural(len(modIDs)) + ": " + list + "</size>"
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
