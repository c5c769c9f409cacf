package session

import (
	"strings"
	"time"
)

// DailyKey returns the default session key: one conversation per calendar day
func DailyKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// TeammateKey scopes a session to a team member so teammates never share history
func TeammateKey(team, member string) string {
	return "team:" + sanitize(team) + ":" + sanitize(member)
}

// HeartbeatKey is the session used by scheduled heartbeat runs
const HeartbeatKey = "heartbeat"

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
