package runner

import (
	"context"

	"github.com/neboloop/skiff/internal/agent/session"
	"github.com/neboloop/skiff/internal/agent/team"
	"github.com/neboloop/skiff/internal/logging"
)

// Inbox delivers teammate messages addressed to name
type Inbox interface {
	ReadUnread(ctx context.Context, name string) ([]team.Message, error)
}

// InboxText renders a mailbox message as a user turn. Idle notifications are dropped.
func InboxText(msg team.Message) (string, bool) {
	if n, ok := team.ParseNotice(msg.Text); ok {
		switch n.Type {
		case team.TypeIdleNotification:
			return "", false
		case team.TypeShutdownApproved:
			return "[Team] " + msg.From + " has shut down.", true
		case team.TypeShutdownRequest:
			return "[Team] Shutdown request from " + msg.From, true
		}
	}
	return "[Team message from " + msg.From + "]: " + msg.Text, true
}

func (a *Agent) injectInbox(ctx context.Context, messages []session.Message) []session.Message {
	if a.inbox == nil || a.inboxName == "" {
		return messages
	}
	unread, err := a.inbox.ReadUnread(ctx, a.inboxName)
	if err != nil {
		logging.Warnf("[Runner] Inbox read failed: %v", err)
		return messages
	}
	for _, msg := range unread {
		if text, ok := InboxText(msg); ok {
			messages = append(messages, session.Message{Role: session.RoleUser, Content: text})
		}
	}
	return messages
}
