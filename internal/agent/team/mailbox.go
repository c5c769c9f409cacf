package team

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Protocol message types exchanged between teammates
const (
	TypeIdleNotification = "idle_notification"
	TypeShutdownRequest  = "shutdown_request"
	TypeShutdownApproved = "shutdown_approved"
)

// Message is one mailbox entry
type Message struct {
	ID        string    `json:"id"`
	Team      string    `json:"team"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notice is the JSON body of a protocol message
type Notice struct {
	Type       string `json:"type"`
	From       string `json:"from"`
	IdleReason string `json:"idleReason,omitempty"`
}

// ParseNotice decodes a protocol message. Plain text returns false.
func ParseNotice(text string) (Notice, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return Notice{}, false
	}
	var n Notice
	if err := json.Unmarshal([]byte(trimmed), &n); err != nil || n.Type == "" {
		return Notice{}, false
	}
	return n, true
}

// Encode returns the notice as a JSON string
func (n Notice) Encode() string {
	data, _ := json.Marshal(n)
	return string(data)
}

// Mailbox is a team-scoped message queue backed by the team_messages table
type Mailbox struct {
	db   *sql.DB
	team string
	now  func() time.Time
}

// NewMailbox returns the mailbox for a team. The database must be migrated.
func NewMailbox(db *sql.DB, team string) (*Mailbox, error) {
	if db == nil {
		return nil, errors.New("team: database required")
	}
	if team == "" {
		return nil, errors.New("team: name required")
	}
	return &Mailbox{db: db, team: team, now: time.Now}, nil
}

// Team returns the team name
func (m *Mailbox) Team() string {
	return m.team
}

// Send queues a message for a teammate
func (m *Mailbox) Send(ctx context.Context, from, to, text, summary string) error {
	if to == "" {
		return errors.New("team: recipient required")
	}
	_, err := m.db.ExecContext(ctx,
		"INSERT INTO team_messages (id, team, sender, recipient, body, summary, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		uuid.New().String(), m.team, from, to, text, summary, m.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to send team message: %w", err)
	}
	return nil
}

// ReadUnread returns the recipient's unread messages oldest first and marks them read
func (m *Mailbox) ReadUnread(ctx context.Context, name string) ([]Message, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, sender, recipient, body, summary, created_at FROM team_messages
		WHERE team = ? AND recipient = ? AND read = 0
		ORDER BY created_at ASC, rowid ASC`, m.team, name)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for rows.Next() {
		var msg Message
		var created int64
		if err := rows.Scan(&msg.ID, &msg.From, &msg.To, &msg.Text, &msg.Summary, &created); err != nil {
			rows.Close()
			return nil, err
		}
		msg.Team = m.team
		msg.CreatedAt = time.Unix(0, created)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, msg := range msgs {
		if _, err := tx.ExecContext(ctx, "UPDATE team_messages SET read = 1 WHERE id = ?", msg.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Pending counts unread messages for a recipient
func (m *Mailbox) Pending(ctx context.Context, name string) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM team_messages WHERE team = ? AND recipient = ? AND read = 0",
		m.team, name).Scan(&n)
	return n, err
}
