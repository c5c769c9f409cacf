package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a row in the sessions table
type Session struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the append-only message log for one session key.
// The database must already be migrated (see internal/db).
type Store struct {
	db *sql.DB

	mu  sync.Mutex
	id  string
	key string
}

// Open returns the store for key, creating the session row if needed
func Open(ctx context.Context, db *sql.DB, key string) (*Store, error) {
	if db == nil {
		return nil, errors.New("session: database required")
	}
	s := &Store{db: db}
	if err := s.bind(ctx, key); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) bind(ctx context.Context, key string) error {
	id, err := getOrCreate(ctx, s.db, key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.id, s.key = id, key
	s.mu.Unlock()
	return nil
}

func getOrCreate(ctx context.Context, db *sql.DB, key string) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, "SELECT id FROM sessions WHERE session_key = ?", key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	id = uuid.New().String()
	now := time.Now().Unix()
	_, err = db.ExecContext(ctx,
		"INSERT INTO sessions (id, session_key, created_at, updated_at) VALUES (?, ?, ?, ?)",
		id, key, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// Key returns the session key the store is bound to
func (s *Store) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Switch rebinds the store to another session key
func (s *Store) Switch(ctx context.Context, key string) error {
	return s.bind(ctx, key)
}

func (s *Store) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, ex execer, id string, msg Message, now int64) error {
	var toolCalls sql.NullString
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("failed to encode tool calls: %w", err)
		}
		toolCalls = sql.NullString{String: string(data), Valid: true}
	}
	_, err := ex.ExecContext(ctx,
		"INSERT INTO session_messages (session_id, role, content, tool_call_id, tool_calls, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, msg.Role, msg.Content, msg.ToolCallID, toolCalls, now,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Log appends a message
func (s *Store) Log(ctx context.Context, msg Message) error {
	id := s.sessionID()
	now := time.Now().Unix()
	if err := insertMessage(ctx, s.db, id, msg, now); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", now, id)
	return err
}

// Replace swaps the session's messages for msgs in one transaction.
// On error the previous messages are left untouched.
func (s *Store) Replace(ctx context.Context, msgs []Message) error {
	id := s.sessionID()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_messages WHERE session_id = ?", id); err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, m := range msgs {
		if err := insertMessage(ctx, tx, id, m, now); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", now, id); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadRecent returns the last n messages, oldest first. n <= 0 loads everything.
func (s *Store) LoadRecent(ctx context.Context, n int) ([]Message, error) {
	id := s.sessionID()

	var (
		rows *sql.Rows
		err  error
	)
	if n > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT role, content, tool_call_id, tool_calls FROM (
				SELECT id, role, content, tool_call_id, tool_calls FROM session_messages
				WHERE session_id = ?
				ORDER BY id DESC
				LIMIT ?
			) ORDER BY id ASC`, id, n)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT role, content, tool_call_id, tool_calls FROM session_messages WHERE session_id = ? ORDER BY id ASC", id)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var toolCalls sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.ToolCallID, &toolCalls); err != nil {
			return nil, err
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("corrupt tool calls in session %s: %w", id, err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Count returns the number of stored messages
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_messages WHERE session_id = ?", s.sessionID()).Scan(&n)
	return n, err
}

// Reset clears all messages from the session
func (s *Store) Reset(ctx context.Context) error {
	id := s.sessionID()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_messages WHERE session_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now().Unix(), id); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns all sessions, most recently updated first
func List(ctx context.Context, db *sql.DB) ([]Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.session_key, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM session_messages m WHERE m.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC, s.session_key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var createdAt, updatedAt int64
		if err := rows.Scan(&sess.ID, &sess.Key, &createdAt, &updatedAt, &sess.MessageCount); err != nil {
			return nil, err
		}
		sess.CreatedAt = time.Unix(createdAt, 0)
		sess.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
