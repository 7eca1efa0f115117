// Package sqlite implements the session store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zhisuan/graphchat/store"
)

// SessionStore implements store.SessionStore using SQLite.
type SessionStore struct {
	db        *sql.DB
	tableName string
}

// Options configuration for the SQLite connection.
type Options struct {
	Path      string
	TableName string // Default "session_messages"
}

// NewSessionStore opens the database and ensures the schema exists.
func NewSessionStore(opts Options) (*SessionStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "session_messages"
	}

	s := &SessionStore{db: db, tableName: tableName}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SessionStore) initSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Append stores one conversation turn.
func (s *SessionStore) Append(ctx context.Context, sessionID string, msg store.Message) error {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (session_id, role, content, created_at) VALUES (?, ?, ?, ?)", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, sessionID, msg.Role, msg.Content, createdAt); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// History returns the stored turns oldest first. limit <= 0 returns all;
// otherwise the most recent limit turns are returned.
func (s *SessionStore) History(ctx context.Context, sessionID string, limit int) ([]store.Message, error) {
	query := fmt.Sprintf(
		"SELECT role, content, created_at FROM %s WHERE session_id = ? ORDER BY id ASC", s.tableName)
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var messages []store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// Clear removes every turn of the session.
func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
