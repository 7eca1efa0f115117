// Package store persists per-session conversation history. Two backends
// are provided: SQLite (store/sqlite) for single-node deployments and
// Redis (store/redis) for shared or ephemeral setups.
package store

import (
	"context"
	"time"
)

// Message is one conversation turn as persisted.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore persists conversation turns keyed by session id. History
// returns turns in insertion order, oldest first; limit <= 0 means all.
type SessionStore interface {
	Append(ctx context.Context, sessionID string, msg Message) error
	History(ctx context.Context, sessionID string, limit int) ([]Message, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}
