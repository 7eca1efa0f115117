// Package redis implements the session store on Redis lists.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhisuan/graphchat/store"
)

// SessionStore implements store.SessionStore using one Redis list per
// session.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Options configuration for the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "graphchat:"
	TTL      time.Duration // Expiration for sessions, default 0 (no expiration)
}

// NewSessionStore connects to Redis with the given options.
func NewSessionStore(opts Options) *SessionStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewSessionStoreFromClient(client, opts)
}

// NewSessionStoreFromClient wraps an existing client; used by tests and
// callers that share a connection pool.
func NewSessionStoreFromClient(client *redis.Client, opts Options) *SessionStore {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "graphchat:"
	}
	return &SessionStore{client: client, prefix: prefix, ttl: opts.TTL}
}

func (s *SessionStore) sessionKey(id string) string {
	return fmt.Sprintf("%ssession:%s:messages", s.prefix, id)
}

func (s *SessionStore) Close() error {
	return s.client.Close()
}

// Append pushes one turn onto the session list and refreshes the TTL.
func (s *SessionStore) Append(ctx context.Context, sessionID string, msg store.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	key := s.sessionKey(sessionID)
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to set session ttl: %w", err)
		}
	}
	return nil
}

// History returns stored turns oldest first. limit <= 0 returns all;
// otherwise the most recent limit turns are returned.
func (s *SessionStore) History(ctx context.Context, sessionID string, limit int) ([]store.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, s.sessionKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	messages := make([]store.Message, 0, len(raw))
	for _, item := range raw {
		var msg store.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear removes the session list.
func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
