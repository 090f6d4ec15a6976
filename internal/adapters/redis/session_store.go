package redis

// Package redis provides the Redis-backed session store for the intranet.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/ports"
)

// SessionStore keeps session payloads in Redis under an opaque key with a
// sliding TTL. Redis guarantees per-key atomicity, which is all the session
// model requires: a request only touches its own key.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore creates a session store with the default key prefix.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client, prefix: "session:"}
}

// NewSessionStoreWithPrefix creates a session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix}
}

// NewSessionID returns a fresh opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ErrNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}
	sess.ID = id
	return sess, nil
}

func (s *SessionStore) Put(ctx context.Context, sess domainauth.Session, ttl time.Duration) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.client.Set(ctx, s.prefix+sess.ID, data, ttl).Err()
}

// Rotate re-keys the session under a fresh identifier, carrying over the
// payload and the remaining TTL, then removes the old key. Only the current
// session's keys are touched.
func (s *SessionStore) Rotate(ctx context.Context, oldID string) (string, error) {
	if oldID == "" {
		return "", ErrNotFound
	}

	oldKey := s.prefix + oldID
	data, err := s.client.Get(ctx, oldKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}

	ttl, err := s.client.TTL(ctx, oldKey).Result()
	if err != nil {
		return "", fmt.Errorf("redis ttl: %w", err)
	}
	if ttl <= 0 {
		// Key has no expiry or vanished between calls; treat as gone.
		return "", ErrNotFound
	}

	newID := NewSessionID()

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal([]byte(data), &sess); unmarshalErr != nil {
		return "", fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}
	sess.ID = newID

	payload, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	if setErr := s.client.Set(ctx, s.prefix+newID, payload, ttl).Err(); setErr != nil {
		return "", fmt.Errorf("redis set rotated session: %w", setErr)
	}
	if delErr := s.client.Del(ctx, oldKey).Err(); delErr != nil {
		return "", fmt.Errorf("redis del old session: %w", delErr)
	}

	return newID, nil
}

func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil // Nothing to destroy
	}
	return s.client.Del(ctx, s.prefix+id).Err()
}

// ErrNotFound is returned when a session is not found.
var ErrNotFound = ports.ErrSessionNotFound
