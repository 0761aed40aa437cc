package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Store.Load when no record exists for a key.
var ErrNotFound = errors.New("session not found")

// Store persists session data by derived key. Implementations must be safe
// for concurrent use.
type Store interface {
	// Load returns the record for key and slides its expiry to ttl.
	Load(ctx context.Context, key string, ttl time.Duration) (Data, error)

	// Save writes the record for key with the given ttl.
	Save(ctx context.Context, key string, data Data, ttl time.Duration) error

	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// keyPrefix namespaces session records in Redis.
const keyPrefix = "session:"

// redisStore keeps sessions in Redis as JSON strings with a TTL.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Load(ctx context.Context, key string, ttl time.Duration) (Data, error) {
	raw, err := s.client.GetEx(ctx, keyPrefix+key, ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return Data{}, ErrNotFound
	}
	if err != nil {
		return Data{}, fmt.Errorf("reading session from redis: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return Data{}, fmt.Errorf("unmarshaling session: %w", err)
	}
	return data, nil
}

func (s *redisStore) Save(ctx context.Context, key string, data Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("storing session in redis: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("deleting session from redis: %w", err)
	}
	return nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// memoryEntry is a stored record with its expiry.
type memoryEntry struct {
	data      Data
	expiresAt time.Time
}

// memoryStore keeps sessions in process memory. Sessions are lost on
// restart, which matches the session lifetime the app promises anyway.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an in-process Store, used for tests and for
// SESSION_STORE=memory.
func NewMemoryStore() Store {
	return &memoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *memoryStore) Load(_ context.Context, key string, ttl time.Duration) (Data, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return Data{}, ErrNotFound
	}
	now := s.now()
	if !now.Before(entry.expiresAt) {
		delete(s.entries, key)
		return Data{}, ErrNotFound
	}
	entry.expiresAt = now.Add(ttl)
	s.entries[key] = entry
	return entry.data, nil
}

func (s *memoryStore) Save(_ context.Context, key string, data Data, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{data: data, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}
