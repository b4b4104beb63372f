// api/cache/memory.go
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store used when no Redis URL is configured
// and as the test double for the orchestrator. Lock semantics mirror the
// Redis implementation: test-and-set with TTL expiry and owner tokens.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	locks map[string]memoryLock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]memoryEntry),
		locks: make(map[string]memoryLock),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.data, key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

func (s *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[key]; ok && time.Now().Before(lock.expiresAt) {
		return "", false, nil
	}
	token := uuid.New().String()
	s.locks[key] = memoryLock{token: token, expiresAt: time.Now().Add(ttl)}
	return token, true, nil
}

func (s *MemoryStore) ReleaseLock(_ context.Context, key string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[key]; ok && lock.token == token {
		delete(s.locks, key)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
