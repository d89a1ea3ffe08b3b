// Package replay implements the optional single-use token guard. A token
// accepted once is recorded for its remaining lifetime; seeing it again
// means a replayed submission.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Store records accepted tokens. MarkUsed returns fresh=true when the token
// was not seen before, false when it is a replay.
type Store interface {
	MarkUsed(ctx context.Context, token string, ttl time.Duration) (fresh bool, err error)
	Close() error
}

// tokenKey digests the token; the raw value is long and there is no reason
// to retain it.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "recaptcha:used:" + hex.EncodeToString(sum[:])
}

// MemoryStore is the in-process Store for single-instance deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	seen map[string]time.Time
	stop chan struct{}
	once sync.Once
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		seen: make(map[string]time.Time),
		stop: make(chan struct{}),
	}
	go s.cleanupExpired()
	return s
}

func (s *MemoryStore) MarkUsed(_ context.Context, token string, ttl time.Duration) (bool, error) {
	key := tokenKey(token)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expires, exists := s.seen[key]; exists && now.Before(expires) {
		return false, nil
	}
	s.seen[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) cleanupExpired() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, expires := range s.seen {
				if now.After(expires) {
					delete(s.seen, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
