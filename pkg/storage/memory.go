package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often MemoryStore sweeps expired entries.
const DefaultCleanupInterval = 5 * time.Minute

// MemoryStore is an in-memory Backend. Entries expire after ttl when ttl is
// positive; expired entries are invisible immediately and removed by a
// background sweep.
type MemoryStore struct {
	data     map[string]map[string]entry
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopped  bool
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero means never
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewMemoryStore creates a memory store and starts its cleanup goroutine.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return newMemoryStore(ttl, DefaultCleanupInterval, time.Now)
}

func newMemoryStore(ttl, interval time.Duration, now func() time.Time) *MemoryStore {
	s := &MemoryStore{
		data:     make(map[string]map[string]entry),
		ttl:      ttl,
		now:      now,
		stopChan: make(chan struct{}),
	}

	// Start cleanup goroutine
	go s.cleanup(interval)

	return s
}

// Get returns a value if it exists and has not expired.
func (s *MemoryStore) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return nil, false, ErrClosed
	}
	e, exists := s.data[namespace][key]
	if !exists || e.expired(s.now()) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a copy of value.
func (s *MemoryStore) Set(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrClosed
	}
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]entry)
		s.data[namespace] = ns
	}
	e := entry{value: append([]byte(nil), value...)}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	ns[key] = e
	return nil
}

// Delete removes a value. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrClosed
	}
	delete(s.data[namespace], key)
	return nil
}

// Keys returns the live keys of namespace, sorted.
func (s *MemoryStore) Keys(ctx context.Context, namespace string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return nil, ErrClosed
	}
	now := s.now()
	keys := make([]string, 0, len(s.data[namespace]))
	for k, e := range s.data[namespace] {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every value in namespace.
func (s *MemoryStore) Clear(ctx context.Context, namespace string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrClosed
	}
	delete(s.data, namespace)
	return nil
}

// Close stops the cleanup goroutine and drops all data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.data = nil
	}
	return nil
}

// cleanup periodically removes expired entries.
func (s *MemoryStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	now := s.now()
	for nsName, ns := range s.data {
		for key, e := range ns {
			if e.expired(now) {
				delete(ns, key)
			}
		}
		if len(ns) == 0 {
			delete(s.data, nsName)
		}
	}
}

// Ensure MemoryStore implements Backend
var _ Backend = (*MemoryStore)(nil)
