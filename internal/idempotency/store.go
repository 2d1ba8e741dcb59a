// Package idempotency replays cached responses for retried state-changing
// requests. Trial signup and cancellation are not safe to run twice, so
// clients tag them with an Idempotency-Key; a retry inside the TTL gets the
// first response back instead of a second execution.
package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Response is the captured outcome of a completed request.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	CachedAt   time.Time
}

// Store holds responses keyed by idempotency key.
type Store interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, response *Response, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-process Store with per-key TTLs and LRU eviction.
type MemoryStore struct {
	mu      sync.Mutex
	cache   map[string]*entry
	lru     *list.List
	maxSize int

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type entry struct {
	key       string
	response  *Response
	expiresAt time.Time
	element   *list.Element
}

// NewMemoryStore creates a store bounded at 10,000 entries, enough for a
// day of retried trial/cancel requests on a busy deployment.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithSize(10000)
}

// NewMemoryStoreWithSize creates a store with a custom entry bound.
func NewMemoryStoreWithSize(maxSize int) *MemoryStore {
	s := &MemoryStore{
		cache:       make(map[string]*entry),
		lru:         list.New(),
		maxSize:     maxSize,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Get returns the cached response for key, if present and unexpired.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Response, bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache[key]
	if !ok || now.After(e.expiresAt) {
		return nil, false
	}

	s.lru.MoveToFront(e.element)
	return e.response, true
}

// Set stores a response under key for ttl, evicting the least recently
// used entry when the store is full.
func (s *MemoryStore) Set(ctx context.Context, key string, response *Response, ttl time.Duration) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.cache[key]; ok {
		e.response = response
		e.expiresAt = now.Add(ttl)
		s.lru.MoveToFront(e.element)
		return nil
	}

	// Evict before inserting so the bound holds even under concurrent Sets.
	if len(s.cache) >= s.maxSize {
		s.evictOldest()
	}

	e := &entry{key: key, response: response, expiresAt: now.Add(ttl)}
	e.element = s.lru.PushFront(e)
	s.cache[key] = e
	return nil
}

// Delete drops the cached response for key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(key)
	return nil
}

// Stop shuts down the expiry sweeper.
func (s *MemoryStore) Stop() {
	close(s.stopCleanup)
	<-s.cleanupDone
}

// evictOldest drops the least recently used entry. Caller holds the lock.
func (s *MemoryStore) evictOldest() {
	back := s.lru.Back()
	if back == nil {
		return
	}
	s.remove(back.Value.(*entry).key)
}

// remove drops key from both indexes. Caller holds the lock.
func (s *MemoryStore) remove(key string) {
	if e, ok := s.cache[key]; ok {
		s.lru.Remove(e.element)
		delete(s.cache, key)
	}
}

// cleanupLoop sweeps expired entries so keys that are never retried do not
// sit in the LRU until eviction pressure reaches them.
func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for key, e := range s.cache {
		if now.After(e.expiresAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s.remove(key)
	}
}
