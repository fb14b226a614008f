package web

// store.go holds finished transform results in memory so clients can fetch
// the summary and download the prepared CSV separately from the POST that
// produced it. Entries expire after a TTL and are swept by a background
// goroutine.

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qualprep/qualprep/internal/dataset"
	"github.com/qualprep/qualprep/internal/transform"
)

// storedResult is a finished transform kept for later retrieval.
type storedResult struct {
	ID        string
	Filename  string
	Dataset   *dataset.Dataset
	Warnings  []transform.Warning
	Duration  time.Duration
	CreatedAt time.Time
}

// resultStore is an in-memory, TTL-bounded store of transform results.
type resultStore struct {
	mu      sync.RWMutex
	results map[string]*storedResult
	ttl     time.Duration
	done    chan struct{}
}

// newResultStore creates a store whose entries expire after ttl.
// Call close() to stop the sweeper goroutine.
func newResultStore(ttl time.Duration) *resultStore {
	s := &resultStore{
		results: make(map[string]*storedResult),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Put stores a result and returns its generated ID.
func (s *resultStore) Put(filename string, res *transform.Result) string {
	id := uuid.New().String()

	s.mu.Lock()
	s.results[id] = &storedResult{
		ID:        id,
		Filename:  filename,
		Dataset:   res.Dataset,
		Warnings:  res.Warnings,
		Duration:  res.Duration,
		CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	return id
}

// Get returns the stored result for id, or false if it is unknown or expired.
func (s *resultStore) Get(id string) (*storedResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return nil, false
	}
	if time.Since(r.CreatedAt) > s.ttl {
		return nil, false
	}
	return r, true
}

// Len returns the number of entries currently held, expired or not.
func (s *resultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

func (s *resultStore) close() {
	close(s.done)
}

// sweep removes expired entries periodically.
func (s *resultStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, r := range s.results {
				if now.Sub(r.CreatedAt) > s.ttl {
					delete(s.results, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
