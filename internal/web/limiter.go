package web

// limiter.go implements concurrency control for transform requests.
//
// The limiter uses a semaphore pattern to restrict parallel transforms to a
// configurable maximum, preventing resource exhaustion under load. When all
// slots are occupied, new requests wait up to maxWait before failing with
// ErrTooManyTransforms.
//
// The limiter also supports graceful shutdown via WaitForDrain, which blocks
// until all active transforms complete.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyTransforms is returned when all transform slots are occupied and
// the wait timeout expires. Clients should retry after a short delay.
var ErrTooManyTransforms = errors.New("too many concurrent transforms, please try again later")

// DefaultMaxConcurrentTransforms is the default limit for parallel transforms.
const DefaultMaxConcurrentTransforms = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// TransformLimiter controls concurrent transform processing using a semaphore.
// It prevents resource exhaustion by limiting parallel runs to a configurable max.
type TransformLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewTransformLimiter creates a limiter that allows at most maxConcurrent
// simultaneous transforms. Requests that cannot acquire a slot within maxWait
// will receive ErrTooManyTransforms.
func NewTransformLimiter(maxConcurrent int, maxWait time.Duration) *TransformLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTransforms
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &TransformLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire a transform slot.
// Returns nil on success, ErrTooManyTransforms if the timeout expires.
// The caller MUST call Release() when the transform completes (use defer).
func (l *TransformLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish caller cancellation from slot timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyTransforms

	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire attempts to acquire a slot without blocking.
// Returns true if a slot was acquired, false otherwise.
func (l *TransformLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *TransformLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of currently active transforms.
func (l *TransformLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent transforms.
func (l *TransformLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of available slots.
func (l *TransformLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active transforms complete or the context is
// cancelled. Used for graceful shutdown.
func (l *TransformLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
