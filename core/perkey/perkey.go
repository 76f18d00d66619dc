// Package perkey serializes work per key while letting different keys run
// concurrently. The command dispatcher uses it to process commands for one
// aggregate one at a time.
package perkey

import (
	"context"
	"errors"
	"sync"
)

// ErrSchedulerClosed is returned when work is submitted after Close.
var ErrSchedulerClosed = errors.New("perkey: scheduler is closed")

// Scheduler runs functions so that, for any key, at most one runs at a time.
// Waiters for a key are admitted in arrival order. A key holds no resources
// once it has no running or waiting functions.
type Scheduler[K comparable] struct {
	mu     sync.Mutex
	slots  map[K]*slot
	closed bool
	wg     sync.WaitGroup
}

type slot struct {
	sem  chan struct{}
	refs int
}

func New[K comparable]() *Scheduler[K] {
	return &Scheduler[K]{slots: make(map[K]*slot)}
}

// Do runs fn under the lock for key and returns its error.
func (s *Scheduler[K]) Do(key K, fn func() error) error {
	return s.DoContext(context.Background(), key, fn)
}

// DoContext is like Do but gives up waiting for the key when ctx is done.
// Once fn has started it runs to completion.
func (s *Scheduler[K]) DoContext(ctx context.Context, key K, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sl, err := s.acquire(key)
	if err != nil {
		return err
	}
	defer s.release(key, sl)

	select {
	case sl.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-sl.sem }()
	return fn()
}

// Len returns the number of keys with running or waiting work.
func (s *Scheduler[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Close rejects new work and waits for admitted work to finish.
func (s *Scheduler[K]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler[K]) acquire(key K) (*slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}
	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{sem: make(chan struct{}, 1)}
		s.slots[key] = sl
	}
	sl.refs++
	s.wg.Add(1)
	return sl, nil
}

func (s *Scheduler[K]) release(key K, sl *slot) {
	s.mu.Lock()
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, key)
	}
	s.mu.Unlock()
	s.wg.Done()
}
