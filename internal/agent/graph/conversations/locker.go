package conversations

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a session stays locked past the timeout.
var ErrLockTimeout = errors.New("conversation: lock acquisition timeout")

// Locker serializes turns per session: load, mutate and save for one session
// complete before the next turn for it starts. Different sessions never block
// each other.
type Locker struct {
	timeout time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocker(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Locker{timeout: timeout, slots: make(map[string]*slot)}
}

// Lock blocks until the session is free, the timeout elapses or ctx ends.
func (l *Locker) Lock(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session_id is required")
	}
	s := l.acquireSlot(sessionID)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-timer.C:
		l.releaseSlot(sessionID)
		return ErrLockTimeout
	case <-ctx.Done():
		l.releaseSlot(sessionID)
		return ctx.Err()
	}
}

// Unlock releases a session locked by Lock.
func (l *Locker) Unlock(sessionID string) {
	l.mu.Lock()
	s, ok := l.slots[sessionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	l.releaseSlot(sessionID)
}

// IsLocked reports whether a turn currently holds the session.
func (l *Locker) IsLocked(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[sessionID]
	return ok && len(s.ch) > 0
}

func (l *Locker) acquireSlot(sessionID string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[sessionID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[sessionID] = s
	}
	s.refs++
	return s
}

// releaseSlot drops the entry once no holder or waiter references it.
func (l *Locker) releaseSlot(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[sessionID]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, sessionID)
	}
}
