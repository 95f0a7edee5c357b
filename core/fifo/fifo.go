// Package fifo provides a single-holder mutex whose waiters are served
// strictly in the order they called Lock.
//
// Typical use-case: an event store where every state-mutating operation
// must run alone, and a write issued later must never overtake one issued
// earlier, even while the earlier one is still waiting for I/O.
package fifo

import (
	"context"
	"sync"
)

// Token identifies one successful Lock call. It must be handed back to
// Unlock; tokens are never reused within a Mutex.
type Token uint64

type waiter struct {
	token Token
	ready chan struct{}
}

// Mutex is a FIFO-fair, context-aware, single-holder lock.
// The zero value is an unlocked Mutex.
type Mutex struct {
	mu      sync.Mutex
	held    bool
	holder  Token
	next    Token
	waiters []*waiter
}

// New creates a new unlocked Mutex.
func New() *Mutex { return &Mutex{} }

// Lock blocks until the caller is the sole holder of m and returns the
// token that releases it. Waiters acquire the lock in the order they called
// Lock. If ctx is done before the lock is acquired, Lock returns ctx.Err()
// and the caller never holds the lock.
func (m *Mutex) Lock(ctx context.Context) (Token, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.next++
	tok := m.next
	if !m.held {
		m.held = true
		m.holder = tok
		m.mu.Unlock()
		return tok, nil
	}
	w := &waiter{token: tok, ready: make(chan struct{})}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case <-w.ready:
		return tok, nil
	case <-ctx.Done():
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-w.ready:
		// ownership was handed over while we were giving up
		m.releaseLocked()
	default:
		m.removeLocked(w)
	}
	return 0, ctx.Err()
}

// TryLock acquires m only if it is free and nobody is queued.
func (m *Mutex) TryLock() (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return 0, false
	}
	m.next++
	m.held = true
	m.holder = m.next
	return m.holder, true
}

// Unlock releases the lock held by tok and hands it to the oldest waiter.
func (m *Mutex) Unlock(tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held || m.holder != tok {
		return ErrNotHolder
	}
	m.releaseLocked()
	return nil
}

// Waiters returns the number of callers currently queued in Lock.
func (m *Mutex) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// Locked reports whether the lock is currently held.
func (m *Mutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

func (m *Mutex) releaseLocked() {
	if len(m.waiters) == 0 {
		m.held = false
		m.holder = 0
		return
	}
	w := m.waiters[0]
	m.waiters[0] = nil
	m.waiters = m.waiters[1:]
	m.holder = w.token
	close(w.ready)
}

func (m *Mutex) removeLocked(w *waiter) {
	for i, other := range m.waiters {
		if other == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// ----- Errors -----

// ErrNotHolder is returned by Unlock when the token does not own the lock.
var ErrNotHolder = &LockError{"fifo: token does not hold the lock"}

// LockError is a simple error implementation.
type LockError struct {
	msg string
}

func (e *LockError) Error() string { return e.msg }
