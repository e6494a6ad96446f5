// Package locks provides an in-process keyed lock manager. The engine holds
// one lock per market id: every trade and the resolution/settlement
// transition for a market execute under that lock, while different markets
// proceed fully in parallel.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when the lock cannot be acquired within the
// caller's deadline. The caller may retry.
var ErrTimeout = errors.New("locks: acquisition timed out")

type slot struct {
	sem  chan struct{}
	refs int
}

// Manager hands out per-key exclusive locks. Lock handles are pooled: a
// key's slot exists only while at least one caller holds or waits for it,
// so an idle manager holds no memory proportional to the number of markets
// ever seen.
type Manager struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func NewManager() *Manager {
	return &Manager{slots: make(map[string]*slot)}
}

// Acquire obtains the exclusive lock for key, waiting at most timeout. On
// success it returns a release function that is safe to call more than once
// and must be called on every exit path.
//
// A zero or negative timeout degenerates to an immediate try-lock.
func (m *Manager) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.sem <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-s.sem
				m.unref(key, s)
			})
		}
		return release, nil
	case <-timer.C:
		m.unref(key, s)
		return nil, ErrTimeout
	case <-ctx.Done():
		m.unref(key, s)
		return nil, ctx.Err()
	}
}

func (m *Manager) unref(key string, s *slot) {
	m.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
	m.mu.Unlock()
}
