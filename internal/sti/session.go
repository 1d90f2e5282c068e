package sti

import (
	"errors"
	"fmt"
	"sync"

	"sti/internal/config"
	"sti/internal/drf"
	applog "sti/internal/log"
)

// ErrTooManySessions is returned by Manager.Start when the concurrent
// session cap is reached.
var ErrTooManySessions = errors.New("sti: too many concurrent sessions")

// Manager owns the set of concurrent processing sessions over one archive.
// It enforces the session cap, hands out session IDs, and reaps finished
// processors so their slots become reusable.
type Manager struct {
	acc *drf.Accessor
	max int

	mu       sync.Mutex
	nextID   int
	sessions map[int]*Processor
}

// NewManager builds a manager over an open accessor. maxSessions <= 0
// selects the default cap.
func NewManager(acc *drf.Accessor, maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = config.MaxSessions
	}
	return &Manager{
		acc:      acc,
		max:      maxSessions,
		sessions: make(map[int]*Processor),
	}
}

// Open opens the archive at path and wraps it in a manager.
func Open(path string, maxSessions int) (*Manager, error) {
	acc, err := drf.Open(path)
	if err != nil {
		return nil, err
	}
	return NewManager(acc, maxSessions), nil
}

// Accessor exposes the underlying archive accessor for display code.
func (m *Manager) Accessor() *drf.Accessor {
	return m.acc
}

// Start launches a new session for a channel entry and returns its ID and
// processor. It fails with ErrTooManySessions when the cap is reached;
// finished sessions are reaped first, so a stopped session's slot is
// immediately reusable.
func (m *Manager) Start(entry string, initial Settings, opts Options) (int, *Processor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reapLocked()
	if len(m.sessions) >= m.max {
		return 0, nil, fmt.Errorf("%w (cap %d)", ErrTooManySessions, m.max)
	}

	id := m.nextID
	m.nextID++

	p := NewProcessor(id, m.acc, entry, initial, opts)
	m.sessions[id] = p
	go p.Run()

	applog.Debugf("sti: session %d started for %s (%d/%d active)", id, entry, len(m.sessions), m.max)
	return id, p, nil
}

// Session returns a live session's processor, or false if the ID is
// unknown or already reaped.
func (m *Manager) Session(id int) (*Processor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.sessions[id]
	return p, ok
}

// Active returns the number of sessions whose loops have not finished.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapLocked()
	return len(m.sessions)
}

// UpdateSettings forwards a settings snapshot to a live session. Unknown
// IDs are a no-op.
func (m *Manager) UpdateSettings(id int, s Settings) {
	if p, ok := m.Session(id); ok {
		p.UpdateSettings(s)
	}
}

// Abort requests a clean stop of one session. Idempotent; unknown or
// already-finished IDs are a no-op.
func (m *Manager) Abort(id int) {
	if p, ok := m.Session(id); ok {
		p.Abort()
	}
}

// AbortAll requests a clean stop of every live session and waits for their
// loops to finish.
func (m *Manager) AbortAll() {
	m.mu.Lock()
	live := make([]*Processor, 0, len(m.sessions))
	for _, p := range m.sessions {
		p.Abort()
		live = append(live, p)
	}
	m.mu.Unlock()

	for _, p := range live {
		<-p.Done()
	}

	m.mu.Lock()
	m.reapLocked()
	m.mu.Unlock()
}

// reapLocked drops sessions whose loops have terminated. Caller holds m.mu.
func (m *Manager) reapLocked() {
	for id, p := range m.sessions {
		select {
		case <-p.Done():
			delete(m.sessions, id)
		default:
		}
	}
}
