package ui

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// Session is one browser's view and open form. mu serializes the actions of
// a single browser.
type Session struct {
	ID string

	mu       sync.Mutex
	View     *View
	Form     *Form
	FormErr  string
	lastSeen time.Time
}

// Sessions maps session ids to sessions and unmounts the ones that go idle
// for longer than ttl.
type Sessions struct {
	api API
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	done     chan struct{}
	once     sync.Once
}

func NewSessions(api API, ttl time.Duration) *Sessions {
	s := &Sessions{
		api:      api,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Get returns the live session with id and marks it as seen.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok {
		sess.lastSeen = s.now()
	}
	return sess, ok
}

// Create starts a session with an empty, unloaded view.
func (s *Sessions) Create() *Session {
	sess := &Session{
		ID:       ksuid.New().String(),
		View:     NewView(s.api),
		lastSeen: s.now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the sweeper and unmounts every session.
func (s *Sessions) Close() {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		for id, sess := range s.sessions {
			sess.View.Unmount()
			delete(s.sessions, id)
		}
	})
}

func (s *Sessions) cleanupLoop() {
	interval := max(s.ttl/2, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sessions) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.ttl {
			sess.View.Unmount()
			delete(s.sessions, id)
		}
	}
}
