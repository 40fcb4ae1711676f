// Package session keeps conversations in process memory.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kisansathi/orchestrator/internal/config"
	"github.com/kisansathi/orchestrator/internal/domain"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = fmt.Errorf("session not found")

type entry struct {
	mu         sync.Mutex // guards session.History
	session    *domain.Session
	lastAccess time.Time
}

// Store is the in-memory session store. Histories are append-only and
// read out as copies; callers never share the underlying slices.
//
// Locking is two-level: s.mu guards the map itself (check-and-insert,
// eviction, lastAccess bookkeeping) and each entry carries its own lock
// for history reads and appends. Copying a long history in one session
// never stalls work on another.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry

	eviction config.Eviction
	ttl      time.Duration
	max      int

	now func() time.Time
}

// NewStore creates a session store with the configured eviction policy.
func NewStore(eviction config.Eviction, ttl time.Duration, max int) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		eviction: eviction,
		ttl:      ttl,
		max:      max,
		now:      time.Now,
	}
}

// ResolveOrCreate returns the session for the given id, creating it if
// needed. A blank id allocates a fresh session; a caller-supplied id is
// honored as-is. The check-and-insert is atomic, so two concurrent calls
// with the same id resolve to the same session.
func (s *Store) ResolveOrCreate(userID, sessionID string) (*domain.Session, bool) {
	s.mu.Lock()

	s.evictLocked()

	if sessionID != "" {
		if e, ok := s.sessions[sessionID]; ok {
			e.lastAccess = s.now()
			s.mu.Unlock()

			e.mu.Lock()
			defer e.mu.Unlock()
			return copySession(e.session), false
		}
	} else {
		sessionID = uuid.New().String()
	}

	sess := &domain.Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: s.now(),
	}
	s.sessions[sessionID] = &entry{session: sess, lastAccess: s.now()}
	// Copy before releasing the map lock: once the entry is visible,
	// another goroutine may start appending. The fresh history is empty,
	// so this copy is cheap.
	out := copySession(sess)
	s.mu.Unlock()
	return out, true
}

// Get returns a copy of the session, or ErrNotFound.
func (s *Store) Get(sessionID string) (*domain.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return copySession(e.session), nil
}

// History returns a copy of the session's turns in insertion order.
func (s *Store) History(sessionID string) ([]domain.Turn, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.History, nil
}

// AppendTurn appends one completed turn to the session history.
func (s *Store) AppendTurn(sessionID string, turn domain.Turn) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.History = append(e.session.History, turn)
	return nil
}

// lookup finds an entry under the map lock and touches its lastAccess.
func (s *Store) lookup(sessionID string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastAccess = s.now()
	return e, nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// evictLocked applies the eviction policy. Called with s.mu held.
func (s *Store) evictLocked() {
	switch s.eviction {
	case config.EvictionTTL:
		cutoff := s.now().Add(-s.ttl)
		for id, e := range s.sessions {
			if e.lastAccess.Before(cutoff) {
				delete(s.sessions, id)
			}
		}
	case config.EvictionLRU:
		for s.max > 0 && len(s.sessions) >= s.max {
			var oldestID string
			var oldest time.Time
			for id, e := range s.sessions {
				if oldestID == "" || e.lastAccess.Before(oldest) {
					oldestID = id
					oldest = e.lastAccess
				}
			}
			delete(s.sessions, oldestID)
		}
	}
}

func copySession(sess *domain.Session) *domain.Session {
	out := &domain.Session{
		ID:        sess.ID,
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt,
	}
	if len(sess.History) > 0 {
		out.History = make([]domain.Turn, len(sess.History))
		copy(out.History, sess.History)
	}
	return out
}
