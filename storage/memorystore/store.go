// Package memorystore keeps sessions and person identities in process memory.
// It suits a single issuer instance; records are dropped once they have been
// expired for longer than the retention period.
package memorystore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/claimed-identity-cri/persons"
	"github.com/jrsteele09/claimed-identity-cri/sessions"
)

// DefaultRetention matches the Redis store so both backends report expiry the same way
const DefaultRetention = time.Hour

var (
	_ sessions.Repo = (*SessionStore)(nil)
	_ persons.Repo  = (*PersonStore)(nil)
)

type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*sessions.SessionItem
	codes     map[string]string // authorization code -> session id
	people    map[string]*persons.PersonIdentity
	retention time.Duration
	nowFunc   func() time.Time
	lastSweep time.Time
}

type Option func(*Store)

func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func New(options ...Option) *Store {
	s := &Store{
		sessions:  make(map[string]*sessions.SessionItem),
		codes:     make(map[string]string),
		people:    make(map[string]*persons.PersonIdentity),
		retention: DefaultRetention,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) Sessions() *SessionStore {
	return &SessionStore{s}
}

func (s *Store) Persons() *PersonStore {
	return &PersonStore{s}
}

// Ping always succeeds; it lets the health check treat both backends alike.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Sweep removes records whose expiry passed more than the retention period ago
// and returns how many sessions were dropped. Create also sweeps, at most once
// per retention period.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep()
}

func (s *Store) sweep() int {
	now := s.nowFunc()
	s.lastSweep = now
	cutoff := now.Add(-s.retention).Unix()

	removed := 0
	for id, session := range s.sessions {
		if session.ExpiryDate > cutoff {
			continue
		}
		if session.AuthorizationCode != "" {
			delete(s.codes, session.AuthorizationCode)
		}
		delete(s.sessions, id)
		removed++
	}
	for id, person := range s.people {
		if person.ExpiryDate <= cutoff {
			delete(s.people, id)
		}
	}
	return removed
}

func (s *Store) live(expiry int64) bool {
	return expiry > s.nowFunc().Add(-s.retention).Unix()
}

type SessionStore struct {
	*Store
}

func (s *SessionStore) Create(_ context.Context, session *sessions.SessionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nowFunc().Sub(s.lastSweep) >= s.retention {
		s.sweep()
	}

	if existing, ok := s.sessions[session.SessionID]; ok && s.live(existing.ExpiryDate) {
		return sessions.ErrAlreadyExists
	}
	s.sessions[session.SessionID] = session.Clone()
	return nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*sessions.SessionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(sessionID)
}

func (s *SessionStore) get(sessionID string) (*sessions.SessionItem, error) {
	session, ok := s.sessions[sessionID]
	if !ok || !s.live(session.ExpiryDate) {
		return nil, sessions.ErrNotFound
	}
	return session.Clone(), nil
}

func (s *SessionStore) Update(_ context.Context, session *sessions.SessionItem, expected sessions.AuthSessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(session, expected)
}

func (s *SessionStore) update(session *sessions.SessionItem, expected sessions.AuthSessionState) error {
	existing, ok := s.sessions[session.SessionID]
	if !ok || !s.live(existing.ExpiryDate) {
		return sessions.ErrNotFound
	}
	if existing.AuthSessionState != expected {
		return sessions.ErrStateChanged
	}
	s.sessions[session.SessionID] = session.Clone()
	return nil
}

func (s *SessionStore) AssignAuthorizationCode(_ context.Context, session *sessions.SessionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[session.AuthorizationCode]; taken {
		return sessions.ErrAlreadyExists
	}
	if err := s.update(session, sessions.StateDataReceived); err != nil {
		return err
	}
	s.codes[session.AuthorizationCode] = session.SessionID
	return nil
}

func (s *SessionStore) GetByAuthorizationCode(_ context.Context, code string) (*sessions.SessionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, ok := s.codes[code]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	return s.get(sessionID)
}

func (s *SessionStore) RedeemAuthorizationCode(_ context.Context, session *sessions.SessionItem, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codes[code] != session.SessionID {
		return sessions.ErrNotFound
	}
	if err := s.update(session, sessions.StateAuthCodeIssued); err != nil {
		if errors.Is(err, sessions.ErrStateChanged) {
			return sessions.ErrNotFound
		}
		return err
	}
	delete(s.codes, code)
	return nil
}

type PersonStore struct {
	*Store
}

func (s *PersonStore) Save(_ context.Context, person *persons.PersonIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := *person
	s.people[person.SessionID] = &p
	return nil
}

func (s *PersonStore) Get(_ context.Context, sessionID string) (*persons.PersonIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.people[sessionID]
	if !ok || !s.live(p.ExpiryDate) {
		return nil, persons.ErrNotFound
	}
	c := *p
	return &c, nil
}
