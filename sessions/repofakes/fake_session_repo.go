package fakesessionrepo

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/claimed-identity-cri/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

// FakeSessionRepo keeps sessions in memory. It backs tests and single
// instance local runs.
type FakeSessionRepo struct {
	sessions map[string]*sessions.SessionItem
	codes    map[string]string // Map codes to sessionIDs
	lock     sync.RWMutex
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		sessions: make(map[string]*sessions.SessionItem),
		codes:    make(map[string]string),
	}
}

func (sr *FakeSessionRepo) Create(_ context.Context, session *sessions.SessionItem) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.sessions[session.SessionID]; ok {
		return sessions.ErrAlreadyExists
	}
	sr.sessions[session.SessionID] = session.Clone()
	return nil
}

func (sr *FakeSessionRepo) Get(_ context.Context, sessionID string) (*sessions.SessionItem, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	session, ok := sr.sessions[sessionID]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	return session.Clone(), nil
}

func (sr *FakeSessionRepo) Update(_ context.Context, session *sessions.SessionItem, expected sessions.AuthSessionState) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	return sr.update(session, expected)
}

func (sr *FakeSessionRepo) update(session *sessions.SessionItem, expected sessions.AuthSessionState) error {
	existing, ok := sr.sessions[session.SessionID]
	if !ok {
		return sessions.ErrNotFound
	}
	if existing.AuthSessionState != expected {
		return sessions.ErrStateChanged
	}
	sr.sessions[session.SessionID] = session.Clone()
	return nil
}

func (sr *FakeSessionRepo) AssignAuthorizationCode(_ context.Context, session *sessions.SessionItem) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.codes[session.AuthorizationCode]; ok {
		return sessions.ErrAlreadyExists
	}
	if err := sr.update(session, sessions.StateDataReceived); err != nil {
		return err
	}
	sr.codes[session.AuthorizationCode] = session.SessionID
	return nil
}

func (sr *FakeSessionRepo) GetByAuthorizationCode(ctx context.Context, code string) (*sessions.SessionItem, error) {
	sr.lock.RLock()
	sessionID, ok := sr.codes[code]
	sr.lock.RUnlock()

	if !ok {
		return nil, sessions.ErrNotFound
	}
	return sr.Get(ctx, sessionID)
}

func (sr *FakeSessionRepo) RedeemAuthorizationCode(_ context.Context, session *sessions.SessionItem, code string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if sr.codes[code] != session.SessionID {
		return sessions.ErrNotFound
	}
	if err := sr.update(session, sessions.StateAuthCodeIssued); err != nil {
		if errors.Is(err, sessions.ErrStateChanged) {
			return sessions.ErrNotFound
		}
		return err
	}
	delete(sr.codes, code)
	return nil
}

// Put stores a session as is, bypassing the create check. Tests use it to
// arrange sessions in arbitrary states.
func (sr *FakeSessionRepo) Put(session *sessions.SessionItem) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.sessions[session.SessionID] = session.Clone()
	if session.AuthorizationCode != "" {
		sr.codes[session.AuthorizationCode] = session.SessionID
	}
}
