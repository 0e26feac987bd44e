package fakepersonrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/claimed-identity-cri/persons"
)

var _ persons.Repo = (*FakePersonRepo)(nil)

type FakePersonRepo struct {
	people map[string]*persons.PersonIdentity
	lock   sync.RWMutex
	// SaveErr, when set, is returned by every Save
	SaveErr error
}

func NewFakePersonRepo() *FakePersonRepo {
	return &FakePersonRepo{
		people: make(map[string]*persons.PersonIdentity),
	}
}

func (r *FakePersonRepo) Save(_ context.Context, person *persons.PersonIdentity) error {
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	p := *person
	r.people[person.SessionID] = &p
	return nil
}

func (r *FakePersonRepo) Get(_ context.Context, sessionID string) (*persons.PersonIdentity, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.people[sessionID]
	if !ok {
		return nil, persons.ErrNotFound
	}
	c := *p
	return &c, nil
}
