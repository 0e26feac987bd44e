package fakepublisher

import (
	"context"
	"sync"

	"github.com/jrsteele09/claimed-identity-cri/audit"
)

var _ audit.Publisher = (*FakePublisher)(nil)

// FakePublisher records events in memory
type FakePublisher struct {
	lock   sync.Mutex
	events []audit.Event
	// Err, when set, is returned from every Publish
	Err error
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (p *FakePublisher) Publish(_ context.Context, event audit.Event) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *FakePublisher) Events() []audit.Event {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]audit.Event(nil), p.events...)
}

// Names returns the event names in publish order
func (p *FakePublisher) Names() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	names := make([]string, 0, len(p.events))
	for _, e := range p.events {
		names = append(names, e.EventName)
	}
	return names
}
