package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Emitter names, stamps and publishes events. Publish failures are logged
// and counted, never returned.
type Emitter struct {
	publisher   Publisher
	prefix      string
	componentID string
	nowFunc     func() time.Time
	onFailure   func(eventName string)
}

type EmitterOption func(*Emitter)

func WithNowFunc(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		e.nowFunc = now
	}
}

// WithFailureHook is called with the event name whenever publishing fails
func WithFailureHook(hook func(eventName string)) EmitterOption {
	return func(e *Emitter) {
		e.onFailure = hook
	}
}

func NewEmitter(publisher Publisher, prefix, componentID string, options ...EmitterOption) *Emitter {
	e := &Emitter{
		publisher:   publisher,
		prefix:      prefix,
		componentID: componentID,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// EventName prefixes eventType, e.g. START becomes IPV_CLAIMED_IDENTITY_CRI_START
func (e *Emitter) EventName(eventType string) string {
	if e.prefix == "" {
		return eventType
	}
	return e.prefix + "_" + eventType
}

func (e *Emitter) Emit(ctx context.Context, eventType string, user User, extensions map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}
	now := e.nowFunc()
	event := Event{
		EventName:        e.EventName(eventType),
		Timestamp:        now.Unix(),
		EventTimestampMs: now.UnixMilli(),
		ComponentID:      e.componentID,
		User:             user,
		Extensions:       extensions,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("event_name", event.EventName).Msg("failed to publish audit event")
		if e.onFailure != nil {
			e.onFailure(event.EventName)
		}
	}
}
