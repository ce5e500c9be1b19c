// Package hooks implements the event bus backing /api/execute-stream: as
// the Pausable Execution Core drives a run, it publishes Events onto a Bus;
// a transport-level Subscriber forwards selected ones to the HTTP client as
// a line-delimited event stream.
package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus fans an Event out to every registered Subscriber in registration
	// order, stopping at the first error. A run's Bus is short-lived: the
	// HTTP transport builds one per streamed request and discards it when
	// the request ends.
	Bus interface {
		Publish(ctx context.Context, event Event) error
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to events published on a Bus.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// Subscription is an active registration on a Bus; Close unregisters it.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers []*subscription
	}

	subscription struct {
		bus  *bus
		sub  Subscriber
		once sync.Once
	}
)

// NewBus returns a ready-to-use in-memory Bus.
func NewBus() Bus {
	return &bus{}
}

func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s.sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: subscriber is required")
	}
	s := &subscription{bus: b, sub: sub}
	b.mu.Lock()
	b.subscribers = append(b.subscribers, s)
	b.mu.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		for i, other := range s.bus.subscribers {
			if other == s {
				s.bus.subscribers = append(s.bus.subscribers[:i:i], s.bus.subscribers[i+1:]...)
				break
			}
		}
		s.bus.mu.Unlock()
	})
	return nil
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event) error

func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error { return f(ctx, event) }
