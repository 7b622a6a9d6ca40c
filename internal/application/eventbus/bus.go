// Package eventbus fans domain events out to in-process subscribers.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
)

type Event interface {
	EventName() string
}

type Subscriber interface {
	HandleEvent(ctx context.Context, e Event) error
}

// Bus delivers events synchronously, in subscription order.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      hclog.Logger
}

func New(logger hclog.Logger) *Bus {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Bus{logger: logger}
}

func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// Publish hands e to every subscriber. Every subscriber runs even if an
// earlier one fails; the failures are joined into the returned error.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subscribers...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.HandleEvent(ctx, e); err != nil {
			b.logger.Error("event subscriber failed", "event", e.EventName(), "subscriber", fmt.Sprintf("%T", s), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
