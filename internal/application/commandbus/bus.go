// Package commandbus dispatches commands to the handlers registered for
// their kind. Handlers are shared by every scan, so a handler that belongs
// to one scan must ignore commands addressed to another.
package commandbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"
)

// Kind names a command type.
type Kind string

// Command is an immutable message routed by Kind.
type Command interface {
	Kind() Kind
}

// Handler processes commands. A non-nil error marks the delivery as failed
// but does not stop the remaining handlers.
type Handler interface {
	Handle(ctx context.Context, cmd Command) error
}

// Bus is the in-process command dispatcher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	workers  *semaphore.Weighted
	logger   hclog.Logger
	wg       sync.WaitGroup
}

// New returns a bus running at most workers asynchronous deliveries at once.
func New(workers int64, logger hclog.Logger) *Bus {
	if workers <= 0 {
		workers = 64
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Bus{
		handlers: map[Kind][]Handler{},
		workers:  semaphore.NewWeighted(workers),
		logger:   logger,
	}
}

// Register appends h to the handler list of every kind. Registering the
// same handler twice for a kind is a no-op.
func (b *Bus) Register(h Handler, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range kinds {
		if indexOf(b.handlers[k], h) >= 0 {
			continue
		}
		b.handlers[k] = append(b.handlers[k], h)
	}
}

// Unregister removes h from every kind. Kinds left without handlers are dropped.
func (b *Bus) Unregister(h Handler, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, k := range kinds {
		list := b.handlers[k]
		i := indexOf(list, h)
		if i < 0 {
			continue
		}
		next := make([]Handler, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, k)
			continue
		}
		b.handlers[k] = next
	}
}

// Handlers returns the number of handlers registered for kind.
func (b *Bus) Handlers(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[kind])
}

// Send delivers cmd on a background worker. The returned channel receives
// the outcome once every handler has run. Cancelling ctx does not abort
// the delivery.
func (b *Bus) Send(ctx context.Context, cmd Command) <-chan bool {
	result := make(chan bool, 1)
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.workers.Acquire(ctx, 1); err != nil {
			b.logger.Error("acquire worker", "kind", cmd.Kind(), "error", err)
			result <- false
			return
		}
		defer b.workers.Release(1)
		result <- b.SendSync(ctx, cmd)
	}()
	return result
}

// SendSync delivers cmd on the calling goroutine and reports whether every
// handler succeeded. With no handler registered it returns false.
func (b *Bus) SendSync(ctx context.Context, cmd Command) bool {
	b.mu.RLock()
	list := append([]Handler(nil), b.handlers[cmd.Kind()]...)
	b.mu.RUnlock()

	if len(list) == 0 {
		b.logger.Warn("no handler registered", "kind", cmd.Kind())
		return false
	}

	ok := true
	for _, h := range list {
		if err := b.invoke(ctx, h, cmd); err != nil {
			b.logger.Error("command handler failed", "kind", cmd.Kind(), "handler", fmt.Sprintf("%T", h), "error", err)
			ok = false
		}
	}
	return ok
}

// Wait blocks until all asynchronous deliveries started so far, and any they
// started in turn, have returned.
func (b *Bus) Wait() { b.wg.Wait() }

func (b *Bus) invoke(ctx context.Context, h Handler, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, cmd)
}

func indexOf(list []Handler, h Handler) int {
	for i, x := range list {
		if x == h {
			return i
		}
	}
	return -1
}
