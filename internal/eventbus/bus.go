// Package eventbus implements the typed pub/sub Event Bus (spec.md §4.1).
//
// Subscribers register against a concrete Go type; Publish looks up
// handlers by the dynamic type of the payload it's given, snapshots the
// handler list under a short lock, then invokes every handler concurrently
// and waits for all of them to finish. Handler panics and errors are caught
// and logged — they never reach the publisher or a sibling handler.
package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/nodeforge/pipelinecore/internal/logging"
)

// Handler processes one published payload. The context carries the publish
// call's lifetime, not per-handler cancellation.
type Handler func(ctx context.Context, payload any)

// Bus is a process-wide typed publish/subscribe dispatcher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]Handler
	log      *logging.Logger
}

// New creates an empty Bus.
func New(log *logging.Logger) *Bus {
	if log == nil {
		log = logging.NewDefault("eventbus")
	}
	return &Bus{
		handlers: make(map[reflect.Type][]Handler),
		log:      log,
	}
}

// Subscribe registers handler for every payload whose concrete type matches
// sample's type (sample is only used to derive the type key). Safe for
// concurrent use with Publish.
func (b *Bus) Subscribe(sample any, handler Handler) {
	t := reflect.TypeOf(sample)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], handler)
}

// Unsubscribe removes every handler registered for the given sample's
// type; individual handlers cannot be removed on their own, since function
// values are not compared. This mirrors the bus's narrow use here: engine
// wiring subscribes once at startup and never unsubscribes.
func (b *Bus) Unsubscribe(sample any) {
	t := reflect.TypeOf(sample)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, t)
}

// Publish fans payload out to every handler subscribed to its concrete
// type, running them concurrently, and returns only once all of them have
// finished. A handler panic is recovered, logged, and does not affect
// sibling handlers or the publisher.
func (b *Bus) Publish(ctx context.Context, payload any) {
	t := reflect.TypeOf(payload)

	b.mu.RLock()
	snapshot := append([]Handler(nil), b.handlers[t]...)
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(snapshot))
	for _, h := range snapshot {
		go func(h Handler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.WithField("payload_type", t.String()).
						Errorf("event handler panic: %v", r)
				}
			}()
			h(ctx, payload)
		}(h)
	}
	wg.Wait()
}

// SubscriberCount reports how many handlers are registered for sample's
// type — primarily useful in tests.
func (b *Bus) SubscriberCount(sample any) int {
	t := reflect.TypeOf(sample)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}

// String aids debugging by reporting how many distinct payload types carry
// at least one subscriber.
func (b *Bus) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fmt.Sprintf("eventbus(%d payload types)", len(b.handlers))
}
