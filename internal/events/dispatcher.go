// Package events routes repository change notifications to per-event-type
// handlers that project persisted state into the cache store. Handlers are
// the only writers of the cache besides the orchestrator's initialization
// and promotion paths; they authenticate to the cache store with the
// capability token issued at registration.
package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/logger"
)

// HandlerFunc processes one event. Errors are logged by the dispatcher and
// never propagate; handlers run detached from any caller awaiting a
// response.
type HandlerFunc func(ctx context.Context, event structs.Event) error

// Dispatcher fans repository change streams out to named handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	streams  []<-chan structs.Event
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
	}
}

// On registers the handler for the named event. Registering the same name
// twice replaces the earlier handler.
func (d *Dispatcher) On(name string, handler HandlerFunc) {
	d.handlers[name] = handler
}

// Watch adds a repository change stream to drain. Call before Run.
func (d *Dispatcher) Watch(stream <-chan structs.Event) {
	d.streams = append(d.streams, stream)
}

// Run drains every watched stream until the context is cancelled. Streams
// are fanned into one dispatch loop so handlers never run concurrently with
// each other. Run blocks until the context ends.
func (d *Dispatcher) Run(ctx context.Context) {
	merged := make(chan structs.Event)
	var wg sync.WaitGroup
	for _, stream := range d.streams {
		wg.Add(1)
		go func(stream <-chan structs.Event) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-stream:
					if !ok {
						return
					}
					select {
					case merged <- event:
					case <-ctx.Done():
						return
					}
				}
			}
		}(stream)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for event := range merged {
		d.dispatch(ctx, event)
	}
}

// dispatch routes one event. Unknown event names are logged and dropped.
func (d *Dispatcher) dispatch(ctx context.Context, event structs.Event) {
	log := logger.Logger(ctx).WithFields(logrus.Fields{
		"event":    event.Name,
		"event_id": event.ID,
	})

	handler, ok := d.handlers[event.Name]
	if !ok {
		log.Warn("no handler registered for event, dropping")
		return
	}
	if err := handler(ctx, event); err != nil {
		log.WithError(err).Error("event handler failed")
		return
	}
	log.Debug("event handled")
}
