package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pulsetrack/conditioning/pkg/cache"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/logger"
)

// Store bundles the two repository collaborators over a shared cache backend.
// It encapsulates key prefixing and JSON serialization.
// NOTE: This store does NOT handle locking - callers are responsible for
// proper synchronization of multi-step read-modify-write sequences.
type Store struct {
	Logs  LogRepository
	Users UserRepository
}

// New creates a new Store instance with both repositories initialized.
func New(cache cache.Cache) *Store {
	return &Store{
		Logs:  newLogStore(cache),
		Users: newUserStore(cache),
	}
}

// Compile-time interface compliance checks
var (
	_ LogRepository  = (*LogStore)(nil)
	_ UserRepository = (*UserStore)(nil)
)

// changesBufferSize bounds the per-repository event queue. A full queue drops
// the event rather than block the write path; the cache tolerates missed
// events as bounded staleness.
const changesBufferSize = 128

// publisher emits domain events on a buffered channel shared by a
// repository's mutation paths.
type publisher struct {
	events chan structs.Event
}

func newPublisher() *publisher {
	return &publisher{events: make(chan structs.Event, changesBufferSize)}
}

func (p *publisher) changes() <-chan structs.Event {
	return p.events
}

// publish emits one event for a committed mutation. payload is marshalled to
// JSON; a marshalling failure drops the payload but still emits the event.
func (p *publisher) publish(ctx context.Context, name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Logger(ctx).WithError(err).WithField("event", name).
			Error("error marshalling event payload")
		raw = nil
	}
	evt := structs.Event{
		ID:         uuid.NewString(),
		Name:       name,
		OccurredOn: time.Now().UTC(),
		Payload:    raw,
	}
	select {
	case p.events <- evt:
	default:
		logger.Logger(ctx).WithField("event", name).
			Warn("change stream full, dropping event")
	}
}
