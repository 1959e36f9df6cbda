package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pulsetrack/conditioning/pkg/cache"
	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
)

const logKeyPrefix = "log:"

// LogStore implements LogRepository over the cache backend with "log:"
// prefixed JSON records.
type LogStore struct {
	cache cache.Cache
	*publisher
}

func newLogStore(c cache.Cache) *LogStore {
	return &LogStore{cache: c, publisher: newPublisher()}
}

func logKey(id string) string {
	return logKeyPrefix + id
}

// Changes streams one event per committed mutation.
func (s *LogStore) Changes() <-chan structs.Event {
	return s.changes()
}

// FetchAll returns every stored log in overview form.
func (s *LogStore) FetchAll(ctx context.Context) ([]*structs.ConditioningLog, error) {
	values, err := s.cache.GetByPattern(ctx, logKeyPrefix+"*")
	if err != nil {
		return nil, apperrors.Persistencef("fetching all logs")
	}

	logs := make([]*structs.ConditioningLog, 0, len(values))
	for key, raw := range values {
		log, err := unmarshalLog(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		logs = append(logs, toOverview(log))
	}
	return logs, nil
}

// FetchByID returns the fully detailed record for the given id.
func (s *LogStore) FetchByID(ctx context.Context, id string) (*structs.ConditioningLog, error) {
	raw, err := s.cache.Get(ctx, logKey(id))
	if err != nil {
		if cache.IsKeyNotFound(err) {
			return nil, apperrors.NotFoundf("log %s", id)
		}
		return nil, apperrors.Persistencef("fetching log %s", id)
	}
	return unmarshalLog(raw)
}

// Create persists a new log and emits log.created.
func (s *LogStore) Create(ctx context.Context, log *structs.ConditioningLog) (*structs.ConditioningLog, error) {
	stored := log.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.IsOverview = false

	if err := s.put(ctx, stored); err != nil {
		return nil, err
	}
	s.publish(ctx, structs.EventLogCreated, stored)
	return stored, nil
}

// Update applies a partial update and emits log.updated.
func (s *LogStore) Update(ctx context.Context, patch *structs.ConditioningLogPatch) error {
	current, err := s.FetchByID(ctx, patch.ID)
	if err != nil {
		return err
	}

	if patch.ActivityType != nil {
		current.ActivityType = *patch.ActivityType
	}
	if patch.StartedAt != nil {
		current.StartedAt = patch.StartedAt
	}
	if patch.EndedAt != nil {
		current.EndedAt = patch.EndedAt
	}
	if patch.Duration != nil {
		current.Duration = *patch.Duration
	}
	if patch.Laps != nil {
		current.Laps = *patch.Laps
	}

	if err := s.put(ctx, current); err != nil {
		return err
	}
	s.publish(ctx, structs.EventLogUpdated, current)
	return nil
}

// Delete removes a log, or raises its deleted marker when soft is set, and
// emits log.deleted.
func (s *LogStore) Delete(ctx context.Context, id string, soft bool) error {
	current, err := s.FetchByID(ctx, id)
	if err != nil {
		return err
	}

	if soft {
		current.Deleted = true
		if err := s.put(ctx, current); err != nil {
			return err
		}
	} else {
		if err := s.cache.Delete(ctx, logKey(id)); err != nil {
			return apperrors.Persistencef("deleting log %s", id)
		}
	}
	s.publish(ctx, structs.EventLogDeleted, map[string]string{"id": id})
	return nil
}

// Undelete clears the deleted marker if currently set, emitting
// log.undeleted. Undeleting a live record is a no-op.
func (s *LogStore) Undelete(ctx context.Context, id string) error {
	current, err := s.FetchByID(ctx, id)
	if err != nil {
		return err
	}
	if !current.Deleted {
		return nil
	}

	current.Deleted = false
	if err := s.put(ctx, current); err != nil {
		return err
	}
	s.publish(ctx, structs.EventLogUndeleted, current)
	return nil
}

func (s *LogStore) put(ctx context.Context, log *structs.ConditioningLog) error {
	data, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encoding log %s: %w", log.ID, err)
	}
	if err := s.cache.Set(ctx, logKey(log.ID), string(data), 0); err != nil {
		return apperrors.Persistencef("storing log %s", log.ID)
	}
	return nil
}

func unmarshalLog(raw interface{}) (*structs.ConditioningLog, error) {
	str, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected cache value type %T", raw)
	}
	log := &structs.ConditioningLog{}
	if err := json.Unmarshal([]byte(str), log); err != nil {
		return nil, err
	}
	return log, nil
}

// toOverview strips the detail payload and raises the overview flag.
func toOverview(log *structs.ConditioningLog) *structs.ConditioningLog {
	out := log.Clone()
	out.Laps = nil
	out.SensorSamples = nil
	out.IsOverview = true
	return out
}
