package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pulsetrack/conditioning/internal/cachestore"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/logger"
	"github.com/pulsetrack/conditioning/pkg/store"
)

// CacheHandlers projects repository events into the cache store. All writes
// go through the guarded Snapshot/Replace pair as a full copy-then-replace,
// so subscribers always observe a complete snapshot.
type CacheHandlers struct {
	cache *cachestore.Store
	token *cachestore.HandlerToken
	logs  store.LogRepository
}

// NewCacheHandlers registers with the cache store and returns the handler
// set. The returned handlers hold the only capability token in the process.
func NewCacheHandlers(cache *cachestore.Store, logs store.LogRepository) *CacheHandlers {
	return &CacheHandlers{
		cache: cache,
		token: cache.RegisterHandler("cache-projection"),
		logs:  logs,
	}
}

// Register wires every handled event name into the dispatcher.
func (h *CacheHandlers) Register(d *Dispatcher) {
	d.On(structs.EventLogCreated, h.LogCreated)
	d.On(structs.EventLogUpdated, h.LogUpdated)
	d.On(structs.EventLogDeleted, h.LogDeleted)
	d.On(structs.EventLogUndeleted, h.LogUndeleted)
	d.On(structs.EventUserCreated, h.UserCreated)
	d.On(structs.EventUserUpdated, h.UserUpdated)
	d.On(structs.EventUserDeleted, h.UserDeleted)
}

// LogCreated is a no-op: a created log reaches the cache when it is attached
// to its user and the user-updated event arrives.
func (h *CacheHandlers) LogCreated(ctx context.Context, event structs.Event) error {
	return nil
}

// LogUpdated refetches the full record and replaces it inside whichever
// entry holds a log with that id. A log absent from the cache is a warning,
// not an error.
func (h *CacheHandlers) LogUpdated(ctx context.Context, event structs.Event) error {
	id, err := payloadID(event)
	if err != nil {
		return err
	}

	detailed, err := h.logs.FetchByID(ctx, id)
	if err != nil {
		return fmt.Errorf("refetching updated log %s: %w", id, err)
	}

	return h.replaceLog(ctx, detailed)
}

// LogDeleted marks the cached copy deleted where one exists.
func (h *CacheHandlers) LogDeleted(ctx context.Context, event structs.Event) error {
	return h.markDeleted(ctx, event, true)
}

// LogUndeleted clears the deleted marker on the cached copy where one
// exists.
func (h *CacheHandlers) LogUndeleted(ctx context.Context, event structs.Event) error {
	return h.markDeleted(ctx, event, false)
}

func (h *CacheHandlers) markDeleted(ctx context.Context, event structs.Event, deleted bool) error {
	id, err := payloadID(event)
	if err != nil {
		return err
	}

	snapshot, err := h.cache.Snapshot(h.token)
	if err != nil {
		return err
	}

	found := false
	for i, entry := range snapshot {
		for j, l := range entry.Logs {
			if l.ID != id {
				continue
			}
			next := entry.Clone()
			updated := l.Clone()
			updated.Deleted = deleted
			next.Logs[j] = updated
			snapshot[i] = next
			found = true
		}
	}
	if !found {
		logger.Logger(ctx).WithField("log_id", id).
			Warn("log not cached, skipping deleted-marker update")
		return nil
	}
	return h.cache.Replace(h.token, snapshot)
}

// UserCreated builds a fresh entry for the user, fetching each referenced
// log id individually. Individual fetch failures are logged and skipped.
// When an entry for the user already exists (the event was queued while
// initial population scanned the same user) it is replaced, keeping the
// one-entry-per-user invariant.
func (h *CacheHandlers) UserCreated(ctx context.Context, event structs.Event) error {
	user, err := payloadUser(event)
	if err != nil {
		return err
	}

	entry := &cachestore.Entry{UserID: user.ID}
	entry.Logs = h.fetchLogs(ctx, user.LogIDs, nil)

	snapshot, err := h.cache.Snapshot(h.token)
	if err != nil {
		return err
	}
	for i, existing := range snapshot {
		if existing.UserID == user.ID {
			snapshot[i] = entry
			return h.cache.Replace(h.token, snapshot)
		}
	}
	return h.cache.Replace(h.token, append(snapshot, entry))
}

// UserUpdated recomputes the user's entry as the union of the previously
// cached logs still referenced by the updated id list and the newly
// referenced ids fetched from the repository.
func (h *CacheHandlers) UserUpdated(ctx context.Context, event structs.Event) error {
	user, err := payloadUser(event)
	if err != nil {
		return err
	}

	snapshot, err := h.cache.Snapshot(h.token)
	if err != nil {
		return err
	}

	idx := -1
	for i, entry := range snapshot {
		if entry.UserID == user.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		logger.Logger(ctx).WithField("user_id", user.ID).
			Error("no cached entry for updated user")
		return nil
	}

	cached := make(map[string]*structs.ConditioningLog, len(snapshot[idx].Logs))
	for _, l := range snapshot[idx].Logs {
		cached[l.ID] = l
	}

	next := snapshot[idx].Clone()
	next.Logs = nil
	var missing []string
	for _, id := range user.LogIDs {
		if l, ok := cached[id]; ok {
			next.Logs = append(next.Logs, l)
			continue
		}
		missing = append(missing, id)
	}
	next.Logs = h.fetchLogs(ctx, missing, next.Logs)

	snapshot[idx] = next
	return h.cache.Replace(h.token, snapshot)
}

// UserDeleted purges the user's entry and hard-deletes the now-orphaned
// logs from persistence, not merely from the cache.
func (h *CacheHandlers) UserDeleted(ctx context.Context, event structs.Event) error {
	user, err := payloadUser(event)
	if err != nil {
		return err
	}

	snapshot, err := h.cache.Snapshot(h.token)
	if err != nil {
		return err
	}

	next := snapshot[:0]
	for _, entry := range snapshot {
		if entry.UserID != user.ID {
			next = append(next, entry)
		}
	}
	if err := h.cache.Replace(h.token, next); err != nil {
		return err
	}

	for _, id := range user.LogIDs {
		if err := h.logs.Delete(ctx, id, false); err != nil {
			logger.Logger(ctx).WithError(err).WithFields(logrus.Fields{
				"user_id": user.ID,
				"log_id":  id,
			}).Error("failed to purge orphaned log")
		}
	}
	return nil
}

// replaceLog swaps the log into whichever entry holds its id, via the
// guarded snapshot/replace pair.
func (h *CacheHandlers) replaceLog(ctx context.Context, log *structs.ConditioningLog) error {
	snapshot, err := h.cache.Snapshot(h.token)
	if err != nil {
		return err
	}

	for i, entry := range snapshot {
		for j, l := range entry.Logs {
			if l.ID != log.ID {
				continue
			}
			next := entry.Clone()
			next.Logs[j] = log
			snapshot[i] = next
			return h.cache.Replace(h.token, snapshot)
		}
	}

	logger.Logger(ctx).WithField("log_id", log.ID).
		Warn("log not cached, skipping replacement")
	return nil
}

// fetchLogs loads each id from the repository, appending to dst. Per-id
// failures are logged and skipped.
func (h *CacheHandlers) fetchLogs(ctx context.Context, ids []string, dst []*structs.ConditioningLog) []*structs.ConditioningLog {
	for _, id := range ids {
		l, err := h.logs.FetchByID(ctx, id)
		if err != nil {
			logger.Logger(ctx).WithError(err).WithField("log_id", id).
				Warn("failed to fetch log for cache entry")
			continue
		}
		dst = append(dst, l)
	}
	return dst
}

func payloadID(event structs.Event) (string, error) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Payload, &body); err != nil {
		return "", fmt.Errorf("decoding %s payload: %w", event.Name, err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("%s payload carries no id", event.Name)
	}
	return body.ID, nil
}

func payloadUser(event structs.Event) (*structs.User, error) {
	user := &structs.User{}
	if err := json.Unmarshal(event.Payload, user); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", event.Name, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%s payload carries no user id", event.Name)
	}
	return user, nil
}
