package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/logger"
	"github.com/pulsetrack/conditioning/pkg/store"
)

// Interface assertion: the storage client is a drop-in log repository.
var _ store.LogRepository = (*Client)(nil)

func (c *Client) logsURL(parts ...string) string {
	url := c.baseURL + "/v1/logs"
	for _, p := range parts {
		url += "/" + p
	}
	return url
}

// FetchAll returns every stored log in overview form.
func (c *Client) FetchAll(ctx context.Context) ([]*structs.ConditioningLog, error) {
	log := logger.Logger(ctx).WithField("service", "storage")
	log.Debug("fetching all logs")

	resp, err := c.http.Get(c.logsURL(), http.Header{})
	if err != nil {
		return nil, apperrors.Persistencef("fetching all logs: %v", err)
	}
	defer closeBody(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Persistencef("fetching all logs: status %d", resp.StatusCode)
	}

	var logs []*structs.ConditioningLog
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		return nil, fmt.Errorf("decoding log list: %w", err)
	}
	return logs, nil
}

// FetchByID returns the fully detailed record for the given id.
func (c *Client) FetchByID(ctx context.Context, id string) (*structs.ConditioningLog, error) {
	resp, err := c.http.Get(c.logsURL(id), http.Header{})
	if err != nil {
		return nil, apperrors.Persistencef("fetching log %s: %v", id, err)
	}
	defer closeBody(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperrors.NotFoundf("log %s", id)
	default:
		return nil, apperrors.Persistencef("fetching log %s: status %d", id, resp.StatusCode)
	}

	out := &structs.ConditioningLog{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decoding log %s: %w", id, err)
	}
	return out, nil
}

// Create persists a new log and emits log.created.
func (c *Client) Create(ctx context.Context, in *structs.ConditioningLog) (*structs.ConditioningLog, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding log: %w", err)
	}

	resp, err := c.http.Post(c.logsURL(), bytes.NewReader(body), jsonHeader())
	if err != nil {
		return nil, apperrors.Persistencef("creating log: %v", err)
	}
	defer closeBody(ctx, resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, apperrors.Persistencef("creating log: status %d", resp.StatusCode)
	}

	created := &structs.ConditioningLog{}
	if err := json.NewDecoder(resp.Body).Decode(created); err != nil {
		return nil, fmt.Errorf("decoding created log: %w", err)
	}
	c.publish(ctx, structs.EventLogCreated, created)
	return created, nil
}

// Update applies a partial update and emits log.updated.
func (c *Client) Update(ctx context.Context, patch *structs.ConditioningLogPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}

	resp, err := c.http.Patch(c.logsURL(patch.ID), bytes.NewReader(body), jsonHeader())
	if err != nil {
		return apperrors.Persistencef("updating log %s: %v", patch.ID, err)
	}
	defer closeBody(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
	case http.StatusNotFound:
		return apperrors.NotFoundf("log %s", patch.ID)
	default:
		return apperrors.Persistencef("updating log %s: status %d", patch.ID, resp.StatusCode)
	}
	c.publish(ctx, structs.EventLogUpdated, patch)
	return nil
}

// Delete removes a log, soft delete when soft is set, and emits log.deleted.
func (c *Client) Delete(ctx context.Context, id string, soft bool) error {
	url := c.logsURL(id)
	if soft {
		url += "?soft=true"
	}

	resp, err := c.http.Delete(url, http.Header{})
	if err != nil {
		return apperrors.Persistencef("deleting log %s: %v", id, err)
	}
	defer closeBody(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
	case http.StatusNotFound:
		return apperrors.NotFoundf("log %s", id)
	default:
		return apperrors.Persistencef("deleting log %s: status %d", id, resp.StatusCode)
	}
	c.publish(ctx, structs.EventLogDeleted, map[string]string{"id": id})
	return nil
}

// Undelete reverses a soft delete and emits log.undeleted. The service
// treats undeleting a live record as a no-op and answers 204.
func (c *Client) Undelete(ctx context.Context, id string) error {
	resp, err := c.http.Post(c.logsURL(id, "undelete"), bytes.NewReader(nil), jsonHeader())
	if err != nil {
		return apperrors.Persistencef("undeleting log %s: %v", id, err)
	}
	defer closeBody(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		out := &structs.ConditioningLog{}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding undeleted log %s: %w", id, err)
		}
		c.publish(ctx, structs.EventLogUndeleted, out)
		return nil
	case http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return apperrors.NotFoundf("log %s", id)
	default:
		return apperrors.Persistencef("undeleting log %s: status %d", id, resp.StatusCode)
	}
}

// Changes streams one event per committed mutation issued through this
// client. Mutations performed by other writers of the storage service are
// not visible on this stream.
func (c *Client) Changes() <-chan structs.Event {
	return c.events
}

func jsonHeader() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return h
}

func closeBody(ctx context.Context, body io.ReadCloser) {
	if err := body.Close(); err != nil {
		logger.Logger(ctx).WithError(err).Warn("error closing response body")
	}
}

// publisher mirrors the local store's change stream semantics for the remote
// repository.
type publisher struct {
	events chan structs.Event
}

func newPublisher() *publisher {
	return &publisher{events: make(chan structs.Event, 128)}
}

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
