package structs

import (
	"encoding/json"
	"time"
)

// Event names emitted by the repositories, one per committed mutation.
const (
	EventLogCreated   = "log.created"
	EventLogUpdated   = "log.updated"
	EventLogDeleted   = "log.deleted"
	EventLogUndeleted = "log.undeleted"

	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// Event is a domain change notification. Payload carries the entity JSON
// relevant to the event kind, partial for deletes (id only).
type Event struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	OccurredOn time.Time       `json:"occurred_on"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
