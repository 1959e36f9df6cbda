package store

import (
	"context"

	"github.com/pulsetrack/conditioning/pkg/common/structs"
)

// LogRepository defines operations for the conditioning log system of record.
// This interface enables mocking in tests and follows the dependency
// inversion principle.
//
// Every committed mutation emits exactly one event on the Changes stream.
type LogRepository interface {
	// FetchAll returns every stored log in overview form (no laps or
	// sensor samples). Soft-deleted logs are included with their marker set.
	FetchAll(ctx context.Context) ([]*structs.ConditioningLog, error)

	// FetchByID returns the fully detailed record for the given id.
	FetchByID(ctx context.Context, id string) (*structs.ConditioningLog, error)

	// Create persists a new log, assigning an id when the record carries
	// none, and returns the stored record.
	Create(ctx context.Context, log *structs.ConditioningLog) (*structs.ConditioningLog, error)

	// Update applies a partial update to the stored record. Nil patch
	// fields are left untouched.
	Update(ctx context.Context, patch *structs.ConditioningLogPatch) error

	// Delete removes a log. With soft set, the record is kept and its
	// deleted marker raised instead.
	Delete(ctx context.Context, id string, soft bool) error

	// Undelete clears the deleted marker. It only proceeds if the record
	// is currently soft-deleted, otherwise it is a no-op.
	Undelete(ctx context.Context, id string) error

	// Changes streams one event per committed mutation.
	Changes() <-chan structs.Event
}

// UserRepository defines operations for the user system of record. Users own
// log-id lists, never log content.
type UserRepository interface {
	// FetchAll returns every stored user.
	FetchAll(ctx context.Context) ([]*structs.User, error)

	// FetchByID returns the user with the given id.
	FetchByID(ctx context.Context, id string) (*structs.User, error)

	// Create persists a new user, assigning an id when the record carries
	// none, and returns the stored record.
	Create(ctx context.Context, user *structs.User) (*structs.User, error)

	// Update replaces the stored user record.
	Update(ctx context.Context, user *structs.User) error

	// Delete removes a user entirely.
	Delete(ctx context.Context, id string) error

	// Changes streams one event per committed mutation.
	Changes() <-chan structs.Event
}
