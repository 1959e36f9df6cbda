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

const userKeyPrefix = "user:"

// UserStore implements UserRepository over the cache backend with "user:"
// prefixed JSON records.
type UserStore struct {
	cache cache.Cache
	*publisher
}

func newUserStore(c cache.Cache) *UserStore {
	return &UserStore{cache: c, publisher: newPublisher()}
}

func userKey(id string) string {
	return userKeyPrefix + id
}

// Changes streams one event per committed mutation.
func (s *UserStore) Changes() <-chan structs.Event {
	return s.changes()
}

// FetchAll returns every stored user.
func (s *UserStore) FetchAll(ctx context.Context) ([]*structs.User, error) {
	values, err := s.cache.GetByPattern(ctx, userKeyPrefix+"*")
	if err != nil {
		return nil, apperrors.Persistencef("fetching all users")
	}

	users := make([]*structs.User, 0, len(values))
	for key, raw := range values {
		user, err := unmarshalUser(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		users = append(users, user)
	}
	return users, nil
}

// FetchByID returns the user with the given id.
func (s *UserStore) FetchByID(ctx context.Context, id string) (*structs.User, error) {
	raw, err := s.cache.Get(ctx, userKey(id))
	if err != nil {
		if cache.IsKeyNotFound(err) {
			return nil, apperrors.NotFoundf("user %s", id)
		}
		return nil, apperrors.Persistencef("fetching user %s", id)
	}
	return unmarshalUser(raw)
}

// Create persists a new user and emits user.created.
func (s *UserStore) Create(ctx context.Context, user *structs.User) (*structs.User, error) {
	stored := user.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	if err := s.put(ctx, stored); err != nil {
		return nil, err
	}
	s.publish(ctx, structs.EventUserCreated, stored)
	return stored, nil
}

// Update replaces the stored record and emits user.updated.
func (s *UserStore) Update(ctx context.Context, user *structs.User) error {
	if _, err := s.FetchByID(ctx, user.ID); err != nil {
		return err
	}
	if err := s.put(ctx, user); err != nil {
		return err
	}
	s.publish(ctx, structs.EventUserUpdated, user)
	return nil
}

// Delete removes a user entirely and emits user.deleted.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	user, err := s.FetchByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, userKey(id)); err != nil {
		return apperrors.Persistencef("deleting user %s", id)
	}
	s.publish(ctx, structs.EventUserDeleted, user)
	return nil
}

func (s *UserStore) put(ctx context.Context, user *structs.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding user %s: %w", user.ID, err)
	}
	if err := s.cache.Set(ctx, userKey(user.ID), string(data), 0); err != nil {
		return apperrors.Persistencef("storing user %s", user.ID)
	}
	return nil
}

func unmarshalUser(raw interface{}) (*structs.User, error) {
	str, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected cache value type %T", raw)
	}
	user := &structs.User{}
	if err := json.Unmarshal([]byte(str), user); err != nil {
		return nil, err
	}
	return user, nil
}
