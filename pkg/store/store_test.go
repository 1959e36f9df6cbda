package store

import (
	"context"
	"testing"
	"time"

	"github.com/pulsetrack/conditioning/pkg/cache/inmemory"
	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	c, err := inmemory.NewCache(&inmemory.Config{
		DefaultExpiration: -1,
		CleanupInterval:   -1,
	})
	require.NoError(t, err)
	return New(c)
}

func drainEvent(t *testing.T, ch <-chan structs.Event) structs.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("expected an event on the change stream")
		return structs.Event{}
	}
}

func minutes(v float64) structs.Quantity {
	return structs.Quantity{Value: v, Unit: "min"}
}

func TestNew(t *testing.T) {
	s := testStore(t)

	assert.NotNil(t, s)
	assert.NotNil(t, s.Logs)
	assert.NotNil(t, s.Users)
}

func TestLogStore_CreateAndFetch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 7, 30, 0, 0, time.UTC)
	created, err := s.Logs.Create(ctx, &structs.ConditioningLog{
		ActivityType: "running",
		StartedAt:    &started,
		Duration:     minutes(45),
		Laps:         []structs.Lap{{Number: 1, Duration: minutes(45)}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	evt := drainEvent(t, s.Logs.Changes())
	assert.Equal(t, structs.EventLogCreated, evt.Name)
	assert.NotEmpty(t, evt.ID)

	fetched, err := s.Logs.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "running", fetched.ActivityType)
	assert.Len(t, fetched.Laps, 1)
	assert.False(t, fetched.IsOverview)
}

func TestLogStore_FetchAllReturnsOverviews(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Logs.Create(ctx, &structs.ConditioningLog{
		ActivityType: "cycling",
		Duration:     minutes(60),
		Laps:         []structs.Lap{{Number: 1, Duration: minutes(60)}},
	})
	require.NoError(t, err)

	logs, err := s.Logs.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].IsOverview)
	assert.Empty(t, logs[0].Laps)
}

func TestLogStore_FetchByIDNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.Logs.FetchByID(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestLogStore_UpdatePartial(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Logs.Create(ctx, &structs.ConditioningLog{
		ActivityType: "running",
		Duration:     minutes(30),
	})
	require.NoError(t, err)
	drainEvent(t, s.Logs.Changes())

	newType := "trail-running"
	require.NoError(t, s.Logs.Update(ctx, &structs.ConditioningLogPatch{
		ID:           created.ID,
		ActivityType: &newType,
	}))

	evt := drainEvent(t, s.Logs.Changes())
	assert.Equal(t, structs.EventLogUpdated, evt.Name)

	fetched, err := s.Logs.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "trail-running", fetched.ActivityType)
	assert.Equal(t, 30.0, fetched.Duration.Value)
}

func TestLogStore_SoftDeleteAndUndelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Logs.Create(ctx, &structs.ConditioningLog{ActivityType: "rowing"})
	require.NoError(t, err)
	drainEvent(t, s.Logs.Changes())

	require.NoError(t, s.Logs.Delete(ctx, created.ID, true))
	assert.Equal(t, structs.EventLogDeleted, drainEvent(t, s.Logs.Changes()).Name)

	fetched, err := s.Logs.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Deleted)

	require.NoError(t, s.Logs.Undelete(ctx, created.ID))
	assert.Equal(t, structs.EventLogUndeleted, drainEvent(t, s.Logs.Changes()).Name)

	fetched, err = s.Logs.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, fetched.Deleted)
}

func TestLogStore_UndeleteLiveRecordIsNoop(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Logs.Create(ctx, &structs.ConditioningLog{ActivityType: "rowing"})
	require.NoError(t, err)
	drainEvent(t, s.Logs.Changes())

	require.NoError(t, s.Logs.Undelete(ctx, created.ID))

	select {
	case evt := <-s.Logs.Changes():
		t.Fatalf("unexpected event %s", evt.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLogStore_HardDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Logs.Create(ctx, &structs.ConditioningLog{ActivityType: "rowing"})
	require.NoError(t, err)

	require.NoError(t, s.Logs.Delete(ctx, created.ID, false))

	_, err = s.Logs.FetchByID(ctx, created.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUserStore_CRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	created, err := s.Users.Create(ctx, &structs.User{
		ExternalID: "ext-1",
		LogIDs:     []string{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, structs.EventUserCreated, drainEvent(t, s.Users.Changes()).Name)

	created.LogIDs = append(created.LogIDs, "b")
	require.NoError(t, s.Users.Update(ctx, created))
	assert.Equal(t, structs.EventUserUpdated, drainEvent(t, s.Users.Changes()).Name)

	fetched, err := s.Users.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, fetched.LogIDs)

	require.NoError(t, s.Users.Delete(ctx, created.ID))
	assert.Equal(t, structs.EventUserDeleted, drainEvent(t, s.Users.Changes()).Name)

	_, err = s.Users.FetchByID(ctx, created.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStore_KeyNamespacing(t *testing.T) {
	// Log and user records with the same id must not collide.
	s := testStore(t)
	ctx := context.Background()

	_, err := s.Logs.Create(ctx, &structs.ConditioningLog{ID: "same", ActivityType: "running"})
	require.NoError(t, err)
	_, err = s.Users.Create(ctx, &structs.User{ID: "same"})
	require.NoError(t, err)

	log, err := s.Logs.FetchByID(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "running", log.ActivityType)

	user, err := s.Users.FetchByID(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "same", user.ID)
}
