package conditioning

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pulsetrack/conditioning/internal/cachestore"
	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/logger"
)

// CreateLog persists a new log for the target user and attaches its id to
// the user's log-id list. When attaching fails the just-created log is
// orphaned; it is deleted again with bounded retries and the original error
// is returned either way.
func (s *Service) CreateLog(ctx context.Context, caller structs.Caller, targetUserID string, log *structs.ConditioningLog) (string, error) {
	if err := authorize(caller, targetUserID); err != nil {
		return "", err
	}

	user, err := s.users.FetchByID(ctx, targetUserID)
	if err != nil {
		return "", err
	}

	created, err := s.logs.Create(ctx, log)
	if err != nil {
		return "", err
	}

	next := user.Clone()
	next.LogIDs = append(next.LogIDs, created.ID)
	if err := s.users.Update(ctx, next); err != nil {
		s.cleanupOrphan(ctx, created.ID)
		return "", err
	}

	return created.ID, nil
}

// cleanupOrphan hard-deletes a log whose owning user could not be updated.
// Exhaustion is logged, never returned; the caller already has the original
// error.
func (s *Service) cleanupOrphan(ctx context.Context, logID string) {
	l := logger.Logger(ctx).WithField("log_id", logID)
	for attempt := 1; attempt <= s.compensation.Attempts; attempt++ {
		if err := s.logs.Delete(ctx, logID, false); err == nil {
			l.WithField("attempt", attempt).Info("cleaned up orphaned log")
			return
		} else {
			l.WithError(err).WithField("attempt", attempt).Warn("orphaned log cleanup attempt failed")
		}
		time.Sleep(s.compensation.Delay)
	}
	l.Error("orphaned log left behind after cleanup retries exhausted")
}

// FetchLog returns one log from the cache, promoting an overview copy to
// full detail on first read.
func (s *Service) FetchLog(ctx context.Context, caller structs.Caller, targetUserID, logID string) (*structs.ConditioningLog, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if err := authorize(caller, targetUserID); err != nil {
		return nil, err
	}

	entry, ok := s.cache.FindOwner(logID)
	if !ok {
		return nil, apperrors.NotFoundf("log %s not cached", logID)
	}
	// The entry found by log id may belong to someone else entirely.
	if err := authorize(caller, entry.UserID); err != nil {
		return nil, err
	}

	cached := cachedLog(entry, logID)
	if cached == nil {
		return nil, apperrors.NotFoundf("log %s not cached", logID)
	}
	if !cached.IsOverview {
		return cached, nil
	}

	detailed, err := s.logs.FetchByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if !s.cache.SwapLog(entry.UserID, detailed) {
		logger.Logger(ctx).WithFields(logrus.Fields{
			"log_id":  logID,
			"user_id": entry.UserID,
		}).Warn("log vanished from cache during detail promotion")
	}
	return detailed, nil
}

func cachedLog(entry *cachestore.Entry, logID string) *structs.ConditioningLog {
	for _, l := range entry.Logs {
		if l.ID == logID {
			return l
		}
	}
	return nil
}

// UpdateLog applies a partial update through the repository. The cache is
// not touched here; the change event routed through the dispatcher projects
// the update into the cache.
func (s *Service) UpdateLog(ctx context.Context, caller structs.Caller, targetUserID string, patch *structs.ConditioningLogPatch) error {
	if err := authorize(caller, targetUserID); err != nil {
		return err
	}
	if _, err := s.logs.FetchByID(ctx, patch.ID); err != nil {
		return err
	}
	return s.logs.Update(ctx, patch)
}

// DeleteLog detaches the log from its user and then soft-deletes it. The
// user list is updated first because an update is easier to roll back than
// a delete; once that half has committed the operation reports success even
// if the log delete itself keeps failing.
func (s *Service) DeleteLog(ctx context.Context, caller structs.Caller, targetUserID, logID string) error {
	if err := authorize(caller, targetUserID); err != nil {
		return err
	}
	if _, err := s.logs.FetchByID(ctx, logID); err != nil {
		return err
	}
	user, err := s.users.FetchByID(ctx, targetUserID)
	if err != nil {
		return err
	}

	next := user.Clone()
	next.LogIDs = removeID(next.LogIDs, logID)
	if err := s.users.Update(ctx, next); err != nil {
		return err
	}

	if err := s.logs.Delete(ctx, logID, true); err != nil {
		logger.Logger(ctx).WithError(err).WithField("log_id", logID).
			Warn("log delete failed after user detach, rolling back user list")
		s.restoreUserList(ctx, user)
	}
	return nil
}

// restoreUserList re-persists the pre-delete user record with bounded
// retries.
func (s *Service) restoreUserList(ctx context.Context, user *structs.User) {
	l := logger.Logger(ctx).WithField("user_id", user.ID)
	for attempt := 1; attempt <= s.compensation.Attempts; attempt++ {
		if err := s.users.Update(ctx, user.Clone()); err == nil {
			l.WithField("attempt", attempt).Info("restored user log list")
			return
		} else {
			l.WithError(err).WithField("attempt", attempt).Warn("user log list rollback attempt failed")
		}
		time.Sleep(s.compensation.Delay)
	}
	l.Error("user log list left inconsistent after rollback retries exhausted")
}

// UndeleteLog reverses a soft delete. The repository treats a live target as
// a no-op.
func (s *Service) UndeleteLog(ctx context.Context, caller structs.Caller, targetUserID, logID string) error {
	if err := authorize(caller, targetUserID); err != nil {
		return err
	}
	return s.logs.Undelete(ctx, logID)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}
