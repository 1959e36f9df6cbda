package conditioning

import (
	"context"

	"github.com/pulsetrack/conditioning/internal/timeseries"
	"github.com/pulsetrack/conditioning/pkg/common/apperrors"
	"github.com/pulsetrack/conditioning/pkg/common/constants"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/logger"
	"github.com/pulsetrack/conditioning/pkg/query"
)

// ListLogs returns the caller-accessible logs matching the query, sorted
// ascending by start time unless the query orders them itself.
func (s *Service) ListLogs(ctx context.Context, caller structs.Caller, targetUserID string, q query.Query) ([]*structs.ConditioningLog, error) {
	logs, err := s.accessibleLogs(ctx, caller, targetUserID, q)
	if err != nil {
		return nil, err
	}
	if len(q.SortCriteria()) == 0 {
		q.Sort = s.defaultSort
	}
	return q.Execute(logs), nil
}

// Aggregate buckets the caller-accessible logs matching the query by the
// spec's sample rate, extracting each log's duration in the requested unit.
// Logs without a start time cannot be placed on the series; they are logged
// and skipped.
func (s *Service) Aggregate(ctx context.Context, caller structs.Caller, targetUserID string, spec timeseries.AggregationSpec, unit string, q query.Query) (timeseries.Aggregated, error) {
	logs, err := s.accessibleLogs(ctx, caller, targetUserID, q)
	if err != nil {
		return nil, err
	}

	series, skipped := timeseries.FromLogs(q.Execute(logs))
	for _, l := range skipped {
		logger.Logger(ctx).WithField("log_id", l.ID).
			Warn("log has no start time, excluded from aggregation")
	}
	return timeseries.Aggregate(series, spec, timeseries.DurationIn(unit))
}

// accessibleLogs resolves the candidate log set per the caller's rights:
// admins without a target see everything, admins with a target see that
// user's entry, everyone else only their own entry. A non-admin query naming
// another user is rejected outright.
func (s *Service) accessibleLogs(ctx context.Context, caller structs.Caller, targetUserID string, q query.Query) ([]*structs.ConditioningLog, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	if err := authorize(caller, targetUserID); err != nil {
		return nil, err
	}

	admin := caller.HasRole(constants.RoleAdmin)
	if !admin && q.UserID != "" && q.UserID != caller.UserID {
		return nil, apperrors.Unauthorizedf("caller %s cannot query logs of user %s", caller.UserID, q.UserID)
	}

	if admin && targetUserID == "" {
		var all []*structs.ConditioningLog
		for _, entry := range s.cache.Entries() {
			all = append(all, entry.Logs...)
		}
		return all, nil
	}

	owner := targetUserID
	if owner == "" {
		owner = caller.UserID
	}
	entry, ok := s.cache.EntryByUser(owner)
	if !ok {
		return nil, apperrors.NotFoundf("no cached entry for user %s", owner)
	}
	return append([]*structs.ConditioningLog(nil), entry.Logs...), nil
}
