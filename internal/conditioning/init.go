package conditioning

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/pulsetrack/conditioning/internal/cachestore"
	"github.com/pulsetrack/conditioning/pkg/common/structs"
	"github.com/pulsetrack/conditioning/pkg/logger"
)

// initKey collapses every concurrent EnsureReady call onto one population.
const initKey = "cache-init"

// EnsureReady populates the cache from the repositories exactly once.
// Concurrent callers share a single in-flight population; callers arriving
// after a successful population return immediately. A failed population
// leaves the cache empty so a later call can retry.
func (s *Service) EnsureReady(ctx context.Context) error {
	if s.cache.Ready() {
		return nil
	}

	_, err, _ := s.initGroup.Do(initKey, func() (interface{}, error) {
		if s.cache.Ready() {
			return nil, nil
		}
		return nil, s.populate(ctx)
	})
	return err
}

// populate fetches all logs and users and installs one cache entry per
// user. Everything is assembled off to the side first; the cache observes
// either the complete result or nothing.
func (s *Service) populate(ctx context.Context) error {
	log := logger.Logger(ctx)
	log.Info("populating conditioning cache")

	logs, err := s.logs.FetchAll(ctx)
	if err != nil {
		log.WithError(err).Error("failed to fetch logs during cache population")
		return err
	}
	users, err := s.users.FetchAll(ctx)
	if err != nil {
		log.WithError(err).Error("failed to fetch users during cache population")
		return err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return beforeByStart(logs[i], logs[j])
	})

	entries := make([]*cachestore.Entry, 0, len(users))
	for _, u := range users {
		entry := &cachestore.Entry{UserID: u.ID}
		for _, l := range logs {
			if u.OwnsLog(l.ID) {
				entry.Logs = append(entry.Logs, l)
			}
		}
		entries = append(entries, entry)
	}

	if err := s.cache.Populate(entries); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"users": len(users),
		"logs":  len(logs),
	}).Info("conditioning cache populated")
	return nil
}

// beforeByStart orders logs ascending by start time, logs without one last.
func beforeByStart(a, b *structs.ConditioningLog) bool {
	switch {
	case a.StartedAt == nil:
		return false
	case b.StartedAt == nil:
		return true
	}
	return a.StartedAt.Before(*b.StartedAt)
}
