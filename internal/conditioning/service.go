// Package conditioning implements the orchestrator sitting between the
// transport layer and the repositories. It owns authorization, cache
// initialization, mutation sequencing with compensating rollback, and the
// read paths (single fetch, list, aggregation).
package conditioning

import (
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pulsetrack/conditioning/internal/cachestore"
	"github.com/pulsetrack/conditioning/pkg/query"
	"github.com/pulsetrack/conditioning/pkg/store"
)

// CompensationPolicy bounds the retry loop of compensating actions.
type CompensationPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Service is the conditioning orchestrator. All exported methods are safe
// for concurrent use.
type Service struct {
	logs  store.LogRepository
	users store.UserRepository
	cache *cachestore.Store

	compensation CompensationPolicy
	defaultSort  []query.SortCriterion

	initGroup singleflight.Group
}

// NewService wires the orchestrator. The default sort is applied to list
// results when the request carries no sort criteria of its own.
func NewService(logs store.LogRepository, users store.UserRepository, cache *cachestore.Store, compensation CompensationPolicy) *Service {
	if compensation.Attempts <= 0 {
		compensation.Attempts = 5
	}
	if compensation.Delay <= 0 {
		compensation.Delay = 500 * time.Millisecond
	}
	return &Service{
		logs:         logs,
		users:        users,
		cache:        cache,
		compensation: compensation,
		defaultSort:  []query.SortCriterion{{Field: query.FieldStartedAt}},
	}
}
