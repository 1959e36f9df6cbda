// Package query filters, searches and sorts conditioning logs in memory.
// A Query is a value object; Execute never mutates its input slice.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pulsetrack/conditioning/pkg/common/structs"
)

// Sortable fields.
const (
	FieldStartedAt    = "started_at"
	FieldDuration     = "duration"
	FieldActivityType = "activity_type"
)

// SortCriterion orders results by one field.
type SortCriterion struct {
	Field string
	Desc  bool
}

// Query bundles the filter, search and sort criteria of one list request.
type Query struct {
	UserID         string
	ActivityTypes  []string
	From           *time.Time
	To             *time.Time
	Search         string
	Sort           []SortCriterion
	IncludeDeleted bool
}

// SortCriteria exposes the effective ordering so callers can tell whether
// the request asked for one.
func (q Query) SortCriteria() []SortCriterion {
	return q.Sort
}

// Execute applies the query to the given logs and returns a new slice.
func (q Query) Execute(logs []*structs.ConditioningLog) []*structs.ConditioningLog {
	out := make([]*structs.ConditioningLog, 0, len(logs))
	for _, l := range logs {
		if q.matches(l) {
			out = append(out, l)
		}
	}
	q.sortLogs(out)
	return out
}

func (q Query) matches(l *structs.ConditioningLog) bool {
	if l.Deleted && !q.IncludeDeleted {
		return false
	}
	if len(q.ActivityTypes) > 0 && !containsFold(q.ActivityTypes, l.ActivityType) {
		return false
	}
	if q.From != nil && (l.StartedAt == nil || l.StartedAt.Before(*q.From)) {
		return false
	}
	if q.To != nil && (l.StartedAt == nil || l.StartedAt.After(*q.To)) {
		return false
	}
	if q.Search != "" && !strings.Contains(strings.ToLower(l.ActivityType), strings.ToLower(q.Search)) {
		return false
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func (q Query) sortLogs(logs []*structs.ConditioningLog) {
	if len(q.Sort) == 0 {
		return
	}
	sort.SliceStable(logs, func(i, j int) bool {
		for _, c := range q.Sort {
			cmp := compareField(logs[i], logs[j], c.Field)
			if cmp == 0 {
				continue
			}
			if c.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareField(a, b *structs.ConditioningLog, field string) int {
	switch field {
	case FieldStartedAt:
		return compareTimes(a.StartedAt, b.StartedAt)
	case FieldDuration:
		switch {
		case a.Duration.Value < b.Duration.Value:
			return -1
		case a.Duration.Value > b.Duration.Value:
			return 1
		}
		return 0
	case FieldActivityType:
		return strings.Compare(a.ActivityType, b.ActivityType)
	}
	return 0
}

// compareTimes sorts nil start times last regardless of direction.
func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}

// ParseQuery builds a Query from request parameters. Recognized keys:
// user_id, activity_type (repeatable), from, to (RFC 3339), search,
// sort (field or field:desc, repeatable), include_deleted.
func ParseQuery(values url.Values) (Query, error) {
	q := Query{
		UserID:        values.Get("user_id"),
		ActivityTypes: values["activity_type"],
		Search:        values.Get("search"),
	}

	var err error
	if q.From, err = parseTime(values.Get("from")); err != nil {
		return Query{}, fmt.Errorf("invalid from: %w", err)
	}
	if q.To, err = parseTime(values.Get("to")); err != nil {
		return Query{}, fmt.Errorf("invalid to: %w", err)
	}
	if values.Get("include_deleted") == "true" {
		q.IncludeDeleted = true
	}

	for _, raw := range values["sort"] {
		field, dir, _ := strings.Cut(raw, ":")
		switch field {
		case FieldStartedAt, FieldDuration, FieldActivityType:
		default:
			return Query{}, fmt.Errorf("unknown sort field %q", field)
		}
		if dir != "" && dir != "asc" && dir != "desc" {
			return Query{}, fmt.Errorf("unknown sort direction %q", dir)
		}
		q.Sort = append(q.Sort, SortCriterion{Field: field, Desc: dir == "desc"})
	}
	return q, nil
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
