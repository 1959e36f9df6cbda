// Package timeseries converts conditioning logs into a time series keyed by
// start time and aggregates it by sample rate. Aggregation is pure and
// synchronous given its inputs.
package timeseries

import (
	"fmt"
	"sort"
	"time"

	"github.com/pulsetrack/conditioning/pkg/common/structs"
)

// SampleRate is the time-bucket granularity of an aggregation.
type SampleRate string

const (
	RateDay   SampleRate = "day"
	RateWeek  SampleRate = "week"
	RateMonth SampleRate = "month"
	RateYear  SampleRate = "year"
)

// ParseSampleRate validates a sample rate coming from untrusted input.
func ParseSampleRate(raw string) (SampleRate, error) {
	switch SampleRate(raw) {
	case RateDay, RateWeek, RateMonth, RateYear:
		return SampleRate(raw), nil
	}
	return "", fmt.Errorf("unknown sample rate %q", raw)
}

// Operation is the numeric aggregation applied per bucket.
type Operation string

const (
	OpSum   Operation = "sum"
	OpAvg   Operation = "avg"
	OpMin   Operation = "min"
	OpMax   Operation = "max"
	OpCount Operation = "count"
)

// ParseOperation validates an operation coming from untrusted input.
func ParseOperation(raw string) (Operation, error) {
	switch Operation(raw) {
	case OpSum, OpAvg, OpMin, OpMax, OpCount:
		return Operation(raw), nil
	}
	return "", fmt.Errorf("unknown aggregation operation %q", raw)
}

// AggregationSpec describes one aggregation request.
type AggregationSpec struct {
	Operation  Operation
	SampleRate SampleRate
}

// Point is one log placed on the series by its start time.
type Point struct {
	At  time.Time
	Log *structs.ConditioningLog
}

// Series is a set of points ordered by time.
type Series []Point

// FromLogs places the given logs on a series keyed by start time. Logs
// without a start time cannot be placed and are returned separately for the
// caller to report; they never fail the conversion.
func FromLogs(logs []*structs.ConditioningLog) (Series, []*structs.ConditioningLog) {
	series := make(Series, 0, len(logs))
	var skipped []*structs.ConditioningLog
	for _, l := range logs {
		if l.StartedAt == nil {
			skipped = append(skipped, l)
			continue
		}
		series = append(series, Point{At: *l.StartedAt, Log: l})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].At.Before(series[j].At) })
	return series, skipped
}

// BucketStart truncates t down to the start of its bucket in UTC.
func BucketStart(t time.Time, rate SampleRate) time.Time {
	t = t.UTC()
	switch rate {
	case RateDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case RateWeek:
		// ISO weeks, Monday first.
		weekday := (int(t.Weekday()) + 6) % 7
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -weekday)
	case RateMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case RateYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}
