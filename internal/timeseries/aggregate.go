package timeseries

import (
	"fmt"
	"sort"
	"time"

	"github.com/pulsetrack/conditioning/pkg/common/structs"
)

// ValueExtractor unwraps one numeric value from a log, reporting false when
// the log carries no usable value for the requested field/unit.
type ValueExtractor func(*structs.ConditioningLog) (float64, bool)

// Bucket is one aggregated data point.
type Bucket struct {
	Start time.Time `json:"start"`
	Value float64   `json:"value"`
	Count int       `json:"count"`
}

// Aggregated is the bucketed result, ascending by bucket start.
type Aggregated []Bucket

// Aggregate groups the series by the spec's sample rate and folds each
// bucket with the spec's operation. For count the extractor may be nil;
// every other operation requires one.
func Aggregate(series Series, spec AggregationSpec, extract ValueExtractor) (Aggregated, error) {
	if spec.Operation != OpCount && extract == nil {
		return nil, fmt.Errorf("operation %s requires a value extractor", spec.Operation)
	}

	type acc struct {
		sum      float64
		min, max float64
		count    int
	}
	buckets := make(map[time.Time]*acc)

	for _, p := range series {
		start := BucketStart(p.At, spec.SampleRate)

		if spec.Operation == OpCount {
			a, ok := buckets[start]
			if !ok {
				a = &acc{}
				buckets[start] = a
			}
			a.count++
			continue
		}

		v, ok := extract(p.Log)
		if !ok {
			// No bucket until a value lands in it, otherwise a bucket of
			// only unextractable logs comes out as a spurious zero.
			continue
		}
		a, found := buckets[start]
		if !found {
			a = &acc{min: v, max: v}
			buckets[start] = a
		} else {
			if v < a.min {
				a.min = v
			}
			if v > a.max {
				a.max = v
			}
		}
		a.sum += v
		a.count++
	}

	out := make(Aggregated, 0, len(buckets))
	for start, a := range buckets {
		b := Bucket{Start: start, Count: a.count}
		switch spec.Operation {
		case OpSum:
			b.Value = a.sum
		case OpAvg:
			if a.count > 0 {
				b.Value = a.sum / float64(a.count)
			}
		case OpMin:
			b.Value = a.min
		case OpMax:
			b.Value = a.max
		case OpCount:
			b.Value = float64(a.count)
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// unit conversion factors to the base unit of each dimension (seconds for
// durations, meters for distances).
var unitFactors = map[string]float64{
	"sec": 1,
	"min": 60,
	"h":   3600,
	"m":   1,
	"km":  1000,
}

// ConvertQuantity converts q into the requested unit. Conversion across
// dimensions (e.g. minutes to meters) reports false.
func ConvertQuantity(q structs.Quantity, unit string) (float64, bool) {
	from, ok := unitFactors[q.Unit]
	if !ok {
		return 0, false
	}
	to, ok := unitFactors[unit]
	if !ok {
		return 0, false
	}
	durationFrom := q.Unit == "sec" || q.Unit == "min" || q.Unit == "h"
	durationTo := unit == "sec" || unit == "min" || unit == "h"
	if durationFrom != durationTo {
		return 0, false
	}
	return q.Value * from / to, true
}

// DurationIn extracts a log's duration in the requested unit.
func DurationIn(unit string) ValueExtractor {
	return func(l *structs.ConditioningLog) (float64, bool) {
		if l.Duration.Unit == "" {
			return 0, false
		}
		return ConvertQuantity(l.Duration, unit)
	}
}
