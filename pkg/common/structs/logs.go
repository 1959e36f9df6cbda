package structs

import "time"

// Quantity is a numeric value paired with its unit, e.g. {45, "min"} or
// {10.5, "km"}. Conversions between units happen at aggregation time.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Lap is a single lap of a detailed conditioning log.
type Lap struct {
	Number   int      `json:"number"`
	Duration Quantity `json:"duration"`
	Distance Quantity `json:"distance,omitempty"`
}

// SensorSample is one sensor reading attached to a detailed conditioning log.
type SensorSample struct {
	TakenAt time.Time `json:"taken_at"`
	Kind    string    `json:"kind"`
	Value   float64   `json:"value"`
}

// ConditioningLog identifies a single workout session.
//
// A log fetched in overview form carries no laps or sensor samples; the full
// record is loaded on demand and swapped in place in the cache. Apart from
// that promotion and the Deleted marker used for soft delete, cached logs are
// treated as immutable value objects.
type ConditioningLog struct {
	ID            string         `json:"id"`
	ActivityType  string         `json:"activity_type"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	Duration      Quantity       `json:"duration"`
	IsOverview    bool           `json:"is_overview"`
	Deleted       bool           `json:"deleted,omitempty"`
	Laps          []Lap          `json:"laps,omitempty"`
	SensorSamples []SensorSample `json:"sensor_samples,omitempty"`
}

// Clone returns a deep copy of the log.
func (l *ConditioningLog) Clone() *ConditioningLog {
	if l == nil {
		return nil
	}
	out := *l
	if l.StartedAt != nil {
		t := *l.StartedAt
		out.StartedAt = &t
	}
	if l.EndedAt != nil {
		t := *l.EndedAt
		out.EndedAt = &t
	}
	if l.Laps != nil {
		out.Laps = make([]Lap, len(l.Laps))
		copy(out.Laps, l.Laps)
	}
	if l.SensorSamples != nil {
		out.SensorSamples = make([]SensorSample, len(l.SensorSamples))
		copy(out.SensorSamples, l.SensorSamples)
	}
	return &out
}

// ConditioningLogPatch is a partial update applied to a stored log. Nil
// fields are left untouched.
type ConditioningLogPatch struct {
	ID           string     `json:"id"`
	ActivityType *string    `json:"activity_type,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Duration     *Quantity  `json:"duration,omitempty"`
	Laps         *[]Lap     `json:"laps,omitempty"`
}
