package fatigue

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire layout of Record.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Record is the result of one analysis window.
type Record struct {
	Timestamp     time.Time
	BlinkCount    int
	MaxStableGaze float64 // seconds, rounded to 2 decimals
	HealthScore   float64 // 0..100, rounded to 1 decimal
	Status        Status

	// Component scores, kept for logging. Not serialized.
	BlinkScore float64
	GazeScore  float64
}

type recordJSON struct {
	Timestamp     string  `json:"timestamp"`
	BPM           int     `json:"bpm"`
	MaxStableGaze float64 `json:"max_stable_gaze_time"`
	HealthScore   float64 `json:"health_score"`
	Status        Status  `json:"status"`
}

// MarshalJSON writes the fixed record wire format.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Timestamp:     r.Timestamp.Format(TimestampLayout),
		BPM:           r.BlinkCount,
		MaxStableGaze: r.MaxStableGaze,
		HealthScore:   r.HealthScore,
		Status:        r.Status,
	})
}

// UnmarshalJSON reads the record wire format. Timestamps are read in local time.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var ts time.Time
	if raw.Timestamp != "" {
		parsed, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, time.Local)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", raw.Timestamp, err)
		}
		ts = parsed
	}

	*r = Record{
		Timestamp:     ts,
		BlinkCount:    raw.BPM,
		MaxStableGaze: raw.MaxStableGaze,
		HealthScore:   raw.HealthScore,
		Status:        raw.Status,
	}
	return nil
}

// Validate checks the bounds every emitted record satisfies.
func (r Record) Validate() error {
	if r.BlinkCount < 0 {
		return fmt.Errorf("bpm must be non-negative, got %d", r.BlinkCount)
	}
	if r.MaxStableGaze < 0 {
		return fmt.Errorf("max_stable_gaze_time must be non-negative, got %v", r.MaxStableGaze)
	}
	if r.HealthScore < 0 || r.HealthScore > 100 {
		return fmt.Errorf("health_score must be within [0,100], got %v", r.HealthScore)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	return nil
}
