package fatigue

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

const (
	// blinksForFullScore saturates the blink score at 100.
	blinksForFullScore = 30.0
	// gazeSecondsForZeroScore drives the gaze score to 0.
	gazeSecondsForZeroScore = 60.0

	blinkWeight = 0.6
	gazeWeight  = 0.4

	badCeiling     = 40.0
	cautionCeiling = 70.0
)

// Status is the qualitative band of a health score.
type Status string

const (
	StatusGood    Status = "GOOD"
	StatusCaution Status = "CAUTION"
	StatusBad     Status = "BAD"
)

// Label returns a human readable label for logs and displays.
func (s Status) Label() string {
	switch s {
	case StatusGood:
		return "Good"
	case StatusCaution:
		return "Needs attention"
	case StatusBad:
		return "Very bad"
	}
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusGood || s == StatusCaution || s == StatusBad
}

// BlinkScore maps blinks per window linearly to 0..100, saturating at 30.
//
// The count is per analysis window. It is only "per minute" when the window
// is 60 seconds; no rescaling is applied for other periods.
func BlinkScore(bpm int) float64 {
	score := float64(bpm) / blinksForFullScore * 100
	if score > 100 {
		score = 100
	}
	return score
}

// GazeScore maps the longest unbroken gaze (seconds) to 100..0, reaching 0
// at 60 seconds.
func GazeScore(maxStableGaze float64) float64 {
	score := (1 - maxStableGaze/gazeSecondsForZeroScore) * 100
	if score < 0 {
		score = 0
	}
	return score
}

// HealthScore weights the blink and gaze scores 60/40.
func HealthScore(blinkScore, gazeScore float64) float64 {
	return blinkScore*blinkWeight + gazeScore*gazeWeight
}

// ClassifyStatus bands a health score. Exactly 40 is BAD and exactly 70 is
// CAUTION: promotion to the next band needs a strictly greater score.
func ClassifyStatus(health float64) Status {
	if health > cautionCeiling {
		return StatusGood
	}
	if health > badCeiling {
		return StatusCaution
	}
	return StatusBad
}

// MaxDwell returns the longest interval, or 0 for none.
func MaxDwell(dwell []float64) float64 {
	if len(dwell) == 0 {
		return 0
	}
	return floats.Max(dwell)
}

// Evaluate scores one closed analysis window.
func Evaluate(bpm int, dwell []float64, at time.Time) Record {
	maxGaze := MaxDwell(dwell)
	blinkScore := BlinkScore(bpm)
	gazeScore := GazeScore(maxGaze)
	health := HealthScore(blinkScore, gazeScore)

	return Record{
		Timestamp:     at,
		BlinkCount:    bpm,
		MaxStableGaze: scalar.RoundEven(maxGaze, 2),
		HealthScore:   scalar.RoundEven(health, 1),
		Status:        ClassifyStatus(health),
		BlinkScore:    blinkScore,
		GazeScore:     gazeScore,
	}
}
