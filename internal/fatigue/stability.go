package fatigue

import "time"

// StabilityTracker records how long each gaze state is held.
//
// Every state change closes a dwell interval (in seconds) for the previous
// state. Intervals belong to the current analysis window and are cleared by
// Reset; the current state carries over.
type StabilityTracker struct {
	current GazeState
	start   time.Time
	dwell   []float64
}

// NewStabilityTracker starts tracking in CENTER at now.
func NewStabilityTracker(now time.Time) *StabilityTracker {
	return &StabilityTracker{
		current: GazeCenter,
		start:   now,
	}
}

// Observe records a newly classified state at now.
func (t *StabilityTracker) Observe(state GazeState, now time.Time) {
	if state == "" || state == t.current {
		return
	}
	t.dwell = append(t.dwell, elapsedSeconds(t.start, now))
	t.start = now
	t.current = state
}

// Flush closes the open interval at now and returns a copy of all intervals
// recorded in the window, in order.
func (t *StabilityTracker) Flush(now time.Time) []float64 {
	t.dwell = append(t.dwell, elapsedSeconds(t.start, now))
	t.start = now

	out := make([]float64, len(t.dwell))
	copy(out, t.dwell)
	return out
}

// Reset clears the window's intervals and re-anchors the open interval at now.
func (t *StabilityTracker) Reset(now time.Time) {
	t.dwell = nil
	t.start = now
}

// Current returns the gaze state being held.
func (t *StabilityTracker) Current() GazeState {
	return t.current
}

// Intervals returns a copy of the closed intervals of the current window.
func (t *StabilityTracker) Intervals() []float64 {
	out := make([]float64, len(t.dwell))
	copy(out, t.dwell)
	return out
}

func elapsedSeconds(from, to time.Time) float64 {
	d := to.Sub(from).Seconds()
	if d < 0 {
		return 0
	}
	return d
}
