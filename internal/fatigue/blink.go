package fatigue

// BlinkDetector counts debounced blinks from a per-frame EAR stream.
//
// A blink is registered on the closing-to-opening edge, and only after the
// EAR stayed below the threshold for at least the required number of
// consecutive frames. One sustained closure counts once.
type BlinkDetector struct {
	threshold   float64
	required    int
	consecutive int
	count       int
}

// NewBlinkDetector creates a detector. required values below 1 are raised to 1.
func NewBlinkDetector(threshold float64, required int) *BlinkDetector {
	if required < 1 {
		required = 1
	}
	return &BlinkDetector{
		threshold: threshold,
		required:  required,
	}
}

// Observe feeds one EAR value and reports whether it completed a blink.
func (b *BlinkDetector) Observe(ear float64) bool {
	if ear < b.threshold {
		b.consecutive++
		return false
	}

	blinked := b.consecutive >= b.required
	if blinked {
		b.count++
	}
	b.consecutive = 0
	return blinked
}

// Count returns blinks registered since the last ResetCount.
func (b *BlinkDetector) Count() int {
	return b.count
}

// Consecutive returns the length of the current below-threshold run.
func (b *BlinkDetector) Consecutive() int {
	return b.consecutive
}

// ResetCount zeroes the blink count. An in-progress closure survives so a
// blink straddling a window boundary is still counted in the next window.
func (b *BlinkDetector) ResetCount() {
	b.count = 0
}
