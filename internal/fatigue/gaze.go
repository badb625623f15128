package fatigue

// GazeState is the classified horizontal gaze direction.
type GazeState string

const (
	GazeLeft   GazeState = "LEFT"
	GazeRight  GazeState = "RIGHT"
	GazeCenter GazeState = "CENTER"
)

// UnclassifiedPosition is reported when the eye width is degenerate.
const UnclassifiedPosition = 0.5

// GazeClassifier maps the iris position inside the eye to a GazeState.
//
// The thresholds are independent: the upstream landmark axis is mirrored, so
// a low relative position means RIGHT and a high one means LEFT. Values
// between ThresholdRight and ThresholdLeft are CENTER.
type GazeClassifier struct {
	ThresholdLeft  float64
	ThresholdRight float64
}

// RelativePosition returns (irisX-leftCornerX)/eyeWidth. ok is false for a
// zero-width eye, in which case UnclassifiedPosition is returned.
func (g GazeClassifier) RelativePosition(leftCornerX, rightCornerX, irisX float64) (float64, bool) {
	eyeWidth := rightCornerX - leftCornerX
	if eyeWidth == 0 {
		return UnclassifiedPosition, false
	}
	return (irisX - leftCornerX) / eyeWidth, true
}

// StateFor classifies a relative iris position.
func (g GazeClassifier) StateFor(relativePos float64) GazeState {
	switch {
	case relativePos < g.ThresholdRight:
		return GazeRight
	case relativePos > g.ThresholdLeft:
		return GazeLeft
	default:
		return GazeCenter
	}
}

// Classify combines RelativePosition and StateFor. When ok is false the
// returned state is empty and the caller keeps its current classification.
func (g GazeClassifier) Classify(leftCornerX, rightCornerX, irisX float64) (float64, GazeState, bool) {
	rel, ok := g.RelativePosition(leftCornerX, rightCornerX, irisX)
	if !ok {
		return rel, "", false
	}
	return rel, g.StateFor(rel), true
}
