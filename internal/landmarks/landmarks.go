// Package landmarks maps a face-mesh landmark set onto the eye geometry the
// fatigue engine consumes.
package landmarks

import (
	"errors"
	"fmt"

	"onnoon-care/eye-monitor/internal/fatigue"
)

// ErrShortLandmarks is returned when a landmark set does not cover the indices.
var ErrShortLandmarks = errors.New("landmark set too short")

// Indices selects the mesh points used for each part of an observation.
type Indices struct {
	LeftEye  [6]int
	RightEye [6]int

	// Tracked eye for gaze: horizontal corners and iris center.
	GazeLeftCorner  int
	GazeRightCorner int
	Iris            int
}

// MediaPipeIndices returns the indices of the 478-point MediaPipe face mesh
// (refined landmarks, iris centers at 468 and 473).
func MediaPipeIndices() Indices {
	return Indices{
		LeftEye:         [6]int{33, 160, 158, 133, 153, 144},
		RightEye:        [6]int{362, 385, 387, 263, 373, 380},
		GazeLeftCorner:  33,
		GazeRightCorner: 133,
		Iris:            468,
	}
}

// Max returns the highest index referenced.
func (idx Indices) Max() int {
	m := idx.Iris
	for _, i := range append(idx.LeftEye[:], idx.RightEye[:]...) {
		if i > m {
			m = i
		}
	}
	if idx.GazeLeftCorner > m {
		m = idx.GazeLeftCorner
	}
	if idx.GazeRightCorner > m {
		m = idx.GazeRightCorner
	}
	return m
}

// Extract builds an observation from normalized landmarks.
//
// Points are scaled by the frame size so both eyes' EAR are measured in
// pixel space. A non-positive width or height keeps normalized units.
// Every point of the observation is in the same space.
func Extract(points []fatigue.Point, width, height float64, idx Indices) (*fatigue.FrameObservation, error) {
	if len(points) <= idx.Max() {
		return nil, fmt.Errorf("%w: got %d points, need %d", ErrShortLandmarks, len(points), idx.Max()+1)
	}
	if width <= 0 || height <= 0 {
		width, height = 1, 1
	}

	at := func(i int) fatigue.Point {
		return points[i].Scale(width, height)
	}

	obs := &fatigue.FrameObservation{
		LeftCorner:  at(idx.GazeLeftCorner),
		RightCorner: at(idx.GazeRightCorner),
		Iris:        at(idx.Iris),
	}
	for i := 0; i < 6; i++ {
		obs.LeftEye[i] = at(idx.LeftEye[i])
		obs.RightEye[i] = at(idx.RightEye[i])
	}
	return obs, nil
}

// FromFlat converts [x0, y0, x1, y1, ...] into points. A trailing odd value
// is an error.
func FromFlat(coords []float64) ([]fatigue.Point, error) {
	if len(coords)%2 != 0 {
		return nil, fmt.Errorf("odd coordinate count %d", len(coords))
	}
	points := make([]fatigue.Point, len(coords)/2)
	for i := range points {
		points[i] = fatigue.Point{X: coords[2*i], Y: coords[2*i+1]}
	}
	return points, nil
}
