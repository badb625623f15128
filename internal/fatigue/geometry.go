// Package fatigue turns per-frame eye landmarks into blink counts, gaze dwell
// intervals and a periodic eye health score.
package fatigue

import "math"

// Point is a 2D landmark position.
type Point struct {
	X, Y float64
}

// Scale returns the point with both axes multiplied by the given factors.
func (p Point) Scale(sx, sy float64) Point {
	return Point{X: p.X * sx, Y: p.Y * sy}
}

// Distance returns the Euclidean distance between two points.
func Distance(p1, p2 Point) float64 {
	return math.Hypot(p2.X-p1.X, p2.Y-p1.Y)
}

// EyeAspectRatio computes the EAR of one eye contour.
//
// Points are ordered outer corner, two upper-lid points, inner corner, two
// lower-lid points: pairs (1,5) and (2,4) span the lid vertically and (0,3)
// spans the eye horizontally. A zero horizontal span yields Inf or NaN, so
// callers check HorizontalSpanDegenerate first.
func EyeAspectRatio(eye [6]Point) float64 {
	a := Distance(eye[1], eye[5])
	b := Distance(eye[2], eye[4])
	c := Distance(eye[0], eye[3])
	return (a + b) / (2.0 * c)
}

// HorizontalSpanDegenerate reports whether both eye corners coincide.
func HorizontalSpanDegenerate(eye [6]Point) bool {
	return Distance(eye[0], eye[3]) == 0
}
