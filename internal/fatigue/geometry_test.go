package fatigue

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func openEye() [6]Point {
	return [6]Point{
		{X: 0, Y: 0},
		{X: 1, Y: -1},
		{X: 3, Y: -1},
		{X: 4, Y: 0},
		{X: 3, Y: 1},
		{X: 1, Y: 1},
	}
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 5.0, Distance(Point{0, 0}, Point{3, 4}))
	assert.Equal(t, 0.0, Distance(Point{2, 2}, Point{2, 2}))
	assert.Equal(t, Distance(Point{1, 7}, Point{-2, 3}), Distance(Point{-2, 3}, Point{1, 7}))
}

func TestEyeAspectRatio_Formula(t *testing.T) {
	eye := openEye()
	// vertical pairs (1,5) and (2,4) are both 2 apart, horizontal span is 4
	assert.InDelta(t, (2.0+2.0)/(2*4.0), EyeAspectRatio(eye), 1e-12)
}

func TestEyeAspectRatio_ScaleInvariant(t *testing.T) {
	eye := [6]Point{
		{X: 10.5, Y: 20.1},
		{X: 12.2, Y: 18.9},
		{X: 14.8, Y: 18.7},
		{X: 17.0, Y: 20.3},
		{X: 14.6, Y: 21.4},
		{X: 12.1, Y: 21.2},
	}
	base := EyeAspectRatio(eye)

	for _, k := range []float64{0.001, 0.5, 2, 640, 1e6} {
		var scaled [6]Point
		for i, p := range eye {
			scaled[i] = p.Scale(k, k)
		}
		assert.InDelta(t, base, EyeAspectRatio(scaled), 1e-9, "scale %v", k)
	}
}

func TestEyeAspectRatio_Degenerate(t *testing.T) {
	eye := openEye()
	eye[3] = eye[0]

	assert.True(t, HorizontalSpanDegenerate(eye))
	ear := EyeAspectRatio(eye)
	assert.True(t, math.IsInf(ear, 1) || math.IsNaN(ear))

	assert.False(t, HorizontalSpanDegenerate(openEye()))
}
