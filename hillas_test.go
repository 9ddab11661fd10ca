package reco

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineGeometry builds 5 circular pixels spread along the x-axis at unit
// spacing, so an image symmetric about the centre produces a Hillas
// ellipse elongated purely along x (width 0, known length).
func lineGeometry() *PixelGeometry {
	return &PixelGeometry{
		PixX:     []float64{-2, -1, 0, 1, 2},
		PixY:     []float64{0, 0, 0, 0, 0},
		PixArea:  []float64{1, 1, 1, 1, 1},
		PixShape: PixelCircle,
	}
}

func TestHillasParameters_ElongatedAlongAxis(t *testing.T) {
	g := lineGeometry()
	image := []float64{1, 2, 3, 2, 1}
	mask := []bool{true, true, true, true, true}

	h := HillasParameters(g, image, mask)

	assert.InDelta(t, 9, h.Intensity, 1e-9)
	assert.InDelta(t, 0, h.X, 1e-9)
	assert.InDelta(t, 0, h.Y, 1e-9)
	require.False(t, math.IsNaN(h.Length))
	assert.InDelta(t, math.Sqrt(1.5), h.Length, 1e-9)
	assert.InDelta(t, 0, h.Width, 1e-9)
	// the major axis lies along x, so psi is 0 or pi depending on the
	// eigenvector's arbitrary sign.
	assert.True(t, math.Abs(h.Psi) < 1e-6 || math.Abs(math.Abs(h.Psi)-math.Pi) < 1e-6)
}

func TestHillasParameters_ZeroIntensityIsNaN(t *testing.T) {
	g := lineGeometry()
	image := []float64{0, 0, 0, 0, 0}
	mask := []bool{false, false, false, false, false}

	h := HillasParameters(g, image, mask)
	assert.Equal(t, 0.0, h.Intensity)
	assert.True(t, math.IsNaN(h.Length))
	assert.True(t, math.IsNaN(h.Width))
	assert.True(t, math.IsNaN(h.Psi))
}

func TestHillasParameters_SinglePixelIsNaN(t *testing.T) {
	g := lineGeometry()
	image := []float64{0, 0, 5, 0, 0}
	mask := []bool{false, false, true, false, false}

	h := HillasParameters(g, image, mask)
	assert.InDelta(t, 5, h.Intensity, 1e-9)
	assert.True(t, math.IsNaN(h.Length))
	assert.True(t, math.IsNaN(h.Width))
}

func TestIntensityStatistics(t *testing.T) {
	image := []float64{1, 2, 3, 4}
	mask := []bool{true, true, true, false}

	stats := IntensityStatistics(image, mask)
	assert.InDelta(t, 3, stats.Max, 1e-9)
	assert.InDelta(t, 2, stats.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(2.0/3.0), stats.Std, 1e-9)
}

func TestMorphologyParameters_CountsIslands(t *testing.T) {
	g := square3x3(t)
	// two disconnected single pixels: corner 0, and the far corner 8.
	mask := make([]bool, 9)
	mask[0] = true
	mask[8] = true

	m := MorphologyParameters(g, mask)
	assert.Equal(t, 2, m.NumIslands)
	assert.Equal(t, 2, m.NumPixels)
	assert.Equal(t, 2, m.NumSmall)
}

func TestLeakageParameters_AllBorderMeansFullLeakage(t *testing.T) {
	g := square3x3(t)
	image := make([]float64, 9)
	image[0] = 10 // a corner pixel: always border at width 1

	l := LeakageParameters(g, image)
	assert.InDelta(t, 1.0, l.IntensityWidth1, 1e-9)
	// pixels_width_1 counts border OR lit pixels (the 8 border pixels, which
	// include the lit corner) over the 1 lit pixel.
	assert.InDelta(t, 8.0, l.PixelsWidth1, 1e-9)
}
