package reco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square3x3 builds a 3x3 grid of unit-spaced square pixels, pixel id = row*3+col.
func square3x3(t *testing.T) *PixelGeometry {
	t.Helper()
	var x, y, area []float64
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			x = append(x, float64(col))
			y = append(y, float64(row))
			area = append(area, 1.0)
		}
	}
	return &PixelGeometry{PixX: x, PixY: y, PixArea: area, PixShape: PixelSquare}
}

func TestPixelGeometry_NeighborsSquareGrid(t *testing.T) {
	g := square3x3(t)
	require.Equal(t, 9, g.NumPixels())

	// center pixel (id 4, row1/col1) has 4 orthogonal neighbors (no diagonals).
	center := g.Neighbors(4)
	assert.ElementsMatch(t, []int{1, 3, 5, 7}, center)

	// corner pixel (id 0) has 2 neighbors.
	corner := g.Neighbors(0)
	assert.ElementsMatch(t, []int{1, 3}, corner)
}

func TestPixelGeometry_NeighborMatrixProduct(t *testing.T) {
	g := square3x3(t)
	mask := make([]bool, 9)
	mask[4] = true // only the center pixel lit

	counts := g.NeighborMatrixProduct(mask)
	// every orthogonal neighbor of the center should count it once.
	for _, i := range []int{1, 3, 5, 7} {
		assert.Equal(t, 1, counts[i], "pixel %d", i)
	}
	assert.Equal(t, 0, counts[0])
}

func TestPixelGeometry_BorderPixelMaskWidening(t *testing.T) {
	g := square3x3(t)

	width1 := g.BorderPixelMask(1)
	// the center pixel has max degree (4) so it is not border at width 1.
	assert.False(t, width1[4])
	assert.True(t, width1[0])

	width2 := g.BorderPixelMask(2)
	// widening by one hop must cover everything reachable from the border.
	assert.True(t, width2[4])
	for i := range width2 {
		if width1[i] {
			assert.True(t, width2[i], "width2 must be a superset of width1 at %d", i)
		}
	}
}

func TestSubarray_TelescopeIDsSorted(t *testing.T) {
	s := NewSubarray()
	s.Descriptions[5] = &TelescopeDescription{}
	s.Descriptions[1] = &TelescopeDescription{}
	s.Descriptions[3] = &TelescopeDescription{}

	assert.Equal(t, []int{1, 3, 5}, s.TelescopeIDs())
}
