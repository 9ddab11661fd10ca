package reco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegularAxis_BinOf(t *testing.T) {
	a := RegularAxis{Bins: 4, Low: 0, High: 4}
	assert.Equal(t, -1, a.BinOf(-1))
	assert.Equal(t, 0, a.BinOf(0))
	assert.Equal(t, 1, a.BinOf(1.5))
	assert.Equal(t, 3, a.BinOf(3.9))
	assert.Equal(t, 4, a.BinOf(4))
	assert.Equal(t, 4, a.BinOf(100))
}

func TestLogAxis_BinOf(t *testing.T) {
	a := LogAxis{Bins: 2, Low: 1, High: 100}
	assert.Equal(t, -1, a.BinOf(0.5))
	assert.Equal(t, 0, a.BinOf(2))
	assert.Equal(t, 1, a.BinOf(50))
	assert.Equal(t, 2, a.BinOf(100))
}

func TestIrregularAxis_BinOf(t *testing.T) {
	a := IrregularAxis{Edges: []float64{0, 1, 10, 100}}
	assert.Equal(t, 3, a.NumBins())
	assert.Equal(t, -1, a.BinOf(-5))
	assert.Equal(t, 0, a.BinOf(0.5))
	assert.Equal(t, 1, a.BinOf(5))
	assert.Equal(t, 3, a.BinOf(100)) // upper edge is exclusive: overflow slot
}

func TestHistogram1D_FillAndMerge(t *testing.T) {
	h1 := NewHistogram1D(RegularAxis{Bins: 2, Low: 0, High: 2})
	h1.Fill(0.5, 1)
	h1.Fill(-1, 1) // underflow
	h1.Fill(5, 2)  // overflow

	h2 := NewHistogram1D(RegularAxis{Bins: 2, Low: 0, High: 2})
	h2.Fill(1.5, 3)

	require.NoError(t, h1.Merge(h2))
	assert.Equal(t, []float64{1, 3}, h1.Counts)
	assert.Equal(t, 1.0, h1.Underflow)
	assert.Equal(t, 2.0, h1.Overflow)
	assert.Equal(t, 1.0+3.0+1.0+2.0, h1.Sum())
}

func TestHistogram1D_MergeRejectsMismatchedBinning(t *testing.T) {
	h1 := NewHistogram1D(RegularAxis{Bins: 2, Low: 0, High: 2})
	h2 := NewHistogram1D(RegularAxis{Bins: 4, Low: 0, High: 2})
	assert.ErrorIs(t, h1.Merge(h2), ErrHistogramBinMismatch)
}

func TestHistogram2D_FillAndOverflow(t *testing.T) {
	h := NewHistogram2D(RegularAxis{Bins: 2, Low: 0, High: 2}, RegularAxis{Bins: 2, Low: 0, High: 2})
	h.Fill(0.5, 0.5, 1)
	h.Fill(100, 100, 5) // out of range on both axes

	assert.Equal(t, 1.0, h.Counts[0][0])
	assert.Equal(t, 5.0, h.Overflow)
}

func TestStatistics_Merge(t *testing.T) {
	s1 := NewStatistics()
	s1.EventsProcessed = 10
	s1.Hillas["mono"] = NewHistogram1D(RegularAxis{Bins: 2, Low: 0, High: 2})
	s1.Hillas["mono"].Fill(0.5, 1)

	s2 := NewStatistics()
	s2.EventsProcessed = 5
	s2.Hillas["mono"] = NewHistogram1D(RegularAxis{Bins: 2, Low: 0, High: 2})
	s2.Hillas["mono"].Fill(1.5, 2)
	s2.Hillas["stereo"] = NewHistogram1D(RegularAxis{Bins: 2, Low: 0, High: 2})

	require.NoError(t, s1.Merge(s2))
	assert.EqualValues(t, 15, s1.EventsProcessed)
	assert.Equal(t, []float64{1, 2}, s1.Hillas["mono"].Counts)
	assert.Contains(t, s1.Hillas, "stereo")
}
