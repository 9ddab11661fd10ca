package reco

import (
	"errors"
	"math"
)

// Axis maps a continuous value to a bin index, with dedicated underflow and
// overflow slots at index -1 and NumBins() respectively.
type Axis interface {
	NumBins() int
	BinOf(value float64) int // -1 for underflow, NumBins() for overflow
	Equal(other Axis) bool
}

// RegularAxis is a fixed-width linear binning between Low and High.
type RegularAxis struct {
	Bins     int
	Low, High float64
}

// NumBins implements Axis.
func (a RegularAxis) NumBins() int { return a.Bins }

// BinOf implements Axis.
func (a RegularAxis) BinOf(value float64) int {
	if value < a.Low {
		return -1
	}
	if value >= a.High {
		return a.Bins
	}
	width := (a.High - a.Low) / float64(a.Bins)
	idx := int((value - a.Low) / width)
	if idx >= a.Bins {
		idx = a.Bins - 1
	}
	return idx
}

// Equal implements Axis.
func (a RegularAxis) Equal(other Axis) bool {
	o, ok := other.(RegularAxis)
	return ok && o.Bins == a.Bins && o.Low == a.Low && o.High == a.High
}

// LogAxis is a fixed-width binning in log10 space between Low and High,
// both of which must be positive.
type LogAxis struct {
	Bins      int
	Low, High float64
}

// NumBins implements Axis.
func (a LogAxis) NumBins() int { return a.Bins }

// BinOf implements Axis.
func (a LogAxis) BinOf(value float64) int {
	if value <= 0 || value < a.Low {
		return -1
	}
	if value >= a.High {
		return a.Bins
	}
	logLow, logHigh := math.Log10(a.Low), math.Log10(a.High)
	width := (logHigh - logLow) / float64(a.Bins)
	idx := int((math.Log10(value) - logLow) / width)
	if idx >= a.Bins {
		idx = a.Bins - 1
	}
	return idx
}

// Equal implements Axis.
func (a LogAxis) Equal(other Axis) bool {
	o, ok := other.(LogAxis)
	return ok && o.Bins == a.Bins && o.Low == a.Low && o.High == a.High
}

// IrregularAxis bins by an explicit, ascending list of edges: edges[0] is
// the lower bound of bin 0, edges[len(edges)-1] is the upper bound of the
// last bin.
type IrregularAxis struct {
	Edges []float64
}

// NumBins implements Axis.
func (a IrregularAxis) NumBins() int { return len(a.Edges) - 1 }

// BinOf implements Axis.
func (a IrregularAxis) BinOf(value float64) int {
	n := len(a.Edges)
	if n < 2 {
		return -1
	}
	if value < a.Edges[0] {
		return -1
	}
	if value >= a.Edges[n-1] {
		return n - 1
	}
	for i := 0; i < n-1; i++ {
		if value >= a.Edges[i] && value < a.Edges[i+1] {
			return i
		}
	}
	return n - 1
}

// Equal implements Axis.
func (a IrregularAxis) Equal(other Axis) bool {
	o, ok := other.(IrregularAxis)
	if !ok || len(o.Edges) != len(a.Edges) {
		return false
	}
	for i := range a.Edges {
		if a.Edges[i] != o.Edges[i] {
			return false
		}
	}
	return true
}

// Histogram1D is a one-dimensional histogram over a single Axis, with
// dedicated underflow/overflow counters.
type Histogram1D struct {
	Axis      Axis
	Counts    []float64
	Underflow float64
	Overflow  float64
}

// NewHistogram1D allocates an empty histogram over axis.
func NewHistogram1D(axis Axis) *Histogram1D {
	return &Histogram1D{Axis: axis, Counts: make([]float64, axis.NumBins())}
}

// Fill increments the bin containing value by weight.
func (h *Histogram1D) Fill(value, weight float64) {
	bin := h.Axis.BinOf(value)
	switch {
	case bin < 0:
		h.Underflow += weight
	case bin >= len(h.Counts):
		h.Overflow += weight
	default:
		h.Counts[bin] += weight
	}
}

// Merge adds other's counts into h in place, requiring identical binning.
func (h *Histogram1D) Merge(other *Histogram1D) error {
	if !h.Axis.Equal(other.Axis) {
		return ErrHistogramBinMismatch
	}
	for i := range h.Counts {
		h.Counts[i] += other.Counts[i]
	}
	h.Underflow += other.Underflow
	h.Overflow += other.Overflow
	return nil
}

// Sum returns the total weight recorded, including underflow and overflow.
func (h *Histogram1D) Sum() float64 {
	total := h.Underflow + h.Overflow
	for _, c := range h.Counts {
		total += c
	}
	return total
}

// Histogram2D is a two-dimensional histogram over an (X, Y) axis pair, with
// edge-of-range events accumulated into a single combined Overflow counter
// rather than a full 3x3 ring: fills out of range on x only, on y only, or
// on both axes, and underflow versus overflow, are not distinguished.
type Histogram2D struct {
	XAxis, YAxis Axis
	Counts       [][]float64 // [xbin][ybin]
	Overflow     float64
}

// NewHistogram2D allocates an empty 2D histogram.
func NewHistogram2D(xAxis, yAxis Axis) *Histogram2D {
	counts := make([][]float64, xAxis.NumBins())
	for i := range counts {
		counts[i] = make([]float64, yAxis.NumBins())
	}
	return &Histogram2D{XAxis: xAxis, YAxis: yAxis, Counts: counts}
}

// Fill increments the (x, y) bin by weight, or the overflow counter if
// either coordinate falls outside its axis range.
func (h *Histogram2D) Fill(x, y, weight float64) {
	xb := h.XAxis.BinOf(x)
	yb := h.YAxis.BinOf(y)
	if xb < 0 || xb >= len(h.Counts) || yb < 0 || yb >= len(h.Counts[0]) {
		h.Overflow += weight
		return
	}
	h.Counts[xb][yb] += weight
}

// Merge adds other's counts into h in place, requiring identical binning on
// both axes.
func (h *Histogram2D) Merge(other *Histogram2D) error {
	if !h.XAxis.Equal(other.XAxis) || !h.YAxis.Equal(other.YAxis) {
		return ErrHistogramBinMismatch
	}
	for i := range h.Counts {
		for j := range h.Counts[i] {
			h.Counts[i][j] += other.Counts[i][j]
		}
	}
	h.Overflow += other.Overflow
	return nil
}

// Statistics accumulates run-level quality counters across an event loop;
// CLI merge re-aggregates these across input files the same way Histogram
// merge re-aggregates bin counts.
type Statistics struct {
	EventsProcessed int64
	EventsRejected  int64
	Hillas          map[string]*Histogram1D // label -> intensity distribution, say
}

// NewStatistics returns an empty Statistics with its histogram map ready.
func NewStatistics() *Statistics {
	return &Statistics{Hillas: make(map[string]*Histogram1D)}
}

// Merge adds other into s in place. A label present in only one operand is
// copied across unchanged; a label present in both must share binning.
func (s *Statistics) Merge(other *Statistics) error {
	s.EventsProcessed += other.EventsProcessed
	s.EventsRejected += other.EventsRejected

	for label, h := range other.Hillas {
		existing, ok := s.Hillas[label]
		if !ok {
			s.Hillas[label] = h
			continue
		}
		if err := existing.Merge(h); err != nil {
			return errors.Join(err, errors.New("label: "+label))
		}
	}
	return nil
}
