package reco

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// PixelShape tags the physical shape of a camera's pixels, which governs the
// neighbor-search radius multiplier used when building the neighbor graph.
type PixelShape int

const (
	PixelCircle PixelShape = iota
	PixelHexagon
	PixelSquare
)

// PixelGeometry describes the ordered sequence of pixels on a camera's focal
// plane, indexed 0..N-1 by pixel id.
type PixelGeometry struct {
	CameraName  string      `tiledb:"dtype=string,ftype=attr" filters:"zstd(level=16)"`
	PixX        []float64   `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	PixY        []float64   `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	PixArea     []float64   `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	PixShape    PixelShape  `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	CamRotation float64     `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	neighborOnce sync.Once
	neighbors    [][]int // adjacency lists, symmetric, no self-loops

	borderMu    sync.Mutex
	borderCache map[int][]bool
}

// NumPixels reports the number of pixels in the camera.
func (g *PixelGeometry) NumPixels() int { return len(g.PixX) }

// neighborRadiusAndCount returns the distance multiplier and the number of
// nearest neighbors to search for, per the pixel shape and the requested
// diagonal-neighbor behaviour for square pixels.
func neighborRadiusAndCount(shape PixelShape, diagonal bool) (radius float64, count int, err error) {
	switch shape {
	case PixelHexagon, PixelCircle:
		return 1.4, 6, nil
	case PixelSquare:
		if diagonal {
			return 1.99, 8, nil
		}
		return 1.4, 4, nil
	default:
		return 0, 0, errors.New("invalid pixel shape")
	}
}

// buildNeighbors constructs the neighbor adjacency lists via a brute-force
// k-nearest-neighbor search with a shape-dependent radius multiplier over
// the nearest-neighbor distance. Brute force is adequate here: camera pixel
// counts are in the thousands, not millions, and this runs once per camera.
func (g *PixelGeometry) buildNeighbors(diagonal bool) {
	n := g.NumPixels()
	radius, k, err := neighborRadiusAndCount(g.PixShape, diagonal)
	if err != nil {
		panic(err)
	}

	g.neighbors = make([][]int, n)
	for i := 0; i < n; i++ {
		type cand struct {
			j    int
			dist float64
		}
		cands := make([]cand, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			dx := g.PixX[i] - g.PixX[j]
			dy := g.PixY[i] - g.PixY[j]
			cands = append(cands, cand{j, dx*dx + dy*dy})
		}
		sort.Slice(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })

		kk := k
		if kk > len(cands) {
			kk = len(cands)
		}
		if kk == 0 {
			continue
		}
		minDist := cands[0].dist
		threshold := radius * radius * minDist
		nbrs := make([]int, 0, kk)
		for _, c := range cands[:kk] {
			if c.dist < threshold || c.dist == minDist {
				nbrs = append(nbrs, c.j)
			}
		}
		g.neighbors[i] = nbrs
	}

	// symmetrize: a k-NN search is not guaranteed to be mutual, so union
	// the relation with its transpose to satisfy the symmetry invariant.
	present := make([]map[int]bool, n)
	for i := range present {
		present[i] = make(map[int]bool, len(g.neighbors[i]))
		for _, j := range g.neighbors[i] {
			present[i][j] = true
		}
	}
	for i := 0; i < n; i++ {
		for j := range present[i] {
			if !present[j][i] {
				present[j][i] = true
			}
		}
	}
	for i := 0; i < n; i++ {
		nbrs := make([]int, 0, len(present[i]))
		for j := range present[i] {
			nbrs = append(nbrs, j)
		}
		sort.Ints(nbrs)
		g.neighbors[i] = nbrs
	}
}

// Neighbors returns the adjacency list of pixel i, computing (and memoizing)
// the whole-camera neighbor graph on first use.
func (g *PixelGeometry) Neighbors(i int) []int {
	g.neighborOnce.Do(func() { g.buildNeighbors(false) })
	return g.neighbors[i]
}

// NeighborMatrixProduct computes, for every pixel, the count of neighbors
// for which mask is true -- the sparse "neigh . v" product used throughout
// tailcuts cleaning.
func (g *PixelGeometry) NeighborMatrixProduct(mask []bool) []int {
	g.neighborOnce.Do(func() { g.buildNeighbors(false) })
	out := make([]int, len(mask))
	for i := range mask {
		count := 0
		for _, j := range g.neighbors[i] {
			if mask[j] {
				count++
			}
		}
		out[i] = count
	}
	return out
}

// maxDegree returns the maximum neighbor-count across all pixels.
func (g *PixelGeometry) maxDegree() int {
	g.neighborOnce.Do(func() { g.buildNeighbors(false) })
	max := 0
	for _, nbrs := range g.neighbors {
		if len(nbrs) > max {
			max = len(nbrs)
		}
	}
	return max
}

// BorderPixelMask returns, memoized per width, the boolean mask of pixels
// within `width` neighbor-hops of the camera's physical edge. Width 1 is
// the set of pixels whose degree is less than the camera's maximum degree;
// width k>1 propagates width-1 outward k-1 more hops, unioned with the
// previous mask at each step.
func (g *PixelGeometry) BorderPixelMask(width int) []bool {
	g.borderMu.Lock()
	defer g.borderMu.Unlock()

	if g.borderCache == nil {
		g.borderCache = make(map[int][]bool)
	}
	if cached, ok := g.borderCache[width]; ok {
		return cached
	}

	maxDeg := g.maxDegree()
	n := g.NumPixels()
	outermost := make([]bool, n)
	for i := 0; i < n; i++ {
		outermost[i] = len(g.neighbors[i]) < maxDeg
	}
	g.borderCache[1] = outermost

	mask := outermost
	for k := 2; k <= width; k++ {
		if cached, ok := g.borderCache[k]; ok {
			mask = cached
			continue
		}
		propagated := g.NeighborMatrixProduct(mask)
		next := make([]bool, n)
		for i := 0; i < n; i++ {
			next[i] = propagated[i] > 0 || mask[i]
		}
		g.borderCache[k] = next
		mask = next
	}

	return g.borderCache[width]
}

// CameraReadout describes the sampling electronics of a camera.
type CameraReadout struct {
	SamplingRateGHz          float64     `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	NumGainChannels          int         `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	ReferencePulseShape      [][]float64 // per-channel sampled reference pulse
	ReferencePulseSampleWidthNs float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	// PedestalPerSample and DCToPe are the per-channel, per-pixel R0->R1
	// calibration constants (pedestal baseline and DC-count-to-photoelectron
	// scale). Both are indexed [channel][pixel]; a nil or short entry is
	// treated as pedestal 0 / scale 1, so cameras without monitoring data
	// still calibrate, just as a no-op.
	PedestalPerSample [][]float64
	DCToPe            [][]float64
}

// Camera pairs a pixel geometry with its readout electronics.
type Camera struct {
	Geometry *PixelGeometry
	Readout  *CameraReadout
}

// OpticsDescription carries the optical parameters of a telescope.
type OpticsDescription struct {
	FocalLength float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	MirrorArea  float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
}

// TelescopeDescription pairs a camera with its optics.
type TelescopeDescription struct {
	Camera Camera
	Optics OpticsDescription
}

// Subarray maps telescope ids to their description and ground position, and
// is shared read-only by every processor for the duration of a run.
type Subarray struct {
	Descriptions  map[int]*TelescopeDescription
	Positions     map[int]Cartesian
	Pointing      Spherical // nominal array pointing direction, set once per run
	ReferenceTime time.Time // run reference epoch, zero if the source didn't report one
}

// NewSubarray constructs an empty Subarray ready to be populated by the
// event source as it reads telescope-configuration blocks.
func NewSubarray() *Subarray {
	return &Subarray{
		Descriptions: make(map[int]*TelescopeDescription),
		Positions:    make(map[int]Cartesian),
	}
}

// TelescopeIDs returns the sorted list of telescope ids in the subarray.
func (s *Subarray) TelescopeIDs() []int {
	ids := lo.Keys(s.Descriptions)
	sort.Ints(ids)
	return ids
}
