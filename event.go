package reco

import "math"

// R0Camera is the per-telescope raw waveform array straight off the camera
// electronics, for up to two gain channels.
type R0Camera struct {
	Waveform     [][][]int32 `json:"waveform"` // [channel][pixel][sample], ADC counts
	WaveformSum  []int32     `json:"waveform_sum,omitempty"`
}

// R1Camera is the calibrated, single-channel waveform produced by gain
// selection plus pedestal subtraction and DC->pe scaling.
type R1Camera struct {
	Waveform      [][]float64 `json:"waveform"` // [pixel][sample]
	GainSelection []int       `json:"gain_selection"`
}

// DL0Camera is the per-pixel integrated charge and peak time.
type DL0Camera struct {
	Image     []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	PeakTime  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
}

// Hillas holds the first- and second-moment shape parameters of a cleaned
// shower image.
type Hillas struct {
	X, Y      float64
	Length    float64
	Width     float64
	Psi       float64
	Phi       float64
	R         float64
	Intensity float64
	Skewness  float64
	Kurtosis  float64
}

// Leakage measures the fraction of charge / pixel count near the camera
// edge, using border masks of width 1 and 2.
type Leakage struct {
	PixelsWidth1    float64
	PixelsWidth2    float64
	IntensityWidth1 float64
	IntensityWidth2 float64
}

// Concentration is the fraction of total intensity contained in a small
// on-axis window around three reference points.
type Concentration struct {
	Cog   float64
	Core  float64
	Pixel float64
}

// Morphology counts cleaned pixels and connected components ("islands").
type Morphology struct {
	NumPixels  int
	NumIslands int
	NumSmall   int
	NumMedium  int
	NumLarge   int
}

// IntensityStats summarises the per-pixel charge distribution inside the
// cleaning mask.
type IntensityStats struct {
	Max  float64
	Mean float64
	Std  float64
}

// ExtraParameters carries quantities computed by downstream stages that are
// still attached to the per-image parameter record.
type ExtraParameters struct {
	Miss  float64
	Disp  float64
	Theta float64
}

// ImageParameters is the full set of shape descriptors computed for one
// telescope's cleaned image.
type ImageParameters struct {
	Hillas        Hillas
	Leakage       Leakage
	Concentration Concentration
	Morphology    Morphology
	Intensity     IntensityStats
	Extra         ExtraParameters
}

// DL1Camera is DL0 data plus a cleaning mask and its parametrization.
type DL1Camera struct {
	Image      []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	PeakTime   []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	CleanMask  []bool
	Parameters ImageParameters
}

// ReconstructedGeometry is one reconstructor's stereo shower-geometry
// estimate for an event.
type ReconstructedGeometry struct {
	IsValid            bool
	Alt, Az            float64
	AltUncertainty     float64
	AzUncertainty      float64
	CoreX, CoreY       float64
	TiltedCoreX        float64
	TiltedCoreY        float64
	TiltedCoreUncertX  float64
	TiltedCoreUncertY  float64
	Hmax               float64
	DirectionError     float64
	Telescopes         []int
}

// DL2 is the per-event reconstructed shower information: one geometry per
// reconstructor, plus per-telescope impact parameters and an optional
// per-reconstructor energy estimate.
type DL2 struct {
	Geometry         map[string]ReconstructedGeometry
	ImpactParameter  map[string]map[int]float64 // reconstructor -> tel_id -> distance
	Energy           map[string]float64
}

// NewDL2 returns a DL2 record with its maps initialised.
func NewDL2() *DL2 {
	return &DL2{
		Geometry:        make(map[string]ReconstructedGeometry),
		ImpactParameter: make(map[string]map[int]float64),
		Energy:          make(map[string]float64),
	}
}

// Pointing is the per-telescope or array-level pointing direction at the
// time of an event.
type Pointing struct {
	Array      Spherical
	Telescopes map[int]Spherical
}

// Monitor carries slow-control / housekeeping information associated with
// an event (e.g. pixel or telescope status flags).
type Monitor struct {
	PixelStatus map[int][]bool // tel_id -> per-pixel usability
}

// SimulatedShower is the Monte-Carlo truth for one simulated air shower.
type SimulatedShower struct {
	EnergyTeV  float64
	Alt, Az    float64
	CoreX, CoreY float64
	HFirstInt  float64
	XMax       float64
	ParticleID int
}

// Simulation carries the Monte-Carlo truth associated with a simulated
// event, when the source is simulated rather than acquired data.
type Simulation struct {
	Shower SimulatedShower
}

// ArrayEvent is one array trigger: per-telescope data at whichever levels
// have been computed so far, plus event-wide metadata. Fields are populated
// monotonically by the pipeline stages; earlier levels are never mutated by
// later stages.
type ArrayEvent struct {
	EventID int64
	RunID   int64

	R0 map[int]*R0Camera
	R1 map[int]*R1Camera
	DL0 map[int]*DL0Camera
	DL1 map[int]*DL1Camera
	DL2 *DL2

	Pointing   *Pointing
	Monitor    *Monitor
	Simulation *Simulation
}

// NewArrayEvent returns an ArrayEvent with its per-level maps initialised
// and no levels populated.
func NewArrayEvent(eventID, runID int64) *ArrayEvent {
	return &ArrayEvent{
		EventID: eventID,
		RunID:   runID,
		R0:      make(map[int]*R0Camera),
		R1:      make(map[int]*R1Camera),
		DL0:     make(map[int]*DL0Camera),
		DL1:     make(map[int]*DL1Camera),
	}
}

// TelescopeIDs returns the sorted union of telescope ids present across all
// populated levels of the event, used when writing the per-event index.
func (e *ArrayEvent) TelescopeIDs() []int {
	seen := make(map[int]bool)
	for id := range e.R0 {
		seen[id] = true
	}
	for id := range e.R1 {
		seen[id] = true
	}
	for id := range e.DL0 {
		seen[id] = true
	}
	for id := range e.DL1 {
		seen[id] = true
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	// simple insertion sort; lists are tiny (tens of telescopes at most)
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

func isFiniteAll(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
