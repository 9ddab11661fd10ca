package reco

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowerProcessor_Process_FewerThanTwoTelescopesIsInvalid(t *testing.T) {
	subarray := NewSubarray()
	subarray.Positions[1] = Cartesian{X: 0, Y: 0, Z: 0}
	subarray.Pointing = Spherical{Alt: math.Pi / 2, Az: 0}

	p := NewShowerProcessor(subarray, "hillas", nil)
	event := NewArrayEvent(1, 1)
	event.DL1[1] = &DL1Camera{Parameters: ImageParameters{Hillas: Hillas{Intensity: 10, Length: 0.1, X: 0, Y: 0}}}

	p.Process(event)

	require.Contains(t, event.DL2.Geometry, "hillas")
	assert.False(t, event.DL2.Geometry["hillas"].IsValid)
}

func TestShowerProcessor_Process_SelectorExcludesTelescopes(t *testing.T) {
	subarray := NewSubarray()
	subarray.Positions[1] = Cartesian{X: 0, Y: 0, Z: 0}
	subarray.Positions[2] = Cartesian{X: 100, Y: 0, Z: 0}
	subarray.Pointing = Spherical{Alt: math.Pi / 2, Az: 0}

	selector, err := NewQuery("hillas.intensity > 1000")
	require.NoError(t, err)

	p := NewShowerProcessor(subarray, "hillas", selector)
	event := NewArrayEvent(1, 1)
	event.DL1[1] = &DL1Camera{Parameters: ImageParameters{Hillas: Hillas{Intensity: 10, Length: 0.1}}}
	event.DL1[2] = &DL1Camera{Parameters: ImageParameters{Hillas: Hillas{Intensity: 10, Length: 0.1}}}

	p.Process(event)

	assert.False(t, event.DL2.Geometry["hillas"].IsValid)
	assert.NotContains(t, event.DL2.ImpactParameter, "hillas")
}

func TestShowerProcessor_Process_NonFiniteOrZeroLengthExcluded(t *testing.T) {
	subarray := NewSubarray()
	subarray.Positions[1] = Cartesian{X: 0, Y: 0, Z: 0}
	subarray.Positions[2] = Cartesian{X: 100, Y: 0, Z: 0}
	subarray.Pointing = Spherical{Alt: math.Pi / 2, Az: 0}

	p := NewShowerProcessor(subarray, "hillas", nil)
	event := NewArrayEvent(1, 1)
	event.DL1[1] = &DL1Camera{Parameters: ImageParameters{Hillas: Hillas{Intensity: 10, Length: math.NaN()}}}
	event.DL1[2] = &DL1Camera{Parameters: ImageParameters{Hillas: Hillas{Intensity: 10, Length: 0}}}

	p.Process(event)

	assert.False(t, event.DL2.Geometry["hillas"].IsValid)
}

func TestReconstructNominalIntersection_CrossingLinesAtKnownPoint(t *testing.T) {
	frame := NewTelescopeFrame(Spherical{Alt: math.Pi / 2, Az: 0})

	// la is the x-axis (psi=0) through the origin; lb is the vertical line
	// x=2 (psi=pi/2) through (2, 0). They cross at (2, 0).
	a := telescopeHillas{hillas: Hillas{Intensity: 10, Length: 1}, nomX: 0, nomY: 0, nomPsi: 0}
	b := telescopeHillas{hillas: Hillas{Intensity: 10, Length: 1}, nomX: 2, nomY: 0, nomPsi: math.Pi / 2}

	direction, variance, ok := reconstructNominalIntersection(frame, []telescopeHillas{a, b})
	require.True(t, ok)
	// a single pairwise hit contributes all the weight, so the mean equals
	// that single intersection point and the weighted variance is zero.
	assert.InDelta(t, 0, variance.Alt, 1e-9)
	assert.InDelta(t, 0, variance.Az, 1e-9)
	assert.InDelta(t, math.Atan(2), direction.Alt, 1e-9)
	assert.InDelta(t, 0, direction.Az, 1e-9)
}

func TestReconstructNominalIntersection_ParallelLinesFail(t *testing.T) {
	frame := NewTelescopeFrame(Spherical{Alt: math.Pi / 2, Az: 0})
	a := telescopeHillas{hillas: Hillas{Intensity: 10}, nomX: 0, nomY: 0, nomPsi: 0}
	b := telescopeHillas{hillas: Hillas{Intensity: 10}, nomX: 0, nomY: 1, nomPsi: 0}

	_, _, ok := reconstructNominalIntersection(frame, []telescopeHillas{a, b})
	assert.False(t, ok)
}

func TestReconstructTiltedIntersection_ParallelImageAxesFail(t *testing.T) {
	// both telescopes' image axes have psi 0, so their tilted-frame lines
	// share an identical direction vector and never cross.
	frame := NewTiltedGroundFrame(Spherical{Alt: 1.2, Az: 0.3})
	a := telescopeHillas{hillas: Hillas{Intensity: 10}, pos: Cartesian{X: 0, Y: 0, Z: 0}}
	b := telescopeHillas{hillas: Hillas{Intensity: 10}, pos: Cartesian{X: 120, Y: 45, Z: 0}}

	_, _, ok := reconstructTiltedIntersection(frame, []telescopeHillas{a, b}, Spherical{Alt: 1.1, Az: 0.1})
	assert.False(t, ok)
}

func TestReconstructHmax(t *testing.T) {
	usable := []telescopeHillas{{telID: 1, hillas: Hillas{Intensity: 10, R: 4}}}
	impact := map[int]float64{1: 2}
	// single telescope: hmax = d*sin(alt)/r + offset = 2*1/4 + offset.
	h := reconstructHmax(usable, impact, math.Pi/2)
	assert.InDelta(t, 0.5+hmaxEmpiricalOffsetM, h, 1e-9)

	assert.True(t, math.IsNaN(reconstructHmax(nil, nil, math.Pi/2)))

	bigUsable := []telescopeHillas{{telID: 1, hillas: Hillas{Intensity: 1, R: 1}}}
	bigImpact := map[int]float64{1: 1e12}
	assert.Equal(t, hmaxClampM, reconstructHmax(bigUsable, bigImpact, math.Pi/2))
}

func TestReconstructHmax_SkipsZeroRTelescopes(t *testing.T) {
	usable := []telescopeHillas{
		{telID: 1, hillas: Hillas{Intensity: 10, R: 0}},
		{telID: 2, hillas: Hillas{Intensity: 10, R: 4}},
	}
	impact := map[int]float64{1: 100, 2: 2}
	h := reconstructHmax(usable, impact, math.Pi/2)
	assert.InDelta(t, 0.5+hmaxEmpiricalOffsetM, h, 1e-9)
}

func TestPairWeight_ZeroWhenAxesParallel(t *testing.T) {
	a := telescopeHillas{hillas: Hillas{Intensity: 10, Width: 0.2, Length: 1}, nomPsi: 0.4}
	b := telescopeHillas{hillas: Hillas{Intensity: 10, Width: 0.2, Length: 1}, nomPsi: 0.4}
	assert.InDelta(t, 0, pairWeight(a, b), 1e-9)

	// reducedIntensity = 10*10/20 = 5, delta = 1-0.2/1 = 0.8 for each,
	// sin(0.4 - (0.4+pi/2))^2 = 1.
	c := telescopeHillas{hillas: Hillas{Intensity: 10, Width: 0.2, Length: 1}, nomPsi: 0.4 + math.Pi/2}
	assert.InDelta(t, 5*0.8*0.8, pairWeight(a, c), 1e-9)
}
