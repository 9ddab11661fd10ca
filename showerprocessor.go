package reco

import (
	"math"
)

// hmaxEmpiricalOffsetM and hmaxClampM reproduce the reconstruction's
// empirical height-of-maximum correction and sanity clamp.
const (
	hmaxEmpiricalOffsetM = 4400.0
	hmaxClampM           = 100000.0
)

// ShowerProcessor reconstructs stereo shower geometry from the per-telescope
// Hillas parameters of an event, using the Konrad-weighted pairwise line
// intersection method.
type ShowerProcessor struct {
	Subarray *Subarray
	Selector *Query
	Name     string
}

// NewShowerProcessor builds a ShowerProcessor; selector may be nil to accept
// every telescope image unconditionally.
func NewShowerProcessor(subarray *Subarray, name string, selector *Query) *ShowerProcessor {
	return &ShowerProcessor{Subarray: subarray, Selector: selector, Name: name}
}

// telescopeHillas pairs a telescope id with its nominal-frame projected
// Hillas parameters, used internally while building a reconstruction.
type telescopeHillas struct {
	telID  int
	hillas Hillas
	pos    Cartesian
	nomX   float64
	nomY   float64
	nomPsi float64
}

// Process reconstructs event.DL2.Geometry[p.Name] (and the matching
// per-telescope impact parameters) from the telescopes in event.DL1 that
// pass the selector, have a finite Hillas fit, and have non-zero length.
func (p *ShowerProcessor) Process(event *ArrayEvent) {
	if event.DL2 == nil {
		event.DL2 = NewDL2()
	}

	pointing := p.Subarray.Pointing
	telFrame := NewTelescopeFrame(pointing)

	var usable []telescopeHillas
	for telID, dl1 := range event.DL1 {
		if dl1 == nil {
			continue
		}
		h := dl1.Parameters.Hillas
		if math.IsNaN(h.Length) || h.Length <= 0 || h.Intensity <= 0 {
			continue
		}
		if p.Selector != nil {
			ok, err := p.Selector.Eval(dl1.Parameters)
			if err != nil || !ok {
				continue
			}
		}
		pos, ok := p.Subarray.Positions[telID]
		if !ok {
			continue
		}

		var tp Spherical
		if event.Pointing != nil {
			if tdir, ok := event.Pointing.Telescopes[telID]; ok {
				tp = tdir
			} else {
				tp = event.Pointing.Array
			}
		} else {
			tp = pointing
		}
		telLocalFrame := NewTelescopeFrame(tp)
		altaz := telLocalFrame.ToAltAz(Point2D{X: h.X, Y: h.Y})
		nom := telFrame.ToTelescopeFrame(altaz)

		psi := h.Psi
		usable = append(usable, telescopeHillas{
			telID: telID, hillas: h, pos: pos,
			nomX: nom.X, nomY: nom.Y, nomPsi: psi,
		})
	}

	geom := ReconstructedGeometry{IsValid: false}
	if len(usable) < 2 {
		event.DL2.Geometry[p.Name] = geom
		return
	}

	direction, dirVar, ok := reconstructNominalIntersection(telFrame, usable)
	if !ok {
		event.DL2.Geometry[p.Name] = geom
		return
	}

	tiltedFrame := NewTiltedGroundFrame(pointing)
	coreTilted, coreVar, ok := reconstructTiltedIntersection(tiltedFrame, usable, direction)
	if !ok {
		event.DL2.Geometry[p.Name] = geom
		return
	}
	coreGround := tiltedFrame.ToGround(Cartesian{X: coreTilted.X, Y: coreTilted.Y, Z: 0})

	impact := make(map[int]float64, len(usable))
	dirCart := direction.ToCartesian()
	for _, t := range usable {
		impact[t.telID] = PointLineDistance(t.pos, coreGround, dirCart)
	}

	hmax := reconstructHmax(usable, impact, direction.Alt)

	telIDs := make([]int, 0, len(usable))
	for _, t := range usable {
		telIDs = append(telIDs, t.telID)
	}

	geom = ReconstructedGeometry{
		IsValid:           isFiniteAll(direction.Alt, direction.Az, coreGround.X, coreGround.Y, hmax),
		Alt:               direction.Alt,
		Az:                direction.Az,
		AltUncertainty:    math.Sqrt(dirVar.Alt),
		AzUncertainty:     math.Sqrt(dirVar.Az),
		CoreX:             coreGround.X,
		CoreY:             coreGround.Y,
		TiltedCoreX:       coreTilted.X,
		TiltedCoreY:       coreTilted.Y,
		TiltedCoreUncertX: math.Sqrt(coreVar.X),
		TiltedCoreUncertY: math.Sqrt(coreVar.Y),
		Hmax:              hmax,
		Telescopes:        telIDs,
	}
	event.DL2.Geometry[p.Name] = geom
	event.DL2.ImpactParameter[p.Name] = impact
}

// pairWeight is the Konrad intensity-weighted pair weight: the reduced
// intensity of the pair, scaled down by each image's elongation (width/length
// ratio) and by how far the two image axes are from crossing at a right
// angle (a poorly-conditioned intersection as they approach parallel).
func pairWeight(a, b telescopeHillas) float64 {
	sinCross := math.Abs(math.Sin(a.nomPsi - b.nomPsi))
	reducedIntensity := a.hillas.Intensity * b.hillas.Intensity / (a.hillas.Intensity + b.hillas.Intensity)
	deltaA := 1 - a.hillas.Width/a.hillas.Length
	deltaB := 1 - b.hillas.Width/b.hillas.Length
	return reducedIntensity * deltaA * deltaB * sinCross * sinCross
}

// reconstructNominalIntersection intersects every pair of telescope image
// axes in the nominal frame and returns the Konrad-weighted mean direction
// plus a variance estimate weighted by the same pair weights.
func reconstructNominalIntersection(frame TelescopeFrame, usable []telescopeHillas) (Spherical, Spherical, bool) {
	var sumW, sumX, sumY float64
	type hit struct {
		x, y, w float64
	}
	var hits []hit

	for i := 0; i < len(usable); i++ {
		for j := i + 1; j < len(usable); j++ {
			a, b := usable[i], usable[j]
			la := Line2D{Point: Point2D{a.nomX, a.nomY}, Direction: Point2D{math.Cos(a.nomPsi), math.Sin(a.nomPsi)}}
			lb := Line2D{Point: Point2D{b.nomX, b.nomY}, Direction: Point2D{math.Cos(b.nomPsi), math.Sin(b.nomPsi)}}
			pt, ok := la.Intersection(lb)
			if !ok {
				continue
			}
			w := pairWeight(a, b)
			if w == 0 {
				continue
			}
			sumW += w
			sumX += w * pt.X
			sumY += w * pt.Y
			hits = append(hits, hit{pt.X, pt.Y, w})
		}
	}
	if sumW == 0 {
		return Spherical{}, Spherical{}, false
	}

	meanX, meanY := sumX/sumW, sumY/sumW
	direction := frame.ToAltAz(Point2D{X: meanX, Y: meanY})

	var varX, varY float64
	for _, h := range hits {
		dx, dy := h.x-meanX, h.y-meanY
		varX += h.w * dx * dx
		varY += h.w * dy * dy
	}
	varX /= sumW
	varY /= sumW

	return direction, Spherical{Az: varY, Alt: varX}, true
}

// reconstructTiltedIntersection projects each telescope's ground position
// into the tilted ground frame and intersects, pairwise, the lines through
// those positions along each telescope's image axis (nomPsi, which carries
// over because both frames share the pointing rotation), Konrad-weighted as
// above. The third argument is not used.
func reconstructTiltedIntersection(frame TiltedGroundFrame, usable []telescopeHillas, _ Spherical) (Point2D, Point2D, bool) {
	type tiltedTel struct {
		tel  telescopeHillas
		line Line2D
	}
	tels := make([]tiltedTel, 0, len(usable))
	for _, t := range usable {
		pos := frame.ToTilted(t.pos)
		tels = append(tels, tiltedTel{
			tel:  t,
			line: Line2D{Point: Point2D{pos.X, pos.Y}, Direction: Point2D{math.Cos(t.nomPsi), math.Sin(t.nomPsi)}},
		})
	}

	var sumW, sumX, sumY float64
	type hit struct{ x, y, w float64 }
	var hits []hit

	for i := 0; i < len(tels); i++ {
		for j := i + 1; j < len(tels); j++ {
			a, b := tels[i], tels[j]
			pt, ok := a.line.Intersection(b.line)
			if !ok {
				continue
			}
			w := pairWeight(a.tel, b.tel)
			if w == 0 {
				continue
			}
			sumW += w
			sumX += w * pt.X
			sumY += w * pt.Y
			hits = append(hits, hit{pt.X, pt.Y, w})
		}
	}
	if sumW == 0 {
		return Point2D{}, Point2D{}, false
	}

	meanX, meanY := sumX/sumW, sumY/sumW
	var varX, varY float64
	for _, h := range hits {
		dx, dy := h.x-meanX, h.y-meanY
		varX += h.w * dx * dx
		varY += h.w * dy * dy
	}
	varX /= sumW
	varY /= sumW

	return Point2D{meanX, meanY}, Point2D{varX, varY}, true
}

// reconstructHmax estimates the shower's height of maximum as the
// intensity-weighted mean of each telescope's impact_parameter *
// sin(alt_rec) / hillas_r, following the original's empirical geometric
// correction: offset by a fixed atmospheric term and clamped to a
// physically sane ceiling.
func reconstructHmax(usable []telescopeHillas, impact map[int]float64, altRec float64) float64 {
	sinAlt := math.Sin(altRec)
	var weighted, totalWeight float64
	for _, t := range usable {
		if t.hillas.R == 0 {
			continue
		}
		w := t.hillas.Intensity
		weighted += w * impact[t.telID] * sinAlt / t.hillas.R
		totalWeight += w
	}
	if totalWeight == 0 {
		return math.NaN()
	}

	hmax := weighted/totalWeight + hmaxEmpiricalOffsetM
	if hmax > hmaxClampM {
		hmax = hmaxClampM
	}
	if hmax < 0 {
		hmax = 0
	}
	return hmax
}
