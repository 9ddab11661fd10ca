package reco

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// islandSmallMax and islandMediumMax are the pixel-count thresholds used to
// bucket islands by size for Morphology. They are fixed package constants
// and are not exposed through the configuration.
const (
	islandSmallMax  = 3
	islandMediumMax = 10
)

// HillasParameters computes the intensity-weighted first and second moments
// of the cleaned image, i.e. the Hillas ellipse. On a degenerate (non
// positive semi-definite, or single-pixel) covariance the shape fields are
// set to NaN, per §4.5 / §7's EigenDecompFailure policy, while x, y, r,
// phi, and intensity remain valid.
func HillasParameters(geometry *PixelGeometry, image []float64, mask []bool) Hillas {
	var intensity float64
	var sumX, sumY float64
	for i, in := range mask {
		if !in {
			continue
		}
		w := image[i]
		intensity += w
		sumX += w * geometry.PixX[i]
		sumY += w * geometry.PixY[i]
	}

	h := Hillas{Intensity: intensity}
	if intensity == 0 {
		h.Psi, h.Length, h.Width = math.NaN(), math.NaN(), math.NaN()
		h.Skewness, h.Kurtosis = math.NaN(), math.NaN()
		return h
	}

	h.X = sumX / intensity
	h.Y = sumY / intensity
	h.R = math.Hypot(h.X, h.Y)
	h.Phi = math.Atan2(h.Y, h.X)

	n := 0
	var cxx, cyy, cxy float64
	for i, in := range mask {
		if !in {
			continue
		}
		w := image[i]
		dx := geometry.PixX[i] - h.X
		dy := geometry.PixY[i] - h.Y
		cxx += w * dx * dx
		cyy += w * dy * dy
		cxy += w * dx * dy
		n++
	}

	if n < 2 || intensity <= 1 {
		h.Psi, h.Length, h.Width = math.NaN(), math.NaN(), math.NaN()
		h.Skewness, h.Kurtosis = math.NaN(), math.NaN()
		return h
	}

	denom := intensity - 1
	cxx /= denom
	cyy /= denom
	cxy /= denom

	cov := mat.NewSymDense(2, []float64{cxx, cxy, cxy, cyy})
	var eig mat.EigenSym
	ok := eig.Factorize(cov, true)
	if !ok {
		h.Psi, h.Length, h.Width = math.NaN(), math.NaN(), math.NaN()
		h.Skewness, h.Kurtosis = math.NaN(), math.NaN()
		return h
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// gonum returns eigenvalues ascending; the major axis is the larger one.
	majorIdx, minorIdx := 1, 0
	if values[0] > values[1] {
		majorIdx, minorIdx = 0, 1
	}

	if values[majorIdx] < 0 || values[minorIdx] < 0 {
		h.Psi, h.Length, h.Width = math.NaN(), math.NaN(), math.NaN()
		h.Skewness, h.Kurtosis = math.NaN(), math.NaN()
		return h
	}

	h.Length = math.Sqrt(values[majorIdx])
	h.Width = math.Sqrt(values[minorIdx])

	ex, ey := vectors.At(0, majorIdx), vectors.At(1, majorIdx)
	if ex == 0 {
		h.Psi = math.Pi / 2
	} else {
		h.Psi = math.Atan2(ey, ex)
	}

	var skewSum, kurtSum float64
	cosPsi, sinPsi := math.Cos(h.Psi), math.Sin(h.Psi)
	for i, in := range mask {
		if !in {
			continue
		}
		w := image[i]
		dx := geometry.PixX[i] - h.X
		dy := geometry.PixY[i] - h.Y
		longitudinal := dx*cosPsi + dy*sinPsi
		skewSum += w * longitudinal * longitudinal * longitudinal
		kurtSum += w * longitudinal * longitudinal * longitudinal * longitudinal
	}
	if h.Length > 0 {
		h.Skewness = skewSum / (h.Length * h.Length * h.Length) / intensity
		h.Kurtosis = kurtSum / (h.Length * h.Length * h.Length * h.Length) / intensity
	} else {
		h.Skewness, h.Kurtosis = math.NaN(), math.NaN()
	}

	return h
}

// LeakageParameters measures charge and pixel-count leakage near the
// camera's physical border using border masks of width 1 and 2.
func LeakageParameters(geometry *PixelGeometry, image []float64) Leakage {
	var intensity float64
	nLit := 0
	for _, v := range image {
		intensity += v
		if v > 0 {
			nLit++
		}
	}

	border1 := geometry.BorderPixelMask(1)
	border2 := geometry.BorderPixelMask(2)

	var l Leakage
	if intensity > 0 {
		l.IntensityWidth1 = sumWhere(image, border1) / intensity
		l.IntensityWidth2 = sumWhere(image, border2) / intensity
	}
	if nLit > 0 {
		l.PixelsWidth1 = float64(countUnionLit(border1, image)) / float64(nLit)
		l.PixelsWidth2 = float64(countUnionLit(border2, image)) / float64(nLit)
	}
	return l
}

func sumWhere(values []float64, mask []bool) float64 {
	sum := 0.0
	for i, in := range mask {
		if in {
			sum += values[i]
		}
	}
	return sum
}

func countUnionLit(mask []bool, image []float64) int {
	count := 0
	for i, in := range mask {
		if in || image[i] > 0 {
			count++
		}
	}
	return count
}

// ConcentrationParameters is the fraction of total intensity contained
// within a small window around the centre of gravity, the ellipse core,
// and the single brightest pixel.
func ConcentrationParameters(geometry *PixelGeometry, image []float64, mask []bool, h Hillas) Concentration {
	intensity := h.Intensity
	if intensity == 0 {
		return Concentration{}
	}

	// "core" window: pixels within one length along the major axis of the
	// centroid, following the ellipse's natural scale.
	cosPsi, sinPsi := math.Cos(h.Psi), math.Sin(h.Psi)
	var cogSum, coreSum float64
	maxVal := 0.0
	for i, in := range mask {
		if !in {
			continue
		}
		dx := geometry.PixX[i] - h.X
		dy := geometry.PixY[i] - h.Y
		dist := math.Hypot(dx, dy)
		if dist <= geometry.pixelRadius(i) {
			cogSum += image[i]
		}
		longitudinal := dx*cosPsi + dy*sinPsi
		transverse := -dx*sinPsi + dy*cosPsi
		if !math.IsNaN(h.Length) && h.Length > 0 && math.Abs(longitudinal) <= h.Length && math.Abs(transverse) <= h.Width+geometry.pixelRadius(i) {
			coreSum += image[i]
		}
		if image[i] > maxVal {
			maxVal = image[i]
		}
	}

	return Concentration{
		Cog:   cogSum / intensity,
		Core:  coreSum / intensity,
		Pixel: maxVal / intensity,
	}
}

// pixelRadius approximates a pixel's on-camera radius from its area,
// treating it as a circle of equal area; used only to size the small
// concentration windows, so an exact hex/square footprint is unnecessary.
func (g *PixelGeometry) pixelRadius(i int) float64 {
	if i >= len(g.PixArea) {
		return 0
	}
	return math.Sqrt(g.PixArea[i] / math.Pi)
}

// MorphologyParameters counts cleaned pixels and connected components
// ("islands"), bucketing islands by size.
func MorphologyParameters(geometry *PixelGeometry, mask []bool) Morphology {
	n := len(mask)
	visited := make([]bool, n)
	var m Morphology

	for i := 0; i < n; i++ {
		if !mask[i] || visited[i] {
			continue
		}
		m.NumIslands++
		size := 0
		stack := []int{i}
		visited[i] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			m.NumPixels++
			for _, nb := range geometry.Neighbors(cur) {
				if mask[nb] && !visited[nb] {
					visited[nb] = true
					stack = append(stack, nb)
				}
			}
		}
		switch {
		case size <= islandSmallMax:
			m.NumSmall++
		case size <= islandMediumMax:
			m.NumMedium++
		default:
			m.NumLarge++
		}
	}

	return m
}

// IntensityStatistics computes the max/mean/std of the charge distribution
// over the cleaning mask.
func IntensityStatistics(image []float64, mask []bool) IntensityStats {
	var sum, sumSq, max float64
	n := 0
	for i, in := range mask {
		if !in {
			continue
		}
		v := image[i]
		sum += v
		sumSq += v * v
		if v > max {
			max = v
		}
		n++
	}
	if n == 0 {
		return IntensityStats{}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return IntensityStats{Max: max, Mean: mean, Std: math.Sqrt(variance)}
}

// ImageProcessor cleans and parametrizes DL0 images into DL1, per camera.
type ImageProcessor struct {
	Subarray *Subarray
	Cleaner  ImageCleaner
}

// NewImageProcessor constructs an ImageProcessor configured per §6's
// ImageProcessor configuration block.
func NewImageProcessor(subarray *Subarray, cleanerKind string, tailcuts TailcutsCleaner) (*ImageProcessor, error) {
	cleaner, err := NewImageCleaner(cleanerKind, tailcuts)
	if err != nil {
		return nil, err
	}
	return &ImageProcessor{Subarray: subarray, Cleaner: cleaner}, nil
}

// Process populates DL1 for every telescope that has DL0 data in the event.
func (p *ImageProcessor) Process(event *ArrayEvent) {
	for telID, dl0 := range event.DL0 {
		desc, ok := p.Subarray.Descriptions[telID]
		if !ok {
			continue
		}
		geometry := desc.Camera.Geometry
		mask := p.Cleaner.Clean(geometry, dl0.Image)

		hillas := HillasParameters(geometry, dl0.Image, mask)
		leakage := LeakageParameters(geometry, dl0.Image)
		concentration := ConcentrationParameters(geometry, dl0.Image, mask, hillas)
		morphology := MorphologyParameters(geometry, mask)
		intensityStats := IntensityStatistics(dl0.Image, mask)

		event.DL1[telID] = &DL1Camera{
			Image:     dl0.Image,
			PeakTime:  dl0.PeakTime,
			CleanMask: mask,
			Parameters: ImageParameters{
				Hillas:        hillas,
				Leakage:       leakage,
				Concentration: concentration,
				Morphology:    morphology,
				Intensity:     intensityStats,
			},
		}
	}
}
