package reco

import "errors"

// ImageCleaner produces a boolean cleaning mask over an image given the
// camera's pixel geometry.
type ImageCleaner interface {
	Clean(geometry *PixelGeometry, image []float64) []bool
}

// TailcutsCleaner is a two-threshold, neighbor-aware cleaning algorithm.
type TailcutsCleaner struct {
	PictureThresh            float64
	BoundaryThresh           float64
	KeepIsolatedPixels       bool
	MinNumberPictureNeighbors int
}

// DefaultTailcutsConfig mirrors the original's TailcutsCleaner default
// configuration.
func DefaultTailcutsConfig() TailcutsCleaner {
	return TailcutsCleaner{
		PictureThresh:             10,
		BoundaryThresh:            5,
		KeepIsolatedPixels:        false,
		MinNumberPictureNeighbors: 2,
	}
}

// Clean implements ImageCleaner using the tailcuts algorithm described in
// §4.5: a picture mask built from a picture threshold with a minimum
// neighbor count, widened to a boundary mask wherever a boundary-threshold
// pixel touches a picture pixel.
func (t TailcutsCleaner) Clean(geometry *PixelGeometry, image []float64) []bool {
	n := len(image)
	abovePic := make([]bool, n)
	for i, v := range image {
		abovePic[i] = v >= t.PictureThresh
	}

	var inPic []bool
	if t.KeepIsolatedPixels || t.MinNumberPictureNeighbors == 0 {
		inPic = abovePic
	} else {
		neighCount := geometry.NeighborMatrixProduct(abovePic)
		inPic = make([]bool, n)
		for i := range inPic {
			inPic[i] = abovePic[i] && neighCount[i] >= t.MinNumberPictureNeighbors
		}
	}

	aboveBnd := make([]bool, n)
	for i, v := range image {
		aboveBnd[i] = v >= t.BoundaryThresh
	}

	hasPicNeighbor := make([]bool, n)
	for i, c := range geometry.NeighborMatrixProduct(inPic) {
		hasPicNeighbor[i] = c > 0
	}

	mask := make([]bool, n)
	if t.KeepIsolatedPixels {
		for i := range mask {
			mask[i] = (aboveBnd[i] && hasPicNeighbor[i]) || inPic[i]
		}
	} else {
		hasBndNeighbor := make([]bool, n)
		for i, c := range geometry.NeighborMatrixProduct(aboveBnd) {
			hasBndNeighbor[i] = c > 0
		}
		for i := range mask {
			mask[i] = (aboveBnd[i] && hasPicNeighbor[i]) || (inPic[i] && hasBndNeighbor[i])
		}
	}

	return mask
}

// NewImageCleaner is the factory + variant dispatch for the image cleaner,
// selected by the image_cleaner_type configuration tag.
func NewImageCleaner(kind string, tailcuts TailcutsCleaner) (ImageCleaner, error) {
	switch kind {
	case "Tailcuts_cleaner", "":
		return tailcuts, nil
	default:
		return nil, errors.Join(ErrInvalidConfig, errors.New("unknown image_cleaner_type: "+kind))
	}
}
