package reco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailcutsCleaner_Clean(t *testing.T) {
	g := square3x3(t)
	cleaner := TailcutsCleaner{
		PictureThresh:             10,
		BoundaryThresh:            5,
		MinNumberPictureNeighbors: 1,
	}

	// center pixel well above picture threshold with one picture neighbor
	// below it, one orthogonal neighbor above boundary threshold only,
	// everything else dark.
	image := make([]float64, 9)
	image[4] = 20 // center: picture
	image[7] = 20 // orthogonal neighbor of center: picture
	image[1] = 6  // orthogonal neighbor of center: boundary only

	mask := cleaner.Clean(g, image)
	assert.True(t, mask[4], "picture pixel with enough picture neighbors must survive")
	assert.True(t, mask[1], "boundary pixel touching a picture pixel must survive")
	assert.False(t, mask[0], "isolated dark pixel must not survive")
}

func TestTailcutsCleaner_MinNeighborsRejectsIsolatedPicturePixel(t *testing.T) {
	g := square3x3(t)
	cleaner := TailcutsCleaner{
		PictureThresh:             10,
		BoundaryThresh:            5,
		MinNumberPictureNeighbors: 2,
	}

	image := make([]float64, 9)
	image[4] = 20 // above picture threshold but has zero picture neighbors

	mask := cleaner.Clean(g, image)
	assert.False(t, mask[4], "a lone picture pixel with fewer than MinNumberPictureNeighbors must not survive")
}

func TestNewImageCleaner(t *testing.T) {
	tailcuts := DefaultTailcutsConfig()

	c, err := NewImageCleaner("Tailcuts_cleaner", tailcuts)
	require.NoError(t, err)
	assert.Equal(t, tailcuts, c)

	c, err = NewImageCleaner("", tailcuts)
	require.NoError(t, err)
	assert.Equal(t, tailcuts, c)

	_, err = NewImageCleaner("Unknown", tailcuts)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
