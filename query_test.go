package reco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleParams() ImageParameters {
	return ImageParameters{
		Hillas:  Hillas{Intensity: 100, Length: 2, Width: 0.5},
		Leakage: Leakage{IntensityWidth1: 0.1},
	}
}

func TestQuery_SimpleComparison(t *testing.T) {
	q, err := NewQuery("hillas.intensity > 50")
	require.NoError(t, err)

	ok, err := q.Eval(sampleParams())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Eval(ImageParameters{Hillas: Hillas{Intensity: 10}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuery_BooleanCombinators(t *testing.T) {
	q, err := NewQuery("hillas.intensity > 50 && leakage.intensity_width_1 < 0.2")
	require.NoError(t, err)

	ok, err := q.Eval(sampleParams())
	require.NoError(t, err)
	assert.True(t, ok)

	q, err = NewQuery("hillas.intensity < 50 || hillas.length > 1")
	require.NoError(t, err)
	ok, err = q.Eval(sampleParams())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestQueryMap_IsConjunctionOfEveryEntry(t *testing.T) {
	q, err := NewQueryMap(map[string]string{
		"a": "hillas.intensity > 50",
		"b": "hillas.width < 0.1", // false for sampleParams (0.5)
	})
	require.NoError(t, err)

	ok, err := q.Eval(sampleParams())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewQueryMap_EmptyIsError(t *testing.T) {
	_, err := NewQueryMap(map[string]string{})
	assert.ErrorIs(t, err, ErrQueryParse)
}

func TestQueryEval_RejectsUnknownField(t *testing.T) {
	q, err := NewQuery("hillas.bogus > 1")
	require.NoError(t, err) // unknown fields are only caught at eval time
	_, err = q.Eval(sampleParams())
	assert.ErrorIs(t, err, ErrQueryParse)
}

func TestNewQuery_RejectsUnsupportedSyntax(t *testing.T) {
	_, err := NewQuery("func() {}")
	assert.ErrorIs(t, err, ErrQueryParse)
}

func TestNewQuery_RejectsStringLiteral(t *testing.T) {
	_, err := NewQuery(`hillas.intensity == "100"`)
	assert.ErrorIs(t, err, ErrQueryParse)
}
