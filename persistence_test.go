package reco

import (
	"path/filepath"
	"testing"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSubarray() *Subarray {
	s := NewSubarray()
	s.Positions[1] = Cartesian{X: 0, Y: 0, Z: 0}
	s.Positions[2] = Cartesian{X: 10, Y: 0, Z: 0}
	return s
}

func TestDataWriter_OpenRejectsExistingOutputWithoutOverwrite(t *testing.T) {
	ctx, err := tiledb.NewContext(nil)
	require.NoError(t, err)

	uri := filepath.Join(t.TempDir(), "run")
	cfg := DataWriterConfig{OutputPath: uri, WriteLevels: []string{"dl0", "dl1", "dl2"}}

	w1 := NewDataWriter(ctx, cfg)
	require.NoError(t, w1.Open(testSubarray()))
	require.NoError(t, w1.Close())

	w2 := NewDataWriter(ctx, cfg)
	err = w2.Open(testSubarray())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg.OverwriteExisting = true
	w3 := NewDataWriter(ctx, cfg)
	assert.NoError(t, w3.Open(testSubarray()))
}

func TestDataWriter_WriteEventBeforeOpenIsError(t *testing.T) {
	ctx, err := tiledb.NewContext(nil)
	require.NoError(t, err)

	w := NewDataWriter(ctx, DataWriterConfig{OutputPath: filepath.Join(t.TempDir(), "run")})
	err = w.WriteEvent(NewArrayEvent(1, 1))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDataWriterReader_RoundTripsDL0AndDL1(t *testing.T) {
	ctx, err := tiledb.NewContext(nil)
	require.NoError(t, err)

	uri := filepath.Join(t.TempDir(), "run")
	cfg := DataWriterConfig{OutputPath: uri, WriteLevels: []string{"dl0", "dl1", "dl2"}}

	w := NewDataWriter(ctx, cfg)
	require.NoError(t, w.Open(testSubarray()))

	event := NewArrayEvent(101, 1)
	event.DL0[1] = &DL0Camera{Image: []float64{1, 2, 3}, PeakTime: []float64{0.1, 0.2, 0.3}}
	wantParams := ImageParameters{
		Hillas: Hillas{
			X: 0.1, Y: 0.2, R: 0.3, Phi: 0.4, Psi: 0.5,
			Length: 1.2, Width: 0.6, Intensity: 6, Skewness: 0.7, Kurtosis: 0.8,
		},
		Leakage: Leakage{
			PixelsWidth1: 2, PixelsWidth2: 4, IntensityWidth1: 0.1, IntensityWidth2: 0.2,
		},
		Concentration: Concentration{Cog: 0.3, Core: 0.4, Pixel: 0.5},
		Morphology:    Morphology{NumPixels: 30, NumIslands: 1, NumSmall: 2, NumMedium: 3, NumLarge: 4},
		Intensity:     IntensityStats{Max: 50, Mean: 10, Std: 2.5},
	}
	event.DL1[1] = &DL1Camera{
		Image:      []float64{1, 2, 3},
		PeakTime:   []float64{0.1, 0.2, 0.3},
		CleanMask:  []bool{true, true, false},
		Parameters: wantParams,
	}
	require.NoError(t, w.WriteEvent(event))
	require.NoError(t, w.Close())

	reader, err := NewDataReader(ctx, uri)
	require.NoError(t, err)
	require.Equal(t, 1, reader.NumEvents())

	got, err := reader.ReadEvent(0)
	require.NoError(t, err)
	assert.EqualValues(t, 101, got.EventID)
	require.Contains(t, got.DL0, 1)
	assert.Equal(t, []float64{1, 2, 3}, got.DL0[1].Image)
	require.Contains(t, got.DL1, 1)
	assert.Equal(t, []float64{1, 2, 3}, got.DL1[1].Image)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got.DL1[1].PeakTime)
	assert.Equal(t, []bool{true, true, false}, got.DL1[1].CleanMask)
	assert.Equal(t, wantParams, got.DL1[1].Parameters)

	_, err = reader.ReadEvent(1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestDataWriterReader_IterateVisitsEventsInOrder(t *testing.T) {
	ctx, err := tiledb.NewContext(nil)
	require.NoError(t, err)

	uri := filepath.Join(t.TempDir(), "run")
	cfg := DataWriterConfig{OutputPath: uri, WriteLevels: []string{"dl0"}}

	w := NewDataWriter(ctx, cfg)
	require.NoError(t, w.Open(testSubarray()))

	for _, id := range []int64{3, 1, 2} {
		event := NewArrayEvent(id, 1)
		event.DL0[1] = &DL0Camera{Image: []float64{float64(id)}, PeakTime: []float64{0}}
		require.NoError(t, w.WriteEvent(event))
	}
	require.NoError(t, w.Close())

	reader, err := NewDataReader(ctx, uri)
	require.NoError(t, err)

	var seen []int64
	require.NoError(t, reader.Iterate(func(e *ArrayEvent) error {
		seen = append(seen, e.EventID)
		return nil
	}))
	assert.Equal(t, []int64{1, 2, 3}, seen)
}

func TestMergeFiles_ConcatenatesEventsAndStatistics(t *testing.T) {
	ctx, err := tiledb.NewContext(nil)
	require.NoError(t, err)

	dir := t.TempDir()
	uriA := filepath.Join(dir, "a")
	uriB := filepath.Join(dir, "b")

	for i, uri := range []string{uriA, uriB} {
		cfg := DataWriterConfig{OutputPath: uri, WriteLevels: []string{"dl0"}}
		w := NewDataWriter(ctx, cfg)
		require.NoError(t, w.Open(testSubarray()))
		event := NewArrayEvent(int64(i*10+1), 1)
		event.DL0[1] = &DL0Camera{Image: []float64{1}, PeakTime: []float64{0}}
		require.NoError(t, w.WriteEvent(event))
		require.NoError(t, w.Close())
	}

	outURI := filepath.Join(dir, "merged")
	merged, err := MergeFiles(ctx, []string{uriA, uriB}, DataWriterConfig{OutputPath: outURI, WriteLevels: []string{"dl0"}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, merged.EventsProcessed)

	reader, err := NewDataReader(ctx, outURI)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.NumEvents())
}

func TestMergeFiles_NoInputsIsError(t *testing.T) {
	ctx, err := tiledb.NewContext(nil)
	require.NoError(t, err)

	_, err = MergeFiles(ctx, nil, DataWriterConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWriteAndReadArrayMetadata(t *testing.T) {
	ctx, err := tiledb.NewContext(nil)
	require.NoError(t, err)

	uri := filepath.Join(t.TempDir(), "run")
	cfg := DataWriterConfig{OutputPath: uri, WriteLevels: []string{"dl0"}}
	w := NewDataWriter(ctx, cfg)
	require.NoError(t, w.Open(testSubarray()))
	require.NoError(t, w.WriteEvent(NewArrayEvent(1, 1)))
	require.NoError(t, w.Close())

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, WriteArrayMetadata(ctx, uri+"/events/event_index", "note", payload{Name: "hello"}))

	var got payload
	require.NoError(t, ReadArrayMetadata(ctx, uri+"/events/event_index", "note", &got))
	assert.Equal(t, "hello", got.Name)
}
