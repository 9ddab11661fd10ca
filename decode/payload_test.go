package decode

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBlockCodec_RunHeader(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, int32(2))
	binary.Write(buf, binary.BigEndian, []int32{1, 2})
	binary.Write(buf, binary.BigEndian, []float32{10, 20})
	binary.Write(buf, binary.BigEndian, []float32{-10, -20})
	binary.Write(buf, binary.BigEndian, []float32{2100, 2100})
	refTime := []byte("2024/032 04:00:00")
	binary.Write(buf, binary.BigEndian, int32(len(refTime)))
	buf.Write(refTime)

	var codec DefaultBlockCodec
	rec, err := codec.DecodeRunHeader(buf.Bytes(), binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2}, rec.TelescopeIDs)
	assert.Equal(t, []float32{10, 20}, rec.PositionsX)
	assert.Equal(t, []float32{-10, -20}, rec.PositionsY)
	assert.Equal(t, []float32{2100, 2100}, rec.PositionsZ)
	assert.Equal(t, "2024/032 04:00:00", rec.ReferenceTimeUTC)
}

func TestDefaultBlockCodec_MCShower(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, float32(1.5))  // energy
	binary.Write(buf, binary.BigEndian, float32(1.1))  // alt
	binary.Write(buf, binary.BigEndian, float32(0.2))  // az
	binary.Write(buf, binary.BigEndian, float32(100))  // core x
	binary.Write(buf, binary.BigEndian, float32(-50))  // core y
	binary.Write(buf, binary.BigEndian, float32(20000)) // h_first_int
	binary.Write(buf, binary.BigEndian, float32(350))  // xmax
	binary.Write(buf, binary.BigEndian, int32(1))       // particle id (gamma)

	var codec DefaultBlockCodec
	rec, err := codec.DecodeMCShower(buf.Bytes(), binary.BigEndian)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, rec.EnergyTeV, 1e-6)
	assert.InDelta(t, 100, rec.CoreX, 1e-6)
	assert.Equal(t, int32(1), rec.ParticleID)
}

func TestDefaultBlockCodec_SimtelEvent(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, int64(42))     // event id
	binary.Write(buf, binary.BigEndian, float32(1.0))  // pointing alt
	binary.Write(buf, binary.BigEndian, float32(0.5))  // pointing az
	binary.Write(buf, binary.BigEndian, int32(1))      // n telescopes

	binary.Write(buf, binary.BigEndian, int32(3)) // tel id
	binary.Write(buf, binary.BigEndian, int32(1)) // channels
	binary.Write(buf, binary.BigEndian, int32(2)) // pixels
	binary.Write(buf, binary.BigEndian, int32(4)) // samples
	for p := 0; p < 2; p++ {
		binary.Write(buf, binary.BigEndian, []int32{10, 20, 30, 40})
	}
	binary.Write(buf, binary.BigEndian, uint8(1)) // has sum
	binary.Write(buf, binary.BigEndian, []int32{100, 100})

	var codec DefaultBlockCodec
	rec, err := codec.DecodeSimtelEvent(buf.Bytes(), binary.BigEndian)
	require.NoError(t, err)
	assert.EqualValues(t, 42, rec.EventID)
	require.Len(t, rec.Telescopes, 1)
	tw := rec.Telescopes[0]
	assert.EqualValues(t, 3, tw.TelescopeID)
	assert.Len(t, tw.Waveform, 1)
	assert.Len(t, tw.Waveform[0], 2)
	assert.Equal(t, []int32{10, 20, 30, 40}, tw.Waveform[0][0])
	assert.Equal(t, []int32{100, 100}, tw.WaveformSum)
}

func TestParseReferenceTime(t *testing.T) {
	t.Parallel()

	got, err := ParseReferenceTime("2024/032 04:30:15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.February, 1, 4, 30, 15, 0, time.UTC), got)

	_, err = ParseReferenceTime("garbage")
	assert.Error(t, err)

	zero, err := ParseReferenceTime("")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())
}
