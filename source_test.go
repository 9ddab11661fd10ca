package reco

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telarray/reco/decode"
)

var syncTag = [4]byte{0xD4, 0x1F, 0x8A, 0x37}

func writeRawBlock(buf *bytes.Buffer, kind decode.BlockKind, payload []byte) {
	buf.Write(syncTag[:])
	binary.Write(buf, binary.BigEndian, uint32(kind))
	binary.Write(buf, binary.BigEndian, uint32(0))
	binary.Write(buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)
}

func buildSourceFixture(t *testing.T) string {
	t.Helper()

	runHeader := new(bytes.Buffer)
	binary.Write(runHeader, binary.BigEndian, int32(1))
	binary.Write(runHeader, binary.BigEndian, []int32{5})
	zero := make([]float32, 1)
	binary.Write(runHeader, binary.BigEndian, zero)
	binary.Write(runHeader, binary.BigEndian, zero)
	binary.Write(runHeader, binary.BigEndian, zero)
	refTime := []byte("2024/032 04:00:00")
	binary.Write(runHeader, binary.BigEndian, int32(len(refTime)))
	runHeader.Write(refTime)

	camera := new(bytes.Buffer)
	binary.Write(camera, binary.BigEndian, int32(5)) // tel id
	binary.Write(camera, binary.BigEndian, int32(3)) // pixels
	three := make([]float32, 3)
	binary.Write(camera, binary.BigEndian, three)
	binary.Write(camera, binary.BigEndian, three)
	binary.Write(camera, binary.BigEndian, three)
	binary.Write(camera, binary.BigEndian, int32(0))
	binary.Write(camera, binary.BigEndian, float32(0))
	binary.Write(camera, binary.BigEndian, float32(28))
	binary.Write(camera, binary.BigEndian, float32(113))
	binary.Write(camera, binary.BigEndian, float32(1))
	binary.Write(camera, binary.BigEndian, int32(1))
	binary.Write(camera, binary.BigEndian, float32(1))
	binary.Write(camera, binary.BigEndian, int32(0))

	event := new(bytes.Buffer)
	binary.Write(event, binary.BigEndian, int64(9))
	binary.Write(event, binary.BigEndian, float32(1.2))
	binary.Write(event, binary.BigEndian, float32(0.1))
	binary.Write(event, binary.BigEndian, int32(1))
	binary.Write(event, binary.BigEndian, int32(5))
	binary.Write(event, binary.BigEndian, int32(1))
	binary.Write(event, binary.BigEndian, int32(3))
	binary.Write(event, binary.BigEndian, int32(1))
	binary.Write(event, binary.BigEndian, []int32{42})
	binary.Write(event, binary.BigEndian, []int32{7})
	binary.Write(event, binary.BigEndian, []int32{3})
	binary.Write(event, binary.BigEndian, uint8(0))

	buf := new(bytes.Buffer)
	writeRawBlock(buf, decode.RunHeader, runHeader.Bytes())
	writeRawBlock(buf, decode.Atmosphere, []byte{0, 0, 0, 0})
	writeRawBlock(buf, decode.CameraSettings, camera.Bytes())
	writeRawBlock(buf, decode.SimtelEvent, event.Bytes())

	dir := t.TempDir()
	path := filepath.Join(dir, "run.raw")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestNewArraySource_BuildsSubarrayAndFirstEvent(t *testing.T) {
	ctx, err := tiledb.NewContext(nil)
	require.NoError(t, err)
	defer ctx.Free()

	path := buildSourceFixture(t)

	src, err := NewArraySource(ctx, path, EventSourceConfig{MaxEvents: 0})
	require.NoError(t, err)
	defer src.Close()

	require.Contains(t, src.Subarray.Descriptions, 5)
	desc := src.Subarray.Descriptions[5]
	assert.Equal(t, 3, desc.Camera.Geometry.NumPixels())
	assert.InDelta(t, 28, desc.Optics.FocalLength, 1e-9)
	assert.Equal(t, time.Date(2024, time.February, 1, 4, 0, 0, 0, time.UTC), src.Subarray.ReferenceTime)

	event, err := src.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 9, event.EventID)
	require.Contains(t, event.R0, 5)
	assert.Equal(t, [][][]int32{{{42}, {7}, {3}}}, event.R0[5].Waveform)

	_, err = src.Next()
	assert.ErrorIs(t, err, ErrEndOfStream)
}
