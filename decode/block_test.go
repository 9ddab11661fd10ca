package decode

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seekableBuffer adapts a bytes.Reader to the Stream interface; bytes.Reader
// already implements Read and Seek with the right signatures.
func seekableBuffer(b []byte) Stream {
	return bytes.NewReader(b)
}

func encodeHeader(order binary.ByteOrder, kind BlockKind, id, length uint32) []byte {
	buf := new(bytes.Buffer)
	buf.Write(syncTagBE[:])
	binary.Write(buf, order, uint32(kind))
	binary.Write(buf, order, id)
	binary.Write(buf, order, length)
	return buf.Bytes()
}

func TestReadBlockHeader_CleanTag(t *testing.T) {
	t.Parallel()

	raw := encodeHeader(binary.BigEndian, SimtelEvent, 7, 128)
	hdr, skipped, err := ReadBlockHeader(seekableBuffer(raw))

	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, SimtelEvent, hdr.Kind)
	assert.EqualValues(t, 7, hdr.Identifier)
	assert.EqualValues(t, 128, hdr.Length)
}

func TestReadBlockHeader_ResyncsPastGarbage(t *testing.T) {
	t.Parallel()

	garbage := []byte{0x00, 0xAB, 0xCD, 0xEF, 0x11}
	clean := encodeHeader(binary.BigEndian, MCShower, 1, 64)
	raw := append(append([]byte{}, garbage...), clean...)

	hdr, skipped, err := ReadBlockHeader(seekableBuffer(raw))

	require.NoError(t, err)
	assert.Equal(t, len(garbage), skipped)
	assert.Equal(t, MCShower, hdr.Kind)
}

func TestReadBlockHeader_LittleEndianTag(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	buf.Write(syncTagLE[:])
	binary.Write(buf, binary.LittleEndian, uint32(Atmosphere))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(4))

	hdr, skipped, err := ReadBlockHeader(seekableBuffer(buf.Bytes()))

	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, Atmosphere, hdr.Kind)
	assert.Equal(t, binary.LittleEndian, hdr.ByteOrder)
}

func TestReadBlockHeader_EndOfStream(t *testing.T) {
	t.Parallel()

	_, _, err := ReadBlockHeader(seekableBuffer(nil))
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReadBlockHeader_TruncatedAfterTag(t *testing.T) {
	t.Parallel()

	raw := append(append([]byte{}, syncTagBE[:]...), 0x01, 0x02)
	_, _, err := ReadBlockHeader(seekableBuffer(raw))
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func TestReadBlockPayload(t *testing.T) {
	t.Parallel()

	hdr := BlockHeader{Kind: History, Length: 4}
	stream := seekableBuffer([]byte{1, 2, 3, 4, 5, 6})

	payload, err := ReadBlockPayload(stream, hdr)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, payload)

	pos, _ := Tell(stream)
	assert.EqualValues(t, 4, pos)
}

func TestSkipBlockPayload(t *testing.T) {
	t.Parallel()

	hdr := BlockHeader{Length: 3}
	stream := seekableBuffer([]byte{1, 2, 3, 4, 5})

	require.NoError(t, SkipBlockPayload(stream, hdr))
	pos, _ := Tell(stream)
	assert.EqualValues(t, 3, pos)
}
