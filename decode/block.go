package decode

import (
	"encoding/binary"
	"errors"
	"io"
)

// syncTagBE and syncTagLE are the two byte orderings of the 4-byte block
// synchronization tag. A stream is assumed to use one ordering
// consistently once the first header has been matched.
var (
	syncTagBE = [4]byte{0xD4, 0x1F, 0x8A, 0x37}
	syncTagLE = [4]byte{0x37, 0x8A, 0x1F, 0xD4}
)

// BlockHeader is the 16-byte header preceding every block payload: the
// sync tag itself is consumed during matching and is not retained here.
type BlockHeader struct {
	Kind       BlockKind
	Identifier uint32
	Length     uint32
	ByteOrder  binary.ByteOrder
}

// ReadBlockHeader reads the next block header from stream. If the next four
// bytes are not a valid sync tag, it byte-walks forward until four
// consecutive bytes match one of the two tag orderings, returning the
// number of bytes skipped to recover. Returns ErrEndOfStream at a clean
// end of input, ErrCorruptBlock if a tag is found but the remaining 12
// header bytes cannot be read in full.
func ReadBlockHeader(stream Stream) (BlockHeader, int, error) {
	var window [4]byte
	if _, err := io.ReadFull(stream, window[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return BlockHeader{}, 0, ErrEndOfStream
		}
		return BlockHeader{}, 0, errors.Join(ErrCorruptBlock, err)
	}

	skipped := 0
	one := make([]byte, 1)
	for window != syncTagBE && window != syncTagLE {
		window[0], window[1], window[2] = window[1], window[2], window[3]
		n, err := stream.Read(one)
		if n == 0 || err != nil {
			if errors.Is(err, io.EOF) {
				return BlockHeader{}, 0, ErrEndOfStream
			}
			return BlockHeader{}, 0, errors.Join(ErrCorruptBlock, err)
		}
		window[3] = one[0]
		skipped++
	}

	order := binary.ByteOrder(binary.BigEndian)
	if window == syncTagLE {
		order = binary.LittleEndian
	}

	var rest [12]byte
	if _, err := io.ReadFull(stream, rest[:]); err != nil {
		return BlockHeader{}, skipped, errors.Join(ErrCorruptBlock, err)
	}

	return BlockHeader{
		Kind:       BlockKind(order.Uint32(rest[0:4])),
		Identifier: order.Uint32(rest[4:8]),
		Length:     order.Uint32(rest[8:12]),
		ByteOrder:  order,
	}, skipped, nil
}

// ReadBlockPayload reads exactly hdr.Length bytes following a header just
// returned by ReadBlockHeader.
func ReadBlockPayload(stream Stream, hdr BlockHeader) ([]byte, error) {
	buf := make([]byte, hdr.Length)
	if _, err := io.ReadFull(stream, buf); err != nil {
		return nil, errors.Join(ErrCorruptBlock, err)
	}
	return buf, nil
}

// SkipBlockPayload advances stream past hdr.Length bytes without decoding
// them, used for block kinds with no registered handler.
func SkipBlockPayload(stream Stream, hdr BlockHeader) error {
	if _, err := stream.Seek(int64(hdr.Length), io.SeekCurrent); err != nil {
		return errors.Join(ErrCorruptBlock, err)
	}
	return nil
}
