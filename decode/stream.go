// Package decode implements the block-oriented binary reader for the
// proprietary event-stream format: header synchronization, resync on
// corrupt inter-block bytes, transparent gzip/zstd/network decompression,
// and dispatch of decoded blocks into typed event records.
package decode

import (
	"bytes"
	"encoding/binary"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// Stream is the minimal surface this package needs from an underlying byte
// source: sequential reads plus seeking, so the same decode logic runs over
// a local file, an object-store handle, or an in-memory buffer.
type Stream interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// GenericStream wraps a tiledb VFS file handle, optionally slurping it into
// an in-memory buffer first. Compressed and network inputs are always
// buffered in memory since neither gzip nor the network handle supports
// efficient random seeks; plain local files are passed through.
func GenericStream(handle *tiledb.VFSfh, size uint64, inMemory bool) (Stream, error) {
	if !inMemory {
		return handle, nil
	}
	buffer := make([]byte, size)
	if err := binary.Read(handle, binary.BigEndian, &buffer); err != nil {
		return nil, err
	}
	return bytes.NewReader(buffer), nil
}

// Tell reports the current byte offset within stream.
func Tell(stream Stream) (int64, error) {
	return stream.Seek(0, 1)
}
