package decode

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"strings"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/klauspost/compress/zstd"
)

// OpenOptions configures how a raw event-stream path is turned into a
// Stream: the network URL prefix substituted for a leading "/eos", and the
// tiledb context/config the underlying VFS handle is opened with.
type OpenOptions struct {
	Ctx              *tiledb.Context
	NetworkURLPrefix string
}

// OpenEventStream opens uri for reading and returns a Stream with exactly
// one decompression layer applied, inferred from the file extension:
// ".gz" unwraps with gzip, ".zst"/".zstd" with zstd, anything else is read
// raw. A leading "/eos" is rewritten with opts.NetworkURLPrefix before the
// VFS open, matching the network-storage convention.
//
// Random access (Seek to an arbitrary byte offset, not just sequential
// reads) is only meaningful for the raw, uncompressed, non-network case;
// every other case is buffered fully into memory and wrapped in a
// bytes.Reader so block scanning still works, but callers should not rely
// on Seek being cheap.
func OpenEventStream(uri string, opts OpenOptions) (Stream, func() error, error) {
	resolved := uri
	if strings.HasPrefix(uri, "/eos") {
		resolved = opts.NetworkURLPrefix + strings.TrimPrefix(uri, "/eos")
	}

	config, err := opts.Ctx.Config()
	if err != nil {
		return nil, nil, err
	}
	defer config.Free()

	vfs, err := tiledb.NewVFS(opts.Ctx, config)
	if err != nil {
		return nil, nil, err
	}

	handle, err := vfs.Open(resolved, tiledb.TILEDB_VFS_READ)
	if err != nil {
		vfs.Free()
		return nil, nil, err
	}

	closeAll := func() error {
		err := handle.Close()
		vfs.Free()
		return err
	}

	switch {
	case strings.HasSuffix(uri, ".gz"):
		stream, err := bufferDecompressed(handle, func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		return stream, closeAll, nil
	case strings.HasSuffix(uri, ".zst") || strings.HasSuffix(uri, ".zstd"):
		stream, err := bufferDecompressed(handle, func(r io.Reader) (io.Reader, error) {
			return zstd.NewReader(r)
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		return stream, closeAll, nil
	case strings.HasPrefix(uri, "/eos"):
		size, err := vfs.FileSize(resolved)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		stream, err := GenericStream(handle, size, true)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		return stream, closeAll, nil
	default:
		size, err := vfs.FileSize(resolved)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		stream, err := GenericStream(handle, size, false)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		return stream, closeAll, nil
	}
}

func bufferDecompressed(r io.Reader, wrap func(io.Reader) (io.Reader, error)) (Stream, error) {
	decompressed, err := wrap(r)
	if err != nil {
		return nil, errors.Join(errors.New("failed to open decompression layer"), err)
	}
	switch c := decompressed.(type) {
	case *gzip.Reader:
		defer c.Close()
	case *zstd.Decoder:
		defer c.Close()
	}
	buf, err := io.ReadAll(decompressed)
	if err != nil {
		return nil, errors.Join(errors.New("failed to decompress stream"), err)
	}
	return bytes.NewReader(buf), nil
}
