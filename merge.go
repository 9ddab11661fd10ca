package reco

import (
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// MergeFiles concatenates N persisted files into a single output, following
// the file-merging contract: the first input initializes static metadata
// (subarray description), and every input's events are re-emitted in order
// with their Statistics merged (+=). Event ids must already be unique
// across inputs; this is the caller's responsibility, matching the original
// semantics, and is not re-validated here.
func MergeFiles(ctx *tiledb.Context, inputs []string, outputCfg DataWriterConfig) (*Statistics, error) {
	if len(inputs) == 0 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("no inputs to merge"))
	}

	firstReader, err := NewDataReader(ctx, inputs[0])
	if err != nil {
		return nil, err
	}
	subarray, err := readSubarrayMetadata(ctx, inputs[0])
	if err != nil {
		return nil, err
	}

	writer := NewDataWriter(ctx, outputCfg)
	if err := writer.Open(subarray); err != nil {
		return nil, err
	}

	merged := NewStatistics()

	appendAll := func(r *DataReader, fileURI string) error {
		if err := r.Iterate(func(event *ArrayEvent) error {
			return writer.WriteEvent(event)
		}); err != nil {
			return err
		}
		stats, err := readStatistics(ctx, fileURI)
		if err != nil {
			return err
		}
		return merged.Merge(stats)
	}

	if err := appendAll(firstReader, inputs[0]); err != nil {
		_ = writer.Close()
		return nil, err
	}

	for _, uri := range inputs[1:] {
		reader, err := NewDataReader(ctx, uri)
		if err != nil {
			_ = writer.Close()
			return nil, err
		}
		if err := appendAll(reader, uri); err != nil {
			_ = writer.Close()
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}
	return merged, nil
}

func readSubarrayMetadata(ctx *tiledb.Context, groupURI string) (*Subarray, error) {
	vfs, err := tiledb.NewVFS(ctx, nil)
	if err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}
	defer vfs.Free()

	stream, err := vfs.Open(groupURI+"/subarray.json", tiledb.TILEDB_VFS_READ)
	if err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}
	defer stream.Close()

	size, err := vfs.FileSize(groupURI + "/subarray.json")
	if err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}
	buf := make([]byte, size)
	if _, err := stream.Read(buf); err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}

	var desc struct {
		TelescopeIDs []int                `json:"telescope_ids"`
		Positions    map[int]Cartesian    `json:"positions"`
		Pointing     Spherical            `json:"pointing"`
	}
	if err := jsonLoads(string(buf), &desc); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	subarray := NewSubarray()
	subarray.Positions = desc.Positions
	subarray.Pointing = desc.Pointing
	return subarray, nil
}

func readStatistics(ctx *tiledb.Context, groupURI string) (*Statistics, error) {
	vfs, err := tiledb.NewVFS(ctx, nil)
	if err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}
	defer vfs.Free()

	path := groupURI + "/statistics.json"
	if exists, _ := vfs.IsFile(path); !exists {
		return NewStatistics(), nil
	}

	stream, err := vfs.Open(path, tiledb.TILEDB_VFS_READ)
	if err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}
	defer stream.Close()

	size, err := vfs.FileSize(path)
	if err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}
	buf := make([]byte, size)
	if _, err := stream.Read(buf); err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}

	stats := NewStatistics()
	if err := jsonLoads(string(buf), stats); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return stats, nil
}
