// Package search discovers raw event-stream files under a root URI,
// transparently across local filesystems and object stores via TileDB's
// VFS, the same way the rest of this module reads and writes through VFS.
package search

import (
	"errors"
	"path/filepath"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// defaultPatterns matches raw and compressed event-stream files.
var defaultPatterns = []string{"*.raw", "*.raw.gz", "*.raw.zst", "*.raw.zstd"}

func trawl(vfs *tiledb.VFS, patterns []string, uri string, items []string) ([]string, error) {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		return items, err
	}

	for _, file := range files {
		base := filepath.Base(file)
		for _, pattern := range patterns {
			match, err := filepath.Match(pattern, base)
			if err != nil {
				return items, err
			}
			if match {
				items = append(items, file)
				break
			}
		}
	}

	for _, dir := range dirs {
		items, err = trawl(vfs, patterns, dir, items)
		if err != nil {
			return items, err
		}
	}
	return items, nil
}

// FindEventFiles recursively lists every file under uri whose basename
// matches one of the raw event-stream patterns ("*.raw", "*.raw.gz",
// "*.raw.zst", "*.raw.zstd"). ctx's VFS backend determines whether uri is
// a local path, an S3 bucket, or any other TileDB-supported store.
func FindEventFiles(ctx *tiledb.Context, uri string) ([]string, error) {
	config, err := ctx.Config()
	if err != nil {
		return nil, err
	}
	defer config.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return nil, err
	}
	defer vfs.Free()

	isDir, err := vfs.IsDir(uri)
	if err != nil {
		return nil, err
	}
	if !isDir {
		return nil, errors.New("search: not a directory: " + uri)
	}

	return trawl(vfs, defaultPatterns, uri, make([]string, 0))
}
