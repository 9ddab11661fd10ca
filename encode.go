package reco

import (
	"encoding/json"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// jsonDumps renders data as a compact JSON string, used for the small
// metadata blobs that WriteArrayMetadata attaches to TileDB arrays.
func jsonDumps(data any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// jsonLoads decodes a JSON string previously produced by jsonDumps.
func jsonLoads(data string, out any) error {
	return json.Unmarshal([]byte(data), out)
}

// WriteJSON serialises data as indented JSON to file_uri through TileDB's
// VFS layer, so the destination may be a local path, S3 bucket, or any
// other backend TileDB's VFS supports transparently.
func WriteJSON(ctx *tiledb.Context, fileURI string, data any) (int, error) {
	config, err := ctx.Config()
	if err != nil {
		return 0, err
	}
	defer config.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return 0, err
	}
	defer vfs.Free()

	stream, err := vfs.Open(fileURI, tiledb.TILEDB_VFS_WRITE)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	payload, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return 0, err
	}

	n, err := stream.Write(payload)
	if err != nil {
		return 0, err
	}
	return n, nil
}
