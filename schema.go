package reco

import (
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// maxEventID bounds the UINT64 event/telescope dimension domains; a run
// producing more than this many events would need a domain resize, which
// this layer does not attempt.
const maxEventID = uint64(1<<40) - 1

// newUint64Dimension builds a UINT64 dimension with a positive-delta +
// zstd filter pipeline, the layout every ascending-integer dimension in
// this schema uses (event_id, tel_id).
func newUint64Dimension(ctx *tiledb.Context, name string, tileExtent uint64) (*tiledb.Dimension, error) {
	dim, err := tiledb.NewDimension(ctx, name, tiledb.TILEDB_UINT64, []uint64{0, maxEventID}, tileExtent)
	if err != nil {
		return nil, errors.Join(ErrDims, err)
	}

	filters, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	defer filters.Free()

	deltaFilt, err := PositiveDeltaFilter(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	defer deltaFilt.Free()

	zstdFilt, err := ZstdFilter(ctx, 16)
	if err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	defer zstdFilt.Free()

	if err := AddFilters(filters, deltaFilt, zstdFilt); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	if err := dim.SetFilterList(filters); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	return dim, nil
}

// newEventTable builds a sparse, duplicate-free array schema keyed by
// event_id (and, for per-telescope tables, also tel_id), with columns t's
// exported tiledb-tagged fields.
func newEventTable(ctx *tiledb.Context, t any, perTelescope bool) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	defer domain.Free()

	eventDim, err := newUint64Dimension(ctx, "EVENT_ID", 10000)
	if err != nil {
		return nil, err
	}
	defer eventDim.Free()

	if perTelescope {
		telDim, err := newUint64Dimension(ctx, "TEL_ID", 100)
		if err != nil {
			return nil, err
		}
		defer telDim.Free()
		if err := domain.AddDimensions(eventDim, telDim); err != nil {
			return nil, errors.Join(ErrCreateSchemaTdb, err)
		}
	} else {
		if err := domain.AddDimensions(eventDim); err != nil {
			return nil, errors.Join(ErrCreateSchemaTdb, err)
		}
	}

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	if err := schema.SetAllowsDups(false); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}

	if err := schemaAttrs(t, schema, ctx); err != nil {
		return nil, err
	}
	if err := schema.Check(); err != nil {
		return nil, errors.Join(ErrCreateSchemaTdb, err)
	}
	return schema, nil
}

// createTable creates a new sparse array at uri from t's schema, failing if
// an array already exists there and overwrite is false.
func createTable(ctx *tiledb.Context, uri string, t any, perTelescope, overwrite bool) error {
	vfs, err := tiledb.NewVFS(ctx, nil)
	if err == nil {
		defer vfs.Free()
		if exists, _ := vfs.IsDir(uri); exists {
			if !overwrite {
				return errors.Join(ErrInvalidConfig, errors.New("output exists and overwrite is false: "+uri))
			}
			_ = vfs.RemoveDir(uri)
		}
	}

	schema, err := newEventTable(ctx, t, perTelescope)
	if err != nil {
		return err
	}
	defer schema.Free()

	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return errors.Join(ErrCreateArrayTdb, err)
	}
	defer array.Free()

	if err := array.Create(schema); err != nil {
		return errors.Join(ErrCreateArrayTdb, err)
	}
	return nil
}
