package reco

import (
	"errors"
	"reflect"
	"strconv"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/samber/lo"
	stgpsr "github.com/yuin/stagparser"
)

// ArrayOpen opens a tiledb array at uri in the given mode, freeing the
// array handle on error so callers never leak a half-open array.
func ArrayOpen(ctx *tiledb.Context, uri string, mode tiledb.QueryType) (*tiledb.Array, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, errors.Join(ErrCreateArrayTdb, err)
	}

	if err := array.Open(mode); err != nil {
		array.Free()
		return nil, errors.Join(ErrCreateArrayTdb, err)
	}
	return array, nil
}

// AddFilters sequentially appends compression filters to the filter
// pipeline list.
func AddFilters(filterList *tiledb.FilterList, filters ...*tiledb.Filter) error {
	for _, f := range filters {
		if err := filterList.AddFilter(f); err != nil {
			return errors.Join(ErrAddFilters, err)
		}
	}
	return nil
}

// ZstdFilter initialises the Zstandard compression filter at the given
// level. zstd is the pipeline's workhorse compressor, matching the
// persistence layer's klauspost/compress/zstd use on the event-stream side.
func ZstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return nil, err
	}
	if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level); err != nil {
		filt.Free()
		return nil, err
	}
	return filt, nil
}

// PositiveDeltaFilter initialises the positive-delta filter used on
// ascending-integer dimensions (event_id, tel_id).
func PositiveDeltaFilter(ctx *tiledb.Context) (*tiledb.Filter, error) {
	return tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
}

// AttachFilters sets the same filter-list pipeline on every attribute
// passed in, for the common case of several attributes sharing one policy.
func AttachFilters(filterList *tiledb.FilterList, attrs ...*tiledb.Attribute) error {
	for _, attr := range attrs {
		if err := attr.SetFilterList(filterList); err != nil {
			return err
		}
	}
	return nil
}

// CreateAttr builds a tiledb attribute, including its compression filter
// pipeline and (for variable-length fields) the schema's offsets filter
// list, entirely from the `tiledb`/`filters` struct tags attached to the
// owning type. Supported dtype tag values: int8, uint8, int16, uint16,
// int32, uint32, int64, uint64, float32, float64, string. Supported filter
// tag values: zstd(level=N).
func CreateAttr(
	fieldName string,
	filterDefs []stgpsr.Definition,
	tiledbDefs map[string]stgpsr.Definition,
	schema *tiledb.ArraySchema,
	ctx *tiledb.Context,
) error {
	def, ok := tiledbDefs["dtype"]
	if !ok {
		return errors.Join(ErrCreateAttributeTdb, errors.New("dtype tag not found: "+fieldName))
	}
	dtype, _ := def.Attribute("dtype")

	var tdbDtype tiledb.Datatype
	switch dtype {
	case "int8":
		tdbDtype = tiledb.TILEDB_INT8
	case "uint8":
		tdbDtype = tiledb.TILEDB_UINT8
	case "int16":
		tdbDtype = tiledb.TILEDB_INT16
	case "uint16":
		tdbDtype = tiledb.TILEDB_UINT16
	case "int32":
		tdbDtype = tiledb.TILEDB_INT32
	case "uint32":
		tdbDtype = tiledb.TILEDB_UINT32
	case "int64":
		tdbDtype = tiledb.TILEDB_INT64
	case "uint64":
		tdbDtype = tiledb.TILEDB_UINT64
	case "float32":
		tdbDtype = tiledb.TILEDB_FLOAT32
	case "float64":
		tdbDtype = tiledb.TILEDB_FLOAT64
	case "string":
		tdbDtype = tiledb.TILEDB_STRING_UTF8
	default:
		return errors.Join(ErrCreateAttributeTdb, errors.New("unsupported dtype: "+dtype.(string)))
	}

	attrFilters, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateAttributeTdb, err)
	}
	defer attrFilters.Free()

	for _, filter := range filterDefs {
		switch filter.Name() {
		case "zstd":
			level, ok := filter.Attribute("level")
			if !ok {
				return errors.Join(ErrCreateAttributeTdb, errors.New("zstd level not defined: "+fieldName))
			}
			filt, err := ZstdFilter(ctx, int32(level.(int64)))
			if err != nil {
				return errors.Join(ErrCreateAttributeTdb, err)
			}
			defer filt.Free()
			if err := attrFilters.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttributeTdb, err)
			}
		}
	}

	attr, err := tiledb.NewAttribute(ctx, fieldName, tdbDtype)
	if err != nil {
		return errors.Join(ErrCreateAttributeTdb, err)
	}
	defer attr.Free()

	_, isVar := tiledbDefs["var"]
	if isVar {
		if err := attr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
			return errors.Join(ErrCreateAttributeTdb, err)
		}
	}

	if err := AttachFilters(attrFilters, attr); err != nil {
		return errors.Join(ErrCreateAttributeTdb, err)
	}
	if err := schema.AddAttributes(attr); err != nil {
		return errors.Join(ErrCreateAttributeTdb, err)
	}

	if isVar {
		offsetFilters, err := tiledb.NewFilterList(ctx)
		if err != nil {
			return errors.Join(ErrCreateAttributeTdb, err)
		}
		ddFilt, err := PositiveDeltaFilter(ctx)
		if err != nil {
			return errors.Join(ErrCreateAttributeTdb, err)
		}
		zstdFilt, err := ZstdFilter(ctx, 16)
		if err != nil {
			return errors.Join(ErrCreateAttributeTdb, err)
		}
		if err := AddFilters(offsetFilters, ddFilt, zstdFilt); err != nil {
			return errors.Join(ErrCreateAttributeTdb, err)
		}
		if err := schema.SetOffsetsFilterList(offsetFilters); err != nil {
			return errors.Join(ErrCreateAttributeTdb, err)
		}
	}

	return nil
}

// schemaAttrs walks every exported field of t, skipping dimension fields
// (ftype=dim), and attaches the rest to schema as attributes per their
// tiledb/filters tags.
func schemaAttrs(t any, schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	values := reflect.ValueOf(t).Elem()
	types := values.Type()

	filtDefs, _ := stgpsr.ParseStruct(t, "filters")
	tdbDefs, _ := stgpsr.ParseStruct(t, "tiledb")

	for i := 0; i < values.NumField(); i++ {
		name := types.Field(i).Name
		if !types.Field(i).IsExported() {
			continue
		}

		fieldTdbDefs := make(map[string]stgpsr.Definition)
		for _, v := range tdbDefs[name] {
			fieldTdbDefs[v.Name()] = v
		}

		def, ok := fieldTdbDefs["ftype"]
		if !ok {
			continue // fields without a tiledb tag (e.g. nested structs) are not columns
		}
		ftype, _ := def.Attribute("ftype")
		if ftype == "dim" {
			continue
		}

		if err := CreateAttr(name, filtDefs[name], fieldTdbDefs, schema, ctx); err != nil {
			return err
		}
	}
	return nil
}

// sliceDimsType walks nested slice types to report how many levels of
// slice wrap the underlying scalar type, e.g. [][]float64 -> dims=2.
func sliceDimsType(typ reflect.Type, dims *int) reflect.Type {
	if typ.Kind() == reflect.Slice {
		*dims++
		return sliceDimsType(typ.Elem(), dims)
	}
	return typ
}

// byteSizeOf returns the element size used for variable-length offset
// arithmetic.
func byteSizeOf(name string) uint64 {
	switch name {
	case "int8", "uint8":
		return 1
	case "int16", "uint16":
		return 2
	case "int32", "uint32", "float32":
		return 4
	default:
		return 8
	}
}

func sliceOffsets[T any](s [][]T, elemSize uint64) []uint64 {
	offsets := make([]uint64, len(s))
	offset := uint64(0)
	for i := range s {
		offsets[i] = offset
		offset += uint64(len(s[i])) * elemSize
	}
	return offsets
}

// setStructFieldBuffers attaches every exported, tagged field of t (a
// pointer to a "columns" struct, one slice per column) to query as either a
// fixed-length data buffer (1D slice) or a variable-length data+offsets
// buffer pair (2D slice, one inner slice per row).
func setStructFieldBuffers(query *tiledb.Query, t any) error {
	values := reflect.ValueOf(t).Elem()
	types := reflect.TypeOf(t).Elem()

	for i := 0; i < values.NumField(); i++ {
		if !types.Field(i).IsExported() {
			continue
		}
		fld := values.Field(i)
		name := types.Field(i).Name
		dims := 0
		stype := sliceDimsType(fld.Type(), &dims)

		switch dims {
		case 1:
			switch v := fld.Interface().(type) {
			case []int32:
				if _, err := query.SetDataBuffer(name, v); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
			case []int64:
				if _, err := query.SetDataBuffer(name, v); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
			case []uint64:
				if _, err := query.SetDataBuffer(name, v); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
			case []float64:
				if _, err := query.SetDataBuffer(name, v); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
			case []uint8:
				if _, err := query.SetDataBuffer(name, v); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
			default:
				return errors.Join(ErrDtype, errors.New(stype.Name()+": "+name))
			}
		case 2:
			switch v := fld.Interface().(type) {
			case [][]float64:
				flat := lo.Flatten(v)
				offsets := sliceOffsets(v, byteSizeOf("float64"))
				if _, err := query.SetOffsetsBuffer(name, offsets); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
				if _, err := query.SetDataBuffer(name, flat); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
			case [][]uint8:
				flat := lo.Flatten(v)
				offsets := sliceOffsets(v, byteSizeOf("uint8"))
				if _, err := query.SetOffsetsBuffer(name, offsets); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
				if _, err := query.SetDataBuffer(name, flat); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
			case [][]uint64:
				flat := lo.Flatten(v)
				offsets := sliceOffsets(v, byteSizeOf("uint64"))
				if _, err := query.SetOffsetsBuffer(name, offsets); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
				if _, err := query.SetDataBuffer(name, flat); err != nil {
					return errors.Join(ErrWriteArrayTdb, err, errors.New(name))
				}
			default:
				return errors.Join(ErrDtype, errors.New(stype.Name()+": "+name))
			}
		default:
			return errors.Join(ErrDims, errors.New(strconv.Itoa(dims)+": "+name))
		}
	}
	return nil
}

// WriteArrayMetadata attaches a JSON-serialised key/value pair to a tiledb
// array's metadata store, for small static values that don't fit the
// per-event columnar shape. DataWriter does not call it: the subarray
// description goes to subarray.json instead.
func WriteArrayMetadata(ctx *tiledb.Context, arrayURI, key string, md any) error {
	array, err := ArrayOpen(ctx, arrayURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return err
	}
	defer array.Free()
	defer array.Close()

	payload, err := jsonDumps(md)
	if err != nil {
		return errors.Join(ErrWriteArrayTdb, err)
	}
	if err := array.PutMetadata(key, payload); err != nil {
		return errors.Join(ErrWriteArrayTdb, err)
	}
	return nil
}

// ReadArrayMetadata retrieves and JSON-decodes a value previously written by
// WriteArrayMetadata.
func ReadArrayMetadata(ctx *tiledb.Context, arrayURI, key string, out any) error {
	array, err := ArrayOpen(ctx, arrayURI, tiledb.TILEDB_READ)
	if err != nil {
		return err
	}
	defer array.Free()
	defer array.Close()

	_, value, err := array.GetMetadata(key)
	if err != nil {
		return errors.Join(ErrReadArrayTdb, err)
	}
	raw, ok := value.(string)
	if !ok {
		return errors.Join(ErrReadArrayTdb, errors.New("metadata value is not a string: "+key))
	}
	return jsonLoads(raw, out)
}
