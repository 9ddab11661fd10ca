package reco

import "errors"

// Sentinel errors matching the error-kind table: each component-facing
// error wraps one of these with errors.Join so callers can errors.Is
// against the kind while still seeing the offending component's detail.
var (
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrFileOpen           = errors.New("unable to open file")
	ErrCorruptBlock       = errors.New("corrupt block")
	ErrEndOfStream        = errors.New("end of stream")
	ErrUnsupportedFeature = errors.New("unsupported feature")
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrQueryParse         = errors.New("query parse error")
	ErrHistogramBinMismatch = errors.New("histogram bin mismatch")

	// TileDB-facing errors, named after the teacher's errors.go.
	ErrCreateSchemaTdb    = errors.New("error creating tiledb schema")
	ErrCreateAttributeTdb = errors.New("error creating tiledb attribute")
	ErrCreateArrayTdb     = errors.New("error creating tiledb array")
	ErrWriteArrayTdb      = errors.New("error writing tiledb array")
	ErrReadArrayTdb       = errors.New("error reading tiledb array")
	ErrAddFilters         = errors.New("error adding filter to filter list")
	ErrDims               = errors.New("error dims is > 2")
	ErrDtype              = errors.New("error slice datatype is unexpected")
)
