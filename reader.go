package reco

import (
	"errors"
	"sort"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// DataReader opens a file written by DataWriter and reassembles ArrayEvents
// from its tables, following the reader contract: discover which tables
// exist, then for each requested event read the event-index row and do an
// indexed lookup into every per-telescope table for the listed telescopes.
// Missing tables simply leave the corresponding ArrayEvent level empty.
type DataReader struct {
	ctx      *tiledb.Context
	groupURI string

	eventIDs  []uint64
	telByEvt  map[uint64][]uint64
	hasDL0    bool
	hasDL1    bool
	dl2Names  []string
}

// NewDataReader opens groupURI and reads the event index to discover which
// events and tables are present.
func NewDataReader(ctx *tiledb.Context, groupURI string) (*DataReader, error) {
	r := &DataReader{ctx: ctx, groupURI: groupURI, telByEvt: make(map[uint64][]uint64)}

	vfs, err := tiledb.NewVFS(ctx, nil)
	if err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}
	defer vfs.Free()

	indexURI := groupURI + "/events/event_index"
	if exists, _ := vfs.IsDir(indexURI); !exists {
		return nil, errors.Join(ErrFileOpen, errors.New("no event index at "+indexURI))
	}

	idx, err := readEventIndex(ctx, indexURI)
	if err != nil {
		return nil, err
	}
	for i, id := range idx.EventID {
		r.eventIDs = append(r.eventIDs, id)
		r.telByEvt[id] = idx.TelIDs[i]
	}
	sort.Slice(r.eventIDs, func(i, j int) bool { return r.eventIDs[i] < r.eventIDs[j] })

	if exists, _ := vfs.IsDir(groupURI + "/events/dl0"); exists {
		r.hasDL0 = true
	}
	if exists, _ := vfs.IsDir(groupURI + "/events/dl1"); exists {
		r.hasDL1 = true
	}
	return r, nil
}

// NumEvents reports how many events the event index lists.
func (r *DataReader) NumEvents() int { return len(r.eventIDs) }

// ReadEvent performs random access: it reassembles the ArrayEvent at
// position idx in event-id order, failing with ErrIndexOutOfRange past the
// end of the file.
func (r *DataReader) ReadEvent(idx int) (*ArrayEvent, error) {
	if idx < 0 || idx >= len(r.eventIDs) {
		return nil, ErrIndexOutOfRange
	}
	eventID := r.eventIDs[idx]
	telIDs := r.telByEvt[eventID]

	event := NewArrayEvent(int64(eventID), 0)

	if r.hasDL0 {
		rows, err := readDL0Rows(r.ctx, r.groupURI+"/events/dl0", eventID, telIDs)
		if err != nil {
			return nil, err
		}
		for telID, row := range rows {
			event.DL0[int(telID)] = row
		}
	}
	if r.hasDL1 {
		rows, err := readDL1Rows(r.ctx, r.groupURI+"/events/dl1", eventID, telIDs)
		if err != nil {
			return nil, err
		}
		for telID, row := range rows {
			event.DL1[int(telID)] = row
		}
	}
	return event, nil
}

// Iterate calls fn for every event in ascending event-id order, stopping at
// the first error fn returns.
func (r *DataReader) Iterate(fn func(*ArrayEvent) error) error {
	for i := range r.eventIDs {
		event, err := r.ReadEvent(i)
		if err != nil {
			return err
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	return nil
}

func readEventIndex(ctx *tiledb.Context, uri string) (*eventIndexColumns, error) {
	array, err := ArrayOpen(ctx, uri, tiledb.TILEDB_READ)
	if err != nil {
		return nil, err
	}
	defer array.Free()
	defer array.Close()

	nonEmpty, err := array.NonEmptyDomain()
	if err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	n := rowCountFromDomain(nonEmpty)

	out := &eventIndexColumns{
		EventID: make([]uint64, n),
		TelIDs:  make([][]uint64, n),
	}

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	defer query.Free()

	offsets := make([]uint64, n)
	flat := make([]uint64, n*64) // generous upper bound on total telescope-id entries
	if _, err := query.SetDataBuffer("EventID", out.EventID); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetOffsetsBuffer("TelIDs", offsets); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetDataBuffer("TelIDs", flat); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if err := query.Submit(); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}

	elements, err := query.ResultBufferElements()
	if err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	rows := elements["EventID"][1]
	out.EventID = out.EventID[:rows]
	out.TelIDs = out.TelIDs[:rows]

	for i := 0; i < int(rows); i++ {
		start := offsets[i]
		var end uint64
		if i+1 < int(rows) {
			end = offsets[i+1]
		} else {
			end = elements["TelIDs"][1] * 8
		}
		out.TelIDs[i] = flat[start/8 : end/8]
	}
	return out, nil
}

// rowCountFromDomain is a best-effort row-count estimate from a sparse
// array's non-empty domain, used only to size read buffers generously.
func rowCountFromDomain(domain [][2]uint64) uint64 {
	if len(domain) == 0 {
		return 0
	}
	span := domain[0][1] - domain[0][0] + 1
	if span > 1_000_000 {
		return 1_000_000
	}
	return span
}

func readDL0Rows(ctx *tiledb.Context, uri string, eventID uint64, telIDs []uint64) (map[uint64]*DL0Camera, error) {
	out := make(map[uint64]*DL0Camera)
	array, err := ArrayOpen(ctx, uri, tiledb.TILEDB_READ)
	if err != nil {
		return nil, err
	}
	defer array.Free()
	defer array.Close()

	for _, telID := range telIDs {
		image, peak, err := readPerPixelRow(ctx, array, eventID, telID, "Image", "PeakTime")
		if err != nil {
			continue // missing row for this telescope; leave it unset
		}
		out[telID] = &DL0Camera{Image: image, PeakTime: peak}
	}
	return out, nil
}

// dl1ScalarFloatAttrs and dl1ScalarIntAttrs list the fixed-length
// ImageParameters columns written by appendDL1 (writer.go), in the order
// they're unpacked back into a Hillas/Leakage/Concentration/Morphology/
// IntensityStats struct.
var dl1ScalarFloatAttrs = []string{
	"HillasX", "HillasY", "HillasR", "HillasPhi", "HillasPsi",
	"HillasLength", "HillasWidth", "HillasIntensity", "HillasSkewness", "HillasKurtosis",
	"LeakagePixelsWidth1", "LeakagePixelsWidth2", "LeakageIntensityWidth1", "LeakageIntensityWidth2",
	"ConcentrationCog", "ConcentrationCore", "ConcentrationPixel",
	"IntensityMax", "IntensityMean", "IntensityStd",
}

var dl1ScalarIntAttrs = []string{
	"MorphologyNumPixels", "MorphologyNumIslands", "MorphologyNumSmall", "MorphologyNumMedium", "MorphologyNumLarge",
}

func readDL1Rows(ctx *tiledb.Context, uri string, eventID uint64, telIDs []uint64) (map[uint64]*DL1Camera, error) {
	out := make(map[uint64]*DL1Camera)
	array, err := ArrayOpen(ctx, uri, tiledb.TILEDB_READ)
	if err != nil {
		return nil, err
	}
	defer array.Free()
	defer array.Close()

	for _, telID := range telIDs {
		row, err := readDL1Row(ctx, array, eventID, telID)
		if err != nil {
			continue // missing row for this telescope; leave it unset
		}
		out[telID] = row
	}
	return out, nil
}

// readDL1Row performs a point query for the single (event_id, tel_id) cell
// and reconstructs the full DL1Camera the writer persisted: image, peak
// time, cleaning mask, and every ImageParameters field.
func readDL1Row(ctx *tiledb.Context, array *tiledb.Array, eventID, telID uint64) (*DL1Camera, error) {
	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	defer query.Free()

	subarray, err := tiledb.NewSubarray(ctx, array)
	if err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	defer subarray.Free()
	if err := subarray.AddRangeByName("EVENT_ID", eventID, eventID); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if err := subarray.AddRangeByName("TEL_ID", telID, telID); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if err := query.SetSubarray(subarray); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}

	const maxSamples = 20000
	imageOffset := make([]uint64, 1)
	image := make([]float64, maxSamples)
	peakOffset := make([]uint64, 1)
	peak := make([]float64, maxSamples)
	maskOffset := make([]uint64, 1)
	mask := make([]uint8, maxSamples)

	if _, err := query.SetOffsetsBuffer("Image", imageOffset); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetDataBuffer("Image", image); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetOffsetsBuffer("PeakTime", peakOffset); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetDataBuffer("PeakTime", peak); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetOffsetsBuffer("CleanMask", maskOffset); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetDataBuffer("CleanMask", mask); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}

	floatVals := make(map[string][]float64, len(dl1ScalarFloatAttrs))
	for _, name := range dl1ScalarFloatAttrs {
		buf := make([]float64, 1)
		if _, err := query.SetDataBuffer(name, buf); err != nil {
			return nil, errors.Join(ErrReadArrayTdb, err)
		}
		floatVals[name] = buf
	}
	intVals := make(map[string][]int64, len(dl1ScalarIntAttrs))
	for _, name := range dl1ScalarIntAttrs {
		buf := make([]int64, 1)
		if _, err := query.SetDataBuffer(name, buf); err != nil {
			return nil, errors.Join(ErrReadArrayTdb, err)
		}
		intVals[name] = buf
	}

	if err := query.Submit(); err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}

	elements, err := query.ResultBufferElements()
	if err != nil {
		return nil, errors.Join(ErrReadArrayTdb, err)
	}
	nImage := elements["Image"][1]
	nPeak := elements["PeakTime"][1]
	if nImage == 0 && nPeak == 0 {
		return nil, ErrIndexOutOfRange
	}
	nMask := elements["CleanMask"][1]

	cleanMask := make([]bool, nMask)
	for i := uint64(0); i < nMask; i++ {
		cleanMask[i] = mask[i] != 0
	}

	f := func(name string) float64 { return floatVals[name][0] }
	n := func(name string) int { return int(intVals[name][0]) }

	return &DL1Camera{
		Image:     image[:nImage],
		PeakTime:  peak[:nPeak],
		CleanMask: cleanMask,
		Parameters: ImageParameters{
			Hillas: Hillas{
				X: f("HillasX"), Y: f("HillasY"), R: f("HillasR"), Phi: f("HillasPhi"), Psi: f("HillasPsi"),
				Length: f("HillasLength"), Width: f("HillasWidth"), Intensity: f("HillasIntensity"),
				Skewness: f("HillasSkewness"), Kurtosis: f("HillasKurtosis"),
			},
			Leakage: Leakage{
				PixelsWidth1: f("LeakagePixelsWidth1"), PixelsWidth2: f("LeakagePixelsWidth2"),
				IntensityWidth1: f("LeakageIntensityWidth1"), IntensityWidth2: f("LeakageIntensityWidth2"),
			},
			Concentration: Concentration{
				Cog: f("ConcentrationCog"), Core: f("ConcentrationCore"), Pixel: f("ConcentrationPixel"),
			},
			Morphology: Morphology{
				NumPixels: n("MorphologyNumPixels"), NumIslands: n("MorphologyNumIslands"),
				NumSmall: n("MorphologyNumSmall"), NumMedium: n("MorphologyNumMedium"), NumLarge: n("MorphologyNumLarge"),
			},
			Intensity: IntensityStats{
				Max: f("IntensityMax"), Mean: f("IntensityMean"), Std: f("IntensityStd"),
			},
		},
	}, nil
}

// readPerPixelRow performs a point query for the single (event_id, tel_id)
// cell and returns its two named variable-length float64 attributes.
func readPerPixelRow(ctx *tiledb.Context, array *tiledb.Array, eventID, telID uint64, attr1, attr2 string) ([]float64, []float64, error) {
	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}
	defer query.Free()

	subarray, err := tiledb.NewSubarray(ctx, array)
	if err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}
	defer subarray.Free()
	if err := subarray.AddRangeByName("EVENT_ID", eventID, eventID); err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}
	if err := subarray.AddRangeByName("TEL_ID", telID, telID); err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}
	if err := query.SetSubarray(subarray); err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}

	const maxSamples = 20000
	offset1 := make([]uint64, 1)
	data1 := make([]float64, maxSamples)
	offset2 := make([]uint64, 1)
	data2 := make([]float64, maxSamples)

	if _, err := query.SetOffsetsBuffer(attr1, offset1); err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetDataBuffer(attr1, data1); err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetOffsetsBuffer(attr2, offset2); err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}
	if _, err := query.SetDataBuffer(attr2, data2); err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}

	if err := query.Submit(); err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}

	elements, err := query.ResultBufferElements()
	if err != nil {
		return nil, nil, errors.Join(ErrReadArrayTdb, err)
	}
	n1 := elements[attr1][1]
	n2 := elements[attr2][1]
	if n1 == 0 && n2 == 0 {
		return nil, nil, ErrIndexOutOfRange
	}
	return data1[:n1], data2[:n2], nil
}
