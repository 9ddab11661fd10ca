package reco

import (
	"errors"
	"sync"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// eventIndexColumns is the events/event_index table: one row per event,
// listing which telescopes contributed data.
type eventIndexColumns struct {
	EventID []uint64   `tiledb:"dtype=uint64,ftype=dim"`
	TelIDs  [][]uint64 `tiledb:"dtype=uint64,ftype=attr,var" filters:"zstd(level=16)"`
}

// dl0Columns is the events/dl0 table, keyed by (event_id, tel_id).
type dl0Columns struct {
	EventID  []uint64   `tiledb:"dtype=uint64,ftype=dim"`
	TelID    []uint64   `tiledb:"dtype=uint64,ftype=dim"`
	Image    [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"zstd(level=16)"`
	PeakTime [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"zstd(level=16)"`
}

// dl1Columns is the events/dl1 table, keyed by (event_id, tel_id): the
// cleaned image plus its full shape parametrization, flattened into scalar
// columns since TileDB attributes cannot nest.
type dl1Columns struct {
	EventID   []uint64    `tiledb:"dtype=uint64,ftype=dim"`
	TelID     []uint64    `tiledb:"dtype=uint64,ftype=dim"`
	Image     [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"zstd(level=16)"`
	PeakTime  [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"zstd(level=16)"`
	CleanMask [][]uint8   `tiledb:"dtype=uint8,ftype=attr,var" filters:"zstd(level=16)"`

	HillasX         []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasY         []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasR         []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasPhi       []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasPsi       []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasLength    []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasWidth     []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasIntensity []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasSkewness  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	HillasKurtosis  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	LeakagePixelsWidth1    []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	LeakagePixelsWidth2    []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	LeakageIntensityWidth1 []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	LeakageIntensityWidth2 []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	ConcentrationCog   []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	ConcentrationCore  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	ConcentrationPixel []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	MorphologyNumPixels  []int64 `tiledb:"dtype=int64,ftype=attr" filters:"zstd(level=16)"`
	MorphologyNumIslands []int64 `tiledb:"dtype=int64,ftype=attr" filters:"zstd(level=16)"`
	MorphologyNumSmall   []int64 `tiledb:"dtype=int64,ftype=attr" filters:"zstd(level=16)"`
	MorphologyNumMedium  []int64 `tiledb:"dtype=int64,ftype=attr" filters:"zstd(level=16)"`
	MorphologyNumLarge   []int64 `tiledb:"dtype=int64,ftype=attr" filters:"zstd(level=16)"`

	IntensityMax  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	IntensityMean []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	IntensityStd  []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
}

// dl2GeometryColumns is one events/dl2/geometry/<reconstructor_name> table,
// one row per event.
type dl2GeometryColumns struct {
	EventID           []uint64   `tiledb:"dtype=uint64,ftype=dim"`
	IsValid           []uint8    `tiledb:"dtype=uint8,ftype=attr" filters:"zstd(level=16)"`
	Alt               []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Az                []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	AltUncertainty    []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	AzUncertainty     []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	CoreX             []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	CoreY             []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TiltedCoreX       []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TiltedCoreY       []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TiltedCoreUncertX []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TiltedCoreUncertY []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Hmax              []float64  `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Telescopes        [][]uint64 `tiledb:"dtype=uint64,ftype=attr,var" filters:"zstd(level=16)"`
}

// DataWriter persists an event stream's DL0, DL1 and DL2 geometry levels to
// per-level tables under a single TileDB group; R0, R1, pointing,
// monitoring data and impact parameters are not written. Tables are created
// at Close for each level that received rows, every event appends to the
// event index, and Close builds the
// (event_id, tel_id) secondary index implicitly through the sparse arrays'
// own coordinate ordering.
//
// Rows are buffered in memory and flushed once at Close, rather than
// streamed fragment-by-fragment; a long-running acquisition would want
// periodic intermediate flushes, which this writer does not yet do.
type DataWriter struct {
	ctx      *tiledb.Context
	groupURI string
	cfg      DataWriterConfig

	mu          sync.Mutex
	opened      bool
	closed      bool
	eventIndex  eventIndexColumns
	dl0         dl0Columns
	dl1         dl1Columns
	dl2Geometry map[string]*dl2GeometryColumns
	stats       *Statistics
}

// NewDataWriter constructs a DataWriter for the given configuration. ctx may
// be shared across readers/writers; TileDB contexts are safe for concurrent
// use.
func NewDataWriter(ctx *tiledb.Context, cfg DataWriterConfig) *DataWriter {
	return &DataWriter{
		ctx:         ctx,
		groupURI:    cfg.OutputPath,
		cfg:         cfg,
		dl2Geometry: make(map[string]*dl2GeometryColumns),
		stats:       NewStatistics(),
	}
}

// Open creates the output group and persists the run's static metadata
// (subarray description) that does not vary per event.
func (w *DataWriter) Open(subarray *Subarray) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.opened {
		return errors.Join(ErrInvalidConfig, errors.New("writer already open"))
	}

	vfs, err := tiledb.NewVFS(w.ctx, nil)
	if err != nil {
		return errors.Join(ErrCreateArrayTdb, err)
	}
	defer vfs.Free()

	if exists, _ := vfs.IsDir(w.groupURI); exists {
		if !w.cfg.OverwriteExisting {
			return errors.Join(ErrInvalidConfig, errors.New("output exists and overwrite is false: "+w.groupURI))
		}
		if err := vfs.RemoveDir(w.groupURI); err != nil {
			return errors.Join(ErrCreateArrayTdb, err)
		}
	}
	if err := vfs.CreateDir(w.groupURI); err != nil {
		return errors.Join(ErrCreateArrayTdb, err)
	}

	if _, err := WriteJSON(w.ctx, w.groupURI+"/subarray.json", subarrayDescription(subarray)); err != nil {
		return errors.Join(ErrWriteArrayTdb, err)
	}

	w.opened = true
	return nil
}

// subarrayDescription converts a Subarray into a plain JSON-friendly shape;
// Subarray itself carries sync primitives transitively via PixelGeometry and
// is not meant to be serialised directly.
func subarrayDescription(s *Subarray) map[string]any {
	positions := make(map[int]Cartesian, len(s.Positions))
	for id, pos := range s.Positions {
		positions[id] = pos
	}
	return map[string]any{
		"telescope_ids": s.TelescopeIDs(),
		"positions":     positions,
		"pointing":      s.Pointing,
	}
}

// WriteEvent appends one event's populated levels to the in-memory column
// buffers. Safe for concurrent use by multiple workers; callers that need
// stable output ordering must otherwise serialize their own submission
// order (§7's single-writer-lock note).
func (w *DataWriter) WriteEvent(event *ArrayEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.opened {
		return errors.Join(ErrInvalidConfig, errors.New("writer not open"))
	}

	eventID := uint64(event.EventID)
	w.eventIndex.EventID = append(w.eventIndex.EventID, eventID)
	telIDs := event.TelescopeIDs()
	telIDs64 := make([]uint64, len(telIDs))
	for i, id := range telIDs {
		telIDs64[i] = uint64(id)
	}
	w.eventIndex.TelIDs = append(w.eventIndex.TelIDs, telIDs64)

	if containsLevel(w.cfg.WriteLevels, "dl0") {
		for telID, dl0 := range event.DL0 {
			w.dl0.EventID = append(w.dl0.EventID, eventID)
			w.dl0.TelID = append(w.dl0.TelID, uint64(telID))
			w.dl0.Image = append(w.dl0.Image, dl0.Image)
			w.dl0.PeakTime = append(w.dl0.PeakTime, dl0.PeakTime)
		}
	}

	if containsLevel(w.cfg.WriteLevels, "dl1") {
		for telID, dl1 := range event.DL1 {
			w.appendDL1(eventID, uint64(telID), dl1)
		}
	}

	if event.DL2 != nil && containsLevel(w.cfg.WriteLevels, "dl2") {
		for name, geom := range event.DL2.Geometry {
			w.appendDL2Geometry(eventID, name, geom)
		}
	}

	w.stats.EventsProcessed++
	return nil
}

func containsLevel(levels []string, level string) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

func (w *DataWriter) appendDL1(eventID, telID uint64, dl1 *DL1Camera) {
	c := &w.dl1
	c.EventID = append(c.EventID, eventID)
	c.TelID = append(c.TelID, telID)
	c.Image = append(c.Image, dl1.Image)
	c.PeakTime = append(c.PeakTime, dl1.PeakTime)
	mask := make([]uint8, len(dl1.CleanMask))
	for i, b := range dl1.CleanMask {
		if b {
			mask[i] = 1
		}
	}
	c.CleanMask = append(c.CleanMask, mask)

	p := dl1.Parameters
	c.HillasX = append(c.HillasX, p.Hillas.X)
	c.HillasY = append(c.HillasY, p.Hillas.Y)
	c.HillasR = append(c.HillasR, p.Hillas.R)
	c.HillasPhi = append(c.HillasPhi, p.Hillas.Phi)
	c.HillasPsi = append(c.HillasPsi, p.Hillas.Psi)
	c.HillasLength = append(c.HillasLength, p.Hillas.Length)
	c.HillasWidth = append(c.HillasWidth, p.Hillas.Width)
	c.HillasIntensity = append(c.HillasIntensity, p.Hillas.Intensity)
	c.HillasSkewness = append(c.HillasSkewness, p.Hillas.Skewness)
	c.HillasKurtosis = append(c.HillasKurtosis, p.Hillas.Kurtosis)

	c.LeakagePixelsWidth1 = append(c.LeakagePixelsWidth1, p.Leakage.PixelsWidth1)
	c.LeakagePixelsWidth2 = append(c.LeakagePixelsWidth2, p.Leakage.PixelsWidth2)
	c.LeakageIntensityWidth1 = append(c.LeakageIntensityWidth1, p.Leakage.IntensityWidth1)
	c.LeakageIntensityWidth2 = append(c.LeakageIntensityWidth2, p.Leakage.IntensityWidth2)

	c.ConcentrationCog = append(c.ConcentrationCog, p.Concentration.Cog)
	c.ConcentrationCore = append(c.ConcentrationCore, p.Concentration.Core)
	c.ConcentrationPixel = append(c.ConcentrationPixel, p.Concentration.Pixel)

	c.MorphologyNumPixels = append(c.MorphologyNumPixels, int64(p.Morphology.NumPixels))
	c.MorphologyNumIslands = append(c.MorphologyNumIslands, int64(p.Morphology.NumIslands))
	c.MorphologyNumSmall = append(c.MorphologyNumSmall, int64(p.Morphology.NumSmall))
	c.MorphologyNumMedium = append(c.MorphologyNumMedium, int64(p.Morphology.NumMedium))
	c.MorphologyNumLarge = append(c.MorphologyNumLarge, int64(p.Morphology.NumLarge))

	c.IntensityMax = append(c.IntensityMax, p.Intensity.Max)
	c.IntensityMean = append(c.IntensityMean, p.Intensity.Mean)
	c.IntensityStd = append(c.IntensityStd, p.Intensity.Std)
}

func (w *DataWriter) appendDL2Geometry(eventID uint64, name string, geom ReconstructedGeometry) {
	c, ok := w.dl2Geometry[name]
	if !ok {
		c = &dl2GeometryColumns{}
		w.dl2Geometry[name] = c
	}
	c.EventID = append(c.EventID, eventID)
	valid := uint8(0)
	if geom.IsValid {
		valid = 1
	}
	c.IsValid = append(c.IsValid, valid)
	c.Alt = append(c.Alt, geom.Alt)
	c.Az = append(c.Az, geom.Az)
	c.AltUncertainty = append(c.AltUncertainty, geom.AltUncertainty)
	c.AzUncertainty = append(c.AzUncertainty, geom.AzUncertainty)
	c.CoreX = append(c.CoreX, geom.CoreX)
	c.CoreY = append(c.CoreY, geom.CoreY)
	c.TiltedCoreX = append(c.TiltedCoreX, geom.TiltedCoreX)
	c.TiltedCoreY = append(c.TiltedCoreY, geom.TiltedCoreY)
	c.TiltedCoreUncertX = append(c.TiltedCoreUncertX, geom.TiltedCoreUncertX)
	c.TiltedCoreUncertY = append(c.TiltedCoreUncertY, geom.TiltedCoreUncertY)
	c.Hmax = append(c.Hmax, geom.Hmax)
	tels := make([]uint64, len(geom.Telescopes))
	for i, id := range geom.Telescopes {
		tels[i] = uint64(id)
	}
	c.Telescopes = append(c.Telescopes, tels)
}

// Close writes every populated table to disk and releases the writer. The
// writer must not be used afterwards.
func (w *DataWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.eventIndex.EventID) > 0 {
		if err := flushTable(w.ctx, w.groupURI+"/events/event_index", &w.eventIndex, false, w.cfg.OverwriteExisting); err != nil {
			return err
		}
	}
	if len(w.dl0.EventID) > 0 {
		if err := flushTable(w.ctx, w.groupURI+"/events/dl0", &w.dl0, true, w.cfg.OverwriteExisting); err != nil {
			return err
		}
	}
	if len(w.dl1.EventID) > 0 {
		if err := flushTable(w.ctx, w.groupURI+"/events/dl1", &w.dl1, true, w.cfg.OverwriteExisting); err != nil {
			return err
		}
	}
	for name, geom := range w.dl2Geometry {
		uri := w.groupURI + "/events/dl2/geometry/" + name
		if err := flushTable(w.ctx, uri, geom, false, w.cfg.OverwriteExisting); err != nil {
			return err
		}
	}

	if _, err := WriteJSON(w.ctx, w.groupURI+"/statistics.json", w.stats); err != nil {
		return errors.Join(ErrWriteArrayTdb, err)
	}
	return nil
}

// Statistics returns the run's accumulated processing counters, so a
// caller can merge them across files.
func (w *DataWriter) Statistics() *Statistics { return w.stats }

// flushTable creates table t's schema at uri and writes its buffered
// columns in a single unordered sparse write.
func flushTable(ctx *tiledb.Context, uri string, t any, perTelescope, overwrite bool) error {
	if err := createTable(ctx, uri, t, perTelescope, overwrite); err != nil {
		return err
	}

	array, err := ArrayOpen(ctx, uri, tiledb.TILEDB_WRITE)
	if err != nil {
		return err
	}
	defer array.Free()
	defer array.Close()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return errors.Join(ErrWriteArrayTdb, err)
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return errors.Join(ErrWriteArrayTdb, err)
	}
	if err := setStructFieldBuffers(query, t); err != nil {
		return err
	}
	if err := query.Submit(); err != nil {
		return errors.Join(ErrWriteArrayTdb, err)
	}
	return nil
}
