package reco

import (
	"errors"
	"log"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/telarray/reco/decode"
)

// ArraySource is the forward (and optionally random-access) iterator over a
// raw event stream, built once per run from its static configuration
// blocks and then stepped once per array trigger.
type ArraySource struct {
	inner    *decode.EventSource
	Subarray *Subarray
}

// NewArraySource opens uri and reads its static configuration into a
// Subarray, ready for the calibrator/image-processor/shower-processor
// pipeline to run against. cfg.AllowedTels empty means no telescope
// filtering.
func NewArraySource(ctx *tiledb.Context, uri string, cfg EventSourceConfig) (*ArraySource, error) {
	filter := make([]int32, len(cfg.AllowedTels))
	for i, id := range cfg.AllowedTels {
		filter[i] = int32(id)
	}
	maxEvents := cfg.MaxEvents
	if maxEvents == 0 {
		maxEvents = -1
	}

	inner, err := decode.NewEventSource(uri, decode.EventSourceOptions{
		Ctx:            ctx,
		MaxEvents:      maxEvents,
		SubarrayFilter: filter,
		LoadAllShowers: cfg.LoadAllShowers,
	})
	if err != nil {
		return nil, errors.Join(ErrFileOpen, err)
	}

	subarray, err := buildSubarray(inner)
	if err != nil {
		inner.Close()
		return nil, err
	}

	return &ArraySource{inner: inner, Subarray: subarray}, nil
}

func buildSubarray(src *decode.EventSource) (*Subarray, error) {
	if src.RunHeader == nil {
		return nil, errors.Join(ErrCorruptBlock, errors.New("no run header captured"))
	}
	subarray := NewSubarray()

	for i, telID := range src.RunHeader.TelescopeIDs {
		id := int(telID)
		subarray.Positions[id] = Cartesian{
			X: float64(src.RunHeader.PositionsX[i]),
			Y: float64(src.RunHeader.PositionsY[i]),
			Z: float64(src.RunHeader.PositionsZ[i]),
		}

		cam, ok := src.Cameras[telID]
		if !ok {
			continue // telescope declared but filtered out of camera settings (subarray filter)
		}
		geometry := &PixelGeometry{
			CameraName:  "CAM",
			PixX:        float64Slice(cam.PixelX),
			PixY:        float64Slice(cam.PixelY),
			PixArea:     float64Slice(cam.PixelArea),
			PixShape:    PixelShape(cam.PixelShape),
			CamRotation: float64(cam.CameraRotationRad),
		}
		readout := &CameraReadout{
			SamplingRateGHz:             float64(cam.SamplingRateGHz),
			NumGainChannels:             int(cam.NumGainChannels),
			ReferencePulseShape:         float64Matrix(cam.ReferencePulseShape),
			ReferencePulseSampleWidthNs: float64(cam.RefPulseSampleWidthNs),
		}
		subarray.Descriptions[id] = &TelescopeDescription{
			Camera: Camera{Geometry: geometry, Readout: readout},
			Optics: OpticsDescription{
				FocalLength: float64(cam.FocalLengthM),
				MirrorArea:  float64(cam.MirrorAreaM2),
			},
		}
	}

	if src.RunHeader.ReferenceTimeUTC != "" {
		refTime, err := decode.ParseReferenceTime(src.RunHeader.ReferenceTimeUTC)
		if err != nil {
			log.Printf("source: ignoring unparseable reference time %q: %v", src.RunHeader.ReferenceTimeUTC, err)
		} else {
			subarray.ReferenceTime = refTime
		}
	}

	return subarray, nil
}

func float64Slice(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func float64Matrix(in [][]float32) [][]float64 {
	out := make([][]float64, len(in))
	for i, row := range in {
		out[i] = float64Slice(row)
	}
	return out
}

// Next advances the source and returns the next R0-level ArrayEvent. Pure
// per-event fields (pointing, simulation truth) are populated; R1 onward is
// left to the calibrator. Returns ErrEndOfStream when the stream (or
// max_events) is exhausted.
func (a *ArraySource) Next() (*ArrayEvent, error) {
	rec, shower, runID, err := a.inner.Next()
	if err != nil {
		if errors.Is(err, decode.ErrEndOfStream) {
			return nil, ErrEndOfStream
		}
		if errors.Is(err, decode.ErrCorruptBlock) {
			return nil, errors.Join(ErrCorruptBlock, err)
		}
		return nil, err
	}

	event := NewArrayEvent(rec.EventID, runID)
	event.Pointing = &Pointing{
		Array:      Spherical{Az: float64(rec.PointingAz), Alt: float64(rec.PointingAlt)},
		Telescopes: make(map[int]Spherical),
	}
	for _, tw := range rec.Telescopes {
		id := int(tw.TelescopeID)
		event.R0[id] = &R0Camera{Waveform: tw.Waveform, WaveformSum: tw.WaveformSum}
		event.Pointing.Telescopes[id] = event.Pointing.Array
	}

	if shower != nil {
		event.Simulation = &Simulation{Shower: SimulatedShower{
			EnergyTeV:  float64(shower.EnergyTeV),
			Alt:        float64(shower.Alt),
			Az:         float64(shower.Az),
			CoreX:      float64(shower.CoreX),
			CoreY:      float64(shower.CoreY),
			HFirstInt:  float64(shower.HFirstIntM),
			XMax:       float64(shower.XMaxGCm2),
			ParticleID: int(shower.ParticleID),
		}}
	}
	return event, nil
}

// Seek repositions the source at the zero-based event index, failing with
// ErrUnsupportedFeature-wrapped errors if the underlying stream kind
// cannot support it (e.g. a pure network stream re-scanned on every call).
func (a *ArraySource) Seek(index int) (*ArrayEvent, error) {
	if err := a.inner.Seek(index); err != nil {
		if errors.Is(err, decode.ErrEndOfStream) {
			return nil, ErrIndexOutOfRange
		}
		return nil, errors.Join(ErrUnsupportedFeature, err)
	}
	return a.Next()
}

// Close releases the source's underlying stream resources.
func (a *ArraySource) Close() error {
	return a.inner.Close()
}
