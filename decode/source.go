package decode

import (
	"encoding/binary"
	"errors"
	"log"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// EventSourceOptions configures a new EventSource.
type EventSourceOptions struct {
	Ctx              *tiledb.Context
	NetworkURLPrefix string
	MaxEvents        int     // -1 = unlimited
	SubarrayFilter   []int32 // empty = all telescopes
	LoadAllShowers   bool
	Codec            BlockCodec // nil selects DefaultBlockCodec{}
}

// EventSource is a forward iterator over a block-structured event stream.
// It captures static run configuration on open, then yields one
// SimtelEventRecord per SimtelEvent block it dispatches, paired with the
// MC_Shower record active at the time (nil for non-simulated input).
type EventSource struct {
	uri   string
	opts  EventSourceOptions
	codec BlockCodec

	stream  Stream
	closeFn func() error
	order   binary.ByteOrder

	RunHeader  *RunHeaderRecord
	Atmosphere *AtmosphereRecord
	Cameras    map[int32]CameraSettingsRecord

	filter map[int32]bool

	pendingShower *MCShowerRecord
	pendingEvent  *MCEventRecord
	Showers       []MCShowerRecord

	emitted   int
	exhausted bool
}

// NewEventSource opens uri and reads blocks until the run header, the
// atmosphere model, and every declared telescope's camera settings have
// been captured.
func NewEventSource(uri string, opts EventSourceOptions) (*EventSource, error) {
	if opts.Codec == nil {
		opts.Codec = DefaultBlockCodec{}
	}
	s := &EventSource{
		uri:     uri,
		opts:    opts,
		codec:   opts.Codec,
		Cameras: make(map[int32]CameraSettingsRecord),
	}
	if len(opts.SubarrayFilter) > 0 {
		s.filter = make(map[int32]bool, len(opts.SubarrayFilter))
		for _, id := range opts.SubarrayFilter {
			s.filter[id] = true
		}
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EventSource) open() error {
	stream, closeFn, err := OpenEventStream(s.uri, OpenOptions{Ctx: s.opts.Ctx, NetworkURLPrefix: s.opts.NetworkURLPrefix})
	if err != nil {
		return err
	}
	s.stream = stream
	s.closeFn = closeFn
	s.exhausted = false
	return s.primeStaticConfig()
}

// primeStaticConfig relies on the stream's ordering guarantee that static
// configuration blocks always precede the first MC_Shower or SimtelEvent.
func (s *EventSource) primeStaticConfig() error {
	for s.RunHeader == nil || s.Atmosphere == nil || len(s.Cameras) < s.declaredTelescopeCount() {
		if _, err := s.step(); err != nil {
			return err
		}
	}
	return nil
}

func (s *EventSource) declaredTelescopeCount() int {
	if s.RunHeader == nil {
		return 1
	}
	return len(s.RunHeader.TelescopeIDs)
}

// step reads and dispatches exactly one block. It returns a non-nil
// SimtelEventRecord only when the block just read completes an array
// trigger ready for emission; every other block kind updates internal
// state and returns (nil, nil).
func (s *EventSource) step() (*SimtelEventRecord, error) {
	hdr, skipped, err := ReadBlockHeader(s.stream)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Printf("decode: resynchronized on sync tag after skipping %d bytes", skipped)
	}
	s.order = hdr.ByteOrder

	switch hdr.Kind {
	case RunHeader:
		payload, err := ReadBlockPayload(s.stream, hdr)
		if err != nil {
			return nil, err
		}
		rec, err := s.codec.DecodeRunHeader(payload, hdr.ByteOrder)
		if err != nil {
			return nil, errors.Join(ErrCorruptBlock, err)
		}
		s.RunHeader = &rec

	case Atmosphere:
		payload, err := ReadBlockPayload(s.stream, hdr)
		if err != nil {
			return nil, err
		}
		rec, err := s.codec.DecodeAtmosphere(payload, hdr.ByteOrder)
		if err != nil {
			return nil, errors.Join(ErrCorruptBlock, err)
		}
		s.Atmosphere = &rec

	case CameraSettings:
		payload, err := ReadBlockPayload(s.stream, hdr)
		if err != nil {
			return nil, err
		}
		rec, err := s.codec.DecodeCameraSettings(payload, hdr.ByteOrder)
		if err != nil {
			return nil, errors.Join(ErrCorruptBlock, err)
		}
		s.Cameras[rec.TelescopeID] = rec

	case MCShower:
		payload, err := ReadBlockPayload(s.stream, hdr)
		if err != nil {
			return nil, err
		}
		rec, err := s.codec.DecodeMCShower(payload, hdr.ByteOrder)
		if err != nil {
			return nil, errors.Join(ErrCorruptBlock, err)
		}
		s.pendingShower = &rec
		if s.opts.LoadAllShowers {
			s.Showers = append(s.Showers, rec)
		}

	case MCEvent:
		payload, err := ReadBlockPayload(s.stream, hdr)
		if err != nil {
			return nil, err
		}
		rec, err := s.codec.DecodeMCEvent(payload, hdr.ByteOrder)
		if err != nil {
			return nil, errors.Join(ErrCorruptBlock, err)
		}
		s.pendingEvent = &rec

	case SimtelEvent:
		payload, err := ReadBlockPayload(s.stream, hdr)
		if err != nil {
			return nil, err
		}
		rec, err := s.codec.DecodeSimtelEvent(payload, hdr.ByteOrder)
		if err != nil {
			return nil, errors.Join(ErrCorruptBlock, err)
		}
		if s.filter != nil {
			filtered := rec.Telescopes[:0]
			for _, tw := range rec.Telescopes {
				if s.filter[tw.TelescopeID] {
					filtered = append(filtered, tw)
				}
			}
			rec.Telescopes = filtered
		}
		return &rec, nil

	default:
		if err := SkipBlockPayload(s.stream, hdr); err != nil {
			return nil, err
		}
		log.Printf("decode: skipping block of unregistered kind %s", BlockKindNames[hdr.Kind])
	}
	return nil, nil
}

// Next advances to the next array trigger and returns its SimtelEventRecord
// together with the MC_Shower record active at the time (nil for
// non-simulated input) and the run id from the most recent MC_Event block.
// Returns ErrEndOfStream once no more blocks remain or max_events has been
// reached.
func (s *EventSource) Next() (*SimtelEventRecord, *MCShowerRecord, int64, error) {
	if s.exhausted {
		return nil, nil, 0, ErrEndOfStream
	}
	if s.opts.MaxEvents >= 0 && s.emitted >= s.opts.MaxEvents {
		s.exhausted = true
		return nil, nil, 0, ErrEndOfStream
	}
	for {
		rec, err := s.step()
		if err != nil {
			if errors.Is(err, ErrEndOfStream) {
				s.exhausted = true
			}
			return nil, nil, 0, err
		}
		if rec != nil {
			s.emitted++
			var runID int64
			if s.pendingEvent != nil {
				runID = s.pendingEvent.RunID
			}
			return rec, s.pendingShower, runID, nil
		}
	}
}

// Seek repositions the source at the given zero-based event index by
// closing and reopening the underlying stream and fast-forwarding through
// index events. It always re-reads static configuration, since the
// underlying stream offers no cheaper way to jump directly to a byte
// offset without an external block index.
func (s *EventSource) Seek(index int) error {
	if index < 0 {
		return errors.New("decode: negative seek index")
	}
	if err := s.Close(); err != nil {
		return err
	}
	s.RunHeader = nil
	s.Atmosphere = nil
	s.Cameras = make(map[int32]CameraSettingsRecord)
	s.pendingShower = nil
	s.pendingEvent = nil
	s.Showers = nil
	s.emitted = 0
	s.exhausted = false

	if err := s.open(); err != nil {
		return err
	}
	for i := 0; i < index; i++ {
		if _, _, _, err := s.Next(); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying stream's resources.
func (s *EventSource) Close() error {
	if s.closeFn == nil {
		return nil
	}
	err := s.closeFn()
	s.closeFn = nil
	return err
}
