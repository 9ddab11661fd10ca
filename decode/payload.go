package decode

import (
	"bytes"
	"encoding/binary"
	"io"
)

// BlockCodec decodes the payload bytes of a block into a typed record. The
// wire layout of each payload is an external contract this package does
// not own; BlockCodec is the seam a real site-specific codec plugs into.
// DefaultBlockCodec below is a straightforward fixed-layout implementation
// adequate for a single-site deployment; sites with a different payload
// layout provide their own BlockCodec to EventSource instead.
type BlockCodec interface {
	DecodeRunHeader(payload []byte, order binary.ByteOrder) (RunHeaderRecord, error)
	DecodeAtmosphere(payload []byte, order binary.ByteOrder) (AtmosphereRecord, error)
	DecodeCameraSettings(payload []byte, order binary.ByteOrder) (CameraSettingsRecord, error)
	DecodeMCShower(payload []byte, order binary.ByteOrder) (MCShowerRecord, error)
	DecodeMCEvent(payload []byte, order binary.ByteOrder) (MCEventRecord, error)
	DecodeSimtelEvent(payload []byte, order binary.ByteOrder) (SimtelEventRecord, error)
}

// DefaultBlockCodec decodes every record as a flat sequence of fixed-width
// fields and count-prefixed arrays, in the order each Decode method reads
// them; that order does not always follow the record's struct field order
// (CameraSettings reads the reference-pulse sample width before the pulse
// shapes). It has no knowledge of any particular site's byte layout beyond
// that convention.
type DefaultBlockCodec struct{}

func readFloat32s(r *bytes.Reader, order binary.ByteOrder, n int32) ([]float32, error) {
	out := make([]float32, n)
	if err := binary.Read(r, order, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func readInt32s(r *bytes.Reader, order binary.ByteOrder, n int32) ([]int32, error) {
	out := make([]int32, n)
	if err := binary.Read(r, order, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (DefaultBlockCodec) DecodeRunHeader(payload []byte, order binary.ByteOrder) (RunHeaderRecord, error) {
	r := bytes.NewReader(payload)
	var n int32
	if err := binary.Read(r, order, &n); err != nil {
		return RunHeaderRecord{}, err
	}
	ids, err := readInt32s(r, order, n)
	if err != nil {
		return RunHeaderRecord{}, err
	}
	x, err := readFloat32s(r, order, n)
	if err != nil {
		return RunHeaderRecord{}, err
	}
	y, err := readFloat32s(r, order, n)
	if err != nil {
		return RunHeaderRecord{}, err
	}
	z, err := readFloat32s(r, order, n)
	if err != nil {
		return RunHeaderRecord{}, err
	}
	var refLen int32
	if err := binary.Read(r, order, &refLen); err != nil {
		return RunHeaderRecord{}, err
	}
	refBytes := make([]byte, refLen)
	if _, err := io.ReadFull(r, refBytes); err != nil {
		return RunHeaderRecord{}, err
	}
	return RunHeaderRecord{
		TelescopeIDs:     ids,
		PositionsX:       x,
		PositionsY:       y,
		PositionsZ:       z,
		ReferenceTimeUTC: string(refBytes),
	}, nil
}

func (DefaultBlockCodec) DecodeAtmosphere(payload []byte, order binary.ByteOrder) (AtmosphereRecord, error) {
	r := bytes.NewReader(payload)
	var level float32
	if err := binary.Read(r, order, &level); err != nil {
		return AtmosphereRecord{}, err
	}
	return AtmosphereRecord{ObservationLevelM: level, Raw: map[string]float64{}}, nil
}

func (DefaultBlockCodec) DecodeCameraSettings(payload []byte, order binary.ByteOrder) (CameraSettingsRecord, error) {
	r := bytes.NewReader(payload)
	var telID, nPixels, shape, nGain int32
	var rotation, focal, mirror, rate, pulseWidth float32
	if err := binary.Read(r, order, &telID); err != nil {
		return CameraSettingsRecord{}, err
	}
	if err := binary.Read(r, order, &nPixels); err != nil {
		return CameraSettingsRecord{}, err
	}
	px, err := readFloat32s(r, order, nPixels)
	if err != nil {
		return CameraSettingsRecord{}, err
	}
	py, err := readFloat32s(r, order, nPixels)
	if err != nil {
		return CameraSettingsRecord{}, err
	}
	area, err := readFloat32s(r, order, nPixels)
	if err != nil {
		return CameraSettingsRecord{}, err
	}
	if err := binary.Read(r, order, &shape); err != nil {
		return CameraSettingsRecord{}, err
	}
	if err := binary.Read(r, order, &rotation); err != nil {
		return CameraSettingsRecord{}, err
	}
	if err := binary.Read(r, order, &focal); err != nil {
		return CameraSettingsRecord{}, err
	}
	if err := binary.Read(r, order, &mirror); err != nil {
		return CameraSettingsRecord{}, err
	}
	if err := binary.Read(r, order, &rate); err != nil {
		return CameraSettingsRecord{}, err
	}
	if err := binary.Read(r, order, &nGain); err != nil {
		return CameraSettingsRecord{}, err
	}
	if err := binary.Read(r, order, &pulseWidth); err != nil {
		return CameraSettingsRecord{}, err
	}
	var pulseLen int32
	if err := binary.Read(r, order, &pulseLen); err != nil {
		return CameraSettingsRecord{}, err
	}
	pulses := make([][]float32, nGain)
	for ch := int32(0); ch < nGain; ch++ {
		shape, err := readFloat32s(r, order, pulseLen)
		if err != nil {
			return CameraSettingsRecord{}, err
		}
		pulses[ch] = shape
	}

	return CameraSettingsRecord{
		TelescopeID:           telID,
		PixelX:                px,
		PixelY:                py,
		PixelArea:             area,
		PixelShape:            shape,
		CameraRotationRad:     rotation,
		FocalLengthM:          focal,
		MirrorAreaM2:          mirror,
		SamplingRateGHz:       rate,
		NumGainChannels:       nGain,
		ReferencePulseShape:   pulses,
		RefPulseSampleWidthNs: pulseWidth,
	}, nil
}

func (DefaultBlockCodec) DecodeMCShower(payload []byte, order binary.ByteOrder) (MCShowerRecord, error) {
	r := bytes.NewReader(payload)
	var rec MCShowerRecord
	fields := []any{&rec.EnergyTeV, &rec.Alt, &rec.Az, &rec.CoreX, &rec.CoreY, &rec.HFirstIntM, &rec.XMaxGCm2, &rec.ParticleID}
	for _, f := range fields {
		if err := binary.Read(r, order, f); err != nil {
			return MCShowerRecord{}, err
		}
	}
	return rec, nil
}

func (DefaultBlockCodec) DecodeMCEvent(payload []byte, order binary.ByteOrder) (MCEventRecord, error) {
	r := bytes.NewReader(payload)
	var rec MCEventRecord
	if err := binary.Read(r, order, &rec.EventID); err != nil {
		return MCEventRecord{}, err
	}
	if err := binary.Read(r, order, &rec.RunID); err != nil {
		return MCEventRecord{}, err
	}
	return rec, nil
}

func (DefaultBlockCodec) DecodeSimtelEvent(payload []byte, order binary.ByteOrder) (SimtelEventRecord, error) {
	r := bytes.NewReader(payload)
	var rec SimtelEventRecord
	if err := binary.Read(r, order, &rec.EventID); err != nil {
		return SimtelEventRecord{}, err
	}
	if err := binary.Read(r, order, &rec.PointingAlt); err != nil {
		return SimtelEventRecord{}, err
	}
	if err := binary.Read(r, order, &rec.PointingAz); err != nil {
		return SimtelEventRecord{}, err
	}
	var nTel int32
	if err := binary.Read(r, order, &nTel); err != nil {
		return SimtelEventRecord{}, err
	}
	rec.Telescopes = make([]TelescopeWaveform, nTel)
	for i := int32(0); i < nTel; i++ {
		var tw TelescopeWaveform
		var nChan, nPix, nSamp int32
		if err := binary.Read(r, order, &tw.TelescopeID); err != nil {
			return SimtelEventRecord{}, err
		}
		if err := binary.Read(r, order, &nChan); err != nil {
			return SimtelEventRecord{}, err
		}
		if err := binary.Read(r, order, &nPix); err != nil {
			return SimtelEventRecord{}, err
		}
		if err := binary.Read(r, order, &nSamp); err != nil {
			return SimtelEventRecord{}, err
		}
		tw.Waveform = make([][][]int32, nChan)
		for ch := int32(0); ch < nChan; ch++ {
			tw.Waveform[ch] = make([][]int32, nPix)
			for p := int32(0); p < nPix; p++ {
				samples, err := readInt32s(r, order, nSamp)
				if err != nil {
					return SimtelEventRecord{}, err
				}
				tw.Waveform[ch][p] = samples
			}
		}
		var hasSum uint8
		if err := binary.Read(r, order, &hasSum); err != nil {
			return SimtelEventRecord{}, err
		}
		if hasSum != 0 {
			sum, err := readInt32s(r, order, nPix)
			if err != nil {
				return SimtelEventRecord{}, err
			}
			tw.WaveformSum = sum
		}
		rec.Telescopes[i] = tw
	}
	return rec, nil
}
