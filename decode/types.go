package decode

// BlockKind identifies the payload format of a block, decoded from the
// type field of its 16-byte header.
type BlockKind uint32

// Block kinds relevant to the reconstruction pipeline. Values are
// arbitrary but stable; they are never persisted outside a single run.
const (
	History BlockKind = 1 + iota
	MetaParam
	RunHeader
	MCRunHeader
	Atmosphere
	CameraSettings
	CameraOrganisation
	PixelSettings
	PixelDisabled
	CameraSoftwareSettings
	PointingCorrections
	TrackingSettings
	MCShower
	MCEvent
	LaserCalibration
	PixelMonitor
	TelescopeMonitor
	TrueImage
	MCPESum
	SimtelEvent // 19
)

// BlockKindNames labels every recognised block kind, used in log output
// when a block has no registered handler.
var BlockKindNames = map[BlockKind]string{
	History:                "HISTORY",
	MetaParam:              "META_PARAM",
	RunHeader:              "RUN_HEADER",
	MCRunHeader:            "MC_RUN_HEADER",
	Atmosphere:             "ATMOSPHERE",
	CameraSettings:         "CAMERA_SETTINGS",
	CameraOrganisation:     "CAMERA_ORGANISATION",
	PixelSettings:          "PIXEL_SETTINGS",
	PixelDisabled:          "PIXEL_DISABLED",
	CameraSoftwareSettings: "CAMERA_SOFTWARE_SETTINGS",
	PointingCorrections:    "POINTING_CORRECTIONS",
	TrackingSettings:       "TRACKING_SETTINGS",
	MCShower:               "MC_SHOWER",
	MCEvent:                "MC_EVENT",
	LaserCalibration:       "LASER_CALIBRATION",
	PixelMonitor:           "PIXEL_MONITOR",
	TelescopeMonitor:       "TELESCOPE_MONITOR",
	TrueImage:              "TRUE_IMAGE",
	MCPESum:                "MC_PE_SUM",
	SimtelEvent:            "SIMTEL_EVENT",
}

// RunHeaderRecord declares the telescope ids participating in the run and
// their fixed ground positions, captured once before any event is emitted.
type RunHeaderRecord struct {
	TelescopeIDs []int32
	PositionsX   []float32
	PositionsY   []float32
	PositionsZ   []float32
	// ReferenceTimeUTC is the run's reference time in "yyyy/ddd hh:mm:ss"
	// form; see ParseReferenceTime.
	ReferenceTimeUTC string
}

// AtmosphereRecord carries the observation-level atmosphere model. Only the
// fields consumed elsewhere in the pipeline are decoded; the rest of the
// model is opaque metadata passed straight through to the writer.
type AtmosphereRecord struct {
	ObservationLevelM float32
	Raw               map[string]float64
}

// CameraSettingsRecord is the per-telescope camera geometry and readout
// declaration.
type CameraSettingsRecord struct {
	TelescopeID           int32
	PixelX                []float32
	PixelY                []float32
	PixelArea             []float32
	PixelShape            int32
	CameraRotationRad     float32
	FocalLengthM          float32
	MirrorAreaM2          float32
	SamplingRateGHz       float32
	NumGainChannels       int32
	ReferencePulseShape   [][]float32
	RefPulseSampleWidthNs float32
}

// MCShowerRecord is the simulated air-shower truth carried by a MC_Shower
// block; it precedes and applies to every MC_Event until the next one.
type MCShowerRecord struct {
	EnergyTeV  float32
	Alt, Az    float32
	CoreX      float32
	CoreY      float32
	HFirstIntM float32
	XMaxGCm2   float32
	ParticleID int32
}

// MCEventRecord ties an event id / run id pair to the MC_Shower record
// active at the time it was read.
type MCEventRecord struct {
	EventID int64
	RunID   int64
}

// TelescopeWaveform is one telescope's raw per-pixel waveform, decoded from
// a SimtelEvent block's per-telescope sub-payload.
type TelescopeWaveform struct {
	TelescopeID int32
	Waveform    [][][]int32 // [channel][pixel][sample]
	WaveformSum []int32
}

// SimtelEventRecord is the fully assembled R0 payload for one array
// trigger: every telescope that read out for this event, plus the array
// pointing direction at trigger time.
type SimtelEventRecord struct {
	EventID     int64
	PointingAlt float32
	PointingAz  float32
	Telescopes  []TelescopeWaveform
}
