package reco

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
)

// Config is the root, JSON-backed configuration document covering every
// processor's tunables, mirroring the original's component-scoped
// configuration blocks (ImageProcessor, ShowerProcessor, Calibrator, ...).
type Config struct {
	EventSource      EventSourceConfig      `json:"EventSource"`
	Calibrator       CalibratorConfig       `json:"Calibrator"`
	ImageProcessor   ImageProcessorConfig   `json:"ImageProcessor"`
	ShowerProcessor  ShowerProcessorConfig  `json:"ShowerProcessor"`
	DataWriter       DataWriterConfig       `json:"DataWriter"`
}

// EventSourceConfig mirrors §6's EventSource configuration block.
type EventSourceConfig struct {
	MaxEvents        int      `json:"max_events"`
	AllowedTels      []int    `json:"allowed_tels"`
	LoadAllShowers   bool     `json:"load_all_showers"`
}

// ImageProcessorConfig mirrors §6's ImageProcessor configuration block.
type ImageProcessorConfig struct {
	ImageCleanerType string          `json:"image_cleaner_type"`
	TailcutsCleaner  TailcutsCleaner `json:"TailcutsCleaner"`
}

// ShowerProcessorConfig mirrors §6's ShowerProcessor configuration block.
type ShowerProcessorConfig struct {
	ReconstructorTypes []string          `json:"reconstructor_types"`
	Selectors          map[string]string `json:"image_selectors"` // label -> expression
}

// DataWriterConfig mirrors §6's DataWriter configuration block.
type DataWriterConfig struct {
	OutputPath      string   `json:"output_path"`
	WriteLevels     []string `json:"write_levels"`
	OverwriteExisting bool   `json:"overwrite"`
}

// DefaultConfig returns the factory defaults for every component.
func DefaultConfig() Config {
	return Config{
		EventSource: EventSourceConfig{
			MaxEvents: -1,
		},
		Calibrator: DefaultCalibratorConfig(),
		ImageProcessor: ImageProcessorConfig{
			ImageCleanerType: "Tailcuts_cleaner",
			TailcutsCleaner:  DefaultTailcutsConfig(),
		},
		ShowerProcessor: ShowerProcessorConfig{
			ReconstructorTypes: []string{"HillasReconstructor"},
		},
		DataWriter: DataWriterConfig{
			WriteLevels: []string{"dl1", "dl2"},
		},
	}
}

// LoadConfig reads a JSON configuration document from path and merges it
// over DefaultConfig. Unknown top-level keys are logged and otherwise
// ignored rather than rejected, matching the original's tolerant config
// loader.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Join(ErrFileOpen, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err == nil {
		for key := range keys {
			switch key {
			case "EventSource", "Calibrator", "ImageProcessor", "ShowerProcessor", "DataWriter":
			default:
				log.Printf("config: ignoring unknown key %q", key)
			}
		}
	}
	return cfg, nil
}

// BuildShowerSelector compiles the ShowerProcessor's image_selectors map
// into a Query, or returns nil (accept-all) if none are configured.
func (c ShowerProcessorConfig) BuildShowerSelector() (*Query, error) {
	if len(c.Selectors) == 0 {
		return nil, nil
	}
	q, err := NewQueryMap(c.Selectors)
	if err != nil {
		return nil, fmt.Errorf("image_selectors: %w", err)
	}
	return q, nil
}
