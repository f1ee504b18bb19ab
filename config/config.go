package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// CameraSettings describe the stream geometry delivered by the camera
// adapter. The raw stream is resized by the camera hardware to dimensions
// suitable for the detector network; these must be multiples of 32.
type CameraSettings struct {
	Framerate int
	Width     int
	Height    int

	// RawWidth and RawHeight are the dimensions of the decoded raw stream.
	RawWidth  int
	RawHeight int
}

// VectorGrid returns the motion vector grid dimensions for the configured
// resolution. The camera produces one column more than the macroblock count.
func (c CameraSettings) VectorGrid() (rows, cols int) {
	cols = ((c.Width + 15) / 16) + 1
	rows = (c.Height + 15) / 16
	return rows, cols
}

// RawFrameSize returns the byte size of a single raw YUV420 frame
// (1.5 bytes per pixel).
func (c CameraSettings) RawFrameSize() int {
	return c.RawWidth * c.RawHeight * 3 / 2
}

// MotionSettings configure the per-frame motion energy filter.
type MotionSettings struct {
	// SmallThreshold zeroes out macroblock magnitudes below this value to
	// suppress sensor noise.
	SmallThreshold float64
	// SoTVThreshold is the motion decision threshold on the filtered score.
	SoTVThreshold float64

	IIRCutoffHz    float64
	IIROrder       int
	IIRAttenuation float64
}

// ProcessingSettings configure event capture and confirmation.
type ProcessingSettings struct {
	ContextLengthS     float64
	MaxSequencePeriodS float64

	// DetectorFraction selects how much of an event is examined during
	// confirmation. 1.0 is exhaustive, 0.0 evaluates the centre frame only.
	DetectorFraction float64

	// BufferSeconds sizes each ring buffer region in seconds of stream.
	BufferSeconds int
	// BitrateBps is the H264 target bitrate, used only for buffer sizing.
	BitrateBps int

	// FlushOnFill switches the periodic flush trigger from the wall-clock
	// heuristic to direct fill-fraction tracking across all three buffers.
	FlushOnFill bool
	// DropOldestEvent makes a full indexing queue evict the oldest
	// unindexed event instead of blocking the recorder.
	DropOldestEvent bool
}

// AnimalSettings configure the confirmation classifier.
type AnimalSettings struct {
	AnimalThreshold float32
	HumanThreshold  float32
	DetectHumans    bool
}

// OutputSettings configure where events land on disk.
type OutputSettings struct {
	// BasePath is the directory under which event_<n> directories are made.
	BasePath string
	// DatabasePath locates the sqlite event catalog.
	DatabasePath string
}

// NotifySettings configure push notifications for confirmed events.
// Notifications are sent only for hours in [HoursStart, HoursEnd).
type NotifySettings struct {
	HoursStart          int
	HoursEnd            int
	ConfidenceThreshold float32
}

type Settings struct {
	Camera     CameraSettings
	Motion     MotionSettings
	Processing ProcessingSettings
	Animal     AnimalSettings
	Output     OutputSettings
	Notify     NotifySettings
}

// Default returns the settings used when a field is absent from the
// settings file.
func Default() *Settings {
	return &Settings{
		Camera: CameraSettings{
			Framerate: 20,
			Width:     1920,
			Height:    1080,
			RawWidth:  320,
			RawHeight: 320,
		},
		Motion: MotionSettings{
			SmallThreshold: 10,
			SoTVThreshold:  5400.0,
			IIRCutoffHz:    1.25,
			IIROrder:       3,
			IIRAttenuation: 35,
		},
		Processing: ProcessingSettings{
			ContextLengthS:     3.0,
			MaxSequencePeriodS: 10.0,
			DetectorFraction:   1.0,
			BufferSeconds:      10,
			BitrateBps:         17000000,
		},
		Animal: AnimalSettings{
			AnimalThreshold: 0.75,
			HumanThreshold:  0.75,
			DetectHumans:    true,
		},
		Output: OutputSettings{
			BasePath:     "output",
			DatabasePath: "camtrap.db",
		},
		Notify: NotifySettings{
			HoursStart:          0,
			HoursEnd:            24,
			ConfidenceThreshold: 0.9,
		},
	}
}

// Validate rejects settings the pipeline cannot start with. Configuration
// errors are the only faults surfaced to the operator before startup.
func (s *Settings) Validate() error {
	if s.Camera.Framerate <= 0 {
		return fmt.Errorf("camera framerate must be positive, got %d", s.Camera.Framerate)
	}
	if s.Camera.Width <= 0 || s.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution %dx%d", s.Camera.Width, s.Camera.Height)
	}
	if s.Camera.RawWidth%32 != 0 || s.Camera.RawHeight%32 != 0 {
		return fmt.Errorf("raw stream dimensions %dx%d must be multiples of 32", s.Camera.RawWidth, s.Camera.RawHeight)
	}
	if s.Motion.IIROrder < 1 {
		return fmt.Errorf("IIR order must be at least 1, got %d", s.Motion.IIROrder)
	}
	if s.Motion.IIRCutoffHz <= 0 || s.Motion.IIRCutoffHz >= float64(s.Camera.Framerate)/2 {
		return fmt.Errorf("IIR cutoff %.2fHz outside (0, framerate/2)", s.Motion.IIRCutoffHz)
	}
	if s.Motion.IIRAttenuation <= 0 {
		return fmt.Errorf("IIR attenuation must be positive, got %.1f", s.Motion.IIRAttenuation)
	}
	if s.Processing.ContextLengthS < 0 {
		return fmt.Errorf("context length must not be negative, got %.1f", s.Processing.ContextLengthS)
	}
	if s.Processing.MaxSequencePeriodS <= 0 {
		return fmt.Errorf("max sequence period must be positive, got %.1f", s.Processing.MaxSequencePeriodS)
	}
	if s.Processing.DetectorFraction < 0 || s.Processing.DetectorFraction > 1 {
		return fmt.Errorf("detector fraction %.2f outside [0, 1]", s.Processing.DetectorFraction)
	}
	if s.Processing.BufferSeconds <= 0 {
		return fmt.Errorf("buffer seconds must be positive, got %d", s.Processing.BufferSeconds)
	}
	if float64(s.Processing.BufferSeconds) < 2*s.Processing.ContextLengthS {
		return fmt.Errorf("buffer of %ds cannot hold a %.1fs context window twice over", s.Processing.BufferSeconds, s.Processing.ContextLengthS)
	}
	if s.Output.BasePath == "" {
		return fmt.Errorf("output base path must be set")
	}
	return nil
}

// FromFile loads settings from a JSON file, applying defaults for absent
// fields and validating the result.
func FromFile(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := Default()
	if err := json.NewDecoder(f).Decode(s); err != nil {
		return nil, fmt.Errorf("parsing %v: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
