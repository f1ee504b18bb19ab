package filter

import (
	"camtrap/config"
	"camtrap/video"
)

// MotionFilter converts motion vector frames into a smoothed scalar motion
// energy estimate. Per frame it sums all macroblock magnitudes above the
// small-value threshold (the SoTV metric) and low-pass filters the sum to
// suppress frame-to-frame jitter while keeping sustained motion trends.
//
// The motion decision itself (score against the SoTV threshold) belongs to
// the caller.
type MotionFilter struct {
	smallThreshold float64
	lp             *lowPass
}

// NewMotionFilter builds a filter for a vector stream sampled at
// framerate Hz.
func NewMotionFilter(settings config.MotionSettings, framerate float64) (*MotionFilter, error) {
	lp, err := newLowPass(settings.IIROrder, settings.IIRCutoffHz, settings.IIRAttenuation, framerate)
	if err != nil {
		return nil, err
	}
	return &MotionFilter{
		smallThreshold: settings.SmallThreshold,
		lp:             lp,
	}, nil
}

// Reset clears filter history so the next score is independent of frames
// seen before the reset. Call at the start of a new motion sequence.
func (m *MotionFilter) Reset() {
	m.lp.Reset()
}

// RunRaw scores one vector frame. The result is finite and non-negative.
func (m *MotionFilter) RunRaw(frame video.VectorFrame) float64 {
	sotv := 0.0
	n := len(frame.Data) / video.VectorEntrySize
	for i := 0; i < n; i++ {
		if mag := frame.Magnitude(i); mag >= m.smallThreshold {
			sotv += mag
		}
	}
	score := m.lp.Filter(sotv)
	// The stop-band ripple of the IIR can undershoot zero on sharp edges.
	if score < 0 {
		return 0
	}
	return score
}
