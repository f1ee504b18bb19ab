package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestVectorGrid(t *testing.T) {
	c := CameraSettings{Width: 1920, Height: 1080}
	rows, cols := c.VectorGrid()
	assert.Equal(t, 68, rows)
	assert.Equal(t, 121, cols)

	// Non multiple-of-16 resolutions round up.
	c = CameraSettings{Width: 100, Height: 100}
	rows, cols = c.VectorGrid()
	assert.Equal(t, 7, rows)
	assert.Equal(t, 8, cols)
}

func TestRawFrameSize(t *testing.T) {
	c := CameraSettings{RawWidth: 320, RawHeight: 320}
	assert.Equal(t, 320*320*3/2, c.RawFrameSize())
}

func TestFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	body := `{
		"Camera": {"Framerate": 30},
		"Motion": {"SoTVThreshold": 9000},
		"Processing": {"DetectorFraction": 0.5}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	s, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 30, s.Camera.Framerate)
	assert.Equal(t, 9000.0, s.Motion.SoTVThreshold)
	assert.Equal(t, 0.5, s.Processing.DetectorFraction)
	// Untouched fields keep defaults.
	assert.Equal(t, 1920, s.Camera.Width)
	assert.Equal(t, 3.0, s.Processing.ContextLengthS)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	for name, mutate := range map[string]func(*Settings){
		"zero framerate":      func(s *Settings) { s.Camera.Framerate = 0 },
		"unaligned raw dims":  func(s *Settings) { s.Camera.RawWidth = 300 },
		"cutoff over nyquist": func(s *Settings) { s.Motion.IIRCutoffHz = 11 },
		"zero order":          func(s *Settings) { s.Motion.IIROrder = 0 },
		"fraction over one":   func(s *Settings) { s.Processing.DetectorFraction = 1.5 },
		"context over buffer": func(s *Settings) { s.Processing.ContextLengthS = 6 },
		"empty base path":     func(s *Settings) { s.Output.BasePath = "" },
	} {
		t.Run(name, func(t *testing.T) {
			s := Default()
			mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}
