package filter

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camtrap/config"
	"camtrap/video"
)

func testMotionSettings() config.MotionSettings {
	return config.MotionSettings{
		SmallThreshold: 10,
		SoTVThreshold:  5400,
		IIRCutoffHz:    1.25,
		IIROrder:       3,
		IIRAttenuation: 35,
	}
}

// uniformFrame builds a vector frame where every macroblock moves by
// (dx, dy).
func uniformFrame(rows, cols int, dx, dy int8) video.VectorFrame {
	data := make([]byte, rows*cols*video.VectorEntrySize)
	for i := 0; i < rows*cols; i++ {
		data[i*video.VectorEntrySize] = byte(dx)
		data[i*video.VectorEntrySize+1] = byte(dy)
	}
	return video.VectorFrame{Rows: rows, Cols: cols, Data: data}
}

func TestRunRawFiniteNonNegative(t *testing.T) {
	m, err := NewMotionFilter(testMotionSettings(), 20)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		f := uniformFrame(8, 9, 0, 0)
		rng.Read(f.Data)
		score := m.RunRaw(f)
		require.False(t, math.IsNaN(score) || math.IsInf(score, 0), "frame %d: score %v", i, score)
		require.GreaterOrEqual(t, score, 0.0, "frame %d", i)
	}
}

func TestRunRawConvergesToSustainedEnergy(t *testing.T) {
	m, err := NewMotionFilter(testMotionSettings(), 20)
	require.NoError(t, err)

	// 68x121 grid at (30, 40): every block contributes magnitude 50.
	f := uniformFrame(68, 121, 30, 40)
	want := float64(68 * 121 * 50)

	var score float64
	for i := 0; i < 400; i++ {
		score = m.RunRaw(f)
	}
	// Unity DC gain: the filtered score settles at the raw SoTV.
	assert.InEpsilon(t, want, score, 0.01)
}

func TestSmallThresholdSuppressesNoise(t *testing.T) {
	m, err := NewMotionFilter(testMotionSettings(), 20)
	require.NoError(t, err)

	// Magnitude 5 per block, below the threshold of 10.
	f := uniformFrame(68, 121, 3, 4)
	for i := 0; i < 200; i++ {
		assert.Zero(t, m.RunRaw(f))
	}
}

func TestResetClearsHistory(t *testing.T) {
	settings := testMotionSettings()
	m, err := NewMotionFilter(settings, 20)
	require.NoError(t, err)

	fresh, err := NewMotionFilter(settings, 20)
	require.NoError(t, err)

	still := uniformFrame(8, 9, 0, 0)
	moving := uniformFrame(8, 9, 60, 60)

	// Accumulate history, then reset.
	for i := 0; i < 100; i++ {
		m.RunRaw(moving)
	}
	m.Reset()

	// After reset the output must match a brand new filter.
	for i := 0; i < 50; i++ {
		assert.Equal(t, fresh.RunRaw(still), m.RunRaw(still), "frame %d", i)
	}
}

func TestDecisionThresholdSeparatesMotion(t *testing.T) {
	settings := testMotionSettings()
	m, err := NewMotionFilter(settings, 20)
	require.NoError(t, err)

	still := uniformFrame(68, 121, 0, 0)
	for i := 0; i < 100; i++ {
		assert.Less(t, m.RunRaw(still), settings.SoTVThreshold)
	}

	m.Reset()
	moving := uniformFrame(68, 121, 30, 40)
	var score float64
	for i := 0; i < 100; i++ {
		score = m.RunRaw(moving)
	}
	assert.GreaterOrEqual(t, score, settings.SoTVThreshold)
}

func TestNewMotionFilterRejectsBadDesign(t *testing.T) {
	bad := testMotionSettings()
	bad.IIRCutoffHz = 15 // above Nyquist for 20fps
	_, err := NewMotionFilter(bad, 20)
	assert.Error(t, err)

	bad = testMotionSettings()
	bad.IIROrder = 0
	_, err = NewMotionFilter(bad, 20)
	assert.Error(t, err)
}

func TestLowPassEvenOrder(t *testing.T) {
	lp, err := newLowPass(4, 1.25, 40, 20)
	require.NoError(t, err)

	var y float64
	for i := 0; i < 400; i++ {
		y = lp.Filter(1)
	}
	assert.InDelta(t, 1.0, y, 0.01)
}
