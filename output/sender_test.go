package output

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camtrap/catalog"
	"camtrap/classify"
	"camtrap/filter"
)

func TestPublishCatalogsConfirmedEvents(t *testing.T) {
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	in := make(chan *filter.EventData, 1)
	// No ffmpeg binary in the test environment; remux is disabled.
	s := NewSender(SenderOptions{Framerate: 20}, in, cat, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	in <- &filter.EventData{
		Dir:        filepath.Join("out", "event_7"),
		Offsets:    make([]int64, 42),
		Start:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Inferences: 3,
		Detections: classify.Detections{"animal": 0.93},
	}

	require.Eventually(t, func() bool {
		n, err := cat.Count()
		return err == nil && n == 1
	}, time.Second, 10*time.Millisecond)

	evs, err := cat.Recent(1)
	require.NoError(t, err)
	rec := evs[0]
	assert.Equal(t, "event_7", rec.Name)
	assert.Equal(t, 42, rec.Frames)
	assert.Equal(t, 3, rec.Inferences)
	assert.Equal(t, "animal", rec.Detection)
	assert.Equal(t, float32(0.93), rec.Confidence)

	cancel()
	done := make(chan struct{})
	go func() {
		s.WaitStopped()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not stop after cancellation")
	}
}
