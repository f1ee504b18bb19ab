package filter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camtrap/classify"
	"camtrap/config"
	"camtrap/video"
)

func TestEventFilterConfirmsAnimalEvents(t *testing.T) {
	store, err := video.NewEventStore(t.TempDir())
	require.NoError(t, err)

	confirmed, err := store.NewEventDir()
	require.NoError(t, err)
	writeRawFrames(t, confirmed, 16, 5, 0)

	in := make(chan string, 2)
	ix := NewIndexer(16, in, 2)
	cl := &scriptedClassifier{results: map[int]classify.Result{
		2: {Animal: true, Detections: classify.Detections{"animal": 0.8}},
	}}
	f := NewEventFilter(ix, NewProcessor(cl, 0), store, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ix.Run(ctx)
	go f.Run(ctx)

	in <- confirmed
	select {
	case ev := <-f.Events():
		assert.Equal(t, confirmed, ev.Dir)
		assert.Equal(t, float32(0.8), ev.Detections["animal"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for confirmed event")
	}
}

func TestEventFilterDeletesEmptyEvents(t *testing.T) {
	store, err := video.NewEventStore(t.TempDir())
	require.NoError(t, err)
	dir, err := store.NewEventDir()
	require.NoError(t, err)
	writeRawFrames(t, dir, 16, 5, 0)

	in := make(chan string, 1)
	ix := NewIndexer(16, in, 1)
	f := NewEventFilter(ix, NewProcessor(&scriptedClassifier{}, 1.0), store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ix.Run(ctx)
	go f.Run(ctx)

	in <- dir
	require.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond, "empty event directory must be deleted")
}

type recordingQueue struct {
	frames []Frame
	scores []float64
	labels []bool
	closed int
}

func (q *recordingQueue) Put(f Frame, score float64, motion bool) {
	q.frames = append(q.frames, f)
	q.scores = append(q.scores, score)
	q.labels = append(q.labels, motion)
}

func (q *recordingQueue) Close() { q.closed++ }

func TestFrameFilterLabelsFrames(t *testing.T) {
	mf, err := NewMotionFilter(config.Default().Motion, 20)
	require.NoError(t, err)
	q := &recordingQueue{}
	f := NewFrameFilter(mf, config.Default().Motion.SoTVThreshold, q)
	assert.Equal(t, ByFrame, f.Mode())

	still := make([]byte, 64*video.VectorEntrySize)
	for i := 0; i < 40; i++ {
		f.HandleFrame(Frame{Vectors: still})
	}
	require.Len(t, q.frames, 40)
	for _, motion := range q.labels {
		assert.False(t, motion, "a still scene must never be labelled motion")
	}

	// Misaligned grids are dropped, not queued.
	f.HandleFrame(Frame{Vectors: make([]byte, 3)})
	assert.Len(t, q.frames, 40)

	moving := make([]byte, 64*video.VectorEntrySize)
	for i := 0; i < 64; i++ {
		moving[i*video.VectorEntrySize] = byte(int8(90))
	}
	for i := 0; i < 200; i++ {
		f.HandleFrame(Frame{Vectors: moving})
	}
	assert.True(t, q.labels[len(q.labels)-1], "sustained motion must be labelled")

	f.Flush()
	assert.Equal(t, 1, q.closed)
}
