package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScorer returns a scripted score, letting tests drive the motion
// decision without synthesizing vector fields that excite the IIR filter.
type fakeScorer struct {
	score float64
}

func (s *fakeScorer) Reset()                       {}
func (s *fakeScorer) RunRaw(_ VectorFrame) float64 { return s.score }

func timeAt(sec int) time.Time {
	return time.Unix(1700000000, 0).Add(time.Duration(sec) * time.Second)
}

// tick returns the timestamp of frame i at the given framerate.
func tick(base time.Time, i, fps int) time.Time {
	return base.Add(time.Duration(i) * time.Second / time.Duration(fps))
}

type testPipeline struct {
	scorer *fakeScorer
	motion *MotionBuffer
	video  *VideoBuffer
	raw    *RawBuffer
	rec    *Recorder
	base   string
}

const (
	testFPS       = 20
	testRawSize   = 24 // 4x4 YUV420
	testChunkSize = 10
)

func newTestPipeline(t *testing.T, opts RecorderOptions) *testPipeline {
	t.Helper()

	scorer := &fakeScorer{}
	motion := NewMotionBuffer(scorer, MotionBufferOptions{
		Rows: 2, Cols: 2,
		Framerate:      testFPS,
		BufferSeconds:  10,
		ContextLengthS: opts.ContextLength.Seconds(),
		SoTVThreshold:  5400,
	})
	video := NewVideoBuffer(VideoBufferOptions{
		BitrateBps:     8 * testChunkSize * testFPS,
		BufferSeconds:  10,
		Framerate:      testFPS,
		ContextLengthS: opts.ContextLength.Seconds(),
	})
	raw := NewRawBuffer(RawBufferOptions{
		FrameSize:      testRawSize,
		Framerate:      testFPS,
		BufferSeconds:  10,
		ContextLengthS: opts.ContextLength.Seconds(),
	})

	base := t.TempDir()
	store, err := NewEventStore(base)
	require.NoError(t, err)

	opts.BufferDuration = 10 * time.Second
	rec := NewRecorder(motion, video, raw, store, opts)
	require.NoError(t, rec.openNextDir())

	return &testPipeline{scorer: scorer, motion: motion, video: video, raw: raw, rec: rec, base: base}
}

// feed pushes one frame tick through all three streams and then advances
// the recorder, as the poll loop would.
func (p *testPipeline) feed(i int, now time.Time) {
	p.motion.process(make([]byte, 2*2*VectorEntrySize), now)

	kind := FrameDelta
	if i%testFPS == 0 { // one key frame per second
		kind = FrameKey
	}
	p.video.HandleVideo(make([]byte, testChunkSize), kind, now)
	p.raw.HandleRaw(make([]byte, testRawSize), now)

	p.rec.step(now)
}

// collectEvents drains the finished-event queue without blocking.
func (p *testPipeline) collectEvents() []string {
	var dirs []string
	for {
		select {
		case d := <-p.rec.Events():
			dirs = append(dirs, d)
		default:
			return dirs
		}
	}
}

func eventFileSize(t *testing.T, dir, name string) int64 {
	t.Helper()
	fi, err := os.Stat(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	return fi.Size()
}

func TestNoMotionProducesNoEvents(t *testing.T) {
	p := newTestPipeline(t, RecorderOptions{
		ContextLength:  2 * time.Second,
		MaxEventLength: 10 * time.Second,
	})

	// 5 seconds of zero motion at 20fps.
	base := timeAt(0)
	for i := 0; i < 5*testFPS; i++ {
		p.feed(i, tick(base, i, testFPS))
	}

	assert.Empty(t, p.collectEvents())
	assert.Equal(t, StateIdle, p.rec.State())
	// The pre-allocated directory exists but nothing was written to it.
	assert.Zero(t, eventFileSize(t, filepath.Join(p.base, "event_0"), RawFile))
	assert.Zero(t, eventFileSize(t, filepath.Join(p.base, "event_0"), VectorFile))
}

func TestMotionBurstProducesOneBoundedEvent(t *testing.T) {
	p := newTestPipeline(t, RecorderOptions{
		ContextLength:  2 * time.Second,
		MaxEventLength: 10 * time.Second,
	})

	// 3s below threshold, 4s above, 3s below.
	base := timeAt(0)
	for i := 0; i < 10*testFPS; i++ {
		if i >= 3*testFPS && i < 7*testFPS {
			p.scorer.score = 10000
		} else {
			p.scorer.score = 0
		}
		p.feed(i, tick(base, i, testFPS))
	}

	dirs := p.collectEvents()
	require.Len(t, dirs, 1)

	// Recorded span: 4s motion + 2s trail-off + 2s pre-roll, within one
	// frame period of drift.
	wantFrames := 8 * testFPS
	gotRaw := eventFileSize(t, dirs[0], RawFile) / testRawSize
	assert.InDelta(t, wantFrames, gotRaw, 1)

	elementSize := int64(motionHeaderSize + 2*2*VectorEntrySize)
	gotVect := eventFileSize(t, dirs[0], VectorFile) / elementSize
	assert.InDelta(t, wantFrames, gotVect, 1)

	// Vector and raw streams stay frame-aligned.
	assert.Equal(t, gotRaw, gotVect)

	// The H264 segment starts at a key frame: pre-roll wanted t=1.0s, and
	// key frames land on whole seconds, so no drift at all here.
	gotVideo := eventFileSize(t, dirs[0], VideoFile) / testChunkSize
	assert.InDelta(t, wantFrames, gotVideo, 1)
}

func TestForcedClosureSplitsLongEvent(t *testing.T) {
	p := newTestPipeline(t, RecorderOptions{
		ContextLength:  time.Second,
		MaxEventLength: 4 * time.Second,
	})

	// 12 seconds of continuous motion with a 4s cap: the first event is
	// force-closed and recording continues into the next one.
	base := timeAt(0)
	p.scorer.score = 10000
	for i := 0; i < 12*testFPS; i++ {
		p.feed(i, tick(base, i, testFPS))
	}

	dirs := p.collectEvents()
	require.NotEmpty(t, dirs)
	assert.GreaterOrEqual(t, len(dirs), 2)
	for i, d := range dirs {
		// Events are emitted in creation order.
		assert.Equal(t, filepath.Join(p.base, fmt.Sprintf("event_%d", i)), d)
	}
}

func TestPeriodicFlushBoundsMemory(t *testing.T) {
	p := newTestPipeline(t, RecorderOptions{
		ContextLength:  time.Second,
		MaxEventLength: 30 * time.Second,
	})

	// 9 seconds of motion against a 10s buffer: the 75% heuristic must
	// flush mid-event rather than waiting for the ring to overwrite.
	base := timeAt(0)
	p.scorer.score = 10000

	dir := p.rec.currentDir
	var sawMidEventData bool
	for i := 0; i < 9*testFPS; i++ {
		p.feed(i, tick(base, i, testFPS))
		if i == int(8.5*testFPS) {
			sawMidEventData = eventFileSize(t, dir, RawFile) > int64(2*testFPS*testRawSize)
		}
	}
	assert.True(t, sawMidEventData, "expected a mid-event flush before motion ended")
}

func TestFlushOnFillPolicy(t *testing.T) {
	p := newTestPipeline(t, RecorderOptions{
		ContextLength:  time.Second,
		MaxEventLength: 30 * time.Second,
		FlushOnFill:    true,
	})

	base := timeAt(0)
	p.scorer.score = 10000
	for i := 0; i < 9*testFPS; i++ {
		p.feed(i, tick(base, i, testFPS))
		// With direct fill tracking no buffer may pass the threshold
		// between polls by more than one frame's worth.
		assert.Less(t, p.raw.FillFraction(), 0.80, "frame %d", i)
	}
}

func TestAllocationFailureNeverReusesEmittedDir(t *testing.T) {
	p := newTestPipeline(t, RecorderOptions{
		ContextLength:  time.Second,
		MaxEventLength: 30 * time.Second,
	})

	base := timeAt(0)
	i := 0
	feedSeconds := func(secs int, score float64) {
		p.scorer.score = score
		for end := i + secs*testFPS; i < end; i++ {
			p.feed(i, tick(base, i, testFPS))
		}
	}

	// First event records normally, but directory allocation breaks before
	// it closes: a regular file in the store path makes MkdirAll fail.
	feedSeconds(2, 10000)
	blocked := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(blocked, nil, 0644))
	p.rec.store.BasePath = filepath.Join(blocked, "events")
	feedSeconds(3, 0)

	dirs := p.collectEvents()
	require.Equal(t, []string{filepath.Join(p.base, "event_0")}, dirs)
	handedOff := eventFileSize(t, dirs[0], RawFile)

	// New motion with no directory available: the handed-off directory is
	// left alone and nothing is emitted.
	feedSeconds(2, 10000)
	assert.Empty(t, p.collectEvents())
	assert.Equal(t, StateIdle, p.rec.State())
	assert.Equal(t, handedOff, eventFileSize(t, dirs[0], RawFile))

	// Once allocation recovers, recording resumes in a fresh directory.
	p.rec.store.BasePath = p.base
	feedSeconds(2, 10000)
	feedSeconds(3, 0)
	more := p.collectEvents()
	require.Len(t, more, 1)
	assert.Equal(t, filepath.Join(p.base, "event_1"), more[0])
	assert.Equal(t, handedOff, eventFileSize(t, dirs[0], RawFile))
}

func TestRunWaitsForFirstFrames(t *testing.T) {
	p := newTestPipeline(t, RecorderOptions{
		ContextLength:  time.Second,
		MaxEventLength: 10 * time.Second,
		Warmup:         time.Millisecond,
		PollInterval:   time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.rec.Run(ctx) }()

	// With no frames delivered yet the warm-up gate holds Run parked.
	select {
	case err := <-done:
		t.Fatalf("Run returned before first frames: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	require.False(t, p.rec.started.HasBeenNotified())

	p.rec.HandleMotion(make([]byte, 2*2*VectorEntrySize), timeAt(0))
	require.True(t, p.rec.started.HasBeenNotified())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestDropOldestPolicyKeepsCapturing(t *testing.T) {
	p := newTestPipeline(t, RecorderOptions{
		ContextLength:  time.Second,
		MaxEventLength: 2 * time.Second,
		QueueDepth:     1,
		DropOldest:     true,
	})

	// Continuous motion with a tiny queue: older events are evicted, the
	// recorder never blocks.
	base := timeAt(0)
	p.scorer.score = 10000
	for i := 0; i < 20*testFPS; i++ {
		p.feed(i, tick(base, i, testFPS))
	}

	dirs := p.collectEvents()
	assert.Len(t, dirs, 1)
}
