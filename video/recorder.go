package video

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"camtrap/util"
)

// RecorderState is the capture state machine's current mode.
type RecorderState int

const (
	// StateIdle: no motion, buffers free-running and self-overwriting.
	StateIdle RecorderState = iota
	// StateMotionActive: motion confirmed, an event is open on disk.
	StateMotionActive
	// StateTrailOff: motion ended, still recording the post-roll.
	StateTrailOff
)

func (s RecorderState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMotionActive:
		return "motion"
	case StateTrailOff:
		return "trailoff"
	}
	return "unknown"
}

// RecorderOptions tune the capture state machine.
type RecorderOptions struct {
	ContextLength  time.Duration
	MaxEventLength time.Duration
	// BufferDuration is the nominal time span of one ring buffer region.
	BufferDuration time.Duration

	// PollInterval is the monitoring loop granularity. Sub-second, so the
	// periodic flush check stays responsive.
	PollInterval time.Duration
	// Warmup delays monitoring after startup while the camera settles.
	Warmup time.Duration

	// FlushFraction triggers a mid-event flush once this much of the
	// buffer window has elapsed (or filled, with FlushOnFill).
	FlushFraction float64
	// FlushOnFill tracks fill fraction per buffer directly instead of
	// assuming nominal timing. Guards against ring overwrite during
	// higher-than-nominal bitrate scenes.
	FlushOnFill bool

	// QueueDepth bounds the finished-event queue. DropOldest evicts the
	// oldest unindexed event when full instead of blocking capture.
	QueueDepth int
	DropOldest bool
}

func (o *RecorderOptions) applyDefaults() {
	if o.PollInterval == 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.FlushFraction == 0 {
		o.FlushFraction = 0.75
	}
	if o.QueueDepth == 0 {
		o.QueueDepth = 20
	}
}

// Recorder watches the motion decision and commits ring buffer contents to
// event directories on disk. It is the only goroutine that switches or
// drains buffers; stream callbacks only append.
//
// It also implements the stream handler callbacks, fanning the camera
// adapter's three streams into the corresponding buffers.
type Recorder struct {
	motion *MotionBuffer
	video  *VideoBuffer
	raw    *RawBuffer
	store  *EventStore
	opts   RecorderOptions

	out chan string

	state      atomic.Int32 // RecorderState
	currentDir string
	eventStart time.Time
	lastFlush  time.Time
	trailUntil time.Time

	started *util.Event

	now func() time.Time
}

func NewRecorder(motion *MotionBuffer, video *VideoBuffer, raw *RawBuffer, store *EventStore, opts RecorderOptions) *Recorder {
	opts.applyDefaults()
	return &Recorder{
		motion:  motion,
		video:   video,
		raw:     raw,
		store:   store,
		opts:    opts,
		out:     make(chan string, opts.QueueDepth),
		started: util.NewEvent(),
		now:     time.Now,
	}
}

// Events returns the FIFO queue of completed event directories. Each
// completed event is delivered exactly once, at trail-off completion or
// forced closure.
func (r *Recorder) Events() <-chan string {
	return r.out
}

// HandleMotion implements the camera adapter's motion vector callback. The
// first delivery releases the warm-up gate.
func (r *Recorder) HandleMotion(vectors []byte, ts time.Time) {
	r.started.Notify()
	r.motion.HandleMotion(vectors, ts)
}

// HandleVideo implements the encoded video callback.
func (r *Recorder) HandleVideo(chunk []byte, kind FrameKind, ts time.Time) {
	r.video.HandleVideo(chunk, kind, ts)
}

// HandleRaw implements the decoded raw frame callback.
func (r *Recorder) HandleRaw(frame []byte, ts time.Time) {
	r.raw.HandleRaw(frame, ts)
}

// Run drives the monitoring loop until the context is cancelled. The loop
// polls rather than blocking on hardware delivery: a stalled source simply
// yields no new motion decision and the next scheduled check proceeds.
func (r *Recorder) Run(ctx context.Context) error {
	if r.currentDir == "" {
		if err := r.openNextDir(); err != nil {
			return err
		}
	}
	if err := r.waitWarmup(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.step(r.now())
		}
	}
}

// waitWarmup blocks until the camera adapter has delivered its first frames
// and the configured settle period has elapsed. Monitoring motion earlier
// would trigger on exposure and white balance swings during startup.
func (r *Recorder) waitWarmup(ctx context.Context) error {
	delivered := make(chan struct{})
	go func() {
		r.started.Wait()
		close(delivered)
	}()
	select {
	case <-ctx.Done():
		// Unblock the waiter before abandoning it.
		r.started.Notify()
		return ctx.Err()
	case <-delivered:
	}
	if r.opts.Warmup > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.Warmup):
		}
	}
	return nil
}

func (r *Recorder) openNextDir() error {
	dir, err := r.store.NewEventDir()
	if err != nil {
		return err
	}
	r.currentDir = dir
	return nil
}

// step advances the state machine by one poll.
func (r *Recorder) step(now time.Time) {
	r.publishFill()

	switch RecorderState(r.state.Load()) {
	case StateIdle:
		if !r.motion.IsMotion() {
			return
		}
		if r.currentDir == "" {
			// A previous allocation failed at trail-off. An emitted
			// directory is never written again, so recording cannot start
			// until a fresh one exists.
			if err := r.openNextDir(); err != nil {
				log.Errorf("Still cannot allocate event directory, motion not recorded: %v", err)
				return
			}
		}
		log.Infof("Motion detected, emptying buffers to disk at %v", r.currentDir)
		r.flushAll(true)
		r.state.Store(int32(StateMotionActive))
		r.eventStart = now
		r.lastFlush = now
		metricEventsStarted.Inc()

	case StateMotionActive:
		if !r.motion.IsMotion() {
			log.Infof("Motion ended, event length %.2fs, trailing off", now.Sub(r.eventStart).Seconds())
			r.beginTrailOff(now)
			return
		}
		if now.Sub(r.eventStart) >= r.opts.MaxEventLength {
			log.Infof("Event reached maximum length %v, forcing closure", r.opts.MaxEventLength)
			r.beginTrailOff(now)
			return
		}
		if r.shouldFlush(now) {
			r.flushAll(false)
			r.lastFlush = now
		}

	case StateTrailOff:
		if now.Before(r.trailUntil) {
			return
		}
		r.flushAll(false)
		r.emit(r.currentDir)
		metricEventsClosed.Inc()
		log.Debugf("Average motion compute time over event: %v", r.motion.AverageComputeTime())
		// The emitted directory now belongs to the confirmation side and
		// must never be written to or emitted again.
		r.currentDir = ""
		if err := r.openNextDir(); err != nil {
			// Keep the pipeline alive; allocation is retried before the
			// next event starts.
			log.Errorf("Cannot allocate next event directory: %v", err)
		}
		r.state.Store(int32(StateIdle))
	}
}

// beginTrailOff keeps recording for one context length without re-checking
// motion, so events carry a symmetric post-roll.
func (r *Recorder) beginTrailOff(now time.Time) {
	r.state.Store(int32(StateTrailOff))
	r.trailUntil = now.Add(r.opts.ContextLength)
}

// shouldFlush decides whether a mid-event flush is due. The default
// heuristic uses elapsed wall-clock time as a proxy for buffer fill, which
// keeps all three buffers on the same cadence regardless of per-stream byte
// rates. FlushOnFill instead flushes on the minimum remaining headroom
// across the buffers.
func (r *Recorder) shouldFlush(now time.Time) bool {
	if r.opts.FlushOnFill {
		fill := r.motion.FillFraction()
		if f := r.video.FillFraction(); f > fill {
			fill = f
		}
		if f := r.raw.FillFraction(); f > fill {
			fill = f
		}
		return fill >= r.opts.FlushFraction
	}
	window := time.Duration(r.opts.FlushFraction * float64(r.opts.BufferDuration))
	return now.Sub(r.lastFlush) > window
}

// flushAll switches all three buffers back-to-back, then drains them into
// the current event directory. Switching first keeps the streams mutually
// frame-aligned even when draining is slow.
func (r *Recorder) flushAll(isStart bool) {
	started := time.Now()

	r.video.Switch()
	r.raw.Switch()
	r.motion.Switch()

	r.video.WriteInactive(filepath.Join(r.currentDir, VideoFile), isStart)
	r.raw.WriteInactive(filepath.Join(r.currentDir, RawFile), isStart)
	r.motion.WriteInactive(filepath.Join(r.currentDir, VectorFile), isStart)

	metricFlushSeconds.Observe(time.Since(started).Seconds())
}

// emit pushes a completed event directory to the output queue. The default
// policy blocks for backpressure; DropOldest instead evicts the oldest
// unindexed event so memory stays bounded.
func (r *Recorder) emit(dir string) {
	if !r.opts.DropOldest {
		r.out <- dir
		return
	}
	for {
		select {
		case r.out <- dir:
			return
		default:
		}
		select {
		case dropped := <-r.out:
			log.Errorf("Indexing queue full, dropping unindexed event %v", dropped)
			metricEventsDropped.Inc()
		default:
		}
	}
}

func (r *Recorder) publishFill() {
	metricBufferFill.WithLabelValues("motion").Set(r.motion.FillFraction())
	metricBufferFill.WithLabelValues("video").Set(r.video.FillFraction())
	metricBufferFill.WithLabelValues("raw").Set(r.raw.FillFraction())
}

// State reports the current capture state. Safe to call from other
// goroutines; used by status reporting.
func (r *Recorder) State() RecorderState {
	return RecorderState(r.state.Load())
}

// LastScore reports the most recent motion energy score.
func (r *Recorder) LastScore() float64 {
	return r.motion.LastScore()
}
