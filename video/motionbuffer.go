package video

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// motionHeaderSize is the per-element header: float64 timestamp (seconds)
// followed by float64 score, both little-endian.
const motionHeaderSize = 16

// ScoreSkipped is written in place of a motion score when filtering was
// skipped to catch up with the real-time budget.
const ScoreSkipped = -1.0

// Scorer turns one motion vector frame into a scalar motion energy
// estimate. Implemented by filter.MotionFilter.
type Scorer interface {
	Reset()
	RunRaw(VectorFrame) float64
}

type queuedVectors struct {
	data []byte
	ts   time.Time
}

// MotionBuffer buffers motion vector records and runs the motion scorer
// over each frame as it arrives. Records are fixed size, so the region
// capacity is rounded to whole elements and ring eviction keeps the stream
// element-aligned.
//
// Scoring runs in its own worker fed by a bounded queue: if filtering falls
// behind the frame period, upcoming frames are recorded with the skip
// sentinel instead of a score so the buffer never stalls the camera
// callback. The most recent motion decision is published through an atomic
// flag for the recorder's poll loop.
type MotionBuffer struct {
	buf    *DualBuffer
	scorer Scorer

	rows, cols  int
	elementSize int
	framerate   int

	threshold atomic.Uint64 // float64 bits
	isMotion  atomic.Bool
	lastScore atomic.Uint64 // float64 bits

	queue chan queuedVectors

	// target is the per-frame compute budget (half a frame period).
	target time.Duration
	skip   int

	computeTimes []time.Duration
	computeIdx   int
}

// MotionBufferOptions size and tune a MotionBuffer.
type MotionBufferOptions struct {
	Rows, Cols     int
	Framerate      int
	BufferSeconds  int
	ContextLengthS float64
	SoTVThreshold  float64
}

func NewMotionBuffer(scorer Scorer, o MotionBufferOptions) *MotionBuffer {
	elementSize := motionHeaderSize + o.Rows*o.Cols*VectorEntrySize
	capacity := elementSize * o.BufferSeconds * o.Framerate
	// Rounded down to whole elements so an event-starting drain never
	// begins mid-record.
	contextBytes := int64(float64(elementSize*o.Framerate) * o.ContextLengthS)
	contextBytes -= contextBytes % int64(elementSize)

	m := &MotionBuffer{
		scorer:       scorer,
		rows:         o.Rows,
		cols:         o.Cols,
		elementSize:  elementSize,
		framerate:    o.Framerate,
		queue:        make(chan queuedVectors, 100),
		target:       time.Second / time.Duration(2*o.Framerate),
		computeTimes: make([]time.Duration, 0, 100),
	}
	m.threshold.Store(math.Float64bits(o.SoTVThreshold))
	m.buf = NewDualBuffer(capacity, func(r *ring) (int64, error) {
		start := r.head - contextBytes
		// Capacity is a whole number of elements, so the clamped tail is
		// already element-aligned.
		if start < r.tail {
			start = r.tail
		}
		return start, nil
	})
	return m
}

// HandleMotion queues one vector grid for scoring and recording. Never
// blocks: when the queue is full the oldest pending frame is dropped. The
// caller may reuse vectors after this returns.
func (m *MotionBuffer) HandleMotion(vectors []byte, ts time.Time) {
	data := make([]byte, len(vectors))
	copy(data, vectors)
	q := queuedVectors{data: data, ts: ts}
	for {
		select {
		case m.queue <- q:
			return
		default:
		}
		select {
		case <-m.queue:
		default:
		}
	}
}

// Run processes queued vector frames until the queue is closed.
func (m *MotionBuffer) Run() {
	for q := range m.queue {
		m.process(q.data, q.ts)
	}
}

// Close stops the scoring worker once the queue drains.
func (m *MotionBuffer) Close() {
	close(m.queue)
}

// process scores one frame (unless catching up) and appends the record to
// the active region.
func (m *MotionBuffer) process(vectors []byte, ts time.Time) {
	score := ScoreSkipped
	if m.skip > 0 {
		m.skip--
		metricMotionSkipped.Inc()
	} else {
		started := time.Now()
		score = m.scorer.RunRaw(VectorFrame{Rows: m.rows, Cols: m.cols, Data: vectors})
		elapsed := time.Since(started)
		m.recordComputeTime(elapsed)

		m.isMotion.Store(score >= math.Float64frombits(m.threshold.Load()))
		m.lastScore.Store(math.Float64bits(score))
		metricMotionScore.Set(score)

		if elapsed > m.target {
			// Behind budget: skip scoring upcoming frames to recover.
			m.skip = int(elapsed / m.target)
			log.Debugf("Motion filter over budget (%v), skipping %d frames", elapsed, m.skip)
		}
	}

	record := make([]byte, m.elementSize)
	binary.LittleEndian.PutUint64(record[0:], math.Float64bits(float64(ts.UnixNano())/1e9))
	binary.LittleEndian.PutUint64(record[8:], math.Float64bits(score))
	copy(record[motionHeaderSize:], vectors)
	m.buf.Write(record)
	metricFramesIngested.WithLabelValues("motion").Inc()
}

// SetThreshold applies a new motion decision threshold. Safe to call while
// the scoring worker runs; the next scored frame uses it.
func (m *MotionBuffer) SetThreshold(v float64) {
	m.threshold.Store(math.Float64bits(v))
}

// IsMotion reports the most recent motion decision.
func (m *MotionBuffer) IsMotion() bool {
	return m.isMotion.Load()
}

// LastScore returns the most recently computed motion score.
func (m *MotionBuffer) LastScore() float64 {
	return math.Float64frombits(m.lastScore.Load())
}

// Switch exchanges the active and inactive regions.
func (m *MotionBuffer) Switch() {
	m.buf.Switch()
}

// WriteInactive drains the inactive region to path per the context policy.
func (m *MotionBuffer) WriteInactive(path string, isStart bool) {
	m.buf.WriteInactive(path, isStart)
}

// FillFraction reports how full the active region is.
func (m *MotionBuffer) FillFraction() float64 {
	return m.buf.FillFraction()
}

func (m *MotionBuffer) recordComputeTime(d time.Duration) {
	if len(m.computeTimes) < cap(m.computeTimes) {
		m.computeTimes = append(m.computeTimes, d)
	} else {
		m.computeTimes[m.computeIdx] = d
		m.computeIdx = (m.computeIdx + 1) % len(m.computeTimes)
	}
}

// AverageComputeTime reports the mean scoring time over the recent window,
// or -1 when nothing has been scored yet.
func (m *MotionBuffer) AverageComputeTime() time.Duration {
	if len(m.computeTimes) == 0 {
		return -1
	}
	var sum time.Duration
	for _, d := range m.computeTimes {
		sum += d
	}
	return sum / time.Duration(len(m.computeTimes))
}
