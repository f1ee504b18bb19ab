// Package filter decides what captured footage is worth keeping: a
// per-frame motion score gates recording, and a classifier confirms
// finished events before they reach the output stage.
package filter

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"camtrap/video"
)

// Mode selects how the filter consumes its upstream. It is fixed at
// construction from the capability of the wired source and never
// re-checked per call.
type Mode int

const (
	// ByFrame scores each frame inline and hands it to a smoothing queue.
	ByFrame Mode = iota
	// ByEvent confirms whole recorded events with the classifier.
	ByEvent
)

func (m Mode) String() string {
	switch m {
	case ByFrame:
		return "by-frame"
	case ByEvent:
		return "by-event"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Frame is the unit of by-frame filtering: one raw frame with its motion
// vectors and capture time.
type Frame struct {
	Raw     []byte
	Vectors []byte
	Time    time.Time
}

// SmoothingQueue is the external collaborator that time-smooths labelled
// frames in by-frame mode. Implementations decide how many neighbouring
// frames a motion label pulls in.
type SmoothingQueue interface {
	// Put adds one scored frame. motion is the thresholded decision.
	Put(f Frame, score float64, motion bool)
	// Close ends the current motion sequence, flushing any held frames.
	Close()
}

// Deleter removes a discarded event directory. Satisfied by
// video.EventStore.
type Deleter interface {
	Delete(dir string) error
}

// Filter dispatches footage through the configured filtering mode.
type Filter struct {
	mode Mode

	// by-frame
	motion    *MotionFilter
	threshold float64
	queue     SmoothingQueue

	// by-event
	indexer   *Indexer
	processor *Processor
	store     Deleter
	out       chan *EventData
}

// NewFrameFilter builds a by-frame filter: each frame is scored inline
// and pushed into the smoothing queue with its motion label.
func NewFrameFilter(motion *MotionFilter, threshold float64, queue SmoothingQueue) *Filter {
	return &Filter{
		mode:      ByFrame,
		motion:    motion,
		threshold: threshold,
		queue:     queue,
	}
}

// NewEventFilter builds a by-event filter consuming the indexer's queue.
// The output queue is small and bounded so unconsumed confirmations
// backpressure the confirmation worker, not the capture loop.
func NewEventFilter(indexer *Indexer, processor *Processor, store Deleter, queueDepth int) *Filter {
	if queueDepth <= 0 {
		queueDepth = 5
	}
	return &Filter{
		mode:      ByEvent,
		indexer:   indexer,
		processor: processor,
		store:     store,
		out:       make(chan *EventData, queueDepth),
	}
}

func (f *Filter) Mode() Mode {
	return f.mode
}

// HandleFrame scores one frame and forwards it to the smoothing queue.
// Only valid in by-frame mode.
func (f *Filter) HandleFrame(fr Frame) {
	if f.mode != ByFrame {
		log.Errorf("HandleFrame called on a %v filter", f.mode)
		return
	}
	if len(fr.Vectors)%video.VectorEntrySize != 0 {
		log.Errorf("Dropping frame with misaligned vector grid of %d bytes", len(fr.Vectors))
		return
	}
	score := f.motion.RunRaw(video.VectorFrame{Data: fr.Vectors})
	f.queue.Put(fr, score, score >= f.threshold)
}

// Flush ends the current by-frame motion sequence, e.g. when the camera
// stalls, and resets the motion filter so stale filter state does not
// leak into the next sequence.
func (f *Filter) Flush() {
	if f.mode != ByFrame {
		return
	}
	f.queue.Close()
	f.motion.Reset()
}

// Events returns confirmed events in by-event mode.
func (f *Filter) Events() <-chan *EventData {
	return f.out
}

// Run consumes indexed events until the context is cancelled: confirmed
// events go to the output queue, the rest are deleted. Inference latency
// lands on this worker alone; capture continues regardless.
func (f *Filter) Run(ctx context.Context) error {
	if f.mode != ByEvent {
		return fmt.Errorf("Run is only valid in by-event mode, filter is %v", f.mode)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.indexer.Events():
			start := time.Now()
			ok, n := f.processor.Process(ev)
			ev.Inferences = n
			log.Infof("Event %v: animal=%v after %d inferences in %v (%s)",
				ev.Dir, ok, n, time.Since(start), ev.Detections.DebugString())

			if !ok {
				metricEventsDiscarded.Inc()
				if err := f.store.Delete(ev.Dir); err != nil {
					log.Errorf("Cannot delete discarded event %v: %v", ev.Dir, err)
				}
				continue
			}
			metricEventsConfirmed.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case f.out <- ev:
			}
		}
	}
}
