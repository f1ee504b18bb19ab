package filter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"camtrap/classify"
	"camtrap/video"
)

// EventData is a read-only index over a finished event directory: one byte
// offset per complete raw frame, for random access during confirmation.
type EventData struct {
	Dir       string
	Offsets   []int64
	FrameSize int
	// Start is the wall-clock time of indexing; capture timestamps live in
	// the vector file.
	Start time.Time

	// Detections accumulates classifier output while the event is
	// confirmed, for downstream notification.
	Detections classify.Detections
	// Inferences is how many classifier runs the confirmation took.
	Inferences int
}

// Name returns the event's directory basename, e.g. "event_12".
func (e *EventData) Name() string {
	return filepath.Base(e.Dir)
}

// ReadFrameAt extracts one raw frame from the event's frame file.
func (e *EventData) ReadFrameAt(offset int64) ([]byte, error) {
	f, err := os.Open(filepath.Join(e.Dir, video.RawFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, e.FrameSize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading frame at %d: %w", offset, err)
	}
	return buf, nil
}

// Indexer converts finished event directories into EventData indices. It
// runs as a dedicated worker between the recorder's queue and the
// confirmation stage; its bounded output queue provides backpressure.
type Indexer struct {
	frameSize int
	in        <-chan string
	out       chan *EventData
	now       func() time.Time
}

func NewIndexer(frameSize int, in <-chan string, queueDepth int) *Indexer {
	if queueDepth <= 0 {
		queueDepth = 20
	}
	return &Indexer{
		frameSize: frameSize,
		in:        in,
		out:       make(chan *EventData, queueDepth),
		now:       time.Now,
	}
}

// Events returns indexed events in strict creation order.
func (ix *Indexer) Events() <-chan *EventData {
	return ix.out
}

// Run indexes event directories until the context is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dir := <-ix.in:
			ev, err := ix.Index(dir)
			if err != nil {
				log.Errorf("Cannot index event %v: %v", dir, err)
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ix.out <- ev:
			}
		}
	}
}

// Index scans dir's raw frame file. Frames are fixed size, so offsets are
// computed arithmetically; a truncated trailing frame is dropped rather
// than raising an error.
func (ix *Indexer) Index(dir string) (*EventData, error) {
	fi, err := os.Stat(filepath.Join(dir, video.RawFile))
	if err != nil {
		return nil, err
	}

	n := fi.Size() / int64(ix.frameSize)
	if rem := fi.Size() % int64(ix.frameSize); rem != 0 {
		log.Debugf("Event %v has a partial trailing frame (%d bytes), truncating index", dir, rem)
	}
	offsets := make([]int64, n)
	for i := range offsets {
		offsets[i] = int64(i) * int64(ix.frameSize)
	}

	return &EventData{
		Dir:       dir,
		Offsets:   offsets,
		FrameSize: ix.frameSize,
		Start:     ix.now(),
	}, nil
}
