package video

import (
	"errors"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// errDiscard is returned by a drainStartFunc when the inactive region
// cannot yield a usable segment and must be dropped instead.
var errDiscard = errors.New("inactive region not drainable")

// drainStartFunc picks the absolute stream offset at which an
// event-starting drain begins reading a region. It implements the pre-roll
// context policy of each buffer specialization.
type drainStartFunc func(r *ring) (int64, error)

// DualBuffer owns two equally sized ring regions, active and inactive. The
// active region accepts writes from the stream callback; the inactive one
// is drained to disk by the recorder. Switch atomically exchanges the two.
//
// Only the recorder goroutine may call Switch and WriteInactive; the stream
// callback only writes. That keeps the inactive region single-owner, so
// draining never blocks the writer.
type DualBuffer struct {
	mu       sync.Mutex
	active   *ring
	inactive *ring

	contextStart drainStartFunc
}

// NewDualBuffer allocates both regions at the given capacity. contextStart
// defines where an is_start drain begins; pass nil to always drain from the
// oldest retained byte.
func NewDualBuffer(capacity int, contextStart drainStartFunc) *DualBuffer {
	return &DualBuffer{
		active:       newRing(capacity),
		inactive:     newRing(capacity),
		contextStart: contextStart,
	}
}

// Write appends to the active region, overwriting the oldest bytes when
// full. Never blocks on I/O.
func (d *DualBuffer) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active.Write(p)
}

// WriteFrame appends one frame with a boundary mark, atomically with
// respect to Switch.
func (d *DualBuffer) WriteFrame(p []byte, kind FrameKind) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active.markFrame(kind)
	return d.active.Write(p)
}

// Switch exchanges the active and inactive regions. O(1): a pointer swap
// under the write lock, so all buffer instances can be switched
// back-to-back while staying mutually frame-aligned.
func (d *DualBuffer) Switch() {
	d.mu.Lock()
	d.active, d.inactive = d.inactive, d.active
	d.mu.Unlock()
}

// FillFraction reports how full the active region is, in [0, 1].
func (d *DualBuffer) FillFraction() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active.fillFraction()
}

// Len reports the number of bytes retained in the active region.
func (d *DualBuffer) Len() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active.len()
}

// WriteInactive appends the inactive region's contents to the file at path
// and clears the region. With isStart set, only the configured context
// window is written (pre-roll); otherwise the whole region is drained.
//
// Faults are contained: an undrainable or failing region is logged and
// discarded rather than propagated, so a lost flush never halts capture.
func (d *DualBuffer) WriteInactive(path string, isStart bool) {
	// No lock needed: only the recorder goroutine switches or drains, so
	// the inactive pointer is stable here and nothing else touches it.
	r := d.inactive
	defer r.reset()

	from := r.tail
	if isStart && d.contextStart != nil {
		start, err := d.contextStart(r)
		if err != nil {
			log.Errorf("Cannot locate context start for %v, buffer abandoned: %v", path, err)
			return
		}
		from = start
	} else if marks := r.frames(); len(marks) > 0 && marks[0].off > r.tail {
		// Ring eviction can leave a partial frame at the tail; skip to the
		// first complete one to keep the written file frame-aligned.
		from = marks[0].off
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Errorf("Cannot open %v for buffer flush, buffer abandoned: %v", path, err)
		return
	}
	defer f.Close()

	if _, err := r.writeTo(f, from); err != nil {
		log.Errorf("I/O fault flushing buffer to %v, remainder abandoned: %v", path, err)
	}
}
