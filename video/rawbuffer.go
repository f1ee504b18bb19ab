package video

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// RawBuffer buffers decoded raw frames. Frames are a fixed size in a known
// pixel format and the region capacity is a whole multiple of it, so ring
// eviction and context arithmetic both stay frame-aligned without an index.
type RawBuffer struct {
	buf       *DualBuffer
	frameSize int
	framerate int
}

// RawBufferOptions size a RawBuffer.
type RawBufferOptions struct {
	FrameSize      int
	Framerate      int
	BufferSeconds  int
	ContextLengthS float64
}

func NewRawBuffer(o RawBufferOptions) *RawBuffer {
	capacity := o.FrameSize * o.BufferSeconds * o.Framerate
	contextBytes := int64(o.ContextLengthS*float64(o.Framerate)) * int64(o.FrameSize)

	r := &RawBuffer{frameSize: o.FrameSize, framerate: o.Framerate}
	r.buf = NewDualBuffer(capacity, func(rg *ring) (int64, error) {
		start := rg.head - contextBytes
		if start < rg.tail {
			start = rg.tail
		}
		return start, nil
	})
	return r
}

// HandleRaw appends one decoded frame. Frames of the wrong size are a
// contract violation by the camera adapter and are dropped with a log line
// rather than corrupting the fixed-stride stream.
func (r *RawBuffer) HandleRaw(frame []byte, _ time.Time) {
	if len(frame) != r.frameSize {
		log.Errorf("Dropping raw frame of %d bytes, expected %d", len(frame), r.frameSize)
		return
	}
	r.buf.Write(frame)
	metricFramesIngested.WithLabelValues("raw").Inc()
}

// Switch exchanges the active and inactive regions.
func (r *RawBuffer) Switch() {
	r.buf.Switch()
}

// WriteInactive drains the inactive region to path per the context policy.
func (r *RawBuffer) WriteInactive(path string, isStart bool) {
	r.buf.WriteInactive(path, isStart)
}

// FillFraction reports how full the active region is.
func (r *RawBuffer) FillFraction() float64 {
	return r.buf.FillFraction()
}
