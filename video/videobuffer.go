package video

import (
	"fmt"
	"time"
)

// VideoBuffer buffers the H264 elementary stream. Chunks arrive tagged with
// their frame kind; the buffer keeps its own (offset, kind) index so an
// event-starting drain can snap to a key frame without parsing the stream.
type VideoBuffer struct {
	buf       *DualBuffer
	framerate int
}

// VideoBufferOptions size a VideoBuffer. Capacity is derived from the
// target bitrate, so the region holds roughly BufferSeconds of stream.
type VideoBufferOptions struct {
	BitrateBps     int
	BufferSeconds  int
	Framerate      int
	ContextLengthS float64
}

func NewVideoBuffer(o VideoBufferOptions) *VideoBuffer {
	capacity := o.BitrateBps / 8 * o.BufferSeconds
	contextFrames := int(o.ContextLengthS * float64(o.Framerate))

	v := &VideoBuffer{framerate: o.Framerate}
	v.buf = NewDualBuffer(capacity, func(r *ring) (int64, error) {
		return keyframeContextStart(r, contextFrames)
	})
	return v
}

// keyframeContextStart locates the key-frame mark closest to the context
// index. A written segment must never begin mid-dependency-chain, so if the
// window holds no key frame the region is discarded instead.
func keyframeContextStart(r *ring, contextFrames int) (int64, error) {
	frames := r.frames()
	contextIdx := len(frames) - contextFrames
	if contextIdx < 0 {
		contextIdx = 0
	}

	best := -1
	for i, m := range frames {
		if m.kind != FrameKey {
			continue
		}
		if best == -1 || abs(i-contextIdx) < abs(best-contextIdx) {
			best = i
		}
	}
	if best == -1 {
		return 0, fmt.Errorf("no key frame in %d buffered frames: %w", len(frames), errDiscard)
	}
	return frames[best].off, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// HandleVideo appends one encoded chunk tagged with its frame kind. The
// caller may reuse the slice after this returns.
func (v *VideoBuffer) HandleVideo(chunk []byte, kind FrameKind, _ time.Time) {
	v.buf.WriteFrame(chunk, kind)
	metricFramesIngested.WithLabelValues("video").Inc()
}

// Switch exchanges the active and inactive regions.
func (v *VideoBuffer) Switch() {
	v.buf.Switch()
}

// WriteInactive drains the inactive region to path. With isStart the
// segment starts at the key frame nearest the context index.
func (v *VideoBuffer) WriteInactive(path string, isStart bool) {
	v.buf.WriteInactive(path, isStart)
}

// FillFraction reports how full the active region is.
func (v *VideoBuffer) FillFraction() float64 {
	return v.buf.FillFraction()
}
