package video

import (
	"io"
)

// FrameKind tags encoded video chunks by their decode dependency.
type FrameKind int8

const (
	FrameUnknown FrameKind = iota
	// FrameKey marks an independently decodable boundary (SPS header or
	// intra frame). A written H264 segment must start at one.
	FrameKey
	FrameDelta
)

// mark records where a frame starts within the retained byte stream.
// Offsets are absolute stream positions, not slice indices.
type mark struct {
	off  int64
	kind FrameKind
}

// ring is a fixed-capacity circular byte region with true overwrite
// semantics: once full, the oldest bytes are silently evicted so the region
// always holds the most recent capacity bytes. It also keeps a side-channel
// index of frame marks so specializations can locate frame boundaries
// without parsing the payload.
type ring struct {
	data []byte

	// tail and head are absolute stream offsets: tail is the oldest byte
	// still retained, head the next write position.
	tail, head int64

	marks []mark
}

func newRing(capacity int) *ring {
	return &ring{data: make([]byte, capacity)}
}

// Write appends p, evicting the oldest bytes when the region is full. It
// never blocks and never fails.
func (r *ring) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}
	c := int64(len(r.data))
	src := p
	if int64(len(src)) > c {
		// Only the final capacity bytes of this write can survive.
		r.head += int64(len(src)) - c
		src = src[int64(len(src))-c:]
	}
	for len(src) > 0 {
		o := int(r.head % c)
		m := copy(r.data[o:], src)
		src = src[m:]
		r.head += int64(m)
	}
	if r.head-r.tail > c {
		r.tail = r.head - c
	}
	r.dropExpiredMarks()
	return n, nil
}

// markFrame records that a frame of the given kind starts at the current
// write position. Call immediately before writing the frame's bytes.
func (r *ring) markFrame(kind FrameKind) {
	r.marks = append(r.marks, mark{off: r.head, kind: kind})
}

func (r *ring) dropExpiredMarks() {
	i := 0
	for i < len(r.marks) && r.marks[i].off < r.tail {
		i++
	}
	if i > 0 {
		r.marks = append(r.marks[:0], r.marks[i:]...)
	}
}

// frames returns the marks of frames still fully retained.
func (r *ring) frames() []mark {
	return r.marks
}

// len reports the number of retained bytes.
func (r *ring) len() int64 {
	return r.head - r.tail
}

func (r *ring) capacity() int64 {
	return int64(len(r.data))
}

// fillFraction reports how full the region is, in [0, 1].
func (r *ring) fillFraction() float64 {
	if len(r.data) == 0 {
		return 0
	}
	return float64(r.len()) / float64(len(r.data))
}

// writeTo copies retained bytes from absolute offset from up to head into w.
// Offsets before tail are clamped to tail.
func (r *ring) writeTo(w io.Writer, from int64) (int64, error) {
	if from < r.tail {
		from = r.tail
	}
	c := int64(len(r.data))
	var total int64
	for from < r.head {
		o := from % c
		end := o + (r.head - from)
		if end > c {
			end = c
		}
		n, err := w.Write(r.data[o:end])
		total += int64(n)
		from += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// reset discards all contents and marks and rewinds the stream position.
func (r *ring) reset() {
	r.tail, r.head = 0, 0
	r.marks = r.marks[:0]
}
