package video

import "math"

// VectorEntrySize is the wire size of one macroblock motion entry:
// int8 dx, int8 dy, uint16 sad.
const VectorEntrySize = 4

// VectorFrame is one video tick's motion vector grid as delivered by the
// camera. Data holds rows*cols packed entries and is never mutated.
type VectorFrame struct {
	Rows, Cols int
	Data       []byte
}

// Magnitude returns the (dx, dy) vector magnitude of entry i.
func (f VectorFrame) Magnitude(i int) float64 {
	dx := float64(int8(f.Data[i*VectorEntrySize]))
	dy := float64(int8(f.Data[i*VectorEntrySize+1]))
	return math.Hypot(dx, dy)
}
