// Package classify runs the animal filter's per-frame inference. The
// capture pipeline only depends on the Classifier interface; the DNN
// implementation lives in dnn.go so the rest of the repo can be tested
// without a model file.
package classify

import (
	"fmt"
	"sort"
	"strings"
)

// Result of a single inference over one raw frame.
type Result struct {
	Animal bool
	Human  bool

	// Detections holds the per-class confidences behind the booleans, for
	// notifications and the event catalog.
	Detections Detections
}

// Classifier scores one raw frame. Implementations need not be
// goroutine-safe; the confirmation worker is the only caller.
type Classifier interface {
	Run(frame []byte) (Result, error)
}

// Detections maps an output class to its best confidence.
type Detections map[string]float32

func (d Detections) Merge(other Detections) {
	for k, v := range other {
		if d[k] < v {
			d[k] = v
		}
	}
}

type Detection struct {
	Class      string
	Confidence float32
}

func (d Detections) SortedDetections() []Detection {
	var ss []Detection
	for k, v := range d {
		ss = append(ss, Detection{k, v})
	}
	sort.Slice(ss, func(i, j int) bool {
		return ss[i].Confidence > ss[j].Confidence
	})
	return ss
}

// Best returns the highest-confidence detection, if any.
func (d Detections) Best() (Detection, bool) {
	ss := d.SortedDetections()
	if len(ss) == 0 {
		return Detection{}, false
	}
	return ss[0], true
}

func (d Detections) DebugString() string {
	var ds []string
	for _, kv := range d.SortedDetections() {
		ds = append(ds, fmt.Sprintf("%s: %.2f", kv.Class, kv.Confidence))
	}
	return strings.Join(ds, ", ")
}
