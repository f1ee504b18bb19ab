package filter

import (
	"math"
	"sort"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"camtrap/classify"
)

// Processor decides whether an indexed event contains an animal. Events
// are almost always empty (wind, rain, light), so frames are visited
// spiralling outward from the middle of the event, where the trigger is
// most likely centered, and the walk stops at the first decisive frame.
type Processor struct {
	classifier classify.Classifier

	// fraction of the event's frames to evaluate, as float64 bits. Zero or
	// negative means the single middle frame.
	fraction atomic.Uint64
}

func NewProcessor(c classify.Classifier, detectorFraction float64) *Processor {
	p := &Processor{classifier: c}
	p.SetFraction(detectorFraction)
	return p
}

// SetFraction applies a new detector fraction. Safe to call while the
// confirmation worker runs; the next event uses it.
func (p *Processor) SetFraction(v float64) {
	p.fraction.Store(math.Float64bits(v))
}

// Process returns whether ev is confirmed to contain an animal, plus the
// number of inferences run. A human detection vetoes the event
// immediately, whatever was found before. Classifier faults are logged
// and treated as no detection.
func (p *Processor) Process(ev *EventData) (bool, int) {
	n := len(ev.Offsets)
	if n == 0 {
		log.Warnf("Event %v indexed to zero frames", ev.Dir)
		return false, 0
	}
	if ev.Detections == nil {
		ev.Detections = make(classify.Detections)
	}
	middle := n / 2

	fraction := math.Float64frombits(p.fraction.Load())
	if fraction <= 0 {
		res, err := p.run(ev, middle)
		if err != nil {
			log.Errorf("Classifier failed on %v frame %d: %v", ev.Dir, middle, err)
			return false, 1
		}
		return res.Animal && !res.Human, 1
	}

	count := 0
	for _, i := range spiralIndices(n, fraction) {
		res, err := p.run(ev, i)
		count++
		if err != nil {
			log.Errorf("Classifier failed on %v frame %d: %v", ev.Dir, i, err)
			continue
		}
		if res.Human {
			log.Infof("Human detected in %v frame %d, discarding event", ev.Dir, i)
			return false, count
		}
		if res.Animal {
			return true, count
		}
	}
	return false, count
}

func (p *Processor) run(ev *EventData, i int) (classify.Result, error) {
	metricInferences.Inc()
	frame, err := ev.ReadFrameAt(ev.Offsets[i])
	if err != nil {
		return classify.Result{}, err
	}
	res, err := p.classifier.Run(frame)
	if err != nil {
		metricClassifierFailures.Inc()
		return classify.Result{}, err
	}
	ev.Detections.Merge(res.Detections)
	return res, nil
}

// spiralIndices selects round(n*fraction) frame indices evenly spread over
// the event and orders them by distance from the middle frame, nearest
// first. Ties resolve to the earlier frame so the walk is deterministic.
func spiralIndices(n int, fraction float64) []int {
	k := int(math.Round(float64(n) * fraction))
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}

	spread := make([]float64, k)
	if k == 1 {
		spread[0] = float64(n-1) / 2
	} else {
		floats.Span(spread, 0, float64(n-1))
	}

	indices := make([]int, k)
	for i, v := range spread {
		indices[i] = int(math.Round(v))
	}

	middle := n / 2
	sort.SliceStable(indices, func(a, b int) bool {
		da := abs(indices[a] - middle)
		db := abs(indices[b] - middle)
		if da != db {
			return da < db
		}
		return indices[a] < indices[b]
	})
	return indices
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
