package source

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"camtrap/config"
	"camtrap/video"
)

var nalStartCode = []byte{0, 0, 0, 1}

// Replay drives the pipeline from a previously recorded event directory,
// looping it at the configured framerate. Useful for filter tuning and
// soak testing without camera hardware.
type Replay struct {
	Dir    string
	Camera config.CameraSettings

	stop chan struct{}
	done chan struct{}
}

func NewReplay(dir string, camera config.CameraSettings) *Replay {
	return &Replay{
		Dir:    dir,
		Camera: camera,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Attach loads the recorded streams and starts looping them into h.
func (r *Replay) Attach(h StreamHandler) error {
	vectors, err := os.ReadFile(filepath.Join(r.Dir, video.VectorFile))
	if err != nil {
		return fmt.Errorf("replay source: %w", err)
	}
	raw, err := os.ReadFile(filepath.Join(r.Dir, video.RawFile))
	if err != nil {
		return fmt.Errorf("replay source: %w", err)
	}
	encoded, err := os.ReadFile(filepath.Join(r.Dir, video.VideoFile))
	if err != nil {
		return fmt.Errorf("replay source: %w", err)
	}

	rows, cols := r.Camera.VectorGrid()
	gridSize := rows * cols * video.VectorEntrySize
	elementSize := 16 + gridSize
	rawSize := r.Camera.RawFrameSize()

	frames := len(raw) / rawSize
	if n := len(vectors) / elementSize; n < frames {
		frames = n
	}
	if frames == 0 {
		return fmt.Errorf("replay source: %v holds no complete frames", r.Dir)
	}

	nals := splitNALUnits(encoded)
	log.Infof("Replaying %d frames (%d NAL units) from %v", frames, len(nals), r.Dir)

	go r.loop(h, vectors, raw, nals, frames, elementSize, gridSize, rawSize)
	return nil
}

func (r *Replay) loop(h StreamHandler, vectors, raw []byte, nals []nalUnit, frames, elementSize, gridSize, rawSize int) {
	defer close(r.done)
	ticker := time.NewTicker(time.Second / time.Duration(r.Camera.Framerate))
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-r.stop:
			return
		case ts := <-ticker.C:
			// Vector records carry a timestamp and score header on disk;
			// the camera delivers the bare grid.
			off := i * elementSize
			h.HandleMotion(vectors[off+16:off+16+gridSize], ts)
			h.HandleRaw(raw[i*rawSize:(i+1)*rawSize], ts)

			// Spread NAL units evenly across the frame ticks.
			lo := len(nals) * i / frames
			hi := len(nals) * (i + 1) / frames
			for _, u := range nals[lo:hi] {
				h.HandleVideo(u.data, u.kind, ts)
			}

			i = (i + 1) % frames
		}
	}
}

func (r *Replay) Close() error {
	close(r.stop)
	<-r.done
	return nil
}

type nalUnit struct {
	data []byte
	kind video.FrameKind
}

// splitNALUnits cuts an H264 elementary stream on 4-byte start codes and
// tags units that can begin a decodable segment.
func splitNALUnits(stream []byte) []nalUnit {
	var units []nalUnit
	for len(stream) > len(nalStartCode) {
		next := bytes.Index(stream[len(nalStartCode):], nalStartCode)
		var unit []byte
		if next < 0 {
			unit, stream = stream, nil
		} else {
			unit, stream = stream[:next+len(nalStartCode)], stream[next+len(nalStartCode):]
		}
		if len(unit) <= len(nalStartCode) {
			continue
		}
		kind := video.FrameDelta
		switch unit[len(nalStartCode)] & 0x1f {
		case 5, 7, 8: // IDR slice, SPS, PPS
			kind = video.FrameKey
		}
		units = append(units, nalUnit{data: unit, kind: kind})
	}
	return units
}
