// Package output finalizes confirmed events: the raw H264 bytestream is
// remuxed into a browser-playable mp4, the event is recorded in the
// catalog, and subscribers are notified.
package output

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"camtrap/catalog"
	"camtrap/filter"
	"camtrap/notify"
	"camtrap/util"
	"camtrap/video"
)

// VideoOutFile is the remuxed playable clip inside an event directory.
const VideoOutFile = "clip.mp4"

type SenderOptions struct {
	// FFmpeg is the encoder binary path. Empty disables remuxing; events
	// are still catalogued and notified.
	FFmpeg    string
	Framerate int

	// Raw frame geometry, for rendering the preview thumbnail. Zero
	// disables thumbnails.
	RawWidth, RawHeight int
}

// Sender consumes confirmed events one at a time. Remux latency lands
// here, downstream of capture and confirmation, where it only delays
// notifications.
type Sender struct {
	opts     SenderOptions
	in       <-chan *filter.EventData
	catalog  *catalog.Catalog
	notifier *notify.Notifier

	stopped *util.Event
}

func NewSender(opts SenderOptions, in <-chan *filter.EventData, cat *catalog.Catalog, n *notify.Notifier) *Sender {
	return &Sender{
		opts:     opts,
		in:       in,
		catalog:  cat,
		notifier: n,
		stopped:  util.NewEvent(),
	}
}

// Run publishes confirmed events until the context is cancelled.
func (s *Sender) Run(ctx context.Context) error {
	defer s.stopped.Notify()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.in:
			s.publish(ev)
		}
	}
}

// WaitStopped blocks until the publishing loop has exited. Used at
// shutdown so an in-flight remux is not killed mid-write.
func (s *Sender) WaitStopped() {
	s.stopped.Wait()
}

func (s *Sender) publish(ev *filter.EventData) {
	if s.opts.FFmpeg != "" {
		if err := s.remux(ev.Dir); err != nil {
			// The raw bytestream stays on disk either way; publish anyway.
			log.Errorf("Cannot remux %v: %v", ev.Dir, err)
		}
	}
	if s.opts.RawWidth > 0 && s.opts.RawHeight > 0 {
		if err := writeThumb(ev, s.opts.RawWidth, s.opts.RawHeight); err != nil {
			log.Errorf("Cannot render thumbnail for %v: %v", ev.Dir, err)
		}
	}

	rec := &catalog.Event{
		Name:       ev.Name(),
		Dir:        ev.Dir,
		StartedAt:  ev.Start,
		Frames:     len(ev.Offsets),
		Inferences: ev.Inferences,
	}
	if best, ok := ev.Detections.Best(); ok {
		rec.Detection = best.Class
		rec.Confidence = best.Confidence
	}
	if err := s.catalog.Add(rec); err != nil {
		log.Errorf("Cannot catalog event %v: %v", ev.Dir, err)
	}

	if s.notifier != nil {
		s.notifier.EventConfirmed(ev.Name(), ev.Detections)
	}
	log.Infof("Published event %v (%d frames)", ev.Name(), len(ev.Offsets))
}

// remux wraps the recorded elementary stream in an mp4 container without
// re-encoding.
func (s *Sender) remux(dir string) error {
	out := filepath.Join(dir, VideoOutFile)
	c := exec.Command(
		s.opts.FFmpeg,
		"-f", "h264",
		"-framerate", fmt.Sprintf("%d", s.opts.Framerate),
		"-i", filepath.Join(dir, video.VideoFile),
		"-c:v", "copy",
		// Enable fast-start so videos can be displayed in the browser
		// without full download.
		"-movflags", "+faststart",
		"-y", out,
	)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	if err := c.Run(); err != nil {
		os.Remove(out)
		return err
	}
	return nil
}
