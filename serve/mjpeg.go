package serve

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camtrap/config"
)

// MJPEG streaming, based on implementation by saljam:
// https://github.com/saljam/mjpeg/blob/master/stream.go

const boundaryWord = "MJPEGBOUNDARY"
const headerf = "\r\n" +
	"--" + boundaryWord + "\r\n" +
	"Content-Type: image/jpeg\r\n" +
	"Content-Length: %d\r\n" +
	"X-Timestamp: 0.000000\r\n" +
	"\r\n"

// previewPeriod caps the preview framerate; JPEG encoding every detector
// frame would steal CPU from the capture pipeline.
const previewPeriod = 250 * time.Millisecond

// Preview streams the raw detector frames as MJPEG for live viewing.
// Frames are only encoded while someone is watching.
type Preview struct {
	width, height int

	viewers map[chan []byte]bool
	last    time.Time
	lock    sync.Mutex
}

func NewPreview(camera config.CameraSettings) *Preview {
	return &Preview{
		width:   camera.RawWidth,
		height:  camera.RawHeight,
		viewers: make(map[chan []byte]bool),
	}
}

// HandleFrame accepts one raw YUV420 frame from the capture tap.
func (p *Preview) HandleFrame(frame []byte) {
	p.lock.Lock()
	idle := len(p.viewers) == 0 || time.Since(p.last) < previewPeriod
	if !idle {
		p.last = time.Now()
	}
	p.lock.Unlock()
	if idle {
		return
	}

	jpeg, err := p.encode(frame)
	if err != nil {
		log.Errorf("Cannot encode preview frame: %v", err)
		return
	}

	header := fmt.Sprintf(headerf, len(jpeg))
	part := make([]byte, 0, len(header)+len(jpeg))
	part = append(part, header...)
	part = append(part, jpeg...)

	p.lock.Lock()
	defer p.lock.Unlock()
	for c := range p.viewers {
		select {
		case c <- part:
		default:
			// Skip viewers not ready for the next frame.
		}
	}
}

func (p *Preview) encode(frame []byte) ([]byte, error) {
	yuv, err := gocv.NewMatFromBytes(p.height*3/2, p.width, gocv.MatTypeCV8UC1, frame)
	if err != nil {
		return nil, err
	}
	defer yuv.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(yuv, &bgr, gocv.ColorYUVToBGRI420)

	buf, err := gocv.IMEncode(".jpg", bgr)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	jpeg := make([]byte, len(buf.GetBytes()))
	copy(jpeg, buf.GetBytes())
	return jpeg, nil
}

// ServeHTTP streams multipart JPEG parts until the client disconnects.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.WithField("addr", r.RemoteAddr).Info("MJPEG preview connected")
	w.Header().Add("Content-Type", "multipart/x-mixed-replace;boundary="+boundaryWord)

	c := make(chan []byte)
	p.lock.Lock()
	p.viewers[c] = true
	p.lock.Unlock()

	for b := range c {
		if _, err := w.Write(b); err != nil {
			break
		}
	}

	p.lock.Lock()
	delete(p.viewers, c)
	p.lock.Unlock()
	log.WithField("addr", r.RemoteAddr).Info("MJPEG preview disconnected")
}
