package classify

import (
	"fmt"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camtrap/config"
)

// Detection classes for MobileNet SSD
var mobileNetClasses = map[int]string{
	0: "background",
	1: "aeroplane", 2: "bicycle", 3: "bird", 4: "boat",
	5: "bottle", 6: "bus", 7: "car", 8: "cat", 9: "chair",
	10: "cow", 11: "diningtable", 12: "dog", 13: "horse",
	14: "motorbike", 15: "person", 16: "pottedplant",
	17: "sheep", 18: "sofa", 19: "train", 20: "tvmonitor",
}

// Mapping from a class returned by mobilenet to desired output class.
var mobileNetRemap = map[string]string{
	"person": "human",
	"bird":   "animal",
	"cat":    "animal",
	"cow":    "animal",
	"dog":    "animal",
	"horse":  "animal",
	"sheep":  "animal",
}

// DNN confirms events with a MobileNet SSD network. Frames arrive as raw
// YUV420 bytes at the camera's detector resolution.
type DNN struct {
	net gocv.Net

	bgr   gocv.Mat
	small gocv.Mat

	width, height   int
	animalThreshold float32
	humanThreshold  float32
	detectHumans    bool

	l sync.Mutex
}

func NewDNN(prototxt, caffeModel []byte, camera config.CameraSettings, animal config.AnimalSettings) (*DNN, error) {
	net, err := gocv.ReadNetFromCaffeBytes(prototxt, caffeModel)
	if err != nil {
		return nil, fmt.Errorf("reading caffe model: %w", err)
	}
	return &DNN{
		net:             net,
		bgr:             gocv.NewMat(),
		small:           gocv.NewMat(),
		width:           camera.RawWidth,
		height:          camera.RawHeight,
		animalThreshold: animal.AnimalThreshold,
		humanThreshold:  animal.HumanThreshold,
		detectHumans:    animal.DetectHumans,
	}, nil
}

func (d *DNN) Run(frame []byte) (Result, error) {
	d.l.Lock()
	defer d.l.Unlock()

	start := time.Now()
	defer func() {
		log.Debugf("Classifier ran in %v", time.Since(start).String())
	}()

	want := d.width * d.height * 3 / 2
	if len(frame) != want {
		return Result{}, fmt.Errorf("frame is %d bytes, want %d", len(frame), want)
	}

	yuv, err := gocv.NewMatFromBytes(d.height*3/2, d.width, gocv.MatTypeCV8UC1, frame)
	if err != nil {
		return Result{}, fmt.Errorf("wrapping frame: %w", err)
	}
	defer yuv.Close()
	gocv.CvtColor(yuv, &d.bgr, gocv.ColorYUVToBGRI420)

	scale := image.Point{X: 300, Y: 300}
	gocv.Resize(d.bgr, &d.small, scale, 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(d.small, 0.007843, scale, gocv.NewScalar(127.5, 127.5, 127.5, 0), false, false)
	defer blob.Close()

	d.net.SetInput(blob, "data")

	detBlob := d.net.Forward("detection_out")
	defer detBlob.Close()

	detections := gocv.GetBlobChannel(detBlob, 0, 0)
	defer detections.Close()

	res := Result{Detections: make(Detections)}
	for r := 0; r < detections.Rows(); r++ {
		classID := int(detections.GetFloatAt(r, 1))
		classMn := mobileNetClasses[classID]
		class := mobileNetRemap[classMn]
		if class == "" {
			continue
		}

		confidence := detections.GetFloatAt(r, 2)
		log.Debugf("Detection of %s (%s), confidence %.2f", class, classMn, confidence)

		if res.Detections[class] < confidence {
			res.Detections[class] = confidence
		}
		switch class {
		case "animal":
			if confidence >= d.animalThreshold {
				res.Animal = true
			}
		case "human":
			if d.detectHumans && confidence >= d.humanThreshold {
				res.Human = true
			}
		}
	}
	return res, nil
}

func (d *DNN) Close() error {
	d.l.Lock()
	defer d.l.Unlock()
	d.bgr.Close()
	d.small.Close()
	return d.net.Close()
}
