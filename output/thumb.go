package output

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"camtrap/filter"
)

// ThumbFile is the event preview image, taken from the frame at the
// temporal center of the event.
const ThumbFile = "clip.jpg"

// writeThumb renders ev's middle raw frame as a small JPEG preview.
func writeThumb(ev *filter.EventData, width, height int) error {
	if len(ev.Offsets) == 0 {
		return fmt.Errorf("event %v has no frames", ev.Dir)
	}
	frame, err := ev.ReadFrameAt(ev.Offsets[len(ev.Offsets)/2])
	if err != nil {
		return err
	}

	yuv, err := gocv.NewMatFromBytes(height*3/2, width, gocv.MatTypeCV8UC1, frame)
	if err != nil {
		return err
	}
	defer yuv.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(yuv, &bgr, gocv.ColorYUVToBGRI420)

	tmat := gocv.NewMat()
	defer tmat.Close()
	gocv.Resize(bgr, &tmat, image.Point{X: 230, Y: 135}, 0, 0, gocv.InterpolationCubic)

	jpeg, err := gocv.IMEncode(".jpg", tmat)
	if err != nil {
		return err
	}
	defer jpeg.Close()

	return os.WriteFile(filepath.Join(ev.Dir, ThumbFile), jpeg.GetBytes(), 0644)
}
