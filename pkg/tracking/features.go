package tracking

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-borg/pkg/vision"
)

// toGray converts a BGR frame to a new single-channel Mat.
func toGray(frame vision.Frame) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(frame.Mat, &gray, gocv.ColorBGRToGray)
	return gray
}

// countFeatures returns the number of strong corners inside r.
func countFeatures(gray gocv.Mat, r image.Rectangle) int {
	r = r.Intersect(image.Rect(0, 0, gray.Cols(), gray.Rows()))
	if r.Dx() < 3 || r.Dy() < 3 {
		return 0
	}
	roi := gray.Region(r)
	defer roi.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(roi, &corners, 100, 0.01, 3)
	return corners.Rows()
}

// clipRect intersects r with the frame and reports whether anything is left.
func clipRect(r image.Rectangle, w, h, minSide int) (image.Rectangle, bool) {
	r = r.Intersect(image.Rect(0, 0, w, h))
	return r, r.Dx() >= minSide && r.Dy() >= minSide
}
