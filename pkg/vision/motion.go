package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// MotionConfig tunes the idle motion detector.
type MotionConfig struct {
	MinArea   float64 `json:"min_area"`   // Ignore blobs smaller than this (px²)
	Warmup    int     `json:"warmup"`     // Frames to learn the background before reporting
	Padding   int     `json:"padding"`    // Grow the detected box by this many pixels
	Threshold float32 `json:"threshold"` // Foreground mask threshold (MOG2 shadows are 127)
}

// DefaultMotionConfig returns settings for a 640x480 camera at rest.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		MinArea:   900,
		Warmup:    15,
		Padding:   12,
		Threshold: 200,
	}
}

// MotionDetector finds the largest moving blob while the chassis is stopped.
// It is used to re-seed the tracker during the waiting stage.
type MotionDetector struct {
	cfg    MotionConfig
	sub    gocv.BackgroundSubtractorMOG2
	kernel gocv.Mat
	frames int
}

// NewMotionDetector creates a detector with a fresh background model.
func NewMotionDetector(cfg MotionConfig) *MotionDetector {
	return &MotionDetector{
		cfg:    cfg,
		sub:    gocv.NewBackgroundSubtractorMOG2(),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(5, 5)),
	}
}

// Reset forgets the learned background. Call it whenever the chassis moved.
func (m *MotionDetector) Reset() {
	m.sub.Close()
	m.sub = gocv.NewBackgroundSubtractorMOG2()
	m.frames = 0
}

// Detect feeds a frame to the background model and returns the bounding box of
// the largest moving region, if any.
func (m *MotionDetector) Detect(frame Frame) (BoundingBox, bool) {
	if frame.Empty() {
		return BoundingBox{}, false
	}

	mask := gocv.NewMat()
	defer mask.Close()
	m.sub.Apply(frame.Mat, &mask)

	m.frames++
	if m.frames <= m.cfg.Warmup {
		return BoundingBox{}, false
	}

	clean := gocv.NewMat()
	defer clean.Close()
	gocv.Threshold(mask, &clean, m.cfg.Threshold, 255, gocv.ThresholdBinary)
	gocv.MorphologyEx(clean, &clean, gocv.MorphOpen, m.kernel)
	gocv.MorphologyEx(clean, &clean, gocv.MorphClose, m.kernel)

	contours := gocv.FindContours(clean, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best := -1
	bestArea := 0.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > bestArea && area >= m.cfg.MinArea {
			best = i
			bestArea = area
		}
	}
	if best < 0 {
		return BoundingBox{}, false
	}

	r := gocv.BoundingRect(contours.At(best))
	r = r.Inset(-m.cfg.Padding).Intersect(image.Rect(0, 0, frame.Width(), frame.Height()))
	box := FromRect(r)
	return box, box.Valid()
}

// Close releases OpenCV resources.
func (m *MotionDetector) Close() error {
	m.sub.Close()
	return m.kernel.Close()
}
