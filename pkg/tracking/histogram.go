package tracking

import (
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-borg/pkg/debug"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Hue histogram parameters. Dim or washed-out pixels carry no reliable hue
// and are masked out of the model.
var (
	hueRanges   = []float64{0, 180}
	hueBins     = []int{30}
	hueChannels = []int{0}
	hsvLow      = gocv.NewScalar(0, 60, 32, 0)
	hsvHigh     = gocv.NewScalar(180, 255, 255, 0)
)

// histogram tracks the target's hue distribution with back projection and
// CamShift. It follows size changes, so it survives approach and retreat
// better than the fixed-size correlation template.
type histogram struct {
	cfg   Config
	hist  gocv.Mat
	box   vision.BoundingBox
	at    time.Time
	ready bool
}

func newHistogram(cfg Config) *histogram {
	return &histogram{cfg: cfg, hist: gocv.NewMat()}
}

func toHSV(frame vision.Frame) gocv.Mat {
	hsv := gocv.NewMat()
	gocv.CvtColor(frame.Mat, &hsv, gocv.ColorBGRToHSV)
	return hsv
}

func (t *histogram) Init(frame vision.Frame, box vision.BoundingBox) error {
	if frame.Empty() {
		return newError("init", KindColorHistogram, vision.ErrEmptyFrame)
	}
	r, ok := clipRect(box.Rect(), frame.Width(), frame.Height(), t.cfg.MinBoxSide)
	if !ok {
		return newError("init", KindColorHistogram, ErrInitFailed)
	}

	hsv := toHSV(frame)
	defer hsv.Close()
	roi := hsv.Region(r)
	defer roi.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(roi, hsvLow, hsvHigh, &mask)
	if gocv.CountNonZero(mask) == 0 {
		return newError("init", KindColorHistogram, ErrInitFailed)
	}

	hist := gocv.NewMat()
	gocv.CalcHist([]gocv.Mat{roi}, hueChannels, mask, &hist, hueBins, hueRanges, false)
	gocv.Normalize(hist, &hist, 0, 255, gocv.NormMinMax)

	t.hist.Close()
	t.hist = hist
	t.box = vision.FromRect(r)
	t.at = frame.Captured
	t.ready = true
	return nil
}

func (t *histogram) Update(frame vision.Frame) (Result, error) {
	if !t.ready {
		return Result{}, newError("update", KindColorHistogram, ErrNotInitialized)
	}
	if frame.Empty() {
		return Result{}, newError("update", KindColorHistogram, vision.ErrEmptyFrame)
	}
	w, h := frame.Width(), frame.Height()

	hsv := toHSV(frame)
	defer hsv.Close()

	backProj := gocv.NewMat()
	defer backProj.Close()
	gocv.CalcBackProject([]gocv.Mat{hsv}, hueChannels, t.hist, &backProj, hueRanges, false)

	window, ok := clipRect(t.box.Rect(), w, h, 1)
	if !ok {
		return Result{Kind: KindColorHistogram}, nil
	}
	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, 10, 1)
	rotated := gocv.CamShift(backProj, &window, criteria)

	found, ok := clipRect(rotated.BoundingRect, w, h, 1)
	if !ok {
		return Result{Kind: KindColorHistogram}, nil
	}
	box := vision.FromRect(found)

	conf := Score(t.cfg.Score, Evidence{
		Native:   backProjectionStrength(backProj, found),
		Features: t.features(frame, found),
		Box:      box,
		Prev:     t.box,
		Elapsed:  frame.Captured.Sub(t.at),
		Width:    w,
		Height:   h,
	})

	if debug.Tracking {
		debug.TrackLog("histogram update", "confidence", conf, "x", box.X, "y", box.Y, "w", box.Width, "h", box.Height)
	}

	if conf >= t.cfg.ConfidenceFloor {
		t.box = box
		t.at = frame.Captured
	}
	return Result{Box: box, Confidence: conf, Found: true, Kind: KindColorHistogram}, nil
}

// backProjectionStrength is the mean back-projected probability inside r.
func backProjectionStrength(backProj gocv.Mat, r image.Rectangle) float64 {
	roi := backProj.Region(r)
	defer roi.Close()
	return roi.Mean().Val1 / 255
}

func (t *histogram) features(frame vision.Frame, r image.Rectangle) int {
	gray := toGray(frame)
	defer gray.Close()
	return countFeatures(gray, r)
}

func (t *histogram) Close() error {
	t.ready = false
	return t.hist.Close()
}
