package tracking

import (
	"image"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-borg/pkg/debug"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// correlation tracks a grayscale template with normalized cross-correlation
// inside a window around the last position. The template keeps its Init
// appearance and is matched at a few sizes around the current box, so the
// returned box follows the target's apparent size.
type correlation struct {
	cfg      Config
	template gocv.Mat
	box      vision.BoundingBox
	at       time.Time
	ready    bool
}

func newCorrelation(cfg Config) *correlation {
	return &correlation{cfg: cfg, template: gocv.NewMat()}
}

func (c *correlation) Init(frame vision.Frame, box vision.BoundingBox) error {
	if frame.Empty() {
		return newError("init", KindCorrelation, vision.ErrEmptyFrame)
	}
	r, ok := clipRect(box.Rect(), frame.Width(), frame.Height(), c.cfg.MinBoxSide)
	if !ok {
		return newError("init", KindCorrelation, ErrInitFailed)
	}

	gray := toGray(frame)
	defer gray.Close()

	c.setTemplate(gray, r)
	c.box = vision.FromRect(r)
	c.at = frame.Captured
	c.ready = true
	return nil
}

func (c *correlation) setTemplate(gray gocv.Mat, r image.Rectangle) {
	roi := gray.Region(r)
	defer roi.Close()
	c.template.Close()
	c.template = roi.Clone()
}

// correlationScales are the template sizes tried on each update, relative
// to the current box. 1.0 goes first so it wins ties. The largest step stays
// under the area jump that Score treats as occlusion.
var correlationScales = []float64{1.0, 0.9, 1.1, 0.8, 1.2}

type scaleMatch struct {
	score float64
	rect  image.Rectangle
}

func (c *correlation) Update(frame vision.Frame) (Result, error) {
	if !c.ready {
		return Result{}, newError("update", KindCorrelation, ErrNotInitialized)
	}
	if frame.Empty() {
		return Result{}, newError("update", KindCorrelation, vision.ErrEmptyFrame)
	}

	w, h := frame.Width(), frame.Height()
	window, _ := clipRect(c.box.Expand(c.cfg.SearchScale).Rect(), w, h, 0)

	gray := toGray(frame)
	defer gray.Close()

	search := gray.Region(window)
	defer search.Close()

	var best scaleMatch
	matched := false
	for _, s := range correlationScales {
		m, ok := c.matchAt(search, window, s)
		if ok && (!matched || m.score > best.score) {
			best = m
			matched = true
		}
	}
	if !matched {
		// Target too close to an edge for a full template match.
		return Result{Kind: KindCorrelation}, nil
	}

	box := vision.FromRect(best.rect)
	conf := Score(c.cfg.Score, Evidence{
		Native:   best.score,
		Features: countFeatures(gray, best.rect),
		Box:      box,
		Prev:     c.box,
		Elapsed:  frame.Captured.Sub(c.at),
		Width:    w,
		Height:   h,
	})

	if debug.Tracking {
		debug.TrackLog("correlation update", "score", best.score, "confidence", conf,
			"x", box.X, "y", box.Y, "w", box.Width, "h", box.Height)
	}

	if conf >= c.cfg.ConfidenceFloor {
		c.box = box
		c.at = frame.Captured
	}
	return Result{Box: box, Confidence: conf, Found: true, Kind: KindCorrelation}, nil
}

// matchAt matches the template resized to scale times the current box inside
// search, which covers window in frame coordinates.
func (c *correlation) matchAt(search gocv.Mat, window image.Rectangle, scale float64) (scaleMatch, bool) {
	sw := int(math.Round(c.box.Width * scale))
	sh := int(math.Round(c.box.Height * scale))
	if sw < c.cfg.MinBoxSide || sh < c.cfg.MinBoxSide || sw > window.Dx() || sh > window.Dy() {
		return scaleMatch{}, false
	}

	tmpl := c.template
	if sw != tmpl.Cols() || sh != tmpl.Rows() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(c.template, &resized, image.Pt(sw, sh), 0, 0, gocv.InterpolationLinear)
		tmpl = resized
	}

	scores := gocv.NewMat()
	defer scores.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(search, tmpl, &scores, gocv.TmCcoeffNormed, mask)

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(scores)
	score := float64(maxVal)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return scaleMatch{}, false
	}
	return scaleMatch{
		score: score,
		rect:  image.Rect(window.Min.X+maxLoc.X, window.Min.Y+maxLoc.Y, window.Min.X+maxLoc.X+sw, window.Min.Y+maxLoc.Y+sh),
	}, true
}

func (c *correlation) Close() error {
	c.ready = false
	return c.template.Close()
}
