package tracking

import (
	"math"
	"time"

	"github.com/teslashibe/go-borg/pkg/vision"
)

// Evidence is what a variant observed on one frame.
type Evidence struct {
	Native   float64            // Variant's own match strength, 0-1
	Features int                // Corners found inside Box
	Box      vision.BoundingBox // New box
	Prev     vision.BoundingBox // Box on the previous frame (zero if none)
	Elapsed  time.Duration      // Wall-clock time since Prev
	Width    int                // Frame width
	Height   int                // Frame height
}

// Score combines the evidence into a confidence in [0,1]. A relative size
// change above MaxSizeChange caps the result at OcclusionCap no matter how
// strong the native score is.
func Score(cfg ScoreConfig, ev Evidence) float64 {
	if !ev.Box.Valid() {
		return 0
	}

	native := clamp01(ev.Native)

	feature := 1.0
	if cfg.FeatureTarget > 0 {
		feature = clamp01(float64(ev.Features) / float64(cfg.FeatureTarget))
	}

	motion := motionConsistency(cfg, ev)

	total := cfg.NativeWeight + cfg.FeatureWeight + cfg.MotionWeight
	if total <= 0 {
		return native
	}
	conf := (cfg.NativeWeight*native + cfg.FeatureWeight*feature + cfg.MotionWeight*motion) / total

	if ev.Prev.Valid() && ev.Box.SizeChange(ev.Prev) > cfg.MaxSizeChange {
		conf = math.Min(conf, cfg.OcclusionCap)
	}
	return clamp01(conf)
}

// motionConsistency scores how plausible the centre displacement is for the
// elapsed time: 1 for no motion, 0 at MaxSpeed frame diagonals per second.
func motionConsistency(cfg ScoreConfig, ev Evidence) float64 {
	if !ev.Prev.Valid() || cfg.MaxSpeed <= 0 {
		return 1
	}
	diag := math.Hypot(float64(ev.Width), float64(ev.Height))
	if diag <= 0 {
		return 1
	}
	dt := ev.Elapsed.Seconds()
	if dt <= 0 {
		// No timing information.
		return 1
	}

	cx, cy := ev.Box.Center()
	px, py := ev.Prev.Center()
	speed := math.Hypot(cx-px, cy-py) / diag / dt
	return clamp01(1 - speed/cfg.MaxSpeed)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
