// Package orientation works out whether the chassis is upright or driving
// upside down and adapts wheel commands and frames to match.
package orientation

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-borg/pkg/vision"
)

// Orientation of the chassis.
type Orientation int

const (
	Unknown Orientation = iota
	Normal
	Inverted
	Indeterminate
)

func (o Orientation) String() string {
	switch o {
	case Normal:
		return "normal"
	case Inverted:
		return "inverted"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// MarshalText encodes the orientation name for JSON telemetry.
func (o Orientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Classifier decides the orientation from one frame.
type Classifier interface {
	Classify(frame vision.Frame) Orientation
}

// Decide compares the mean brightness of the upper and lower frame halves.
// Upright, the upper half sees ceiling lights or sky and is brighter than
// the floor; upside down the asymmetry flips. A relative difference inside
// margin is Indeterminate.
func Decide(upper, lower, margin float64) Orientation {
	sum := upper + lower
	if math.IsNaN(sum) || sum <= 1e-9 {
		return Indeterminate
	}
	diff := (upper - lower) / sum
	switch {
	case diff > margin:
		return Normal
	case diff < -margin:
		return Inverted
	default:
		return Indeterminate
	}
}

// HalvesClassifier is the brightness-asymmetry classifier.
type HalvesClassifier struct {
	Margin float64
}

// NewHalvesClassifier creates a classifier with the given relative margin.
func NewHalvesClassifier(margin float64) *HalvesClassifier {
	return &HalvesClassifier{Margin: margin}
}

// Classify implements Classifier.
func (c *HalvesClassifier) Classify(frame vision.Frame) Orientation {
	if frame.Empty() || frame.Height() < 2 {
		return Indeterminate
	}
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame.Mat, &gray, gocv.ColorBGRToGray)

	w, h := gray.Cols(), gray.Rows()
	upper := meanOf(gray, image.Rect(0, 0, w, h/2))
	lower := meanOf(gray, image.Rect(0, h-h/2, w, h))
	return Decide(upper, lower, c.Margin)
}

func meanOf(m gocv.Mat, r image.Rectangle) float64 {
	roi := m.Region(r)
	defer roi.Close()
	return roi.Mean().Val1
}
