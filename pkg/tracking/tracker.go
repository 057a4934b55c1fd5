// Package tracking keeps a visual lock on a selected target.
//
// A Tracker is seeded with a frame and a bounding box, then reports a new box
// and a confidence in [0,1] for every following frame. Two variants exist:
// a grayscale correlation tracker and a colour histogram (CamShift) tracker.
// Adaptive wraps them and swaps variants when confidence stays low.
package tracking

import (
	"fmt"

	"github.com/teslashibe/go-borg/pkg/vision"
)

// Kind names a tracker variant.
type Kind string

const (
	KindCorrelation    Kind = "correlation"
	KindColorHistogram Kind = "histogram"
)

// Kinds lists all variants in swap order.
var Kinds = []Kind{KindCorrelation, KindColorHistogram}

// Result is the outcome of one Update.
type Result struct {
	Box        vision.BoundingBox `json:"box"`
	Confidence float64            `json:"confidence"`
	Found      bool               `json:"found"` // The variant located a candidate at all
	Kind       Kind               `json:"kind"`
}

// Tracker is the capability every variant provides. Implementations never
// retain the caller's frame.
type Tracker interface {
	// Init builds a model of the target inside box.
	Init(frame vision.Frame, box vision.BoundingBox) error

	// Update locates the target in a new frame.
	Update(frame vision.Frame) (Result, error)

	// Close releases resources.
	Close() error
}

// New creates a single-variant tracker.
func New(kind Kind, cfg Config) (Tracker, error) {
	switch kind {
	case KindCorrelation:
		return newCorrelation(cfg), nil
	case KindColorHistogram:
		return newHistogram(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// next returns the variant after k in swap order.
func next(k Kind) Kind {
	for i, kind := range Kinds {
		if kind == k {
			return Kinds[(i+1)%len(Kinds)]
		}
	}
	return Kinds[0]
}
