// Package vision provides frames, bounding boxes and the camera-facing pieces
// of the following pipeline.
package vision

import (
	"context"
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when a frame carries no pixels.
var ErrEmptyFrame = errors.New("vision: empty frame")

// Frame is one BGR camera image plus its capture time. All rate and velocity
// math uses Captured, never frame counts.
type Frame struct {
	Mat      gocv.Mat
	Captured time.Time
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	return f.Mat.Cols()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	return f.Mat.Rows()
}

// Empty reports whether the frame has no pixels.
func (f Frame) Empty() bool {
	return f.Mat.Empty()
}

// Close releases the underlying Mat.
func (f Frame) Close() error {
	return f.Mat.Close()
}

// Rotate180 returns a new frame rotated by 180°. The caller owns both frames.
func (f Frame) Rotate180() (Frame, error) {
	if f.Empty() {
		return Frame{}, ErrEmptyFrame
	}
	dst := gocv.NewMat()
	gocv.Rotate(f.Mat, &dst, gocv.Rotate180Clockwise)
	return Frame{Mat: dst, Captured: f.Captured}, nil
}

// FrameSource delivers camera frames. NextFrame blocks until a frame is
// available or ctx is done; the caller closes the returned frame.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}
