package vision

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// SyntheticSource renders a lit room with one block moving across it. It
// stands in for the camera in simulation. One consumer only.
type SyntheticSource struct {
	width, height int
	interval      time.Duration
	start         time.Time
	next          time.Time

	once sync.Once
	done chan struct{}
}

// NewSyntheticSource renders width x height frames at fps.
func NewSyntheticSource(width, height, fps int) *SyntheticSource {
	if fps <= 0 {
		fps = 30
	}
	now := time.Now()
	return &SyntheticSource{
		width:    width,
		height:   height,
		interval: time.Second / time.Duration(fps),
		start:    now,
		next:     now,
		done:     make(chan struct{}),
	}
}

// NextFrame waits for the next frame slot and renders it. The caller owns
// the frame.
func (s *SyntheticSource) NextFrame(ctx context.Context) (Frame, error) {
	select {
	case <-s.done:
		return Frame{}, ErrCameraClosed
	default:
	}

	wait := time.Until(s.next)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.done:
		return Frame{}, ErrCameraClosed
	case now := <-timer.C:
		s.next = s.next.Add(s.interval)
		if s.next.Before(now) {
			s.next = now
		}
		return s.render(now), nil
	}
}

// Target returns where the block is at t.
func (s *SyntheticSource) Target(t time.Time) BoundingBox {
	side := float64(s.height) / 4
	phase := t.Sub(s.start).Seconds() * 0.5
	cx := float64(s.width)/2 + math.Sin(phase)*float64(s.width)/4
	cy := float64(s.height) * 0.6
	return BoundingBox{X: cx - side/2, Y: cy - side/2, Width: side, Height: side}
}

func (s *SyntheticSource) render(now time.Time) Frame {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(50, 50, 50, 0), s.height, s.width, gocv.MatTypeCV8UC3)

	// Lit ceiling so the orientation check sees an upright chassis.
	ceiling := mat.Region(image.Rect(0, 0, s.width, s.height/2))
	ceiling.SetTo(gocv.NewScalar(170, 170, 170, 0))
	ceiling.Close()

	gocv.Rectangle(&mat, s.Target(now).Rect(), color.RGBA{R: 200, G: 40, B: 40}, -1)
	return Frame{Mat: mat, Captured: now}
}

// Close ends the stream; NextFrame then returns ErrCameraClosed.
func (s *SyntheticSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
