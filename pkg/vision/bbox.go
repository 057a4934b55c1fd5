package vision

import (
	"image"
	"math"
)

// BoundingBox locates the target in frame pixel coordinates.
// X, Y is the top-left corner.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box has a positive, finite size.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.X, b.Y, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Width > 0 && b.Height > 0
}

// Center returns the box centre.
func (b BoundingBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns width × height.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// InFrame reports whether the box lies fully inside a w×h frame.
func (b BoundingBox) InFrame(w, h int) bool {
	return b.Valid() &&
		b.X >= 0 && b.Y >= 0 &&
		b.X+b.Width <= float64(w) &&
		b.Y+b.Height <= float64(h)
}

// SizeChange returns the relative change of the box area from prev to b
// (0.6 means 60% bigger or smaller). Invalid boxes count as a total change.
func (b BoundingBox) SizeChange(prev BoundingBox) float64 {
	if !b.Valid() || !prev.Valid() {
		return 1
	}
	return math.Abs(b.Area()-prev.Area()) / prev.Area()
}

// Rect converts to an integer image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X)),
		int(math.Round(b.Y)),
		int(math.Round(b.X+b.Width)),
		int(math.Round(b.Y+b.Height)),
	)
}

// ClipTo intersects the box with a w×h frame. The result may be invalid.
func (b BoundingBox) ClipTo(w, h int) BoundingBox {
	return FromRect(b.Rect().Intersect(image.Rect(0, 0, w, h)))
}

// Expand grows the box by factor around its centre.
func (b BoundingBox) Expand(factor float64) BoundingBox {
	cx, cy := b.Center()
	w, h := b.Width*factor, b.Height*factor
	return BoundingBox{X: cx - w/2, Y: cy - h/2, Width: w, Height: h}
}

// Rotate180 maps the box into a frame rotated by 180°.
func (b BoundingBox) Rotate180(w, h int) BoundingBox {
	return BoundingBox{
		X:      float64(w) - b.X - b.Width,
		Y:      float64(h) - b.Y - b.Height,
		Width:  b.Width,
		Height: b.Height,
	}
}

// FromRect converts an image.Rectangle.
func FromRect(r image.Rectangle) BoundingBox {
	return BoundingBox{
		X:      float64(r.Min.X),
		Y:      float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}
