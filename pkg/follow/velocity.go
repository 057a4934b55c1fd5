package follow

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// sample is one bbox centre observation.
type sample struct {
	at time.Time
	y  float64
}

// VelocityEstimator fits a line to recent bbox centre heights and turns the
// slope into the target's forward speed in m/s. A target walking away rises
// in the frame, so a negative pixel slope means positive (receding) speed.
//
// PixelToMeter is a calibration input; there is no universal constant for it.
type VelocityEstimator struct {
	window       time.Duration
	pixelToMeter float64
	smoothing    float64

	samples  []sample
	smoothed float64
	valid    bool
}

// NewVelocityEstimator creates an estimator over a sliding time window.
// smoothing is the EMA weight of each new estimate (0-1].
func NewVelocityEstimator(window time.Duration, pixelToMeter, smoothing float64) *VelocityEstimator {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = 1
	}
	return &VelocityEstimator{
		window:       window,
		pixelToMeter: pixelToMeter,
		smoothing:    smoothing,
	}
}

// Observe adds a centre height seen at time at, then returns the smoothed
// relative speed of the target away from the camera. The second result is
// false until at least three samples span some time.
func (v *VelocityEstimator) Observe(at time.Time, centerY float64) (float64, bool) {
	v.samples = append(v.samples, sample{at: at, y: centerY})

	cutoff := at.Add(-v.window)
	drop := 0
	for drop < len(v.samples)-1 && v.samples[drop].at.Before(cutoff) {
		drop++
	}
	v.samples = v.samples[drop:]

	if len(v.samples) < 3 {
		return v.smoothed, v.valid
	}
	origin := v.samples[0].at
	span := v.samples[len(v.samples)-1].at.Sub(origin)
	if span <= 0 {
		return v.smoothed, v.valid
	}

	xs := make([]float64, len(v.samples))
	ys := make([]float64, len(v.samples))
	for i, s := range v.samples {
		xs[i] = s.at.Sub(origin).Seconds()
		ys[i] = s.y
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)

	speed := -slope * v.pixelToMeter
	if !v.valid {
		v.smoothed = speed
		v.valid = true
	} else {
		v.smoothed += v.smoothing * (speed - v.smoothed)
	}
	return v.smoothed, true
}

// Reset discards all samples.
func (v *VelocityEstimator) Reset() {
	v.samples = v.samples[:0]
	v.smoothed = 0
	v.valid = false
}
