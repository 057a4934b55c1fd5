package follow

import "math"

// Gains configures one PID loop.
type Gains struct {
	Kp float64 `json:"kp"` // Proportional gain
	Ki float64 `json:"ki"` // Integral gain
	Kd float64 `json:"kd"` // Derivative gain

	IntegralLimit float64 `json:"integral_limit"` // |integral| is clamped here (anti-windup)
	OutputLimit   float64 `json:"output_limit"`   // |output| is clamped here
	DeadZone      float64 `json:"dead_zone"`      // Errors smaller than this count as zero
}

// PID is a proportional-integral-derivative controller with a clamped
// integral term. Not safe for concurrent use.
type PID struct {
	Gains

	integral  float64
	lastError float64
	primed    bool
}

// NewPID creates a controller with the given gains.
func NewPID(g Gains) *PID {
	return &PID{Gains: g}
}

// Update feeds an error sample taken dt seconds after the previous one and
// returns the control output. A non-positive dt skips the I and D terms.
func (p *PID) Update(err, dt float64) float64 {
	if math.IsNaN(err) || math.IsInf(err, 0) {
		return 0
	}
	if math.Abs(err) < p.DeadZone {
		err = 0
	}

	out := p.Kp * err

	if dt > 0 {
		p.integral += err * dt
		if p.IntegralLimit > 0 {
			p.integral = clamp(p.integral, -p.IntegralLimit, p.IntegralLimit)
		}
		out += p.Ki * p.integral

		if p.primed {
			out += p.Kd * (err - p.lastError) / dt
		}
	}

	p.lastError = err
	p.primed = true

	if p.OutputLimit > 0 {
		out = clamp(out, -p.OutputLimit, p.OutputLimit)
	}
	return out
}

// Integral returns the accumulated integral term.
func (p *PID) Integral() float64 {
	return p.integral
}

// Reset clears accumulated state.
func (p *PID) Reset() {
	p.integral = 0
	p.lastError = 0
	p.primed = false
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
