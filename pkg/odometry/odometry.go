// Package odometry integrates commanded wheel speeds into a 2D pose estimate
// (dead reckoning). It has no sensors of its own: the pose is only as good as
// the commands it is fed.
package odometry

import (
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-borg/pkg/robot"
)

// Pose is a planar pose: meters, meters, radians. Heading is kept in (-π, π].
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// DistanceTo returns the straight-line distance to q.
func (p Pose) DistanceTo(q Pose) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// BearingTo returns the world heading that points from p towards q.
func (p Pose) BearingTo(q Pose) float64 {
	return NormalizeAngle(math.Atan2(q.Y-p.Y, q.X-p.X))
}

// Velocity is the chassis velocity implied by the last integrated command.
type Velocity struct {
	Linear  float64 `json:"linear"`  // m/s along the heading
	Angular float64 `json:"angular"` // rad/s, counter-clockwise positive
}

// Config describes the chassis geometry.
type Config struct {
	WheelBase     float64       // Distance between wheel contact lines (m)
	MaxWheelSpeed float64       // Wheel ground speed at command 1.0 (m/s)
	MaxStep       time.Duration // Longer gaps are split so a stalled pipeline does not teleport the pose
}

// DefaultConfig returns the geometry of the stock chassis.
func DefaultConfig() Config {
	return Config{
		WheelBase:     0.20,
		MaxWheelSpeed: 1.2,
		MaxStep:       250 * time.Millisecond,
	}
}

// Odometry holds the dead-reckoned pose. Update must only be called from a
// single goroutine so updates are applied in temporal order; reads are safe
// from anywhere.
type Odometry struct {
	cfg Config

	mu       sync.RWMutex
	pose     Pose
	velocity Velocity
	travel   float64 // Total path length since reset
}

// New creates an odometry estimator at the origin.
func New(cfg Config) *Odometry {
	if cfg.WheelBase <= 0 {
		cfg.WheelBase = DefaultConfig().WheelBase
	}
	if cfg.MaxWheelSpeed <= 0 {
		cfg.MaxWheelSpeed = DefaultConfig().MaxWheelSpeed
	}
	return &Odometry{cfg: cfg}
}

// Config returns the chassis geometry.
func (o *Odometry) Config() Config {
	return o.cfg
}

// Update integrates cmd held for dt and returns the new pose.
func (o *Odometry) Update(cmd robot.MotorCommand, dt time.Duration) Pose {
	cmd = cmd.Clamp()
	vl := cmd.Left * o.cfg.MaxWheelSpeed
	vr := cmd.Right * o.cfg.MaxWheelSpeed
	v := (vl + vr) / 2
	w := (vr - vl) / o.cfg.WheelBase

	o.mu.Lock()
	defer o.mu.Unlock()

	o.velocity = Velocity{Linear: v, Angular: w}
	if dt <= 0 {
		return o.pose
	}

	remaining := dt
	for remaining > 0 {
		step := remaining
		if o.cfg.MaxStep > 0 && step > o.cfg.MaxStep {
			step = o.cfg.MaxStep
		}
		remaining -= step
		o.integrate(v, w, step.Seconds())
	}
	return o.pose
}

// integrate advances the pose using the midpoint heading, which is exact for
// straight lines and in-place rotations.
func (o *Odometry) integrate(v, w, dt float64) {
	mid := o.pose.Heading + w*dt/2
	o.pose.X += v * math.Cos(mid) * dt
	o.pose.Y += v * math.Sin(mid) * dt
	o.pose.Heading = NormalizeAngle(o.pose.Heading + w*dt)
	o.travel += math.Abs(v) * dt
}

// Pose returns the current pose estimate.
func (o *Odometry) Pose() Pose {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pose
}

// Velocity returns the chassis velocity from the last update.
func (o *Odometry) Velocity() Velocity {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.velocity
}

// Travel returns the path length covered since the last reset.
func (o *Odometry) Travel() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.travel
}

// Reset moves the estimate back to the origin. Called when a new tracking
// session starts.
func (o *Odometry) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pose = Pose{}
	o.velocity = Velocity{}
	o.travel = 0
}

// NormalizeAngle wraps rad into (-π, π].
func NormalizeAngle(rad float64) float64 {
	if math.IsNaN(rad) || math.IsInf(rad, 0) {
		return 0
	}
	a := math.Mod(rad, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// AngleDiff returns the signed shortest rotation from `from` to `to`.
func AngleDiff(to, from float64) float64 {
	return NormalizeAngle(to - from)
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
