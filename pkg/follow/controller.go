// Package follow turns a tracked bounding box into wheel commands that keep
// the target centred at a fixed distance.
package follow

import (
	"time"

	"github.com/teslashibe/go-borg/pkg/debug"
	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Observation is the controller's input for one tick.
type Observation struct {
	Box         vision.BoundingBox
	FrameWidth  int
	FrameHeight int
	Calibration Calibration
	Robot       odometry.Velocity // Chassis velocity from odometry
}

// Output is the controller's decision for one tick.
type Output struct {
	Command       robot.MotorCommand `json:"command"`
	Distance      float64            `json:"distance"`       // Estimated target distance (m)
	DistanceKnown bool               `json:"distance_known"` // False if the box had no height
	TargetSpeed   float64            `json:"target_speed"`   // Estimated target ground speed (m/s)
	TooClose      bool               `json:"too_close"`      // Inside EmergencyStopDistance
	Reversing     bool               `json:"reversing"`      // Inside SafeMinDistance
}

// Controller runs the distance and steering PID loops. Not safe for
// concurrent use; the vision pipeline owns it.
type Controller struct {
	cfg      Config
	distance *PID
	steering *PID
	velocity *VelocityEstimator
	lastTick time.Time
}

// NewController creates a controller.
func NewController(cfg Config) *Controller {
	return &Controller{
		cfg:      cfg,
		distance: NewPID(cfg.Distance),
		steering: NewPID(cfg.Steering),
		velocity: NewVelocityEstimator(cfg.VelocityWindow, cfg.PixelToMeter, cfg.VelocitySmoothing),
	}
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// SetGains replaces both loops' gains without resetting their state.
func (c *Controller) SetGains(distance, steering Gains) {
	c.cfg.Distance = distance
	c.cfg.Steering = steering
	c.distance.Gains = distance
	c.steering.Gains = steering
}

// SetTargetDistance changes the held distance.
func (c *Controller) SetTargetDistance(m float64) {
	if m > c.cfg.SafeMinDistance {
		c.cfg.TargetDistance = m
	}
}

// Reset clears loop state. Call it when a session starts or the target was
// reacquired after a search.
func (c *Controller) Reset() {
	c.distance.Reset()
	c.steering.Reset()
	c.velocity.Reset()
	c.lastTick = time.Time{}
}

// Tick computes the command for one observation taken at now.
func (c *Controller) Tick(obs Observation, now time.Time) Output {
	dt := 0.0
	if !c.lastTick.IsZero() {
		dt = now.Sub(c.lastTick).Seconds()
	}
	c.lastTick = now

	var out Output
	dist, ok := EstimateDistance(obs.Box.Height, obs.Calibration)
	if !ok || obs.FrameWidth <= 0 {
		return out
	}
	out.Distance = dist
	out.DistanceKnown = true

	if dist < c.cfg.EmergencyStopDistance {
		out.TooClose = true
		c.distance.Reset()
		c.steering.Reset()
		return out
	}

	steer := c.steer(obs, dt)

	if dist < c.cfg.SafeMinDistance {
		// Back off regardless of what the distance loop wants.
		out.Reversing = true
		c.distance.Reset()
		out.Command = robot.Differential(-c.cfg.ReverseSpeed, steer)
		return out
	}

	base := c.distance.Update(dist-c.cfg.TargetDistance, dt)

	if c.cfg.UseVelocity {
		_, cy := obs.Box.Center()
		if rel, ok := c.velocity.Observe(now, cy); ok {
			out.TargetSpeed = rel + obs.Robot.Linear
			if c.cfg.MaxWheelSpeed > 0 {
				base += out.TargetSpeed / c.cfg.MaxWheelSpeed
			}
		}
	}

	base = clamp(base, -c.cfg.MaxSpeed, c.cfg.MaxSpeed)
	out.Command = robot.Differential(base, steer)

	if debug.Tracking {
		debug.TrackLog("follow tick",
			"distance", dist, "base", base, "steer", steer,
			"target_speed", out.TargetSpeed, "left", out.Command.Left, "right", out.Command.Right)
	}
	return out
}

// steer runs the centring loop on the normalized horizontal offset.
func (c *Controller) steer(obs Observation, dt float64) float64 {
	cx, _ := obs.Box.Center()
	half := float64(obs.FrameWidth) / 2
	offset := clamp((cx-half)/half, -1, 1)
	return clamp(c.steering.Update(offset, dt), -c.cfg.MaxSteer, c.cfg.MaxSteer)
}
