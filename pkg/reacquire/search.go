package reacquire

import (
	"math"
	"time"

	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/robot"
)

// sweepPattern returns the local scan offsets in units of step, e.g. for
// ±30° in 10° steps: 1 2 3 2 1 0 -1 -2 -3 -2 -1 0.
func sweepPattern(sweep, step float64) []float64 {
	n := 1
	if step > 0 {
		n = int(math.Round(sweep / step))
	}
	if n < 1 {
		n = 1
	}
	var p []float64
	for i := 1; i <= n; i++ {
		p = append(p, float64(i)*step)
	}
	for i := n - 1; i >= -n; i-- {
		p = append(p, float64(i)*step)
	}
	for i := -n + 1; i <= 0; i++ {
		p = append(p, float64(i)*step)
	}
	return p
}

// turn returns a rotate command that closes err radians of heading error.
func (m *Machine) turn(err float64) robot.MotorCommand {
	speed := math.Abs(err) * m.cfg.TurnGain
	speed = math.Max(speed, m.cfg.MinTurn)
	speed = math.Min(speed, m.cfg.SearchSpeed)
	return robot.Rotate(math.Copysign(speed, err))
}

// aligned reports whether heading is within tolerance of target.
func (m *Machine) aligned(target, heading float64) bool {
	return math.Abs(odometry.AngleDiff(target, heading)) <= m.cfg.HeadingTolerance
}

// localScan steps around the loss bearing, pausing after each step.
func (m *Machine) localScan(now time.Time, pose odometry.Pose) robot.MotorCommand {
	if !m.dwellUntil.IsZero() {
		if now.Before(m.dwellUntil) {
			return robot.Stop
		}
		m.dwellUntil = time.Time{}
		m.sweepIdx = (m.sweepIdx + 1) % len(m.sweep)
	}

	target := m.localTarget()
	if m.aligned(target, pose.Heading) {
		m.dwellUntil = now.Add(m.cfg.StepDwell)
		return robot.Stop
	}
	return m.turn(odometry.AngleDiff(target, pose.Heading))
}

// localTarget is the heading of the current scan step.
func (m *Machine) localTarget() float64 {
	return odometry.NormalizeAngle(m.lossBearing + m.sweepDir*m.sweep[m.sweepIdx])
}

// returnTrip rotates toward the loss pose, drives to it, then restores the
// loss heading. It uses odometry only.
func (m *Machine) returnTrip(pose odometry.Pose) robot.MotorCommand {
	for {
		switch m.phase {
		case phaseTurnToward:
			if pose.DistanceTo(m.lossPose) <= m.cfg.ArrivalRadius {
				m.phase = phaseTurnFinal
				continue
			}
			bearing := pose.BearingTo(m.lossPose)
			if !m.aligned(bearing, pose.Heading) {
				return m.turn(odometry.AngleDiff(bearing, pose.Heading))
			}
			m.phase = phaseDrive

		case phaseDrive:
			if pose.DistanceTo(m.lossPose) <= m.cfg.ArrivalRadius {
				m.phase = phaseTurnFinal
				continue
			}
			err := odometry.AngleDiff(pose.BearingTo(m.lossPose), pose.Heading)
			if math.Abs(err) > 3*m.cfg.HeadingTolerance {
				m.phase = phaseTurnToward
				continue
			}
			// Positive steer turns right; a positive error needs a left turn.
			steer := -math.Max(-0.2, math.Min(0.2, err*m.cfg.TurnGain))
			return robot.Differential(m.cfg.DriveSpeed, steer)

		case phaseTurnFinal:
			if !m.aligned(m.lossPose.Heading, pose.Heading) {
				return m.turn(odometry.AngleDiff(m.lossPose.Heading, pose.Heading))
			}
			m.phase = phaseDone

		default:
			return robot.Stop
		}
	}
}
