// Package reacquire decides who drives the chassis during a tracking session:
// the follow controller while the target is locked, or a staged search when
// it is lost (local scan, full-turn scan, return to the loss pose, wait).
//
// The machine is driven by the vision tick with explicit timestamps. Nothing
// blocks or sleeps, so a session can be cancelled at any point.
package reacquire

import (
	"math"
	"time"

	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/tracking"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Observation is everything the machine sees on one vision tick.
type Observation struct {
	Result      tracking.Result // Tracker output; ignored when TrackerErr is set
	TrackerErr  error           // Update failed this frame
	FrameWidth  int
	FrameHeight int
	Pose        odometry.Pose      // Current odometry pose
	Distance    float64            // Latest target distance estimate (m), 0 if unknown
	Motion      vision.BoundingBox // Motion detected while Waiting (zero if none)
}

// Decision tells the pipeline what to do this tick.
type Decision struct {
	State      State
	Event      Event
	Changed    bool                // State changed on this tick
	Follow     bool                // Run the follow controller on Box
	Box        vision.BoundingBox  // Box to follow
	Command    robot.MotorCommand  // Command when not following
	Reinit     *vision.BoundingBox // Re-seed the tracker from this box
	WantMotion bool                // Run motion detection next tick
	Reacquired bool                // Entered Tracking; reset follow loops
}

// returnPhase is the step of the return trip.
type returnPhase int

const (
	phaseTurnToward returnPhase = iota
	phaseDrive
	phaseTurnFinal
	phaseDone
)

// Machine is the reacquisition state machine. Not safe for concurrent use;
// the vision pipeline owns it and publishes Snapshots.
type Machine struct {
	cfg Config

	state     State
	enteredAt time.Time

	// Tracking
	lastGood     vision.BoundingBox
	lastDistance float64
	confidence   float64
	weakSince    time.Time

	// Loss
	lostAt      time.Time
	lossPose    odometry.Pose
	lossBearing float64
	sweepDir    float64

	// Local scan
	sweep      []float64
	sweepIdx   int
	dwellUntil time.Time

	// Expanded scan
	turned      float64
	lastHeading float64

	// Return trip
	phase returnPhase

	// Waiting
	nextReinit time.Time
}

// New creates a machine in the Abandoned state; call Start to begin a session.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg, state: Abandoned, sweep: sweepPattern(cfg.LocalSweep, cfg.LocalStep)}
}

// Start begins a session on seed. Any previous session state is discarded.
func (m *Machine) Start(now time.Time, seed vision.BoundingBox) {
	*m = Machine{cfg: m.cfg, sweep: m.sweep}
	m.state = Acquiring
	m.enteredAt = now
	m.lastGood = seed
}

// Cancel ends the session.
func (m *Machine) Cancel(now time.Time) {
	if next := Next(m.state, EventCancel); next != m.state {
		m.transition(next, EventCancel, now, Observation{})
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Step consumes one observation taken at now.
func (m *Machine) Step(now time.Time, obs Observation) Decision {
	ev := m.event(now, obs)
	prev := m.state
	next := Next(prev, ev)

	var d Decision
	if next != prev {
		m.transition(next, ev, now, obs)
		d.Changed = true
		d.Reacquired = next == Tracking
	}

	m.act(now, obs, &d)
	d.State = m.state
	d.Event = ev
	return d
}

// good reports a fully successful frame: found, confident, and in frame.
func (m *Machine) good(obs Observation) bool {
	r := obs.Result
	return obs.TrackerErr == nil && r.Found &&
		r.Confidence >= m.cfg.ConfidenceFloor &&
		r.Box.InFrame(obs.FrameWidth, obs.FrameHeight)
}

// event derives the trigger for this tick.
func (m *Machine) event(now time.Time, obs Observation) Event {
	switch m.state {
	case Acquiring:
		if m.good(obs) {
			return EventFound
		}
		if now.Sub(m.enteredAt) >= m.cfg.AcquireTimeout {
			return EventAcquireTimeout
		}

	case Tracking:
		return m.trackingEvent(now, obs)

	case LocalSearch:
		if m.good(obs) {
			return EventFound
		}
		if now.Sub(m.lostAt) >= m.cfg.LocalTimeout {
			return EventLocalTimeout
		}

	case ExpandedSearch:
		if m.good(obs) {
			return EventFound
		}
		if now.Sub(m.lostAt) >= m.cfg.ExpandedTimeout {
			return EventExpandedTimeout
		}

	case Returning:
		if m.phase == phaseDone {
			return EventArrived
		}
		if now.Sub(m.enteredAt) >= m.cfg.ReturnTimeout {
			return EventReturnTimeout
		}

	case Waiting:
		if m.good(obs) {
			return EventFound
		}
		if now.Sub(m.enteredAt) >= m.cfg.WaitTimeout {
			return EventWaitTimeout
		}
	}
	return EventTick
}

// trackingEvent applies the loss rules while locked.
func (m *Machine) trackingEvent(now time.Time, obs Observation) Event {
	r := obs.Result
	located := obs.TrackerErr == nil && r.Found

	if located && !r.Box.InFrame(obs.FrameWidth, obs.FrameHeight) {
		return EventLost
	}
	if located && m.lastGood.Valid() && r.Box.SizeChange(m.lastGood) > m.cfg.MaxSizeChange {
		return EventLost
	}

	if m.good(obs) {
		m.weakSince = time.Time{}
		m.lastGood = r.Box
		m.confidence = r.Confidence
		if obs.Distance > 0 {
			m.lastDistance = obs.Distance
		}
		return EventFound
	}

	if m.weakSince.IsZero() {
		m.weakSince = now
	}
	if located {
		m.confidence = r.Confidence
	}
	if now.Sub(m.weakSince) >= m.cfg.LossDelay {
		return EventLost
	}
	return EventTick
}

// transition enters a new state.
func (m *Machine) transition(to State, ev Event, now time.Time, obs Observation) {
	from := m.state
	m.state = to
	m.enteredAt = now

	switch to {
	case Tracking:
		m.weakSince = time.Time{}
		m.lastGood = obs.Result.Box
		m.confidence = obs.Result.Confidence

	case LocalSearch:
		m.lostAt = now
		m.lossBearing, m.sweepDir = m.bearingOf(m.lastGood, obs)
		m.lossPose = lastSeen(obs.Pose, m.lossBearing, m.lastDistance)
		m.sweepIdx = 0
		m.dwellUntil = time.Time{}
		m.turned = 0

	case ExpandedSearch:
		m.turned = 0
		m.lastHeading = obs.Pose.Heading

	case Returning:
		m.phase = phaseTurnToward

	case Waiting:
		m.nextReinit = time.Time{}
	}

	log.Info("reacquire transition", "from", from, "to", to, "event", ev)
}

// bearingOf returns the absolute bearing of box and the side (+1 left, -1
// right) it was on.
func (m *Machine) bearingOf(box vision.BoundingBox, obs Observation) (float64, float64) {
	if !box.Valid() || obs.FrameWidth <= 0 {
		return obs.Pose.Heading, 1
	}
	cx, _ := box.Center()
	half := float64(obs.FrameWidth) / 2
	offset := (cx - half) / half
	angle := -offset * m.cfg.CameraFOV / 2
	dir := 1.0
	if angle < 0 {
		dir = -1
	}
	return odometry.NormalizeAngle(obs.Pose.Heading + angle), dir
}

// lastSeen is where the target stood when it was lost: distance metres from
// the robot along bearing, facing bearing. With no distance estimate it is
// the robot's own position.
func lastSeen(from odometry.Pose, bearing, distance float64) odometry.Pose {
	p := odometry.Pose{X: from.X, Y: from.Y, Heading: bearing}
	if distance > 0 {
		p.X += distance * math.Cos(bearing)
		p.Y += distance * math.Sin(bearing)
	}
	return p
}

// act fills the decision for the current state.
func (m *Machine) act(now time.Time, obs Observation, d *Decision) {
	switch m.state {
	case Tracking:
		r := obs.Result
		if obs.TrackerErr == nil && r.Found && r.Box.InFrame(obs.FrameWidth, obs.FrameHeight) {
			d.Follow = true
			d.Box = r.Box
		}

	case LocalSearch:
		d.Command = m.localScan(now, obs.Pose)

	case ExpandedSearch:
		m.turned += math.Abs(odometry.AngleDiff(obs.Pose.Heading, m.lastHeading))
		m.lastHeading = obs.Pose.Heading
		// One full turn, then hold still and watch until the timeout.
		if m.turned < 2*math.Pi {
			d.Command = robot.Rotate(m.sweepDir * m.cfg.ExpandedSpeed)
		}

	case Returning:
		d.Command = m.returnTrip(obs.Pose)

	case Waiting:
		d.WantMotion = true
		if obs.Motion.Valid() && !now.Before(m.nextReinit) {
			box := obs.Motion
			d.Reinit = &box
			m.lastGood = box
			m.nextReinit = now.Add(m.cfg.ReinitCooldown)
			log.Info("motion detected while waiting", "x", box.X, "y", box.Y, "w", box.Width, "h", box.Height)
		}
	}
}
