package autopilot

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/debug"
	"github.com/teslashibe/go-borg/pkg/follow"
	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/orientation"
	"github.com/teslashibe/go-borg/pkg/reacquire"
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/safety"
	"github.com/teslashibe/go-borg/pkg/tracking"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// pipeline is the state only the vision goroutine touches.
type pipeline struct {
	machine *reacquire.Machine
	follow  *follow.Controller
	motion  *vision.MotionDetector
	tracker tracking.Tracker

	session     SessionID
	label       string
	seed        vision.BoundingBox
	ready       bool // tracker initialised for this session
	calibration follow.Calibration
	wantMotion  bool
	lastOut     follow.Output
	confidence  float64
	fault       *safety.Fault

	tick       uint64
	logical    robot.MotorCommand // last command in upright terms, for odometry
	lastFrame  time.Time
	frames     uint64
	fps        float64
	lastErrLog time.Time
}

func newPipeline(cfg Config) pipeline {
	return pipeline{
		machine: reacquire.New(cfg.Reacquire),
		follow:  follow.NewController(cfg.Follow),
		motion:  vision.NewMotionDetector(cfg.Motion),
	}
}

func (p *pipeline) closeTracker() {
	if p.tracker != nil {
		p.tracker.Close()
		p.tracker = nil
	}
	p.ready = false
}

func (p *pipeline) close() {
	p.closeTracker()
	p.motion.Close()
}

// Process runs one frame through the pipeline: orientation, tracking, the
// reacquisition machine, follow or search control, remapping and the safety
// gate. The caller keeps ownership of frame. Run calls it for every frame;
// only one goroutine may call it.
func (a *Autopilot) Process(frame vision.Frame) {
	p := &a.pipe
	now := frame.Captured
	if now.IsZero() {
		now = time.Now()
	}
	a.coord.Beat(time.Now())

	mode := a.coord.Mode()
	a.applyRequests(now, mode)
	if a.coord.Stopped() && p.session != "" {
		// An emergency stop ends the session; clearing it must not resume.
		a.stopSession(now, mode, "emergency stop")
	}

	// Integrate what the wheels did since the previous frame.
	var dt time.Duration
	if !p.lastFrame.IsZero() {
		dt = now.Sub(p.lastFrame)
		if dt > 0 {
			fps := float64(time.Second) / float64(dt)
			if p.fps == 0 {
				p.fps = fps
			} else {
				p.fps = 0.9*p.fps + 0.1*fps
			}
		}
	}
	p.lastFrame = now
	p.frames++

	driven := p.logical
	if mode == safety.Manual {
		delivered, _ := a.coord.Delivered()
		driven = orientation.Apply(a.orient.Orientation(), delivered)
	}
	if a.coord.Stopped() {
		driven = robot.Stop
	}
	pose := a.odo.Update(driven, dt)

	ost := a.orient.Step(now, frame, pose)
	upright, release, err := orientation.Upright(ost.Orientation, frame)
	if err != nil {
		upright = frame
	}
	defer release()

	cmd, producer := robot.Stop, safety.ProducerNone
	var dec reacquire.Decision
	if p.machine.State() != reacquire.Abandoned {
		dec = a.track(now, upright, pose)
		cmd, producer = a.command(now, upright, dec)
	}
	if ost.Override {
		cmd, producer = ost.Command, safety.ProducerOrientation
	}

	physical := orientation.Apply(ost.Orientation, cmd)
	p.logical = robot.Stop
	if mode == safety.Autonomous && producer != safety.ProducerNone {
		if err := a.submit(producer, physical); err == nil {
			p.logical = cmd
		}
	}

	if debug.Tracking {
		debug.TrackLog("pipeline frame",
			"state", dec.State, "producer", producer, "orientation", ost.Orientation,
			"left", physical.Left, "right", physical.Right,
			"x", pose.X, "y", pose.Y, "heading", odometry.Degrees(pose.Heading))
	}
	a.publish(now, pose, ost.Orientation, producer, physical)
}

// applyRequests takes over pending API requests.
func (a *Autopilot) applyRequests(now time.Time, mode safety.Mode) {
	p := &a.pipe

	a.mu.Lock()
	req := a.pending
	a.pending = nil
	var tune *Tuning
	if a.tuningDirty {
		t := a.tuning
		tune = &t
		a.tuningDirty = false
	}
	a.mu.Unlock()

	if tune != nil {
		p.follow.SetGains(tune.Distance, tune.Steering)
		p.follow.SetTargetDistance(tune.TargetDistance)
	}
	if req == nil {
		return
	}

	switch req.kind {
	case requestStart:
		a.startSession(now, mode, req)
	case requestCancel:
		a.stopSession(now, mode, "")
	}
}

// stopSession tears the current session down. A non-empty reason is logged
// and also forgets the session on the API side.
func (a *Autopilot) stopSession(now time.Time, mode safety.Mode, reason string) {
	p := &a.pipe
	id := p.session

	if reason != "" {
		a.mu.Lock()
		if a.session == id {
			a.session = ""
			a.label = ""
		}
		a.mu.Unlock()
		log.Info("session ended", "session", id, "reason", reason)
	}

	p.machine.Cancel(now)
	p.closeTracker()
	p.session = ""
	p.label = ""
	p.fault = nil
	p.lastOut = follow.Output{}
	a.coord.SetTooClose(false)
	if mode == safety.Autonomous {
		a.coord.Grant(safety.ProducerNone)
	}
	a.setPattern(robot.PatternIdle)
}

func (a *Autopilot) startSession(now time.Time, mode safety.Mode, req *request) {
	p := &a.pipe

	p.closeTracker()
	p.tracker = a.newTracker()
	p.seed = req.box
	p.session = req.session
	p.label = req.label
	p.fault = nil

	cal, err := a.calibrations.Lookup(req.label)
	if err != nil {
		log.Warn("using default calibration", "label", req.label, "error", err)
		p.fault = &safety.Fault{
			Category: safety.CategoryCalibration,
			Reason:   fmt.Sprintf("no calibration for %q, using default", req.label),
		}
	}
	p.calibration = cal

	p.machine.Start(now, req.box)
	p.follow.Reset()
	p.lastOut = follow.Output{}
	p.confidence = 0
	p.motion.Reset()
	p.wantMotion = false

	a.odo.Reset()
	p.logical = robot.Stop
	a.coord.SetTooClose(false)
	if mode == safety.Autonomous {
		a.coord.Grant(safety.ProducerNone)
	}
	log.Info("session started", "session", req.session, "label", req.label,
		"reference_px", cal.ReferenceHeightPixels, "reference_m", cal.ReferenceDistanceMeters)
}

// track runs the tracker and the reacquisition machine on one upright frame.
func (a *Autopilot) track(now time.Time, frame vision.Frame, pose odometry.Pose) reacquire.Decision {
	p := &a.pipe

	var res tracking.Result
	var terr error
	switch {
	case p.tracker == nil:
		terr = tracking.ErrNotInitialized
	case !p.ready && p.machine.State() == reacquire.Acquiring:
		terr = p.tracker.Init(frame, p.seed)
		if terr == nil {
			p.ready = true
			res = tracking.Result{Box: p.seed, Confidence: 1, Found: true}
		}
	default:
		res, terr = p.tracker.Update(frame)
	}

	if terr != nil {
		p.fault = &safety.Fault{Category: safety.CategoryTracker, Reason: "tracker lost the target"}
		if now.Sub(p.lastErrLog) > 5*time.Second {
			log.Debug("tracker error", "session", p.session, "error", terr)
			p.lastErrLog = now
		}
	} else if res.Found {
		p.confidence = res.Confidence
	}

	obs := reacquire.Observation{
		Result:      res,
		TrackerErr:  terr,
		FrameWidth:  frame.Width(),
		FrameHeight: frame.Height(),
		Pose:        pose,
	}
	if p.lastOut.DistanceKnown {
		obs.Distance = p.lastOut.Distance
	}
	if p.wantMotion {
		if box, ok := p.motion.Detect(frame); ok {
			obs.Motion = box
		}
	}

	d := p.machine.Step(now, obs)
	if d.Changed {
		a.stateChanged(d)
	}
	if d.Reacquired {
		p.follow.Reset()
		if p.fault != nil && p.fault.Category == safety.CategoryTracker {
			p.fault = nil
		}
	}
	if d.Reinit != nil && p.tracker != nil {
		if err := p.tracker.Init(frame, *d.Reinit); err != nil {
			p.ready = false
			log.Debug("re-seeding tracker from motion failed", "error", err)
		} else {
			p.ready = true
		}
	}
	p.wantMotion = d.WantMotion
	return d
}

// command picks the producer and its command for the decision.
func (a *Autopilot) command(now time.Time, frame vision.Frame, d reacquire.Decision) (robot.MotorCommand, safety.Producer) {
	p := &a.pipe

	switch {
	case d.Follow:
		out := p.follow.Tick(follow.Observation{
			Box:         d.Box,
			FrameWidth:  frame.Width(),
			FrameHeight: frame.Height(),
			Calibration: p.calibration,
			Robot:       a.odo.Velocity(),
		}, now)
		p.lastOut = out
		a.coord.SetTooClose(out.TooClose)
		return out.Command, safety.ProducerFollow

	case d.State == reacquire.Tracking, d.State == reacquire.Acquiring:
		return robot.Stop, safety.ProducerFollow

	case d.State == reacquire.Abandoned:
		return robot.Stop, safety.ProducerNone

	default:
		a.coord.SetTooClose(false)
		return d.Command, safety.ProducerSearch
	}
}

// submit hands cmd to the safety gate under producer's authority.
func (a *Autopilot) submit(producer safety.Producer, cmd robot.MotorCommand) error {
	p := &a.pipe
	p.tick++
	if err := a.coord.Grant(producer); err != nil {
		return err
	}
	err := a.coord.Submit(safety.Command{Tick: p.tick, Producer: producer, Motor: cmd})
	if err != nil && !errors.Is(err, safety.ErrEmergencyStop) {
		log.Debug("command rejected", "producer", producer, "error", err)
	}
	return err
}

func (a *Autopilot) stateChanged(d reacquire.Decision) {
	p := &a.pipe

	switch d.State {
	case reacquire.Tracking:
		a.setPattern(robot.PatternTracking)
	case reacquire.Waiting:
		p.motion.Reset()
		a.setPattern(robot.PatternSearching)
	case reacquire.Abandoned:
		a.endSession()
	default:
		a.setPattern(robot.PatternSearching)
	}
}

// endSession forgets a session the machine gave up on.
func (a *Autopilot) endSession() {
	p := &a.pipe
	id := p.session

	a.mu.Lock()
	if a.session == id {
		a.session = ""
		a.label = ""
	}
	a.mu.Unlock()

	p.closeTracker()
	p.session = ""
	a.coord.SetTooClose(false)
	a.setPattern(robot.PatternIdle)
	log.Info("session abandoned", "session", id)
}

// setPattern updates the status LEDs unless a stop pattern owns them.
func (a *Autopilot) setPattern(pat robot.Pattern) {
	if a.indicator == nil || a.coord.Stopped() {
		return
	}
	if err := a.indicator.SetPattern(pat); err != nil {
		log.Warn("status pattern failed", "pattern", pat, "error", err)
	}
}

// publish stores the telemetry for this frame.
func (a *Autopilot) publish(now time.Time, pose odometry.Pose, o orientation.Orientation, producer safety.Producer, cmd robot.MotorCommand) {
	p := &a.pipe

	t := Telemetry{
		Session:     p.session,
		Label:       p.label,
		Track:       p.machine.Snapshot(now),
		Pose:        pose,
		Orientation: o,
		Command:     cmd,
		Producer:    producer,
		FPS:         p.fps,
		Frames:      p.frames,
		UpdatedAt:   now,
	}
	if p.session != "" {
		t.Confidence = p.confidence
		if p.lastOut.DistanceKnown {
			t.Distance = p.lastOut.Distance
			t.DistanceKnown = true
			t.TargetSpeed = p.lastOut.TargetSpeed
		}
	}
	if k, ok := p.tracker.(interface{ Kind() tracking.Kind }); ok {
		t.Tracker = k.Kind()
	}
	if sw, ok := p.tracker.(interface{ Swaps() int }); ok {
		t.TrackerSwaps = sw.Swaps()
	}
	if p.fault != nil {
		f := *p.fault
		t.Fault = &f
	}

	a.mu.Lock()
	a.telemetry = t
	a.mu.Unlock()
}
