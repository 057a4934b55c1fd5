// Package autopilot is the following core behind one API: it owns the vision
// pipeline goroutine and the safety coordinator, and exposes session control,
// telemetry and the emergency stop to any caller.
//
// API calls never touch pipeline state directly. They post requests that the
// pipeline applies at the start of its next frame, and read telemetry the
// pipeline publishes at the end of each frame.
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/follow"
	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/orientation"
	"github.com/teslashibe/go-borg/pkg/reacquire"
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/safety"
	"github.com/teslashibe/go-borg/pkg/tracking"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// SessionID identifies one tracking session.
type SessionID string

// Telemetry is a copy of the robot's state, safe to keep and serialise.
type Telemetry struct {
	Session        SessionID               `json:"session,omitempty"`
	Label          string                  `json:"label,omitempty"`
	Mode           safety.Mode             `json:"mode"`
	Track          reacquire.Snapshot      `json:"track"`
	Tracker        tracking.Kind           `json:"tracker,omitempty"`
	TrackerSwaps   int                     `json:"trackerSwaps"` // Variant swaps this session
	Distance       float64                 `json:"distance"`
	DistanceKnown  bool                    `json:"distanceKnown"`
	TargetSpeed    float64                 `json:"targetSpeed"`
	Confidence     float64                 `json:"confidence"`
	Pose           odometry.Pose           `json:"pose"`
	BatteryVoltage float64                 `json:"batteryVoltage"`
	Orientation    orientation.Orientation `json:"orientation"`
	Command        robot.MotorCommand      `json:"command"`
	Producer       safety.Producer         `json:"producer"`
	Safety         safety.State            `json:"safety"`
	Fault          *safety.Fault           `json:"fault,omitempty"` // Latest non-safety fault of the session
	FPS            float64                 `json:"fps"`
	Frames         uint64                  `json:"frames"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

// Tuning is the runtime-adjustable part of the follow controller.
type Tuning struct {
	Distance       follow.Gains `json:"distance"`
	Steering       follow.Gains `json:"steering"`
	TargetDistance float64      `json:"targetDistance"`
}

type requestKind int

const (
	requestStart requestKind = iota
	requestCancel
)

type request struct {
	kind    requestKind
	session SessionID
	box     vision.BoundingBox
	label   string
}

// Option customises an Autopilot.
type Option func(*Autopilot)

// WithTrackerFactory replaces the adaptive tracker.
func WithTrackerFactory(fn func() tracking.Tracker) Option {
	return func(a *Autopilot) { a.newTracker = fn }
}

// WithClassifier replaces the orientation classifier.
func WithClassifier(c orientation.Classifier) Option {
	return func(a *Autopilot) { a.classifier = c }
}

// Autopilot ties the pipeline stages together.
type Autopilot struct {
	cfg          Config
	source       vision.FrameSource
	coord        *safety.Coordinator
	orient       *orientation.Controller
	odo          *odometry.Odometry
	calibrations *follow.Calibrations
	indicator    robot.StatusIndicator
	classifier   orientation.Classifier
	newTracker   func() tracking.Tracker

	// Owned by the pipeline goroutine.
	pipe pipeline

	mu          sync.Mutex
	session     SessionID
	label       string
	pending     *request
	tuning      Tuning
	tuningDirty bool
	manualTick  uint64
	telemetry   Telemetry
}

// New creates an autopilot over a frame source and the motor board. The
// indicator may be nil.
func New(cfg Config, source vision.FrameSource, driver robot.Driver, indicator robot.StatusIndicator, opts ...Option) (*Autopilot, error) {
	calibrations, err := follow.NewCalibrations(cfg.Calibration, cfg.Calibrations...)
	if err != nil {
		return nil, fmt.Errorf("autopilot: %w", err)
	}

	a := &Autopilot{
		cfg:          cfg,
		source:       source,
		coord:        safety.NewCoordinator(cfg.Safety, driver, indicator),
		odo:          odometry.New(cfg.Odometry),
		calibrations: calibrations,
		indicator:    indicator,
		tuning: Tuning{
			Distance:       cfg.Follow.Distance,
			Steering:       cfg.Follow.Steering,
			TargetDistance: cfg.Follow.TargetDistance,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.newTracker == nil {
		a.newTracker = func() tracking.Tracker { return tracking.NewAdaptive(cfg.Tracking, nil) }
	}
	a.orient = orientation.NewController(cfg.Orientation, a.classifier, a.coord, indicator)
	a.pipe = newPipeline(cfg)
	a.telemetry = Telemetry{Mode: safety.Manual, Track: reacquire.Snapshot{State: reacquire.Abandoned}}
	return a, nil
}

var _ orientation.Alarm = (*safety.Coordinator)(nil)

// Coordinator returns the safety coordinator.
func (a *Autopilot) Coordinator() *safety.Coordinator {
	return a.coord
}

// Run drives the safety coordinator and the vision pipeline until ctx is
// done or the frame source is closed.
func (a *Autopilot) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.coord.Run(ctx)
	}()

	err := a.loop(ctx)
	cancel()
	wg.Wait()
	a.pipe.close()
	return err
}

func (a *Autopilot) loop(ctx context.Context) error {
	log.Info("autopilot pipeline started")
	var failures uint64
	for {
		frame, err := a.source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, vision.ErrCameraClosed) {
				return err
			}
			failures++
			if failures%50 == 1 {
				log.Warn("frame source error", "error", err, "failures", failures)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(a.cfg.ErrorBackoff):
			}
			continue
		}
		a.Process(frame)
		frame.Close()
	}
}

// SelectTarget starts a session following box, given in upright frame
// coordinates. label picks the distance calibration; unknown labels fall
// back to the default. Sessions cannot start while the emergency stop is
// active.
func (a *Autopilot) SelectTarget(box vision.BoundingBox, label string) (SessionID, error) {
	if !box.Valid() {
		return "", ErrInvalidBox
	}
	if a.coord.Mode() != safety.Autonomous {
		return "", ErrManualMode
	}
	if a.coord.Stopped() {
		return "", fmt.Errorf("autopilot: select target: %w", safety.ErrEmergencyStop)
	}

	id := SessionID(uuid.NewString())
	a.mu.Lock()
	prev := a.session
	a.session = id
	a.label = label
	a.pending = &request{kind: requestStart, session: id, box: box, label: label}
	a.mu.Unlock()

	log.Info("session requested", "session", id, "label", label, "replaces", prev,
		"x", box.X, "y", box.Y, "w", box.Width, "h", box.Height)
	return id, nil
}

// CancelSession ends the session id.
func (a *Autopilot) CancelSession(id SessionID) error {
	a.mu.Lock()
	if id == "" || id != a.session {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	a.session = ""
	a.label = ""
	a.pending = &request{kind: requestCancel, session: id}
	a.mu.Unlock()

	log.Info("session cancelled", "session", id)
	return nil
}

// Session returns the current session, empty if none.
func (a *Autopilot) Session() SessionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// SetMode switches mode. Any session is cancelled and queued commands are
// dropped.
func (a *Autopilot) SetMode(m safety.Mode) {
	a.coord.SetMode(m)

	a.mu.Lock()
	id := a.session
	if id != "" {
		a.session = ""
		a.label = ""
		a.pending = &request{kind: requestCancel, session: id}
	}
	a.manualTick = 0
	a.mu.Unlock()

	if id != "" {
		log.Info("session cancelled by mode change", "session", id, "mode", m)
	}
}

// Mode returns the current mode.
func (a *Autopilot) Mode() safety.Mode {
	return a.coord.Mode()
}

// Drive sends a manual wheel command. Only accepted in Manual mode. The
// command is remapped when the chassis is upside down so the controls keep
// their meaning.
func (a *Autopilot) Drive(left, right float64) error {
	if a.coord.Mode() != safety.Manual {
		return ErrNotManual
	}
	cmd := orientation.Apply(a.orient.Orientation(), robot.MotorCommand{Left: left, Right: right})

	a.mu.Lock()
	a.manualTick++
	tick := a.manualTick
	a.mu.Unlock()

	return a.coord.Submit(safety.Command{Tick: tick, Producer: safety.ProducerManual, Motor: cmd})
}

// EmergencyStop stops the motors immediately. The pipeline ends any session
// on its next frame, so clearing the stop never resumes following.
func (a *Autopilot) EmergencyStop(by, reason string) {
	a.coord.EmergencyStop(by, reason)
}

// ClearEmergencyStop releases the stop; it fails while a fault is active.
func (a *Autopilot) ClearEmergencyStop(by string) error {
	return a.coord.ClearEmergencyStop(by)
}

// EmergencyHistory returns the emergency stop events, oldest first.
func (a *Autopilot) EmergencyHistory() []safety.StopEvent {
	return a.coord.History()
}

// ResetOrientation is the manual intervention after the orientation-unknown
// fault. The emergency stop still has to be cleared afterwards.
func (a *Autopilot) ResetOrientation() {
	a.orient.Reset()
	a.coord.ClearOrientationFault()
}

// Labels returns the labels with their own distance calibration, sorted.
func (a *Autopilot) Labels() []string {
	return a.calibrations.Labels()
}

// Tuning returns the follow gains.
func (a *Autopilot) Tuning() Tuning {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tuning
}

// SetTuning replaces the follow gains; the pipeline applies them on its next
// frame.
func (a *Autopilot) SetTuning(t Tuning) error {
	if err := validGains(t.Distance); err != nil {
		return fmt.Errorf("%w: distance: %v", ErrInvalidTuning, err)
	}
	if err := validGains(t.Steering); err != nil {
		return fmt.Errorf("%w: steering: %v", ErrInvalidTuning, err)
	}
	if !(t.TargetDistance > a.cfg.Follow.SafeMinDistance) {
		return fmt.Errorf("%w: target distance %.2f must exceed %.2f",
			ErrInvalidTuning, t.TargetDistance, a.cfg.Follow.SafeMinDistance)
	}

	a.mu.Lock()
	a.tuning = t
	a.tuningDirty = true
	a.mu.Unlock()

	log.Info("follow tuning updated",
		"distance_kp", t.Distance.Kp, "steering_kp", t.Steering.Kp, "target_distance", t.TargetDistance)
	return nil
}

func validGains(g follow.Gains) error {
	for _, v := range []float64{g.Kp, g.Ki, g.Kd, g.IntegralLimit, g.OutputLimit, g.DeadZone} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("gains must be finite and non-negative")
		}
	}
	return nil
}

// Telemetry returns a snapshot. Safe to call from any goroutine.
func (a *Autopilot) Telemetry() Telemetry {
	a.mu.Lock()
	t := a.telemetry
	a.mu.Unlock()

	t.Safety = a.coord.State()
	t.Mode = t.Safety.Mode
	t.BatteryVoltage = t.Safety.BatteryVoltage
	if t.Track.Target != nil {
		target := *t.Track.Target
		t.Track.Target = &target
	}
	return t
}
