package orientation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Alarm receives the fatal orientation event. The safety coordinator
// implements it.
type Alarm interface {
	OrientationUnknown(reason string)
}

// Config holds the inversion controller tuning.
type Config struct {
	Margin          float64       // Classifier relative brightness margin
	Attempts        int           // Indeterminate views before the fatal event
	RotationSpeed   float64       // Rotate command while turning to re-classify
	RotationTimeout time.Duration // Give up on a full turn after this long
	RecheckInterval time.Duration // Re-classify this often once known
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Margin:          0.08,
		Attempts:        3,
		RotationSpeed:   0.35,
		RotationTimeout: 6 * time.Second,
		RecheckInterval: time.Second,
	}
}

// Step is the controller's output for one frame.
type Step struct {
	Orientation Orientation
	Override    bool               // Command replaces whatever the pipeline wanted
	Command     robot.MotorCommand // Valid when Override is set
	Fatal       bool               // Orientation-unknown event raised; needs Reset
}

// Controller classifies orientation, turning the chassis a full circle to
// get a new view when a frame is ambiguous. After Attempts ambiguous views
// in a row it raises the orientation-unknown event and holds the motors at
// zero until Reset. A view only counts once: a turn the chassis never made
// (the rotate command was refused) is retried without counting.
type Controller struct {
	cfg        Config
	classifier Classifier
	alarm      Alarm
	indicator  robot.StatusIndicator

	mu          sync.Mutex
	current     Orientation
	attempts    int
	fresh       bool // the current view has not been classified yet
	fatal       bool
	rotating    bool
	rotateStart time.Time
	lastHeading float64
	turned      float64
	nextCheck   time.Time
}

// NewController creates a controller. alarm and indicator may be nil.
func NewController(cfg Config, classifier Classifier, alarm Alarm, indicator robot.StatusIndicator) *Controller {
	if classifier == nil {
		classifier = NewHalvesClassifier(cfg.Margin)
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Controller{cfg: cfg, classifier: classifier, alarm: alarm, indicator: indicator, fresh: true}
}

// Orientation returns the last known orientation.
func (c *Controller) Orientation() Orientation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Fatal reports whether the orientation-unknown event is latched.
func (c *Controller) Fatal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// Reset clears the fatal latch and forgets the orientation. It is the
// manual intervention after the orientation-unknown event.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = Unknown
	c.attempts = 0
	c.fresh = true
	c.fatal = false
	c.rotating = false
	c.nextCheck = time.Time{}
	log.Info("orientation reset")
}

// Step processes one frame taken at now with the chassis at pose.
func (c *Controller) Step(now time.Time, frame vision.Frame, pose odometry.Pose) Step {
	c.mu.Lock()
	st, raised := c.step(now, frame, pose)
	c.mu.Unlock()

	// Collaborators are notified without holding mu.
	if raised != "" {
		c.notify(raised)
	}
	return st
}

// step returns the output and, when the fatal event was raised on this
// frame, its reason.
func (c *Controller) step(now time.Time, frame vision.Frame, pose odometry.Pose) (Step, string) {
	if c.fatal {
		return c.stop(), ""
	}

	if c.rotating {
		c.turned += math.Abs(odometry.AngleDiff(pose.Heading, c.lastHeading))
		c.lastHeading = pose.Heading
		if c.turned < 2*math.Pi && now.Sub(c.rotateStart) < c.cfg.RotationTimeout {
			return c.rotate(), ""
		}
		c.rotating = false
		c.nextCheck = time.Time{}
		if c.turned > 0 {
			c.fresh = true
		} else {
			log.Debug("orientation turn did not run, retrying", "attempts", c.attempts)
		}
	}

	if now.Before(c.nextCheck) {
		return Step{Orientation: c.current}, ""
	}

	o := c.classifier.Classify(frame)
	if o == Normal || o == Inverted {
		if c.current != Unknown && c.current != o {
			log.Warn("chassis orientation changed", "from", c.current, "to", o)
		}
		c.current = o
		c.attempts = 0
		c.fresh = true
		c.nextCheck = now.Add(c.cfg.RecheckInterval)
		return Step{Orientation: o}, ""
	}

	if c.current != Unknown {
		// Already known: an ambiguous periodic check keeps the last answer.
		c.nextCheck = now.Add(c.cfg.RecheckInterval)
		return Step{Orientation: c.current}, ""
	}

	counted := c.fresh
	if counted {
		c.attempts++
		c.fresh = false
	}
	if c.attempts >= c.cfg.Attempts {
		reason := fmt.Sprintf("orientation indeterminate after %d attempts", c.attempts)
		c.fatal = true
		c.rotating = false
		log.Error("orientation unknown", "reason", reason)
		return c.stop(), reason
	}

	if counted {
		log.Warn("orientation indeterminate, rotating to re-classify", "attempt", c.attempts)
	}
	c.rotating = true
	c.rotateStart = now
	c.lastHeading = pose.Heading
	c.turned = 0
	return c.rotate(), ""
}

func (c *Controller) rotate() Step {
	return Step{Orientation: c.current, Override: true, Command: robot.Rotate(c.cfg.RotationSpeed)}
}

func (c *Controller) stop() Step {
	return Step{Orientation: c.current, Override: true, Command: robot.Stop, Fatal: true}
}

// notify requests the flashing pattern and raises the safety event.
func (c *Controller) notify(reason string) {
	if c.indicator != nil {
		if err := c.indicator.SetPattern(robot.PatternOrientationUnknown); err != nil {
			log.Warn("status pattern failed", "error", err)
		}
	}
	if c.alarm != nil {
		c.alarm.OrientationUnknown(reason)
	}
}
