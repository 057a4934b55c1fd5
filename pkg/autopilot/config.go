package autopilot

import (
	"time"

	"github.com/teslashibe/go-borg/pkg/follow"
	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/orientation"
	"github.com/teslashibe/go-borg/pkg/reacquire"
	"github.com/teslashibe/go-borg/pkg/safety"
	"github.com/teslashibe/go-borg/pkg/tracking"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Config gathers the configuration of every stage of the pipeline.
type Config struct {
	Safety       safety.Config
	Tracking     tracking.Config
	Follow       follow.Config
	Reacquire    reacquire.Config
	Orientation  orientation.Config
	Odometry     odometry.Config
	Motion       vision.MotionConfig
	Calibration  follow.Calibration   // Default calibration
	Calibrations []follow.Calibration // Per-label calibrations
	ErrorBackoff time.Duration        // Wait after a frame source error
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Safety:       safety.DefaultConfig(),
		Tracking:     tracking.DefaultConfig(),
		Follow:       follow.DefaultConfig(),
		Reacquire:    reacquire.DefaultConfig(),
		Orientation:  orientation.DefaultConfig(),
		Odometry:     odometry.DefaultConfig(),
		Motion:       vision.DefaultMotionConfig(),
		Calibration:  follow.DefaultCalibration(),
		ErrorBackoff: 100 * time.Millisecond,
	}
}
