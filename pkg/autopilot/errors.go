package autopilot

import "errors"

var (
	// ErrInvalidBox is returned for a target box without area.
	ErrInvalidBox = errors.New("autopilot: invalid target box")

	// ErrManualMode is returned when a session is requested in Manual mode.
	ErrManualMode = errors.New("autopilot: sessions need autonomous mode")

	// ErrNotManual is returned for drive commands outside Manual mode.
	ErrNotManual = errors.New("autopilot: manual drive needs manual mode")

	// ErrUnknownSession is returned when cancelling a session that is not
	// the current one.
	ErrUnknownSession = errors.New("autopilot: unknown session")

	// ErrInvalidTuning is returned for gains that cannot be applied.
	ErrInvalidTuning = errors.New("autopilot: invalid tuning")
)
