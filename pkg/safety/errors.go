package safety

import "errors"

var (
	// ErrFaultActive is returned when clearing the emergency stop while a
	// fault condition is still present.
	ErrFaultActive = errors.New("safety: fault active")

	// ErrEmergencyStop is returned for commands submitted while stopped.
	ErrEmergencyStop = errors.New("safety: emergency stop active")

	// ErrNotAuthorized is returned when a producer without motor authority
	// submits a command or asks for authority it cannot have in this mode.
	ErrNotAuthorized = errors.New("safety: producer not authorized")

	// ErrDuplicateTick is returned for a second command on the same tick.
	ErrDuplicateTick = errors.New("safety: command already submitted for tick")

	// ErrUnknownMode is returned by ParseMode.
	ErrUnknownMode = errors.New("safety: unknown mode")
)
