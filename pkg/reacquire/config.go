package reacquire

import (
	"math"
	"time"
)

// Config holds the search timing and motion tuning.
type Config struct {
	// Loss detection
	ConfidenceFloor float64       // A frame below this is weak
	LossDelay       time.Duration // Weak for this long → lost
	MaxSizeChange   float64       // Relative area jump that means lost immediately
	AcquireTimeout  time.Duration // No good frame after selection → search

	// Stage timeouts
	LocalTimeout    time.Duration // Since loss
	ExpandedTimeout time.Duration // Since loss
	ReturnTimeout   time.Duration // Since Returning began
	WaitTimeout     time.Duration // Since Waiting began

	// Local scan
	CameraFOV   float64       // Horizontal field of view (rad), for the loss bearing
	LocalSweep  float64       // ± sweep around the loss bearing (rad)
	LocalStep   float64       // Step size (rad)
	StepDwell   time.Duration // Pause after each step so the tracker can look
	SearchSpeed float64       // Max rotate command while scanning (0-1)

	// Expanded scan
	ExpandedSpeed float64 // Rotate command for the full-turn scan

	// Return trip
	DriveSpeed       float64 // Forward command while driving back
	ArrivalRadius    float64 // Metres from the loss pose that count as arrived
	HeadingTolerance float64 // Alignment tolerance (rad)
	TurnGain         float64 // Rotate command per radian of heading error
	MinTurn          float64 // Smallest rotate command that still moves the chassis

	// Waiting
	ReinitCooldown time.Duration // Minimum gap between motion re-inits
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		ConfidenceFloor: 0.3,
		LossDelay:       500 * time.Millisecond,
		MaxSizeChange:   0.5,
		AcquireTimeout:  2 * time.Second,

		LocalTimeout:    5 * time.Second,
		ExpandedTimeout: 15 * time.Second,
		ReturnTimeout:   60 * time.Second,
		WaitTimeout:     5 * time.Minute,

		CameraFOV:   62.2 * math.Pi / 180,
		LocalSweep:  30 * math.Pi / 180,
		LocalStep:   10 * math.Pi / 180,
		StepDwell:   300 * time.Millisecond,
		SearchSpeed: 0.4,

		ExpandedSpeed: 0.3,

		DriveSpeed:       0.35,
		ArrivalRadius:    0.5,
		HeadingTolerance: 6 * math.Pi / 180,
		TurnGain:         0.8,
		MinTurn:          0.15,

		ReinitCooldown: time.Second,
	}
}
