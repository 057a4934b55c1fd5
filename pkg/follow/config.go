package follow

import "time"

// Config holds the follow controller tuning.
type Config struct {
	// Distances (metres)
	TargetDistance        float64 // Distance the distance loop holds
	SafeMinDistance       float64 // Closer than this → reverse
	EmergencyStopDistance float64 // Closer than this → stop and report TooClose
	ReverseSpeed          float64 // Command magnitude used when backing off

	// Loops
	Distance Gains
	Steering Gains

	// Output limits (command units, 0-1)
	MaxSpeed float64 // |base| limit before mixing
	MaxSteer float64 // |steer| limit before mixing

	// Target velocity feed-forward
	UseVelocity       bool          // Add the target's estimated speed to the base
	PixelToMeter      float64       // Calibrated bbox-centre pixels → metres
	VelocityWindow    time.Duration // Regression window
	VelocitySmoothing float64       // EMA weight of each new estimate
	MaxWheelSpeed     float64       // m/s at command 1.0, converts m/s to command units
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		TargetDistance:        1.5,
		SafeMinDistance:       0.5,
		EmergencyStopDistance: 0.3,
		ReverseSpeed:          0.15,

		Distance: Gains{
			Kp:            0.45,
			Ki:            0.05,
			Kd:            0.08,
			IntegralLimit: 2.0,
			OutputLimit:   0.8,
			DeadZone:      0.05,
		},
		Steering: Gains{
			Kp:            0.6,
			Ki:            0.02,
			Kd:            0.05,
			IntegralLimit: 1.0,
			OutputLimit:   0.6,
			DeadZone:      0.03,
		},

		MaxSpeed: 0.8,
		MaxSteer: 0.6,

		UseVelocity:       true,
		PixelToMeter:      0.004,
		VelocityWindow:    600 * time.Millisecond,
		VelocitySmoothing: 0.4,
		MaxWheelSpeed:     1.2,
	}
}

// IndoorConfig is gentler: smooth floors, people and furniture nearby.
func IndoorConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetDistance = 1.2
	cfg.MaxSpeed = 0.5
	cfg.MaxSteer = 0.45
	cfg.Distance.Kp = 0.35
	cfg.Steering.Kp = 0.5
	return cfg
}

// OutdoorConfig pushes harder: rough terrain needs more integral action to
// overcome drag, and the target moves faster.
func OutdoorConfig() Config {
	cfg := DefaultConfig()
	cfg.TargetDistance = 2.0
	cfg.MaxSpeed = 1.0
	cfg.MaxSteer = 0.7
	cfg.Distance.Kp = 0.6
	cfg.Distance.Ki = 0.12
	cfg.Distance.IntegralLimit = 3.0
	cfg.Steering.Kp = 0.75
	cfg.Steering.Ki = 0.05
	return cfg
}
