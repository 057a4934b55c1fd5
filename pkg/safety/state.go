// Package safety owns the motor authority: the emergency stop, the command
// queue and its consumer, and the battery, fault and watchdog polling that
// gate everything sent to the motor driver.
//
// Cross-goroutine communication is state, never control flow. Producers
// submit commands and read State; they never see raw driver errors.
package safety

import (
	"fmt"
	"strings"
)

// Mode is the operating mode.
type Mode int

const (
	Manual Mode = iota
	Autonomous
)

func (m Mode) String() string {
	if m == Autonomous {
		return "autonomous"
	}
	return "manual"
}

// MarshalText encodes the mode name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	mode, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode parses "manual" or "autonomous".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual":
		return Manual, nil
	case "autonomous", "auto":
		return Autonomous, nil
	}
	return Manual, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Category is the user-facing error taxonomy.
type Category int

const (
	CategoryTracker Category = iota
	CategoryCalibration
	CategorySafety
	CategoryOrientation
)

func (c Category) String() string {
	switch c {
	case CategoryTracker:
		return "tracker-error"
	case CategoryCalibration:
		return "calibration-missing"
	case CategorySafety:
		return "safety-fault"
	case CategoryOrientation:
		return "orientation-unknown"
	default:
		return "unknown"
	}
}

// MarshalText encodes the category name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Fault is a categorised condition with a human readable reason. It is all
// telemetry ever shows of an internal error.
type Fault struct {
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
}

func (f Fault) Error() string {
	return f.Category.String() + ": " + f.Reason
}

// State is a snapshot of the safety flags.
type State struct {
	EmergencyStop      bool    `json:"emergencyStop"`
	StopReason         string  `json:"stopReason,omitempty"`
	BatteryLow         bool    `json:"batteryLow"`
	BatteryWarning     bool    `json:"batteryWarning"`
	BatteryVoltage     float64 `json:"batteryVoltage"`
	CommFault          bool    `json:"commFault"`
	DriverFaults       string  `json:"driverFaults"`
	OrientationUnknown bool    `json:"orientationUnknown"`
	TooClose           bool    `json:"tooClose"`
	Mode               Mode    `json:"mode"`
	Queued             int     `json:"queued"`       // Commands waiting for the consumer
	Dropped            uint64  `json:"queueDropped"` // Commands lost to queue overflow
	Faults             []Fault `json:"faults"`
}

// FaultActive reports whether any condition blocks clearing the emergency
// stop.
func (s State) FaultActive() bool {
	return len(s.Faults) > 0
}
