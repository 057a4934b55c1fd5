// Package robot provides the chassis-facing interfaces and implementations for
// the two-wheel differential-drive base.
//
// Like the rest of go-borg it follows the Interface Segregation Principle:
// small, focused interfaces composed where needed. Consumers should depend only
// on the interfaces they actually use.
package robot

// MotorDriver sets wheel speeds. Both values are in [-1, 1].
// Implementations enforce a hardware failsafe: motors stop if SetWheelSpeeds is
// not called again within a fixed interval.
type MotorDriver interface {
	SetWheelSpeeds(left, right float64) error
}

// BatteryMonitor reports the supply voltage of the motor board.
type BatteryMonitor interface {
	BatteryVoltage() (float64, error)
}

// FaultReporter reports motor driver fault bits.
type FaultReporter interface {
	FaultFlags() (FaultFlags, error)
}

// Driver is the composite interface of the motor/battery controller board.
type Driver interface {
	MotorDriver
	BatteryMonitor
	FaultReporter
}

// StatusIndicator drives the status LEDs.
type StatusIndicator interface {
	SetPattern(p Pattern) error
}

// FaultFlags is the bit set returned by the motor driver.
type FaultFlags uint8

const (
	// FaultLeftDrive is set when the left drive channel reports a fault.
	FaultLeftDrive FaultFlags = 1 << iota
	// FaultRightDrive is set when the right drive channel reports a fault.
	FaultRightDrive
	// FaultComms is set when the board lost communication with the host.
	FaultComms
)

// Any reports whether any fault bit is set.
func (f FaultFlags) Any() bool {
	return f != 0
}

// String lists the set bits for logs and telemetry.
func (f FaultFlags) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if f&FaultLeftDrive != 0 {
		add("left-drive")
	}
	if f&FaultRightDrive != 0 {
		add("right-drive")
	}
	if f&FaultComms != 0 {
		add("comms")
	}
	return s
}

// Pattern is a status LED pattern.
type Pattern int

const (
	PatternIdle Pattern = iota
	PatternTracking
	PatternSearching
	PatternBatteryLow
	PatternEmergencyStop
	// PatternOrientationUnknown is the flashing pattern for the fatal
	// orientation event. It stays until an operator resets the fault.
	PatternOrientationUnknown
)

func (p Pattern) String() string {
	switch p {
	case PatternIdle:
		return "idle"
	case PatternTracking:
		return "tracking"
	case PatternSearching:
		return "searching"
	case PatternBatteryLow:
		return "battery-low"
	case PatternEmergencyStop:
		return "emergency-stop"
	case PatternOrientationUnknown:
		return "orientation-unknown"
	default:
		return "unknown"
	}
}

// Ensure the bundled drivers implement Driver
var (
	_ Driver = (*SimDriver)(nil)
	_ Driver = (*HTTPDriver)(nil)
)
