package robot

import (
	"errors"
	"sync"
	"time"

	"github.com/teslashibe/go-borg/internal/log"
)

// DefaultFailsafe is the board-level refresh window: if no command arrives
// within it, the board zeroes both outputs.
const DefaultFailsafe = 250 * time.Millisecond

// ErrDriverOffline is returned by drivers that cannot reach the board.
var ErrDriverOffline = errors.New("robot: motor driver offline")

// PowerScale converts battery-in / motors-out voltages into the maximum power
// fraction that may be sent to the board.
func PowerScale(voltageIn, voltageOut float64) float64 {
	if voltageIn <= 0 || voltageOut >= voltageIn {
		return 1.0
	}
	return voltageOut / voltageIn
}

// SimDriver is an in-memory Driver used in test mode and in tests.
// It records every command and emulates the hardware failsafe.
type SimDriver struct {
	mu sync.Mutex

	maxPower float64
	failsafe time.Duration
	now      func() time.Time

	last     MotorCommand
	lastAt   time.Time
	history  []MotorCommand
	voltage  float64
	faults   FaultFlags
	setErr   error
	pattern  Pattern
	patterns []Pattern

	// Diagnostics
	calls    uint64
	logEvery uint64
}

// NewSimDriver creates a simulated board with a full battery.
func NewSimDriver(maxPower float64) *SimDriver {
	if maxPower <= 0 || maxPower > 1 {
		maxPower = 1
	}
	return &SimDriver{
		maxPower: maxPower,
		failsafe: DefaultFailsafe,
		now:      time.Now,
		voltage:  12.0,
		logEvery: 30,
	}
}

// SetWheelSpeeds records the scaled command.
func (d *SimDriver) SetWheelSpeeds(left, right float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.setErr != nil {
		return d.setErr
	}

	cmd := MotorCommand{Left: left, Right: right}.Clamp().Scale(d.maxPower)
	d.last = cmd
	d.lastAt = d.now()
	d.history = append(d.history, cmd)
	if len(d.history) > 1024 {
		d.history = d.history[len(d.history)-1024:]
	}

	d.calls++
	if d.logEvery > 0 && d.calls%d.logEvery == 0 {
		log.Debug("sim motors", "left_pct", cmd.Left*100, "right_pct", cmd.Right*100)
	}
	return nil
}

// BatteryVoltage returns the simulated supply voltage.
func (d *SimDriver) BatteryVoltage() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.voltage, nil
}

// FaultFlags returns the simulated fault bits.
func (d *SimDriver) FaultFlags() (FaultFlags, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.faults, nil
}

// SetPattern records the requested status pattern.
func (d *SimDriver) SetPattern(p Pattern) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pattern = p
	d.patterns = append(d.patterns, p)
	return nil
}

// Output returns what the wheels are actually doing: the last command, or zero
// if the failsafe window elapsed without a refresh.
func (d *SimDriver) Output() MotorCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastAt.IsZero() || d.now().Sub(d.lastAt) > d.failsafe {
		return Stop
	}
	return d.last
}

// Last returns the last command received, regardless of the failsafe.
func (d *SimDriver) Last() MotorCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// LastAt returns when the last command was received.
func (d *SimDriver) LastAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastAt
}

// History returns a copy of the recorded commands.
func (d *SimDriver) History() []MotorCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]MotorCommand, len(d.history))
	copy(out, d.history)
	return out
}

// CallCount returns how many commands were accepted.
func (d *SimDriver) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.calls)
}

// Pattern returns the last status pattern requested.
func (d *SimDriver) Pattern() Pattern {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pattern
}

// SetBatteryVoltage changes the simulated voltage.
func (d *SimDriver) SetBatteryVoltage(v float64) {
	d.mu.Lock()
	d.voltage = v
	d.mu.Unlock()
}

// SetFaults changes the simulated fault bits.
func (d *SimDriver) SetFaults(f FaultFlags) {
	d.mu.Lock()
	d.faults = f
	d.mu.Unlock()
}

// FailWrites makes SetWheelSpeeds return err (nil restores normal operation).
func (d *SimDriver) FailWrites(err error) {
	d.mu.Lock()
	d.setErr = err
	d.mu.Unlock()
}

// SetClock overrides the time source used by the failsafe emulation.
func (d *SimDriver) SetClock(now func() time.Time) {
	d.mu.Lock()
	d.now = now
	d.mu.Unlock()
}
