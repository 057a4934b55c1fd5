package safety

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-borg/pkg/robot"
)

// Reading is one poll of the board and the liveness signals.
type Reading struct {
	Voltage        float64
	BatteryLow     bool
	BatteryWarning bool
	DriverFaults   robot.FaultFlags
	CommFault      bool
	CommReason     string
	StaleHeartbeat bool
	StaleManual    bool
}

// Faults lists the safety faults in the reading.
func (r Reading) Faults() []Fault {
	var out []Fault
	if r.BatteryLow {
		out = append(out, Fault{Category: CategorySafety, Reason: fmt.Sprintf("battery low (%.2fV)", r.Voltage)})
	}
	if r.DriverFaults.Any() {
		out = append(out, Fault{Category: CategorySafety, Reason: "motor driver fault: " + r.DriverFaults.String()})
	}
	if r.CommFault {
		out = append(out, Fault{Category: CategorySafety, Reason: r.CommReason})
	}
	return out
}

// Monitor polls battery and fault signals and tracks the pipeline and manual
// heartbeats. It holds no locks; heartbeats are atomics.
type Monitor struct {
	cfg     Config
	battery robot.BatteryMonitor
	faults  robot.FaultReporter

	heartbeat atomic.Int64 // unix nanos of the last pipeline beat
	manual    atomic.Int64 // unix nanos of the last manual command
}

// NewMonitor creates a monitor over the board sensors.
func NewMonitor(cfg Config, battery robot.BatteryMonitor, faults robot.FaultReporter) *Monitor {
	return &Monitor{cfg: cfg, battery: battery, faults: faults}
}

// Beat records pipeline liveness.
func (m *Monitor) Beat(now time.Time) {
	m.heartbeat.Store(now.UnixNano())
}

// BeatManual records a manual drive command.
func (m *Monitor) BeatManual(now time.Time) {
	m.manual.Store(now.UnixNano())
}

// ClearManual forgets the manual signal.
func (m *Monitor) ClearManual() {
	m.manual.Store(0)
}

// Check reads the board and evaluates the heartbeats at now. A heartbeat that
// was never set is not stale. Whether a stale heartbeat is a fault depends on
// the mode and is decided by the coordinator.
func (m *Monitor) Check(now time.Time) Reading {
	var r Reading

	if m.battery != nil {
		v, err := m.battery.BatteryVoltage()
		if err != nil {
			r.CommFault = true
			r.CommReason = "battery read failed"
		} else {
			r.Voltage = v
			r.BatteryLow = v < m.cfg.BatteryStop
			r.BatteryWarning = v < m.cfg.BatteryWarn
		}
	}

	if m.faults != nil {
		f, err := m.faults.FaultFlags()
		if err != nil {
			r.CommFault = true
			r.CommReason = "fault read failed"
		} else {
			r.DriverFaults = f
		}
	}

	r.StaleHeartbeat = stale(m.heartbeat.Load(), now, m.cfg.Watchdog)
	r.StaleManual = stale(m.manual.Load(), now, m.cfg.Watchdog)
	return r
}

func stale(nanos int64, now time.Time, limit time.Duration) bool {
	if nanos == 0 {
		return false
	}
	return now.Sub(time.Unix(0, nanos)) > limit
}
