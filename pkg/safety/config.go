package safety

import "time"

// Config holds the coordinator timing and thresholds.
type Config struct {
	QueueCapacity    int           // Bounded command queue size
	PopTimeout       time.Duration // Consumer wait before re-checking the stop flag
	CommandTTL       time.Duration // Refresh the last command this long, then send zero
	PollInterval     time.Duration // Battery and fault polling period
	Watchdog         time.Duration // Heartbeat age that counts as a comm fault
	BatteryStop      float64       // Volts; below this is a safety fault
	BatteryWarn      float64       // Volts; below this is logged
	HistoryLimit     int           // Emergency stop events kept
	ErrorLogInterval time.Duration // Minimum spacing of repeated driver error logs
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:    10,
		PopTimeout:       100 * time.Millisecond,
		CommandTTL:       500 * time.Millisecond,
		PollInterval:     100 * time.Millisecond,
		Watchdog:         time.Second,
		BatteryStop:      10.5,
		BatteryWarn:      11.0,
		HistoryLimit:     100,
		ErrorLogInterval: 5 * time.Second,
	}
}
