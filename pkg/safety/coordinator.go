package safety

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/debug"
	"github.com/teslashibe/go-borg/pkg/robot"
)

// Coordinator is the single path to the motor driver. Producers submit
// commands under an authority granted per mode; a consumer goroutine drains
// the queue and refreshes the driver at least every PopTimeout, sending zero
// directly whenever the emergency stop is set. A poller applies the battery,
// fault and watchdog policy.
//
// No method holds more than one lock at a time, and nothing blocks while
// holding one.
type Coordinator struct {
	cfg       Config
	driver    robot.MotorDriver
	indicator robot.StatusIndicator
	estop     *EmergencyStop
	queue     *CommandQueue
	monitor   *Monitor
	now       func() time.Time

	mu          sync.Mutex
	mode        Mode
	authority   Producer
	lastTick    uint64
	ticked      bool
	reading     Reading
	orientation string // fatal orientation reason, empty when clear
	tooClose    bool
	lastWarn    time.Time

	// Delivery diagnostics, guarded by mu.
	delivered     robot.MotorCommand
	deliveredAt   time.Time
	deliveries    uint64
	errorCount    uint64
	lastErrorTime time.Time

	// Consumer-owned.
	held   Command
	heldAt time.Time
	expire atomic.Bool
}

// NewCoordinator creates a coordinator in Manual mode. indicator may be nil.
func NewCoordinator(cfg Config, driver robot.Driver, indicator robot.StatusIndicator) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		driver:    driver,
		indicator: indicator,
		estop:     NewEmergencyStop(cfg.HistoryLimit),
		queue:     NewCommandQueue(cfg.QueueCapacity),
		monitor:   NewMonitor(cfg, driver, driver),
		now:       time.Now,
		mode:      Manual,
		authority: ProducerManual,
	}
	c.estop.OnChange(c.onStopChange)
	return c
}

// Run drives the consumer and the poller until ctx is done, then sends a
// final zero command.
func (c *Coordinator) Run(ctx context.Context) {
	log.Info("safety coordinator started",
		"poll", c.cfg.PollInterval, "pop_timeout", c.cfg.PopTimeout, "queue", c.cfg.QueueCapacity)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.consume(ctx)
	}()
	go func() {
		defer wg.Done()
		c.poll(ctx)
	}()
	wg.Wait()
	log.Info("safety coordinator stopped")
}

// consume is the motor-command consumer.
func (c *Coordinator) consume(ctx context.Context) {
	timer := time.NewTimer(c.cfg.PopTimeout)
	defer timer.Stop()

	for {
		c.step()
		timer.Reset(c.cfg.PopTimeout)
		select {
		case <-ctx.Done():
			c.deliver(robot.Stop)
			return
		case <-c.estop.Wake():
		case <-c.queue.Ready():
		case <-timer.C:
		}
	}
}

// step delivers exactly one command: zero while stopped, else the next queued
// command, else a refresh of the last one until it expires.
func (c *Coordinator) step() {
	if c.estop.Active() {
		c.queue.Clear()
		c.held = Command{}
		c.deliver(robot.Stop)
		return
	}

	authority := c.Authority()
	if cmd, ok := c.queue.TryPop(); ok && cmd.Producer == authority {
		c.held = cmd
		c.heldAt = c.now()
		c.deliver(cmd.Motor)
		return
	}

	if c.expire.Swap(false) {
		c.held = Command{}
	}
	if c.held.Producer != ProducerNone && c.held.Producer == authority &&
		c.now().Sub(c.heldAt) <= c.cfg.CommandTTL {
		c.deliver(c.held.Motor)
		return
	}
	c.held = Command{}
	c.deliver(robot.Stop)
}

// deliver forwards cmd to the driver. Errors are counted and logged at most
// once per ErrorLogInterval.
func (c *Coordinator) deliver(cmd robot.MotorCommand) {
	cmd = cmd.Clamp()
	err := c.driver.SetWheelSpeeds(cmd.Left, cmd.Right)
	now := c.now()

	c.mu.Lock()
	c.deliveries++
	n := c.deliveries
	logErr := false
	if err == nil {
		c.delivered = cmd
		c.deliveredAt = now
	} else {
		c.errorCount++
		if c.lastErrorTime.IsZero() || now.Sub(c.lastErrorTime) > c.cfg.ErrorLogInterval {
			c.lastErrorTime = now
			logErr = true
		}
	}
	errs := c.errorCount
	c.mu.Unlock()

	if logErr {
		log.Warn("motor command failed", "error", err, "total_errors", errs)
	}
	if n%600 == 0 {
		debug.Log("motor consumer heartbeat", "deliveries", n, "errors", errs, "cmd", cmd)
	}
}

func (c *Coordinator) poll(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Poll(c.now())
		}
	}
}

// Poll runs one monitor cycle at now and applies the mode policy: in
// Autonomous mode any safety fault triggers the emergency stop, in Manual
// mode it is only logged.
func (c *Coordinator) Poll(now time.Time) Reading {
	r := c.monitor.Check(now)

	c.mu.Lock()
	mode := c.mode
	if mode == Autonomous && r.StaleHeartbeat && !r.CommFault {
		r.CommFault = true
		r.CommReason = "vision pipeline heartbeat lost"
	}
	prev := c.reading
	c.reading = r
	faults := r.Faults()
	warnDue := (len(faults) > 0 || r.BatteryWarning) && now.Sub(c.lastWarn) >= c.cfg.ErrorLogInterval
	if warnDue {
		c.lastWarn = now
	}
	c.mu.Unlock()

	if r.BatteryWarning && !prev.BatteryWarning && !r.BatteryLow {
		log.Warn("battery voltage low", "volts", r.Voltage, "warn_below", c.cfg.BatteryWarn)
	}
	if r.BatteryLow && !prev.BatteryLow {
		c.setPattern(robot.PatternBatteryLow)
	}

	if len(faults) > 0 {
		if mode == Autonomous {
			c.EmergencyStop("monitor", faults[0].Reason)
		} else if warnDue {
			log.Warn("safety fault in manual mode", "fault", faults[0].Reason, "count", len(faults))
		}
	}

	if mode == Manual && r.StaleManual {
		c.monitor.ClearManual()
		c.queue.Clear()
		c.expire.Store(true)
		log.Warn("manual drive signal stale, stopping motors")
	}
	return r
}

// Submit queues a command. It fails while stopped, when the producer does
// not hold authority, or when a command was already accepted for the tick.
func (c *Coordinator) Submit(cmd Command) error {
	if c.estop.Active() {
		return ErrEmergencyStop
	}

	c.mu.Lock()
	if cmd.Producer == ProducerNone || cmd.Producer != c.authority {
		holder := c.authority
		c.mu.Unlock()
		return fmt.Errorf("%w: %s (authority: %s)", ErrNotAuthorized, cmd.Producer, holder)
	}
	if c.ticked && cmd.Tick <= c.lastTick {
		last := c.lastTick
		c.mu.Unlock()
		return fmt.Errorf("%w: tick %d (last %d)", ErrDuplicateTick, cmd.Tick, last)
	}
	c.ticked = true
	c.lastTick = cmd.Tick
	c.mu.Unlock()

	if cmd.At.IsZero() {
		cmd.At = c.now()
	}
	cmd.Motor = cmd.Motor.Clamp()
	if c.queue.Push(cmd) {
		log.Debug("command queue full, dropped oldest", "producer", cmd.Producer, "tick", cmd.Tick)
	}
	if cmd.Producer == ProducerManual {
		c.monitor.BeatManual(cmd.At)
	}
	return nil
}

// Grant hands motor authority to p and drops commands queued by the previous
// holder. Manual mode only admits the manual producer and Autonomous mode
// never does.
func (c *Coordinator) Grant(p Producer) error {
	c.mu.Lock()
	if (c.mode == Manual) != (p == ProducerManual) && p != ProducerNone {
		mode := c.mode
		c.mu.Unlock()
		return fmt.Errorf("%w: %s in %s mode", ErrNotAuthorized, p, mode)
	}
	if c.authority == p {
		c.mu.Unlock()
		return nil
	}
	prev := c.authority
	c.authority = p
	c.mu.Unlock()

	c.queue.Clear()
	log.Debug("motor authority", "from", prev, "to", p)
	return nil
}

// Authority returns the producer currently allowed to drive.
func (c *Coordinator) Authority() Producer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authority
}

// SetMode switches mode, revoking authority and clearing queued commands.
func (c *Coordinator) SetMode(m Mode) {
	c.mu.Lock()
	prev := c.mode
	c.mode = m
	c.authority = ProducerNone
	if m == Manual {
		c.authority = ProducerManual
	}
	c.ticked = false
	c.lastTick = 0
	c.mu.Unlock()

	c.queue.Clear()
	c.expire.Store(true)
	c.monitor.ClearManual()
	if prev != m {
		log.Info("mode changed", "from", prev, "to", m)
	}
}

// Mode returns the current mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Beat records pipeline liveness for the watchdog.
func (c *Coordinator) Beat(now time.Time) {
	c.monitor.Beat(now)
}

// EmergencyStop stops the motors. Any caller may trigger it at any time.
func (c *Coordinator) EmergencyStop(by, reason string) {
	c.estop.Trigger(by, reason)
}

// ClearEmergencyStop releases the stop when no fault is active. Clearing an
// inactive stop is a no-op.
func (c *Coordinator) ClearEmergencyStop(by string) error {
	st := c.State()
	if st.FaultActive() {
		return fmt.Errorf("%w: %s", ErrFaultActive, st.Faults[0].Reason)
	}
	c.estop.Reset(by, "cleared")
	return nil
}

// Stopped reports whether the emergency stop is set.
func (c *Coordinator) Stopped() bool {
	return c.estop.Active()
}

// History returns the emergency stop events, oldest first.
func (c *Coordinator) History() []StopEvent {
	return c.estop.History()
}

// OrientationUnknown latches the fatal orientation fault and stops the
// motors regardless of mode.
func (c *Coordinator) OrientationUnknown(reason string) {
	c.mu.Lock()
	c.orientation = reason
	c.mu.Unlock()
	c.estop.Trigger("orientation", reason)
}

// ClearOrientationFault removes the orientation fault after a manual reset.
// The emergency stop itself still has to be cleared.
func (c *Coordinator) ClearOrientationFault() {
	c.mu.Lock()
	was := c.orientation != ""
	c.orientation = ""
	c.mu.Unlock()
	if was {
		log.Info("orientation fault cleared")
	}
}

// SetTooClose records the follow controller's too-close signal.
func (c *Coordinator) SetTooClose(v bool) {
	c.mu.Lock()
	changed := c.tooClose != v
	c.tooClose = v
	c.mu.Unlock()
	if changed && v {
		log.Warn("target too close, holding position")
	}
}

// State returns a snapshot of the safety flags.
func (c *Coordinator) State() State {
	c.mu.Lock()
	r := c.reading
	s := State{
		BatteryLow:         r.BatteryLow,
		BatteryWarning:     r.BatteryWarning,
		BatteryVoltage:     r.Voltage,
		CommFault:          r.CommFault,
		DriverFaults:       r.DriverFaults.String(),
		OrientationUnknown: c.orientation != "",
		TooClose:           c.tooClose,
		Mode:               c.mode,
	}
	orientation := c.orientation
	c.mu.Unlock()

	s.Faults = r.Faults()
	if orientation != "" {
		s.Faults = append(s.Faults, Fault{Category: CategoryOrientation, Reason: orientation})
	}
	if s.Faults == nil {
		s.Faults = []Fault{}
	}

	s.Queued = c.queue.Len()
	s.Dropped = c.queue.Dropped()
	s.EmergencyStop = c.estop.Active()
	if last, ok := c.estop.Last(); ok && s.EmergencyStop && last.Active {
		s.StopReason = last.Reason
	}
	return s
}

// Delivered returns the last command the driver accepted and when.
func (c *Coordinator) Delivered() (robot.MotorCommand, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered, c.deliveredAt
}

// QueueLen returns the number of queued commands.
func (c *Coordinator) QueueLen() int {
	return c.queue.Len()
}

func (c *Coordinator) onStopChange(ev StopEvent) {
	if !ev.Active {
		c.setPattern(robot.PatternIdle)
		return
	}
	c.queue.Clear()

	c.mu.Lock()
	orientation := c.orientation != ""
	c.mu.Unlock()
	if orientation {
		c.setPattern(robot.PatternOrientationUnknown)
	} else {
		c.setPattern(robot.PatternEmergencyStop)
	}
}

func (c *Coordinator) setPattern(p robot.Pattern) {
	if c.indicator == nil {
		return
	}
	if err := c.indicator.SetPattern(p); err != nil {
		log.Warn("status pattern failed", "pattern", p, "error", err)
	}
}
