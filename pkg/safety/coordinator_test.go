package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borg/pkg/robot"
)

var forward = robot.MotorCommand{Left: 0.5, Right: 0.5}

// running starts the coordinator and returns a stop func that waits for Run.
func running(t *testing.T, c *Coordinator) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestCoordinator_EmergencyStopZeroesMotors(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)
	c.SetMode(Autonomous)
	require.NoError(t, c.Grant(ProducerFollow))
	stop := running(t, c)
	defer stop()

	// A producer keeps submitting throughout.
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for tick := uint64(1); ; tick++ {
			select {
			case <-quit:
				return
			default:
			}
			_ = c.Submit(Command{Tick: tick, Producer: ProducerFollow, Motor: forward})
			time.Sleep(5 * time.Millisecond)
		}
	}()

	require.Eventually(t, func() bool { return drv.Last() == forward }, time.Second, 5*time.Millisecond)

	c.EmergencyStop("test", "mid-tick")
	require.Eventually(t, func() bool { return drv.Last().IsStop() }, 100*time.Millisecond, 2*time.Millisecond)

	calls := drv.CallCount()
	time.Sleep(200 * time.Millisecond)
	assert.True(t, drv.Last().IsStop(), "queued commands must not leak through")
	assert.Greater(t, drv.CallCount(), calls, "zero keeps being refreshed")
	assert.Equal(t, robot.PatternEmergencyStop, drv.Pattern())
	assert.ErrorIs(t, c.Submit(Command{Tick: 1 << 40, Producer: ProducerFollow, Motor: forward}), ErrEmergencyStop)
}

func TestCoordinator_RefreshesAtLeast4Hz(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)
	stop := running(t, c)
	time.Sleep(time.Second)
	stop()

	assert.GreaterOrEqual(t, drv.CallCount(), 4)
	assert.True(t, drv.Last().IsStop())
}

func TestCoordinator_HeldCommandExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommandTTL = 150 * time.Millisecond
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(cfg, drv, drv)
	stop := running(t, c)
	defer stop()

	require.NoError(t, c.Submit(Command{Tick: 1, Producer: ProducerManual, Motor: forward}))
	require.Eventually(t, func() bool { return drv.Last() == forward }, 200*time.Millisecond, 2*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, forward, drv.Last(), "refreshed within TTL")

	require.Eventually(t, func() bool { return drv.Last().IsStop() }, 300*time.Millisecond, 5*time.Millisecond)
}

func TestCoordinator_ClearEmergencyStopIsIdempotent(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)
	c.Poll(time.Now())

	c.EmergencyStop("test", "button")
	require.NoError(t, c.ClearEmergencyStop("test"))
	before := c.State()
	history := len(c.History())

	require.NoError(t, c.ClearEmergencyStop("test"))
	assert.Equal(t, before, c.State())
	assert.Len(t, c.History(), history)
}

func TestCoordinator_ClearRefusedWhileFaultActive(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)

	drv.SetBatteryVoltage(10.2)
	c.Poll(time.Now())
	assert.False(t, c.Stopped(), "manual mode only warns")
	assert.True(t, c.State().BatteryLow)

	c.EmergencyStop("web", "button")
	err := c.ClearEmergencyStop("web")
	require.ErrorIs(t, err, ErrFaultActive)
	assert.True(t, c.Stopped())

	drv.SetBatteryVoltage(12.1)
	c.Poll(time.Now())
	require.NoError(t, c.ClearEmergencyStop("web"))
	assert.False(t, c.Stopped())
}

func TestCoordinator_ModePolicy(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		voltage  float64
		faults   robot.FaultFlags
		wantStop bool
	}{
		{"manual battery low", Manual, 10.0, 0, false},
		{"manual driver fault", Manual, 12.0, robot.FaultLeftDrive, false},
		{"autonomous battery low", Autonomous, 10.0, 0, true},
		{"autonomous driver fault", Autonomous, 12.0, robot.FaultComms, true},
		{"autonomous healthy", Autonomous, 11.5, 0, false},
		{"autonomous battery warning", Autonomous, 10.8, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := robot.NewSimDriver(1)
			drv.SetBatteryVoltage(tt.voltage)
			drv.SetFaults(tt.faults)
			c := NewCoordinator(DefaultConfig(), drv, drv)
			c.SetMode(tt.mode)

			r := c.Poll(time.Now())
			assert.Equal(t, tt.wantStop, c.Stopped())
			assert.Equal(t, tt.voltage, r.Voltage)
		})
	}
}

func TestCoordinator_HeartbeatWatchdog(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)
	base := time.Now()

	c.Beat(base)
	c.Poll(base.Add(2 * time.Second))
	assert.False(t, c.Stopped(), "stale heartbeat is not a fault in manual mode")

	c.SetMode(Autonomous)
	c.Beat(base)
	c.Poll(base.Add(500 * time.Millisecond))
	assert.False(t, c.Stopped())

	c.Poll(base.Add(1500 * time.Millisecond))
	require.True(t, c.Stopped())
	st := c.State()
	assert.True(t, st.CommFault)
	assert.Contains(t, st.StopReason, "heartbeat")
}

func TestCoordinator_StaleManualSignal(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)
	now := time.Now()

	require.NoError(t, c.Submit(Command{Tick: 1, Producer: ProducerManual, Motor: forward, At: now}))
	assert.Equal(t, 1, c.QueueLen())

	c.Poll(now.Add(2 * time.Second))
	assert.Equal(t, 0, c.QueueLen())
	assert.False(t, c.Stopped(), "stale manual input does not latch the stop")
}

func TestCoordinator_ProducerAuthority(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)

	assert.Equal(t, ProducerManual, c.Authority())
	assert.ErrorIs(t, c.Grant(ProducerFollow), ErrNotAuthorized)
	assert.ErrorIs(t, c.Submit(Command{Tick: 1, Producer: ProducerFollow}), ErrNotAuthorized)

	c.SetMode(Autonomous)
	assert.Equal(t, ProducerNone, c.Authority())
	assert.ErrorIs(t, c.Grant(ProducerManual), ErrNotAuthorized)
	assert.ErrorIs(t, c.Submit(Command{Tick: 1, Producer: ProducerManual}), ErrNotAuthorized)

	require.NoError(t, c.Grant(ProducerFollow))
	require.NoError(t, c.Submit(Command{Tick: 1, Producer: ProducerFollow, Motor: forward}))
	assert.ErrorIs(t, c.Submit(Command{Tick: 1, Producer: ProducerFollow}), ErrDuplicateTick)
	assert.ErrorIs(t, c.Submit(Command{Tick: 1, Producer: ProducerSearch}), ErrNotAuthorized)

	require.NoError(t, c.Grant(ProducerSearch))
	assert.Equal(t, 0, c.QueueLen(), "grant drops the previous holder's commands")
	assert.ErrorIs(t, c.Submit(Command{Tick: 1, Producer: ProducerSearch}), ErrDuplicateTick,
		"one producer per tick across a hand-over")
	require.NoError(t, c.Submit(Command{Tick: 2, Producer: ProducerSearch}))
}

func TestCoordinator_SubmitClampsCommands(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)
	stop := running(t, c)
	defer stop()

	require.NoError(t, c.Submit(Command{Tick: 1, Producer: ProducerManual, Motor: robot.MotorCommand{Left: 3, Right: -7}}))
	require.Eventually(t, func() bool {
		return drv.Last() == robot.MotorCommand{Left: 1, Right: -1}
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinator_OrientationFault(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)

	c.OrientationUnknown("indeterminate after 3 attempts")
	require.True(t, c.Stopped())
	assert.Equal(t, robot.PatternOrientationUnknown, drv.Pattern())

	st := c.State()
	assert.True(t, st.OrientationUnknown)
	require.NotEmpty(t, st.Faults)
	assert.Equal(t, CategoryOrientation, st.Faults[len(st.Faults)-1].Category)
	assert.ErrorIs(t, c.ClearEmergencyStop("web"), ErrFaultActive)

	c.ClearOrientationFault()
	require.NoError(t, c.ClearEmergencyStop("web"))
	assert.Equal(t, robot.PatternIdle, drv.Pattern())
}

func TestCoordinator_SetModeClearsQueue(t *testing.T) {
	drv := robot.NewSimDriver(1)
	c := NewCoordinator(DefaultConfig(), drv, drv)
	require.NoError(t, c.Submit(Command{Tick: 1, Producer: ProducerManual}))
	require.NoError(t, c.Submit(Command{Tick: 2, Producer: ProducerManual}))

	c.SetMode(Autonomous)
	assert.Equal(t, 0, c.QueueLen())
	assert.Equal(t, Autonomous, c.Mode())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Autonomous")
	require.NoError(t, err)
	assert.Equal(t, Autonomous, m)

	m, err = ParseMode("manual")
	require.NoError(t, err)
	assert.Equal(t, Manual, m)

	_, err = ParseMode("cruise")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestFault_Error(t *testing.T) {
	f := Fault{Category: CategorySafety, Reason: "battery low (10.20V)"}
	assert.Equal(t, "safety-fault: battery low (10.20V)", f.Error())
}

func TestCoordinator_StateReportsQueue(t *testing.T) {
	drv := robot.NewSimDriver(1)
	cfg := DefaultConfig()
	cfg.QueueCapacity = 3
	c := NewCoordinator(cfg, drv, drv)

	for tick := uint64(1); tick <= 5; tick++ {
		require.NoError(t, c.Submit(Command{Tick: tick, Producer: ProducerManual, Motor: forward}))
	}
	st := c.State()
	assert.Equal(t, 3, st.Queued)
	assert.Equal(t, uint64(2), st.Dropped, "oldest commands were dropped on overflow")

	c.SetMode(Autonomous)
	st = c.State()
	assert.Equal(t, 0, st.Queued)
	assert.Equal(t, uint64(2), st.Dropped, "the drop count survives a clear")
}
