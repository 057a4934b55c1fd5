package follow

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/vision"
)

var testCal = Calibration{Label: "test", ReferenceHeightPixels: 200, ReferenceDistanceMeters: 1.0}

// boxAt returns a box centred at cx whose height puts it at dist metres.
func boxAt(cx, dist float64) vision.BoundingBox {
	h := testCal.ReferenceHeightPixels * testCal.ReferenceDistanceMeters / dist
	return vision.BoundingBox{X: cx - 20, Y: 240 - h/2, Width: 40, Height: h}
}

func obs(box vision.BoundingBox) Observation {
	return Observation{Box: box, FrameWidth: 640, FrameHeight: 480, Calibration: testCal}
}

func staticConfig() Config {
	cfg := DefaultConfig()
	cfg.UseVelocity = false
	return cfg
}

func TestController_FarTargetDrivesForward(t *testing.T) {
	c := NewController(staticConfig())
	out := c.Tick(obs(boxAt(320, 3.0)), time.Unix(0, 0))

	assert.True(t, out.DistanceKnown)
	assert.InDelta(t, 3.0, out.Distance, 1e-9)
	assert.Greater(t, out.Command.Left, 0.0)
	assert.InDelta(t, out.Command.Left, out.Command.Right, 1e-9, "centred target should not steer")
}

func TestController_NearTargetBacksOff(t *testing.T) {
	c := NewController(staticConfig())
	out := c.Tick(obs(boxAt(320, 0.4)), time.Unix(0, 0))

	assert.True(t, out.Reversing)
	assert.False(t, out.TooClose)
	assert.InDelta(t, -c.Config().ReverseSpeed, out.Command.Left, 1e-9)
	assert.InDelta(t, -c.Config().ReverseSpeed, out.Command.Right, 1e-9)
}

func TestController_TooCloseStops(t *testing.T) {
	c := NewController(staticConfig())
	out := c.Tick(obs(boxAt(500, 0.25)), time.Unix(0, 0))

	assert.True(t, out.TooClose)
	assert.True(t, out.Command.IsStop())
}

func TestController_SteersTowardTarget(t *testing.T) {
	c := NewController(staticConfig())

	right := c.Tick(obs(boxAt(560, 1.5)), time.Unix(0, 0))
	assert.Greater(t, right.Command.Left, right.Command.Right, "target on the right → turn right")

	c.Reset()
	left := c.Tick(obs(boxAt(80, 1.5)), time.Unix(0, 0))
	assert.Greater(t, left.Command.Right, left.Command.Left, "target on the left → turn left")
}

func TestController_UnknownDistanceStops(t *testing.T) {
	c := NewController(staticConfig())
	out := c.Tick(obs(vision.BoundingBox{X: 10, Y: 10, Width: 10}), time.Unix(0, 0))
	assert.False(t, out.DistanceKnown)
	assert.True(t, out.Command.IsStop())
}

func TestController_CommandAlwaysClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Distance.Kp = 50
	cfg.Distance.OutputLimit = 0
	cfg.Steering.Kp = 50
	cfg.MaxSpeed = 5
	cfg.MaxSteer = 5
	c := NewController(cfg)

	rng := rand.New(rand.NewSource(7))
	now := time.Unix(0, 0)
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(10+rng.Intn(90)) * time.Millisecond)
		box := boxAt(rng.Float64()*640, 0.2+rng.Float64()*10)
		out := c.Tick(Observation{
			Box: box, FrameWidth: 640, FrameHeight: 480, Calibration: testCal,
			Robot: odometry.Velocity{Linear: rng.Float64()*2 - 1},
		}, now)
		if out.Command.Left < -1 || out.Command.Left > 1 || out.Command.Right < -1 || out.Command.Right > 1 {
			t.Fatalf("tick %d: command %v out of range", i, out.Command)
		}
	}
}

func TestController_VelocityFeedForward(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Distance = Gains{} // isolate the feed-forward term
	c := NewController(cfg)

	// Target holds distance while its centre rises: it is walking away and
	// the robot must match its speed.
	now := time.Unix(0, 0)
	var out Output
	for i := 0; i < 10; i++ {
		box := boxAt(320, 1.5)
		box.Y -= float64(i) * 5 // 100 px/s at 20 Hz
		now = now.Add(50 * time.Millisecond)
		out = c.Tick(obs(box), now)
	}
	assert.InDelta(t, 0.4, out.TargetSpeed, 1e-6) // 100 px/s × 0.004
	assert.Greater(t, out.Command.Left, 0.0)
}

func TestPresets(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default": DefaultConfig(),
		"indoor":  IndoorConfig(),
		"outdoor": OutdoorConfig(),
	} {
		assert.Greater(t, cfg.TargetDistance, cfg.SafeMinDistance, name)
		assert.Greater(t, cfg.SafeMinDistance, cfg.EmergencyStopDistance, name)
		assert.LessOrEqual(t, cfg.MaxSpeed, 1.0, name)
	}
	assert.Less(t, IndoorConfig().MaxSpeed, OutdoorConfig().MaxSpeed)
}
