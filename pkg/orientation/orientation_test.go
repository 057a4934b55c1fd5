package orientation

import (
	"image"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// scripted returns the queued results in order, then repeats the last.
type scripted struct {
	results []Orientation
	calls   int
}

func (s *scripted) Classify(vision.Frame) Orientation {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i]
}

type recordingAlarm struct {
	reasons []string
}

func (a *recordingAlarm) OrientationUnknown(reason string) {
	a.reasons = append(a.reasons, reason)
}

type recordingIndicator struct {
	patterns []robot.Pattern
}

func (r *recordingIndicator) SetPattern(p robot.Pattern) error {
	r.patterns = append(r.patterns, p)
	return nil
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.RotationTimeout = 500 * time.Millisecond
	return cfg
}

// stepFor steps every 50ms for d, turning the pose by rate radians per step.
// With the fast config every rotation ends on the timeout.
func stepFor(c *Controller, start time.Time, d time.Duration, rate float64) (Step, time.Time) {
	now := start
	var st Step
	var heading float64
	for t := time.Duration(0); t <= d; t += 50 * time.Millisecond {
		now = start.Add(t)
		heading = odometry.NormalizeAngle(heading + rate)
		st = c.Step(now, vision.Frame{}, odometry.Pose{Heading: heading})
	}
	return st, now
}

func TestController_RepeatedIndeterminateIsFatal(t *testing.T) {
	cls := &scripted{results: []Orientation{Indeterminate}}
	alarm := &recordingAlarm{}
	leds := &recordingIndicator{}
	c := NewController(fastConfig(), cls, alarm, leds)
	base := time.Unix(0, 0)

	st := c.Step(base, vision.Frame{}, odometry.Pose{})
	assert.True(t, st.Override)
	assert.Equal(t, robot.Rotate(fastConfig().RotationSpeed), st.Command, "first ambiguity rotates")
	assert.False(t, st.Fatal)

	st, now := stepFor(c, base, 2*time.Second, 0.1)
	require.True(t, st.Fatal)
	assert.True(t, st.Override)
	assert.Equal(t, robot.Stop, st.Command)
	assert.Equal(t, 3, cls.calls)
	assert.True(t, c.Fatal())

	require.Len(t, alarm.reasons, 1)
	assert.Contains(t, alarm.reasons[0], "3 attempts")
	assert.Equal(t, []robot.Pattern{robot.PatternOrientationUnknown}, leds.patterns)

	// Latched: no more classification and no repeated alarms.
	st = c.Step(now.Add(time.Second), vision.Frame{}, odometry.Pose{})
	assert.True(t, st.Fatal)
	assert.Equal(t, robot.Stop, st.Command)
	assert.Equal(t, 3, cls.calls)
	assert.Len(t, alarm.reasons, 1)
}

func TestController_ResetClearsFatal(t *testing.T) {
	cls := &scripted{results: []Orientation{Indeterminate, Indeterminate, Indeterminate, Normal}}
	c := NewController(fastConfig(), cls, nil, nil)
	base := time.Unix(0, 0)

	st, now := stepFor(c, base, 2*time.Second, 0.1)
	require.True(t, st.Fatal)

	c.Reset()
	assert.False(t, c.Fatal())
	assert.Equal(t, Unknown, c.Orientation())

	st = c.Step(now.Add(time.Second), vision.Frame{}, odometry.Pose{})
	assert.False(t, st.Override)
	assert.Equal(t, Normal, st.Orientation)
}

func TestController_RefusedTurnsDoNotCount(t *testing.T) {
	cls := &scripted{results: []Orientation{Indeterminate}}
	alarm := &recordingAlarm{}
	c := NewController(fastConfig(), cls, alarm, nil)
	base := time.Unix(0, 0)

	// The chassis never moves: every turn times out without rotating.
	st, now := stepFor(c, base, 10*time.Second, 0)
	assert.False(t, st.Fatal)
	assert.False(t, c.Fatal())
	assert.Empty(t, alarm.reasons)
	assert.Greater(t, cls.calls, 3, "keeps re-classifying")

	// Once turns run the remaining attempts count.
	st, _ = stepFor(c, now.Add(50*time.Millisecond), 2*time.Second, 0.1)
	require.True(t, st.Fatal)
	require.Len(t, alarm.reasons, 1)
	assert.Contains(t, alarm.reasons[0], "3 attempts")
}

func TestController_RotationEndsAfterFullTurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RotationTimeout = time.Hour
	cls := &scripted{results: []Orientation{Indeterminate, Inverted}}
	c := NewController(cfg, cls, nil, nil)
	base := time.Unix(0, 0)

	st := c.Step(base, vision.Frame{}, odometry.Pose{})
	require.True(t, st.Override)

	heading := 0.0
	var i int
	for i = 1; i < 100; i++ {
		heading = odometry.NormalizeAngle(heading + 0.2)
		st = c.Step(base.Add(time.Duration(i)*100*time.Millisecond), vision.Frame{}, odometry.Pose{Heading: heading})
		if !st.Override {
			break
		}
	}
	// 2π / 0.2 rad per step, about 32 steps.
	assert.InDelta(t, 32, i, 1)
	assert.Equal(t, Inverted, st.Orientation)
	assert.Equal(t, Inverted, c.Orientation())
}

func TestController_KnownOrientationSurvivesAmbiguity(t *testing.T) {
	cls := &scripted{results: []Orientation{Normal, Indeterminate, Indeterminate, Indeterminate, Indeterminate}}
	c := NewController(DefaultConfig(), cls, nil, nil)
	base := time.Unix(0, 0)

	for i := 0; i < 10; i++ {
		st := c.Step(base.Add(time.Duration(i)*time.Second), vision.Frame{}, odometry.Pose{})
		assert.False(t, st.Override)
		assert.Equal(t, Normal, st.Orientation)
	}
	assert.False(t, c.Fatal())
}

func TestController_RecheckInterval(t *testing.T) {
	cls := &scripted{results: []Orientation{Normal}}
	c := NewController(DefaultConfig(), cls, nil, nil)
	base := time.Unix(0, 0)

	for ms := 0; ms < 1000; ms += 100 {
		c.Step(base.Add(time.Duration(ms)*time.Millisecond), vision.Frame{}, odometry.Pose{})
	}
	assert.Equal(t, 1, cls.calls)

	c.Step(base.Add(time.Second), vision.Frame{}, odometry.Pose{})
	assert.Equal(t, 2, cls.calls)
}

func TestRemap_RoundTrip(t *testing.T) {
	cases := [][2]float64{{0.5, 0.5}, {0.3, -0.3}, {1, 0}, {0, 0}, {-0.8, 0.2}}
	for _, c := range cases {
		l, r := Remap(c[0], c[1])
		l2, r2 := Remap(l, r)
		assert.Equal(t, c[0], l2)
		assert.Equal(t, c[1], r2)
	}

	// Forward upright stays forward in the world when inverted.
	l, r := Remap(0.5, 0.5)
	assert.Equal(t, -0.5, l)
	assert.Equal(t, -0.5, r)

	// Left turn swaps sides and flips sign.
	l, r = Remap(-0.3, 0.3)
	assert.Equal(t, -0.3, l)
	assert.Equal(t, 0.3, r)
}

func TestApply(t *testing.T) {
	cmd := robot.MotorCommand{Left: 0.2, Right: 0.6}
	assert.Equal(t, cmd, Apply(Normal, cmd))
	assert.Equal(t, cmd, Apply(Unknown, cmd))
	assert.Equal(t, robot.MotorCommand{Left: -0.6, Right: -0.2}, Apply(Inverted, cmd))
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name         string
		upper, lower float64
		want         Orientation
	}{
		{"bright ceiling", 180, 60, Normal},
		{"bright floor", 50, 170, Inverted},
		{"even", 100, 105, Indeterminate},
		{"black", 0, 0, Indeterminate},
		{"nan", math.NaN(), 10, Indeterminate},
		{"just over margin", 110, 90, Normal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.upper, tt.lower, 0.08))
		})
	}
}

func TestOrientation_String(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "inverted", Inverted.String())
	assert.Equal(t, "indeterminate", Indeterminate.String())
	assert.Equal(t, "unknown", Unknown.String())
}

// halves builds a frame with the given grey levels for its upper and lower
// halves.
func halves(upper, lower float64) vision.Frame {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(lower, lower, lower, 0), 120, 160, gocv.MatTypeCV8UC3)
	top := m.Region(image.Rect(0, 0, 160, 60))
	top.SetTo(gocv.NewScalar(upper, upper, upper, 0))
	top.Close()
	return vision.Frame{Mat: m, Captured: time.Unix(0, 0)}
}

func TestHalvesClassifier(t *testing.T) {
	c := NewHalvesClassifier(0.08)

	up := halves(200, 40)
	defer up.Close()
	assert.Equal(t, Normal, c.Classify(up))

	down := halves(40, 200)
	defer down.Close()
	assert.Equal(t, Inverted, c.Classify(down))

	flat := halves(100, 100)
	defer flat.Close()
	assert.Equal(t, Indeterminate, c.Classify(flat))

	assert.Equal(t, Indeterminate, c.Classify(vision.Frame{Mat: gocv.NewMat()}))
}

func TestUpright(t *testing.T) {
	f := halves(40, 200)
	defer f.Close()

	same, release, err := Upright(Normal, f)
	require.NoError(t, err)
	release()
	assert.Equal(t, Inverted, NewHalvesClassifier(0.08).Classify(same), "normal passes the frame through")

	rotated, release, err := Upright(Inverted, f)
	require.NoError(t, err)
	defer release()
	assert.Equal(t, Normal, NewHalvesClassifier(0.08).Classify(rotated))
	assert.Equal(t, f.Captured, rotated.Captured)
}
