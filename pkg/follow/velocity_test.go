package follow

import (
	"math"
	"testing"
	"time"
)

func TestVelocityEstimator_RecedingTarget(t *testing.T) {
	v := NewVelocityEstimator(time.Second, 0.01, 1)
	base := time.Unix(100, 0)

	// Centre rises 50 px/s → 0.5 m/s away from the camera.
	var speed float64
	var ok bool
	for i := 0; i <= 10; i++ {
		at := base.Add(time.Duration(i) * 50 * time.Millisecond)
		speed, ok = v.Observe(at, 300-float64(i)*2.5)
	}
	if !ok {
		t.Fatal("expected an estimate")
	}
	if math.Abs(speed-0.5) > 1e-6 {
		t.Errorf("speed: got %v, want 0.5", speed)
	}
}

func TestVelocityEstimator_NeedsThreeSamples(t *testing.T) {
	v := NewVelocityEstimator(time.Second, 0.01, 1)
	base := time.Unix(100, 0)
	if _, ok := v.Observe(base, 10); ok {
		t.Error("one sample should not give an estimate")
	}
	if _, ok := v.Observe(base.Add(30*time.Millisecond), 11); ok {
		t.Error("two samples should not give an estimate")
	}
	if _, ok := v.Observe(base.Add(60*time.Millisecond), 12); !ok {
		t.Error("three samples should give an estimate")
	}
}

func TestVelocityEstimator_UsesElapsedTimeNotFrameCount(t *testing.T) {
	fast := NewVelocityEstimator(5*time.Second, 0.01, 1)
	slow := NewVelocityEstimator(5*time.Second, 0.01, 1)
	base := time.Unix(100, 0)

	// Same physical motion (-20 px/s) sampled at 30 Hz and at 5 Hz.
	var a, b float64
	for i := 0; i < 30; i++ {
		a, _ = fast.Observe(base.Add(time.Duration(i)*time.Second/30), 200-20*float64(i)/30)
	}
	for i := 0; i < 6; i++ {
		b, _ = slow.Observe(base.Add(time.Duration(i)*200*time.Millisecond), 200-20*float64(i)*0.2)
	}
	if math.Abs(a-b) > 1e-6 || math.Abs(a-0.2) > 1e-6 {
		t.Errorf("30 Hz=%v 5 Hz=%v, want both 0.2", a, b)
	}
}

func TestVelocityEstimator_WindowDropsOldSamples(t *testing.T) {
	v := NewVelocityEstimator(300*time.Millisecond, 0.01, 1)
	base := time.Unix(100, 0)

	// A stationary phase followed by steady receding motion.
	for i := 0; i < 10; i++ {
		v.Observe(base.Add(time.Duration(i)*100*time.Millisecond), 200)
	}
	var speed float64
	for i := 10; i < 20; i++ {
		speed, _ = v.Observe(base.Add(time.Duration(i)*100*time.Millisecond), 200-10*float64(i-9))
	}
	// 10 px per 100 ms = 100 px/s → 1 m/s once the window only holds motion.
	if math.Abs(speed-1.0) > 1e-6 {
		t.Errorf("speed: got %v, want 1.0", speed)
	}
}
