package robot

import (
	"math"
	"math/rand"
	"testing"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestDifferential_WithinRange(t *testing.T) {
	cmd := Differential(0.3, 0.2)
	if !floatEquals(cmd.Left, 0.5) || !floatEquals(cmd.Right, 0.1) {
		t.Errorf("got %v, want {0.5 0.1}", cmd)
	}
}

func TestDifferential_PreservesDifference(t *testing.T) {
	// base 0.9 + steer 0.4 would saturate the left wheel; the pair is shifted
	// down instead of clipping one side.
	cmd := Differential(0.9, 0.4)
	if !floatEquals(cmd.Left-cmd.Right, 0.8) {
		t.Errorf("difference: got %v, want 0.8", cmd.Left-cmd.Right)
	}
	if !floatEquals(cmd.Left, 1.0) || !floatEquals(cmd.Right, 0.2) {
		t.Errorf("got %v, want {1.0 0.2}", cmd)
	}

	cmd = Differential(-0.9, -0.4)
	if !floatEquals(cmd.Left-cmd.Right, -0.8) {
		t.Errorf("difference: got %v, want -0.8", cmd.Left-cmd.Right)
	}
}

func TestDifferential_SteerSaturates(t *testing.T) {
	cmd := Differential(0.5, 3)
	if cmd.Left != 1 || cmd.Right != -1 {
		t.Errorf("got %v, want {1 -1}", cmd)
	}
}

func TestDifferential_AlwaysClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		base := (rng.Float64() - 0.5) * 10
		steer := (rng.Float64() - 0.5) * 10
		cmd := Differential(base, steer)
		if cmd.Left < -1 || cmd.Left > 1 || cmd.Right < -1 || cmd.Right > 1 {
			t.Fatalf("Differential(%v, %v) = %v out of range", base, steer, cmd)
		}
	}
}

func TestDifferential_NaN(t *testing.T) {
	cmd := Differential(math.NaN(), math.Inf(1))
	if !cmd.IsStop() {
		t.Errorf("non-finite input should stop, got %v", cmd)
	}
}

func TestRotate_Direction(t *testing.T) {
	ccw := Rotate(0.4)
	if ccw.Left >= 0 || ccw.Right <= 0 {
		t.Errorf("positive rotate should turn counter-clockwise, got %v", ccw)
	}
	if !floatEquals(ccw.Left, -ccw.Right) {
		t.Errorf("rotate should be in place, got %v", ccw)
	}
}

func TestMotorCommand_Scale(t *testing.T) {
	cmd := MotorCommand{Left: 1, Right: -0.5}.Scale(PowerScale(12.0, 11.4))
	if !floatEquals(cmd.Left, 0.95) || !floatEquals(cmd.Right, -0.475) {
		t.Errorf("got %v", cmd)
	}
}

func TestPowerScale(t *testing.T) {
	if PowerScale(12, 14) != 1 {
		t.Error("output above input should not boost")
	}
	if PowerScale(0, 5) != 1 {
		t.Error("zero input voltage should fall back to 1")
	}
}

func TestFaultFlags_String(t *testing.T) {
	if got := (FaultLeftDrive | FaultComms).String(); got != "left-drive|comms" {
		t.Errorf("got %q", got)
	}
	if got := FaultFlags(0).String(); got != "none" {
		t.Errorf("got %q", got)
	}
}
