package robot

import (
	"fmt"
	"math"
)

// MotorCommand is one differential-drive command. Left and Right are in [-1, 1].
type MotorCommand struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// Stop is the all-zero command.
var Stop = MotorCommand{}

// IsStop reports whether both wheels are commanded to zero.
func (c MotorCommand) IsStop() bool {
	return c.Left == 0 && c.Right == 0
}

// Clamp returns the command with each wheel clamped to [-1, 1].
// NaN is treated as zero so a broken controller can never drive the chassis.
func (c MotorCommand) Clamp() MotorCommand {
	return MotorCommand{
		Left:  clampUnit(c.Left),
		Right: clampUnit(c.Right),
	}
}

// Scale multiplies both wheels by k and clamps the result.
func (c MotorCommand) Scale(k float64) MotorCommand {
	return MotorCommand{Left: c.Left * k, Right: c.Right * k}.Clamp()
}

func (c MotorCommand) String() string {
	return fmt.Sprintf("{L:%+.2f R:%+.2f}", c.Left, c.Right)
}

// Differential mixes a forward base speed and a steering term into wheel speeds:
// left = base + steer, right = base - steer.
//
// The pair is clipped symmetrically: steer is limited to [-1, 1] first and base
// is then shifted into the range that keeps both wheels within [-1, 1]. The
// left/right difference (the yaw rate) survives whenever |steer| <= 1.
func Differential(base, steer float64) MotorCommand {
	base = finite(base)
	steer = clampUnit(steer)
	room := 1 - math.Abs(steer)
	base = clamp(base, -room, room)
	return MotorCommand{Left: base + steer, Right: base - steer}.Clamp()
}

// Rotate returns an in-place rotation command. Positive speed turns
// counter-clockwise (left wheel backwards, right wheel forwards).
func Rotate(speed float64) MotorCommand {
	return Differential(0, -speed)
}

func clampUnit(v float64) float64 {
	return clamp(finite(v), -1, 1)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// clamp restricts v to the range [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
