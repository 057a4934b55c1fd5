package orientation

import (
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Remap converts wheel speeds for an upside-down chassis: the sides swap and
// each wheel spins the other way. Remap is its own inverse.
func Remap(left, right float64) (float64, float64) {
	return -right, -left
}

// Apply remaps cmd when o is Inverted and passes it through otherwise.
func Apply(o Orientation, cmd robot.MotorCommand) robot.MotorCommand {
	if o != Inverted {
		return cmd
	}
	l, r := Remap(cmd.Left, cmd.Right)
	return robot.MotorCommand{Left: l, Right: r}
}

// Upright returns the frame as the tracker should see it. When o is Inverted
// a rotated copy is returned and release closes it; otherwise release is a
// no-op and the caller keeps ownership of frame.
func Upright(o Orientation, frame vision.Frame) (vision.Frame, func(), error) {
	if o != Inverted {
		return frame, func() {}, nil
	}
	rotated, err := frame.Rotate180()
	if err != nil {
		return frame, func() {}, err
	}
	return rotated, func() { rotated.Close() }, nil
}
