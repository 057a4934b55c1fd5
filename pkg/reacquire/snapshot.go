package reacquire

import (
	"time"

	"github.com/teslashibe/go-borg/pkg/odometry"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Snapshot is a read-only copy of the machine for telemetry. Fields that do
// not apply to the current state are left zero.
type Snapshot struct {
	State State     `json:"state"`
	Since time.Time `json:"since"`

	// Tracking
	Box        vision.BoundingBox `json:"box"`
	Confidence float64            `json:"confidence"`

	// Searching
	Stage   string        `json:"stage,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"` // Since loss
	Turned  float64       `json:"turned,omitempty"`  // Expanded scan rotation so far (rad)

	// Returning
	Target *odometry.Pose `json:"target,omitempty"`
}

// Snapshot returns the current state for telemetry.
func (m *Machine) Snapshot(now time.Time) Snapshot {
	s := Snapshot{State: m.state, Since: m.enteredAt}

	switch m.state {
	case Tracking:
		s.Box = m.lastGood
		s.Confidence = m.confidence
	case LocalSearch, ExpandedSearch:
		s.Stage = m.state.String()
		s.Elapsed = now.Sub(m.lostAt)
		s.Turned = m.turned
	case Returning:
		target := m.lossPose
		s.Target = &target
	}
	return s
}

// LostAt returns when the current loss was confirmed (zero if never).
func (m *Machine) LostAt() time.Time {
	return m.lostAt
}

// LossPose returns the pose recorded when the target was lost.
func (m *Machine) LossPose() odometry.Pose {
	return m.lossPose
}
