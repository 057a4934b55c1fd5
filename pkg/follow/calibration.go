package follow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/teslashibe/go-borg/internal/log"
)

// Calibration relates a target's apparent height to its distance: a target
// that is ReferenceHeightPixels tall in the frame stands
// ReferenceDistanceMeters away.
type Calibration struct {
	Label                   string  `json:"label"`
	ReferenceHeightPixels   float64 `json:"reference_height_pixels"`
	ReferenceDistanceMeters float64 `json:"reference_distance_meters"`
}

// DefaultCalibration is a person-sized target at 640x480.
func DefaultCalibration() Calibration {
	return Calibration{
		Label:                   "default",
		ReferenceHeightPixels:   240,
		ReferenceDistanceMeters: 1.5,
	}
}

// Valid reports whether both reference values are positive.
func (c Calibration) Valid() bool {
	return c.ReferenceHeightPixels > 0 && c.ReferenceDistanceMeters > 0
}

// EstimateDistance converts a box height to metres. It returns false when
// the height is not positive.
func EstimateDistance(boxHeight float64, cal Calibration) (float64, bool) {
	if boxHeight <= 0 || !cal.Valid() {
		return 0, false
	}
	return cal.ReferenceHeightPixels * cal.ReferenceDistanceMeters / boxHeight, true
}

// Calibrations holds per-label calibrations. Entries are immutable once
// registered; the set itself is safe for concurrent use.
type Calibrations struct {
	mu      sync.RWMutex
	def     Calibration
	byLabel map[string]Calibration
}

// NewCalibrations creates a registry with a default and optional entries.
func NewCalibrations(def Calibration, entries ...Calibration) (*Calibrations, error) {
	if !def.Valid() {
		return nil, fmt.Errorf("default calibration: invalid reference values %v/%v",
			def.ReferenceHeightPixels, def.ReferenceDistanceMeters)
	}
	c := &Calibrations{def: def, byLabel: make(map[string]Calibration)}
	for _, e := range entries {
		if err := c.Add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers a calibration. A label can only be registered once.
func (c *Calibrations) Add(cal Calibration) error {
	if cal.Label == "" {
		return fmt.Errorf("calibration: empty label")
	}
	if !cal.Valid() {
		return fmt.Errorf("calibration %q: invalid reference values", cal.Label)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byLabel[cal.Label]; ok {
		return fmt.Errorf("calibration %q already registered", cal.Label)
	}
	c.byLabel[cal.Label] = cal
	log.Debug("calibration registered", "label", cal.Label,
		"reference_px", cal.ReferenceHeightPixels, "reference_m", cal.ReferenceDistanceMeters)
	return nil
}

// Lookup returns the calibration for label. An empty label selects the
// default. An unknown label returns the default and ErrCalibrationMissing.
func (c *Calibrations) Lookup(label string) (Calibration, error) {
	if label == "" {
		return c.def, nil
	}
	c.mu.RLock()
	cal, ok := c.byLabel[label]
	c.mu.RUnlock()
	if !ok {
		return c.def, fmt.Errorf("%w: %q", ErrCalibrationMissing, label)
	}
	return cal, nil
}

// Labels returns the registered labels, sorted.
func (c *Calibrations) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	labels := make([]string, 0, len(c.byLabel))
	for l := range c.byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
