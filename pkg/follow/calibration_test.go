package follow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateDistance_ScenarioA(t *testing.T) {
	cal := Calibration{ReferenceHeightPixels: 200, ReferenceDistanceMeters: 1.0}
	d, ok := EstimateDistance(100, cal)
	require.True(t, ok)
	assert.InDelta(t, 2.0, d, 1e-12)
}

func TestEstimateDistance_NonPositiveHeight(t *testing.T) {
	cal := DefaultCalibration()
	for _, h := range []float64{0, -1, -200} {
		if _, ok := EstimateDistance(h, cal); ok {
			t.Errorf("height %v: expected no estimate", h)
		}
	}
}

func TestEstimateDistance_MonotonicDecreasing(t *testing.T) {
	cal := Calibration{ReferenceHeightPixels: 240, ReferenceDistanceMeters: 1.5}
	prev, _ := EstimateDistance(0.5, cal)
	for h := 1.0; h <= 1000; h += 7.3 {
		d, ok := EstimateDistance(h, cal)
		require.True(t, ok)
		if d >= prev {
			t.Fatalf("distance not decreasing: h=%v d=%v prev=%v", h, d, prev)
		}
		prev = d
	}
}

func TestCalibrations_LookupFallsBack(t *testing.T) {
	person := Calibration{Label: "person", ReferenceHeightPixels: 300, ReferenceDistanceMeters: 2}
	cals, err := NewCalibrations(DefaultCalibration(), person)
	require.NoError(t, err)

	got, err := cals.Lookup("person")
	require.NoError(t, err)
	assert.Equal(t, person, got)

	got, err = cals.Lookup("dog")
	assert.True(t, errors.Is(err, ErrCalibrationMissing))
	assert.Equal(t, DefaultCalibration(), got)

	got, err = cals.Lookup("")
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibration(), got)
}

func TestCalibrations_RejectsBadEntries(t *testing.T) {
	_, err := NewCalibrations(Calibration{})
	assert.Error(t, err, "invalid default")

	cals, err := NewCalibrations(DefaultCalibration())
	require.NoError(t, err)

	assert.Error(t, cals.Add(Calibration{Label: "", ReferenceHeightPixels: 1, ReferenceDistanceMeters: 1}))
	assert.Error(t, cals.Add(Calibration{Label: "x", ReferenceHeightPixels: 0, ReferenceDistanceMeters: 1}))

	ball := Calibration{Label: "ball", ReferenceHeightPixels: 50, ReferenceDistanceMeters: 1}
	require.NoError(t, cals.Add(ball))
	assert.Error(t, cals.Add(ball), "duplicate label")
	assert.Equal(t, []string{"ball"}, cals.Labels())
}
