package follow

import "errors"

// ErrCalibrationMissing means no calibration is registered for a label.
// Callers fall back to the default calibration.
var ErrCalibrationMissing = errors.New("calibration missing")
