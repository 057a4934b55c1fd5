package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borg/pkg/follow"
	"github.com/teslashibe/go-borg/pkg/tracking"
)

const minimal = `{
  "safety": {}, "drive": {}, "follow": {}, "tracking": {},
  "reacquire": {}, "orientation": {}, "camera": {}, "web": {}
}`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParse_EmptySectionsKeepDefaults(t *testing.T) {
	f, err := Parse([]byte(minimal))
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, f.Apply(&cfg))
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_MissingSection(t *testing.T) {
	_, err := Parse([]byte(`{"safety": {}, "drive": {}}`))
	require.ErrorIs(t, err, ErrMissingSection)
	assert.Contains(t, err.Error(), "follow")
}

func TestParse_Overrides(t *testing.T) {
	doc := `{
  "safety": {"command_ttl": "300ms", "battery_stop_voltage": 10.8, "battery_warn_voltage": 11.2},
  "drive": {"motor_board_url": "http://board.local", "voltage_in": 12, "voltage_out": 6, "wheel_base": 0.3},
  "follow": {
    "preset": "outdoor",
    "target_distance": 2.5,
    "steering_pid": {"kp": 0.9, "ki": 0, "kd": 0.1, "integral_limit": 1, "output_limit": 0.5},
    "calibrations": [{"label": "dog", "reference_height_pixels": 120, "reference_distance_meters": 2}]
  },
  "tracking": {"tracker": "histogram", "confidence_floor": 0.4, "swap_after": "1s"},
  "reacquire": {"local_timeout": "4s", "camera_fov_degrees": 90},
  "orientation": {"attempts": 5, "rotation_timeout": "8s"},
  "camera": {"width": 320, "height": 240, "flipped": false},
  "web": {"port": "9000", "telemetry_interval": "100ms"}
}`
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	cfg := Default()
	require.NoError(t, f.Apply(&cfg))

	ap := cfg.Autopilot
	assert.Equal(t, 300*time.Millisecond, ap.Safety.CommandTTL)
	assert.Equal(t, 10.8, ap.Safety.BatteryStop)
	assert.Equal(t, "http://board.local", cfg.Drive.MotorBoardURL)
	assert.InDelta(t, 0.5, cfg.Drive.PowerScale(), 1e-9)
	assert.Equal(t, 0.3, ap.Odometry.WheelBase)

	outdoor := follow.OutdoorConfig()
	assert.Equal(t, 2.5, ap.Follow.TargetDistance)
	assert.Equal(t, outdoor.MaxSpeed, ap.Follow.MaxSpeed, "preset applies under overrides")
	assert.Equal(t, outdoor.Distance, ap.Follow.Distance)
	assert.Equal(t, follow.Gains{Kp: 0.9, Kd: 0.1, IntegralLimit: 1, OutputLimit: 0.5}, ap.Follow.Steering)
	require.Len(t, ap.Calibrations, 1)
	assert.Equal(t, "dog", ap.Calibrations[0].Label)

	assert.Equal(t, tracking.KindColorHistogram, ap.Tracking.Kind)
	assert.Equal(t, 0.4, ap.Tracking.ConfidenceFloor)
	assert.Equal(t, 0.4, ap.Reacquire.ConfidenceFloor)
	assert.Equal(t, time.Second, ap.Tracking.SwapAfter)
	assert.Equal(t, 4*time.Second, ap.Reacquire.LocalTimeout)
	assert.InDelta(t, 1.5708, ap.Reacquire.CameraFOV, 1e-4)

	assert.Equal(t, 5, ap.Orientation.Attempts)
	assert.Equal(t, 8*time.Second, ap.Orientation.RotationTimeout)
	assert.Equal(t, 320, cfg.Camera.Width)
	assert.False(t, cfg.Camera.Flipped)
	assert.Equal(t, "9000", cfg.Web.Port)
	assert.Equal(t, 100*time.Millisecond, cfg.Web.TelemetryInterval)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		section string
		body    string
	}{
		{"bad duration", "safety", `{"command_ttl": "soon"}`},
		{"negative duration", "safety", `{"watchdog": "-1s"}`},
		{"stop above warn", "safety", `{"battery_stop_voltage": 12, "battery_warn_voltage": 11}`},
		{"zero queue", "safety", `{"queue_capacity": 0}`},
		{"confidence range", "tracking", `{"confidence_floor": 1.5}`},
		{"unknown tracker", "tracking", `{"tracker": "kalman"}`},
		{"unknown preset", "follow", `{"preset": "moon"}`},
		{"bad calibration", "follow", `{"calibrations": [{"label": "cat"}]}`},
		{"target inside safe distance", "follow", `{"target_distance": 0.4}`},
		{"speed range", "reacquire", `{"drive_speed": 2}`},
		{"expanded before local", "reacquire", `{"local_timeout": "20s"}`},
		{"zero attempts", "orientation", `{"attempts": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := replaceSection(t, tt.section, tt.body)
			f, err := Parse([]byte(doc))
			if err == nil {
				cfg := Default()
				err = f.Apply(&cfg)
			}
			assert.Error(t, err)
		})
	}
}

// replaceSection returns the minimal document with one section replaced.
func replaceSection(t *testing.T, section, body string) string {
	t.Helper()
	doc := ""
	for i, name := range Sections {
		if i > 0 {
			doc += ", "
		}
		v := "{}"
		if name == section {
			v = body
		}
		doc += `"` + name + `": ` + v
	}
	return "{" + doc + "}"
}

func TestLoadFile(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "borg.yaml", minimal))
	assert.ErrorContains(t, err, ".json")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFile(writeConfig(t, "broken.json", `{"safety":`))
	assert.ErrorContains(t, err, "parse")

	f, err := LoadFile(writeConfig(t, "borg.json", minimal))
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestLoad_Environment(t *testing.T) {
	path := writeConfig(t, "borg.json", replaceSection(t, "web", `{"port": "9000"}`))
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvPort, "9100")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvMotorBoardURL, "http://10.0.0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Web.Port, "environment wins over the file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://10.0.0.5", cfg.Drive.MotorBoardURL)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvPort, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvMotorBoardURL, "")

	cfg, err := Load()
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_BadFile(t *testing.T) {
	t.Setenv(EnvConfig, writeConfig(t, "borg.json", `{"safety": {}}`))
	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingSection)
}
