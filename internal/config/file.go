package config

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-borg/pkg/follow"
	"github.com/teslashibe/go-borg/pkg/tracking"
)

// File mirrors the JSON config document. Every field is optional inside
// its section; omitted fields keep their defaults. Durations are strings
// like "500ms".
type File struct {
	Safety      SafetySection      `json:"safety"`
	Drive       DriveSection       `json:"drive"`
	Follow      FollowSection      `json:"follow"`
	Tracking    TrackingSection    `json:"tracking"`
	Reacquire   ReacquireSection   `json:"reacquire"`
	Orientation OrientationSection `json:"orientation"`
	Camera      CameraSection      `json:"camera"`
	Web         WebSection         `json:"web"`
}

// SafetySection configures the safety coordinator.
type SafetySection struct {
	CommandTTL    *string  `json:"command_ttl,omitempty"`
	Watchdog      *string  `json:"watchdog,omitempty"`
	PollInterval  *string  `json:"poll_interval,omitempty"`
	QueueCapacity *int     `json:"queue_capacity,omitempty"`
	BatteryStop   *float64 `json:"battery_stop_voltage,omitempty"`
	BatteryWarn   *float64 `json:"battery_warn_voltage,omitempty"`
}

// DriveSection configures the motor board.
type DriveSection struct {
	MotorBoardURL *string  `json:"motor_board_url,omitempty"`
	VoltageIn     *float64 `json:"voltage_in,omitempty"`
	VoltageOut    *float64 `json:"voltage_out,omitempty"`
	WheelBase     *float64 `json:"wheel_base,omitempty"`
	MaxWheelSpeed *float64 `json:"max_wheel_speed,omitempty"`
}

// FollowSection configures the follow controller and distance calibration.
type FollowSection struct {
	Preset                *string              `json:"preset,omitempty"` // default, indoor or outdoor
	TargetDistance        *float64             `json:"target_distance,omitempty"`
	SafeMinDistance       *float64             `json:"safe_min_distance,omitempty"`
	EmergencyStopDistance *float64             `json:"emergency_stop_distance,omitempty"`
	MaxSpeed              *float64             `json:"max_speed,omitempty"`
	MaxSteer              *float64             `json:"max_steer,omitempty"`
	Distance              *follow.Gains        `json:"distance_pid,omitempty"`
	Steering              *follow.Gains        `json:"steering_pid,omitempty"`
	UseVelocity           *bool                `json:"use_velocity,omitempty"`
	PixelToMeter          *float64             `json:"pixel_to_meter,omitempty"`
	Calibration           *follow.Calibration  `json:"calibration,omitempty"`
	Calibrations          []follow.Calibration `json:"calibrations,omitempty"`
}

// TrackingSection configures the visual tracker.
type TrackingSection struct {
	Kind            *string  `json:"tracker,omitempty"`
	ConfidenceFloor *float64 `json:"confidence_floor,omitempty"`
	SwapAfter       *string  `json:"swap_after,omitempty"`
}

// ReacquireSection configures loss handling and the search.
type ReacquireSection struct {
	LossDelay        *string  `json:"loss_delay,omitempty"`
	AcquireTimeout   *string  `json:"acquire_timeout,omitempty"`
	LocalTimeout     *string  `json:"local_timeout,omitempty"`
	ExpandedTimeout  *string  `json:"expanded_timeout,omitempty"`
	ReturnTimeout    *string  `json:"return_timeout,omitempty"`
	WaitTimeout      *string  `json:"wait_timeout,omitempty"`
	CameraFOVDegrees *float64 `json:"camera_fov_degrees,omitempty"`
	SearchSpeed      *float64 `json:"search_speed,omitempty"`
	ExpandedSpeed    *float64 `json:"expanded_speed,omitempty"`
	DriveSpeed       *float64 `json:"drive_speed,omitempty"`
}

// OrientationSection configures inversion handling.
type OrientationSection struct {
	Margin          *float64 `json:"margin,omitempty"`
	Attempts        *int     `json:"attempts,omitempty"`
	RotationSpeed   *float64 `json:"rotation_speed,omitempty"`
	RotationTimeout *string  `json:"rotation_timeout,omitempty"`
}

// CameraSection configures frame capture.
type CameraSection struct {
	Device    *int  `json:"device,omitempty"`
	Width     *int  `json:"width,omitempty"`
	Height    *int  `json:"height,omitempty"`
	Framerate *int  `json:"framerate,omitempty"`
	Flipped   *bool `json:"flipped,omitempty"`
}

// WebSection configures the HTTP server.
type WebSection struct {
	Port              *string `json:"port,omitempty"`
	TelemetryInterval *string `json:"telemetry_interval,omitempty"`
	StaticDir         *string `json:"static_dir,omitempty"`
}

// Validate checks the values that are set.
func (f *File) Validate() error {
	if err := unit("tracking.confidence_floor", f.Tracking.ConfidenceFloor); err != nil {
		return err
	}
	if err := unit("orientation.margin", f.Orientation.Margin); err != nil {
		return err
	}
	for name, v := range map[string]*float64{
		"follow.max_speed":           f.Follow.MaxSpeed,
		"follow.max_steer":           f.Follow.MaxSteer,
		"reacquire.search_speed":     f.Reacquire.SearchSpeed,
		"reacquire.expanded_speed":   f.Reacquire.ExpandedSpeed,
		"reacquire.drive_speed":      f.Reacquire.DriveSpeed,
		"orientation.rotation_speed": f.Orientation.RotationSpeed,
	} {
		if err := unit(name, v); err != nil {
			return err
		}
	}
	if k := f.Tracking.Kind; k != nil {
		switch tracking.Kind(*k) {
		case tracking.KindCorrelation, tracking.KindColorHistogram:
		default:
			return fmt.Errorf("tracking.tracker: %w %q", tracking.ErrUnknownKind, *k)
		}
	}
	if f.Follow.Preset != nil {
		if _, err := Preset(*f.Follow.Preset); err != nil {
			return err
		}
	}
	if s, w := f.Safety.BatteryStop, f.Safety.BatteryWarn; s != nil && w != nil && *s > *w {
		return fmt.Errorf("safety.battery_stop_voltage %.2f above battery_warn_voltage %.2f", *s, *w)
	}
	if q := f.Safety.QueueCapacity; q != nil && *q < 1 {
		return fmt.Errorf("safety.queue_capacity must be at least 1, got %d", *q)
	}
	if a := f.Orientation.Attempts; a != nil && *a < 1 {
		return fmt.Errorf("orientation.attempts must be at least 1, got %d", *a)
	}
	for _, c := range f.Follow.Calibrations {
		if !c.Valid() {
			return fmt.Errorf("follow.calibrations: invalid calibration for %q", c.Label)
		}
	}
	if c := f.Follow.Calibration; c != nil && !c.Valid() {
		return fmt.Errorf("follow.calibration: invalid calibration")
	}
	return nil
}

// unit requires an optional value to lie in [0, 1].
func unit(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %v", name, *v)
	}
	return nil
}

// Apply lays the file over cfg.
func (f *File) Apply(cfg *Config) error {
	ap := &cfg.Autopilot

	// Safety
	s := f.Safety
	set(&ap.Safety.QueueCapacity, s.QueueCapacity)
	set(&ap.Safety.BatteryStop, s.BatteryStop)
	set(&ap.Safety.BatteryWarn, s.BatteryWarn)
	if err := firstErr(
		duration(&ap.Safety.CommandTTL, s.CommandTTL, "safety.command_ttl"),
		duration(&ap.Safety.Watchdog, s.Watchdog, "safety.watchdog"),
		duration(&ap.Safety.PollInterval, s.PollInterval, "safety.poll_interval"),
	); err != nil {
		return err
	}

	// Follow: the preset first, then individual overrides.
	fl := f.Follow
	if fl.Preset != nil {
		preset, err := Preset(*fl.Preset)
		if err != nil {
			return err
		}
		ap.Follow = preset
	}
	set(&ap.Follow.TargetDistance, fl.TargetDistance)
	set(&ap.Follow.SafeMinDistance, fl.SafeMinDistance)
	set(&ap.Follow.EmergencyStopDistance, fl.EmergencyStopDistance)
	set(&ap.Follow.MaxSpeed, fl.MaxSpeed)
	set(&ap.Follow.MaxSteer, fl.MaxSteer)
	set(&ap.Follow.Distance, fl.Distance)
	set(&ap.Follow.Steering, fl.Steering)
	set(&ap.Follow.UseVelocity, fl.UseVelocity)
	set(&ap.Follow.PixelToMeter, fl.PixelToMeter)
	set(&ap.Calibration, fl.Calibration)
	if fl.Calibrations != nil {
		ap.Calibrations = append([]follow.Calibration(nil), fl.Calibrations...)
	}
	if ap.Follow.SafeMinDistance >= ap.Follow.TargetDistance {
		return fmt.Errorf("follow.target_distance %.2f must exceed safe_min_distance %.2f",
			ap.Follow.TargetDistance, ap.Follow.SafeMinDistance)
	}

	// Drive
	d := f.Drive
	set(&cfg.Drive.MotorBoardURL, d.MotorBoardURL)
	set(&cfg.Drive.VoltageIn, d.VoltageIn)
	set(&cfg.Drive.VoltageOut, d.VoltageOut)
	set(&ap.Odometry.WheelBase, d.WheelBase)
	set(&ap.Odometry.MaxWheelSpeed, d.MaxWheelSpeed)
	set(&ap.Follow.MaxWheelSpeed, d.MaxWheelSpeed)

	// Tracking
	t := f.Tracking
	if t.Kind != nil {
		ap.Tracking.Kind = tracking.Kind(*t.Kind)
	}
	set(&ap.Tracking.ConfidenceFloor, t.ConfidenceFloor)
	set(&ap.Reacquire.ConfidenceFloor, t.ConfidenceFloor)
	if err := duration(&ap.Tracking.SwapAfter, t.SwapAfter, "tracking.swap_after"); err != nil {
		return err
	}

	// Reacquire
	r := f.Reacquire
	if r.CameraFOVDegrees != nil {
		ap.Reacquire.CameraFOV = *r.CameraFOVDegrees * math.Pi / 180
	}
	set(&ap.Reacquire.SearchSpeed, r.SearchSpeed)
	set(&ap.Reacquire.ExpandedSpeed, r.ExpandedSpeed)
	set(&ap.Reacquire.DriveSpeed, r.DriveSpeed)
	if err := firstErr(
		duration(&ap.Reacquire.LossDelay, r.LossDelay, "reacquire.loss_delay"),
		duration(&ap.Reacquire.AcquireTimeout, r.AcquireTimeout, "reacquire.acquire_timeout"),
		duration(&ap.Reacquire.LocalTimeout, r.LocalTimeout, "reacquire.local_timeout"),
		duration(&ap.Reacquire.ExpandedTimeout, r.ExpandedTimeout, "reacquire.expanded_timeout"),
		duration(&ap.Reacquire.ReturnTimeout, r.ReturnTimeout, "reacquire.return_timeout"),
		duration(&ap.Reacquire.WaitTimeout, r.WaitTimeout, "reacquire.wait_timeout"),
	); err != nil {
		return err
	}
	if ap.Reacquire.ExpandedTimeout <= ap.Reacquire.LocalTimeout {
		return fmt.Errorf("reacquire.expanded_timeout %s must exceed local_timeout %s",
			ap.Reacquire.ExpandedTimeout, ap.Reacquire.LocalTimeout)
	}

	// Orientation
	o := f.Orientation
	set(&ap.Orientation.Margin, o.Margin)
	set(&ap.Orientation.Attempts, o.Attempts)
	set(&ap.Orientation.RotationSpeed, o.RotationSpeed)
	if err := duration(&ap.Orientation.RotationTimeout, o.RotationTimeout, "orientation.rotation_timeout"); err != nil {
		return err
	}

	// Camera
	c := f.Camera
	set(&cfg.Camera.Device, c.Device)
	set(&cfg.Camera.Width, c.Width)
	set(&cfg.Camera.Height, c.Height)
	set(&cfg.Camera.Framerate, c.Framerate)
	set(&cfg.Camera.Flipped, c.Flipped)

	// Web
	w := f.Web
	set(&cfg.Web.Port, w.Port)
	set(&cfg.Web.StaticDir, w.StaticDir)
	return duration(&cfg.Web.TelemetryInterval, w.TelemetryInterval, "web.telemetry_interval")
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
