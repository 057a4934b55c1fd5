// Package config loads the borg configuration: a JSON file laid over the
// package defaults, then environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/teslashibe/go-borg/pkg/autopilot"
	"github.com/teslashibe/go-borg/pkg/follow"
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/vision"
	"github.com/teslashibe/go-borg/pkg/web"
)

// maxFileSize bounds the config file.
const maxFileSize = 1 << 20

// ErrMissingSection is returned when a config file lacks a required section.
var ErrMissingSection = errors.New("config: missing required section")

// Sections every config file must carry, even if empty.
var Sections = []string{"safety", "drive", "follow", "tracking", "reacquire", "orientation", "camera", "web"}

// Drive configures the motor board.
type Drive struct {
	MotorBoardURL string  // Empty selects the simulated driver
	VoltageIn     float64 // Battery voltage
	VoltageOut    float64 // Motor rated voltage
}

// PowerScale is the maximum motor power the board may apply.
func (d Drive) PowerScale() float64 {
	return robot.PowerScale(d.VoltageIn, d.VoltageOut)
}

// Config is the fully resolved configuration.
type Config struct {
	Autopilot autopilot.Config
	Camera    vision.CameraConfig
	Web       web.Config
	Drive     Drive
	LogLevel  string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Autopilot: autopilot.DefaultConfig(),
		Camera:    vision.DefaultCameraConfig(),
		Web:       web.DefaultConfig(),
		Drive:     Drive{VoltageIn: 12.0, VoltageOut: 11.4},
		LogLevel:  "info",
	}
}

// Load reads the file named by BORG_CONFIG (defaults only when unset) and
// applies the environment overrides.
func Load() (Config, error) {
	return LoadPath(os.Getenv(EnvConfig))
}

// LoadPath is Load with an explicit file; an empty path means defaults.
func LoadPath(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := f.Apply(&cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// LoadFile parses and validates a config file.
func LoadFile(path string) (*File, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a config document and checks its sections.
func Parse(data []byte) (*File, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	for _, name := range Sections {
		if _, ok := sections[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingSection, name)
		}
	}

	f := &File{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return f, nil
}

// duration parses an optional duration string into dst.
func duration(dst *time.Duration, s *string, name string) error {
	if s == nil || *s == "" {
		return nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, *s, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *s)
	}
	*dst = d
	return nil
}

// set copies an optional value into dst.
func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Preset returns the named follow preset.
func Preset(name string) (follow.Config, error) {
	switch name {
	case "", "default":
		return follow.DefaultConfig(), nil
	case "indoor":
		return follow.IndoorConfig(), nil
	case "outdoor":
		return follow.OutdoorConfig(), nil
	}
	return follow.Config{}, fmt.Errorf("unknown follow preset %q", name)
}
