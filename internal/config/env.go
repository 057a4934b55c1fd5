package config

import (
	"os"
	"strings"
)

// Environment overrides.
const (
	EnvConfig        = "BORG_CONFIG"
	EnvPort          = "BORG_PORT"
	EnvLogLevel      = "BORG_LOG_LEVEL"
	EnvMotorBoardURL = "MOTOR_BOARD_URL"
)

// applyEnv lays the environment over cfg.
func applyEnv(cfg *Config) {
	if port := os.Getenv(EnvPort); port != "" {
		cfg.Web.Port = port
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}
	if url := os.Getenv(EnvMotorBoardURL); url != "" {
		cfg.Drive.MotorBoardURL = url
	}
}
