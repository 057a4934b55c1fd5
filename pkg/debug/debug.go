// Package debug provides global switches for very verbose logging.
package debug

import "github.com/teslashibe/go-borg/internal/log"

// Enabled controls whether general debug logging is active
var Enabled bool

// Tracking controls per-frame tracker/controller logs (bbox, confidence, wheel speeds).
// Use --debug-tracking to enable these; they run at frame rate.
var Tracking bool

// Log emits a debug record only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.Info(msg, args...)
	}
}

// TrackLog emits a per-frame record only if tracking debug mode is enabled
func TrackLog(msg string, args ...any) {
	if Tracking {
		log.Info(msg, append([]any{"stream", "tracking"}, args...)...)
	}
}
