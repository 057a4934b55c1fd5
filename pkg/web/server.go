// Package web exposes the autopilot over HTTP: a REST API for commands and
// a websocket stream of telemetry.
package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/autopilot"
	"github.com/teslashibe/go-borg/pkg/hub"
	"github.com/teslashibe/go-borg/pkg/safety"
	"github.com/teslashibe/go-borg/pkg/vision"
)

// Autopilot is the part of the autopilot the server drives.
type Autopilot interface {
	SelectTarget(box vision.BoundingBox, label string) (autopilot.SessionID, error)
	CancelSession(id autopilot.SessionID) error
	SetMode(m safety.Mode)
	Drive(left, right float64) error
	EmergencyStop(by, reason string)
	ClearEmergencyStop(by string) error
	EmergencyHistory() []safety.StopEvent
	ResetOrientation()
	Labels() []string
	Tuning() autopilot.Tuning
	SetTuning(t autopilot.Tuning) error
	Telemetry() autopilot.Telemetry
}

// Config holds the server settings.
type Config struct {
	Port              string        // Listen port
	TelemetryInterval time.Duration // Websocket telemetry period
	StaticDir         string        // Optional directory served at /
}

// DefaultConfig returns the recommended configuration.
func DefaultConfig() Config {
	return Config{
		Port:              "8080",
		TelemetryInterval: 200 * time.Millisecond,
	}
}

// Server is the HTTP front end.
type Server struct {
	cfg Config
	ap  Autopilot
	app *fiber.App

	telemetryHub *hub.Hub
}

// NewServer creates a server over ap.
func NewServer(cfg Config, ap Autopilot) *Server {
	if cfg.TelemetryInterval <= 0 {
		cfg.TelemetryInterval = DefaultConfig().TelemetryInterval
	}
	s := &Server{
		cfg:          cfg,
		ap:           ap,
		telemetryHub: hub.New("telemetry"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "borg",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/telemetry", s.handleTelemetry)
	api.Post("/target", s.handleSelectTarget)
	api.Post("/session/cancel", s.handleCancelSession)
	api.Post("/mode", s.handleSetMode)
	api.Post("/drive", s.handleDrive)
	api.Post("/estop", s.handleEmergencyStop)
	api.Post("/estop/clear", s.handleClearEmergencyStop)
	api.Get("/estop/history", s.handleEmergencyHistory)
	api.Post("/orientation/reset", s.handleResetOrientation)
	api.Get("/calibrations", s.handleCalibrations)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.handleTelemetryWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.telemetryHub.Run(ctx)
	go s.broadcastTelemetry(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("web server listening", "addr", "http://localhost:"+s.cfg.Port)
		errCh <- s.app.Listen(":" + s.cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(2 * time.Second); err != nil {
			log.Warn("web shutdown", "error", err)
		}
		return nil
	}
}

// broadcastTelemetry pushes telemetry to websocket clients at a fixed rate.
func (s *Server) broadcastTelemetry(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TelemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.telemetryHub.ClientCount() == 0 {
				continue
			}
			if err := s.telemetryHub.BroadcastJSON("telemetry", s.ap.Telemetry()); err != nil {
				log.Warn("telemetry encode failed", "error", err)
			}
		}
	}
}

// statusFor maps API errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, autopilot.ErrInvalidBox),
		errors.Is(err, autopilot.ErrInvalidTuning),
		errors.Is(err, safety.ErrUnknownMode):
		return fiber.StatusBadRequest
	case errors.Is(err, autopilot.ErrUnknownSession):
		return fiber.StatusNotFound
	case errors.Is(err, autopilot.ErrManualMode),
		errors.Is(err, autopilot.ErrNotManual),
		errors.Is(err, safety.ErrFaultActive),
		errors.Is(err, safety.ErrEmergencyStop),
		errors.Is(err, safety.ErrNotAuthorized):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// errorHandler renders every error as {"error": "..."}. Unknown errors are
// logged and reported without detail.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	code := statusFor(err)
	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		log.Error("request failed", "path", c.Path(), "error", err)
		msg = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
