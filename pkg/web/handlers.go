package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/autopilot"
	"github.com/teslashibe/go-borg/pkg/hub"
	"github.com/teslashibe/go-borg/pkg/safety"
	"github.com/teslashibe/go-borg/pkg/vision"
)

type targetRequest struct {
	vision.BoundingBox
	Label string `json:"label"`
}

type sessionRequest struct {
	Session autopilot.SessionID `json:"session"`
}

type modeRequest struct {
	Mode safety.Mode `json:"mode"`
}

type driveRequest struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

type stopRequest struct {
	Reason string `json:"reason"`
}

func badBody(err error) error {
	log.Debug("bad request body", "error", err)
	return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
}

// operator names the caller in the stop history.
func operator(c *fiber.Ctx) string {
	return "web:" + c.IP()
}

func (s *Server) handleTelemetry(c *fiber.Ctx) error {
	return c.JSON(s.ap.Telemetry())
}

func (s *Server) handleSelectTarget(c *fiber.Ctx) error {
	var req targetRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	id, err := s.ap.SelectTarget(req.BoundingBox, req.Label)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(sessionRequest{Session: id})
}

func (s *Server) handleCancelSession(c *fiber.Ctx) error {
	var req sessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	if err := s.ap.CancelSession(req.Session); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSetMode(c *fiber.Ctx) error {
	var req modeRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	s.ap.SetMode(req.Mode)
	return c.JSON(modeRequest{Mode: req.Mode})
}

func (s *Server) handleDrive(c *fiber.Ctx) error {
	var req driveRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	if err := s.ap.Drive(req.Left, req.Right); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleEmergencyStop(c *fiber.Ctx) error {
	var req stopRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badBody(err)
		}
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}
	s.ap.EmergencyStop(operator(c), req.Reason)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleClearEmergencyStop(c *fiber.Ctx) error {
	if err := s.ap.ClearEmergencyStop(operator(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleEmergencyHistory(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"events": s.ap.EmergencyHistory()})
}

func (s *Server) handleResetOrientation(c *fiber.Ctx) error {
	s.ap.ResetOrientation()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCalibrations(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"labels": s.ap.Labels()})
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.ap.Tuning())
}

func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	t := s.ap.Tuning()
	if err := c.BodyParser(&t); err != nil {
		return badBody(err)
	}
	if err := s.ap.SetTuning(t); err != nil {
		return err
	}
	return c.JSON(t)
}

// handleTelemetryWS streams telemetry until the client disconnects.
func (s *Server) handleTelemetryWS(c *websocket.Conn) {
	hub.NewClient(s.telemetryHub, c).Run()
}
