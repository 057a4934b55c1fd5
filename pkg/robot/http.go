package robot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-borg/internal/httpc"
)

// HTTPDriverTimeout bounds every board request. It is kept below the hardware
// failsafe so a slow request cannot hold the motor consumer past a refresh.
const HTTPDriverTimeout = 200 * time.Millisecond

// HTTPDriver implements Driver and StatusIndicator against a motor-board
// bridge daemon exposing a small JSON API:
//
//	POST /api/motors  {"left": 0.5, "right": 0.5}
//	GET  /api/battery {"voltage": 11.8}
//	GET  /api/faults  {"flags": 0}
//	POST /api/leds    {"pattern": "tracking"}
type HTTPDriver struct {
	BaseURL  string
	MaxPower float64

	client *http.Client
}

// NewHTTPDriver creates a driver talking to the bridge at baseURL.
func NewHTTPDriver(baseURL string, maxPower float64) *HTTPDriver {
	if maxPower <= 0 || maxPower > 1 {
		maxPower = 1
	}
	return &HTTPDriver{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		MaxPower: maxPower,
		client:   httpc.NewClient(HTTPDriverTimeout),
	}
}

// SetWheelSpeeds sends a scaled command to the board.
func (d *HTTPDriver) SetWheelSpeeds(left, right float64) error {
	cmd := MotorCommand{Left: left, Right: right}.Clamp().Scale(d.MaxPower)
	return d.post("/api/motors", cmd)
}

// BatteryVoltage reads the supply voltage.
func (d *HTTPDriver) BatteryVoltage() (float64, error) {
	var body struct {
		Voltage float64 `json:"voltage"`
	}
	if err := d.get("/api/battery", &body); err != nil {
		return 0, err
	}
	return body.Voltage, nil
}

// FaultFlags reads the drive fault bits.
func (d *HTTPDriver) FaultFlags() (FaultFlags, error) {
	var body struct {
		Flags uint8 `json:"flags"`
	}
	if err := d.get("/api/faults", &body); err != nil {
		return 0, err
	}
	return FaultFlags(body.Flags), nil
}

// SetPattern sets the LED pattern.
func (d *HTTPDriver) SetPattern(p Pattern) error {
	return d.post("/api/leds", map[string]string{"pattern": p.String()})
}

func (d *HTTPDriver) post(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", path, err)
	}

	resp, err := d.client.Post(d.BaseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDriverOffline, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("board %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (d *HTTPDriver) get(path string, out any) error {
	resp, err := d.client.Get(d.BaseURL + path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDriverOffline, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("board %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
