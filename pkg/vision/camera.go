package vision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-borg/internal/log"
)

// ErrCameraClosed is returned by NextFrame after Close.
var ErrCameraClosed = errors.New("vision: camera closed")

// CameraConfig holds capture parameters.
type CameraConfig struct {
	Device    int  `json:"device"`    // V4L2 device index
	Width     int  `json:"width"`     // Frame width in pixels
	Height    int  `json:"height"`    // Frame height in pixels
	Framerate int  `json:"framerate"` // Target FPS (the pipeline tolerates slower)
	Flipped   bool `json:"flipped"`   // Camera is mounted upside down on the chassis
}

// DefaultCameraConfig matches the stock Pi camera setup.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 30,
		Flipped:   true,
	}
}

// Validate returns a list of problems with the configuration.
func (c CameraConfig) Validate() []string {
	var errs []string
	if c.Width < 32 || c.Width > 4096 {
		errs = append(errs, fmt.Sprintf("width %d out of range", c.Width))
	}
	if c.Height < 32 || c.Height > 4096 {
		errs = append(errs, fmt.Sprintf("height %d out of range", c.Height))
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errs = append(errs, fmt.Sprintf("framerate %d out of range", c.Framerate))
	}
	return errs
}

// Camera is a FrameSource backed by an OpenCV capture device. A background
// goroutine keeps only the newest frame so a slow consumer never sees stale
// images.
type Camera struct {
	cfg     CameraConfig
	capture *gocv.VideoCapture

	frames chan Frame
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// OpenCamera opens the capture device and starts grabbing frames.
func OpenCamera(cfg CameraConfig) (*Camera, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}

	capture, err := gocv.VideoCaptureDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("camera %d did not open", cfg.Device)
	}

	c := &Camera{
		cfg:     cfg,
		capture: capture,
		frames:  make(chan Frame, 1),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.grab()

	log.Info("camera started", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return c, nil
}

// grab reads frames as fast as the device delivers them.
func (c *Camera) grab() {
	defer c.wg.Done()

	misses := 0
	for {
		select {
		case <-c.done:
			return
		default:
		}

		img := gocv.NewMat()
		if ok := c.capture.Read(&img); !ok || img.Empty() {
			img.Close()
			misses++
			if misses%30 == 1 {
				log.Warn("camera read failed", "misses", misses)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		misses = 0

		frame := Frame{Mat: img, Captured: time.Now()}
		if c.cfg.Flipped {
			rotated, err := frame.Rotate180()
			frame.Close()
			if err != nil {
				continue
			}
			frame = rotated
		}

		c.publish(frame)
	}
}

// publish replaces any unread frame with the new one.
func (c *Camera) publish(frame Frame) {
	for {
		select {
		case c.frames <- frame:
			return
		default:
		}
		select {
		case old := <-c.frames:
			old.Close()
		default:
		}
	}
}

// NextFrame blocks until a new frame is available.
func (c *Camera) NextFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, ErrCameraClosed
	case f := <-c.frames:
		return f, nil
	}
}

// Close stops capture and releases the device.
func (c *Camera) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.wg.Wait()
		select {
		case f := <-c.frames:
			f.Close()
		default:
		}
		c.capture.Close()
	})
	return nil
}
