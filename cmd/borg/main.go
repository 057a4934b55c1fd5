// borg follows a selected target with a two-wheel robot, stopping safely
// whenever anything goes wrong.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/teslashibe/go-borg/internal/config"
	"github.com/teslashibe/go-borg/internal/log"
	"github.com/teslashibe/go-borg/pkg/autopilot"
	"github.com/teslashibe/go-borg/pkg/debug"
	"github.com/teslashibe/go-borg/pkg/robot"
	"github.com/teslashibe/go-borg/pkg/safety"
	"github.com/teslashibe/go-borg/pkg/vision"
	"github.com/teslashibe/go-borg/pkg/web"
)

type options struct {
	configPath    string
	port          string
	debug         bool
	debugTracking bool
	sim           bool
	simFollow     bool
}

func main() {
	opts := parseFlags()

	cfg, err := config.LoadPath(opts.configPath)
	if err != nil {
		log.Init("info")
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if opts.port != "" {
		cfg.Web.Port = opts.port
	}

	level := cfg.LogLevel
	if opts.debug || opts.debugTracking {
		level = "debug"
	}
	log.Init(level)
	debug.Enabled = opts.debug
	debug.Tracking = opts.debugTracking

	if err := run(opts, cfg); err != nil {
		log.Error("borg stopped", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", os.Getenv(config.EnvConfig), "JSON config file (overrides "+config.EnvConfig+")")
	flag.StringVar(&o.port, "port", "", "Web server port (overrides config and "+config.EnvPort+")")
	flag.BoolVar(&o.debug, "debug", false, "Enable verbose debug logging")
	flag.BoolVar(&o.debugTracking, "debug-tracking", false, "Log every tracking frame")
	flag.BoolVar(&o.sim, "sim", false, "Simulated camera and motors")
	flag.BoolVar(&o.simFollow, "sim-follow", false, "With --sim, start autonomous and follow the simulated target")
	flag.Parse()
	return o
}

func run(opts options, cfg config.Config) error {
	source, closeSource, err := openSource(opts, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	driver, indicator := openDriver(opts, cfg)

	ap, err := autopilot.New(cfg.Autopilot, source, driver, indicator)
	if err != nil {
		return err
	}
	server := web.NewServer(cfg.Web, ap)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			log.Error("web server error", "error", err)
			cancel()
		}
	}()

	if synth, ok := source.(*vision.SyntheticSource); ok && opts.simFollow {
		go followSimulatedTarget(ctx, ap, synth)
	}

	log.Info("borg running", "sim", opts.sim, "port", cfg.Web.Port, "mode", ap.Mode())
	err = ap.Run(ctx)
	cancel()
	wg.Wait()
	log.Info("borg shut down")
	return err
}

// openSource opens the camera, or the synthetic scene in simulation.
func openSource(opts options, cfg config.Config) (vision.FrameSource, func(), error) {
	if opts.sim {
		src := vision.NewSyntheticSource(cfg.Camera.Width, cfg.Camera.Height, cfg.Camera.Framerate)
		return src, func() { src.Close() }, nil
	}
	cam, err := vision.OpenCamera(cfg.Camera)
	if err != nil {
		return nil, nil, err
	}
	return cam, func() { cam.Close() }, nil
}

// openDriver picks the motor board, falling back to the simulated driver
// when no board URL is configured.
func openDriver(opts options, cfg config.Config) (robot.Driver, robot.StatusIndicator) {
	scale := cfg.Drive.PowerScale()
	if opts.sim || cfg.Drive.MotorBoardURL == "" {
		if !opts.sim {
			log.Warn("no motor board configured, using simulated driver", "env", config.EnvMotorBoardURL)
		}
		drv := robot.NewSimDriver(scale)
		return drv, drv
	}
	log.Info("motor board", "url", cfg.Drive.MotorBoardURL, "power_scale", scale)
	drv := robot.NewHTTPDriver(cfg.Drive.MotorBoardURL, scale)
	return drv, drv
}

// followSimulatedTarget switches to autonomous mode and selects the
// synthetic block once the pipeline is producing frames.
func followSimulatedTarget(ctx context.Context, ap *autopilot.Autopilot, src *vision.SyntheticSource) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Second):
	}
	ap.SetMode(safety.Autonomous)
	id, err := ap.SelectTarget(src.Target(time.Now()), "default")
	if err != nil {
		log.Warn("simulated target selection failed", "error", err)
		return
	}
	log.Info("following simulated target", "session", id)
}
