package main

import (
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/gwillem/lekiwi/internal/log"
	"github.com/gwillem/lekiwi/pkg/camera"
	"github.com/gwillem/lekiwi/pkg/feetechbus"
	"github.com/gwillem/lekiwi/pkg/robot"
)

type Options struct {
	Verbose bool   `short:"v" long:"verbose" description:"Enable debug logging"`
	Config  string `short:"c" long:"config" description:"Config file path" default:"lekiwi.json"`

	Calibrate CalibrateCommand `command:"calibrate" description:"Run the interactive calibration procedure"`
	Observe   ObserveCommand   `command:"observe" description:"Read and print one observation snapshot"`
	Drive     DriveCommand     `command:"drive" alias:"teleop" description:"Drive the base from the keyboard"`
	Stop      StopCommand      `command:"stop" description:"Write zero velocity to all wheel motors"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "LeKiwi - mobile manipulator control CLI"
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		level := "info"
		if opts.Verbose {
			level = "debug"
		}
		log.Init(level)
		return cmd.Execute(args)
	}

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the configured file, falling back to stock defaults
// when it does not exist yet.
func loadConfig() (robot.Config, bool) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return robot.DefaultConfig(), false
	}
	return *cfg, true
}

func buildBus(cfg robot.Config) *feetechbus.Bus {
	return feetechbus.New(feetechbus.Config{Port: cfg.Port}, robot.Motors(cfg.UseDegrees))
}

// buildRobot assembles the full robot handle from a config.
func buildRobot(cfg robot.Config, withCameras bool) (*robot.Robot, error) {
	cameras := make(map[string]camera.Camera, len(cfg.Cameras))
	if withCameras {
		for key, camCfg := range cfg.Cameras {
			cameras[key] = camera.NewOpenCV(camCfg)
		}
	}
	store := robot.NewFileStore(cfg.CalibrationFile)
	return robot.New(cfg, buildBus(cfg), cameras, store)
}
