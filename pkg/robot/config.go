package robot

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gwillem/lekiwi/pkg/camera"
	"github.com/gwillem/lekiwi/pkg/kinematics"
)

const DefaultConfigFile = "lekiwi.json"

// Config holds the robot configuration. Constructed once at process
// start, read-only thereafter.
type Config struct {
	// Port is the serial device of the servo bus.
	Port string `json:"port"`

	// MaxRelativeTarget limits how far one command may move a joint,
	// either a scalar or a per-motor mapping. Nil disables clamping.
	MaxRelativeTarget *SafetyLimit `json:"max_relative_target,omitempty"`

	DisableTorqueOnDisconnect bool `json:"disable_torque_on_disconnect"`

	// UseDegrees normalizes arm joints to degrees instead of [-100, 100].
	UseDegrees bool `json:"use_degrees,omitempty"`

	// Base geometry overrides; zero values take the LeKiwi defaults.
	WheelRadius float64 `json:"wheel_radius,omitempty"`
	BaseRadius  float64 `json:"base_radius,omitempty"`
	MaxWheelRaw int     `json:"max_wheel_raw,omitempty"`

	CalibrationFile string `json:"calibration_file,omitempty"`

	Cameras map[string]camera.Config `json:"cameras,omitempty"`
}

// DefaultConfig returns the stock LeKiwi setup: bus on /dev/ttyACM0,
// front and wrist cameras.
func DefaultConfig() Config {
	return Config{
		Port:                      "/dev/ttyACM0",
		DisableTorqueOnDisconnect: true,
		Cameras: map[string]camera.Config{
			"front": {Path: "/dev/video0", Rotation: camera.Rotation180},
			"wrist": {Path: "/dev/video2", Rotation: camera.Rotation90},
		},
	}
}

// Geometry returns the base geometry with config overrides applied.
func (c Config) Geometry() kinematics.Geometry {
	return kinematics.Geometry{
		WheelRadius: c.WheelRadius,
		BaseRadius:  c.BaseRadius,
		MaxRaw:      c.MaxWheelRaw,
	}
}

// LoadConfig loads configuration from the default config file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists.
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
