package robot

import (
	"fmt"
	"math"
)

// Resolution of the STS3215 position encoder: one full mechanical
// revolution covers raw ticks 0-4095.
const (
	FullTurnMin = 0
	FullTurnMax = 4095
)

// MotorCalibration holds the zero-reference and motion-range bounds for
// a single motor. Records are immutable once written to the bus for a
// session.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds the record set for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// Validate checks the structural invariants of a record.
func (c MotorCalibration) Validate() error {
	if c.RangeMin >= c.RangeMax {
		return fmt.Errorf("invalid range: min (%d) must be less than max (%d)", c.RangeMin, c.RangeMax)
	}
	if c.DriveMode != 0 && c.DriveMode != 1 {
		return fmt.Errorf("invalid drive mode: %d", c.DriveMode)
	}
	return nil
}

// Normalize converts a raw servo position to a normalized value in the
// given mode.
func (c MotorCalibration) Normalize(mode NormMode, raw int) float64 {
	center := float64(c.RangeMin+c.RangeMax) / 2
	halfRange := float64(c.RangeMax-c.RangeMin) / 2
	if halfRange == 0 {
		return 0
	}

	switch mode {
	case NormRange0To100:
		norm := (float64(raw) - float64(c.RangeMin)) / (2 * halfRange) * 100
		return clampFloat(norm, 0, 100)
	case NormDegrees:
		// Physical degrees about the range center: 4096 ticks per turn.
		return (float64(raw) - center) * 360 / 4096
	default:
		norm := (float64(raw) - center) / halfRange * 100
		return clampFloat(norm, -100, 100)
	}
}

// Denormalize converts a normalized value back to a raw servo position,
// rounded and clamped to the calibrated range.
func (c MotorCalibration) Denormalize(mode NormMode, norm float64) int {
	center := float64(c.RangeMin+c.RangeMax) / 2
	halfRange := float64(c.RangeMax-c.RangeMin) / 2

	var raw float64
	switch mode {
	case NormRange0To100:
		raw = float64(c.RangeMin) + clampFloat(norm, 0, 100)/100*2*halfRange
	case NormDegrees:
		raw = center + norm*4096/360
	default:
		raw = center + clampFloat(norm, -100, 100)/100*halfRange
	}

	return clampInt(int(math.Round(raw)), c.RangeMin, c.RangeMax)
}

// Validate checks every record in the set.
func (c Calibration) Validate() error {
	for name, mc := range c {
		if err := mc.Validate(); err != nil {
			return fmt.Errorf("motor %s: %w", name, err)
		}
	}
	return nil
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
