// Package kinematics converts between body-frame velocities and raw
// wheel speed commands for a 3-wheel omnidirectional base.
package kinematics

import (
	"errors"
	"fmt"
	"math"
)

// Default geometry for the LeKiwi base.
const (
	DefaultWheelRadius = 0.05  // meters
	DefaultBaseRadius  = 0.125 // meters, center to wheel contact point
	DefaultMaxRaw      = 3000  // raw ticks/s cap per wheel
)

// One full servo revolution is 4096 raw ticks.
const stepsPerDeg = 4096.0 / 360.0

// Wheel mounting angles in degrees, ordered left, back, right.
// Each wheel's drive direction is offset by -90 degrees from its mount.
var wheelAngles = [3]float64{240, 0, 120}

// ErrSingularGeometry is returned when the wheel mapping matrix cannot
// be inverted. Unreachable with the fixed LeKiwi mounting angles.
var ErrSingularGeometry = errors.New("singular wheel geometry")

// BodyVelocity is a robot-centric motion command or measurement.
type BodyVelocity struct {
	X     float64 // m/s, forward
	Y     float64 // m/s, lateral
	Theta float64 // deg/s, counter-clockwise
}

// WheelSpeeds holds per-wheel raw tick/s values, ordered left, back,
// right. Values are bounded to the signed 16-bit range.
type WheelSpeeds struct {
	Left  int
	Back  int
	Right int
}

// Geometry describes the base. Zero fields take the LeKiwi defaults.
type Geometry struct {
	WheelRadius float64
	BaseRadius  float64
	MaxRaw      int
}

func (g Geometry) withDefaults() Geometry {
	if g.WheelRadius == 0 {
		g.WheelRadius = DefaultWheelRadius
	}
	if g.BaseRadius == 0 {
		g.BaseRadius = DefaultBaseRadius
	}
	if g.MaxRaw == 0 {
		g.MaxRaw = DefaultMaxRaw
	}
	return g
}

// Omni maps body velocities to wheel speeds and back. The mapping
// matrix and its inverse are fixed at construction.
type Omni struct {
	geom Geometry
	m    [3][3]float64
	mInv [3][3]float64
}

// New builds the wheel mapping matrix from the geometry and validates
// it is invertible.
func New(geom Geometry) (*Omni, error) {
	geom = geom.withDefaults()

	var m [3][3]float64
	for i, deg := range wheelAngles {
		a := (deg - 90) * math.Pi / 180
		m[i] = [3]float64{math.Cos(a), math.Sin(a), geom.BaseRadius}
	}

	mInv, ok := invert3x3(m)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrSingularGeometry, m)
	}

	return &Omni{geom: geom, m: m, mInv: mInv}, nil
}

// Forward converts a body velocity to raw wheel speed commands.
//
// If any wheel would exceed the raw cap, all three wheels are scaled by
// the same factor so the largest equals the cap. Scaling uniformly
// preserves the ratio between wheels; clipping them independently would
// change the direction of travel.
func (o *Omni) Forward(v BodyVelocity) WheelSpeeds {
	thetaRad := v.Theta * math.Pi / 180
	vec := [3]float64{v.X, v.Y, thetaRad}

	var degps [3]float64
	for i := range o.m {
		linear := o.m[i][0]*vec[0] + o.m[i][1]*vec[1] + o.m[i][2]*vec[2]
		degps[i] = linear / o.geom.WheelRadius * 180 / math.Pi
	}

	maxRaw := 0.0
	for _, d := range degps {
		if r := math.Abs(d) * stepsPerDeg; r > maxRaw {
			maxRaw = r
		}
	}
	if maxRaw > float64(o.geom.MaxRaw) {
		scale := float64(o.geom.MaxRaw) / maxRaw
		for i := range degps {
			degps[i] *= scale
		}
	}

	return WheelSpeeds{
		Left:  DegPerSecToRaw(degps[0]),
		Back:  DegPerSecToRaw(degps[1]),
		Right: DegPerSecToRaw(degps[2]),
	}
}

// Inverse converts raw wheel speed readings to a body velocity.
func (o *Omni) Inverse(w WheelSpeeds) BodyVelocity {
	var linear [3]float64
	for i, raw := range []int{w.Left, w.Back, w.Right} {
		radps := RawToDegPerSec(raw) * math.Pi / 180
		linear[i] = radps * o.geom.WheelRadius
	}

	var vec [3]float64
	for i := range o.mInv {
		vec[i] = o.mInv[i][0]*linear[0] + o.mInv[i][1]*linear[1] + o.mInv[i][2]*linear[2]
	}

	return BodyVelocity{
		X:     vec[0],
		Y:     vec[1],
		Theta: vec[2] * 180 / math.Pi,
	}
}

// DegPerSecToRaw converts an angular speed to raw ticks/s,
// round-to-nearest, saturated to ±32767. The negative bound is
// -MaxInt16 rather than MinInt16: sign-magnitude registers carry at
// most 15 magnitude bits, so -32768 has no wire representation.
func DegPerSecToRaw(degps float64) int {
	raw := int(math.Round(degps * stepsPerDeg))
	if raw > math.MaxInt16 {
		return math.MaxInt16
	}
	if raw < -math.MaxInt16 {
		return -math.MaxInt16
	}
	return raw
}

// RawToDegPerSec converts raw ticks/s to degrees/s.
func RawToDegPerSec(raw int) float64 {
	return float64(raw) / stepsPerDeg
}

// invert3x3 computes the inverse via the adjugate. Returns false when
// the determinant is effectively zero.
func invert3x3(m [3][3]float64) ([3][3]float64, bool) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-9 {
		return [3][3]float64{}, false
	}

	inv := [3][3]float64{
		{m[1][1]*m[2][2] - m[1][2]*m[2][1], m[0][2]*m[2][1] - m[0][1]*m[2][2], m[0][1]*m[1][2] - m[0][2]*m[1][1]},
		{m[1][2]*m[2][0] - m[1][0]*m[2][2], m[0][0]*m[2][2] - m[0][2]*m[2][0], m[0][2]*m[1][0] - m[0][0]*m[1][2]},
		{m[1][0]*m[2][1] - m[1][1]*m[2][0], m[0][1]*m[2][0] - m[0][0]*m[2][1], m[0][0]*m[1][1] - m[0][1]*m[1][0]},
	}
	for i := range inv {
		for j := range inv[i] {
			inv[i][j] /= det
		}
	}
	return inv, true
}
