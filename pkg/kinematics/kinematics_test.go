package kinematics

import (
	"math"
	"testing"

	"github.com/gwillem/lekiwi/pkg/encoding"
)

func newTestOmni(t *testing.T) *Omni {
	t.Helper()
	o, err := New(Geometry{})
	if err != nil {
		t.Fatalf("New with default geometry returned error: %v", err)
	}
	return o
}

func TestForward_StraightAhead(t *testing.T) {
	o := newTestOmni(t)

	// x=0.1 m/s with r=0.05 and b=0.125 yields wheel linear speeds of
	// about -0.0866, 0, 0.0866 m/s, i.e. about -1130, 0, 1130 ticks/s.
	w := o.Forward(BodyVelocity{X: 0.1})

	if w.Back != 0 {
		t.Errorf("back wheel = %d, want 0", w.Back)
	}
	if math.Abs(float64(w.Left)+1130) > 1 {
		t.Errorf("left wheel = %d, want about -1130", w.Left)
	}
	if math.Abs(float64(w.Right)-1130) > 1 {
		t.Errorf("right wheel = %d, want about 1130", w.Right)
	}
	if w.Left != -w.Right {
		t.Errorf("left (%d) and right (%d) should be symmetric", w.Left, w.Right)
	}
}

func TestForward_PureRotation(t *testing.T) {
	o := newTestOmni(t)

	w := o.Forward(BodyVelocity{Theta: 45})

	// All wheels share the same tangential speed when spinning in place.
	if w.Left != w.Back || w.Back != w.Right {
		t.Errorf("expected equal wheel speeds for pure rotation, got %+v", w)
	}
	if w.Left == 0 {
		t.Error("expected nonzero wheel speeds for pure rotation")
	}
}

func TestRoundTrip(t *testing.T) {
	o := newTestOmni(t)

	tests := []BodyVelocity{
		{X: 0.1},
		{Y: 0.1},
		{Theta: 30},
		{X: 0.05, Y: -0.03, Theta: 10},
		{X: -0.08, Y: 0.02, Theta: -20},
		{},
	}

	for _, v := range tests {
		got := o.Inverse(o.Forward(v))
		// Rounding to whole ticks costs up to half a tick per wheel.
		if math.Abs(got.X-v.X) > 1e-3 || math.Abs(got.Y-v.Y) > 1e-3 {
			t.Errorf("round-trip %+v -> %+v: linear velocity mismatch", v, got)
		}
		if math.Abs(got.Theta-v.Theta) > 0.1 {
			t.Errorf("round-trip %+v -> %+v: angular velocity mismatch", v, got)
		}
	}
}

func TestForward_UniformScaling(t *testing.T) {
	capped, err := New(Geometry{MaxRaw: 3000})
	if err != nil {
		t.Fatal(err)
	}
	uncapped, err := New(Geometry{MaxRaw: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}

	// Fast enough to exceed the 3000 tick/s cap on at least one wheel.
	v := BodyVelocity{X: 0.5, Y: 0.2, Theta: 90}

	free := uncapped.Forward(v)
	scaled := capped.Forward(v)

	maxScaled := 0
	for _, raw := range []int{scaled.Left, scaled.Back, scaled.Right} {
		if abs := int(math.Abs(float64(raw))); abs > maxScaled {
			maxScaled = abs
		}
	}
	if maxScaled != 3000 {
		t.Errorf("largest scaled wheel speed = %d, want exactly 3000", maxScaled)
	}

	// The scaled vector must be a non-negative multiple of the free one:
	// ratios between wheels are preserved.
	maxFree := 0.0
	for _, raw := range []int{free.Left, free.Back, free.Right} {
		if abs := math.Abs(float64(raw)); abs > maxFree {
			maxFree = abs
		}
	}
	scale := 3000 / maxFree

	pairs := [][2]int{
		{free.Left, scaled.Left},
		{free.Back, scaled.Back},
		{free.Right, scaled.Right},
	}
	for i, p := range pairs {
		want := float64(p[0]) * scale
		if math.Abs(want-float64(p[1])) > 1.5 {
			t.Errorf("wheel %d: scaled = %d, want about %.1f", i, p[1], want)
		}
	}
}

func TestDegPerSecToRaw_Saturation(t *testing.T) {
	tests := []struct {
		degps    float64
		expected int
	}{
		{0, 0},
		{90, 1024},
		{-90, -1024},
		{1e6, math.MaxInt16},
		{-1e6, -math.MaxInt16},
	}

	for _, tt := range tests {
		if got := DegPerSecToRaw(tt.degps); got != tt.expected {
			t.Errorf("DegPerSecToRaw(%f) = %d, want %d", tt.degps, got, tt.expected)
		}
	}
}

func TestDegPerSecToRaw_SaturatedValueEncodes(t *testing.T) {
	// The saturated extremes must fit the velocity register's 15
	// magnitude bits; -32768 would not.
	for _, degps := range []float64{1e9, -1e9} {
		raw := DegPerSecToRaw(degps)
		if _, err := encoding.EncodeSignMagnitude(raw, 15); err != nil {
			t.Errorf("DegPerSecToRaw(%g) = %d does not encode: %v", degps, raw, err)
		}
	}
}

func TestRawToDegPerSec(t *testing.T) {
	if got := RawToDegPerSec(4096); math.Abs(got-360) > 1e-9 {
		t.Errorf("RawToDegPerSec(4096) = %f, want 360", got)
	}
	if got := RawToDegPerSec(-1024); math.Abs(got+90) > 1e-9 {
		t.Errorf("RawToDegPerSec(-1024) = %f, want -90", got)
	}
}

func TestInvert3x3_Singular(t *testing.T) {
	singular := [3][3]float64{
		{1, 2, 3},
		{2, 4, 6},
		{0, 1, 1},
	}
	if _, ok := invert3x3(singular); ok {
		t.Error("expected singular matrix to be rejected")
	}
}
