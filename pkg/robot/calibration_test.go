package robot

import (
	"math"
	"path/filepath"
	"testing"
)

func TestMotorCalibration_Normalize(t *testing.T) {
	cal := MotorCalibration{RangeMin: 1000, RangeMax: 3000}

	tests := []struct {
		mode     NormMode
		raw      int
		expected float64
	}{
		{NormRangeM100, 1000, -100},
		{NormRangeM100, 3000, 100},
		{NormRangeM100, 2000, 0},
		{NormRangeM100, 2500, 50},
		{NormRangeM100, 500, -100}, // clamped outside the range
		{NormRange0To100, 1000, 0},
		{NormRange0To100, 3000, 100},
		{NormRange0To100, 1500, 25},
		{NormDegrees, 2000, 0},
		{NormDegrees, 2000 + 1024, 90}, // 1024 ticks = a quarter turn
		{NormDegrees, 2000 - 1024, -90},
	}

	for _, tt := range tests {
		got := cal.Normalize(tt.mode, tt.raw)
		if math.Abs(got-tt.expected) > 0.001 {
			t.Errorf("Normalize(mode %d, %d) = %f, want %f", tt.mode, tt.raw, got, tt.expected)
		}
	}
}

func TestMotorCalibration_Denormalize(t *testing.T) {
	cal := MotorCalibration{RangeMin: 1000, RangeMax: 3000}

	tests := []struct {
		mode     NormMode
		norm     float64
		expected int
	}{
		{NormRangeM100, -100, 1000},
		{NormRangeM100, 100, 3000},
		{NormRangeM100, 0, 2000},
		{NormRangeM100, 50, 2500},
		{NormRangeM100, 250, 3000}, // clamped
		{NormRange0To100, 0, 1000},
		{NormRange0To100, 100, 3000},
		{NormRange0To100, 25, 1500},
		{NormDegrees, 0, 2000},
		{NormDegrees, 90, 3000}, // 1024 ticks past center, clamped to range max
		{NormDegrees, -45, 1488},
	}

	for _, tt := range tests {
		got := cal.Denormalize(tt.mode, tt.norm)
		if got != tt.expected {
			t.Errorf("Denormalize(mode %d, %f) = %d, want %d", tt.mode, tt.norm, got, tt.expected)
		}
	}
}

func TestMotorCalibration_RoundTrip(t *testing.T) {
	cal := MotorCalibration{RangeMin: 823, RangeMax: 3540}

	for _, mode := range []NormMode{NormRangeM100, NormRange0To100, NormDegrees} {
		for raw := cal.RangeMin; raw <= cal.RangeMax; raw += 100 {
			norm := cal.Normalize(mode, raw)
			back := cal.Denormalize(mode, norm)
			if math.Abs(float64(back-raw)) > 1 {
				t.Errorf("mode %d round-trip failed: %d -> %f -> %d", mode, raw, norm, back)
			}
		}
	}
}

func TestMotorCalibration_Validate(t *testing.T) {
	valid := MotorCalibration{ID: 1, RangeMin: 100, RangeMax: 200}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}

	inverted := MotorCalibration{ID: 1, RangeMin: 200, RangeMax: 100}
	if err := inverted.Validate(); err == nil {
		t.Error("inverted range accepted")
	}

	degenerate := MotorCalibration{ID: 1, RangeMin: 100, RangeMax: 100}
	if err := degenerate.Validate(); err == nil {
		t.Error("degenerate range accepted")
	}

	badDrive := MotorCalibration{ID: 1, RangeMin: 100, RangeMax: 200, DriveMode: 2}
	if err := badDrive.Validate(); err == nil {
		t.Error("invalid drive mode accepted")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "calibration.json")
	store := NewFileStore(path)

	// No file yet: no calibration, no error.
	cal, err := store.Load()
	if err != nil {
		t.Fatalf("Load of missing file returned error: %v", err)
	}
	if cal != nil {
		t.Fatalf("Load of missing file returned records: %v", cal)
	}

	orig := testCalibration()
	if err := store.Save(orig); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded) != len(orig) {
		t.Fatalf("loaded %d records, want %d", len(loaded), len(orig))
	}
	for name, mc := range orig {
		if loaded[name] != mc {
			t.Errorf("%s: loaded %+v, want %+v", name, loaded[name], mc)
		}
	}
}

func TestFileStore_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	store := NewFileStore(path)

	bad := Calibration{
		ArmGripper: MotorCalibration{ID: 6, RangeMin: 300, RangeMax: 200},
	}
	if err := store.Save(bad); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := store.Load(); err == nil {
		t.Error("expected invalid persisted records to be rejected on load")
	}
}
