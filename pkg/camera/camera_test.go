package camera

import (
	"encoding/json"
	"testing"
)

func TestRotation_JSONRoundTrip(t *testing.T) {
	for _, r := range []Rotation{RotationNone, Rotation90, Rotation180, Rotation270} {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal %v: %v", r, err)
		}
		var back Rotation
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != r {
			t.Errorf("round-trip %v -> %s -> %v", r, data, back)
		}
	}
}

func TestRotation_UnmarshalUnknown(t *testing.T) {
	var r Rotation
	if err := json.Unmarshal([]byte(`"45"`), &r); err == nil {
		t.Error("expected error for unknown rotation")
	}
}

func TestConfig_JSON(t *testing.T) {
	raw := `{"path": "/dev/video0", "fps": 30, "rotation": "180"}`

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if cfg.Path != "/dev/video0" || cfg.FPS != 30 || cfg.Rotation != Rotation180 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
