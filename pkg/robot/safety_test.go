package robot

import (
	"encoding/json"
	"math"
	"testing"
)

func TestClampGoals(t *testing.T) {
	limit := ScalarLimit(10)

	tests := []struct {
		name     string
		goal     float64
		present  float64
		expected float64
	}{
		{"within limit", 5, 0, 5},
		{"at limit", 10, 0, 10},
		{"above limit", 50, 0, 10},
		{"below negative limit", -50, 0, -10},
		{"offset present", 25, 20, 25},
		{"offset present clamped", 45, 20, 30},
		{"no movement", 7, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			goals := map[MotorName]float64{ArmElbowFlex: tt.goal}
			present := map[MotorName]float64{ArmElbowFlex: tt.present}

			got := clampGoals(goals, present, limit)[ArmElbowFlex]
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Fatalf("clamped goal = %f, want %f", got, tt.expected)
			}

			// The clamp never exceeds the limit and never reverses the
			// direction of the request.
			delta := got - tt.present
			if math.Abs(delta) > 10+1e-9 {
				t.Errorf("clamped delta %f exceeds limit", delta)
			}
			origDelta := tt.goal - tt.present
			if origDelta != 0 && delta != 0 && math.Signbit(delta) != math.Signbit(origDelta) {
				t.Errorf("clamped delta %f reverses direction of %f", delta, origDelta)
			}
		})
	}
}

func TestClampGoals_PerMotor(t *testing.T) {
	limit := PerMotorLimit(map[MotorName]float64{ArmGripper: 5})

	goals := map[MotorName]float64{
		ArmGripper:     80, // limited to present+5
		ArmShoulderPan: 80, // unlimited
	}
	present := map[MotorName]float64{
		ArmGripper:     50,
		ArmShoulderPan: 0,
	}

	got := clampGoals(goals, present, limit)
	if got[ArmGripper] != 55 {
		t.Errorf("gripper goal = %f, want 55", got[ArmGripper])
	}
	if got[ArmShoulderPan] != 80 {
		t.Errorf("shoulder pan goal = %f, want 80 (no limit configured)", got[ArmShoulderPan])
	}
}

func TestClampGoals_NoPresentReading(t *testing.T) {
	limit := ScalarLimit(1)
	goals := map[MotorName]float64{ArmWristFlex: 99}

	got := clampGoals(goals, map[MotorName]float64{}, limit)
	if got[ArmWristFlex] != 99 {
		t.Errorf("goal without present reading = %f, want passthrough 99", got[ArmWristFlex])
	}
}

func TestSafetyLimit_JSON(t *testing.T) {
	t.Run("scalar", func(t *testing.T) {
		var l SafetyLimit
		if err := json.Unmarshal([]byte(`12.5`), &l); err != nil {
			t.Fatal(err)
		}
		if got := l.LimitFor(ArmGripper); got != 12.5 {
			t.Errorf("LimitFor = %f, want 12.5", got)
		}
	})

	t.Run("per motor", func(t *testing.T) {
		var l SafetyLimit
		if err := json.Unmarshal([]byte(`{"arm_gripper": 5, "arm_elbow_flex": 20}`), &l); err != nil {
			t.Fatal(err)
		}
		if got := l.LimitFor(ArmGripper); got != 5 {
			t.Errorf("gripper limit = %f, want 5", got)
		}
		if got := l.LimitFor(ArmShoulderPan); !math.IsInf(got, 1) {
			t.Errorf("unlisted motor limit = %f, want +Inf", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		var l SafetyLimit
		if err := json.Unmarshal([]byte(`"fast"`), &l); err == nil {
			t.Error("expected error for non-numeric limit")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		orig := ScalarLimit(7)
		data, err := json.Marshal(orig)
		if err != nil {
			t.Fatal(err)
		}
		var back SafetyLimit
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if back.LimitFor(ArmGripper) != 7 {
			t.Errorf("round-trip limit = %f, want 7", back.LimitFor(ArmGripper))
		}
	})
}

func TestSafetyLimit_NilMeansUnlimited(t *testing.T) {
	var l *SafetyLimit
	if got := l.LimitFor(ArmGripper); !math.IsInf(got, 1) {
		t.Errorf("nil limit = %f, want +Inf", got)
	}
}
