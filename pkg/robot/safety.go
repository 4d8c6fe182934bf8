package robot

import (
	"encoding/json"
	"fmt"
	"math"
)

// SafetyLimit caps how far a single command may move a joint from its
// present position, in normalized units. Configured either as one
// scalar for all motors or as a per-motor mapping; motors absent from
// the mapping are unlimited.
type SafetyLimit struct {
	scalar   *float64
	perMotor map[MotorName]float64
}

// ScalarLimit builds a limit that applies to every motor.
func ScalarLimit(v float64) *SafetyLimit {
	return &SafetyLimit{scalar: &v}
}

// PerMotorLimit builds a limit with per-motor values.
func PerMotorLimit(m map[MotorName]float64) *SafetyLimit {
	return &SafetyLimit{perMotor: m}
}

// LimitFor returns the limit for a motor, +Inf when none applies.
func (l *SafetyLimit) LimitFor(name MotorName) float64 {
	if l == nil {
		return math.Inf(1)
	}
	if l.scalar != nil {
		return *l.scalar
	}
	if v, ok := l.perMotor[name]; ok {
		return v
	}
	return math.Inf(1)
}

// UnmarshalJSON accepts either a number or a per-motor object.
func (l *SafetyLimit) UnmarshalJSON(data []byte) error {
	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		l.scalar = &scalar
		l.perMotor = nil
		return nil
	}

	var perMotor map[MotorName]float64
	if err := json.Unmarshal(data, &perMotor); err != nil {
		return fmt.Errorf("max_relative_target must be a number or a per-motor object: %w", err)
	}
	l.scalar = nil
	l.perMotor = perMotor
	return nil
}

// MarshalJSON emits the form the limit was configured with.
func (l SafetyLimit) MarshalJSON() ([]byte, error) {
	if l.scalar != nil {
		return json.Marshal(*l.scalar)
	}
	return json.Marshal(l.perMotor)
}

// clampGoals limits each goal to at most the configured distance from
// the present position. A clamped goal still moves in the direction of
// the original request, just not as far. Goals for motors without a
// present reading pass through unchanged.
func clampGoals(goals, present map[MotorName]float64, limit *SafetyLimit) map[MotorName]float64 {
	clamped := make(map[MotorName]float64, len(goals))
	for name, goal := range goals {
		p, ok := present[name]
		if !ok {
			clamped[name] = goal
			continue
		}
		delta := goal - p
		if lim := limit.LimitFor(name); math.Abs(delta) > lim {
			goal = p + math.Copysign(lim, delta)
		}
		clamped[name] = goal
	}
	return clamped
}
