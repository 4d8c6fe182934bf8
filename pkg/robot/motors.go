// Package robot provides the LeKiwi robot: connection lifecycle,
// calibration, and the action/observation pipeline over the servo bus.
package robot

import "strings"

// MotorName identifies a motor on the bus.
type MotorName string

// Arm motors (servo IDs 1-6) and base wheels (servo IDs 7-9).
const (
	ArmShoulderPan  MotorName = "arm_shoulder_pan"
	ArmShoulderLift MotorName = "arm_shoulder_lift"
	ArmElbowFlex    MotorName = "arm_elbow_flex"
	ArmWristFlex    MotorName = "arm_wrist_flex"
	ArmWristRoll    MotorName = "arm_wrist_roll"
	ArmGripper      MotorName = "arm_gripper"

	BaseLeftWheel  MotorName = "base_left_wheel"
	BaseBackWheel  MotorName = "base_back_wheel"
	BaseRightWheel MotorName = "base_right_wheel"
)

// NormMode selects how raw positions map to normalized values.
type NormMode int

const (
	// NormDegrees maps raw ticks to degrees about the range center.
	NormDegrees NormMode = iota
	// NormRangeM100 maps the calibrated range onto [-100, 100].
	NormRangeM100
	// NormRange0To100 maps the calibrated range onto [0, 100].
	NormRange0To100
)

// Motor describes one servo: bus address, model, and how its positions
// are normalized. Immutable after construction.
type Motor struct {
	ID       int
	Model    string
	NormMode NormMode
}

const servoModel = "sts3215"

// ArmMotors returns the arm motor names in servo ID order.
func ArmMotors() []MotorName {
	return []MotorName{
		ArmShoulderPan,
		ArmShoulderLift,
		ArmElbowFlex,
		ArmWristFlex,
		ArmWristRoll,
		ArmGripper,
	}
}

// BaseMotors returns the wheel motor names ordered left, back, right,
// matching the kinematics wheel order.
func BaseMotors() []MotorName {
	return []MotorName{
		BaseLeftWheel,
		BaseBackWheel,
		BaseRightWheel,
	}
}

// AllMotors returns all motor names in servo ID order (1-9).
func AllMotors() []MotorName {
	return append(ArmMotors(), BaseMotors()...)
}

// Motors builds the motor table. With useDegrees the arm joints
// normalize to degrees, otherwise to [-100, 100]; the gripper always
// uses [0, 100].
func Motors(useDegrees bool) map[MotorName]Motor {
	bodyMode := NormRangeM100
	if useDegrees {
		bodyMode = NormDegrees
	}

	motors := make(map[MotorName]Motor, 9)
	for i, name := range AllMotors() {
		mode := bodyMode
		if name == ArmGripper {
			mode = NormRange0To100
		}
		motors[name] = Motor{ID: i + 1, Model: servoModel, NormMode: mode}
	}
	return motors
}

// isFullTurn reports whether a motor rotates continuously and therefore
// has no meaningful range of motion: the wheels and the wrist roll.
func isFullTurn(name MotorName) bool {
	return strings.Contains(string(name), "wheel") ||
		strings.Contains(string(name), "wrist_roll")
}
