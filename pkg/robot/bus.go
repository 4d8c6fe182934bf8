package robot

import (
	"context"
	"fmt"
)

// Register identifies a servo control-table field the robot touches.
// One canonical value per meaning; the bus implementation owns the
// mapping to hardware addresses and widths.
type Register int

const (
	TorqueEnable Register = iota
	OperatingMode
	PCoefficient
	ICoefficient
	DCoefficient
	HomingOffset
	GoalPosition
	GoalVelocity
	PresentPosition
	PresentVelocity
)

var registerNames = [...]string{
	TorqueEnable:    "torque_enable",
	OperatingMode:   "operating_mode",
	PCoefficient:    "p_coefficient",
	ICoefficient:    "i_coefficient",
	DCoefficient:    "d_coefficient",
	HomingOffset:    "homing_offset",
	GoalPosition:    "goal_position",
	GoalVelocity:    "goal_velocity",
	PresentPosition: "present_position",
	PresentVelocity: "present_velocity",
}

func (r Register) String() string {
	if r >= 0 && int(r) < len(registerNames) {
		return registerNames[r]
	}
	return fmt.Sprintf("Register(%d)", int(r))
}

// Operating modes for the STS3215.
const (
	OperatingModePosition = 0
	OperatingModeVelocity = 1
)

// Bus is the actuator bus collaborator: a shared half-duplex serial
// channel. Callers must serialize all bus-touching operations
// externally; implementations provide no internal locking beyond that
// contract. Communication failures propagate unmodified.
type Bus interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context, disableTorque bool) error
	IsConnected() bool
	IsCalibrated(ctx context.Context) (bool, error)

	// Write sets one register on one motor.
	Write(ctx context.Context, reg Register, motor MotorName, value int) error
	// SyncRead reads one register from several motors in one batch.
	SyncRead(ctx context.Context, reg Register, motors []MotorName) (map[MotorName]int, error)
	// SyncWrite writes one register on several motors in one batch,
	// retrying the whole batch up to retries extra times.
	SyncWrite(ctx context.Context, reg Register, values map[MotorName]int, retries int) error

	// WriteCalibration programs homing offsets and position limits.
	WriteCalibration(ctx context.Context, cal Calibration) error
	// SetHalfTurnHomings makes each motor's current position its
	// mid-range reference and returns the offsets written.
	SetHalfTurnHomings(ctx context.Context, motors []MotorName) (map[MotorName]int, error)

	// EnableTorque and DisableTorque apply to all motors when called
	// without arguments.
	EnableTorque(ctx context.Context, motors ...MotorName) error
	DisableTorque(ctx context.Context, motors ...MotorName) error
}
