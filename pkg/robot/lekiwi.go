package robot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/gwillem/lekiwi/internal/log"
	"github.com/gwillem/lekiwi/pkg/camera"
	"github.com/gwillem/lekiwi/pkg/kinematics"
)

// Position gains written to the arm motors at connect time.
const (
	armPGain = 16
	armIGain = 0
	armDGain = 32
)

// stopBaseRetries is how often StopBase re-attempts the zero-velocity
// write. It is the safety path and must not silently fail once.
const stopBaseRetries = 5

// Action is a motion command: normalized goal positions for arm joints
// plus a body-frame velocity for the base. Motors absent from
// ArmPositions are left alone.
type Action struct {
	ArmPositions map[MotorName]float64
	Base         kinematics.BodyVelocity
}

// Observation is one snapshot of robot state: normalized arm positions,
// the base body velocity derived from wheel readings, and the latest
// completed camera frames.
type Observation struct {
	ArmPositions map[MotorName]float64
	Base         kinematics.BodyVelocity
	Frames       map[string]image.Image
}

// Robot is the LeKiwi mobile manipulator. The hosting process owns the
// handle and must serialize all calls: the underlying bus is a shared
// half-duplex channel with no internal locking.
type Robot struct {
	cfg      Config
	bus      Bus
	cameras  map[string]camera.Camera
	store    CalibrationStore
	kin      *kinematics.Omni
	motors   map[MotorName]Motor
	operator Operator

	calibration Calibration
}

// Option configures a Robot.
type Option func(*Robot)

// WithOperator sets the operator signal source used by Calibrate.
func WithOperator(op Operator) Option {
	return func(r *Robot) { r.operator = op }
}

// New assembles a robot from its hardware collaborators. Cameras may be
// nil or empty; the calibration store must not be nil.
func New(cfg Config, bus Bus, cameras map[string]camera.Camera, store CalibrationStore, opts ...Option) (*Robot, error) {
	kin, err := kinematics.New(cfg.Geometry())
	if err != nil {
		return nil, fmt.Errorf("base kinematics: %w", err)
	}

	r := &Robot{
		cfg:      cfg,
		bus:      bus,
		cameras:  cameras,
		store:    store,
		kin:      kin,
		motors:   Motors(cfg.UseDegrees),
		operator: StdinOperator{In: os.Stdin, Out: os.Stdout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// IsConnected reports whether the bus and every configured camera are
// connected. One unavailable camera keeps the robot not connected.
func (r *Robot) IsConnected() bool {
	if !r.bus.IsConnected() {
		return false
	}
	for _, cam := range r.cameras {
		if !cam.IsConnected() {
			return false
		}
	}
	return true
}

// IsCalibrated reports whether calibration is in effect for the session.
func (r *Robot) IsCalibrated(ctx context.Context) bool {
	if len(r.calibration) > 0 {
		return true
	}
	calibrated, err := r.bus.IsCalibrated(ctx)
	if err != nil {
		log.Debug("calibration status read failed", "err", err)
		return false
	}
	return calibrated
}

// Connect opens the bus and cameras and configures operating modes.
// Persisted calibration is written to the motors when present;
// otherwise, if calibrate is true and the motors report uncalibrated,
// the interactive calibration procedure runs (blocking, operator
// attended).
func (r *Robot) Connect(ctx context.Context, calibrate bool) error {
	if r.IsConnected() {
		return ErrAlreadyConnected
	}

	if err := r.bus.Connect(ctx); err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}

	cal, err := r.store.Load()
	if err != nil {
		// Nonfatal: treated as no calibration present.
		log.Warn("calibration load failed", "err", err)
		cal = nil
	}

	switch {
	case cal != nil:
		log.Info("writing persisted calibration to motors")
		if err := r.writeCalibration(ctx, cal); err != nil {
			return err
		}
	case calibrate && !r.IsCalibrated(ctx):
		log.Info("robot not calibrated, running interactive calibration")
		if err := r.Calibrate(ctx); err != nil {
			return err
		}
	}

	for key, cam := range r.cameras {
		if err := cam.Connect(); err != nil {
			return fmt.Errorf("connect camera %s: %w", key, err)
		}
	}

	if err := r.configure(ctx); err != nil {
		return err
	}

	log.Info("robot connected")
	return nil
}

// Disconnect stops the base, closes the bus and disconnects cameras.
func (r *Robot) Disconnect(ctx context.Context) error {
	if !r.IsConnected() {
		return ErrNotConnected
	}

	var errs []error
	if err := r.StopBase(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.bus.Disconnect(ctx, r.cfg.DisableTorqueOnDisconnect); err != nil {
		errs = append(errs, fmt.Errorf("disconnect bus: %w", err))
	}
	for key, cam := range r.cameras {
		if err := cam.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect camera %s: %w", key, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("robot disconnected")
	return nil
}

// Calibrate runs the operator-driven calibration procedure and keeps
// the resulting records for the session. It must not run concurrently
// with any other bus operation.
func (r *Robot) Calibrate(ctx context.Context) error {
	calibrator := NewCalibrator(r.bus, r.store, r.operator, r.motors)
	cal, err := calibrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	r.calibration = cal
	return nil
}

// Observation reads present arm positions and base wheel velocities in
// two batched bus transactions, derives the body velocity, and attaches
// the latest camera frames without waiting on capture.
func (r *Robot) Observation(ctx context.Context) (Observation, error) {
	if !r.IsConnected() {
		return Observation{}, ErrNotConnected
	}

	armRaw, err := r.bus.SyncRead(ctx, PresentPosition, ArmMotors())
	if err != nil {
		return Observation{}, fmt.Errorf("read arm positions: %w", err)
	}
	positions := make(map[MotorName]float64, len(armRaw))
	for name, raw := range armRaw {
		positions[name] = r.normalize(name, raw)
	}

	baseRaw, err := r.bus.SyncRead(ctx, PresentVelocity, BaseMotors())
	if err != nil {
		return Observation{}, fmt.Errorf("read base velocities: %w", err)
	}
	base := r.kin.Inverse(kinematics.WheelSpeeds{
		Left:  baseRaw[BaseLeftWheel],
		Back:  baseRaw[BaseBackWheel],
		Right: baseRaw[BaseRightWheel],
	})

	frames := make(map[string]image.Image, len(r.cameras))
	for key, cam := range r.cameras {
		frame, err := cam.ReadLatestFrame()
		if err != nil {
			log.Debug("no frame available", "camera", key, "err", err)
			continue
		}
		frames[key] = frame
	}

	return Observation{ArmPositions: positions, Base: base, Frames: frames}, nil
}

// SendAction translates and sends a motion command: forward kinematics
// for the base, safety clamping for the arm, then one batched position
// write and one batched velocity write. The returned action is what was
// actually sent, reflecting any clamping.
func (r *Robot) SendAction(ctx context.Context, action Action) (Action, error) {
	if !r.IsConnected() {
		return Action{}, ErrNotConnected
	}

	wheels := r.kin.Forward(action.Base)

	goals := make(map[MotorName]float64, len(action.ArmPositions))
	for name, v := range action.ArmPositions {
		goals[name] = v
	}

	if r.cfg.MaxRelativeTarget != nil && len(goals) > 0 {
		names := make([]MotorName, 0, len(goals))
		for name := range goals {
			names = append(names, name)
		}
		presentRaw, err := r.bus.SyncRead(ctx, PresentPosition, names)
		if err != nil {
			return Action{}, fmt.Errorf("read present positions: %w", err)
		}
		present := make(map[MotorName]float64, len(presentRaw))
		for name, raw := range presentRaw {
			present[name] = r.normalize(name, raw)
		}
		goals = clampGoals(goals, present, r.cfg.MaxRelativeTarget)
	}

	if len(goals) > 0 {
		rawGoals := make(map[MotorName]int, len(goals))
		for name, v := range goals {
			rawGoals[name] = r.denormalize(name, v)
		}
		if err := r.bus.SyncWrite(ctx, GoalPosition, rawGoals, 0); err != nil {
			return Action{}, fmt.Errorf("write goal positions: %w", err)
		}
	}

	velGoals := map[MotorName]int{
		BaseLeftWheel:  wheels.Left,
		BaseBackWheel:  wheels.Back,
		BaseRightWheel: wheels.Right,
	}
	if err := r.bus.SyncWrite(ctx, GoalVelocity, velGoals, 0); err != nil {
		return Action{}, fmt.Errorf("write goal velocities: %w", err)
	}

	return Action{ArmPositions: goals, Base: action.Base}, nil
}

// StopBase writes zero velocity to all wheels. It is the priority
// safety path: retried locally and always attempted regardless of other
// in-flight state.
func (r *Robot) StopBase(ctx context.Context) error {
	zeros := make(map[MotorName]int, 3)
	for _, name := range BaseMotors() {
		zeros[name] = 0
	}
	if err := r.bus.SyncWrite(ctx, GoalVelocity, zeros, stopBaseRetries); err != nil {
		return fmt.Errorf("stop base: %w", err)
	}
	log.Info("base motors stopped")
	return nil
}

// writeCalibration programs a loaded record set into the motors,
// bracketed by torque disable/enable.
func (r *Robot) writeCalibration(ctx context.Context, cal Calibration) error {
	if err := r.bus.DisableTorque(ctx); err != nil {
		return fmt.Errorf("disable torque: %w", err)
	}
	if err := r.bus.WriteCalibration(ctx, cal); err != nil {
		return fmt.Errorf("write calibration: %w", err)
	}
	if err := r.bus.EnableTorque(ctx); err != nil {
		return fmt.Errorf("enable torque: %w", err)
	}
	r.calibration = cal
	return nil
}

// configure sets operating modes: arm motors in position mode with
// fixed gains, wheels in velocity mode.
func (r *Robot) configure(ctx context.Context) error {
	if err := r.bus.DisableTorque(ctx); err != nil {
		return fmt.Errorf("disable torque: %w", err)
	}

	for _, name := range ArmMotors() {
		writes := []struct {
			reg   Register
			value int
		}{
			{OperatingMode, OperatingModePosition},
			{PCoefficient, armPGain},
			{ICoefficient, armIGain},
			{DCoefficient, armDGain},
		}
		for _, w := range writes {
			if err := r.bus.Write(ctx, w.reg, name, w.value); err != nil {
				return fmt.Errorf("configure %s %s: %w", name, w.reg, err)
			}
		}
	}

	for _, name := range BaseMotors() {
		if err := r.bus.Write(ctx, OperatingMode, name, OperatingModeVelocity); err != nil {
			return fmt.Errorf("configure %s: %w", name, err)
		}
	}

	if err := r.bus.EnableTorque(ctx); err != nil {
		return fmt.Errorf("enable torque: %w", err)
	}
	return nil
}

func (r *Robot) normalize(name MotorName, raw int) float64 {
	cal, ok := r.calibration[name]
	if !ok {
		return float64(raw)
	}
	return cal.Normalize(r.motors[name].NormMode, raw)
}

func (r *Robot) denormalize(name MotorName, norm float64) int {
	cal, ok := r.calibration[name]
	if !ok {
		return int(norm)
	}
	return cal.Denormalize(r.motors[name].NormMode, norm)
}
