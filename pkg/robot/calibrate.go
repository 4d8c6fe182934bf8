package robot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gwillem/lekiwi/internal/log"
)

// CalibrationState tracks progress through the calibration procedure.
type CalibrationState string

const (
	CalibrationIdle         CalibrationState = "idle"
	CalibrationAwaitingPose CalibrationState = "awaiting_homing_pose"
	CalibrationRecording    CalibrationState = "recording_range"
	CalibrationFinalizing   CalibrationState = "finalizing"
	CalibrationPersisted    CalibrationState = "persisted"
)

// Operator supplies the external "operator ready" signals the procedure
// blocks on. Both calls may take unbounded time.
type Operator interface {
	// ConfirmHomingPose returns once the operator has moved the robot
	// to the middle of its range of motion.
	ConfirmHomingPose(ctx context.Context) error
	// ConfirmRangeRecorded returns once the operator has swept every
	// bounded joint through its full range. Position sampling runs
	// until this returns.
	ConfirmRangeRecorded(ctx context.Context) error
}

// RangeSnapshot is a progress report while recording ranges of motion.
type RangeSnapshot struct {
	Current map[MotorName]int
	Min     map[MotorName]int
	Max     map[MotorName]int
}

// Calibrator runs the operator-driven calibration procedure. It must
// hold exclusive access to the bus for its entire run: no other bus
// operation may interleave.
type Calibrator struct {
	bus      Bus
	store    CalibrationStore
	operator Operator
	motors   map[MotorName]Motor

	// SampleInterval paces range recording. Defaults to 100ms.
	SampleInterval time.Duration

	// Progress, when set, receives a snapshot after every sample.
	Progress func(RangeSnapshot)

	state CalibrationState
}

// NewCalibrator creates a calibrator over the given collaborators.
func NewCalibrator(bus Bus, store CalibrationStore, operator Operator, motors map[MotorName]Motor) *Calibrator {
	return &Calibrator{
		bus:            bus,
		store:          store,
		operator:       operator,
		motors:         motors,
		SampleInterval: 100 * time.Millisecond,
		state:          CalibrationIdle,
	}
}

// State returns the current procedure state.
func (c *Calibrator) State() CalibrationState {
	return c.state
}

// Run executes the full procedure and returns the finalized record set.
// If it fails before reaching the persisted state, no calibration
// exists and the procedure must be run again.
func (c *Calibrator) Run(ctx context.Context) (Calibration, error) {
	arm := ArmMotors()

	// The operator must be able to move the arm freely.
	c.state = CalibrationAwaitingPose
	if err := c.bus.DisableTorque(ctx, arm...); err != nil {
		return nil, fmt.Errorf("disable arm torque: %w", err)
	}
	for _, name := range arm {
		if err := c.bus.Write(ctx, OperatingMode, name, OperatingModePosition); err != nil {
			return nil, fmt.Errorf("set %s to position mode: %w", name, err)
		}
	}

	if err := c.operator.ConfirmHomingPose(ctx); err != nil {
		return nil, fmt.Errorf("await homing pose: %w", err)
	}

	// The current pose becomes each arm motor's mid-range reference.
	// Wheels keep their factory zero.
	offsets, err := c.bus.SetHalfTurnHomings(ctx, arm)
	if err != nil {
		return nil, fmt.Errorf("set half-turn homings: %w", err)
	}
	for _, name := range BaseMotors() {
		offsets[name] = 0
	}

	c.state = CalibrationRecording
	mins, maxes, err := c.recordRanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("record ranges of motion: %w", err)
	}

	c.state = CalibrationFinalizing
	cal := make(Calibration, len(c.motors))
	for name, motor := range c.motors {
		rangeMin, rangeMax := FullTurnMin, FullTurnMax
		if !isFullTurn(name) {
			rangeMin, rangeMax = mins[name], maxes[name]
		}
		cal[name] = MotorCalibration{
			ID:           motor.ID,
			DriveMode:    0,
			HomingOffset: offsets[name],
			RangeMin:     rangeMin,
			RangeMax:     rangeMax,
		}
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	// Program the hardware and persist as one logical set. A store
	// failure is nonfatal: calibration stays valid on the bus.
	if err := c.bus.WriteCalibration(ctx, cal); err != nil {
		return nil, fmt.Errorf("write calibration to bus: %w", err)
	}
	if err := c.store.Save(cal); err != nil {
		log.Warn("calibration save failed, records valid for this session only", "err", err)
	}

	c.state = CalibrationPersisted
	log.Info("calibration complete", "motors", len(cal))
	return cal, nil
}

// recordRanges samples bounded motors until the operator stop signal
// and returns the observed extrema.
func (c *Calibrator) recordRanges(ctx context.Context) (mins, maxes map[MotorName]int, err error) {
	var bounded []MotorName
	for _, name := range AllMotors() {
		if _, ok := c.motors[name]; ok && !isFullTurn(name) {
			bounded = append(bounded, name)
		}
	}

	start, err := c.bus.SyncRead(ctx, PresentPosition, bounded)
	if err != nil {
		return nil, nil, err
	}

	mins = make(map[MotorName]int, len(bounded))
	maxes = make(map[MotorName]int, len(bounded))
	for name, pos := range start {
		mins[name] = pos
		maxes[name] = pos
	}

	sampleCtx, stopSampling := context.WithCancel(ctx)
	sampled := make(chan struct{})
	go func() {
		defer close(sampled)
		ticker := time.NewTicker(c.SampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sampleCtx.Done():
				return
			case <-ticker.C:
			}

			current, err := c.bus.SyncRead(sampleCtx, PresentPosition, bounded)
			if err != nil {
				log.Debug("range sample failed", "err", err)
				continue
			}
			for name, pos := range current {
				if pos < mins[name] {
					mins[name] = pos
				}
				if pos > maxes[name] {
					maxes[name] = pos
				}
			}
			if c.Progress != nil {
				c.Progress(RangeSnapshot{
					Current: current,
					Min:     copyPositions(mins),
					Max:     copyPositions(maxes),
				})
			}
		}
	}()

	err = c.operator.ConfirmRangeRecorded(ctx)
	stopSampling()
	<-sampled
	if err != nil {
		return nil, nil, err
	}
	return mins, maxes, nil
}

func copyPositions(m map[MotorName]int) map[MotorName]int {
	out := make(map[MotorName]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StdinOperator drives calibration from a terminal: each signal is the
// operator pressing ENTER, as in the stock calibration flow.
type StdinOperator struct {
	In  io.Reader
	Out io.Writer
}

func (o StdinOperator) ConfirmHomingPose(ctx context.Context) error {
	return o.prompt(ctx, "Move the robot to the middle of its range of motion and press ENTER...")
}

func (o StdinOperator) ConfirmRangeRecorded(ctx context.Context) error {
	return o.prompt(ctx, "Move all bounded joints through their entire ranges of motion.\nRecording positions. Press ENTER to stop...")
}

func (o StdinOperator) prompt(ctx context.Context, msg string) error {
	fmt.Fprintln(o.Out, msg)

	read := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(o.In).ReadString('\n')
		read <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-read:
		if err != nil && err != io.EOF {
			return err
		}
		return nil
	}
}
