package robot

import (
	"context"
	"errors"
	"testing"
	"time"
)

// seqOperator confirms the homing pose immediately and stops range
// recording once the bus has served its scripted position sequence.
type seqOperator struct {
	bus       *fakeBus
	homingErr error
}

func (o *seqOperator) ConfirmHomingPose(ctx context.Context) error {
	return o.homingErr
}

func (o *seqOperator) ConfirmRangeRecorded(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-o.bus.seqDone:
		return nil
	}
}

func boundedMotors() []MotorName {
	var bounded []MotorName
	for _, name := range AllMotors() {
		if !isFullTurn(name) {
			bounded = append(bounded, name)
		}
	}
	return bounded
}

func TestCalibrator_Run(t *testing.T) {
	bus := newFakeBus()
	bus.connected = true

	// Homing pose: every arm motor sits at raw 2100.
	for _, name := range ArmMotors() {
		bus.positions[name] = 2100
	}

	// The operator sweeps every bounded joint; the shoulder pan reaches
	// 1200 and 3100, the rest cover [1900, 2300].
	sweep := func(pan, rest int) map[MotorName]int {
		m := make(map[MotorName]int)
		for _, name := range boundedMotors() {
			m[name] = rest
		}
		m[ArmShoulderPan] = pan
		return m
	}
	bus.rangeSequence = []map[MotorName]int{
		sweep(2100, 2100), // initial read
		sweep(1200, 1900),
		sweep(3100, 2300),
		sweep(2000, 2100),
	}

	store := &memStore{}
	c := NewCalibrator(bus, store, &seqOperator{bus: bus}, Motors(false))
	c.SampleInterval = time.Millisecond

	var snapshots int
	c.Progress = func(RangeSnapshot) { snapshots++ }

	cal, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if c.State() != CalibrationPersisted {
		t.Errorf("state = %s, want persisted", c.State())
	}

	// Full-turn motors always get the fixed one-revolution bounds.
	for _, name := range []MotorName{ArmWristRoll, BaseLeftWheel, BaseBackWheel, BaseRightWheel} {
		mc := cal[name]
		if mc.RangeMin != FullTurnMin || mc.RangeMax != FullTurnMax {
			t.Errorf("%s range = [%d, %d], want [0, 4095]", name, mc.RangeMin, mc.RangeMax)
		}
	}

	// Bounded motors get exactly their observed extrema.
	pan := cal[ArmShoulderPan]
	if pan.RangeMin != 1200 || pan.RangeMax != 3100 {
		t.Errorf("shoulder pan range = [%d, %d], want [1200, 3100]", pan.RangeMin, pan.RangeMax)
	}
	lift := cal[ArmShoulderLift]
	if lift.RangeMin != 1900 || lift.RangeMax != 2300 {
		t.Errorf("shoulder lift range = [%d, %d], want [1900, 2300]", lift.RangeMin, lift.RangeMax)
	}

	// Arm homing offsets make the captured pose mid-range; wheels get 0.
	for _, name := range ArmMotors() {
		if got := cal[name].HomingOffset; got != 2100-2047 {
			t.Errorf("%s homing offset = %d, want %d", name, got, 2100-2047)
		}
	}
	for _, name := range BaseMotors() {
		if got := cal[name].HomingOffset; got != 0 {
			t.Errorf("%s homing offset = %d, want 0", name, got)
		}
	}

	for name, mc := range cal {
		if mc.DriveMode != 0 {
			t.Errorf("%s drive mode = %d, want 0", name, mc.DriveMode)
		}
	}

	// Persisted as one logical set: hardware and store both hold it.
	if bus.writtenCal == nil {
		t.Error("calibration was not written to the bus")
	}
	if store.saved != 1 {
		t.Errorf("store saves = %d, want 1", store.saved)
	}
	if snapshots == 0 {
		t.Error("progress callback never fired")
	}
}

func TestCalibrator_Run_DegenerateRangeRejected(t *testing.T) {
	bus := newFakeBus()
	bus.connected = true

	// The operator never moves anything: every bounded joint records a
	// single position, which is not a valid range.
	static := make(map[MotorName]int)
	for _, name := range boundedMotors() {
		static[name] = 2100
	}
	for _, name := range ArmMotors() {
		bus.positions[name] = 2100
	}
	bus.rangeSequence = []map[MotorName]int{static}

	c := NewCalibrator(bus, &memStore{}, &seqOperator{bus: bus}, Motors(false))
	c.SampleInterval = time.Millisecond

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("expected degenerate ranges to fail validation")
	}
	if c.State() == CalibrationPersisted {
		t.Error("failed run must not reach the persisted state")
	}
}

func TestCalibrator_Run_AbortBeforePersist(t *testing.T) {
	bus := newFakeBus()
	bus.connected = true
	store := &memStore{}

	abort := errors.New("operator walked away")
	c := NewCalibrator(bus, store, &seqOperator{bus: bus, homingErr: abort}, Motors(false))

	if _, err := c.Run(context.Background()); !errors.Is(err, abort) {
		t.Fatalf("Run error = %v, want operator abort", err)
	}

	// Interrupted before Persisted: no calibration exists anywhere.
	if bus.writtenCal != nil {
		t.Error("aborted run wrote calibration to the bus")
	}
	if store.saved != 0 {
		t.Error("aborted run saved calibration to the store")
	}
	if c.State() == CalibrationPersisted {
		t.Errorf("state = %s after abort", c.State())
	}
}

func TestCalibrator_Run_StoreFailureIsNonfatal(t *testing.T) {
	bus := newFakeBus()
	bus.connected = true
	for _, name := range ArmMotors() {
		bus.positions[name] = 2100
	}
	sweepLow := make(map[MotorName]int)
	sweepHigh := make(map[MotorName]int)
	for _, name := range boundedMotors() {
		sweepLow[name] = 1500
		sweepHigh[name] = 2700
	}
	bus.rangeSequence = []map[MotorName]int{sweepLow, sweepHigh}

	store := &memStore{saveErr: errors.New("disk full")}
	c := NewCalibrator(bus, store, &seqOperator{bus: bus}, Motors(false))
	c.SampleInterval = time.Millisecond

	cal, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if cal == nil || bus.writtenCal == nil {
		t.Error("calibration must remain valid on the bus despite a save failure")
	}
	if c.State() != CalibrationPersisted {
		t.Errorf("state = %s, want persisted", c.State())
	}
}
