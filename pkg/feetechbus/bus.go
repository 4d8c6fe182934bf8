// Package feetechbus implements the robot's Bus contract on a Feetech
// STS servo chain. Signed register values cross the unsigned wire
// format through the sign-magnitude codec.
package feetechbus

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/lekiwi/internal/log"
	"github.com/gwillem/lekiwi/pkg/encoding"
	"github.com/gwillem/lekiwi/pkg/robot"
)

// Mid-range raw position used as the half-turn homing reference.
const halfTurnPosition = 2047

// Sign bit positions in the STS3215 control table: goal/present
// velocity use bit 15, the position offset uses bit 11.
const (
	velocitySignBit     = 15
	homingOffsetSignBit = 11
)

// regInfo pairs a control-table register with its sign bit (0 for
// unsigned fields).
type regInfo struct {
	reg     feetech.Register
	signBit uint
}

var registers = map[robot.Register]regInfo{
	robot.TorqueEnable:    {feetech.RegTorqueEnable, 0},
	robot.OperatingMode:   {feetech.RegOperatingMode, 0},
	robot.PCoefficient:    {feetech.RegPGain, 0},
	robot.ICoefficient:    {feetech.RegIGain, 0},
	robot.DCoefficient:    {feetech.RegDGain, 0},
	robot.HomingOffset:    {feetech.RegPositionOffset, homingOffsetSignBit},
	robot.GoalPosition:    {feetech.RegGoalPosition, 0},
	robot.GoalVelocity:    {feetech.RegGoalVelocity, velocitySignBit},
	robot.PresentPosition: {feetech.RegPresentPosition, 0},
	robot.PresentVelocity: {feetech.RegPresentVelocity, velocitySignBit},
}

// Config describes the serial connection to the servo chain.
type Config struct {
	Port     string
	BaudRate int           // defaults to 1 Mbaud
	Timeout  time.Duration // per-transaction, defaults to 100ms

	// Transport overrides the serial port, for tests.
	Transport feetech.Transport
}

// Bus drives Feetech STS3215 servos over a shared half-duplex serial
// port. Callers serialize access externally per the Bus contract.
type Bus struct {
	cfg    Config
	motors map[robot.MotorName]robot.Motor

	bus        *feetech.Bus
	servos     map[robot.MotorName]*feetech.Servo
	names      map[int]robot.MotorName
	calibrated bool
}

// New creates a bus for the given motor table. The port is not opened
// until Connect.
func New(cfg Config, motors map[robot.MotorName]robot.Motor) *Bus {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 1_000_000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 100 * time.Millisecond
	}
	return &Bus{cfg: cfg, motors: motors}
}

// Connect opens the serial port and verifies every configured servo
// responds.
func (b *Bus) Connect(ctx context.Context) error {
	if b.bus != nil {
		return fmt.Errorf("bus %s already connected", b.cfg.Port)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:      b.cfg.Port,
		BaudRate:  b.cfg.BaudRate,
		Protocol:  feetech.ProtocolSTS,
		Timeout:   b.cfg.Timeout,
		Transport: b.cfg.Transport,
	})
	if err != nil {
		return fmt.Errorf("open bus %s: %w", b.cfg.Port, err)
	}

	minID, maxID := idRange(b.motors)
	found, err := bus.Scan(ctx, minID, maxID)
	if err != nil {
		bus.Close()
		return fmt.Errorf("scan bus %s: %w", b.cfg.Port, err)
	}
	byID := make(map[int]feetech.FoundServo, len(found))
	for _, s := range found {
		byID[s.ID] = s
	}

	servos := make(map[robot.MotorName]*feetech.Servo, len(b.motors))
	names := make(map[int]robot.MotorName, len(b.motors))
	for name, motor := range b.motors {
		s, ok := byID[motor.ID]
		if !ok {
			bus.Close()
			return fmt.Errorf("servo %d (%s) not found on %s", motor.ID, name, b.cfg.Port)
		}
		servos[name] = feetech.NewServo(bus, s.ID, s.Model)
		names[motor.ID] = name
	}

	b.bus = bus
	b.servos = servos
	b.names = names
	log.Debug("bus connected", "port", b.cfg.Port, "servos", len(servos))
	return nil
}

// Disconnect closes the port, optionally disabling torque first.
func (b *Bus) Disconnect(ctx context.Context, disableTorque bool) error {
	if b.bus == nil {
		return fmt.Errorf("bus %s not connected", b.cfg.Port)
	}

	if disableTorque {
		if err := b.DisableTorque(ctx); err != nil {
			log.Warn("torque disable on disconnect failed", "err", err)
		}
	}

	err := b.bus.Close()
	b.bus = nil
	b.servos = nil
	b.names = nil
	b.calibrated = false
	if err != nil {
		return fmt.Errorf("close bus %s: %w", b.cfg.Port, err)
	}
	return nil
}

// IsConnected reports whether the port is open.
func (b *Bus) IsConnected() bool {
	return b.bus != nil
}

// IsCalibrated reports whether a calibration set has been programmed
// this session.
func (b *Bus) IsCalibrated(ctx context.Context) (bool, error) {
	return b.calibrated, nil
}

// Write sets one register on one motor.
func (b *Bus) Write(ctx context.Context, reg robot.Register, motor robot.MotorName, value int) error {
	info, ok := registers[reg]
	if !ok {
		return fmt.Errorf("unknown register: %s", reg)
	}
	id, err := b.motorID(motor)
	if err != nil {
		return err
	}

	data, err := b.encodeRegister(info, value)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", reg, motor, err)
	}
	if err := b.bus.WriteRegister(ctx, id, info.reg.Address, data); err != nil {
		return fmt.Errorf("write %s to %s: %w", reg, motor, err)
	}
	return nil
}

// SyncRead reads one register from the given motors in a single bus
// transaction.
func (b *Bus) SyncRead(ctx context.Context, reg robot.Register, motors []robot.MotorName) (map[robot.MotorName]int, error) {
	info, ok := registers[reg]
	if !ok {
		return nil, fmt.Errorf("unknown register: %s", reg)
	}

	ids := make([]int, 0, len(motors))
	for _, name := range motors {
		id, err := b.motorID(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	data, err := b.bus.SyncRead(ctx, info.reg.Address, info.reg.Size, ids)
	if err != nil {
		return nil, fmt.Errorf("sync read %s: %w", reg, err)
	}

	values := make(map[robot.MotorName]int, len(data))
	for id, raw := range data {
		name, ok := b.names[id]
		if !ok {
			continue
		}
		values[name] = b.decodeRegister(info, raw)
	}
	return values, nil
}

// SyncWrite writes one register on the given motors in a single bus
// transaction, retrying the whole batch up to retries extra times.
func (b *Bus) SyncWrite(ctx context.Context, reg robot.Register, values map[robot.MotorName]int, retries int) error {
	info, ok := registers[reg]
	if !ok {
		return fmt.Errorf("unknown register: %s", reg)
	}

	servoData := make(map[int][]byte, len(values))
	for name, value := range values {
		id, err := b.motorID(name)
		if err != nil {
			return err
		}
		data, err := b.encodeRegister(info, value)
		if err != nil {
			return fmt.Errorf("encode %s for %s: %w", reg, name, err)
		}
		servoData[id] = data
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = b.bus.SyncWrite(ctx, info.reg.Address, info.reg.Size, servoData); err == nil {
			return nil
		}
		log.Debug("sync write failed", "register", reg, "attempt", attempt+1, "err", err)
	}
	return fmt.Errorf("sync write %s after %d attempts: %w", reg, retries+1, err)
}

// WriteCalibration programs homing offsets and position limits for
// every motor in the set.
func (b *Bus) WriteCalibration(ctx context.Context, cal robot.Calibration) error {
	for name, mc := range cal {
		id, err := b.motorID(name)
		if err != nil {
			return err
		}
		if err := b.Write(ctx, robot.HomingOffset, name, mc.HomingOffset); err != nil {
			return err
		}
		proto := b.bus.Protocol()
		if err := b.bus.WriteRegister(ctx, id, feetech.RegMinAngleLimit.Address, proto.EncodeWord(uint16(mc.RangeMin))); err != nil {
			return fmt.Errorf("write %s limits: %w", name, err)
		}
		if err := b.bus.WriteRegister(ctx, id, feetech.RegMaxAngleLimit.Address, proto.EncodeWord(uint16(mc.RangeMax))); err != nil {
			return fmt.Errorf("write %s limits: %w", name, err)
		}
	}
	b.calibrated = true
	return nil
}

// SetHalfTurnHomings makes each motor's current raw position read as
// mid-range (2047) and returns the offsets written.
func (b *Bus) SetHalfTurnHomings(ctx context.Context, motors []robot.MotorName) (map[robot.MotorName]int, error) {
	// Clear existing offsets first so present positions are unshifted.
	for _, name := range motors {
		if err := b.Write(ctx, robot.HomingOffset, name, 0); err != nil {
			return nil, err
		}
	}

	positions, err := b.SyncRead(ctx, robot.PresentPosition, motors)
	if err != nil {
		return nil, err
	}

	offsets := make(map[robot.MotorName]int, len(motors))
	for _, name := range motors {
		offset := positions[name] - halfTurnPosition
		if err := b.Write(ctx, robot.HomingOffset, name, offset); err != nil {
			return nil, err
		}
		offsets[name] = offset
	}
	return offsets, nil
}

// EnableTorque enables torque on the given motors, or all when none are
// given.
func (b *Bus) EnableTorque(ctx context.Context, motors ...robot.MotorName) error {
	return b.eachServo(motors, func(name robot.MotorName, s *feetech.Servo) error {
		if err := s.Enable(ctx); err != nil {
			return fmt.Errorf("enable torque on %s: %w", name, err)
		}
		return nil
	})
}

// DisableTorque disables torque on the given motors, or all when none
// are given.
func (b *Bus) DisableTorque(ctx context.Context, motors ...robot.MotorName) error {
	return b.eachServo(motors, func(name robot.MotorName, s *feetech.Servo) error {
		if err := s.Disable(ctx); err != nil {
			return fmt.Errorf("disable torque on %s: %w", name, err)
		}
		return nil
	})
}

func (b *Bus) eachServo(motors []robot.MotorName, fn func(robot.MotorName, *feetech.Servo) error) error {
	if len(motors) == 0 {
		motors = robot.AllMotors()
	}
	for _, name := range motors {
		if b.bus == nil {
			return fmt.Errorf("bus %s not connected", b.cfg.Port)
		}
		servo, ok := b.servos[name]
		if !ok {
			return fmt.Errorf("unknown motor: %s", name)
		}
		if err := fn(name, servo); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) motorID(name robot.MotorName) (int, error) {
	if b.bus == nil {
		return 0, fmt.Errorf("bus %s not connected", b.cfg.Port)
	}
	motor, ok := b.motors[name]
	if !ok {
		return 0, fmt.Errorf("unknown motor: %s", name)
	}
	return motor.ID, nil
}

// encodeRegister converts a value into wire bytes for a register, via
// the sign-magnitude codec for signed fields.
func (b *Bus) encodeRegister(info regInfo, value int) ([]byte, error) {
	var raw uint32
	if info.signBit > 0 {
		encoded, err := encoding.EncodeSignMagnitude(value, info.signBit)
		if err != nil {
			return nil, err
		}
		raw = encoded
	} else {
		if value < 0 || value >= 1<<(8*info.reg.Size) {
			return nil, fmt.Errorf("%w: %d does not fit in %d unsigned bytes",
				encoding.ErrValueOutOfRange, value, info.reg.Size)
		}
		raw = uint32(value)
	}

	if info.reg.Size == 1 {
		return []byte{byte(raw)}, nil
	}
	return b.bus.Protocol().EncodeWord(uint16(raw)), nil
}

func (b *Bus) decodeRegister(info regInfo, data []byte) int {
	var raw uint32
	if len(data) >= 2 {
		raw = uint32(b.bus.Protocol().DecodeWord(data))
	} else if len(data) == 1 {
		raw = uint32(data[0])
	}
	if info.signBit > 0 {
		return encoding.DecodeSignMagnitude(raw, info.signBit)
	}
	return int(raw)
}

func idRange(motors map[robot.MotorName]robot.Motor) (minID, maxID int) {
	first := true
	for _, m := range motors {
		if first || m.ID < minID {
			minID = m.ID
		}
		if first || m.ID > maxID {
			maxID = m.ID
		}
		first = false
	}
	return minID, maxID
}
