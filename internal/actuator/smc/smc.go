// Package smc drives an SMC electric slider actuator (LEL25LT family)
// through its LEC serial gateway using Modbus RTU. The platform is
// single-axis: it renders the surge channel of the pose as a position on
// the slider, centered on the configured midpoint.
package smc

import (
	"fmt"
	"io"
	"log"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/simrig/internal/actuator"
	"github.com/banshee-data/simrig/internal/safety"
	"github.com/banshee-data/simrig/internal/units"
)

// SMC controller coil and register map.
const (
	coilSVON         = 0x19 // servo on
	coilReset        = 0x1B // alarm reset
	coilSetup        = 0x1C // start homing
	coilInputInvalid = 0x30 // enable serial command mode

	inputBusy  = 0x48 // movement in progress
	inputSVRE  = 0x49 // servo ready
	inputSETON = 0x4A // homing complete

	regCurrentPosition = 0x9000
	regOperationStart  = 0x9100
	regMovementMode    = 0x9102
	regSpeed           = 0x9103
	regPosition        = 0x9104
	regAcceleration    = 0x9106
	regDeceleration    = 0x9107
	regPushingForce    = 0x9108
	regTriggerLevel    = 0x9109
	regPushingSpeed    = 0x910A
	regMovingForce     = 0x910B
	regArea1           = 0x910C
	regArea2           = 0x910E
	regInPosition      = 0x9110

	// Operation start word that latches the staged registers.
	opStartWord = 0x0100

	// Position registers hold hundredths of a millimeter.
	unitsPerMM = 100
)

// Config for the SMC transport.
type Config struct {
	Port     string // serial device path, e.g. /dev/ttyUSB0
	BaudRate int    // fixed 38400 by the LEC protocol
	SlaveID  byte   // Modbus slave address

	CenterMM float64 // home/center position on the slider
	MinMM    float64 // low soft limit
	MaxMM    float64 // high soft limit

	Speed        int // mm/s
	Acceleration int // mm/s²

	// SurgeScale converts pose surge meters into slider millimeters of
	// offset from center.
	SurgeScale float64
}

// DefaultConfig returns the wiring for the LEL25LT-900 test rig.
func DefaultConfig() Config {
	return Config{
		Port:         "/dev/ttyUSB0",
		BaudRate:     38400,
		SlaveID:      1,
		CenterMM:     450.0,
		MinMM:        50.0,
		MaxMM:        850.0,
		Speed:        1000,
		Acceleration: 3000,
		SurgeScale:   units.MillimetersPerMeter,
	}
}

// PortOpener opens the serial device. Swapped out in tests.
type PortOpener func(cfg Config) (io.ReadWriteCloser, error)

func openSerialPort(cfg Config) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(time.Second); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// Transport implements actuator.Transport for the SMC slider.
type Transport struct {
	cfg    Config
	limits safety.Limits
	open   PortOpener

	port   io.ReadWriteCloser
	client *modbusClient

	connected bool
	homed     bool
}

// New creates an SMC transport bounded by the given safety envelope.
func New(cfg Config, limits safety.Limits) *Transport {
	return &Transport{
		cfg:    cfg,
		limits: limits,
		open:   openSerialPort,
	}
}

// NewWithOpener creates a transport with an injected port opener, for
// tests against a scripted Modbus peer.
func NewWithOpener(cfg Config, limits safety.Limits, open PortOpener) *Transport {
	t := New(cfg, limits)
	t.open = open
	return t
}

// Connect opens the serial link and brings the servo up: serial command
// mode, alarm reset, servo on, then a bounded wait for servo-ready.
//
// An alarm LED on the controller blocks every command, so alarms are
// always cleared before the servo is enabled.
func (t *Transport) Connect() error {
	port, err := t.open(t.cfg)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", actuator.ErrLinkDown, t.cfg.Port, err)
	}
	t.port = port
	t.client = &modbusClient{port: port, slaveID: t.cfg.SlaveID}

	if err := t.client.writeCoil(coilInputInvalid, true); err != nil {
		return fmt.Errorf("enable serial mode: %w", err)
	}
	if err := t.resetAlarm(); err != nil {
		return err
	}
	if err := t.client.writeCoil(coilSVON, true); err != nil {
		return fmt.Errorf("servo on: %w", err)
	}

	if err := t.waitInput(inputSVRE, true, 5*time.Second); err != nil {
		return fmt.Errorf("servo ready: %w", err)
	}

	t.connected = true
	log.Printf("[SMC] Connected on %s", t.cfg.Port)
	return nil
}

// Home runs the controller's homing cycle, re-stages the motion
// parameters, and moves to the configured center position.
func (t *Transport) Home() error {
	if !t.connected {
		return actuator.ErrLinkDown
	}

	log.Print("[SMC] Homing...")
	if err := t.client.writeCoil(coilSetup, true); err != nil {
		return fmt.Errorf("start homing: %w", err)
	}
	if err := t.waitInput(inputSETON, true, 10*time.Second); err != nil {
		return fmt.Errorf("homing: %w", err)
	}

	// The setup coil must be cleared after homing or the controller
	// refuses position commands.
	if err := t.client.writeCoil(coilSetup, false); err != nil {
		return fmt.Errorf("clear setup: %w", err)
	}
	if err := t.resetAlarm(); err != nil {
		return err
	}

	if err := t.stageMotionParameters(); err != nil {
		return err
	}

	log.Printf("[SMC] Moving to center (%.0fmm)", t.cfg.CenterMM)
	if err := t.moveTo(t.cfg.CenterMM); err != nil {
		return err
	}
	if err := t.waitInput(inputBusy, false, 5*time.Second); err != nil {
		return fmt.Errorf("center move: %w", err)
	}

	t.homed = true
	return nil
}

// Send renders the surge channel of the envelope as a slider position.
// The pose is clamped against the safety envelope here regardless of what
// upstream did, and the millimeter target is clamped again to the slider
// soft limits.
func (t *Transport) Send(env actuator.Envelope) error {
	if !t.connected || !t.homed {
		return actuator.ErrLinkDown
	}

	pose, _ := safety.Clamp(env.Pose, t.limits)

	positionMM := t.cfg.CenterMM + pose.Surge*t.cfg.SurgeScale
	if positionMM < t.cfg.MinMM {
		positionMM = t.cfg.MinMM
	} else if positionMM > t.cfg.MaxMM {
		positionMM = t.cfg.MaxMM
	}

	return t.moveTo(positionMM)
}

// EmergencyStop commands an immediate return to center, bypassing the
// scheduler entirely.
func (t *Transport) EmergencyStop() error {
	if !t.connected {
		return actuator.ErrLinkDown
	}
	log.Print("[SMC] Emergency stop: returning to center")
	return t.moveTo(t.cfg.CenterMM)
}

// Shutdown returns the slider to center, drops the servo, and releases
// the port.
func (t *Transport) Shutdown() error {
	if t.port == nil {
		return nil
	}

	if t.connected && t.homed {
		log.Print("[SMC] Returning to center...")
		if err := t.moveTo(t.cfg.CenterMM); err != nil {
			log.Printf("[SMC] Center move during shutdown failed: %v", err)
		} else if err := t.waitInput(inputBusy, false, 5*time.Second); err != nil {
			log.Printf("[SMC] Wait for center during shutdown failed: %v", err)
		}
	}
	if t.connected {
		if err := t.client.writeCoil(coilSVON, false); err != nil {
			log.Printf("[SMC] Servo off failed: %v", err)
		}
	}

	t.connected = false
	t.homed = false
	err := t.port.Close()
	t.port = nil
	log.Print("[SMC] Disconnected")
	return err
}

// CurrentPositionMM reads the slider position from the controller.
func (t *Transport) CurrentPositionMM() (float64, error) {
	regs, err := t.client.readHoldingRegisters(regCurrentPosition, 2)
	if err != nil {
		return 0, err
	}
	units := int32(uint32(regs[0])<<16 | uint32(regs[1]))
	return float64(units) / unitsPerMM, nil
}

// moveTo stages a position and latches it. Only the position register is
// rewritten on the hot path; speed and acceleration were staged once
// during homing, which keeps per-command latency down.
func (t *Transport) moveTo(positionMM float64) error {
	if err := t.client.writeInt32(regPosition, int32(positionMM*unitsPerMM)); err != nil {
		return err
	}
	return t.client.writeRegisters(regOperationStart, []uint16{opStartWord})
}

// stageMotionParameters writes the full motion profile once.
func (t *Transport) stageMotionParameters() error {
	writes := []struct {
		address uint16
		values  []uint16
	}{
		{regMovementMode, []uint16{1}}, // absolute positioning
		{regSpeed, []uint16{uint16(t.cfg.Speed)}},
		{regAcceleration, []uint16{uint16(t.cfg.Acceleration)}},
		{regDeceleration, []uint16{uint16(t.cfg.Acceleration)}},
		{regPushingForce, []uint16{0}},
		{regTriggerLevel, []uint16{0}},
		{regPushingSpeed, []uint16{20}},
		{regMovingForce, []uint16{100}},
	}
	for _, w := range writes {
		if err := t.client.writeRegisters(w.address, w.values); err != nil {
			return fmt.Errorf("stage register %#04x: %w", w.address, err)
		}
	}
	for _, w := range []struct {
		address uint16
		value   int32
	}{
		{regArea1, 0},
		{regArea2, 0},
		{regInPosition, 100},
	} {
		if err := t.client.writeInt32(w.address, w.value); err != nil {
			return fmt.Errorf("stage register %#04x: %w", w.address, err)
		}
	}
	return nil
}

// resetAlarm pulses the alarm reset coil.
func (t *Transport) resetAlarm() error {
	if err := t.client.writeCoil(coilReset, true); err != nil {
		return fmt.Errorf("alarm reset: %w", err)
	}
	if err := t.client.writeCoil(coilReset, false); err != nil {
		return fmt.Errorf("alarm reset clear: %w", err)
	}
	return nil
}

// waitInput polls a discrete input until it reaches the wanted state or
// the deadline passes.
func (t *Transport) waitInput(address uint16, want bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		got, err := t.client.readDiscreteInput(address)
		if err != nil {
			return err
		}
		if got == want {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("%w: input %#02x did not reach %v within %v", actuator.ErrTimeout, address, want, timeout)
}
