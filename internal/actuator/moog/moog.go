// Package moog drives a MOOG 6DOF2000E Stewart platform over its UDP
// host interface. The platform consumes full 6-DOF target poses; inverse
// kinematics to actuator lengths happens inside the MOOG controller.
package moog

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"net"
	"time"

	"github.com/banshee-data/simrig/internal/actuator"
	"github.com/banshee-data/simrig/internal/safety"
)

// Motion Command Word values from the 6DOF2000E host interface manual.
const (
	mcwPark        = 210
	mcwEngage      = 180
	mcwDOFMode     = 170
	mcwNewPosition = 130
)

// Platform state nibble in the status reply.
const (
	stateIdle    = 1
	stateEngaged = 3
)

// Command packets are big-endian: MCW, six float32 DOF values in the
// controller's order (roll, pitch, heave, surge, yaw, lateral), and a
// reserved trailing word.
const commandPacketSize = 4 + 6*4 + 4

// Config for the MOOG transport.
type Config struct {
	Address      string        // controller host:port, e.g. 192.168.1.100:991
	ReplyTimeout time.Duration // bound on status reads
	EngagePolls  int           // state polls before engage/park give up
}

// DefaultConfig returns the standard controller endpoint.
func DefaultConfig() Config {
	return Config{
		Address:      "192.168.1.100:991",
		ReplyTimeout: 100 * time.Millisecond,
		EngagePolls:  50,
	}
}

// Conn is the minimal datagram connection the transport needs; satisfied
// by *net.UDPConn and by in-memory fakes in tests.
type Conn interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens the controller connection. Swapped out in tests.
type Dialer func(address string) (Conn, error)

func dialUDP(address string) (Conn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	return net.DialUDP("udp", nil, addr)
}

// Transport implements actuator.Transport for the MOOG platform.
type Transport struct {
	cfg    Config
	limits safety.Limits
	dial   Dialer

	conn    Conn
	engaged bool
}

// New creates a MOOG transport bounded by the given safety envelope.
func New(cfg Config, limits safety.Limits) *Transport {
	return &Transport{cfg: cfg, limits: limits, dial: dialUDP}
}

// NewWithDialer creates a transport with an injected dialer, for tests
// against a fake controller.
func NewWithDialer(cfg Config, limits safety.Limits, dial Dialer) *Transport {
	t := New(cfg, limits)
	t.dial = dial
	return t
}

// Connect opens the UDP link and puts the controller in DOF mode.
func (t *Transport) Connect() error {
	conn, err := t.dial(t.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", actuator.ErrLinkDown, t.cfg.Address, err)
	}
	t.conn = conn

	if err := t.sendCommand(mcwDOFMode, [6]float32{}); err != nil {
		return err
	}
	log.Printf("[MOOG] Connected to %s", t.cfg.Address)
	return nil
}

// Home engages the platform, which drives it to its neutral stance, and
// waits for the controller to report ENGAGED.
func (t *Transport) Home() error {
	if t.conn == nil {
		return actuator.ErrLinkDown
	}

	if err := t.sendCommand(mcwEngage, [6]float32{}); err != nil {
		return err
	}

	for i := 0; i < t.cfg.EngagePolls; i++ {
		if state, err := t.readState(); err == nil && state == stateEngaged {
			t.engaged = true
			log.Print("[MOOG] Platform engaged")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("%w: platform did not engage", actuator.ErrTimeout)
}

// Send clamps the pose against the safety envelope and writes a new
// position command. Heave is inverted on the wire: the controller's
// convention is positive-down.
func (t *Transport) Send(env actuator.Envelope) error {
	if t.conn == nil || !t.engaged {
		return actuator.ErrLinkDown
	}

	pose, _ := safety.Clamp(env.Pose, t.limits)

	return t.sendCommand(mcwNewPosition, [6]float32{
		float32(pose.Roll),
		float32(pose.Pitch),
		float32(-pose.Heave),
		float32(pose.Surge),
		float32(pose.Yaw),
		float32(pose.Sway),
	})
}

// EmergencyStop commands the neutral pose immediately.
func (t *Transport) EmergencyStop() error {
	if t.conn == nil {
		return actuator.ErrLinkDown
	}
	log.Print("[MOOG] Emergency stop: commanding neutral pose")
	return t.sendCommand(mcwNewPosition, [6]float32{})
}

// Shutdown parks the platform and closes the link. Park lowers the
// platform onto its rest stops, so it polls for IDLE before returning.
func (t *Transport) Shutdown() error {
	if t.conn == nil {
		return nil
	}

	if t.engaged {
		if err := t.sendCommand(mcwPark, [6]float32{}); err != nil {
			log.Printf("[MOOG] Park command failed: %v", err)
		} else {
			for i := 0; i < 2*t.cfg.EngagePolls; i++ {
				if state, err := t.readState(); err == nil && state == stateIdle {
					log.Print("[MOOG] Platform parked")
					break
				}
				time.Sleep(100 * time.Millisecond)
			}
		}
		t.engaged = false
	}

	err := t.conn.Close()
	t.conn = nil
	log.Print("[MOOG] Disconnected")
	return err
}

// sendCommand writes one command datagram.
func (t *Transport) sendCommand(mcw uint32, dof [6]float32) error {
	buf := make([]byte, commandPacketSize)
	binary.BigEndian.PutUint32(buf[0:4], mcw)
	for i, v := range dof {
		binary.BigEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	// Trailing reserved word stays zero.

	if _, err := t.conn.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", actuator.ErrLinkDown, err)
	}
	return nil
}

// readState reads a status reply and extracts the platform state nibble
// from the third status word.
func (t *Transport) readState() (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.cfg.ReplyTimeout)); err != nil {
		return 0, err
	}

	buf := make([]byte, 40)
	n, err := t.conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", actuator.ErrTimeout, err)
	}
	if n < 12 {
		return 0, fmt.Errorf("%w: short status reply (%d bytes)", actuator.ErrRejected, n)
	}

	status := binary.BigEndian.Uint32(buf[8:12])
	return int(status & 0x0F), nil
}
