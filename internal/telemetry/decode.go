package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

/*
F1 2024 UDP Telemetry Packet Layout

The game emits little-endian packed packets at 60 Hz. Every packet starts
with a 29-byte header; a Motion packet (packetId 0) carries one 60-byte
CarMotionData record per car slot (22 slots, 1349 bytes total).

HEADER (29 bytes):
├── uint16  packetFormat             offset 0   (2024)
├── uint8   gameYear                 offset 2
├── uint8   gameMajorVersion         offset 3
├── uint8   gameMinorVersion         offset 4
├── uint8   packetVersion            offset 5
├── uint8   packetId                 offset 6   (0 = Motion)
├── uint64  sessionUID               offset 7
├── float32 sessionTime              offset 15
├── uint32  frameIdentifier          offset 19
├── uint32  overallFrameIdentifier   offset 23
├── uint8   playerCarIndex           offset 27
└── uint8   secondaryPlayerCarIndex  offset 28

CARMOTIONDATA (60 bytes per car):
├── float32 worldPositionX/Y/Z      offsets 0-11   [not consumed]
├── float32 worldVelocityX/Y/Z     offsets 12-23  [not consumed]
├── int16   worldForwardDirX/Y/Z   offsets 24-29  [not consumed]
├── int16   worldRightDirX/Y/Z     offsets 30-35  [not consumed]
├── float32 gForceLateral           offset 36
├── float32 gForceLongitudinal      offset 40
├── float32 gForceVertical          offset 44
├── float32 yaw                     offset 48
├── float32 pitch                   offset 52
└── float32 roll                    offset 56
*/

// F1 2024 packet structure constants.
const (
	PacketFormat2024 = 2024 // packetFormat value for the supported game release
	PacketIDMotion   = 0    // packetId carrying CarMotionData records

	HeaderSize     = 29 // packed header size in bytes
	CarRecordSize  = 60 // CarMotionData size per car in bytes
	MaxCars        = 22 // car slots per Motion packet
	MotionDataSize = 24 // consumed bytes per record (6 float32 fields)

	// Offset of the g-force/orientation block within a CarMotionData record.
	// Position, velocity and the two normalised int16 direction vectors
	// occupy the first 36 bytes and are not consumed here.
	motionFieldOffset = 36

	// G-forces outside this range indicate a corrupt record rather than
	// car physics; the game caps well inside ±10 even during crashes.
	gForceLimit = 10.0
)

// Decode error taxonomy. Callers match with errors.Is; ErrNotMotionPacket
// is expected traffic (the game interleaves a dozen packet types on the
// same socket) and should be dropped silently.
var (
	ErrTooShort          = errors.New("telemetry: packet too short")
	ErrUnsupportedFormat = errors.New("telemetry: unsupported packet format")
	ErrNotMotionPacket   = errors.New("telemetry: not a motion packet")
	ErrIndexOutOfRange   = errors.New("telemetry: player car index out of range")
	ErrInvalidTelemetry  = errors.New("telemetry: motion values out of range")
)

// MotionSample is the decoded physics state of the player car for one
// telemetry frame. Immutable once produced.
type MotionSample struct {
	GLateral      float64 // G; positive = right turn
	GLongitudinal float64 // G; positive = acceleration, negative = braking
	GVertical     float64 // G; ~1.0 at rest (gravity) plus bumps

	Yaw   float64 // radians
	Pitch float64 // radians
	Roll  float64 // radians

	Frame       uint32  // frameIdentifier from the header
	SessionTime float64 // seconds since session start
}

func (s MotionSample) String() string {
	return fmt.Sprintf("MotionSample(gLat=%+.2f gLong=%+.2f gVert=%.2f yaw=%.2f pitch=%.2f roll=%.2f)",
		s.GLateral, s.GLongitudinal, s.GVertical, s.Yaw, s.Pitch, s.Roll)
}

// Decode parses a raw UDP buffer into the player car's MotionSample.
//
// Only the six motion fields of the row addressed by playerCarIndex are
// read; the content of other car rows never influences the result. Decode
// performs no allocation beyond the returned sample and mutates no state,
// so it is safe to call from any goroutine.
func Decode(buf []byte) (MotionSample, error) {
	if len(buf) < HeaderSize {
		return MotionSample{}, fmt.Errorf("%w: %d bytes, need %d for header", ErrTooShort, len(buf), HeaderSize)
	}

	format := binary.LittleEndian.Uint16(buf[0:2])
	if format != PacketFormat2024 {
		return MotionSample{}, fmt.Errorf("%w: format %d", ErrUnsupportedFormat, format)
	}

	if packetID := buf[6]; packetID != PacketIDMotion {
		return MotionSample{}, fmt.Errorf("%w: packet id %d", ErrNotMotionPacket, packetID)
	}

	carIndex := int(buf[27])
	if carIndex >= MaxCars {
		return MotionSample{}, fmt.Errorf("%w: index %d", ErrIndexOutOfRange, carIndex)
	}

	recordStart := HeaderSize + carIndex*CarRecordSize
	if len(buf) < recordStart+CarRecordSize {
		return MotionSample{}, fmt.Errorf("%w: %d bytes, need %d for car %d",
			ErrTooShort, len(buf), recordStart+CarRecordSize, carIndex)
	}

	fields := buf[recordStart+motionFieldOffset:]
	sample := MotionSample{
		GLateral:      float32At(fields, 0),
		GLongitudinal: float32At(fields, 4),
		GVertical:     float32At(fields, 8),
		Yaw:           float32At(fields, 12),
		Pitch:         float32At(fields, 16),
		Roll:          float32At(fields, 20),
		Frame:         binary.LittleEndian.Uint32(buf[19:23]),
		SessionTime:   float32At(buf, 15),
	}

	if err := validateSample(sample); err != nil {
		return MotionSample{}, err
	}
	return sample, nil
}

// float32At reads a little-endian float32 and widens it to float64.
func float32At(b []byte, off int) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4])))
}

// validateSample rejects records that decode cleanly but carry impossible
// physics. Extreme-but-real values (crash G spikes) must still pass.
func validateSample(s MotionSample) error {
	for _, g := range []float64{s.GLateral, s.GLongitudinal, s.GVertical} {
		if math.IsNaN(g) || g < -gForceLimit || g > gForceLimit {
			return fmt.Errorf("%w: g-force %v", ErrInvalidTelemetry, g)
		}
	}
	for _, a := range []float64{s.Yaw, s.Pitch, s.Roll} {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("%w: non-finite angle %v", ErrInvalidTelemetry, a)
		}
	}
	return nil
}
