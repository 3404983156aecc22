package smc

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/banshee-data/simrig/internal/actuator"
)

// Modbus RTU function codes used by the SMC LEC controller.
const (
	fnReadDiscreteInputs  = 0x02
	fnReadHoldingRegs     = 0x03
	fnWriteSingleCoil     = 0x05
	fnWriteMultipleRegs   = 0x10
	exceptionFlag         = 0x80
	coilOn            uint16 = 0xFF00
	coilOff           uint16 = 0x0000
)

// crc16 computes the Modbus RTU CRC (poly 0xA001, init 0xFFFF).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// appendCRC appends the little-endian CRC to a frame.
func appendCRC(frame []byte) []byte {
	crc := crc16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// checkCRC validates the trailing CRC of a received frame.
func checkCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	body, tail := frame[:len(frame)-2], frame[len(frame)-2:]
	crc := crc16(body)
	return tail[0] == byte(crc) && tail[1] == byte(crc>>8)
}

// modbusClient speaks Modbus RTU over one serial port. Not safe for
// concurrent use; the driver serializes access.
type modbusClient struct {
	port    io.ReadWriter
	slaveID byte
}

// roundTrip writes a request frame and reads the response, translating
// Modbus exceptions and link errors into the transport error taxonomy.
func (c *modbusClient) roundTrip(request []byte, respLen int) ([]byte, error) {
	if _, err := c.port.Write(request); err != nil {
		return nil, fmt.Errorf("%w: %v", actuator.ErrLinkDown, err)
	}

	// Slave address + function code arrive first; an exception response
	// replaces the function code with fn|0x80 and is always 5 bytes.
	head := make([]byte, 2)
	if _, err := io.ReadFull(c.port, head); err != nil {
		return nil, fmt.Errorf("%w: %v", actuator.ErrTimeout, err)
	}

	if head[1]&exceptionFlag != 0 {
		rest := make([]byte, 3) // exception code + CRC
		if _, err := io.ReadFull(c.port, rest); err != nil {
			return nil, fmt.Errorf("%w: %v", actuator.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: modbus exception %#02x on function %#02x",
			actuator.ErrRejected, rest[0], head[1]&^byte(exceptionFlag))
	}

	rest := make([]byte, respLen-2)
	if _, err := io.ReadFull(c.port, rest); err != nil {
		return nil, fmt.Errorf("%w: %v", actuator.ErrTimeout, err)
	}

	frame := append(head, rest...)
	if !checkCRC(frame) {
		return nil, fmt.Errorf("%w: response CRC mismatch", actuator.ErrRejected)
	}
	return frame, nil
}

// writeCoil sets or clears a single coil.
func (c *modbusClient) writeCoil(address uint16, on bool) error {
	value := coilOff
	if on {
		value = coilOn
	}
	req := make([]byte, 6)
	req[0] = c.slaveID
	req[1] = fnWriteSingleCoil
	binary.BigEndian.PutUint16(req[2:4], address)
	binary.BigEndian.PutUint16(req[4:6], value)

	// Response echoes the request: 8 bytes.
	_, err := c.roundTrip(appendCRC(req), 8)
	return err
}

// writeRegisters writes consecutive 16-bit holding registers.
func (c *modbusClient) writeRegisters(address uint16, values []uint16) error {
	req := make([]byte, 7+2*len(values))
	req[0] = c.slaveID
	req[1] = fnWriteMultipleRegs
	binary.BigEndian.PutUint16(req[2:4], address)
	binary.BigEndian.PutUint16(req[4:6], uint16(len(values)))
	req[6] = byte(2 * len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(req[7+2*i:], v)
	}

	// Response: slave, fn, addr, count, CRC = 8 bytes.
	_, err := c.roundTrip(appendCRC(req), 8)
	return err
}

// writeInt32 writes a 32-bit value as two big-endian registers, the
// register packing the SMC controller expects for positions.
func (c *modbusClient) writeInt32(address uint16, value int32) error {
	return c.writeRegisters(address, []uint16{
		uint16(uint32(value) >> 16),
		uint16(uint32(value)),
	})
}

// readDiscreteInput reads one discrete input bit.
func (c *modbusClient) readDiscreteInput(address uint16) (bool, error) {
	req := make([]byte, 6)
	req[0] = c.slaveID
	req[1] = fnReadDiscreteInputs
	binary.BigEndian.PutUint16(req[2:4], address)
	binary.BigEndian.PutUint16(req[4:6], 1)

	// Response: slave, fn, byte count (1), data (1), CRC = 6 bytes.
	resp, err := c.roundTrip(appendCRC(req), 6)
	if err != nil {
		return false, err
	}
	return resp[3]&0x01 != 0, nil
}

// readHoldingRegisters reads consecutive 16-bit holding registers.
func (c *modbusClient) readHoldingRegisters(address uint16, count int) ([]uint16, error) {
	req := make([]byte, 6)
	req[0] = c.slaveID
	req[1] = fnReadHoldingRegs
	binary.BigEndian.PutUint16(req[2:4], address)
	binary.BigEndian.PutUint16(req[4:6], uint16(count))

	// Response: slave, fn, byte count, data, CRC.
	resp, err := c.roundTrip(appendCRC(req), 5+2*count)
	if err != nil {
		return nil, err
	}
	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(resp[3+2*i:])
	}
	return values, nil
}
