package vm

import (
	"encoding/binary"
	"math"
)

const (
	RegisterCount = 256
	RegisterSize  = 4
	// MemorySize is the size in bytes of the register bank.
	MemorySize = RegisterCount * RegisterSize
)

// Memory is the register bank: 256 little-endian 4-byte registers. Register
// n occupies bytes [4n, 4n+4). Narrower accessors read and write the low
// bytes of a register.
type Memory struct {
	buf [MemorySize]byte
}

func (m *Memory) Signed(reg uint8) int32 {
	return int32(m.Unsigned(reg))
}

func (m *Memory) SetSigned(reg uint8, v int32) {
	m.SetUnsigned(reg, uint32(v))
}

func (m *Memory) Unsigned(reg uint8) uint32 {
	return binary.LittleEndian.Uint32(m.buf[int(reg)*RegisterSize:])
}

func (m *Memory) SetUnsigned(reg uint8, v uint32) {
	binary.LittleEndian.PutUint32(m.buf[int(reg)*RegisterSize:], v)
}

func (m *Memory) Word(reg uint8) uint16 {
	return binary.LittleEndian.Uint16(m.buf[int(reg)*RegisterSize:])
}

func (m *Memory) SetWord(reg uint8, v uint16) {
	binary.LittleEndian.PutUint16(m.buf[int(reg)*RegisterSize:], v)
}

func (m *Memory) Byte(reg uint8) uint8 {
	return m.buf[int(reg)*RegisterSize]
}

func (m *Memory) SetByte(reg uint8, v uint8) {
	m.buf[int(reg)*RegisterSize] = v
}

func (m *Memory) Float(reg uint8) float32 {
	return math.Float32frombits(m.Unsigned(reg))
}

func (m *Memory) SetFloat(reg uint8, v float32) {
	m.SetUnsigned(reg, math.Float32bits(v))
}

// Zero clears every register.
func (m *Memory) Zero() {
	m.buf = [MemorySize]byte{}
}

// Bytes returns the raw register bank from offset to the end. The slice
// aliases the bank.
func (m *Memory) Bytes(offset int) []byte {
	return m.buf[offset:]
}

// Address returns the byte offset of a register, as seen by leta and
// arg_pusha.
func Address(reg uint8) uint32 {
	return uint32(reg) * RegisterSize
}
