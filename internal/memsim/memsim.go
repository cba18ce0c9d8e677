// Package memsim implements the sparse byte-addressable memory model
// shared by the interpreter and the cache: a map-backed 32-bit address
// space that reads as zero until written, giving O(1)-expected access
// without allocating the whole space up front.
package memsim

import "encoding/binary"

// Memory is a 32-bit address space of bytes, default zero on read.
type Memory struct {
	bytes map[uint32]byte
}

// New returns an empty memory, all addresses reading as zero.
func New() *Memory {
	return &Memory{bytes: make(map[uint32]byte)}
}

// ReadByte returns the byte at addr, or 0 if it was never written.
func (m *Memory) ReadByte(addr uint32) byte {
	return m.bytes[addr]
}

// WriteByte stores a single byte at addr.
func (m *Memory) WriteByte(addr uint32, v byte) {
	m.bytes[addr] = v
}

// Read reads n little-endian bytes starting at addr, composing them
// from single-byte reads.
func (m *Memory) Read(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = m.ReadByte(addr + uint32(i))
	}
	return out
}

// Write writes data as little-endian bytes starting at addr.
func (m *Memory) Write(addr uint32, data []byte) {
	for i, b := range data {
		m.WriteByte(addr+uint32(i), b)
	}
}

// ReadUint64 reads 8 little-endian bytes as an unsigned 64-bit value.
func (m *Memory) ReadUint64(addr uint32) uint64 {
	return binary.LittleEndian.Uint64(m.Read(addr, 8))
}

// WriteUint64 writes v as 8 little-endian bytes starting at addr.
func (m *Memory) WriteUint64(addr uint32, v uint64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	m.Write(addr, buf)
}

// WriteSized writes the low size*8 bits of v as size little-endian bytes,
// for size in {1, 2, 4, 8} (store instruction widths).
func (m *Memory) WriteSized(addr uint32, v uint64, size int) {
	if size == 8 {
		m.WriteUint64(addr, v)
		return
	}
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	m.Write(addr, buf)
}

// ReadSized reads size little-endian bytes starting at addr and returns
// them packed into the low bits of a uint64, zero-extended.
func (m *Memory) ReadSized(addr uint32, size int) uint64 {
	if size == 8 {
		return m.ReadUint64(addr)
	}
	data := m.Read(addr, size)
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = (v << 8) | uint64(data[i])
	}
	return v
}

// Reset clears every stored byte.
func (m *Memory) Reset() {
	m.bytes = make(map[uint32]byte)
}

// Len reports how many distinct addresses have been written since the
// last Reset, counting addresses written with zero; used by tests, not
// by the interpreter.
func (m *Memory) Len() int {
	return len(m.bytes)
}
