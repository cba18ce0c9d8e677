// Package cache implements the optional set-associative L1 data cache:
// geometry derived from a configuration file, LRU/FIFO/RANDOM
// replacement, write-back/write-through policy, and a flushed-per-access
// journal.
package cache

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"
	"math/rand"

	"github.com/zaynotley/rv64sim/internal/memsim"
)

// Policy is the victim-selection strategy for a full set.
type Policy int

const (
	LRU Policy = iota
	FIFO
	RANDOM
)

func (p Policy) String() string {
	switch p {
	case LRU:
		return "LRU"
	case FIFO:
		return "FIFO"
	default:
		return "RANDOM"
	}
}

// WritePolicy is the cache's write-hit/write-miss behavior.
type WritePolicy int

const (
	WriteBack WritePolicy = iota
	WriteThrough
)

func (w WritePolicy) String() string {
	if w == WriteBack {
		return "WB"
	}
	return "WT"
}

// Line is one cache line: a tag, its data bytes, and valid/dirty flags
// plus the two timestamps the replacement policies read.
type Line struct {
	Valid      bool
	Dirty      bool
	Tag        uint32
	Data       []byte
	ArrivalAt  uint64
	LastUseAt  uint64
}

// Cache is a set-associative L1 data cache layered in front of memsim.Memory.
type Cache struct {
	mem *memsim.Memory

	Size          int
	BlockSize     int
	Assoc         int
	Sets          int
	OffsetBits    uint
	IndexBits     uint
	TagBits       uint
	Rep           Policy
	WritePolicy   WritePolicy

	lines [][]Line // lines[set][way]

	clock    uint64
	Accesses uint64
	Hits     uint64
	Misses   uint64

	rng     *rand.Rand
	journal io.Writer
}

// New builds a cache from the five geometry/policy parameters already
// validated by the configuration loader. associativity == 0 means fully
// associative: a single set spanning the whole cache.
func New(mem *memsim.Memory, size, blockSize, associativity int, rep Policy, write WritePolicy, journal io.Writer) *Cache {
	assoc := associativity
	sets := 1
	if associativity == 0 {
		assoc = size / blockSize
	} else {
		sets = size / (blockSize * assoc)
	}

	offsetBits := uint(bits.Len(uint(blockSize - 1)))
	indexBits := uint(0)
	if sets > 1 {
		indexBits = uint(bits.Len(uint(sets - 1)))
	}
	tagBits := uint(20) - indexBits - offsetBits

	lines := make([][]Line, sets)
	for s := range lines {
		lines[s] = make([]Line, assoc)
		for w := range lines[s] {
			lines[s][w].Data = make([]byte, blockSize)
		}
	}

	// RANDOM replacement draws from a source with the fixed seed 1, so
	// every run with the same access sequence evicts the same ways.
	c := &Cache{
		mem:        mem,
		Size:       size,
		BlockSize:  blockSize,
		Assoc:      assoc,
		Sets:       sets,
		OffsetBits: offsetBits,
		IndexBits:  indexBits,
		TagBits:    tagBits,
		Rep:        rep,
		WritePolicy: write,
		lines:      lines,
		rng:        rand.New(rand.NewSource(1)),
		journal:    journal,
	}
	return c
}

// decompose splits a 32-bit address into offset/index/tag per the
// cache's configured field widths.
func (c *Cache) decompose(addr uint32) (offset, index, tag uint32) {
	offset = addr & ((1 << c.OffsetBits) - 1)
	if c.IndexBits > 0 {
		index = (addr >> c.OffsetBits) & ((1 << c.IndexBits) - 1)
	}
	tag = (addr >> (c.OffsetBits + c.IndexBits)) & ((1 << c.TagBits) - 1)
	return
}

func (c *Cache) blockBase(index, tag uint32) uint32 {
	return (tag << (c.OffsetBits + c.IndexBits)) | (index << c.OffsetBits)
}

func (c *Cache) findWay(set uint32, tag uint32) int {
	for w, ln := range c.lines[set] {
		if ln.Valid && ln.Tag == tag {
			return w
		}
	}
	return -1
}

func (c *Cache) chooseVictim(set uint32) int {
	lines := c.lines[set]
	switch c.Rep {
	case FIFO:
		best, bestAt := 0, lines[0].ArrivalAt
		for w := 1; w < len(lines); w++ {
			if lines[w].ArrivalAt < bestAt {
				best, bestAt = w, lines[w].ArrivalAt
			}
		}
		return best
	case RANDOM:
		return c.rng.Intn(len(lines))
	default: // LRU
		best, bestAt := 0, lines[0].LastUseAt
		for w := 1; w < len(lines); w++ {
			if lines[w].LastUseAt < bestAt {
				best, bestAt = w, lines[w].LastUseAt
			}
		}
		return best
	}
}

// writeBack flushes a dirty victim's bytes to memory at its
// reconstructed address.
func (c *Cache) writeBack(index uint32, ln *Line) {
	if !ln.Valid || !ln.Dirty || c.WritePolicy != WriteBack {
		return
	}
	base := c.blockBase(index, ln.Tag)
	c.mem.Write(base, ln.Data)
}

func (c *Cache) fill(index, tag uint32, ln *Line) {
	base := c.blockBase(index, tag)
	copy(ln.Data, c.mem.Read(base, c.BlockSize))
	ln.Valid = true
	ln.Dirty = false
	ln.Tag = tag
	ln.ArrivalAt = c.clock
	ln.LastUseAt = c.clock
}

// Read services a load of size bytes at addr, servicing it from the
// cache and falling through to memory on miss.
func (c *Cache) Read(addr uint32, size int) uint64 {
	offset, index, tag := c.decompose(addr)
	c.clock++
	c.Accesses++

	if way := c.findWay(index, tag); way >= 0 {
		ln := &c.lines[index][way]
		ln.LastUseAt = c.clock
		c.Hits++
		c.logAccess('R', addr, index, tag, true, ln.Dirty)
		return readSized(ln.Data, offset, size)
	}

	c.Misses++
	way := c.chooseVictim(index)
	ln := &c.lines[index][way]
	c.writeBack(index, ln)
	c.fill(index, tag, ln)
	c.logAccess('R', addr, index, tag, false, ln.Dirty)
	return readSized(ln.Data, offset, size)
}

// Write services a store of size bytes at addr, honoring the cache's
// write-back/write-through policy on both hit and miss.
func (c *Cache) Write(addr uint32, v uint64, size int) {
	offset, index, tag := c.decompose(addr)
	c.clock++
	c.Accesses++

	if way := c.findWay(index, tag); way >= 0 {
		ln := &c.lines[index][way]
		ln.LastUseAt = c.clock
		c.Hits++
		writeSized(ln.Data, offset, v, size)
		if c.WritePolicy == WriteBack {
			ln.Dirty = true
		} else {
			c.mem.WriteSized(addr, v, size)
		}
		c.logAccess('W', addr, index, tag, true, ln.Dirty)
		return
	}

	c.Misses++
	way := c.chooseVictim(index)
	ln := &c.lines[index][way]
	c.writeBack(index, ln)

	if c.WritePolicy == WriteBack {
		c.fill(index, tag, ln)
		writeSized(ln.Data, offset, v, size)
		ln.Dirty = true
		c.logAccess('W', addr, index, tag, false, ln.Dirty)
		return
	}

	// Write-through miss: do not allocate, write straight to memory,
	// leave the set unchanged.
	c.mem.WriteSized(addr, v, size)
	c.logAccess('W', addr, index, tag, false, false)
}

func readSized(data []byte, offset uint32, size int) uint64 {
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = (v << 8) | uint64(data[int(offset)+i])
	}
	return v
}

func writeSized(data []byte, offset uint32, v uint64, size int) {
	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(v >> (8 * uint(i)))
	}
}

// ReadSized/WriteSized satisfy internal/cpu.Accessor, routing load/store
// instructions through the cache instead of memory directly.
func (c *Cache) ReadSized(addr uint32, size int) uint64  { return c.Read(addr, size) }
func (c *Cache) WriteSized(addr uint32, v uint64, size int) { c.Write(addr, v, size) }

// logAccess appends one journal line and flushes immediately for crash
// safety; the dirty/clean label reflects line state after the access.
func (c *Cache) logAccess(kind byte, addr, index, tag uint32, hit, dirty bool) {
	if c.journal == nil {
		return
	}
	status := "Miss"
	if hit {
		status = "Hit"
	}
	dc := "Clean"
	if dirty {
		dc = "Dirty"
	}
	fmt.Fprintf(c.journal, "%c: Address: 0x%X, Set: 0x%X, %s, Tag: 0x%X, %s\n", kind, addr, index, status, tag, dc)
	if f, ok := c.journal.(interface{ Sync() error }); ok {
		f.Sync()
	} else if f, ok := c.journal.(*bufio.Writer); ok {
		f.Flush()
	}
}

// Invalidate clears every line's valid/dirty flags without touching
// memory (used on cache_sim invalidate; each load builds a fresh cache).
func (c *Cache) Invalidate() {
	for s := range c.lines {
		for w := range c.lines[s] {
			c.lines[s][w] = Line{Data: make([]byte, c.BlockSize)}
		}
	}
	c.Accesses, c.Hits, c.Misses, c.clock = 0, 0, 0, 0
}

// Status reports cache geometry and policy.
func (c *Cache) Status() string {
	return fmt.Sprintf(
		"Cache Size: %d\nBlock Size: %d\nAssociativity: %d\nReplacement Policy: %s\nWrite Back Policy: %s\n",
		c.Size, c.BlockSize, c.Assoc, c.Rep, c.WritePolicy)
}

// Dump reports every line's valid/dirty/tag state, set by set, way by
// way.
func (c *Cache) Dump(w io.Writer) {
	for s := range c.lines {
		for way, ln := range c.lines[s] {
			fmt.Fprintf(w, "Set 0x%X Way %d: Valid=%v Dirty=%v Tag=0x%X\n", s, way, ln.Valid, ln.Dirty, ln.Tag)
		}
	}
}

// Stats reports the three running counters; accesses == hits + misses
// always holds.
func (c *Cache) Stats() (accesses, hits, misses uint64) {
	return c.Accesses, c.Hits, c.Misses
}
