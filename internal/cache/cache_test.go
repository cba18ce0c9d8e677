package cache

import (
	"bytes"
	"testing"

	"github.com/zaynotley/rv64sim/internal/memsim"
)

// new2Way builds a 2-way, single-set cache (block 16, size 32) — small
// enough that every access lands in the same set, which is what the
// eviction-order tests below need.
func new2Way(rep Policy, write WritePolicy) (*Cache, *memsim.Memory) {
	mem := memsim.New()
	c := New(mem, 32, 16, 2, rep, write, nil)
	return c, mem
}

func TestAccessesEqualHitsPlusMisses(t *testing.T) {
	c, _ := new2Way(LRU, WriteBack)
	c.Read(0, 4)
	c.Read(0, 4)
	c.Read(16, 4)
	c.Write(32, 7, 4)
	if c.Accesses != c.Hits+c.Misses {
		t.Errorf("accesses=%d hits=%d misses=%d, invariant broken", c.Accesses, c.Hits, c.Misses)
	}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := new2Way(LRU, WriteBack)
	c.Read(0, 4)  // A: miss, fills way0
	c.Read(16, 4) // B: miss, fills way1
	c.Read(0, 4)  // A again: hit, refreshes way0's LastUseAt
	c.Read(32, 4) // C: miss, should evict B (way1), the least recently used

	if way := c.findWay(0, 0); way < 0 {
		t.Error("A (tag 0) should still be resident after the LRU eviction")
	}
	if way := c.findWay(0, 1); way >= 0 {
		t.Error("B (tag 1) should have been evicted by LRU")
	}
	if way := c.findWay(0, 2); way < 0 {
		t.Error("C (tag 2) should be resident after its fill")
	}
}

func TestFIFOEvictsFirstIn(t *testing.T) {
	c, _ := new2Way(FIFO, WriteBack)
	c.Read(0, 4)  // A: miss, fills way0, ArrivalAt=1
	c.Read(16, 4) // B: miss, fills way1, ArrivalAt=2
	c.Read(0, 4)  // A again: hit, ArrivalAt unchanged
	c.Read(32, 4) // C: miss, should evict A, the first one filled

	if way := c.findWay(0, 0); way >= 0 {
		t.Error("A (tag 0) should have been evicted by FIFO despite the recent hit")
	}
	if way := c.findWay(0, 1); way < 0 {
		t.Error("B (tag 1) should still be resident")
	}
}

func TestWriteBackDefersFlushUntilEviction(t *testing.T) {
	c, mem := new2Way(LRU, WriteBack)
	c.Write(0, 0xAA, 1)  // fills way0, dirty
	c.Write(16, 0xBB, 1) // fills way1, dirty

	if v := mem.ReadByte(0); v != 0 {
		t.Errorf("write-back should not touch memory before eviction, got %#X", v)
	}

	c.Write(32, 0xCC, 1) // evicts way0 (A, LRU), should flush it to memory

	if v := mem.ReadByte(0); v != 0xAA {
		t.Errorf("memory at evicted block = %#X, want 0xAA flushed on eviction", v)
	}
}

func TestWriteThroughAppliesImmediately(t *testing.T) {
	c, mem := new2Way(LRU, WriteThrough)
	c.Write(0, 0xAA, 1)
	if v := mem.ReadByte(0); v != 0xAA {
		t.Errorf("write-through should apply to memory immediately, got %#X", v)
	}
}

func TestFullyAssociativeConfigDoesNotPanic(t *testing.T) {
	mem := memsim.New()
	c := New(mem, 64, 16, 0, LRU, WriteBack, nil)
	if c.Sets != 1 {
		t.Errorf("fully-associative Sets = %d, want 1", c.Sets)
	}
	if c.Assoc != 4 {
		t.Errorf("fully-associative Assoc = %d, want 4 (size/blockSize)", c.Assoc)
	}
	c.Read(0, 4)
	c.Read(16, 4)
	c.Read(32, 4)
	c.Read(48, 4)
	c.Read(64, 4) // fifth distinct block, forces an eviction
	if c.Misses != 5 {
		t.Errorf("misses = %d, want 5", c.Misses)
	}
}

func TestInvalidateResetsCountersAndLines(t *testing.T) {
	c, _ := new2Way(LRU, WriteBack)
	c.Read(0, 4)
	c.Invalidate()
	if c.Accesses != 0 || c.Hits != 0 || c.Misses != 0 {
		t.Errorf("counters after Invalidate = %d/%d/%d, want all zero", c.Accesses, c.Hits, c.Misses)
	}
	if way := c.findWay(0, 0); way >= 0 {
		t.Error("line should be invalid after Invalidate")
	}
}

func TestStatusAndDump(t *testing.T) {
	c, _ := new2Way(LRU, WriteBack)
	c.Read(0, 4)
	status := c.Status()
	if !bytes.Contains([]byte(status), []byte("LRU")) {
		t.Errorf("Status() = %q, want it to mention the replacement policy", status)
	}

	var buf bytes.Buffer
	c.Dump(&buf)
	if buf.Len() == 0 {
		t.Error("Dump wrote nothing")
	}
}
