package machine

import (
	"fmt"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"github.com/zaynotley/rv64sim/internal/cache"
)

// cacheCfg is the five validated fields a cache configuration file
// carries.
type cacheCfg struct {
	size, block, assoc int
	rep                cache.Policy
	write              cache.WritePolicy
}

// parseCacheConfig reads and validates a five-line cache configuration
// file. Any validation failure is reported as an error and the caller
// leaves the cache disabled.
func parseCacheConfig(path string) (cacheCfg, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cacheCfg{}, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 5 {
		return cacheCfg{}, fmt.Errorf("cache config must have exactly 5 lines, got %d", len(lines))
	}

	size, err := parsePositiveInt(lines[0])
	if err != nil {
		return cacheCfg{}, fmt.Errorf("cache size: %w", err)
	}
	block, err := parsePositiveInt(lines[1])
	if err != nil {
		return cacheCfg{}, fmt.Errorf("block size: %w", err)
	}
	assoc, err := parseNonNegativeInt(lines[2])
	if err != nil {
		return cacheCfg{}, fmt.Errorf("associativity: %w", err)
	}

	rep, ok := parsePolicy(lines[3])
	if !ok {
		return cacheCfg{}, fmt.Errorf("replacement policy must be LRU|FIFO|RANDOM, got %q", lines[3])
	}
	write, ok := parseWritePolicy(lines[4])
	if !ok {
		return cacheCfg{}, fmt.Errorf("write policy must be WB|WT, got %q", lines[4])
	}

	if !isPowerOfTwo(size) {
		return cacheCfg{}, fmt.Errorf("cache size %d is not a power of two", size)
	}
	if !isPowerOfTwo(block) {
		return cacheCfg{}, fmt.Errorf("block size %d is not a power of two", block)
	}

	effAssoc := assoc
	if assoc == 0 {
		effAssoc = size / block
	}
	if effAssoc == 0 || size%(block*effAssoc) != 0 {
		return cacheCfg{}, fmt.Errorf("cache_size %% (block_size * associativity) != 0")
	}

	return cacheCfg{size: size, block: block, assoc: assoc, rep: rep, write: write}, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func parseNonNegativeInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must be non-negative, got %d", n)
	}
	return n, nil
}

func parsePolicy(s string) (cache.Policy, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LRU":
		return cache.LRU, true
	case "FIFO":
		return cache.FIFO, true
	case "RANDOM":
		return cache.RANDOM, true
	default:
		return 0, false
	}
}

func parseWritePolicy(s string) (cache.WritePolicy, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WB":
		return cache.WriteBack, true
	case "WT":
		return cache.WriteThrough, true
	default:
		return 0, false
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}
