package machine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zaynotley/rv64sim/internal/cache"
)

func writeCfg(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.cfg")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestParseCacheConfigValid(t *testing.T) {
	path := writeCfg(t, "64\n16\n2\nLRU\nWB\n")
	cfg, err := parseCacheConfig(path)
	if err != nil {
		t.Fatalf("parseCacheConfig: %v", err)
	}
	if cfg.size != 64 || cfg.block != 16 || cfg.assoc != 2 {
		t.Errorf("cfg geometry = %+v", cfg)
	}
	if cfg.rep != cache.LRU || cfg.write != cache.WriteBack {
		t.Errorf("cfg policy = %+v", cfg)
	}
}

func TestParseCacheConfigFullyAssociative(t *testing.T) {
	path := writeCfg(t, "64\n16\n0\nFIFO\nWT\n")
	cfg, err := parseCacheConfig(path)
	if err != nil {
		t.Fatalf("parseCacheConfig: %v", err)
	}
	if cfg.assoc != 0 {
		t.Errorf("cfg.assoc = %d, want 0 (fully associative)", cfg.assoc)
	}
}

func TestParseCacheConfigWrongLineCount(t *testing.T) {
	path := writeCfg(t, "64\n16\n2\n")
	if _, err := parseCacheConfig(path); err == nil {
		t.Fatal("expected error for a 3-line config file")
	}
}

func TestParseCacheConfigBadSize(t *testing.T) {
	// cache size not a power of two.
	path := writeCfg(t, "48\n16\n2\nLRU\nWB\n")
	if _, err := parseCacheConfig(path); err == nil {
		t.Fatal("expected error for non-power-of-two cache size")
	}
}

func TestParseCacheConfigBadGeometry(t *testing.T) {
	// block size not a power of two.
	path := writeCfg(t, "64\n10\n2\nLRU\nWB\n")
	if _, err := parseCacheConfig(path); err == nil {
		t.Fatal("expected error for non-power-of-two block size")
	}
}

func TestParseCacheConfigUnevenSets(t *testing.T) {
	// size doesn't divide evenly into block*assoc.
	path := writeCfg(t, "64\n16\n3\nLRU\nWB\n")
	if _, err := parseCacheConfig(path); err == nil {
		t.Fatal("expected error when cache_size is not a multiple of block_size*associativity")
	}
}

func TestParseCacheConfigBadPolicy(t *testing.T) {
	path := writeCfg(t, "64\n16\n2\nMRU\nWB\n")
	if _, err := parseCacheConfig(path); err == nil {
		t.Fatal("expected error for unrecognized replacement policy")
	}
}
