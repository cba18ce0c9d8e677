package machine

import (
	"os"
	"path/filepath"
	"testing"
)

func loadProgram(t *testing.T, body string) *Machine {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.s")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m := New()
	if err := m.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestEmptyTextSegment(t *testing.T) {
	m := loadProgram(t, "")
	msg, ran := m.Step()
	if ran {
		t.Fatal("Step on empty program should not report it ran")
	}
	if msg != "Nothing to step" {
		t.Errorf("message = %q, want %q", msg, "Nothing to step")
	}
	for i, v := range m.CPU.Regs {
		if v != 0 {
			t.Errorf("x%d = %d, want 0", i, v)
		}
	}
}

func TestTwoInstructionAddiChain(t *testing.T) {
	m := loadProgram(t, "addi x1, x0, 5\naddi x2, x1, -3\n")

	if _, ran := m.Step(); !ran {
		t.Fatal("first step should run")
	}
	if _, ran := m.Step(); !ran {
		t.Fatal("second step should run")
	}

	if m.CPU.Regs[1] != 5 {
		t.Errorf("x1 = %d, want 5", m.CPU.Regs[1])
	}
	if m.CPU.Regs[2] != 2 {
		t.Errorf("x2 = %d, want 2", m.CPU.Regs[2])
	}
	if m.CPU.PC != 8 {
		t.Errorf("PC = %d, want 8", m.CPU.PC)
	}
}

func TestBranchLoopConverges(t *testing.T) {
	m := loadProgram(t,
		"addi x2, x0, 3\n"+
			"L: addi x1, x1, 1\n"+
			"bne x1, x2, L\n",
	)
	if msg := m.Run(); msg != "" {
		t.Fatalf("Run returned %q, want a clean halt", msg)
	}
	if m.CPU.Regs[1] != 3 {
		t.Errorf("x1 = %d, want 3", m.CPU.Regs[1])
	}
	if m.State != Halted {
		t.Errorf("State = %v, want Halted", m.State)
	}
}

func TestStoreLoadLittleEndianThroughMachine(t *testing.T) {
	m := loadProgram(t,
		"addi x5, x0, 258\n"+ // 0x0102
			"sw x5, 0(x0)\n"+
			"lw x6, 0(x0)\n",
	)
	if msg := m.Run(); msg != "" {
		t.Fatalf("Run returned %q", msg)
	}
	if m.CPU.Regs[6] != 258 {
		t.Errorf("x6 after load = %d, want 258", m.CPU.Regs[6])
	}
	got := m.Mem(0, 4)
	want := []byte{2, 1, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = %#02X, want %#02X", i, got[i], want[i])
		}
	}
}

func TestJalJalrRoundTripShowsOnlyMain(t *testing.T) {
	m := loadProgram(t,
		"jal ra, F\n"+
			"F: jalr x0, 0(ra)\n",
	)
	if got := m.ShowStack(); len(got) != 1 || got[0] != "main" {
		t.Fatalf("initial stack = %v, want [main]", got)
	}

	if _, ran := m.Step(); !ran { // jal
		t.Fatal("jal step should run")
	}
	if got := m.ShowStack(); len(got) != 2 || got[1] != "F" {
		t.Fatalf("stack after jal = %v, want [main F]", got)
	}

	if _, ran := m.Step(); !ran { // jalr
		t.Fatal("jalr step should run")
	}
	if got := m.ShowStack(); len(got) != 1 || got[0] != "main" {
		t.Fatalf("stack after jalr = %v, want [main]", got)
	}
}

func TestBreakpointPausesRunAndCanBeCleared(t *testing.T) {
	m := loadProgram(t,
		"addi x1, x0, 1\n"+
			"addi x1, x1, 1\n"+
			"addi x1, x1, 1\n",
	)
	if err := m.SetBreak(2); err != nil {
		t.Fatalf("SetBreak: %v", err)
	}

	msg := m.Run()
	if msg == "" {
		t.Fatal("Run should have paused at the breakpoint")
	}
	if m.CPU.Regs[1] != 1 {
		t.Errorf("x1 after first run = %d, want 1 (paused before the second instruction)", m.CPU.Regs[1])
	}

	if err := m.ClearBreak(2); err != nil {
		t.Fatalf("ClearBreak: %v", err)
	}
	if msg := m.Run(); msg != "" {
		t.Fatalf("Run after clearing breakpoint returned %q, want a clean halt", msg)
	}
	if m.CPU.Regs[1] != 3 {
		t.Errorf("x1 after second run = %d, want 3", m.CPU.Regs[1])
	}
}

func TestRegsFormatting(t *testing.T) {
	m := loadProgram(t, "addi x1, x0, 1\n")
	m.Step()
	regs := m.Regs()
	if len(regs) != 32 {
		t.Fatalf("len(Regs()) = %d, want 32", len(regs))
	}
	if regs[1] != "x1  = 0x0000000000000001" {
		t.Errorf("regs[1] = %q", regs[1])
	}
}
