// Package machine is the orchestrator. It owns the lifecycle — load,
// step, run — and wires the lexer, label table, data loader, assembler,
// interpreter, and optional cache together behind a single Machine
// value.
package machine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zaynotley/rv64sim/internal/asm"
	"github.com/zaynotley/rv64sim/internal/cache"
	"github.com/zaynotley/rv64sim/internal/cpu"
	"github.com/zaynotley/rv64sim/internal/dataseg"
	"github.com/zaynotley/rv64sim/internal/labels"
	"github.com/zaynotley/rv64sim/internal/lexnorm"
	"github.com/zaynotley/rv64sim/internal/memsim"
)

// State is the orchestrator's lifecycle state.
type State int

const (
	Idle State = iota
	Ready
	Running
	Halted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Running:
		return "running"
	default:
		return "halted"
	}
}

// maxRunSteps is the infinite-loop guard for `run`.
const maxRunSteps = 1_000_000

// Machine owns every piece of state reset on each Load: registers,
// memory, the assembled instruction stream, the label table, and the
// call stack. The cache configuration, when enabled, outlives individual
// loads; each Load rebuilds the cache over the new memory, with every
// line invalid, zeroed counters, and a fresh journal.
type Machine struct {
	CPU    *cpu.CPU
	Memory *memsim.Memory
	Labels *labels.Table

	Instructions []asm.Instruction
	State        State

	current int // 1-based index into Instructions, mirrors spec's current_instruction

	lastHaltedAt int // instruction index the most recent breakpoint pause latched on

	Cache       *cache.Cache
	journalFile *os.File
	sourcePath  string
}

// New returns an idle machine with no program loaded.
func New() *Machine {
	mem := memsim.New()
	return &Machine{
		Memory:  mem,
		CPU:     cpu.New(mem),
		Labels:  labels.New(),
		current: 1,
		State:   Idle,
	}
}

// Load resets all machine state and parses/assembles path. On any
// failure the machine is left idle so subsequent step/run/break are
// rejected.
func (m *Machine) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		m.State = Idle
		return err
	}

	lines := strings.Split(string(data), "\n")
	dataLines, textLines, firstTextFileLine := splitSegments(lines)

	mem := memsim.New()
	diags := dataseg.Load(mem, dataLines)
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "warning: %s at line %d\n", d.Msg, d.Line)
	}

	textLineRecords := make([]labels.Line, len(textLines))
	for i, t := range textLines {
		textLineRecords[i] = labels.Line{Text: t, SourceLine: firstTextFileLine + i}
	}

	lbl, err := labels.Build(textLineRecords)
	if err != nil {
		m.State = Idle
		return err
	}

	instrs, err := asm.Assemble(textLineRecords, lbl)
	if err != nil {
		m.State = Idle
		return err
	}

	m.Memory = mem
	m.Labels = lbl
	m.Instructions = instrs
	m.CPU = cpu.New(mem)
	m.current = 1
	m.lastHaltedAt = 0
	m.sourcePath = path

	if len(instrs) > 0 {
		m.CPU.InitStack("main", instrs[0].SourceLine)
	} else {
		m.CPU.InitStack("main", 0)
	}

	if m.Cache != nil {
		m.reopenJournal(path)
		old := m.Cache
		m.Cache = cache.New(mem, old.Size, old.BlockSize, old.Assoc, old.Rep, old.WritePolicy, m.journalFile)
		m.CPU.SetAccessor(m.Cache)
	}

	m.State = Ready
	return nil
}

// splitSegments separates an optional leading .data section from the
// .text section; if .text is absent the whole file is text. Returns the
// raw .data lines, the raw .text lines, and the absolute file line
// number of the first text line.
func splitSegments(lines []string) (dataLines, textLines []string, firstTextLine int) {
	textStart := -1
	for i, l := range lines {
		if strings.TrimSpace(lexnorm.Normalize(l)) == ".text" {
			textStart = i
			break
		}
	}

	if textStart < 0 {
		return nil, lines, 1
	}

	dataStart := -1
	for i := 0; i < textStart; i++ {
		if strings.TrimSpace(lexnorm.Normalize(lines[i])) == ".data" {
			dataStart = i
			break
		}
	}
	if dataStart < 0 {
		return nil, lines[textStart+1:], textStart + 2
	}
	return lines[dataStart+1 : textStart], lines[textStart+1:], textStart + 2
}

// EnableCache parses a cache configuration file and enables the cache.
// Invalid files leave the cache disabled.
func (m *Machine) EnableCache(cfgPath string) error {
	cfg, err := parseCacheConfig(cfgPath)
	if err != nil {
		return err
	}

	m.reopenJournal(m.sourcePath)
	m.Cache = cache.New(m.Memory, cfg.size, cfg.block, cfg.assoc, cfg.rep, cfg.write, m.journalFile)
	m.CPU.SetAccessor(m.Cache)
	return nil
}

// DisableCache turns the cache off; loads/stores go straight to memory.
func (m *Machine) DisableCache() {
	m.Cache = nil
	m.CPU.SetAccessor(m.Memory)
	if m.journalFile != nil {
		m.journalFile.Close()
		m.journalFile = nil
	}
}

func (m *Machine) reopenJournal(sourcePath string) {
	if m.journalFile != nil {
		m.journalFile.Close()
	}
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	f, err := os.Create(base + ".output")
	if err != nil {
		m.journalFile = nil
		return
	}
	m.journalFile = f
}

// Step executes one instruction, or stops before executing if the
// upcoming instruction carries a breakpoint not just paused on. Returns
// false with "Nothing to step" when the text segment is empty, "halted"
// when past the last instruction, and "nothing loaded" when idle.
func (m *Machine) Step() (string, bool) {
	if m.State == Idle {
		return "nothing loaded", false
	}
	if len(m.Instructions) == 0 {
		m.State = Halted
		return "Nothing to step", false
	}
	if m.current > len(m.Instructions) {
		m.State = Halted
		return "halted", false
	}

	instr := m.Instructions[m.current-1]
	if instr.Breakpoint && m.lastHaltedAt != m.current {
		m.lastHaltedAt = m.current
		return fmt.Sprintf("breakpoint at line %d", instr.SourceLine), false
	}
	m.lastHaltedAt = 0

	m.State = Running
	m.execOne(instr)

	if m.current > len(m.Instructions) {
		m.State = Halted
	}
	return "", true
}

// execOne runs one already-fetched instruction and advances m.current
// to match the CPU's new PC.
func (m *Machine) execOne(instr asm.Instruction) {
	textIndexAt := func(pc uint32) int { return int(pc/4) + 1 }
	resolveLabel := func(textIndex int) (string, int, bool) {
		name, ok := m.Labels.NameAt(textIndex)
		if !ok {
			return "", 0, false
		}
		line := 0
		if i := textIndex - 1; i >= 0 && i < len(m.Instructions) {
			line = m.Instructions[i].SourceLine
		}
		return name, line, true
	}
	m.CPU.PC = uint32(m.current-1) * 4
	m.CPU.Exec(instr.Word, textIndexAt, resolveLabel)
	m.current = int(m.CPU.PC/4) + 1
}

// Run steps until halted, a breakpoint fires, or the 1e6-step guard
// trips.
func (m *Machine) Run() string {
	for i := 0; i < maxRunSteps; i++ {
		if m.current > len(m.Instructions) {
			m.State = Halted
			return ""
		}
		msg, ran := m.Step()
		if !ran {
			return msg
		}
	}
	m.State = Halted
	return "timeout"
}

// SetBreak sets a breakpoint keyed by source line.
func (m *Machine) SetBreak(sourceLine int) error {
	for i := range m.Instructions {
		if m.Instructions[i].SourceLine == sourceLine {
			m.Instructions[i].Breakpoint = true
			return nil
		}
	}
	return fmt.Errorf("no instruction at line %d", sourceLine)
}

// ClearBreak clears a breakpoint keyed by source line.
func (m *Machine) ClearBreak(sourceLine int) error {
	for i := range m.Instructions {
		if m.Instructions[i].SourceLine == sourceLine {
			m.Instructions[i].Breakpoint = false
			return nil
		}
	}
	return fmt.Errorf("no instruction at line %d", sourceLine)
}

// Regs returns all 32 registers as hex strings.
func (m *Machine) Regs() []string {
	out := make([]string, 32)
	for i, v := range m.CPU.Regs {
		out[i] = fmt.Sprintf("x%-2d = 0x%016X", i, uint64(v))
	}
	return out
}

// Mem returns n bytes starting at addr.
func (m *Machine) Mem(addr uint32, n int) []byte {
	return m.Memory.Read(addr, n)
}

// ShowStack reports the call stack bottom to top; the bottom frame is
// "main" unless jalr has popped past it, in which case the stack (and
// this list) is empty.
func (m *Machine) ShowStack() []string {
	out := make([]string, 0, len(m.CPU.Stack))
	for _, f := range m.CPU.Stack {
		name := f.Function
		if name == "" {
			name = "?"
		}
		out = append(out, name)
	}
	return out
}
