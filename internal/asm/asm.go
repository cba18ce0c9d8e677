// Package asm is the two-pass assembler: it normalizes and classifies
// each text-segment line, resolves register/immediate/label operands,
// and encodes a 32-bit RV32I-layout instruction word.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zaynotley/rv64sim/internal/isa"
	"github.com/zaynotley/rv64sim/internal/labels"
	"github.com/zaynotley/rv64sim/internal/lexnorm"
)

// Code identifies the kind of assembly-time diagnostic.
type Code int

const (
	CodeNone             Code = 0
	CodeUnknownMnemonic  Code = 101
	CodeUnknownRd        Code = 102
	CodeUnknownRs        Code = 103
	CodeNonIntegerImm    Code = 105
	CodeBadBranchOffset  Code = 106
	CodeBadShiftAmount   Code = 107
	CodeBadIS12Immediate Code = 108
	CodeLabelNotFound    Code = 109
	CodeBadU20Immediate  Code = 110
	CodeBadJOffset       Code = 111
	CodeMalformedJalr    Code = 112
)

// Error is a structured assembly error: a code plus the line it occurred
// on.
type Error struct {
	Code Code
	Line int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s (code %d)", e.Line, e.Msg, e.Code)
}

func errf(code Code, line int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Instruction is one assembled text-segment entry.
type Instruction struct {
	Word       uint32
	Source     string
	SourceLine int
	Breakpoint bool
}

// Assemble encodes every non-label, non-blank line of the text segment
// into a 32-bit word, in order. lines pairs raw source text with its
// absolute file line number; lbl resolves label operands to text
// indices. Returns the first error encountered, aborting at that line.
func Assemble(lines []labels.Line, lbl *labels.Table) ([]Instruction, error) {
	var out []Instruction
	textLine := 1

	for _, ln := range lines {
		norm := lexnorm.Normalize(ln.Text)
		if lexnorm.IsBlank(norm) {
			continue
		}

		if _, hasLabel := lexnorm.HasLabel(norm); hasLabel {
			fields := lexnorm.Fields(norm)
			rest := strings.Join(fields[1:], " ")
			if lexnorm.IsBlank(rest) {
				continue // label-only line: no instruction emitted
			}
			norm = rest
		}

		word, err := encodeLine(norm, ln.SourceLine, textLine, lbl)
		if err != nil {
			return nil, err
		}

		out = append(out, Instruction{
			Word:       word,
			Source:     strings.TrimSpace(ln.Text),
			SourceLine: ln.SourceLine,
		})
		textLine++
	}

	return out, nil
}

func encodeLine(line string, sourceLine, textLine int, lbl *labels.Table) (uint32, error) {
	fields := lexnorm.Fields(line)
	mnemonic := strings.ToLower(fields[0])
	operands := strings.Join(fields[1:], " ")

	m, ok := isa.Lookup(mnemonic)
	if !ok {
		return 0, errf(CodeUnknownMnemonic, sourceLine, "unknown mnemonic %q", mnemonic)
	}

	switch m.Class {
	case isa.ClassR:
		return encodeR(m, operands, sourceLine)
	case isa.ClassIArith:
		return encodeIArith(mnemonic, m, operands, sourceLine)
	case isa.ClassILoad:
		return encodeILoad(m, operands, sourceLine)
	case isa.ClassIJalr:
		return encodeJalr(operands, sourceLine)
	case isa.ClassS:
		return encodeS(m, operands, sourceLine)
	case isa.ClassB:
		return encodeB(m, operands, sourceLine, textLine, lbl)
	case isa.ClassU:
		return encodeU(operands, sourceLine)
	case isa.ClassJ:
		return encodeJ(operands, sourceLine, textLine, lbl)
	default:
		return 0, errf(CodeUnknownMnemonic, sourceLine, "unclassified mnemonic %q", mnemonic)
	}
}

// splitOperands splits a comma/space-normalized operand string (commas
// already collapsed to spaces by lexnorm) into its parts.
func splitOperands(operands string) []string {
	return strings.Fields(operands)
}

func reg(name string, sourceLine int, code Code) (uint32, error) {
	i, ok := isa.Register(name)
	if !ok {
		return 0, errf(code, sourceLine, "unknown register %q", name)
	}
	return uint32(i), nil
}

func parseImm(tok string) (int64, error) {
	return strconv.ParseInt(tok, 0, 64)
}

// encodeR assembles `op rd, rs1, rs2`.
func encodeR(m isa.Mnemonic, operands string, sourceLine int) (uint32, error) {
	ops := splitOperands(operands)
	if len(ops) != 3 {
		return 0, errf(CodeUnknownRd, sourceLine, "expected 3 operands, got %d", len(ops))
	}
	rd, err := reg(ops[0], sourceLine, CodeUnknownRd)
	if err != nil {
		return 0, err
	}
	rs1, err := reg(ops[1], sourceLine, CodeUnknownRs)
	if err != nil {
		return 0, err
	}
	rs2, err := reg(ops[2], sourceLine, CodeUnknownRs)
	if err != nil {
		return 0, err
	}
	return (m.Funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (m.Funct3 << 12) | (rd << 7) | m.Opcode, nil
}

// encodeIArith assembles `op rd, rs1, imm` (arithmetic) or
// `op rd, rs1, shamt` (shifts, shamt in [1,64]).
func encodeIArith(mnemonic string, m isa.Mnemonic, operands string, sourceLine int) (uint32, error) {
	ops := splitOperands(operands)
	if len(ops) != 3 {
		return 0, errf(CodeUnknownRd, sourceLine, "expected 3 operands, got %d", len(ops))
	}
	rd, err := reg(ops[0], sourceLine, CodeUnknownRd)
	if err != nil {
		return 0, err
	}
	rs1, err := reg(ops[1], sourceLine, CodeUnknownRs)
	if err != nil {
		return 0, err
	}

	isShift := mnemonic == "slli" || mnemonic == "srli" || mnemonic == "srai"
	if isShift {
		n, perr := parseImm(ops[2])
		if perr != nil {
			return 0, errf(CodeNonIntegerImm, sourceLine, "non-integer shift amount %q", ops[2])
		}
		if n < 1 || n > 64 {
			return 0, errf(CodeBadShiftAmount, sourceLine, "shift amount %d out of range [1,64]", n)
		}
		shamt := uint32(n) & 0x3F
		funct6 := m.Funct7
		return (funct6 << 26) | (shamt << 20) | (rs1 << 15) | (m.Funct3 << 12) | (rd << 7) | m.Opcode, nil
	}

	imm, perr := parseImm(ops[2])
	if perr != nil {
		return 0, errf(CodeNonIntegerImm, sourceLine, "non-integer immediate %q", ops[2])
	}
	if imm < -2048 || imm > 2047 {
		return 0, errf(CodeBadIS12Immediate, sourceLine, "immediate %d out of range [-2048,2047]", imm)
	}
	imm12 := uint32(imm) & 0xFFF
	return (imm12 << 20) | (rs1 << 15) | (m.Funct3 << 12) | (rd << 7) | m.Opcode, nil
}

// parseOffsetReg parses the `offset(reg)` syntax shared by loads,
// stores, and jalr. The lexer has already removed spaces adjacent to
// the parens, so this operates on a single token like "16(sp)". An
// empty offset before the parens, e.g. "(sp)", is a deliberate shorthand
// for offset 0, not a malformed operand.
func parseOffsetReg(tok string) (imm string, regName string, ok bool) {
	open := strings.IndexByte(tok, '(')
	shut := strings.IndexByte(tok, ')')
	if open < 0 || shut < 0 || shut < open {
		return "", "", false
	}
	imm = tok[:open]
	regName = tok[open+1 : shut]
	if regName == "" {
		return "", "", false
	}
	if imm == "" {
		imm = "0"
	}
	return imm, regName, true
}

// encodeILoad assembles `op rd, offset(rs1)`.
func encodeILoad(m isa.Mnemonic, operands string, sourceLine int) (uint32, error) {
	ops := splitOperands(operands)
	if len(ops) != 2 {
		return 0, errf(CodeUnknownRd, sourceLine, "expected 2 operands, got %d", len(ops))
	}
	rd, err := reg(ops[0], sourceLine, CodeUnknownRd)
	if err != nil {
		return 0, err
	}
	immTok, rs1Name, ok := parseOffsetReg(ops[1])
	if !ok {
		return 0, errf(CodeUnknownRs, sourceLine, "malformed offset(reg) operand %q", ops[1])
	}
	rs1, err := reg(rs1Name, sourceLine, CodeUnknownRs)
	if err != nil {
		return 0, err
	}
	imm, perr := parseImm(immTok)
	if perr != nil {
		return 0, errf(CodeNonIntegerImm, sourceLine, "non-integer immediate %q", immTok)
	}
	if imm < -2048 || imm > 2047 {
		return 0, errf(CodeBadIS12Immediate, sourceLine, "immediate %d out of range [-2048,2047]", imm)
	}
	imm12 := uint32(imm) & 0xFFF
	return (imm12 << 20) | (rs1 << 15) | (m.Funct3 << 12) | (rd << 7) | m.Opcode, nil
}

// encodeJalr assembles `jalr rd, offset(rs1)`, reporting code 112 for
// any malformed operand (missing paren or missing source register; a
// missing immediate defaults to 0, see parseOffsetReg).
func encodeJalr(operands string, sourceLine int) (uint32, error) {
	ops := splitOperands(operands)
	if len(ops) != 2 {
		return 0, errf(CodeMalformedJalr, sourceLine, "expected 2 operands, got %d", len(ops))
	}
	rd, err := reg(ops[0], sourceLine, CodeUnknownRd)
	if err != nil {
		return 0, errf(CodeMalformedJalr, sourceLine, "unknown rd %q", ops[0])
	}
	immTok, rs1Name, ok := parseOffsetReg(ops[1])
	if !ok {
		return 0, errf(CodeMalformedJalr, sourceLine, "malformed offset(reg) operand %q", ops[1])
	}
	rs1, err := reg(rs1Name, sourceLine, CodeMalformedJalr)
	if err != nil {
		return 0, err
	}
	imm, perr := parseImm(immTok)
	if perr != nil {
		return 0, errf(CodeMalformedJalr, sourceLine, "non-integer immediate %q", immTok)
	}
	if imm < -2048 || imm > 2047 {
		return 0, errf(CodeBadIS12Immediate, sourceLine, "immediate %d out of range [-2048,2047]", imm)
	}
	imm12 := uint32(imm) & 0xFFF
	const jalrFunct3 = 0
	return (imm12 << 20) | (rs1 << 15) | (jalrFunct3 << 12) | (rd << 7) | isa.OpcodeJalr, nil
}

// encodeS assembles `op rs2, offset(rs1)`.
func encodeS(m isa.Mnemonic, operands string, sourceLine int) (uint32, error) {
	ops := splitOperands(operands)
	if len(ops) != 2 {
		return 0, errf(CodeUnknownRs, sourceLine, "expected 2 operands, got %d", len(ops))
	}
	rs2, err := reg(ops[0], sourceLine, CodeUnknownRs)
	if err != nil {
		return 0, err
	}
	immTok, rs1Name, ok := parseOffsetReg(ops[1])
	if !ok {
		return 0, errf(CodeUnknownRs, sourceLine, "malformed offset(reg) operand %q", ops[1])
	}
	rs1, err := reg(rs1Name, sourceLine, CodeUnknownRs)
	if err != nil {
		return 0, err
	}
	imm, perr := parseImm(immTok)
	if perr != nil {
		return 0, errf(CodeNonIntegerImm, sourceLine, "non-integer immediate %q", immTok)
	}
	if imm < -2048 || imm > 2047 {
		return 0, errf(CodeBadIS12Immediate, sourceLine, "immediate %d out of range [-2048,2047]", imm)
	}
	imm12 := uint32(imm) & 0xFFF
	immHi := (imm12 >> 5) & 0x7F
	immLo := imm12 & 0x1F
	return (immHi << 25) | (rs2 << 20) | (rs1 << 15) | (m.Funct3 << 12) | (immLo << 7) | m.Opcode, nil
}

// resolveOffsetOperand resolves the final operand of a branch or
// jal instruction, which may be a label or a literal byte displacement.
func resolveOffsetOperand(tok string, sourceLine, textLine int, lbl *labels.Table) (int64, error) {
	if n, err := parseImm(tok); err == nil {
		return n, nil
	}
	e, ok := lbl.Lookup(tok)
	if !ok {
		return 0, errf(CodeLabelNotFound, sourceLine, "label %q not found", tok)
	}
	return int64(e.TextIndex-textLine) * 4, nil
}

// encodeB assembles `op rs1, rs2, label|offset`.
func encodeB(m isa.Mnemonic, operands string, sourceLine, textLine int, lbl *labels.Table) (uint32, error) {
	ops := splitOperands(operands)
	if len(ops) != 3 {
		return 0, errf(CodeUnknownRs, sourceLine, "expected 3 operands, got %d", len(ops))
	}
	rs1, err := reg(ops[0], sourceLine, CodeUnknownRs)
	if err != nil {
		return 0, err
	}
	rs2, err := reg(ops[1], sourceLine, CodeUnknownRs)
	if err != nil {
		return 0, err
	}
	offset, oerr := resolveOffsetOperand(ops[2], sourceLine, textLine, lbl)
	if oerr != nil {
		return 0, oerr
	}
	if offset < -4096 || offset > 4094 || offset%2 != 0 {
		return 0, errf(CodeBadBranchOffset, sourceLine, "branch offset %d out of range or odd", offset)
	}
	u := uint32(offset)
	imm12 := (u >> 12) & 0x1
	imm105 := (u >> 5) & 0x3F
	imm41 := (u >> 1) & 0xF
	imm11 := (u >> 11) & 0x1
	return (imm12 << 31) | (imm105 << 25) | (rs2 << 20) | (rs1 << 15) | (m.Funct3 << 12) | (imm41 << 8) | (imm11 << 7) | m.Opcode, nil
}

// encodeU assembles `lui rd, imm`.
func encodeU(operands string, sourceLine int) (uint32, error) {
	ops := splitOperands(operands)
	if len(ops) != 2 {
		return 0, errf(CodeUnknownRd, sourceLine, "expected 2 operands, got %d", len(ops))
	}
	rd, err := reg(ops[0], sourceLine, CodeUnknownRd)
	if err != nil {
		return 0, err
	}
	imm, perr := parseImm(ops[1])
	if perr != nil {
		return 0, errf(CodeNonIntegerImm, sourceLine, "non-integer immediate %q", ops[1])
	}
	if imm < 0 || imm > 0xFFFFFFFF {
		return 0, errf(CodeBadU20Immediate, sourceLine, "immediate %d out of range [0,2^32-1]", imm)
	}
	field := uint32(imm) & 0xFFFFF
	return (field << 12) | (rd << 7) | isa.OpcodeU, nil
}

// encodeJ assembles `jal rd, label|offset`.
func encodeJ(operands string, sourceLine, textLine int, lbl *labels.Table) (uint32, error) {
	ops := splitOperands(operands)
	if len(ops) != 2 {
		return 0, errf(CodeUnknownRd, sourceLine, "expected 2 operands, got %d", len(ops))
	}
	rd, err := reg(ops[0], sourceLine, CodeUnknownRd)
	if err != nil {
		return 0, err
	}
	offset, oerr := resolveOffsetOperand(ops[1], sourceLine, textLine, lbl)
	if oerr != nil {
		return 0, oerr
	}
	if offset < -1048576 || offset > 1048575 || offset%2 != 0 {
		return 0, errf(CodeBadJOffset, sourceLine, "jump offset %d out of range or odd", offset)
	}
	u := uint32(offset)
	imm20 := (u >> 20) & 0x1
	imm101 := (u >> 1) & 0x3FF
	imm11 := (u >> 11) & 0x1
	imm1912 := (u >> 12) & 0xFF
	return (imm20 << 31) | (imm101 << 21) | (imm11 << 20) | (imm1912 << 12) | (rd << 7) | isa.OpcodeJ, nil
}
