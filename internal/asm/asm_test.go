package asm

import (
	"testing"

	"github.com/zaynotley/rv64sim/internal/labels"
)

func textLines(texts ...string) []labels.Line {
	out := make([]labels.Line, len(texts))
	for i, t := range texts {
		out[i] = labels.Line{Text: t, SourceLine: i + 1}
	}
	return out
}

func assemble(t *testing.T, texts ...string) ([]Instruction, error) {
	t.Helper()
	lines := textLines(texts...)
	lbl, err := labels.Build(lines)
	if err != nil {
		t.Fatalf("labels.Build: %v", err)
	}
	return Assemble(lines, lbl)
}

func TestImmediateBoundary(t *testing.T) {
	if _, err := assemble(t, "addi x1, x0, 2047"); err != nil {
		t.Errorf("addi with imm 2047 should assemble: %v", err)
	}
	if _, err := assemble(t, "addi x1, x0, -2048"); err != nil {
		t.Errorf("addi with imm -2048 should assemble: %v", err)
	}

	_, err := assemble(t, "addi x1, x0, 2048")
	if err == nil {
		t.Fatal("addi with imm 2048 should fail")
	}
	if aerr, ok := err.(*Error); !ok || aerr.Code != CodeBadIS12Immediate {
		t.Errorf("error = %v, want code %d", err, CodeBadIS12Immediate)
	}

	_, err = assemble(t, "addi x1, x0, -2049")
	if err == nil {
		t.Fatal("addi with imm -2049 should fail")
	}
	if aerr, ok := err.(*Error); !ok || aerr.Code != CodeBadIS12Immediate {
		t.Errorf("error = %v, want code %d", err, CodeBadIS12Immediate)
	}
}

func TestBranchDisplacementSign(t *testing.T) {
	// L is text index 1; the branch is text index 2. Encoded imm should
	// be 4*(1-2) = -4.
	instrs, err := assemble(t,
		"L: addi x1, x1, 1",
		"bne x1, x2, L",
	)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(instrs) != 2 {
		t.Fatalf("len(instrs) = %d, want 2", len(instrs))
	}

	word := instrs[1].Word
	imm12 := (word >> 31) & 0x1
	imm11 := (word >> 7) & 0x1
	imm105 := (word >> 25) & 0x3F
	imm41 := (word >> 8) & 0xF
	raw := (imm12 << 12) | (imm11 << 11) | (imm105 << 5) | (imm41 << 1)
	// Sign-extend the 13-bit field.
	signed := int32(raw<<19) >> 19
	if signed != -4 {
		t.Errorf("encoded branch displacement = %d, want -4", signed)
	}
}

func TestUnknownMnemonic(t *testing.T) {
	_, err := assemble(t, "frobnicate x1, x2, x3")
	if err == nil {
		t.Fatal("unknown mnemonic should fail")
	}
	if aerr, ok := err.(*Error); !ok || aerr.Code != CodeUnknownMnemonic {
		t.Errorf("error = %v, want code %d", err, CodeUnknownMnemonic)
	}
}

func TestLabelNotFound(t *testing.T) {
	_, err := assemble(t, "jal ra, nowhere")
	if err == nil {
		t.Fatal("unresolved label should fail")
	}
	if aerr, ok := err.(*Error); !ok || aerr.Code != CodeLabelNotFound {
		t.Errorf("error = %v, want code %d", err, CodeLabelNotFound)
	}
}

func TestEncodeRFields(t *testing.T) {
	instrs, err := assemble(t, "add x3, x1, x2")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	word := instrs[0].Word
	opcode := word & 0x7F
	rd := (word >> 7) & 0x1F
	funct3 := (word >> 12) & 0x7
	rs1 := (word >> 15) & 0x1F
	rs2 := (word >> 20) & 0x1F
	funct7 := (word >> 25) & 0x7F

	if opcode != 0b0110011 || rd != 3 || funct3 != 0 || rs1 != 1 || rs2 != 2 || funct7 != 0 {
		t.Errorf("add x3,x1,x2 encoded fields = opcode=%#o rd=%d funct3=%d rs1=%d rs2=%d funct7=%#o",
			opcode, rd, funct3, rs1, rs2, funct7)
	}
}

func TestEncodeLoadOffsetReg(t *testing.T) {
	instrs, err := assemble(t, "lw x5, 16(x6)")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	word := instrs[0].Word
	imm := int32(word) >> 20
	rs1 := (word >> 15) & 0x1F
	rd := (word >> 7) & 0x1F
	if imm != 16 || rs1 != 6 || rd != 5 {
		t.Errorf("lw x5,16(x6) decoded imm=%d rs1=%d rd=%d, want 16,6,5", imm, rs1, rd)
	}
}
