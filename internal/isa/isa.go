// Package isa holds the static RV64I register and mnemonic tables: ABI
// register name resolution and mnemonic-to-class/funct3/funct7 lookup.
package isa

// Class identifies one of the six RV64I instruction formats this
// simulator supports, plus the jalr special case (opcode 1100111).
type Class int

const (
	ClassR Class = iota
	ClassIArith
	ClassILoad
	ClassIJalr
	ClassS
	ClassB
	ClassU
	ClassJ
)

// Opcodes, one per instruction class.
const (
	OpcodeR     = 0b0110011
	OpcodeIArith = 0b0010011
	OpcodeILoad  = 0b0000011
	OpcodeJalr   = 0b1100111
	OpcodeS      = 0b0100011
	OpcodeB      = 0b1100011
	OpcodeU      = 0b0110111
	OpcodeJ      = 0b1101111
)

// Mnemonic describes one mnemonic's class and funct fields.
type Mnemonic struct {
	Class  Class
	Opcode uint32
	Funct3 uint32
	Funct7 uint32 // funct7 for class R; funct6 (bits 31:26) for slli/srli/srai
}

// mnemonics is the canonical membership table for the supported subset
// of RV64I.
var mnemonics = map[string]Mnemonic{
	// R-type
	"add": {ClassR, OpcodeR, 0b000, 0b0000000},
	"sub": {ClassR, OpcodeR, 0b000, 0b0100000},
	"xor": {ClassR, OpcodeR, 0b100, 0b0000000},
	"or":  {ClassR, OpcodeR, 0b110, 0b0000000},
	"and": {ClassR, OpcodeR, 0b111, 0b0000000},
	"sll": {ClassR, OpcodeR, 0b001, 0b0000000},
	"srl": {ClassR, OpcodeR, 0b101, 0b0000000},
	"sra": {ClassR, OpcodeR, 0b101, 0b0100000},
	"slt": {ClassR, OpcodeR, 0b010, 0b0000000},
	"sltu": {ClassR, OpcodeR, 0b011, 0b0000000},

	// I-type arithmetic/shift
	"addi": {ClassIArith, OpcodeIArith, 0b000, 0},
	"xori": {ClassIArith, OpcodeIArith, 0b100, 0},
	"ori":  {ClassIArith, OpcodeIArith, 0b110, 0},
	"andi": {ClassIArith, OpcodeIArith, 0b111, 0},
	"slli": {ClassIArith, OpcodeIArith, 0b001, 0b000000},
	"srli": {ClassIArith, OpcodeIArith, 0b101, 0b000000},
	"srai": {ClassIArith, OpcodeIArith, 0b101, 0b010000},

	// I-type load
	"lb":  {ClassILoad, OpcodeILoad, 0b000, 0},
	"lh":  {ClassILoad, OpcodeILoad, 0b001, 0},
	"lw":  {ClassILoad, OpcodeILoad, 0b010, 0},
	"ld":  {ClassILoad, OpcodeILoad, 0b011, 0},
	"lbu": {ClassILoad, OpcodeILoad, 0b100, 0},
	"lhu": {ClassILoad, OpcodeILoad, 0b101, 0},
	"lwu": {ClassILoad, OpcodeILoad, 0b110, 0},

	// I-type jalr
	"jalr": {ClassIJalr, OpcodeJalr, 0b000, 0},

	// S-type
	"sb": {ClassS, OpcodeS, 0b000, 0},
	"sh": {ClassS, OpcodeS, 0b001, 0},
	"sw": {ClassS, OpcodeS, 0b010, 0},
	"sd": {ClassS, OpcodeS, 0b011, 0},

	// B-type
	"beq":  {ClassB, OpcodeB, 0b000, 0},
	"bne":  {ClassB, OpcodeB, 0b001, 0},
	"blt":  {ClassB, OpcodeB, 0b100, 0},
	"bge":  {ClassB, OpcodeB, 0b101, 0},
	"bltu": {ClassB, OpcodeB, 0b110, 0},
	"bgeu": {ClassB, OpcodeB, 0b111, 0},

	// U-type
	"lui": {ClassU, OpcodeU, 0, 0},

	// J-type
	"jal": {ClassJ, OpcodeJ, 0, 0},
}

// Lookup returns the table entry for a mnemonic, case-sensitively (all
// mnemonics in this instruction set are lowercase).
func Lookup(mnemonic string) (Mnemonic, bool) {
	m, ok := mnemonics[mnemonic]
	return m, ok
}

// regNames maps every recognized register spelling to its index 0..31.
var regNames = buildRegNames()

func buildRegNames() map[string]int {
	m := map[string]int{
		"zero": 0, "ra": 1, "sp": 2, "gp": 3, "tp": 4,
		"t0": 5, "t1": 6, "t2": 7,
		"s0": 8, "fp": 8, "s1": 9,
		"a0": 10, "a1": 11, "a2": 12, "a3": 13, "a4": 14, "a5": 15, "a6": 16, "a7": 17,
		"s2": 18, "s3": 19, "s4": 20, "s5": 21, "s6": 22, "s7": 23, "s8": 24, "s9": 25, "s10": 26, "s11": 27,
		"t3": 28, "t4": 29, "t5": 30, "t6": 31,
	}
	for i := 0; i < 32; i++ {
		m[xName(i)] = i
	}
	return m
}

func xName(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "x" + string(digits[i])
	}
	return "x" + string(digits[i/10]) + string(digits[i%10])
}

// Register resolves an ABI or architectural register name to its index.
func Register(name string) (int, bool) {
	i, ok := regNames[name]
	return i, ok
}
