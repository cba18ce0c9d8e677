// Package dataseg interprets the .data segment of a source file:
// directive tracking, C-style integer literal parsing, per-width range
// checks, and little-endian byte emission starting at 0x10000.
package dataseg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zaynotley/rv64sim/internal/lexnorm"
	"github.com/zaynotley/rv64sim/internal/memsim"
)

// DataBase is the fixed address the data segment is loaded at.
const DataBase uint32 = 0x10000

// Directive is one of the four width directives recognized in .data.
type Directive int

const (
	// DirWord is the default directive a bare value line uses if no
	// directive line has been seen yet.
	DirWord Directive = iota
	DirByte
	DirHalf
	DirDword
)

func (d Directive) size() int {
	switch d {
	case DirByte:
		return 1
	case DirHalf:
		return 2
	case DirDword:
		return 8
	default:
		return 4
	}
}

func (d Directive) name() string {
	switch d {
	case DirByte:
		return ".byte"
	case DirHalf:
		return ".half"
	case DirDword:
		return ".dword"
	default:
		return ".word"
	}
}

// Diagnostic records a skipped out-of-range token; the load itself
// proceeds, since range violations are non-fatal.
type Diagnostic struct {
	Token string
	Line  int
	Msg   string
}

// Load interprets the lines of a .data segment (each either a directive
// line, a directive line carrying values, or a bare value line governed
// by the most recently seen directive) and writes encoded bytes into mem
// starting at DataBase. It returns any non-fatal diagnostics produced
// along the way.
func Load(mem *memsim.Memory, lines []string) []Diagnostic {
	var diags []Diagnostic
	dir := DirWord
	ptr := DataBase

	for lineNo, raw := range lines {
		norm := lexnorm.Normalize(raw)
		if lexnorm.IsBlank(norm) {
			continue
		}
		fields := lexnorm.Fields(norm)

		rest := fields
		if d, ok := parseDirective(fields[0]); ok {
			dir = d
			rest = fields[1:]
		}

		for _, tok := range rest {
			b, msg, ok := encodeToken(tok, dir)
			if !ok {
				diags = append(diags, Diagnostic{Token: tok, Line: lineNo + 1, Msg: msg})
				continue
			}
			mem.Write(ptr, b)
			ptr += uint32(len(b))
		}
	}

	return diags
}

func parseDirective(tok string) (Directive, bool) {
	switch strings.ToLower(tok) {
	case ".byte":
		return DirByte, true
	case ".half":
		return DirHalf, true
	case ".word":
		return DirWord, true
	case ".dword":
		return DirDword, true
	default:
		return 0, false
	}
}

// encodeToken parses one integer literal (decimal, hex, or octal via
// Go's base-0 auto-detection) and range-checks it against dir's width,
// returning its little-endian byte encoding on success. .dword never
// fails its range check: any 64-bit bit pattern, signed or unsigned, is
// in range.
func encodeToken(tok string, dir Directive) ([]byte, string, bool) {
	signed, serr := strconv.ParseInt(tok, 0, 64)
	unsigned, uerr := strconv.ParseUint(tok, 0, 64)
	if serr != nil && uerr != nil {
		return nil, fmt.Sprintf("not an integer: %q", tok), false
	}

	var bits uint64
	if serr == nil {
		bits = uint64(signed)
	} else {
		bits = unsigned
		signed = int64(unsigned)
	}

	if dir != DirDword {
		lo, hi := rangeFor(dir)
		inSignedRange := serr == nil && signed >= lo && signed <= int64(hi)
		inUnsignedRange := uerr == nil && unsigned <= hi
		if !inSignedRange && !inUnsignedRange {
			return nil, fmt.Sprintf("out of range for %s: %q", dir.name(), tok), false
		}
	}

	size := dir.size()
	buf := make([]byte, size)
	for i := 0; i < size; i++ {
		buf[i] = byte(bits >> (8 * uint(i)))
	}
	return buf, "", true
}

// rangeFor returns the [lo, hi] envelope for byte/half/word.
func rangeFor(dir Directive) (lo int64, hi uint64) {
	switch dir {
	case DirByte:
		return -128, 255
	case DirHalf:
		return -32768, 65535
	default:
		return -2147483648, 4294967295
	}
}
