package dex

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aetherlink/dexedit/internal/bytecursor"
)

// Assembler turns Smali text back into bytecode. Pool references are
// resolved against the same context slices the disassembler emits from,
// with a substring fallback for partially-written signatures.
type Assembler struct {
	Strings []string
	Types   []string
	Methods []string
	Fields  []string

	// Labels records ":name" jump labels seen during assembly, keyed to
	// the code-unit offset at which they appeared.
	Labels map[string]uint32
}

// NewAssembler builds an assembler wired to f's pools.
func NewAssembler(f *File) *Assembler {
	return &Assembler{
		Strings: f.Strings,
		Types:   f.Types,
		Methods: f.MethodSignatures(),
		Fields:  f.FieldSignatures(),
	}
}

// LineError is an assembler rejection carrying the 1-based source line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

func (a *Assembler) findString(s string) int {
	for i, v := range a.Strings {
		if v == s {
			return i
		}
	}
	return -1
}

func (a *Assembler) findType(s string) int {
	for i, v := range a.Types {
		if v == s {
			return i
		}
	}
	return -1
}

// findMethod matches exactly first, then by substring so a partial
// signature like "Lcom/x/A;->foo" still resolves.
func (a *Assembler) findMethod(s string) int {
	for i, v := range a.Methods {
		if v == s {
			return i
		}
	}
	for i, v := range a.Methods {
		if strings.Contains(v, s) {
			return i
		}
	}
	return -1
}

func (a *Assembler) findField(s string) int {
	for i, v := range a.Fields {
		if v == s {
			return i
		}
	}
	for i, v := range a.Fields {
		if strings.Contains(v, s) {
			return i
		}
	}
	return -1
}

func parseRegister(s string) (int, error) {
	if len(s) < 2 || s[0] != 'v' {
		return 0, fmt.Errorf("invalid register %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, fmt.Errorf("invalid register %q", s)
	}
	return n, nil
}

// parseInt accepts decimal and 0x-prefixed hex, with #int/#long prefixes
// already stripped by the caller.
func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	var v uint64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid literal %q", s)
	}
	if neg {
		return -int64(v), nil
	}
	return int64(v), nil
}

func stripLiteralPrefix(s string) string {
	if i := strings.Index(s, "#int"); i >= 0 {
		return strings.TrimSpace(s[i+4:])
	}
	if i := strings.Index(s, "#long"); i >= 0 {
		return strings.TrimSpace(s[i+5:])
	}
	return s
}

// splitOperands splits on commas outside braces and quotes.
func splitOperands(s string) []string {
	var parts []string
	var current strings.Builder
	inBrace, inQuote := false, false
	for _, c := range s {
		switch {
		case c == '"' && !inBrace:
			inQuote = !inQuote
			current.WriteRune(c)
		case c == '{' && !inQuote:
			inBrace = true
			current.WriteRune(c)
		case c == '}' && !inQuote:
			inBrace = false
			current.WriteRune(c)
		case c == ',' && !inBrace && !inQuote:
			if p := strings.TrimSpace(current.String()); p != "" {
				parts = append(parts, p)
			}
			current.Reset()
		default:
			current.WriteRune(c)
		}
	}
	if p := strings.TrimSpace(current.String()); p != "" {
		parts = append(parts, p)
	}
	return parts
}

// stripComment removes a trailing "//" or "#" comment outside quotes.
func stripComment(s string) string {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			inQuote = !inQuote
		case !inQuote && s[i] == '#' && !strings.HasPrefix(s[i:], "#int") && !strings.HasPrefix(s[i:], "#long"):
			return s[:i]
		case !inQuote && i+1 < len(s) && s[i] == '/' && s[i+1] == '/':
			return s[:i]
		}
	}
	return s
}

// Assemble translates Smali text into bytecode. Directives and offset
// labels are skipped, ":name" labels are recorded, everything else must be
// an instruction. Errors name the offending line.
func (a *Assembler) Assemble(smali string) ([]byte, error) {
	if a.Labels == nil {
		a.Labels = make(map[string]uint32)
	}
	var out []byte
	for i, line := range strings.Split(smali, "\n") {
		encoded, err := a.line(line, uint32(len(out))/2)
		if err != nil {
			return nil, &LineError{Line: i + 1, Err: err}
		}
		out = append(out, encoded...)
	}
	return out, nil
}

// line assembles a single line, returning nil bytes for blank lines,
// directives and labels. unit is the current code-unit offset, used to
// record label positions.
func (a *Assembler) line(line string, unit uint32) ([]byte, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(line, "\r", ""))
	if trimmed == "" {
		return nil, nil
	}

	if trimmed[0] == '.' {
		colon := strings.IndexByte(trimmed, ':')
		if colon >= 0 && colon < 8 {
			// Offset label like ".0000:"; the instruction follows.
			trimmed = strings.TrimSpace(trimmed[colon+1:])
			if trimmed == "" {
				return nil, nil
			}
		} else {
			// Real directive: .method, .registers, .line, .end, ...
			return nil, nil
		}
	}

	if trimmed[0] == ':' {
		a.Labels[trimmed[1:]] = unit
		return nil, nil
	}

	trimmed = strings.TrimSpace(stripComment(trimmed))
	if trimmed == "" {
		return nil, nil
	}

	name := trimmed
	operands := ""
	if sp := strings.IndexByte(trimmed, ' '); sp >= 0 {
		name = trimmed[:sp]
		operands = strings.TrimSpace(trimmed[sp+1:])
	}

	op, ok := opcodeByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", name)
	}
	return a.encode(op, splitOperands(operands))
}

func (a *Assembler) encode(op byte, parts []string) ([]byte, error) {
	info := opcodes[op]
	insn := make([]byte, info.Units*2)
	insn[0] = op

	need := func(n int, what string) error {
		if len(parts) < n {
			return fmt.Errorf("%s: expected %s", info.Name, what)
		}
		return nil
	}
	reg := func(i int) (int, error) { return parseRegister(parts[i]) }
	lit := func(i int) (int64, error) { return parseInt(stripLiteralPrefix(parts[i])) }

	switch info.Format {
	case fmt10x:
		// no operands

	case fmt12x:
		if err := need(2, "2 registers"); err != nil {
			return nil, err
		}
		vA, err := reg(0)
		if err != nil {
			return nil, err
		}
		vB, err := reg(1)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vB<<4 | vA&0xF)

	case fmt11n:
		if err := need(2, "register and literal"); err != nil {
			return nil, err
		}
		vA, err := reg(0)
		if err != nil {
			return nil, err
		}
		v, err := lit(1)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(int(v&0xF)<<4 | vA&0xF)

	case fmt11x:
		if err := need(1, "register"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)

	case fmt10t:
		off := int64(0)
		if len(parts) > 0 {
			var err error
			if off, err = lit(0); err != nil {
				return nil, err
			}
		}
		insn[1] = byte(int8(off))

	case fmt20t:
		off := int64(0)
		if len(parts) > 0 {
			var err error
			if off, err = lit(0); err != nil {
				return nil, err
			}
		}
		bytecursor.PutU16(insn, 2, uint16(int16(off)))

	case fmt21t:
		if err := need(2, "register and offset"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		off, err := lit(1)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)
		bytecursor.PutU16(insn, 2, uint16(int16(off)))

	case fmt21s:
		if err := need(2, "register and literal"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		v, err := lit(1)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)
		bytecursor.PutU16(insn, 2, uint16(int16(v)))

	case fmt21h:
		if err := need(2, "register and literal"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		v, err := lit(1)
		if err != nil {
			return nil, err
		}
		// The stored 16 bits are the literal's high bits.
		if strings.Contains(parts[1], "#long") {
			v >>= 48
		} else if strings.Contains(parts[1], "#int") {
			v >>= 16
		}
		insn[1] = byte(vAA)
		bytecursor.PutU16(insn, 2, uint16(int16(v)))

	case fmt21c:
		if err := need(2, "register and reference"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		idx, err := a.resolve21c(op, parts[1])
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)
		bytecursor.PutU16(insn, 2, uint16(idx))

	case fmt23x:
		if err := need(3, "3 registers"); err != nil {
			return nil, err
		}
		for i := 0; i < 3; i++ {
			v, err := reg(i)
			if err != nil {
				return nil, err
			}
			insn[1+i] = byte(v)
		}

	case fmt22b:
		if err := need(3, "2 registers and literal"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		vBB, err := reg(1)
		if err != nil {
			return nil, err
		}
		v, err := lit(2)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)
		insn[2] = byte(vBB)
		insn[3] = byte(int8(v))

	case fmt22t, fmt22s:
		what := "2 registers and offset"
		if info.Format == fmt22s {
			what = "2 registers and literal"
		}
		if err := need(3, what); err != nil {
			return nil, err
		}
		vA, err := reg(0)
		if err != nil {
			return nil, err
		}
		vB, err := reg(1)
		if err != nil {
			return nil, err
		}
		v, err := lit(2)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vB<<4 | vA&0xF)
		bytecursor.PutU16(insn, 2, uint16(int16(v)))

	case fmt22c:
		if err := need(3, "2 registers and reference"); err != nil {
			return nil, err
		}
		vA, err := reg(0)
		if err != nil {
			return nil, err
		}
		vB, err := reg(1)
		if err != nil {
			return nil, err
		}
		idx := a.findField(parts[2])
		if idx < 0 {
			idx = a.findType(parts[2])
		}
		if idx < 0 {
			return nil, fmt.Errorf("reference not found: %s", parts[2])
		}
		insn[1] = byte(vB<<4 | vA&0xF)
		bytecursor.PutU16(insn, 2, uint16(idx))

	case fmt22x:
		if err := need(2, "2 registers"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		vBBBB, err := reg(1)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)
		bytecursor.PutU16(insn, 2, uint16(vBBBB))

	case fmt32x:
		if err := need(2, "2 registers"); err != nil {
			return nil, err
		}
		vAAAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		vBBBB, err := reg(1)
		if err != nil {
			return nil, err
		}
		bytecursor.PutU16(insn, 2, uint16(vAAAA))
		bytecursor.PutU16(insn, 4, uint16(vBBBB))

	case fmt30t:
		off := int64(0)
		if len(parts) > 0 {
			var err error
			if off, err = lit(0); err != nil {
				return nil, err
			}
		}
		bytecursor.PutU32(insn, 2, uint32(int32(off)))

	case fmt31t, fmt31i:
		if err := need(2, "register and value"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		v, err := lit(1)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)
		bytecursor.PutU32(insn, 2, uint32(int32(v)))

	case fmt31c:
		if err := need(2, "register and string"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		idx, err := a.resolveString31c(parts[1])
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)
		bytecursor.PutU32(insn, 2, uint32(idx))

	case fmt35c:
		if err := need(2, "registers and reference"); err != nil {
			return nil, err
		}
		regs, err := parseRegisterList(parts[0])
		if err != nil {
			return nil, err
		}
		var idx int
		if op >= 0x6E && op <= 0x72 {
			if idx = a.findMethod(parts[1]); idx < 0 {
				return nil, fmt.Errorf("method not found: %s", parts[1])
			}
		} else {
			if idx = a.findType(parts[1]); idx < 0 {
				return nil, fmt.Errorf("type not found: %s", parts[1])
			}
		}
		count := byte(len(regs))
		var g byte
		if len(regs) > 4 {
			g = byte(regs[4] & 0xF)
		}
		insn[1] = count<<4 | g
		bytecursor.PutU16(insn, 2, uint16(idx))
		nib := func(i int) byte {
			if i < len(regs) {
				return byte(regs[i] & 0xF)
			}
			return 0
		}
		insn[4] = nib(0) | nib(1)<<4
		insn[5] = nib(2) | nib(3)<<4

	case fmt3rc:
		if err := need(2, "register range and reference"); err != nil {
			return nil, err
		}
		first, count, err := parseRegisterRange(parts[0])
		if err != nil {
			return nil, err
		}
		var idx int
		if op >= 0x74 && op <= 0x78 {
			if idx = a.findMethod(parts[1]); idx < 0 {
				return nil, fmt.Errorf("method not found: %s", parts[1])
			}
		} else {
			if idx = a.findType(parts[1]); idx < 0 {
				return nil, fmt.Errorf("type not found: %s", parts[1])
			}
		}
		insn[1] = byte(count)
		bytecursor.PutU16(insn, 2, uint16(idx))
		bytecursor.PutU16(insn, 4, uint16(first))

	case fmt51l:
		if err := need(2, "register and literal"); err != nil {
			return nil, err
		}
		vAA, err := reg(0)
		if err != nil {
			return nil, err
		}
		v, err := lit(1)
		if err != nil {
			return nil, err
		}
		insn[1] = byte(vAA)
		bytecursor.PutU64(insn, 2, uint64(v))

	default:
		return nil, fmt.Errorf("unsupported format for %s", info.Name)
	}

	return insn, nil
}

// resolve21c resolves the reference operand of a 21c instruction by the
// opcode's operand class: string for const-string, type for
// const-class/check-cast/new-instance, field for the sget/sput family.
func (a *Assembler) resolve21c(op byte, ref string) (int, error) {
	switch {
	case strings.HasPrefix(ref, `"`):
		s := strings.TrimSuffix(strings.TrimPrefix(ref, `"`), `"`)
		if idx := a.findString(s); idx >= 0 {
			return idx, nil
		}
		return 0, fmt.Errorf("string not found: %s", s)
	case strings.Contains(ref, "->"):
		if idx := a.findField(ref); idx >= 0 {
			return idx, nil
		}
		return 0, fmt.Errorf("field not found: %s", ref)
	case strings.HasPrefix(ref, "field@"):
		return strconv.Atoi(ref[len("field@"):])
	case strings.HasPrefix(ref, "string@"):
		return strconv.Atoi(ref[len("string@"):])
	case strings.HasPrefix(ref, "type@"):
		return strconv.Atoi(ref[len("type@"):])
	case strings.HasPrefix(ref, "L") || strings.HasPrefix(ref, "["):
		if idx := a.findType(ref); idx >= 0 {
			return idx, nil
		}
		return 0, fmt.Errorf("type not found: %s", ref)
	default:
		if op == 0x1A {
			if idx := a.findString(ref); idx >= 0 {
				return idx, nil
			}
			return 0, fmt.Errorf("string not found: %s", ref)
		}
		if idx := a.findField(ref); idx >= 0 {
			return idx, nil
		}
		return 0, fmt.Errorf("reference not found: %s", ref)
	}
}

func (a *Assembler) resolveString31c(ref string) (int, error) {
	if strings.HasPrefix(ref, `"`) {
		s := strings.TrimSuffix(strings.TrimPrefix(ref, `"`), `"`)
		if idx := a.findString(s); idx >= 0 {
			return idx, nil
		}
		return 0, fmt.Errorf("string not found: %s", s)
	}
	if strings.HasPrefix(ref, "string@") {
		return strconv.Atoi(ref[len("string@"):])
	}
	if idx := a.findString(ref); idx >= 0 {
		return idx, nil
	}
	return 0, fmt.Errorf("string not found: %s", ref)
}

// parseRegisterList parses "{v0, v1, v2}".
func parseRegisterList(s string) ([]int, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "{"), "}")
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var regs []int
	for _, part := range strings.Split(s, ",") {
		n, err := parseRegister(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		regs = append(regs, n)
	}
	return regs, nil
}

// parseRegisterRange parses "{vCCCC .. vNNNN}" (or a single register).
func parseRegisterRange(s string) (first, count int, err error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "{"), "}")
	if dots := strings.Index(s, ".."); dots >= 0 {
		first, err = parseRegister(strings.TrimSpace(s[:dots]))
		if err != nil {
			return 0, 0, err
		}
		last, err := parseRegister(strings.TrimSpace(s[dots+2:]))
		if err != nil {
			return 0, 0, err
		}
		return first, last - first + 1, nil
	}
	first, err = parseRegister(strings.TrimSpace(s))
	if err != nil {
		return 0, 0, err
	}
	return first, 1, nil
}
