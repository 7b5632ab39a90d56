package dex

import (
	"fmt"
	"strings"

	"github.com/aetherlink/dexedit/internal/bytecursor"
)

// Insn is one disassembled instruction. Offset is in bytes from the start
// of the method's instruction stream.
type Insn struct {
	Offset   uint32
	Opcode   string
	Operands string
	Comment  string
}

// Disassembler renders Dalvik bytecode as Smali text. The context slices
// are the resolved pools of the DEX the code came from; references outside
// them render as "kind@N".
type Disassembler struct {
	Strings []string
	Types   []string
	Methods []string // full signatures, method-pool order
	Fields  []string // full signatures, field-pool order
}

// NewDisassembler builds a disassembler wired to f's pools.
func NewDisassembler(f *File) *Disassembler {
	return &Disassembler{
		Strings: f.Strings,
		Types:   f.Types,
		Methods: f.MethodSignatures(),
		Fields:  f.FieldSignatures(),
	}
}

func (d *Disassembler) resolveString(idx uint32) string {
	if int(idx) < len(d.Strings) {
		return `"` + d.Strings[idx] + `"`
	}
	return fmt.Sprintf("string@%d", idx)
}

func (d *Disassembler) resolveType(idx uint32) string {
	if int(idx) < len(d.Types) {
		return d.Types[idx]
	}
	return fmt.Sprintf("type@%d", idx)
}

func (d *Disassembler) resolveMethod(idx uint32) string {
	if int(idx) < len(d.Methods) {
		return d.Methods[idx]
	}
	return fmt.Sprintf("method@%d", idx)
}

func (d *Disassembler) resolveField(idx uint32) string {
	if int(idx) < len(d.Fields) {
		return d.Fields[idx]
	}
	return fmt.Sprintf("field@%d", idx)
}

// Insn decodes the single instruction at code[offset:]. offset is in
// bytes; branch-target comments are given in absolute code units.
func (d *Disassembler) Insn(code []byte, offset uint32) Insn {
	insn := Insn{Offset: offset}
	if int(offset)+2 > len(code) {
		insn.Opcode = "invalid"
		return insn
	}
	p := code[offset:]
	op := p[0]
	info := opcodes[op]
	insn.Opcode = info.Name

	u16 := func(off int) uint16 { v, _ := bytecursor.U16(p, off); return v }
	s16 := func(off int) int16 { return int16(u16(off)) }
	u32 := func(off int) uint32 { v, _ := bytecursor.U32(p, off); return v }

	unit := offset / 2

	switch info.Format {
	case fmt10x:
		// no operands

	case fmt12x:
		insn.Operands = fmt.Sprintf("v%d, v%d", p[1]&0xF, p[1]>>4)

	case fmt11n:
		lit := int8(p[1] >> 4)
		if lit&0x8 != 0 {
			lit |= ^int8(0xF)
		}
		insn.Operands = fmt.Sprintf("v%d, #int %d", p[1]&0xF, lit)

	case fmt11x:
		insn.Operands = fmt.Sprintf("v%d", p[1])

	case fmt10t:
		rel := int8(p[1])
		insn.Operands = fmt.Sprintf("%+d", rel)
		insn.Comment = fmt.Sprintf("target %d", int32(unit)+int32(rel))

	case fmt20t:
		rel := s16(2)
		insn.Operands = fmt.Sprintf("%+d", rel)
		insn.Comment = fmt.Sprintf("target %d", int32(unit)+int32(rel))

	case fmt22x:
		insn.Operands = fmt.Sprintf("v%d, v%d", p[1], u16(2))

	case fmt21t:
		rel := s16(2)
		insn.Operands = fmt.Sprintf("v%d, %+d", p[1], rel)
		insn.Comment = fmt.Sprintf("target %d", int32(unit)+int32(rel))

	case fmt21s:
		insn.Operands = fmt.Sprintf("v%d, #int %d", p[1], s16(2))

	case fmt21h:
		if op == 0x15 { // const/high16
			insn.Operands = fmt.Sprintf("v%d, #int %d", p[1], int32(s16(2))<<16)
		} else { // const-wide/high16
			insn.Operands = fmt.Sprintf("v%d, #long %d", p[1], int64(s16(2))<<48)
		}

	case fmt21c:
		ref := uint32(u16(2))
		var operand string
		switch {
		case op == 0x1A: // const-string
			operand = d.resolveString(ref)
		case op == 0x1C || op == 0x1F || op == 0x22: // const-class, check-cast, new-instance
			operand = d.resolveType(ref)
		case op >= 0x60 && op <= 0x6D: // sget/sput family
			operand = d.resolveField(ref)
		default:
			operand = fmt.Sprintf("ref@%d", ref)
		}
		insn.Operands = fmt.Sprintf("v%d, %s", p[1], operand)

	case fmt23x:
		insn.Operands = fmt.Sprintf("v%d, v%d, v%d", p[1], p[2], p[3])

	case fmt22b:
		insn.Operands = fmt.Sprintf("v%d, v%d, #int %d", p[1], p[2], int8(p[3]))

	case fmt22t:
		rel := s16(2)
		insn.Operands = fmt.Sprintf("v%d, v%d, %+d", p[1]&0xF, p[1]>>4, rel)
		insn.Comment = fmt.Sprintf("target %d", int32(unit)+int32(rel))

	case fmt22s:
		insn.Operands = fmt.Sprintf("v%d, v%d, #int %d", p[1]&0xF, p[1]>>4, s16(2))

	case fmt22c:
		ref := uint32(u16(2))
		var operand string
		if op == 0x20 || op == 0x23 { // instance-of, new-array
			operand = d.resolveType(ref)
		} else { // iget/iput family
			operand = d.resolveField(ref)
		}
		insn.Operands = fmt.Sprintf("v%d, v%d, %s", p[1]&0xF, p[1]>>4, operand)

	case fmt32x:
		insn.Operands = fmt.Sprintf("v%d, v%d", u16(2), u16(4))

	case fmt30t:
		rel := int32(u32(2))
		insn.Operands = fmt.Sprintf("%+d", rel)
		insn.Comment = fmt.Sprintf("target %d", int32(unit)+rel)

	case fmt31t:
		insn.Operands = fmt.Sprintf("v%d, %+d", p[1], int32(u32(2)))

	case fmt31i:
		insn.Operands = fmt.Sprintf("v%d, #int %d", p[1], int32(u32(2)))

	case fmt31c:
		insn.Operands = fmt.Sprintf("v%d, %s", p[1], d.resolveString(u32(2)))

	case fmt35c:
		count := int(p[1] >> 4)
		regG := p[1] & 0xF
		ref := uint32(u16(2))
		regs := []byte{p[4] & 0xF, p[4] >> 4, p[5] & 0xF, p[5] >> 4, regG}
		var sb strings.Builder
		sb.WriteByte('{')
		for i := 0; i < count && i < 5; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "v%d", regs[i])
		}
		sb.WriteString("}, ")
		if op >= 0x6E && op <= 0x72 {
			sb.WriteString(d.resolveMethod(ref))
		} else {
			sb.WriteString(d.resolveType(ref))
		}
		insn.Operands = sb.String()

	case fmt3rc:
		count := uint16(p[1])
		ref := uint32(u16(2))
		first := u16(4)
		var target string
		if op >= 0x74 && op <= 0x78 {
			target = d.resolveMethod(ref)
		} else {
			target = d.resolveType(ref)
		}
		insn.Operands = fmt.Sprintf("{v%d .. v%d}, %s", first, first+count-1, target)

	case fmt51l:
		v, _ := bytecursor.U64(p, 2)
		insn.Operands = fmt.Sprintf("v%d, #long %d", p[1], int64(v))
	}

	return insn
}

// Method disassembles a full instruction stream, stepping by each
// instruction's table size.
func (d *Disassembler) Method(code []byte) []Insn {
	var out []Insn
	var offset uint32
	for int(offset) < len(code) {
		insn := d.Insn(code, offset)
		out = append(out, insn)
		size := uint32(opcodes[code[offset]].Units) * 2
		if size == 0 {
			break
		}
		offset += size
	}
	return out
}

// Smali renders disassembled instructions as indented Smali lines.
func Smali(insns []Insn) string {
	var sb strings.Builder
	for _, insn := range insns {
		sb.WriteString("    ")
		sb.WriteString(insn.Opcode)
		if insn.Operands != "" {
			sb.WriteByte(' ')
			sb.WriteString(insn.Operands)
		}
		if insn.Comment != "" {
			sb.WriteString(" # ")
			sb.WriteString(insn.Comment)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
