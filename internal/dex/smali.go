package dex

import (
	"fmt"
	"strconv"
	"strings"
)

// accessFlagNames maps the flag bits that appear in Smali headers, in the
// order smali/baksmali print them.
var accessFlagNames = []struct {
	flag uint32
	name string
}{
	{0x0001, "public"},
	{0x0002, "private"},
	{0x0004, "protected"},
	{0x0008, "static"},
	{0x0010, "final"},
	{0x0020, "synchronized"},
	{0x0040, "volatile"},
	{0x0080, "transient"},
	{0x0100, "native"},
	{0x0200, "interface"},
	{0x0400, "abstract"},
	{0x1000, "synthetic"},
	{0x10000, "constructor"},
}

func flagString(flags uint32) string {
	var parts []string
	for _, af := range accessFlagNames {
		if flags&af.flag != 0 {
			parts = append(parts, af.name)
		}
	}
	return strings.Join(parts, " ")
}

func parseFlags(words []string) (uint32, int) {
	var flags uint32
	consumed := 0
	for _, w := range words {
		matched := false
		for _, af := range accessFlagNames {
			if w == af.name {
				flags |= af.flag
				matched = true
				break
			}
		}
		if !matched {
			break
		}
		consumed++
	}
	return flags, consumed
}

// ClassSmali renders a whole class: header directives, fields, then every
// method with its disassembled body.
func ClassSmali(f *File, className string) (string, error) {
	d := NewDisassembler(f)
	for _, cd := range f.Classes {
		if f.TypeName(cd.ClassIdx) != className {
			continue
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, ".class %s %s\n", flagString(cd.AccessFlags), className)
		if cd.SuperclassIdx != NoIndex {
			fmt.Fprintf(&sb, ".super %s\n", f.TypeName(cd.SuperclassIdx))
		}
		sb.WriteByte('\n')

		data, err := f.ClassData(cd)
		if err != nil {
			return "", err
		}
		for _, ef := range append(data.StaticFields, data.InstanceFields...) {
			if int(ef.FieldIdx) >= len(f.Fields) {
				continue
			}
			fd := f.Fields[ef.FieldIdx]
			fmt.Fprintf(&sb, ".field %s %s:%s\n", flagString(ef.AccessFlags),
				f.StringAt(fd.NameIdx), f.TypeName(uint32(fd.TypeIdx)))
		}
		if len(data.StaticFields)+len(data.InstanceFields) > 0 {
			sb.WriteByte('\n')
		}

		writeMethod := func(em EncodedMethod) error {
			if int(em.MethodIdx) >= len(f.Methods) {
				return nil
			}
			mid := f.Methods[em.MethodIdx]
			fmt.Fprintf(&sb, ".method %s %s%s\n", flagString(em.AccessFlags),
				f.StringAt(mid.NameIdx), f.ProtoString(uint32(mid.ProtoIdx)))
			if em.CodeOff != 0 {
				code, err := f.Code(em.CodeOff)
				if err != nil {
					return err
				}
				fmt.Fprintf(&sb, "    .registers %d\n", code.RegistersSize)
				sb.WriteString(Smali(d.Method(code.Insns)))
			}
			sb.WriteString(".end method\n\n")
			return nil
		}
		for _, em := range data.DirectMethods {
			if err := writeMethod(em); err != nil {
				return "", err
			}
		}
		for _, em := range data.VirtualMethods {
			if err := writeMethod(em); err != nil {
				return "", err
			}
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("dex: class %s not found", className)
}

// MethodSmali renders one method body.
func MethodSmali(f *File, className, methodName string) (string, error) {
	code, err := f.MethodCode(className, methodName)
	if err != nil {
		return "", err
	}
	d := NewDisassembler(f)
	var sb strings.Builder
	fmt.Fprintf(&sb, ".method %s\n", methodName)
	fmt.Fprintf(&sb, "    .registers %d\n", code.RegistersSize)
	sb.WriteString(Smali(d.Method(code.Insns)))
	sb.WriteString(".end method\n")
	return sb.String(), nil
}

// ParseClassSmali parses a full class definition: .class/.super headers,
// .field lines, and .method blocks whose bodies are assembled against the
// supplied assembler's pools.
func ParseClassSmali(text string, asm *Assembler) (*ClassEntry, error) {
	entry := &ClassEntry{}
	lines := strings.Split(text, "\n")

	var methodBody []string
	var current *MethodDef

	flushMethod := func(endLine int) error {
		if current == nil {
			return nil
		}
		code, err := asm.Assemble(strings.Join(methodBody, "\n"))
		if err != nil {
			return fmt.Errorf("method %s: %w", current.Name, err)
		}
		current.Code = code
		if current.Registers == 0 && len(code) > 0 {
			current.Registers = 1
		}
		entry.AddMethod(*current)
		current = nil
		methodBody = nil
		return nil
	}

	for i, raw := range lines {
		line := strings.TrimSpace(strings.ReplaceAll(raw, "\r", ""))
		switch {
		case strings.HasPrefix(line, ".class"):
			words := strings.Fields(line)[1:]
			flags, consumed := parseFlags(words)
			if consumed >= len(words) {
				return nil, fmt.Errorf("line %d: .class needs a type descriptor", i+1)
			}
			entry.AccessFlags = flags
			entry.Name = words[consumed]

		case strings.HasPrefix(line, ".super"):
			words := strings.Fields(line)
			if len(words) > 1 {
				entry.Super = words[len(words)-1]
			}

		case strings.HasPrefix(line, ".field"):
			words := strings.Fields(line)[1:]
			flags, consumed := parseFlags(words)
			if consumed >= len(words) {
				return nil, fmt.Errorf("line %d: .field needs name:type", i+1)
			}
			decl := words[consumed]
			colon := strings.IndexByte(decl, ':')
			if colon < 0 {
				return nil, fmt.Errorf("line %d: .field %q missing type", i+1, decl)
			}
			fd := FieldDef{Name: decl[:colon], Type: decl[colon+1:], AccessFlags: flags}
			if flags&AccStatic != 0 {
				entry.StaticFields = append(entry.StaticFields, fd)
			} else {
				entry.InstanceFields = append(entry.InstanceFields, fd)
			}

		case strings.HasPrefix(line, ".method"):
			words := strings.Fields(line)[1:]
			flags, consumed := parseFlags(words)
			if consumed >= len(words) {
				return nil, fmt.Errorf("line %d: .method needs a signature", i+1)
			}
			sig := words[consumed]
			paren := strings.IndexByte(sig, '(')
			if paren < 0 {
				return nil, fmt.Errorf("line %d: .method %q missing prototype", i+1, sig)
			}
			proto, err := ParsePrototype(sig[paren:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			current = &MethodDef{Name: sig[:paren], Proto: proto, AccessFlags: flags}

		case strings.HasPrefix(line, ".end method"):
			if err := flushMethod(i); err != nil {
				return nil, err
			}

		case strings.HasPrefix(line, ".registers") || strings.HasPrefix(line, ".locals"):
			if current != nil {
				words := strings.Fields(line)
				if len(words) > 1 {
					if n, err := strconv.Atoi(words[1]); err == nil {
						current.Registers = uint16(n)
					}
				}
			}

		default:
			if current != nil {
				methodBody = append(methodBody, raw)
			}
		}
	}
	if current != nil {
		if err := flushMethod(len(lines)); err != nil {
			return nil, err
		}
	}
	if entry.Name == "" {
		return nil, fmt.Errorf("dex: smali has no .class directive")
	}
	return entry, nil
}

// ModifyClass replaces className's definition with one parsed from smali
// text and rebuilds the image.
func ModifyClass(data []byte, className, smali string) ([]byte, error) {
	b, err := Load(data)
	if err != nil {
		return nil, err
	}
	f, _ := Parse(data)
	entry, err := ParseClassSmali(smali, NewAssembler(f))
	if err != nil {
		return nil, err
	}
	if entry.Name != className {
		return nil, fmt.Errorf("dex: smali defines %s, expected %s", entry.Name, className)
	}
	if err := b.ReplaceClass(entry); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// AddClass appends a class parsed from smali text and rebuilds.
func AddClass(data []byte, smali string) ([]byte, error) {
	b, err := Load(data)
	if err != nil {
		return nil, err
	}
	f, _ := Parse(data)
	entry, err := ParseClassSmali(smali, NewAssembler(f))
	if err != nil {
		return nil, err
	}
	if err := b.AddClass(entry); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

// DeleteClass drops a class definition and rebuilds.
func DeleteClass(data []byte, className string) ([]byte, error) {
	b, err := Load(data)
	if err != nil {
		return nil, err
	}
	if err := b.DeleteClass(className); err != nil {
		return nil, err
	}
	return b.Build(), nil
}
