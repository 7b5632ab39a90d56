// Package smali2java renders Smali text as Java-like pseudocode. It is a
// line-scoped pattern matcher: no control-flow reconstruction, no type
// inference beyond a per-method register table. Lines it cannot translate
// are preserved as comments, so the output is for reading, not compiling.
package smali2java

import (
	"regexp"
	"strings"
)

type regInfo struct {
	typ   string
	value string
}

// Converter holds the per-method register table. A zero Converter is
// ready to use.
type Converter struct {
	registers map[string]regInfo
	indent    int
}

var (
	constStringRe = regexp.MustCompile(`const-string\s+(\w+),\s*"(.*)"`)
	constClassRe  = regexp.MustCompile(`const-class\s+(\w+),\s*(\S+)`)
	constNumRe    = regexp.MustCompile(`const(?:-wide)?(?:/\d+|/high\d+|/16|/32)?\s+(\w+),\s*#?(?:int|long)?\s*(-?0x[0-9a-fA-F]+|-?\d+)`)
	moveRe        = regexp.MustCompile(`move(?:-object|-wide|-result(?:-object|-wide)?|-exception)?(?:/from16|/16)?\s+(\w+)(?:,\s*(\w+))?`)
	invokeRe      = regexp.MustCompile(`invoke-(\w+)(?:/range)?\s*\{([^}]*)\},\s*(\S+)`)
	fieldRe       = regexp.MustCompile(`(i|s)(get|put)(?:-\w+)?\s+(\w+),\s*(?:(\w+),\s*)?(\S+)`)
	returnRe      = regexp.MustCompile(`return(?:-void|-object|-wide)?\s*(\w+)?`)
	ifZRe         = regexp.MustCompile(`if-(eq|ne|lt|ge|gt|le)z\s+(\w+),\s*:?(\S+)`)
	ifRe          = regexp.MustCompile(`if-(eq|ne|lt|ge|gt|le)\s+(\w+),\s*(\w+),\s*:?(\S+)`)
	newInstanceRe = regexp.MustCompile(`new-instance\s+(\w+),\s*(\S+)`)
	newArrayRe    = regexp.MustCompile(`new-array\s+(\w+),\s*(\w+),\s*(\S+)`)
	agetRe        = regexp.MustCompile(`aget(?:-\w+)?\s+(\w+),\s*(\w+),\s*(\w+)`)
	aputRe        = regexp.MustCompile(`aput(?:-\w+)?\s+(\w+),\s*(\w+),\s*(\w+)`)
	arrayLenRe    = regexp.MustCompile(`array-length\s+(\w+),\s*(\w+)`)
	checkCastRe   = regexp.MustCompile(`check-cast\s+(\w+),\s*(\S+)`)
	convRe        = regexp.MustCompile(`(\w+)-to-(\w+)\s+(\w+),\s*(\w+)`)
	arith3Re      = regexp.MustCompile(`(add|sub|mul|div|rem|and|or|xor|shl|shr|ushr)-(\w+)(?:/lit\d+)?\s+(\w+),\s*(\w+),\s*(\S+)`)
	arith2Re      = regexp.MustCompile(`(add|sub|mul|div|rem|and|or|xor|shl|shr|ushr)-(\w+)/2addr\s+(\w+),\s*(\w+)`)
	negRe         = regexp.MustCompile(`(neg|not)-(\w+)\s+(\w+),\s*(\w+)`)
	throwRe       = regexp.MustCompile(`throw\s+(\w+)`)
)

var arithOps = map[string]string{
	"add": "+", "sub": "-", "mul": "*", "div": "/", "rem": "%",
	"and": "&", "or": "|", "xor": "^", "shl": "<<", "shr": ">>", "ushr": ">>>",
}

var compareOps = map[string]string{
	"eq": "==", "ne": "!=", "lt": "<", "ge": ">=", "gt": ">", "le": "<=",
}

// TypeToJava converts a Dalvik descriptor into Java source notation.
func TypeToJava(desc string) string {
	if desc == "" {
		return "void"
	}
	dims := 0
	for strings.HasPrefix(desc, "[") {
		dims++
		desc = desc[1:]
	}
	var base string
	switch {
	case desc == "V":
		base = "void"
	case desc == "Z":
		base = "boolean"
	case desc == "B":
		base = "byte"
	case desc == "S":
		base = "short"
	case desc == "C":
		base = "char"
	case desc == "I":
		base = "int"
	case desc == "J":
		base = "long"
	case desc == "F":
		base = "float"
	case desc == "D":
		base = "double"
	case strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";"):
		base = strings.ReplaceAll(desc[1:len(desc)-1], "/", ".")
	default:
		base = desc
	}
	return base + strings.Repeat("[]", dims)
}

func (c *Converter) pad() string {
	return strings.Repeat("    ", c.indent)
}

func (c *Converter) setReg(reg, typ, value string) {
	if c.registers == nil {
		c.registers = make(map[string]regInfo)
	}
	c.registers[reg] = regInfo{typ: typ, value: value}
}

// Convert translates a full class or method dump. Register state resets
// at each .method directive.
func (c *Converter) Convert(smali string) string {
	c.registers = make(map[string]regInfo)
	c.indent = 0

	var out strings.Builder
	inMethod := false
	for _, line := range strings.Split(smali, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, ".class"):
			fields := strings.Fields(trimmed)
			if len(fields) > 0 {
				out.WriteString("// Decompiled from Smali\n")
				out.WriteString("class " + TypeToJava(fields[len(fields)-1]) + " {\n")
				c.indent = 1
			}
			continue
		case strings.HasPrefix(trimmed, ".super"):
			fields := strings.Fields(trimmed)
			if len(fields) > 1 {
				out.WriteString("    // extends " + TypeToJava(fields[len(fields)-1]) + "\n\n")
			}
			continue
		case strings.HasPrefix(trimmed, ".method"):
			inMethod = true
			c.registers = make(map[string]regInfo)
		case strings.HasPrefix(trimmed, ".end method"):
			inMethod = false
		}

		if converted := c.Line(line); converted != "" {
			out.WriteString(converted)
			out.WriteByte('\n')
		}
		if !inMethod && strings.HasPrefix(trimmed, ".end method") {
			out.WriteByte('\n')
		}
	}
	if c.indent > 0 {
		out.WriteString("}\n")
	}
	return out.String()
}

// ConvertMethod translates a single method body at one indent level.
func (c *Converter) ConvertMethod(smali string) string {
	c.registers = make(map[string]regInfo)
	c.indent = 1

	var out strings.Builder
	for _, line := range strings.Split(smali, "\n") {
		if converted := c.Line(line); converted != "" {
			out.WriteString(converted)
			out.WriteByte('\n')
		}
	}
	return out.String()
}

// Line translates one Smali line; the result is "" for lines that emit
// nothing (blank lines, most directives).
func (c *Converter) Line(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ""
	}

	// Offset prefixes like ".0000:" carry the instruction behind them.
	if strings.HasPrefix(trimmed, ".") {
		if colon := strings.IndexByte(trimmed, ':'); colon > 0 && colon < 8 {
			trimmed = strings.TrimSpace(trimmed[colon+1:])
			if trimmed == "" {
				return ""
			}
		} else {
			return c.directive(trimmed)
		}
	}

	// Strip a trailing disassembler comment.
	if hash := strings.Index(trimmed, " # "); hash >= 0 {
		trimmed = strings.TrimSpace(trimmed[:hash])
	}

	if strings.HasPrefix(trimmed, ":") {
		return c.pad() + trimmed[1:] + ":"
	}

	var out string
	switch {
	case strings.HasPrefix(trimmed, "const"):
		out = c.convertConst(trimmed)
	case strings.HasPrefix(trimmed, "move"):
		out = c.convertMove(trimmed)
	case strings.HasPrefix(trimmed, "invoke"):
		out = c.convertInvoke(trimmed)
	case strings.HasPrefix(trimmed, "iget"), strings.HasPrefix(trimmed, "sget"),
		strings.HasPrefix(trimmed, "iput"), strings.HasPrefix(trimmed, "sput"):
		out = c.convertField(trimmed)
	case strings.HasPrefix(trimmed, "return"):
		out = c.convertReturn(trimmed)
	case strings.HasPrefix(trimmed, "if-"):
		out = c.convertIf(trimmed)
	case strings.HasPrefix(trimmed, "new-"):
		out = c.convertNew(trimmed)
	case strings.HasPrefix(trimmed, "aget"), strings.HasPrefix(trimmed, "aput"),
		strings.HasPrefix(trimmed, "array-length"):
		out = c.convertArray(trimmed)
	case strings.HasPrefix(trimmed, "check-cast"), strings.Contains(trimmed, "-to-"):
		out = c.convertCast(trimmed)
	case trimmed == "nop":
		return ""
	case strings.HasPrefix(trimmed, "goto"):
		if colon := strings.IndexByte(trimmed, ':'); colon >= 0 {
			return c.pad() + "goto " + trimmed[colon+1:] + ";"
		}
	case strings.HasPrefix(trimmed, "throw"):
		if m := throwRe.FindStringSubmatch(trimmed); m != nil {
			return c.pad() + "throw " + m[1] + ";"
		}
	default:
		out = c.convertArith(trimmed)
	}

	if out == "" {
		return c.pad() + "// " + trimmed
	}
	return out
}

func (c *Converter) directive(trimmed string) string {
	switch {
	case strings.HasPrefix(trimmed, ".method"):
		fields := strings.Fields(trimmed)
		if len(fields) > 1 {
			sig := fields[len(fields)-1]
			name := sig
			if paren := strings.IndexByte(sig, '('); paren >= 0 {
				name = sig[:paren]
			}
			return "\n" + c.pad() + "// Method: " + name
		}
	case strings.HasPrefix(trimmed, ".end method"):
		return c.pad() + "}"
	case strings.HasPrefix(trimmed, ".registers"), strings.HasPrefix(trimmed, ".locals"):
		return c.pad() + "{"
	}
	return ""
}

func (c *Converter) convertConst(line string) string {
	if m := constStringRe.FindStringSubmatch(line); m != nil {
		c.setReg(m[1], "String", `"`+m[2]+`"`)
		return c.pad() + "String " + m[1] + ` = "` + m[2] + `";`
	}
	if m := constClassRe.FindStringSubmatch(line); m != nil {
		cls := TypeToJava(m[2])
		c.setReg(m[1], "Class", cls+".class")
		return c.pad() + "Class " + m[1] + " = " + cls + ".class;"
	}
	if m := constNumRe.FindStringSubmatch(line); m != nil {
		c.setReg(m[1], "int", m[2])
		return c.pad() + "int " + m[1] + " = " + m[2] + ";"
	}
	return ""
}

func (c *Converter) convertMove(line string) string {
	if m := moveRe.FindStringSubmatch(line); m != nil {
		dst := m[1]
		if m[2] != "" {
			src := m[2]
			typ := "Object"
			if info, ok := c.registers[src]; ok {
				typ = info.typ
			}
			c.setReg(dst, typ, src)
			return c.pad() + dst + " = " + src + ";"
		}
		c.setReg(dst, "Object", "result")
		return c.pad() + "// " + dst + " = <result>"
	}
	return ""
}

func (c *Converter) convertInvoke(line string) string {
	m := invokeRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	kind, regsStr, methodRef := m[1], m[2], m[3]

	var regs []string
	for _, r := range strings.Split(regsStr, ",") {
		if r = strings.TrimSpace(r); r != "" {
			regs = append(regs, r)
		}
	}

	className, methodPart := methodRef, methodRef
	if arrow := strings.Index(methodRef, "->"); arrow >= 0 {
		className = TypeToJava(methodRef[:arrow])
		methodPart = methodRef[arrow+2:]
	}
	methodName := methodPart
	if paren := strings.IndexByte(methodPart, '('); paren >= 0 {
		methodName = methodPart[:paren]
	}

	var call strings.Builder
	if kind == "static" {
		call.WriteString(className + "." + methodName + "(")
		for i, r := range regs {
			if i > 0 {
				call.WriteString(", ")
			}
			call.WriteString(r)
		}
	} else {
		obj := "this"
		if len(regs) > 0 {
			obj = regs[0]
		}
		if methodName == "<init>" {
			call.WriteString("new " + className + "(")
		} else {
			call.WriteString(obj + "." + methodName + "(")
		}
		for i, r := range regs[min(1, len(regs)):] {
			if i > 0 {
				call.WriteString(", ")
			}
			call.WriteString(r)
		}
	}
	call.WriteString(")")
	return c.pad() + call.String() + ";"
}

func (c *Converter) convertField(line string) string {
	m := fieldRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	static, op, valReg, objReg, fieldRef := m[1] == "s", m[2], m[3], m[4], m[5]

	className, fieldName, fieldType := "", fieldRef, "Object"
	if arrow := strings.Index(fieldRef, "->"); arrow >= 0 {
		className = TypeToJava(fieldRef[:arrow])
		rest := fieldRef[arrow+2:]
		if colon := strings.LastIndexByte(rest, ':'); colon >= 0 {
			fieldName = rest[:colon]
			fieldType = TypeToJava(rest[colon+1:])
		} else {
			fieldName = rest
		}
	}

	target := objReg + "." + fieldName
	if static {
		target = className + "." + fieldName
	}
	if op == "get" {
		c.setReg(valReg, fieldType, target)
		return c.pad() + fieldType + " " + valReg + " = " + target + ";"
	}
	return c.pad() + target + " = " + valReg + ";"
}

func (c *Converter) convertReturn(line string) string {
	if m := returnRe.FindStringSubmatch(line); m != nil {
		if m[1] != "" {
			return c.pad() + "return " + m[1] + ";"
		}
		return c.pad() + "return;"
	}
	return ""
}

func (c *Converter) convertIf(line string) string {
	if m := ifZRe.FindStringSubmatch(line); m != nil {
		return c.pad() + "if (" + m[2] + " " + compareOps[m[1]] + " 0) goto " + m[3] + ";"
	}
	if m := ifRe.FindStringSubmatch(line); m != nil {
		return c.pad() + "if (" + m[2] + " " + compareOps[m[1]] + " " + m[3] + ") goto " + m[4] + ";"
	}
	return ""
}

func (c *Converter) convertNew(line string) string {
	if m := newInstanceRe.FindStringSubmatch(line); m != nil {
		typ := TypeToJava(m[2])
		c.setReg(m[1], typ, "new "+typ+"()")
		return c.pad() + typ + " " + m[1] + " = new " + typ + "();"
	}
	if m := newArrayRe.FindStringSubmatch(line); m != nil {
		typ := TypeToJava(m[3])
		elem := strings.TrimSuffix(typ, "[]")
		c.setReg(m[1], typ, "new "+elem+"["+m[2]+"]")
		return c.pad() + typ + " " + m[1] + " = new " + elem + "[" + m[2] + "];"
	}
	return ""
}

func (c *Converter) convertArray(line string) string {
	if m := arrayLenRe.FindStringSubmatch(line); m != nil {
		return c.pad() + m[1] + " = " + m[2] + ".length;"
	}
	if strings.HasPrefix(line, "aget") {
		if m := agetRe.FindStringSubmatch(line); m != nil {
			return c.pad() + m[1] + " = " + m[2] + "[" + m[3] + "];"
		}
	}
	if m := aputRe.FindStringSubmatch(line); m != nil {
		return c.pad() + m[2] + "[" + m[3] + "] = " + m[1] + ";"
	}
	return ""
}

func (c *Converter) convertCast(line string) string {
	if m := checkCastRe.FindStringSubmatch(line); m != nil {
		typ := TypeToJava(m[2])
		return c.pad() + m[1] + " = (" + typ + ") " + m[1] + ";"
	}
	if m := convRe.FindStringSubmatch(line); m != nil {
		return c.pad() + m[3] + " = (" + m[2] + ") " + m[4] + ";"
	}
	return ""
}

func (c *Converter) convertArith(line string) string {
	if m := arith2Re.FindStringSubmatch(line); m != nil {
		return c.pad() + m[3] + " " + arithOps[m[1]] + "= " + m[4] + ";"
	}
	if m := arith3Re.FindStringSubmatch(line); m != nil {
		return c.pad() + m[3] + " = " + m[4] + " " + arithOps[m[1]] + " " + m[5] + ";"
	}
	if m := negRe.FindStringSubmatch(line); m != nil {
		op := "-"
		if m[1] == "not" {
			op = "~"
		}
		return c.pad() + m[3] + " = " + op + m[4] + ";"
	}
	return ""
}
