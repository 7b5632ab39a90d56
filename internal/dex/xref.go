package dex

import (
	"github.com/aetherlink/dexedit/internal/bytecursor"
)

// XRef is one call or field-access site.
type XRef struct {
	CallerClass  string
	CallerMethod string
	Offset       uint32 // code-unit offset within the caller's code
}

// FindMethodXRefs scans every method body for invoke instructions that
// target className.methodName. Invokes are recognized by opcode range
// (0x6E-0x72 and 0x74-0x78, three code units, u16 method index at byte 2).
func (f *File) FindMethodXRefs(className, methodName string) []XRef {
	target := -1
	for i := range f.Methods {
		m := f.Methods[i]
		if f.TypeName(uint32(m.ClassIdx)) == className && f.StringAt(m.NameIdx) == methodName {
			target = i
			break
		}
	}
	if target < 0 {
		return nil
	}
	return f.scanXRefs(func(op byte) (bool, int) {
		if (op >= 0x6E && op <= 0x72) || (op >= 0x74 && op <= 0x78) {
			return true, 6
		}
		return false, 0
	}, uint16(target))
}

// FindFieldXRefs is the field analogue: iget/iput 0x52-0x5F and sget/sput
// 0x60-0x6D, two code units, u16 field index at byte 2.
func (f *File) FindFieldXRefs(className, fieldName string) []XRef {
	target := -1
	for i := range f.Fields {
		fd := f.Fields[i]
		if f.TypeName(uint32(fd.ClassIdx)) == className && f.StringAt(fd.NameIdx) == fieldName {
			target = i
			break
		}
	}
	if target < 0 {
		return nil
	}
	return f.scanXRefs(func(op byte) (bool, int) {
		if op >= 0x52 && op <= 0x6D {
			return true, 4
		}
		return false, 0
	}, uint16(target))
}

// scanXRefs walks all method bodies. Matched instructions advance by their
// real size; everything else advances two bytes. That guess under-steps
// some longer instructions and may revisit their payload bytes — the
// 0x00 early-out keeps the walk from wandering through padding.
func (f *File) scanXRefs(match func(op byte) (hit bool, step int), target uint16) []XRef {
	var results []XRef
	for _, cd := range f.Classes {
		callerClass := f.TypeName(cd.ClassIdx)
		if callerClass == "" || cd.ClassDataOff == 0 {
			continue
		}
		data, err := f.ClassData(cd)
		if err != nil {
			continue
		}
		for _, m := range append(data.DirectMethods, data.VirtualMethods...) {
			if m.CodeOff == 0 {
				continue
			}
			code, err := f.Code(m.CodeOff)
			if err != nil {
				continue
			}
			callerMethod := ""
			if int(m.MethodIdx) < len(f.Methods) {
				callerMethod = f.StringAt(f.Methods[m.MethodIdx].NameIdx)
			}
			insns := code.Insns
			for pos := 0; pos < len(insns); {
				op := insns[pos]
				if hit, step := match(op); hit {
					if ref, err := bytecursor.U16(insns, pos+2); err == nil && ref == target {
						results = append(results, XRef{
							CallerClass:  callerClass,
							CallerMethod: callerMethod,
							Offset:       uint32(pos / 2),
						})
					}
					pos += step
				} else {
					pos += 2
					if op == 0x00 && pos > 2 {
						break
					}
				}
			}
		}
	}
	return results
}
