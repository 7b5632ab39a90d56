package dex

import (
	"fmt"
	"hash/adler32"
	"sort"
	"strings"

	"github.com/aetherlink/dexedit/internal/bytecursor"
)

// Access flags used when routing methods between the direct and virtual
// lists.
const (
	AccPublic      = 0x0001
	AccPrivate     = 0x0002
	AccStatic      = 0x0008
	AccFinal       = 0x0010
	AccAbstract    = 0x0400
	AccConstructor = 0x10000
)

// Prototype is a method signature split into descriptor parts.
type Prototype struct {
	ReturnType string
	ParamTypes []string
}

// String renders the signature as "(P1P2...)R".
func (p Prototype) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, t := range p.ParamTypes {
		sb.WriteString(t)
	}
	sb.WriteByte(')')
	sb.WriteString(p.ReturnType)
	return sb.String()
}

// Shorty derives the one-character-per-type shorty descriptor; references
// and arrays collapse to 'L'.
func (p Prototype) Shorty() string {
	short := func(t string) byte {
		if t == "" {
			return 'V'
		}
		if t[0] == 'L' || t[0] == '[' {
			return 'L'
		}
		return t[0]
	}
	var sb strings.Builder
	sb.WriteByte(short(p.ReturnType))
	for _, t := range p.ParamTypes {
		sb.WriteByte(short(t))
	}
	return sb.String()
}

// ParsePrototype splits a "(P1P2...)R" signature into its types.
func ParsePrototype(s string) (Prototype, error) {
	open := strings.IndexByte(s, '(')
	end := strings.IndexByte(s, ')')
	if open != 0 || end < 0 {
		return Prototype{}, fmt.Errorf("dex: malformed prototype %q", s)
	}
	params, err := SplitTypeList(s[1:end])
	if err != nil {
		return Prototype{}, err
	}
	return Prototype{ReturnType: s[end+1:], ParamTypes: params}, nil
}

// SplitTypeList splits a concatenated descriptor list like "I[JLjava/lang/String;".
func SplitTypeList(s string) ([]string, error) {
	var out []string
	for i := 0; i < len(s); {
		start := i
		for i < len(s) && s[i] == '[' {
			i++
		}
		if i >= len(s) {
			return nil, fmt.Errorf("dex: dangling array marker in %q", s)
		}
		if s[i] == 'L' {
			end := strings.IndexByte(s[i:], ';')
			if end < 0 {
				return nil, fmt.Errorf("dex: unterminated class descriptor in %q", s)
			}
			i += end + 1
		} else {
			i++
		}
		out = append(out, s[start:i])
	}
	return out, nil
}

// FieldDef is a field being built.
type FieldDef struct {
	Name        string
	Type        string
	AccessFlags uint32
}

// MethodDef is a method being built. Code is raw instruction bytes; an
// empty Code means abstract or native.
type MethodDef struct {
	Name        string
	Proto       Prototype
	AccessFlags uint32
	Registers   uint16
	Ins         uint16
	Outs        uint16
	Code        []byte
}

// ClassEntry is one class being built or carried over from a loaded DEX.
type ClassEntry struct {
	Name           string
	Super          string
	AccessFlags    uint32
	StaticFields   []FieldDef
	InstanceFields []FieldDef
	DirectMethods  []MethodDef
	VirtualMethods []MethodDef
}

// AddMethod routes a method into the direct or virtual list by its flags.
func (c *ClassEntry) AddMethod(m MethodDef) {
	if m.AccessFlags&(AccStatic|AccPrivate|AccConstructor) != 0 {
		c.DirectMethods = append(c.DirectMethods, m)
	} else {
		c.VirtualMethods = append(c.VirtualMethods, m)
	}
}

type protoEntry struct {
	shortyIdx     uint32
	returnTypeIdx uint32
	paramTypeIdxs []uint16
}

// Builder holds the typed pools of a DEX under construction. Intern maps
// guarantee stable indices: insertion order is pool order and nothing is
// ever re-sorted. A builder loaded from an existing image and never
// mutated rebuilds to the original bytes verbatim.
type Builder struct {
	original []byte
	modified bool

	strings   []string
	stringIdx map[string]uint32
	types     []string
	typeIdx   map[string]uint32
	protos    []protoEntry
	protoIdx  map[string]uint32
	fields    []FieldID
	fieldIdx  map[string]uint32
	methods   []MethodID
	methodIdx map[string]uint32

	classes  []*ClassEntry
	classIdx map[string]int
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		stringIdx: make(map[string]uint32),
		typeIdx:   make(map[string]uint32),
		protoIdx:  make(map[string]uint32),
		fieldIdx:  make(map[string]uint32),
		methodIdx: make(map[string]uint32),
		classIdx:  make(map[string]int),
	}
}

// Load populates the builder from an existing DEX image: every pool entry
// is interned at its original index and every class is decoded into an
// editable ClassEntry.
func Load(data []byte) (*Builder, error) {
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	b := NewBuilder()
	b.original = data

	for i, s := range f.Strings {
		b.strings = append(b.strings, s)
		if _, ok := b.stringIdx[s]; !ok {
			b.stringIdx[s] = uint32(i)
		}
	}
	for i, t := range f.Types {
		b.types = append(b.types, t)
		if _, ok := b.typeIdx[t]; !ok {
			b.typeIdx[t] = uint32(i)
		}
	}
	for i, p := range f.Protos {
		b.protos = append(b.protos, protoEntry{
			shortyIdx:     p.ShortyIdx,
			returnTypeIdx: p.ReturnTypeIdx,
			paramTypeIdxs: p.ParamTypeIdxs,
		})
		key := f.ProtoString(uint32(i))
		if _, ok := b.protoIdx[key]; !ok {
			b.protoIdx[key] = uint32(i)
		}
	}
	for i, fd := range f.Fields {
		b.fields = append(b.fields, fd)
		key := f.FieldSignature(uint32(i))
		if _, ok := b.fieldIdx[key]; !ok {
			b.fieldIdx[key] = uint32(i)
		}
	}
	for i, m := range f.Methods {
		b.methods = append(b.methods, m)
		key := f.MethodSignature(uint32(i))
		if _, ok := b.methodIdx[key]; !ok {
			b.methodIdx[key] = uint32(i)
		}
	}

	for _, cd := range f.Classes {
		entry := &ClassEntry{
			Name:        f.TypeName(cd.ClassIdx),
			AccessFlags: cd.AccessFlags,
		}
		if cd.SuperclassIdx != NoIndex {
			entry.Super = f.TypeName(cd.SuperclassIdx)
		}
		data, err := f.ClassData(cd)
		if err != nil {
			return nil, fmt.Errorf("dex: class %s: %w", entry.Name, err)
		}
		toField := func(ef EncodedField) FieldDef {
			fd := f.Fields[ef.FieldIdx]
			return FieldDef{
				Name:        f.StringAt(fd.NameIdx),
				Type:        f.TypeName(uint32(fd.TypeIdx)),
				AccessFlags: ef.AccessFlags,
			}
		}
		toMethod := func(em EncodedMethod) MethodDef {
			mid := f.Methods[em.MethodIdx]
			md := MethodDef{
				Name:        f.StringAt(mid.NameIdx),
				AccessFlags: em.AccessFlags,
			}
			proto := f.Protos[mid.ProtoIdx]
			md.Proto.ReturnType = f.TypeName(proto.ReturnTypeIdx)
			for _, t := range proto.ParamTypeIdxs {
				md.Proto.ParamTypes = append(md.Proto.ParamTypes, f.TypeName(uint32(t)))
			}
			if em.CodeOff != 0 {
				if code, err := f.Code(em.CodeOff); err == nil {
					md.Registers = code.RegistersSize
					md.Ins = code.InsSize
					md.Outs = code.OutsSize
					md.Code = append([]byte(nil), code.Insns...)
				}
			}
			return md
		}
		for _, ef := range data.StaticFields {
			if int(ef.FieldIdx) < len(f.Fields) {
				entry.StaticFields = append(entry.StaticFields, toField(ef))
			}
		}
		for _, ef := range data.InstanceFields {
			if int(ef.FieldIdx) < len(f.Fields) {
				entry.InstanceFields = append(entry.InstanceFields, toField(ef))
			}
		}
		for _, em := range data.DirectMethods {
			if int(em.MethodIdx) < len(f.Methods) {
				entry.DirectMethods = append(entry.DirectMethods, toMethod(em))
			}
		}
		for _, em := range data.VirtualMethods {
			if int(em.MethodIdx) < len(f.Methods) {
				entry.VirtualMethods = append(entry.VirtualMethods, toMethod(em))
			}
		}
		b.classIdx[entry.Name] = len(b.classes)
		b.classes = append(b.classes, entry)
	}

	return b, nil
}

// GetOrAddString interns s and returns its stable index.
func (b *Builder) GetOrAddString(s string) uint32 {
	if idx, ok := b.stringIdx[s]; ok {
		return idx
	}
	idx := uint32(len(b.strings))
	b.strings = append(b.strings, s)
	b.stringIdx[s] = idx
	b.modified = true
	return idx
}

// GetOrAddType interns a type descriptor.
func (b *Builder) GetOrAddType(t string) uint32 {
	if idx, ok := b.typeIdx[t]; ok {
		return idx
	}
	b.GetOrAddString(t)
	idx := uint32(len(b.types))
	b.types = append(b.types, t)
	b.typeIdx[t] = idx
	b.modified = true
	return idx
}

// GetOrAddProto interns a prototype, keyed by its "(P...)R" signature.
func (b *Builder) GetOrAddProto(p Prototype) uint32 {
	key := p.String()
	if idx, ok := b.protoIdx[key]; ok {
		return idx
	}
	entry := protoEntry{
		shortyIdx:     b.GetOrAddString(p.Shorty()),
		returnTypeIdx: b.GetOrAddType(p.ReturnType),
	}
	for _, t := range p.ParamTypes {
		entry.paramTypeIdxs = append(entry.paramTypeIdxs, uint16(b.GetOrAddType(t)))
	}
	idx := uint32(len(b.protos))
	b.protos = append(b.protos, entry)
	b.protoIdx[key] = idx
	b.modified = true
	return idx
}

// GetOrAddField interns a field id, keyed "Lclass;->name:type".
func (b *Builder) GetOrAddField(class, name, typ string) uint32 {
	key := class + "->" + name + ":" + typ
	if idx, ok := b.fieldIdx[key]; ok {
		return idx
	}
	fid := FieldID{
		ClassIdx: uint16(b.GetOrAddType(class)),
		TypeIdx:  uint16(b.GetOrAddType(typ)),
		NameIdx:  b.GetOrAddString(name),
	}
	idx := uint32(len(b.fields))
	b.fields = append(b.fields, fid)
	b.fieldIdx[key] = idx
	b.modified = true
	return idx
}

// GetOrAddMethod interns a method id, keyed "Lclass;->name(P...)R".
func (b *Builder) GetOrAddMethod(class, name string, proto Prototype) uint32 {
	key := class + "->" + name + proto.String()
	if idx, ok := b.methodIdx[key]; ok {
		return idx
	}
	mid := MethodID{
		ClassIdx: uint16(b.GetOrAddType(class)),
		ProtoIdx: uint16(b.GetOrAddProto(proto)),
		NameIdx:  b.GetOrAddString(name),
	}
	idx := uint32(len(b.methods))
	b.methods = append(b.methods, mid)
	b.methodIdx[key] = idx
	b.modified = true
	return idx
}

// Class returns the entry for name, or nil.
func (b *Builder) Class(name string) *ClassEntry {
	if i, ok := b.classIdx[name]; ok {
		return b.classes[i]
	}
	return nil
}

// ClassNames returns all class descriptors in definition order.
func (b *Builder) ClassNames() []string {
	names := make([]string, len(b.classes))
	for i, c := range b.classes {
		names[i] = c.Name
	}
	return names
}

// AddClass appends a new class entry. Replacing an existing name is an
// error; use Class to edit in place.
func (b *Builder) AddClass(entry *ClassEntry) error {
	if _, ok := b.classIdx[entry.Name]; ok {
		return fmt.Errorf("dex: class %s already defined", entry.Name)
	}
	b.GetOrAddType(entry.Name)
	if entry.Super != "" {
		b.GetOrAddType(entry.Super)
	}
	b.classIdx[entry.Name] = len(b.classes)
	b.classes = append(b.classes, entry)
	b.modified = true
	return nil
}

// ReplaceClass swaps the definition of an existing class.
func (b *Builder) ReplaceClass(entry *ClassEntry) error {
	i, ok := b.classIdx[entry.Name]
	if !ok {
		return fmt.Errorf("dex: class %s not found", entry.Name)
	}
	b.classes[i] = entry
	b.modified = true
	return nil
}

// DeleteClass removes a class definition. Pool entries it referenced stay;
// unreferenced ids are legal in a DEX.
func (b *Builder) DeleteClass(name string) error {
	i, ok := b.classIdx[name]
	if !ok {
		return fmt.Errorf("dex: class %s not found", name)
	}
	b.classes = append(b.classes[:i], b.classes[i+1:]...)
	delete(b.classIdx, name)
	for n, j := range b.classIdx {
		if j > i {
			b.classIdx[n] = j - 1
		}
	}
	b.modified = true
	return nil
}

// Modified reports whether anything changed since Load.
func (b *Builder) Modified() bool { return b.modified }

func align4(buf []byte) []byte {
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

// Build rematerializes the byte image: data section first (string bodies,
// type lists, code items, class-data), then the fixed-size id tables, the
// class defs and the map list, then the header is patched and the Adler-32
// checksum recomputed over bytes [12:]. A builder loaded from an existing
// image with no mutations returns the original bytes unchanged.
func (b *Builder) Build() []byte {
	if b.original != nil && !b.modified {
		return b.original
	}

	// Method ids for every class member must exist before emission so the
	// pools stop growing.
	for _, c := range b.classes {
		for _, fd := range append(append([]FieldDef(nil), c.StaticFields...), c.InstanceFields...) {
			b.GetOrAddField(c.Name, fd.Name, fd.Type)
		}
		for _, m := range append(append([]MethodDef(nil), c.DirectMethods...), c.VirtualMethods...) {
			b.GetOrAddMethod(c.Name, m.Name, m.Proto)
		}
	}

	out := make([]byte, headerSize)
	copy(out, Magic)
	dataStart := len(out)

	// String bodies.
	stringOffs := make([]uint32, len(b.strings))
	for i, s := range b.strings {
		stringOffs[i] = uint32(len(out))
		out = bytecursor.AppendUleb128(out, uint32(len(s)))
		out = append(out, s...)
		out = append(out, 0)
	}
	out = align4(out)

	// Parameter type lists, one per proto with parameters.
	typeListOffs := make([]uint32, len(b.protos))
	for i, p := range b.protos {
		if len(p.paramTypeIdxs) == 0 {
			continue
		}
		out = align4(out)
		typeListOffs[i] = uint32(len(out))
		list := make([]byte, 4+len(p.paramTypeIdxs)*2)
		bytecursor.PutU32(list, 0, uint32(len(p.paramTypeIdxs)))
		for j, t := range p.paramTypeIdxs {
			bytecursor.PutU16(list, 4+j*2, t)
		}
		out = append(out, list...)
		out = align4(out)
	}

	// Code items, one per method carrying code.
	type codeRef struct{ off uint32 }
	codeOffs := make(map[*ClassEntry][]codeRef)
	for _, c := range b.classes {
		refs := make([]codeRef, 0, len(c.DirectMethods)+len(c.VirtualMethods))
		emit := func(m MethodDef) {
			if len(m.Code) == 0 {
				refs = append(refs, codeRef{0})
				return
			}
			out = align4(out)
			off := uint32(len(out))
			item := make([]byte, 16)
			bytecursor.PutU16(item, 0, m.Registers)
			bytecursor.PutU16(item, 2, m.Ins)
			bytecursor.PutU16(item, 4, m.Outs)
			bytecursor.PutU16(item, 6, 0) // tries
			bytecursor.PutU32(item, 8, 0) // debug info
			bytecursor.PutU32(item, 12, uint32(len(m.Code)/2))
			out = append(out, item...)
			out = append(out, m.Code...)
			out = align4(out)
			refs = append(refs, codeRef{off})
		}
		for _, m := range c.DirectMethods {
			emit(m)
		}
		for _, m := range c.VirtualMethods {
			emit(m)
		}
		codeOffs[c] = refs
	}

	// Class-data items. Field and method records are differential, so sort
	// each list by pool index before encoding.
	classDataOffs := make([]uint32, len(b.classes))
	for ci, c := range b.classes {
		if len(c.StaticFields)+len(c.InstanceFields)+len(c.DirectMethods)+len(c.VirtualMethods) == 0 {
			continue
		}
		classDataOffs[ci] = uint32(len(out))
		out = bytecursor.AppendUleb128(out, uint32(len(c.StaticFields)))
		out = bytecursor.AppendUleb128(out, uint32(len(c.InstanceFields)))
		out = bytecursor.AppendUleb128(out, uint32(len(c.DirectMethods)))
		out = bytecursor.AppendUleb128(out, uint32(len(c.VirtualMethods)))

		emitFields := func(fields []FieldDef) {
			type rec struct {
				idx   uint32
				flags uint32
			}
			recs := make([]rec, len(fields))
			for i, fd := range fields {
				recs[i] = rec{b.GetOrAddField(c.Name, fd.Name, fd.Type), fd.AccessFlags}
			}
			sort.Slice(recs, func(i, j int) bool { return recs[i].idx < recs[j].idx })
			var prev uint32
			for i, r := range recs {
				diff := r.idx
				if i > 0 {
					diff = r.idx - prev
				}
				out = bytecursor.AppendUleb128(out, diff)
				out = bytecursor.AppendUleb128(out, r.flags)
				prev = r.idx
			}
		}
		emitMethods := func(methods []MethodDef, offs []codeRef) {
			type rec struct {
				idx   uint32
				flags uint32
				code  uint32
			}
			recs := make([]rec, len(methods))
			for i, m := range methods {
				recs[i] = rec{b.GetOrAddMethod(c.Name, m.Name, m.Proto), m.AccessFlags, offs[i].off}
			}
			sort.Slice(recs, func(i, j int) bool { return recs[i].idx < recs[j].idx })
			var prev uint32
			for i, r := range recs {
				diff := r.idx
				if i > 0 {
					diff = r.idx - prev
				}
				out = bytecursor.AppendUleb128(out, diff)
				out = bytecursor.AppendUleb128(out, r.flags)
				out = bytecursor.AppendUleb128(out, r.code)
				prev = r.idx
			}
		}
		refs := codeOffs[c]
		emitFields(c.StaticFields)
		emitFields(c.InstanceFields)
		emitMethods(c.DirectMethods, refs[:len(c.DirectMethods)])
		emitMethods(c.VirtualMethods, refs[len(c.DirectMethods):])
	}
	out = align4(out)

	// Fixed-size id tables.
	stringIDsOff := uint32(len(out))
	for _, off := range stringOffs {
		out = appendU32(out, off)
	}
	typeIDsOff := uint32(len(out))
	for _, t := range b.types {
		out = appendU32(out, b.stringIdx[t])
	}
	protoIDsOff := uint32(len(out))
	for i, p := range b.protos {
		out = appendU32(out, p.shortyIdx)
		out = appendU32(out, p.returnTypeIdx)
		out = appendU32(out, typeListOffs[i])
	}
	fieldIDsOff := uint32(len(out))
	for _, fd := range b.fields {
		out = appendU16(out, fd.ClassIdx)
		out = appendU16(out, fd.TypeIdx)
		out = appendU32(out, fd.NameIdx)
	}
	methodIDsOff := uint32(len(out))
	for _, m := range b.methods {
		out = appendU16(out, m.ClassIdx)
		out = appendU16(out, m.ProtoIdx)
		out = appendU32(out, m.NameIdx)
	}
	classDefsOff := uint32(len(out))
	for ci, c := range b.classes {
		out = appendU32(out, b.typeIdx[c.Name])
		out = appendU32(out, c.AccessFlags)
		if super, ok := b.typeIdx[c.Super]; ok && c.Super != "" {
			out = appendU32(out, super)
		} else {
			out = appendU32(out, NoIndex)
		}
		out = appendU32(out, 0)       // interfaces
		out = appendU32(out, NoIndex) // source file
		out = appendU32(out, 0)       // annotations
		out = appendU32(out, classDataOffs[ci])
		out = appendU32(out, 0) // static values
	}

	// Map list.
	mapOff := uint32(len(out))
	type mapItem struct {
		typ   uint16
		count uint32
		off   uint32
	}
	items := []mapItem{{0x0000, 1, 0}}
	if len(b.strings) > 0 {
		items = append(items, mapItem{0x0001, uint32(len(b.strings)), stringIDsOff})
	}
	if len(b.types) > 0 {
		items = append(items, mapItem{0x0002, uint32(len(b.types)), typeIDsOff})
	}
	if len(b.protos) > 0 {
		items = append(items, mapItem{0x0003, uint32(len(b.protos)), protoIDsOff})
	}
	if len(b.fields) > 0 {
		items = append(items, mapItem{0x0004, uint32(len(b.fields)), fieldIDsOff})
	}
	if len(b.methods) > 0 {
		items = append(items, mapItem{0x0005, uint32(len(b.methods)), methodIDsOff})
	}
	if len(b.classes) > 0 {
		items = append(items, mapItem{0x0006, uint32(len(b.classes)), classDefsOff})
	}
	items = append(items, mapItem{0x1000, 1, mapOff})
	out = appendU32(out, uint32(len(items)))
	for _, it := range items {
		out = appendU16(out, it.typ)
		out = appendU16(out, 0)
		out = appendU32(out, it.count)
		out = appendU32(out, it.off)
	}

	// Patch the header.
	put := func(off int, v uint32) { bytecursor.PutU32(out, off, v) }
	put(32, uint32(len(out)))
	put(36, headerSize)
	put(40, endianTag)
	put(52, mapOff)
	putPool := func(off int, n int, tableOff uint32) {
		put(off, uint32(n))
		if n == 0 {
			tableOff = 0
		}
		put(off+4, tableOff)
	}
	putPool(56, len(b.strings), stringIDsOff)
	putPool(64, len(b.types), typeIDsOff)
	putPool(72, len(b.protos), protoIDsOff)
	putPool(80, len(b.fields), fieldIDsOff)
	putPool(88, len(b.methods), methodIDsOff)
	putPool(96, len(b.classes), classDefsOff)
	put(104, uint32(len(out)-dataStart))
	put(108, uint32(dataStart))

	put(8, Checksum(out))
	return out
}

// Checksum computes the header Adler-32: the digest of everything after
// the magic and checksum fields.
func Checksum(image []byte) uint32 {
	if len(image) <= 12 {
		return adler32.Checksum(nil)
	}
	return adler32.Checksum(image[12:])
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
