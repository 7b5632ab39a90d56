// Package dex implements the Dalvik executable format: a pool-section
// parser, a full-table disassembler and assembler for Smali text, a
// rebuilding writer with intern maps, and method/field cross-reference
// search. See https://source.android.com/docs/core/runtime/dex-format.
package dex

import (
	"fmt"
	"strings"

	"github.com/aetherlink/dexedit/internal/bytecursor"
)

// Magic is the version-035 file magic.
var Magic = []byte("dex\n035\x00")

const (
	headerSize   = 0x70
	endianTag    = 0x12345678
	classDefSize = 32

	// NoIndex marks an absent superclass or source file.
	NoIndex = 0xFFFFFFFF
)

// Header is the fixed 0x70-byte DEX file header.
type Header struct {
	Checksum      uint32
	Signature     [20]byte
	FileSize      uint32
	HeaderSize    uint32
	EndianTag     uint32
	LinkSize      uint32
	LinkOff       uint32
	MapOff        uint32
	StringIDsSize uint32
	StringIDsOff  uint32
	TypeIDsSize   uint32
	TypeIDsOff    uint32
	ProtoIDsSize  uint32
	ProtoIDsOff   uint32
	FieldIDsSize  uint32
	FieldIDsOff   uint32
	MethodIDsSize uint32
	MethodIDsOff  uint32
	ClassDefsSize uint32
	ClassDefsOff  uint32
	DataSize      uint32
	DataOff       uint32
}

// ProtoID is one proto-pool record with its parameter type list resolved.
type ProtoID struct {
	ShortyIdx     uint32
	ReturnTypeIdx uint32
	ParamTypeIdxs []uint16
}

// FieldID is one field-pool record.
type FieldID struct {
	ClassIdx uint16
	TypeIdx  uint16
	NameIdx  uint32
}

// MethodID is one method-pool record.
type MethodID struct {
	ClassIdx uint16
	ProtoIdx uint16
	NameIdx  uint32
}

// ClassDef is one class-defs record.
type ClassDef struct {
	ClassIdx        uint32
	AccessFlags     uint32
	SuperclassIdx   uint32
	InterfacesOff   uint32
	SourceFileIdx   uint32
	AnnotationsOff  uint32
	ClassDataOff    uint32
	StaticValuesOff uint32
}

// CodeItem is one method body.
type CodeItem struct {
	RegistersSize uint16
	InsSize       uint16
	OutsSize      uint16
	TriesSize     uint16
	DebugInfoOff  uint32
	InsnsSize     uint32 // in 16-bit code units
	Insns         []byte
	CodeOff       uint32
}

// EncodedField is one class-data field record with its index resolved.
type EncodedField struct {
	FieldIdx    uint32
	AccessFlags uint32
}

// EncodedMethod is one class-data method record with its index resolved.
type EncodedMethod struct {
	MethodIdx   uint32
	AccessFlags uint32
	CodeOff     uint32
}

// ClassData is a decoded class_data_item.
type ClassData struct {
	StaticFields   []EncodedField
	InstanceFields []EncodedField
	DirectMethods  []EncodedMethod
	VirtualMethods []EncodedMethod
}

// File is a parsed DEX image. It keeps the original bytes plus decoded
// pools; offsets into the data section are resolved on demand.
type File struct {
	data     []byte
	Header   Header
	Strings  []string
	TypeIdxs []uint32 // type pool: string indices
	Types    []string // resolved descriptors
	Protos   []ProtoID
	Fields   []FieldID
	Methods  []MethodID
	Classes  []ClassDef
}

// Parse decodes the pools and class defs of a DEX buffer. The checksum is
// not verified: packers routinely ship stale ones.
func Parse(data []byte) (*File, error) {
	f := &File{data: data}
	if err := f.parseHeader(); err != nil {
		return nil, err
	}
	if err := f.parseStrings(); err != nil {
		return nil, err
	}
	if err := f.parseTypes(); err != nil {
		return nil, err
	}
	if err := f.parseProtos(); err != nil {
		return nil, err
	}
	if err := f.parseFields(); err != nil {
		return nil, err
	}
	if err := f.parseMethods(); err != nil {
		return nil, err
	}
	if err := f.parseClassDefs(); err != nil {
		return nil, err
	}
	return f, nil
}

// Bytes returns the underlying image.
func (f *File) Bytes() []byte { return f.data }

func (f *File) parseHeader() error {
	if len(f.data) < headerSize {
		return fmt.Errorf("dex: %d bytes is smaller than the header", len(f.data))
	}
	if string(f.data[:4]) != "dex\n" {
		return fmt.Errorf("dex: bad magic %q", f.data[:4])
	}
	h := &f.Header
	h.Checksum, _ = bytecursor.U32(f.data, 8)
	copy(h.Signature[:], f.data[12:32])
	h.FileSize, _ = bytecursor.U32(f.data, 32)
	h.HeaderSize, _ = bytecursor.U32(f.data, 36)
	h.EndianTag, _ = bytecursor.U32(f.data, 40)
	h.LinkSize, _ = bytecursor.U32(f.data, 44)
	h.LinkOff, _ = bytecursor.U32(f.data, 48)
	h.MapOff, _ = bytecursor.U32(f.data, 52)
	h.StringIDsSize, _ = bytecursor.U32(f.data, 56)
	h.StringIDsOff, _ = bytecursor.U32(f.data, 60)
	h.TypeIDsSize, _ = bytecursor.U32(f.data, 64)
	h.TypeIDsOff, _ = bytecursor.U32(f.data, 68)
	h.ProtoIDsSize, _ = bytecursor.U32(f.data, 72)
	h.ProtoIDsOff, _ = bytecursor.U32(f.data, 76)
	h.FieldIDsSize, _ = bytecursor.U32(f.data, 80)
	h.FieldIDsOff, _ = bytecursor.U32(f.data, 84)
	h.MethodIDsSize, _ = bytecursor.U32(f.data, 88)
	h.MethodIDsOff, _ = bytecursor.U32(f.data, 92)
	h.ClassDefsSize, _ = bytecursor.U32(f.data, 96)
	h.ClassDefsOff, _ = bytecursor.U32(f.data, 100)
	h.DataSize, _ = bytecursor.U32(f.data, 104)
	h.DataOff, _ = bytecursor.U32(f.data, 108)
	if h.EndianTag != endianTag {
		return fmt.Errorf("dex: unsupported endian tag %#x", h.EndianTag)
	}
	return nil
}

func (f *File) parseStrings() error {
	h := f.Header
	end := int(h.StringIDsOff) + int(h.StringIDsSize)*4
	if end > len(f.data) {
		return fmt.Errorf("dex: string id table runs past end of file")
	}
	f.Strings = make([]string, h.StringIDsSize)
	for i := range f.Strings {
		off, _ := bytecursor.U32(f.data, int(h.StringIDsOff)+i*4)
		f.Strings[i] = f.stringAt(off)
	}
	return nil
}

// stringAt decodes the MUTF-8 string data at off. A malformed entry comes
// back empty; individual bad strings never abort the parse.
func (f *File) stringAt(off uint32) string {
	pos := int(off)
	if pos >= len(f.data) {
		return ""
	}
	n, err := bytecursor.Uleb128(f.data, &pos)
	if err != nil || pos+int(n) > len(f.data) {
		return ""
	}
	return string(f.data[pos : pos+int(n)])
}

func (f *File) parseTypes() error {
	h := f.Header
	if int(h.TypeIDsOff)+int(h.TypeIDsSize)*4 > len(f.data) {
		return fmt.Errorf("dex: type id table runs past end of file")
	}
	f.TypeIdxs = make([]uint32, h.TypeIDsSize)
	f.Types = make([]string, h.TypeIDsSize)
	for i := range f.TypeIdxs {
		idx, _ := bytecursor.U32(f.data, int(h.TypeIDsOff)+i*4)
		f.TypeIdxs[i] = idx
		if int(idx) < len(f.Strings) {
			f.Types[i] = f.Strings[idx]
		}
	}
	return nil
}

func (f *File) parseProtos() error {
	h := f.Header
	if int(h.ProtoIDsOff)+int(h.ProtoIDsSize)*12 > len(f.data) {
		return fmt.Errorf("dex: proto id table runs past end of file")
	}
	f.Protos = make([]ProtoID, h.ProtoIDsSize)
	for i := range f.Protos {
		off := int(h.ProtoIDsOff) + i*12
		p := &f.Protos[i]
		p.ShortyIdx, _ = bytecursor.U32(f.data, off)
		p.ReturnTypeIdx, _ = bytecursor.U32(f.data, off+4)
		paramsOff, _ := bytecursor.U32(f.data, off+8)
		if paramsOff == 0 {
			continue
		}
		count, err := bytecursor.U32(f.data, int(paramsOff))
		if err != nil {
			continue
		}
		for j := 0; j < int(count); j++ {
			t, err := bytecursor.U16(f.data, int(paramsOff)+4+j*2)
			if err != nil {
				break
			}
			p.ParamTypeIdxs = append(p.ParamTypeIdxs, t)
		}
	}
	return nil
}

func (f *File) parseFields() error {
	h := f.Header
	if int(h.FieldIDsOff)+int(h.FieldIDsSize)*8 > len(f.data) {
		return fmt.Errorf("dex: field id table runs past end of file")
	}
	f.Fields = make([]FieldID, h.FieldIDsSize)
	for i := range f.Fields {
		off := int(h.FieldIDsOff) + i*8
		f.Fields[i].ClassIdx, _ = bytecursor.U16(f.data, off)
		f.Fields[i].TypeIdx, _ = bytecursor.U16(f.data, off+2)
		f.Fields[i].NameIdx, _ = bytecursor.U32(f.data, off+4)
	}
	return nil
}

func (f *File) parseMethods() error {
	h := f.Header
	if int(h.MethodIDsOff)+int(h.MethodIDsSize)*8 > len(f.data) {
		return fmt.Errorf("dex: method id table runs past end of file")
	}
	f.Methods = make([]MethodID, h.MethodIDsSize)
	for i := range f.Methods {
		off := int(h.MethodIDsOff) + i*8
		f.Methods[i].ClassIdx, _ = bytecursor.U16(f.data, off)
		f.Methods[i].ProtoIdx, _ = bytecursor.U16(f.data, off+2)
		f.Methods[i].NameIdx, _ = bytecursor.U32(f.data, off+4)
	}
	return nil
}

func (f *File) parseClassDefs() error {
	h := f.Header
	if int(h.ClassDefsOff)+int(h.ClassDefsSize)*classDefSize > len(f.data) {
		return fmt.Errorf("dex: class def table runs past end of file")
	}
	f.Classes = make([]ClassDef, h.ClassDefsSize)
	for i := range f.Classes {
		off := int(h.ClassDefsOff) + i*classDefSize
		c := &f.Classes[i]
		c.ClassIdx, _ = bytecursor.U32(f.data, off)
		c.AccessFlags, _ = bytecursor.U32(f.data, off+4)
		c.SuperclassIdx, _ = bytecursor.U32(f.data, off+8)
		c.InterfacesOff, _ = bytecursor.U32(f.data, off+12)
		c.SourceFileIdx, _ = bytecursor.U32(f.data, off+16)
		c.AnnotationsOff, _ = bytecursor.U32(f.data, off+20)
		c.ClassDataOff, _ = bytecursor.U32(f.data, off+24)
		c.StaticValuesOff, _ = bytecursor.U32(f.data, off+28)
	}
	return nil
}

// TypeName resolves a type-pool index to its descriptor.
func (f *File) TypeName(idx uint32) string {
	if int(idx) < len(f.Types) {
		return f.Types[idx]
	}
	return ""
}

// StringAt resolves a string-pool index.
func (f *File) StringAt(idx uint32) string {
	if int(idx) < len(f.Strings) {
		return f.Strings[idx]
	}
	return ""
}

// ProtoString renders a proto-pool entry as "(P1P2...)R".
func (f *File) ProtoString(idx uint32) string {
	if int(idx) >= len(f.Protos) {
		return "()V"
	}
	p := f.Protos[idx]
	var sb strings.Builder
	sb.WriteByte('(')
	for _, t := range p.ParamTypeIdxs {
		sb.WriteString(f.TypeName(uint32(t)))
	}
	sb.WriteByte(')')
	sb.WriteString(f.TypeName(p.ReturnTypeIdx))
	return sb.String()
}

// MethodSignature renders method i as "Lclass;->name(P...)R".
func (f *File) MethodSignature(i uint32) string {
	if int(i) >= len(f.Methods) {
		return ""
	}
	m := f.Methods[i]
	return f.TypeName(uint32(m.ClassIdx)) + "->" + f.StringAt(m.NameIdx) + f.ProtoString(uint32(m.ProtoIdx))
}

// FieldSignature renders field i as "Lclass;->name:type".
func (f *File) FieldSignature(i uint32) string {
	if int(i) >= len(f.Fields) {
		return ""
	}
	fd := f.Fields[i]
	return f.TypeName(uint32(fd.ClassIdx)) + "->" + f.StringAt(fd.NameIdx) + ":" + f.TypeName(uint32(fd.TypeIdx))
}

// MethodSignatures renders the whole method pool in index order, for
// injection into the disassembler and assembler.
func (f *File) MethodSignatures() []string {
	sigs := make([]string, len(f.Methods))
	for i := range sigs {
		sigs[i] = f.MethodSignature(uint32(i))
	}
	return sigs
}

// FieldSignatures renders the whole field pool in index order.
func (f *File) FieldSignatures() []string {
	sigs := make([]string, len(f.Fields))
	for i := range sigs {
		sigs[i] = f.FieldSignature(uint32(i))
	}
	return sigs
}

// ClassData decodes the class_data_item of cd. The field and method
// indices are differential ULEB128: each record stores the delta from the
// previous one.
func (f *File) ClassData(cd ClassDef) (*ClassData, error) {
	if cd.ClassDataOff == 0 {
		return &ClassData{}, nil
	}
	pos := int(cd.ClassDataOff)
	read := func() (uint32, error) { return bytecursor.Uleb128(f.data, &pos) }

	nStatic, err := read()
	if err != nil {
		return nil, fmt.Errorf("dex: class data: %w", err)
	}
	nInstance, err := read()
	if err != nil {
		return nil, fmt.Errorf("dex: class data: %w", err)
	}
	nDirect, err := read()
	if err != nil {
		return nil, fmt.Errorf("dex: class data: %w", err)
	}
	nVirtual, err := read()
	if err != nil {
		return nil, fmt.Errorf("dex: class data: %w", err)
	}

	out := &ClassData{}
	readFields := func(n uint32) ([]EncodedField, error) {
		var fields []EncodedField
		var idx uint32
		for i := uint32(0); i < n; i++ {
			diff, err := read()
			if err != nil {
				return nil, err
			}
			flags, err := read()
			if err != nil {
				return nil, err
			}
			if i == 0 {
				idx = diff
			} else {
				idx += diff
			}
			fields = append(fields, EncodedField{FieldIdx: idx, AccessFlags: flags})
		}
		return fields, nil
	}
	readMethods := func(n uint32) ([]EncodedMethod, error) {
		var methods []EncodedMethod
		var idx uint32
		for i := uint32(0); i < n; i++ {
			diff, err := read()
			if err != nil {
				return nil, err
			}
			flags, err := read()
			if err != nil {
				return nil, err
			}
			codeOff, err := read()
			if err != nil {
				return nil, err
			}
			if i == 0 {
				idx = diff
			} else {
				idx += diff
			}
			methods = append(methods, EncodedMethod{MethodIdx: idx, AccessFlags: flags, CodeOff: codeOff})
		}
		return methods, nil
	}

	if out.StaticFields, err = readFields(nStatic); err != nil {
		return nil, fmt.Errorf("dex: class data: %w", err)
	}
	if out.InstanceFields, err = readFields(nInstance); err != nil {
		return nil, fmt.Errorf("dex: class data: %w", err)
	}
	if out.DirectMethods, err = readMethods(nDirect); err != nil {
		return nil, fmt.Errorf("dex: class data: %w", err)
	}
	if out.VirtualMethods, err = readMethods(nVirtual); err != nil {
		return nil, fmt.Errorf("dex: class data: %w", err)
	}
	return out, nil
}

// Code decodes the code_item at off.
func (f *File) Code(off uint32) (*CodeItem, error) {
	if off == 0 {
		return nil, fmt.Errorf("dex: method has no code")
	}
	pos := int(off)
	if pos+16 > len(f.data) {
		return nil, fmt.Errorf("dex: code item at %#x runs past end of file", off)
	}
	c := &CodeItem{CodeOff: off}
	c.RegistersSize, _ = bytecursor.U16(f.data, pos)
	c.InsSize, _ = bytecursor.U16(f.data, pos+2)
	c.OutsSize, _ = bytecursor.U16(f.data, pos+4)
	c.TriesSize, _ = bytecursor.U16(f.data, pos+6)
	c.DebugInfoOff, _ = bytecursor.U32(f.data, pos+8)
	c.InsnsSize, _ = bytecursor.U32(f.data, pos+12)
	end := pos + 16 + int(c.InsnsSize)*2
	if end > len(f.data) {
		return nil, fmt.Errorf("dex: instructions at %#x run past end of file", off)
	}
	c.Insns = f.data[pos+16 : end]
	return c, nil
}

// MethodCode finds the code item for className's method named methodName.
func (f *File) MethodCode(className, methodName string) (*CodeItem, error) {
	for _, cd := range f.Classes {
		if f.TypeName(cd.ClassIdx) != className {
			continue
		}
		data, err := f.ClassData(cd)
		if err != nil {
			return nil, err
		}
		for _, m := range append(data.DirectMethods, data.VirtualMethods...) {
			if int(m.MethodIdx) >= len(f.Methods) {
				continue
			}
			if f.StringAt(f.Methods[m.MethodIdx].NameIdx) != methodName {
				continue
			}
			return f.Code(m.CodeOff)
		}
	}
	return nil, fmt.Errorf("dex: method %s in %s not found", methodName, className)
}

// AllMethodCode walks every class-data chunk once and returns all code
// items keyed by "Lclass;|name". Cross-class operations use this to avoid
// re-walking per method.
func (f *File) AllMethodCode() map[string]*CodeItem {
	out := make(map[string]*CodeItem)
	for _, cd := range f.Classes {
		clsName := f.TypeName(cd.ClassIdx)
		if clsName == "" || cd.ClassDataOff == 0 {
			continue
		}
		data, err := f.ClassData(cd)
		if err != nil {
			continue
		}
		for _, m := range append(data.DirectMethods, data.VirtualMethods...) {
			if m.CodeOff == 0 || int(m.MethodIdx) >= len(f.Methods) {
				continue
			}
			code, err := f.Code(m.CodeOff)
			if err != nil {
				continue
			}
			out[clsName+"|"+f.StringAt(f.Methods[m.MethodIdx].NameIdx)] = code
		}
	}
	return out
}

// Info summarizes pool sizes the way `dexdump -f` would.
func (f *File) Info() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DEX version %s\n", strings.TrimRight(string(f.data[4:7]), "\x00"))
	fmt.Fprintf(&sb, "  file size: %d bytes\n", f.Header.FileSize)
	fmt.Fprintf(&sb, "  strings:   %d\n", f.Header.StringIDsSize)
	fmt.Fprintf(&sb, "  types:     %d\n", f.Header.TypeIDsSize)
	fmt.Fprintf(&sb, "  protos:    %d\n", f.Header.ProtoIDsSize)
	fmt.Fprintf(&sb, "  fields:    %d\n", f.Header.FieldIDsSize)
	fmt.Fprintf(&sb, "  methods:   %d\n", f.Header.MethodIDsSize)
	fmt.Fprintf(&sb, "  classes:   %d\n", f.Header.ClassDefsSize)
	return sb.String()
}
