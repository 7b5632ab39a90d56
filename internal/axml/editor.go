package axml

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aetherlink/dexedit/internal/bytecursor"
	"github.com/aetherlink/dexedit/internal/strpool"
)

// chunkInfo records where the movable chunks of the file sit. A string
// pool rebuild shifts everything behind it, so these are re-derived or
// adjusted after every structural mutation.
type chunkInfo struct {
	stringPoolOff  int
	stringPoolSize int
	resourceMapOff int
	xmlContentOff  int
}

// SearchResult is one attribute hit from the search operations.
type SearchResult struct {
	ElementPath  string
	ElementName  string
	Attribute    string
	Value        string
	ElementIndex int
}

// Editor mutates an AXML file. Size-preserving edits are written directly
// into the byte image; string interning and element add/remove splice the
// buffer and patch the file-size header. Failed edits leave the bytes
// untouched.
type Editor struct {
	data   []byte
	pool   *strpool.Pool
	resIDs []uint32
	chunks chunkInfo
	doc    *Document
}

// NewEditor parses data into an editor. The buffer is copied; the caller's
// slice is never written to.
func NewEditor(data []byte) (*Editor, error) {
	e := &Editor{data: append([]byte(nil), data...)}
	if err := e.parseInternal(); err != nil {
		return nil, err
	}
	return e, nil
}

// Bytes returns the current byte image.
func (e *Editor) Bytes() []byte { return e.data }

// Document returns the tree parsed from the current bytes.
func (e *Editor) Document() *Document { return e.doc }

func (e *Editor) parseInternal() error {
	typ, err := bytecursor.U16(e.data, 0)
	if err != nil {
		return fmt.Errorf("axml: %w", err)
	}
	if typ != chunkXML {
		return fmt.Errorf("axml: root chunk type 0x%04x, want 0x0003", typ)
	}

	e.chunks = chunkInfo{resourceMapOff: -1, xmlContentOff: -1}
	e.resIDs = nil

	offset := 8
	for offset+8 <= len(e.data) {
		chunkType, _ := bytecursor.U16(e.data, offset)
		chunkSize, _ := bytecursor.U32(e.data, offset+4)
		if chunkSize == 0 || offset+int(chunkSize) > len(e.data) {
			break
		}

		switch chunkType {
		case chunkStringPool:
			pool, size, err := strpool.Parse(e.data, offset)
			if err != nil {
				return fmt.Errorf("axml: %w", err)
			}
			e.pool = pool
			e.chunks.stringPoolOff = offset
			e.chunks.stringPoolSize = size
		case chunkResourceMap:
			e.chunks.resourceMapOff = offset
			count := (int(chunkSize) - 8) / 4
			for i := 0; i < count; i++ {
				id, err := bytecursor.U32(e.data, offset+8+i*4)
				if err != nil {
					break
				}
				e.resIDs = append(e.resIDs, id)
			}
		}
		if chunkType == chunkStartElement {
			e.chunks.xmlContentOff = offset
			break
		}
		offset += int(chunkSize)
	}

	if e.pool == nil {
		return fmt.Errorf("axml: no string pool chunk")
	}
	if e.chunks.xmlContentOff < 0 {
		return fmt.Errorf("axml: no element content")
	}

	doc, err := Parse(e.data)
	if err != nil {
		return err
	}
	e.doc = doc
	return nil
}

// attrName resolves an attribute's display name: the string pool entry
// when present, otherwise the android attribute table via the resource-id
// map. This is what lets android:name match even when "name" never made
// it into the pool.
func (e *Editor) attrName(nameIdx uint32) string {
	if s := e.pool.Get(nameIdx); s != "" {
		return s
	}
	if int(nameIdx) < len(e.resIDs) {
		return attrNameForID(e.resIDs[nameIdx])
	}
	return ""
}

// walkChunks calls fn for every chunk from the start of element content.
// fn returns false to stop.
func (e *Editor) walkChunks(fn func(offset int, chunkType uint16, chunkSize int) bool) {
	offset := e.chunks.xmlContentOff
	for offset+8 <= len(e.data) {
		chunkType, _ := bytecursor.U16(e.data, offset)
		chunkSize, _ := bytecursor.U32(e.data, offset+4)
		if chunkSize == 0 || offset+int(chunkSize) > len(e.data) {
			return
		}
		if !fn(offset, chunkType, int(chunkSize)) {
			return
		}
		offset += int(chunkSize)
	}
}

// SetAttribute finds the first element whose name matches elementPath
// (exact, or contained in the path) carrying attrName, and rewrites the
// attribute's typed value in place, interpreting newValue against the
// attribute's existing type.
func (e *Editor) SetAttribute(elementPath, attrName, newValue string) error {
	return e.setAttribute(func(name string, _ int) bool {
		if elementPath == "" || name == elementPath {
			return true
		}
		return name != "" && strings.Contains(elementPath, name)
	}, attrName, newValue)
}

// SetAttributeByIndex addresses the target element by its pre-order
// start-element index instead of its name.
func (e *Editor) SetAttributeByIndex(index int, attrName, newValue string) error {
	return e.setAttribute(func(_ string, i int) bool { return i == index }, attrName, newValue)
}

func (e *Editor) setAttribute(matchElem func(name string, index int) bool, attrName, newValue string) error {
	var found bool
	var retErr error
	index := 0

	e.walkChunks(func(offset int, chunkType uint16, chunkSize int) bool {
		if chunkType != chunkStartElement {
			return true
		}
		elemIndex := index
		index++

		nameIdx, _ := bytecursor.U32(e.data, offset+20)
		if !matchElem(e.pool.Get(nameIdx), elemIndex) {
			return true
		}

		attrStart, _ := bytecursor.U16(e.data, offset+24)
		attrCount, _ := bytecursor.U16(e.data, offset+28)
		attrPos := offset + 16 + int(attrStart)
		for i := 0; i < int(attrCount) && attrPos+20 <= len(e.data); i, attrPos = i+1, attrPos+20 {
			attrNameIdx, _ := bytecursor.U32(e.data, attrPos+4)
			if e.attrName(attrNameIdx) != attrName {
				continue
			}
			typeField, _ := bytecursor.U16(e.data, attrPos+14)
			found = true
			retErr = e.writeTypedValue(attrPos, uint8(typeField>>8), newValue)
			return false
		}
		return true
	})

	if !found {
		return fmt.Errorf("axml: attribute %q not found", attrName)
	}
	if retErr != nil {
		return retErr
	}
	return e.parseInternal()
}

// writeTypedValue rewrites the 20-byte attribute record at attrPos,
// interpreting value against the attribute's current data type. String
// edits intern the value first, which may rebuild the pool and shift
// attrPos; internString returns the shifted position, which is where the
// record is then written.
func (e *Editor) writeTypedValue(attrPos int, typ uint8, value string) error {
	putRaw := func(raw, data uint32) {
		bytecursor.PutU32(e.data, attrPos+8, raw)
		bytecursor.PutU32(e.data, attrPos+16, data)
	}
	intVal, intErr := strconv.ParseInt(value, 10, 64)

	switch typ {
	case TypeString:
		idx, shifted, err := e.internString(value, attrPos)
		if err != nil {
			return err
		}
		bytecursor.PutU32(e.data, shifted+8, uint32(idx))
		bytecursor.PutU32(e.data, shifted+16, uint32(idx))

	case TypeIntDec, TypeIntHex:
		if intErr == nil {
			putRaw(0xFFFFFFFF, uint32(int32(intVal)))
		} else if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
			v, err := strconv.ParseUint(value[2:], 16, 32)
			if err != nil {
				return fmt.Errorf("axml: %q is not an integer", value)
			}
			putRaw(0xFFFFFFFF, uint32(v))
		} else {
			return fmt.Errorf("axml: %q is not an integer", value)
		}

	case TypeIntBool:
		truthy := value == "true" || value == "1" || (intErr == nil && intVal != 0)
		falsy := value == "false" || value == "0"
		if !truthy && !falsy {
			return fmt.Errorf("axml: %q is not a boolean", value)
		}
		if truthy {
			putRaw(0xFFFFFFFF, 0xFFFFFFFF)
		} else {
			putRaw(0xFFFFFFFF, 0)
		}

	case TypeReference, TypeAttribute:
		switch {
		case intErr == nil:
			putRaw(0xFFFFFFFF, uint32(int32(intVal)))
		case strings.HasPrefix(value, "@") || strings.HasPrefix(value, "?"):
			body := strings.TrimPrefix(strings.TrimPrefix(value[1:], "0x"), "0X")
			base := 10
			if len(body) != len(value)-1 {
				base = 16
			}
			v, err := strconv.ParseUint(body, base, 32)
			if err != nil {
				return fmt.Errorf("axml: %q is not a resource reference", value)
			}
			putRaw(0xFFFFFFFF, uint32(v))
		default:
			return fmt.Errorf("axml: %q is not a resource reference", value)
		}

	case TypeDimension:
		if data, _, err := encodeComplex(value); err == nil {
			putRaw(0xFFFFFFFF, data)
		} else if intErr == nil {
			putRaw(0xFFFFFFFF, uint32(int32(intVal))<<8)
		} else {
			return fmt.Errorf("axml: %q is not a dimension", value)
		}

	case TypeFraction:
		data, _, err := encodeComplex(value)
		if err != nil {
			return fmt.Errorf("axml: %q is not a fraction", value)
		}
		putRaw(0xFFFFFFFF, data)

	case TypeColorARGB8, TypeColorRGB8, TypeColorARGB4, TypeColorRGB4:
		if data, _, err := parseColor(value); err == nil {
			putRaw(0xFFFFFFFF, data)
		} else if intErr == nil {
			putRaw(0xFFFFFFFF, uint32(int32(intVal)))
		} else {
			return fmt.Errorf("axml: %q is not a color", value)
		}

	case TypeFloat:
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("axml: %q is not a float", value)
		}
		putRaw(0xFFFFFFFF, math.Float32bits(float32(f)))

	default:
		if intErr == nil {
			putRaw(0xFFFFFFFF, uint32(int32(intVal)))
		} else {
			idx, shifted, err := e.internString(value, attrPos)
			if err != nil {
				return err
			}
			bytecursor.PutU32(e.data, shifted+8, uint32(idx))
			bytecursor.PutU32(e.data, shifted+16, uint32(idx))
		}
	}
	return nil
}

// internString returns the pool index for s, rebuilding the pool when s is
// new. Because a rebuild shifts every chunk behind the pool, it also
// returns the adjusted position of the offset that was passed in.
func (e *Editor) internString(s string, pos int) (idx int, adjustedPos int, err error) {
	if existing := e.pool.Index(s); existing >= 0 {
		return existing, pos, nil
	}
	idx = e.pool.Intern(s)
	delta, err := e.rebuildPool()
	if err != nil {
		return 0, 0, err
	}
	return idx, pos + delta, nil
}

// rebuildPool re-serializes the string pool chunk in its original
// encoding, splices it over the old one, patches the file-size header and
// shifts the recorded chunk offsets. Existing pool indices are stable, so
// no element chunk needs editing. Returns the size delta.
func (e *Editor) rebuildPool() (int, error) {
	chunk := e.pool.Build()
	delta := len(chunk) - e.chunks.stringPoolSize

	newData := make([]byte, 0, len(e.data)+delta)
	newData = append(newData, e.data[:e.chunks.stringPoolOff]...)
	newData = append(newData, chunk...)
	newData = append(newData, e.data[e.chunks.stringPoolOff+e.chunks.stringPoolSize:]...)
	e.data = newData

	if err := bytecursor.PutU32(e.data, 4, uint32(len(e.data))); err != nil {
		return 0, err
	}
	e.chunks.stringPoolSize = len(chunk)
	if e.chunks.resourceMapOff > e.chunks.stringPoolOff {
		e.chunks.resourceMapOff += delta
	}
	if e.chunks.xmlContentOff > e.chunks.stringPoolOff {
		e.chunks.xmlContentOff += delta
	}
	return delta, nil
}

// SetPackage rewrites the manifest package attribute.
func (e *Editor) SetPackage(name string) error {
	return e.SetAttribute("manifest", "package", name)
}

// SetVersionName rewrites android:versionName.
func (e *Editor) SetVersionName(name string) error {
	return e.SetAttribute("manifest", "versionName", name)
}

// SetVersionCode rewrites android:versionCode.
func (e *Editor) SetVersionCode(code int) error {
	return e.SetAttribute("manifest", "versionCode", strconv.Itoa(code))
}

// SetMinSDK rewrites uses-sdk android:minSdkVersion.
func (e *Editor) SetMinSDK(sdk int) error {
	return e.SetAttribute("uses-sdk", "minSdkVersion", strconv.Itoa(sdk))
}

// SetTargetSDK rewrites uses-sdk android:targetSdkVersion.
func (e *Editor) SetTargetSDK(sdk int) error {
	return e.SetAttribute("uses-sdk", "targetSdkVersion", strconv.Itoa(sdk))
}

// synthAttr is one attribute of a start-element chunk synthesized by
// buildStartElement: (nameIdx, rawIdx, dataType, data).
type synthAttr struct {
	nameIdx  int
	rawIdx   uint32 // 0xFFFFFFFF when not string-backed
	dataType uint8
	data     uint32
}

func buildStartElement(nameIdx, nsIdx int, attrs []synthAttr) []byte {
	size := 16 + 20 + 20*len(attrs)
	chunk := make([]byte, size)
	bytecursor.PutU16(chunk, 0, chunkStartElement)
	bytecursor.PutU16(chunk, 2, 16)
	bytecursor.PutU32(chunk, 4, uint32(size))
	bytecursor.PutU32(chunk, 8, 1)           // line number
	bytecursor.PutU32(chunk, 12, 0xFFFFFFFF) // comment
	bytecursor.PutU32(chunk, 16, 0xFFFFFFFF) // element namespace
	bytecursor.PutU32(chunk, 20, uint32(nameIdx))
	bytecursor.PutU16(chunk, 24, 0x14) // attribute start
	bytecursor.PutU16(chunk, 26, 0x14) // attribute size
	bytecursor.PutU16(chunk, 28, uint16(len(attrs)))
	for i, a := range attrs {
		off := 36 + i*20
		bytecursor.PutU32(chunk, off, uint32(nsIdx))
		bytecursor.PutU32(chunk, off+4, uint32(a.nameIdx))
		bytecursor.PutU32(chunk, off+8, a.rawIdx)
		bytecursor.PutU16(chunk, off+12, 8) // value size
		chunk[off+15] = a.dataType
		bytecursor.PutU32(chunk, off+16, a.data)
	}
	return chunk
}

func buildEndElement(nameIdx int) []byte {
	chunk := make([]byte, 24)
	bytecursor.PutU16(chunk, 0, chunkEndElement)
	bytecursor.PutU16(chunk, 2, 16)
	bytecursor.PutU32(chunk, 4, 24)
	bytecursor.PutU32(chunk, 8, 1)
	bytecursor.PutU32(chunk, 12, 0xFFFFFFFF)
	bytecursor.PutU32(chunk, 16, 0xFFFFFFFF)
	bytecursor.PutU32(chunk, 20, uint32(nameIdx))
	return chunk
}

// splice inserts insert at offset and patches the file-size header.
func (e *Editor) splice(offset int, insert []byte) error {
	newData := make([]byte, 0, len(e.data)+len(insert))
	newData = append(newData, e.data[:offset]...)
	newData = append(newData, insert...)
	newData = append(newData, e.data[offset:]...)
	e.data = newData
	if err := bytecursor.PutU32(e.data, 4, uint32(len(e.data))); err != nil {
		return err
	}
	return e.parseInternal()
}

// cut removes [start,end) and patches the file-size header.
func (e *Editor) cut(start, end int) error {
	newData := make([]byte, 0, len(e.data)-(end-start))
	newData = append(newData, e.data[:start]...)
	newData = append(newData, e.data[end:]...)
	e.data = newData
	if err := bytecursor.PutU32(e.data, 4, uint32(len(e.data))); err != nil {
		return err
	}
	return e.parseInternal()
}

// AddPermission splices a <uses-permission android:name="..."/> pair
// immediately after the <manifest> start element. Adding a permission the
// manifest already declares is an error.
func (e *Editor) AddPermission(permission string) error {
	for _, p := range e.doc.Permissions() {
		if p == permission {
			return fmt.Errorf("axml: permission %s already declared", permission)
		}
	}

	insertAt := -1
	e.walkChunks(func(offset int, chunkType uint16, chunkSize int) bool {
		if chunkType == chunkStartElement {
			idx, _ := bytecursor.U32(e.data, offset+20)
			if e.pool.Get(idx) == "manifest" {
				insertAt = offset + chunkSize
				return false
			}
		}
		return true
	})
	if insertAt < 0 {
		return fmt.Errorf("axml: no manifest element")
	}

	nameIdx := e.pool.Intern("name")
	permIdx := e.pool.Intern(permission)
	tagIdx := e.pool.Intern("uses-permission")
	nsIdx := e.pool.Intern(androidNS)
	delta, err := e.rebuildPool()
	if err != nil {
		return err
	}
	insertAt += delta

	start := buildStartElement(tagIdx, nsIdx, []synthAttr{{
		nameIdx:  nameIdx,
		rawIdx:   uint32(permIdx),
		dataType: TypeString,
		data:     uint32(permIdx),
	}})
	return e.splice(insertAt, append(start, buildEndElement(tagIdx)...))
}

// RemovePermission splices out the matching uses-permission element pair.
func (e *Editor) RemovePermission(permission string) error {
	start, end := e.findElementRange("uses-permission", "name", permission)
	if start < 0 {
		return fmt.Errorf("axml: permission %s not found", permission)
	}
	return e.cut(start, end)
}

// AddActivity splices an <activity android:name="..." android:exported/>
// pair just before the </application> end element.
func (e *Editor) AddActivity(activityName string, exported bool) error {
	insertAt := -1
	depth := 0
	inApplication := false
	e.walkChunks(func(offset int, chunkType uint16, chunkSize int) bool {
		switch chunkType {
		case chunkStartElement:
			idx, _ := bytecursor.U32(e.data, offset+20)
			if e.pool.Get(idx) == "application" && !inApplication {
				inApplication = true
				depth = 1
			} else if inApplication {
				depth++
			}
		case chunkEndElement:
			if inApplication {
				depth--
				if depth == 0 {
					insertAt = offset
					return false
				}
			}
		}
		return true
	})
	if insertAt < 0 {
		return fmt.Errorf("axml: no application element")
	}

	nameIdx := e.pool.Intern("name")
	exportedIdx := e.pool.Intern("exported")
	valueIdx := e.pool.Intern(activityName)
	tagIdx := e.pool.Intern("activity")
	nsIdx := e.pool.Intern(androidNS)
	delta, err := e.rebuildPool()
	if err != nil {
		return err
	}
	insertAt += delta

	var exportedData uint32
	if exported {
		exportedData = 0xFFFFFFFF
	}
	start := buildStartElement(tagIdx, nsIdx, []synthAttr{
		{nameIdx: nameIdx, rawIdx: uint32(valueIdx), dataType: TypeString, data: uint32(valueIdx)},
		{nameIdx: exportedIdx, rawIdx: 0xFFFFFFFF, dataType: TypeIntBool, data: exportedData},
	})
	return e.splice(insertAt, append(start, buildEndElement(tagIdx)...))
}

// RemoveActivity splices out the activity element with the given
// android:name, including any nested children.
func (e *Editor) RemoveActivity(activityName string) error {
	start, end := e.findElementRange("activity", "name", activityName)
	if start < 0 {
		return fmt.Errorf("axml: activity %s not found", activityName)
	}
	return e.cut(start, end)
}

// findElementRange locates the byte range [start,end) of the element with
// the given tag whose distinguishing attribute matches value, tracking
// start/end depth so nested children are included.
func (e *Editor) findElementRange(tag, attr, value string) (int, int) {
	start, end := -1, -1
	depth := 0
	e.walkChunks(func(offset int, chunkType uint16, chunkSize int) bool {
		switch chunkType {
		case chunkStartElement:
			if start >= 0 {
				depth++
				return true
			}
			nameIdx, _ := bytecursor.U32(e.data, offset+20)
			if e.pool.Get(nameIdx) != tag {
				return true
			}
			attrStart, _ := bytecursor.U16(e.data, offset+24)
			attrCount, _ := bytecursor.U16(e.data, offset+28)
			attrPos := offset + 16 + int(attrStart)
			for i := 0; i < int(attrCount) && attrPos+20 <= len(e.data); i, attrPos = i+1, attrPos+20 {
				attrNameIdx, _ := bytecursor.U32(e.data, attrPos+4)
				rawIdx, _ := bytecursor.U32(e.data, attrPos+8)
				if e.attrName(attrNameIdx) == attr && e.pool.Get(rawIdx) == value {
					start = offset
					depth = 1
					break
				}
			}
		case chunkEndElement:
			if start >= 0 {
				depth--
				if depth == 0 {
					end = offset + chunkSize
					return false
				}
			}
		}
		return true
	})
	if start < 0 || end <= start {
		return -1, -1
	}
	return start, end
}

// SearchByAttribute walks the tree collecting attributes whose name
// contains attrName and value contains valuePattern; empty patterns match
// everything on that axis.
func (e *Editor) SearchByAttribute(attrName, valuePattern string) []SearchResult {
	var results []SearchResult
	index := 0
	var walk func(elem *Element, path string)
	walk = func(elem *Element, path string) {
		current := elem.Name
		if path != "" {
			current = path + "/" + elem.Name
		}
		for _, a := range elem.Attributes {
			nameHit := attrName == "" || strings.Contains(a.Name, attrName)
			valueHit := valuePattern == "" || strings.Contains(a.Value, valuePattern)
			if (attrName != "" || valuePattern != "") && nameHit && valueHit {
				results = append(results, SearchResult{
					ElementPath:  current,
					ElementName:  elem.Name,
					Attribute:    a.Name,
					Value:        a.Value,
					ElementIndex: index,
				})
			}
		}
		index++
		for i := range elem.Children {
			walk(&elem.Children[i], current)
		}
	}
	walk(&e.doc.Root, "")
	return results
}
