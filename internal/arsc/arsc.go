// Package arsc parses the compiled Android resource table
// (resources.arsc): the global string pool, per-package type and key
// pools, and type chunks with their entry tables. The table is read-only;
// search runs over the decoded entries.
package arsc

import (
	"fmt"
	"strings"

	"github.com/aetherlink/dexedit/internal/bytecursor"
	"github.com/aetherlink/dexedit/internal/strpool"
)

// Chunk types.
const (
	chunkStringPool = 0x0001
	chunkTable      = 0x0002
	chunkPackage    = 0x0200
	chunkType       = 0x0201
	chunkTypeSpec   = 0x0202
)

// Entry is one decoded resource. ID packs (package<<24 | type<<16 | index).
type Entry struct {
	ID      uint32
	Name    string
	Type    string
	Value   string
	Package string
}

// StringHit is one global-pool search result.
type StringHit struct {
	Index int
	Value string
}

// Table is a parsed resource table.
type Table struct {
	PackageID   uint32
	PackageName string

	strings   *strpool.Pool
	entries   []Entry
	idToIndex map[uint32]int
}

// Parse decodes an ARSC buffer. Sub-chunks that fail to decode are
// skipped; only an unusable table header fails the parse.
func Parse(data []byte) (*Table, error) {
	typ, err := bytecursor.U16(data, 0)
	if err != nil {
		return nil, fmt.Errorf("arsc: %w", err)
	}
	if typ != chunkTable {
		return nil, fmt.Errorf("arsc: root chunk type 0x%04x, want 0x0002", typ)
	}
	headerSize, _ := bytecursor.U16(data, 2)
	size, _ := bytecursor.U32(data, 4)
	if int(size) > len(data) {
		return nil, fmt.Errorf("arsc: header claims %d bytes, buffer has %d", size, len(data))
	}

	t := &Table{idToIndex: make(map[uint32]int)}

	offset := int(headerSize)
	for offset+8 <= len(data) {
		chunkType, _ := bytecursor.U16(data, offset)
		chunkSize, _ := bytecursor.U32(data, offset+4)
		if chunkSize < 8 || offset+int(chunkSize) > len(data) {
			break
		}
		switch chunkType {
		case chunkStringPool:
			if t.strings == nil {
				pool, _, err := strpool.Parse(data, offset)
				if err == nil {
					t.strings = pool
				}
			}
		case chunkPackage:
			t.parsePackage(data, offset, int(chunkSize))
		}
		offset += int(chunkSize)
	}

	if t.strings == nil {
		t.strings = &strpool.Pool{}
	}
	return t, nil
}

func (t *Table) parsePackage(data []byte, offset, size int) {
	if offset+288 > len(data) {
		return
	}
	headerSize, _ := bytecursor.U16(data, offset+2)
	id, _ := bytecursor.U32(data, offset+8)
	t.PackageID = id

	// Package name: UTF-16, up to 128 code units.
	var name []rune
	for i := 0; i < 128; i++ {
		ch, err := bytecursor.U16(data, offset+12+i*2)
		if err != nil || ch == 0 {
			break
		}
		name = append(name, rune(ch))
	}
	t.PackageName = string(name)

	typeStringsOff, _ := bytecursor.U32(data, offset+268)
	keyStringsOff, _ := bytecursor.U32(data, offset+276)

	var typeStrings, keyStrings *strpool.Pool

	chunkOffset := offset + int(headerSize)
	end := offset + size
	for chunkOffset+8 <= end {
		ct, _ := bytecursor.U16(data, chunkOffset)
		chunkSize, _ := bytecursor.U32(data, chunkOffset+4)
		if chunkSize < 8 || chunkOffset+int(chunkSize) > end {
			break
		}
		switch ct {
		case chunkStringPool:
			pool, _, err := strpool.Parse(data, chunkOffset)
			if err == nil {
				switch chunkOffset - offset {
				case int(typeStringsOff):
					typeStrings = pool
				case int(keyStringsOff):
					keyStrings = pool
				}
			}
		case chunkType:
			t.parseTypeChunk(data, chunkOffset, typeStrings, keyStrings)
		}
		chunkOffset += int(chunkSize)
	}
}

// parseTypeChunk decodes one 0x0201 type chunk: an entry-offset table
// (0xFFFFFFFF marks an absent entry) followed by entry bodies.
func (t *Table) parseTypeChunk(data []byte, offset int, typeStrings, keyStrings *strpool.Pool) {
	headerSize, _ := bytecursor.U16(data, offset+2)
	typeID, err := bytecursor.U8(data, offset+8)
	if err != nil || typeID == 0 {
		return
	}
	entryCount, _ := bytecursor.U32(data, offset+12)
	entriesStart, _ := bytecursor.U32(data, offset+16)

	typeName := ""
	if typeStrings != nil && int(typeID) <= len(typeStrings.Strings) {
		typeName = typeStrings.Strings[typeID-1]
	}

	offsetsStart := offset + int(headerSize)
	entriesData := offset + int(entriesStart)

	for i := 0; i < int(entryCount); i++ {
		entryOff, err := bytecursor.U32(data, offsetsStart+i*4)
		if err != nil || entryOff == 0xFFFFFFFF {
			continue
		}
		pos := entriesData + int(entryOff)
		entrySize, err := bytecursor.U16(data, pos)
		if err != nil {
			continue
		}
		flags, _ := bytecursor.U16(data, pos+2)
		keyIdx, _ := bytecursor.U32(data, pos+4)

		entry := Entry{
			ID:      t.PackageID<<24 | uint32(typeID)<<16 | uint32(i),
			Type:    typeName,
			Package: t.PackageName,
		}
		if keyStrings != nil {
			entry.Name = keyStrings.Get(keyIdx)
		}

		// Simple entries carry a Res_value right after the entry header;
		// complex entries (bit 0 of flags) are maps and stay valueless.
		if flags&0x0001 == 0 && pos+int(entrySize)+8 <= len(data) {
			valuePos := pos + 8
			valueType, _ := bytecursor.U8(data, valuePos+3)
			valueData, _ := bytecursor.U32(data, valuePos+4)
			entry.Value = t.renderValue(valueType, valueData)
		}

		t.idToIndex[entry.ID] = len(t.entries)
		t.entries = append(t.entries, entry)
	}
}

func (t *Table) renderValue(typ uint8, data uint32) string {
	switch typ {
	case 0x03: // string
		return t.strings.Get(data)
	case 0x10: // int dec
		return fmt.Sprintf("%d", int32(data))
	case 0x11: // int hex
		return fmt.Sprintf("0x%08X", data)
	case 0x12: // boolean
		if data != 0 {
			return "true"
		}
		return "false"
	case 0x1C, 0x1D, 0x1E, 0x1F: // colors
		return fmt.Sprintf("#%08X", data)
	default:
		return ""
	}
}

// Strings returns the global string pool contents.
func (t *Table) Strings() []string { return t.strings.Strings }

// Entries returns the decoded resources in table order.
func (t *Table) Entries() []Entry { return t.entries }

// SearchStrings finds global-pool strings containing pattern,
// ASCII-case-insensitively. limit <= 0 means unbounded.
func (t *Table) SearchStrings(pattern string, limit int) []StringHit {
	lower := strings.ToLower(pattern)
	var hits []StringHit
	for i, s := range t.strings.Strings {
		if strings.Contains(strings.ToLower(s), lower) {
			hits = append(hits, StringHit{Index: i, Value: s})
			if limit > 0 && len(hits) >= limit {
				break
			}
		}
	}
	return hits
}

// SearchResources finds entries whose name or rendered value contains
// pattern, optionally restricted to one resource type.
func (t *Table) SearchResources(pattern, typ string, limit int) []Entry {
	lower := strings.ToLower(pattern)
	var hits []Entry
	for _, e := range t.entries {
		if typ != "" && e.Type != typ {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name), lower) ||
			strings.Contains(strings.ToLower(e.Value), lower) {
			hits = append(hits, e)
			if limit > 0 && len(hits) >= limit {
				break
			}
		}
	}
	return hits
}

// Resource looks an entry up by its packed id in O(1).
func (t *Table) Resource(id uint32) (Entry, bool) {
	if i, ok := t.idToIndex[id]; ok {
		return t.entries[i], true
	}
	return Entry{}, false
}

// Info summarizes the table.
func (t *Table) Info() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Package: %s\n", t.PackageName)
	fmt.Fprintf(&sb, "Package ID: 0x%02x\n", t.PackageID)
	fmt.Fprintf(&sb, "Strings: %d\n", len(t.strings.Strings))
	fmt.Fprintf(&sb, "Resources: %d\n", len(t.entries))
	counts := make(map[string]int)
	for _, e := range t.entries {
		counts[e.Type]++
	}
	for typ, n := range counts {
		fmt.Fprintf(&sb, "  %s: %d\n", typ, n)
	}
	return sb.String()
}
