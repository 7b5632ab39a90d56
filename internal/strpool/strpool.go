// Package strpool reads and rebuilds the string-pool chunks shared by the
// AXML and ARSC container formats. Pools come in two encodings, selected by
// a flag bit: UTF-8 with dual length prefixes, or UTF-16LE.
package strpool

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/aetherlink/dexedit/internal/bytecursor"
)

// ChunkType is the resource chunk id of a string pool.
const ChunkType = 0x0001

const (
	flagSorted = 1 << 0
	flagUTF8   = 1 << 8
)

const headerSize = 28

// Pool is a decoded string pool. Strings keep their pool order; Intern only
// ever appends, so indices handed out earlier stay valid.
type Pool struct {
	Strings []string
	UTF8    bool
}

// Parse decodes the string-pool chunk starting at off. It returns the pool
// and the total chunk size. Individual strings that cannot be decoded come
// back empty rather than failing the whole pool: lightly damaged pools are
// common in repackaged APKs.
func Parse(buf []byte, off int) (*Pool, int, error) {
	typ, err := bytecursor.U16(buf, off)
	if err != nil {
		return nil, 0, fmt.Errorf("string pool header: %w", err)
	}
	if typ != ChunkType {
		return nil, 0, fmt.Errorf("string pool: unexpected chunk type 0x%04x", typ)
	}
	chunkSize, err := bytecursor.U32(buf, off+4)
	if err != nil {
		return nil, 0, fmt.Errorf("string pool header: %w", err)
	}
	if int(chunkSize) < headerSize || off+int(chunkSize) > len(buf) {
		return nil, 0, fmt.Errorf("string pool: chunk size %d out of range", chunkSize)
	}

	count, _ := bytecursor.U32(buf, off+8)
	flags, _ := bytecursor.U32(buf, off+16)
	stringsStart, _ := bytecursor.U32(buf, off+20)

	p := &Pool{
		Strings: make([]string, 0, count),
		UTF8:    flags&flagUTF8 != 0,
	}

	offsetsStart := off + headerSize
	for i := 0; i < int(count); i++ {
		strOff, err := bytecursor.U32(buf, offsetsStart+i*4)
		if err != nil {
			p.Strings = append(p.Strings, "")
			continue
		}
		pos := off + int(stringsStart) + int(strOff)
		if pos < 0 || pos >= len(buf) {
			p.Strings = append(p.Strings, "")
			continue
		}
		if p.UTF8 {
			p.Strings = append(p.Strings, decodeUTF8(buf, pos))
		} else {
			p.Strings = append(p.Strings, decodeUTF16(buf, pos))
		}
	}

	return p, int(chunkSize), nil
}

// decodeUTF8 reads a UTF-8 pool entry: a code-point count prefix, a byte
// count prefix (each one or two bytes, high bit extending), then the bytes.
func decodeUTF8(buf []byte, pos int) string {
	// Skip the code-point count; only the byte count locates the data.
	if pos >= len(buf) {
		return ""
	}
	if buf[pos]&0x80 != 0 {
		pos++
	}
	pos++
	if pos >= len(buf) {
		return ""
	}
	byteLen := int(buf[pos])
	pos++
	if byteLen&0x80 != 0 {
		if pos >= len(buf) {
			return ""
		}
		byteLen = (byteLen&0x7F)<<8 | int(buf[pos])
		pos++
	}
	if pos+byteLen > len(buf) {
		return ""
	}
	return string(buf[pos : pos+byteLen])
}

// decodeUTF16 reads a UTF-16LE pool entry: a u16 code-unit count (high bit
// selects a split u32 form), then the units. Surrogate pairs decode to the
// corresponding code points.
func decodeUTF16(buf []byte, pos int) string {
	n, err := bytecursor.U16(buf, pos)
	if err != nil {
		return ""
	}
	pos += 2
	length := int(n)
	if n&0x8000 != 0 {
		low, err := bytecursor.U16(buf, pos)
		if err != nil {
			return ""
		}
		pos += 2
		length = int(n&0x7FFF)<<16 | int(low)
	}
	if pos+length*2 > len(buf) {
		return ""
	}
	units := make([]uint16, length)
	for i := range units {
		units[i], _ = bytecursor.U16(buf, pos+i*2)
	}
	return string(utf16.Decode(units))
}

// Index returns the pool index of s, or -1.
func (p *Pool) Index(s string) int {
	for i, v := range p.Strings {
		if v == s {
			return i
		}
	}
	return -1
}

// Intern returns the index of s, appending it if absent. Existing indices
// never move.
func (p *Pool) Intern(s string) int {
	if i := p.Index(s); i >= 0 {
		return i
	}
	p.Strings = append(p.Strings, s)
	return len(p.Strings) - 1
}

// Get returns the string at idx, or "" when idx is out of range.
func (p *Pool) Get(idx uint32) string {
	if int(idx) < len(p.Strings) {
		return p.Strings[idx]
	}
	return ""
}

// Build serializes the pool back to a complete chunk in its original
// encoding: header, offset table, then the padded string bodies. Styles are
// not carried.
func (p *Pool) Build() []byte {
	var body []byte
	offsets := make([]uint32, len(p.Strings))

	for i, s := range p.Strings {
		offsets[i] = uint32(len(body))
		if p.UTF8 {
			body = appendLen8(body, utf8.RuneCountInString(s))
			body = appendLen8(body, len(s))
			body = append(body, s...)
			body = append(body, 0)
		} else {
			units := utf16.Encode([]rune(s))
			if len(units) < 0x8000 {
				body = appendU16(body, uint16(len(units)))
			} else {
				body = appendU16(body, uint16(len(units)>>16)|0x8000)
				body = appendU16(body, uint16(len(units)))
			}
			for _, u := range units {
				body = appendU16(body, u)
			}
			body = appendU16(body, 0)
		}
	}
	for len(body)%4 != 0 {
		body = append(body, 0)
	}

	stringsStart := headerSize + 4*len(p.Strings)
	chunk := make([]byte, stringsStart+len(body))
	bytecursor.PutU16(chunk, 0, ChunkType)
	bytecursor.PutU16(chunk, 2, headerSize)
	bytecursor.PutU32(chunk, 4, uint32(len(chunk)))
	bytecursor.PutU32(chunk, 8, uint32(len(p.Strings)))
	bytecursor.PutU32(chunk, 12, 0) // style count
	var flags uint32
	if p.UTF8 {
		flags = flagUTF8
	}
	bytecursor.PutU32(chunk, 16, flags)
	bytecursor.PutU32(chunk, 20, uint32(stringsStart))
	bytecursor.PutU32(chunk, 24, 0) // styles start
	for i, o := range offsets {
		bytecursor.PutU32(chunk, headerSize+i*4, o)
	}
	copy(chunk[stringsStart:], body)
	return chunk
}

// appendLen8 appends a one- or two-byte UTF-8 pool length prefix.
func appendLen8(buf []byte, n int) []byte {
	if n < 0x80 {
		return append(buf, byte(n))
	}
	return append(buf, byte(n>>8)|0x80, byte(n))
}

func appendU16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}
