// Package archive reads and writes the ZIP container used by APK files.
// It is deliberately not archive/zip: Android requires 4-byte data
// alignment for stored entries and a per-entry store/deflate policy, both
// of which need hand-written local headers.
package archive

import (
	"bytes"
	"compress/flate"
	"fmt"
	"hash/crc32"
	"io"
	"strings"
	"sync"

	"github.com/aetherlink/dexedit/internal/bytecursor"
)

const (
	localHeaderSig = 0x04034B50
	centralDirSig  = 0x02014B50
	eocdSig        = 0x06054B50

	localHeaderSize = 30
	centralDirSize  = 46
	eocdSize        = 22

	// MethodStore and MethodDeflate are the only compression methods an
	// APK may carry.
	MethodStore   = 0
	MethodDeflate = 8

	zipVersion = 20
)

var (
	crcOnce  sync.Once
	crcTable *crc32.Table
)

func checksum(data []byte) uint32 {
	crcOnce.Do(func() { crcTable = crc32.MakeTable(crc32.IEEE) })
	return crc32.Checksum(data, crcTable)
}

// storeExts are extensions whose content is already compressed; deflating
// them wastes CPU for nothing, so they are stored.
var storeExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".mp3": true, ".ogg": true, ".m4a": true, ".aac": true, ".flac": true,
	".mp4": true, ".webm": true, ".3gp": true,
	".zip": true, ".jar": true, ".apk": true,
	".arsc": true, ".so": true,
}

// shouldStore reports whether name must be written uncompressed.
// resources.arsc is stored unconditionally: Android mmaps it.
func shouldStore(name string) bool {
	if name == "resources.arsc" {
		return true
	}
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return false
	}
	return storeExts[strings.ToLower(name[dot:])]
}

// Entry describes one file in the archive.
type Entry struct {
	Name              string
	Method            uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	LocalHeaderOffset uint32
}

// Reader indexes a ZIP image through its central directory.
type Reader struct {
	data    []byte
	entries []Entry
}

// NewReader parses the central directory of data. The EOCD record is found
// by scanning backwards from the tail.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < eocdSize {
		return nil, fmt.Errorf("archive: %d bytes is too small for a zip", len(data))
	}

	pos := len(data) - eocdSize
	for pos >= 0 {
		if sig, _ := bytecursor.U32(data, pos); sig == eocdSig {
			break
		}
		pos--
	}
	if pos < 0 {
		return nil, fmt.Errorf("archive: end of central directory not found")
	}

	numEntries, _ := bytecursor.U16(data, pos+10)
	cdOffset, _ := bytecursor.U32(data, pos+16)

	r := &Reader{data: data}
	off := int(cdOffset)
	for i := 0; i < int(numEntries); i++ {
		sig, err := bytecursor.U32(data, off)
		if err != nil || sig != centralDirSig {
			break
		}
		var e Entry
		e.Method, _ = bytecursor.U16(data, off+10)
		e.CRC32, _ = bytecursor.U32(data, off+16)
		e.CompressedSize, _ = bytecursor.U32(data, off+20)
		e.UncompressedSize, _ = bytecursor.U32(data, off+24)
		nameLen, _ := bytecursor.U16(data, off+28)
		extraLen, _ := bytecursor.U16(data, off+30)
		commentLen, _ := bytecursor.U16(data, off+32)
		e.LocalHeaderOffset, _ = bytecursor.U32(data, off+42)

		total := centralDirSize + int(nameLen) + int(extraLen) + int(commentLen)
		if off+total > len(data) {
			break
		}
		e.Name = string(data[off+centralDirSize : off+centralDirSize+int(nameLen)])
		r.entries = append(r.entries, e)
		off += total
	}
	return r, nil
}

// Entries returns the central-directory entries in archive order.
func (r *Reader) Entries() []Entry { return r.entries }

// List returns the entry names in archive order.
func (r *Reader) List() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Extract returns the uncompressed content of the named entry.
func (r *Reader) Extract(name string) ([]byte, error) {
	for _, e := range r.entries {
		if e.Name == name {
			return r.extract(e)
		}
	}
	return nil, fmt.Errorf("archive: entry %q not found", name)
}

func (r *Reader) extract(e Entry) ([]byte, error) {
	off := int(e.LocalHeaderOffset)
	sig, err := bytecursor.U32(r.data, off)
	if err != nil || sig != localHeaderSig {
		return nil, fmt.Errorf("archive: bad local header for %q", e.Name)
	}
	nameLen, _ := bytecursor.U16(r.data, off+26)
	extraLen, _ := bytecursor.U16(r.data, off+28)

	dataOff := off + localHeaderSize + int(nameLen) + int(extraLen)
	if dataOff+int(e.CompressedSize) > len(r.data) {
		return nil, fmt.Errorf("archive: data for %q runs past end of archive", e.Name)
	}
	raw := r.data[dataOff : dataOff+int(e.CompressedSize)]

	switch e.Method {
	case MethodStore:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case MethodDeflate:
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		out := make([]byte, 0, e.UncompressedSize)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, fr); err != nil {
			return nil, fmt.Errorf("archive: inflate %q: %w", e.Name, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("archive: entry %q uses unsupported method %d", e.Name, e.Method)
	}
}

// writerEntry carries the already-encoded payload for one output entry.
type writerEntry struct {
	name             string
	payload          []byte
	uncompressedSize uint32
	crc              uint32
	method           uint16
}

// Writer assembles a new archive. Entries are written in insertion order.
type Writer struct {
	entries []writerEntry
}

// Add appends a file, choosing store or deflate per the APK policy:
// resources.arsc and already-compressed extensions are stored, everything
// else is deflated at maximum level and kept only if strictly smaller.
func (w *Writer) Add(name string, data []byte) error {
	if shouldStore(name) {
		w.addStored(name, data)
		return nil
	}
	if len(data) > 0 {
		compressed, err := deflate(data)
		if err != nil {
			return fmt.Errorf("archive: deflate %q: %w", name, err)
		}
		if len(compressed) < len(data) {
			w.entries = append(w.entries, writerEntry{
				name:             name,
				payload:          compressed,
				uncompressedSize: uint32(len(data)),
				crc:              checksum(data),
				method:           MethodDeflate,
			})
			return nil
		}
	}
	w.addStored(name, data)
	return nil
}

func (w *Writer) addStored(name string, data []byte) {
	w.entries = append(w.entries, writerEntry{
		name:             name,
		payload:          data,
		uncompressedSize: uint32(len(data)),
		crc:              checksum(data),
		method:           MethodStore,
	})
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Finalize writes the local headers, central directory and EOCD and
// returns the complete archive. Stored entries get a zero-filled extra
// field sized so their file data starts on a 4-byte boundary.
func (w *Writer) Finalize() []byte {
	var out []byte
	offsets := make([]uint32, len(w.entries))
	extras := make([]uint16, len(w.entries))

	for i, e := range w.entries {
		offset := uint32(len(out))
		offsets[i] = offset

		var extraLen uint16
		if e.method == MethodStore {
			dataStart := offset + localHeaderSize + uint32(len(e.name))
			extraLen = uint16((4 - dataStart%4) % 4)
		}
		extras[i] = extraLen

		header := make([]byte, localHeaderSize+len(e.name)+int(extraLen))
		bytecursor.PutU32(header, 0, localHeaderSig)
		bytecursor.PutU16(header, 4, zipVersion)
		bytecursor.PutU16(header, 6, 0) // flags
		bytecursor.PutU16(header, 8, e.method)
		bytecursor.PutU16(header, 10, 0) // mod time
		bytecursor.PutU16(header, 12, 0) // mod date
		bytecursor.PutU32(header, 14, e.crc)
		bytecursor.PutU32(header, 18, uint32(len(e.payload)))
		bytecursor.PutU32(header, 22, e.uncompressedSize)
		bytecursor.PutU16(header, 26, uint16(len(e.name)))
		bytecursor.PutU16(header, 28, extraLen)
		copy(header[localHeaderSize:], e.name)

		out = append(out, header...)
		out = append(out, e.payload...)
	}

	cdOffset := uint32(len(out))
	for i, e := range w.entries {
		rec := make([]byte, centralDirSize+len(e.name))
		bytecursor.PutU32(rec, 0, centralDirSig)
		bytecursor.PutU16(rec, 4, zipVersion) // version made by
		bytecursor.PutU16(rec, 6, zipVersion) // version needed
		bytecursor.PutU16(rec, 8, 0)          // flags
		bytecursor.PutU16(rec, 10, e.method)
		bytecursor.PutU16(rec, 12, 0) // mod time
		bytecursor.PutU16(rec, 14, 0) // mod date
		bytecursor.PutU32(rec, 16, e.crc)
		bytecursor.PutU32(rec, 20, uint32(len(e.payload)))
		bytecursor.PutU32(rec, 24, e.uncompressedSize)
		bytecursor.PutU16(rec, 28, uint16(len(e.name)))
		bytecursor.PutU32(rec, 42, offsets[i])
		copy(rec[centralDirSize:], e.name)
		out = append(out, rec...)
	}

	cdSize := uint32(len(out)) - cdOffset
	eocd := make([]byte, eocdSize)
	bytecursor.PutU32(eocd, 0, eocdSig)
	bytecursor.PutU16(eocd, 8, uint16(len(w.entries)))
	bytecursor.PutU16(eocd, 10, uint16(len(w.entries)))
	bytecursor.PutU32(eocd, 12, cdSize)
	bytecursor.PutU32(eocd, 16, cdOffset)
	return append(out, eocd...)
}
