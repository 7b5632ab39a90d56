package archive

import (
	"bytes"
	"hash/crc32"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	pngData := bytes.Repeat([]byte{0x89, 0x50, 0x4E, 0x47}, 25) // 100 bytes
	txtData := bytes.Repeat([]byte{'a'}, 1000)

	var w Writer
	if err := w.Add("a.png", pngData); err != nil {
		t.Fatal(err)
	}
	if err := w.Add("b.txt", txtData); err != nil {
		t.Fatal(err)
	}
	out := w.Finalize()

	r, err := NewReader(out)
	if err != nil {
		t.Fatal(err)
	}
	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries[0].Method != MethodStore {
		t.Errorf("a.png method = %d, want store", entries[0].Method)
	}
	if entries[1].Method != MethodDeflate {
		t.Errorf("b.txt method = %d, want deflate", entries[1].Method)
	}
	if entries[1].CompressedSize >= 1000 {
		t.Errorf("b.txt compressed to %d bytes, expected far below 1000", entries[1].CompressedSize)
	}

	got, err := r.Extract("a.png")
	if err != nil || !bytes.Equal(got, pngData) {
		t.Errorf("a.png round trip failed: %v", err)
	}
	got, err = r.Extract("b.txt")
	if err != nil || !bytes.Equal(got, txtData) {
		t.Errorf("b.txt round trip failed: %v", err)
	}
}

func TestStoredAlignment(t *testing.T) {
	var w Writer
	// Names of varying lengths push data offsets through every mod-4 case.
	names := []string{"a.png", "bb.png", "ccc.so", "dddd.jpg", "resources.arsc"}
	for _, n := range names {
		if err := w.Add(n, []byte{1, 2, 3, 4, 5}); err != nil {
			t.Fatal(err)
		}
	}
	out := w.Finalize()

	r, err := NewReader(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range r.Entries() {
		if e.Method != MethodStore {
			t.Errorf("%s should be stored", e.Name)
			continue
		}
		off := int(e.LocalHeaderOffset)
		nameLen := int(out[off+26]) | int(out[off+27])<<8
		extraLen := int(out[off+28]) | int(out[off+29])<<8
		dataOff := off + 30 + nameLen + extraLen
		if dataOff%4 != 0 {
			t.Errorf("%s data offset %d is not 4-byte aligned", e.Name, dataOff)
		}
	}
}

func TestResourcesArscAlwaysStored(t *testing.T) {
	var w Writer
	// Highly compressible content would normally deflate.
	if err := w.Add("resources.arsc", bytes.Repeat([]byte{0}, 4096)); err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(w.Finalize())
	if err != nil {
		t.Fatal(err)
	}
	if r.Entries()[0].Method != MethodStore {
		t.Error("resources.arsc must be stored")
	}
}

func TestIncompressibleFallsBackToStore(t *testing.T) {
	// A short high-entropy payload does not shrink under deflate.
	data := []byte{0x3A, 0x91, 0xE4, 0x07, 0xC2, 0x58, 0xAD, 0x66, 0x19, 0xFB, 0x24, 0x81}
	var w Writer
	if err := w.Add("noise.bin", data); err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(w.Finalize())
	if err != nil {
		t.Fatal(err)
	}
	e := r.Entries()[0]
	if e.Method != MethodStore {
		t.Errorf("incompressible entry method = %d, want store", e.Method)
	}
	got, err := r.Extract("noise.bin")
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("round trip failed: %v", err)
	}
}

func TestCRCMatchesIEEE(t *testing.T) {
	data := []byte("hello zip")
	var w Writer
	if err := w.Add("f.txt", data); err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(w.Finalize())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := r.Entries()[0].CRC32, crc32.ChecksumIEEE(data); got != want {
		t.Errorf("crc = %#x, want %#x", got, want)
	}
}

func TestExtractMissing(t *testing.T) {
	var w Writer
	w.Add("present.txt", []byte("x"))
	r, err := NewReader(w.Finalize())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Extract("absent.txt"); err == nil {
		t.Error("extracting a missing entry should fail")
	}
}

func TestNewReaderRejectsGarbage(t *testing.T) {
	if _, err := NewReader([]byte("not a zip at all")); err == nil {
		t.Error("garbage should not parse")
	}
	if _, err := NewReader(nil); err == nil {
		t.Error("empty buffer should not parse")
	}
}
