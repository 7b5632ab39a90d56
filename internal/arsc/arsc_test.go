package arsc

import (
	"testing"

	"github.com/aetherlink/dexedit/internal/bytecursor"
	"github.com/aetherlink/dexedit/internal/strpool"
)

// testTable synthesizes a one-package table with a "string" type holding
// app_name="hello" at entry 0, a hole at entry 1, and count=7 at entry 2.
func testTable(t *testing.T) []byte {
	t.Helper()

	global := (&strpool.Pool{UTF8: true, Strings: []string{"hello"}}).Build()
	typeStrings := (&strpool.Pool{UTF8: true, Strings: []string{"string"}}).Build()
	keyStrings := (&strpool.Pool{UTF8: true, Strings: []string{"app_name", "count"}}).Build()

	// Type chunk: header(20) + 3 offset words + entries.
	entry := func(key uint32, valueType uint8, valueData uint32) []byte {
		b := make([]byte, 16)
		bytecursor.PutU16(b, 0, 8) // entry size
		bytecursor.PutU16(b, 2, 0) // flags: simple
		bytecursor.PutU32(b, 4, key)
		bytecursor.PutU16(b, 8, 8) // Res_value size
		b[11] = valueType
		bytecursor.PutU32(b, 12, valueData)
		return b
	}
	entries := append(entry(0, 0x03, 0), entry(1, 0x10, 7)...)

	typeChunk := make([]byte, 20+3*4)
	bytecursor.PutU16(typeChunk, 0, chunkType)
	bytecursor.PutU16(typeChunk, 2, 20)
	typeChunk[8] = 1 // type id
	bytecursor.PutU32(typeChunk, 12, 3)
	bytecursor.PutU32(typeChunk, 16, uint32(len(typeChunk)))
	bytecursor.PutU32(typeChunk, 20, 0)          // entry 0
	bytecursor.PutU32(typeChunk, 24, 0xFFFFFFFF) // entry 1 absent
	bytecursor.PutU32(typeChunk, 28, 16)         // entry 2
	typeChunk = append(typeChunk, entries...)
	bytecursor.PutU32(typeChunk, 4, uint32(len(typeChunk)))

	// Package chunk.
	pkgHeader := make([]byte, 288)
	bytecursor.PutU16(pkgHeader, 0, chunkPackage)
	bytecursor.PutU16(pkgHeader, 2, 288)
	bytecursor.PutU32(pkgHeader, 8, 0x7F)
	for i, r := range "com.x" {
		bytecursor.PutU16(pkgHeader, 12+i*2, uint16(r))
	}
	bytecursor.PutU32(pkgHeader, 268, 288)                          // type strings
	bytecursor.PutU32(pkgHeader, 276, uint32(288+len(typeStrings))) // key strings
	pkg := append(pkgHeader, typeStrings...)
	pkg = append(pkg, keyStrings...)
	pkg = append(pkg, typeChunk...)
	bytecursor.PutU32(pkg, 4, uint32(len(pkg)))

	out := make([]byte, 12)
	bytecursor.PutU16(out, 0, chunkTable)
	bytecursor.PutU16(out, 2, 12)
	bytecursor.PutU32(out, 8, 1) // package count
	out = append(out, global...)
	out = append(out, pkg...)
	bytecursor.PutU32(out, 4, uint32(len(out)))
	return out
}

func TestParseTable(t *testing.T) {
	table, err := Parse(testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if table.PackageID != 0x7F {
		t.Errorf("package id = %#x", table.PackageID)
	}
	if table.PackageName != "com.x" {
		t.Errorf("package name = %q", table.PackageName)
	}
	entries := table.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (hole skipped)", len(entries))
	}

	first := entries[0]
	if first.ID != 0x7F010000 || first.Name != "app_name" || first.Type != "string" || first.Value != "hello" {
		t.Errorf("entry 0 = %+v", first)
	}
	second := entries[1]
	if second.ID != 0x7F010002 || second.Name != "count" || second.Value != "7" {
		t.Errorf("entry 2 = %+v", second)
	}
}

func TestResourceLookup(t *testing.T) {
	table, err := Parse(testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	e, ok := table.Resource(0x7F010000)
	if !ok || e.Name != "app_name" {
		t.Errorf("Resource(0x7F010000) = %+v, %v", e, ok)
	}
	if _, ok := table.Resource(0x7F010001); ok {
		t.Error("hole entry should not resolve")
	}
	if _, ok := table.Resource(0x7F990000); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestSearchStrings(t *testing.T) {
	table, err := Parse(testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	hits := table.SearchStrings("HEL", 0)
	if len(hits) != 1 || hits[0].Index != 0 || hits[0].Value != "hello" {
		t.Errorf("hits = %+v", hits)
	}
	if hits := table.SearchStrings("zzz", 0); len(hits) != 0 {
		t.Errorf("no-match search returned %+v", hits)
	}
}

func TestSearchResources(t *testing.T) {
	table, err := Parse(testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if hits := table.SearchResources("APP_", "", 0); len(hits) != 1 || hits[0].Name != "app_name" {
		t.Errorf("name search = %+v", hits)
	}
	// Value search: the rendered value "hello" matches too.
	if hits := table.SearchResources("hello", "", 0); len(hits) != 1 {
		t.Errorf("value search = %+v", hits)
	}
	if hits := table.SearchResources("app_name", "drawable", 0); len(hits) != 0 {
		t.Errorf("type filter failed: %+v", hits)
	}
	if hits := table.SearchResources("", "string", 1); len(hits) != 1 {
		t.Errorf("limit failed: %+v", hits)
	}
}

// Every truncation must parse or fail cleanly, never read out of range.
func TestParseBoundsSafety(t *testing.T) {
	data := testTable(t)
	for n := 0; n <= len(data); n++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic at prefix %d: %v", n, r)
				}
			}()
			Parse(data[:n])
		}()
	}
}

func TestParseRejectsWrongRoot(t *testing.T) {
	if _, err := Parse([]byte{0x03, 0x00, 0x08, 0x00, 0x08, 0, 0, 0}); err == nil {
		t.Error("AXML root should not parse as ARSC")
	}
	if _, err := Parse(nil); err == nil {
		t.Error("empty buffer should not parse")
	}
}
