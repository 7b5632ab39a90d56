package dex

import (
	"bytes"
	"hash/adler32"
	"strings"
	"testing"
)

// testImage builds a minimal DEX with one class Lcom/x/A; carrying foo()V
// and bar()V, both just return-void.
func testImage(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder()
	entry := &ClassEntry{
		Name:        "Lcom/x/A;",
		Super:       "Ljava/lang/Object;",
		AccessFlags: AccPublic,
	}
	entry.AddMethod(MethodDef{
		Name:        "foo",
		Proto:       Prototype{ReturnType: "V"},
		AccessFlags: AccPublic | AccStatic,
		Registers:   1,
		Code:        []byte{0x0E, 0x00},
	})
	entry.AddMethod(MethodDef{
		Name:        "bar",
		Proto:       Prototype{ReturnType: "V"},
		AccessFlags: AccPublic | AccStatic,
		Registers:   1,
		Code:        []byte{0x0E, 0x00},
	})
	if err := b.AddClass(entry); err != nil {
		t.Fatal(err)
	}
	return b.Build()
}

func TestParseBuiltImage(t *testing.T) {
	image := testImage(t)
	f, err := Parse(image)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Classes) != 1 {
		t.Fatalf("got %d classes", len(f.Classes))
	}
	if name := f.TypeName(f.Classes[0].ClassIdx); name != "Lcom/x/A;" {
		t.Errorf("class name = %q", name)
	}
	code, err := f.MethodCode("Lcom/x/A;", "foo")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(code.Insns, []byte{0x0E, 0x00}) {
		t.Errorf("foo code = % x", code.Insns)
	}
	if code.RegistersSize != 1 {
		t.Errorf("registers = %d", code.RegistersSize)
	}
}

func TestChecksum(t *testing.T) {
	image := testImage(t)
	f, err := Parse(image)
	if err != nil {
		t.Fatal(err)
	}
	if want := adler32.Checksum(image[12:]); f.Header.Checksum != want {
		t.Errorf("checksum = %#x, want %#x", f.Header.Checksum, want)
	}
	if f.Header.FileSize != uint32(len(image)) {
		t.Errorf("file size = %d, len = %d", f.Header.FileSize, len(image))
	}
}

func TestLoadBuildUnmodifiedIsVerbatim(t *testing.T) {
	image := testImage(t)
	b, err := Load(image)
	if err != nil {
		t.Fatal(err)
	}
	if b.Modified() {
		t.Fatal("freshly loaded builder claims to be modified")
	}
	if !bytes.Equal(b.Build(), image) {
		t.Error("unmodified build is not byte-identical to the input")
	}
}

func TestRebuildIsStructurallyStable(t *testing.T) {
	image := testImage(t)
	b, err := Load(image)
	if err != nil {
		t.Fatal(err)
	}
	// Touch the pool so Build takes the re-emit path.
	b.GetOrAddString("scratch")
	rebuilt := b.Build()

	f1, err := Parse(image)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := Parse(rebuilt)
	if err != nil {
		t.Fatalf("rebuilt image does not parse: %v", err)
	}
	if len(f2.Classes) != len(f1.Classes) {
		t.Fatalf("class count changed: %d -> %d", len(f1.Classes), len(f2.Classes))
	}
	c1, _ := f1.MethodCode("Lcom/x/A;", "foo")
	c2, err := f2.MethodCode("Lcom/x/A;", "foo")
	if err != nil || !bytes.Equal(c1.Insns, c2.Insns) {
		t.Errorf("method code changed across rebuild: %v", err)
	}
	if got := Checksum(rebuilt); got != f2.Header.Checksum {
		t.Errorf("rebuilt checksum = %#x, header says %#x", got, f2.Header.Checksum)
	}
}

func TestDisassembleReturnVoid(t *testing.T) {
	image := testImage(t)
	f, _ := Parse(image)
	d := NewDisassembler(f)
	insns := d.Method([]byte{0x0E, 0x00})
	if len(insns) != 1 || insns[0].Opcode != "return-void" || insns[0].Operands != "" {
		t.Fatalf("insns = %+v", insns)
	}
	if got := Smali(insns); strings.TrimSpace(got) != "return-void" {
		t.Errorf("smali = %q", got)
	}
}

func TestAssembleDisassembleRoundTrip(t *testing.T) {
	image := testImage(t)
	f, _ := Parse(image)
	d := NewDisassembler(f)
	a := NewAssembler(f)

	// One instruction per format in the supported subset.
	programs := [][]byte{
		{0x0E, 0x00},                               // return-void (10x)
		{0x01, 0x21},                               // move v1, v2 (12x)
		{0x12, 0x71},                               // const/4 v1, 7 (11n)
		{0x12, 0xF0},                               // const/4 v0, -1 (11n, signed)
		{0x0F, 0x05},                               // return v5 (11x)
		{0x28, 0x02},                               // goto +2 (10t)
		{0x29, 0x00, 0xFE, 0xFF},                   // goto/16 -2 (20t)
		{0x02, 0x05, 0x10, 0x00},                   // move/from16 (22x)
		{0x38, 0x02, 0x05, 0x00},                   // if-eqz v2, +5 (21t)
		{0x13, 0x01, 0x39, 0x30},                   // const/16 (21s)
		{0x15, 0x01, 0x12, 0x00},                   // const/high16 (21h)
		{0x90, 0x00, 0x01, 0x02},                   // add-int (23x)
		{0xD8, 0x00, 0x01, 0x10},                   // add-int/lit8 (22b)
		{0x32, 0x21, 0x04, 0x00},                   // if-eq v1, v2, +4 (22t)
		{0xD0, 0x21, 0x2A, 0x00},                   // add-int/lit16 (22s)
		{0x03, 0x00, 0x01, 0x00, 0x02, 0x00},       // move/16 (32x)
		{0x2A, 0x00, 0x10, 0x00, 0x00, 0x00},       // goto/32 (30t)
		{0x14, 0x00, 0x78, 0x56, 0x34, 0x12},       // const (31i)
		{0x18, 0x02, 1, 2, 3, 4, 5, 6, 7, 8},       // const-wide (51l)
		{0x71, 0x00, 0x00, 0x00, 0x00, 0x00},       // invoke-static {}, method 0 (35c)
		{0x6E, 0x10, 0x00, 0x00, 0x03, 0x00},       // invoke-virtual {v3} (35c)
		{0x74, 0x02, 0x00, 0x00, 0x05, 0x00},       // invoke-virtual/range {v5..v6} (3rc)
	}
	for _, code := range programs {
		insns := d.Method(code)
		text := Smali(insns)
		got, err := a.Assemble(text)
		if err != nil {
			t.Errorf("assemble %q: %v", text, err)
			continue
		}
		if !bytes.Equal(got, code) {
			t.Errorf("round trip\n  text %q\n  got  % x\n  want % x", text, got, code)
		}
	}
}

func TestAssembleErrors(t *testing.T) {
	image := testImage(t)
	f, _ := Parse(image)
	a := NewAssembler(f)

	if _, err := a.Assemble("bogus-opcode v0"); err == nil {
		t.Error("unknown opcode should fail")
	} else if le, ok := err.(*LineError); !ok || le.Line != 1 {
		t.Errorf("want LineError line 1, got %v", err)
	}
	if _, err := a.Assemble("return-void\nconst/4 vX, 1"); err == nil {
		t.Error("bad register should fail")
	} else if le, ok := err.(*LineError); !ok || le.Line != 2 {
		t.Errorf("want LineError line 2, got %v", err)
	}
}

func TestAssembleSkipsDirectivesAndLabels(t *testing.T) {
	image := testImage(t)
	f, _ := Parse(image)
	a := NewAssembler(f)
	text := `.method public static foo()V
    .registers 1
    .0000: return-void
:done
.end method`
	got, err := a.Assemble(text)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x0E, 0x00}) {
		t.Errorf("assembled % x", got)
	}
	if off, ok := a.Labels["done"]; !ok || off != 1 {
		t.Errorf("label done = %d, %v", off, ok)
	}
}

func TestClassSmaliRoundTrip(t *testing.T) {
	image := testImage(t)
	f, _ := Parse(image)
	text, err := ClassSmali(f, "Lcom/x/A;")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{".class public Lcom/x/A;", ".super Ljava/lang/Object;", ".method public static foo()V", "return-void"} {
		if !strings.Contains(text, want) {
			t.Errorf("class smali missing %q:\n%s", want, text)
		}
	}

	entry, err := ParseClassSmali(text, NewAssembler(f))
	if err != nil {
		t.Fatal(err)
	}
	if entry.Name != "Lcom/x/A;" || entry.Super != "Ljava/lang/Object;" {
		t.Errorf("parsed entry = %+v", entry)
	}
	if len(entry.DirectMethods) != 2 {
		t.Fatalf("got %d direct methods", len(entry.DirectMethods))
	}
	if !bytes.Equal(entry.DirectMethods[0].Code, []byte{0x0E, 0x00}) {
		t.Errorf("method code = % x", entry.DirectMethods[0].Code)
	}
}

func TestAddAndDeleteClass(t *testing.T) {
	image := testImage(t)
	added, err := AddClass(image, `.class public Lcom/x/B;
.super Ljava/lang/Object;
.method public static baz()V
    .registers 1
    return-void
.end method`)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Parse(added)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Classes) != 2 {
		t.Fatalf("got %d classes after add", len(f.Classes))
	}
	if _, err := f.MethodCode("Lcom/x/B;", "baz"); err != nil {
		t.Errorf("baz missing: %v", err)
	}

	removed, err := DeleteClass(added, "Lcom/x/B;")
	if err != nil {
		t.Fatal(err)
	}
	f2, err := Parse(removed)
	if err != nil {
		t.Fatal(err)
	}
	if len(f2.Classes) != 1 {
		t.Errorf("got %d classes after delete", len(f2.Classes))
	}
}

func TestModifyClass(t *testing.T) {
	image := testImage(t)
	modified, err := ModifyClass(image, "Lcom/x/A;", `.class public Lcom/x/A;
.super Ljava/lang/Object;
.method public static foo()V
    .registers 2
    const/4 v0, 1
    return-void
.end method`)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Parse(modified)
	if err != nil {
		t.Fatal(err)
	}
	code, err := f.MethodCode("Lcom/x/A;", "foo")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(code.Insns, []byte{0x12, 0x10, 0x0E, 0x00}) {
		t.Errorf("modified code = % x", code.Insns)
	}
	if code.RegistersSize != 2 {
		t.Errorf("registers = %d", code.RegistersSize)
	}
}

func TestMethodXRefs(t *testing.T) {
	image := testImage(t)
	f, _ := Parse(image)
	a := NewAssembler(f)
	callerCode, err := a.Assemble("invoke-static {}, Lcom/x/A;->foo()V\nreturn-void")
	if err != nil {
		t.Fatal(err)
	}

	b, err := Load(image)
	if err != nil {
		t.Fatal(err)
	}
	entry := b.Class("Lcom/x/A;")
	for i := range entry.DirectMethods {
		if entry.DirectMethods[i].Name == "bar" {
			entry.DirectMethods[i].Code = callerCode
		}
	}
	if err := b.ReplaceClass(entry); err != nil {
		t.Fatal(err)
	}
	f2, err := Parse(b.Build())
	if err != nil {
		t.Fatal(err)
	}

	refs := f2.FindMethodXRefs("Lcom/x/A;", "foo")
	if len(refs) != 1 {
		t.Fatalf("got %d xrefs, want 1", len(refs))
	}
	if refs[0].CallerClass != "Lcom/x/A;" || refs[0].CallerMethod != "bar" || refs[0].Offset != 0 {
		t.Errorf("xref = %+v", refs[0])
	}
	if refs := f2.FindMethodXRefs("Lcom/x/A;", "nosuch"); refs != nil {
		t.Errorf("missing target returned %v", refs)
	}
}

func TestAllMethodCode(t *testing.T) {
	image := testImage(t)
	f, _ := Parse(image)
	all := f.AllMethodCode()
	if len(all) != 2 {
		t.Fatalf("got %d entries", len(all))
	}
	if _, ok := all["Lcom/x/A;|foo"]; !ok {
		t.Error("foo missing from batch map")
	}
	if _, ok := all["Lcom/x/A;|bar"]; !ok {
		t.Error("bar missing from batch map")
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse([]byte("not a dex")); err == nil {
		t.Error("garbage should fail")
	}
	if _, err := Parse(nil); err == nil {
		t.Error("empty buffer should fail")
	}
}

// Every truncation of a valid image must either parse or fail cleanly;
// it must never read past the buffer.
func TestParseBoundsSafety(t *testing.T) {
	image := testImage(t)
	for n := 0; n <= len(image); n++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("panic at prefix %d: %v", n, r)
				}
			}()
			Parse(image[:n])
		}()
	}
}

func TestSplitTypeList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"I", []string{"I"}},
		{"IJ", []string{"I", "J"}},
		{"Ljava/lang/String;", []string{"Ljava/lang/String;"}},
		{"I[JLa/B;[[La/C;Z", []string{"I", "[J", "La/B;", "[[La/C;", "Z"}},
	}
	for _, tt := range tests {
		got, err := SplitTypeList(tt.in)
		if err != nil {
			t.Errorf("SplitTypeList(%q): %v", tt.in, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("SplitTypeList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("SplitTypeList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
	if _, err := SplitTypeList("[L"); err == nil {
		t.Error("unterminated descriptor should fail")
	}
}

func TestPrototypeShorty(t *testing.T) {
	p := Prototype{ReturnType: "V", ParamTypes: []string{"I", "Ljava/lang/String;", "[B"}}
	if got := p.Shorty(); got != "VILL" {
		t.Errorf("shorty = %q", got)
	}
	if got := p.String(); got != "(ILjava/lang/String;[B)V" {
		t.Errorf("string = %q", got)
	}
}
