package apk

import (
	"bytes"
	"strings"
	"testing"
)

func testContainer(t *testing.T) *Container {
	t.Helper()
	c := New()
	if err := c.Add("classes.dex", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := c.Add("lib/arm64-v8a/libfoo.so", []byte{4, 5}); err != nil {
		t.Fatal(err)
	}
	if err := c.Add("res/drawable/icon.png", []byte{6}); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestContainerRoundTrip(t *testing.T) {
	c := testContainer(t)
	data, err := c.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	reopened, err := OpenBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := reopened.List(); len(got) != 3 {
		t.Fatalf("entries = %v", got)
	}
	content, err := reopened.Extract("classes.dex")
	if err != nil || !bytes.Equal(content, []byte{1, 2, 3}) {
		t.Errorf("classes.dex = % x, %v", content, err)
	}
}

func TestReplaceAddDelete(t *testing.T) {
	c := testContainer(t)
	if err := c.Replace("classes.dex", []byte{9}); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Extract("classes.dex"); !bytes.Equal(got, []byte{9}) {
		t.Errorf("replace failed: % x", got)
	}
	if err := c.Replace("missing", nil); err == nil {
		t.Error("replacing a missing entry should fail")
	}
	if err := c.Add("classes.dex", nil); err == nil {
		t.Error("adding an existing entry should fail")
	}
	if err := c.Delete("classes.dex"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Extract("classes.dex"); err == nil {
		t.Error("deleted entry still extractable")
	}
	if err := c.Delete("classes.dex"); err == nil {
		t.Error("deleting twice should fail")
	}
}

func TestIsArm64(t *testing.T) {
	tests := []struct {
		name  string
		archs []string
		want  bool
	}{
		{"arm64 only", []string{"arm64-v8a"}, true},
		{"arm64 among others", []string{"armeabi-v7a", "arm64-v8a", "x86_64"}, true},
		{"32-bit only", []string{"armeabi-v7a"}, false},
		{"x86 only", []string{"x86", "x86_64"}, false},
		{"no native libs", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := &Info{Architectures: tt.archs}
			if got := info.IsArm64(); got != tt.want {
				t.Errorf("IsArm64() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInfoStringReportsArm64(t *testing.T) {
	info := &Info{PackageID: "com.x", Architectures: []string{"arm64-v8a"}}
	if !strings.Contains(info.String(), "Runs on arm64: true") {
		t.Errorf("summary missing arm64 line:\n%s", info.String())
	}
}

func TestDeleteMatching(t *testing.T) {
	c := testContainer(t)
	if n := c.DeleteMatching("lib/"); n != 1 {
		t.Errorf("removed %d entries", n)
	}
	if n := len(c.List()); n != 2 {
		t.Errorf("%d entries left", n)
	}
	if n := c.DeleteMatching("nothing-matches"); n != 0 {
		t.Errorf("removed %d entries", n)
	}
}
