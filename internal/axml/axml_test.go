package axml

import (
	"strings"
	"testing"

	"github.com/aetherlink/dexedit/internal/bytecursor"
	"github.com/aetherlink/dexedit/internal/strpool"
)

// testManifest synthesizes a small binary manifest:
//
//	<manifest package="com.x" versionCode="1" versionName="1.0">
//	  <uses-permission name="android.permission.INTERNET"/>
//	  <uses-sdk minSdkVersion="21" targetSdkVersion="33"/>
//	  <application>
//	    <activity name="com.x.Main" exported="false"/>
//	  </application>
//	</manifest>
func testManifest(t *testing.T) []byte {
	t.Helper()
	pool := &strpool.Pool{UTF8: true}
	idx := func(s string) int { return pool.Intern(s) }

	manifest := idx("manifest")
	pkgAttr := idx("package")
	pkgVal := idx("com.x")
	verCode := idx("versionCode")
	verName := idx("versionName")
	verVal := idx("1.0")
	usesPerm := idx("uses-permission")
	name := idx("name")
	internet := idx("android.permission.INTERNET")
	usesSdk := idx("uses-sdk")
	minSdk := idx("minSdkVersion")
	targetSdk := idx("targetSdkVersion")
	application := idx("application")
	activity := idx("activity")
	mainAct := idx("com.x.Main")
	exported := idx("exported")

	noNS := -1
	var body []byte
	body = append(body, buildStartElement(manifest, noNS, []synthAttr{
		{nameIdx: pkgAttr, rawIdx: uint32(pkgVal), dataType: TypeString, data: uint32(pkgVal)},
		{nameIdx: verCode, rawIdx: 0xFFFFFFFF, dataType: TypeIntDec, data: 1},
		{nameIdx: verName, rawIdx: uint32(verVal), dataType: TypeString, data: uint32(verVal)},
	})...)
	body = append(body, buildStartElement(usesPerm, noNS, []synthAttr{
		{nameIdx: name, rawIdx: uint32(internet), dataType: TypeString, data: uint32(internet)},
	})...)
	body = append(body, buildEndElement(usesPerm)...)
	body = append(body, buildStartElement(usesSdk, noNS, []synthAttr{
		{nameIdx: minSdk, rawIdx: 0xFFFFFFFF, dataType: TypeIntDec, data: 21},
		{nameIdx: targetSdk, rawIdx: 0xFFFFFFFF, dataType: TypeIntDec, data: 33},
	})...)
	body = append(body, buildEndElement(usesSdk)...)
	body = append(body, buildStartElement(application, noNS, nil)...)
	body = append(body, buildStartElement(activity, noNS, []synthAttr{
		{nameIdx: name, rawIdx: uint32(mainAct), dataType: TypeString, data: uint32(mainAct)},
		{nameIdx: exported, rawIdx: 0xFFFFFFFF, dataType: TypeIntBool, data: 0},
	})...)
	body = append(body, buildEndElement(activity)...)
	body = append(body, buildEndElement(application)...)
	body = append(body, buildEndElement(manifest)...)

	poolChunk := pool.Build()
	out := make([]byte, 8, 8+len(poolChunk)+len(body))
	bytecursor.PutU16(out, 0, chunkXML)
	bytecursor.PutU16(out, 2, 8)
	out = append(out, poolChunk...)
	out = append(out, body...)
	bytecursor.PutU32(out, 4, uint32(len(out)))
	return out
}

func TestParseManifest(t *testing.T) {
	doc, err := Parse(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Package(); got != "com.x" {
		t.Errorf("package = %q", got)
	}
	if got := doc.VersionCode(); got != 1 {
		t.Errorf("versionCode = %d", got)
	}
	if got := doc.VersionName(); got != "1.0" {
		t.Errorf("versionName = %q", got)
	}
	if got := doc.MinSDK(); got != "21" {
		t.Errorf("minSdk = %q", got)
	}
	if got := doc.TargetSDK(); got != "33" {
		t.Errorf("targetSdk = %q", got)
	}
	perms := doc.Permissions()
	if len(perms) != 1 || perms[0] != "android.permission.INTERNET" {
		t.Errorf("permissions = %v", perms)
	}
	acts := doc.Activities()
	if len(acts) != 1 || acts[0] != "com.x.Main" {
		t.Errorf("activities = %v", acts)
	}
	if doc.Root.Children[3-1].Name != "application" {
		t.Errorf("tree shape: %+v", doc.Root.Children)
	}
}

func TestParseRejectsWrongRoot(t *testing.T) {
	if _, err := Parse([]byte{0x02, 0x00, 0x08, 0x00, 0x08, 0, 0, 0}); err == nil {
		t.Error("ARSC root should not parse as AXML")
	}
	if _, err := Parse(nil); err == nil {
		t.Error("empty buffer should not parse")
	}
}

func fileSizeHeader(data []byte) uint32 {
	v, _ := bytecursor.U32(data, 4)
	return v
}

func TestSetPackageAndVersionCode(t *testing.T) {
	e, err := NewEditor(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetPackage("com.y"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetVersionCode(2); err != nil {
		t.Fatal(err)
	}

	doc, err := Parse(e.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Package(); got != "com.y" {
		t.Errorf("package = %q", got)
	}
	if got := doc.VersionCode(); got != 2 {
		t.Errorf("versionCode = %d", got)
	}
	if got := fileSizeHeader(e.Bytes()); got != uint32(len(e.Bytes())) {
		t.Errorf("file-size header %d, buffer %d", got, len(e.Bytes()))
	}
}

func TestIntEditPreservesSize(t *testing.T) {
	e, err := NewEditor(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	before := len(e.Bytes())
	if err := e.SetVersionCode(42); err != nil {
		t.Fatal(err)
	}
	if after := len(e.Bytes()); after != before {
		t.Errorf("int edit changed size %d -> %d", before, after)
	}
}

func TestSetSDKVersions(t *testing.T) {
	e, err := NewEditor(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.SetMinSDK(24); err != nil {
		t.Fatal(err)
	}
	if err := e.SetTargetSDK(34); err != nil {
		t.Fatal(err)
	}
	doc, _ := Parse(e.Bytes())
	if doc.MinSDK() != "24" || doc.TargetSDK() != "34" {
		t.Errorf("sdk = %q / %q", doc.MinSDK(), doc.TargetSDK())
	}
}

func TestSetAttributeMissing(t *testing.T) {
	e, err := NewEditor(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	before := append([]byte(nil), e.Bytes()...)
	if err := e.SetAttribute("manifest", "nonexistent", "x"); err == nil {
		t.Fatal("missing attribute should fail")
	}
	if len(before) != len(e.Bytes()) {
		t.Error("failed edit changed the buffer size")
	}
}

func TestAddPermission(t *testing.T) {
	e, err := NewEditor(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.AddPermission("android.permission.CAMERA"); err != nil {
		t.Fatal(err)
	}
	doc, err := Parse(e.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, p := range doc.Permissions() {
		if p == "android.permission.CAMERA" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("CAMERA declared %d times", count)
	}
	// The new element must be the manifest's first child.
	if doc.Root.Children[0].Name != "uses-permission" ||
		doc.Root.Children[0].Attr("name") != "android.permission.CAMERA" {
		t.Errorf("first child = %+v", doc.Root.Children[0])
	}
	if got := fileSizeHeader(e.Bytes()); got != uint32(len(e.Bytes())) {
		t.Errorf("file-size header %d, buffer %d", got, len(e.Bytes()))
	}

	if err := e.AddPermission("android.permission.CAMERA"); err == nil {
		t.Error("duplicate permission should fail")
	}
}

func TestRemovePermission(t *testing.T) {
	e, err := NewEditor(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	before := len(e.Bytes())
	if err := e.RemovePermission("android.permission.INTERNET"); err != nil {
		t.Fatal(err)
	}
	if len(e.Bytes()) >= before {
		t.Error("remove did not shrink the file")
	}
	doc, err := Parse(e.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range doc.Permissions() {
		if p == "android.permission.INTERNET" {
			t.Error("permission still present")
		}
	}
	if got := fileSizeHeader(e.Bytes()); got != uint32(len(e.Bytes())) {
		t.Errorf("file-size header %d, buffer %d", got, len(e.Bytes()))
	}

	if err := e.RemovePermission("android.permission.INTERNET"); err == nil {
		t.Error("removing twice should fail")
	}
}

func TestAddAndRemoveActivity(t *testing.T) {
	e, err := NewEditor(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.AddActivity("com.x.Second", true); err != nil {
		t.Fatal(err)
	}
	doc, _ := Parse(e.Bytes())
	acts := doc.Activities()
	if len(acts) != 2 || acts[1] != "com.x.Second" {
		t.Errorf("activities = %v", acts)
	}
	// The synthesized activity carries exported=true.
	for i := range doc.Root.Children {
		app := &doc.Root.Children[i]
		if app.Name != "application" {
			continue
		}
		for j := range app.Children {
			if app.Children[j].Attr("name") == "com.x.Second" {
				if got := app.Children[j].Attr("exported"); got != "true" {
					t.Errorf("exported = %q", got)
				}
			}
		}
	}

	if err := e.RemoveActivity("com.x.Second"); err != nil {
		t.Fatal(err)
	}
	doc, _ = Parse(e.Bytes())
	if acts := doc.Activities(); len(acts) != 1 {
		t.Errorf("after removal activities = %v", acts)
	}

	if err := e.RemoveActivity("com.x.NoSuch"); err == nil {
		t.Error("removing an unknown activity should fail")
	}
}

func TestPoolEncodingStableAcrossEdits(t *testing.T) {
	data := testManifest(t)
	e, err := NewEditor(data)
	if err != nil {
		t.Fatal(err)
	}
	if !e.pool.UTF8 {
		t.Fatal("test manifest pool should be UTF-8")
	}
	beforeStrings := append([]string(nil), e.pool.Strings...)
	if err := e.SetPackage("com.totally.new.package"); err != nil {
		t.Fatal(err)
	}
	if !e.pool.UTF8 {
		t.Error("edit flipped the pool encoding")
	}
	for i, s := range beforeStrings {
		if e.pool.Strings[i] != s {
			t.Errorf("string %d changed: %q -> %q", i, s, e.pool.Strings[i])
		}
	}
}

func TestSearchByAttribute(t *testing.T) {
	e, err := NewEditor(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	results := e.SearchByAttribute("name", "INTERNET")
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.ElementName != "uses-permission" || r.Value != "android.permission.INTERNET" {
		t.Errorf("result = %+v", r)
	}

	if got := e.SearchByAttribute("", "com.x.Main"); len(got) != 1 {
		t.Errorf("value-only search returned %d results", len(got))
	}
	if got := e.SearchByAttribute("zzz", ""); len(got) != 0 {
		t.Errorf("no-match search returned %d results", len(got))
	}
}

// Every truncation must parse or fail cleanly, never read out of range.
func TestParseBoundsSafety(t *testing.T) {
	data := testManifest(t)
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

func TestXMLRendering(t *testing.T) {
	doc, err := Parse(testManifest(t))
	if err != nil {
		t.Fatal(err)
	}
	xml := doc.XML()
	for _, want := range []string{`<manifest package="com.x"`, `<uses-permission name="android.permission.INTERNET"/>`, "</manifest>"} {
		if !strings.Contains(xml, want) {
			t.Errorf("xml missing %q:\n%s", want, xml)
		}
	}
}
