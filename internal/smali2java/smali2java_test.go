package smali2java

import (
	"strings"
	"testing"
)

func TestTypeToJava(t *testing.T) {
	tests := []struct{ in, want string }{
		{"V", "void"},
		{"I", "int"},
		{"Z", "boolean"},
		{"J", "long"},
		{"Ljava/lang/String;", "java.lang.String"},
		{"[I", "int[]"},
		{"[[Lcom/x/A;", "com.x.A[][]"},
		{"", "void"},
	}
	for _, tt := range tests {
		if got := TypeToJava(tt.in); got != tt.want {
			t.Errorf("TypeToJava(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLineTranslations(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`const-string v0, "hi"`, `String v0 = "hi";`},
		{`const/4 v1, 5`, `int v1 = 5;`},
		{`move v0, v1`, `v0 = v1;`},
		{`return-void`, `return;`},
		{`return v2`, `return v2;`},
		{`if-eqz v0, :label_a`, `if (v0 == 0) goto label_a;`},
		{`if-lt v0, v1, :loop`, `if (v0 < v1) goto loop;`},
		{`new-instance v0, Lcom/x/A;`, `com.x.A v0 = new com.x.A();`},
		{`aget v0, v1, v2`, `v0 = v1[v2];`},
		{`aput v0, v1, v2`, `v1[v2] = v0;`},
		{`array-length v0, v1`, `v0 = v1.length;`},
		{`check-cast v0, Ljava/lang/String;`, `v0 = (java.lang.String) v0;`},
		{`int-to-long v0, v1`, `v0 = (long) v1;`},
		{`add-int v0, v1, v2`, `v0 = v1 + v2;`},
		{`mul-int/2addr v0, v1`, `v0 *= v1;`},
		{`neg-int v0, v1`, `v0 = -v1;`},
		{`goto :top`, `goto top;`},
		{`throw v0`, `throw v0;`},
		{`invoke-static {v0}, Lcom/x/A;->foo(I)V`, `com.x.A.foo(v0);`},
		{`invoke-virtual {v0, v1}, Lcom/x/A;->bar(I)V`, `v0.bar(v1);`},
		{`sget-object v0, Lcom/x/A;->NAME:Ljava/lang/String;`, `java.lang.String v0 = com.x.A.NAME;`},
		{`iput v0, p0, Lcom/x/A;->count:I`, `p0.count = v0;`},
	}
	for _, tt := range tests {
		var c Converter
		got := strings.TrimSpace(c.Line(tt.in))
		if got != tt.want {
			t.Errorf("Line(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnknownLinePreservedAsComment(t *testing.T) {
	var c Converter
	got := strings.TrimSpace(c.Line("monitor-enter v0"))
	if got != "// monitor-enter v0" {
		t.Errorf("got %q", got)
	}
}

func TestConstructorInvoke(t *testing.T) {
	var c Converter
	got := strings.TrimSpace(c.Line(`invoke-direct {v0}, Ljava/lang/Object;-><init>()V`))
	if got != "new java.lang.Object();" {
		t.Errorf("got %q", got)
	}
}

func TestOffsetPrefixAndComments(t *testing.T) {
	var c Converter
	if got := strings.TrimSpace(c.Line(".0004: return-void # goto 2")); got != "return;" {
		t.Errorf("got %q", got)
	}
	if got := c.Line("# just a comment"); got != "" {
		t.Errorf("comment line produced %q", got)
	}
}

func TestConvertClass(t *testing.T) {
	smali := `.class public Lcom/x/A;
.super Ljava/lang/Object;

.method public static foo()V
    .registers 2
    const-string v0, "hello"
    return-void
.end method
`
	var c Converter
	out := c.Convert(smali)
	for _, want := range []string{"class com.x.A {", "// extends java.lang.Object", "// Method: foo", `String v0 = "hello";`, "return;", "}"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRegisterTableCarriesType(t *testing.T) {
	var c Converter
	c.Line(`sget-object v0, Lcom/x/A;->NAME:Ljava/lang/String;`)
	got := strings.TrimSpace(c.Line(`move-object v1, v0`))
	if got != "v1 = v0;" {
		t.Errorf("got %q", got)
	}
	if c.registers["v1"].typ != "java.lang.String" {
		t.Errorf("v1 type = %q", c.registers["v1"].typ)
	}
}
