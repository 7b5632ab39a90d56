package config

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(*Job) bool
	}{
		{
			name: "minimal edit job",
			yaml: `
input: app.apk
operations:
  - op: axml.edit
    action: set_package
    value: com.renamed
`,
			check: func(j *Job) bool {
				return j.Input == "app.apk" &&
					len(j.Operations) == 1 &&
					j.Operations[0].Op == "axml.edit" &&
					j.Operations[0].Action == "set_package" &&
					j.Operations[0].Value == "com.renamed"
			},
		},
		{
			name: "dex job with output",
			yaml: `
input: classes.dex
output: classes-patched.dex
operations:
  - op: dex.delete_class
    class: Lcom/ads/Tracker;
  - op: dex.search
    query: http
    kind: string
    max: 50
`,
			check: func(j *Job) bool {
				return j.Output == "classes-patched.dex" &&
					len(j.Operations) == 2 &&
					j.Operations[0].Class == "Lcom/ads/Tracker;" &&
					j.Operations[1].Max == 50
			},
		},
		{
			name: "smali from file",
			yaml: `
input: classes.dex
operations:
  - op: dex.modify_class
    class: Lcom/x/A;
    smali_file: patch.smali
`,
			check: func(j *Job) bool {
				return j.Operations[0].SmaliFile == "patch.smali"
			},
		},
		{
			name:    "broken yaml",
			yaml:    "input: [unclosed",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := Parse(strings.NewReader(tt.yaml))
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tt.check != nil && !tt.check(job) {
				t.Errorf("check failed: %+v", job)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"valid", Job{Input: "a.dex", Operations: []Operation{{Op: "dex.info"}}}, false},
		{"no input", Job{Operations: []Operation{{Op: "dex.info"}}}, true},
		{"no operations", Job{Input: "a.dex"}, true},
		{"empty op", Job{Input: "a.dex", Operations: []Operation{{}}}, true},
		{
			"smali and smali_file",
			Job{Input: "a.dex", Operations: []Operation{{Op: "dex.modify_class", Smali: "x", SmaliFile: "y"}}},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	j := &Job{BaseDir: "/work/jobs"}
	if got := j.ResolvePath("patch.smali"); got != "/work/jobs/patch.smali" {
		t.Errorf("relative = %q", got)
	}
	if got := j.ResolvePath("/abs/p.smali"); got != "/abs/p.smali" {
		t.Errorf("absolute = %q", got)
	}
	if got := j.ResolvePath(""); got != "" {
		t.Errorf("empty = %q", got)
	}
}

func TestRequestCarriesBuffer(t *testing.T) {
	j := &Job{Input: "a.dex", BaseDir: "."}
	req, err := j.Request(Operation{Op: "dex.info"}, []byte{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if req.Op != "dex.info" || len(req.Data) != 2 {
		t.Errorf("request = %+v", req)
	}
}
