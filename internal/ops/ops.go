// Package ops exposes the toolkit as named operations with structured
// results, the surface an external bridge or the CLI drives. Each call is
// request-scoped: the input bytes are parsed fresh, worked on, and the
// result (or rewritten buffer) returned. Nothing persists between calls.
package ops

import (
	"fmt"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/aetherlink/dexedit/internal/apk"
	"github.com/aetherlink/dexedit/internal/arsc"
	"github.com/aetherlink/dexedit/internal/axml"
	"github.com/aetherlink/dexedit/internal/dex"
	"github.com/aetherlink/dexedit/internal/smali2java"
)

// Request names an operation and carries its arguments. Path and Data are
// alternatives; Path wins when both are set.
type Request struct {
	Op   string `json:"op"`
	Path string `json:"path,omitempty"`
	Data []byte `json:"-"`

	Class  string `json:"class,omitempty"`
	Method string `json:"method,omitempty"`
	Field  string `json:"field,omitempty"`
	Smali  string `json:"smali,omitempty"`

	Query         string `json:"query,omitempty"`
	Kind          string `json:"kind,omitempty"`
	Filter        string `json:"filter,omitempty"`
	Pattern       string `json:"pattern,omitempty"`
	Type          string `json:"type,omitempty"`
	CaseSensitive bool   `json:"case_sensitive,omitempty"`
	Offset        int    `json:"offset,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Max           int    `json:"max,omitempty"`

	Action   string `json:"action,omitempty"`
	Value    string `json:"value,omitempty"`
	Exported bool   `json:"exported,omitempty"`

	// APK container arguments.
	Entry   string `json:"entry,omitempty"`
	Payload []byte `json:"-"`
	Out     string `json:"out,omitempty"`
}

// BytesResult wraps operations that produce a rewritten buffer.
type BytesResult struct {
	Bytes []byte `json:"-"`
	Size  int    `json:"size"`
}

// SearchHit is one dex.search result.
type SearchHit struct {
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	Value string `json:"value"`
}

// XRefHit is one cross-reference site.
type XRefHit struct {
	CallerClass  string `json:"caller_class"`
	CallerMethod string `json:"caller_method"`
	Offset       uint32 `json:"offset"`
}

// ManifestSummary is the axml.parse result.
type ManifestSummary struct {
	Package     string   `json:"package"`
	VersionName string   `json:"version_name"`
	VersionCode int      `json:"version_code"`
	MinSDK      string   `json:"min_sdk"`
	TargetSDK   string   `json:"target_sdk"`
	Permissions []string `json:"permissions"`
	Activities  []string `json:"activities"`
	Services    []string `json:"services"`
	Receivers   []string `json:"receivers"`
	XML         string   `json:"xml"`
}

func (r *Request) input() ([]byte, error) {
	if r.Path != "" {
		data, err := os.ReadFile(r.Path)
		if err != nil {
			return nil, fmt.Errorf("ops: %w", err)
		}
		return data, nil
	}
	if r.Data == nil {
		return nil, fmt.Errorf("ops: %s needs a path or buffer", r.Op)
	}
	return r.Data, nil
}

// Execute dispatches a request. The result is a JSON-marshalable value;
// buffer-producing operations return *BytesResult.
func Execute(req *Request) (any, error) {
	switch {
	case strings.HasPrefix(req.Op, "dex."):
		return executeDex(req)
	case strings.HasPrefix(req.Op, "axml."):
		return executeAxml(req)
	case strings.HasPrefix(req.Op, "arsc."):
		return executeArsc(req)
	case strings.HasPrefix(req.Op, "apk."):
		return executeApk(req)
	default:
		return nil, fmt.Errorf("ops: unknown operation %q", req.Op)
	}
}

func executeDex(req *Request) (any, error) {
	data, err := req.input()
	if err != nil {
		return nil, err
	}

	// The class-level rewrites go through the builder rather than the
	// parser.
	switch req.Op {
	case "dex.modify_class":
		out, err := dex.ModifyClass(data, req.Class, req.Smali)
		if err != nil {
			return nil, err
		}
		return &BytesResult{Bytes: out, Size: len(out)}, nil
	case "dex.add_class":
		out, err := dex.AddClass(data, req.Smali)
		if err != nil {
			return nil, err
		}
		return &BytesResult{Bytes: out, Size: len(out)}, nil
	case "dex.delete_class":
		out, err := dex.DeleteClass(data, req.Class)
		if err != nil {
			return nil, err
		}
		return &BytesResult{Bytes: out, Size: len(out)}, nil
	}

	f, err := dex.Parse(data)
	if err != nil {
		return nil, err
	}

	switch req.Op {
	case "dex.info":
		return f.Info(), nil

	case "dex.list_classes":
		return listClasses(f, req.Filter, req.Offset, req.Limit), nil

	case "dex.search":
		return search(f, req)

	case "dex.class_smali":
		return dex.ClassSmali(f, req.Class)

	case "dex.method_smali":
		return dex.MethodSmali(f, req.Class, req.Method)

	case "dex.smali_to_java":
		text, err := dex.ClassSmali(f, req.Class)
		if err != nil {
			return nil, err
		}
		var conv smali2java.Converter
		return conv.Convert(text), nil

	case "dex.list_methods":
		var methods []string
		for i := range f.Methods {
			if f.TypeName(uint32(f.Methods[i].ClassIdx)) == req.Class {
				methods = append(methods, f.MethodSignature(uint32(i)))
			}
		}
		return methods, nil

	case "dex.list_fields":
		var fields []string
		for i := range f.Fields {
			if f.TypeName(uint32(f.Fields[i].ClassIdx)) == req.Class {
				fields = append(fields, f.FieldSignature(uint32(i)))
			}
		}
		return fields, nil

	case "dex.list_strings":
		var hits []SearchHit
		for i, s := range f.Strings {
			if req.Filter != "" && !strings.Contains(s, req.Filter) {
				continue
			}
			hits = append(hits, SearchHit{Kind: "string", Index: i, Value: s})
			if req.Limit > 0 && len(hits) >= req.Limit {
				break
			}
		}
		return hits, nil

	case "dex.xref_method":
		return toXRefHits(f.FindMethodXRefs(req.Class, req.Method)), nil

	case "dex.xref_field":
		return toXRefHits(f.FindFieldXRefs(req.Class, req.Field)), nil

	case "dex.assemble_smali":
		a := dex.NewAssembler(f)
		out, err := a.Assemble(req.Smali)
		if err != nil {
			return nil, err
		}
		return &BytesResult{Bytes: out, Size: len(out)}, nil

	default:
		return nil, fmt.Errorf("ops: unknown operation %q", req.Op)
	}
}

// listClasses pages through class descriptors. A non-empty filter ranks
// with fuzzy matching so "MainAct" finds Lcom/app/MainActivity;.
func listClasses(f *dex.File, filter string, offset, limit int) []string {
	names := make([]string, 0, len(f.Classes))
	for _, cd := range f.Classes {
		names = append(names, f.TypeName(cd.ClassIdx))
	}
	if filter != "" {
		matches := fuzzy.Find(filter, names)
		ranked := make([]string, len(matches))
		for i, m := range matches {
			ranked[i] = m.Str
		}
		names = ranked
	}
	if offset >= len(names) {
		return nil
	}
	names = names[offset:]
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names
}

func search(f *dex.File, req *Request) (any, error) {
	match := func(s string) bool {
		if req.CaseSensitive {
			return strings.Contains(s, req.Query)
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(req.Query))
	}
	maxHits := req.Max
	var hits []SearchHit
	add := func(kind string, index int, value string) bool {
		hits = append(hits, SearchHit{Kind: kind, Index: index, Value: value})
		return maxHits <= 0 || len(hits) < maxHits
	}

	switch req.Kind {
	case "string":
		for i, s := range f.Strings {
			if match(s) && !add("string", i, s) {
				break
			}
		}
	case "class":
		for i, cd := range f.Classes {
			if name := f.TypeName(cd.ClassIdx); match(name) && !add("class", i, name) {
				break
			}
		}
	case "method":
		for i := range f.Methods {
			if sig := f.MethodSignature(uint32(i)); match(sig) && !add("method", i, sig) {
				break
			}
		}
	case "field":
		for i := range f.Fields {
			if sig := f.FieldSignature(uint32(i)); match(sig) && !add("field", i, sig) {
				break
			}
		}
	default:
		return nil, fmt.Errorf("ops: unknown search kind %q", req.Kind)
	}
	return hits, nil
}

func toXRefHits(refs []dex.XRef) []XRefHit {
	hits := make([]XRefHit, len(refs))
	for i, r := range refs {
		hits[i] = XRefHit{CallerClass: r.CallerClass, CallerMethod: r.CallerMethod, Offset: r.Offset}
	}
	return hits
}

func executeAxml(req *Request) (any, error) {
	data, err := req.input()
	if err != nil {
		return nil, err
	}

	switch req.Op {
	case "axml.parse":
		doc, err := axml.Parse(data)
		if err != nil {
			return nil, err
		}
		return &ManifestSummary{
			Package:     doc.Package(),
			VersionName: doc.VersionName(),
			VersionCode: doc.VersionCode(),
			MinSDK:      doc.MinSDK(),
			TargetSDK:   doc.TargetSDK(),
			Permissions: doc.Permissions(),
			Activities:  doc.Activities(),
			Services:    doc.Services(),
			Receivers:   doc.Receivers(),
			XML:         doc.XML(),
		}, nil

	case "axml.edit":
		e, err := axml.NewEditor(data)
		if err != nil {
			return nil, err
		}
		if err := applyEdit(e, req); err != nil {
			return nil, err
		}
		out := e.Bytes()
		return &BytesResult{Bytes: out, Size: len(out)}, nil

	case "axml.search":
		e, err := axml.NewEditor(data)
		if err != nil {
			return nil, err
		}
		results := e.SearchByAttribute(req.Filter, req.Pattern)
		if req.Limit > 0 && len(results) > req.Limit {
			results = results[:req.Limit]
		}
		return results, nil

	default:
		return nil, fmt.Errorf("ops: unknown operation %q", req.Op)
	}
}

func applyEdit(e *axml.Editor, req *Request) error {
	switch req.Action {
	case "set_package":
		return e.SetPackage(req.Value)
	case "set_version_name":
		return e.SetVersionName(req.Value)
	case "set_version_code":
		code, err := atoi(req.Value)
		if err != nil {
			return err
		}
		return e.SetVersionCode(code)
	case "set_min_sdk":
		sdk, err := atoi(req.Value)
		if err != nil {
			return err
		}
		return e.SetMinSDK(sdk)
	case "set_target_sdk":
		sdk, err := atoi(req.Value)
		if err != nil {
			return err
		}
		return e.SetTargetSDK(sdk)
	case "add_permission":
		return e.AddPermission(req.Value)
	case "remove_permission":
		return e.RemovePermission(req.Value)
	case "add_activity":
		return e.AddActivity(req.Value, req.Exported)
	case "remove_activity":
		return e.RemoveActivity(req.Value)
	default:
		return fmt.Errorf("ops: unknown edit action %q", req.Action)
	}
}

func atoi(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("ops: %q is not an integer", s)
	}
	return n, nil
}

func executeArsc(req *Request) (any, error) {
	data, err := req.input()
	if err != nil {
		return nil, err
	}
	table, err := arsc.Parse(data)
	if err != nil {
		return nil, err
	}

	switch req.Op {
	case "arsc.parse":
		return table.Info(), nil
	case "arsc.search_strings":
		return table.SearchStrings(req.Pattern, req.Limit), nil
	case "arsc.search_resources":
		return table.SearchResources(req.Pattern, req.Type, req.Limit), nil
	default:
		return nil, fmt.Errorf("ops: unknown operation %q", req.Op)
	}
}

func executeApk(req *Request) (any, error) {
	switch req.Op {
	case "apk.info":
		if req.Path != "" {
			return apk.ParseInfo(req.Path)
		}
		data, err := req.input()
		if err != nil {
			return nil, err
		}
		return apk.InfoFromBytes(data)

	case "apk.list":
		c, err := openContainer(req)
		if err != nil {
			return nil, err
		}
		return c.List(), nil

	case "apk.extract":
		c, err := openContainer(req)
		if err != nil {
			return nil, err
		}
		content, err := c.Extract(req.Entry)
		if err != nil {
			return nil, err
		}
		return &BytesResult{Bytes: content, Size: len(content)}, nil

	case "apk.replace", "apk.add", "apk.delete":
		c, err := openContainer(req)
		if err != nil {
			return nil, err
		}
		switch req.Op {
		case "apk.replace":
			err = c.Replace(req.Entry, req.Payload)
		case "apk.add":
			err = c.Add(req.Entry, req.Payload)
		case "apk.delete":
			err = c.Delete(req.Entry)
		}
		if err != nil {
			return nil, err
		}
		out, err := c.Bytes()
		if err != nil {
			return nil, err
		}
		return &BytesResult{Bytes: out, Size: len(out)}, nil

	case "apk.remove_by_pattern":
		c, err := openContainer(req)
		if err != nil {
			return nil, err
		}
		if c.DeleteMatching(req.Pattern) == 0 {
			return nil, fmt.Errorf("ops: no entries match %q", req.Pattern)
		}
		out, err := c.Bytes()
		if err != nil {
			return nil, err
		}
		return &BytesResult{Bytes: out, Size: len(out)}, nil

	case "apk.save":
		c, err := openContainer(req)
		if err != nil {
			return nil, err
		}
		if req.Out == "" {
			return nil, fmt.Errorf("ops: apk.save needs an output path")
		}
		if err := c.Save(req.Out); err != nil {
			return nil, err
		}
		return map[string]string{"saved": req.Out}, nil

	default:
		return nil, fmt.Errorf("ops: unknown operation %q", req.Op)
	}
}

func openContainer(req *Request) (*apk.Container, error) {
	data, err := req.input()
	if err != nil {
		return nil, err
	}
	return apk.OpenBytes(data)
}
