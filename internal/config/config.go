// Package config handles YAML job-file parsing and validation. A job file
// scripts a batch of operations against one input, the way one-off edits
// are automated in CI.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aetherlink/dexedit/internal/ops"
)

// Operation is one scripted step. The fields mirror the operation
// surface; SmaliFile loads the smali text from a file next to the job.
type Operation struct {
	Op string `yaml:"op"`

	Class  string `yaml:"class,omitempty"`
	Method string `yaml:"method,omitempty"`
	Field  string `yaml:"field,omitempty"`

	Smali     string `yaml:"smali,omitempty"`
	SmaliFile string `yaml:"smali_file,omitempty"`

	Query         string `yaml:"query,omitempty"`
	Kind          string `yaml:"kind,omitempty"`
	Filter        string `yaml:"filter,omitempty"`
	Pattern       string `yaml:"pattern,omitempty"`
	Type          string `yaml:"type,omitempty"`
	CaseSensitive bool   `yaml:"case_sensitive,omitempty"`
	Offset        int    `yaml:"offset,omitempty"`
	Limit         int    `yaml:"limit,omitempty"`
	Max           int    `yaml:"max,omitempty"`

	Action   string `yaml:"action,omitempty"`
	Value    string `yaml:"value,omitempty"`
	Exported bool   `yaml:"exported,omitempty"`

	Entry string `yaml:"entry,omitempty"`
	Out   string `yaml:"out,omitempty"`
}

// Job is a dexedit.yaml file: an input, an optional output for the final
// rewritten buffer, and the operations to run in order.
type Job struct {
	Input      string      `yaml:"input"`
	Output     string      `yaml:"output,omitempty"`
	Operations []Operation `yaml:"operations"`

	// BaseDir is the directory containing the job file, for resolving
	// relative paths. Set by Load, not parsed from YAML.
	BaseDir string `yaml:"-"`
}

// Load reads and parses a job file.
func Load(path string) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	job, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	job.BaseDir = filepath.Dir(path)
	return job, nil
}

// Parse decodes a job from YAML.
func Parse(r io.Reader) (*Job, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Validate checks the job is runnable.
func (j *Job) Validate() error {
	if j.Input == "" {
		return fmt.Errorf("config: input is required")
	}
	if len(j.Operations) == 0 {
		return fmt.Errorf("config: at least one operation is required")
	}
	for i, op := range j.Operations {
		if op.Op == "" {
			return fmt.Errorf("config: operation %d has no op", i)
		}
		if op.Smali != "" && op.SmaliFile != "" {
			return fmt.Errorf("config: operation %d sets both smali and smali_file", i)
		}
	}
	return nil
}

// ResolvePath resolves a possibly-relative path against the job's
// directory.
func (j *Job) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(j.BaseDir, path)
}

// Request materializes one operation into an executable request. data is
// the current working buffer: the input, or the output of the previous
// rewriting step.
func (j *Job) Request(op Operation, data []byte) (*ops.Request, error) {
	smali := op.Smali
	if op.SmaliFile != "" {
		raw, err := os.ReadFile(j.ResolvePath(op.SmaliFile))
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		smali = string(raw)
	}
	return &ops.Request{
		Op:            op.Op,
		Data:          data,
		Class:         op.Class,
		Method:        op.Method,
		Field:         op.Field,
		Smali:         smali,
		Query:         op.Query,
		Kind:          op.Kind,
		Filter:        op.Filter,
		Pattern:       op.Pattern,
		Type:          op.Type,
		CaseSensitive: op.CaseSensitive,
		Offset:        op.Offset,
		Limit:         op.Limit,
		Max:           op.Max,
		Action:        op.Action,
		Value:         op.Value,
		Exported:      op.Exported,
		Entry:         op.Entry,
		Out:           j.ResolvePath(op.Out),
	}, nil
}
