// Package cli handles command-line interface concerns: flag parsing and
// signal handling.
package cli

import (
	"flag"
	"fmt"
	"os"
)

// Options holds the parsed command line. The first positional argument is
// the operation name (or "run" for a job file); the second is the input
// path.
type Options struct {
	// Global flags
	Verbose bool
	NoColor bool
	Version bool
	Help    bool
	JSON    bool

	// Operation arguments
	Class         string
	Method        string
	Field         string
	Smali         string
	SmaliFile     string
	Query         string
	Kind          string
	Filter        string
	Pattern       string
	Type          string
	CaseSensitive bool
	Offset        int
	Limit         int
	Max           int
	Action        string
	Value         string
	Exported      bool
	Entry         string
	PayloadFile   string

	// Output path for rewritten buffers.
	Output string

	// Interactive, when false, skips the interactive selector; an ambiguous
	// class fragment then resolves to the best-ranked candidate.
	Interactive bool
}

// ParseFlags parses os.Args and returns the options plus the positional
// arguments (operation, input path, ...).
func ParseFlags() (*Options, []string) {
	opts := &Options{}

	flag.BoolVar(&opts.Verbose, "v", false, "verbose output")
	flag.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	flag.BoolVar(&opts.Version, "version", false, "print version and exit")
	flag.BoolVar(&opts.Help, "h", false, "show help")
	flag.BoolVar(&opts.JSON, "json", false, "print results as JSON")

	flag.StringVar(&opts.Class, "class", "", "class descriptor or name fragment")
	flag.StringVar(&opts.Method, "method", "", "method name")
	flag.StringVar(&opts.Field, "field", "", "field name")
	flag.StringVar(&opts.Smali, "smali", "", "smali text")
	flag.StringVar(&opts.SmaliFile, "smali-file", "", "read smali text from file")
	flag.StringVar(&opts.Query, "query", "", "search query")
	flag.StringVar(&opts.Kind, "kind", "string", "search kind: string, class, method, field")
	flag.StringVar(&opts.Filter, "filter", "", "listing filter")
	flag.StringVar(&opts.Pattern, "pattern", "", "search pattern")
	flag.StringVar(&opts.Type, "type", "", "resource type filter")
	flag.BoolVar(&opts.CaseSensitive, "case-sensitive", false, "case-sensitive search")
	flag.IntVar(&opts.Offset, "offset", 0, "listing offset")
	flag.IntVar(&opts.Limit, "limit", 0, "listing limit (0 = all)")
	flag.IntVar(&opts.Max, "max", 0, "maximum search results (0 = all)")
	flag.StringVar(&opts.Action, "action", "", "edit action")
	flag.StringVar(&opts.Value, "value", "", "edit value")
	flag.BoolVar(&opts.Exported, "exported", false, "mark added activity exported")
	flag.StringVar(&opts.Entry, "entry", "", "archive entry name")
	flag.StringVar(&opts.PayloadFile, "payload", "", "file content for entry add/replace")
	flag.StringVar(&opts.Output, "o", "", "output path for rewritten buffers")
	flag.BoolVar(&opts.Interactive, "interactive", true, "ask when a class fragment is ambiguous")

	flag.Usage = func() { PrintUsage(os.Stderr) }
	flag.Parse()

	return opts, flag.Args()
}

// PrintUsage writes the command synopsis.
func PrintUsage(w *os.File) {
	fmt.Fprint(w, `Usage: dexedit <operation> [flags] <input>
       dexedit run <job.yaml>

Operations:
  dex.info, dex.list_classes, dex.list_methods, dex.list_fields,
  dex.list_strings, dex.search, dex.class_smali, dex.method_smali,
  dex.smali_to_java, dex.xref_method, dex.xref_field,
  dex.modify_class, dex.add_class, dex.delete_class, dex.assemble_smali

  axml.parse, axml.edit, axml.search

  arsc.parse, arsc.search_strings, arsc.search_resources

  apk.info, apk.list, apk.extract, apk.replace, apk.add, apk.delete,
  apk.remove_by_pattern, apk.save

Flags:
`)
	flag.PrintDefaults()
}
