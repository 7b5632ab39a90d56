// Command dexedit reads, analyzes and rewrites the binary containers of
// Android packages: DEX bytecode, compiled manifests (AXML), resource
// tables (ARSC) and the APK archive itself.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aetherlink/dexedit/internal/cli"
	"github.com/aetherlink/dexedit/internal/config"
	"github.com/aetherlink/dexedit/internal/dex"
	"github.com/aetherlink/dexedit/internal/help"
	"github.com/aetherlink/dexedit/internal/ops"
	"github.com/aetherlink/dexedit/internal/picker"
	"github.com/aetherlink/dexedit/internal/ui"
)

var version = "dev"

func main() {
	sigHandler := cli.NewSignalHandler()
	defer sigHandler.Stop()

	os.Exit(run())
}

func run() int {
	opts, args := cli.ParseFlags()

	if opts.Help {
		help.Print()
		return 0
	}
	if opts.Version {
		fmt.Printf("dexedit version %s\n", version)
		return 0
	}
	if opts.NoColor {
		ui.SetNoColor(true)
	}
	if len(args) == 0 {
		cli.PrintUsage(os.Stderr)
		return 1
	}

	var err error
	if args[0] == "run" {
		err = runJob(opts, args[1:])
	} else {
		err = runOp(opts, args)
	}
	if err != nil {
		if opts.JSON {
			out, _ := json.Marshal(map[string]string{"error": err.Error()})
			fmt.Println(string(out))
		} else {
			ui.Error("%v", err)
		}
		return 1
	}
	return 0
}

// runOp executes a single operation from flags.
func runOp(opts *cli.Options, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: dexedit %s [flags] <input>", args[0])
	}
	req, err := buildRequest(opts, args[0], args[1])
	if err != nil {
		return err
	}

	// Loose class fragments resolve against the classes actually in the
	// DEX before the operation runs.
	if strings.HasPrefix(req.Op, "dex.") && req.Class != "" && !strings.HasPrefix(req.Class, "L") {
		resolved, err := resolveClass(req, opts.Interactive)
		if err != nil {
			return err
		}
		req.Class = resolved
	}

	result, err := ops.Execute(req)
	if err != nil {
		return err
	}
	return emit(opts, result)
}

func buildRequest(opts *cli.Options, op, input string) (*ops.Request, error) {
	req := &ops.Request{
		Op:            op,
		Path:          input,
		Class:         opts.Class,
		Method:        opts.Method,
		Field:         opts.Field,
		Smali:         opts.Smali,
		Query:         opts.Query,
		Kind:          opts.Kind,
		Filter:        opts.Filter,
		Pattern:       opts.Pattern,
		Type:          opts.Type,
		CaseSensitive: opts.CaseSensitive,
		Offset:        opts.Offset,
		Limit:         opts.Limit,
		Max:           opts.Max,
		Action:        opts.Action,
		Value:         opts.Value,
		Exported:      opts.Exported,
		Entry:         opts.Entry,
		Out:           opts.Output,
	}
	if opts.SmaliFile != "" {
		raw, err := os.ReadFile(opts.SmaliFile)
		if err != nil {
			return nil, err
		}
		req.Smali = string(raw)
	}
	if opts.PayloadFile != "" {
		raw, err := os.ReadFile(opts.PayloadFile)
		if err != nil {
			return nil, err
		}
		req.Payload = raw
	}
	return req, nil
}

// resolveClass turns a fragment like "MainActivity" into a full type
// descriptor by picking among the DEX's classes.
func resolveClass(req *ops.Request, interactive bool) (string, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return "", err
	}
	f, err := dex.Parse(data)
	if err != nil {
		return "", err
	}
	candidates := make([]string, 0, len(f.Classes))
	for _, cd := range f.Classes {
		candidates = append(candidates, f.TypeName(cd.ClassIdx))
	}
	return picker.Pick("Which class?", req.Class, candidates, interactive)
}

// runJob executes a job file, threading rewritten buffers through the
// operation list.
func runJob(opts *cli.Options, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dexedit run <job.yaml>")
	}
	job, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(job.ResolvePath(job.Input))
	if err != nil {
		return err
	}

	for i, op := range job.Operations {
		req, err := job.Request(op, data)
		if err != nil {
			return err
		}
		result, err := ops.Execute(req)
		if err != nil {
			return fmt.Errorf("operation %d (%s): %w", i+1, op.Op, err)
		}
		if br, ok := result.(*ops.BytesResult); ok {
			data = br.Bytes
			ui.Success("%s: %d bytes", op.Op, br.Size)
			continue
		}
		if err := emit(opts, result); err != nil {
			return err
		}
	}

	if job.Output != "" {
		out := job.ResolvePath(job.Output)
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		ui.Success("wrote %s", out)
	}
	return nil
}

// emit prints a structured result, or writes buffer results to -o.
func emit(opts *cli.Options, result any) error {
	if br, ok := result.(*ops.BytesResult); ok {
		if opts.Output == "" {
			return fmt.Errorf("operation produced %d bytes; use -o to write them", br.Size)
		}
		if err := os.WriteFile(opts.Output, br.Bytes, 0o644); err != nil {
			return err
		}
		ui.Success("wrote %s (%d bytes)", opts.Output, br.Size)
		return nil
	}

	if s, ok := result.(string); ok && !opts.JSON {
		fmt.Print(s)
		if !strings.HasSuffix(s, "\n") {
			fmt.Println()
		}
		return nil
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
