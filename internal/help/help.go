// Package help provides the colorful CLI help output.
package help

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aetherlink/dexedit/internal/ui"
)

// Color palette: green, dark purple, greyscale
var (
	green    = lipgloss.Color("35")
	purple   = lipgloss.Color("54")
	grey     = lipgloss.Color("245")
	greyDark = lipgloss.Color("242")
	white    = lipgloss.Color("252")
)

func renderGreen(s string) string {
	return lipgloss.NewStyle().Foreground(green).Render(s)
}

func renderPurpleBold(s string) string {
	return lipgloss.NewStyle().Foreground(purple).Bold(true).Render(s)
}

func renderGrey(s string) string {
	return lipgloss.NewStyle().Foreground(grey).Render(s)
}

func renderDim(s string) string {
	return lipgloss.NewStyle().Foreground(greyDark).Render(s)
}

func renderWhite(s string) string {
	return lipgloss.NewStyle().Foreground(white).Render(s)
}

type opGroup struct {
	title string
	ops   [][2]string
}

var groups = []opGroup{
	{"DEX bytecode", [][2]string{
		{"dex.info", "pool sizes and header summary"},
		{"dex.list_classes", "class descriptors, fuzzy -filter, -offset/-limit"},
		{"dex.list_methods", "method signatures of -class"},
		{"dex.list_fields", "field signatures of -class"},
		{"dex.list_strings", "string pool, substring -filter"},
		{"dex.search", "-query across -kind string|class|method|field"},
		{"dex.class_smali", "disassemble -class"},
		{"dex.method_smali", "disassemble -class -method"},
		{"dex.smali_to_java", "Java-like pseudocode for -class"},
		{"dex.xref_method", "call sites of -class -method"},
		{"dex.xref_field", "access sites of -class -field"},
		{"dex.modify_class", "replace -class from -smali-file, write -o"},
		{"dex.add_class", "append a class from -smali-file, write -o"},
		{"dex.delete_class", "drop -class, write -o"},
		{"dex.assemble_smali", "assemble -smali text to bytecode"},
	}},
	{"Binary manifest (AXML)", [][2]string{
		{"axml.parse", "package, versions, SDKs, permissions, components"},
		{"axml.edit", "-action set_package|set_version_name|set_version_code|set_min_sdk|set_target_sdk|add_permission|remove_permission|add_activity|remove_activity -value ..."},
		{"axml.search", "attributes by -filter name and -pattern value"},
	}},
	{"Resource table (ARSC)", [][2]string{
		{"arsc.parse", "package and type summary"},
		{"arsc.search_strings", "global pool by -pattern"},
		{"arsc.search_resources", "entries by -pattern, optional -type"},
	}},
	{"APK container", [][2]string{
		{"apk.info", "manifest summary, architectures, certificate"},
		{"apk.list", "entry names"},
		{"apk.extract", "entry content by -entry, write -o"},
		{"apk.replace", "swap -entry with -payload, write -o"},
		{"apk.add", "add -entry from -payload, write -o"},
		{"apk.delete", "remove -entry, write -o"},
		{"apk.remove_by_pattern", "remove every entry containing -pattern, write -o"},
		{"apk.save", "repack the archive to -o (aligned, policy-compressed)"},
	}},
}

// Print writes the full styled help page to stdout.
func Print() {
	var b strings.Builder

	if ui.NoColor {
		printPlain(&b)
	} else {
		b.WriteString(renderPurpleBold("dexedit") + renderGrey(" — Android binary container toolkit") + "\n\n")
		b.WriteString(renderWhite("Usage:") + "\n")
		b.WriteString("  " + renderGreen("dexedit <operation> [flags] <input>") + "\n")
		b.WriteString("  " + renderGreen("dexedit run <job.yaml>") + renderDim("  # scripted batch of operations") + "\n\n")
		for _, g := range groups {
			b.WriteString(renderWhite(g.title) + "\n")
			for _, op := range g.ops {
				b.WriteString(fmt.Sprintf("  %s  %s\n",
					renderGreen(fmt.Sprintf("%-22s", op[0])), renderGrey(op[1])))
			}
			b.WriteString("\n")
		}
		b.WriteString(renderDim("Run dexedit with no arguments for the flag reference.") + "\n")
	}

	fmt.Fprint(os.Stdout, b.String())
}

func printPlain(b *strings.Builder) {
	b.WriteString("dexedit - Android binary container toolkit\n\n")
	b.WriteString("Usage:\n")
	b.WriteString("  dexedit <operation> [flags] <input>\n")
	b.WriteString("  dexedit run <job.yaml>\n\n")
	for _, g := range groups {
		b.WriteString(g.title + "\n")
		for _, op := range g.ops {
			fmt.Fprintf(b, "  %-22s %s\n", op[0], op[1])
		}
		b.WriteString("\n")
	}
}
