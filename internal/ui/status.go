package ui

import (
	"fmt"
	"os"
)

// Success prints a success line to stderr.
func Success(format string, args ...any) {
	fmt.Fprintln(os.Stderr, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Error prints an error line to stderr.
func Error(format string, args ...any) {
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning line to stderr.
func Warn(format string, args ...any) {
	fmt.Fprintln(os.Stderr, WarningStyle.Render("! "+fmt.Sprintf(format, args...)))
}

// Info prints an informational line to stderr.
func Info(format string, args ...any) {
	fmt.Fprintln(os.Stderr, InfoStyle.Render(fmt.Sprintf(format, args...)))
}

// Dim prints a de-emphasized line to stderr.
func Dim(format string, args ...any) {
	fmt.Fprintln(os.Stderr, DimStyle.Render(fmt.Sprintf(format, args...)))
}
