package output

import (
	"fmt"
	"os"

	"github.com/bimmerbailey/lastseen/internal/parser"
	"golang.org/x/term"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
)

// ColorMode determines when to use colored output.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Auto-detect based on TTY
	ColorAlways                  // Always use colors
	ColorNever                   // Never use colors
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// shouldColorize determines if output should be colorized based on mode and TTY detection.
func shouldColorize(mode ColorMode, w interface{}) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	case ColorAuto:
		if f, ok := w.(*os.File); ok {
			return isTerminal(f)
		}
		return false
	}
	return false
}

// FormatRecord renders one record as a report line. With colorize the
// identifier is bold and the timestamp dimmed.
func FormatRecord(r parser.Record, colorize bool) string {
	if !colorize {
		return fmt.Sprintf("UID: %s (slug: %s) TS: %d", r.Identifier, r.Slug, r.Timestamp)
	}
	return fmt.Sprintf("UID: %s%s%s (slug: %s) TS: %s%d%s",
		colorBold, r.Identifier, colorReset,
		r.Slug,
		colorGray, r.Timestamp, colorReset)
}
