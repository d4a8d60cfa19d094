// Package output renders extracted records as text, JSON, JSON lines,
// table, or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bimmerbailey/lastseen/internal/parser"
	"gopkg.in/yaml.v3"
)

// Format represents an output format type.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat converts a string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "jsonl", "ndjson":
		return FormatJSONL
	case "table":
		return FormatTable
	case "yaml", "yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// Writer handles writing formatted output.
type Writer struct {
	w         io.Writer
	format    Format
	colorMode ColorMode
}

// New creates a new output Writer. Colors are off until WithColor is used.
func New(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format, colorMode: ColorNever}
}

// WithColor sets when text output is colorized.
func (wr *Writer) WithColor(mode ColorMode) *Writer {
	wr.colorMode = mode
	return wr
}

// WriteRecords outputs records in the configured format, in the order given.
func (wr *Writer) WriteRecords(records []parser.Record) error {
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(records)
	case FormatJSONL:
		return wr.writeJSONLines(records)
	case FormatTable:
		return wr.writeTable(records)
	case FormatYAML:
		return wr.WriteYAML(records)
	default:
		return wr.writeText(records)
	}
}

// WriteJSON outputs any value as indented JSON.
func (wr *Writer) WriteJSON(v interface{}) error {
	enc := json.NewEncoder(wr.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteYAML outputs any value as a YAML document.
func (wr *Writer) WriteYAML(v interface{}) error {
	enc := yaml.NewEncoder(wr.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (wr *Writer) writeJSONLines(records []parser.Record) error {
	enc := json.NewEncoder(wr.w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) writeText(records []parser.Record) error {
	colorize := shouldColorize(wr.colorMode, wr.w)
	for _, r := range records {
		if _, err := fmt.Fprintln(wr.w, FormatRecord(r, colorize)); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) writeTable(records []parser.Record) error {
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTIFIER\tSLUG\tTIMESTAMP\tLAST SEEN (UTC)")
	fmt.Fprintln(tw, "----------\t----\t---------\t---------------")

	for _, r := range records {
		slug := truncate(r.Slug, 60)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Identifier, slug, r.Timestamp, r.Time().Format("2006-01-02 15:04:05"))
	}

	return tw.Flush()
}

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
