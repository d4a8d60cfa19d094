package reducer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bimmerbailey/lastseen/internal/config"
	"github.com/bimmerbailey/lastseen/internal/loader"
	"github.com/bimmerbailey/lastseen/internal/parser"
	"github.com/klauspost/compress/gzip"
)

func accessLine(ts, id, slug string) string {
	return `10.0.0.1 - - [` + ts + `] "GET /observabilityapp/d/` + id + `/` + slug + ` HTTP/1.1" 200 512`
}

func writeLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func writeGzipLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(strings.Join(lines, "\n"))); err != nil {
		t.Fatalf("gzip Write() error = %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip Close() error = %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func newTestReducer(t *testing.T, opts ...Option) *Reducer {
	t.Helper()
	p, err := parser.New()
	if err != nil {
		t.Fatalf("parser.New() error = %v", err)
	}
	return New(p, opts...)
}

func TestReduceSlugStickiness(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.log", accessLine("05/Mar/2024:12:00:00 +0000", "AAABBBCCC", "foo"))
	writeLog(t, dir, "b.log", accessLine("05/Mar/2024:12:10:00 +0000", "AAABBBCCC", "bar"))

	r := newTestReducer(t)
	records, summary, err := r.Reduce(dir)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}

	want := parser.Record{Identifier: "AAABBBCCC", Slug: "foo", Timestamp: 1709640600}
	if len(records) != 1 || records["AAABBBCCC"] != want {
		t.Fatalf("records = %+v, want {AAABBBCCC: %+v}", records, want)
	}
	if summary.Files != 2 || summary.Identifiers != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if r.State() != StateDone {
		t.Errorf("State() = %v, want done", r.State())
	}
}

func TestReduceReplaceMode(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.log", accessLine("05/Mar/2024:12:00:00 +0000", "AAABBBCCC", "foo"))
	writeLog(t, dir, "b.log", accessLine("05/Mar/2024:12:10:00 +0000", "AAABBBCCC", "bar"))

	r := newTestReducer(t, WithMergeMode(config.MergeReplace))
	records, _, err := r.Reduce(dir)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}

	want := parser.Record{Identifier: "AAABBBCCC", Slug: "bar", Timestamp: 1709640600}
	if records["AAABBBCCC"] != want {
		t.Errorf("records[AAABBBCCC] = %+v, want %+v", records["AAABBBCCC"], want)
	}
}

func TestReduceKeepsMaximumTimestamp(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.log",
		accessLine("05/Mar/2024:12:30:00 +0000", "AAABBBCCC", "foo"),
		accessLine("05/Mar/2024:12:00:00 +0000", "DDDEEEFFF", "bar"),
	)
	writeGzipLog(t, dir, "b.log.gz",
		accessLine("05/Mar/2024:12:10:00 +0000", "AAABBBCCC", "foo"),
		accessLine("05/Mar/2024:12:20:00 +0000", "DDDEEEFFF", "bar"),
	)
	writeLog(t, dir, "c.log",
		accessLine("05/Mar/2024:12:20:00 +0000", "DDDEEEFFF", "baz"),
		accessLine("05/Mar/2024:12:00:00 +0000", "GGGHHHIII", "qux"),
	)

	r := newTestReducer(t)
	records, summary, err := r.Reduce(dir)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}

	want := map[string]parser.Record{
		"AAABBBCCC": {Identifier: "AAABBBCCC", Slug: "foo", Timestamp: 1709641800},
		"DDDEEEFFF": {Identifier: "DDDEEEFFF", Slug: "bar", Timestamp: 1709641200},
		"GGGHHHIII": {Identifier: "GGGHHHIII", Slug: "qux", Timestamp: 1709640000},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for id, rec := range want {
		if records[id] != rec {
			t.Errorf("records[%s] = %+v, want %+v", id, records[id], rec)
		}
	}

	wantTotals := parser.Stats{Lines: 6, Matched: 6, Records: 6}
	if summary.Files != 3 || summary.Totals != wantTotals {
		t.Errorf("summary = %+v", summary)
	}
}

func TestReduceTimestampFailureAbortsRun(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.log", accessLine("05/Mar/2024:12:00:00 +0000", "AAABBBCCC", "foo"))
	writeLog(t, dir, "b.log", accessLine("not-a-timestamp", "DDDEEEFFF", "bar"))
	writeLog(t, dir, "c.log", accessLine("05/Mar/2024:12:00:00 +0000", "GGGHHHIII", "qux"))

	r := newTestReducer(t)
	records, _, err := r.Reduce(dir)
	if !errors.Is(err, parser.ErrTimestampParse) {
		t.Fatalf("Reduce() error = %v, want ErrTimestampParse", err)
	}
	if records != nil {
		t.Errorf("expected no records, got %+v", records)
	}
	if r.State() != StateFailed {
		t.Errorf("State() = %v, want failed", r.State())
	}
}

func TestReduceInvalidIdentifiersAreSkipped(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.log",
		accessLine("05/Mar/2024:12:00:00 +0000", "TOOSHORT", "foo"),
		accessLine("bad timestamp too", "WAYTOOLONGID", "foo"),
		accessLine("05/Mar/2024:12:00:00 +0000", "AAABBBCCC", "foo"),
	)

	r := newTestReducer(t)
	records, summary, err := r.Reduce(dir)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1: %+v", len(records), records)
	}
	for id := range records {
		if len(id) != 9 {
			t.Errorf("identifier %q has length %d", id, len(id))
		}
	}
	if summary.Totals.Invalid != 2 {
		t.Errorf("Invalid = %d, want 2", summary.Totals.Invalid)
	}
}

func TestReduceErrors(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		r := newTestReducer(t)
		_, _, err := r.Reduce(filepath.Join(t.TempDir(), "nope"))
		if !errors.Is(err, ErrDirectoryList) {
			t.Fatalf("Reduce() error = %v, want ErrDirectoryList", err)
		}
		if r.State() != StateFailed {
			t.Errorf("State() = %v, want failed", r.State())
		}
	})

	t.Run("subdirectory", func(t *testing.T) {
		dir := t.TempDir()
		writeLog(t, dir, "a.log", accessLine("05/Mar/2024:12:00:00 +0000", "AAABBBCCC", "foo"))
		if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
			t.Fatalf("Mkdir() error = %v", err)
		}

		r := newTestReducer(t)
		_, _, err := r.Reduce(dir)
		if !errors.Is(err, loader.ErrIO) {
			t.Fatalf("Reduce() error = %v, want loader.ErrIO", err)
		}
	})

	t.Run("binary file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "core"), []byte{0xfe, 0xed, 0xfa, 0xce}, 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		r := newTestReducer(t)
		_, _, err := r.Reduce(dir)
		if !errors.Is(err, loader.ErrDecode) {
			t.Fatalf("Reduce() error = %v, want loader.ErrDecode", err)
		}
	})
}

func TestReduceInclude(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "access.log", accessLine("05/Mar/2024:12:00:00 +0000", "AAABBBCCC", "foo"))
	writeLog(t, dir, "error.log", "[Tue Mar 05 12:00:00 2024] [error] nope")
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	r := newTestReducer(t, WithInclude([]string{"access.log*"}))
	records, summary, err := r.Reduce(dir)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
	if summary.Files != 1 || summary.Skipped != 2 {
		t.Errorf("summary = %+v, want 1 file and 2 skipped", summary)
	}
}

func TestReduceBadIncludePatternDiscardsSummary(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.log", accessLine("05/Mar/2024:12:00:00 +0000", "AAABBBCCC", "foo"))
	writeLog(t, dir, "b.log", accessLine("05/Mar/2024:12:00:05 +0000", "DDDEEEFFF", "bar"))

	r := newTestReducer(t, WithInclude([]string{"a.log", "b["}))
	records, summary, err := r.Reduce(dir)
	if err == nil {
		t.Fatal("expected an error for a malformed include pattern")
	}
	if records != nil {
		t.Errorf("records = %v, want nil", records)
	}
	if summary != (Summary{}) {
		t.Errorf("summary = %+v, want zero value", summary)
	}
}

func TestReduceEmptyDirectory(t *testing.T) {
	r := newTestReducer(t)
	records, summary, err := r.Reduce(t.TempDir())
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if len(records) != 0 || summary.Files != 0 {
		t.Errorf("records = %+v, summary = %+v", records, summary)
	}
}

type stubExtractor map[string]map[string]parser.Record

func (s stubExtractor) ExtractFile(path string) (map[string]parser.Record, parser.Stats, error) {
	return s[filepath.Base(path)], parser.Stats{Records: len(s[filepath.Base(path)])}, nil
}

func TestReduceWithExtractor(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "1")
	writeLog(t, dir, "2")

	ext := stubExtractor{
		"1": {"k": {Identifier: "k", Slug: "first", Timestamp: 100}},
		"2": {"k": {Identifier: "k", Slug: "second", Timestamp: 100}},
	}

	records, _, err := New(ext).Reduce(dir)
	if err != nil {
		t.Fatalf("Reduce() error = %v", err)
	}
	if got := records["k"].Slug; got != "first" {
		t.Errorf("equal timestamps must not overwrite, slug = %q", got)
	}
}

func TestMerge(t *testing.T) {
	base := func() map[string]parser.Record {
		return map[string]parser.Record{
			"k": {Identifier: "k", Slug: "a", Timestamp: 100},
		}
	}

	tests := []struct {
		name string
		mode config.MergeMode
		in   parser.Record
		want parser.Record
	}{
		{"newer timestamp-only", config.MergeTimestampOnly, parser.Record{Identifier: "k", Slug: "b", Timestamp: 200}, parser.Record{Identifier: "k", Slug: "a", Timestamp: 200}},
		{"newer replace", config.MergeReplace, parser.Record{Identifier: "k", Slug: "b", Timestamp: 200}, parser.Record{Identifier: "k", Slug: "b", Timestamp: 200}},
		{"equal timestamp-only", config.MergeTimestampOnly, parser.Record{Identifier: "k", Slug: "b", Timestamp: 100}, parser.Record{Identifier: "k", Slug: "a", Timestamp: 100}},
		{"equal replace", config.MergeReplace, parser.Record{Identifier: "k", Slug: "b", Timestamp: 100}, parser.Record{Identifier: "k", Slug: "a", Timestamp: 100}},
		{"older replace", config.MergeReplace, parser.Record{Identifier: "k", Slug: "b", Timestamp: 50}, parser.Record{Identifier: "k", Slug: "a", Timestamp: 100}},
		{"zero mode behaves as timestamp-only", "", parser.Record{Identifier: "k", Slug: "b", Timestamp: 200}, parser.Record{Identifier: "k", Slug: "a", Timestamp: 200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := base()
			Merge(dst, map[string]parser.Record{"k": tt.in}, tt.mode)
			if dst["k"] != tt.want {
				t.Errorf("Merge() = %+v, want %+v", dst["k"], tt.want)
			}
		})
	}

	t.Run("absent key inserted", func(t *testing.T) {
		dst := base()
		in := parser.Record{Identifier: "n", Slug: "new", Timestamp: 1}
		Merge(dst, map[string]parser.Record{"n": in}, config.MergeTimestampOnly)
		if dst["n"] != in || len(dst) != 2 {
			t.Errorf("Merge() = %+v", dst)
		}
	})
}

func TestSelect(t *testing.T) {
	records := map[string]parser.Record{
		"CCC": {Identifier: "CCC", Slug: "c", Timestamp: 300},
		"AAA": {Identifier: "AAA", Slug: "a", Timestamp: 100},
		"BBB": {Identifier: "BBB", Slug: "b", Timestamp: 200},
	}

	all := Select(records, FilterOptions{})
	if len(all) != 3 || all[0].Identifier != "AAA" || all[2].Identifier != "CCC" {
		t.Fatalf("Select() = %+v, want sorted by identifier", all)
	}

	got := Select(records, FilterOptions{Since: time.Unix(150, 0), Until: time.Unix(300, 0)})
	if len(got) != 2 || got[0].Identifier != "BBB" || got[1].Identifier != "CCC" {
		t.Errorf("Select(150..300) = %+v", got)
	}

	if got := Select(nil, FilterOptions{}); len(got) != 0 {
		t.Errorf("Select(nil) = %+v", got)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStart, "start"},
		{StateListing, "listing"},
		{StateExtracting, "extracting"},
		{StateDone, "done"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
