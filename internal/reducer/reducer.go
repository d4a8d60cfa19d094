// Package reducer folds the per-file records of a log directory into a
// single record set keyed by identifier.
package reducer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bimmerbailey/lastseen/internal/config"
	"github.com/bimmerbailey/lastseen/internal/parser"
)

// ErrDirectoryList is returned when the input directory cannot be listed.
var ErrDirectoryList = errors.New("failed to open directory")

// State tracks the progress of a single Reduce call.
type State int

const (
	StateStart State = iota
	StateListing
	StateExtracting
	StateDone
	StateFailed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateListing:
		return "listing"
	case StateExtracting:
		return "extracting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Summary describes a completed run.
type Summary struct {
	Files       int          `json:"files"`
	Skipped     int          `json:"skipped"`
	Totals      parser.Stats `json:"totals"`
	Identifiers int          `json:"identifiers"`
}

// Extractor produces the records of a single file.
type Extractor interface {
	ExtractFile(path string) (map[string]parser.Record, parser.Stats, error)
}

// Reducer walks a directory and merges the records of every file in it.
type Reducer struct {
	extractor Extractor
	merge     config.MergeMode
	include   []string
	logger    *slog.Logger
	state     State
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithMergeMode selects how newer records update existing entries.
// Default is config.MergeTimestampOnly.
func WithMergeMode(mode config.MergeMode) Option {
	return func(r *Reducer) {
		r.merge = mode
	}
}

// WithInclude limits the directory entries that are read to names matching
// one of the glob patterns.
func WithInclude(patterns []string) Option {
	return func(r *Reducer) {
		r.include = patterns
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reducer) {
		r.logger = logger
	}
}

// New creates a Reducer that extracts files with ext.
func New(ext Extractor, opts ...Option) *Reducer {
	r := &Reducer{
		extractor: ext,
		merge:     config.MergeTimestampOnly,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns where the last Reduce call got to.
func (r *Reducer) State() State {
	return r.state
}

// Reduce extracts every entry of dir in listing order and merges the results.
// Subdirectories are not skipped; reading one fails the run. On any error
// nothing accumulated so far is returned.
func (r *Reducer) Reduce(dir string) (map[string]parser.Record, Summary, error) {
	r.state = StateListing
	var summary Summary

	entries, err := os.ReadDir(dir)
	if err != nil {
		r.state = StateFailed
		return nil, Summary{}, fmt.Errorf("%w: %w", ErrDirectoryList, err)
	}

	final := make(map[string]parser.Record)
	r.state = StateExtracting

	for _, entry := range entries {
		ok, err := config.MatchAny(r.include, entry.Name())
		if err != nil {
			r.state = StateFailed
			return nil, Summary{}, fmt.Errorf("invalid include pattern: %w", err)
		}
		if !ok {
			summary.Skipped++
			r.logger.Debug("skipping file", "name", entry.Name())
			continue
		}

		path := filepath.Join(dir, entry.Name())
		r.logger.Info("parsing file", "path", path)

		records, stats, err := r.extractor.ExtractFile(path)
		if err != nil {
			r.state = StateFailed
			return nil, Summary{}, fmt.Errorf("could not extract data: %w", err)
		}

		summary.Files++
		summary.Totals.Add(stats)
		Merge(final, records, r.merge)
	}

	summary.Identifiers = len(final)
	r.state = StateDone
	return final, summary, nil
}

// Merge folds src into dst. A key missing from dst takes the incoming record
// as is. A key already present only changes when the incoming timestamp is
// strictly newer: MergeTimestampOnly moves the timestamp forward and keeps
// the slug dst already has, MergeReplace takes the whole incoming record.
func Merge(dst, src map[string]parser.Record, mode config.MergeMode) {
	for k, rec := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = rec
			continue
		}
		if rec.Timestamp <= existing.Timestamp {
			continue
		}

		if mode == config.MergeReplace {
			dst[k] = rec
			continue
		}
		existing.Timestamp = rec.Timestamp
		dst[k] = existing
	}
}

// FilterOptions defines time bounds for selecting records. Zero values are
// unbounded.
type FilterOptions struct {
	Since time.Time
	Until time.Time
}

// Select returns the records within the bounds, sorted by identifier.
func Select(records map[string]parser.Record, opts FilterOptions) []parser.Record {
	result := make([]parser.Record, 0, len(records))

	for _, rec := range records {
		ts := rec.Time()
		if !opts.Since.IsZero() && ts.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && ts.After(opts.Until) {
			continue
		}
		result = append(result, rec)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Identifier < result[j].Identifier
	})

	return result
}
