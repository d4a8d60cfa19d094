// Package parser extracts access records from web-server access logs.
//
// A line is interesting when it carries an Apache/NCSA timestamp followed by
// a GET request against the dashboard route, for example:
//
//	10.0.0.1 - - [05/Mar/2024:12:00:00 +0000] "GET /observabilityapp/d/AAABBBCCC/foo HTTP/1.1" 200 512
//
// Every other line is ignored.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bimmerbailey/lastseen/internal/config"
	"github.com/bimmerbailey/lastseen/internal/loader"
)

var (
	// ErrTimestampParse aborts the whole run.
	ErrTimestampParse = errors.New("could not parse timestamp")

	// ErrInvalidIdentifier marks a matched line whose identifier has the
	// wrong length. The line is skipped and scanning continues.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Record is one observed access to a dashboard.
type Record struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Slug       string `json:"slug" yaml:"slug"`
	Timestamp  int64  `json:"timestamp" yaml:"timestamp"`
}

// Time returns the record timestamp as a time.Time in UTC.
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// Captures holds the raw strings pulled out of a matching line.
type Captures struct {
	Timestamp  string
	Identifier string
	Slug       string
}

// Matcher recognizes dashboard requests in access log lines.
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher compiles the line pattern for the given route prefix.
func NewMatcher(routePrefix string) (*Matcher, error) {
	if routePrefix == "" {
		return nil, fmt.Errorf("route prefix is empty")
	}

	re, err := regexp.Compile(`\[([^\]]+)\] .GET ` + regexp.QuoteMeta(routePrefix) + `([^/]+)/([^ ?]+)`)
	if err != nil {
		return nil, fmt.Errorf("could not compile regular expression: %w", err)
	}
	return &Matcher{re: re}, nil
}

// Match returns the captures of the first match in line.
func (m *Matcher) Match(line string) (Captures, bool) {
	caps := m.re.FindStringSubmatch(line)
	if caps == nil {
		return Captures{}, false
	}
	return Captures{Timestamp: caps[1], Identifier: caps[2], Slug: caps[3]}, true
}

// Stats counts what happened while scanning one input.
type Stats struct {
	Lines   int `json:"lines"`
	Matched int `json:"matched"`
	Invalid int `json:"invalid"`
	Records int `json:"records"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Lines += o.Lines
	s.Matched += o.Matched
	s.Invalid += o.Invalid
	s.Records += o.Records
}

// Parser turns access log content into per-identifier records.
type Parser struct {
	matcher         *Matcher
	routePrefix     string
	idLength        int
	timestampFormat string
	logger          *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithRoutePrefix sets the URL path prefix that precedes the identifier.
func WithRoutePrefix(prefix string) Option {
	return func(p *Parser) {
		p.routePrefix = prefix
	}
}

// WithIDLength sets the required identifier length in bytes.
func WithIDLength(n int) Option {
	return func(p *Parser) {
		p.idLength = n
	}
}

// WithTimestampFormat overrides the Go time layout used for the bracketed
// timestamp.
func WithTimestampFormat(layout string) Option {
	return func(p *Parser) {
		p.timestampFormat = layout
	}
}

// WithLogger sets the logger used to report skipped records.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// New creates a Parser. Without options it recognizes
// /observabilityapp/d/<id>/<slug> with 9-byte identifiers.
func New(opts ...Option) (*Parser, error) {
	p := &Parser{
		routePrefix:     config.DefaultRoutePrefix,
		idLength:        config.DefaultIDLength,
		timestampFormat: config.DefaultTimestampFormat,
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.idLength <= 0 {
		return nil, fmt.Errorf("identifier length must be positive, got %d", p.idLength)
	}
	if p.timestampFormat == "" {
		p.timestampFormat = config.DefaultTimestampFormat
	}

	m, err := NewMatcher(p.routePrefix)
	if err != nil {
		return nil, err
	}
	p.matcher = m

	return p, nil
}

// Build validates captures and converts them into a Record. A wrong-length
// identifier yields ErrInvalidIdentifier; it is checked before the
// timestamp, so such lines never fail the run.
func (p *Parser) Build(c Captures) (Record, error) {
	if len(c.Identifier) != p.idLength {
		return Record{}, fmt.Errorf("%w: %q has length %d, want %d",
			ErrInvalidIdentifier, c.Identifier, len(c.Identifier), p.idLength)
	}

	ts, err := time.Parse(p.timestampFormat, c.Timestamp)
	if err != nil {
		return Record{}, fmt.Errorf("%w %q: %w", ErrTimestampParse, c.Timestamp, err)
	}

	return Record{
		Identifier: c.Identifier,
		Slug:       c.Slug,
		Timestamp:  ts.Unix(),
	}, nil
}

// Parse reads r line by line. A later line for an identifier replaces the
// earlier one regardless of timestamps. Lines have no length limit.
func (p *Parser) Parse(r io.Reader) (map[string]Record, Stats, error) {
	records := make(map[string]Record)
	var stats Stats

	br := bufio.NewReader(r)
	for {
		line, readErr := br.ReadString('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, stats, readErr
		}
		if line == "" && errors.Is(readErr, io.EOF) {
			break
		}

		stats.Lines++
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if err := p.parseLine(line, records, &stats); err != nil {
			return nil, stats, err
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
	}

	stats.Records = len(records)
	return records, stats, nil
}

func (p *Parser) parseLine(line string, records map[string]Record, stats *Stats) error {
	caps, ok := p.matcher.Match(line)
	if !ok {
		return nil
	}
	stats.Matched++

	rec, err := p.Build(caps)
	if errors.Is(err, ErrInvalidIdentifier) {
		stats.Invalid++
		p.logger.Warn("invalid record", "identifier", caps.Identifier, "line", stats.Lines)
		return nil
	}
	if err != nil {
		return fmt.Errorf("line %d: %w", stats.Lines, err)
	}

	records[rec.Identifier] = rec
	return nil
}

// ExtractFile loads the file at path, decompressing it if needed, and parses
// its content.
func (p *Parser) ExtractFile(path string) (map[string]Record, Stats, error) {
	text, enc, err := loader.Load(path)
	if err != nil {
		return nil, Stats{}, err
	}
	p.logger.Debug("loaded file", "path", path, "encoding", enc, "bytes", len(text))

	records, stats, err := p.Parse(strings.NewReader(text))
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", path, err)
	}
	return records, stats, nil
}
