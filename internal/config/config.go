// Package config provides configuration types and helpers for lastseen.
package config

import (
	"fmt"
	"strings"
)

// Defaults shared by the command layer and the parser.
const (
	DefaultRoutePrefix     = "/observabilityapp/d/"
	DefaultIDLength        = 9
	DefaultTimestampFormat = "02/Jan/2006:15:04:05 -0700" // Apache/NCSA
)

// Config holds the application-wide configuration.
type Config struct {
	Format          string    `mapstructure:"format"`
	Verbose         bool      `mapstructure:"verbose"`
	LogDir          string    `mapstructure:"log_dir"`
	RoutePrefix     string    `mapstructure:"route_prefix"`
	IDLength        int       `mapstructure:"id_length"`
	TimestampFormat string    `mapstructure:"timestamp_format"`
	Merge           MergeMode `mapstructure:"merge"`
	Include         []string  `mapstructure:"include"`
}

// Validate checks the values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if c.RoutePrefix == "" {
		return fmt.Errorf("route_prefix must not be empty")
	}
	if c.IDLength <= 0 {
		return fmt.Errorf("id_length must be positive, got %d", c.IDLength)
	}
	if _, err := ParseMergeMode(string(c.Merge)); err != nil {
		return err
	}
	for _, pattern := range c.Include {
		if err := checkPattern(pattern); err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// MergeMode selects how a newer record for an identifier already present in
// the final mapping is folded in.
type MergeMode string

const (
	// MergeTimestampOnly bumps the timestamp and keeps the slug of the record
	// that first claimed the identifier.
	MergeTimestampOnly MergeMode = "timestamp-only"

	// MergeReplace swaps in the whole newer record.
	MergeReplace MergeMode = "replace"
)

// ParseMergeMode converts a string to a MergeMode. The empty string selects
// MergeTimestampOnly.
func ParseMergeMode(s string) (MergeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(MergeTimestampOnly):
		return MergeTimestampOnly, nil
	case string(MergeReplace):
		return MergeReplace, nil
	default:
		return "", fmt.Errorf("invalid merge mode: %s (must be 'timestamp-only' or 'replace')", s)
	}
}

// String returns the string representation of a MergeMode.
func (m MergeMode) String() string {
	if m == "" {
		return string(MergeTimestampOnly)
	}
	return string(m)
}
