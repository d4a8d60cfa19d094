package config

import (
	"path/filepath"
)

// MatchAny reports whether name matches at least one of the glob patterns.
// An empty pattern list matches every name.
func MatchAny(patterns []string, name string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}

	for _, pattern := range patterns {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	return false, nil
}

func checkPattern(pattern string) error {
	_, err := filepath.Match(pattern, "")
	return err
}
