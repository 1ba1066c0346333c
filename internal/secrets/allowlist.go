package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds content patterns that are never redacted, such as
// example keys that appear in a user's documentation.
type Allowlist struct {
	Regexes []string

	compiled []*regexp.Regexp
}

// LoadAllowlist reads a gitleaks-style TOML file:
//
//	[allowlist]
//	regexes = ['''EXAMPLE-[0-9]+''']
//
// A missing file yields an empty allowlist. Empty path does the same.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}

	var file struct {
		Allowlist struct {
			Regexes []string `toml:"regexes"`
		} `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}
	return NewAllowlist(file.Allowlist.Regexes...)
}

// NewAllowlist compiles patterns, failing on the first invalid one.
func NewAllowlist(patterns ...string) (*Allowlist, error) {
	a := &Allowlist{Regexes: patterns}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, p, err)
		}
		a.compiled = append(a.compiled, re)
	}
	return a, nil
}

// Allows reports whether match is covered by any pattern.
func (a *Allowlist) Allows(match string) bool {
	if a == nil {
		return false
	}
	for _, re := range a.compiled {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}
