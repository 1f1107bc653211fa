package domain

import (
	"fmt"
	"strings"
)

// Target is a single domain name whose traffic should be blocked.
//
// Notes:
// - Name is canonical: lowercased, trimmed, no trailing dot.
// - Source identifies where the target came from (file path or "builtin").
type Target struct {
	Name   string
	Source string
}

// NewTarget constructs a Target and validates its fields.
func NewTarget(name, source string) (Target, error) {
	t := Target{
		Name:   canonicalize(name),
		Source: strings.TrimSpace(source),
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// Validate checks the Target for required fields.
func (t Target) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target name must not be empty")
	}
	if strings.ContainsAny(t.Name, " \t") {
		return fmt.Errorf("target name must not contain whitespace: %q", t.Name)
	}
	if t.Source == "" {
		return fmt.Errorf("target source must not be empty")
	}
	return nil
}

// canonicalize lowercases, trims, and strips trailing dots. Kept local so
// the domain layer stays dependency-free.
func canonicalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}
