// Package semver checks plugin API versions against the host's supported range.
package semver

import (
	"fmt"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:compat"

// Constraint is a parsed version range such as "^1.2.0" or ">=1.0.0, <3".
type Constraint struct {
	raw string
	c   *masterminds.Constraints
}

// ParseConstraint parses a version range.
func ParseConstraint(raw string) (*Constraint, error) {
	c, err := masterminds.NewConstraint(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid constraint %q: %w", logPrefix, raw, err)
	}
	return &Constraint{raw: raw, c: c}, nil
}

// String returns the constraint as written.
func (c *Constraint) String() string {
	return c.raw
}

// Check reports whether version satisfies the constraint. Prerelease versions
// only match constraints that themselves name a prerelease.
func (c *Constraint) Check(version string) (bool, error) {
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}
	return c.c.Check(v), nil
}

// Satisfies parses both arguments and reports whether version is in range.
func Satisfies(version, constraint string) (bool, error) {
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false, err
	}
	return c.Check(version)
}
