// Package invariants selects how integration contract violations are handled.
//
// Builds with the "invariants" or "race" tags fail loudly: a violated
// contract panics. Default builds degrade instead, so a misbehaving host
// integration loses output rather than crashing the program that is being
// traced.
package invariants

import "github.com/cockroachdb/errors"

// Violation reports a broken integration contract. It panics when Enabled and
// returns the error otherwise, so callers can choose to skip the offending
// line.
func Violation(format string, args ...interface{}) error {
	err := errors.AssertionFailedf(format, args...)
	if Enabled {
		panic(err)
	}
	return err
}
