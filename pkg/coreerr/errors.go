// Package coreerr defines the sentinel error kinds spec.md §7 requires,
// matching the teacher's existing plain-wrapped-error style (see
// pkg/graph/binary.go, pkg/routing/engine.go) rather than adopting a
// stack-trace error library — see DESIGN.md for why pkg/errors (used by
// the unrelated ADKA2006-Vibranium_Quadsquad repo) was not adopted.
package coreerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed or out-of-range caller-supplied data
	// (bad coordinates, malformed OSM tags, an edge weight that would
	// overflow MaxEdgeWeight).
	ErrInvalidInput = errors.New("invalid input")

	// ErrOutOfResources marks a recoverable resource exhaustion condition
	// (e.g. a flush slot could not be acquired).
	ErrOutOfResources = errors.New("out of resources")

	// ErrInvariant marks a structural invariant violation that should
	// never happen given correct upstream input — callers should treat
	// this as a bug, not a recoverable condition.
	ErrInvariant = errors.New("invariant violation")

	// ErrProfile marks a turn-penalty profile returning an invalid value
	// (negative penalty, NaN).
	ErrProfile = errors.New("profile error")
)

// Invalid wraps err (or a plain message) as an ErrInvalidInput.
func Invalid(format string, args ...any) error {
	return wrap(ErrInvalidInput, format, args...)
}

// Resources wraps as an ErrOutOfResources.
func Resources(format string, args ...any) error {
	return wrap(ErrOutOfResources, format, args...)
}

// Invariant wraps as an ErrInvariant.
func Invariant(format string, args ...any) error {
	return wrap(ErrInvariant, format, args...)
}

// Profile wraps as an ErrProfile.
func Profile(format string, args ...any) error {
	return wrap(ErrProfile, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &kindError{kind: kind, msg: msg}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }
