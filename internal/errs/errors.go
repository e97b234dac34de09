// Package errs defines the error kinds shared across the sleuth core, per
// the taxonomy in the forensic-walker design: a small, closed set of kinds
// that every other package wraps its errors around so callers can use
// errors.Is/errors.As instead of string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the categories the core walkers
// recognise. Only IoError, NotSqlite and InvalidHeader are fatal to the
// whole process; every other kind is reported and the walk continues at
// the nearest safe boundary (next sibling cell, next trunk, next root).
type Kind int

const (
	// IoError covers open/seek/read failures against the underlying file.
	IoError Kind = iota
	// NotSqlite means the 16-byte magic did not match.
	NotSqlite
	// InvalidHeader means the page size, reserved space, or header counts
	// are absurd (not a power of two, usable size below the sqlite floor,
	// payload fractions not fixed at 64/32/32, etc).
	InvalidHeader
	// RangeError means a page pointer fell outside 1..max_page.
	RangeError
	// FormatError means a varint was truncated, a cell offset was
	// invalid, or the local/overflow math was infeasible.
	FormatError
	// CycleDetected means the same page was re-entered on a chain that
	// must not cycle (freelist trunk chain, overflow chain).
	CycleDetected
	// DepthExceeded means b-tree recursion exceeded the depth cap.
	DepthExceeded
	// Conflict means two roles both claim the same page.
	Conflict
)

func (k Kind) String() string {
	switch k {
	case IoError:
		return "io_error"
	case NotSqlite:
		return "not_sqlite"
	case InvalidHeader:
		return "invalid_header"
	case RangeError:
		return "range_error"
	case FormatError:
		return "format_error"
	case CycleDetected:
		return "cycle_detected"
	case DepthExceeded:
		return "depth_exceeded"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind must abort the whole process
// rather than merely the current walk/subtree.
func (k Kind) Fatal() bool {
	switch k {
	case IoError, NotSqlite, InvalidHeader:
		return true
	default:
		return false
	}
}

// Error wraps an underlying cause with a Kind and contextual detail.
type Error struct {
	Kind   Kind
	Page   int // page number involved, 0 if not page-specific
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Page > 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s: page=%d: %s: %v", e.Kind, e.Page, e.Detail, e.Cause)
		}
		return fmt.Sprintf("%s: page=%d: %s", e.Kind, e.Page, e.Detail)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errs.New(kind, ...)) style matching on Kind
// alone, ignoring Page/Detail/Cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error with no page context.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap constructs an *Error that wraps cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// OnPage constructs an *Error tied to a specific page number.
func OnPage(kind Kind, page int, detail string) *Error {
	return &Error{Kind: kind, Page: page, Detail: detail}
}

// WrapOnPage constructs an *Error tied to a specific page number that wraps cause.
func WrapOnPage(kind Kind, page int, detail string, cause error) *Error {
	return &Error{Kind: kind, Page: page, Detail: detail, Cause: cause}
}

// KindOf reports the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (k Kind, ok bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
