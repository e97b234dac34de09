// Package diag accumulates non-fatal diagnostics produced while walking a
// potentially corrupt database. Per the error-handling design, format
// violations, clamped counts, cycles, depth overruns and conflicts are
// *reported*, not returned as a single terminal error -- a walk that hits
// a bad cell pointer must still visit the next sibling. List is the
// accumulator that makes that possible without resorting to panics or an
// external multi-error dependency: one flat, ordered slice collected
// across an entire query and handed to the caller alongside the result.
package diag

import (
	"fmt"

	"github.com/dbsleuth/sleuth/internal/errs"
)

// Entry is a single non-fatal diagnostic observed during a walk.
type Entry struct {
	Kind   errs.Kind
	Page   int // 0 if not page-specific
	Detail string
}

func (e Entry) String() string {
	if e.Page > 0 {
		return fmt.Sprintf("%s: page=%d: %s", e.Kind, e.Page, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// List is an ordered collection of diagnostics gathered across one query.
// It is not safe for concurrent use -- queries run sequentially per the
// concurrency model, and each query creates and owns its own List.
type List struct {
	entries []Entry
}

// Add appends a diagnostic not tied to a specific page.
func (l *List) Add(kind errs.Kind, detail string, args ...any) {
	l.entries = append(l.entries, Entry{Kind: kind, Detail: fmt.Sprintf(detail, args...)})
}

// AddPage appends a diagnostic tied to page.
func (l *List) AddPage(kind errs.Kind, page int, detail string, args ...any) {
	l.entries = append(l.entries, Entry{Kind: kind, Page: page, Detail: fmt.Sprintf(detail, args...)})
}

// Entries returns the accumulated diagnostics in the order they were
// recorded.
func (l *List) Entries() []Entry { return l.entries }

// Len reports how many diagnostics have been recorded.
func (l *List) Len() int { return len(l.entries) }

// CountKind reports how many diagnostics of a given kind have been recorded.
func (l *List) CountKind(kind errs.Kind) int {
	var n int
	for _, e := range l.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
