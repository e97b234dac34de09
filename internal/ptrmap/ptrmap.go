// Package ptrmap computes the deterministic pointer-map page positions
// (present only when a database uses auto-vacuum or incremental-vacuum)
// and validates a candidate page's content shape.
package ptrmap

import (
	"github.com/dbsleuth/sleuth/internal/varint"
)

// EntrySize is the byte size of one pointer-map entry: a 1-byte type tag
// followed by a 4-byte parent page number.
const EntrySize = 5

// Entry is one decoded pointer-map slot.
type Entry struct {
	Type   byte
	Parent uint32
}

// validType reports whether t is one of the pointer-map entry type tags
// sqlite defines (1..5).
func validType(t byte) bool { return t >= 1 && t <= 5 }

// FirstPage returns the page number of the first pointer-map page, and
// Stride returns the distance, in pages, between consecutive pointer-map
// pages; both are floor(usable/5) + 1.
func FirstPage(usable int) int { return usable/5 + 1 }
func Stride(usable int) int    { return usable/5 + 1 }

// IsCandidate reports whether pgno is one of the deterministic positions
// a pointer-map page would occupy for the given usable size.
func IsCandidate(pgno, usable int) bool {
	first := FirstPage(usable)
	if pgno < first {
		return false
	}
	stride := Stride(usable)
	return (pgno-first)%stride == 0
}

// Positions returns every candidate pointer-map page number up to
// maxPage.
func Positions(usable, maxPage int) []int {
	first := FirstPage(usable)
	stride := Stride(usable)
	var out []int
	for p := first; p <= maxPage; p += stride {
		out = append(out, p)
	}
	return out
}

// Validate inspects page's content and reports whether it has the shape
// of a valid pointer-map page: every 5-byte entry's type tag must be in
// {0..5} (0 meaning "unused slot" -- trailing padding at the tail of the
// last ptrmap page), any non-zero entry must reference a parent in
// 1..maxPage, and at least one entry must be non-zero.
func Validate(page []byte, maxPage int) (entries []Entry, ok bool) {
	n := len(page) / EntrySize
	var anyNonZero bool
	entries = make([]Entry, 0, n)

	for i := 0; i < n; i++ {
		off := i * EntrySize
		typ := page[off]
		parent, err := varint.U32(page[off+1:])
		if err != nil {
			return nil, false
		}

		if typ == 0 && parent == 0 {
			entries = append(entries, Entry{Type: typ, Parent: parent})
			continue
		}

		if !validType(typ) {
			return nil, false
		}
		if parent == 0 || int(parent) > maxPage {
			return nil, false
		}

		anyNonZero = true
		entries = append(entries, Entry{Type: typ, Parent: parent})
	}

	if !anyNonZero {
		return nil, false
	}
	return entries, true
}
