// Package overflow reassembles the content of an overflow page chain: a
// singly-linked list of pages holding the spilled tail of an oversized
// cell payload, each page carrying a 4-byte "next" pointer at offset 0
// followed immediately by payload bytes.
package overflow

import (
	"github.com/dbsleuth/sleuth/internal/errs"
	"github.com/dbsleuth/sleuth/internal/varint"
)

// Reader fetches a page by number; it is satisfied by *pager.Pager.
type Reader interface {
	ReadPage(pgno int) ([]byte, error)
	MaxPage() int
}

// Walk follows the overflow chain starting at first, invoking visit for
// each page number in the chain (in order) before returning the
// reassembled payload bytes, truncated or extended to exactly size
// bytes. usable is the page's usable size (pageSize - reserved); the 4
// leading bytes of every overflow page are the next-pointer and are
// never included in the returned payload.
//
// The chain halts -- returning whatever has been collected so far,
// alongside a diagnostic-worthy error -- on an invalid next pointer, a
// page revisited within this chain, or reaching 0 before size bytes have
// been collected.
func Walk(r Reader, first int32, usable, size int, visit func(pgno int)) ([]byte, error) {
	out := make([]byte, 0, size)
	seen := make(map[int32]bool)

	next := first
	for len(out) < size {
		if next == 0 {
			return out, errs.New(errs.FormatError, "overflow chain ended before payload was fully read")
		}
		if seen[next] {
			return out, errs.OnPage(errs.CycleDetected, int(next), "overflow chain revisits a page")
		}
		if int(next) < 1 || int(next) > r.MaxPage() {
			return out, errs.OnPage(errs.RangeError, int(next), "overflow pointer out of range")
		}
		seen[next] = true

		page, err := r.ReadPage(int(next))
		if err != nil {
			return out, err
		}
		if visit != nil {
			visit(int(next))
		}

		nextPtr, err := varint.U32(page)
		if err != nil {
			return out, errs.OnPage(errs.FormatError, int(next), "truncated overflow next-pointer")
		}

		avail := usable - 4
		if avail < 0 {
			avail = 0
		}
		take := size - len(out)
		if take > avail {
			take = avail
		}
		if take > len(page)-4 {
			take = len(page) - 4
		}
		if take > 0 {
			out = append(out, page[4:4+take]...)
		}

		next = int32(nextPtr)
	}

	return out, nil
}

// Chain walks the overflow chain starting at first purely to enumerate
// the page numbers involved, without reassembling payload bytes. Used by
// the b-tree walker, which only needs to classify each overflow page,
// not read its content. It stops at a 0 next-pointer, a revisited page,
// or an out-of-range pointer; in the latter two cases it returns what it
// collected so far along with an error so the caller can record a
// diagnostic without losing the pages it did manage to classify.
func Chain(r Reader, first int32, maxPage int) ([]int, error) {
	var pages []int
	seen := make(map[int32]bool)

	next := first
	for next != 0 {
		if seen[next] {
			return pages, errs.OnPage(errs.CycleDetected, int(next), "overflow chain revisits a page")
		}
		if int(next) < 1 || int(next) > maxPage {
			return pages, errs.OnPage(errs.RangeError, int(next), "overflow pointer out of range")
		}
		seen[next] = true
		pages = append(pages, int(next))

		page, err := r.ReadPage(int(next))
		if err != nil {
			return pages, err
		}

		nextPtr, err := varint.U32(page)
		if err != nil {
			return pages, errs.OnPage(errs.FormatError, int(next), "truncated overflow next-pointer")
		}
		next = int32(nextPtr)
	}

	return pages, nil
}
