// Package btree recursively walks a table or index b-tree starting from
// its root page, classifying every page it visits into a role.Set and
// chasing the overflow chain of every oversized cell it finds. It never
// trusts an ancestor's idea of what a child page should be: each page's
// own type byte decides how it gets parsed and classified, which is the
// only way a forensic walker can notice a child that doesn't match what
// its parent expected.
package btree

import (
	"github.com/dbsleuth/sleuth/internal/cell"
	"github.com/dbsleuth/sleuth/internal/diag"
	"github.com/dbsleuth/sleuth/internal/errs"
	"github.com/dbsleuth/sleuth/internal/overflow"
	"github.com/dbsleuth/sleuth/internal/role"
	"github.com/dbsleuth/sleuth/internal/varint"
)

// MaxDepth bounds recursion so a cyclic or pathologically deep tree
// cannot exhaust the goroutine stack; it defaults well beyond any
// realistic sqlite b-tree height. cmd/sleuth's --max-depth flag
// overrides it before a query runs.
var MaxDepth = 50

// Reader fetches pages by number; satisfied by *pager.Pager.
type Reader interface {
	ReadPage(pgno int) ([]byte, error)
	MaxPage() int
}

const (
	flagIndexInterior = 0x02
	flagTableInterior = 0x05
	flagIndexLeaf     = 0x0a
	flagTableLeaf     = 0x0d
)

// Walk classifies root and every page reachable from it into roles,
// recording diagnostics for anything malformed along the way. It never
// returns an error itself: a root that cannot be read or classified is
// recorded in d and simply contributes nothing to roles.
func Walk(r Reader, root int, usable int, roles *role.Set, d *diag.List) {
	w := &walker{r: r, usable: usable, roles: roles, diag: d, path: make(map[int]bool), done: make(map[int]bool)}
	w.visit(root, 0, 0)
}

type walker struct {
	r      Reader
	usable int
	roles  *role.Set
	diag   *diag.List
	path   map[int]bool // pages on the current root-to-node recursion path
	done   map[int]bool // pages whose children have already been walked once
}

func (w *walker) visit(pgno, depth, parent int) {
	if depth > MaxDepth {
		w.diag.AddPage(errs.DepthExceeded, pgno, "b-tree recursion exceeded depth %d", MaxDepth)
		return
	}
	if pgno < 1 || pgno > w.r.MaxPage() {
		w.diag.AddPage(errs.RangeError, parent, "b-tree child pointer %d out of range", pgno)
		return
	}
	if w.path[pgno] {
		w.diag.AddPage(errs.CycleDetected, pgno, "b-tree page revisited on its own ancestor path")
		return
	}

	page, err := w.r.ReadPage(pgno)
	if err != nil {
		w.diag.AddPage(errs.IoError, pgno, "read b-tree page: %v", err)
		return
	}

	pageStart := 0
	if pgno == 1 {
		pageStart = 100
	}
	if pageStart >= len(page) {
		w.diag.AddPage(errs.FormatError, pgno, "page too small to hold a b-tree header")
		return
	}

	flag := page[pageStart]
	var kind cell.Kind
	var r role.Role
	var interior bool
	switch flag {
	case flagTableInterior:
		kind, r, interior = cell.TableInterior, role.BTreeInteriorTable, true
	case flagTableLeaf:
		kind, r = cell.TableLeaf, role.BTreeLeafTable
	case flagIndexInterior:
		kind, r, interior = cell.IndexInterior, role.BTreeInteriorIndex, true
	case flagIndexLeaf:
		kind, r = cell.IndexLeaf, role.BTreeLeafIndex
	default:
		w.diag.AddPage(errs.FormatError, pgno, "page type byte 0x%02x is not a b-tree page", flag)
		return
	}

	if conflict := w.roles.Claim(pgno, r, parent); conflict {
		w.diag.AddPage(errs.Conflict, pgno, "page already classified; now also reached as %s", r)
	}

	if w.done[pgno] {
		return
	}
	w.done[pgno] = true

	headerLen := 8
	if interior {
		headerLen = 12
	}
	if pageStart+headerLen > len(page) {
		w.diag.AddPage(errs.FormatError, pgno, "b-tree page header truncated")
		return
	}

	numCells, err := varint.U16(page[pageStart+3:])
	if err != nil {
		w.diag.AddPage(errs.FormatError, pgno, "truncated cell count")
		return
	}

	contentStartRaw, err := varint.U16(page[pageStart+5:])
	if err != nil {
		w.diag.AddPage(errs.FormatError, pgno, "truncated cell-content-start")
		return
	}
	contentStart := int(contentStartRaw)
	if contentStart == 0 {
		contentStart = 65536 // a cell-content-start of 0 means 65536
	}

	var rightmost int32
	if interior {
		rm, err := varint.U32(page[pageStart+8:])
		if err != nil {
			w.diag.AddPage(errs.FormatError, pgno, "truncated rightmost pointer")
			return
		}
		rightmost = int32(rm)
	}

	ptrArrayStart := pageStart + headerLen
	maxCells := len(page) / 2
	n := int(numCells)
	if n > maxCells {
		w.diag.AddPage(errs.FormatError, pgno, "cell count %d clamped to maximum %d", n, maxCells)
		n = maxCells
	}

	w.path[pgno] = true
	defer delete(w.path, pgno)

	for i := 0; i < n; i++ {
		off := ptrArrayStart + i*2
		if off+2 > len(page) {
			w.diag.AddPage(errs.FormatError, pgno, "cell pointer %d falls outside the page", i)
			break
		}
		cellOff, err := varint.U16(page[off:])
		if err != nil {
			break
		}
		if int(cellOff) < contentStart || int(cellOff) >= len(page) {
			w.diag.AddPage(errs.FormatError, pgno, "cell pointer %d (%d) falls outside [%d, %d)", i, cellOff, contentStart, len(page))
			continue
		}

		c, err := cell.Parse(kind, page, int(cellOff), w.usable)
		if err != nil {
			w.diag.AddPage(errs.FormatError, pgno, "cell %d: %v", i, err)
			continue
		}

		if interior {
			w.visit(int(c.LeftChild), depth+1, pgno)
		}
		if c.HasOverflow() {
			w.walkOverflow(c.OverflowPage, pgno)
		}
	}

	if interior {
		w.visit(int(rightmost), depth+1, pgno)
	}
}

func (w *walker) walkOverflow(first int32, owner int) {
	pages, err := overflow.Chain(w.r, first, w.r.MaxPage())
	for _, pgno := range pages {
		if conflict := w.roles.Claim(pgno, role.Overflow, owner); conflict {
			w.diag.AddPage(errs.Conflict, pgno, "page already classified; now also reached as overflow")
		}
	}
	if err != nil {
		kind, _ := errs.KindOf(err)
		w.diag.AddPage(kind, owner, "overflow chain: %v", err)
	}
}
