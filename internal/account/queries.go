package account

import (
	"errors"
	"fmt"

	"github.com/dbsleuth/sleuth/internal/btree"
	"github.com/dbsleuth/sleuth/internal/cell"
	"github.com/dbsleuth/sleuth/internal/diag"
	"github.com/dbsleuth/sleuth/internal/errs"
	"github.com/dbsleuth/sleuth/internal/freelist"
	"github.com/dbsleuth/sleuth/internal/record"
	"github.com/dbsleuth/sleuth/internal/report"
	"github.com/dbsleuth/sleuth/internal/role"
	"github.com/dbsleuth/sleuth/internal/varint"
)

// ErrRowidNotFound is returned by DumpRowid when the target table b-tree
// does not contain a cell with the requested rowid. It is distinct from
// the errs.Kind taxonomy: a missing rowid is a query outcome, not file
// corruption, and cmd/sleuth maps it to its own exit code.
var ErrRowidNotFound = errors.New("account: rowid not found")

func claimFreelist(res freelist.Result, roles *role.Set) {
	for _, tr := range res.Trunks {
		roles.Claim(tr.Page, role.FreelistTrunk, 0)
		for _, leaf := range tr.Leaves {
			roles.Claim(leaf, role.FreelistLeaf, tr.Page)
		}
	}
}

func runFreelist(c *Context, d *diag.List) freelist.Result {
	hdr := c.Pager.Header()
	res, err := freelist.Walk(c.Pager, int(hdr.FreelistTrunk), d)
	if err != nil {
		if k, ok := errs.KindOf(err); ok {
			d.Add(k, "freelist walk aborted: %v", err)
		}
	}
	return res
}

// FreelistCheck runs the freelist walk alone and compares the observed
// page count against the header's own, possibly stale, count.
func FreelistCheck(c *Context) (report.Freelist, *diag.List) {
	d := &diag.List{}
	hdr := c.Pager.Header()
	res := runFreelist(c, d)

	var trunks []report.TrunkEntry
	leaves := 0
	for _, tr := range res.Trunks {
		trunks = append(trunks, report.TrunkEntry{Page: tr.Page, NextTrunk: tr.NextTrunk, Leaves: tr.Leaves})
		leaves += len(tr.Leaves)
	}

	observed := len(res.Trunks) + leaves
	headerCount := int(hdr.FreelistCount)
	verdict := "match"
	switch {
	case observed > headerCount:
		verdict = fmt.Sprintf("overage(%d)", observed-headerCount)
	case observed < headerCount:
		verdict = fmt.Sprintf("shortage(%d)", headerCount-observed)
	}

	return report.Freelist{
		PageSize:       c.Pager.PageSize(),
		TotalPages:     c.Pager.MaxPage(),
		FirstTrunk:     int(hdr.FreelistTrunk),
		ObservedTrunks: len(res.Trunks),
		ObservedLeaves: leaves,
		HeaderCount:    headerCount,
		Verdict:        verdict,
		Trunks:         trunks,
	}, d
}

// Account runs the full pipeline -- freelist, ptrmap, every b-tree
// (sqlite_master plus every caller-supplied root), then an orphan scan
// over whatever is left Unknown -- and reports totals, conflicts, and
// ghost/missing ptrmap counts.
func Account(c *Context, roots []Root) (report.Account, *diag.List) {
	d := &diag.List{}
	roles := role.NewSet(c.Pager.MaxPage())
	hdr := c.Pager.Header()

	claimFreelist(runFreelist(c, d), roles)

	ghost, missing := sweepPtrmap(c, roles, d)

	for _, rt := range withSchemaMaster(roots) {
		btree.Walk(c.Pager, rt.Page, hdr.Usable(), roles, d)
	}

	classifyOrphans(c, roles, d)

	counts := make(map[string]int, len(role.All()))
	for _, r := range role.All() {
		counts[r.String()] = len(roles.PagesWith(r))
	}

	return report.Account{
		RunID:              c.RunID.String(),
		TotalPages:         roles.MaxPage(),
		RoleCounts:         counts,
		Unknown:            len(roles.Unclassified()),
		GhostPtrmapCount:   ghost,
		MissingPtrmapCount: missing,
		Conflicts:          len(roles.Conflicts()),
		OrphanPages:        report.SortPages(orphanPages(roles)),
		UnknownPages:       report.SortPages(roles.Unclassified()),
	}, d
}

// FindConflicts walks the freelist and every b-tree into two disjoint
// classification arrays and reports pages both claim -- the corruption
// signature of a page that's simultaneously "free" and "in use".
func FindConflicts(c *Context, roots []Root) (report.Conflicts, *diag.List) {
	d := &diag.List{}
	hdr := c.Pager.Header()

	freeRoles := role.NewSet(c.Pager.MaxPage())
	claimFreelist(runFreelist(c, d), freeRoles)

	btreeRoles := role.NewSet(c.Pager.MaxPage())
	for _, rt := range withSchemaMaster(roots) {
		btree.Walk(c.Pager, rt.Page, hdr.Usable(), btreeRoles, d)
	}

	var pages []int
	for p := 1; p <= c.Pager.MaxPage(); p++ {
		if freeRoles.Get(p) != role.Unknown && btreeRoles.Get(p) != role.Unknown {
			pages = append(pages, p)
		}
	}
	pages = report.SortPages(pages)

	return report.Conflicts{Count: len(pages), Pages: pages}, d
}

// PageOwner reports every freelist position and every named root whose
// walk reaches page. Each root is walked with its own fresh
// classification array so one root's reach never contaminates another's.
func PageOwner(c *Context, roots []Root, page int) (report.PageOwner, *diag.List) {
	d := &diag.List{}
	hdr := c.Pager.Header()
	var owners []report.Owner

	flRes := runFreelist(c, d)
	for _, tr := range flRes.Trunks {
		if tr.Page == page {
			owners = append(owners, report.Owner{Kind: "freelist", Name: "freelist-trunk", Root: tr.Page})
		}
		for _, leaf := range tr.Leaves {
			if leaf == page {
				owners = append(owners, report.Owner{Kind: "freelist", Name: "freelist-leaf", Root: tr.Page})
			}
		}
	}

	for _, rt := range withSchemaMaster(roots) {
		roles := role.NewSet(c.Pager.MaxPage())
		btree.Walk(c.Pager, rt.Page, hdr.Usable(), roles, d)
		if roles.Get(page) != role.Unknown {
			owners = append(owners, report.Owner{Kind: "btree", Name: rt.Name, Root: rt.Page})
		}
	}

	return report.PageOwner{Page: page, Owners: owners}, d
}

const dumpMaxDepth = 50

// DumpRowid descends a table b-tree by rowid key -- a cell's rowid is an
// upper bound on its left subtree, so the first cell whose key is >=
// the target determines which child to descend, and the rightmost
// child catches everything greater than all of a page's cell keys --
// then scans the landing leaf for an exact match.
func DumpRowid(c *Context, root int, rowid int64) (*report.Dump, *diag.List, error) {
	d := &diag.List{}
	usable := c.Pager.Header().Usable()

	pgno := root
	for depth := 0; depth < dumpMaxDepth; depth++ {
		page, err := c.Pager.ReadPage(pgno)
		if err != nil {
			return nil, d, err
		}

		pageStart := 0
		if pgno == 1 {
			pageStart = 100
		}
		if pageStart >= len(page) {
			return nil, d, errs.OnPage(errs.FormatError, pgno, "page too small to hold a b-tree header")
		}

		switch page[pageStart] {
		case 0x0d: // table leaf
			return scanLeafForRowid(page, pgno, pageStart, usable, root, rowid, d)
		case 0x05: // table interior
			next, err := descendTableInterior(page, pgno, pageStart, rowid, d)
			if err != nil {
				return nil, d, err
			}
			pgno = next
		default:
			return nil, d, errs.OnPage(errs.FormatError, pgno, "not a table b-tree page")
		}
	}

	return nil, d, errs.New(errs.DepthExceeded, "dump_rowid exceeded the recursion depth cap")
}

func descendTableInterior(page []byte, pgno, pageStart int, rowid int64, d *diag.List) (int, error) {
	numCells, err := varint.U16(page[pageStart+3:])
	if err != nil {
		return 0, errs.New(errs.FormatError, "truncated cell count")
	}
	rightmost, err := varint.U32(page[pageStart+8:])
	if err != nil {
		return 0, errs.New(errs.FormatError, "truncated rightmost pointer")
	}
	contentStart, err := cellContentStart(page, pageStart)
	if err != nil {
		return 0, err
	}

	ptrStart := pageStart + 12
	for i := 0; i < int(numCells); i++ {
		off := ptrStart + i*2
		if off+2 > len(page) {
			break
		}
		cellOff, err := varint.U16(page[off:])
		if err != nil {
			break
		}
		if int(cellOff) < contentStart || int(cellOff) >= len(page) {
			d.AddPage(errs.FormatError, pgno, "cell pointer %d (%d) falls outside [%d, %d)", i, cellOff, contentStart, len(page))
			continue
		}
		c, err := cell.Parse(cell.TableInterior, page, int(cellOff), 0)
		if err != nil {
			continue
		}
		if rowid <= c.Rowid {
			return int(c.LeftChild), nil
		}
	}
	return int(rightmost), nil
}

// cellContentStart reads a b-tree page header's own cell-content-start
// field (bytes pageStart+5..6), the authoritative lower bound below which
// no cell pointer may point -- that space is the fixed page header and
// cell-pointer array, never cell content.
func cellContentStart(page []byte, pageStart int) (int, error) {
	raw, err := varint.U16(page[pageStart+5:])
	if err != nil {
		return 0, errs.New(errs.FormatError, "truncated cell-content-start")
	}
	start := int(raw)
	if start == 0 {
		start = 65536
	}
	return start, nil
}

func scanLeafForRowid(page []byte, pgno, pageStart, usable, root int, rowid int64, d *diag.List) (*report.Dump, *diag.List, error) {
	numCells, err := varint.U16(page[pageStart+3:])
	if err != nil {
		return nil, d, errs.OnPage(errs.FormatError, pgno, "truncated cell count")
	}
	contentStart, err := cellContentStart(page, pageStart)
	if err != nil {
		return nil, d, errs.OnPage(errs.FormatError, pgno, "truncated cell-content-start")
	}

	ptrStart := pageStart + 8
	for i := 0; i < int(numCells); i++ {
		off := ptrStart + i*2
		if off+2 > len(page) {
			break
		}
		cellOff, err := varint.U16(page[off:])
		if err != nil {
			break
		}
		if int(cellOff) < contentStart || int(cellOff) >= len(page) {
			d.AddPage(errs.FormatError, pgno, "cell pointer %d (%d) falls outside [%d, %d)", i, cellOff, contentStart, len(page))
			continue
		}
		cc, err := cell.Parse(cell.TableLeaf, page, int(cellOff), usable)
		if err != nil {
			d.AddPage(errs.FormatError, pgno, "cell %d: %v", i, err)
			continue
		}
		if cc.Rowid != rowid {
			continue
		}

		rec, err := record.Parse(cc.Local)
		if err != nil {
			return nil, d, err
		}

		cols := make([]report.Column, 0, rec.NumColumns())
		for ci := 0; ci < rec.NumColumns(); ci++ {
			st := rec.Columns()[ci].SerialType
			v, verr := rec.Value(ci)
			val := "?"
			if verr == nil {
				val = formatValue(v)
			}
			cols = append(cols, report.Column{Index: ci, SerialType: st, Kind: columnKind(st), Value: val})
		}

		return &report.Dump{
			Root:          root,
			Rowid:         rowid,
			Page:          pgno,
			RecordSize:    cc.Split.Total,
			HeaderSizeHex: fmt.Sprintf("0x%x", rec.HeaderSize()),
			Columns:       cols,
			HexDump:       hexDump(cc.Local),
			OverflowHead:  int(cc.OverflowPage),
		}, d, nil
	}

	return nil, d, ErrRowidNotFound
}
