package account

import (
	"github.com/dbsleuth/sleuth/internal/diag"
	"github.com/dbsleuth/sleuth/internal/errs"
	"github.com/dbsleuth/sleuth/internal/ptrmap"
	"github.com/dbsleuth/sleuth/internal/role"
	"github.com/dbsleuth/sleuth/internal/varint"
)

// sweepPtrmap validates every deterministic pointer-map position. When
// auto-vacuum is on, a validating candidate still Unknown is claimed as
// PointerMap; a candidate that fails validation, or is already claimed
// by something else, counts as missing. When auto-vacuum is off, a
// candidate that nonetheless validates as ptrmap content is a "ghost" --
// interesting forensic signal (the file once had auto-vacuum enabled)
// but not claimed, since the position carries no ptrmap role today.
func sweepPtrmap(c *Context, roles *role.Set, d *diag.List) (ghost, missing int) {
	hdr := c.Pager.Header()
	usable := hdr.Usable()
	autoVacuum := hdr.AutoVacuumEnabled()

	for _, pgno := range ptrmap.Positions(usable, roles.MaxPage()) {
		page, err := c.Pager.ReadPage(pgno)
		if err != nil {
			d.AddPage(errs.IoError, pgno, "ptrmap sweep: %v", err)
			continue
		}
		_, ok := ptrmap.Validate(page, roles.MaxPage())

		if !autoVacuum {
			if ok {
				ghost++
				d.AddPage(errs.FormatError, pgno, "ghost ptrmap: page validates as pointer-map content while auto-vacuum is disabled")
			}
			continue
		}

		switch {
		case ok && roles.Get(pgno) == role.Unknown:
			roles.Claim(pgno, role.PointerMap, 0)
		case !ok:
			missing++
			d.AddPage(errs.FormatError, pgno, "pointer-map position failed content validation")
		case roles.Get(pgno) != role.PointerMap:
			missing++
			d.AddPage(errs.Conflict, pgno, "pointer-map position already classified as %s", roles.Get(pgno))
		}
	}
	return ghost, missing
}

// classifyOrphans scans every page still Unknown after the freelist,
// ptrmap and b-tree walks have all run, and classifies by content shape
// alone: a page that looks like a b-tree or overflow page but that
// nothing actually points to.
func classifyOrphans(c *Context, roles *role.Set, d *diag.List) {
	for pgno := 1; pgno <= roles.MaxPage(); pgno++ {
		if roles.Get(pgno) != role.Unknown {
			continue
		}
		page, err := c.Pager.ReadPage(pgno)
		if err != nil {
			d.AddPage(errs.IoError, pgno, "orphan scan: %v", err)
			continue
		}

		pageStart := 0
		if pgno == 1 {
			pageStart = 100
		}
		if pageStart >= len(page) {
			continue
		}

		if allZero(page) {
			roles.Claim(pgno, role.OrphanEmpty, 0)
			continue
		}

		switch page[pageStart] {
		case 0x02:
			roles.Claim(pgno, role.OrphanInteriorIndex, 0)
		case 0x05:
			roles.Claim(pgno, role.OrphanInteriorTable, 0)
		case 0x0a:
			roles.Claim(pgno, role.OrphanLeafIndex, 0)
		case 0x0d:
			roles.Claim(pgno, role.OrphanLeafTable, 0)
		case 0x00:
			next, err := varint.U32(page)
			if err == nil && (next == 0 || int(next) <= roles.MaxPage()) {
				roles.Claim(pgno, role.OrphanOverflow, 0)
			}
		}
	}
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func orphanPages(roles *role.Set) []int {
	var out []int
	for _, r := range []role.Role{
		role.OrphanInteriorTable, role.OrphanLeafTable,
		role.OrphanInteriorIndex, role.OrphanLeafIndex,
		role.OrphanOverflow, role.OrphanEmpty,
	} {
		out = append(out, roles.PagesWith(r)...)
	}
	return out
}
