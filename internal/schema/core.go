package schema

import (
	"context"

	"github.com/dbsleuth/sleuth/internal/cell"
	"github.com/dbsleuth/sleuth/internal/pager"
	"github.com/dbsleuth/sleuth/internal/record"
	"github.com/dbsleuth/sleuth/internal/varint"
)

// CoreProvider reads the schema directly off page 1's sqlite_master
// table b-tree, using only the core page-walking packages -- no
// database/sql, no second file handle. This is the provider cmd/sleuth
// uses by default, since it has zero extra dependencies and degrades
// the same way the rest of the core does on a corrupt file (a bad
// schema page yields a short or empty root list rather than a panic).
type CoreProvider struct {
	Pager *pager.Pager
}

const coreMaxDepth = 50

// Roots walks sqlite_master (always rooted at page 1) and decodes each
// row's (type, name, tbl_name, rootpage, sql) record, keeping only rows
// with type "table" or "index" and a positive rootpage. Corrupt or unreadable
// cells are skipped rather than aborting the whole scan.
func (p *CoreProvider) Roots(ctx context.Context) ([]Root, error) {
	usable := p.Pager.Header().Usable()
	var out []Root
	p.walk(1, 0, usable, &out)
	return out, nil
}

func (p *CoreProvider) walk(pgno, depth, usable int, out *[]Root) {
	if depth > coreMaxDepth || pgno < 1 || pgno > p.Pager.MaxPage() {
		return
	}
	page, err := p.Pager.ReadPage(pgno)
	if err != nil {
		return
	}

	pageStart := 0
	if pgno == 1 {
		pageStart = 100
	}
	if pageStart+8 > len(page) {
		return
	}

	numCells, err := varint.U16(page[pageStart+3:])
	if err != nil {
		return
	}
	contentStartRaw, err := varint.U16(page[pageStart+5:])
	if err != nil {
		return
	}
	contentStart := int(contentStartRaw)
	if contentStart == 0 {
		contentStart = 65536
	}

	switch page[pageStart] {
	case 0x05: // table interior
		rightmost, err := varint.U32(page[pageStart+8:])
		if err != nil {
			return
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
				continue
			}
			c, err := cell.Parse(cell.TableInterior, page, int(cellOff), usable)
			if err != nil {
				continue
			}
			p.walk(int(c.LeftChild), depth+1, usable, out)
		}
		p.walk(int(rightmost), depth+1, usable, out)

	case 0x0d: // table leaf
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
				continue
			}
			c, err := cell.Parse(cell.TableLeaf, page, int(cellOff), usable)
			if err != nil {
				continue
			}
			if root, ok := decodeSchemaRow(c.Local); ok {
				*out = append(*out, root)
			}
		}
	}
}

// decodeSchemaRow decodes a sqlite_master row's local payload into a
// Root, keeping only rows describing a table or index with a positive
// root page.
func decodeSchemaRow(local []byte) (Root, bool) {
	rec, err := record.Parse(local)
	if err != nil || rec.NumColumns() < 4 {
		return Root{}, false
	}

	typ, err := rec.AsString(0)
	if err != nil || (typ != "table" && typ != "index") {
		return Root{}, false
	}
	name, err := rec.AsString(1)
	if err != nil || name == "" {
		return Root{}, false
	}
	rootPage, err := rec.AsInt64(3)
	if err != nil || rootPage <= 0 {
		return Root{}, false
	}

	return Root{Name: name, Page: int(rootPage)}, true
}
