// Package cell parses the four b-tree cell shapes sqlite defines
// (table-leaf, table-interior, index-leaf, index-interior) and implements
// the exact local/overflow payload split formulas from the file format
// spec. Table cells and index cells use distinct formulas -- a detail the
// reference implementations in the wild are inconsistent about -- so this
// package never lets an index cell reuse the table formula or vice versa.
package cell

import (
	"github.com/dbsleuth/sleuth/internal/errs"
	"github.com/dbsleuth/sleuth/internal/varint"
)

// Kind identifies which of the four b-tree cell shapes a Cell holds.
type Kind int

const (
	TableLeaf Kind = iota
	TableInterior
	IndexLeaf
	IndexInterior
)

// Split describes how a payload of a given size divides between the
// bytes stored locally, in the b-tree page, and the bytes spilled into
// an overflow chain.
type Split struct {
	Total    int // total payload size
	Local    int // bytes stored locally, immediately after the cell header
	Overflow int // bytes stored in the overflow chain; 0 if none
}

// TableSplit computes the local/overflow split for a table b-tree cell
// (table-leaf payload), per maxLocalTable = U-35, minLocal =
// ((U-12)*32/255)-23.
func TableSplit(usable, payload int) Split {
	maxLocal := usable - 35
	return split(usable, payload, maxLocal)
}

// IndexSplit computes the local/overflow split for an index b-tree cell
// (index-leaf or index-interior payload), per maxLocalIndex =
// ((U-12)*64/255)-23, minLocal = ((U-12)*32/255)-23. This is distinct
// from TableSplit -- index cells are never allowed to fall back to the
// table formula.
func IndexSplit(usable, payload int) Split {
	maxLocal := ((usable-12)*64)/255 - 23
	return split(usable, payload, maxLocal)
}

func split(usable, payload, maxLocal int) Split {
	if payload <= maxLocal {
		return Split{Total: payload, Local: payload, Overflow: 0}
	}

	minLocal := (usable-12)*32/255 - 23
	k := minLocal + (payload-minLocal)%(usable-4)

	local := k
	if k > maxLocal {
		local = minLocal
	}

	return Split{Total: payload, Local: local, Overflow: payload - local}
}

// Cell holds the decoded fields of a single b-tree cell. Not every field
// is meaningful for every Kind: LeftChild is set only for interior
// cells, Rowid only for table cells, and Split/Local/OverflowPage only
// when the cell shape carries a payload.
type Cell struct {
	Kind         Kind
	LeftChild    int32 // page number of the left child; interior cells only
	Rowid        int64 // table cells only
	Split        Split
	Local        []byte // the locally-stored payload prefix
	OverflowPage int32  // first overflow page, 0 if the payload is entirely local
}

// HasOverflow reports whether any part of the payload spilled into an
// overflow chain.
func (c *Cell) HasOverflow() bool { return c.Split.Overflow > 0 }

// Parse decodes a cell of the given kind starting at offset off within
// page. usable is the page's usable size (pageSize - reserved), used for
// the local/overflow split formulas.
func Parse(kind Kind, page []byte, off, usable int) (*Cell, error) {
	if off < 0 || off > len(page) {
		return nil, errs.New(errs.FormatError, "cell offset out of bounds")
	}
	b := page[off:]

	switch kind {
	case TableInterior:
		left, err := readI32(b)
		if err != nil {
			return nil, err
		}
		rowid, n, err := varint.Decode(b[4:])
		if err != nil {
			return nil, errs.Wrap(errs.FormatError, "decode rowid", err)
		}
		_ = n
		return &Cell{Kind: kind, LeftChild: left, Rowid: rowid}, nil

	case TableLeaf:
		size, n1, err := varint.Decode(b)
		if err != nil {
			return nil, errs.Wrap(errs.FormatError, "decode payload size", err)
		}
		rowid, n2, err := varint.Decode(b[n1:])
		if err != nil {
			return nil, errs.Wrap(errs.FormatError, "decode rowid", err)
		}
		c, err := parsePayload(kind, b[n1+n2:], int(size), usable, TableSplit)
		if err != nil {
			return nil, err
		}
		c.Rowid = rowid
		return c, nil

	case IndexInterior:
		left, err := readI32(b)
		if err != nil {
			return nil, err
		}
		size, n, err := varint.Decode(b[4:])
		if err != nil {
			return nil, errs.Wrap(errs.FormatError, "decode payload size", err)
		}
		c, err := parsePayload(kind, b[4+n:], int(size), usable, IndexSplit)
		if err != nil {
			return nil, err
		}
		c.LeftChild = left
		return c, nil

	case IndexLeaf:
		size, n, err := varint.Decode(b)
		if err != nil {
			return nil, errs.Wrap(errs.FormatError, "decode payload size", err)
		}
		return parsePayload(kind, b[n:], int(size), usable, IndexSplit)

	default:
		return nil, errs.New(errs.FormatError, "unknown cell kind")
	}
}

func readI32(b []byte) (int32, error) {
	v, err := varint.U32(b)
	if err != nil {
		return 0, errs.Wrap(errs.FormatError, "decode child pointer", err)
	}
	return int32(v), nil
}

func parsePayload(kind Kind, b []byte, size, usable int, splitFn func(usable, payload int) Split) (*Cell, error) {
	if size < 0 {
		return nil, errs.New(errs.FormatError, "negative payload size")
	}

	sp := splitFn(usable, size)
	if sp.Local < 0 || sp.Local > len(b) {
		return nil, errs.New(errs.FormatError, "local payload length infeasible for page boundary")
	}

	local := make([]byte, sp.Local)
	copy(local, b[:sp.Local])

	c := &Cell{Kind: kind, Split: sp, Local: local}

	if sp.Overflow > 0 {
		rest := b[sp.Local:]
		op, err := varint.U32(rest)
		if err != nil {
			return nil, errs.Wrap(errs.FormatError, "decode overflow page pointer", err)
		}
		c.OverflowPage = int32(op)
	}

	return c, nil
}
