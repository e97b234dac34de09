// Package freelist walks the freelist trunk/leaf chain starting from the
// database header's first-freelist-trunk pointer.
package freelist

import (
	"github.com/dbsleuth/sleuth/internal/diag"
	"github.com/dbsleuth/sleuth/internal/errs"
	"github.com/dbsleuth/sleuth/internal/varint"
)

// MaxVisited bounds the cycle-detection set: beyond this many distinct
// trunk pages, no further trunks are remembered, so cycle detection
// degrades, but the walk keeps going rather than aborting. A cycle among
// the unremembered trunks still ends the walk once it has visited more
// trunks than the file has pages. cmd/sleuth's --max-freelist-trunks
// flag overrides it before a query runs.
var MaxVisited = 10_000

// Reader fetches pages; satisfied by *pager.Pager.
type Reader interface {
	ReadPage(pgno int) ([]byte, error)
	MaxPage() int
	PageSize() int
}

// Trunk describes one freelist trunk page and the leaves it enumerates.
type Trunk struct {
	Page      int
	NextTrunk int
	NumLeaves int // as encoded on the page, before any clamp
	Leaves    []int
	Clamped   bool // true if NumLeaves was clamped to the maximum per-trunk leaf count
}

// Result is the full freelist walk outcome.
type Result struct {
	Trunks       []Trunk
	ObservedPages int // total trunk + leaf pages actually visited
}

// maxLeavesPerTrunk returns the maximum number of leaf pointers a single
// trunk page can hold: (pagesize-8)/4.
func maxLeavesPerTrunk(pageSize int) int { return (pageSize - 8) / 4 }

// Walk follows the chain starting at firstTrunk (0 means "no freelist").
// It never returns a fatal error for malformed freelist content --
// corruption is recorded in d and the walk continues at the next trunk
// or simply stops, per the error-handling design's "freelist: continues
// even when a leaf count was clamped" and "out-of-range pointers abort
// the walk" rules. An out-of-range trunk pointer *does* stop the walk
// (spec: "Every page visited must lie in 1..max_page; out-of-range
// pointers abort the walk with an error"), returning what has been
// collected so far along with the error.
func Walk(r Reader, firstTrunk int, d *diag.List) (Result, error) {
	var res Result
	visited := make(map[int]bool)
	capReported := false
	steps := 0

	next := firstTrunk
	for next != 0 {
		if visited[next] {
			d.AddPage(errs.CycleDetected, next, "freelist trunk revisited")
			break
		}
		if next < 1 || next > r.MaxPage() {
			return res, errs.OnPage(errs.RangeError, next, "freelist trunk pointer out of range")
		}
		steps++
		if steps > r.MaxPage() {
			d.AddPage(errs.CycleDetected, next, "freelist chain visits more trunks than the file has pages; stopping walk")
			break
		}
		if len(visited) < MaxVisited {
			visited[next] = true
		} else if !capReported {
			d.AddPage(errs.CycleDetected, next, "freelist cycle-detection cap reached; cycle detection degraded for the rest of the walk")
			capReported = true
		}

		page, err := r.ReadPage(next)
		if err != nil {
			return res, err
		}
		res.ObservedPages++

		nextTrunk, err := varint.U32(page)
		if err != nil {
			return res, errs.OnPage(errs.FormatError, next, "truncated next-trunk pointer")
		}
		nleavesRaw, err := varint.U32(page[4:])
		if err != nil {
			return res, errs.OnPage(errs.FormatError, next, "truncated leaf count")
		}

		trunk := Trunk{Page: next, NextTrunk: int(nextTrunk), NumLeaves: int(nleavesRaw)}

		maxLeaves := maxLeavesPerTrunk(r.PageSize())
		effective := trunk.NumLeaves
		if effective > maxLeaves || effective < 0 {
			d.AddPage(errs.FormatError, next, "leaf count %d clamped to maximum %d", trunk.NumLeaves, maxLeaves)
			effective = maxLeaves
			trunk.Clamped = true
		}

		for i := 0; i < effective; i++ {
			off := 8 + i*4
			if off+4 > len(page) {
				d.AddPage(errs.FormatError, next, "leaf pointer %d falls outside the page", i)
				break
			}
			leafRaw, err := varint.U32(page[off:])
			if err != nil {
				break
			}
			leaf := int(leafRaw)
			if leaf < 1 || leaf > r.MaxPage() {
				d.AddPage(errs.FormatError, next, "leaf pointer %d (%d) out of range", i, leaf)
				continue
			}
			trunk.Leaves = append(trunk.Leaves, leaf)
			res.ObservedPages++
		}

		res.Trunks = append(res.Trunks, trunk)
		next = int(nextTrunk)
	}

	return res, nil
}
