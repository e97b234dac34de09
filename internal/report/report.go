// Package report defines the stable-shaped result structs the query
// façade in internal/account returns, and their text renderings. Field
// names here are load-bearing: cmd/sleuth's --json output and any
// script scraping the text output depend on them staying put even if
// the surrounding prose changes.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dbsleuth/sleuth/internal/role"
)

// TrunkEntry is one freelist trunk page and the leaves it lists.
type TrunkEntry struct {
	Page      int   `json:"page"`
	NextTrunk int   `json:"next_trunk"`
	Leaves    []int `json:"leaves"`
}

// Freelist is the result of the freelist_check query.
type Freelist struct {
	PageSize       int          `json:"page_size"`
	TotalPages     int          `json:"total_pages"`
	FirstTrunk     int          `json:"first_trunk"`
	ObservedTrunks int          `json:"observed_trunks"`
	ObservedLeaves int          `json:"observed_leaves"`
	HeaderCount    int          `json:"header_count"`
	Verdict        string       `json:"verdict"` // "match" | "overage(n)" | "shortage(n)"
	Trunks         []TrunkEntry `json:"trunks"`
}

func (f Freelist) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "page size: %s\n", humanize.Comma(int64(f.PageSize)))
	fmt.Fprintf(&b, "total pages: %s\n", humanize.Comma(int64(f.TotalPages)))
	fmt.Fprintf(&b, "first trunk: %d\n", f.FirstTrunk)
	fmt.Fprintf(&b, "observed: %s trunks, %s leaves\n",
		humanize.Comma(int64(f.ObservedTrunks)), humanize.Comma(int64(f.ObservedLeaves)))
	fmt.Fprintf(&b, "header count: %s\n", humanize.Comma(int64(f.HeaderCount)))
	fmt.Fprintf(&b, "verdict: %s\n", f.Verdict)
	for _, tr := range f.Trunks {
		fmt.Fprintf(&b, "  trunk %d -> next %d, %d leaves: %v\n", tr.Page, tr.NextTrunk, len(tr.Leaves), tr.Leaves)
	}
	return b.String()
}

// Account is the result of the account query: a full page-by-page
// accounting of the file.
type Account struct {
	RunID              string         `json:"run_id"`
	TotalPages         int            `json:"total_pages"`
	RoleCounts         map[string]int `json:"role_counts"`
	Unknown            int            `json:"unknown"`
	GhostPtrmapCount   int            `json:"ghost_ptrmap_count"`
	MissingPtrmapCount int            `json:"missing_ptrmap_count"`
	Conflicts          int            `json:"conflicts"`
	OrphanPages        []int          `json:"orphan_pages"`
	UnknownPages       []int          `json:"unknown_pages"`
}

func (a Account) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\n", a.RunID)
	fmt.Fprintf(&b, "total pages: %s\n", humanize.Comma(int64(a.TotalPages)))

	roles := role.All()
	for _, r := range roles {
		if n := a.RoleCounts[r.String()]; n > 0 {
			fmt.Fprintf(&b, "  %-22s %s\n", r.String(), humanize.Comma(int64(n)))
		}
	}
	fmt.Fprintf(&b, "  %-22s %s\n", "unknown", humanize.Comma(int64(a.Unknown)))

	fmt.Fprintf(&b, "ghost ptrmap: %d, missing ptrmap: %d\n", a.GhostPtrmapCount, a.MissingPtrmapCount)
	fmt.Fprintf(&b, "conflicts: %d\n", a.Conflicts)
	if len(a.OrphanPages) > 0 {
		fmt.Fprintf(&b, "orphans (%d): %v\n", len(a.OrphanPages), a.OrphanPages)
	}
	if len(a.UnknownPages) > 0 {
		fmt.Fprintf(&b, "unclassified (%d): %v\n", len(a.UnknownPages), a.UnknownPages)
	}
	return b.String()
}

// Conflicts is the result of the find_conflicts query.
type Conflicts struct {
	Count int   `json:"count"`
	Pages []int `json:"pages"`
}

func (c Conflicts) String() string {
	if c.Count == 0 {
		return "no conflicts\n"
	}
	return fmt.Sprintf("%d conflicts: %v\n", c.Count, c.Pages)
}

// Owner is one `(kind, name, root)` tuple whose walk reaches a queried page.
type Owner struct {
	Kind string `json:"kind"` // "btree" or "freelist"
	Name string `json:"name"`
	Root int    `json:"root"`
}

// PageOwner is the result of the page_owner query for a single page.
type PageOwner struct {
	Page   int     `json:"page"`
	Owners []Owner `json:"owners"`
}

func (p PageOwner) String() string {
	if len(p.Owners) == 0 {
		return fmt.Sprintf("page %d: not in any btree/freelist\n", p.Page)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "page %d:\n", p.Page)
	for _, o := range p.Owners {
		fmt.Fprintf(&b, "  %s %q (root %d)\n", o.Kind, o.Name, o.Root)
	}
	return b.String()
}

// Column is one decoded record column.
type Column struct {
	Index      int    `json:"index"`
	SerialType int64  `json:"serial_type"`
	Kind       string `json:"kind"`
	Value      string `json:"value"`
}

// Dump is the result of the dump_rowid query.
type Dump struct {
	Root          int      `json:"root"`
	Rowid         int64    `json:"rowid"`
	Page          int      `json:"page"`
	RecordSize    int      `json:"record_size"`
	HeaderSizeHex string   `json:"header_size_hex"`
	Columns       []Column `json:"columns"`
	HexDump       string   `json:"hex_dump"`
	OverflowHead  int      `json:"overflow_head,omitempty"`
}

func (d Dump) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rowid %d on root %d, page %d\n", d.Rowid, d.Root, d.Page)
	fmt.Fprintf(&b, "record size: %s, header size: %s\n", humanize.Comma(int64(d.RecordSize)), d.HeaderSizeHex)
	for _, c := range d.Columns {
		fmt.Fprintf(&b, "  [%d] serial=%d %s: %s\n", c.Index, c.SerialType, c.Kind, c.Value)
	}
	fmt.Fprintf(&b, "hex: %s\n", d.HexDump)
	if d.OverflowHead != 0 {
		fmt.Fprintf(&b, "overflow head: page %d\n", d.OverflowHead)
	}
	return b.String()
}

// sortInts sorts and returns pages for deterministic report output.
func sortInts(pages []int) []int {
	out := append([]int{}, pages...)
	sort.Ints(out)
	return out
}

// SortPages is exported so account can hand back deterministically
// ordered page lists without every caller re-implementing sort.Ints.
func SortPages(pages []int) []int { return sortInts(pages) }
