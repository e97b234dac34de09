// Package account is the accountant: it owns the per-run classification
// array, orchestrates the freelist, pointer-map, b-tree and orphan
// walkers in the order the file format implies, and exposes the five
// queries a forensic operator actually runs (freelist_check, account,
// find_conflicts, page_owner, dump_rowid).
package account

import (
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/dbsleuth/sleuth/internal/pager"
)

// Root names a non-sqlite_master b-tree root the caller wants walked,
// typically gathered through a schema.Provider. The accountant itself
// never cares how the (name, root_page) pairs were obtained.
type Root struct {
	Name string
	Page int
}

// Context bundles what one query run needs. It is deliberately never a
// package-level global: two queries running in the same process (even
// concurrently against different files) get independent Contexts, so
// neither one's classification state or run id leaks into the other's.
type Context struct {
	Pager  *pager.Pager
	RunID  uuid.UUID
	Logger *slog.Logger
}

// NewContext builds a Context around an already-open Pager. A nil
// logger falls back to a text handler on stderr, so every query is
// usable without a caller having to wire up logging first.
func NewContext(p *pager.Pager, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	id := uuid.New()
	return &Context{
		Pager:  p,
		RunID:  id,
		Logger: logger.With("run_id", id.String()),
	}
}

// withSchemaMaster prepends the sqlite_master root (always page 1) to a
// caller-supplied root list, since every file has it regardless of what
// a schema.Provider finds.
func withSchemaMaster(roots []Root) []Root {
	out := make([]Root, 0, len(roots)+1)
	out = append(out, Root{Name: "sqlite_master", Page: 1})
	out = append(out, roots...)
	return out
}
