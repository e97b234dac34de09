// Package schema supplies the accountant's (name, root_page) pairs. The
// core engine in internal/account never cares how this list was
// produced -- this package is a pure collaborator, swappable for a
// brute-force page scan or a user-supplied list without the walkers
// themselves changing at all.
package schema

import (
	"context"
)

// Root is a single schema-table entry: a named b-tree root page.
type Root struct {
	Name string
	Page int
}

// Provider enumerates the schema roots of a database file.
type Provider interface {
	Roots(ctx context.Context) ([]Root, error)
}
