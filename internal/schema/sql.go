package schema

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure Go driver, used only to cross-check the core's own schema walk
)

// SQLProvider opens the same file a second time through database/sql
// and asks sqlite's own engine for the schema, rather than walking raw
// pages for it. Diffing its result against CoreProvider's is how
// cmd/sleuth's --cross-check flag notices a schema page the core walker
// misread (or one the real engine itself can no longer parse).
type SQLProvider struct {
	Path string
}

// Roots queries sqlite_schema through a short-lived read-only
// connection, opened and closed within this call so it never competes
// with the core's own open file handle for the duration of a run.
func (p *SQLProvider) Roots(ctx context.Context) ([]Root, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", p.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", p.Path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT name, rootpage FROM sqlite_schema WHERE type IN ('table','index') AND rootpage > 0`)
	if err != nil {
		return nil, fmt.Errorf("schema: query sqlite_schema: %w", err)
	}
	defer rows.Close()

	var out []Root
	for rows.Next() {
		var r Root
		if err := rows.Scan(&r.Name, &r.Page); err != nil {
			return nil, fmt.Errorf("schema: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
