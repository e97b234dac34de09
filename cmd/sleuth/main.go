// Command sleuth inspects a SQLite database file at the raw page level,
// independent of the normal engine, to diagnose corruption the engine
// itself cannot see or recover from.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/dbsleuth/sleuth/internal/account"
	"github.com/dbsleuth/sleuth/internal/btree"
	"github.com/dbsleuth/sleuth/internal/diag"
	"github.com/dbsleuth/sleuth/internal/errs"
	"github.com/dbsleuth/sleuth/internal/freelist"
	"github.com/dbsleuth/sleuth/internal/pager"
	"github.com/dbsleuth/sleuth/internal/schema"
)

const version = "0.1.0"

// CLI defines sleuth's command-line interface: five query commands plus
// version, no nested groups, since there is no natural grouping at this
// scale.
var CLI struct {
	JSON              bool         `help:"Emit JSON instead of text" name:"json"`
	MaxDepth          int          `help:"Override the b-tree recursion depth cap" default:"50" name:"max-depth"`
	MaxFreelistTrunks int          `help:"Override the freelist cycle-detection cap" default:"10000" name:"max-freelist-trunks"`
	CrossCheck        bool         `help:"Cross-check the schema walk against database/sql" name:"cross-check"`
	Freelist          FreelistCmd  `cmd:"" help:"Walk and verify the freelist"`
	Account           AccountCmd   `cmd:"" help:"Run a full page accounting"`
	Conflicts         ConflictsCmd `cmd:"" help:"Report pages claimed by two roles"`
	Owner             OwnerCmd     `cmd:"" help:"Report every root whose walk reaches a page"`
	Dump              DumpCmd      `cmd:"" help:"Locate a rowid and dump its record"`
	Version           VersionCmd   `cmd:"" help:"Print version information"`
}

// applyResourceBounds pushes the CLI's resource-bound flags into the
// core packages before any query runs. These are policy knobs, not
// invariants of a well-formed file, so they live as package-level
// overrides rather than threaded through every call.
func applyResourceBounds() {
	btree.MaxDepth = CLI.MaxDepth
	freelist.MaxVisited = CLI.MaxFreelistTrunks
}

type FreelistCmd struct {
	Path string `arg:"" help:"Path to the SQLite database file" type:"existingfile"`
}

func (c *FreelistCmd) Run() error {
	ctx, err := openContext(c.Path)
	if err != nil {
		return err
	}
	defer ctx.Pager.Close()

	rep, d := account.FreelistCheck(ctx)
	render(rep, d)
	return nil
}

type AccountCmd struct {
	Path string `arg:"" help:"Path to the SQLite database file" type:"existingfile"`
}

func (c *AccountCmd) Run() error {
	ctx, err := openContext(c.Path)
	if err != nil {
		return err
	}
	defer ctx.Pager.Close()

	roots, err := resolveRoots(ctx, c.Path)
	if err != nil {
		ctx.Logger.Warn("schema resolution failed; accounting sqlite_master only", "error", err)
	}

	rep, d := account.Account(ctx, roots)
	render(rep, d)

	if len(rep.OrphanPages) > 0 {
		writePgnoFile("orphans.txt", rep.OrphanPages)
	}
	if len(rep.UnknownPages) > 0 {
		writePgnoFile("unknown.txt", rep.UnknownPages)
	}
	return nil
}

type ConflictsCmd struct {
	Path string `arg:"" help:"Path to the SQLite database file" type:"existingfile"`
}

func (c *ConflictsCmd) Run() error {
	ctx, err := openContext(c.Path)
	if err != nil {
		return err
	}
	defer ctx.Pager.Close()

	roots, _ := resolveRoots(ctx, c.Path)
	rep, d := account.FindConflicts(ctx, roots)
	render(rep, d)
	return nil
}

type OwnerCmd struct {
	Path string `arg:"" help:"Path to the SQLite database file" type:"existingfile"`
	Page int    `arg:"" help:"Page number to look up"`
}

func (c *OwnerCmd) Run() error {
	ctx, err := openContext(c.Path)
	if err != nil {
		return err
	}
	defer ctx.Pager.Close()

	roots, _ := resolveRoots(ctx, c.Path)
	rep, d := account.PageOwner(ctx, roots, c.Page)
	render(rep, d)
	return nil
}

type DumpCmd struct {
	Path  string `arg:"" help:"Path to the SQLite database file" type:"existingfile"`
	Root  int    `arg:"" help:"Root page of the table to search"`
	Rowid int64  `arg:"" help:"Rowid to locate"`
}

func (c *DumpCmd) Run() error {
	ctx, err := openContext(c.Path)
	if err != nil {
		return err
	}
	defer ctx.Pager.Close()

	rep, d, err := account.DumpRowid(ctx, c.Root, c.Rowid)
	if err != nil {
		printDiagnostics(d)
		if err == account.ErrRowidNotFound {
			fmt.Fprintf(os.Stderr, "rowid %d not found on root %d\n", c.Rowid, c.Root)
			os.Exit(2)
		}
		return err
	}
	render(*rep, d)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("sleuth version %s\n", version)
	return nil
}

func openContext(path string) (*account.Context, error) {
	p, err := pager.Open(path)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return account.NewContext(p, logger), nil
}

func resolveRoots(ctx *account.Context, path string) ([]account.Root, error) {
	core := &schema.CoreProvider{Pager: ctx.Pager}
	coreRoots, err := core.Roots(context.Background())
	if err != nil {
		return nil, err
	}

	if CLI.CrossCheck {
		sqlProvider := &schema.SQLProvider{Path: path}
		sqlRoots, sqlErr := sqlProvider.Roots(context.Background())
		if sqlErr != nil {
			ctx.Logger.Warn("cross-check query failed", "error", sqlErr)
		} else if len(sqlRoots) != len(coreRoots) {
			ctx.Logger.Warn("schema cross-check mismatch", "core_roots", len(coreRoots), "sql_roots", len(sqlRoots))
		}
	}

	out := make([]account.Root, 0, len(coreRoots))
	for _, r := range coreRoots {
		out = append(out, account.Root{Name: r.Name, Page: r.Page})
	}
	return out, nil
}

func render(v any, d *diag.List) {
	if CLI.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
	} else if s, ok := v.(fmt.Stringer); ok {
		fmt.Print(s.String())
	} else {
		fmt.Printf("%+v\n", v)
	}
	printDiagnostics(d)
}

func printDiagnostics(d *diag.List) {
	if d == nil || d.Len() == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "%d diagnostic(s):\n", d.Len())
	for _, e := range d.Entries() {
		fmt.Fprintf(os.Stderr, "  %s\n", e.String())
	}
}

func writePgnoFile(name string, pages []int) {
	f, err := os.Create(name)
	if err != nil {
		return
	}
	defer f.Close()
	for _, p := range pages {
		fmt.Fprintln(f, p)
	}
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("sleuth"),
		kong.Description("forensic page-level inspector for SQLite database files"),
		kong.UsageOnError(),
	)
	applyResourceBounds()

	err := kctx.Run()
	if err != nil {
		if k, ok := errs.KindOf(err); ok && k.Fatal() {
			kctx.FatalIfErrorf(err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
