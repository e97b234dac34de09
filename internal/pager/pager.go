// Package pager opens a sqlite database file read-only, parses and
// validates its 100-byte header, and serves individual pages by number.
// Every other core package builds on top of a *Pager; none of them touch
// the file directly.
package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dbsleuth/sleuth/internal/errs"
)

// Magic is the fixed 16-byte value every sqlite3 database file begins with.
const Magic = "SQLite format 3\x00"

// HeaderSize is the size, in bytes, of the database header at the start of page 1.
const HeaderSize = 100

// Header mirrors the on-disk database header described at
// https://www.sqlite.org/fileformat.html#the_database_header. All
// multi-byte fields are big-endian, as is everything in a sqlite file.
type Header struct {
	Magic           [16]byte
	PageSizeRaw     uint16 // 1 means 65536, 0 means 1024
	WriteVersion    byte
	ReadVersion     byte
	PageReserved    byte
	MaxEmbeddedFrac byte // must be 64
	MinEmbeddedFrac byte // must be 32
	LeafFrac        byte // must be 32
	ChangeCounter   uint32
	SizeInHeader    uint32 // database size in pages; possibly stale
	FreelistTrunk   uint32 // first freelist trunk page, 0 if none
	FreelistCount   uint32 // total number of freelist pages
	SchemaCookie    uint32
	SchemaFormat    uint32
	PageCacheSize   uint32
	AutoVacuum      uint32 // largest root btree page in auto/incr-vacuum mode, 0 otherwise
	TextEncoding    uint32
	UserVersion     uint32
	IncrVacuum      uint32
	ApplicationID   uint32

	_ [20]byte // reserved for expansion, must be zero

	VersionValidFor uint32
	LibraryVersion  uint32
}

// PageSize returns the effective page size in bytes, resolving the
// special-cased raw values (1 => 65536, 0 => 1024).
func (h *Header) PageSize() int {
	switch h.PageSizeRaw {
	case 1:
		return 65536
	case 0:
		return 1024
	default:
		return int(h.PageSizeRaw)
	}
}

// Usable returns the usable page size: PageSize minus reserved bytes.
func (h *Header) Usable() int { return h.PageSize() - int(h.PageReserved) }

// AutoVacuumEnabled reports whether the file uses auto-vacuum or
// incremental-vacuum mode.
func (h *Header) AutoVacuumEnabled() bool { return h.AutoVacuum != 0 }

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// Validate checks the header for the structural absurdities spec'd as
// fatal to the whole process: bad magic, unreadable page size, usable
// size dropping below sqlite's documented floor, or payload fractions
// that aren't the fixed 64/32/32 triple.
func (h *Header) Validate() error {
	if string(h.Magic[:]) != Magic {
		return errs.New(errs.NotSqlite, "magic mismatch")
	}

	sz := h.PageSize()
	if sz < 512 || sz > 65536 || !isPowerOfTwo(sz) {
		return errs.New(errs.InvalidHeader, fmt.Sprintf("page size %d is not a power of two in [512, 65536]", sz))
	}

	if h.Usable() < 480 {
		return errs.New(errs.InvalidHeader, "usable page size is below the minimum of 480 bytes")
	}

	if h.MaxEmbeddedFrac != 64 || h.MinEmbeddedFrac != 32 || h.LeafFrac != 32 {
		return errs.New(errs.InvalidHeader, "payload fraction values are not the fixed 64/32/32")
	}

	return nil
}

// Pager serves fixed-size pages from a read-only database file.
type Pager struct {
	file     io.ReaderAt
	closer   io.Closer
	pageSize int
	maxPage  int
	header   Header
}

// Open opens name read-only and parses its header.
func Open(name string) (*Pager, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "open", err)
	}

	p, err := New(f, fileSizer{f})
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	p.closer = f
	return p, nil
}

// New builds a Pager over r, using sized to determine the file length.
// r must support ReaderAt for page-independent reads. A Pager built by
// New has nothing to close; Open and OpenFile attach the file as the
// closer that Close invokes.
func New(r io.ReaderAt, sized sizer) (*Pager, error) {
	var raw [HeaderSize]byte
	if _, err := r.ReadAt(raw[:], 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errs.New(errs.NotSqlite, "file shorter than the 100-byte header")
		}
		return nil, errs.Wrap(errs.IoError, "read header", err)
	}

	var header Header
	if err := binary.Read(bytes.NewReader(raw[:]), binary.BigEndian, &header); err != nil {
		return nil, errs.Wrap(errs.InvalidHeader, "decode header", err)
	}

	if err := header.Validate(); err != nil {
		return nil, err
	}

	fileSize, err := sized.Size()
	if err != nil {
		return nil, errs.Wrap(errs.IoError, "stat", err)
	}

	maxPage := int((fileSize + int64(header.PageSize()) - 1) / int64(header.PageSize()))

	return &Pager{file: r, pageSize: header.PageSize(), maxPage: maxPage, header: header}, nil
}

// sizer reports the total size, in bytes, of the underlying stream.
type sizer interface {
	Size() (int64, error)
}

// fileSizer adapts an *os.File to sizer.
type fileSizer struct{ f *os.File }

func (s fileSizer) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Header returns a copy of the parsed database header.
func (p *Pager) Header() Header { return p.header }

// PageSize returns the page size in bytes.
func (p *Pager) PageSize() int { return p.pageSize }

// MaxPage returns the highest page number derivable from the file's
// length, independent of (and preferred over) the header's own,
// possibly-stale, size field.
func (p *Pager) MaxPage() int { return p.maxPage }

// ReadPage reads the page numbered pgno (1-based) and returns a freshly
// allocated buffer holding exactly PageSize bytes. Each call allocates its
// own buffer so a recursive walker's parent frame is never invalidated by
// a child's read.
func (p *Pager) ReadPage(pgno int) ([]byte, error) {
	if pgno < 1 || pgno > p.maxPage {
		return nil, errs.OnPage(errs.RangeError, pgno, fmt.Sprintf("page index out of range (1..%d)", p.maxPage))
	}

	buf := make([]byte, p.pageSize)
	off := int64(pgno-1) * int64(p.pageSize)
	n, err := p.file.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, errs.WrapOnPage(errs.IoError, pgno, "read page", err)
	}
	if n < len(buf) {
		return nil, errs.OnPage(errs.IoError, pgno, "short read")
	}

	return buf, nil
}

// Close closes the underlying file handle, if Open (rather than New) was
// used to construct the Pager.
func (p *Pager) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// OpenFile is a convenience constructor mirroring Open's signature but
// accepting an already-open *os.File, useful for tests that build a
// synthetic database in a temp file.
func OpenFile(f *os.File) (*Pager, error) {
	p, err := New(f, fileSizer{f})
	if err != nil {
		return nil, err
	}
	p.closer = f
	return p, nil
}

// bytesSizer adapts a *bytes.Reader to sizer.
type bytesSizer struct{ r *bytes.Reader }

func (s bytesSizer) Size() (int64, error) { return s.r.Size(), nil }

// FromBytes builds a Pager directly over an in-memory image, used by
// tests that assemble synthetic pages by hand rather than reading a real
// database file from disk.
func FromBytes(b []byte) (*Pager, error) {
	r := bytes.NewReader(b)
	return New(r, bytesSizer{r})
}
