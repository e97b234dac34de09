// Package record decodes sqlite's record format: a varint header size,
// followed by a run of serial-type varints describing each column, followed
// by the column data itself packed back-to-back with no padding.
package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/dbsleuth/sleuth/internal/errs"
	"github.com/dbsleuth/sleuth/internal/varint"
)

// maxHeaderSize bounds how large a record header is allowed to claim to
// be, independent of the record's actual size, guarding against a
// corrupt varint claiming an absurd header length.
const maxHeaderSize = 10_000

// Column describes one value's position and serial type within a record.
type Column struct {
	SerialType int64
	Offset     int // byte offset from the start of the record (header included)
}

// Record is a parsed sqlite record: a schema of columns plus the raw
// byte slice its values are decoded from.
type Record struct {
	data    []byte
	columns []Column
}

// Parse reads a record header from the start of data and returns the
// parsed schema. Decoding individual values is deferred to Value, so a
// caller that only wants the serial-type layout (e.g. to dump it) never
// pays for decoding bytes it doesn't need.
func Parse(data []byte) (*Record, error) {
	headerSize, n, err := varint.Decode(data)
	if err != nil {
		return nil, errs.Wrap(errs.FormatError, "decode record header size", err)
	}

	if headerSize < int64(n) {
		return nil, errs.New(errs.FormatError, "record header size smaller than its own varint")
	}
	if headerSize > maxHeaderSize {
		return nil, errs.New(errs.FormatError, fmt.Sprintf("record header size %d exceeds sanity cap %d", headerSize, maxHeaderSize))
	}
	if int(headerSize) > len(data) {
		return nil, errs.New(errs.FormatError, "record header size exceeds record size")
	}

	var columns []Column
	bodyOffset := int(headerSize)
	pos := n
	for pos < int(headerSize) {
		st, m, err := varint.Decode(data[pos:])
		if err != nil {
			return nil, errs.Wrap(errs.FormatError, "decode serial type", err)
		}
		columns = append(columns, Column{SerialType: st, Offset: bodyOffset})
		bodyOffset += typeSize(st)
		pos += m
	}

	return &Record{data: data, columns: columns}, nil
}

// NumColumns returns the number of columns described by the record header.
func (r *Record) NumColumns() int { return len(r.columns) }

// Columns returns the parsed column schema (serial type + offset), useful
// for presenting a record without decoding every value.
func (r *Record) Columns() []Column { return r.columns }

// HeaderSize returns the number of bytes the record's header (the varint
// header-size field plus the run of serial-type varints) occupied. Every
// column's data lives at or after this offset.
func (r *Record) HeaderSize() int {
	if len(r.columns) == 0 {
		hs, _, _ := varint.Decode(r.data)
		return int(hs)
	}
	return r.columns[0].Offset
}

// Value returns the decoded Go value for column c: nil, int64, float64,
// string, or []byte, depending on the column's serial type.
func (r *Record) Value(c int) (any, error) {
	if c < 0 || c >= len(r.columns) {
		return nil, errs.New(errs.FormatError, fmt.Sprintf("column %d out of range (0..%d)", c, len(r.columns)-1))
	}
	col := r.columns[c]
	return decode(r.data, col)
}

func decode(data []byte, col Column) (any, error) {
	st := col.SerialType
	off := col.Offset

	switch st {
	case 0:
		return nil, nil
	case 1:
		if off+1 > len(data) {
			return nil, errs.New(errs.FormatError, "truncated 8-bit integer")
		}
		return int64(int8(data[off])), nil
	case 2:
		if off+2 > len(data) {
			return nil, errs.New(errs.FormatError, "truncated 16-bit integer")
		}
		return int64(int16(binary.BigEndian.Uint16(data[off : off+2]))), nil
	case 3:
		if off+3 > len(data) {
			return nil, errs.New(errs.FormatError, "truncated 24-bit integer")
		}
		return int64(sext(data[off:off+3], 3)), nil
	case 4:
		if off+4 > len(data) {
			return nil, errs.New(errs.FormatError, "truncated 32-bit integer")
		}
		return int64(int32(binary.BigEndian.Uint32(data[off : off+4]))), nil
	case 5:
		if off+6 > len(data) {
			return nil, errs.New(errs.FormatError, "truncated 48-bit integer")
		}
		return sext(data[off:off+6], 6), nil
	case 6:
		if off+8 > len(data) {
			return nil, errs.New(errs.FormatError, "truncated 64-bit integer")
		}
		return int64(binary.BigEndian.Uint64(data[off : off+8])), nil
	case 7:
		if off+8 > len(data) {
			return nil, errs.New(errs.FormatError, "truncated float")
		}
		bits := binary.BigEndian.Uint64(data[off : off+8])
		return math.Float64frombits(bits), nil
	case 8:
		return int64(0), nil
	case 9:
		return int64(1), nil
	default:
		if st >= 12 && st%2 == 0 {
			n := int((st - 12) / 2)
			if off+n > len(data) {
				return nil, errs.New(errs.FormatError, "truncated blob")
			}
			buf := make([]byte, n)
			copy(buf, data[off:off+n])
			return buf, nil
		}
		if st >= 13 && st%2 != 0 {
			n := int((st - 13) / 2)
			if off+n > len(data) {
				return nil, errs.New(errs.FormatError, "truncated text")
			}
			s := string(data[off : off+n])
			if idx := strings.IndexByte(s, 0); idx >= 0 {
				s = s[:idx]
			}
			return s, nil
		}
		return nil, errs.New(errs.FormatError, fmt.Sprintf("unknown serial type %d", st))
	}
}

// sext sign-extends an n-byte (n < 8) big-endian twos-complement integer
// found in b to a full int64.
func sext(b []byte, n int) int64 {
	var buf [8]byte
	if b[0]&0x80 != 0 {
		for i := range buf {
			buf[i] = 0xff
		}
	}
	copy(buf[8-n:], b)
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// typeSize returns the number of data bytes a serial type occupies.
func typeSize(st int64) int {
	switch st {
	case 0, 8, 9:
		return 0
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 3
	case 4:
		return 4
	case 5:
		return 6
	case 6, 7:
		return 8
	default:
		if st >= 12 && st%2 == 0 {
			return int((st - 12) / 2)
		}
		if st >= 13 && st%2 != 0 {
			return int((st - 13) / 2)
		}
		return 0
	}
}

// AsInt64 decodes column c as an integer, converting floats by
// truncation the way sqlite's own affinity coercion does.
func (r *Record) AsInt64(c int) (int64, error) {
	v, err := r.Value(c)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, nil
	}
}

// AsString decodes column c as a string, returning "" for any
// non-string value (including NULL).
func (r *Record) AsString(c int) (string, error) {
	v, err := r.Value(c)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}
