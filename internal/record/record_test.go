package record

import "testing"

// buildRecord assembles a minimal sqlite record from a list of serial
// types and their already-encoded data bytes.
func buildRecord(types []int64, data [][]byte) []byte {
	var header []byte
	for _, t := range types {
		header = append(header, encodeVarint(t)...)
	}

	// every test fixture keeps header+1 under 128 so the header-size
	// varint itself always fits in a single byte.
	headerSize := int64(len(header)) + 1
	if headerSize >= 0x80 {
		panic("test fixture header too large for the single-byte assumption")
	}
	hsz := encodeVarint(headerSize)

	out := append([]byte{}, hsz...)
	out = append(out, header...)
	for _, d := range data {
		out = append(out, d...)
	}
	return out
}

func encodeVarint(v int64) []byte {
	if v < 0 {
		panic("negative varint in test helper")
	}
	if v < 0x80 {
		return []byte{byte(v)}
	}
	// simple multi-byte encoder sufficient for small test values
	var buf []byte
	u := uint64(v)
	for u > 0 {
		buf = append([]byte{byte(u & 0x7f)}, buf...)
		u >>= 7
	}
	for i := 0; i < len(buf)-1; i++ {
		buf[i] |= 0x80
	}
	return buf
}

func TestParse_null_and_small_ints(t *testing.T) {
	data := buildRecord(
		[]int64{0, 8, 9, 1},
		[][]byte{{}, {}, {}, {0x7f}},
	)

	rec, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if rec.NumColumns() != 4 {
		t.Fatalf("expected 4 columns; got %d", rec.NumColumns())
	}

	if v, err := rec.Value(0); err != nil || v != nil {
		t.Errorf("expected nil; got %v (err=%v)", v, err)
	}
	if v, err := rec.Value(1); err != nil || v != int64(0) {
		t.Errorf("expected 0; got %v (err=%v)", v, err)
	}
	if v, err := rec.Value(2); err != nil || v != int64(1) {
		t.Errorf("expected 1; got %v (err=%v)", v, err)
	}
	if v, err := rec.Value(3); err != nil || v != int64(127) {
		t.Errorf("expected 127; got %v (err=%v)", v, err)
	}
}

func TestParse_text_strips_embedded_nul(t *testing.T) {
	text := "hi\x00garbage"
	n := int64(len(text))
	data := buildRecord([]int64{13 + 2*n}, [][]byte{[]byte(text)})

	rec, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	s, err := rec.AsString(0)
	if err != nil {
		t.Fatal(err)
	}
	if s != "hi" {
		t.Errorf("expected %q; got %q", "hi", s)
	}
}

func TestParse_blob(t *testing.T) {
	blob := []byte{0xde, 0xad, 0xbe, 0xef}
	n := int64(len(blob))
	data := buildRecord([]int64{12 + 2*n}, [][]byte{blob})

	rec, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	v, err := rec.Value(0)
	if err != nil {
		t.Fatal(err)
	}
	b, ok := v.([]byte)
	if !ok {
		t.Fatalf("expected []byte; got %T", v)
	}
	if len(b) != 4 || b[2] != 0xbe {
		t.Errorf("unexpected blob contents: %v", b)
	}
}

func TestParse_header_size_exceeds_record(t *testing.T) {
	// a header-size varint claiming far more than the record actually holds
	if _, err := Parse([]byte{100}); err == nil {
		t.Error("expected error for header size exceeding record size")
	}
}

func TestParse_float_and_64bit_int(t *testing.T) {
	var buf []byte
	// 64-bit int 0x0102030405060708
	buf = append(buf, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08)
	// IEEE-754 double 1.5
	fl := []byte{0x3f, 0xf8, 0, 0, 0, 0, 0, 0}
	data := buildRecord([]int64{6, 7}, [][]byte{buf, fl})

	rec, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	v, err := rec.AsInt64(0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x0102030405060708 {
		t.Errorf("unexpected int64: %#x", v)
	}
	f, err := rec.Value(1)
	if err != nil {
		t.Fatal(err)
	}
	if f != float64(1.5) {
		t.Errorf("unexpected float: %v", f)
	}
}
