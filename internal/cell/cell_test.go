package cell

import "testing"

func TestTableSplit_fits_locally(t *testing.T) {
	const usable = 512
	sp := TableSplit(usable, 100)
	if sp.Local != 100 || sp.Overflow != 0 {
		t.Errorf("TableSplit(512, 100) = %+v, want all-local", sp)
	}
}

func TestTableSplit_overflows(t *testing.T) {
	const usable = 512
	sp := TableSplit(usable, 600)
	// maxLocal = 512-35 = 477, minLocal = (500*32/255)-23 = 39
	// k = 39 + (600-39) % 508 = 39 + 561%508 = 39+53 = 92
	if sp.Local != 92 {
		t.Errorf("Local = %d, want 92", sp.Local)
	}
	if sp.Overflow != 600-92 {
		t.Errorf("Overflow = %d, want %d", sp.Overflow, 600-92)
	}
}

func TestIndexSplit_distinct_from_table(t *testing.T) {
	const usable = 512
	payload := 400
	ts := TableSplit(usable, payload)
	is := IndexSplit(usable, payload)
	// maxLocalTable=477 vs maxLocalIndex=((500)*64/255)-23=102; at payload=400
	// the table split keeps it all local while the index split must spill.
	if ts.Overflow != 0 {
		t.Fatalf("table split at payload 400 should be fully local, got %+v", ts)
	}
	if is.Overflow == 0 {
		t.Fatalf("index split at payload 400 should overflow, got %+v", is)
	}
}

func TestParse_TableLeaf_all_local(t *testing.T) {
	const usable = 512
	// payload size 3 (varint), rowid 1 (varint), then 3 bytes of payload
	page := []byte{3, 1, 0xaa, 0xbb, 0xcc}
	c, err := Parse(TableLeaf, page, 0, usable)
	if err != nil {
		t.Fatal(err)
	}
	if c.Rowid != 1 {
		t.Errorf("Rowid = %d, want 1", c.Rowid)
	}
	if len(c.Local) != 3 || c.Local[0] != 0xaa {
		t.Errorf("Local = %v, want [aa bb cc]", c.Local)
	}
	if c.HasOverflow() {
		t.Error("HasOverflow() = true, want false")
	}
}

func TestParse_TableInterior(t *testing.T) {
	page := []byte{0, 0, 0, 7, 42} // left child 7, rowid varint 42
	c, err := Parse(TableInterior, page, 0, 512)
	if err != nil {
		t.Fatal(err)
	}
	if c.LeftChild != 7 {
		t.Errorf("LeftChild = %d, want 7", c.LeftChild)
	}
	if c.Rowid != 42 {
		t.Errorf("Rowid = %d, want 42", c.Rowid)
	}
}

func TestParse_rejects_offset_out_of_bounds(t *testing.T) {
	page := []byte{1, 2, 3}
	if _, err := Parse(TableLeaf, page, 10, 512); err == nil {
		t.Fatal("expected an error for an out-of-bounds offset")
	}
}

func TestParse_TableLeaf_with_overflow(t *testing.T) {
	const usable = 512
	payload := make([]byte, 92+4) // local bytes + a 4-byte overflow pointer
	for i := range payload[:92] {
		payload[i] = byte(i)
	}
	// overflow page pointer = 5, big-endian u32
	payload[92], payload[93], payload[94], payload[95] = 0, 0, 0, 5

	var cellBytes []byte
	cellBytes = append(cellBytes, encodeVarint(600)...) // payload size
	cellBytes = append(cellBytes, encodeVarint(1)...)   // rowid
	cellBytes = append(cellBytes, payload...)

	c, err := Parse(TableLeaf, cellBytes, 0, usable)
	if err != nil {
		t.Fatal(err)
	}
	if !c.HasOverflow() {
		t.Fatal("expected HasOverflow() = true")
	}
	if c.OverflowPage != 5 {
		t.Errorf("OverflowPage = %d, want 5", c.OverflowPage)
	}
	if len(c.Local) != 92 {
		t.Errorf("len(Local) = %d, want 92", len(c.Local))
	}
}

func encodeVarint(v int64) []byte {
	if v < 0x80 {
		return []byte{byte(v)}
	}
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
