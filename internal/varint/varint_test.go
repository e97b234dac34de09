package varint

import "testing"

func decode(t *testing.T, b []byte, want int64, wantN int) {
	t.Helper()
	v, n, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if v != want {
		t.Errorf("expected %d got %d", want, v)
	}
	if n != wantN {
		t.Errorf("expected %d bytes consumed; got %d", wantN, n)
	}
}

func decodeErr(t *testing.T, b []byte) {
	t.Helper()
	if _, _, err := Decode(b); err == nil {
		t.Error("expected error to be non-nil")
	}
}

func TestDecode(t *testing.T) {
	decode(t, []byte{0b0000_1000}, 8, 1)
	decode(t, []byte{0b1000_1000, 0b0000_0000}, 1024, 2)
	decode(t, []byte{0b1000_1000, 0b1000_0000, 0b0000_0011}, 131075, 3)
	decode(t, []byte{0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b0000_0001}, 1, 9)
	decode(t, []byte{0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b0000_1010}, 10, 9)

	// byte 8's full 8 bits are appended when byte 7's high bit is set
	decode(t, []byte{0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0000, 0b1000_0001, 0b1111_1111}, (1<<8)|0xff, 9)

	decodeErr(t, []byte{0b1000_0000})
	decodeErr(t, nil)
}

func TestDecode_never_reads_past_bound(t *testing.T) {
	// three continuation bytes and then the slice ends: must fail, not panic
	decodeErr(t, []byte{0x80, 0x80, 0x80})
}

func TestU16(t *testing.T) {
	v, err := U16([]byte{0x01, 0x02})
	if err != nil || v != 0x0102 {
		t.Errorf("expected 0x0102; got %#x (err=%v)", v, err)
	}
	if _, err := U16([]byte{0x01}); err == nil {
		t.Error("expected truncation error")
	}
}

func TestU32(t *testing.T) {
	v, err := U32([]byte{0x01, 0x02, 0x03, 0x04})
	if err != nil || v != 0x01020304 {
		t.Errorf("expected 0x01020304; got %#x (err=%v)", v, err)
	}
	if _, err := U32([]byte{0x01, 0x02}); err == nil {
		t.Error("expected truncation error")
	}
}
