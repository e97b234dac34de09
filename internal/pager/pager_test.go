package pager

import (
	"testing"

	"github.com/dbsleuth/sleuth/internal/errs"
)

// buildHeader returns a 100-byte valid-looking header using the given
// page size (raw encoding already applied by caller), reserved bytes per
// page, first freelist trunk and freelist page count.
func buildHeader(pageSizeRaw uint16, reserved byte, freelistTrunk, freelistCount uint32) []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:16], Magic)
	b[16] = byte(pageSizeRaw >> 8)
	b[17] = byte(pageSizeRaw)
	b[18] = 1 // write version
	b[19] = 1 // read version
	b[20] = reserved
	b[21] = 64 // max embedded frac
	b[22] = 32 // min embedded frac
	b[23] = 32 // leaf frac
	putU32(b[32:36], freelistTrunk)
	putU32(b[36:40], freelistCount)
	return b
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func image(pageSize int, pages int) []byte {
	buf := make([]byte, pageSize*pages)
	copy(buf[:HeaderSize], buildHeader(uint16(pageSize), 0, 0, 0))
	return buf
}

func TestOpen_pagesize_1_means_65536(t *testing.T) {
	img := make([]byte, 65536)
	copy(img[:HeaderSize], buildHeader(1, 0, 0, 0))

	p, err := pagerFromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	if sz := p.PageSize(); sz != 65536 {
		t.Errorf("expected 65536; got %d", sz)
	}
	if mp := p.MaxPage(); mp != 1 {
		t.Errorf("expected max page 1; got %d", mp)
	}
}

func TestOpen_pagesize_0_means_1024(t *testing.T) {
	var h Header
	h.PageSizeRaw = 0
	if sz := h.PageSize(); sz != 1024 {
		t.Errorf("expected 1024; got %d", sz)
	}
}

func TestFromBytes(t *testing.T) {
	img := image(512, 4)
	p, err := pagerFromImage(img)
	if err != nil {
		t.Fatal(err)
	}

	if sz := p.PageSize(); sz != 512 {
		t.Errorf("expected page size 512; got %d", sz)
	}
	if mp := p.MaxPage(); mp != 4 {
		t.Errorf("expected max page 4; got %d", mp)
	}

	page, err := p.ReadPage(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 512 {
		t.Errorf("expected 512 bytes; got %d", len(page))
	}
}

func TestReadPage_out_of_range(t *testing.T) {
	p, err := pagerFromImage(image(512, 4))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.ReadPage(0); err == nil {
		t.Error("expected error for page 0")
	}
	if _, err := p.ReadPage(5); err == nil {
		t.Error("expected error for page 5 (out of range)")
	} else if k, ok := errs.KindOf(err); !ok || k != errs.RangeError {
		t.Errorf("expected RangeError; got %v", err)
	}
}

func TestOpen_invalid_magic(t *testing.T) {
	img := image(512, 2)
	copy(img[0:16], "not a database!!")
	if _, err := pagerFromImage(img); err == nil {
		t.Error("expected error for bad magic")
	} else if k, ok := errs.KindOf(err); !ok || k != errs.NotSqlite {
		t.Errorf("expected NotSqlite; got %v", err)
	}
}

func TestOpen_file_too_short(t *testing.T) {
	if _, err := pagerFromImage(make([]byte, 50)); err == nil {
		t.Error("expected error for short file")
	}
}

func TestOpen_non_power_of_two_pagesize(t *testing.T) {
	img := image(512, 2)
	// corrupt the page size field to something that isn't a power of two
	img[16], img[17] = 0x03, 0x00 // 768
	if _, err := pagerFromImage(img); err == nil {
		t.Error("expected InvalidHeader for non-power-of-two page size")
	} else if k, ok := errs.KindOf(err); !ok || k != errs.InvalidHeader {
		t.Errorf("expected InvalidHeader; got %v", err)
	}
}

func pagerFromImage(img []byte) (*Pager, error) {
	return FromBytes(img)
}
