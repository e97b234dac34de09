package ptrmap

import "testing"

func TestFirstPage_and_Stride(t *testing.T) {
	const usable = 4096
	want := usable/5 + 1
	if got := FirstPage(usable); got != want {
		t.Errorf("FirstPage(%d) = %d, want %d", usable, got, want)
	}
	if got := Stride(usable); got != want {
		t.Errorf("Stride(%d) = %d, want %d", usable, got, want)
	}
}

func TestIsCandidate(t *testing.T) {
	const usable = 4096
	first := FirstPage(usable)
	stride := Stride(usable)

	if !IsCandidate(first, usable) {
		t.Errorf("first ptrmap page %d should be a candidate", first)
	}
	if !IsCandidate(first+stride, usable) {
		t.Errorf("second ptrmap page %d should be a candidate", first+stride)
	}
	if IsCandidate(first+1, usable) {
		t.Errorf("page %d should not be a candidate", first+1)
	}
	if IsCandidate(first-1, usable) {
		t.Errorf("page %d before the first ptrmap page should not be a candidate", first-1)
	}
}

func TestPositions(t *testing.T) {
	const usable = 4096
	first := FirstPage(usable)
	stride := Stride(usable)
	maxPage := first + 2*stride

	positions := Positions(usable, maxPage)
	want := []int{first, first + stride, first + 2*stride}
	if len(positions) != len(want) {
		t.Fatalf("Positions = %v, want %v", positions, want)
	}
	for i := range want {
		if positions[i] != want[i] {
			t.Errorf("Positions[%d] = %d, want %d", i, positions[i], want[i])
		}
	}
}

func TestValidate_accepts_well_formed_page(t *testing.T) {
	page := make([]byte, EntrySize*3)
	// entry 0: type 1 (btree root page), parent 7
	page[0] = 1
	page[1], page[2], page[3], page[4] = 0, 0, 0, 7
	// entry 1: unused trailing slot
	// entry 2: type 5, parent 2
	page[10] = 5
	page[11], page[12], page[13], page[14] = 0, 0, 0, 2

	entries, ok := Validate(page, 100)
	if !ok {
		t.Fatal("expected a well-formed pointer-map page to validate")
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Type != 1 || entries[0].Parent != 7 {
		t.Errorf("entry 0 = %+v, want {1 7}", entries[0])
	}
	if entries[2].Type != 5 || entries[2].Parent != 2 {
		t.Errorf("entry 2 = %+v, want {5 2}", entries[2])
	}
}

func TestValidate_rejects_bad_type_tag(t *testing.T) {
	page := make([]byte, EntrySize)
	page[0] = 6 // outside 1..5
	page[4] = 1

	if _, ok := Validate(page, 100); ok {
		t.Fatal("expected an out-of-range type tag to fail validation")
	}
}

func TestValidate_rejects_parent_beyond_maxPage(t *testing.T) {
	page := make([]byte, EntrySize)
	page[0] = 1
	page[1], page[2], page[3], page[4] = 0, 0, 0, 200

	if _, ok := Validate(page, 100); ok {
		t.Fatal("expected a parent pointer beyond maxPage to fail validation")
	}
}

func TestValidate_rejects_all_zero_page(t *testing.T) {
	page := make([]byte, EntrySize*2)
	if _, ok := Validate(page, 100); ok {
		t.Fatal("an all-zero page has no classifying content and should not validate")
	}
}
