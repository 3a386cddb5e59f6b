package memdesc

import "testing"

func collect(l *List) []Descriptor {
	var out []Descriptor
	l.Visit(func(d *Descriptor) { out = append(out, *d) })
	return out
}

func assertEntries(t *testing.T, l *List, want []Descriptor) {
	t.Helper()
	got := collect(l)
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(got), got)
	}
	for i := range got {
		if got[i].Type != want[i].Type || got[i].BasePage != want[i].BasePage || got[i].PageCount != want[i].PageCount {
			t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestUpsertMiddleOverlap(t *testing.T) {
	l := New(8)
	if err := l.Upsert(Free, 0, 100); err != nil {
		t.Fatal(err)
	}
	if err := l.Upsert(OSLoaderTemporary, 40, 10); err != nil {
		t.Fatal(err)
	}
	assertEntries(t, l, []Descriptor{
		{Type: Free, BasePage: 0, PageCount: 40},
		{Type: OSLoaderTemporary, BasePage: 40, PageCount: 10},
		{Type: Free, BasePage: 50, PageCount: 50},
	})
}

func TestUpsertMerge(t *testing.T) {
	l := New(8)
	if err := l.Upsert(Free, 0, 100); err != nil {
		t.Fatal(err)
	}
	if err := l.Upsert(OSLoaderTemporary, 40, 10); err != nil {
		t.Fatal(err)
	}

	// No-op: fully contained in a same-type entry.
	if err := l.Upsert(Free, 50, 50); err != nil {
		t.Fatal(err)
	}
	assertEntries(t, l, []Descriptor{
		{Type: Free, BasePage: 0, PageCount: 40},
		{Type: OSLoaderTemporary, BasePage: 40, PageCount: 10},
		{Type: Free, BasePage: 50, PageCount: 50},
	})

	if err := l.Upsert(Free, 40, 10); err != nil {
		t.Fatal(err)
	}
	assertEntries(t, l, []Descriptor{
		{Type: Free, BasePage: 0, PageCount: 100},
	})
}

func TestUpsertLeftAndRightOverlap(t *testing.T) {
	l := New(8)
	_ = l.Upsert(Free, 0, 100)
	_ = l.Upsert(FirmwarePermanent, 10, 20)

	// Left overlap: [0,15) covers all of [0,10) and the left edge of [10,30).
	if err := l.Upsert(SystemReserved, 0, 15); err != nil {
		t.Fatal(err)
	}
	assertEntries(t, l, []Descriptor{
		{Type: SystemReserved, BasePage: 0, PageCount: 15},
		{Type: FirmwarePermanent, BasePage: 15, PageCount: 15},
		{Type: Free, BasePage: 30, PageCount: 70},
	})

	// Right overlap: [25,40) covers the right edge of [15,30) and trims the
	// front of [30,100).
	if err := l.Upsert(GraphicsBuffer, 25, 15); err != nil {
		t.Fatal(err)
	}
	assertEntries(t, l, []Descriptor{
		{Type: SystemReserved, BasePage: 0, PageCount: 15},
		{Type: FirmwarePermanent, BasePage: 15, PageCount: 10},
		{Type: GraphicsBuffer, BasePage: 25, PageCount: 15},
		{Type: Free, BasePage: 40, PageCount: 60},
	})
}

func TestUpsertExtend(t *testing.T) {
	l := New(8)
	_ = l.Upsert(Free, 0, 10)
	_ = l.Upsert(LoadedProgram, 20, 10)

	// Extend LoadedProgram's prefix by inserting an adjacent range that
	// touches neither existing entry's type on the other side.
	if err := l.Upsert(LoadedProgram, 10, 10); err != nil {
		t.Fatal(err)
	}
	assertEntries(t, l, []Descriptor{
		{Type: Free, BasePage: 0, PageCount: 10},
		{Type: LoadedProgram, BasePage: 10, PageCount: 20},
	})
}

func TestUpsertOutOfSlots(t *testing.T) {
	l := New(1)
	_ = l.Upsert(Free, 0, 100)

	// Forces a split, which needs a second slot the pool does not have.
	if err := l.Upsert(OSLoaderTemporary, 40, 10); err != ErrOutOfSlots {
		t.Fatalf("expected ErrOutOfSlots, got %v", err)
	}
}

func TestFreeze(t *testing.T) {
	l := New(8)
	_ = l.Upsert(Free, 0, 10)
	_ = l.Upsert(FirmwarePermanent, 10, 5)

	frozen := l.Freeze()
	if frozen.Count() != 2 {
		t.Fatalf("expected 2 frozen entries, got %d", frozen.Count())
	}
	assertEntries(t, frozen, collect(l))
}
