package pool

import (
	"testing"

	"github.com/ardent-os/ardent/kernel/memdesc"
	"github.com/ardent-os/ardent/kernel/pmm"
)

func backPMMForTest(t *testing.T, freePages uint64) {
	t.Helper()
	descriptors := memdesc.New(8)
	if err := descriptors.Upsert(memdesc.Free, 1, freePages); err != nil {
		t.Fatal(err)
	}
	pmm.Init(descriptors)
}

func TestAllocateFreeTracksRunLength(t *testing.T) {
	backPMMForTest(t, 200)

	const arenaPages = 8
	mapped := make(map[uintptr]pmm.Frame)

	p := New(0x1000, arenaPages*pmm.PageSize,
		func(page uintptr, frame pmm.Frame) error {
			mapped[page] = frame
			return nil
		},
		func(page uintptr) (pmm.Frame, error) {
			f := mapped[page]
			delete(mapped, page)
			return f, nil
		},
	)

	tag := Tag{'t', 'e', 's', 't'}
	addr, ok := p.Allocate(3*pmm.PageSize, tag)
	if !ok {
		t.Fatal("expected allocation to succeed")
	}
	if addr != 0x1000 {
		t.Fatalf("expected first run to start at arena base, got %x", addr)
	}
	if len(mapped) != 3 {
		t.Fatalf("expected 3 backed pages, got %d", len(mapped))
	}

	p.Free(addr, tag)
	if len(mapped) != 0 {
		t.Fatalf("expected pages to be unmapped after Free, got %d left", len(mapped))
	}
}

func TestAllocateExhaustsArena(t *testing.T) {
	backPMMForTest(t, 200)

	p := New(0x2000, 4*pmm.PageSize,
		func(uintptr, pmm.Frame) error { return nil },
		func(uintptr) (pmm.Frame, error) { return pmm.InvalidFrame, nil },
	)

	tag := Tag{'a', 'r', 'n', 'a'}
	if _, ok := p.Allocate(4*pmm.PageSize, tag); !ok {
		t.Fatal("expected the full arena to be allocatable once")
	}
	if _, ok := p.Allocate(pmm.PageSize, tag); ok {
		t.Fatal("expected a second allocation to fail: arena is full")
	}
}
