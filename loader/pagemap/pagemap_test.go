package pagemap

import (
	"testing"

	"github.com/ardent-os/ardent/kernel"
	"github.com/ardent-os/ardent/kernel/memdesc"
)

func newTestBuilder(t *testing.T) (*Builder, *memdesc.List) {
	t.Helper()
	descriptors := memdesc.New(64)
	var next uint64 = 0x200000
	allocFrame := func() (uint64, *kernel.Error) {
		f := next
		next += pageSize
		return f, nil
	}
	return NewBuilder(descriptors, allocFrame), descriptors
}

func TestMapRangeSelectsGiantPages(t *testing.T) {
	b, _ := newTestBuilder(t)
	pml4, err := b.newTable()
	if err != nil {
		t.Fatal(err)
	}
	b.pml4 = pml4

	const va = uint64(0xFFFF_8000_0000_0000)
	if err := b.MapRange(va, 0, 4*giB, FlagWrite); err != nil {
		t.Fatal(err)
	}

	var giantPTEs int
	for _, tbl := range b.tables {
		for _, e := range tbl.entries {
			if e.present() && e.huge() && tbl != b.pml4 {
				// Counts every huge entry outside the PML4. Init is not
				// called and the range is 1 GiB aligned, so no 2 MiB PD
				// entries exist here and every one counted is a PDPT-level
				// 1 GiB page.
				giantPTEs++
			}
		}
	}
	if giantPTEs != 4 {
		t.Fatalf("expected exactly four 1 GiB PTEs, got %d", giantPTEs)
	}
}

func TestMapImageEnforcesWXOR(t *testing.T) {
	b, _ := newTestBuilder(t)
	if err := b.Init(); err != nil {
		t.Fatal(err)
	}

	flags := []PageFlag{PageExec, PageWrite, PageNone}
	if err := b.MapImage(0xFFFF_9000_0000_0000, 0x300000, flags); err != nil {
		t.Fatal(err)
	}
}
