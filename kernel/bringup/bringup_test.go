package bringup

import (
	"testing"
	"unsafe"

	"github.com/ardent-os/ardent/kernel/bootreg"
	"github.com/ardent-os/ardent/kernel/handoff"
	"github.com/ardent-os/ardent/kernel/kdebug"
	"github.com/ardent-os/ardent/kernel/memdesc"
	"github.com/ardent-os/ardent/kernel/sched"
)

func testBlock(t *testing.T) *handoff.Block {
	t.Helper()
	descriptors := memdesc.New(64)
	if err := descriptors.Upsert(memdesc.Free, 0x1000, 0x4000); err != nil {
		t.Fatalf("seed descriptors: %v", err)
	}
	return &handoff.Block{
		Magic:       handoff.Magic,
		Version:     handoff.CurrentVersion,
		Descriptors: descriptors,
		PoolReserve: 0xffff_a000_0000_0000,
	}
}

func TestRunBootsSingleProcessor(t *testing.T) {
	block := testBlock(t)

	result := Run(block, Hooks{})

	if result.Builder == nil {
		t.Fatal("expected an activated page-map builder")
	}
	if sched.ProcessorAt(0) == nil {
		t.Fatal("expected boot processor 0 to be registered")
	}
}

func TestRunStartsDiscoveredSecondaryProcessors(t *testing.T) {
	block := testBlock(t)

	var started []int
	Run(block, Hooks{
		ProcessorCount: func() int { return 3 },
		StartProcessor: func(idx int) { started = append(started, idx) },
	})

	if len(started) != 2 || started[0] != 1 || started[1] != 2 {
		t.Fatalf("expected AP indices [1 2]; got %v", started)
	}
	for idx := 0; idx < 3; idx++ {
		if sched.ProcessorAt(idx) == nil {
			t.Fatalf("expected processor %d to be registered", idx)
		}
	}
}

func TestRunExportsImageSymbolsToKdebug(t *testing.T) {
	kdebug.Reset()
	defer kdebug.Reset()

	block := testBlock(t)
	block.Images = []handoff.LoadedImage{
		{Name: "KERNEL.EXE", ImageBase: 0xffff_8000_0010_0000},
		{Name: "acpi.sys", ImageBase: 0xffff_8000_0020_0000},
	}

	Run(block, Hooks{})

	addr, ok := kdebug.Resolve("acpi.sys")
	if !ok || addr != 0xffff_8000_0020_0000 {
		t.Fatalf("kdebug.Resolve(acpi.sys) = (%#x, %v)", addr, ok)
	}
}

// memFile is a minimal in-memory io.ReadWriteSeeker for building a test
// registry image, mirroring bootreg's own test helper.
type memFile struct {
	buf []byte
	pos int64
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		m.pos = offset
	case 1:
		m.pos += offset
	case 2:
		m.pos = int64(len(m.buf)) + offset
	}
	return m.pos, nil
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Read(p []byte) (int, error) {
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func TestRunDecodesBootRegistryAndEnabledDrivers(t *testing.T) {
	f := &memFile{}
	w, root, werr := bootreg.Create(f)
	if werr != nil {
		t.Fatalf("bootreg.Create: %v", werr)
	}
	drivers, werr := w.CreateSubKey(root, "Drivers")
	if werr != nil {
		t.Fatalf("CreateSubKey(Drivers): %v", werr)
	}
	if err := w.CreateIntegerKey(drivers, "acpi.sys", 0, 1); err != nil {
		t.Fatalf("CreateIntegerKey(acpi.sys): %v", err)
	}
	if err := w.CreateIntegerKey(drivers, "disabled.sys", 0, 0); err != nil {
		t.Fatalf("CreateIntegerKey(disabled.sys): %v", err)
	}

	block := testBlock(t)
	block.BootRegistryBase = uintptr(unsafe.Pointer(&f.buf[0]))
	block.BootRegistrySize = uint64(len(f.buf))

	result := Run(block, Hooks{})

	if result.Registry == nil {
		t.Fatal("expected a decoded boot registry")
	}
	names := EnabledDrivers(result.Registry)
	if len(names) != 1 || names[0] != "acpi.sys" {
		t.Fatalf("EnabledDrivers() = %v, want [acpi.sys]", names)
	}
}
