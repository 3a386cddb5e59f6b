package peload

import (
	"encoding/binary"
	"testing"
)

// fakeMem is a PatchableMem backed by a flat byte slab addressed directly
// by physical address, sized generously for the tiny synthetic images these
// tests build.
type fakeMem struct {
	data []byte
}

func newFakeMem() *fakeMem { return &fakeMem{data: make([]byte, 2<<20)} }

func (m *fakeMem) Write(phys uint64, b []byte) { copy(m.data[phys:], b) }
func (m *fakeMem) Zero(phys uint64, n uint64)  {
	for i := uint64(0); i < n; i++ {
		m.data[phys+i] = 0
	}
}
func (m *fakeMem) Read(phys uint64, size int) uint64 {
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(m.data[int(phys)+i]) << (8 * i)
	}
	return v
}

// buildMinimalPE assembles the smallest buffer parseHeaders accepts: DOS
// stub pointing at a PE header, one code section, and the required
// subsystem/characteristics bits.
func buildMinimalPE(t *testing.T, imageBase uint64, sectionVA uint32, codeBytes []byte) []byte {
	t.Helper()
	const peOff = 0x80
	buf := make([]byte, peOff+24+112+16*8+40+0x2000)

	binary.LittleEndian.PutUint16(buf[0:], dosSignature)
	binary.LittleEndian.PutUint32(buf[0x3C:], peOff)
	binary.LittleEndian.PutUint32(buf[peOff:], peSignature)

	coffOff := peOff + 4
	binary.LittleEndian.PutUint16(buf[coffOff+0:], machineAMD64)
	binary.LittleEndian.PutUint16(buf[coffOff+2:], 1) // one section
	binary.LittleEndian.PutUint16(buf[coffOff+16:], 112+16*8)
	binary.LittleEndian.PutUint16(buf[coffOff+18:], 0) // not a DLL

	optOff := coffOff + 20
	binary.LittleEndian.PutUint16(buf[optOff+0:], optionalMagicPE32Plus)
	binary.LittleEndian.PutUint32(buf[optOff+16:], sectionVA) // entry point
	binary.LittleEndian.PutUint64(buf[optOff+24:], imageBase)
	binary.LittleEndian.PutUint32(buf[optOff+56:], 0x3000) // size of image
	binary.LittleEndian.PutUint32(buf[optOff+60:], 0x1000) // size of headers
	binary.LittleEndian.PutUint16(buf[optOff+68:], subsystemNative)
	binary.LittleEndian.PutUint16(buf[optOff+70:], uint16(requiredDllChar))
	binary.LittleEndian.PutUint32(buf[optOff+108:], 16)

	secOff := optOff + 112 + 16*8
	copy(buf[secOff:secOff+8], "text")
	binary.LittleEndian.PutUint32(buf[secOff+8:], uint32(len(codeBytes)))
	binary.LittleEndian.PutUint32(buf[secOff+12:], sectionVA)
	binary.LittleEndian.PutUint32(buf[secOff+16:], uint32(len(codeBytes)))
	binary.LittleEndian.PutUint32(buf[secOff+20:], uint32(secOff+40))
	binary.LittleEndian.PutUint32(buf[secOff+36:], sectionCode|sectionExecute)

	copy(buf[secOff+40:], codeBytes)

	return buf
}

func newTestLoader(mem *fakeMem, nextPhys *uint64) *Loader {
	return &Loader{
		Mem: mem,
		AllocPages: func(count uint64) (uint64, bool) {
			base := *nextPhys
			*nextPhys += count * pageSize
			return base, true
		},
		VAWindow: func(imageSize uint64) uint64 {
			return 0xFFFF_F000_0000_0000
		},
	}
}

func TestPlaceRejectsBadMachine(t *testing.T) {
	mem := newFakeMem()
	var next uint64 = 0x100000
	l := newTestLoader(mem, &next)

	raw := buildMinimalPE(t, 0x140000000, 0x1000, []byte{0x90, 0x90})
	binary.LittleEndian.PutUint16(raw[0x80+4:], 0x014c) // i386, not amd64

	if _, err := l.Place("bad.exe", raw, false); err == nil {
		t.Fatal("expected machine-type validation to fail")
	}
}

func TestPlaceStampsExecFlag(t *testing.T) {
	mem := newFakeMem()
	var next uint64 = 0x100000
	l := newTestLoader(mem, &next)

	raw := buildMinimalPE(t, 0x140000000, 0x1000, []byte{0x90, 0x90, 0x90})
	p, err := l.Place("kernel.exe", raw, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(p.PageFlags) == 0 {
		t.Fatal("expected at least one page_flags entry")
	}
	if p.PageFlags[1] == 0 {
		t.Fatal("expected the code section's page to be stamped EXEC")
	}
	for _, f := range p.PageFlags {
		if f&1 != 0 && f&2 != 0 {
			t.Fatal("page_flags entry set both WRITE and EXEC")
		}
	}
}

func TestRelocateAppliesHighLow(t *testing.T) {
	mem := newFakeMem()
	var next uint64 = 0x100000
	l := newTestLoader(mem, &next)

	raw := buildMinimalPE(t, 0x140000000, 0x1000, []byte{0, 0, 0, 0})
	p, err := l.Place("driver.sys", raw, false)
	if err != nil {
		t.Fatal(err)
	}

	// Manually wire a single-block, single-entry HIGHLOW relocation that
	// targets the first 4 bytes of the code section, then re-run Relocate
	// against the already-placed program.
	p.relocRVA = 0
	p.relocSize = 10
	relocBlock := make([]byte, 10)
	binary.LittleEndian.PutUint32(relocBlock[0:], 0x1000) // page RVA
	binary.LittleEndian.PutUint32(relocBlock[4:], 10)     // block size
	binary.LittleEndian.PutUint16(relocBlock[8:], uint16(relocHighLow<<12|0))
	p.raw = append(append([]byte{}, relocBlock...), raw[len(relocBlock):]...)
	p.headers.sections[0].PointerToRawData = 0 // so RVA 0 maps to file offset 0
	p.headers.sections[0].VirtualAddress = 0
	p.headers.sections[0].SizeOfRawData = uint32(len(p.raw))

	mem.Write(p.PhysicalBase+0x1000, []byte{0x34, 0x12, 0x00, 0x00})

	if err := l.Relocate([]*Program{p}); err != nil {
		t.Fatal(err)
	}

	got := mem.Read(p.PhysicalBase+0x1000, 4)
	want := uint64(uint32(0x1234) + uint32(int32(p.BaseDiff)))
	if got != want {
		t.Fatalf("expected relocated dword 0x%x, got 0x%x", want, got)
	}
}
