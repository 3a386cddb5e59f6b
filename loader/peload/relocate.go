package peload

// Base relocation entry type codes (high 4 bits of each 16-bit entry).
const (
	relocAbsolute = 0x0
	relocHigh     = 0x1
	relocLow      = 0x2
	relocHighLow  = 0x3
	relocHighAdj  = 0x4
	relocDir64    = 0xA
)

// Relocate runs Pass 3 (spec.md §4.B) for every image with a non-empty base
// relocation directory: walks blocks of an 8-byte header followed by
// 2-byte entries, applying each entry's fixup to the copied image in
// physical memory according to its type. Unknown types are ignored.
func (l *Loader) Relocate(programs []*Program) *LoadError {
	for _, p := range programs {
		if p.relocSize == 0 {
			continue
		}
		if err := l.relocateOne(p); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) relocateOne(p *Program) *LoadError {
	off, ok := rvaToFileOffset(p.headers, p.relocRVA)
	if !ok {
		return &LoadError{File: p.Name, Reason: "base relocation directory RVA out of range"}
	}
	end := off + int(p.relocSize)

	for off < end {
		if off+8 > len(p.raw) {
			return &LoadError{File: p.Name, Reason: "truncated base relocation block"}
		}
		pageRVA := le32(p.raw, off+0)
		blockSize := le32(p.raw, off+4)
		if blockSize < 8 {
			break
		}

		entryCount := (int(blockSize) - 8) / 2
		entriesOff := off + 8

		i := 0
		for ; i < entryCount; i++ {
			entry := le16(p.raw, entriesOff+i*2)
			typ := entry >> 12
			fieldOff := uint32(entry & 0x0FFF)
			fieldRVA := pageRVA + fieldOff
			fieldPhys := p.PhysicalBase + uint64(fieldRVA)

			switch typ {
			case relocAbsolute:
				// padding entry, no-op
			case relocHigh:
				l.patch16(fieldPhys, int16(p.BaseDiff>>16))
			case relocLow:
				l.patch16(fieldPhys, int16(p.BaseDiff))
			case relocHighLow:
				l.patch32(fieldPhys, int32(p.BaseDiff))
			case relocHighAdj:
				l.patch16(fieldPhys, int16(p.BaseDiff>>16))
				i++ // consume the extra entry carrying the low-half placeholder
			case relocDir64:
				l.patch64(fieldPhys, p.BaseDiff)
			default:
				// unknown type, ignored per spec.md §4.B
			}
		}

		off += int(blockSize)
	}
	return nil
}

func (l *Loader) patch16(phys uint64, delta int16) {
	l.rmw(phys, 2, func(v uint64) uint64 {
		cur := int16(uint16(v))
		return uint64(uint16(cur + delta))
	})
}

func (l *Loader) patch32(phys uint64, delta int32) {
	l.rmw(phys, 4, func(v uint64) uint64 {
		cur := int32(uint32(v))
		return uint64(uint32(cur + delta))
	})
}

func (l *Loader) patch64(phys uint64, delta int64) {
	l.rmw(phys, 8, func(v uint64) uint64 {
		return uint64(int64(v) + delta)
	})
}

// rmw performs a read-modify-write against the loader's PatchableMem
// collaborator, which (unlike the write-only PhysMem used for section
// placement) can read back bytes it has already written during this same
// boot — needed because relocation deltas apply on top of the copied
// section contents, not the original file.
func (l *Loader) rmw(phys uint64, size int, fn func(uint64) uint64) {
	pm, ok := l.Mem.(PatchableMem)
	if !ok {
		return
	}
	cur := pm.Read(phys, size)
	pm.Write(phys, encodeLE(fn(cur), size))
}

// PatchableMem extends PhysMem with a read-back used only by relocation
// fixups.
type PatchableMem interface {
	PhysMem
	Read(physAddr uint64, size int) uint64
}

func encodeLE(v uint64, size int) []byte {
	b := make([]byte, size)
	for i := 0; i < size; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
