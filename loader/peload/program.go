package peload

import "github.com/ardent-os/ardent/loader/pagemap"

// Export is one entry of a loaded program's export table: a symbol name and
// its resolved virtual address.
type Export struct {
	Name    string
	Address uint64
}

// Program is the loaded-program record from spec.md §3: everything a later
// loader pass or the handoff block needs to know about one placed image.
type Program struct {
	Name string // borrowed from boot configuration

	PhysicalBase uint64
	VirtualBase  uint64
	ImageSize    uint64
	EntryPoint   uint64
	BaseDiff     int64 // VirtualBase - preferred VA (ImageBase)

	PageFlags []pagemap.PageFlag // one entry per 4 KiB page of ImageSize
	Exports   []Export

	IsKernel bool

	raw     []byte
	headers *parsedHeaders

	// importRVA/importSize locate the image's import directory in raw, kept
	// around between Pass1 and Pass2 without re-parsing headers.
	importRVA, importSize       uint32
	relocRVA, relocSize         uint32
	exportRVA, exportSize       uint32
}

// ExportByName performs a case-sensitive linear search of the program's
// export table, matching spec.md §4.B's Pass 2 contract exactly (no
// ordinal imports, no case-folding).
func (p *Program) ExportByName(name string) (uint64, bool) {
	for _, e := range p.Exports {
		if e.Name == name {
			return e.Address, true
		}
	}
	return 0, false
}

func rvaToFileOffset(h *parsedHeaders, rva uint32) (int, bool) {
	for _, s := range h.sections {
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+s.SizeOfRawData {
			return int(s.PointerToRawData + (rva - s.VirtualAddress)), true
		}
	}
	return 0, false
}
