package peload

import "github.com/ardent-os/ardent/loader/pagemap"

const pageSize = uint64(4096)

// PhysMem abstracts the loader's narrow firmware collaborator for writing
// into newly allocated physical pages (spec.md §6): copy raw section bytes
// and zero BSS tails. Backed by a temporary identity mapping before paging
// is enabled.
type PhysMem interface {
	Write(physAddr uint64, data []byte)
	Zero(physAddr uint64, length uint64)
}

// AllocPagesFn reserves count contiguous physical pages and returns their
// base address.
type AllocPagesFn func(count uint64) (uint64, bool)

// HighHalfWindowFn returns a randomized virtual base within the loader's
// fixed high-half placement window, sized to fit an image of the given
// byte length.
type HighHalfWindowFn func(imageSize uint64) uint64

// Loader drives the three-pass pipeline over a set of images.
type Loader struct {
	Mem         PhysMem
	AllocPages  AllocPagesFn
	VAWindow    HighHalfWindowFn
}

// Place runs Pass 1 (spec.md §4.B) for a single image: validates the PE
// image, computes its in-memory footprint, allocates physical pages and a
// randomized high-half virtual base, copies headers and section data,
// builds the page_flags vector, and extracts the export table.
func (l *Loader) Place(path string, raw []byte, isKernel bool) (*Program, *LoadError) {
	h, err := parseHeaders(raw)
	if err != nil {
		return nil, err.withFile(path)
	}

	imageSize := alignUp(uint64(h.opt.SizeOfImage), pageSize)
	pageCount := imageSize / pageSize

	physBase, ok := l.AllocPages(pageCount)
	if !ok {
		return nil, (&LoadError{Reason: "out of physical pages"}).withFile(path)
	}

	virtBase := l.VAWindow(imageSize)

	p := &Program{
		Name:         path,
		PhysicalBase: physBase,
		VirtualBase:  virtBase,
		ImageSize:    imageSize,
		EntryPoint:   virtBase + uint64(h.opt.AddressOfEntryPoint),
		BaseDiff:     int64(virtBase) - int64(h.opt.ImageBase),
		PageFlags:    make([]pagemap.PageFlag, pageCount),
		IsKernel:     isKernel,
		raw:          raw,
		headers:      h,
	}

	// Copy headers verbatim (read-only, non-executable).
	l.Mem.Zero(physBase, imageSize)
	headerLen := uint64(h.opt.SizeOfHeaders)
	if headerLen > uint64(len(raw)) {
		headerLen = uint64(len(raw))
	}
	l.Mem.Write(physBase, raw[:headerLen])

	for _, s := range h.sections {
		dst := physBase + uint64(s.VirtualAddress)
		if s.SizeOfRawData > 0 {
			end := int(s.PointerToRawData + s.SizeOfRawData)
			if end > len(raw) {
				end = len(raw)
			}
			l.Mem.Write(dst, raw[s.PointerToRawData:end])
		}
		if s.VirtualSize > s.SizeOfRawData {
			l.Mem.Zero(dst+uint64(s.SizeOfRawData), uint64(s.VirtualSize-s.SizeOfRawData))
		}

		stampSectionFlags(p.PageFlags, s)
	}

	if d, sz := h.opt.Directories[directoryExport], h.opt.Directories[directoryExport].Size; sz != 0 {
		p.Exports = extractExports(h, raw, virtBase, d.RVA, d.Size)
	}

	p.importRVA, p.importSize = h.opt.Directories[directoryImport].RVA, h.opt.Directories[directoryImport].Size
	p.relocRVA, p.relocSize = h.opt.Directories[directoryBaseReloc].RVA, h.opt.Directories[directoryBaseReloc].Size

	if isKernel && p.importSize != 0 {
		return nil, (&LoadError{File: path, Reason: "kernel image must have no imports"})
	}

	return p, nil
}

func alignUp(v, align uint64) uint64 { return (v + align - 1) &^ (align - 1) }

// stampSectionFlags marks every page a section covers with WRITE or EXEC,
// enforcing W^X (spec.md §3): a section is never both.
func stampSectionFlags(flags []pagemap.PageFlag, s sectionHeader) {
	firstPage := s.VirtualAddress / uint32(pageSize)
	span := s.VirtualSize
	if s.SizeOfRawData > span {
		span = s.SizeOfRawData
	}
	lastPage := (s.VirtualAddress + span + uint32(pageSize) - 1) / uint32(pageSize)

	var flag pagemap.PageFlag
	switch {
	case s.isExecute():
		flag = pagemap.PageExec
	case s.isWritable():
		flag = pagemap.PageWrite
	default:
		flag = pagemap.PageNone
	}

	for i := firstPage; i < lastPage && int(i) < len(flags); i++ {
		flags[i] = flag
	}
}

// extractExports walks the export directory table, producing {name,
// address} pairs using the image's own unrelocated export RVAs plus the
// chosen virtual base (spec.md §4.B: the export table is extracted before
// relocation is applied).
func extractExports(h *parsedHeaders, raw []byte, virtBase uint64, dirRVA, dirSize uint32) []Export {
	off, ok := rvaToFileOffset(h, dirRVA)
	if !ok || off+40 > len(raw) {
		return nil
	}

	numberOfNames := le32(raw, off+24)
	addrOfFunctions := le32(raw, off+28)
	addrOfNames := le32(raw, off+32)
	addrOfOrdinals := le32(raw, off+36)

	funcsOff, ok1 := rvaToFileOffset(h, addrOfFunctions)
	namesOff, ok2 := rvaToFileOffset(h, addrOfNames)
	ordsOff, ok3 := rvaToFileOffset(h, addrOfOrdinals)
	if !ok1 || !ok2 || !ok3 {
		return nil
	}

	exports := make([]Export, 0, numberOfNames)
	for i := uint32(0); i < numberOfNames; i++ {
		nameRVA := le32(raw, namesOff+int(i*4))
		nameOff, ok := rvaToFileOffset(h, nameRVA)
		if !ok {
			continue
		}
		name := readCString(raw, nameOff)

		ordinal := le16(raw, ordsOff+int(i*2))
		funcRVA := le32(raw, funcsOff+int(uint32(ordinal)*4))

		exports = append(exports, Export{Name: name, Address: virtBase + uint64(funcRVA)})
	}
	return exports
}

func readCString(b []byte, off int) string {
	end := off
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[off:end])
}
