package peload

// importDescriptor is one IMAGE_IMPORT_DESCRIPTOR.
type importDescriptor struct {
	OriginalFirstThunk uint32
	Name               uint32
	FirstThunk         uint32
}

// FixImports runs Pass 2 (spec.md §4.B) over every loaded program: for each
// import directory entry, the importer's name_rva must match some other
// loaded program's Name by a case-sensitive compare; for each named import
// thunk, the target program's export table is linear-searched and the
// resolved address is written into the importer's IAT slot. Import by
// ordinal is not supported and is fatal, as is any unresolved import. The
// kernel image is excluded by Place (it may carry no imports); a driver may
// not import from itself.
func (l *Loader) FixImports(programs []*Program) *LoadError {
	byName := make(map[string]*Program, len(programs))
	for _, p := range programs {
		byName[p.Name] = p
	}

	for _, importer := range programs {
		if importer.importSize == 0 {
			continue
		}

		off, ok := rvaToFileOffset(importer.headers, importer.importRVA)
		if !ok {
			return &LoadError{File: importer.Name, Reason: "import directory RVA out of range"}
		}

		for {
			if off+20 > len(importer.raw) {
				return &LoadError{File: importer.Name, Reason: "truncated import directory"}
			}
			desc := importDescriptor{
				OriginalFirstThunk: le32(importer.raw, off+0),
				Name:               le32(importer.raw, off+12),
				FirstThunk:         le32(importer.raw, off+16),
			}
			if desc.Name == 0 && desc.FirstThunk == 0 && desc.OriginalFirstThunk == 0 {
				break // terminating all-zero descriptor
			}

			nameOff, ok := rvaToFileOffset(importer.headers, desc.Name)
			if !ok {
				return &LoadError{File: importer.Name, Reason: "import name RVA out of range"}
			}
			dllName := readCString(importer.raw, nameOff)

			target, ok := byName[dllName]
			if !ok {
				return &LoadError{File: importer.Name, Reason: "missing import: " + dllName}
			}
			if target == importer {
				return &LoadError{File: importer.Name, Reason: "driver may not import from itself"}
			}

			if err := l.fixThunks(importer, target, desc); err != nil {
				return err
			}

			off += 20
		}
	}
	return nil
}

func (l *Loader) fixThunks(importer, target *Program, desc importDescriptor) *LoadError {
	thunkRVA := desc.OriginalFirstThunk
	if thunkRVA == 0 {
		thunkRVA = desc.FirstThunk
	}

	thunkOff, ok := rvaToFileOffset(importer.headers, thunkRVA)
	if !ok {
		return &LoadError{File: importer.Name, Reason: "import thunk RVA out of range"}
	}
	if _, ok := rvaToFileOffset(importer.headers, desc.FirstThunk); !ok {
		return &LoadError{File: importer.Name, Reason: "IAT RVA out of range"}
	}

	for i := 0; ; i++ {
		entry := le64(importer.raw, thunkOff+i*8)
		if entry == 0 {
			break
		}
		if entry&0x8000000000000000 != 0 {
			return &LoadError{File: importer.Name, Reason: "import by ordinal is not supported"}
		}

		nameOff, ok := rvaToFileOffset(importer.headers, uint32(entry)+2) // skip the 2-byte hint
		if !ok {
			return &LoadError{File: importer.Name, Reason: "import-by-name RVA out of range"}
		}
		symbol := readCString(importer.raw, nameOff)

		addr, found := target.ExportByName(symbol)
		if !found {
			return &LoadError{File: importer.Name, Reason: "missing import: " + symbol}
		}

		// Sections were copied to their RVA offset within the image, so the
		// IAT slot's physical address is PhysicalBase + its RVA directly.
		iatSlotPhys := importer.PhysicalBase + uint64(desc.FirstThunk) + uint64(i)*8
		l.Mem.Write(iatSlotPhys, le64Bytes(addr))
	}
	return nil
}

func le64Bytes(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}
