package aml

import "github.com/ardent-os/ardent/kernel"

// dispatchField handles the field-declaring opcodes of spec.md §4.J:
// Field/IndexField/BankField declare a batch of named FieldUnits; only Field
// binds its units to a backing OperationRegion, while IndexField and
// BankField units are installed with no region. CreateField declares a
// single named FieldUnit over a Buffer; the fixed-width
// CreateBit/Byte/Word/Dword/QwordField opcodes are not dispatched here.
// Reads/writes through a region-backed field route through the region's
// RegionHandler.
func (it *Interpreter) dispatchField(sc *execScope, r *reader, op AMLOpcode) (*Value, bool, *kernel.Error) {
	switch op {
	case opField:
		return nil, true, it.declareField(sc, r)
	case opIndexField:
		return nil, true, it.declareIndexField(sc, r)
	case opBankField:
		return nil, true, it.declareBankField(sc, r)
	case opCreateField:
		return nil, true, it.declareCreateField(sc, r)
	}
	return nil, false, nil
}

// declareField reads a FieldList following a named OperationRegion and
// installs one FieldUnit Value per named element, advancing a running bit
// offset; reserved (anonymous, bit-count-only) elements only advance the
// offset.
func (it *Interpreter) declareField(sc *execScope, r *reader) *kernel.Error {
	pkgEnd, err := readPkgLength(r)
	if err != nil {
		return err
	}
	regionName, err := readName(r)
	if err != nil {
		return err
	}
	if _, err := r.ReadByte(); err != nil { // FieldFlags (access type / lock / update rule)
		return err
	}
	regionNS := resolveName(it.Root, sc.ns, regionName)
	if regionNS == nil {
		return errNameNotFound
	}
	return it.readFieldList(sc, r, pkgEnd, regionNS.value, nil)
}

func (it *Interpreter) declareIndexField(sc *execScope, r *reader) *kernel.Error {
	pkgEnd, err := readPkgLength(r)
	if err != nil {
		return err
	}
	if _, err := readName(r); err != nil { // IndexName
		return err
	}
	if _, err := readName(r); err != nil { // DataName
		return err
	}
	if _, err := r.ReadByte(); err != nil { // FieldFlags
		return err
	}
	return it.readFieldList(sc, r, pkgEnd, nil, nil)
}

func (it *Interpreter) declareBankField(sc *execScope, r *reader) *kernel.Error {
	pkgEnd, err := readPkgLength(r)
	if err != nil {
		return err
	}
	if _, err := readName(r); err != nil { // RegionName
		return err
	}
	if _, err := readName(r); err != nil { // BankName
		return err
	}
	if _, err := it.evalTermArg(sc, r); err != nil { // BankValue
		return err
	}
	if _, err := r.ReadByte(); err != nil { // FieldFlags
		return err
	}
	return it.readFieldList(sc, r, pkgEnd, nil, nil)
}

// readFieldList parses the repeated (NameSeg, PkgLength-as-bitwidth) |
// (ReservedField) entries common to Field/IndexField/BankField, installing
// a FieldUnit per named entry against region (when non-nil).
func (it *Interpreter) readFieldList(sc *execScope, r *reader, end uint32, region *Value, _ *Value) *kernel.Error {
	var bitOffset uint64
	for r.Offset() < end {
		lead, err := r.PeekByte()
		if err != nil {
			return err
		}
		if lead == 0x00 {
			r.ReadByte()
			width, err := readPkgLength(r)
			if err != nil {
				return err
			}
			bitOffset += uint64(width)
			continue
		}
		raw, err := r.ReadBytes(4)
		if err != nil {
			return err
		}
		width, err := readPkgLength(r)
		if err != nil {
			return err
		}
		fv := newValue(KindFieldUnit)
		fv.Field = &FieldUnit{Region: region.reference(), BitOffset: bitOffset, BitWidth: uint64(width)}
		sc.ns.Insert(string(raw), fv)
		bitOffset += uint64(width)
	}
	return nil
}

// declareCreateField handles CreateField: it declares a FieldUnit with an
// explicit bit index and bit width over an existing Buffer. The fixed-width
// CreateBit/Byte/Word/Dword/QwordField forms are not handled.
func (it *Interpreter) declareCreateField(sc *execScope, r *reader) *kernel.Error {
	bufVal, err := it.evalTermArg(sc, r)
	if err != nil {
		return err
	}
	bitIdxVal, err := it.evalTermArg(sc, r)
	if err != nil {
		return err
	}
	bitWidthVal, err := it.evalTermArg(sc, r)
	if err != nil {
		return err
	}
	name, err := readName(r)
	if err != nil {
		return err
	}
	bitIdx, _ := asInteger(bitIdxVal)
	bitWidth, _ := asInteger(bitWidthVal)
	fv := newValue(KindFieldUnit)
	fv.Field = &FieldUnit{Buffer: bufVal.reference(), BitOffset: bitIdx, BitWidth: bitWidth}
	sc.ns.Insert(name.String(), fv)
	return nil
}

// readFieldUnit reads the current value of a FieldUnit: from a backing
// buffer directly, or from an OperationRegion via the registered
// RegionHandler for its address space.
func (it *Interpreter) readFieldUnit(f *FieldUnit) (uint64, *kernel.Error) {
	if f.Buffer != nil {
		return readBits(f.Buffer.Buf, f.BitOffset, f.BitWidth), nil
	}
	if f.Region == nil {
		return 0, errTypeMismatch
	}
	h := it.Regions[f.Region.RegionSpace]
	if h == nil {
		return 0, &kernel.Error{Module: "acpi_aml", Message: "no region handler registered for address space"}
	}
	byteOff := f.Region.RegionOffset + f.BitOffset/8
	v, e := h.Read(f.Region.RegionSpace, byteOff, fieldAccessWidth(f.BitWidth))
	if e != nil {
		return 0, &kernel.Error{Module: "acpi_aml", Message: "region read failed"}
	}
	return v, nil
}

func fieldAccessWidth(bits uint64) uint8 {
	switch {
	case bits <= 8:
		return 8
	case bits <= 16:
		return 16
	case bits <= 32:
		return 32
	default:
		return 64
	}
}

func readBits(buf []byte, bitOffset, bitWidth uint64) uint64 {
	var v uint64
	for i := uint64(0); i < bitWidth; i++ {
		bit := bitOffset + i
		byteIdx := bit / 8
		if byteIdx >= uint64(len(buf)) {
			break
		}
		if buf[byteIdx]&(1<<(bit%8)) != 0 {
			v |= 1 << i
		}
	}
	return v
}
