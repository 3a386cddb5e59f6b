// Package acpi implements the ACPI driver: it enumerates the firmware
// tables reachable from the RSDT/XSDT the loader located (spec.md §1,
// "BIOS/UEFI discovery" is explicitly out of scope — the loader's firmware
// collaborator already resolved the RSDP into the handoff block), finds the
// DSDT through the FADT, and hands its AML body to drivers/acpi/aml for
// table load and method evaluation (spec.md §4.J).
package acpi

import (
	"io"
	"unsafe"

	"github.com/ardent-os/ardent/device"
	"github.com/ardent-os/ardent/drivers/acpi/aml"
	"github.com/ardent-os/ardent/drivers/acpi/table"
	"github.com/ardent-os/ardent/kernel"
	"github.com/ardent-os/ardent/kernel/kfmt"
	"github.com/ardent-os/ardent/loader/pagemap"
)

var (
	errTableChecksumMismatch = &kernel.Error{Module: "acpi", Message: "detected checksum mismatch while parsing ACPI table header"}

	fadtSignature = "FACP"

	// physAddrFn translates a physical address into a dereferenceable
	// virtual one. Defaults to the page-map builder's high-half mirror;
	// kept in a variable so the translation can be replaced.
	physAddrFn = pagemap.PhysAddr
)

// Driver implements device.Driver over the tables reachable from a single
// RSDT/XSDT root.
type Driver struct {
	rsdtAddr uintptr
	useXSDT  bool

	// tableMap holds every successfully mapped and checksum-verified table,
	// keyed by its 4-byte ACPI signature.
	tableMap map[string]*table.SDTHeader

	interp *aml.Interpreter
}

// New constructs a Driver from the RSDT/XSDT root address and format flag
// the loader recorded in the handoff block (spec.md §6).
func New(rsdtAddr uintptr, useXSDT bool) *Driver {
	return &Driver{rsdtAddr: rsdtAddr, useXSDT: useXSDT}
}

// DriverName returns the name of this driver.
func (*Driver) DriverName() string { return "acpi" }

// DriverVersion returns the version of this driver.
func (*Driver) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit enumerates every table reachable from the RSDT/XSDT, locates
// the DSDT through the FADT, and loads its AML body.
func (d *Driver) DriverInit() *kernel.Error {
	return d.DriverInitTo(nopWriter{})
}

// DriverInitTo is DriverInit with an explicit diagnostic sink, matching the
// gopher-os convention of taking an io.Writer for boot-time driver logs.
func (d *Driver) DriverInitTo(w io.Writer) *kernel.Error {
	if err := d.enumerateTables(w); err != nil {
		return err
	}

	dsdt, ok := d.tableMap["DSDT"]
	if !ok {
		return nil
	}

	d.interp = aml.NewInterpreter()
	body := tableBody(dsdt)
	if err := d.interp.LoadTable(body); err != nil {
		kfmt.Fprintf(w, "acpi: DSDT load failed: %s\n", err.Message)
		return nil
	}

	return nil
}

// Interpreter returns the AML interpreter the DSDT was loaded into, or nil
// if DriverInit has not run or no DSDT was found.
func (d *Driver) Interpreter() *aml.Interpreter { return d.interp }

// Table returns a previously enumerated table by its 4-byte signature.
func (d *Driver) Table(signature string) (*table.SDTHeader, bool) {
	h, ok := d.tableMap[signature]
	return h, ok
}

func (d *Driver) enumerateTables(w io.Writer) *kernel.Error {
	header, sizeofHeader, err := mapACPITable(d.rsdtAddr)
	if err != nil {
		return err
	}

	d.tableMap = make(map[string]*table.SDTHeader)

	acpiRev := header.Revision
	payloadLen := header.Length - uint32(sizeofHeader)

	var sdtAddresses []uintptr
	switch d.useXSDT {
	case true:
		sdtAddresses = make([]uintptr, payloadLen>>3)
		for curPtr, i := d.rsdtAddr+sizeofHeader, 0; i < len(sdtAddresses); curPtr, i = curPtr+8, i+1 {
			sdtAddresses[i] = uintptr(*(*uint64)(unsafe.Pointer(curPtr)))
		}
	default:
		sdtAddresses = make([]uintptr, payloadLen>>2)
		for curPtr, i := d.rsdtAddr+sizeofHeader, 0; i < len(sdtAddresses); curPtr, i = curPtr+4, i+1 {
			sdtAddresses[i] = uintptr(*(*uint32)(unsafe.Pointer(curPtr)))
		}
	}

	for _, addr := range sdtAddresses {
		h, _, err := mapACPITable(addr)
		if err != nil {
			if err == errTableChecksumMismatch {
				kfmt.Fprintf(w, "acpi: checksum mismatch at 0x%x, skipping\n", addr)
				continue
			}
			return err
		}

		signature := string(h.Signature[:])
		d.tableMap[signature] = h

		if signature != fadtSignature {
			continue
		}

		fadt := (*table.FADT)(unsafe.Pointer(h))
		dsdtAddr := uintptr(fadt.Dsdt)
		if acpiRev >= 2 {
			dsdtAddr = uintptr(fadt.Ext.Dsdt)
		}

		dh, _, err := mapACPITable(dsdtAddr)
		if err != nil {
			if err == errTableChecksumMismatch {
				kfmt.Fprintf(w, "acpi: DSDT checksum mismatch, skipping\n")
				continue
			}
			return err
		}
		d.tableMap[string(dh.Signature[:])] = dh
	}

	return nil
}

// mapACPITable dereferences the table header at the given physical address
// through the high-half physical mirror and verifies its checksum.
func mapACPITable(tableAddr uintptr) (header *table.SDTHeader, sizeofHeader uintptr, err *kernel.Error) {
	sizeofHeader = unsafe.Sizeof(table.SDTHeader{})
	headerAddr := physAddrFn(uint64(tableAddr))
	header = (*table.SDTHeader)(unsafe.Pointer(headerAddr))

	if !validTable(headerAddr, header.Length) {
		return header, sizeofHeader, errTableChecksumMismatch
	}

	return header, sizeofHeader, nil
}

func validTable(tablePtr uintptr, tableLength uint32) bool {
	var sum uint8
	for i := uint32(0); i < tableLength; i++ {
		sum += *(*uint8)(unsafe.Pointer(tablePtr + uintptr(i)))
	}
	return sum == 0
}

// tableBody returns the AML payload following an SDTHeader of the given
// total length.
func tableBody(header *table.SDTHeader) []byte {
	sizeofHeader := unsafe.Sizeof(table.SDTHeader{})
	bodyLen := uintptr(header.Length) - sizeofHeader
	bodyAddr := uintptr(unsafe.Pointer(header)) + sizeofHeader
	return unsafe.Slice((*byte)(unsafe.Pointer(bodyAddr)), bodyLen)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

var _ device.Driver = (*Driver)(nil)
