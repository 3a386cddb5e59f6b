// Package aml implements the ACPI AML interpreter that evaluates method
// bytecode drawn from firmware tables (spec.md §4.J). Nested AML terms are
// evaluated by recursion on the native Go stack; there is no explicit scope
// or opcode stack. The recursion depth is bounded by maxAMLRecursionDepth,
// and deeper nesting fails with errAMLStackOverflow.
package aml

import "github.com/ardent-os/ardent/kernel"

var (
	errReadPastEnd     = &kernel.Error{Module: "acpi_aml", Message: "attempted to read past the end of the current scope"}
	errInvalidPkgEnd   = &kernel.Error{Module: "acpi_aml", Message: "package length extends past the stream"}
	errInvalidUnread   = &kernel.Error{Module: "acpi_aml", Message: "unread called with offset already at zero"}
)

// reader is a bounded cursor over one scope's worth of AML bytes. Unlike a
// plain byte-slice index, its bound (pkgEnd) can be narrowed with SetPkgEnd.
// readPkgLength only returns a package's end offset and leaves the bound
// unchanged; package-scoped loops compare Offset against that end themselves.
type reader struct {
	data   []byte
	offset uint32
	pkgEnd uint32
}

func newReader(data []byte) *reader {
	return &reader{data: data, pkgEnd: uint32(len(data))}
}

func (r *reader) EOF() bool { return r.offset >= r.pkgEnd }

func (r *reader) Offset() uint32 { return r.offset }

func (r *reader) SetOffset(off uint32) {
	if off > uint32(len(r.data)) {
		off = uint32(len(r.data))
	}
	r.offset = off
}

// SetPkgEnd narrows (or restores) the reader's bound.
func (r *reader) SetPkgEnd(end uint32) *kernel.Error {
	if end > uint32(len(r.data)) {
		return errInvalidPkgEnd
	}
	r.pkgEnd = end
	return nil
}

func (r *reader) PkgEnd() uint32 { return r.pkgEnd }

func (r *reader) ReadByte() (byte, *kernel.Error) {
	if r.EOF() {
		return 0, errReadPastEnd
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

func (r *reader) PeekByte() (byte, *kernel.Error) {
	if r.EOF() {
		return 0, errReadPastEnd
	}
	return r.data[r.offset], nil
}

func (r *reader) Unread() *kernel.Error {
	if r.offset == 0 {
		return errInvalidUnread
	}
	r.offset--
	return nil
}

func (r *reader) ReadWord() (uint16, *kernel.Error) {
	lo, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	hi, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(lo) | uint16(hi)<<8, nil
}

func (r *reader) ReadDword() (uint32, *kernel.Error) {
	lo, err := r.ReadWord()
	if err != nil {
		return 0, err
	}
	hi, err := r.ReadWord()
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

func (r *reader) ReadQword() (uint64, *kernel.Error) {
	lo, err := r.ReadDword()
	if err != nil {
		return 0, err
	}
	hi, err := r.ReadDword()
	if err != nil {
		return 0, err
	}
	return uint64(lo) | uint64(hi)<<32, nil
}

// ReadBytes reads n raw bytes.
func (r *reader) ReadBytes(n uint32) ([]byte, *kernel.Error) {
	if r.offset+n > r.pkgEnd {
		return nil, errReadPastEnd
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

// ReadASCIIZ reads a NUL-terminated string.
func (r *reader) ReadASCIIZ() (string, *kernel.Error) {
	start := r.offset
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(r.data[start : r.offset-1]), nil
		}
	}
}
