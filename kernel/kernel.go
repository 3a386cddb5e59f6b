// Package kernel defines the types and low-level memory primitives shared by
// every kernel subsystem.
package kernel

import (
	"reflect"
	"unsafe"
)

// Error describes a kernel error. All kernel errors are defined as package
// level variables that are pointers to Error. This stems from the fact that
// the Go allocator is not guaranteed to be available when an error value is
// constructed, so errors.New cannot be used.
type Error struct {
	// Module is the subsystem where the error occurred.
	Module string

	// Message describes the error.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Memset sets size bytes starting at addr to value. The implementation
// overlays a byte slice on top of the target address instead of looping a
// byte at a time, since page-granular addresses are always aligned and the
// copy can proceed in large strides.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))

	target[0] = value
	for written := uintptr(1); written < size; written *= 2 {
		copy(target[written:], target[:written])
	}
}

// Memcopy copies size bytes from src to dst. Both addresses may alias a
// region inside the same page; callers that need overlap-safe semantics must
// arrange non-overlapping regions themselves, as the copy always proceeds
// forward.
func Memcopy(dst, src uintptr, size uintptr) {
	if size == 0 {
		return
	}

	srcSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: src,
	}))
	dstSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: dst,
	}))

	copy(dstSlice, srcSlice)
}
