// Package ob implements the kernel object manager: reference-counted
// objects with an optional name in a directory, per spec.md §4.I. Objects
// are allocated from the kernel pool with a header prefix and handed back
// to callers as a pointer past the header.
package ob

import (
	"sync/atomic"
	"unsafe"

	"github.com/ardent-os/ardent/kernel/pool"
)

// Type describes one kind of object: its pool tag and the callback invoked
// when its refcount reaches zero.
type Type struct {
	Name string
	Tag  pool.Tag
	Size uintptr
	// Delete runs the type's cleanup once refcount hits zero, before the
	// allocation is returned to the pool.
	Delete func(body unsafe.Pointer)
}

// Header prefixes every object's body in memory.
type Header struct {
	refcount int32
	typ      *Type

	// parent holds the body pointer of the Directory this object is
	// installed in, or nil if unparented. Mutated only via atomic CAS (spec.md §4.I).
	parent unsafe.Pointer
}

const headerSize = unsafe.Sizeof(Header{})

// backingPool is the pool new objects are allocated from, installed once
// during bring-up.
var backingPool *pool.Pool

// SetPool installs the pool object allocations are drawn from.
func SetPool(p *pool.Pool) { backingPool = p }

func headerOf(body unsafe.Pointer) *Header {
	return (*Header)(unsafe.Pointer(uintptr(body) - headerSize))
}

// Create allocates header+body for t from the pool, with refcount 1. The
// returned pointer addresses the body, immediately after the header.
func Create(t *Type) (unsafe.Pointer, bool) {
	total := headerSize + t.Size
	addr, ok := backingPool.Allocate(total, t.Tag)
	if !ok {
		return nil, false
	}

	h := (*Header)(unsafe.Pointer(addr))
	h.refcount = 1
	h.typ = t
	h.parent = nil

	return unsafe.Pointer(addr + headerSize), true
}

// Reference atomically increments obj's refcount.
func Reference(obj unsafe.Pointer) {
	atomic.AddInt32(&headerOf(obj).refcount, 1)
}

// Dereference atomically decrements obj's refcount; at zero it invokes the
// type's Delete callback and frees the allocation.
func Dereference(obj unsafe.Pointer) {
	h := headerOf(obj)
	if atomic.AddInt32(&h.refcount, -1) != 0 {
		return
	}
	if h.typ.Delete != nil {
		h.typ.Delete(obj)
	}
	backingPool.Free(uintptr(unsafe.Pointer(h)), h.typ.Tag)
}

// RefCount returns obj's current reference count, for diagnostics and
// tests.
func RefCount(obj unsafe.Pointer) int32 {
	return atomic.LoadInt32(&headerOf(obj).refcount)
}

// TypeOf returns obj's type descriptor.
func TypeOf(obj unsafe.Pointer) *Type {
	return headerOf(obj).typ
}

func casParent(obj unsafe.Pointer, old, new unsafe.Pointer) bool {
	h := headerOf(obj)
	return atomic.CompareAndSwapPointer(&h.parent, old, new)
}

func loadParent(obj unsafe.Pointer) unsafe.Pointer {
	return atomic.LoadPointer(&headerOf(obj).parent)
}
