package ob

import (
	"unsafe"

	"github.com/ardent-os/ardent/kernel/sync"
)

const bucketCount = 32

// entry names one object's placement inside a directory.
type entry struct {
	name string
	obj  unsafe.Pointer
	next *entry
}

// Directory maps names to objects in fixed hash buckets, each independently
// locked (spec.md §4.I).
type Directory struct {
	self    unsafe.Pointer // the Directory's own object body, used as the parent token
	buckets [bucketCount]struct {
		lock sync.Spinlock
		head *entry
	}
}

var directoryType = &Type{Name: "Directory", Size: unsafe.Sizeof(Directory{})}

// NewDirectory creates a directory as a regular kernel object so it can be
// inserted into a parent directory like any other object.
func NewDirectory() (*Directory, bool) {
	body, ok := Create(directoryType)
	if !ok {
		return nil, false
	}
	d := (*Directory)(body)
	d.self = body
	for i := range d.buckets {
		d.buckets[i].lock.Init(sync.Dispatch)
	}
	return d, true
}

func hashName(name string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return h
}

func bucketFor(name string) uint32 {
	return hashName(name) % bucketCount
}

// Insert installs obj under name in dir. It fails if obj already has a
// parent (spec.md §4.I): the CAS on the object's parent slot is the single
// point of truth for "already parented".
func Insert(dir *Directory, name string, obj unsafe.Pointer) bool {
	if !casParent(obj, nil, dir.self) {
		return false
	}

	Reference(obj)

	b := &dir.buckets[bucketFor(name)]
	e := &entry{name: name, obj: obj}
	b.lock.Acquire()
	e.next = b.head
	b.head = e
	b.lock.Release()
	return true
}

// Remove detaches obj from whatever directory currently parents it, if any,
// and dereferences it. Concurrent directory teardown is safe: the parent
// CAS only succeeds while the slot still matches dir's own body pointer, so
// an object already reparented or already removed is left alone.
func Remove(dir *Directory, obj unsafe.Pointer) bool {
	if !casParent(obj, dir.self, nil) {
		return false
	}

	for i := range dir.buckets {
		b := &dir.buckets[i]
		b.lock.Acquire()
		var prev *entry
		for e := b.head; e != nil; e = e.next {
			if e.obj == obj {
				if prev == nil {
					b.head = e.next
				} else {
					prev.next = e.next
				}
				b.lock.Release()
				Dereference(obj)
				return true
			}
			prev = e
		}
		b.lock.Release()
	}
	return false
}

// LookupByName returns the object named name in dir without bumping its
// refcount, or nil if absent.
func LookupByName(dir *Directory, name string) unsafe.Pointer {
	b := &dir.buckets[bucketFor(name)]
	b.lock.Acquire()
	defer b.lock.Release()
	for e := b.head; e != nil; e = e.next {
		if e.name == name {
			return e.obj
		}
	}
	return nil
}

// LookupByIndex walks dir's buckets in order and returns the i-th entry's
// object and name, or ok=false if dir has fewer than i+1 entries.
func LookupByIndex(dir *Directory, i int) (name string, obj unsafe.Pointer, ok bool) {
	count := 0
	for b := 0; b < bucketCount; b++ {
		bucket := &dir.buckets[b]
		bucket.lock.Acquire()
		for e := bucket.head; e != nil; e = e.next {
			if count == i {
				name, obj = e.name, e.obj
				bucket.lock.Release()
				return name, obj, true
			}
			count++
		}
		bucket.lock.Release()
	}
	return "", nil, false
}
