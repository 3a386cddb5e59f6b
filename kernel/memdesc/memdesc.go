// Package memdesc implements the typed physical-page-range descriptor list
// shared by the loader and the kernel's bring-up path. The list is a
// length-bounded, strictly base_page-ordered sequence of [base_page,
// page_count) ranges, each tagged with a Type, supporting in-place split,
// overlay and merge under a single entry point: Upsert.
package memdesc

import "github.com/ardent-os/ardent/kernel"

// Type identifies the use a physical page range is put to.
type Type uint8

// The descriptor types. Zero value (Free) matches the teacher convention of
// treating page 0 specially: the zero page is never Free.
const (
	Free Type = iota
	OSLoaderTemporary
	FirmwareTemporary
	FirmwarePermanent
	LoadedProgram
	PageMap
	GraphicsBuffer
	SystemReserved
)

func (t Type) String() string {
	switch t {
	case Free:
		return "FREE"
	case OSLoaderTemporary:
		return "OSLOADER_TEMPORARY"
	case FirmwareTemporary:
		return "FIRMWARE_TEMPORARY"
	case FirmwarePermanent:
		return "FIRMWARE_PERMANENT"
	case LoadedProgram:
		return "LOADED_PROGRAM"
	case PageMap:
		return "PAGE_MAP"
	case GraphicsBuffer:
		return "GRAPHICS_BUFFER"
	case SystemReserved:
		return "SYSTEM_RESERVED"
	default:
		return "UNKNOWN"
	}
}

// Descriptor describes one typed, contiguous run of physical pages.
type Descriptor struct {
	BasePage  uint64
	PageCount uint64
	Type      Type

	prev, next *Descriptor
}

// End returns the one-past-the-end page number of the descriptor.
func (d *Descriptor) End() uint64 { return d.BasePage + d.PageCount }

// ErrOutOfSlots is returned by Upsert when a new descriptor is required but
// the backing slot pool (fixed-capacity during the loader phase) is
// exhausted.
var ErrOutOfSlots = &kernel.Error{Module: "memdesc", Message: "descriptor slot pool exhausted"}

// List is a doubly linked, base_page-ordered sequence of descriptors backed
// by a fixed-capacity slot pool. The loader-phase capacity is 256 entries
// (spec.md §3); the kernel copies the frozen loader list into a pool
// allocation sized to the final entry count at bring-up.
type List struct {
	head, tail *Descriptor
	count      int

	slots    []Descriptor
	freeSlot []bool
}

// New returns a List backed by a slot pool with room for capacity entries.
func New(capacity int) *List {
	return &List{
		slots:    make([]Descriptor, capacity),
		freeSlot: make([]bool, capacity),
	}
}

func (l *List) allocSlot() *Descriptor {
	for i := range l.freeSlot {
		if !l.freeSlot[i] {
			l.freeSlot[i] = true
			l.slots[i] = Descriptor{}
			return &l.slots[i]
		}
	}
	return nil
}

func (l *List) freeSlotFor(d *Descriptor) {
	for i := range l.slots {
		if &l.slots[i] == d {
			l.freeSlot[i] = false
			return
		}
	}
}

func (l *List) insertAfter(at, d *Descriptor) {
	d.prev = at
	if at == nil {
		d.next = l.head
		l.head = d
	} else {
		d.next = at.next
		at.next = d
	}
	if d.next != nil {
		d.next.prev = d
	} else {
		l.tail = d
	}
	l.count++
}

func (l *List) unlink(d *Descriptor) {
	if d.prev != nil {
		d.prev.next = d.next
	} else {
		l.head = d.next
	}
	if d.next != nil {
		d.next.prev = d.prev
	} else {
		l.tail = d.prev
	}
	l.freeSlotFor(d)
	l.count--
}

// Count returns the number of live descriptors.
func (l *List) Count() int { return l.count }

// Visit calls fn for every descriptor in base_page order. fn must not mutate
// the list; use Upsert for mutation.
func (l *List) Visit(fn func(*Descriptor)) {
	for d := l.head; d != nil; d = d.next {
		fn(d)
	}
}

func overlaps(d *Descriptor, base, count uint64) bool {
	end := base + count
	return base < d.End() && end > d.BasePage
}

// Upsert is the engine's single mutating entry point. It applies the
// resolution rules from spec.md §4.A in order: same-type containment is a
// no-op; full/left/right/middle overlap against an existing entry of a
// different type overwrites, splits, or carves out the request; lacking any
// overlap, Upsert tries to extend an adjacent same-type entry before falling
// back to inserting a brand-new one. Every mutation is followed by a
// backward/forward merge pass with adjacent same-type neighbors.
func (l *List) Upsert(t Type, basePage, pageCount uint64) *kernel.Error {
	if pageCount == 0 {
		return nil
	}
	reqEnd := basePage + pageCount

	// trim shortens or drops the entries after d that the request also
	// covers, so the list stays strictly ordered.
	trim := func(d *Descriptor) {
		for n := d.next; n != nil && n.BasePage < reqEnd; n = d.next {
			if n.End() > reqEnd {
				n.PageCount, n.BasePage = n.End()-reqEnd, reqEnd
				return
			}
			l.unlink(n)
		}
	}

	for d := l.head; d != nil; d = d.next {
		if !overlaps(d, basePage, pageCount) {
			continue
		}

		// Rule 1: fully contained, same type -> no-op.
		if d.Type == t && basePage >= d.BasePage && reqEnd <= d.End() {
			return nil
		}

		// Rule 2: full overwrite.
		if basePage <= d.BasePage && reqEnd >= d.End() {
			d.BasePage, d.PageCount, d.Type = basePage, pageCount, t
			trim(d)
			l.mergeAround(d)
			return nil
		}

		// Rule 3: left overlap (covers d's left edge, not its right).
		if basePage <= d.BasePage && reqEnd < d.End() {
			right := l.allocSlot()
			if right == nil {
				return ErrOutOfSlots
			}
			right.BasePage = reqEnd
			right.PageCount = d.End() - reqEnd
			right.Type = d.Type
			l.insertAfter(d, right)

			d.BasePage, d.PageCount, d.Type = basePage, pageCount, t
			l.mergeAround(d)
			return nil
		}

		// Rule 4: right overlap (covers d's right edge, not its left).
		if basePage > d.BasePage && reqEnd >= d.End() {
			d.PageCount = basePage - d.BasePage

			newD := l.allocSlot()
			if newD == nil {
				return ErrOutOfSlots
			}
			newD.BasePage = basePage
			newD.PageCount = pageCount
			newD.Type = t
			l.insertAfter(d, newD)
			trim(newD)
			l.mergeAround(newD)
			return nil
		}

		// Rule 5: middle overlap, strictly inside a larger entry of a
		// different type -> split into left-sibling, request, right-sibling.
		left := l.allocSlot()
		right := l.allocSlot()
		if left == nil || right == nil {
			if left != nil {
				l.freeSlotFor(left)
			}
			if right != nil {
				l.freeSlotFor(right)
			}
			return ErrOutOfSlots
		}

		origEnd := d.End()
		pred := d.prev

		left.BasePage = d.BasePage
		left.PageCount = basePage - d.BasePage
		left.Type = d.Type
		l.insertAfter(pred, left)

		d.BasePage, d.PageCount, d.Type = basePage, pageCount, t

		right.BasePage = reqEnd
		right.PageCount = origEnd - reqEnd
		right.Type = left.Type
		l.insertAfter(d, right)

		l.mergeAround(left)
		l.mergeAround(d)
		l.mergeAround(right)
		return nil
	}

	// No overlap was found. Try to extend an adjacent same-type entry.
	for d := l.head; d != nil; d = d.next {
		if d.Type != t {
			continue
		}
		if d.End() == basePage {
			d.PageCount += pageCount
			l.mergeAround(d)
			return nil
		}
		if reqEnd == d.BasePage {
			d.BasePage = basePage
			d.PageCount += pageCount
			l.mergeAround(d)
			return nil
		}
	}

	// Nothing to extend; insert a brand-new descriptor in sorted order.
	nd := l.allocSlot()
	if nd == nil {
		return ErrOutOfSlots
	}
	nd.BasePage, nd.PageCount, nd.Type = basePage, pageCount, t

	var at *Descriptor
	for d := l.head; d != nil; d = d.next {
		if d.BasePage > basePage {
			break
		}
		at = d
	}
	l.insertAfter(at, nd)
	l.mergeAround(nd)
	return nil
}

// mergeAround merges d with its predecessor and/or successor when they share
// d's type and are adjacent, keeping the list free of adjacent same-type
// entries.
func (l *List) mergeAround(d *Descriptor) {
	if d.next != nil && d.next.Type == d.Type && d.next.BasePage == d.End() {
		absorbed := d.next
		d.PageCount += absorbed.PageCount
		l.unlink(absorbed)
	}
	if d.prev != nil && d.prev.Type == d.Type && d.prev.End() == d.BasePage {
		pred := d.prev
		pred.PageCount += d.PageCount
		l.unlink(d)
		l.mergeAround(pred)
	}
}

// Freeze copies the list's live descriptors into a fresh List sized exactly
// to the current entry count, used at kernel bring-up to hand the
// firmware-origin regions over to a pool-backed, no-longer-growing copy
// (spec.md §4.A). Free and LoadedProgram descriptors remain subject to the
// physical page allocator after Freeze and are not special-cased here.
func (l *List) Freeze() *List {
	frozen := New(l.count)
	for d := l.head; d != nil; d = d.next {
		_ = frozen.Upsert(d.Type, d.BasePage, d.PageCount)
	}
	return frozen
}
