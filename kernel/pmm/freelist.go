package pmm

import "github.com/ardent-os/ardent/kernel/sync"

// globalFreeList is the system-wide free-page list, protected by a single
// Dispatch-level spinlock (spec.md §4.D, §5).
type globalFreeList struct {
	lock  sync.Spinlock
	head  Frame
	count uint64
}

var global globalFreeList

func init() {
	global.head = InvalidFrame
	global.lock.Init(sync.Dispatch)
}

// seed is called once during bring-up for every free frame discovered by the
// boot memory scan; it pushes the frame onto the global free list without
// taking the lock (no concurrency exists yet).
func seed(f Frame) {
	e := db.entry(f)
	e.flags = 0
	e.nextFree = global.head
	global.head = f
	global.count++
}

// popGlobal pops up to n frames from the global free list under the global
// lock, verifying each popped PFN's invariants (used == 0, no pool bits) and
// raising BAD_PFN_HEADER on mismatch. It returns the frames actually popped.
func popGlobal(n uint64) []Frame {
	global.lock.Acquire()
	defer global.lock.Release()

	out := make([]Frame, 0, n)
	for uint64(len(out)) < n && global.head.Valid() {
		f := global.head
		e := db.entry(f)
		if e.used() || e.poolItem() || e.poolBase() {
			badPFNHeader(f, 1)
		}
		global.head = e.nextFree
		global.count--
		out = append(out, f)
	}
	return out
}

// pushGlobal pushes frames back onto the global free list under the global
// lock.
func pushGlobal(frames []Frame) {
	global.lock.Acquire()
	defer global.lock.Release()

	for _, f := range frames {
		e := db.entry(f)
		e.flags = 0
		e.nextFree = global.head
		global.head = f
		global.count++
	}
}

// GlobalFreeCount returns the number of pages currently on the global free
// list. Exposed for tests and diagnostics only.
func GlobalFreeCount() uint64 {
	global.lock.Acquire()
	defer global.lock.Release()
	return global.count
}
