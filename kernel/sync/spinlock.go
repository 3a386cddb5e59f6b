// Package sync provides the IRQL-aware synchronization primitives used
// throughout the kernel. Every lock in the system (page-list, pool,
// processor, directory, interrupt-object, event) is built on Spinlock.
package sync

import "sync/atomic"

// Irql identifies one of the kernel's interrupt request levels. Acquiring a
// Spinlock raises the current processor's IRQL to the lock's level if it is
// currently lower; the previous level is restored on Release.
type Irql uint8

// The IRQL levels, ascending. Dispatch and above disables ordinary thread
// preemption on the owning processor; DeviceLow..DeviceHigh spans the
// priority band reserved for device interrupt vectors (spec.md §4.H).
const (
	Passive Irql = iota
	Alert
	Dispatch
	DeviceLow
	DeviceHigh Irql = 0x1f
	Synch      Irql = 0x20
	Timer      Irql = 0x21
	IPI        Irql = 0x22
	High       Irql = 0x23
)

var (
	// raiseIrqlFn and lowerIrqlFn are architecture hooks, mocked by hosted
	// tests. On amd64 they mask the local APIC task-priority register.
	raiseIrqlFn = func(Irql) Irql { return Passive }
	lowerIrqlFn = func(Irql) {}

	// yieldFn lets a spinning acquirer give up its timeslice instead of
	// burning cycles; substituted with runtime.Gosched by hosted tests.
	yieldFn func()
)

// SetIrqlHooks installs the architecture-specific IRQL raise/lower
// functions, after which Spinlock enforces real IRQL ordering. No caller in
// this tree installs them; until they are installed every lock behaves as a
// plain busy-wait mutex at Passive.
func SetIrqlHooks(raise func(Irql) Irql, lower func(Irql)) {
	raiseIrqlFn = raise
	lowerIrqlFn = lower
}

// CurrentIrql returns the IRQL the calling processor is currently running
// at, as observed by raising to and immediately restoring Passive.
func CurrentIrql() Irql {
	prev := raiseIrqlFn(Passive)
	lowerIrqlFn(prev)
	return prev
}

// Spinlock is a busy-wait mutual exclusion lock that also enforces the IRQL
// rule from spec.md §5: a lock acquired at level L must always be acquired
// at L, raising the caller's IRQL if it is currently lower. Re-acquiring a
// lock already held by the current thread deadlocks.
type Spinlock struct {
	state    uint32
	level    Irql
	prevIrql Irql
}

// Init associates the lock with the IRQL it must be held at. A lock that is
// never initialized is held at Passive, the zero Irql.
func (l *Spinlock) Init(level Irql) {
	l.level = level
}

// Acquire raises the current processor to the lock's IRQL (if lower) and
// busy-waits until the lock is free.
func (l *Spinlock) Acquire() {
	prev := raiseIrqlFn(l.level)
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		if yieldFn != nil {
			yieldFn()
		}
	}
	l.prevIrql = prev
}

// TryToAcquire attempts to acquire the lock without blocking. It still
// raises the IRQL to the lock's level on success, lowering it back down if
// the lock turned out to be held.
func (l *Spinlock) TryToAcquire() bool {
	prev := raiseIrqlFn(l.level)
	if atomic.SwapUint32(&l.state, 1) == 0 {
		l.prevIrql = prev
		return true
	}
	lowerIrqlFn(prev)
	return false
}

// Release relinquishes a held lock and restores the IRQL that was active
// before Acquire/TryToAcquire raised it. Calling Release while the lock is
// free has no effect beyond restoring the IRQL.
func (l *Spinlock) Release() {
	prev := l.prevIrql
	atomic.StoreUint32(&l.state, 0)
	lowerIrqlFn(prev)
}
