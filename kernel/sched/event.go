package sched

import "github.com/ardent-os/ardent/kernel/sync"

// Event is a wait object a thread can block on, in addition to or instead
// of a plain timeout. Its lock is always at Dispatch (spec.md §5).
type Event struct {
	Lock     sync.Spinlock
	waitHead *Thread
	signaled bool
}

// NewEvent returns an initialized, unsignaled Event.
func NewEvent() *Event {
	e := &Event{}
	e.Lock.Init(sync.Dispatch)
	return e
}

// appendWaiter links t onto the event's wait-list. Caller holds e.Lock.
func (e *Event) appendWaiter(t *Thread) {
	t.eventNext = e.waitHead
	e.waitHead = t
}

// unlinkWaiter removes t from the wait-list if still present, reporting
// whether it was found. Caller holds e.Lock.
func (e *Event) unlinkWaiter(t *Thread) bool {
	if e.waitHead == t {
		e.waitHead = t.eventNext
		t.eventNext = nil
		return true
	}
	for p := e.waitHead; p != nil; p = p.eventNext {
		if p.eventNext == t {
			p.eventNext = t.eventNext
			t.eventNext = nil
			return true
		}
	}
	return false
}

// Signal wakes every waiting thread, requeuing each as Queued on its
// affinity-selected processor. Threads that already timed out and were
// requeued by QueueProcess are no longer on the list and are unaffected.
func (e *Event) Signal() {
	e.Lock.Acquire()
	e.signaled = true
	head := e.waitHead
	e.waitHead = nil
	e.Lock.Release()

	for t := head; t != nil; {
		next := t.eventNext
		t.eventNext = nil
		// WaitObject is left set: the stale AVL entry this thread still
		// has in its processor's timed-wait tree checks WaitObject to
		// decide it must consult the event's wait-list, finds it already
		// unlinked (empty above), and does nothing (spec.md §4.H).
		t.State = Queued
		Requeue(t)
		t = next
	}
}

// Reset clears a previously signaled event so future waits block again.
func (e *Event) Reset() {
	e.Lock.Acquire()
	e.signaled = false
	e.Lock.Release()
}
