package sched

import (
	"sync/atomic"

	"github.com/ardent-os/ardent/kernel/kfmt"
	"github.com/ardent-os/ardent/kernel/sched/avl"
)

var ticks uint64

// AdvanceTick increments the global tick counter and returns the new count.
func AdvanceTick() uint64 { return atomic.AddUint64(&ticks, 1) }

// CurrentTick returns the current tick count.
func CurrentTick() uint64 { return atomic.LoadUint64(&ticks) }

// restoreContextFn transfers control to a thread's saved context; an
// architecture hook so hosted tests never execute it.
var restoreContextFn = func(*Context) {}

// SetRestoreContextHook installs the architecture-specific function that
// actually resumes a thread. Until it is called, ContextSwitch resumes
// nothing.
func SetRestoreContextHook(fn func(*Context)) { restoreContextFn = fn }

// Requeue places t on a ready queue per its affinity (spec.md §4.H): the
// thread's own processor if allowed and not saturated, otherwise the
// least-loaded processor its affinity permits.
func Requeue(t *Thread) {
	t.State = Queued

	if t.Processor != nil && t.Affinity&(Affinity(1)<<uint(t.Processor.Idx)) != 0 && !t.Processor.saturated() {
		p := t.Processor
		p.Lock.Acquire()
		p.pushReady(t)
		p.Lock.Release()
		return
	}

	var best *Processor
	for i := 0; i < MaxProcessors; i++ {
		if t.Affinity&(Affinity(1)<<uint(i)) == 0 {
			continue
		}
		p := processors[i]
		if p == nil {
			continue
		}
		if best == nil || p.readyCount < best.readyCount {
			best = p
		}
	}
	if best == nil {
		kfmt.Panic(kfmt.Bugcheck{Code: kfmt.BadThreadState, Params: [4]uint64{uint64(t.ID), 0, 0, 0}})
		return
	}
	t.Processor = best
	best.Lock.Acquire()
	best.pushReady(t)
	best.Lock.Release()
}

// Wait blocks the calling processor's current thread until eventOrNil is
// signaled or timeoutTicks elapses, whichever comes first (spec.md §4.H).
// The caller must invoke this only from the thread's own execution context;
// Wait itself only prepares the timed-wait/event registration, the actual
// suspend happens when the caller subsequently falls into QueueProcess.
func Wait(p *Processor, t *Thread, event *Event, timeoutTicks uint64) {
	t.WaitObject = event
	t.WaitTicks = CurrentTick() + timeoutTicks
	t.State = Waiting

	p.Lock.Acquire()
	p.Wait.Insert(avl.Key{WaitTicks: t.WaitTicks, ThreadAddr: t.ID}, t)
	if min := p.Wait.Min(); min != nil && (p.ClosestWaitTick == 0 || min.Key.WaitTicks < p.ClosestWaitTick) {
		p.ClosestWaitTick = min.Key.WaitTicks
	}
	p.Lock.Release()

	if event != nil {
		event.Lock.Acquire()
		event.appendWaiter(t)
		event.Lock.Release()
	}
}

// QueueProcess runs the per-tick scheduling algorithm on p (spec.md §4.H):
// drain terminations, wake expired timed waits, and either context-switch
// into the next ready thread or park the processor as idle.
func QueueProcess(p *Processor, terminate func(*Thread)) {
	p.drainTermination(terminate)

	now := CurrentTick()
	for now >= p.ClosestWaitTick {
		p.Lock.Acquire()
		key, val, ok := p.Wait.PopMin()
		if !ok {
			p.ClosestWaitTick = 0
			p.Lock.Release()
			break
		}
		if now < key.WaitTicks {
			p.Wait.Insert(key, val)
			p.ClosestWaitTick = key.WaitTicks
			p.Lock.Release()
			break
		}
		p.Lock.Release()

		t := val.(*Thread)
		if t.WaitObject == nil {
			t.State = Queued
			Requeue(t)
			continue
		}

		ev := t.WaitObject
		ev.Lock.Acquire()
		stillLinked := ev.unlinkWaiter(t)
		ev.Lock.Release()
		if stillLinked {
			t.WaitObject = nil
			t.State = Queued
			Requeue(t)
		}
		// else: the event already signaled and requeued this thread.
	}

	if p.CurrentThread != nil && !p.CurrentThread.Idle && p.CurrentThread.ExpirationTicks == 0 {
		// Quantum expiry forces a switch; the processor lock (Dispatch)
		// is sufficient here since QueueProcess itself only ever runs at
		// Dispatch or above.
		p.Lock.Acquire()
		next := p.popReady()
		if next == nil {
			p.CurrentThread.ExpirationTicks = p.CurrentThread.Quantum
			setIdle(p.Idx, true)
			p.Lock.Release()
			return
		}
		p.Lock.Release()
		ContextSwitch(p, next)
	}
}

// ContextSwitch saves the outgoing thread's context, installs target as
// p.CurrentThread, and resumes it (spec.md §4.H). The outgoing thread is
// requeued unless something else already changed its state (e.g. it is now
// Waiting, having called Wait just before yielding).
func ContextSwitch(p *Processor, target *Thread) {
	setIdle(p.Idx, false)

	outgoing := p.CurrentThread
	target.State = Running
	target.ExpirationTicks = target.Quantum
	target.Processor = p
	p.CurrentThread = target

	if outgoing != nil && outgoing != target && outgoing.State == Running {
		Requeue(outgoing)
	}

	restoreContextFn(&target.Ctx)

	if target.Processor != nil && len(target.Alerts) > 0 {
		drainAlerts(target)
	}
}

func drainAlerts(t *Thread) {
	for len(t.Alerts) > 0 {
		alert := t.Alerts[0]
		t.Alerts = t.Alerts[1:]
		alert()
	}
}
