package sched

import "testing"

func resetSchedulerForTest() {
	for i := range processors {
		processors[i] = nil
	}
	idleProcessors = 0
	ticks = 0
	restoreContextFn = func(*Context) {}
}

func newTestProcessor(idx int) *Processor {
	p := &Processor{}
	RegisterProcessor(idx, p)
	return p
}

func TestRequeuePrefersLocalProcessorWhenNotSaturated(t *testing.T) {
	resetSchedulerForTest()
	p0 := newTestProcessor(0)
	newTestProcessor(1)

	th := NewThread(0x1000, Context{})
	th.Processor = p0
	th.Affinity = AnyProcessor

	Requeue(th)

	if p0.readyCount != 1 {
		t.Fatalf("expected thread requeued on its own processor, readyCount=%d", p0.readyCount)
	}
}

func TestRequeueDistributesToLeastLoaded(t *testing.T) {
	resetSchedulerForTest()
	p0 := newTestProcessor(0)
	p1 := newTestProcessor(1)

	for i := 0; i < readySaturationLimit; i++ {
		p0.pushReady(&Thread{ID: uintptr(i)})
	}

	th := NewThread(0x2000, Context{})
	th.Processor = p0
	th.Affinity = AnyProcessor

	Requeue(th)

	if p1.readyCount != 1 {
		t.Fatalf("expected overflow thread to land on the less loaded processor, p1.readyCount=%d", p1.readyCount)
	}
}

func TestWaitAndQueueProcessWakesPureDelay(t *testing.T) {
	resetSchedulerForTest()
	p := newTestProcessor(0)
	idle := NewThread(0, Context{})
	idle.Idle = true
	p.CurrentThread = idle

	th := NewThread(0x3000, Context{})
	th.Processor = p
	Wait(p, th, nil, 5)

	if p.Wait.Count() != 1 {
		t.Fatalf("expected thread registered in timed-wait tree, count=%d", p.Wait.Count())
	}

	for i := 0; i < 5; i++ {
		AdvanceTick()
	}
	QueueProcess(p, func(*Thread) {})

	if th.State != Queued {
		t.Fatalf("expected thread to be woken into Queued, got %v", th.State)
	}
	if p.readyCount != 1 {
		t.Fatalf("expected woken thread on ready queue, readyCount=%d", p.readyCount)
	}
}

func TestWaitWithEventWakesOnSignal(t *testing.T) {
	resetSchedulerForTest()
	p := newTestProcessor(0)
	ev := NewEvent()

	th := NewThread(0x4000, Context{})
	th.Processor = p
	Wait(p, th, ev, 1000000) // timeout far in the future; signal must wake it first

	ev.Signal()

	if th.State != Queued {
		t.Fatalf("expected thread woken by Signal to be Queued, got %v", th.State)
	}
	if p.readyCount != 1 {
		t.Fatalf("expected woken thread on ready queue, readyCount=%d", p.readyCount)
	}

	// The timed-wait entry is still in the AVL tree; QueueProcess must not
	// wake it a second time once the timeout eventually elapses.
	for i := 0; i < 1000000; i++ {
		AdvanceTick()
	}
	before := p.readyCount
	QueueProcess(p, func(*Thread) {})
	if p.readyCount != before {
		t.Fatalf("expected no double-wake, readyCount changed from %d to %d", before, p.readyCount)
	}
}

func TestQueueProcessParksIdleWhenReadyEmpty(t *testing.T) {
	resetSchedulerForTest()
	p := newTestProcessor(0)
	current := NewThread(0x5000, Context{})
	current.State = Running
	current.ExpirationTicks = 0
	p.CurrentThread = current

	QueueProcess(p, func(*Thread) {})

	if IdleProcessors()&1 == 0 {
		t.Fatal("expected processor 0 to be marked idle")
	}
	if current.ExpirationTicks != current.Quantum {
		t.Fatalf("expected quantum reset, got %d", current.ExpirationTicks)
	}
}

func TestQueueProcessContextSwitchesOnQuantumExpiry(t *testing.T) {
	resetSchedulerForTest()
	p := newTestProcessor(0)
	current := NewThread(0x6000, Context{})
	current.State = Running
	current.ExpirationTicks = 0
	p.CurrentThread = current

	next := NewThread(0x7000, Context{})
	p.pushReady(next)

	var resumed *Context
	SetRestoreContextHook(func(c *Context) { resumed = c })

	QueueProcess(p, func(*Thread) {})

	if p.CurrentThread != next {
		t.Fatalf("expected context switch to next, got current=%v", p.CurrentThread)
	}
	if resumed != &next.Ctx {
		t.Fatal("expected restoreContextFn to be invoked with the target's context")
	}
	if current.State != Queued {
		t.Fatalf("expected outgoing thread requeued, state=%v", current.State)
	}
}

func TestQueueProcessDrainsTerminationQueue(t *testing.T) {
	resetSchedulerForTest()
	p := newTestProcessor(0)
	dead := &Thread{ID: 0x8000, State: Terminated}
	p.pushTermination(dead)

	var drained []*Thread
	QueueProcess(p, func(t *Thread) { drained = append(drained, t) })

	if len(drained) != 1 || drained[0] != dead {
		t.Fatalf("expected terminated thread drained, got %v", drained)
	}
}
