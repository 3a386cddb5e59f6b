// Package sched implements the per-CPU thread scheduler: ready queues,
// timed waits, quantum expiration, and the IRQL-structured preemption model
// of spec.md §4.H.
package sched

// State is a thread's scheduling state. Exactly one processor owns a
// thread in Running or Queued; a Waiting thread belongs to one processor's
// timed-wait tree and optionally one event's wait-list.
type State uint8

const (
	Running State = iota
	Queued
	Waiting
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Queued:
		return "QUEUED"
	case Waiting:
		return "WAITING"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Affinity restricts which processors may run a thread. A zero value permits
// no processor; Requeue bugchecks with BadThreadState on such a thread.
type Affinity uint64

// Affinity bit i corresponds to processor i; AnyProcessor has every bit set
// up to MaxProcessors.
const AnyProcessor Affinity = ^Affinity(0)

// Context is the machine state saved across a context switch: callee-saved
// general-purpose registers, the stack/instruction pointers, and the
// nonvolatile XMM bank (spec.md §4.H). The XMM save area is left as raw
// bytes; only the scheduler's swap code interprets its layout.
type Context struct {
	RSP, RIP                      uint64
	RBX, RBP, RSI, RDI             uint64
	R12, R13, R14, R15             uint64
	XMM                            [10 * 16]byte // XMM6-XMM15, 16 bytes each
}

// Thread is one schedulable unit of execution.
type Thread struct {
	ID    uintptr // identity key for the timed-wait AVL tie-break
	State State
	Ctx   Context

	Quantum         int
	ExpirationTicks int

	Affinity  Affinity
	Processor *Processor
	Idle      bool

	WaitObject *Event
	WaitTicks  uint64

	Alerts []func()

	next      *Thread // ready-queue / termination-queue link
	eventNext *Thread // event wait-list link
}

// DefaultQuantum is the tick count a thread runs before involuntary
// preemption resets it.
const DefaultQuantum = 10

// NewThread allocates a thread in the Queued state with a fresh quantum.
func NewThread(id uintptr, entry Context) *Thread {
	return &Thread{
		ID:              id,
		State:           Queued,
		Ctx:             entry,
		Quantum:         DefaultQuantum,
		ExpirationTicks: DefaultQuantum,
		Affinity:        AnyProcessor,
	}
}
