package irq

import (
	"github.com/ardent-os/ardent/kernel"
	"github.com/ardent-os/ardent/kernel/sync"
)

// Polarity is the electrical sense an interrupt line is asserted on.
type Polarity uint8

const (
	ActiveHigh Polarity = iota
	ActiveLow
)

// Trigger is how an interrupt line signals its assertion.
type Trigger uint8

const (
	EdgeTriggered Trigger = iota
	LevelTriggered
)

// Handler is an interrupt object's callback, invoked under its vector's
// handler-list spinlock at the interrupt's IRQL.
type Handler func(data uintptr, regs *Regs, frame *Frame)

// Controller abstracts the interrupt controller (I/O APIC) programming an
// interrupt object's enable/disable calls drive.
type Controller interface {
	Program(gsi uint8, vector uint8, polarity Polarity, trigger Trigger)
	Deprogram(gsi uint8)
	SignalEOI(vector uint8)
}

// Object is one allocated interrupt, created via Create and bound to a GSI
// and processor vector via Enable (spec.md §4.G).
type Object struct {
	Data     uintptr
	Handler  Handler
	GSI      uint8
	Vector   uint8
	CPU      int
	Polarity Polarity
	Trigger  Trigger

	enabled bool
	next    *Object
}

type vectorHandlers struct {
	lock sync.Spinlock
	head *Object
}

var handlerLists [MaxProcessors][256]vectorHandlers

var controller Controller

// SetController installs the interrupt-controller backend Enable/Disable
// program against. Until installed, Enable/Disable only maintain the
// handler lists without touching hardware (useful for hosted tests).
func SetController(c Controller) { controller = c }

func init() {
	for cpu := range handlerLists {
		for v := range handlerLists[cpu] {
			handlerLists[cpu][v].lock.Init(sync.Dispatch)
		}
	}
}

// Create allocates an interrupt object bound to the given handler and
// opaque data pointer. The object is not yet live; Enable programs it.
func Create(data uintptr, handler Handler) *Object {
	return &Object{Data: data, Handler: handler}
}

var errPolarityMismatch = &kernel.Error{Module: "irq", Message: "interrupt polarity/trigger mismatch with existing vector handlers"}

// Enable binds obj to cpuIdx's vector table: it allocates a vector in the
// device priority band, resolves busVector to a GSI, appends obj to the
// vector's handler list (requiring polarity/trigger agreement with any
// handlers already sharing the vector), then programs the controller
// (spec.md §4.G).
func Enable(obj *Object, cpuIdx int, busVector uint8, polarity Polarity, trigger Trigger) *kernel.Error {
	vector, ok := AllocateVector(cpuIdx)
	if !ok {
		return &kernel.Error{Module: "irq", Message: "no free vector in device priority band"}
	}
	gsi, ok := InitializeInterruptData(busVector)
	if !ok {
		return &kernel.Error{Module: "irq", Message: "no free GSI"}
	}

	list := &handlerLists[cpuIdx][vector]
	list.lock.Acquire()
	if list.head != nil && (list.head.Polarity != polarity || list.head.Trigger != trigger) {
		list.lock.Release()
		ReleaseGSI(gsi)
		return errPolarityMismatch
	}
	obj.next = list.head
	list.head = obj
	list.lock.Release()

	obj.GSI, obj.Vector, obj.CPU = gsi, vector, cpuIdx
	obj.Polarity, obj.Trigger = polarity, trigger
	obj.enabled = true
	vectorAcquire(cpuIdx, vector)

	if controller != nil {
		controller.Program(gsi, vector, polarity, trigger)
	}
	return nil
}

// Disable unlinks obj from its vector's handler list and deprograms the
// controller. It is a no-op on an object that was never enabled.
func Disable(obj *Object) {
	if !obj.enabled {
		return
	}
	list := &handlerLists[obj.CPU][obj.Vector]
	list.lock.Acquire()
	if list.head == obj {
		list.head = obj.next
	} else {
		for p := list.head; p != nil; p = p.next {
			if p.next == obj {
				p.next = obj.next
				break
			}
		}
	}
	list.lock.Release()

	if controller != nil {
		controller.Deprogram(obj.GSI)
	}
	ReleaseGSI(obj.GSI)
	vectorRelease(obj.CPU, obj.Vector)
	obj.enabled = false
	obj.next = nil
}

// Delete disables obj if still enabled; afterwards obj must not be reused.
func Delete(obj *Object) {
	Disable(obj)
}

// Dispatch runs every handler on cpuIdx's vector handler list under the
// vector's spinlock (already raised to the interrupt's IRQL by the trap
// trampoline), then signals end-of-interrupt (spec.md §4.G).
func Dispatch(cpuIdx int, vector uint8, regs *Regs, frame *Frame) {
	list := &handlerLists[cpuIdx][vector]
	list.lock.Acquire()
	for obj := list.head; obj != nil; obj = obj.next {
		obj.Handler(obj.Data, regs, frame)
	}
	list.lock.Release()

	if controller != nil {
		controller.SignalEOI(vector)
	}
}
