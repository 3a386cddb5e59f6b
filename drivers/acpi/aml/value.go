package aml

import "github.com/ardent-os/ardent/kernel"

// ValueKind identifies the tagged union carried by Value (spec.md §3, "AML
// interpreter state" / Value).
type ValueKind uint8

const (
	KindUninitialized ValueKind = iota
	KindInteger
	KindString
	KindBuffer
	KindPackage
	KindFieldUnit
	KindBufferField
	KindMutex
	KindRegion
	KindMethod
	KindDevice
	KindPower
	KindProcessor
	KindThermal
	KindScope
	KindReference
	KindDebug
)

// RegionSpace identifies the address space an OperationRegion reads from.
type RegionSpace uint8

const (
	RegionSystemMemory RegionSpace = iota
	RegionSystemIO
	RegionPCIConfig
	RegionEmbeddedControl
	RegionSMBus
	RegionCMOS
	RegionPCIBarTarget
)

// MethodBody describes an invocable method: its stored AML body plus the
// argument count taken from the flag byte (spec.md §4.J, "Method
// invocation").
type MethodBody struct {
	ArgCount  int
	Serialized bool
	SyncLevel  int
	Code       []byte
}

// FieldUnit describes a named bit/byte span over a backing region or
// buffer, as produced by Field/IndexField/BankField/CreateXxxField.
type FieldUnit struct {
	Region    *Value // backing OperationRegion, or nil for a buffer field
	Buffer    *Value // backing Buffer, when Region is nil
	BitOffset uint64
	BitWidth  uint64
	AccessW   uint8 // declared access width in bits (8/16/32/64), 0 = any
}

// Value is a single AML object. Composite kinds (Package, Buffer, String,
// Method body, Field) carry their payload via the pointer fields below and
// are reference counted independently of the top-level object-manager-style
// refcount described in spec.md §4.J ("Value semantics"): refs tracks how
// many named bindings and stack slots currently point at this Value.
type Value struct {
	Kind ValueKind

	Integer uint64
	Str     string
	Buf     []byte
	Pkg     []*Value

	Field  *FieldUnit
	Method *MethodBody

	RegionSpace  RegionSpace
	RegionOffset uint64
	RegionLength uint64

	// Ref is the namespace node a Reference value points at (RefOf) or the
	// Value an Index points into (paired with IndexOf below).
	Ref     *Namespace
	IndexOf *Value
	Index   int

	refs int32
}

func newValue(kind ValueKind) *Value {
	return &Value{Kind: kind, refs: 1}
}

func IntegerValue(i uint64) *Value { return &Value{Kind: KindInteger, Integer: i, refs: 1} }
func StringValue(s string) *Value  { return &Value{Kind: KindString, Str: s, refs: 1} }
func BufferValue(b []byte) *Value  { return &Value{Kind: KindBuffer, Buf: b, refs: 1} }
func PackageValue(elems []*Value) *Value {
	return &Value{Kind: KindPackage, Pkg: elems, refs: 1}
}

// reference bumps the value's internal refcount (spec.md §4.J, "Value
// semantics").
func (v *Value) reference() *Value {
	if v == nil {
		return nil
	}
	v.refs++
	return v
}

// dereference drops the value's internal refcount, releasing composite
// payloads (by dereferencing their elements) once it reaches zero.
func (v *Value) dereference() {
	if v == nil {
		return
	}
	v.refs--
	if v.refs > 0 {
		return
	}
	switch v.Kind {
	case KindPackage:
		for _, e := range v.Pkg {
			e.dereference()
		}
	case KindFieldUnit:
		if v.Field != nil {
			v.Field.Region.dereference()
			v.Field.Buffer.dereference()
		}
	case KindReference:
		// Ref is a namespace link, not an owned Value; nothing to release.
	}
}

// copyValue performs the deep copy documented in spec.md §4.J ("Value
// semantics"): containers are cloned element-wise, fields/buffer-fields and
// indexes take a fresh reference to their backing object rather than
// copying it, everything else copies by value.
func copyValue(v *Value) *Value {
	if v == nil {
		return nil
	}
	switch v.Kind {
	case KindPackage:
		elems := make([]*Value, len(v.Pkg))
		for i, e := range v.Pkg {
			elems[i] = copyValue(e)
		}
		return PackageValue(elems)
	case KindBuffer:
		b := make([]byte, len(v.Buf))
		copy(b, v.Buf)
		return BufferValue(b)
	case KindFieldUnit:
		nv := newValue(KindFieldUnit)
		f := *v.Field
		f.Region = v.Field.Region.reference()
		f.Buffer = v.Field.Buffer.reference()
		nv.Field = &f
		return nv
	case KindBufferField:
		nv := newValue(KindBufferField)
		nv.IndexOf = v.IndexOf.reference()
		nv.Index = v.Index
		return nv
	default:
		cp := *v
		cp.refs = 1
		return &cp
	}
}

// asInteger coerces v to an integer per the coercion rules implied by
// spec.md §4.J's "fixed arg" type declarations: integers pass through,
// strings/buffers are parsed/packed little-endian, everything else is a
// type-mismatch failure (returns the 0/ok=false pair the caller turns into
// an AML evaluation failure per §4.J "Failure").
func asInteger(v *Value) (uint64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.Kind {
	case KindInteger:
		return v.Integer, true
	case KindBuffer:
		var n uint64
		for i := len(v.Buf) - 1; i >= 0; i-- {
			n = n<<8 | uint64(v.Buf[i])
		}
		return n, true
	case KindString:
		var n uint64
		for _, c := range []byte(v.Str) {
			d := hexDigit(c)
			if d < 0 {
				break
			}
			n = n<<4 | uint64(d)
		}
		return n, true
	default:
		return 0, false
	}
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

func asBuffer(v *Value) ([]byte, bool) {
	if v == nil {
		return nil, false
	}
	switch v.Kind {
	case KindBuffer:
		return v.Buf, true
	case KindInteger:
		b := make([]byte, 8)
		n := v.Integer
		for i := range b {
			b[i] = byte(n)
			n >>= 8
		}
		return b, true
	case KindString:
		return []byte(v.Str), true
	default:
		return nil, false
	}
}

var errTypeMismatch = &kernel.Error{Module: "acpi_aml", Message: "value type mismatch"}
