package aml

import "github.com/ardent-os/ardent/kernel"

// target is a SuperName destination: a Local/Arg slot, a plain named
// object, or a FieldUnit that must be written through to its backing
// buffer/region rather than overwritten in place. Store and CopyObject
// resolve their destination through readTarget instead of the general
// evalTermArg path so a field write reaches hardware instead of just
// rebinding the FieldUnit descriptor.
type target struct {
	val   *Value
	field *FieldUnit
}

func (it *Interpreter) readTarget(sc *execScope, r *reader) (target, *kernel.Error) {
	b, err := r.PeekByte()
	if err != nil {
		return target{}, err
	}
	if b == 0x00 {
		r.ReadByte()
		return target{}, nil // NullName: destination discarded
	}
	if isNameLead(b) {
		pn, err := readName(r)
		if err != nil {
			return target{}, err
		}
		ns := resolveName(it.Root, sc.ns, pn)
		if ns == nil {
			return target{}, errNameNotFound
		}
		if ns.value != nil && ns.value.Kind == KindFieldUnit {
			return target{field: ns.value.Field}, nil
		}
		return target{val: ns.value}, nil
	}
	op, err := it.readOpcode(r)
	if err != nil {
		return target{}, err
	}
	if isLocalArg(op) {
		return target{val: sc.locals[op-opLocal0]}, nil
	}
	if isMethodArg(op) {
		return target{val: sc.args[op-opArg0]}, nil
	}
	return target{}, errTypeMismatch
}

func (it *Interpreter) storeTarget(t target, src *Value) {
	if t.field != nil {
		it.writeFieldUnit(t.field, src)
		return
	}
	if t.val == nil || src == nil {
		return
	}
	*t.val = *src
	t.val.refs = 1
}

func (it *Interpreter) writeFieldUnit(f *FieldUnit, v *Value) {
	n, ok := asInteger(v)
	if !ok {
		return
	}
	if f.Buffer != nil {
		writeBits(f.Buffer.Buf, f.BitOffset, f.BitWidth, n)
		return
	}
	if f.Region == nil {
		return
	}
	h := it.Regions[f.Region.RegionSpace]
	if h == nil {
		return
	}
	byteOff := f.Region.RegionOffset + f.BitOffset/8
	h.Write(f.Region.RegionSpace, byteOff, fieldAccessWidth(f.BitWidth), n)
}

func writeBits(buf []byte, bitOffset, bitWidth, value uint64) {
	for i := uint64(0); i < bitWidth; i++ {
		bit := bitOffset + i
		byteIdx := bit / 8
		if byteIdx >= uint64(len(buf)) {
			break
		}
		mask := byte(1 << (bit % 8))
		if value&(1<<i) != 0 {
			buf[byteIdx] |= mask
		} else {
			buf[byteIdx] &^= mask
		}
	}
}
