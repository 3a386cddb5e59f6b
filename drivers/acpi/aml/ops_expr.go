package aml

import "github.com/ardent-os/ardent/kernel"

// dispatchExpr handles arithmetic, logic, type conversion, and
// store/reference opcodes (spec.md §4.J, "Supported categories").
func (it *Interpreter) dispatchExpr(sc *execScope, r *reader, op AMLOpcode) (*Value, bool, *kernel.Error) {
	switch op {
	case opAdd, opSubtract, opMultiply, opShiftLeft, opShiftRight, opAnd,
		opNand, opOr, opNor, opXor, opMod, opConcat:
		return it.evalBinaryArith(sc, r, op)

	case opDivide:
		return it.evalDivide(sc, r)

	case opIncrement, opDecrement:
		dest, e := it.readTarget(sc, r)
		if e != nil {
			return nil, true, e
		}
		var n uint64
		if dest.field != nil {
			if n, e = it.readFieldUnit(dest.field); e != nil {
				return nil, true, e
			}
		} else {
			n, _ = asInteger(dest.val)
		}
		if op == opIncrement {
			n++
		} else {
			n--
		}
		result := IntegerValue(n)
		it.storeTarget(dest, result)
		return result, true, nil

	case opNot:
		args, e := it.readFixedArgs(sc, r, opTable[op].args)
		if e != nil {
			return nil, true, e
		}
		n, _ := asInteger(args[0])
		result := IntegerValue(^n)
		it.storeInto(args[1], result)
		return result, true, nil

	case opLand, opLor, opLEqual, opLGreater, opLLess:
		return it.evalLogic(sc, r, op)

	case opLnot:
		v, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		n, _ := asInteger(v)
		return boolValue(n == 0), true, nil

	case opToBuffer:
		args, e := it.readFixedArgs(sc, r, opTable[op].args)
		if e != nil {
			return nil, true, e
		}
		b, _ := asBuffer(args[0])
		result := BufferValue(append([]byte(nil), b...))
		it.storeInto(args[1], result)
		return result, true, nil

	case opToHexString:
		args, e := it.readFixedArgs(sc, r, opTable[op].args)
		if e != nil {
			return nil, true, e
		}
		result := StringValue(hexString(args[0]))
		it.storeInto(args[1], result)
		return result, true, nil

	case opStore:
		src, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		dest, e := it.readTarget(sc, r)
		if e != nil {
			return nil, true, e
		}
		it.storeTarget(dest, src)
		return src, true, nil

	case opCopyObject:
		src, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		dest, e := it.readTarget(sc, r)
		if e != nil {
			return nil, true, e
		}
		cp := copyValue(src)
		it.storeTarget(dest, cp)
		return cp, true, nil

	case opRefOf:
		pn, target, e := it.readRefTarget(sc, r)
		if e != nil {
			return nil, true, e
		}
		_ = pn
		rv := newValue(KindReference)
		rv.Ref = target
		return rv, true, nil

	case opCondRefOf:
		pn, target, e := it.readRefTarget(sc, r)
		if e != nil {
			return nil, true, e
		}
		_ = pn
		destArg, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		if target == nil {
			return boolValue(false), true, nil
		}
		rv := newValue(KindReference)
		rv.Ref = target
		it.storeInto(destArg, rv)
		return boolValue(true), true, nil

	case opDerefOf:
		v, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		if v.Kind == KindReference && v.Ref != nil {
			return v.Ref.value.reference(), true, nil
		}
		if v.Kind == KindBufferField && v.IndexOf != nil {
			return v.IndexOf.reference(), true, nil
		}
		return nil, true, errTypeMismatch

	case opSizeOf:
		v, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		switch v.Kind {
		case KindBuffer:
			return IntegerValue(uint64(len(v.Buf))), true, nil
		case KindString:
			return IntegerValue(uint64(len(v.Str))), true, nil
		case KindPackage:
			return IntegerValue(uint64(len(v.Pkg))), true, nil
		default:
			return IntegerValue(0), true, nil
		}

	case opIndex:
		args, e := it.readFixedArgs(sc, r, opTable[op].args)
		if e != nil {
			return nil, true, e
		}
		idx, _ := asInteger(args[1])
		bf := newValue(KindBufferField)
		bf.IndexOf = args[0].reference()
		bf.Index = int(idx)
		it.storeInto(args[2], bf)
		return bf, true, nil
	}

	return nil, false, nil
}

func (it *Interpreter) readRefTarget(sc *execScope, r *reader) (string, *Namespace, *kernel.Error) {
	pn, e := readName(r)
	if e != nil {
		return "", nil, e
	}
	return pn.String(), resolveName(it.Root, sc.ns, pn), nil
}

// storeInto assigns src into dest, which may be a Local/Arg slot value
// (dest carries no addressable identity in this simplified model, so the
// caller passes the already-evaluated slot Value and we overwrite its
// fields in place) or a named reference. It backs the optional Target
// operand of the arithmetic and conversion opcodes; Store and CopyObject
// write through readTarget/storeTarget instead.
func (it *Interpreter) storeInto(dest, src *Value) {
	if dest == nil || src == nil {
		return
	}
	*dest = *src
	dest.refs = 1
}

func boolValue(b bool) *Value {
	if b {
		return IntegerValue(1)
	}
	return IntegerValue(0)
}

func hexString(v *Value) string {
	b, _ := asBuffer(v)
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*5)
	for i, c := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '0', 'x', digits[c>>4], digits[c&0xf])
	}
	return string(out)
}

func (it *Interpreter) evalBinaryArith(sc *execScope, r *reader, op AMLOpcode) (*Value, bool, *kernel.Error) {
	args, e := it.readFixedArgs(sc, r, opTable[op].args)
	if e != nil {
		return nil, true, e
	}
	a, _ := asInteger(args[0])
	b, _ := asInteger(args[1])
	var n uint64
	switch op {
	case opAdd:
		n = a + b
	case opSubtract:
		n = a - b
	case opMultiply:
		n = a * b
	case opShiftLeft:
		n = a << b
	case opShiftRight:
		n = a >> b
	case opAnd:
		n = a & b
	case opNand:
		n = ^(a & b)
	case opOr:
		n = a | b
	case opNor:
		n = ^(a | b)
	case opXor:
		n = a ^ b
	case opMod:
		if b == 0 {
			return nil, true, errTypeMismatch
		}
		n = a % b
	case opConcat:
		return it.evalConcat(args)
	}
	result := IntegerValue(n)
	it.storeInto(args[2], result)
	return result, true, nil
}

func (it *Interpreter) evalConcat(args []*Value) (*Value, bool, *kernel.Error) {
	a, _ := asBuffer(args[0])
	b, _ := asBuffer(args[1])
	out := make([]byte, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	result := BufferValue(out)
	it.storeInto(args[2], result)
	return result, true, nil
}

func (it *Interpreter) evalDivide(sc *execScope, r *reader) (*Value, bool, *kernel.Error) {
	args, e := it.readFixedArgs(sc, r, opTable[opDivide].args)
	if e != nil {
		return nil, true, e
	}
	a, _ := asInteger(args[0])
	b, _ := asInteger(args[1])
	if b == 0 {
		return nil, true, errTypeMismatch
	}
	quot := IntegerValue(a / b)
	rem := IntegerValue(a % b)
	it.storeInto(args[2], rem)
	it.storeInto(args[3], quot)
	return quot, true, nil
}

func (it *Interpreter) evalLogic(sc *execScope, r *reader, op AMLOpcode) (*Value, bool, *kernel.Error) {
	args, e := it.readFixedArgs(sc, r, opTable[op].args)
	if e != nil {
		return nil, true, e
	}
	a, _ := asInteger(args[0])
	b, _ := asInteger(args[1])
	var res bool
	switch op {
	case opLand:
		res = a != 0 && b != 0
	case opLor:
		res = a != 0 || b != 0
	case opLEqual:
		res = a == b
	case opLGreater:
		res = a > b
	case opLLess:
		res = a < b
	}
	return boolValue(res), true, nil
}
