package aml

import "github.com/ardent-os/ardent/kernel"

// dispatchNamespace handles the namespace-modifying opcodes of spec.md
// §4.J ("Supported categories"): Alias, Name, Scope, Device, Method, Mutex,
// Event, OpRegion, Processor, PowerRes, ThermalZone, and the Buffer/Package
// data-object constructors (also namespace-adjacent: they read a PkgLength
// body). ok is false when op isn't one of these, letting the caller try the
// next dispatch table.
func (it *Interpreter) dispatchNamespace(sc *execScope, r *reader, op AMLOpcode) (v *Value, ok bool, err *kernel.Error) {
	switch op {
	case opAlias:
		args, e := it.readFixedArgs(sc, r, opTable[op].args)
		if e != nil {
			return nil, true, e
		}
		target := resolveRelative(it.Root, sc.ns, args[0].Str)
		name := lastSegment(args[1].Str)
		if target == nil {
			return nil, true, errNameNotFound
		}
		sc.ns.Insert(name, target.value.reference())
		return nil, true, nil

	case opName:
		pn, e := readName(r)
		if e != nil {
			return nil, true, e
		}
		val, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		sc.ns.Insert(pn.String(), val)
		return nil, true, nil

	case opScope, opDevice, opProcessor, opPowerRes, opThermalZone:
		return it.evalContainer(sc, r, op)

	case opMethod:
		pkgEnd, e := readPkgLength(r)
		if e != nil {
			return nil, true, e
		}
		pn, e := readName(r)
		if e != nil {
			return nil, true, e
		}
		flags, e := r.ReadByte()
		if e != nil {
			return nil, true, e
		}
		body, e := r.ReadBytes(pkgEnd - r.Offset())
		if e != nil {
			return nil, true, e
		}
		mv := newValue(KindMethod)
		mv.Method = &MethodBody{ArgCount: int(flags & 0x7), Serialized: flags&0x8 != 0, SyncLevel: int(flags >> 4), Code: body}
		sc.ns.Insert(pn.String(), mv)
		return nil, true, nil

	case opMutex:
		pn, e := readName(r)
		if e != nil {
			return nil, true, e
		}
		if _, e := r.ReadByte(); e != nil { // SyncLevel flags
			return nil, true, e
		}
		sc.ns.Insert(pn.String(), newValue(KindMutex))
		return nil, true, nil

	case opEvent:
		pn, e := readName(r)
		if e != nil {
			return nil, true, e
		}
		sc.ns.Insert(pn.String(), newValue(KindScope))
		return nil, true, nil

	case opOpRegion:
		pn, e := readName(r)
		if e != nil {
			return nil, true, e
		}
		spaceByte, e := r.ReadByte()
		if e != nil {
			return nil, true, e
		}
		offVal, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		lenVal, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		off, _ := asInteger(offVal)
		ln, _ := asInteger(lenVal)
		rv := newValue(KindRegion)
		rv.RegionSpace = RegionSpace(spaceByte)
		rv.RegionOffset = off
		rv.RegionLength = ln
		sc.ns.Insert(pn.String(), rv)
		return nil, true, nil

	case opBuffer:
		pkgEnd, e := readPkgLength(r)
		if e != nil {
			return nil, true, e
		}
		sizeVal, e := it.evalTermArg(sc, r)
		if e != nil {
			return nil, true, e
		}
		size, _ := asInteger(sizeVal)
		raw, e := r.ReadBytes(pkgEnd - r.Offset())
		if e != nil {
			return nil, true, e
		}
		buf := make([]byte, size)
		copy(buf, raw)
		return BufferValue(buf), true, nil

	case opPackage, opVarPackage:
		pkgEnd, e := readPkgLength(r)
		if e != nil {
			return nil, true, e
		}
		var count uint64
		if op == opPackage {
			b, e := r.ReadByte()
			if e != nil {
				return nil, true, e
			}
			count = uint64(b)
		} else {
			cv, e := it.evalTermArg(sc, r)
			if e != nil {
				return nil, true, e
			}
			count, _ = asInteger(cv)
		}
		elems := make([]*Value, 0, count)
		for r.Offset() < pkgEnd {
			ev, e := it.evalTermArg(sc, r)
			if e != nil {
				return nil, true, e
			}
			elems = append(elems, ev)
		}
		for uint64(len(elems)) < count {
			elems = append(elems, IntegerValue(0))
		}
		return PackageValue(elems), true, nil
	}

	return nil, false, nil
}

// evalContainer handles the opcodes whose body is a nested TermList
// executed against a freshly named child scope: Scope (reuses an existing
// name), Device/Processor/PowerRes/ThermalZone (define one).
func (it *Interpreter) evalContainer(sc *execScope, r *reader, op AMLOpcode) (*Value, bool, *kernel.Error) {
	spec := opTable[op]
	pkgEnd, e := readPkgLength(r)
	if e != nil {
		return nil, true, e
	}
	pn, e := readName(r)
	if e != nil {
		return nil, true, e
	}

	// Consume any fixed args beyond the name (Processor/PowerRes carry
	// extra fields ahead of the object list).
	for _, k := range spec.args[1 : len(spec.args)-1] {
		if _, e := it.readFixedArgs(sc, r, []argKind{k}); e != nil {
			return nil, true, e
		}
	}

	var child *Namespace
	var kind ValueKind
	switch op {
	case opScope:
		child = resolveRelative(it.Root, sc.ns, pn.String())
		if child == nil {
			return nil, true, errNameNotFound
		}
	case opDevice:
		kind = KindDevice
	case opProcessor:
		kind = KindProcessor
	case opPowerRes:
		kind = KindPower
	case opThermalZone:
		kind = KindThermal
	}
	if child == nil {
		child = sc.ns.Insert(pn.String(), newValue(kind))
	}

	childScope := newExecScope(child, sc)
	if _, e := it.runTermList(childScope, r, pkgEnd); e != nil {
		return nil, true, e
	}
	return nil, true, nil
}

func resolveRelative(root, start *Namespace, name string) *Namespace {
	rr := newReader([]byte(name))
	pn, err := readName(rr)
	if err != nil {
		return nil
	}
	return resolveName(root, start, pn)
}

func lastSegment(name string) string {
	if len(name) < 4 {
		return name
	}
	return name[len(name)-4:]
}
