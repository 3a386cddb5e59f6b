package aml

import "github.com/ardent-os/ardent/kernel"

// dispatchFlow handles If/Else/While/Return/Break/Continue (spec.md §4.J,
// "control flow"). While records its predicate's start offset so each
// iteration re-evaluates it, matching the "predicate_restart" field spec.md
// §3 assigns to a While scope frame.
func (it *Interpreter) dispatchFlow(sc *execScope, r *reader, op AMLOpcode) (c ctrl, v *Value, ok bool, err *kernel.Error) {
	switch op {
	case opIf:
		pkgEnd, e := readPkgLength(r)
		if e != nil {
			return ctrl{}, nil, true, e
		}
		predVal, e := it.evalTermArg(sc, r)
		if e != nil {
			return ctrl{}, nil, true, e
		}
		taken, _ := asInteger(predVal)
		predVal.dereference()

		var bodyErr *kernel.Error
		var result ctrl
		if taken != 0 {
			result, bodyErr = it.runTermList(sc, r, pkgEnd)
		}
		r.SetOffset(pkgEnd)
		if bodyErr != nil {
			return ctrl{}, nil, true, bodyErr
		}

		// An Else clause, if present, immediately follows If's body.
		if peeked, e := r.PeekByte(); e == nil && AMLOpcode(peeked) == opElse {
			r.ReadByte()
			elsePkgEnd, e := readPkgLength(r)
			if e != nil {
				return ctrl{}, nil, true, e
			}
			if taken == 0 {
				result, bodyErr = it.runTermList(sc, r, elsePkgEnd)
			}
			r.SetOffset(elsePkgEnd)
			if bodyErr != nil {
				return ctrl{}, nil, true, bodyErr
			}
		}
		return result, nil, true, nil

	case opElse:
		// A bare Else with no preceding If taken is malformed AML; treat its
		// body as a no-op scope so parsing can continue.
		pkgEnd, e := readPkgLength(r)
		if e != nil {
			return ctrl{}, nil, true, e
		}
		r.SetOffset(pkgEnd)
		return ctrl{}, nil, true, nil

	case opWhile:
		pkgEnd, e := readPkgLength(r)
		if e != nil {
			return ctrl{}, nil, true, e
		}
		predStart := r.Offset()
		for {
			r.SetOffset(predStart)
			predVal, e := it.evalTermArg(sc, r)
			if e != nil {
				return ctrl{}, nil, true, e
			}
			cont, _ := asInteger(predVal)
			predVal.dereference()
			if cont == 0 {
				break
			}
			bodyCtrl, e := it.runTermList(sc, r, pkgEnd)
			if e != nil {
				return ctrl{}, nil, true, e
			}
			switch bodyCtrl.kind {
			case ctrlReturn:
				r.SetOffset(pkgEnd)
				return bodyCtrl, nil, true, nil
			case ctrlBreak:
				r.SetOffset(pkgEnd)
				return ctrl{}, nil, true, nil
			case ctrlContinue:
				// fall through to re-evaluate the predicate
			}
		}
		r.SetOffset(pkgEnd)
		return ctrl{}, nil, true, nil

	case opReturn:
		val, e := it.evalTermArg(sc, r)
		if e != nil {
			return ctrl{}, nil, true, e
		}
		return ctrl{kind: ctrlReturn, val: val}, nil, true, nil

	case opBreak:
		return ctrl{kind: ctrlBreak}, nil, true, nil

	case opContinue:
		return ctrl{kind: ctrlContinue}, nil, true, nil
	}

	return ctrl{}, nil, false, nil
}
