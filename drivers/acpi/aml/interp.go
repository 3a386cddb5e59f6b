package aml

import "github.com/ardent-os/ardent/kernel"

var (
	errUnknownOpcode    = &kernel.Error{Module: "acpi_aml", Message: "unknown or unsupported opcode"}
	errBadControlFlow   = &kernel.Error{Module: "acpi_aml", Message: "break/continue outside a While body"}
	errNameNotFound     = &kernel.Error{Module: "acpi_aml", Message: "referenced name not found in namespace"}
	errAMLStackOverflow = &kernel.Error{Module: "acpi_aml", Message: "AML nesting exceeds recursion depth limit"}
)

// maxAMLRecursionDepth bounds the combined native-stack depth consumed by
// nested TermArg evaluation (evalTermArg), nested TermList scopes
// (runTermList, entered from If/While/Device/Scope/... bodies), and nested
// method calls (callMethod). AML tables are firmware-supplied data, not
// kernel-trusted code, so a pathologically deep or self-referential table
// must fail with errAMLStackOverflow instead of exhausting a kernel
// thread's fixed stack (see DESIGN.md, "AML recursion bound", for why this
// bound stands in for spec.md §3's literal re-entrant opcode-stack frames).
const maxAMLRecursionDepth = 48

// Interpreter evaluates AML method bodies and table-load TermLists against
// a namespace tree rooted at Root (spec.md §4.J). It is suspendable only in
// the sense spec.md §1 requires of ACPI support here: table load and direct
// method evaluation, never a full preemptible AML runtime.
type Interpreter struct {
	Root    *Namespace
	Regions map[RegionSpace]RegionHandler

	depth int
}

// pushDepth and popDepth guard every recursive entry point (evalTermArg,
// runTermList, callMethod) with a single shared counter, since all three
// grow the same native Go call stack.
func (it *Interpreter) pushDepth() *kernel.Error {
	it.depth++
	if it.depth > maxAMLRecursionDepth {
		it.depth--
		return errAMLStackOverflow
	}
	return nil
}

func (it *Interpreter) popDepth() {
	it.depth--
}

// NewInterpreter builds an interpreter over a fresh root namespace.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		Root:    newNamespace("", nil),
		Regions: make(map[RegionSpace]RegionHandler),
	}
}

// LoadTable evaluates the TermList of a DSDT/SSDT-style table's AML body
// against the root namespace, installing every Name/Device/Method/... it
// defines. Evaluation stops at the first failure; partial namespace state
// from before the failure is left in place (spec.md §7 kind 6: AML
// evaluation failures bubble up as 0/null, never a panic).
func (it *Interpreter) LoadTable(body []byte) *kernel.Error {
	r := newReader(body)
	sc := newExecScope(it.Root, nil)
	_, err := it.runTermList(sc, r, r.PkgEnd())
	return err
}

// EvalMethod invokes a previously loaded method by absolute or
// scope-relative name, passing the first 8 supplied arguments as
// Arg0-Arg7. The number of arguments is not checked against the method's
// stored ArgCount.
func (it *Interpreter) EvalMethod(startScope *Namespace, name string, args ...*Value) (*Value, *kernel.Error) {
	r := newReader([]byte(name))
	pn, err := readName(r)
	if err != nil {
		return nil, err
	}
	target := resolveName(it.Root, startScope, pn)
	if target == nil || target.value == nil || target.value.Kind != KindMethod {
		return nil, errNameNotFound
	}
	return it.callMethod(target, args)
}

func (it *Interpreter) callMethod(target *Namespace, args []*Value) (*Value, *kernel.Error) {
	if err := it.pushDepth(); err != nil {
		return nil, err
	}
	defer it.popDepth()

	m := target.value.Method
	sc := newExecScope(target.parent, nil)
	for i := 0; i < len(args) && i < 8; i++ {
		sc.args[i] = args[i].reference()
	}
	body := newReader(m.Code)
	c, err := it.runTermList(sc, body, body.PkgEnd())
	if err != nil {
		return nil, err
	}
	if c.kind == ctrlReturn {
		return c.val, nil
	}
	return nil, nil
}

// runTermList executes statements from r until it reaches end, returning
// early with a non-ctrlNone signal on Return/Break/Continue.
func (it *Interpreter) runTermList(sc *execScope, r *reader, end uint32) (ctrl, *kernel.Error) {
	if err := it.pushDepth(); err != nil {
		return ctrl{}, err
	}
	defer it.popDepth()

	for r.Offset() < end {
		c, v, err := it.evalStatement(sc, r)
		if err != nil {
			return ctrl{}, err
		}
		v.dereference() // statement-context results are discarded
		if c.kind != ctrlNone {
			return c, nil
		}
	}
	return ctrl{}, nil
}

// isNameLead reports whether b begins a NameString rather than an opcode.
// ACPI deliberately keeps these byte ranges disjoint from opcode values:
// '\\' (root), '^' (parent escape), the dual/multi-name prefixes, and the
// uppercase-letter/underscore name-segment characters.
func isNameLead(b byte) bool {
	switch {
	case b == '\\' || b == '^':
		return true
	case b == 0x2e || b == 0x2f:
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b == '_':
		return true
	}
	return false
}

// evalStatement reads one opcode in statement context: the produced value
// (if any) is typically discarded, but namespace-defining opcodes have the
// side effect of installing a child under sc.ns. A bare name in statement
// context is a method invocation per spec.md §4.J.
func (it *Interpreter) evalStatement(sc *execScope, r *reader) (ctrl, *Value, *kernel.Error) {
	if b, err := r.PeekByte(); err == nil && isNameLead(b) {
		v, err := it.evalNameTerm(sc, r)
		return ctrl{}, v, err
	}
	op, err := it.readOpcode(r)
	if err != nil {
		return ctrl{}, nil, err
	}
	return it.dispatch(sc, r, op)
}

// evalTermArg evaluates one TermArg: a data object constant, a Local/Arg
// reference, a named-object reference or method call, or a nested opcode
// whose produced value is returned.
func (it *Interpreter) evalTermArg(sc *execScope, r *reader) (*Value, *kernel.Error) {
	if err := it.pushDepth(); err != nil {
		return nil, err
	}
	defer it.popDepth()

	if b, err := r.PeekByte(); err == nil && isNameLead(b) {
		return it.evalNameTerm(sc, r)
	}
	op, err := it.readOpcode(r)
	if err != nil {
		return nil, err
	}
	if isLocalArg(op) {
		return sc.locals[op-opLocal0].reference(), nil
	}
	if isMethodArg(op) {
		return sc.args[op-opArg0].reference(), nil
	}
	c, v, err := it.dispatch(sc, r, op)
	if err != nil {
		return nil, err
	}
	if c.kind != ctrlNone {
		// A control-flow opcode in argument position is malformed AML;
		// surface as an evaluation failure rather than silently losing the
		// unwind request.
		return nil, errBadControlFlow
	}
	return v, nil
}

// evalNameTerm resolves a NameString appearing in term position: a method
// invocation (consuming its declared ArgCount worth of following TermArgs)
// or a plain reference to the named object's current value.
func (it *Interpreter) evalNameTerm(sc *execScope, r *reader) (*Value, *kernel.Error) {
	pn, err := readName(r)
	if err != nil {
		return nil, err
	}
	target := resolveName(it.Root, sc.ns, pn)
	if target == nil {
		return nil, errNameNotFound
	}
	if target.value != nil && target.value.Kind == KindMethod {
		argc := target.value.Method.ArgCount
		args := make([]*Value, argc)
		for i := 0; i < argc; i++ {
			v, err := it.evalTermArg(sc, r)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return it.callMethod(target, args)
	}
	if target.value != nil && target.value.Kind == KindFieldUnit {
		n, err := it.readFieldUnit(target.value.Field)
		if err != nil {
			return nil, err
		}
		return IntegerValue(n), nil
	}
	return target.value.reference(), nil
}

func (it *Interpreter) readOpcode(r *reader) (AMLOpcode, *kernel.Error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if AMLOpcode(b) == opExtPrefix {
		b2, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return extOpBase + AMLOpcode(b2), nil
	}
	return AMLOpcode(b), nil
}

// dispatch evaluates a single already-read opcode, whether called from
// statement or TermArg context; the ctrl return is ctrlNone except for
// Return/Break/Continue.
func (it *Interpreter) dispatch(sc *execScope, r *reader, op AMLOpcode) (ctrl, *Value, *kernel.Error) {
	switch op {
	case opZero:
		return ctrl{}, IntegerValue(0), nil
	case opOne:
		return ctrl{}, IntegerValue(1), nil
	case opOnes:
		return ctrl{}, IntegerValue(^uint64(0)), nil
	case opByte:
		b, err := r.ReadByte()
		return ctrl{}, IntegerValue(uint64(b)), err
	case opWord:
		w, err := r.ReadWord()
		return ctrl{}, IntegerValue(uint64(w)), err
	case opDword:
		d, err := r.ReadDword()
		return ctrl{}, IntegerValue(uint64(d)), err
	case opQword:
		q, err := r.ReadQword()
		return ctrl{}, IntegerValue(q), err
	case opString:
		s, err := r.ReadASCIIZ()
		return ctrl{}, StringValue(s), err
	case opDebug:
		return ctrl{}, newValue(KindDebug), nil
	}

	if v, ok, err := it.dispatchNamespace(sc, r, op); ok {
		return ctrl{}, v, err
	}
	if c, v, ok, err := it.dispatchFlow(sc, r, op); ok {
		return c, v, err
	}
	if v, ok, err := it.dispatchExpr(sc, r, op); ok {
		return ctrl{}, v, err
	}
	if v, ok, err := it.dispatchField(sc, r, op); ok {
		return ctrl{}, v, err
	}

	switch op {
	case opNoop, opBreakPoint:
		return ctrl{}, nil, nil
	}

	return ctrl{}, nil, errUnknownOpcode
}

// readFixedArgs reads spec's fixed argument list for an opcode that has already
// consumed its PkgLength (if any); argObjList is handled by the caller,
// since its meaning (body bytes vs nested term list) differs per opcode.
func (it *Interpreter) readFixedArgs(sc *execScope, r *reader, kinds []argKind) ([]*Value, *kernel.Error) {
	vals := make([]*Value, 0, len(kinds))
	for _, k := range kinds {
		switch k {
		case argByte:
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			vals = append(vals, IntegerValue(uint64(b)))
		case argWord:
			w, err := r.ReadWord()
			if err != nil {
				return nil, err
			}
			vals = append(vals, IntegerValue(uint64(w)))
		case argDword:
			d, err := r.ReadDword()
			if err != nil {
				return nil, err
			}
			vals = append(vals, IntegerValue(uint64(d)))
		case argQword:
			q, err := r.ReadQword()
			if err != nil {
				return nil, err
			}
			vals = append(vals, IntegerValue(q))
		case argString:
			s, err := r.ReadASCIIZ()
			if err != nil {
				return nil, err
			}
			vals = append(vals, StringValue(s))
		case argName:
			pn, err := readName(r)
			if err != nil {
				return nil, err
			}
			vals = append(vals, StringValue(pn.String()))
		case argTermArg:
			v, err := it.evalTermArg(sc, r)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		default:
			return nil, errUnknownOpcode
		}
	}
	return vals, nil
}
