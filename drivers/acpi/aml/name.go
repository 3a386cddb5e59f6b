package aml

import "github.com/ardent-os/ardent/kernel"

const nameSegLen = 4

var errInvalidName = &kernel.Error{Module: "acpi_aml", Message: "malformed AML name"}

const (
	prefixDualName = 0x2e
	prefixMultiName = 0x2f
	prefixRoot      = '\\'
	prefixParent    = '^'
)

// parsedName is a name as it literally appeared in the AML stream: a root
// or parent-escape prefix, plus the dot-joined segment path.
type parsedName struct {
	rooted    bool
	parentUps int
	segments  []string
}

// readName parses a NameString per spec.md §4.J: an optional leading '\'
// (root) or run of '^' (parent escapes), then a name path encoded as a
// single segment, a two-segment (0x2e) prefix, an N-segment (0x2f) prefix,
// or nothing (the null name, which refers to the scope itself).
func readName(r *reader) (parsedName, *kernel.Error) {
	var pn parsedName

	b, err := r.PeekByte()
	if err != nil {
		return pn, err
	}
	if b == prefixRoot {
		pn.rooted = true
		r.ReadByte()
	} else {
		for {
			b, err := r.PeekByte()
			if err != nil {
				return pn, err
			}
			if b != prefixParent {
				break
			}
			r.ReadByte()
			pn.parentUps++
		}
	}

	b, err = r.PeekByte()
	if err != nil {
		return pn, err
	}

	switch b {
	case 0x00:
		r.ReadByte()
		return pn, nil
	case prefixDualName:
		r.ReadByte()
		for i := 0; i < 2; i++ {
			seg, err := readNameSeg(r)
			if err != nil {
				return pn, err
			}
			pn.segments = append(pn.segments, seg)
		}
	case prefixMultiName:
		r.ReadByte()
		count, err := r.ReadByte()
		if err != nil {
			return pn, err
		}
		for i := byte(0); i < count; i++ {
			seg, err := readNameSeg(r)
			if err != nil {
				return pn, err
			}
			pn.segments = append(pn.segments, seg)
		}
	default:
		seg, err := readNameSeg(r)
		if err != nil {
			return pn, err
		}
		pn.segments = append(pn.segments, seg)
	}

	return pn, nil
}

func readNameSeg(r *reader) (string, *kernel.Error) {
	raw, err := r.ReadBytes(nameSegLen)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// String renders a parsedName the way resolveName expects to consume it
// back: useful for diagnostics and namespace keys.
func (pn parsedName) String() string {
	s := ""
	if pn.rooted {
		s += string(prefixRoot)
	}
	for i := 0; i < pn.parentUps; i++ {
		s += string(prefixParent)
	}
	for i, seg := range pn.segments {
		if i > 0 {
			s += "."
		}
		s += seg
	}
	return s
}

// resolveName walks from startScope (rooted names restart at root) applying
// parent-escapes, then resolves remaining segments by searching upward from
// the starting scope for unrooted names (spec.md §4.J).
func resolveName(root, startScope *Namespace, pn parsedName) *Namespace {
	scope := startScope
	if pn.rooted {
		scope = root
	}
	for i := 0; i < pn.parentUps && scope.parent != nil; i++ {
		scope = scope.parent
	}

	if len(pn.segments) == 0 {
		return scope
	}

	if pn.rooted || pn.parentUps > 0 {
		return descend(scope, pn.segments)
	}

	// Unrooted name: search upward from scope, trying a full descent from
	// each ancestor in turn, root last.
	for s := scope; s != nil; s = s.parent {
		if found := descend(s, pn.segments); found != nil {
			return found
		}
	}
	return nil
}

func descend(scope *Namespace, segments []string) *Namespace {
	cur := scope
	for _, seg := range segments {
		next := cur.child(seg)
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
