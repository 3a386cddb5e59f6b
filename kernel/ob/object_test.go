package ob

import (
	"testing"
	"unsafe"

	"github.com/ardent-os/ardent/kernel/memdesc"
	"github.com/ardent-os/ardent/kernel/pmm"
	"github.com/ardent-os/ardent/kernel/pool"
)

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	descriptors := memdesc.New(8)
	if err := descriptors.Upsert(memdesc.Free, 1, 200); err != nil {
		t.Fatal(err)
	}
	pmm.Init(descriptors)

	frames := map[uintptr]pmm.Frame{}
	mapPage := func(addr uintptr, f pmm.Frame) error { frames[addr] = f; return nil }
	unmapPage := func(addr uintptr) (pmm.Frame, error) {
		f := frames[addr]
		delete(frames, addr)
		return f, nil
	}
	return pool.New(0x1000_0000, 64*pmm.PageSize, mapPage, unmapPage)
}

type widget struct {
	value int
}

func newWidgetType() *Type {
	return &Type{Name: "widget", Size: unsafe.Sizeof(widget{})}
}

func TestCreateReferenceDereferenceFreesAtZero(t *testing.T) {
	SetPool(newTestPool(t))
	deleted := false
	typ := newWidgetType()
	typ.Delete = func(unsafe.Pointer) { deleted = true }

	obj, ok := Create(typ)
	if !ok {
		t.Fatal("Create failed")
	}
	w := (*widget)(obj)
	w.value = 42

	if RefCount(obj) != 1 {
		t.Fatalf("expected refcount 1, got %d", RefCount(obj))
	}

	Reference(obj)
	if RefCount(obj) != 2 {
		t.Fatalf("expected refcount 2, got %d", RefCount(obj))
	}

	Dereference(obj)
	if deleted {
		t.Fatal("Delete fired before refcount reached zero")
	}

	Dereference(obj)
	if !deleted {
		t.Fatal("expected Delete to fire once refcount reached zero")
	}
}

func TestInsertRejectsAlreadyParentedObject(t *testing.T) {
	SetPool(newTestPool(t))
	dir, ok := NewDirectory()
	if !ok {
		t.Fatal("NewDirectory failed")
	}
	other, ok := NewDirectory()
	if !ok {
		t.Fatal("NewDirectory failed")
	}

	typ := newWidgetType()
	obj, ok := Create(typ)
	if !ok {
		t.Fatal("Create failed")
	}

	if !Insert(dir, "w", obj) {
		t.Fatal("expected first Insert to succeed")
	}
	if Insert(other, "w", obj) {
		t.Fatal("expected second Insert on an already-parented object to fail")
	}
}

func TestLookupByNameAndIndex(t *testing.T) {
	SetPool(newTestPool(t))
	dir, _ := NewDirectory()
	typ := newWidgetType()

	names := []string{"alpha", "bravo", "charlie"}
	objs := map[string]unsafe.Pointer{}
	for _, n := range names {
		obj, ok := Create(typ)
		if !ok {
			t.Fatal("Create failed")
		}
		if !Insert(dir, n, obj) {
			t.Fatalf("Insert(%s) failed", n)
		}
		objs[n] = obj
	}

	for _, n := range names {
		got := LookupByName(dir, n)
		if got != objs[n] {
			t.Fatalf("LookupByName(%s) returned wrong object", n)
		}
	}

	if LookupByName(dir, "missing") != nil {
		t.Fatal("expected nil for missing name")
	}

	seen := map[string]bool{}
	for i := 0; ; i++ {
		name, obj, ok := LookupByIndex(dir, i)
		if !ok {
			break
		}
		if objs[name] != obj {
			t.Fatalf("LookupByIndex(%d) name/object mismatch", i)
		}
		seen[name] = true
	}
	if len(seen) != len(names) {
		t.Fatalf("expected to enumerate %d entries, saw %d", len(names), len(seen))
	}
}

func TestRemoveUnlinksAndDereferences(t *testing.T) {
	SetPool(newTestPool(t))
	dir, _ := NewDirectory()
	typ := newWidgetType()

	obj, _ := Create(typ)
	Insert(dir, "gone", obj)
	if RefCount(obj) != 2 {
		t.Fatalf("expected refcount 2 after insert, got %d", RefCount(obj))
	}

	if !Remove(dir, obj) {
		t.Fatal("expected Remove to succeed")
	}
	if RefCount(obj) != 1 {
		t.Fatalf("expected refcount 1 after remove, got %d", RefCount(obj))
	}
	if LookupByName(dir, "gone") != nil {
		t.Fatal("expected entry gone after Remove")
	}

	// Removing again must fail: the parent slot no longer matches dir.
	if Remove(dir, obj) {
		t.Fatal("expected second Remove to fail")
	}
}

func TestRemoveIgnoresObjectReparentedElsewhere(t *testing.T) {
	SetPool(newTestPool(t))
	dirA, _ := NewDirectory()
	dirB, _ := NewDirectory()
	typ := newWidgetType()

	obj, _ := Create(typ)
	Insert(dirA, "x", obj)
	Remove(dirA, obj)
	Insert(dirB, "x", obj)

	// dirA no longer parents obj; Remove via dirA must be a no-op now.
	if Remove(dirA, obj) {
		t.Fatal("expected Remove through stale parent to fail")
	}
	if LookupByName(dirB, "x") != obj {
		t.Fatal("expected object to remain parented under dirB")
	}
}
