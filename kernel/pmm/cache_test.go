package pmm

import (
	"testing"

	"github.com/ardent-os/ardent/kernel/sync"
)

func resetForTest(maxFrame Frame) {
	InitDB(maxFrame)
	global = globalFreeList{head: InvalidFrame}
	global.lock.Init(sync.Dispatch)
	for i := range caches {
		caches[i] = perCPUCache{top: InvalidFrame}
	}
	cpuIndexFn = func() int { return 0 }
}

func TestCacheRefillFromExactlyMinCache(t *testing.T) {
	resetForTest(Frame(1000))

	for f := Frame(1); f <= MinCache; f++ {
		seed(f)
	}
	if GlobalFreeCount() != MinCache {
		t.Fatalf("expected %d seeded frames, got %d", MinCache, GlobalFreeCount())
	}

	f, ok := Allocate()
	if !ok {
		t.Fatal("expected Allocate to succeed")
	}
	if !f.Valid() {
		t.Fatal("expected a valid frame")
	}

	c := &caches[0]
	wantBatch := uint64(MinCache)
	if wantBatch > BatchSize {
		wantBatch = BatchSize
	}
	if c.count != wantBatch-1 {
		t.Fatalf("expected cache to hold %d frames after one alloc, got %d", wantBatch-1, c.count)
	}
	if GlobalFreeCount() != MinCache-wantBatch {
		t.Fatalf("expected global count to drop by %d, got %d", wantBatch, GlobalFreeCount())
	}
}

func TestAllocateFreeRoundTrip(t *testing.T) {
	resetForTest(Frame(1000))
	seed(Frame(5))

	f, ok := Allocate()
	if !ok || f != Frame(5) {
		t.Fatalf("expected to allocate frame 5, got %v ok=%v", f, ok)
	}
	if !db.entry(f).used() {
		t.Fatal("expected frame to be marked used")
	}

	Free(f)
	if db.entry(f).used() {
		t.Fatal("expected frame to be marked free after Free")
	}
}

func TestFreePoolItemPanics(t *testing.T) {
	resetForTest(Frame(1000))
	seed(Frame(5))
	f, _ := Allocate()
	SetPoolItem(f)

	var paniced bool
	orig := badPFNHeaderFn
	defer func() { badPFNHeaderFn = orig }()
	badPFNHeaderFn = func(Frame, uint64) { paniced = true }

	Free(f)
	if !paniced {
		t.Fatal("expected Free of a pool-tagged frame to raise BAD_PFN_HEADER")
	}
}
