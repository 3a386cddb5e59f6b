package pmm

// Watermarks for the per-CPU free-page cache (spec.md §4.D).
const (
	MinCache   = 32  // low-water: refill from the global list below this
	BatchSize  = 64  // frames moved global<->local per refill/drain
	MaxCache   = 128 // high-water: push back to the global list above this
)

// MaxProcessors bounds the number of per-CPU caches kept inline; this
// mirrors the fixed processor-table sizing used by the rest of the kernel
// (kernel/sched, kernel/irq) rather than growing dynamically at runtime.
const MaxProcessors = 64

// perCPUCache is an intrusive singly linked stack of free frames private to
// one processor, avoiding the global lock on the fast path.
type perCPUCache struct {
	top   Frame
	count uint64
}

var caches [MaxProcessors]perCPUCache

// cpuIndexFn resolves the calling processor to a cache slot. Installed by
// kernel/bringup once per-CPU data is available; defaults to always CPU 0
// so single-CPU callers (and tests) work before SMP bring-up.
var cpuIndexFn = func() int { return 0 }

// SetCPUIndexFn installs the real per-processor index resolver (typically
// backed by cpu.APICID mapped through the processor table).
func SetCPUIndexFn(fn func() int) { cpuIndexFn = fn }

func (c *perCPUCache) push(f Frame) {
	e := db.entry(f)
	e.flags = 0
	e.nextFree = c.top
	c.top = f
	c.count++
}

func (c *perCPUCache) pop() Frame {
	f := c.top
	e := db.entry(f)
	c.top = e.nextFree
	c.count--
	return f
}

func refill(c *perCPUCache) {
	frames := popGlobal(BatchSize)
	for _, f := range frames {
		c.push(f)
	}
}

func drain(c *perCPUCache) {
	frames := make([]Frame, 0, BatchSize)
	for i := uint64(0); i < BatchSize && c.count > 0; i++ {
		frames = append(frames, c.pop())
	}
	pushGlobal(frames)
}

// Allocate reserves and returns a physical frame, refilling the calling
// processor's cache from the global free list when it drops below
// MinCache. It panics with BAD_PFN_HEADER if a page popped off either list
// is found already marked used or pool-tagged.
func Allocate() (Frame, bool) {
	c := &caches[cpuIndexFn()]

	if c.count < MinCache {
		refill(c)
	}
	if c.count == 0 {
		return InvalidFrame, false
	}

	f := c.pop()
	e := db.entry(f)
	if e.used() {
		badPFNHeader(f, 2)
	}
	e.flags = flagUsed
	return f, true
}

// Free releases a previously allocated frame back to the calling
// processor's cache, spilling to the global list once the cache passes
// MaxCache. Pool-tagged frames (pool_item == 1) must be freed through the
// pool allocator instead; Free panics if asked to free one directly.
func Free(f Frame) {
	e := db.entry(f)
	if !e.used() {
		badPFNHeader(f, 3)
	}
	if e.poolItem() {
		badPFNHeader(f, 4)
	}
	e.flags = 0

	c := &caches[cpuIndexFn()]
	c.push(f)
	if c.count > MaxCache {
		drain(c)
	}
}
