package irq

import "github.com/ardent-os/ardent/kernel/sync"

// MaxProcessors bounds the per-processor vector tables; interrupt objects
// rarely exceed the real hardware thread count this kernel targets.
const MaxProcessors = 64

// vectorsPerIrql is the width of each IRQL's slice of the vector space: the
// IRQL a vector belongs to is vector>>4, so 16 consecutive vectors share one
// IRQL (spec.md §4.G).
const vectorsPerIrql = 16

// bandLowIrql and bandHighIrql bound the device priority band vector
// allocation scans, clipped to what an 8-bit vector number can express
// (vector>>4 tops out at 15).
var (
	bandLowIrql  = sync.DeviceLow
	bandHighIrql = sync.Irql(vectorsPerIrql - 1)
)

type vectorTable struct {
	usage [256]uint32
}

var processors [MaxProcessors]vectorTable

// VectorIrql returns the IRQL a vector dispatches at.
func VectorIrql(vector uint8) sync.Irql { return sync.Irql(vector >> 4) }

// AllocateVector picks a vector for processor cpu in the device priority
// band, scanning from the highest IRQL down to the lowest and preferring a
// vector with no existing handlers; if every vector in the band already has
// at least one, the least-used vector is returned instead (spec.md §4.G).
func AllocateVector(cpuIdx int) (uint8, bool) {
	if cpuIdx < 0 || cpuIdx >= MaxProcessors {
		return 0, false
	}
	tbl := &processors[cpuIdx]

	var bestVector uint8
	var bestUsage uint32 = ^uint32(0)
	found := false

	for irql := bandHighIrql; irql >= bandLowIrql; irql-- {
		base := int(irql) * vectorsPerIrql
		for i := 0; i < vectorsPerIrql; i++ {
			v := uint8(base + i)
			if tbl.usage[v] == 0 {
				return v, true
			}
			if tbl.usage[v] < bestUsage {
				bestUsage = tbl.usage[v]
				bestVector = v
				found = true
			}
		}
		if irql == bandLowIrql {
			break
		}
	}
	return bestVector, found
}

func vectorAcquire(cpuIdx int, vector uint8) {
	processors[cpuIdx].usage[vector]++
}

func vectorRelease(cpuIdx int, vector uint8) {
	if processors[cpuIdx].usage[vector] > 0 {
		processors[cpuIdx].usage[vector]--
	}
}
