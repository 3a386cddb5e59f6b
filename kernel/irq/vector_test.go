package irq

import "testing"

func resetVectorsForTest(cpuIdx int) {
	processors[cpuIdx] = vectorTable{}
}

func TestAllocateVectorPrefersUnused(t *testing.T) {
	resetVectorsForTest(0)

	v, ok := AllocateVector(0)
	if !ok {
		t.Fatal("expected a vector to be available")
	}
	if VectorIrql(v) > bandHighIrql || VectorIrql(v) < bandLowIrql {
		t.Fatalf("vector %d has IRQL %d outside the device band [%d,%d]", v, VectorIrql(v), bandLowIrql, bandHighIrql)
	}
}

func TestAllocateVectorScansHighToLow(t *testing.T) {
	resetVectorsForTest(1)

	// Saturate every vector at the highest band IRQL so the next
	// allocation must fall through to the next IRQL down.
	base := int(bandHighIrql) * vectorsPerIrql
	for i := 0; i < vectorsPerIrql; i++ {
		processors[1].usage[base+i] = 1
	}

	v, ok := AllocateVector(1)
	if !ok {
		t.Fatal("expected a vector to be available")
	}
	if VectorIrql(v) == bandHighIrql {
		t.Fatalf("expected allocation to skip the saturated top IRQL, got vector %d", v)
	}
}

func TestAllocateVectorFallsBackToLeastUsed(t *testing.T) {
	resetVectorsForTest(2)

	for v := int(bandLowIrql) * vectorsPerIrql; v < (int(bandHighIrql)+1)*vectorsPerIrql; v++ {
		processors[2].usage[v] = 5
	}
	// Make exactly one vector the least-used in the whole band.
	leastUsedVector := int(bandLowIrql)*vectorsPerIrql + 3
	processors[2].usage[leastUsedVector] = 1

	v, ok := AllocateVector(2)
	if !ok {
		t.Fatal("expected a fallback vector")
	}
	if int(v) != leastUsedVector {
		t.Fatalf("got vector %d, want least-used vector %d", v, leastUsedVector)
	}
}

func TestAllocateVectorOutOfRangeCPU(t *testing.T) {
	if _, ok := AllocateVector(-1); ok {
		t.Fatal("expected failure for negative cpu index")
	}
	if _, ok := AllocateVector(MaxProcessors); ok {
		t.Fatal("expected failure for out-of-range cpu index")
	}
}
