package irq

import "testing"

func TestClassifyFPPrefersStackFault(t *testing.T) {
	// Stack fault (bit 6) takes priority even when other flags are set,
	// mirroring how the hardware reports a cascading FP condition.
	got := classifyFP(1<<6 | 1<<0)
	if got != FPStackFault {
		t.Fatalf("classifyFP = %v, want FPStackFault", got)
	}
}

func TestClassifyFPInvalidOperation(t *testing.T) {
	if got := classifyFP(1 << 0); got != FPInvalidOperation {
		t.Fatalf("classifyFP = %v, want FPInvalidOperation", got)
	}
}

func TestClassifyFPUnknownWhenNoFlagsSet(t *testing.T) {
	if got := classifyFP(0); got != FPUnknown {
		t.Fatalf("classifyFP = %v, want FPUnknown", got)
	}
}

func TestFreezeOtherProcessorsSetsFlag(t *testing.T) {
	defer func() { nmiFrozen = 0 }()
	FreezeOtherProcessors()
	if nmiFrozen == 0 {
		t.Fatal("expected nmiFrozen to be set")
	}
}
