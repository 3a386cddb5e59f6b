package kdebug

import "testing"

func TestExportResolveRoundTrip(t *testing.T) {
	Reset()
	defer Reset()

	Export("KdpInitializeController", 0x1000)
	Export("KdpShutdownController", 0x2000)

	addr, ok := Resolve("KdpShutdownController")
	if !ok || addr != 0x2000 {
		t.Fatalf("Resolve(KdpShutdownController) = (%#x, %v), want (0x2000, true)", addr, ok)
	}

	if _, ok := Resolve("NotExported"); ok {
		t.Fatal("Resolve found a symbol that was never exported")
	}

	if got := Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
}

func TestExportOverwritesExistingAddress(t *testing.T) {
	Reset()
	defer Reset()

	Export("KdpGetRxPacket", 0x1000)
	Export("KdpGetRxPacket", 0x1234)

	addr, ok := Resolve("KdpGetRxPacket")
	if !ok || addr != 0x1234 {
		t.Fatalf("Resolve(KdpGetRxPacket) = (%#x, %v), want (0x1234, true)", addr, ok)
	}
	if got := Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1 (re-export must not duplicate)", got)
	}
}
