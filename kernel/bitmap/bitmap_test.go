package bitmap

import "testing"

func TestSetClearTest(t *testing.T) {
	b := New(128)
	if b.Test(5) {
		t.Fatal("expected bit 5 to start clear")
	}
	b.Set(5)
	if !b.Test(5) {
		t.Fatal("expected bit 5 to be set")
	}
	b.Clear(5)
	if b.Test(5) {
		t.Fatal("expected bit 5 to be clear again")
	}
}

func TestSetRangeClearRange(t *testing.T) {
	b := New(64)
	b.SetRange(10, 20)
	for i := 10; i < 30; i++ {
		if !b.Test(i) {
			t.Fatalf("expected bit %d to be set", i)
		}
	}
	if b.Test(9) || b.Test(30) {
		t.Fatal("expected range boundaries to stay clear")
	}

	b.ClearRange(15, 5)
	for i := 15; i < 20; i++ {
		if b.Test(i) {
			t.Fatalf("expected bit %d to be cleared", i)
		}
	}
	if !b.Test(10) || !b.Test(20) {
		t.Fatal("expected bits outside the cleared sub-range to remain set")
	}
}

func TestFirstClear(t *testing.T) {
	b := New(8)
	b.SetRange(0, 3)
	if got := b.FirstClear(); got != 3 {
		t.Fatalf("FirstClear() = %d, want 3", got)
	}

	b.SetRange(3, 5)
	if got := b.FirstClear(); got != -1 {
		t.Fatalf("FirstClear() = %d, want -1 on a fully set bitmap", got)
	}
}

func TestFirstClearRunFindsRunAndAdvancesHint(t *testing.T) {
	b := New(16)
	b.SetRange(0, 4)

	got := b.FirstClearRun(3)
	if got != 4 {
		t.Fatalf("FirstClearRun(3) = %d, want 4", got)
	}

	// The hint now sits past the run just returned, so asking for another
	// run of the same size finds the next one instead of reusing [4,7).
	got = b.FirstClearRun(3)
	if got != 7 {
		t.Fatalf("second FirstClearRun(3) = %d, want 7", got)
	}
}

func TestFirstClearRunWrapsAfterHintExhausted(t *testing.T) {
	b := New(16)
	b.SetRange(8, 8)

	if got := b.FirstClearRun(4); got != 0 {
		t.Fatalf("FirstClearRun(4) = %d, want 0", got)
	}
	// Fill the rest of the bitmap: neither the scan from the hint (4) nor
	// the wrapped scan from 0 finds room.
	b.SetRange(0, 8)
	if got := b.FirstClearRun(4); got != -1 {
		t.Fatalf("FirstClearRun(4) on a fully set bitmap = %d, want -1", got)
	}
}

func TestFirstClearRunRejectsOutOfRangeSizes(t *testing.T) {
	b := New(8)
	if got := b.FirstClearRun(0); got != -1 {
		t.Fatalf("FirstClearRun(0) = %d, want -1", got)
	}
	if got := b.FirstClearRun(9); got != -1 {
		t.Fatalf("FirstClearRun(9) = %d, want -1", got)
	}
}
