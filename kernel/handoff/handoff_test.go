package handoff

import "testing"

func TestValidRejectsWrongMagicOrVersion(t *testing.T) {
	b := &Block{Magic: Magic, Version: CurrentVersion}
	if !b.Valid() {
		t.Fatal("expected well-formed block to validate")
	}

	bad := *b
	bad.Magic ^= 1
	if bad.Valid() {
		t.Fatal("expected mismatched magic to fail validation")
	}

	bad = *b
	bad.Version++
	if bad.Valid() {
		t.Fatal("expected mismatched version to fail validation")
	}

	var nilBlock *Block
	if nilBlock.Valid() {
		t.Fatal("expected nil block to fail validation")
	}
}
