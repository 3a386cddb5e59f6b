package irq

import "sync/atomic"

// gsiWords backs the process-wide 256-bit GSI-used bitmap (spec.md §4.G).
// Each bit is claimed with a compare-and-swap so that two processors racing
// initialize_interrupt_data never both believe they own the same GSI.
var gsiWords [4]uint64

// overrideTable maps a legacy ISA bus vector to the GSI the firmware
// actually routes it to (ACPI MADT interrupt-source overrides). A bus
// vector with no entry gets the first clear GSI.
var overrideTable = map[uint8]uint8{}

// SetFirmwareOverride records a legacy bus vector -> GSI override, normally
// populated from the ACPI MADT during bring-up.
func SetFirmwareOverride(busVector, gsi uint8) {
	overrideTable[busVector] = gsi
}

func gsiTestAndSet(gsi uint8) bool {
	word, bit := gsi/64, uint(gsi%64)
	mask := uint64(1) << bit
	for {
		old := atomic.LoadUint64(&gsiWords[word])
		if old&mask != 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(&gsiWords[word], old, old|mask) {
			return true
		}
	}
}

func gsiClear(gsi uint8) {
	word, bit := gsi/64, uint(gsi%64)
	for {
		old := atomic.LoadUint64(&gsiWords[word])
		if atomic.CompareAndSwapUint64(&gsiWords[word], old, old&^(uint64(1)<<bit)) {
			return
		}
	}
}

func gsiFirstClear() (uint8, bool) {
	for w := 0; w < 4; w++ {
		word := atomic.LoadUint64(&gsiWords[w])
		if word == ^uint64(0) {
			continue
		}
		for b := 0; b < 64; b++ {
			if word&(1<<uint(b)) == 0 {
				return uint8(w*64 + b), true
			}
		}
	}
	return 0, false
}

// InitializeInterruptData resolves a legacy bus vector to a GSI and claims
// it in the global bitmap, failing if the GSI is already allocated (spec.md
// §4.G). A bus vector with a firmware override gets exactly that GSI; any
// other bus vector gets the first clear GSI.
func InitializeInterruptData(busVector uint8) (gsi uint8, ok bool) {
	if override, found := overrideTable[busVector]; found {
		if gsiTestAndSet(override) {
			return override, true
		}
		return 0, false
	}

	for {
		candidate, found := gsiFirstClear()
		if !found {
			return 0, false
		}
		if gsiTestAndSet(candidate) {
			return candidate, true
		}
		// Lost the race for candidate; retry against the updated bitmap.
	}
}

// ReleaseGSI clears a previously allocated GSI, making it available again.
func ReleaseGSI(gsi uint8) {
	gsiClear(gsi)
}
