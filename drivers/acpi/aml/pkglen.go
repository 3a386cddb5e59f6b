package aml

import "github.com/ardent-os/ardent/kernel"

// readPkgLength decodes an AML PkgLength value and returns the absolute
// stream offset where the package ends, per spec.md §4.J: one leading byte;
// if its top two bits are zero the low six bits are the length; otherwise
// the top two bits give the count of additional length bytes, whose
// combined value is appended (little-endian) to the low four bits of the
// leading byte.
func readPkgLength(r *reader) (pkgEnd uint32, err *kernel.Error) {
	startOffset := r.Offset()

	lead, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	extraBytes := lead >> 6
	if extraBytes == 0 {
		return startOffset + uint32(lead&0x3f), nil
	}

	length := uint32(lead & 0x0f)
	for i := byte(0); i < extraBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		length |= uint32(b) << (4 + 8*i)
	}

	// length already counts the PkgLength encoding's own bytes (the lead
	// byte plus extraBytes), matching the ACPI encoding: the value is the
	// total size of the package, inclusive of itself.
	return startOffset + length, nil
}
