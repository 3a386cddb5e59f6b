package bootreg

import "github.com/ardent-os/ardent/kernel"

var (
	// ErrBadSignature reports a registry image whose file or block
	// signature doesn't match, mirroring spec.md §7 kind 3 (format errors
	// are fatal pre-handoff, or surfaced to the caller in steady state).
	ErrBadSignature = &kernel.Error{Module: "bootreg", Message: "bad registry signature"}

	// ErrTruncated reports a read past the end of the supplied image.
	ErrTruncated = &kernel.Error{Module: "bootreg", Message: "registry image truncated"}
)

// Value is one decoded registry entry.
type Value struct {
	Name string
	Type EntryType

	// Int holds the decoded value for EntryByte..EntryQword.
	Int uint64

	// Str holds the decoded value for EntryString.
	Str string

	// SubKey holds the block offset of the subkey's own index tree for
	// EntryKey.
	SubKey uint32
}

// Reader decodes a boot registry image already fully resident in memory:
// the loader's own copy read off the boot volume, or the kernel's
// high-half mapping of the handoff block's BootRegistryBase/Size range.
// Reader never mutates the image.
type Reader struct {
	data []byte
}

// New validates data's file header and returns a Reader over it.
func New(data []byte) (*Reader, *kernel.Error) {
	if len(data) < fileHeaderSize+blockHeaderSize {
		return nil, ErrTruncated
	}
	if [4]byte(data[0:4]) != fileSignature {
		return nil, ErrBadSignature
	}
	return &Reader{data: data}, nil
}

// Root returns the block offset of the registry's top-level index tree.
func (r *Reader) Root() uint32 {
	return fileHeaderSize
}

// Lookup finds the entry named name directly under the index tree rooted
// at blockOffset, following the OffsetToNextBlock chain across overflow
// blocks (spec.md §6: "readers traverse subkeys by following a 32-bit
// block offset stored in each key entry" - Lookup is the single-level step
// that traversal is built from).
func (r *Reader) Lookup(blockOffset uint32, name string) (Value, bool) {
	var found Value
	ok := false
	r.walk(blockOffset, func(v Value) bool {
		if v.Name == name {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}

// Iterate visits every live (non-removed) entry directly under the index
// tree rooted at blockOffset, in on-disk order, stopping early if visit
// returns false.
func (r *Reader) Iterate(blockOffset uint32, visit func(Value) bool) {
	r.walk(blockOffset, visit)
}

// walk scans every block in the chain starting at blockOffset, decoding
// each live entry and calling fn; it stops as soon as fn returns false or
// the chain ends (OffsetToNextBlock == 0).
func (r *Reader) walk(blockOffset uint32, fn func(Value) bool) {
	for {
		block, ok := r.blockAt(blockOffset)
		if !ok {
			return
		}

		cont := r.walkBlock(block, fn)
		next := byteOrder.Uint32(block[4:8])
		if !cont || next == 0 {
			return
		}
		blockOffset = next
	}
}

// walkBlock decodes every entry in a single block's data area, returning
// false as soon as fn asks to stop.
func (r *Reader) walkBlock(block []byte, fn func(Value) bool) bool {
	data := block[blockHeaderSize:]
	off := 0
	for off+entryHeaderSize <= len(data) {
		hdr := data[off:]
		typ := EntryType(hdr[0])
		length := byteOrder.Uint32(hdr[4:8])
		if length == 0 || int(length) > len(data)-off {
			return true // corrupt/short tail entry; stop scanning this block
		}

		if typ != EntryRemoved {
			v, ok := decodeEntry(typ, hdr[:length])
			if ok && !fn(v) {
				return false
			}
		}

		off += int(length)
	}
	return true
}

// blockAt returns the BlockSize-byte slice starting at byte offset off, or
// false if it doesn't fit in the image or its signature is wrong.
func (r *Reader) blockAt(off uint32) ([]byte, bool) {
	start := int(off)
	if start < 0 || start+BlockSize > len(r.data) {
		return nil, false
	}
	block := r.data[start : start+BlockSize]
	if [4]byte(block[0:4]) != blockSignature {
		return nil, false
	}
	return block, true
}

// decodeEntry parses one entry's header, name, and type-specific payload
// out of raw (exactly length bytes, as walkBlock already verified).
func decodeEntry(typ EntryType, raw []byte) (Value, bool) {
	nameStart := entryHeaderSize
	nameEnd := nameStart
	for nameEnd < len(raw) && raw[nameEnd] != 0 {
		nameEnd++
	}
	if nameEnd >= len(raw) {
		return Value{}, false
	}
	name := string(raw[nameStart:nameEnd])
	payload := raw[nameEnd+1:]

	v := Value{Name: name, Type: typ}
	switch typ {
	case EntryByte, EntryWord, EntryDword, EntryQword:
		width := intByteWidth(typ)
		if len(payload) < width {
			return Value{}, false
		}
		var n uint64
		for i := 0; i < width; i++ {
			n |= uint64(payload[i]) << (8 * uint(i))
		}
		v.Int = n
	case EntryString:
		end := 0
		for end < len(payload) && payload[end] != 0 {
			end++
		}
		v.Str = string(payload[:end])
	case EntryKey:
		if len(payload) < 4 {
			return Value{}, false
		}
		v.SubKey = byteOrder.Uint32(payload)
	default:
		return Value{}, false
	}
	return v, true
}
