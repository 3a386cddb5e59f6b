// Package bootreg implements the on-disk boot registry described in
// spec.md §6 ("Persisted state"): a small binary registry with a fixed
// header, 4 KiB blocks, and typed entries identified by hashed names.
// spec.md names the shape but leaves the host-side writer and the
// kernel/loader-side reader unimplemented; both are supplemented here
// (SPEC_FULL.md §4) directly from the ilmmatias/palladium source this
// spec was distilled from (src/sdk/host/create-boot-registry.c).
//
// Writers (cmd/mkregistry) allocate free entries using a per-block
// "first free" hint and consolidate the residue, exactly as
// create-boot-registry.c's FindFreeEntry/ConsolidateEntry pair does.
// Readers (this package, consumed by loader/bootcfg and kernel driver
// init) traverse subkeys by following the 32-bit block offset stored in
// each key entry.
package bootreg

import "encoding/binary"

// BlockSize is the fixed block granularity spec.md §6 names ("4 KiB
// blocks"). Every index tree node (the root, and every subkey) starts a
// fresh chain of BlockSize-byte blocks.
const BlockSize = 4096

// NameSize bounds a key's name, including the trailing NUL - long enough
// for every name create-boot-registry.c actually writes ("DefaultSelection",
// "Boot from the Installation Disk", ...) with headroom to spare.
const NameSize = 64

// noMoreHint is the InsertOffsetHint sentinel meaning "this block has no
// known free entry; always follow OffsetToNextBlock", matching the
// original's UINT32_MAX.
const noMoreHint = 0xFFFFFFFF

var (
	fileSignature  = [4]byte{'R', 'E', 'G', 'F'}
	blockSignature = [4]byte{'R', 'E', 'G', 'B'}
)

// fileHeaderSize is sizeof(RegFileHeader): a signature plus reserved
// padding, matching the original's "write sizeof(RegFileHeader) zeroed
// bytes, then stamp the signature" construction in CreateRegistry.
const fileHeaderSize = 16

// blockHeaderSize is sizeof(RegBlockHeader).
const blockHeaderSize = 16

// entryHeaderSize is sizeof(RegEntryHeader): type byte, 3 bytes padding,
// the entry's total length (header + name + payload), and the name hash.
const entryHeaderSize = 12

// EntryType enumerates the registry's entry kinds (spec.md §6).
type EntryType uint8

const (
	// EntryRemoved marks a free (reusable) entry slot.
	EntryRemoved EntryType = iota
	EntryByte
	EntryWord
	EntryDword
	EntryQword
	EntryString
	// EntryKey is a subkey: its payload is a 32-bit offset to the root
	// block of the subkey's own index tree.
	EntryKey
)

// intByteWidth returns the payload width of an integer entry type, matching
// create-boot-registry.c's `1 << (Type - 1)` for Type in [EntryByte,
// EntryQword].
func intByteWidth(t EntryType) int {
	switch t {
	case EntryByte:
		return 1
	case EntryWord:
		return 2
	case EntryDword:
		return 4
	case EntryQword:
		return 8
	default:
		return 0
	}
}

// byteOrder is the wire byte order for every multi-byte field in the
// registry image, matching the little-endian convention the rest of the
// loader/kernel boundary uses (spec.md §4.B relocations, §6 handoff block).
var byteOrder = binary.LittleEndian

// nameHash is the hashed-name function spec.md §6 calls for but leaves
// unspecified (RtGetHash in the original). A small FNV-1a variant is used
// since the hash only has to be stable within one registry image, not
// interoperate with any external format.
func nameHash(name string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return h
}
