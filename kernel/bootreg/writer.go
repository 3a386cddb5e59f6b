package bootreg

import (
	"io"

	"github.com/ardent-os/ardent/kernel"
)

// Writer builds a boot registry image, grounded directly on
// create-boot-registry.c's FindFreeEntry/ConsolidateEntry pair: entries are
// packed into a block using a per-block "first free" hint, new blocks are
// chained onto the tree only once every existing block is full, and
// shrinking/growing an entry in place consolidates the remaining free
// space back into a single removed-entry placeholder. Writer is host-side
// tooling (cmd/mkregistry); nothing under kernel/ or loader/ links it.
type Writer struct {
	rw io.ReadWriteSeeker

	// currentBlockOffset is the offset of the block readBlock most
	// recently returned, so consolidate knows where to flush it back
	// without threading the offset through every caller.
	currentBlockOffset uint32
}

// ErrNameTooLong reports a key name that would overflow NameSize.
var ErrNameTooLong = &kernel.Error{Module: "bootreg", Message: "key name too long"}

// Create formats rw as a new, empty registry: a file header followed by a
// single empty root index block, matching CreateRegistry. It returns the
// block offset of the root index tree (always fileHeaderSize).
func Create(rw io.ReadWriteSeeker) (*Writer, uint32, *kernel.Error) {
	w := &Writer{rw: rw}

	var hdr [fileHeaderSize]byte
	copy(hdr[0:4], fileSignature[:])
	if err := w.writeAt(0, hdr[:]); err != nil {
		return nil, 0, err
	}

	root := uint32(fileHeaderSize)
	if err := w.writeEmptyBlock(root); err != nil {
		return nil, 0, err
	}
	return w, root, nil
}

// CreateIntegerKey writes a new fixed-width integer entry named name under
// the index tree rooted at firstBlockOffset, autodetecting the narrowest
// type that fits value when typ is zero - exactly CreateIntegerKey's
// autodetection ladder.
func (w *Writer) CreateIntegerKey(firstBlockOffset uint32, name string, typ EntryType, value uint64) *kernel.Error {
	if typ < EntryByte || typ > EntryQword {
		switch {
		case value < 0x100:
			typ = EntryByte
		case value < 0x10000:
			typ = EntryWord
		case value < 0x100000000:
			typ = EntryDword
		default:
			typ = EntryQword
		}
	}

	width := intByteWidth(typ)
	payload := make([]byte, width)
	for i := 0; i < width; i++ {
		payload[i] = byte(value >> (8 * uint(i)))
	}
	return w.createEntry(firstBlockOffset, name, typ, payload)
}

// CreateStringKey writes a new NUL-terminated string entry.
func (w *Writer) CreateStringKey(firstBlockOffset uint32, name, value string) *kernel.Error {
	payload := append([]byte(value), 0)
	return w.createEntry(firstBlockOffset, name, EntryString, payload)
}

// CreateSubKey writes a new subkey entry named name under the index tree
// rooted at firstBlockOffset and allocates the subkey's own empty root
// block at the end of the image, returning its offset - matching
// CreateSubKey's append-at-EOF placement.
func (w *Writer) CreateSubKey(firstBlockOffset uint32, name string) (uint32, *kernel.Error) {
	end, ierr := w.rw.Seek(0, io.SeekEnd)
	if ierr != nil {
		return 0, &kernel.Error{Module: "bootreg", Message: ierr.Error()}
	}
	subKey := uint32(end)

	payload := make([]byte, 4)
	byteOrder.PutUint32(payload, subKey)
	if err := w.createEntry(firstBlockOffset, name, EntryKey, payload); err != nil {
		return 0, err
	}
	if err := w.writeEmptyBlock(subKey); err != nil {
		return 0, err
	}
	return subKey, nil
}

// createEntry is the shared body of every Create*Key call: find a free
// entry slot of sufficient length (chaining a new block if none fits),
// stamp the entry, and consolidate the block's remaining free space.
func (w *Writer) createEntry(firstBlockOffset uint32, name string, typ EntryType, payload []byte) *kernel.Error {
	if len(name)+1 > NameSize {
		return ErrNameTooLong
	}

	nameBytes := append([]byte(name), 0)
	length := uint32(entryHeaderSize + len(nameBytes) + len(payload))

	block, entryOff, oldLength, err := w.findFreeEntry(firstBlockOffset, int(length))
	if err != nil {
		return err
	}

	hdr := block[entryOff:]
	hdr[0] = byte(typ)
	byteOrder.PutUint32(hdr[4:8], length)
	byteOrder.PutUint32(hdr[8:12], nameHash(name))
	copy(hdr[entryHeaderSize:], nameBytes)
	copy(hdr[entryHeaderSize+len(nameBytes):], payload)

	return w.consolidate(block, entryOff, length, oldLength)
}

// findFreeEntry is FindFreeEntry: starting from the block's InsertOffsetHint,
// scan forward for a removed entry at least length bytes long; if the hint
// says "no space" (noMoreHint), follow OffsetToNextBlock instead; once the
// whole chain is exhausted, chain a fresh block onto the tail.
func (w *Writer) findFreeEntry(firstBlockOffset uint32, length int) (block []byte, entryOff int, oldLength uint32, err *kernel.Error) {
	if length > BlockSize-blockHeaderSize {
		return nil, 0, 0, &kernel.Error{Module: "bootreg", Message: "entry too large for one block (multi-block values unsupported)"}
	}

	blockOffset := firstBlockOffset
	lastBlockOffset := firstBlockOffset

	for {
		buf, rerr := w.readBlock(blockOffset)
		if rerr != nil {
			return nil, 0, 0, rerr
		}

		hint := byteOrder.Uint32(buf[8:12])
		next := byteOrder.Uint32(buf[4:8])

		if hint == noMoreHint {
			if next == 0 {
				break
			}
			lastBlockOffset = blockOffset
			blockOffset = next
			continue
		}

		data := buf[blockHeaderSize:]
		off := int(hint)
		for off+entryHeaderSize <= len(data) {
			entryLen := byteOrder.Uint32(data[off+4 : off+8])
			if EntryType(data[off]) == EntryRemoved && entryLen >= uint32(length) {
				return buf, blockHeaderSize + off, entryLen, nil
			}
			off += int(entryLen)
		}

		lastBlockOffset = blockOffset
		if next == 0 {
			break
		}
		blockOffset = next
	}

	// Every block in the chain is full; append a new one and link it from
	// the last block visited, matching FindFreeEntry's end-of-chain path.
	end, serr := w.rw.Seek(0, io.SeekEnd)
	if serr != nil {
		return nil, 0, 0, &kernel.Error{Module: "bootreg", Message: serr.Error()}
	}
	newOffset := uint32(end)

	lastBlock, rerr := w.readBlock(lastBlockOffset)
	if rerr != nil {
		return nil, 0, 0, rerr
	}
	byteOrder.PutUint32(lastBlock[4:8], newOffset)
	if werr := w.writeAt(int64(lastBlockOffset), lastBlock); werr != nil {
		return nil, 0, 0, werr
	}

	if werr := w.writeEmptyBlock(newOffset); werr != nil {
		return nil, 0, 0, werr
	}
	newBlock, rerr := w.readBlock(newOffset)
	if rerr != nil {
		return nil, 0, 0, rerr
	}
	return newBlock, blockHeaderSize, uint32(BlockSize - blockHeaderSize), nil
}

// consolidate is ConsolidateEntry: after writing an entry of length bytes
// into a slot that used to hold oldLength free bytes, either shrink the
// leftover into a new removed-entry placeholder, grow the written entry to
// swallow a leftover too small to hold its own header, or mark the block
// as having no more free space, then flush the block.
func (w *Writer) consolidate(block []byte, entryOff int, length, oldLength uint32) *kernel.Error {
	data := block[blockHeaderSize:]
	if entryOff-blockHeaderSize+int(length) < len(data) {
		if oldLength-length >= entryHeaderSize {
			rem := data[int(length)+entryOff-blockHeaderSize:]
			rem[0] = byte(EntryRemoved)
			byteOrder.PutUint32(rem[4:8], oldLength-length)
			byteOrder.PutUint32(block[8:12], uint32(entryOff-blockHeaderSize)+length)
		} else {
			byteOrder.PutUint32(block[entryOff+4:entryOff+8], oldLength)
			byteOrder.PutUint32(block[8:12], uint32(entryOff-blockHeaderSize)+oldLength)
		}
	} else {
		byteOrder.PutUint32(block[8:12], noMoreHint)
	}

	blockOffset := w.currentBlockOffset
	return w.writeAt(int64(blockOffset), block)
}

func (w *Writer) writeEmptyBlock(offset uint32) *kernel.Error {
	var buf [BlockSize]byte
	copy(buf[0:4], blockSignature[:])
	byteOrder.PutUint32(buf[8:12], 0) // InsertOffsetHint: first entry starts at data[0]
	byteOrder.PutUint32(buf[blockHeaderSize+4:blockHeaderSize+8], uint32(BlockSize-blockHeaderSize))
	return w.writeAt(int64(offset), buf[:])
}

func (w *Writer) readBlock(offset uint32) ([]byte, *kernel.Error) {
	buf := make([]byte, BlockSize)
	if _, err := w.rw.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, &kernel.Error{Module: "bootreg", Message: err.Error()}
	}
	if _, err := io.ReadFull(w.rw, buf); err != nil {
		return nil, &kernel.Error{Module: "bootreg", Message: err.Error()}
	}
	w.currentBlockOffset = offset
	return buf, nil
}

func (w *Writer) writeAt(offset int64, buf []byte) *kernel.Error {
	if _, err := w.rw.Seek(offset, io.SeekStart); err != nil {
		return &kernel.Error{Module: "bootreg", Message: err.Error()}
	}
	if _, err := w.rw.Write(buf); err != nil {
		return &kernel.Error{Module: "bootreg", Message: err.Error()}
	}
	return nil
}
