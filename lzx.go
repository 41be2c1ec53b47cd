// lzx.go
//
// LZX decoder. The compressed section is decoded in units of reset
// intervals; within an interval LZX emits blocks of three kinds (verbatim,
// aligned offset, uncompressed). Huffman trees and the three LRU match
// distances carry over across blocks inside one interval; at every interval
// boundary the window is zeroed, the trees are dropped and the LRU
// distances return to {1, 1, 1}, which is what lets a decoder start cold at
// any reset-table entry.
//
// The E8 call-translation filter is never applied: the CHM flavor of LZX
// stores untranslated bytes.

package chm

import (
	"context"
	"errors"
	"fmt"
)

// lzxBlockError attaches the current block header to a decode failure so the
// facade can surface it for diagnostics.
type lzxBlockError struct {
	Block BlockHeader
	Err   error
}

func (e *lzxBlockError) Error() string {
	return fmt.Sprintf("block type %d, size %d: %s", e.Block.Type, e.Block.Size, e.Err.Error())
}

func (e *lzxBlockError) Unwrap() error { return e.Err }

// lzxDecoder holds the per-section decode state. One decoder serves one
// Archive; every random-access request resets it, so requests are
// independent and order-insensitive.
type lzxDecoder struct {
	windowSize    uint32
	resetInterval uint64
	slots         int

	win      *slidingWindow
	mainLens []byte
	lenLens  []byte
	mainTree *huffTable
	lenTree  *huffTable
	lru      [lzxNumRepeats]uint32
}

func newLzxDecoder(windowSize uint32, resetInterval uint64) (*lzxDecoder, error) {
	slots, ok := windowPositionSlots[windowSize]
	if !ok {
		return nil, ErrWindowTooSmall
	}
	win, err := newSlidingWindow(windowSize)
	if err != nil {
		return nil, err
	}
	return &lzxDecoder{
		windowSize:    windowSize,
		resetInterval: resetInterval,
		slots:         slots,
		win:           win,
		mainLens:      make([]byte, mainTreeSize(slots)),
		lenLens:       make([]byte, lzxLengthCodes),
	}, nil
}

// resetState returns the decoder to the cold state required at a reset
// boundary.
func (d *lzxDecoder) resetState() {
	d.win.reset()
	for i := range d.mainLens {
		d.mainLens[i] = 0
	}
	for i := range d.lenLens {
		d.lenLens[i] = 0
	}
	d.mainTree = nil
	d.lenTree = nil
	d.lru = [lzxNumRepeats]uint32{1, 1, 1}
}

// decodeInterval decodes exactly n uncompressed bytes from r, which must be
// positioned byte-aligned at the start of a reset interval's compressed
// data. The reader is left byte-aligned after the interval, so consecutive
// intervals decode back-to-back. ctx, when non-nil, is polled between
// blocks.
func (d *lzxDecoder) decodeInterval(ctx context.Context, r *bitReader, n int) ([]byte, error) {
	d.resetState()
	out := make([]byte, 0, n)
	for len(out) < n {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var err error
		out, err = d.decodeBlock(r, out, n)
		if err != nil {
			return nil, err
		}
	}
	r.align()
	return out, nil
}

// decodeBlock decodes one block header and body, appending to out. limit is
// the interval's total uncompressed size; a block declaring more than the
// remainder fails with ErrOutputOverflow.
func (d *lzxDecoder) decodeBlock(r *bitReader, out []byte, limit int) ([]byte, error) {
	blockType, err := r.readBits(3)
	if err != nil {
		return nil, ErrTruncatedBlock
	}
	// 24-bit uncompressed size, high 16 bits then low 8.
	hi, err := r.readBits(16)
	if err != nil {
		return nil, ErrTruncatedBlock
	}
	lo, err := r.readBits(8)
	if err != nil {
		return nil, ErrTruncatedBlock
	}
	size := hi<<8 | lo
	hdr := BlockHeader{Type: byte(blockType), Size: size}

	if size == 0 {
		return nil, &lzxBlockError{Block: hdr, Err: ErrTruncatedBlock}
	}
	if int(size) > limit-len(out) {
		return nil, &lzxBlockError{Block: hdr, Err: ErrOutputOverflow}
	}

	switch blockType {
	case lzxBlockVerbatim, lzxBlockAligned:
		out, err = d.decodeCompressedBlock(r, out, int(size), blockType == lzxBlockAligned)
	case lzxBlockUncompressed:
		out, err = d.decodeUncompressedBlock(r, out, int(size))
	default:
		err = fmt.Errorf("type %d: %w", blockType, ErrUnknownBlockType)
	}
	if err != nil {
		if errors.Is(err, ErrEndOfStream) {
			err = ErrTruncatedBlock
		}
		return nil, &lzxBlockError{Block: hdr, Err: err}
	}
	return out, nil
}

func (d *lzxDecoder) decodeCompressedBlock(r *bitReader, out []byte, size int, aligned bool) ([]byte, error) {
	var alignedTree *huffTable
	if aligned {
		lens := make([]byte, lzxAlignedSize)
		for i := range lens {
			v, err := r.readBits(lzxAlignedLenBits)
			if err != nil {
				return nil, err
			}
			lens[i] = byte(v)
		}
		var err error
		alignedTree, err = newHuffTable(lens)
		if err != nil {
			return nil, fmt.Errorf("aligned tree: %w", err)
		}
	}

	if err := d.readTree(r, d.mainLens, &d.mainTree, "main tree"); err != nil {
		return nil, err
	}
	if err := d.readTree(r, d.lenLens, &d.lenTree, "length tree"); err != nil {
		return nil, err
	}

	produced := 0
	for produced < size {
		sym, err := d.mainTree.decodeSym(r)
		if err != nil {
			return nil, err
		}
		if sym < lzxNumChars {
			b := byte(sym)
			d.win.writeByte(b)
			out = append(out, b)
			produced++
			continue
		}

		x := int(sym) - lzxNumChars
		header := x & 7
		slot := x >> 3
		if slot >= d.slots {
			return nil, fmt.Errorf("position slot %d out of range: %w", slot, ErrInvalidHuffmanCode)
		}

		length := header + 2
		if header == 7 {
			if d.lenTree == nil {
				return nil, fmt.Errorf("length tree absent: %w", ErrInvalidHuffman)
			}
			ls, err := d.lenTree.decodeSym(r)
			if err != nil {
				return nil, err
			}
			length = int(ls) + 7 + 2
		}

		var dist uint32
		if slot < lzxNumRepeats {
			// LRU distance; move the hit to the front.
			dist = d.lru[slot]
			d.lru[slot] = d.lru[0]
			d.lru[0] = dist
		} else {
			fb := int(footerBits[slot])
			var verbatim, alignedLow uint32
			if fb > 0 {
				if alignedTree != nil && fb >= 3 {
					if fb > 3 {
						v, err := r.readBits(fb - 3)
						if err != nil {
							return nil, err
						}
						verbatim = v << 3
					}
					a, err := alignedTree.decodeSym(r)
					if err != nil {
						return nil, err
					}
					alignedLow = uint32(a)
				} else {
					v, err := r.readBits(fb)
					if err != nil {
						return nil, err
					}
					verbatim = v
				}
			}
			formatted := positionBase[slot] + verbatim + alignedLow
			dist = formatted - 2
			d.lru[2] = d.lru[1]
			d.lru[1] = d.lru[0]
			d.lru[0] = dist
		}

		if produced+length > size {
			return nil, &InvalidMatchError{Distance: int(dist), Length: length, WindowPos: d.win.pos}
		}
		out, err = d.win.copyMatch(int(dist), length, out)
		if err != nil {
			return nil, err
		}
		produced += length
	}
	return out, nil
}

// readTree reads one code-length vector through the pre-tree protocol and
// rebuilds the corresponding decode table. An all-zero vector means "reuse
// the previous block's table". For the main tree, reuse with no previous
// table is corrupt; an absent length tree is accepted here and fails only
// when a match needs it.
func (d *lzxDecoder) readTree(r *bitReader, lens []byte, tree **huffTable, what string) error {
	if err := readLengths(r, lens); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if allZero(lens) {
		if *tree == nil && what == "main tree" {
			return fmt.Errorf("%s absent: %w", what, ErrInvalidHuffman)
		}
		return nil
	}
	t, err := newHuffTable(lens)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	*tree = t
	return nil
}

// readLengths decodes a code-length vector: a 20-symbol pre-tree stored as
// raw 4-bit lengths, then pre-tree codes over the vector. Codes 0-15 are
// literal lengths; 16 repeats the last emitted length 4-19 times (4 extra
// bits); 17 emits 4-19 zeros (4 bits); 18 emits 20-51 zeros (5 bits); 19
// emits 4-5 zeros (1 bit).
func readLengths(r *bitReader, lens []byte) error {
	plens := make([]byte, lzxPretreeSize)
	for i := range plens {
		v, err := r.readBits(lzxPretreeLenBits)
		if err != nil {
			return err
		}
		plens[i] = byte(v)
	}
	pretree, err := newHuffTable(plens)
	if err != nil {
		return fmt.Errorf("pretree: %w", err)
	}

	last := -1
	for i := 0; i < len(lens); {
		sym, err := pretree.decodeSym(r)
		if err != nil {
			return err
		}
		switch {
		case sym <= 15:
			lens[i] = byte(sym)
			last = int(sym)
			i++
		case sym == 16:
			if last < 0 {
				return fmt.Errorf("repeat with no previous length: %w", ErrInvalidHuffman)
			}
			n, err := r.readBits(4)
			if err != nil {
				return err
			}
			i, err = fillRun(lens, i, int(n)+4, byte(last))
			if err != nil {
				return err
			}
		case sym == 17:
			n, err := r.readBits(4)
			if err != nil {
				return err
			}
			i, err = fillRun(lens, i, int(n)+4, 0)
			if err != nil {
				return err
			}
			last = 0
		case sym == 18:
			n, err := r.readBits(5)
			if err != nil {
				return err
			}
			i, err = fillRun(lens, i, int(n)+20, 0)
			if err != nil {
				return err
			}
			last = 0
		default: // 19
			n, err := r.readBits(1)
			if err != nil {
				return err
			}
			i, err = fillRun(lens, i, int(n)+4, 0)
			if err != nil {
				return err
			}
			last = 0
		}
	}
	return nil
}

func fillRun(lens []byte, i, n int, v byte) (int, error) {
	if i+n > len(lens) {
		return 0, fmt.Errorf("length run overflows vector: %w", ErrInvalidHuffman)
	}
	for j := 0; j < n; j++ {
		lens[i+j] = v
	}
	return i + n, nil
}

func (d *lzxDecoder) decodeUncompressedBlock(r *bitReader, out []byte, size int) ([]byte, error) {
	r.align()
	for i := range d.lru {
		v, err := r.readU32le()
		if err != nil {
			return nil, err
		}
		d.lru[i] = v
	}
	data, err := r.readBytes(size)
	if err != nil {
		return nil, err
	}
	for _, b := range data {
		d.win.writeByte(b)
	}
	return append(out, data...), nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
