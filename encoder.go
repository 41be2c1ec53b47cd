// encoder.go
//
// LZX encoder. Correctness-first: verbatim blocks (plus raw blocks when
// entropy coding would expand the data), a greedy hash-chain LZ77 match
// finder, and per-block canonical Huffman codes over observed frequencies.
// The encoder mirrors the decoder's state machine (LRU distance updates,
// tree carry-over, interval resets) so that the two sides agree
// bit for bit. A reset-table entry is recorded at every interval boundary,
// where the stream is byte-aligned and the decoder can start cold.

package chm

import (
	"encoding/binary"
	"fmt"
	"sort"

	farm "github.com/dgryski/go-farm"
)

const (
	encHashBits  = 15
	encHashSize  = 1 << encHashBits
	encMaxChain  = 64 // candidates examined per position
	encNoCand    = -1
	encUncompLRU = 12 // byte count of the three raw LRU values
)

// bitWriter assembles an MSB-first bit stream, the mirror image of
// bitReader.
type bitWriter struct {
	buf   []byte
	cur   byte // partial byte, low nbits bits valid
	nbits int
}

func (w *bitWriter) writeBits(v uint32, n int) {
	if n < 1 || n > 32 {
		panic("chm: writeBits count out of range")
	}
	for n > 0 {
		take := 8 - w.nbits
		if take > n {
			take = n
		}
		chunk := byte(v >> (n - take) & (1<<take - 1))
		w.cur = w.cur<<take | chunk
		w.nbits += take
		n -= take
		if w.nbits == 8 {
			w.buf = append(w.buf, w.cur)
			w.cur = 0
			w.nbits = 0
		}
	}
}

// align pads the partial byte with zero bits.
func (w *bitWriter) align() {
	if w.nbits > 0 {
		w.buf = append(w.buf, w.cur<<(8-w.nbits))
		w.cur = 0
		w.nbits = 0
	}
}

func (w *bitWriter) writeBytes(p []byte) {
	if w.nbits != 0 {
		panic("chm: byte write on unaligned bit stream")
	}
	w.buf = append(w.buf, p...)
}

func (w *bitWriter) bitLen() int { return len(w.buf)*8 + w.nbits }

// appendWriter replays every bit of o into w, preserving order across the
// byte boundary w may sit on.
func (w *bitWriter) appendWriter(o *bitWriter) {
	for _, b := range o.buf {
		w.writeBits(uint32(b), 8)
	}
	if o.nbits > 0 {
		w.writeBits(uint32(o.cur), o.nbits)
	}
}

// lzxToken is one emitted literal or match, with its match distance already
// resolved to a position slot and footer bits.
type lzxToken struct {
	mainSym    uint16
	lenSym     int16 // length-tree symbol, -1 when the header encodes the length
	footer     uint32
	footerBits byte
}

type lzxEncoder struct {
	windowSize    uint32
	resetInterval uint64
	slots         int
	maxDist       int
}

func newLzxEncoder(windowSize uint32, resetInterval uint64) (*lzxEncoder, error) {
	slots, ok := windowPositionSlots[windowSize]
	if !ok {
		return nil, ErrWindowTooSmall
	}
	if resetInterval == 0 || resetInterval%minWindowSize != 0 {
		return nil, fmt.Errorf("reset interval %d: %w", resetInterval, ErrEncoderFailure)
	}
	return &lzxEncoder{
		windowSize:    windowSize,
		resetInterval: resetInterval,
		slots:         slots,
		maxDist:       int(windowSize) - 3,
	}, nil
}

// encode compresses src and returns the compressed stream plus the reset
// table describing it. src must be non-empty.
func (e *lzxEncoder) encode(src []byte) ([]byte, *resetTable, error) {
	bw := &bitWriter{}
	t := &resetTable{
		blockSize:          e.resetInterval,
		uncompressedLength: uint64(len(src)),
		compressed:         []uint64{0},
		uncompressed:       []uint64{0},
	}
	for start := 0; start < len(src); start += int(e.resetInterval) {
		end := start + int(e.resetInterval)
		if end > len(src) {
			end = len(src)
		}
		if err := e.encodeInterval(bw, src[start:end]); err != nil {
			return nil, nil, err
		}
		bw.align()
		t.compressed = append(t.compressed, uint64(len(bw.buf)))
		t.uncompressed = append(t.uncompressed, uint64(end))
	}
	t.compressedLength = uint64(len(bw.buf))
	return bw.buf, t, nil
}

// encodeInterval compresses one reset interval. LZ77 and Huffman state never
// crosses the interval boundary; within it, the match window and the LRU
// distances persist across blocks.
func (e *lzxEncoder) encodeInterval(bw *bitWriter, chunk []byte) error {
	lru := [lzxNumRepeats]uint32{1, 1, 1}
	head := make([]int32, encHashSize)
	for i := range head {
		head[i] = encNoCand
	}
	prev := make([]int32, len(chunk))

	for blockStart := 0; blockStart < len(chunk); blockStart += lzxMaxBlockSize {
		blockEnd := blockStart + lzxMaxBlockSize
		if blockEnd > len(chunk) {
			blockEnd = len(chunk)
		}
		size := blockEnd - blockStart

		lruBefore := lru
		tokens, mainFreq, lenFreq := e.tokenizeBlock(chunk, blockStart, blockEnd, head, prev, &lru)

		scratch := &bitWriter{}
		if err := e.writeVerbatimBlock(scratch, size, tokens, mainFreq, lenFreq); err != nil {
			return err
		}

		// A raw block costs the header, up to 7 pad bits, the three LRU
		// values and the data itself.
		rawCost := 3 + 24 + 7 + (encUncompLRU+size)*8
		if scratch.bitLen() <= rawCost {
			bw.appendWriter(scratch)
		} else {
			lru = lruBefore
			writeUncompressedBlock(bw, chunk[blockStart:blockEnd], lru)
		}
	}
	return nil
}

// tokenizeBlock runs the greedy hash-chain parse over one block, updating
// the chains and the LRU state, and tallying symbol frequencies.
func (e *lzxEncoder) tokenizeBlock(chunk []byte, blockStart, blockEnd int, head, prev []int32, lru *[lzxNumRepeats]uint32) ([]lzxToken, []uint32, []uint32) {
	mainFreq := make([]uint32, mainTreeSize(e.slots))
	lenFreq := make([]uint32, lzxLengthCodes)
	var tokens []lzxToken

	hashAt := func(p int) uint32 {
		return farm.Hash32(chunk[p:p+lzxMinMatch]) & (encHashSize - 1)
	}
	insert := func(p int) {
		if p+lzxMinMatch <= len(chunk) {
			h := hashAt(p)
			prev[p] = head[h]
			head[h] = int32(p)
		}
	}

	pos := blockStart
	for pos < blockEnd {
		bestLen, bestDist := 0, 0
		limit := lzxMaxMatch
		if limit > blockEnd-pos {
			limit = blockEnd - pos
		}
		if limit >= lzxMinMatch && pos+lzxMinMatch <= len(chunk) {
			cand := head[hashAt(pos)]
			for tries := 0; cand != encNoCand && tries < encMaxChain; tries++ {
				dist := pos - int(cand)
				if dist > e.maxDist {
					break
				}
				l := matchLength(chunk, int(cand), pos, limit)
				if l > bestLen {
					bestLen, bestDist = l, dist
					if l == limit {
						break
					}
				}
				cand = prev[cand]
			}
		}

		if bestLen >= lzxMinMatch {
			tok := e.matchToken(bestLen, uint32(bestDist), lru)
			mainFreq[tok.mainSym]++
			if tok.lenSym >= 0 {
				lenFreq[tok.lenSym]++
			}
			tokens = append(tokens, tok)
			for i := 0; i < bestLen; i++ {
				insert(pos + i)
			}
			pos += bestLen
		} else {
			b := chunk[pos]
			tokens = append(tokens, lzxToken{mainSym: uint16(b), lenSym: -1})
			mainFreq[b]++
			insert(pos)
			pos++
		}
	}
	return tokens, mainFreq, lenFreq
}

func matchLength(b []byte, cand, pos, limit int) int {
	n := 0
	for n < limit && b[cand+n] == b[pos+n] {
		n++
	}
	return n
}

// matchToken resolves a (length, distance) pair to its main-tree symbol,
// optional length-tree symbol and footer bits, mirroring the decoder's LRU
// updates. Only repeat slot 0 is used; its decode-side move-to-front is a
// no-op, so the LRU state stays in lockstep.
func (e *lzxEncoder) matchToken(length int, dist uint32, lru *[lzxNumRepeats]uint32) lzxToken {
	header := length - 2
	lenSym := int16(-1)
	if header > 7 {
		lenSym = int16(length - 9)
		header = 7
	}

	var slot int
	var footer uint32
	var fb byte
	if dist == lru[0] {
		slot = 0
	} else {
		formatted := dist + 2
		slot = sort.Search(e.slots, func(i int) bool { return positionBase[i] > formatted }) - 1
		fb = footerBits[slot]
		footer = formatted - positionBase[slot]
		lru[2] = lru[1]
		lru[1] = lru[0]
		lru[0] = dist
	}

	return lzxToken{
		mainSym:    uint16(lzxNumChars + slot<<3 + header),
		lenSym:     lenSym,
		footer:     footer,
		footerBits: fb,
	}
}

func (e *lzxEncoder) writeVerbatimBlock(bw *bitWriter, size int, tokens []lzxToken, mainFreq, lenFreq []uint32) error {
	bw.writeBits(lzxBlockVerbatim, 3)
	bw.writeBits(uint32(size)>>8, 16)
	bw.writeBits(uint32(size)&0xff, 8)

	mainLens, err := buildCodeLengths(mainFreq, lzxWriteCodeLen)
	if err != nil {
		return err
	}
	lenLens, err := buildCodeLengths(lenFreq, lzxWriteCodeLen)
	if err != nil {
		return err
	}
	if err := writeTreeLengths(bw, mainLens); err != nil {
		return err
	}
	if err := writeTreeLengths(bw, lenLens); err != nil {
		return err
	}

	mainTree, err := newHuffTable(mainLens)
	if err != nil {
		return err
	}
	lenTree, err := newHuffTable(lenLens)
	if err != nil {
		return err
	}
	mainCodes := mainTree.codes()
	lenCodes := lenTree.codes()

	for _, tok := range tokens {
		bw.writeBits(mainCodes[tok.mainSym], int(mainLens[tok.mainSym]))
		if tok.lenSym >= 0 {
			bw.writeBits(lenCodes[tok.lenSym], int(lenLens[tok.lenSym]))
		}
		if tok.footerBits > 0 {
			bw.writeBits(tok.footer, int(tok.footerBits))
		}
	}
	return nil
}

func writeUncompressedBlock(bw *bitWriter, data []byte, lru [lzxNumRepeats]uint32) {
	bw.writeBits(lzxBlockUncompressed, 3)
	bw.writeBits(uint32(len(data))>>8, 16)
	bw.writeBits(uint32(len(data))&0xff, 8)
	bw.align()
	var raw [encUncompLRU]byte
	for i, v := range lru {
		binary.LittleEndian.PutUint32(raw[i*4:], v)
	}
	bw.writeBytes(raw[:])
	bw.writeBytes(data)
}

// pretreeSym is one element of the serialized length protocol: a pre-tree
// symbol plus its extra run bits.
type pretreeSym struct {
	sym   byte
	extra uint32
	bits  byte
}

// writeTreeLengths serializes a code-length vector: run-compress it into
// pre-tree symbols, derive the pre-tree from their frequencies, store the
// pre-tree as raw 4-bit lengths, then emit the symbol stream.
func writeTreeLengths(bw *bitWriter, lens []byte) error {
	var seq []pretreeSym
	emit := func(s byte, extra uint32, bits byte) {
		seq = append(seq, pretreeSym{sym: s, extra: extra, bits: bits})
	}

	last := -1
	for i := 0; i < len(lens); {
		v := lens[i]
		run := 1
		for i+run < len(lens) && lens[i+run] == v {
			run++
		}
		i += run

		if v == 0 {
			for run >= 20 {
				n := run
				if n > 51 {
					n = 51
				}
				emit(18, uint32(n-20), 5)
				run -= n
			}
			if run >= 4 {
				emit(17, uint32(run-4), 4)
				run = 0
			}
			for ; run > 0; run-- {
				emit(0, 0, 0)
			}
			last = 0
			continue
		}

		if int(v) != last {
			emit(v, 0, 0)
			last = int(v)
			run--
		}
		for run >= 4 {
			n := run
			if n > 19 {
				n = 19
			}
			emit(16, uint32(n-4), 4)
			run -= n
		}
		for ; run > 0; run-- {
			emit(v, 0, 0)
		}
	}

	pfreq := make([]uint32, lzxPretreeSize)
	for _, s := range seq {
		pfreq[s.sym]++
	}
	plens, err := buildCodeLengths(pfreq, lzxWriteCodeLen)
	if err != nil {
		return err
	}
	for _, l := range plens {
		bw.writeBits(uint32(l), lzxPretreeLenBits)
	}
	pretree, err := newHuffTable(plens)
	if err != nil {
		return err
	}
	pcodes := pretree.codes()
	for _, s := range seq {
		bw.writeBits(pcodes[s.sym], int(plens[s.sym]))
		if s.bits > 0 {
			bw.writeBits(s.extra, int(s.bits))
		}
	}
	return nil
}
