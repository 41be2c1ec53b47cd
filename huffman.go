// huffman.go
//
// Canonical Huffman coding over code-length vectors. The decode side builds
// per-length first-code tables from a length vector and resolves symbols one
// bit at a time, bounded at 16 bits. The encode side assigns the identical
// canonical codes from the same vector, and constructs length-limited
// vectors from symbol frequencies for the LZX encoder.
//
// Canonical ordering: symbols sort by code length ascending, then by symbol
// index ascending; codes start at zero and left-shift by the length delta on
// each length change. A vector is valid only when it describes a complete
// tree (the Kraft sum over present symbols equals 2^maxlen); an all-zero
// vector describes the absent tree, which decodes nothing.

package chm

import "container/heap"

// huffTable is a decode table for one canonical Huffman alphabet.
// Immutable after newHuffTable returns.
type huffTable struct {
	maxLen int
	count  [lzxMaxCodeLen + 1]uint32 // codes per length
	first  [lzxMaxCodeLen + 1]uint32 // first code value per length
	offset [lzxMaxCodeLen + 1]int32  // index into syms per length
	syms   []uint16                  // symbols sorted by (length, symbol)
	lens   []byte
}

// newHuffTable validates lens and builds the decode table. An all-zero
// vector yields the absent tree: a non-nil table whose decodeSym always
// fails. Incomplete or over-subscribed vectors fail with ErrInvalidHuffman.
func newHuffTable(lens []byte) (*huffTable, error) {
	t := &huffTable{lens: lens}
	for _, l := range lens {
		if int(l) > lzxMaxCodeLen {
			return nil, ErrInvalidHuffman
		}
		if l == 0 {
			continue
		}
		t.count[l]++
		if int(l) > t.maxLen {
			t.maxLen = int(l)
		}
	}
	if t.maxLen == 0 {
		return t, nil
	}

	// Complete-tree check: present symbols must tile the code space.
	var kraft uint64
	for l := 1; l <= t.maxLen; l++ {
		kraft += uint64(t.count[l]) << (t.maxLen - l)
	}
	if kraft != 1<<t.maxLen {
		return nil, ErrInvalidHuffman
	}

	var total int32
	for l := 1; l <= t.maxLen; l++ {
		t.first[l] = (t.first[l-1] + t.count[l-1]) << 1
		t.offset[l] = total
		total += int32(t.count[l])
	}

	t.syms = make([]uint16, total)
	var fill [lzxMaxCodeLen + 1]int32
	for sym, l := range lens {
		if l == 0 {
			continue
		}
		t.syms[t.offset[l]+fill[l]] = uint16(sym)
		fill[l]++
	}
	return t, nil
}

// empty reports whether the table describes the absent tree.
func (t *huffTable) empty() bool { return t.maxLen == 0 }

// decodeSym reads bits MSB-first until they form a code assigned to some
// symbol. Codes longer than the table's maximum (bounded at 16) fail with
// ErrInvalidHuffmanCode, as does consulting the absent tree.
func (t *huffTable) decodeSym(r *bitReader) (uint16, error) {
	if t.maxLen == 0 {
		return 0, ErrInvalidHuffmanCode
	}
	var code uint32
	for l := 1; l <= t.maxLen; l++ {
		bit, err := r.readBits(1)
		if err != nil {
			return 0, err
		}
		code = code<<1 | bit
		if t.count[l] > 0 && code >= t.first[l] && code-t.first[l] < t.count[l] {
			return t.syms[t.offset[l]+int32(code-t.first[l])], nil
		}
	}
	return 0, ErrInvalidHuffmanCode
}

// codes returns the canonical code value for every symbol, parallel to the
// length vector the table was built from. Symbols with length zero get code
// zero; callers must never emit them.
func (t *huffTable) codes() []uint32 {
	out := make([]uint32, len(t.lens))
	next := t.first
	for sym, l := range t.lens {
		if l == 0 {
			continue
		}
		out[sym] = next[l]
		next[l]++
	}
	return out
}

// huffNode is one tree node during frequency-based construction.
type huffNode struct {
	freq  uint64
	order int // creation order; deterministic tiebreak
	left  int32
	right int32
	sym   int32 // -1 for internal nodes
}

type huffHeap struct {
	nodes *[]huffNode
	idx   []int32
}

func (h *huffHeap) Len() int { return len(h.idx) }
func (h *huffHeap) Less(i, j int) bool {
	a, b := (*h.nodes)[h.idx[i]], (*h.nodes)[h.idx[j]]
	if a.freq != b.freq {
		return a.freq < b.freq
	}
	return a.order < b.order
}
func (h *huffHeap) Swap(i, j int)      { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *huffHeap) Push(x interface{}) { h.idx = append(h.idx, x.(int32)) }
func (h *huffHeap) Pop() interface{} {
	n := len(h.idx) - 1
	v := h.idx[n]
	h.idx = h.idx[:n]
	return v
}

// buildCodeLengths derives a complete, length-limited canonical code-length
// vector from symbol frequencies. Symbols with zero frequency get length
// zero. A single-symbol alphabet is padded with one extra length-1 symbol,
// since a lone length-1 code is not a complete tree.
func buildCodeLengths(freqs []uint32, maxLen int) ([]byte, error) {
	lens := make([]byte, len(freqs))

	active := 0
	last := -1
	for sym, f := range freqs {
		if f > 0 {
			active++
			last = sym
		}
	}
	switch active {
	case 0:
		return lens, nil
	case 1:
		lens[last] = 1
		if last == 0 {
			lens[1] = 1
		} else {
			lens[0] = 1
		}
		return lens, nil
	}

	// Standard Huffman construction over a min-heap of (freq, order).
	nodes := make([]huffNode, 0, 2*active)
	h := &huffHeap{nodes: &nodes}
	for sym, f := range freqs {
		if f == 0 {
			continue
		}
		nodes = append(nodes, huffNode{freq: uint64(f), order: len(nodes), left: -1, right: -1, sym: int32(sym)})
		h.idx = append(h.idx, int32(len(nodes)-1))
	}
	heap.Init(h)
	for h.Len() > 1 {
		a := heap.Pop(h).(int32)
		b := heap.Pop(h).(int32)
		nodes = append(nodes, huffNode{
			freq:  nodes[a].freq + nodes[b].freq,
			order: len(nodes),
			left:  a,
			right: b,
			sym:   -1,
		})
		heap.Push(h, int32(len(nodes)-1))
	}
	root := h.idx[0]

	// Depth-first walk assigning depths, clamped to maxLen.
	type frame struct {
		node  int32
		depth int
	}
	stack := []frame{{root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := nodes[f.node]
		if n.sym >= 0 {
			d := f.depth
			if d < 1 {
				d = 1
			}
			if d > maxLen {
				d = maxLen
			}
			lens[n.sym] = byte(d)
			continue
		}
		stack = append(stack, frame{n.left, f.depth + 1}, frame{n.right, f.depth + 1})
	}

	return repairKraft(lens, freqs, maxLen)
}

// repairKraft adjusts clamped lengths until the Kraft sum is exactly one,
// keeping the vector complete. Lengthening targets the rarest symbols;
// shortening targets the deepest.
func repairKraft(lens []byte, freqs []uint32, maxLen int) ([]byte, error) {
	unit := uint64(1) << maxLen
	var kraft uint64
	for _, l := range lens {
		if l > 0 {
			kraft += unit >> l
		}
	}

	for kraft > unit {
		best := -1
		for sym, l := range lens {
			if l == 0 || int(l) >= maxLen {
				continue
			}
			if best < 0 || freqs[sym] < freqs[best] {
				best = sym
			}
		}
		if best < 0 {
			return nil, ErrEncoderFailure
		}
		lens[best]++
		kraft -= unit >> lens[best]
	}

	for kraft < unit {
		best := -1
		for sym, l := range lens {
			if l <= 1 {
				continue
			}
			if best < 0 || l > lens[best] || (l == lens[best] && freqs[sym] > freqs[best]) {
				best = sym
			}
		}
		if best < 0 || kraft+(unit>>lens[best]) > unit {
			return nil, ErrEncoderFailure
		}
		kraft += unit >> lens[best]
		lens[best]--
	}
	return lens, nil
}
