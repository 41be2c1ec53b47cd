package chm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHuffmanIncompleteLengthsRejected(t *testing.T) {
	tests := []struct {
		name string
		lens []byte
	}{
		{"three length-1 codes", []byte{1, 1, 1}},
		{"single length-1 code", []byte{1}},
		{"oversubscribed", []byte{1, 1, 2, 2, 2}},
		{"undersubscribed", []byte{2, 2, 2}},
		{"length beyond bound", []byte{17, 17}},
	}
	for _, test := range tests {
		_, err := newHuffTable(test.lens)
		assert.ErrorIs(t, err, ErrInvalidHuffman, test.name)
	}
}

func TestHuffmanAbsentTree(t *testing.T) {
	tbl, err := newHuffTable([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	assert.True(t, tbl.empty())

	_, err = tbl.decodeSym(newBitReader([]byte{0xFF}))
	assert.ErrorIs(t, err, ErrInvalidHuffmanCode)
}

func TestHuffmanCanonicalAssignment(t *testing.T) {
	// lens {A:2, B:1, C:3, D:3}: canonical order B, A, C, D.
	tbl, err := newHuffTable([]byte{2, 1, 3, 3})
	require.NoError(t, err)

	codes := tbl.codes()
	assert.Equal(t, uint32(0), codes[1])   // B = 0
	assert.Equal(t, uint32(0b10), codes[0]) // A = 10
	assert.Equal(t, uint32(0b110), codes[2])
	assert.Equal(t, uint32(0b111), codes[3])
}

func TestHuffmanDecodeMatchesCodes(t *testing.T) {
	lens := []byte{2, 2, 3, 3, 3, 3}
	tbl, err := newHuffTable(lens)
	require.NoError(t, err)
	codes := tbl.codes()

	syms := []uint16{4, 0, 5, 2, 1, 5, 3, 3, 0}
	w := &bitWriter{}
	for _, s := range syms {
		w.writeBits(codes[s], int(lens[s]))
	}
	w.align()

	r := newBitReader(w.buf)
	for i, want := range syms {
		got, err := tbl.decodeSym(r)
		require.NoError(t, err, "symbol %d", i)
		assert.Equal(t, want, got)
	}
}

func TestHuffmanDecodeShortStreamFails(t *testing.T) {
	// Only symbol 0 at length 1 plus symbol 1 at length 1: complete.
	tbl, err := newHuffTable([]byte{1, 1, 0})
	require.NoError(t, err)

	// A stream shorter than any code.
	_, err = tbl.decodeSym(newBitReader(nil))
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestBuildCodeLengthsComplete(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		freqs := make([]uint32, 300)
		active := 0
		for i := range freqs {
			if rng.Intn(3) == 0 {
				freqs[i] = uint32(rng.Intn(10000)) + 1
				active++
			}
		}
		lens, err := buildCodeLengths(freqs, lzxWriteCodeLen)
		require.NoError(t, err)

		if active == 0 {
			assert.True(t, allZero(lens))
			continue
		}
		for sym, f := range freqs {
			if f > 0 {
				assert.Greater(t, lens[sym], byte(0), "active symbol %d has no code", sym)
			}
			assert.LessOrEqual(t, lens[sym], byte(lzxWriteCodeLen))
		}
		_, err = newHuffTable(lens)
		assert.NoError(t, err, "trial %d produced an incomplete tree", trial)
	}
}

func TestBuildCodeLengthsSingleSymbol(t *testing.T) {
	freqs := make([]uint32, 20)
	freqs[7] = 42
	lens, err := buildCodeLengths(freqs, lzxWriteCodeLen)
	require.NoError(t, err)

	assert.Equal(t, byte(1), lens[7])
	assert.Equal(t, byte(1), lens[0]) // padding symbol completes the tree
	_, err = newHuffTable(lens)
	assert.NoError(t, err)
}

func TestBuildCodeLengthsSkewedFrequencies(t *testing.T) {
	// A geometric distribution forces depth beyond the limit before repair.
	freqs := make([]uint32, 24)
	f := uint32(1)
	for i := range freqs {
		freqs[i] = f
		if f < 1<<30 {
			f *= 2
		}
	}
	lens, err := buildCodeLengths(freqs, lzxWriteCodeLen)
	require.NoError(t, err)
	for _, l := range lens {
		assert.LessOrEqual(t, l, byte(lzxWriteCodeLen))
	}
	_, err = newHuffTable(lens)
	assert.NoError(t, err)
}

// Round-trip property: encode a symbol stream with the derived codes, decode
// it back.
func TestHuffmanEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	freqs := make([]uint32, 64)
	var stream []uint16
	for i := 0; i < 2000; i++ {
		s := uint16(rng.Intn(40))
		stream = append(stream, s)
		freqs[s]++
	}
	lens, err := buildCodeLengths(freqs, lzxWriteCodeLen)
	require.NoError(t, err)
	tbl, err := newHuffTable(lens)
	require.NoError(t, err)
	codes := tbl.codes()

	w := &bitWriter{}
	for _, s := range stream {
		w.writeBits(codes[s], int(lens[s]))
	}
	w.align()

	r := newBitReader(w.buf)
	for i, want := range stream {
		got, err := tbl.decodeSym(r)
		require.NoError(t, err, "symbol %d", i)
		require.Equal(t, want, got, "symbol %d", i)
	}
}
