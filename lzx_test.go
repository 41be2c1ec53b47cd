package chm

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeDecode runs src through the encoder and decodes every interval back
// via the reset table, returning the reassembled plaintext.
func encodeDecode(t *testing.T, src []byte, windowSize uint32, resetInterval uint64) []byte {
	t.Helper()

	enc, err := newLzxEncoder(windowSize, resetInterval)
	require.NoError(t, err)
	cdata, rt, err := enc.encode(src)
	require.NoError(t, err)

	require.Equal(t, uint64(len(src)), rt.uncompressedLength)
	require.Equal(t, uint64(len(cdata)), rt.compressedLength)
	wantIntervals := (len(src) + int(resetInterval) - 1) / int(resetInterval)
	require.Equal(t, wantIntervals, rt.intervals())

	dec, err := newLzxDecoder(windowSize, resetInterval)
	require.NoError(t, err)

	var out []byte
	for i := 0; i < rt.intervals(); i++ {
		cs, ce, us, ue := rt.span(i)
		br := newBitReader(cdata[cs:ce])
		plain, err := dec.decodeInterval(context.Background(), br, int(ue-us))
		require.NoError(t, err, "interval %d", i)
		out = append(out, plain...)
	}
	return out
}

func TestLzxRoundTripRepetitive(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 3000)
	got := encodeDecode(t, src, 0x10000, 0x8000)
	assert.True(t, bytes.Equal(src, got), "repetitive data corrupted in transit")
}

func TestLzxRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	src := make([]byte, 3*0x8000+123)
	rng.Read(src)

	got := encodeDecode(t, src, 0x8000, 0x8000)
	assert.True(t, bytes.Equal(src, got), "random data corrupted in transit")
}

func TestLzxRoundTripTiny(t *testing.T) {
	for _, src := range [][]byte{
		[]byte{0x00},
		[]byte("AAAAAAAAAA"),
		[]byte("abc"),
		bytes.Repeat([]byte{0xE8}, 300), // E8 bytes must survive untranslated
	} {
		got := encodeDecode(t, src, 0x8000, 0x8000)
		assert.Equal(t, src, got)
	}
}

func TestLzxRoundTripMixedContent(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	var src []byte
	for len(src) < 5*0x8000 {
		switch rng.Intn(3) {
		case 0: // compressible run
			src = append(src, bytes.Repeat([]byte{byte(rng.Intn(4))}, 500+rng.Intn(2000))...)
		case 1: // structured text
			src = append(src, []byte("<p class=\"body\">lorem ipsum dolor sit amet</p>\n")...)
		default: // noise
			chunk := make([]byte, 200+rng.Intn(800))
			rng.Read(chunk)
			src = append(src, chunk...)
		}
	}
	got := encodeDecode(t, src, 0x10000, 0x10000)
	assert.True(t, bytes.Equal(src, got))
}

func TestLzxRoundTripLargeWindow(t *testing.T) {
	src := bytes.Repeat([]byte("0123456789abcdef"), 0x8000) // 512 KiB
	got := encodeDecode(t, src, 0x80000, 0x20000)
	assert.True(t, bytes.Equal(src, got))
}

func TestTreeLengthsProtocolRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	for trial := 0; trial < 30; trial++ {
		freqs := make([]uint32, mainTreeSize(30))
		for i := range freqs {
			if rng.Intn(4) == 0 {
				freqs[i] = uint32(rng.Intn(500)) + 1
			}
		}
		want, err := buildCodeLengths(freqs, lzxWriteCodeLen)
		require.NoError(t, err)

		bw := &bitWriter{}
		require.NoError(t, writeTreeLengths(bw, want))
		bw.align()

		got := make([]byte, len(want))
		require.NoError(t, readLengths(newBitReader(bw.buf), got))
		assert.Equal(t, want, got, "trial %d", trial)
	}
}

func TestTreeLengthsAllZero(t *testing.T) {
	want := make([]byte, lzxLengthCodes)
	bw := &bitWriter{}
	require.NoError(t, writeTreeLengths(bw, want))
	bw.align()

	got := make([]byte, lzxLengthCodes)
	require.NoError(t, readLengths(newBitReader(bw.buf), got))
	assert.True(t, allZero(got))
}

func TestDecodeUncompressedBlock(t *testing.T) {
	data := []byte("raw block payload, stored byte for byte")
	bw := &bitWriter{}
	bw.writeBits(0x7, 3) // offset the block header off the byte boundary
	writeUncompressedBlock(bw, data, [lzxNumRepeats]uint32{1, 1, 1})
	bw.align()

	dec, err := newLzxDecoder(0x8000, 0x8000)
	require.NoError(t, err)
	dec.resetState()

	br := newBitReader(bw.buf)
	require.NoError(t, br.skipBits(3))
	out, err := dec.decodeBlock(br, nil, len(data))
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

// A hand-built aligned-offset block: twenty 'x' literals, then a match at
// distance 16 whose low offset bits travel through the aligned tree.
func TestDecodeAlignedOffsetBlock(t *testing.T) {
	const slots = 30 // 32 KiB window
	mainLens := make([]byte, mainTreeSize(slots))
	matchSym := lzxNumChars + 8<<3 + 3 // slot 8 (base 16, 3 footer bits), length 5
	mainLens['x'] = 1
	mainLens[matchSym] = 1

	bw := &bitWriter{}
	bw.writeBits(lzxBlockAligned, 3)
	bw.writeBits(25>>8, 16)
	bw.writeBits(25&0xff, 8)
	for i := 0; i < lzxAlignedSize; i++ {
		bw.writeBits(3, lzxAlignedLenBits) // all symbols at length 3
	}
	require.NoError(t, writeTreeLengths(bw, mainLens))
	require.NoError(t, writeTreeLengths(bw, make([]byte, lzxLengthCodes)))
	for i := 0; i < 20; i++ {
		bw.writeBits(0, 1) // literal 'x'
	}
	bw.writeBits(1, 1) // the match symbol
	// Formatted offset 18 = base 16 + aligned symbol 2; no verbatim bits
	// at exactly three footer bits.
	bw.writeBits(2, 3)
	bw.align()

	dec, err := newLzxDecoder(0x8000, 0x8000)
	require.NoError(t, err)
	out, err := dec.decodeInterval(context.Background(), newBitReader(bw.buf), 25)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{'x'}, 25), out)
}

func TestDecodeRejectsUnknownBlockType(t *testing.T) {
	bw := &bitWriter{}
	bw.writeBits(0, 3) // type 0 is not assigned
	bw.writeBits(0, 16)
	bw.writeBits(10, 8)
	bw.align()

	dec, err := newLzxDecoder(0x8000, 0x8000)
	require.NoError(t, err)
	_, err = dec.decodeInterval(context.Background(), newBitReader(bw.buf), 10)
	assert.ErrorIs(t, err, ErrUnknownBlockType)

	var be *lzxBlockError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, byte(0), be.Block.Type)
	assert.Equal(t, uint32(10), be.Block.Size)
}

func TestDecodeRejectsOversizedBlock(t *testing.T) {
	bw := &bitWriter{}
	bw.writeBits(lzxBlockVerbatim, 3)
	bw.writeBits(100>>8, 16)
	bw.writeBits(100&0xff, 8)
	bw.align()

	dec, err := newLzxDecoder(0x8000, 0x8000)
	require.NoError(t, err)
	_, err = dec.decodeInterval(context.Background(), newBitReader(bw.buf), 50)
	assert.ErrorIs(t, err, ErrOutputOverflow)
}

func TestDecodeTruncatedStream(t *testing.T) {
	enc, err := newLzxEncoder(0x8000, 0x8000)
	require.NoError(t, err)
	cdata, rt, err := enc.encode(bytes.Repeat([]byte("abcdef"), 2000))
	require.NoError(t, err)

	dec, err := newLzxDecoder(0x8000, 0x8000)
	require.NoError(t, err)
	_, _, us, ue := rt.span(0)
	_, err = dec.decodeInterval(context.Background(), newBitReader(cdata[:3]), int(ue-us))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTruncatedBlock, "short stream must surface a typed failure")
}

func TestDecodeCancellation(t *testing.T) {
	enc, err := newLzxEncoder(0x8000, 0x8000)
	require.NoError(t, err)
	src := bytes.Repeat([]byte("cancel me "), 1000)
	cdata, rt, err := enc.encode(src)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dec, err := newLzxDecoder(0x8000, 0x8000)
	require.NoError(t, err)
	_, _, us, ue := rt.span(0)
	_, err = dec.decodeInterval(ctx, newBitReader(cdata), int(ue-us))
	assert.ErrorIs(t, err, context.Canceled)
}
