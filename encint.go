// encint.go
//
// ENCINT codec: the big-endian base-128 varint used inside directory chunks.
// The continuation bit is the MSB of each byte. Note the asymmetry with the
// rest of the format, which is little-endian; it is part of the format.

package chm

import "fmt"

// maxEncintBytes bounds an ENCINT at ten bytes, enough for any uint64.
const maxEncintBytes = 10

// readEncint consumes one ENCINT from a byte-aligned reader.
func readEncint(r *bitReader) (uint64, error) {
	var v uint64
	for i := 0; i < maxEncintBytes; i++ {
		b, err := r.readU8()
		if err != nil {
			return 0, err
		}
		if v > (1<<57)-1 {
			return 0, fmt.Errorf("encint overflows 64 bits: %w", ErrDirectoryCorrupt)
		}
		v = v<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("encint longer than %d bytes: %w", maxEncintBytes, ErrDirectoryCorrupt)
}

// appendEncint appends the ENCINT form of v to dst.
func appendEncint(dst []byte, v uint64) []byte {
	var tmp [maxEncintBytes]byte
	i := len(tmp)
	i--
	tmp[i] = byte(v & 0x7f)
	v >>= 7
	for v > 0 {
		i--
		tmp[i] = byte(v&0x7f) | 0x80
		v >>= 7
	}
	return append(dst, tmp[i:]...)
}

// encintLen returns the encoded byte count of v.
func encintLen(v uint64) int {
	n := 1
	for v >>= 7; v > 0; v >>= 7 {
		n++
	}
	return n
}
