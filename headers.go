// headers.go
//
// Parse and serialize the three fixed-layout records at the front of every
// archive: ITSF (file header), ITSP (directory header) and LZXC
// (compression-control header). Each parser consumes exactly the declared
// record length from a byte-aligned reader, verifies the ASCII signature and
// version, and range-checks numeric fields; each serializer emits
// little-endian fields padded with zeros to the record length.

package chm

import "encoding/binary"

// noChunk marks an absent chunk index (no PMGI root, empty directory).
const noChunk = 0xFFFFFFFF

// ITSFHeader is the 96-byte record opening the file. It locates the
// directory region; everything else in the archive is reached through the
// directory.
type ITSFHeader struct {
	Version         uint32
	HeaderLength    uint32
	Timestamp       uint32 // seconds; written verbatim from Options
	LanguageID      uint32
	DirectoryOffset uint32
	DirectoryLength uint32
	Reserved        [5]uint32
}

// ITSPHeader is the 84-byte record describing the directory B-tree.
type ITSPHeader struct {
	Version      uint32
	HeaderLength uint32
	ChunkSize    uint32
	Density      uint32
	Depth        uint32
	RootChunk    uint32 // PMGI root index, or noChunk
	FirstPMGL    uint32
	LastPMGL     uint32
	ChunkCount   uint32
	LanguageID   uint32
}

// LZXCHeader is the 40-byte record describing the compressed content
// section. A copy lives at its fixed offset after ITSP; the authoritative
// copy is the ControlData directory entry when one exists.
type LZXCHeader struct {
	Version       uint32
	ResetInterval uint32 // uncompressed bytes between decoder resets
	WindowSize    uint32
	CacheSize     uint32
	Reserved      [5]uint32
}

func readSignature(r *bitReader, want string) error {
	got, err := r.readBytes(4)
	if err != nil {
		return ErrHeaderTruncated
	}
	if string(got) != want {
		return &BadSignatureError{Expected: want, Got: string(got)}
	}
	return nil
}

// parseITSF consumes exactly itsfHeaderSize bytes.
//
// A zero directory length is legal and means an empty archive; a non-zero
// directory must start past the ITSF record.
func parseITSF(r *bitReader) (*ITSFHeader, error) {
	start := r.bytePos()
	if err := readSignature(r, sigITSF); err != nil {
		return nil, err
	}
	var h ITSFHeader
	fields := []*uint32{
		&h.Version, &h.HeaderLength, &h.Timestamp, &h.LanguageID,
		&h.DirectoryOffset, &h.DirectoryLength,
		&h.Reserved[0], &h.Reserved[1], &h.Reserved[2], &h.Reserved[3], &h.Reserved[4],
	}
	for _, f := range fields {
		v, err := r.readU32le()
		if err != nil {
			return nil, ErrHeaderTruncated
		}
		*f = v
	}
	if h.Version != itsfVersion {
		return nil, &UnsupportedVersionError{Signature: sigITSF, Expected: itsfVersion, Got: h.Version}
	}
	if h.HeaderLength < itsfHeaderSize {
		return nil, &InvalidHeaderFieldError{Field: "itsf.header_length", Value: uint64(h.HeaderLength)}
	}
	if h.DirectoryLength > 0 && h.DirectoryOffset <= itsfHeaderSize {
		return nil, &InvalidHeaderFieldError{Field: "itsf.directory_offset", Value: uint64(h.DirectoryOffset)}
	}
	if err := skipPadding(r, start, itsfHeaderSize); err != nil {
		return nil, err
	}
	return &h, nil
}

func parseITSP(r *bitReader) (*ITSPHeader, error) {
	start := r.bytePos()
	if err := readSignature(r, sigITSP); err != nil {
		return nil, err
	}
	var h ITSPHeader
	fields := []*uint32{
		&h.Version, &h.HeaderLength, &h.ChunkSize, &h.Density, &h.Depth,
		&h.RootChunk, &h.FirstPMGL, &h.LastPMGL, &h.ChunkCount, &h.LanguageID,
	}
	for _, f := range fields {
		v, err := r.readU32le()
		if err != nil {
			return nil, ErrHeaderTruncated
		}
		*f = v
	}
	if h.Version != itspVersion {
		return nil, &UnsupportedVersionError{Signature: sigITSP, Expected: itspVersion, Got: h.Version}
	}
	// Chunk size must be a positive power-of-two multiple of 8.
	if h.ChunkSize < 8 || h.ChunkSize&(h.ChunkSize-1) != 0 {
		return nil, &InvalidHeaderFieldError{Field: "itsp.chunk_size", Value: uint64(h.ChunkSize)}
	}
	if h.FirstPMGL > h.LastPMGL {
		return nil, &InvalidHeaderFieldError{Field: "itsp.first_pmgl", Value: uint64(h.FirstPMGL)}
	}
	if err := skipPadding(r, start, itspHeaderSize); err != nil {
		return nil, err
	}
	return &h, nil
}

func parseLZXC(r *bitReader) (*LZXCHeader, error) {
	start := r.bytePos()
	if err := readSignature(r, sigLZXC); err != nil {
		return nil, err
	}
	var h LZXCHeader
	fields := []*uint32{
		&h.Version, &h.ResetInterval, &h.WindowSize, &h.CacheSize,
		&h.Reserved[0], &h.Reserved[1], &h.Reserved[2], &h.Reserved[3], &h.Reserved[4],
	}
	for _, f := range fields {
		v, err := r.readU32le()
		if err != nil {
			return nil, ErrHeaderTruncated
		}
		*f = v
	}
	if h.Version != lzxcVersion {
		return nil, &UnsupportedVersionError{Signature: sigLZXC, Expected: lzxcVersion, Got: h.Version}
	}
	if !validWindowSize(h.WindowSize) {
		return nil, &InvalidHeaderFieldError{Field: "lzxc.window_size", Value: uint64(h.WindowSize)}
	}
	if h.ResetInterval == 0 || h.ResetInterval%minWindowSize != 0 {
		return nil, &InvalidHeaderFieldError{Field: "lzxc.reset_interval", Value: uint64(h.ResetInterval)}
	}
	if err := skipPadding(r, start, lzxcHeaderSize); err != nil {
		return nil, err
	}
	return &h, nil
}

// skipPadding advances the reader to start+size, covering the zero padding
// after the last declared field of a fixed record.
func skipPadding(r *bitReader, start, size int) error {
	pad := start + size - r.bytePos()
	if pad < 0 {
		return ErrHeaderTruncated
	}
	if _, err := r.readBytes(pad); err != nil {
		return ErrHeaderTruncated
	}
	return nil
}

func appendU32le(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendU64le(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func appendPadding(dst []byte, start, size int) []byte {
	for len(dst)-start < size {
		dst = append(dst, 0)
	}
	return dst
}

func appendITSF(dst []byte, h *ITSFHeader) []byte {
	start := len(dst)
	dst = append(dst, sigITSF...)
	for _, v := range []uint32{
		h.Version, h.HeaderLength, h.Timestamp, h.LanguageID,
		h.DirectoryOffset, h.DirectoryLength,
		h.Reserved[0], h.Reserved[1], h.Reserved[2], h.Reserved[3], h.Reserved[4],
	} {
		dst = appendU32le(dst, v)
	}
	return appendPadding(dst, start, itsfHeaderSize)
}

func appendITSP(dst []byte, h *ITSPHeader) []byte {
	start := len(dst)
	dst = append(dst, sigITSP...)
	for _, v := range []uint32{
		h.Version, h.HeaderLength, h.ChunkSize, h.Density, h.Depth,
		h.RootChunk, h.FirstPMGL, h.LastPMGL, h.ChunkCount, h.LanguageID,
	} {
		dst = appendU32le(dst, v)
	}
	return appendPadding(dst, start, itspHeaderSize)
}

func appendLZXC(dst []byte, h *LZXCHeader) []byte {
	start := len(dst)
	dst = append(dst, sigLZXC...)
	for _, v := range []uint32{
		h.Version, h.ResetInterval, h.WindowSize, h.CacheSize,
		h.Reserved[0], h.Reserved[1], h.Reserved[2], h.Reserved[3], h.Reserved[4],
	} {
		dst = appendU32le(dst, v)
	}
	return appendPadding(dst, start, lzxcHeaderSize)
}
