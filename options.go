// options.go
//
// All configuration is explicit: an Options value passed into Open and
// Pack. The codec reads no ambient state: no environment, no clock, no
// global registry.

package chm

// Options configures opening and packing. The zero value is valid and means:
// 64 KiB window, 32 KiB reset interval, 4 KiB directory chunks, compression
// on, lenient parsing, no caches.
type Options struct {
	// WindowSize is the LZX sliding-window size used when packing. Must be
	// one of 0x8000, 0x10000, 0x20000, 0x40000, 0x80000, 0x100000,
	// 0x200000. Zero selects 0x10000.
	WindowSize uint32

	// ResetInterval is the uncompressed byte span between LZX state resets
	// when packing: a positive multiple of 0x8000. Zero selects 0x8000.
	// Smaller intervals cost ratio and buy random-access granularity.
	ResetInterval uint32

	// ChunkSize is the directory chunk size used when packing: a
	// power-of-two multiple of 8. Zero selects 4096.
	ChunkSize uint32

	// DisableCompression stores every packed entry in the uncompressed
	// section.
	DisableCompression bool

	// Strict makes the directory parser verify that names within each leaf
	// chunk ascend by raw byte sequence.
	Strict bool

	// Tolerant lets Open succeed without a usable reset table; extraction
	// then decodes linearly from the start of the compressed section for
	// each request.
	Tolerant bool

	// LegacyDirectory parses fixed-width directory entries (u8 name
	// length, u8 compressed flag, u64 offset, u32 length) instead of the
	// canonical ENCINT records. Read side only; the writer always emits
	// canonical records.
	LegacyDirectory bool

	// IntervalCacheSize, when positive, caches that many decoded reset
	// intervals per Archive.
	IntervalCacheSize int

	// FileCacheSize, when positive, caches that many whole extracted files
	// per Archive.
	FileCacheSize int

	// Timestamp and LanguageID are written verbatim into the ITSF header
	// when packing.
	Timestamp  uint32
	LanguageID uint32
}

// withDefaults fills zero fields and validates the pack parameters.
func (o Options) withDefaults() (Options, error) {
	if o.WindowSize == 0 {
		o.WindowSize = defaultWindowSize
	}
	if o.ResetInterval == 0 {
		o.ResetInterval = defaultResetInterval
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = defaultChunkSize
	}
	if !validWindowSize(o.WindowSize) {
		return o, ErrWindowTooSmall
	}
	if o.ResetInterval%minWindowSize != 0 {
		return o, &InvalidHeaderFieldError{Field: "options.reset_interval", Value: uint64(o.ResetInterval)}
	}
	if o.ChunkSize < 8 || o.ChunkSize&(o.ChunkSize-1) != 0 {
		return o, &InvalidHeaderFieldError{Field: "options.chunk_size", Value: uint64(o.ChunkSize)}
	}
	return o, nil
}
