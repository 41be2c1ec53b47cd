// Package chm reads and writes Microsoft Compiled HTML Help (CHM) archives.
//
// A CHM file is a single-file container holding a virtual filesystem
// (typically HTML, stylesheets and images) compressed with Microsoft's LZX
// algorithm. The package parses the three fixed-layout headers (ITSF, ITSP,
// LZXC), the PMGL/PMGI directory B-tree and the LZX reset table, and decodes
// arbitrary file spans out of the compressed section without streaming the
// whole archive. The write side packs a set of named byte buffers into a new
// archive that the read side accepts.
//
// Typical usage:
//
//	a, err := chm.OpenFile("manual.chm", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	data, err := a.Extract("/index.html")
//	// handle data…
//
// An Archive is immutable after Open. List, Stat and Exists are safe for
// concurrent use; Extract carries per-request decoder state, so concurrent
// extraction requires either external serialization or one Archive per
// goroutine. The package holds no process-wide mutable state.
package chm

// On-disk format constants.
//
// These byte counts describe the fixed-width records at the front of every
// archive. The header codec relies on them to compute exact offsets; do not
// modify them unless the format itself changes.
const (
	sigITSF = "ITSF" // file header
	sigITSP = "ITSP" // directory header
	sigLZXC = "LZXC" // compression-control header
	sigPMGL = "PMGL" // directory leaf chunk
	sigPMGI = "PMGI" // directory index chunk

	itsfHeaderSize = 96 // ITSF record, at file offset 0.
	itspHeaderSize = 84 // ITSP record, immediately after ITSF.
	lzxcHeaderSize = 40 // LZXC record, immediately after ITSP.

	itsfVersion = 3
	itspVersion = 1
	lzxcVersion = 2

	itspHeaderOffset = itsfHeaderSize
	lzxcHeaderOffset = itsfHeaderSize + itspHeaderSize

	// headerRegionSize is the byte count of the three fixed headers.
	// The directory written by Pack starts here.
	headerRegionSize = itsfHeaderSize + itspHeaderSize + lzxcHeaderSize

	pmglHeaderSize = 20 // signature, free space, unknown, prev, next
	pmgiHeaderSize = 12 // signature, free space, unknown

	defaultChunkSize     = 4096
	defaultWindowSize    = 0x10000
	defaultResetInterval = 0x8000
)

// Well-known system entries. The reset table and the compressed section are
// not located by file offset; they are ordinary directory entries with
// reserved names, resolved like any other lookup.
const (
	controlDataName = "::DataSpace/Storage/MSCompressed/ControlData"
	resetTableName  = "::DataSpace/Storage/MSCompressed/Transform/" +
		"{7FC28940-9D31-11D0-9B27-00A0C91E9C7C}/InstanceData/ResetTable"
	contentName = "::DataSpace/Storage/MSCompressed/Content"

	systemPrefix = "::"
)

// LZX parameters.
const (
	lzxMinMatch = 3
	lzxMaxMatch = 257

	lzxNumChars     = 256 // literal symbols in the main tree
	lzxLengthCodes  = 249 // length-tree alphabet
	lzxPretreeSize  = 20  // pre-tree alphabet
	lzxAlignedSize  = 8   // aligned-offset tree alphabet
	lzxNumRepeats   = 3   // LRU match distances
	lzxMaxCodeLen   = 16  // longest decodable Huffman code
	lzxWriteCodeLen = 15  // longest code the encoder assigns (see lengths protocol)

	lzxPretreeLenBits = 4 // pre-tree code lengths are stored raw
	lzxAlignedLenBits = 3 // aligned-tree code lengths are stored raw

	lzxBlockVerbatim     = 1
	lzxBlockAligned      = 2
	lzxBlockUncompressed = 3

	// lzxMaxBlockSize bounds the uncompressed span of a single block the
	// encoder emits. The decoder accepts any 24-bit size that fits the
	// remaining reset interval.
	lzxMaxBlockSize = 0x8000

	minWindowSize = 0x8000
	maxWindowSize = 0x200000
)

// windowPositionSlots maps a sliding-window size to the number of position
// slots in the main tree. Together with the footer-bit table below, the slot
// count covers formatted offsets up to exactly the window size.
var windowPositionSlots = map[uint32]int{
	0x8000:   30,
	0x10000:  32,
	0x20000:  34,
	0x40000:  36,
	0x80000:  38,
	0x100000: 42,
	0x200000: 50,
}

const maxPositionSlots = 50

// footerBits[s] is the count of extra offset bits carried by position slot s;
// positionBase[s] is the formatted offset the slot starts at. Slots 0-2 are
// the LRU distances and carry no extra bits.
var (
	footerBits   [maxPositionSlots]byte
	positionBase [maxPositionSlots]uint32
)

func init() {
	for s := 0; s < maxPositionSlots; s++ {
		if s >= 4 {
			fb := s/2 - 1
			if fb > 17 {
				fb = 17
			}
			footerBits[s] = byte(fb)
		}
		if s > 0 {
			positionBase[s] = positionBase[s-1] + 1<<footerBits[s-1]
		}
	}
}

// validWindowSize reports whether w is one of the seven permitted LZX window
// sizes.
func validWindowSize(w uint32) bool {
	_, ok := windowPositionSlots[w]
	return ok
}

// mainTreeSize returns the main-tree alphabet size for a window with the
// given position-slot count: 256 literals plus 8 length headers per slot.
func mainTreeSize(slots int) int { return lzxNumChars + slots*8 }
