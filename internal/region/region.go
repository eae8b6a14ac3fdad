// Package region implements the byte-span bookkeeping shared by every allocator strategy:
// a reserved header prefix, a bump cursor, last-allocation resizing and sentinel fills.
package region

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/holmberd/go-alloc/internal/align"
)

const (
	PageSize      = 4096 // Size of a page acquired from the page source, in bytes.
	Sentinel byte = 0xAA // Fill pattern for freshly mapped and released memory.

	// HeaderSize is the reserved header prefix of a page or fixed region.
	// It holds the stamp: magic, capacity and a strategy-defined tag.
	HeaderSize = 24

	headerMagic uint64 = 0x6c6f6c6c61636f67
)

var ErrCorrupted = errors.New("alloc: region is corrupted")

// Region is a span of bytes carved front-to-back by a monotonic cursor.
// The first start bytes are reserved for the header and are never handed out.
type Region struct {
	mem    []byte
	start  int // First usable offset, just past the header.
	cursor int // Offset of the next free byte.
}

// New creates a region over mem, reserving an 8-byte aligned prefix of headerSize bytes.
// It panics if mem cannot hold the header.
func New(mem []byte, headerSize int) Region {
	start := align.Up(headerSize)
	if start > len(mem) {
		panic(errors.Newf("region of %d bytes cannot hold a %d byte header", len(mem), start))
	}
	return Region{mem: mem, start: start, cursor: start}
}

// Mem returns the whole span, header included.
func (r *Region) Mem() []byte {
	return r.mem
}

// Base returns the address of the first byte of the span.
func (r *Region) Base() uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(r.mem)))
}

func (r *Region) Len() int       { return len(r.mem) }
func (r *Region) Start() int     { return r.start }
func (r *Region) Cursor() int    { return r.cursor }
func (r *Region) Used() int      { return r.cursor - r.start }
func (r *Region) Remaining() int { return len(r.mem) - r.cursor }

// Usable returns the bytes past the header.
func (r *Region) Usable() []byte {
	return r.mem[r.start:]
}

// Fits reports whether n more bytes can be carved without passing the end of the span.
func (r *Region) Fits(n int) bool {
	return r.cursor+n <= len(r.mem)
}

// Carve hands out n bytes at the cursor and advances it.
// It returns false, leaving the cursor untouched, if the bytes do not fit.
func (r *Region) Carve(n int) (unsafe.Pointer, bool) {
	if n <= 0 || !r.Fits(n) {
		return nil, false
	}
	p := r.Pointer(r.cursor)
	r.cursor += n
	return p, true
}

// Pointer returns a pointer to the byte at offset off.
func (r *Region) Pointer(off int) unsafe.Pointer {
	return unsafe.Pointer(&r.mem[off])
}

// Contains reports whether addr lies in the usable part of the span.
func (r *Region) Contains(addr uintptr) bool {
	base := r.Base()
	return addr >= base+uintptr(r.start) && addr < base+uintptr(len(r.mem))
}

// Offset returns the offset of addr within the span. addr must be contained in the span.
func (r *Region) Offset(addr uintptr) int {
	return int(addr - r.Base())
}

// IsLast reports whether the bytes [off, off+size) end exactly at the cursor.
func (r *Region) IsLast(off, size int) bool {
	return off+size == r.cursor
}

// Resize moves the cursor so that the last allocation [off, off+oldSize) becomes
// [off, off+newSize). It returns false, changing nothing, if the allocation is not the
// last one or the new size does not fit.
func (r *Region) Resize(off, oldSize, newSize int) bool {
	if !r.IsLast(off, oldSize) {
		return false
	}
	if off+newSize > len(r.mem) {
		return false
	}
	r.cursor = off + newSize
	return true
}

// Fill overwrites the bytes [off, off+n) with the sentinel.
func (r *Region) Fill(off, n int) {
	FillSentinel(r.mem[off : off+n])
}

// Reset rewinds the cursor to just past the header.
func (r *Region) Reset() {
	r.cursor = r.start
}

// IsSentinelFilled reports whether every usable byte equals the sentinel.
func (r *Region) IsSentinelFilled() bool {
	usable := r.Usable()
	return bytes.Count(usable, sentinelPattern) == len(usable)
}

// Stamp writes the header: the span capacity and tag, preceded by a check word
// that seals both.
func (r *Region) Stamp(tag uint64) {
	if r.start < HeaderSize {
		return // No room for a stamp.
	}
	binary.LittleEndian.PutUint64(r.mem[8:], uint64(len(r.mem)))
	binary.LittleEndian.PutUint64(r.mem[16:], tag)
	binary.LittleEndian.PutUint64(r.mem[0:], r.headerCheck())
}

// headerCheck returns the check word for the capacity and tag currently in the header.
func (r *Region) headerCheck() uint64 {
	return headerMagic ^ xxhash.Sum64(r.mem[8:HeaderSize])
}

// Tag returns the tag written by Stamp.
func (r *Region) Tag() uint64 {
	return binary.LittleEndian.Uint64(r.mem[16:])
}

// Validate checks the header stamp and the cursor bounds.
func (r *Region) Validate() error {
	if r.cursor < r.start || r.cursor > len(r.mem) {
		return errors.Wrapf(ErrCorrupted, "cursor %d outside [%d, %d]", r.cursor, r.start, len(r.mem))
	}
	if !align.IsAligned(r.cursor) {
		return errors.Wrapf(ErrCorrupted, "cursor %d is not %d-byte aligned", r.cursor, align.Word)
	}
	if r.start < HeaderSize {
		return nil
	}
	if m, want := binary.LittleEndian.Uint64(r.mem[0:]), r.headerCheck(); m != want {
		return errors.Wrapf(ErrCorrupted, "header check word %#x, want %#x", m, want)
	}
	if c := binary.LittleEndian.Uint64(r.mem[8:]); c != uint64(len(r.mem)) {
		return errors.Wrapf(ErrCorrupted, "capacity %d does not match span length %d", c, len(r.mem))
	}
	return nil
}

// PrintDetailedMap writes the region layout into a JSON object.
func (r *Region) PrintDetailedMap(obj *jwriter.ObjectState) {
	obj.Name("Base").String(fmt.Sprintf("%#x", r.Base()))
	obj.Name("TotalBytes").Int(len(r.mem))
	obj.Name("HeaderBytes").Int(r.start)
	obj.Name("Cursor").Int(r.cursor)
	obj.Name("UsedBytes").Int(r.Used())
	obj.Name("FreeBytes").Int(r.Remaining())
}

// FillSentinel overwrites b with the sentinel.
func FillSentinel(b []byte) {
	if len(b) == 0 {
		return
	}
	b[0] = Sentinel
	for filled := 1; filled < len(b); filled *= 2 {
		copy(b[filled:], b[:filled])
	}
}

var sentinelPattern = []byte{Sentinel}
