package alloc

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/holmberd/go-alloc/internal/align"
	"github.com/holmberd/go-alloc/internal/region"
)

// FixedHeaderSize is the number of bytes a FixedRegion reserves at the head of its buffer.
const FixedHeaderSize = region.HeaderSize

// FixedRegion is a bump allocator over a single caller-owned buffer.
//
// The buffer is never grown, owned or freed by the allocator, and must outlive it.
// Running out of room is reported as ErrOutOfSpace.
type FixedRegion struct {
	logger *slog.Logger
	region region.Region
	stats  counters
}

// NewFixedRegion creates a fixed region allocator over buf with the default config.
// The capacity is len(buf), the first FixedHeaderSize bytes of which hold the region header.
func NewFixedRegion(buf []byte) (*FixedRegion, error) {
	return CustomFixedRegion(buf, DefaultConfig())
}

// CustomFixedRegion creates a fixed region allocator over buf with a custom config.
func CustomFixedRegion(buf []byte, config Config) (*FixedRegion, error) {
	if config.Logger == nil {
		return nil, errors.New("invalid config: Logger must not be nil")
	}
	if len(buf) < FixedHeaderSize {
		return nil, errors.Wrapf(ErrBufferTooSmall, "%d bytes, need at least %d", len(buf), FixedHeaderSize)
	}
	if base := uintptr(unsafe.Pointer(unsafe.SliceData(buf))); !align.IsAligned(base) {
		return nil, errors.Wrapf(ErrBufferMisaligned, "buffer at %#x", base)
	}
	f := &FixedRegion{
		logger: config.Logger,
		region: region.New(buf, FixedHeaderSize),
	}
	f.region.Stamp(0)
	return f, nil
}

// Capacity returns the size of the underlying buffer, header included.
func (f *FixedRegion) Capacity() int {
	return f.region.Len()
}

// Cursor returns the offset, from the start of the buffer, of the next free byte.
func (f *FixedRegion) Cursor() int {
	return f.region.Cursor()
}

// Allocate carves the next size bytes, rounded up to the alignment, from the buffer.
// It returns ErrOutOfSpace if they do not fit and panics if size is outside (0, PageSize].
func (f *FixedRegion) Allocate(size int) (Block, error) {
	checkSize(size)
	size = align.Up(size)
	ptr, ok := f.region.Carve(size)
	if !ok {
		f.logger.Debug("fixed region exhausted",
			"size", size, "cursor", f.region.Cursor(), "capacity", f.region.Len())
		return Block{}, errors.Wrapf(ErrOutOfSpace, "%d bytes requested, %d remaining", size, f.region.Remaining())
	}
	f.stats.allocations++
	debugValidate(f)
	return Block{ptr: ptr, Size: size}, nil
}

// Release is a no-op: a fixed region never reclaims individual blocks.
func (f *FixedRegion) Release(b Block) {}

// TryResize resizes b in place if it is the most recent allocation and the new,
// rounded size still fits in the buffer.
func (f *FixedRegion) TryResize(b *Block, newSize int) bool {
	if b == nil || b.IsZero() || newSize <= 0 || newSize > PageSize {
		return false
	}
	if !f.region.Contains(b.Addr()) {
		return false
	}
	newSize = align.Up(newSize)
	if !f.region.Resize(f.region.Offset(b.Addr()), b.Size, newSize) {
		return false
	}
	b.Size = newSize
	f.stats.resizes++
	debugValidate(f)
	return true
}

// Reset rewinds the cursor to just past the header.
// Every block previously returned becomes invalid.
func (f *FixedRegion) Reset() {
	f.region.Reset()
}

func (f *FixedRegion) UpdateStats(s *Stats) {
	s.Pages++
	s.CapacityBytes += f.region.Len() - f.region.Start()
	s.UsedBytes += f.region.Used()
	f.stats.addTo(s)
}

func (f *FixedRegion) PrintDetailedMap(w *jwriter.Writer) {
	obj := w.Object()
	defer obj.End()

	var s Stats
	f.UpdateStats(&s)
	obj.Name("Strategy").String("fixed")
	printStats(&obj, s)
	regionObj := obj.Name("Region").Object()
	f.region.PrintDetailedMap(&regionObj)
	regionObj.End()
}

// Validate checks the region header and cursor.
func (f *FixedRegion) Validate() error {
	return errors.Wrap(f.region.Validate(), "fixed region")
}
