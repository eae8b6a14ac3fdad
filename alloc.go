// Package alloc implements interchangeable memory allocation strategies behind one interface,
// so that the caller, not a fixed runtime, decides how and where its memory is placed.
//
// Three strategies are provided:
//
//   - FixedRegion bump-allocates inside a single caller-supplied buffer and never grows.
//   - Arena bump-allocates across a chain of pages it maps itself and only supports
//     destroying the whole chain at once.
//   - Bucket segregates requests into power-of-two size classes, each backed by its own
//     chain of pages, and reclaims a page only once all of it has been released.
//
// Arena and Bucket pages are mapped outside of the Go heap (see PagePool), so blocks they
// return are not scanned by the garbage collector and stay valid only as long as the
// allocator that produced them. None of the allocators are safe for concurrent use.
package alloc

import (
	"unsafe"

	"github.com/holmberd/go-alloc/internal/align"
	"github.com/holmberd/go-alloc/internal/region"
)

const (
	PageSize   = region.PageSize // Size of a page acquired from the page source, in bytes.
	Alignment  = align.Word      // Alignment of every returned address, in bytes.
	NumClasses = 12              // Number of Bucket size classes (block sizes 1 to 2048 bytes).

	// Sentinel is the byte pattern written over freshly mapped and released memory.
	Sentinel = region.Sentinel
)

// Allocator is the capability every allocation strategy implements.
//
// Allocate panics, rather than returning an error, when size is outside (0, PageSize]:
// an invalid size is a programming error, not a runtime condition.
type Allocator interface {
	// Allocate returns a block of at least size bytes.
	Allocate(size int) (Block, error)

	// Release hands a block back. What that means is strategy-defined.
	Release(b Block)

	// TryResize grows or shrinks b in place and reports whether it did.
	// It never moves data; on false neither b nor the allocator has changed.
	TryResize(b *Block, newSize int) bool
}

var (
	_ Allocator = (*FixedRegion)(nil)
	_ Allocator = (*Arena[*PagePool])(nil)
	_ Allocator = (*Bucket[*PagePool])(nil)
)

// Block is a contiguous span of memory returned by an Allocator.
// Size is the usable, rounded size and not the size originally requested.
type Block struct {
	ptr  unsafe.Pointer
	Size int
}

// Addr returns the address of the first byte of the block.
func (b Block) Addr() uintptr {
	return uintptr(b.ptr)
}

// End returns the address just past the last byte of the block.
func (b Block) End() uintptr {
	return uintptr(b.ptr) + uintptr(b.Size)
}

// IsZero reports whether b is the zero Block.
func (b Block) IsZero() bool {
	return b.ptr == nil
}

// Bytes returns the block's memory as a byte slice of length Size.
// The slice must not be used after the block is released or its allocator is destroyed.
func (b Block) Bytes() []byte {
	if b.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(b.ptr), b.Size)
}

// Overlaps reports whether b and other share any byte.
func (b Block) Overlaps(other Block) bool {
	return b.Addr() < other.End() && other.Addr() < b.End()
}
