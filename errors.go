package alloc

import (
	"github.com/cockroachdb/errors"

	"github.com/holmberd/go-alloc/internal/region"
)

var (
	// ErrInvalidSize is the panic value for a request outside (0, PageSize],
	// or one no size class or page can hold.
	ErrInvalidSize = errors.New("alloc: invalid allocation size")

	// ErrOutOfSpace is returned when a fixed region has no room left for a request.
	ErrOutOfSpace = errors.New("alloc: out of space")

	// ErrPageMapping is the panic value when the page source cannot provide a page.
	ErrPageMapping = errors.New("alloc: page mapping failed")

	// ErrReleased is the panic value for using an allocator after it has been destroyed.
	ErrReleased = errors.New("alloc: use after release")

	// ErrCorrupted is returned by Validate when an allocator's bookkeeping is inconsistent.
	ErrCorrupted = region.ErrCorrupted

	// ErrBufferTooSmall is returned when a fixed region buffer cannot hold its header.
	ErrBufferTooSmall = errors.New("alloc: buffer too small for region header")

	// ErrBufferMisaligned is returned when a fixed region buffer does not start on an
	// Alignment boundary.
	ErrBufferMisaligned = errors.New("alloc: buffer is not aligned")
)

// invalidSize builds the panic value for an invalid request.
func invalidSize(size int, format string, args ...any) error {
	return errors.Wrapf(ErrInvalidSize, "size %d: "+format, append([]any{size}, args...)...)
}

// checkSize panics unless 0 < size <= PageSize.
func checkSize(size int) {
	if size <= 0 || size > PageSize {
		panic(invalidSize(size, "must be in (0, %d]", PageSize))
	}
}
