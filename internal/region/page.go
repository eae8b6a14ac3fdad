package region

import (
	"unsafe"

	"github.com/dolthub/swiss"
)

// PageBase returns the base address of the page containing addr.
func PageBase(addr uintptr) uintptr {
	return addr &^ (PageSize - 1)
}

// IsPageAligned reports whether p is exactly one page starting on a page boundary.
func IsPageAligned(p []byte) bool {
	return len(p) == PageSize && uintptr(unsafe.Pointer(unsafe.SliceData(p)))&(PageSize-1) == 0
}

// HeapPage returns a page-aligned page allocated on the Go heap.
// It over-allocates by one page and slices at the first page boundary.
func HeapPage() []byte {
	buf := make([]byte, 2*PageSize)
	off := int(PageSize-uintptr(unsafe.Pointer(&buf[0]))&(PageSize-1)) & (PageSize - 1)
	return buf[off : off+PageSize : off+PageSize]
}

// Table maps page base addresses to the page nodes owning them.
type Table[V any] struct {
	m *swiss.Map[uintptr, V]
}

const tableSizeHint = 16

func NewTable[V any]() *Table[V] {
	return &Table[V]{m: swiss.NewMap[uintptr, V](tableSizeHint)}
}

// Put registers v as the owner of the page starting at base.
func (t *Table[V]) Put(base uintptr, v V) {
	t.m.Put(base, v)
}

// Lookup returns the owner of the page containing addr.
func (t *Table[V]) Lookup(addr uintptr) (V, bool) {
	return t.m.Get(PageBase(addr))
}

// Delete unregisters the page starting at base.
func (t *Table[V]) Delete(base uintptr) {
	t.m.Delete(base)
}

// Len returns the number of registered pages.
func (t *Table[V]) Len() int {
	return t.m.Count()
}

// Reset unregisters every page.
func (t *Table[V]) Reset() {
	t.m = swiss.NewMap[uintptr, V](tableSizeHint)
}
