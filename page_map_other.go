//go:build !unix

package alloc

import "github.com/holmberd/go-alloc/internal/region"

// mapPage falls back to page-aligned heap memory where mmap is unavailable.
func mapPage() ([]byte, error) {
	return region.HeapPage(), nil
}

// unmapPage drops the page; the garbage collector reclaims it.
func unmapPage(page []byte) error {
	return nil
}
