//go:build unix

package alloc

import "golang.org/x/sys/unix"

// mapPage maps a private, anonymous, read-write page outside of the Go heap.
// This keeps allocator pages out of the garbage collector's scan set.
func mapPage() ([]byte, error) {
	return unix.Mmap(-1, 0, PageSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
}

func unmapPage(page []byte) error {
	return unix.Munmap(page)
}
