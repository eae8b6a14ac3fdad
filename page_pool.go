package alloc

import (
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/holmberd/go-alloc/internal/region"
)

// PagePooler is the page source Arena and Bucket acquire their pages from.
type PagePooler interface {
	PageSize() int // Returns the size of the pages handed out.
	Get() []byte   // Get returns a page-aligned, sentinel-filled page.
	Put(p []byte)  // Put returns a page obtained from Get.
}

var defaultPagePool = NewPagePool(DefaultPagePoolConfig())

// DefaultPagePool returns the page pool shared by allocators created with NewArena and NewBucket.
func DefaultPagePool() *PagePool {
	return defaultPagePool
}

// PagePool is a thread-safe source of off-heap pages.
//
// Pages are mapped one at a time from the operating system and, once returned, either kept
// on a free list for reuse or unmapped, depending on the configured free threshold.
type PagePool struct {
	mu     sync.Mutex
	free   [][]byte
	logger *slog.Logger

	// freeThreshold is the number of free pages the pool can hold before unmapping them.
	freeThreshold int

	mapPage func() ([]byte, error)
}

// NewPagePool creates a new, empty page pool.
func NewPagePool(config PagePoolConfig) *PagePool {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PagePool{freeThreshold: config.FreeThreshold, logger: logger, mapPage: mapPage}
}

func (p *PagePool) PageSize() int {
	return PageSize
}

// Get retrieves a free page, mapping a new one if none is available.
// The page is sentinel-filled. It panics with ErrPageMapping if the mapping fails.
func (p *PagePool) Get() []byte {
	page := p.take()
	region.FillSentinel(page)
	return page
}

// take pops a page off the free list, mapping one first if the list is empty.
func (p *PagePool) take() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		p.alloc(1)
	}
	n := len(p.free) - 1
	page := p.free[n]
	p.free[n] = nil
	p.free = p.free[:n]
	return page
}

// Put returns a page to the pool.
// It does nothing if the slice is not a whole page.
func (p *PagePool) Put(page []byte) {
	if page == nil || cap(page) != PageSize {
		return
	}
	page = page[:PageSize] // Ensure the page is reset to its full capacity before returning.

	p.mu.Lock()
	p.free = append(p.free, page)
	var pagesToUnmap [][]byte
	p.free, pagesToUnmap = releasePages(p.free, p.freeThreshold)
	p.mu.Unlock()

	// Perform unmap outside of the lock to avoid blocking other operations.
	for _, pg := range pagesToUnmap {
		p.unmap(pg)
	}
}

// Allocate ensures that at least numPages free pages are available in the pool.
// This is useful for pre-warming the pool ahead of a burst of allocations.
func (p *PagePool) Allocate(numPages int) {
	if numPages <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := numPages - len(p.free); n > 0 {
		p.alloc(n)
	}
}

// unmap releases the memory of a page back to the operating system.
func (p *PagePool) unmap(page []byte) {
	if err := unmapPage(page); err != nil {
		p.logger.Error("failed to unmap page", "error", err)
	}
}

// alloc maps numPages new pages onto the free list.
// It assumes the caller holds the mutex.
func (p *PagePool) alloc(numPages int) {
	for range numPages {
		page, err := p.mapPage()
		if err != nil {
			panic(errors.Wrapf(ErrPageMapping, "cannot map %d bytes: %v", PageSize, err))
		}
		if !region.IsPageAligned(page) {
			panic(errors.Wrapf(ErrPageMapping, "mapped page at %p is not %d-byte aligned", &page[0], PageSize))
		}
		p.free = append(p.free, page)
	}
}

// numFree returns the number of free pages held by the pool.
// It is primarily intended as helper method in tests.
func (p *PagePool) numFree() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// releasePages trims the free list if it exceeds the given threshold.
// It returns the updated list and the pages that were removed and should be unmapped.
func releasePages(freeList [][]byte, threshold int) (newList [][]byte, toUnmap [][]byte) {
	if len(freeList) <= threshold {
		return freeList, nil
	}
	// Release down to half the threshold to prevent thrashing around it.
	n := len(freeList) - threshold/2
	toUnmap = make([][]byte, n)
	copy(toUnmap, freeList[:n])
	newList = append(freeList[:0], freeList[n:]...)
	return newList, toUnmap
}
