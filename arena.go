package alloc

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/holmberd/go-alloc/internal/align"
	"github.com/holmberd/go-alloc/internal/region"
)

// ArenaHeaderSize is the number of bytes reserved at the head of every arena page.
const ArenaHeaderSize = region.HeaderSize

// MaxArenaAllocSize is the largest request an arena page can hold.
const MaxArenaAllocSize = PageSize - ArenaHeaderSize

// arenaPage is a node in the arena's forward-only page chain.
type arenaPage struct {
	region.Region
	next *arenaPage
}

// Arena is a bump allocator over a growable chain of pages.
//
// Allocations are first-fit in chain order: the chain is scanned from the head and the first
// page with room is used, even when a later page has more. When no page has room a new page is
// linked at the tail. Individual blocks cannot be freed; Release (or Destroy) returns every page
// at once and invalidates every block the arena ever returned. Any later Allocate or TryResize
// panics with ErrReleased.
type Arena[P PagePooler] struct {
	logger *slog.Logger
	pool   P
	head   *arenaPage
	tail   *arenaPage
	pages  *region.Table[*arenaPage]
	stats  counters

	released bool
}

// NewArena creates an arena backed by the default page pool.
// It maps its first page immediately.
func NewArena() *Arena[*PagePool] {
	a, err := CustomArena(defaultPagePool, DefaultConfig())
	if err != nil {
		// Unrecoverable programmer error.
		panic(errors.Wrap(err, "internal error"))
	}
	return a
}

// CustomArena creates an arena backed by a custom page pool and config.
func CustomArena[P PagePooler](pool P, config Config) (*Arena[P], error) {
	if err := config.Validate(pool); err != nil {
		return nil, err
	}
	a := &Arena[P]{
		logger: config.Logger,
		pool:   pool,
		pages:  region.NewTable[*arenaPage](),
	}
	a.head = a.newPage()
	a.tail = a.head
	return a, nil
}

// newPage acquires a page from the pool and registers it. It does not link it.
func (a *Arena[P]) newPage() *arenaPage {
	mem := a.pool.Get()
	if !region.IsPageAligned(mem) {
		panic(errors.Wrapf(ErrPageMapping, "page pool returned a misaligned or short page (%d bytes)", len(mem)))
	}
	p := &arenaPage{Region: region.New(mem, ArenaHeaderSize)}
	p.Stamp(0)
	a.pages.Put(p.Base(), p)
	a.stats.pagesMapped++
	a.logger.Debug("arena page mapped", "base", p.Base(), "pages", a.pages.Len())
	return p
}

func (a *Arena[P]) panicIfReleased() {
	if a.released {
		panic(errors.Wrap(ErrReleased, "arena"))
	}
}

// Released reports whether the arena has been destroyed.
func (a *Arena[P]) Released() bool {
	return a.released
}

// NumPages returns the number of pages in the chain.
func (a *Arena[P]) NumPages() int {
	return a.pages.Len()
}

// Allocate carves size bytes, rounded up to the alignment, from the first page in the
// chain with room, growing the chain by one page if none has.
// It panics if size is outside (0, MaxArenaAllocSize].
func (a *Arena[P]) Allocate(size int) (Block, error) {
	a.panicIfReleased()
	checkSize(size)
	size = align.Up(size)
	if size > MaxArenaAllocSize {
		panic(invalidSize(size, "exceeds the %d usable bytes of an arena page", MaxArenaAllocSize))
	}

	for p := a.head; p != nil; p = p.next {
		if ptr, ok := p.Carve(size); ok {
			a.stats.allocations++
			debugValidate(a)
			return Block{ptr: ptr, Size: size}, nil
		}
	}

	p := a.newPage()
	a.tail.next = p
	a.tail = p
	ptr, _ := p.Carve(size)
	a.stats.allocations++
	debugValidate(a)
	return Block{ptr: ptr, Size: size}, nil
}

// Release destroys the whole arena, regardless of b. See Destroy.
func (a *Arena[P]) Release(b Block) {
	a.Destroy()
}

// Destroy returns every page in the chain to the page pool.
// Every block the arena returned becomes invalid. Destroying twice is a no-op.
func (a *Arena[P]) Destroy() {
	if a.released {
		return
	}
	n := 0
	for p := a.head; p != nil; {
		next := p.next
		a.pool.Put(p.Mem())
		p.next = nil
		p = next
		n++
	}
	a.stats.pagesReleased += uint64(n)
	a.head, a.tail = nil, nil
	a.pages.Reset()
	a.released = true
	a.logger.Debug("arena destroyed", "pages", n)
}

// TryResize resizes b in place if it is the most recent allocation of the page holding it
// and the new, rounded size fits in that page. A block never spills into another page.
func (a *Arena[P]) TryResize(b *Block, newSize int) bool {
	a.panicIfReleased()
	if b == nil || b.IsZero() || newSize <= 0 || newSize > PageSize {
		return false
	}
	p, ok := a.pages.Lookup(b.Addr())
	if !ok || !p.Contains(b.Addr()) {
		return false
	}
	newSize = align.Up(newSize)
	if !p.Resize(p.Offset(b.Addr()), b.Size, newSize) {
		return false
	}
	b.Size = newSize
	a.stats.resizes++
	debugValidate(a)
	return true
}

// Reset rewinds every page's cursor while keeping the pages mapped.
// Every block previously returned becomes invalid.
func (a *Arena[P]) Reset() {
	a.panicIfReleased()
	for p := a.head; p != nil; p = p.next {
		p.Region.Reset()
	}
}

func (a *Arena[P]) UpdateStats(s *Stats) {
	for p := a.head; p != nil; p = p.next {
		s.Pages++
		s.CapacityBytes += p.Len() - p.Start()
		s.UsedBytes += p.Used()
	}
	a.stats.addTo(s)
}

func (a *Arena[P]) PrintDetailedMap(w *jwriter.Writer) {
	obj := w.Object()
	defer obj.End()

	var s Stats
	a.UpdateStats(&s)
	obj.Name("Strategy").String("arena")
	obj.Name("Released").Bool(a.released)
	printStats(&obj, s)

	pages := obj.Name("Pages").Array()
	for p := a.head; p != nil; p = p.next {
		pageObj := pages.Object()
		p.PrintDetailedMap(&pageObj)
		pageObj.End()
	}
	pages.End()
}

// Validate checks every page header and cursor, and that the chain and the page table agree.
func (a *Arena[P]) Validate() error {
	if a.released {
		if a.head != nil || a.pages.Len() != 0 {
			return errors.Wrap(ErrCorrupted, "released arena still holds pages")
		}
		return nil
	}
	n := 0
	var last *arenaPage
	for p := a.head; p != nil; p = p.next {
		if err := p.Validate(); err != nil {
			return errors.Wrapf(err, "arena page %d", n)
		}
		if q, ok := a.pages.Lookup(p.Base()); !ok || q != p {
			return errors.Wrapf(ErrCorrupted, "arena page %d is not registered", n)
		}
		last = p
		n++
	}
	if last != a.tail {
		return errors.Wrap(ErrCorrupted, "arena tail is not the last page in the chain")
	}
	if n != a.pages.Len() {
		return errors.Wrapf(ErrCorrupted, "arena chain has %d pages, table has %d", n, a.pages.Len())
	}
	return nil
}
