package alloc

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"

	"github.com/holmberd/go-alloc/internal/align"
	"github.com/holmberd/go-alloc/internal/region"
)

const (
	// BucketHeaderSize is the number of bytes reserved at the head of every bucket page.
	BucketHeaderSize = region.HeaderSize

	// MaxBucketBlockSize is the block size of the largest size class.
	MaxBucketBlockSize = 1 << (NumClasses - 1)
)

// Class returns the size class of a request: ceil(log2(size)).
func Class(size int) int {
	return align.Log2Ceil(size)
}

// ClassSize returns the block size of a size class: 2^class.
func ClassSize(class int) int {
	return 1 << class
}

// classStride returns the distance between two blocks of a class within a page.
// Blocks of the classes below the alignment are spaced out to keep every address aligned.
func classStride(class int) int {
	return align.Up(ClassSize(class))
}

// bucketPage is a node in a size class's page chain.
type bucketPage struct {
	region.Region
	class int
	prev  *bucketPage // Page that was current before this one; kept for traversal only.
}

func (p *bucketPage) blockSize() int { return ClassSize(p.class) }
func (p *bucketPage) stride() int    { return classStride(p.class) }

// Bucket is a general purpose allocator that segregates requests into NumClasses
// power-of-two size classes, each bump-allocating from its own chain of pages.
//
// Only the newest page of a class is allocated from. Release does not track occupancy:
// it overwrites the block with the sentinel and, when the page's usable bytes are then
// all sentinel, returns the page to the page source. This reclamation is approximate and
// order-dependent (see Config.ReclaimPages); blocks are never reused individually.
type Bucket[P PagePooler] struct {
	logger  *slog.Logger
	pool    P
	reclaim bool
	classes [NumClasses]*bucketPage // Current page per class.
	pages   *region.Table[*bucketPage]
	stats   counters

	released bool
}

// NewBucket creates a bucket allocator backed by the default page pool.
// No page is mapped until the first allocation of each class.
func NewBucket() *Bucket[*PagePool] {
	b, err := CustomBucket(defaultPagePool, DefaultConfig())
	if err != nil {
		// Unrecoverable programmer error.
		panic(errors.Wrap(err, "internal error"))
	}
	return b
}

// CustomBucket creates a bucket allocator backed by a custom page pool and config.
func CustomBucket[P PagePooler](pool P, config Config) (*Bucket[P], error) {
	if err := config.Validate(pool); err != nil {
		return nil, err
	}
	return &Bucket[P]{
		logger:  config.Logger,
		pool:    pool,
		reclaim: config.ReclaimPages,
		pages:   region.NewTable[*bucketPage](),
	}, nil
}

func (b *Bucket[P]) panicIfReleased() {
	if b.released {
		panic(errors.Wrap(ErrReleased, "bucket"))
	}
}

// NumPages returns the number of pages currently mapped across all classes.
func (b *Bucket[P]) NumPages() int {
	return b.pages.Len()
}

// newPage acquires a page for class and makes it the class's current page.
func (b *Bucket[P]) newPage(class int) *bucketPage {
	mem := b.pool.Get()
	if !region.IsPageAligned(mem) {
		panic(errors.Wrapf(ErrPageMapping, "page pool returned a misaligned or short page (%d bytes)", len(mem)))
	}
	p := &bucketPage{
		Region: region.New(mem, BucketHeaderSize),
		class:  class,
		prev:   b.classes[class],
	}
	p.Stamp(uint64(class))
	b.classes[class] = p
	b.pages.Put(p.Base(), p)
	b.stats.pagesMapped++
	b.logger.Debug("bucket page mapped", "class", class, "blockSize", p.blockSize(), "base", p.Base())
	return p
}

// Allocate returns a block of the size class of size, i.e. 2^ceil(log2(size)) bytes.
// It panics if size is outside (0, PageSize] or maps to a class >= NumClasses.
func (b *Bucket[P]) Allocate(size int) (Block, error) {
	b.panicIfReleased()
	checkSize(size)
	class := Class(size)
	if class >= NumClasses {
		panic(invalidSize(size, "maps to size class %d, largest is %d", class, NumClasses-1))
	}

	stride := classStride(class)
	p := b.classes[class]
	if p == nil || !p.Fits(stride) {
		p = b.newPage(class)
	}
	ptr, _ := p.Carve(stride)
	b.stats.allocations++
	debugValidate(b)
	return Block{ptr: ptr, Size: ClassSize(class)}, nil
}

// owner returns the page holding blk and blk's offset in it, or false if blk is not a
// block this allocator handed out.
func (b *Bucket[P]) owner(blk Block) (*bucketPage, int, bool) {
	if blk.IsZero() {
		return nil, 0, false
	}
	p, ok := b.pages.Lookup(blk.Addr())
	if !ok || !p.Contains(blk.Addr()) || blk.Size != p.blockSize() {
		return nil, 0, false
	}
	off := p.Offset(blk.Addr())
	if off+p.stride() > p.Cursor() || (off-p.Start())%p.stride() != 0 {
		return nil, 0, false
	}
	return p, off, true
}

// Release overwrites blk with the sentinel and reclaims its page if the whole page
// is now sentinel. Blocks not handed out by this allocator are ignored.
func (b *Bucket[P]) Release(blk Block) {
	b.panicIfReleased()
	p, off, ok := b.owner(blk)
	if !ok {
		b.logger.Warn("ignoring release of a block not owned by the allocator",
			"addr", blk.Addr(), "size", blk.Size)
		return
	}
	p.Fill(off, blk.Size)
	if b.reclaim && p.IsSentinelFilled() {
		b.reclaimPage(p)
	}
	debugValidate(b)
}

// reclaimPage unlinks p from its class chain and returns it to the page pool.
func (b *Bucket[P]) reclaimPage(p *bucketPage) {
	if b.classes[p.class] == p {
		b.classes[p.class] = p.prev
	} else {
		for q := b.classes[p.class]; q != nil; q = q.prev {
			if q.prev == p {
				q.prev = p.prev
				break
			}
		}
	}
	b.pages.Delete(p.Base())
	b.pool.Put(p.Mem())
	p.prev = nil
	b.stats.pagesReleased++
	b.logger.Debug("bucket page reclaimed", "class", p.class, "base", p.Base())
}

// TryResize resizes blk in place if it is the most recent allocation of its page and
// newSize stays within blk's size class. The block keeps its class size; on shrink the
// bytes past newSize are overwritten with the sentinel. Growing into a larger class is
// rejected: allocate, copy and release instead.
func (b *Bucket[P]) TryResize(blk *Block, newSize int) bool {
	b.panicIfReleased()
	if blk == nil || newSize <= 0 || newSize > PageSize {
		return false
	}
	p, off, ok := b.owner(*blk)
	if !ok || !p.IsLast(off, p.stride()) {
		return false
	}
	if Class(newSize) > p.class {
		return false
	}
	if newSize < blk.Size {
		p.Fill(off+newSize, blk.Size-newSize)
	}
	b.stats.resizes++
	debugValidate(b)
	return true
}

// Destroy returns every page of every class to the page pool.
// Every block the allocator returned becomes invalid. Destroying twice is a no-op.
func (b *Bucket[P]) Destroy() {
	if b.released {
		return
	}
	n := 0
	for class := range b.classes {
		for p := b.classes[class]; p != nil; {
			prev := p.prev
			b.pool.Put(p.Mem())
			p.prev = nil
			p = prev
			n++
		}
		b.classes[class] = nil
	}
	b.stats.pagesReleased += uint64(n)
	b.pages.Reset()
	b.released = true
	b.logger.Debug("bucket allocator destroyed", "pages", n)
}

func (b *Bucket[P]) UpdateStats(s *Stats) {
	for class := range b.classes {
		for p := b.classes[class]; p != nil; p = p.prev {
			s.Pages++
			s.CapacityBytes += p.Len() - p.Start()
			s.UsedBytes += p.Used()
		}
	}
	b.stats.addTo(s)
}

func (b *Bucket[P]) PrintDetailedMap(w *jwriter.Writer) {
	obj := w.Object()
	defer obj.End()

	var s Stats
	b.UpdateStats(&s)
	obj.Name("Strategy").String("bucket")
	obj.Name("Released").Bool(b.released)
	printStats(&obj, s)

	classes := obj.Name("Classes").Array()
	for class := range b.classes {
		if b.classes[class] == nil {
			continue
		}
		classObj := classes.Object()
		classObj.Name("Class").Int(class)
		classObj.Name("BlockSize").Int(ClassSize(class))
		pages := classObj.Name("Pages").Array()
		for p := b.classes[class]; p != nil; p = p.prev {
			pageObj := pages.Object()
			p.PrintDetailedMap(&pageObj)
			pageObj.Name("Blocks").Int(p.Used() / p.stride())
			pageObj.End()
		}
		pages.End()
		classObj.End()
	}
	classes.End()
}

// Validate checks every page header and cursor, and that the class chains and the page
// table agree.
func (b *Bucket[P]) Validate() error {
	n := 0
	for class := range b.classes {
		for p := b.classes[class]; p != nil; p = p.prev {
			if err := p.Validate(); err != nil {
				return errors.Wrapf(err, "bucket class %d", class)
			}
			if p.class != class || p.Tag() != uint64(class) {
				return errors.Wrapf(ErrCorrupted, "page of class %d linked into class %d", p.class, class)
			}
			if p.Used()%p.stride() != 0 {
				return errors.Wrapf(ErrCorrupted, "class %d cursor %d is not on a block boundary", class, p.Cursor())
			}
			if q, ok := b.pages.Lookup(p.Base()); !ok || q != p {
				return errors.Wrapf(ErrCorrupted, "bucket class %d page is not registered", class)
			}
			n++
		}
	}
	if n != b.pages.Len() {
		return errors.Wrapf(ErrCorrupted, "class chains hold %d pages, table has %d", n, b.pages.Len())
	}
	return nil
}
