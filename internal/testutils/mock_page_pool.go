package testutils

import (
	"sync/atomic"

	"github.com/holmberd/go-alloc/internal/region"
)

// MockPagePool hands out sentinel-filled, page-aligned heap pages and counts calls.
type MockPagePool struct {
	getCalls atomic.Int64
	putCalls atomic.Int64
}

func (p *MockPagePool) PageSize() int {
	return region.PageSize
}

func (p *MockPagePool) Get() []byte {
	p.getCalls.Add(1)
	page := region.HeapPage()
	region.FillSentinel(page)
	return page
}

func (p *MockPagePool) Put(c []byte) {
	p.putCalls.Add(1)
}

func (p *MockPagePool) GetCalls() int64 {
	return p.getCalls.Load()
}

func (p *MockPagePool) PutCalls() int64 {
	return p.putCalls.Load()
}

func (p *MockPagePool) PagesInUse() int64 {
	return p.GetCalls() - p.PutCalls()
}

func (p *MockPagePool) Reset() {
	p.getCalls.Store(0)
	p.putCalls.Store(0)
}

// ShortPagePool hands out pages that are one byte too short, simulating a broken page source.
type ShortPagePool struct {
	MockPagePool
}

func (p *ShortPagePool) Get() []byte {
	return p.MockPagePool.Get()[:region.PageSize-1]
}

// WrongSizePagePool reports a page size other than region.PageSize.
type WrongSizePagePool struct {
	MockPagePool
}

func (p *WrongSizePagePool) PageSize() int {
	return region.PageSize * 2
}
