package alloc

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// Stats represents allocator stats.
// UpdateStats adds into a Stats value, so one value can aggregate several allocators.
type Stats struct {
	Pages         int    // Pages (or fixed regions) currently backing the allocator.
	CapacityBytes int    // Usable bytes across those pages, headers excluded.
	UsedBytes     int    // Bytes carved so far, rounding included.
	Allocations   uint64 // Successful Allocate calls.
	Resizes       uint64 // Successful TryResize calls.
	PagesMapped   uint64 // Pages acquired from the page source.
	PagesReleased uint64 // Pages returned to the page source.
}

func (s *Stats) Reset() {
	*s = Stats{}
}

// Utilization returns the ratio of used to usable bytes (0.0 to 1.0).
func (s *Stats) Utilization() float64 {
	if s.CapacityBytes == 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.CapacityBytes)
}

// counters are the lifetime counters every allocator keeps.
type counters struct {
	allocations   uint64
	resizes       uint64
	pagesMapped   uint64
	pagesReleased uint64
}

func (c *counters) addTo(s *Stats) {
	s.Allocations += c.allocations
	s.Resizes += c.resizes
	s.PagesMapped += c.pagesMapped
	s.PagesReleased += c.pagesReleased
}

// DetailedMapper is implemented by allocators that can describe their page layout as JSON.
type DetailedMapper interface {
	PrintDetailedMap(w *jwriter.Writer)
}

// DetailedMap returns the JSON page layout of m.
func DetailedMap(m DetailedMapper) ([]byte, error) {
	w := jwriter.NewWriter()
	m.PrintDetailedMap(&w)
	if err := w.Error(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func printStats(obj *jwriter.ObjectState, s Stats) {
	obj.Name("Pages").Int(s.Pages)
	obj.Name("CapacityBytes").Int(s.CapacityBytes)
	obj.Name("UsedBytes").Int(s.UsedBytes)
	obj.Name("Allocations").Int(int(s.Allocations))
	obj.Name("Resizes").Int(int(s.Resizes))
	obj.Name("PagesMapped").Int(int(s.PagesMapped))
	obj.Name("PagesReleased").Int(int(s.PagesReleased))
}
