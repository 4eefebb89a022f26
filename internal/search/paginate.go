package search

import (
	"strconv"

	"github.com/soldeed/soldeed/internal/job"
)

const (
	// PageSize is the fixed number of postings per page.
	PageSize = 10

	// previewPageCap bounds how many pages a disconnected caller is told
	// about.
	previewPageCap = 3

	// maxPageNumbers is the widest page-number strip rendered before the
	// list is elided.
	maxPageNumbers = 5

	// Ellipsis marks elided page ranges in a page-number strip.
	Ellipsis = "..."
)

// TotalPages is the page count for n postings at the fixed page size.
func TotalPages(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + PageSize - 1) / PageSize
}

// Paginator tracks the 1-indexed current page over a filtered listing.
// Navigation outside [1, TotalPages] is a no-op, and callers without a
// connected wallet are confined to page 1 no matter what they request.
type Paginator struct {
	total     int
	pages     int
	current   int
	connected bool
}

func NewPaginator(itemCount int, connected bool) *Paginator {
	if itemCount < 0 {
		itemCount = 0
	}
	return &Paginator{
		total:     itemCount,
		pages:     TotalPages(itemCount),
		current:   1,
		connected: connected,
	}
}

func (p *Paginator) Current() int    { return p.current }
func (p *Paginator) TotalPages() int { return p.pages }

// VisibleTotalPages is the page count advertised to the caller; disconnected
// callers see at most the preview cap.
func (p *Paginator) VisibleTotalPages() int {
	if p.connected {
		return p.pages
	}
	if p.pages < previewPageCap {
		return p.pages
	}
	return previewPageCap
}

// GoTo jumps to a page. Out-of-range requests and requests from disconnected
// callers leave the current page unchanged.
func (p *Paginator) GoTo(page int) {
	if !p.connected {
		return
	}
	if page < 1 || page > p.pages {
		return
	}
	p.current = page
}

func (p *Paginator) Next() { p.GoTo(p.current + 1) }
func (p *Paginator) Prev() { p.GoTo(p.current - 1) }

// Slice returns the current page of the listing the paginator was sized for.
func (p *Paginator) Slice(jobs []job.Job) []job.Job {
	start := (p.current - 1) * PageSize
	if start >= len(jobs) {
		return nil
	}
	end := start + PageSize
	if end > len(jobs) {
		end = len(jobs)
	}
	return append([]job.Job(nil), jobs[start:end]...)
}

// PageNumbers renders the page-number strip: the full elided strip for
// connected callers, the preview strip otherwise.
func (p *Paginator) PageNumbers() []string {
	if p.connected {
		return pageNumbers(p.current, p.pages)
	}
	return previewPageNumbers(p.pages)
}

// pageNumbers lists every page up to maxPageNumbers; beyond that it keeps the
// first and last page and a window around the current one, eliding the rest.
func pageNumbers(current, total int) []string {
	if total <= 0 {
		return nil
	}
	if total <= maxPageNumbers {
		out := make([]string, 0, total)
		for i := 1; i <= total; i++ {
			out = append(out, strconv.Itoa(i))
		}
		return out
	}

	start := current - 1
	if start < 2 {
		start = 2
	}
	end := current + 1
	if end > total-1 {
		end = total - 1
	}
	if current <= 3 {
		end = 4
	}
	if current >= total-2 {
		start = total - 3
	}

	out := []string{"1"}
	if start > 2 {
		out = append(out, Ellipsis)
	}
	for i := start; i <= end; i++ {
		out = append(out, strconv.Itoa(i))
	}
	if end < total-1 {
		out = append(out, Ellipsis)
	}
	return append(out, strconv.Itoa(total))
}

// previewPageNumbers advertises that more pages exist without granting
// access: first page, second when present, then an ellipsis and the last
// page for longer listings.
func previewPageNumbers(total int) []string {
	if total <= 0 {
		return nil
	}
	out := []string{"1"}
	if total > 1 {
		out = append(out, "2")
	}
	if total > 2 {
		out = append(out, Ellipsis)
		if total > 3 {
			out = append(out, strconv.Itoa(total))
		}
	}
	return out
}
