package bitrix

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/b24/internal/constants"
)

// PageRequest addresses one page of a list call.
type PageRequest struct {
	// Start is the row offset of the page.
	Start int
	// Limit caps the number of rows returned. Zero means the default page
	// size; values above the portal's page cap are rejected.
	Limit int
}

// Normalize validates the request and fills in the default limit.
func (p PageRequest) Normalize() (PageRequest, error) {
	if p.Start < 0 {
		return p, fmt.Errorf("%w: negative start offset %d", ErrPagination, p.Start)
	}

	if p.Limit < 0 || p.Limit > constants.MaxPageSize {
		return p, fmt.Errorf("%w: limit %d outside 1..%d", ErrPagination, p.Limit, constants.MaxPageSize)
	}

	if p.Limit == 0 {
		p.Limit = constants.DefaultPageSize
	}

	return p, nil
}

// PageFetcher fetches one portal page starting at the given row offset.
// internal/client repositories implement it over their list method.
type PageFetcher interface {
	FetchPage(ctx context.Context, start int) (*ListResponse, error)
}

// Pager iterates lazily over all rows of a list call, concatenating pages in
// server order. Re-creating the pager restarts the scan from the beginning.
type Pager struct {
	ctx     context.Context
	fetcher PageFetcher
	start   int
	buffer  []Record
	index   int
	done    bool
	err     error
}

// NewPager creates a pager beginning at the request's start offset.
func NewPager(ctx context.Context, fetcher PageFetcher, start int) *Pager {
	return &Pager{
		ctx:     ctx,
		fetcher: fetcher,
		start:   start,
	}
}

// HasNext reports whether another record is available. It fetches pages as
// needed, skipping empty intermediate pages while the portal still signals
// more data.
func (p *Pager) HasNext() bool {
	if p.err != nil {
		return false
	}

	for p.index >= len(p.buffer) {
		if p.done {
			return false
		}

		if !p.fetchNext() {
			return false
		}
	}

	return true
}

// Next returns the next record. Call HasNext first; calling Next past the
// end returns ErrPagination.
func (p *Pager) Next() (Record, error) {
	if !p.HasNext() {
		if p.err != nil {
			return nil, p.err
		}

		return nil, fmt.Errorf("%w: iterated past end of data", ErrPagination)
	}

	record := p.buffer[p.index]
	p.index++

	return record, nil
}

// All drains the pager and returns every remaining record.
func (p *Pager) All() ([]Record, error) {
	var all []Record

	for p.HasNext() {
		record, err := p.Next()
		if err != nil {
			return nil, err
		}

		all = append(all, record)
	}

	if p.err != nil {
		return nil, p.err
	}

	return all, nil
}

// fetchNext pulls the page at the current offset into the buffer. Returns
// false when iteration must stop, either because the data is exhausted or an
// error occurred.
func (p *Pager) fetchNext() bool {
	if p.start > constants.MaxPageStart {
		p.err = fmt.Errorf("%w: start offset %d exceeds %d", ErrPagination, p.start, constants.MaxPageStart)

		return false
	}

	page, err := p.fetcher.FetchPage(p.ctx, p.start)
	if err != nil {
		p.err = err

		return false
	}

	if len(page.Result) > constants.PortalPageSize {
		p.err = fmt.Errorf("%w: portal returned %d rows for a page of %d",
			ErrPagination, len(page.Result), constants.PortalPageSize)

		return false
	}

	p.buffer = page.Result
	p.index = 0

	switch {
	case page.Next != nil:
		if *page.Next <= p.start {
			p.err = fmt.Errorf("%w: next offset %d does not advance past %d", ErrPagination, *page.Next, p.start)

			return false
		}

		p.start = *page.Next
	case len(page.Result) < constants.PortalPageSize:
		// A short page with no continuation marker ends the scan.
		p.done = true
	default:
		p.start += constants.PortalPageSize
		p.done = page.Total > 0 && p.start >= page.Total
	}

	return true
}
