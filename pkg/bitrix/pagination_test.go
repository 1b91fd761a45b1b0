package bitrix_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// fakeFetcher serves pre-built pages keyed by start offset.
type fakeFetcher struct {
	pages map[int]*bitrix.ListResponse
	calls int
}

func (f *fakeFetcher) FetchPage(ctx context.Context, start int) (*bitrix.ListResponse, error) {
	f.calls++

	page, ok := f.pages[start]
	if !ok {
		return nil, fmt.Errorf("unexpected start offset %d", start)
	}

	return page, nil
}

// makeRecords builds n sequential records starting at firstID.
func makeRecords(firstID, n int) []bitrix.Record {
	records := make([]bitrix.Record, n)
	for i := range n {
		records[i] = bitrix.Record{"ID": strconv.Itoa(firstID + i)}
	}

	return records
}

func intPtr(v int) *int { return &v }

func TestPageRequestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("zero limit becomes default", func(t *testing.T) {
		t.Parallel()

		page, err := bitrix.PageRequest{}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, 50, page.Limit)
	})

	t.Run("negative start fails", func(t *testing.T) {
		t.Parallel()

		_, err := bitrix.PageRequest{Start: -1}.Normalize()
		require.ErrorIs(t, err, bitrix.ErrPagination)
	})

	t.Run("limit above page cap fails", func(t *testing.T) {
		t.Parallel()

		_, err := bitrix.PageRequest{Limit: 51}.Normalize()
		require.ErrorIs(t, err, bitrix.ErrPagination)
	})
}

func TestPagerAll(t *testing.T) {
	t.Parallel()

	t.Run("concatenates pages without gaps or duplicates", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[int]*bitrix.ListResponse{
			0:   {Result: makeRecords(1, 50), Total: 120, Next: intPtr(50)},
			50:  {Result: makeRecords(51, 50), Total: 120, Next: intPtr(100)},
			100: {Result: makeRecords(101, 20), Total: 120},
		}}

		records, err := bitrix.NewPager(context.Background(), fetcher, 0).All()
		require.NoError(t, err)
		require.Len(t, records, 120)

		seen := make(map[string]bool, len(records))
		for i, record := range records {
			id := record.String("ID")
			assert.False(t, seen[id], "duplicate ID %s", id)
			seen[id] = true
			assert.Equal(t, strconv.Itoa(i+1), id)
		}

		assert.Equal(t, 3, fetcher.calls)
	})

	t.Run("short page without next ends the scan", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[int]*bitrix.ListResponse{
			0: {Result: makeRecords(1, 3), Total: 3},
		}}

		records, err := bitrix.NewPager(context.Background(), fetcher, 0).All()
		require.NoError(t, err)
		assert.Len(t, records, 3)
		assert.Equal(t, 1, fetcher.calls)
	})

	t.Run("empty result set", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[int]*bitrix.ListResponse{
			0: {Result: nil, Total: 0},
		}}

		records, err := bitrix.NewPager(context.Background(), fetcher, 0).All()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("full page without next advances by page size", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[int]*bitrix.ListResponse{
			0:  {Result: makeRecords(1, 50), Total: 60},
			50: {Result: makeRecords(51, 10), Total: 60},
		}}

		records, err := bitrix.NewPager(context.Background(), fetcher, 0).All()
		require.NoError(t, err)
		assert.Len(t, records, 60)
	})

	t.Run("non-advancing next offset fails", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[int]*bitrix.ListResponse{
			0: {Result: makeRecords(1, 50), Total: 500, Next: intPtr(0)},
		}}

		_, err := bitrix.NewPager(context.Background(), fetcher, 0).All()
		require.ErrorIs(t, err, bitrix.ErrPagination)
	})

	t.Run("oversized page fails", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[int]*bitrix.ListResponse{
			0: {Result: makeRecords(1, 51), Total: 51},
		}}

		_, err := bitrix.NewPager(context.Background(), fetcher, 0).All()
		require.ErrorIs(t, err, bitrix.ErrPagination)
	})
}

func TestPagerNext(t *testing.T) {
	t.Parallel()

	t.Run("iterates lazily", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[int]*bitrix.ListResponse{
			0: {Result: makeRecords(1, 2), Total: 2},
		}}

		pager := bitrix.NewPager(context.Background(), fetcher, 0)

		require.True(t, pager.HasNext())

		first, err := pager.Next()
		require.NoError(t, err)
		assert.Equal(t, "1", first.String("ID"))

		second, err := pager.Next()
		require.NoError(t, err)
		assert.Equal(t, "2", second.String("ID"))

		assert.False(t, pager.HasNext())
	})

	t.Run("next past end fails", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[int]*bitrix.ListResponse{
			0: {Result: nil, Total: 0},
		}}

		pager := bitrix.NewPager(context.Background(), fetcher, 0)

		_, err := pager.Next()
		require.ErrorIs(t, err, bitrix.ErrPagination)
	})
}
