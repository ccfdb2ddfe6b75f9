package hash

import (
	"docstore/pkg/index"
	"docstore/pkg/logging"
	"docstore/pkg/primitives"
)

// chainCursor yields live entries matching one key by walking a bucket's
// overflow chain page by page.
type chainCursor struct {
	idx     *Index
	key     primitives.Key
	skip    int
	limit   int
	yielded int

	nextPage primitives.PageNumber
	entries  []*index.Entry
	pos      int
	buffered *index.Entry
	done     bool
}

func newChainCursor(idx *Index, bucket primitives.PageNumber, key primitives.Key, offset, limit int) *chainCursor {
	return &chainCursor{
		idx:      idx,
		key:      key,
		skip:     offset,
		limit:    limit,
		nextPage: bucket,
	}
}

func (c *chainCursor) HasNext() (bool, error) {
	if c.buffered != nil {
		return true, nil
	}
	if c.done || (c.limit > 0 && c.yielded >= c.limit) {
		return false, nil
	}

	for {
		for c.pos < len(c.entries) {
			e := c.entries[c.pos]
			c.pos++
			if e.IsLive() && e.Key.Equal(c.key) {
				if c.skip > 0 {
					c.skip--
					continue
				}
				c.buffered = e
				return true, nil
			}
		}

		if c.nextPage == primitives.InvalidPageNumber {
			c.done = true
			return false, nil
		}

		page, err := c.idx.readPage(c.nextPage)
		if err != nil {
			c.done = true
			return false, err
		}
		c.entries = page.entries
		c.pos = 0
		c.nextPage = page.overflow
	}
}

func (c *chainCursor) Next() (*index.Entry, error) {
	ok, err := c.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, index.ErrElemNotFound(c.idx.name)
	}
	e := c.buffered
	c.buffered = nil
	c.yielded++
	return e, nil
}

func (c *chainCursor) Close() error {
	c.entries = nil
	c.buffered = nil
	c.done = true
	return nil
}

// scanCursor yields every live entry in physical bucket order: bucket head
// pages first, then overflow pages in allocation order.
type scanCursor struct {
	idx      *Index
	skip     int
	pageNo   primitives.PageNumber
	numPages primitives.PageNumber
	counted  bool
	entries  []*index.Entry
	pos      int
	buffered *index.Entry
	done     bool
}

func newScanCursor(idx *Index, offset int) *scanCursor {
	return &scanCursor{idx: idx, skip: offset}
}

func (c *scanCursor) HasNext() (bool, error) {
	if c.buffered != nil {
		return true, nil
	}
	if c.done {
		return false, nil
	}

	if !c.counted {
		n, err := c.idx.file.NumPages()
		if err != nil {
			c.done = true
			return false, err
		}
		c.numPages = n
		c.counted = true
	}

	for {
		for c.pos < len(c.entries) {
			e := c.entries[c.pos]
			c.pos++
			if e.IsLive() {
				if c.skip > 0 {
					c.skip--
					continue
				}
				c.buffered = e
				return true, nil
			}
		}

		if c.pageNo >= c.numPages {
			c.done = true
			return false, nil
		}

		page, err := c.idx.readPage(c.pageNo)
		c.pageNo++
		if err != nil {
			// One bad page must not block the rest of the scan.
			logging.Warn("skipping unreadable index page",
				"index", c.idx.name, "page", c.pageNo-1, "error", err)
			continue
		}
		c.entries = page.entries
		c.pos = 0
	}
}

func (c *scanCursor) Next() (*index.Entry, error) {
	ok, err := c.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, index.ErrElemNotFound(c.idx.name)
	}
	e := c.buffered
	c.buffered = nil
	return e, nil
}

func (c *scanCursor) Close() error {
	c.entries = nil
	c.buffered = nil
	c.done = true
	return nil
}
