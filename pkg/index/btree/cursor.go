package btree

import (
	"docstore/pkg/dberror"
	"docstore/pkg/index"
	"docstore/pkg/primitives"
)

// leafCursor walks the leaf sibling chain from a starting leaf, yielding
// live entries within [lower, upper]. Nil bounds are open; equal bounds
// give an exact-match scan. Pages are read lazily, one leaf at a time.
type leafCursor struct {
	idx     *Index
	pageNo  primitives.PageNumber
	current *node
	pos     int
	lower   primitives.Key
	upper   primitives.Key
	skip    int
	limit   int
	emitted int
	visited primitives.PageNumber
	pending *index.Entry
	done    bool
}

func newLeafCursor(idx *Index, start primitives.PageNumber, lower, upper primitives.Key, offset, limit int) *leafCursor {
	return &leafCursor{
		idx:    idx,
		pageNo: start,
		lower:  lower,
		upper:  upper,
		skip:   offset,
		limit:  limit,
	}
}

func (c *leafCursor) HasNext() (bool, error) {
	if c.pending != nil {
		return true, nil
	}
	if c.done {
		return false, nil
	}
	if c.limit > 0 && c.emitted >= c.limit {
		c.done = true
		return false, nil
	}

	for {
		if c.current == nil {
			n, err := c.idx.readNode(c.pageNo)
			if err != nil {
				c.done = true
				return false, err
			}
			c.current = n
			c.pos = 0
			c.visited++

			numPages, err := c.idx.file.NumPages()
			if err != nil {
				c.done = true
				return false, err
			}
			if c.visited > numPages {
				c.done = true
				return false, dberror.New(dberror.CategoryCorruption, "TREE_LINK_BROKEN",
					"leaf sibling chain contains a cycle").
					WithDetail("index %q", c.idx.name)
			}
		}

		for c.pos < len(c.current.entries) {
			e := c.current.entries[c.pos]
			c.pos++

			if c.upper != nil && e.Key.Compare(c.upper) > 0 {
				c.done = true
				return false, nil
			}
			if c.lower != nil && e.Key.Compare(c.lower) < 0 {
				continue
			}
			if !e.IsLive() {
				continue
			}
			if c.skip > 0 {
				c.skip--
				continue
			}

			c.pending = e
			c.emitted++
			return true, nil
		}

		if !c.current.hasNext() {
			c.done = true
			return false, nil
		}
		c.pageNo = c.current.next
		c.current = nil
	}
}

func (c *leafCursor) Next() (*index.Entry, error) {
	ok, err := c.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, index.ErrElemNotFound(c.idx.name)
	}
	e := c.pending
	c.pending = nil
	return e, nil
}

func (c *leafCursor) Close() error {
	c.current = nil
	c.pending = nil
	c.done = true
	return nil
}
