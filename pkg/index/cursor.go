package index

// Cursor is a finite, lazy sequence of index entries stepped with explicit
// HasNext/Next calls. Cursors are not safe for concurrent use; restart by
// asking the index for a fresh one.
type Cursor interface {
	// HasNext reports whether another entry is available.
	HasNext() (bool, error)

	// Next returns the next entry.
	Next() (*Entry, error)

	// Close releases any resources held by the cursor.
	Close() error
}

// Collect drains a cursor into a slice and closes it. Mostly a test and
// reindex convenience; large scans should step the cursor instead.
func Collect(c Cursor) ([]*Entry, error) {
	defer c.Close()

	var entries []*Entry
	for {
		ok, err := c.HasNext()
		if err != nil {
			return entries, err
		}
		if !ok {
			return entries, nil
		}
		e, err := c.Next()
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}

// sliceCursor steps over a pre-materialized entry list.
type sliceCursor struct {
	entries []*Entry
	pos     int
}

// NewSliceCursor wraps already-materialized entries in the Cursor
// interface.
func NewSliceCursor(entries []*Entry) Cursor {
	return &sliceCursor{entries: entries}
}

func (c *sliceCursor) HasNext() (bool, error) {
	return c.pos < len(c.entries), nil
}

func (c *sliceCursor) Next() (*Entry, error) {
	if c.pos >= len(c.entries) {
		return nil, errCursorExhausted
	}
	e := c.entries[c.pos]
	c.pos++
	return e, nil
}

func (c *sliceCursor) Close() error {
	c.entries = nil
	return nil
}
