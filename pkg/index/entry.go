package index

import (
	"docstore/pkg/primitives"
	"encoding/binary"
	"fmt"
)

// Entry is a single index record: a fixed-width key, the primary key of
// the document it belongs to, a (start, size) handle into the index's
// paired storage, and a status byte.
type Entry struct {
	Key    primitives.Key
	DocID  primitives.Key
	Start  primitives.Offset
	Size   primitives.RecordSize
	Status primitives.Status
}

// NewEntry creates a live entry.
func NewEntry(key, docID primitives.Key, start primitives.Offset, size primitives.RecordSize) *Entry {
	return &Entry{
		Key:    key,
		DocID:  docID,
		Start:  start,
		Size:   size,
		Status: primitives.StatusOpen,
	}
}

// Matches reports whether the entry belongs to the given key and document.
func (e *Entry) Matches(key, docID primitives.Key) bool {
	return e.Key.Equal(key) && e.DocID.Equal(docID)
}

// IsLive reports whether the entry is active.
func (e *Entry) IsLive() bool {
	return e.Status == primitives.StatusOpen
}

// EntryCodec serializes entries at a fixed width determined by the index's
// key and docID widths. The width is fixed at index creation time; every
// slot in a bucket or node page is exactly EntrySize bytes.
type EntryCodec struct {
	KeyWidth   int
	DocIDWidth int
}

// EntrySize returns the serialized size of one entry:
// key + docID + 8 bytes start + 4 bytes size + 1 byte status.
func (c EntryCodec) EntrySize() int {
	return c.KeyWidth + c.DocIDWidth + 8 + 4 + 1
}

// Encode writes an entry into buf, which must be exactly EntrySize bytes.
func (c EntryCodec) Encode(buf []byte, e *Entry) error {
	if len(buf) != c.EntrySize() {
		return fmt.Errorf("entry buffer size %d, want %d", len(buf), c.EntrySize())
	}
	if len(e.Key) != c.KeyWidth {
		return fmt.Errorf("entry key width %d, want %d", len(e.Key), c.KeyWidth)
	}
	if len(e.DocID) != c.DocIDWidth {
		return fmt.Errorf("entry docID width %d, want %d", len(e.DocID), c.DocIDWidth)
	}

	pos := 0
	copy(buf[pos:], e.Key)
	pos += c.KeyWidth
	copy(buf[pos:], e.DocID)
	pos += c.DocIDWidth
	binary.BigEndian.PutUint64(buf[pos:], uint64(e.Start))
	pos += 8
	binary.BigEndian.PutUint32(buf[pos:], uint32(e.Size))
	pos += 4
	buf[pos] = byte(e.Status)
	return nil
}

// Decode reads an entry from buf, which must be exactly EntrySize bytes.
func (c EntryCodec) Decode(buf []byte) (*Entry, error) {
	if len(buf) != c.EntrySize() {
		return nil, fmt.Errorf("entry buffer size %d, want %d", len(buf), c.EntrySize())
	}

	e := &Entry{
		Key:   make(primitives.Key, c.KeyWidth),
		DocID: make(primitives.Key, c.DocIDWidth),
	}
	pos := 0
	copy(e.Key, buf[pos:pos+c.KeyWidth])
	pos += c.KeyWidth
	copy(e.DocID, buf[pos:pos+c.DocIDWidth])
	pos += c.DocIDWidth
	e.Start = primitives.Offset(binary.BigEndian.Uint64(buf[pos:]))
	pos += 8
	e.Size = primitives.RecordSize(binary.BigEndian.Uint32(buf[pos:]))
	pos += 4
	e.Status = primitives.Status(buf[pos])
	return e, nil
}
