package hash

import (
	"docstore/pkg/index"
	"docstore/pkg/primitives"
	"encoding/binary"
	"fmt"
)

const (
	// Bucket page header:
	// 8 bytes: overflow page number (InvalidPageNumber if none)
	// 2 bytes: number of entries
	pageHeaderSize = 10
)

// bucketPage is the in-memory form of one hash bucket page: a fixed
// capacity chain segment of entries plus a pointer to the next overflow
// page. Capacity is derived from the entry width fixed at creation time.
type bucketPage struct {
	pageNo   primitives.PageNumber
	overflow primitives.PageNumber
	entries  []*index.Entry
	codec    index.EntryCodec
}

func newBucketPage(pageNo primitives.PageNumber, codec index.EntryCodec) *bucketPage {
	return &bucketPage{
		pageNo:   pageNo,
		overflow: primitives.InvalidPageNumber,
		codec:    codec,
	}
}

// capacity returns how many entries fit in one page for this codec.
func capacity(codec index.EntryCodec) int {
	return (index.PageSize - pageHeaderSize) / codec.EntrySize()
}

func (p *bucketPage) isFull() bool {
	return len(p.entries) >= capacity(p.codec)
}

func (p *bucketPage) hasOverflow() bool {
	return p.overflow != primitives.InvalidPageNumber
}

func (p *bucketPage) addEntry(e *index.Entry) error {
	if p.isFull() {
		return fmt.Errorf("bucket page %d is full", p.pageNo)
	}
	p.entries = append(p.entries, e)
	return nil
}

// serialize renders the page into exactly index.PageSize bytes.
func (p *bucketPage) serialize() ([]byte, error) {
	data := make([]byte, index.PageSize)
	binary.BigEndian.PutUint64(data[0:8], uint64(p.overflow))
	binary.BigEndian.PutUint16(data[8:10], uint16(len(p.entries)))

	entrySize := p.codec.EntrySize()
	pos := pageHeaderSize
	for i, e := range p.entries {
		if err := p.codec.Encode(data[pos:pos+entrySize], e); err != nil {
			return nil, fmt.Errorf("failed to serialize entry %d: %w", i, err)
		}
		pos += entrySize
	}
	return data, nil
}

// deserializeBucketPage parses a raw page back into memory.
func deserializeBucketPage(data []byte, pageNo primitives.PageNumber, codec index.EntryCodec) (*bucketPage, error) {
	if len(data) < pageHeaderSize {
		return nil, fmt.Errorf("bucket page %d too short", pageNo)
	}

	p := &bucketPage{
		pageNo:   pageNo,
		overflow: primitives.PageNumber(binary.BigEndian.Uint64(data[0:8])),
		codec:    codec,
	}
	numEntries := int(binary.BigEndian.Uint16(data[8:10]))

	entrySize := codec.EntrySize()
	if pageHeaderSize+numEntries*entrySize > len(data) {
		return nil, fmt.Errorf("bucket page %d claims %d entries, more than fit", pageNo, numEntries)
	}

	p.entries = make([]*index.Entry, 0, numEntries)
	pos := pageHeaderSize
	for i := 0; i < numEntries; i++ {
		e, err := codec.Decode(data[pos : pos+entrySize])
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize entry %d: %w", i, err)
		}
		p.entries = append(p.entries, e)
		pos += entrySize
	}
	return p, nil
}
