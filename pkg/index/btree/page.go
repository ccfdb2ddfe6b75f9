package btree

import (
	"docstore/pkg/dberror"
	"docstore/pkg/index"
	"docstore/pkg/primitives"
	"encoding/binary"
	"fmt"
)

// Node page layouts. A leaf page carries sibling links and fixed-width
// entry records; an internal page carries a leftmost child pointer and
// fixed-width (key, child) separator records.
//
// Leaf:     [1B 'l'][8B prev][8B next][2B count][entries...]
// Internal: [1B 'i'][8B leftmost][2B count][separators...]
const (
	leafFlag     = byte('l')
	internalFlag = byte('i')

	leafHeaderSize     = 19
	internalHeaderSize = 11
)

// separator routes keys >= key to child. Keys below the first separator go
// to the node's leftmost child.
type separator struct {
	key   primitives.Key
	child primitives.PageNumber
}

func sepSize(codec index.EntryCodec) int {
	return codec.KeyWidth + 8
}

// node is the in-memory form of one tree page.
type node struct {
	pageNo primitives.PageNumber
	leaf   bool

	// Leaf fields. prev and next form the sibling chain.
	prev    primitives.PageNumber
	next    primitives.PageNumber
	entries []*index.Entry

	// Internal fields.
	leftmost primitives.PageNumber
	seps     []separator

	codec index.EntryCodec
}

func newLeafNode(pageNo primitives.PageNumber, codec index.EntryCodec) *node {
	return &node{
		pageNo: pageNo,
		leaf:   true,
		prev:   primitives.InvalidPageNumber,
		next:   primitives.InvalidPageNumber,
		codec:  codec,
	}
}

func newInternalNode(pageNo primitives.PageNumber, leftmost primitives.PageNumber, codec index.EntryCodec) *node {
	return &node{
		pageNo:   pageNo,
		leaf:     false,
		leftmost: leftmost,
		codec:    codec,
	}
}

func leafCapacity(codec index.EntryCodec) int {
	return (index.PageSize - leafHeaderSize) / codec.EntrySize()
}

func internalCapacity(codec index.EntryCodec) int {
	return (index.PageSize - internalHeaderSize) / sepSize(codec)
}

func (n *node) hasNext() bool {
	return n.next != primitives.InvalidPageNumber
}

func (n *node) hasPrev() bool {
	return n.prev != primitives.InvalidPageNumber
}

func (n *node) serialize() ([]byte, error) {
	data := make([]byte, index.PageSize)
	if n.leaf {
		return data, n.serializeLeaf(data)
	}
	return data, n.serializeInternal(data)
}

func (n *node) serializeLeaf(data []byte) error {
	if len(n.entries) > leafCapacity(n.codec) {
		return fmt.Errorf("leaf page %d holds %d entries, capacity %d",
			n.pageNo, len(n.entries), leafCapacity(n.codec))
	}

	data[0] = leafFlag
	binary.BigEndian.PutUint64(data[1:], uint64(n.prev))
	binary.BigEndian.PutUint64(data[9:], uint64(n.next))
	binary.BigEndian.PutUint16(data[17:], uint16(len(n.entries)))

	pos := leafHeaderSize
	size := n.codec.EntrySize()
	for _, e := range n.entries {
		if err := n.codec.Encode(data[pos:pos+size], e); err != nil {
			return err
		}
		pos += size
	}
	return nil
}

func (n *node) serializeInternal(data []byte) error {
	if len(n.seps) > internalCapacity(n.codec) {
		return fmt.Errorf("internal page %d holds %d separators, capacity %d",
			n.pageNo, len(n.seps), internalCapacity(n.codec))
	}

	data[0] = internalFlag
	binary.BigEndian.PutUint64(data[1:], uint64(n.leftmost))
	binary.BigEndian.PutUint16(data[9:], uint16(len(n.seps)))

	pos := internalHeaderSize
	for _, s := range n.seps {
		if len(s.key) != n.codec.KeyWidth {
			return fmt.Errorf("separator key width %d, want %d", len(s.key), n.codec.KeyWidth)
		}
		copy(data[pos:], s.key)
		pos += n.codec.KeyWidth
		binary.BigEndian.PutUint64(data[pos:], uint64(s.child))
		pos += 8
	}
	return nil
}

func deserializeNode(data []byte, pageNo primitives.PageNumber, codec index.EntryCodec) (*node, error) {
	if len(data) < internalHeaderSize {
		return nil, pageCorruption(pageNo, "page shorter than a node header")
	}

	switch data[0] {
	case leafFlag:
		return deserializeLeaf(data, pageNo, codec)
	case internalFlag:
		return deserializeInternal(data, pageNo, codec)
	default:
		return nil, pageCorruption(pageNo, "unknown node type flag")
	}
}

func deserializeLeaf(data []byte, pageNo primitives.PageNumber, codec index.EntryCodec) (*node, error) {
	n := newLeafNode(pageNo, codec)
	n.prev = primitives.PageNumber(binary.BigEndian.Uint64(data[1:]))
	n.next = primitives.PageNumber(binary.BigEndian.Uint64(data[9:]))
	count := int(binary.BigEndian.Uint16(data[17:]))

	size := codec.EntrySize()
	if leafHeaderSize+count*size > len(data) {
		return nil, pageCorruption(pageNo, "entry count exceeds page size")
	}

	n.entries = make([]*index.Entry, 0, count)
	pos := leafHeaderSize
	for i := 0; i < count; i++ {
		e, err := codec.Decode(data[pos : pos+size])
		if err != nil {
			return nil, pageCorruption(pageNo, err.Error())
		}
		if !e.Status.IsValid() {
			return nil, pageCorruption(pageNo, "entry has invalid status byte")
		}
		n.entries = append(n.entries, e)
		pos += size
	}
	return n, nil
}

func deserializeInternal(data []byte, pageNo primitives.PageNumber, codec index.EntryCodec) (*node, error) {
	leftmost := primitives.PageNumber(binary.BigEndian.Uint64(data[1:]))
	count := int(binary.BigEndian.Uint16(data[9:]))

	size := sepSize(codec)
	if internalHeaderSize+count*size > len(data) {
		return nil, pageCorruption(pageNo, "separator count exceeds page size")
	}

	n := newInternalNode(pageNo, leftmost, codec)
	n.seps = make([]separator, 0, count)
	pos := internalHeaderSize
	for i := 0; i < count; i++ {
		key := make(primitives.Key, codec.KeyWidth)
		copy(key, data[pos:pos+codec.KeyWidth])
		child := primitives.PageNumber(binary.BigEndian.Uint64(data[pos+codec.KeyWidth:]))
		n.seps = append(n.seps, separator{key: key, child: child})
		pos += size
	}
	return n, nil
}

func pageCorruption(pageNo primitives.PageNumber, detail string) error {
	return dberror.New(dberror.CategoryCorruption, "NODE_PAGE_MALFORMED", "tree node page failed to decode").
		WithDetail("page %d: %s", pageNo, detail)
}
