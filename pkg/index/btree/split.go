package btree

import (
	"bytes"
	"docstore/pkg/index"
	"docstore/pkg/primitives"
	"fmt"
)

// promotion is a separator bubbling up after a node split: keys >= key
// now live under right.
type promotion struct {
	key   primitives.Key
	right primitives.PageNumber
}

// insertAt inserts e into the subtree rooted at pageNo. When the node
// splits, the separator is returned for the caller to absorb. The depth
// guard breaks child-pointer cycles caused by corruption.
func (t *Index) insertAt(pageNo primitives.PageNumber, e *index.Entry, depth primitives.PageNumber) (*promotion, error) {
	numPages, err := t.file.NumPages()
	if err != nil {
		return nil, err
	}
	if depth > numPages {
		return nil, pageCorruption(pageNo, "insert descent did not terminate")
	}

	n, err := t.readNode(pageNo)
	if err != nil {
		return nil, err
	}

	if n.leaf {
		return t.insertIntoLeaf(n, e)
	}

	child := childFor(n, e.Key)
	if child >= numPages {
		return nil, pageCorruption(pageNo, "child pointer past end of file")
	}

	promo, err := t.insertAt(child, e, depth+1)
	if err != nil || promo == nil {
		return nil, err
	}
	return t.insertSeparator(n, *promo)
}

// insertIntoLeaf places e in key order, splitting at the midpoint when the
// leaf is full. Duplicate keys go after their equals so insertion order is
// preserved within a key.
func (t *Index) insertIntoLeaf(n *node, e *index.Entry) (*promotion, error) {
	pos := len(n.entries)
	for i, existing := range n.entries {
		if e.Key.Compare(existing.Key) < 0 {
			pos = i
			break
		}
	}

	if len(n.entries) < t.leafCapacity() {
		n.entries = append(n.entries[:pos],
			append([]*index.Entry{e}, n.entries[pos:]...)...)
		return nil, t.writeNode(n)
	}

	all := make([]*index.Entry, 0, len(n.entries)+1)
	all = append(all, n.entries[:pos]...)
	all = append(all, e)
	all = append(all, n.entries[pos:]...)

	mid := len(all) / 2
	rightNo, err := t.file.AllocatePage()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate leaf page: %w", err)
	}

	right := newLeafNode(rightNo, t.codec)
	right.entries = all[mid:]
	right.prev = n.pageNo
	right.next = n.next

	if n.hasNext() {
		sibling, err := t.readNode(n.next)
		if err != nil {
			return nil, err
		}
		sibling.prev = rightNo
		if err := t.writeNode(sibling); err != nil {
			return nil, err
		}
	}

	n.entries = all[:mid]
	n.next = rightNo

	if err := t.writeNode(right); err != nil {
		return nil, err
	}
	if err := t.writeNode(n); err != nil {
		return nil, err
	}

	return &promotion{key: bytes.Clone(right.entries[0].Key), right: rightNo}, nil
}

// insertSeparator places a promoted separator in an internal node,
// splitting it at the midpoint when full. The middle separator moves up
// instead of staying in either half.
func (t *Index) insertSeparator(n *node, p promotion) (*promotion, error) {
	pos := len(n.seps)
	for i, s := range n.seps {
		if p.key.Compare(s.key) < 0 {
			pos = i
			break
		}
	}

	if len(n.seps) < t.sepCapacity() {
		n.seps = append(n.seps[:pos],
			append([]separator{{key: p.key, child: p.right}}, n.seps[pos:]...)...)
		return nil, t.writeNode(n)
	}

	all := make([]separator, 0, len(n.seps)+1)
	all = append(all, n.seps[:pos]...)
	all = append(all, separator{key: p.key, child: p.right})
	all = append(all, n.seps[pos:]...)

	mid := len(all) / 2
	promoted := all[mid]

	rightNo, err := t.file.AllocatePage()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate internal page: %w", err)
	}

	right := newInternalNode(rightNo, promoted.child, t.codec)
	right.seps = all[mid+1:]
	n.seps = all[:mid]

	if err := t.writeNode(right); err != nil {
		return nil, err
	}
	if err := t.writeNode(n); err != nil {
		return nil, err
	}

	return &promotion{key: promoted.key, right: rightNo}, nil
}

// splitRoot absorbs a promotion that bubbled out of page 0. The root page
// number never changes: its current contents move to a fresh page, which
// becomes the leftmost child of the rewritten root.
func (t *Index) splitRoot(p *promotion) error {
	old, err := t.readNode(rootPage)
	if err != nil {
		return err
	}

	movedNo, err := t.file.AllocatePage()
	if err != nil {
		return fmt.Errorf("failed to allocate page for root split: %w", err)
	}
	old.pageNo = movedNo
	if err := t.writeNode(old); err != nil {
		return err
	}

	if old.leaf && old.hasNext() {
		sibling, err := t.readNode(old.next)
		if err != nil {
			return err
		}
		sibling.prev = movedNo
		if err := t.writeNode(sibling); err != nil {
			return err
		}
	}

	root := newInternalNode(rootPage, movedNo, t.codec)
	root.seps = []separator{{key: p.key, child: p.right}}
	return t.writeNode(root)
}
