// Package btree implements the on-disk tree index: a B+ tree whose leaves
// hold the entry records in ascending key order and are linked into a
// sibling chain for ordered and range scans. Internal pages hold separator
// keys only. The root lives at page 0 for the life of the index; a root
// split moves its contents into children instead of moving the root.
package btree

import (
	"docstore/pkg/dberror"
	"docstore/pkg/document"
	"docstore/pkg/index"
	"docstore/pkg/primitives"
	"docstore/pkg/storage"
	"fmt"
)

// Options fixes the shape of a tree index at creation time.
type Options struct {
	KeyWidth   int
	DocIDWidth int
	Unique     bool

	// NodeCapacity caps the records per node. Zero derives the capacity
	// from the page size. Values above what a page can hold are clamped.
	NodeCapacity int
}

// DefaultOptions mirror the stock definitions: 32-byte hex digest keys,
// page-derived node capacity.
func DefaultOptions() Options {
	return Options{
		KeyWidth:   primitives.DefaultKeyWidth,
		DocIDWidth: primitives.DefaultKeyWidth,
	}
}

// Index is a tree-based secondary index over one node file and one paired
// storage file. Lookups cost O(log n); All and GetRange walk the leaf
// sibling chain in ascending key order.
type Index struct {
	name    string
	kind    index.Kind
	def     index.Definition
	opts    Options
	file    *index.PagedFile
	store   *storage.Storage
	meta    *index.Metadata
	codec   index.EntryCodec
	dbPath  string
	version int
}

const rootPage = primitives.PageNumber(0)

// New creates a tree index handle named name under dbPath. The files are
// not touched until Create or Open.
func New(dbPath, name string, def index.Definition, opts Options) *Index {
	return &Index{
		name:    name,
		kind:    index.KindTree,
		def:     def,
		opts:    opts,
		dbPath:  dbPath,
		version: 1,
		file:    index.NewPagedFile(primitives.Filepath(dbPath).Join(name + "_node")),
		store:   storage.New(dbPath, name),
	}
}

// NewMulti creates a tree index whose definition may yield several keys
// per document. The on-disk structure is identical; only the key fan-out
// policy differs.
func NewMulti(dbPath, name string, def index.Definition, opts Options) *Index {
	t := New(dbPath, name, def, opts)
	t.kind = index.KindMultiTree
	return t
}

func (t *Index) Name() string { return t.name }

func (t *Index) Kind() index.Kind { return t.kind }

func (t *Index) Storage() *storage.Storage { return t.store }

// MakeKey delegates to the definition, then canonicalizes to the fixed
// key width.
func (t *Index) MakeKey(raw []byte) ([]byte, error) {
	key, err := t.def.MakeKey(raw)
	if err != nil {
		return nil, err
	}
	padded, err := primitives.PadKey(key, t.opts.KeyWidth)
	if err != nil {
		return nil, dberror.Wrap(err, "KEY_TOO_WIDE", "MakeKey", "TreeIndex")
	}
	return padded, nil
}

// MakeKeyValue delegates to the definition. Only the multi variant honors
// more than one key per document.
func (t *Index) MakeKeyValue(doc document.Document) ([][]byte, error) {
	keys, err := t.def.MakeKeyValue(doc)
	if err != nil {
		return nil, err
	}
	if t.kind != index.KindMultiTree && len(keys) > 1 {
		return nil, dberror.New(dberror.CategoryConfig, "MULTI_KEY_UNSUPPORTED",
			"tree index definitions must yield at most one key").
			WithDetail("index %q got %d keys", t.name, len(keys))
	}
	return keys, nil
}

// Create initializes the node file with an empty leaf root and the paired
// storage file.
func (t *Index) Create() error {
	if t.opts.KeyWidth <= 0 {
		return dberror.New(dberror.CategoryConfig, "BAD_INDEX_OPTIONS", "key width must be positive").
			WithDetail("index %q", t.name)
	}

	t.meta = &index.Metadata{
		Name:         t.name,
		Kind:         t.kind,
		Version:      t.version,
		KeyWidth:     t.opts.KeyWidth,
		DocIDWidth:   t.opts.DocIDWidth,
		NodeCapacity: t.opts.NodeCapacity,
		Unique:       t.opts.Unique,
	}
	t.codec = t.meta.Codec()

	if t.leafCapacity() < 2 || t.sepCapacity() < 2 {
		return dberror.New(dberror.CategoryConfig, "BAD_INDEX_OPTIONS", "node capacity must hold at least two records").
			WithDetail("index %q", t.name)
	}

	if err := t.file.Create(t.meta); err != nil {
		return err
	}

	root := newLeafNode(rootPage, t.codec)
	if err := t.writeNode(root); err != nil {
		return err
	}

	return t.store.Create()
}

// Open opens both backing files and validates the header against the
// registered shape.
func (t *Index) Open() error {
	meta, err := t.file.Open()
	if err != nil {
		return err
	}
	if meta.Kind != t.kind {
		t.file.Close()
		return index.ErrReindexRequired(t.name, fmt.Sprintf("file is a %s index, definition expects %s", meta.Kind, t.kind))
	}
	if meta.KeyWidth != t.opts.KeyWidth || meta.NodeCapacity != t.opts.NodeCapacity {
		t.file.Close()
		return index.ErrReindexRequired(t.name, "key width or node capacity differs from the on-disk index")
	}

	t.meta = meta
	t.codec = meta.Codec()

	if err := t.store.Open(); err != nil {
		t.file.Close()
		return err
	}
	return nil
}

// Close flushes metadata and closes both files.
func (t *Index) Close() error {
	if t.file.Opened() {
		t.Flush()
	}
	err := t.file.Close()
	if cerr := t.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Destroy removes both backing files. The index must be closed first.
func (t *Index) Destroy() error {
	if err := t.file.Destroy(); err != nil {
		return err
	}
	return t.store.Destroy()
}

// Flush persists the element counter and syncs, best-effort.
func (t *Index) Flush() {
	if t.meta != nil && t.file.Opened() {
		_ = t.file.UpdateHeader(t.meta)
	}
	t.file.Fsync()
	t.store.Flush()
}

// Fsync syncs both files, best-effort.
func (t *Index) Fsync() {
	t.file.Fsync()
	t.store.Fsync()
}

// Count returns the number of live entries.
func (t *Index) Count() uint64 {
	if t.meta == nil {
		return 0
	}
	return t.meta.Elements
}

// Insert adds an entry for (key, docID), splitting nodes on the way down
// as needed. Duplicate live keys are fine unless the index is unique.
func (t *Index) Insert(docID, key []byte, start primitives.Offset, size primitives.RecordSize) error {
	k, id, err := t.canonical(key, docID)
	if err != nil {
		return err
	}

	if t.meta.Unique {
		if _, err := t.lookup(k); err == nil {
			return index.ErrConflict(t.name)
		} else if !dberror.IsNotFound(err) {
			return err
		}
	}

	promo, err := t.insertAt(rootPage, index.NewEntry(k, id, start, size), 0)
	if err != nil {
		return err
	}
	if promo != nil {
		if err := t.splitRoot(promo); err != nil {
			return err
		}
	}

	t.meta.Elements++
	return nil
}

// Update repoints the live entry for (key, docID) at a new handle.
func (t *Index) Update(docID, key []byte, start primitives.Offset, size primitives.RecordSize) error {
	k, id, err := t.canonical(key, docID)
	if err != nil {
		return err
	}

	found := false
	err = t.walkMatching(k, func(n *node) (bool, error) {
		for _, e := range n.entries {
			if e.IsLive() && e.Matches(k, id) {
				e.Start = start
				e.Size = size
				found = true
			}
		}
		if found {
			return false, t.writeNode(n)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return index.ErrDocIDNotFound(t.name)
	}
	return nil
}

// Delete marks every live entry for (key, docID) deleted. The tree never
// shrinks; space is reclaimed by Compact. Nothing found is not an error.
func (t *Index) Delete(key, docID []byte) error {
	k, id, err := t.canonical(key, docID)
	if err != nil {
		return err
	}

	return t.walkMatching(k, func(n *node) (bool, error) {
		marked := 0
		for _, e := range n.entries {
			if e.IsLive() && e.Matches(k, id) {
				e.Status = primitives.StatusDeleted
				marked++
			}
		}
		if marked > 0 {
			if err := t.writeNode(n); err != nil {
				return false, err
			}
			t.meta.Elements -= uint64(marked)
		}
		return true, nil
	})
}

// InsertWithStorage stores value in the paired storage first, then indexes
// its handle. A nil value indexes the empty sentinel handle.
func (t *Index) InsertWithStorage(docID, key, value []byte) error {
	start, size, err := t.saveValue(value)
	if err != nil {
		return err
	}
	return t.Insert(docID, key, start, size)
}

// UpdateWithStorage is Update with the same storage-first convention.
func (t *Index) UpdateWithStorage(docID, key, value []byte) error {
	start, size, err := t.saveValue(value)
	if err != nil {
		return err
	}
	return t.Update(docID, key, start, size)
}

// Get returns the first live entry for key.
func (t *Index) Get(key []byte) (*index.Entry, error) {
	k, err := primitives.PadKey(key, t.opts.KeyWidth)
	if err != nil {
		return nil, dberror.Wrap(err, "KEY_TOO_WIDE", "Get", "TreeIndex")
	}
	return t.lookup(k)
}

// GetMany returns a cursor over live entries matching key in insertion
// order within the key. The first offset matches are skipped, then up to
// limit entries are yielded (0 = unlimited).
func (t *Index) GetMany(key []byte, offset, limit int) (index.Cursor, error) {
	k, err := primitives.PadKey(key, t.opts.KeyWidth)
	if err != nil {
		return nil, dberror.Wrap(err, "KEY_TOO_WIDE", "GetMany", "TreeIndex")
	}

	start, err := t.startLeafFor(k)
	if err != nil {
		return nil, err
	}
	return newLeafCursor(t, start, k, k, offset, limit), nil
}

// GetRange returns a cursor over live entries with start <= key <= end in
// ascending key order, up to limit (0 = unlimited). A nil bound is open.
func (t *Index) GetRange(startKey, endKey []byte, limit int) (index.Cursor, error) {
	var lower, upper primitives.Key
	var err error

	if startKey != nil {
		lower, err = primitives.PadKey(startKey, t.opts.KeyWidth)
		if err != nil {
			return nil, dberror.Wrap(err, "KEY_TOO_WIDE", "GetRange", "TreeIndex")
		}
	}
	if endKey != nil {
		upper, err = primitives.PadKey(endKey, t.opts.KeyWidth)
		if err != nil {
			return nil, dberror.Wrap(err, "KEY_TOO_WIDE", "GetRange", "TreeIndex")
		}
	}

	var first primitives.PageNumber
	if lower != nil {
		first, err = t.startLeafFor(lower)
	} else {
		first, err = t.leftmostLeaf()
	}
	if err != nil {
		return nil, err
	}
	return newLeafCursor(t, first, lower, upper, 0, limit), nil
}

// All returns a cursor over every live entry in ascending key order,
// skipping the first offset entries.
func (t *Index) All(offset int) (index.Cursor, error) {
	first, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	return newLeafCursor(t, first, nil, nil, offset, 0), nil
}

// lookup finds the first live entry for an already-canonical key.
func (t *Index) lookup(k primitives.Key) (*index.Entry, error) {
	var found *index.Entry
	err := t.walkMatching(k, func(n *node) (bool, error) {
		for _, e := range n.entries {
			if e.IsLive() && e.Key.Equal(k) {
				found = e
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, index.ErrElemNotFound(t.name)
	}
	return found, nil
}

// descend walks from the root to the leaf whose key range contains k.
// A depth guard breaks child-pointer cycles caused by corruption.
func (t *Index) descend(k primitives.Key) (*node, error) {
	numPages, err := t.file.NumPages()
	if err != nil {
		return nil, err
	}

	current := rootPage
	for depth := primitives.PageNumber(0); depth <= numPages; depth++ {
		n, err := t.readNode(current)
		if err != nil {
			return nil, err
		}
		if n.leaf {
			return n, nil
		}
		current = childFor(n, k)
		if current >= numPages {
			return nil, dberror.New(dberror.CategoryCorruption, "TREE_LINK_BROKEN", "child pointer past end of file").
				WithDetail("index %q page %d", t.name, n.pageNo)
		}
	}

	return nil, dberror.New(dberror.CategoryCorruption, "TREE_LINK_BROKEN", "descent did not reach a leaf").
		WithDetail("index %q", t.name)
}

// childFor picks the child covering k: the rightmost separator with
// key <= k wins, otherwise the leftmost child.
func childFor(n *node, k primitives.Key) primitives.PageNumber {
	for i := len(n.seps) - 1; i >= 0; i-- {
		if k.Compare(n.seps[i].key) >= 0 {
			return n.seps[i].child
		}
	}
	return n.leftmost
}

// startLeafFor finds the first leaf that can hold k. Entries equal to a
// separator key may straddle a split boundary, so the descent target is
// walked back along the sibling chain while its first entry still matches.
func (t *Index) startLeafFor(k primitives.Key) (primitives.PageNumber, error) {
	n, err := t.descend(k)
	if err != nil {
		return 0, err
	}

	numPages, err := t.file.NumPages()
	if err != nil {
		return 0, err
	}
	for steps := primitives.PageNumber(0); steps <= numPages; steps++ {
		if len(n.entries) == 0 || n.entries[0].Key.Compare(k) < 0 || !n.hasPrev() {
			return n.pageNo, nil
		}
		prev, err := t.readNode(n.prev)
		if err != nil {
			return 0, err
		}
		if len(prev.entries) == 0 || prev.entries[len(prev.entries)-1].Key.Compare(k) < 0 {
			return n.pageNo, nil
		}
		n = prev
	}
	return 0, dberror.New(dberror.CategoryCorruption, "TREE_LINK_BROKEN", "leaf sibling chain contains a cycle").
		WithDetail("index %q", t.name)
}

// leftmostLeaf follows leftmost child pointers from the root.
func (t *Index) leftmostLeaf() (primitives.PageNumber, error) {
	numPages, err := t.file.NumPages()
	if err != nil {
		return 0, err
	}

	current := rootPage
	for depth := primitives.PageNumber(0); depth <= numPages; depth++ {
		n, err := t.readNode(current)
		if err != nil {
			return 0, err
		}
		if n.leaf {
			return n.pageNo, nil
		}
		current = n.leftmost
		if current >= numPages {
			return 0, dberror.New(dberror.CategoryCorruption, "TREE_LINK_BROKEN", "leftmost pointer past end of file").
				WithDetail("index %q page %d", t.name, n.pageNo)
		}
	}
	return 0, dberror.New(dberror.CategoryCorruption, "TREE_LINK_BROKEN", "descent did not reach a leaf").
		WithDetail("index %q", t.name)
}

// walkMatching visits leaves from the first one that can hold k forward
// along the sibling chain until the keys pass k, visit returns false, or
// the chain ends.
func (t *Index) walkMatching(k primitives.Key, visit func(*node) (bool, error)) error {
	pageNo, err := t.startLeafFor(k)
	if err != nil {
		return err
	}
	numPages, err := t.file.NumPages()
	if err != nil {
		return err
	}

	for steps := primitives.PageNumber(0); steps <= numPages; steps++ {
		n, err := t.readNode(pageNo)
		if err != nil {
			return err
		}
		if len(n.entries) > 0 && n.entries[0].Key.Compare(k) > 0 {
			return nil
		}

		cont, err := visit(n)
		if err != nil || !cont {
			return err
		}
		if !n.hasNext() {
			return nil
		}
		pageNo = n.next
	}
	return dberror.New(dberror.CategoryCorruption, "TREE_LINK_BROKEN", "leaf sibling chain contains a cycle").
		WithDetail("index %q", t.name)
}

// leafCapacity is the effective records-per-leaf limit.
func (t *Index) leafCapacity() int {
	c := leafCapacity(t.codec)
	if t.meta.NodeCapacity > 0 && t.meta.NodeCapacity < c {
		c = t.meta.NodeCapacity
	}
	return c
}

// sepCapacity is the effective separators-per-internal-node limit.
func (t *Index) sepCapacity() int {
	c := internalCapacity(t.codec)
	if t.meta.NodeCapacity > 0 && t.meta.NodeCapacity < c {
		c = t.meta.NodeCapacity
	}
	return c
}

func (t *Index) readNode(pageNo primitives.PageNumber) (*node, error) {
	data, err := t.file.ReadPageData(pageNo)
	if err != nil {
		return nil, err
	}
	return deserializeNode(data, pageNo, t.codec)
}

func (t *Index) writeNode(n *node) error {
	data, err := n.serialize()
	if err != nil {
		return err
	}
	return t.file.WritePageData(n.pageNo, data)
}

func (t *Index) canonical(key, docID []byte) (primitives.Key, primitives.Key, error) {
	k, err := primitives.PadKey(key, t.opts.KeyWidth)
	if err != nil {
		return nil, nil, dberror.Wrap(err, "KEY_TOO_WIDE", "", "TreeIndex")
	}
	id, err := primitives.PadKey(docID, t.opts.DocIDWidth)
	if err != nil {
		return nil, nil, dberror.Wrap(err, "DOC_ID_TOO_WIDE", "", "TreeIndex")
	}
	return k, id, nil
}

func (t *Index) saveValue(value []byte) (primitives.Offset, primitives.RecordSize, error) {
	if len(value) == 0 {
		return primitives.EmptyOffset, 0, nil
	}
	return t.store.Insert(value)
}

var _ index.Index = (*Index)(nil)
