// Package hash implements the on-disk hash index: a fixed set of bucket
// pages with overflow page chaining, O(1) average lookup, and an optional
// bloom filter that short-circuits lookups for absent keys.
package hash

import (
	"docstore/pkg/dberror"
	"docstore/pkg/document"
	"docstore/pkg/index"
	"docstore/pkg/primitives"
	"docstore/pkg/storage"
	"fmt"
	"hash/fnv"

	"github.com/bits-and-blooms/bloom/v3"
)

// Options fixes the shape of a hash index at creation time. Bucket count
// and key width are immutable afterwards; changing them requires a
// reindex.
type Options struct {
	Buckets    int
	KeyWidth   int
	DocIDWidth int
	Unique     bool

	// BloomCapacity sizes the negative-lookup filter. Zero disables it.
	BloomCapacity uint
}

// DefaultOptions mirror the stock definitions: 32-byte hex digest keys.
func DefaultOptions() Options {
	return Options{
		Buckets:       256,
		KeyWidth:      primitives.DefaultKeyWidth,
		DocIDWidth:    primitives.DefaultKeyWidth,
		BloomCapacity: 100_000,
	}
}

// Index is a hash-based secondary index over one bucket file and one
// paired storage file. Mutations are serialized by the owning Database;
// the index itself only guards file handles.
type Index struct {
	name    string
	def     index.Definition
	opts    Options
	file    *index.PagedFile
	store   *storage.Storage
	meta    *index.Metadata
	codec   index.EntryCodec
	filter  *bloom.BloomFilter
	dbPath  string
	version int
}

// New creates a hash index handle named name under dbPath. The files are
// not touched until Create or Open.
func New(dbPath, name string, def index.Definition, opts Options) *Index {
	return &Index{
		name:    name,
		def:     def,
		opts:    opts,
		dbPath:  dbPath,
		version: 1,
		file:    index.NewPagedFile(primitives.Filepath(dbPath).Join(name + "_buck")),
		store:   storage.New(dbPath, name),
	}
}

func (h *Index) Name() string { return h.name }

func (h *Index) Kind() index.Kind { return index.KindHash }

func (h *Index) Storage() *storage.Storage { return h.store }

// MakeKey delegates to the definition, then canonicalizes to the fixed
// key width.
func (h *Index) MakeKey(raw []byte) ([]byte, error) {
	key, err := h.def.MakeKey(raw)
	if err != nil {
		return nil, err
	}
	padded, err := primitives.PadKey(key, h.opts.KeyWidth)
	if err != nil {
		return nil, dberror.Wrap(err, "KEY_TOO_WIDE", "MakeKey", "HashIndex")
	}
	return padded, nil
}

// MakeKeyValue delegates to the definition. A hash index accepts at most
// one key per document.
func (h *Index) MakeKeyValue(doc document.Document) ([][]byte, error) {
	keys, err := h.def.MakeKeyValue(doc)
	if err != nil {
		return nil, err
	}
	if len(keys) > 1 {
		return nil, dberror.New(dberror.CategoryConfig, "MULTI_KEY_UNSUPPORTED",
			"hash index definitions must yield at most one key").
			WithDetail("index %q got %d keys", h.name, len(keys))
	}
	return keys, nil
}

// Create initializes the bucket file (all bucket head pages pre-allocated)
// and the paired storage file.
func (h *Index) Create() error {
	if h.opts.Buckets <= 0 || h.opts.KeyWidth <= 0 {
		return dberror.New(dberror.CategoryConfig, "BAD_INDEX_OPTIONS", "bucket count and key width must be positive").
			WithDetail("index %q", h.name)
	}

	h.meta = &index.Metadata{
		Name:       h.name,
		Kind:       index.KindHash,
		Version:    h.version,
		KeyWidth:   h.opts.KeyWidth,
		DocIDWidth: h.opts.DocIDWidth,
		Buckets:    h.opts.Buckets,
		Unique:     h.opts.Unique,
	}
	h.codec = h.meta.Codec()

	if capacity(h.codec) < 1 {
		return dberror.New(dberror.CategoryConfig, "BAD_INDEX_OPTIONS", "entry width exceeds page size").
			WithDetail("index %q", h.name)
	}

	if err := h.file.Create(h.meta); err != nil {
		return err
	}

	// Pre-allocate every bucket head so bucket number equals page number.
	empty := newBucketPage(0, h.codec)
	for b := 0; b < h.opts.Buckets; b++ {
		empty.pageNo = primitives.PageNumber(b)
		data, err := empty.serialize()
		if err != nil {
			return err
		}
		if err := h.file.WritePageData(empty.pageNo, data); err != nil {
			return err
		}
	}

	if err := h.store.Create(); err != nil {
		return err
	}

	h.initFilter()
	return nil
}

// Open opens both backing files, validates the header against the
// registered shape, and rebuilds the bloom filter from live entries.
func (h *Index) Open() error {
	meta, err := h.file.Open()
	if err != nil {
		return err
	}
	if meta.Kind != index.KindHash {
		h.file.Close()
		return index.ErrReindexRequired(h.name, fmt.Sprintf("file is a %s index, definition expects hash", meta.Kind))
	}
	if meta.KeyWidth != h.opts.KeyWidth || meta.Buckets != h.opts.Buckets {
		h.file.Close()
		return index.ErrReindexRequired(h.name, "key width or bucket count differs from the on-disk index")
	}

	h.meta = meta
	h.codec = meta.Codec()

	if err := h.store.Open(); err != nil {
		h.file.Close()
		return err
	}

	h.initFilter()
	if h.filter != nil {
		if err := h.rebuildFilter(); err != nil {
			h.Close()
			return err
		}
	}
	return nil
}

// Close flushes metadata and closes both files.
func (h *Index) Close() error {
	if h.file.Opened() {
		h.Flush()
	}
	err := h.file.Close()
	if cerr := h.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Destroy removes both backing files. The index must be closed first.
func (h *Index) Destroy() error {
	if err := h.file.Destroy(); err != nil {
		return err
	}
	return h.store.Destroy()
}

// Flush persists the element counter and syncs, best-effort.
func (h *Index) Flush() {
	if h.meta != nil && h.file.Opened() {
		_ = h.file.UpdateHeader(h.meta)
	}
	h.file.Fsync()
	h.store.Flush()
}

// Fsync syncs both files, best-effort.
func (h *Index) Fsync() {
	h.file.Fsync()
	h.store.Fsync()
}

// Count returns the number of live entries.
func (h *Index) Count() uint64 {
	if h.meta == nil {
		return 0
	}
	return h.meta.Elements
}

// Insert adds an entry for (key, docID). Duplicate live keys are fine
// unless the index is unique.
func (h *Index) Insert(docID, key []byte, start primitives.Offset, size primitives.RecordSize) error {
	k, id, err := h.canonical(key, docID)
	if err != nil {
		return err
	}

	if h.meta.Unique {
		if _, err := h.lookup(k); err == nil {
			return index.ErrConflict(h.name)
		} else if !dberror.IsNotFound(err) {
			return err
		}
	}

	page, err := h.findInsertPage(h.bucketFor(k))
	if err != nil {
		return err
	}

	if err := page.addEntry(index.NewEntry(k, id, start, size)); err != nil {
		return fmt.Errorf("failed to add entry: %w", err)
	}
	if err := h.writePage(page); err != nil {
		return err
	}

	h.meta.Elements++
	if h.filter != nil {
		h.filter.Add(k)
	}
	return nil
}

// Update repoints the live entry for (key, docID) at a new handle.
func (h *Index) Update(docID, key []byte, start primitives.Offset, size primitives.RecordSize) error {
	k, id, err := h.canonical(key, docID)
	if err != nil {
		return err
	}

	found := false
	err = h.walkChain(h.bucketFor(k), func(page *bucketPage) (bool, error) {
		for _, e := range page.entries {
			if e.IsLive() && e.Matches(k, id) {
				e.Start = start
				e.Size = size
				found = true
			}
		}
		if found {
			return false, h.writePage(page)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return index.ErrDocIDNotFound(h.name)
	}
	return nil
}

// Delete marks every live entry for (key, docID) deleted. Nothing found is
// not an error: deletes are idempotent.
func (h *Index) Delete(key, docID []byte) error {
	k, id, err := h.canonical(key, docID)
	if err != nil {
		return err
	}

	return h.walkChain(h.bucketFor(k), func(page *bucketPage) (bool, error) {
		marked := 0
		for _, e := range page.entries {
			if e.IsLive() && e.Matches(k, id) {
				e.Status = primitives.StatusDeleted
				marked++
			}
		}
		if marked > 0 {
			if err := h.writePage(page); err != nil {
				return false, err
			}
			h.meta.Elements -= uint64(marked)
		}
		return true, nil
	})
}

// InsertWithStorage stores value in the paired storage first, then indexes
// its handle. A nil value indexes the empty sentinel handle.
func (h *Index) InsertWithStorage(docID, key, value []byte) error {
	start, size, err := h.saveValue(value)
	if err != nil {
		return err
	}
	return h.Insert(docID, key, start, size)
}

// UpdateWithStorage is Update with the same storage-first convention.
func (h *Index) UpdateWithStorage(docID, key, value []byte) error {
	start, size, err := h.saveValue(value)
	if err != nil {
		return err
	}
	return h.Update(docID, key, start, size)
}

// Get returns the first live entry for key.
func (h *Index) Get(key []byte) (*index.Entry, error) {
	k, err := primitives.PadKey(key, h.opts.KeyWidth)
	if err != nil {
		return nil, dberror.Wrap(err, "KEY_TOO_WIDE", "Get", "HashIndex")
	}
	return h.lookup(k)
}

// GetMany returns a cursor over live entries matching key. The first
// offset matches are skipped, then up to limit entries are yielded
// (0 = unlimited).
func (h *Index) GetMany(key []byte, offset, limit int) (index.Cursor, error) {
	k, err := primitives.PadKey(key, h.opts.KeyWidth)
	if err != nil {
		return nil, dberror.Wrap(err, "KEY_TOO_WIDE", "GetMany", "HashIndex")
	}

	if h.filter != nil && !h.filter.Test(k) {
		return index.NewSliceCursor(nil), nil
	}
	return newChainCursor(h, h.bucketFor(k), k, offset, limit), nil
}

// All returns a cursor over every live entry in physical bucket order,
// skipping the first offset entries. The order is storage order, not key
// order.
func (h *Index) All(offset int) (index.Cursor, error) {
	return newScanCursor(h, offset), nil
}

// lookup finds the first live entry for an already-canonical key.
func (h *Index) lookup(k primitives.Key) (*index.Entry, error) {
	if h.filter != nil && !h.filter.Test(k) {
		return nil, index.ErrElemNotFound(h.name)
	}

	var found *index.Entry
	err := h.walkChain(h.bucketFor(k), func(page *bucketPage) (bool, error) {
		for _, e := range page.entries {
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
		return nil, index.ErrElemNotFound(h.name)
	}
	return found, nil
}

// bucketFor hashes a canonical key to its bucket number.
func (h *Index) bucketFor(k primitives.Key) primitives.PageNumber {
	hasher := fnv.New32a()
	hasher.Write(k)
	return primitives.PageNumber(hasher.Sum32() % uint32(h.meta.Buckets))
}

// walkChain visits the bucket head and its overflow chain until visit
// returns false or the chain ends. A page count guard breaks pointer
// cycles caused by corruption instead of spinning forever.
func (h *Index) walkChain(bucket primitives.PageNumber, visit func(*bucketPage) (bool, error)) error {
	numPages, err := h.file.NumPages()
	if err != nil {
		return err
	}

	current := bucket
	for visited := primitives.PageNumber(0); visited <= numPages; visited++ {
		page, err := h.readPage(current)
		if err != nil {
			return err
		}

		cont, err := visit(page)
		if err != nil || !cont {
			return err
		}

		if !page.hasOverflow() {
			return nil
		}
		if page.overflow >= numPages {
			return dberror.New(dberror.CategoryCorruption, "BUCKET_CHAIN_BROKEN", "overflow pointer past end of file").
				WithDetail("index %q page %d", h.name, current)
		}
		current = page.overflow
	}

	return dberror.New(dberror.CategoryCorruption, "BUCKET_CHAIN_BROKEN", "overflow chain contains a cycle").
		WithDetail("index %q bucket %d", h.name, bucket)
}

// findInsertPage returns the first chain page with space, linking in a new
// overflow page when the chain is full.
func (h *Index) findInsertPage(bucket primitives.PageNumber) (*bucketPage, error) {
	var target *bucketPage
	var last *bucketPage

	err := h.walkChain(bucket, func(page *bucketPage) (bool, error) {
		last = page
		if !page.isFull() {
			target = page
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if target != nil {
		return target, nil
	}

	overflowNo, err := h.file.AllocatePage()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate overflow page: %w", err)
	}

	overflow := newBucketPage(overflowNo, h.codec)
	data, err := overflow.serialize()
	if err != nil {
		return nil, err
	}
	if err := h.file.WritePageData(overflowNo, data); err != nil {
		return nil, err
	}

	last.overflow = overflowNo
	if err := h.writePage(last); err != nil {
		return nil, fmt.Errorf("failed to link overflow page: %w", err)
	}
	return overflow, nil
}

func (h *Index) readPage(pageNo primitives.PageNumber) (*bucketPage, error) {
	data, err := h.file.ReadPageData(pageNo)
	if err != nil {
		return nil, err
	}
	return deserializeBucketPage(data, pageNo, h.codec)
}

func (h *Index) writePage(page *bucketPage) error {
	data, err := page.serialize()
	if err != nil {
		return err
	}
	return h.file.WritePageData(page.pageNo, data)
}

func (h *Index) canonical(key, docID []byte) (primitives.Key, primitives.Key, error) {
	k, err := primitives.PadKey(key, h.opts.KeyWidth)
	if err != nil {
		return nil, nil, dberror.Wrap(err, "KEY_TOO_WIDE", "", "HashIndex")
	}
	id, err := primitives.PadKey(docID, h.opts.DocIDWidth)
	if err != nil {
		return nil, nil, dberror.Wrap(err, "DOC_ID_TOO_WIDE", "", "HashIndex")
	}
	return k, id, nil
}

func (h *Index) saveValue(value []byte) (primitives.Offset, primitives.RecordSize, error) {
	if len(value) == 0 {
		return primitives.EmptyOffset, 0, nil
	}
	return h.store.Insert(value)
}

func (h *Index) initFilter() {
	if h.opts.BloomCapacity == 0 {
		h.filter = nil
		return
	}
	h.filter = bloom.NewWithEstimates(h.opts.BloomCapacity, 0.01)
}

// rebuildFilter replays every live key into a fresh filter. Runs at open
// time; the filter is memory-only and never hits disk.
func (h *Index) rebuildFilter() error {
	entries, err := index.Collect(newScanCursor(h, 0))
	if err != nil {
		return err
	}
	for _, e := range entries {
		h.filter.Add(e.Key)
	}
	return nil
}

var _ index.Index = (*Index)(nil)
