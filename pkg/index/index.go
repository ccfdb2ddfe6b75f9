// Package index defines the contract shared by every secondary index
// variant: the two-method key extraction interface, the fixed-width entry
// codec, the metadata header that leads every index file, and the paged
// file layer the concrete indexes build on.
package index

import (
	"docstore/pkg/document"
	"docstore/pkg/primitives"
	"docstore/pkg/storage"
	"fmt"
	"strings"
)

// Kind identifies the on-disk structure of an index.
type Kind string

const (
	KindHash      Kind = "hash"
	KindTree      Kind = "tree"
	KindMultiTree Kind = "multitree"
)

// ParseKind converts a textual index kind into its canonical form.
func ParseKind(str string) (Kind, error) {
	switch Kind(strings.ToLower(str)) {
	case KindHash:
		return KindHash, nil
	case KindTree:
		return KindTree, nil
	case KindMultiTree:
		return KindMultiTree, nil
	default:
		return "", fmt.Errorf("unknown index kind %q", str)
	}
}

// Definition is the per-index business hook: how a caller-supplied lookup
// key becomes a fixed-width index key, and whether/how a document
// participates in the index. Everything else about an index is generic.
//
// MakeKey must be deterministic and derived purely from its input, never
// from index state, so it is stable across process restarts.
//
// MakeKeyValue returns the keys under which a document is indexed, or nil
// if the document does not belong in this index. Only the multi tree index
// honors more than one key; other kinds reject multi-key definitions at
// registration time.
type Definition interface {
	MakeKey(raw []byte) ([]byte, error)
	MakeKeyValue(doc document.Document) ([][]byte, error)
}

// Index is the operational surface the Database drives. Concrete
// implementations are the hash index and the tree index (plus its
// multi-key wrapper); the Database composes them by name rather than
// inheriting from a common base.
type Index interface {
	Definition

	// Name is the index's registration name; it prefixes both backing
	// files.
	Name() string

	// Kind reports the on-disk structure.
	Kind() Kind

	// Lifecycle. Open fails on a missing or structurally invalid file;
	// Destroy requires a prior Close.
	Create() error
	Open() error
	Close() error
	Destroy() error

	// Flush and Fsync are best-effort, matching the storage layer.
	Flush()
	Fsync()

	// Count returns the number of live (non-deleted) entries.
	Count() uint64

	// Insert adds an entry mapping key to the (start, size) handle for
	// docID. Duplicate live keys are accepted unless the index is unique.
	Insert(docID, key []byte, start primitives.Offset, size primitives.RecordSize) error

	// Update repoints the live entry for (key, docID) at a new handle.
	Update(docID, key []byte, start primitives.Offset, size primitives.RecordSize) error

	// Delete marks every live entry for (key, docID) as deleted. Marking
	// an already-deleted entry is a no-op, not an error.
	Delete(key, docID []byte) error

	// InsertWithStorage and UpdateWithStorage store value in the index's
	// paired storage file first, then index its handle. A nil value uses
	// the empty sentinel handle.
	InsertWithStorage(docID, key, value []byte) error
	UpdateWithStorage(docID, key, value []byte) error

	// Get returns the first live entry for key, or a not-found error.
	Get(key []byte) (*Entry, error)

	// GetMany returns a cursor over live entries whose key matches, up to
	// limit (0 = unlimited). The first offset matches are skipped, which
	// lets callers resume a paged read where the previous one stopped.
	GetMany(key []byte, offset, limit int) (Cursor, error)

	// All returns a cursor over every live entry in index-native order:
	// physical bucket order for hash indexes, ascending key order for tree
	// indexes. The first offset entries are skipped so a caller can resume
	// a scan where the previous one stopped.
	All(offset int) (Cursor, error)

	// Compact rewrites the index into fresh files holding only live
	// entries and swaps them into place. The index stays open.
	Compact() error

	// Storage exposes the index's paired value store.
	Storage() *storage.Storage
}
