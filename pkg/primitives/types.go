package primitives

import "math"

// PageNumber represents a page number within an index file. Page numbering
// starts after the metadata header block.
type PageNumber uint64

// Offset represents a byte offset within a storage file.
type Offset uint64

// RecordSize is the exact byte length of a stored payload.
type RecordSize uint32

// Sentinel values for invalid/unset identifiers
const (
	// InvalidPageNumber represents an invalid or unset page number.
	// Used for: no overflow page, no next/prev leaf, uninitialized references.
	InvalidPageNumber PageNumber = math.MaxUint64

	// EmptyOffset is the sentinel handle for an index entry that carries no
	// stored value. Paired with a zero size it is never dereferenced.
	EmptyOffset Offset = 1
)
