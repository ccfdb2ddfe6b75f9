package index

import "docstore/pkg/dberror"

var errCursorExhausted = dberror.New(dberror.CategoryNotFound, "CURSOR_EXHAUSTED", "no more entries")

// ErrElemNotFound builds the standard absent-key error.
func ErrElemNotFound(indexName string) error {
	return dberror.New(dberror.CategoryNotFound, "ELEM_NOT_FOUND", "key not found in index").
		WithDetail("index %q", indexName)
}

// ErrDocIDNotFound builds the absent-document error for the given index.
func ErrDocIDNotFound(indexName string) error {
	return dberror.New(dberror.CategoryNotFound, "DOC_ID_NOT_FOUND", "document not found in index").
		WithDetail("index %q", indexName)
}

// ErrConflict builds the duplicate-unique-key error.
func ErrConflict(indexName string) error {
	return dberror.New(dberror.CategoryConflict, "INDEX_CONFLICT", "duplicate key in unique index").
		WithDetail("index %q", indexName)
}

// ErrReindexRequired builds the schema/capacity mismatch error telling the
// caller to rebuild the index before using it.
func ErrReindexRequired(indexName, reason string) error {
	return dberror.New(dberror.CategoryReindex, "REINDEX_REQUIRED", "index must be rebuilt").
		WithDetail("index %q: %s", indexName, reason)
}
