package database

import (
	"bytes"
	"docstore/pkg/dberror"
	"docstore/pkg/document"
	"docstore/pkg/index"
	"docstore/pkg/logging"
	"docstore/pkg/primitives"
)

// Insert stores a new document and indexes it everywhere it belongs. The
// primary key is caller-overridable through _id; _rev is always engine
// assigned. The stored document, including both fields, is returned.
//
// A secondary index failing after the primary write succeeded leaves the
// document retrievable by id but inconsistently indexed; this is logged,
// not rolled back, and ReindexIndex is the recovery path.
func (db *Database) Insert(doc document.Document) (document.Document, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return nil, errNotOpen()
	}
	if doc.Rev() != "" {
		return nil, dberror.New(dberror.CategoryConflict, "REV_ON_INSERT", "fresh documents must not carry a revision").
			WithDetail("_id %q", doc.ID())
	}

	stored := doc.Clone()
	if stored.ID() == "" {
		stored.SetID(document.NewID())
	}
	stored.SetRev(document.NewRev())
	id := stored.ID()

	err := db.locks.With(id, func() error {
		start, size, err := db.id.Storage().SaveDoc(stored)
		if err != nil {
			return err
		}
		key, err := db.id.MakeKey([]byte(id))
		if err != nil {
			return err
		}
		if err := db.id.Insert([]byte(id), key, start, size); err != nil {
			return err
		}

		db.eachSecondaryKey(stored, func(idx index.Index, key []byte) error {
			return idx.InsertWithStorage([]byte(id), key, nil)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return document.Normalize(stored)
}

// Get resolves key through the named index. With withDoc the stored
// document is returned; without it only the _id field is populated.
func (db *Database) Get(indexName string, key []byte, withDoc bool) (document.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	idx, err := db.indexByName(indexName)
	if err != nil {
		return nil, err
	}

	made, err := idx.MakeKey(key)
	if err != nil {
		return nil, err
	}
	e, err := idx.Get(made)
	if err != nil {
		return nil, err
	}
	return db.resolveEntry(indexName, e, withDoc)
}

// GetMany returns every document whose computed key matches, in the
// index's native order. The first offset matches are skipped so a caller
// can page through a large match set; up to limit documents follow
// (0 = unlimited). Documents that fail to load are skipped and logged,
// never fatal to the batch.
func (db *Database) GetMany(indexName string, key []byte, offset, limit int, withDoc bool) ([]document.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	idx, err := db.indexByName(indexName)
	if err != nil {
		return nil, err
	}
	made, err := idx.MakeKey(key)
	if err != nil {
		return nil, err
	}
	cursor, err := idx.GetMany(made, offset, limit)
	if err != nil {
		return nil, err
	}
	return db.resolveCursor(indexName, cursor, withDoc)
}

// All returns every live document reachable through the named index:
// primary-key order is undefined for the id index, ascending key order
// for tree indexes.
func (db *Database) All(indexName string, withDoc bool) ([]document.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	idx, err := db.indexByName(indexName)
	if err != nil {
		return nil, err
	}
	cursor, err := idx.All(0)
	if err != nil {
		return nil, err
	}
	return db.resolveCursor(indexName, cursor, withDoc)
}

// Update replaces a stored document under optimistic concurrency: the
// incoming _rev must match the stored one, otherwise the caller lost the
// race and must re-read. On success the returned document carries the new
// revision.
func (db *Database) Update(doc document.Document) (document.Document, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return nil, errNotOpen()
	}
	id := doc.ID()
	if id == "" {
		return nil, errMissingID("Update")
	}

	var updated document.Document
	err := db.locks.With(id, func() error {
		current, _, err := db.loadPrimary(id)
		if err != nil {
			return err
		}
		if current.Rev() != doc.Rev() {
			return dberror.New(dberror.CategoryConflict, "REV_CONFLICT", "document was modified since it was read").
				WithDetail("_id %q stored rev %s, got %s", id, current.Rev(), doc.Rev())
		}

		updated = doc.Clone()
		updated.SetRev(document.BumpRev(current.Rev()))

		start, size, err := db.id.Storage().SaveDoc(updated)
		if err != nil {
			return err
		}
		key, err := db.id.MakeKey([]byte(id))
		if err != nil {
			return err
		}
		if err := db.id.Update([]byte(id), key, start, size); err != nil {
			return err
		}

		db.diffSecondaries(current, updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return document.Normalize(updated)
}

// Delete marks the document's entries deleted in the id index and every
// secondary, and flips the storage record's status byte. The bytes stay
// on disk until compaction. Deleting an absent or already-deleted
// document is a no-op.
func (db *Database) Delete(doc document.Document) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return errNotOpen()
	}
	id := doc.ID()
	if id == "" {
		return errMissingID("Delete")
	}

	return db.locks.With(id, func() error {
		current, entry, err := db.loadPrimary(id)
		if err != nil {
			if dberror.IsNotFound(err) {
				return nil
			}
			return err
		}

		if entry.Size > 0 {
			if err := db.id.Storage().MarkDeleted(entry.Start); err != nil {
				return err
			}
		}
		key, err := db.id.MakeKey([]byte(id))
		if err != nil {
			return err
		}
		if err := db.id.Delete(key, []byte(id)); err != nil {
			return err
		}

		db.eachSecondaryKey(current, func(idx index.Index, key []byte) error {
			return idx.Delete(key, []byte(id))
		})
		return nil
	})
}

// loadPrimary resolves a primary key to its stored document and id-index
// entry.
func (db *Database) loadPrimary(id string) (document.Document, *index.Entry, error) {
	key, err := db.id.MakeKey([]byte(id))
	if err != nil {
		return nil, nil, err
	}
	e, err := db.id.Get(key)
	if err != nil {
		return nil, nil, err
	}
	doc, err := db.id.Storage().LoadDoc(e.Start, e.Size, e.Status)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, index.ErrElemNotFound(PrimaryIndexName)
	}
	return doc, e, nil
}

// resolveEntry turns an index entry into the caller-facing document.
func (db *Database) resolveEntry(indexName string, e *index.Entry, withDoc bool) (document.Document, error) {
	id := trimID(e.DocID)
	if !withDoc {
		return document.Document{document.FieldID: id}, nil
	}
	if indexName == PrimaryIndexName {
		doc, err := db.id.Storage().LoadDoc(e.Start, e.Size, e.Status)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, index.ErrElemNotFound(indexName)
		}
		return doc, nil
	}
	doc, _, err := db.loadPrimary(id)
	return doc, err
}

// resolveCursor drains a cursor into documents. Per-document corruption
// is skip-and-log so one bad record cannot block the rest of the scan.
func (db *Database) resolveCursor(indexName string, cursor index.Cursor, withDoc bool) ([]document.Document, error) {
	entries, err := index.Collect(cursor)
	if err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(entries))
	for _, e := range entries {
		doc, err := db.resolveEntry(indexName, e, withDoc)
		if err != nil {
			logging.Warn("skipping unloadable document during scan",
				"index", indexName, "doc_id", trimID(e.DocID), "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// eachSecondaryKey runs fn once per (secondary index, computed key) pair
// the document belongs to. Failures are logged at warn level and do not
// stop the fan-out.
func (db *Database) eachSecondaryKey(doc document.Document, fn func(idx index.Index, key []byte) error) {
	for name, idx := range db.secondaries {
		keys, err := idx.MakeKeyValue(doc)
		if err != nil {
			logging.Warn("secondary index rejected document",
				"index", name, "doc_id", doc.ID(), "error", err)
			continue
		}
		for _, key := range keys {
			if err := fn(idx, key); err != nil {
				logging.Warn("secondary index write failed; document is inconsistently indexed",
					"index", name, "doc_id", doc.ID(), "error", err)
			}
		}
	}
}

// diffSecondaries reconciles a document's secondary memberships after an
// update: stale keys are deleted, new keys inserted, unchanged keys left
// alone.
func (db *Database) diffSecondaries(before, after document.Document) {
	id := []byte(after.ID())

	for name, idx := range db.secondaries {
		oldKeys, err := idx.MakeKeyValue(before)
		if err != nil {
			oldKeys = nil
		}
		newKeys, err := idx.MakeKeyValue(after)
		if err != nil {
			logging.Warn("secondary index rejected updated document",
				"index", name, "doc_id", after.ID(), "error", err)
			newKeys = nil
		}

		for _, key := range oldKeys {
			if !containsKey(newKeys, key) {
				if err := idx.Delete(key, id); err != nil {
					logging.Warn("failed to remove stale secondary key",
						"index", name, "doc_id", after.ID(), "error", err)
				}
			}
		}
		for _, key := range newKeys {
			if !containsKey(oldKeys, key) {
				if err := idx.InsertWithStorage(id, key, nil); err != nil {
					logging.Warn("secondary index write failed; document is inconsistently indexed",
						"index", name, "doc_id", after.ID(), "error", err)
				}
			}
		}
	}
}

func containsKey(keys [][]byte, key []byte) bool {
	for _, k := range keys {
		if bytes.Equal(k, key) {
			return true
		}
	}
	return false
}

// trimID strips the zero padding a fixed-width docID slot carries.
func trimID(id primitives.Key) string {
	return string(bytes.TrimRight(id, "\x00"))
}

func errMissingID(op string) error {
	e := dberror.New(dberror.CategoryConfig, "MISSING_ID", "document has no _id field")
	e.Operation = op
	e.Component = "Database"
	return e
}
