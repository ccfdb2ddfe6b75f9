package database

import (
	"docstore/pkg/index"
	"docstore/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// ReindexIndex drops and rebuilds one secondary index by replaying every
// live document through its key extraction. The recovery path for
// inconsistently indexed documents and for indexes added after documents
// already existed.
func (db *Database) ReindexIndex(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return errNotOpen()
	}
	idx, err := db.indexByName(name)
	if err != nil {
		return err
	}
	if name == PrimaryIndexName {
		return index.ErrReindexRequired(name, "the id index cannot be rebuilt from itself")
	}
	return db.rebuild(idx)
}

// Reindex rebuilds every secondary index, fanning the rebuilds out across
// goroutines. Each rebuild touches only its own index files; the shared
// id index is read concurrently.
func (db *Database) Reindex() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return errNotOpen()
	}

	var g errgroup.Group
	for _, idx := range db.secondaries {
		idx := idx
		g.Go(func() error {
			return db.rebuild(idx)
		})
	}
	return g.Wait()
}

// rebuild recreates idx from scratch and replays the primary documents.
// Documents that fail to load or that the definition rejects are skipped
// and logged, matching scan semantics.
func (db *Database) rebuild(idx index.Index) error {
	if err := idx.Close(); err != nil {
		return err
	}
	if err := idx.Destroy(); err != nil {
		return err
	}
	if err := idx.Create(); err != nil {
		return err
	}

	cursor, err := db.id.All(0)
	if err != nil {
		return err
	}
	entries, err := index.Collect(cursor)
	if err != nil {
		return err
	}

	for _, e := range entries {
		doc, err := db.id.Storage().LoadDoc(e.Start, e.Size, e.Status)
		if err != nil || doc == nil {
			logging.Warn("skipping unloadable document during reindex",
				"index", idx.Name(), "doc_id", trimID(e.DocID), "error", err)
			continue
		}

		keys, err := idx.MakeKeyValue(doc)
		if err != nil {
			logging.Warn("secondary index rejected document during reindex",
				"index", idx.Name(), "doc_id", doc.ID(), "error", err)
			continue
		}
		for _, key := range keys {
			if err := idx.InsertWithStorage([]byte(doc.ID()), key, nil); err != nil {
				return err
			}
		}
	}

	idx.Flush()
	logging.Info("index rebuilt", "index", idx.Name(), "elements", idx.Count())
	return nil
}

// CompactIndex rewrites one index's files to contain only live entries.
func (db *Database) CompactIndex(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return errNotOpen()
	}
	idx, err := db.indexByName(name)
	if err != nil {
		return err
	}
	return idx.Compact()
}

// Compact rewrites every index, reclaiming the space held by deleted and
// superseded records. The only sanctioned space-recovery path.
func (db *Database) Compact() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return errNotOpen()
	}

	if err := db.id.Compact(); err != nil {
		return err
	}
	for _, idx := range db.secondaries {
		if err := idx.Compact(); err != nil {
			return err
		}
	}
	logging.Info("database compacted", "path", db.path)
	return nil
}
