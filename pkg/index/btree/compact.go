package btree

import (
	"docstore/pkg/index"
	"docstore/pkg/primitives"
	"fmt"
	"os"
)

const compactSuffix = "_compact"

// Compact rewrites the tree into fresh files containing only live entries
// and their storage values, then swaps the files into place. Rebuilding
// from the ordered scan also heals the dead weight left by mark-only
// deletes.
func (t *Index) Compact() error {
	first, err := t.leftmostLeaf()
	if err != nil {
		return err
	}
	entries, err := index.Collect(newLeafCursor(t, first, nil, nil, 0, 0))
	if err != nil {
		return fmt.Errorf("failed to scan index for compaction: %w", err)
	}

	fresh := New(t.dbPath, t.name+compactSuffix, t.def, t.opts)
	fresh.kind = t.kind
	if err := fresh.Create(); err != nil {
		return fmt.Errorf("failed to create compaction target: %w", err)
	}

	for _, e := range entries {
		value, err := t.store.Get(e.Start, e.Size, e.Status)
		if err != nil {
			// Dead storage behind a live entry: drop the entry rather
			// than abort the whole compaction.
			continue
		}
		if err := fresh.InsertWithStorage(e.DocID, e.Key, value); err != nil {
			fresh.Close()
			fresh.Destroy()
			return err
		}
	}

	fresh.Flush()
	if err := fresh.Close(); err != nil {
		return err
	}
	if err := t.Close(); err != nil {
		return err
	}

	if err := swapFiles(fresh.file.Path(), t.file.Path()); err != nil {
		return err
	}
	if err := swapFiles(fresh.store.Path(), t.store.Path()); err != nil {
		return err
	}

	if err := t.Open(); err != nil {
		return err
	}
	// The swapped-in header still carries the scratch name.
	t.meta.Name = t.name
	return t.file.UpdateHeader(t.meta)
}

// swapFiles moves the freshly built file over the old one.
func swapFiles(from, to primitives.Filepath) error {
	if err := os.Rename(from.String(), to.String()); err != nil {
		return fmt.Errorf("failed to swap compacted file into place: %w", err)
	}
	return nil
}
