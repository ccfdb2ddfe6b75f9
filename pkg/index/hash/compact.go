package hash

import (
	"docstore/pkg/index"
	"docstore/pkg/primitives"
	"fmt"
	"os"
)

// Compact rewrites the index into fresh files containing only live
// entries and their storage values, then swaps the files into place. The
// only sanctioned way to reclaim space from deletes and superseded
// updates.
func (h *Index) Compact() error {
	entries, err := index.Collect(newScanCursor(h, 0))
	if err != nil {
		return fmt.Errorf("failed to scan index for compaction: %w", err)
	}

	fresh := New(h.dbPath, h.name+compactSuffix, h.def, h.opts)
	if err := fresh.Create(); err != nil {
		return fmt.Errorf("failed to create compaction target: %w", err)
	}

	for _, e := range entries {
		value, err := h.store.Get(e.Start, e.Size, e.Status)
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
	if err := h.Close(); err != nil {
		return err
	}

	if err := swapFiles(fresh.file.Path(), h.file.Path()); err != nil {
		return err
	}
	if err := swapFiles(fresh.store.Path(), h.store.Path()); err != nil {
		return err
	}

	if err := h.Open(); err != nil {
		return err
	}
	// The swapped-in header still carries the scratch name.
	h.meta.Name = h.name
	return h.file.UpdateHeader(h.meta)
}

const compactSuffix = "_compact"

// swapFiles moves the freshly built file over the old one.
func swapFiles(from, to primitives.Filepath) error {
	if err := os.Rename(from.String(), to.String()); err != nil {
		return fmt.Errorf("failed to swap compacted file into place: %w", err)
	}
	return nil
}
