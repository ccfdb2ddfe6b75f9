package index

import (
	"docstore/pkg/dberror"
	"docstore/pkg/primitives"
	"os"
	"sync"
)

// PageSize is the fixed size of every bucket and node page.
const PageSize = 4096

// PagedFile provides page-granular I/O over an index file: a HeaderSize
// metadata block followed by fixed-size pages. It handles offsets, page
// counting, and thread safety; the concrete indexes interpret page bytes.
type PagedFile struct {
	path   primitives.Filepath
	file   *os.File
	mutex  sync.RWMutex
	opened bool
}

// NewPagedFile creates a handle without touching the file.
func NewPagedFile(path primitives.Filepath) *PagedFile {
	return &PagedFile{path: path}
}

// Path returns the backing file path.
func (pf *PagedFile) Path() primitives.Filepath {
	return pf.path
}

// Create initializes a fresh index file with the given header.
func (pf *PagedFile) Create(m *Metadata) error {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	file, err := os.OpenFile(pf.path.String(), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o640)
	if err != nil {
		return dberror.Wrap(err, "INDEX_CREATE_FAILED", "Create", "PagedFile")
	}
	if err := WriteHeader(file, m); err != nil {
		file.Close()
		return err
	}

	pf.file = file
	pf.opened = true
	return nil
}

// Open opens an existing index file and returns its header.
func (pf *PagedFile) Open() (*Metadata, error) {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	if !pf.path.Exists() {
		return nil, dberror.New(dberror.CategoryNotFound, "INDEX_FILE_MISSING", "index file does not exist").
			WithDetail("%s", pf.path)
	}

	file, err := os.OpenFile(pf.path.String(), os.O_RDWR, 0o640)
	if err != nil {
		return nil, dberror.Wrap(err, "INDEX_OPEN_FAILED", "Open", "PagedFile")
	}

	m, err := ReadHeader(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	pf.file = file
	pf.opened = true
	return m, nil
}

// UpdateHeader rewrites the metadata block in place.
func (pf *PagedFile) UpdateHeader(m *Metadata) error {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	if !pf.opened {
		return errFileNotOpen("UpdateHeader")
	}
	return WriteHeader(pf.file, m)
}

// NumPages returns the number of pages currently in the file.
func (pf *PagedFile) NumPages() (primitives.PageNumber, error) {
	pf.mutex.RLock()
	defer pf.mutex.RUnlock()

	if !pf.opened {
		return 0, errFileNotOpen("NumPages")
	}

	info, err := pf.file.Stat()
	if err != nil {
		return 0, dberror.Wrap(err, "INDEX_STAT_FAILED", "NumPages", "PagedFile")
	}

	dataLen := info.Size() - HeaderSize
	if dataLen <= 0 {
		return 0, nil
	}
	pages := primitives.PageNumber(dataLen / PageSize)
	if dataLen%PageSize != 0 {
		pages++
	}
	return pages, nil
}

// ReadPageData reads the raw bytes of one page.
func (pf *PagedFile) ReadPageData(pageNo primitives.PageNumber) ([]byte, error) {
	pf.mutex.RLock()
	defer pf.mutex.RUnlock()

	if !pf.opened {
		return nil, errFileNotOpen("ReadPageData")
	}

	data := make([]byte, PageSize)
	offset := int64(HeaderSize) + int64(pageNo)*PageSize
	if _, err := pf.file.ReadAt(data, offset); err != nil {
		return nil, dberror.New(dberror.CategoryCorruption, "PAGE_UNREADABLE", "index page unreadable").
			WithDetail("page %d", pageNo)
	}
	return data, nil
}

// WritePageData writes the raw bytes of one page.
func (pf *PagedFile) WritePageData(pageNo primitives.PageNumber, data []byte) error {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	if !pf.opened {
		return errFileNotOpen("WritePageData")
	}
	if len(data) != PageSize {
		return dberror.Newf(dberror.CategorySystem, "PAGE_SIZE_MISMATCH",
			"page data is %d bytes, want %d", len(data), PageSize)
	}

	offset := int64(HeaderSize) + int64(pageNo)*PageSize
	if _, err := pf.file.WriteAt(data, offset); err != nil {
		return dberror.Wrap(err, "PAGE_WRITE_FAILED", "WritePageData", "PagedFile")
	}
	return nil
}

// AllocatePage appends a zeroed page and returns its number.
func (pf *PagedFile) AllocatePage() (primitives.PageNumber, error) {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	if !pf.opened {
		return 0, errFileNotOpen("AllocatePage")
	}

	info, err := pf.file.Stat()
	if err != nil {
		return 0, dberror.Wrap(err, "INDEX_STAT_FAILED", "AllocatePage", "PagedFile")
	}

	pageNo := primitives.PageNumber((info.Size() - HeaderSize) / PageSize)
	zero := make([]byte, PageSize)
	offset := int64(HeaderSize) + int64(pageNo)*PageSize
	if _, err := pf.file.WriteAt(zero, offset); err != nil {
		return 0, dberror.Wrap(err, "PAGE_WRITE_FAILED", "AllocatePage", "PagedFile")
	}
	return pageNo, nil
}

// Fsync is best-effort.
func (pf *PagedFile) Fsync() {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	if pf.opened {
		_ = pf.file.Sync()
	}
}

// Close closes the backing file.
func (pf *PagedFile) Close() error {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	if !pf.opened {
		return nil
	}
	err := pf.file.Close()
	pf.file = nil
	pf.opened = false
	return err
}

// Destroy removes the backing file; the file must be closed first.
func (pf *PagedFile) Destroy() error {
	pf.mutex.Lock()
	defer pf.mutex.Unlock()

	if pf.opened {
		return dberror.New(dberror.CategorySystem, "INDEX_FILE_STILL_OPEN", "cannot destroy open index file").
			WithDetail("%s", pf.path)
	}
	if !pf.path.Exists() {
		return nil
	}
	return pf.path.Remove()
}

// Opened reports whether the file is currently open.
func (pf *PagedFile) Opened() bool {
	pf.mutex.RLock()
	defer pf.mutex.RUnlock()
	return pf.opened
}

func errFileNotOpen(op string) error {
	e := dberror.New(dberror.CategorySystem, "INDEX_FILE_NOT_OPEN", "index file is not open")
	e.Operation = op
	e.Component = "PagedFile"
	return e
}
