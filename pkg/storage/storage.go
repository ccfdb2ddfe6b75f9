// Package storage implements the append-only value store backing every
// index. Payloads are written once and addressed by (offset, size) handles;
// updates append a new record and repoint the index entry. Deleted records
// are marked in place and reclaimed only by compaction.
package storage

import (
	"docstore/pkg/dberror"
	"docstore/pkg/primitives"
	"encoding/binary"
	"hash/crc32"
	"os"
	"sync"
)

const (
	// fileHeaderSize is the reserved leading block of every storage file:
	// magic, format version, zero padding. Record offsets are absolute, so
	// the first record starts at fileHeaderSize.
	fileHeaderSize = 100

	// recordHeaderSize precedes every payload:
	// 4 bytes: payload length
	// 1 byte:  status
	// 4 bytes: CRC32 (IEEE) of the payload
	recordHeaderSize = 9

	statusOffsetInRecord = 4
)

var storageMagic = [8]byte{'D', 'O', 'C', 'S', 'T', 'O', 'R', '1'}

// Storage is a durable append-only byte store. Writers are serialized by
// the owning Database's lock; the internal mutex only guards the file
// handle against concurrent handle-level operations.
type Storage struct {
	path   primitives.Filepath
	name   string
	file   *os.File
	mutex  sync.Mutex
	opened bool
}

// New creates a Storage handle for the file <dir>/<name>_stor. The file is
// not touched until Create or Open.
func New(dir, name string) *Storage {
	return &Storage{
		path: primitives.Filepath(dir).Join(name + "_stor"),
		name: name,
	}
}

// Path returns the backing file path.
func (s *Storage) Path() primitives.Filepath {
	return s.path
}

// Create initializes a fresh storage file with its header block.
func (s *Storage) Create() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.opened {
		return dberror.New(dberror.CategorySystem, "STORAGE_ALREADY_OPEN", "storage is already open").
			WithDetail("%s", s.path)
	}

	file, err := os.OpenFile(s.path.String(), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o640)
	if err != nil {
		return dberror.Wrap(err, "STORAGE_CREATE_FAILED", "Create", "Storage")
	}

	header := make([]byte, fileHeaderSize)
	copy(header, storageMagic[:])
	header[len(storageMagic)] = 1 // format version
	if _, err := file.Write(header); err != nil {
		file.Close()
		return dberror.Wrap(err, "STORAGE_CREATE_FAILED", "Create", "Storage")
	}

	s.file = file
	s.opened = true
	return nil
}

// Open opens an existing storage file, failing if it is absent or its
// header block is unrecognizable.
func (s *Storage) Open() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.opened {
		return nil
	}
	if !s.path.Exists() {
		return dberror.New(dberror.CategoryNotFound, "STORAGE_MISSING", "storage file does not exist").
			WithDetail("%s", s.path)
	}

	file, err := os.OpenFile(s.path.String(), os.O_RDWR, 0o640)
	if err != nil {
		return dberror.Wrap(err, "STORAGE_OPEN_FAILED", "Open", "Storage")
	}

	header := make([]byte, fileHeaderSize)
	if _, err := file.ReadAt(header, 0); err != nil {
		file.Close()
		return dberror.New(dberror.CategoryCorruption, "STORAGE_CORRUPTED", "storage header unreadable").
			WithDetail("%s", s.path)
	}
	if string(header[:len(storageMagic)]) != string(storageMagic[:]) {
		file.Close()
		return dberror.New(dberror.CategoryCorruption, "STORAGE_CORRUPTED", "storage header magic mismatch").
			WithDetail("%s", s.path)
	}

	s.file = file
	s.opened = true
	return nil
}

// Close flushes and closes the backing file.
func (s *Storage) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.opened {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.opened = false
	return err
}

// Destroy removes the backing file. Only valid once the owning index has
// closed the storage.
func (s *Storage) Destroy() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.opened {
		return dberror.New(dberror.CategorySystem, "STORAGE_STILL_OPEN", "cannot destroy open storage").
			WithDetail("%s", s.path)
	}
	if !s.path.Exists() {
		return nil
	}
	return s.path.Remove()
}

// Opened reports whether the storage file is currently open.
func (s *Storage) Opened() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.opened
}

// Insert appends a payload and returns its handle. The size in the handle
// is the exact payload length, excluding the record header.
func (s *Storage) Insert(payload []byte) (primitives.Offset, primitives.RecordSize, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.opened {
		return 0, 0, errNotOpen("Insert")
	}

	end, err := s.file.Seek(0, 2)
	if err != nil {
		return 0, 0, dberror.Wrap(err, "STORAGE_SEEK_FAILED", "Insert", "Storage")
	}

	record := make([]byte, recordHeaderSize+len(payload))
	binary.BigEndian.PutUint32(record[0:4], uint32(len(payload)))
	record[statusOffsetInRecord] = byte(primitives.StatusOpen)
	binary.BigEndian.PutUint32(record[5:9], crc32.ChecksumIEEE(payload))
	copy(record[recordHeaderSize:], payload)

	if _, err := s.file.Write(record); err != nil {
		return 0, 0, dberror.Wrap(err, "STORAGE_WRITE_FAILED", "Insert", "Storage")
	}

	return primitives.Offset(end), primitives.RecordSize(len(payload)), nil
}

// Get reads back the payload stored at the given handle. A deleted status
// (from the index entry or from the record itself) yields a nil payload
// and no error; an empty-value sentinel handle does the same. Structural
// violations surface as corruption, never as silently wrong data.
func (s *Storage) Get(start primitives.Offset, size primitives.RecordSize, status primitives.Status) ([]byte, error) {
	if status.IsDeleted() {
		return nil, nil
	}
	if start == primitives.EmptyOffset && size == 0 {
		return nil, nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.opened {
		return nil, errNotOpen("Get")
	}
	if start < fileHeaderSize {
		return nil, corrupted("record offset inside header region", start)
	}

	record := make([]byte, recordHeaderSize+int(size))
	if _, err := s.file.ReadAt(record, int64(start)); err != nil {
		return nil, corrupted("record extends past end of file", start)
	}

	storedLen := binary.BigEndian.Uint32(record[0:4])
	if storedLen != uint32(size) {
		return nil, corrupted("record length mismatch", start)
	}

	recStatus := primitives.Status(record[statusOffsetInRecord])
	if !recStatus.IsValid() {
		return nil, corrupted("record has invalid status byte", start)
	}
	if recStatus.IsDeleted() {
		return nil, nil
	}

	payload := record[recordHeaderSize:]
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(record[5:9]) {
		return nil, corrupted("record checksum mismatch", start)
	}

	return payload, nil
}

// MarkDeleted flips the in-record status byte so compaction can identify
// dead records without consulting any index.
func (s *Storage) MarkDeleted(start primitives.Offset) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.opened {
		return errNotOpen("MarkDeleted")
	}
	if start == primitives.EmptyOffset {
		return nil
	}

	_, err := s.file.WriteAt([]byte{byte(primitives.StatusDeleted)}, int64(start)+statusOffsetInRecord)
	if err != nil {
		return dberror.Wrap(err, "STORAGE_WRITE_FAILED", "MarkDeleted", "Storage")
	}
	return nil
}

// Flush is best-effort; durability mid-write on crash is an explicit
// non-goal, so failures are swallowed.
func (s *Storage) Flush() {
	s.Fsync()
}

// Fsync is best-effort, like Flush.
func (s *Storage) Fsync() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.opened {
		return
	}
	_ = s.file.Sync()
}

func errNotOpen(op string) error {
	e := dberror.New(dberror.CategorySystem, "STORAGE_NOT_OPEN", "storage is not open")
	e.Operation = op
	e.Component = "Storage"
	return e
}

func corrupted(msg string, start primitives.Offset) error {
	return dberror.New(dberror.CategoryCorruption, "STORAGE_CORRUPTED", msg).
		WithDetail("offset %d", start)
}
