// Package database is the engine facade: one primary id index plus any
// number of named secondary indexes over the same document set, with CRUD,
// query, reindex, and compaction operations. All mutations serialize
// through one writer lock per Database; reads share it.
package database

import (
	"docstore/pkg/dberror"
	"docstore/pkg/document"
	"docstore/pkg/index"
	"docstore/pkg/index/hash"
	"docstore/pkg/lock"
	"docstore/pkg/logging"
	"os"
	"sort"
	"sync"
)

// PrimaryIndexName is the reserved name of the id index every database
// carries. Secondary indexes may not claim it.
const PrimaryIndexName = "id"

// Database is an embedded document store rooted at one directory. Not
// safe to share across processes; within a process all methods are safe
// for concurrent use.
type Database struct {
	path        string
	mu          sync.RWMutex
	id          index.Index
	secondaries map[string]index.Index
	locks       *lock.Registry
	opened      bool
}

// idDefinition keys documents by their primary key verbatim.
type idDefinition struct{}

func (idDefinition) MakeKey(raw []byte) ([]byte, error) {
	return raw, nil
}

func (idDefinition) MakeKeyValue(doc document.Document) ([][]byte, error) {
	id := doc.ID()
	if id == "" {
		return nil, nil
	}
	return [][]byte{[]byte(id)}, nil
}

// New creates a database handle rooted at path. The directory is not
// touched until Create or Open.
func New(path string) *Database {
	// The id index is the primary key: one live entry per _id, so a
	// caller-supplied duplicate is a conflict, not a second document.
	idOpts := hash.DefaultOptions()
	idOpts.Unique = true

	return &Database{
		path:        path,
		id:          hash.New(path, PrimaryIndexName, idDefinition{}, idOpts),
		secondaries: make(map[string]index.Index),
		locks:       lock.NewRegistry(),
	}
}

// Path returns the database's root directory.
func (db *Database) Path() string {
	return db.path
}

// AddIndex registers a secondary index. On an open database the index's
// files are opened, or created when absent; an index added over existing
// documents stays empty until ReindexIndex replays them through it.
func (db *Database) AddIndex(idx index.Index) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	name := idx.Name()
	if name == PrimaryIndexName {
		return dberror.New(dberror.CategoryConfig, "INDEX_NAME_RESERVED", "the id index is built in").
			WithDetail("index %q", name)
	}
	if _, exists := db.secondaries[name]; exists {
		return dberror.New(dberror.CategoryConflict, "INDEX_EXISTS", "an index with this name is already registered").
			WithDetail("index %q", name)
	}

	if db.opened {
		if err := idx.Open(); err != nil {
			if !dberror.IsNotFound(err) {
				return err
			}
			if err := idx.Create(); err != nil {
				return err
			}
		}
	}

	db.secondaries[name] = idx
	return nil
}

// Exists reports whether path already holds a database.
func (db *Database) Exists() bool {
	info, err := os.Stat(db.path)
	if err != nil || !info.IsDir() {
		return false
	}
	_, err = os.Stat(db.id.Storage().Path().String())
	return err == nil
}

// Create initializes the database directory and every registered index.
// A location that already holds a database is a conflict, not an
// overwrite.
func (db *Database) Create() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.opened {
		return errAlreadyOpen()
	}
	if db.Exists() {
		return dberror.New(dberror.CategoryConflict, "DATABASE_EXISTS", "location already holds a database").
			WithDetail("%s", db.path)
	}
	if err := os.MkdirAll(db.path, 0o750); err != nil {
		return dberror.Wrap(err, "DATABASE_CREATE_FAILED", "Create", "Database")
	}

	if err := db.id.Create(); err != nil {
		return err
	}
	for _, idx := range db.secondaries {
		if err := idx.Create(); err != nil {
			db.closeAll()
			return err
		}
	}

	db.opened = true
	logging.Info("database created", "path", db.path, "indexes", len(db.secondaries)+1)
	return nil
}

// Open opens the id index and every registered secondary. A corrupt
// header on any index fails the whole open; there is no partial-open
// state.
func (db *Database) Open() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.opened {
		return errAlreadyOpen()
	}
	if !db.Exists() {
		return dberror.New(dberror.CategoryNotFound, "DATABASE_MISSING", "no database at this location").
			WithDetail("%s", db.path)
	}

	if err := db.id.Open(); err != nil {
		return err
	}
	for _, idx := range db.secondaries {
		if err := idx.Open(); err != nil {
			db.closeAll()
			return err
		}
	}

	db.opened = true
	return nil
}

// Close flushes and closes every index. Safe to call on a closed
// database.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return nil
	}
	err := db.closeAll()
	db.opened = false
	return err
}

func (db *Database) closeAll() error {
	err := db.id.Close()
	for _, idx := range db.secondaries {
		if cerr := idx.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Destroy removes the whole database directory. The database must be
// closed first.
func (db *Database) Destroy() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.opened {
		return dberror.New(dberror.CategorySystem, "DATABASE_STILL_OPEN", "close the database before destroying it").
			WithDetail("%s", db.path)
	}
	if err := os.RemoveAll(db.path); err != nil {
		return dberror.Wrap(err, "DATABASE_DESTROY_FAILED", "Destroy", "Database")
	}
	return nil
}

// Opened reports whether the database is open.
func (db *Database) Opened() bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.opened
}

// IndexesNames returns every index name, the id index first and the
// secondaries sorted.
func (db *Database) IndexesNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.secondaries)+1)
	for name := range db.secondaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{PrimaryIndexName}, names...)
}

// Count returns the number of live entries in the named index.
func (db *Database) Count(indexName string) (uint64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	idx, err := db.indexByName(indexName)
	if err != nil {
		return 0, err
	}
	return idx.Count(), nil
}

// indexByName resolves an index under a held lock.
func (db *Database) indexByName(name string) (index.Index, error) {
	if !db.opened {
		return nil, errNotOpen()
	}
	if name == PrimaryIndexName {
		return db.id, nil
	}
	if idx, ok := db.secondaries[name]; ok {
		return idx, nil
	}
	return nil, dberror.New(dberror.CategoryNotFound, "INDEX_NOT_FOUND", "no index registered under this name").
		WithDetail("index %q", name)
}

func errNotOpen() error {
	return dberror.New(dberror.CategorySystem, "DATABASE_NOT_OPEN", "database is not open")
}

func errAlreadyOpen() error {
	return dberror.New(dberror.CategorySystem, "DATABASE_ALREADY_OPEN", "database is already open")
}
