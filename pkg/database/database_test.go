package database

import (
	"docstore/pkg/dberror"
	"docstore/pkg/document"
	"docstore/pkg/index"
	"docstore/pkg/index/btree"
	"docstore/pkg/index/hash"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestDB(t *testing.T) *Database {
	t.Helper()
	db := New(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, db.Create())
	t.Cleanup(func() { db.Close() })
	return db
}

func categoryIndex(db *Database) index.Index {
	return hash.New(db.Path(), "category", index.FieldDefinition{Field: "category"}, hash.DefaultOptions())
}

func tagsIndex(db *Database) index.Index {
	return btree.NewMulti(db.Path(), "tags", index.MultiFieldDefinition{Field: "tags"}, btree.DefaultOptions())
}

func TestInsertAssignsIDAndRev(t *testing.T) {
	db := createTestDB(t)

	stored, err := db.Insert(document.Document{"name": "test", "value": 42})
	require.NoError(t, err)
	assert.Len(t, stored.ID(), 32)
	assert.NotEmpty(t, stored.Rev())

	got, err := db.Get(PrimaryIndexName, []byte(stored.ID()), true)
	require.NoError(t, err)
	assert.Equal(t, "test", got["name"])
	assert.Equal(t, float64(42), got["value"])
	assert.Equal(t, stored.Rev(), got.Rev())
}

func TestInsertHonorsCallerID(t *testing.T) {
	db := createTestDB(t)

	doc := document.Document{"name": "pinned"}
	doc.SetID("feedfacefeedfacefeedfacefeedface")
	stored, err := db.Insert(doc)
	require.NoError(t, err)
	assert.Equal(t, "feedfacefeedfacefeedfacefeedface", stored.ID())

	got, err := db.Get(PrimaryIndexName, []byte(stored.ID()), true)
	require.NoError(t, err)
	assert.Equal(t, "pinned", got["name"])
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	db := createTestDB(t)
	id := "11111111111111111111111111111111"

	doc := document.Document{"name": "first"}
	doc.SetID(id)
	_, err := db.Insert(doc)
	require.NoError(t, err)

	dup := document.Document{"name": "second"}
	dup.SetID(id)
	_, err = db.Insert(dup)
	assert.True(t, dberror.IsConflict(err), "expected conflict on duplicate _id, got %v", err)

	// The original document is untouched and remains the only one.
	got, err := db.Get(PrimaryIndexName, []byte(id), true)
	require.NoError(t, err)
	assert.Equal(t, "first", got["name"])

	docs, err := db.All(PrimaryIndexName, true)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestWriteResultsMatchReadForm(t *testing.T) {
	db := createTestDB(t)

	stored, err := db.Insert(document.Document{"n": 1, "nested": map[string]any{"k": 2}})
	require.NoError(t, err)

	got, err := db.Get(PrimaryIndexName, []byte(stored.ID()), true)
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	stored["n"] = 7
	updated, err := db.Update(stored)
	require.NoError(t, err)

	got, err = db.Get(PrimaryIndexName, []byte(stored.ID()), true)
	require.NoError(t, err)
	assert.Equal(t, got, updated)
	assert.Equal(t, float64(7), updated["n"])
}

func TestInsertRejectsRevBearingDocument(t *testing.T) {
	db := createTestDB(t)

	doc := document.Document{"name": "stale"}
	doc.SetRev("0000000100000000")
	_, err := db.Insert(doc)
	assert.True(t, dberror.IsConflict(err), "expected conflict, got %v", err)
}

func TestAllReturnsEveryDocument(t *testing.T) {
	db := createTestDB(t)

	for i := 0; i < 10; i++ {
		_, err := db.Insert(document.Document{"n": i})
		require.NoError(t, err)
	}

	docs, err := db.All(PrimaryIndexName, true)
	require.NoError(t, err)
	require.Len(t, docs, 10)

	seen := make(map[string]bool)
	for _, doc := range docs {
		require.NotEmpty(t, doc.ID())
		assert.False(t, seen[doc.ID()], "duplicate _id %s", doc.ID())
		seen[doc.ID()] = true
	}
}

func TestSecondaryIndexLookup(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, db.AddIndex(categoryIndex(db)))

	first, err := db.Insert(document.Document{"title": "one", "category": "action"})
	require.NoError(t, err)

	got, err := db.Get("category", []byte("action"), true)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), got.ID())
	assert.Equal(t, "one", got["title"])

	for i := 0; i < 4; i++ {
		_, err := db.Insert(document.Document{"title": fmt.Sprintf("more-%d", i), "category": "action"})
		require.NoError(t, err)
	}

	docs, err := db.GetMany("category", []byte("action"), 0, 10, true)
	require.NoError(t, err)
	assert.Len(t, docs, 5)

	// Paging: skipping two matches leaves the other three.
	page, err := db.GetMany("category", []byte("action"), 2, 10, true)
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestGetWithoutDocReturnsOnlyID(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, db.AddIndex(categoryIndex(db)))

	stored, err := db.Insert(document.Document{"title": "one", "category": "drama"})
	require.NoError(t, err)

	got, err := db.Get("category", []byte("drama"), false)
	require.NoError(t, err)
	assert.Equal(t, stored.ID(), got.ID())
	assert.NotContains(t, got, "title")
}

func TestUpdateBumpsRevAndKeepsFields(t *testing.T) {
	db := createTestDB(t)

	stored, err := db.Insert(document.Document{"name": "v0"})
	require.NoError(t, err)
	firstRev := stored.Rev()

	current := stored
	for i := 1; i <= 5; i++ {
		next := current.Clone()
		next["name"] = fmt.Sprintf("v%d", i)
		current, err = db.Update(next)
		require.NoError(t, err, "update %d", i)
	}

	got, err := db.Get(PrimaryIndexName, []byte(stored.ID()), true)
	require.NoError(t, err)
	assert.Equal(t, "v5", got["name"])
	assert.NotEqual(t, firstRev, got.Rev())
}

func TestUpdateStaleRevConflicts(t *testing.T) {
	db := createTestDB(t)

	stored, err := db.Insert(document.Document{"name": "original"})
	require.NoError(t, err)

	fresh := stored.Clone()
	fresh["name"] = "winner"
	_, err = db.Update(fresh)
	require.NoError(t, err)

	stale := stored.Clone()
	stale["name"] = "loser"
	_, err = db.Update(stale)
	assert.True(t, dberror.IsConflict(err), "expected conflict, got %v", err)
}

func TestUpdateMovesSecondaryMembership(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, db.AddIndex(categoryIndex(db)))

	stored, err := db.Insert(document.Document{"title": "one", "category": "action"})
	require.NoError(t, err)

	moved := stored.Clone()
	moved["category"] = "drama"
	_, err = db.Update(moved)
	require.NoError(t, err)

	_, err = db.Get("category", []byte("action"), false)
	assert.True(t, dberror.IsNotFound(err), "stale key should be gone, got %v", err)

	got, err := db.Get("category", []byte("drama"), false)
	require.NoError(t, err)
	assert.Equal(t, stored.ID(), got.ID())
}

func TestDeleteIsIdempotent(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, db.AddIndex(categoryIndex(db)))

	stored, err := db.Insert(document.Document{"title": "doomed", "category": "action"})
	require.NoError(t, err)

	require.NoError(t, db.Delete(stored))
	_, err = db.Get(PrimaryIndexName, []byte(stored.ID()), true)
	assert.True(t, dberror.IsNotFound(err), "deleted doc should be gone, got %v", err)
	_, err = db.Get("category", []byte("action"), false)
	assert.True(t, dberror.IsNotFound(err), "secondary entry should be gone, got %v", err)

	// Second delete: no error, nothing resurrected.
	require.NoError(t, db.Delete(stored))
	_, err = db.Get(PrimaryIndexName, []byte(stored.ID()), true)
	assert.True(t, dberror.IsNotFound(err))
}

func TestMultiTagIndexFanOut(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, db.AddIndex(tagsIndex(db)))

	stored, err := db.Insert(document.Document{
		"title": "tagged",
		"tags":  []any{"thriller", "space", "classic"},
	})
	require.NoError(t, err)

	count, err := db.Count("tags")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	for _, tag := range []string{"thriller", "space", "classic"} {
		got, err := db.Get("tags", []byte(tag), true)
		require.NoError(t, err, "tag %s", tag)
		assert.Equal(t, stored.ID(), got.ID())
	}

	require.NoError(t, db.Delete(stored))
	count, err = db.Count("tags")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestReindexPopulatesLateIndex(t *testing.T) {
	db := createTestDB(t)

	for i := 0; i < 5; i++ {
		_, err := db.Insert(document.Document{"n": i, "category": "late"})
		require.NoError(t, err)
	}

	require.NoError(t, db.AddIndex(categoryIndex(db)))

	// Added after the fact: empty until rebuilt.
	docs, err := db.GetMany("category", []byte("late"), 0, 0, false)
	require.NoError(t, err)
	assert.Empty(t, docs)

	require.NoError(t, db.ReindexIndex("category"))

	docs, err = db.GetMany("category", []byte("late"), 0, 0, true)
	require.NoError(t, err)
	assert.Len(t, docs, 5)
}

func TestReindexAllSecondaries(t *testing.T) {
	db := createTestDB(t)

	for i := 0; i < 4; i++ {
		_, err := db.Insert(document.Document{
			"category": "bulk",
			"tags":     []any{"a", "b"},
		})
		require.NoError(t, err)
	}

	require.NoError(t, db.AddIndex(categoryIndex(db)))
	require.NoError(t, db.AddIndex(tagsIndex(db)))
	require.NoError(t, db.Reindex())

	count, err := db.Count("category")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
	count, err = db.Count("tags")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), count)
}

func TestCreateconflictsOnExistingDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db := New(dir)
	require.NoError(t, db.Create())
	require.NoError(t, db.Close())

	err := New(dir).Create()
	assert.True(t, dberror.IsConflict(err), "expected conflict, got %v", err)
}

func TestOpenMissingDatabase(t *testing.T) {
	err := New(filepath.Join(t.TempDir(), "nothing")).Open()
	assert.True(t, dberror.IsNotFound(err), "expected not-found, got %v", err)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db := New(dir)
	require.NoError(t, db.AddIndex(categoryIndex(db)))
	require.NoError(t, db.Create())

	stored, err := db.Insert(document.Document{"title": "keeper", "category": "archive"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened := New(dir)
	require.NoError(t, reopened.AddIndex(categoryIndex(reopened)))
	require.NoError(t, reopened.Open())
	defer reopened.Close()

	got, err := reopened.Get(PrimaryIndexName, []byte(stored.ID()), true)
	require.NoError(t, err)
	assert.Equal(t, "keeper", got["title"])

	got, err = reopened.Get("category", []byte("archive"), true)
	require.NoError(t, err)
	assert.Equal(t, stored.ID(), got.ID())
}

func TestCompactReclaimsAndPreserves(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, db.AddIndex(categoryIndex(db)))

	var keep []document.Document
	for i := 0; i < 10; i++ {
		stored, err := db.Insert(document.Document{"n": i, "category": "mixed"})
		require.NoError(t, err)
		if i%2 == 0 {
			require.NoError(t, db.Delete(stored))
		} else {
			keep = append(keep, stored)
		}
	}

	require.NoError(t, db.Compact())

	docs, err := db.All(PrimaryIndexName, true)
	require.NoError(t, err)
	assert.Len(t, docs, len(keep))
	for _, stored := range keep {
		got, err := db.Get(PrimaryIndexName, []byte(stored.ID()), true)
		require.NoError(t, err)
		assert.Equal(t, stored["n"], got["n"])
	}

	docs, err = db.GetMany("category", []byte("mixed"), 0, 0, false)
	require.NoError(t, err)
	assert.Len(t, docs, len(keep))
}

func TestIndexesNames(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, db.AddIndex(tagsIndex(db)))
	require.NoError(t, db.AddIndex(categoryIndex(db)))

	assert.Equal(t, []string{"id", "category", "tags"}, db.IndexesNames())
}

func TestAddIndexRejectsReservedAndDuplicateNames(t *testing.T) {
	db := createTestDB(t)

	err := db.AddIndex(hash.New(db.Path(), "id", index.FieldDefinition{Field: "x"}, hash.DefaultOptions()))
	assert.True(t, dberror.IsConfig(err), "expected config error, got %v", err)

	require.NoError(t, db.AddIndex(categoryIndex(db)))
	err = db.AddIndex(categoryIndex(db))
	assert.True(t, dberror.IsConflict(err), "expected conflict, got %v", err)
}
