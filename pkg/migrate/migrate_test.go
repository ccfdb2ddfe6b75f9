package migrate

import (
	"database/sql"
	"docstore/pkg/database"
	"docstore/pkg/document"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSQLiteExportsLiveDocuments(t *testing.T) {
	dir := t.TempDir()
	db := database.New(filepath.Join(dir, "db"))
	require.NoError(t, db.Create())
	defer db.Close()

	for i := 0; i < 3; i++ {
		_, err := db.Insert(document.Document{"_t": "media", "n": i})
		require.NoError(t, err)
	}
	_, err := db.Insert(document.Document{"_t": "profile", "name": "default"})
	require.NoError(t, err)
	_, err = db.Insert(document.Document{"untyped": true})
	require.NoError(t, err)

	doomed, err := db.Insert(document.Document{"_t": "media", "n": 99})
	require.NoError(t, err)
	require.NoError(t, db.Delete(doomed))

	target := filepath.Join(dir, "export.db")
	report, err := ToSQLite(db, target)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Migrated)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 3, report.ByType["media"])
	assert.Equal(t, 1, report.ByType["profile"])
	assert.Equal(t, 1, report.ByType[""])

	out, err := sql.Open("sqlite", target)
	require.NoError(t, err)
	defer out.Close()

	var total int
	require.NoError(t, out.QueryRow("SELECT COUNT(*) FROM documents").Scan(&total))
	assert.Equal(t, 5, total)

	var media int
	require.NoError(t, out.QueryRow("SELECT COUNT(*) FROM documents WHERE type = 'media'").Scan(&media))
	assert.Equal(t, 3, media)

	var body string
	require.NoError(t, out.QueryRow("SELECT body FROM documents WHERE type = 'profile'").Scan(&body))
	assert.Contains(t, body, `"name":"default"`)
}

func TestToSQLiteIsRerunnable(t *testing.T) {
	dir := t.TempDir()
	db := database.New(filepath.Join(dir, "db"))
	require.NoError(t, db.Create())
	defer db.Close()

	stored, err := db.Insert(document.Document{"_t": "media", "name": "first"})
	require.NoError(t, err)

	target := filepath.Join(dir, "export.db")
	_, err = ToSQLite(db, target)
	require.NoError(t, err)

	renamed := stored.Clone()
	renamed["name"] = "second"
	_, err = db.Update(renamed)
	require.NoError(t, err)

	report, err := ToSQLite(db, target)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)

	out, err := sql.Open("sqlite", target)
	require.NoError(t, err)
	defer out.Close()

	var total int
	require.NoError(t, out.QueryRow("SELECT COUNT(*) FROM documents").Scan(&total))
	assert.Equal(t, 1, total)

	var body string
	require.NoError(t, out.QueryRow("SELECT body FROM documents WHERE id = ?", stored.ID()).Scan(&body))
	assert.Contains(t, body, `"second"`)
}
