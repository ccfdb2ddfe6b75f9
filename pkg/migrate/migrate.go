// Package migrate exports a document database into a single SQLite file,
// the one-way escape hatch for callers moving off the engine. The export
// is error-tolerant: documents that fail to load or insert are counted
// and skipped, never fatal to the run.
package migrate

import (
	"database/sql"
	"docstore/pkg/database"
	"docstore/pkg/dberror"
	"docstore/pkg/document"
	"docstore/pkg/logging"

	_ "modernc.org/sqlite"
)

// Report summarizes one export run.
type Report struct {
	// Migrated counts successfully exported documents.
	Migrated int

	// Skipped counts documents dropped because they failed to load or
	// insert.
	Skipped int

	// ByType counts migrated documents per "_t" document type; untyped
	// documents land under "".
	ByType map[string]int
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id   TEXT PRIMARY KEY,
	rev  TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_type ON documents (type);
`

// ToSQLite exports every live document reachable through the id index
// into a documents table at target. An existing table is merged into:
// documents with the same id are replaced.
func ToSQLite(db *database.Database, target string) (Report, error) {
	report := Report{ByType: make(map[string]int)}

	docs, err := db.All(database.PrimaryIndexName, true)
	if err != nil {
		return report, err
	}

	out, err := sql.Open("sqlite", target)
	if err != nil {
		return report, dberror.Wrap(err, "EXPORT_OPEN_FAILED", "ToSQLite", "Migrate")
	}
	defer out.Close()

	if _, err := out.Exec(schema); err != nil {
		return report, dberror.Wrap(err, "EXPORT_SCHEMA_FAILED", "ToSQLite", "Migrate")
	}

	tx, err := out.Begin()
	if err != nil {
		return report, dberror.Wrap(err, "EXPORT_BEGIN_FAILED", "ToSQLite", "Migrate")
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO documents (id, rev, type, body) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return report, dberror.Wrap(err, "EXPORT_PREPARE_FAILED", "ToSQLite", "Migrate")
	}
	defer stmt.Close()

	for _, doc := range docs {
		body, err := document.Marshal(doc)
		if err != nil {
			logging.Warn("skipping unserializable document during export",
				"doc_id", doc.ID(), "error", err)
			report.Skipped++
			continue
		}

		docType, _ := doc["_t"].(string)
		if _, err := stmt.Exec(doc.ID(), doc.Rev(), docType, string(body)); err != nil {
			logging.Warn("skipping document that failed to insert during export",
				"doc_id", doc.ID(), "error", err)
			report.Skipped++
			continue
		}

		report.Migrated++
		report.ByType[docType]++
	}

	if err := tx.Commit(); err != nil {
		return report, dberror.Wrap(err, "EXPORT_COMMIT_FAILED", "ToSQLite", "Migrate")
	}

	logging.Info("export finished", "target", target,
		"migrated", report.Migrated, "skipped", report.Skipped)
	return report, nil
}
