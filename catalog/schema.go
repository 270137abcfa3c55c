package catalog

import "database/sql"

// SchemaVersion is recorded in schema_version after a successful apply.
const SchemaVersion = 1

// Schema is the complete catalog schema. Timestamps are Unix milliseconds.
//
// Cascade rules: deleting a question removes its media and its children;
// sources are never deleted while referenced (default FK action blocks it).
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
    source_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
    question_id         INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id           INTEGER NOT NULL REFERENCES sources(source_id),
    source_question_key TEXT NOT NULL,
    raw_html            TEXT NOT NULL,
    raw_metadata_json   TEXT NOT NULL DEFAULT '{}',
    status              TEXT NOT NULL DEFAULT 'extracted',
    extraction_path     TEXT NOT NULL DEFAULT '',
    title               TEXT NOT NULL DEFAULT '',
    preview_markdown    TEXT NOT NULL DEFAULT '',
    parent_id           INTEGER REFERENCES questions(question_id) ON DELETE CASCADE,
    created_at          INTEGER NOT NULL,
    updated_at          INTEGER NOT NULL,
    UNIQUE(source_id, source_question_key)
);
CREATE INDEX IF NOT EXISTS idx_questions_source ON questions(source_id);
CREATE INDEX IF NOT EXISTS idx_questions_created ON questions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_questions_parent ON questions(parent_id);

-- updated_at refreshes on any mutation. The WHEN guard stops the trigger
-- from firing on its own UPDATE.
CREATE TRIGGER IF NOT EXISTS questions_touch AFTER UPDATE ON questions
WHEN new.updated_at = old.updated_at
BEGIN
    UPDATE questions SET updated_at = CAST(strftime('%s','now') AS INTEGER) * 1000
    WHERE question_id = new.question_id;
END;

CREATE TABLE IF NOT EXISTS media (
    media_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    question_id   INTEGER NOT NULL REFERENCES questions(question_id) ON DELETE CASCADE,
    media_role    TEXT NOT NULL DEFAULT 'image',
    media_type    TEXT NOT NULL DEFAULT 'image',
    mime_type     TEXT NOT NULL DEFAULT '',
    relative_path TEXT NOT NULL,
    created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_media_question ON media(question_id);

CREATE TABLE IF NOT EXISTS logs (
    log_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    level       TEXT NOT NULL,
    logger_name TEXT NOT NULL DEFAULT '',
    message     TEXT NOT NULL,
    timestamp   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_time ON logs(timestamp DESC);

CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// ExpectedTables lists the tables the preflight validator asserts exist.
var ExpectedTables = []string{"sources", "questions", "media", "logs", "schema_version"}

// ApplySchema creates all tables, indexes, and triggers, and records the
// schema version. Safe to run on an existing database.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return err
	}
	_, err := db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at)
		VALUES (?, CAST(strftime('%s','now') AS INTEGER) * 1000)`, SchemaVersion)
	return err
}
