package repository

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB opens (creating if needed) the local queue database. WAL mode
// keeps the table readable while a sync pass writes, and protects the queue
// from corruption on a mid-write crash.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Outbox of clock events awaiting confirmation from the server
	CREATE TABLE IF NOT EXISTS attendance_queue (
		event_id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		mode TEXT NOT NULL,

		client_time TEXT NOT NULL,
		device_tz TEXT NOT NULL,
		tz_offset_minutes INTEGER,

		latitude REAL NOT NULL,
		longitude REAL NOT NULL,

		notes TEXT,
		photo_local_path TEXT NOT NULL,
		photo_url TEXT,

		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,

		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_queue_status_created
	ON attendance_queue(status, created_at);

	-- Device identity and token pair, one value per key
	CREATE TABLE IF NOT EXISTS device_credentials (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := db.Exec(schema)
	return err
}
