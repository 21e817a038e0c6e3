package repository

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with all migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	// Apply migrations
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			nik TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			reminder_count INTEGER NOT NULL DEFAULT 0,
			reminder_message TEXT NOT NULL DEFAULT '',
			job_id TEXT NOT NULL DEFAULT '',
			last_sent TIMESTAMP,
			last_reply TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			contact_id TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			body TEXT NOT NULL,
			gateway_response TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS dispatch_jobs (
			id TEXT PRIMARY KEY,
			message_template TEXT NOT NULL,
			reminder_template TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'queued',
			total INTEGER NOT NULL DEFAULT 0,
			batches INTEGER NOT NULL DEFAULT 0,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			stats JSON,
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
