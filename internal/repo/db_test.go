package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenSQLite_CreatesFileAndAcceptsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	// The schema is usable end to end.
	s, err := CreateSession(context.Background(), db, time.Hour)
	if err != nil {
		t.Fatalf("CreateSession on fresh schema: %v", err)
	}
	if s.ID == "" {
		t.Fatalf("empty session ID")
	}
}

func TestOpenSQLite_MissingParentDirFailsEarly(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "no", "such", "dir", "app.db")); err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}
