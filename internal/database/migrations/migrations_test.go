package migrations

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	for _, table := range []string{"rebuilds", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() error = %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() error = %v", err)
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if err == nil || !strings.Contains(err.Error(), "needs migration") {
		t.Errorf("CheckDBMigrationStatus() on fresh db = %v, want needs migration", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration = %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 1 {
		t.Errorf("LatestVersion() = %d, want 1", v)
	}
}
