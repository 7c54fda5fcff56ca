package db

import (
	"database/sql"
	"testing"
)

func tableExists(t *testing.T, database *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := database.QueryRow(`SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_name = $1
	)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", name, err)
	}
	return exists
}

// TestMigrateIdempotent runs the migrations twice; the second run must be a no-op.
func TestMigrateIdempotent(t *testing.T) {
	database := openTestDB(t)

	if err := Migrate(database); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if !tableExists(t, database, "pin_events") {
		t.Error("pin_events does not exist after migration")
	}

	version, dirty, err := MigrationVersion(database)
	if err != nil {
		t.Fatalf("MigrationVersion() error = %v", err)
	}
	if dirty {
		t.Error("migration version is dirty")
	}
	if version < 1 {
		t.Errorf("migration version = %d, want >= 1", version)
	}
}

// TestMigrateDownAndUp rolls the schema back and forward again.
func TestMigrateDownAndUp(t *testing.T) {
	database := openTestDB(t)

	if err := MigrateDown(database); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, database, "pin_events") {
		t.Error("pin_events still exists after rollback")
	}
	if v, _, err := MigrationVersion(database); err != nil || v != 0 {
		t.Errorf("version after rollback = %d, %v; want 0", v, err)
	}

	if err := Migrate(database); err != nil {
		t.Fatalf("Migrate() after rollback error = %v", err)
	}
	if !tableExists(t, database, "pin_events") {
		t.Error("pin_events missing after re-applying migrations")
	}
}
