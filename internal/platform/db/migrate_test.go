package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrationDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, sql := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations_ParsesAndSortsByVersion(t *testing.T) {
	// Written out of order on purpose; the loader must sort numerically,
	// not lexically (10 after 2).
	dir := writeMigrationDir(t, map[string]string{
		"010_retention.sql": "ALTER TABLE morning_huddles ADD COLUMN purged_at TIMESTAMPTZ;",
		"002_api_keys.sql":  "CREATE TABLE api_keys (id UUID PRIMARY KEY);",
		"001_huddles.sql":   "CREATE TABLE morning_huddles (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("len = %d, want 3", len(migrations))
	}

	wantVersions := []int{1, 2, 10}
	for i, want := range wantVersions {
		if migrations[i].Version != want {
			t.Errorf("migrations[%d].Version = %d, want %d", i, migrations[i].Version, want)
		}
	}
	if migrations[0].Name != "001_huddles.sql" {
		t.Errorf("migrations[0].Name = %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE morning_huddles (id UUID PRIMARY KEY);" {
		t.Errorf("migrations[0].SQL = %q", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsFilesWithoutNumericPrefix(t *testing.T) {
	dir := writeMigrationDir(t, map[string]string{
		"001_huddles.sql":   "CREATE TABLE morning_huddles (id UUID PRIMARY KEY);",
		"rollback_plan.sql": "-- kept next to the migrations, not one of them",
		"notes.txt":         "not sql at all",
		"wip_indexes.sql":   "-- prefix is not a number",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Version != 1 {
		t.Fatalf("migrations = %+v, want only version 1", migrations)
	}
}

func TestLoadMigrations_EmptyAndMissingDirs(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("empty dir: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("empty dir: len = %d, want 0", len(migrations))
	}

	if _, err := NewMigrator(nil, filepath.Join(t.TempDir(), "missing")).LoadMigrations(); err == nil {
		t.Error("missing dir: want error")
	}
}

func TestLoadMigrations_ShippedSchemaParses(t *testing.T) {
	// The repo's real migrations must always load; a bad filename here
	// would make `huddle-server migrate up` a no-op in production.
	migrations, err := NewMigrator(nil, filepath.Join("..", "..", "..", "migrations")).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("shipped migrations directory loaded as empty")
	}
	if migrations[0].Version != 1 {
		t.Errorf("first shipped migration version = %d, want 1", migrations[0].Version)
	}
}
