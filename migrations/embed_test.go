package migrations

import (
	"context"
	"testing"

	"github.com/intermediateengineering/homeassistant-ledwallcontroller/internal/infrastructure/database"
)

func TestEmbeddedMigrationsApplyAndRollBack(t *testing.T) {
	all, err := database.LoadMigrations(FS)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(all) == 0 {
		t.Fatal("no embedded migrations found")
	}
	for _, m := range all {
		if m.DownSQL == "" {
			t.Errorf("migration %s (%s) has no down SQL", m.Version, m.Name)
		}
	}

	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for _, table := range []string{"config_entries", "light_state_history", "audit_logs"} {
		var n int
		if err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n); err != nil {
			t.Fatalf("sqlite_master query error = %v", err)
		}
		if n != 1 {
			t.Errorf("table %s missing after Migrate", table)
		}
	}

	for range all {
		if err := db.MigrateDown(ctx, FS); err != nil {
			t.Fatalf("MigrateDown() error = %v", err)
		}
	}
	applied, _, err := db.MigrationStatus(ctx, FS)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied = %d after rolling everything back, want 0", len(applied))
	}
}
