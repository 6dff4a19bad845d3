package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTierMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_ticket_tiers.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no ticket tier migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS ticket_tiers",
		"CHECK (available_quantity >= 0)",
		"CHECK (available_quantity <= total_quantity)",
		"DROP TABLE IF EXISTS ticket_tiers",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCheckinMigrationEnforcesExactlyOnce(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_checkin_records.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no checkin migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_checkin_records_ticket_id",
		"FOREIGN KEY (ticket_id) REFERENCES tickets(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS checkin_records",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
