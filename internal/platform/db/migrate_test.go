package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
)

func sqlFile(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s)} }

func TestMigrator_Load(t *testing.T) {
	src := fstest.MapFS{
		"010_reports.sql": sqlFile("SELECT 10;"),
		"002_claims.sql":  sqlFile("SELECT 2;"),
		"001_billing.sql": sqlFile("CREATE TABLE bill (id UUID PRIMARY KEY);"),
		"readme.sql":      sqlFile("-- no version prefix"),
		"abc_invalid.sql": sqlFile("-- non-numeric prefix"),
		"notes.txt":       sqlFile("not sql"),
	}
	migrations, err := NewMigrator(nil, src, zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, want := range []int{1, 2, 10} {
		if migrations[i].Version != want {
			t.Errorf("migration[%d]: expected version %d, got %d", i, want, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_billing.sql" || migrations[0].SQL != "CREATE TABLE bill (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected first migration %+v", migrations[0])
	}
}

func TestMigrator_Load_DuplicateVersion(t *testing.T) {
	src := fstest.MapFS{
		"001_billing.sql": sqlFile("SELECT 1;"),
		"001_claims.sql":  sqlFile("SELECT 1;"),
	}
	if _, err := NewMigrator(nil, src, zerolog.Nop()).Load(); err == nil {
		t.Error("expected error for duplicate versions")
	}
}

func TestMigrator_Load_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}, zerolog.Nop()).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestPending(t *testing.T) {
	migrations := []Migration{{Version: 1}, {Version: 2}, {Version: 3}, {Version: 4}}
	done := map[int]time.Time{1: time.Now()}

	got := pending(migrations, done, 0)
	if len(got) != 3 || got[0].Version != 2 {
		t.Errorf("expected versions 2..4 pending, got %+v", got)
	}
	got = pending(migrations, done, 3)
	if len(got) != 2 || got[1].Version != 3 {
		t.Errorf("expected versions 2..3 pending up to target, got %+v", got)
	}
}

func TestStatuses(t *testing.T) {
	at := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	migrations := []Migration{{Version: 1, Name: "001_billing.sql"}, {Version: 2, Name: "002_claims.sql"}}

	got := statuses(migrations, map[int]time.Time{1: at})
	if len(got) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(got))
	}
	if !got[0].Applied || got[0].AppliedAt == nil || !got[0].AppliedAt.Equal(at) {
		t.Errorf("expected 001 applied at %v, got %+v", at, got[0])
	}
	if got[1].Applied || got[1].AppliedAt != nil {
		t.Errorf("expected 002 pending, got %+v", got[1])
	}
}
