// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers schema setup, reopening, the avatar migration and NULL handling

package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	if err := first.SaveAgent(ctx, &AgentRecord{Key: "main", AssistantID: "asst_1", Name: "Main", Model: "gpt-4o", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer second.Close()

	rec, err := second.GetAgent(ctx, "main")
	if err != nil {
		t.Fatalf("GetAgent after reopen failed: %v", err)
	}
	if rec.AssistantID != "asst_1" {
		t.Errorf("expected asst_1, got %s", rec.AssistantID)
	}
}

func TestMigration_AddsAvatarColumn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	// a database written before agents had avatars
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening raw database: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE agents (
		key TEXT PRIMARY KEY,
		assistant_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		model TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		t.Fatalf("creating legacy table: %v", err)
	}
	_, err = db.Exec(`INSERT INTO agents VALUES ('legacy', 'asst_old', 'Old', 'gpt-4', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("seeding legacy row: %v", err)
	}
	db.Close()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed on legacy database: %v", err)
	}
	defer store.Close()

	rec, err := store.GetAgent(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if rec.Avatar != "" {
		t.Errorf("expected empty avatar, got %q", rec.Avatar)
	}
}

func TestSQLiteStore_EmptyAvatarStoredAsNull(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Second)
	err := store.SaveAgent(context.Background(), &AgentRecord{Key: "plain", AssistantID: "asst_p", Name: "Plain", Model: "gpt-4o", CreatedAt: now, UpdatedAt: now})
	if err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	var avatar sql.NullString
	if err := store.db.QueryRow(`SELECT avatar FROM agents WHERE key = 'plain'`).Scan(&avatar); err != nil {
		t.Fatalf("querying avatar: %v", err)
	}
	if avatar.Valid {
		t.Errorf("expected NULL avatar, got %q", avatar.String)
	}
}

func TestSQLiteStore_GetAgentNotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetAgent(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// newTestStore creates a new SQLite store in a temporary directory for testing
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
