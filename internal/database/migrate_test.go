package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	dir := filepath.Join(filepath.Dir(thisFile), "..", "..", "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing up files: %v", err)
	}
	if len(upFiles) == 0 {
		t.Fatal("no migration files found")
	}

	for _, up := range upFiles {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// TestMigrations_UsersUniqueUsername guards the storage-level uniqueness the
// registration race depends on. Dropping the index would let two concurrent
// registrations of the same name both commit.
func TestMigrations_UsersUniqueUsername(t *testing.T) {
	dir := migrationsDir(t)
	data, err := os.ReadFile(filepath.Join(dir, "000001_create_users.up.sql"))
	if err != nil {
		t.Fatalf("reading users migration: %v", err)
	}
	content := string(data)

	checks := map[string]*regexp.Regexp{
		"users table":      regexp.MustCompile(`(?i)CREATE TABLE IF NOT EXISTS users`),
		"id primary key":   regexp.MustCompile(`(?i)PRIMARY KEY \(id\)`),
		"unique username":  regexp.MustCompile(`(?i)UNIQUE KEY \w+ \(username\)`),
		"hash column":      regexp.MustCompile(`(?i)\bhash\s+VARCHAR`),
		"binary collation": regexp.MustCompile(`(?i)COLLATE=utf8mb4_bin`),
	}
	for name, re := range checks {
		if !re.MatchString(content) {
			t.Errorf("users migration is missing %s", name)
		}
	}
}

func TestPingWithRetry_SucceedsImmediately(t *testing.T) {
	calls := 0
	err := pingWithRetry(context.Background(), "test", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 ping, got %d", calls)
	}
}

func TestPingWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := pingWithRetry(ctx, "test", func(context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 ping before giving up, got %d", calls)
	}
}
