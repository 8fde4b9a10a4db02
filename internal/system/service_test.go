package system

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the users and
// system_config schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "system-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE system_config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			is_initialized INTEGER NOT NULL DEFAULT 0,
			language TEXT NOT NULL DEFAULT 'en',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying migration: %v", err)
	}

	return db
}

func testService(t *testing.T) (*Service, auth.UserRepository) {
	t.Helper()
	db := testDB(t)
	users := auth.NewUserRepository(db)
	return NewService(NewConfigRepository(db), users, logging.Default()), users
}

func TestService_StatusBeforeSetup(t *testing.T) {
	svc, _ := testService(t)

	cfg, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if cfg.IsInitialized {
		t.Error("fresh instance should not be initialized")
	}
	if cfg.Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", cfg.Language, DefaultLanguage)
	}
}

func TestService_Setup(t *testing.T) {
	svc, users := testService(t)
	ctx := context.Background()

	root, err := svc.Setup(ctx, "rootuser", "root-password", "de")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if root.Role != auth.RoleRoot {
		t.Errorf("Role = %q, want %q", root.Role, auth.RoleRoot)
	}

	cfg, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !cfg.IsInitialized {
		t.Error("instance should be initialized after setup")
	}
	if cfg.Language != "de" {
		t.Errorf("Language = %q, want %q", cfg.Language, "de")
	}

	got, err := users.GetByUsername(ctx, "rootuser")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if !auth.VerifyPassword("root-password", got.PasswordHash) {
		t.Error("stored hash should verify against the setup password")
	}
}

func TestService_SetupTwice(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.Setup(ctx, "rootuser", "root-password", ""); err != nil {
		t.Fatalf("first Setup() error = %v", err)
	}

	_, err := svc.Setup(ctx, "another", "another-password", "")
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Setup() error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestService_SetupValidation(t *testing.T) {
	ctx := context.Background()

	svc, _ := testService(t)
	if _, err := svc.Setup(ctx, "x", "valid-password", ""); err == nil {
		t.Error("Setup() with short username should fail")
	}

	svc, _ = testService(t)
	if _, err := svc.Setup(ctx, "rootuser", "short", ""); err == nil {
		t.Error("Setup() with short password should fail")
	}
}

func TestService_SetupRepairsHalfOpenState(t *testing.T) {
	svc, users := testService(t)
	ctx := context.Background()

	// Root exists but the config row was never marked.
	hash, _ := auth.HashPassword("root-password")
	if err := users.Create(ctx, &auth.User{Username: "orphanroot", PasswordHash: hash, Role: auth.RoleRoot}); err != nil {
		t.Fatalf("seeding root: %v", err)
	}

	_, err := svc.Setup(ctx, "second", "second-password", "")
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("Setup() error = %v, want ErrAlreadyInitialized", err)
	}

	cfg, err := svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !cfg.IsInitialized {
		t.Error("Setup() should repair the initialization flag")
	}

	count, _ := users.CountByRole(ctx, auth.RoleRoot)
	if count != 1 {
		t.Errorf("root count = %d, want 1 (no second root created)", count)
	}
}

func TestService_Repair(t *testing.T) {
	svc, users := testService(t)
	ctx := context.Background()

	// No-op on a fresh instance.
	if err := svc.Repair(ctx); err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	cfg, _ := svc.Status(ctx)
	if cfg.IsInitialized {
		t.Error("Repair() must not initialize a fresh instance")
	}

	hash, _ := auth.HashPassword("root-password")
	if err := users.Create(ctx, &auth.User{Username: "orphanroot", PasswordHash: hash, Role: auth.RoleRoot}); err != nil {
		t.Fatalf("seeding root: %v", err)
	}

	if err := svc.Repair(ctx); err != nil {
		t.Fatalf("Repair() error = %v", err)
	}
	cfg, _ = svc.Status(ctx)
	if !cfg.IsInitialized {
		t.Error("Repair() should mark the instance initialized when a root exists")
	}
}
