package system

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyInitialized is returned when setup runs against an instance
// that has already been initialised.
var ErrAlreadyInitialized = errors.New("system already initialized")

// DefaultLanguage is used when setup does not specify one.
const DefaultLanguage = "en"

// Config is the persisted system bootstrap state. Exactly one row exists.
type Config struct {
	IsInitialized bool      `json:"is_initialized"`
	Language      string    `json:"language"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConfigRepository defines the interface for system config persistence.
type ConfigRepository interface {
	Get(ctx context.Context) (*Config, error)
	MarkInitialized(ctx context.Context, language string) error
}

// SQLiteConfigRepository implements ConfigRepository using SQLite.
type SQLiteConfigRepository struct {
	db *sql.DB
}

// NewConfigRepository creates a new SQLite-backed config repository.
func NewConfigRepository(db *sql.DB) *SQLiteConfigRepository {
	return &SQLiteConfigRepository{db: db}
}

// Get returns the system config, creating the uninitialised row on first read.
func (r *SQLiteConfigRepository) Get(ctx context.Context) (*Config, error) {
	if err := r.ensureRow(ctx); err != nil {
		return nil, err
	}

	var cfg Config
	var initialized int
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT is_initialized, language, created_at FROM system_config WHERE id = 1").
		Scan(&initialized, &cfg.Language, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("reading system config: %w", err)
	}

	cfg.IsInitialized = initialized != 0
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &cfg, nil
}

// MarkInitialized flips the write-once initialisation flag. Calling it on
// an already-initialised instance returns ErrAlreadyInitialized.
func (r *SQLiteConfigRepository) MarkInitialized(ctx context.Context, language string) error {
	if err := r.ensureRow(ctx); err != nil {
		return err
	}

	if language == "" {
		language = DefaultLanguage
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE system_config SET is_initialized = 1, language = ? WHERE id = 1 AND is_initialized = 0",
		language,
	)
	if err != nil {
		return fmt.Errorf("marking system initialized: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

// ensureRow inserts the singleton row if it does not exist yet.
func (r *SQLiteConfigRepository) ensureRow(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO system_config (id, is_initialized, language, created_at) VALUES (1, 0, ?, ?)",
		DefaultLanguage, now,
	)
	if err != nil {
		return fmt.Errorf("ensuring system config row: %w", err)
	}
	return nil
}
