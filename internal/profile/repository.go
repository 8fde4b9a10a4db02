package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for profile persistence.
type Repository interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	Save(ctx context.Context, userID string, update *Update) (*Profile, error)
	SetAvatar(ctx context.Context, userID, avatar string) error
	Delete(ctx context.Context, userID string) error
}

// SQLiteRepository implements Repository using SQLite. Profile rows are
// created on first Save; Get on an account without a row returns a
// default profile with IsInitialized false.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed profile repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns a user's profile joined with their username. A missing
// profile row yields a default uninitialised profile; a missing user
// yields ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, userID string) (*Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, p.display_name, p.bio, p.avatar, p.created_at, p.updated_at
		 FROM users u
		 LEFT JOIN profiles p ON p.user_id = u.id
		 WHERE u.id = ?`, userID)

	var p Profile
	var displayName, bio, avatar, createdAt, updatedAt sql.NullString
	err := row.Scan(&p.UserID, &p.Username, &displayName, &bio, &avatar, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	if !createdAt.Valid {
		// No profile row yet: account exists, profile never saved.
		return &p, nil
	}

	p.IsInitialized = true
	p.DisplayName = displayName.String
	p.Bio = bio.String
	p.Avatar = avatar.String
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt.String) //nolint:errcheck // format is controlled

	return &p, nil
}

// Save validates and upserts a user's profile, returning the stored state.
func (r *SQLiteRepository) Save(ctx context.Context, userID string, update *Update) (*Profile, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, bio, avatar, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   bio = excluded.bio,
		   avatar = excluded.avatar,
		   updated_at = excluded.updated_at`,
		userID, update.DisplayName, update.Bio, update.Avatar, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("saving profile: %w", err)
	}

	return r.Get(ctx, userID)
}

// SetAvatar updates only the avatar field, creating the profile row if needed.
func (r *SQLiteRepository) SetAvatar(ctx context.Context, userID, avatar string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, display_name, bio, avatar, created_at, updated_at)
		 VALUES (?, '', '', ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   avatar = excluded.avatar,
		   updated_at = excluded.updated_at`,
		userID, avatar, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("setting avatar: %w", err)
	}
	return nil
}

// Delete removes a user's profile row. Missing rows are not an error:
// account deletion cascades here and the row may already be gone.
func (r *SQLiteRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM profiles WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// isForeignKeyViolation checks if a SQLite error is a FOREIGN KEY constraint failure.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}
