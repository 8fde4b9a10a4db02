package system

import (
	"context"
	"errors"
	"fmt"

	"github.com/openbiocards/biocard-core/internal/auth"
	"github.com/openbiocards/biocard-core/internal/infrastructure/logging"
)

// Service coordinates bootstrap state between the system config and the
// user store. It owns the write-once setup flow and the startup
// integrity repair.
type Service struct {
	cfg   ConfigRepository
	users auth.UserRepository
	log   *logging.Logger
}

// NewService creates a system service.
func NewService(cfg ConfigRepository, users auth.UserRepository, log *logging.Logger) *Service {
	return &Service{cfg: cfg, users: users, log: log}
}

// Status reports whether the instance has completed first-time setup.
func (s *Service) Status(ctx context.Context) (*Config, error) {
	return s.cfg.Get(ctx)
}

// Setup performs first-time initialisation: it creates the root account
// and marks the instance initialised. It is write-once; a second call
// returns ErrAlreadyInitialized.
//
// If a root account already exists but the config row was never marked
// (a crash between the two writes), Setup repairs the flag and still
// reports ErrAlreadyInitialized rather than creating a second root.
func (s *Service) Setup(ctx context.Context, username, password, language string) (*auth.User, error) {
	cfg, err := s.cfg.Get(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.IsInitialized {
		return nil, ErrAlreadyInitialized
	}

	rootCount, err := s.users.CountByRole(ctx, auth.RoleRoot)
	if err != nil {
		return nil, err
	}
	if rootCount > 0 {
		s.log.Error("integrity violation: root account exists on uninitialized instance, repairing flag")
		if err := s.cfg.MarkInitialized(ctx, cfg.Language); err != nil && !errors.Is(err, ErrAlreadyInitialized) {
			return nil, err
		}
		return nil, ErrAlreadyInitialized
	}

	if !auth.IsValidUsername(username) {
		return nil, fmt.Errorf("invalid username %q", username)
	}
	if len(password) < auth.MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", auth.MinPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing root password: %w", err)
	}

	root := &auth.User{
		Username:     username,
		PasswordHash: hash,
		Role:         auth.RoleRoot,
	}
	if err := s.users.Create(ctx, root); err != nil {
		return nil, fmt.Errorf("creating root account: %w", err)
	}

	if err := s.cfg.MarkInitialized(ctx, language); err != nil {
		// Root exists but the flag write failed; the startup repair
		// will close the gap on next boot.
		s.log.Error("marking system initialized failed after root creation", "error", err)
		return nil, err
	}

	s.log.Info("system initialized", "root_user", root.Username, "root_id", root.ID)
	return root, nil
}

// Repair runs the startup integrity check: if a root account exists but
// the instance is not marked initialised, the flag is set so the setup
// endpoint cannot be used to create a second root.
func (s *Service) Repair(ctx context.Context) error {
	cfg, err := s.cfg.Get(ctx)
	if err != nil {
		return err
	}
	if cfg.IsInitialized {
		return nil
	}

	rootCount, err := s.users.CountByRole(ctx, auth.RoleRoot)
	if err != nil {
		return err
	}
	if rootCount == 0 {
		return nil
	}

	s.log.Error("integrity violation: root account exists on uninitialized instance, repairing flag",
		"root_count", rootCount)
	if err := s.cfg.MarkInitialized(ctx, cfg.Language); err != nil && !errors.Is(err, ErrAlreadyInitialized) {
		return err
	}
	return nil
}
