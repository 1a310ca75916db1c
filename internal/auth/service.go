package auth

import (
	"context"
	"errors"
)

// Service exposes credential verification and registration over the
// user and permission stores.
type Service struct {
	users UserStore
	perms PermissionStore
}

func NewService(users UserStore, perms PermissionStore) *Service {
	return &Service{users: users, perms: perms}
}

// Register creates a principal with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password string) error {
	if !ValidUsername(username) {
		return ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.Create(ctx, &User{ID: username, PasswordHash: hash})
}

// Authenticate verifies a credential pair and returns the subject. Every
// failure collapses to ErrUnauthorized so callers cannot probe which
// check failed.
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	if !ValidUsername(username) || password == "" {
		return "", ErrUnauthorized
	}
	user, err := s.users.Find(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return "", ErrUnauthorized
	}
	return user.ID, nil
}

// Permissions returns the permission set for (space, user); absent
// records yield the empty set.
func (s *Service) Permissions(ctx context.Context, spaceID int64, userID string) (Perms, error) {
	return s.perms.Find(ctx, spaceID, userID)
}
