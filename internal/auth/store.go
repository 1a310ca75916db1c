package auth

import "context"

// UserStore persists registered principals.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
}

// PermissionStore persists per-space permission records. Find returns the
// empty set (not an error) when no record exists for the pair.
type PermissionStore interface {
	Grant(ctx context.Context, spaceID int64, userID string, perms Perms) error
	Find(ctx context.Context, spaceID int64, userID string) (Perms, error)
}
