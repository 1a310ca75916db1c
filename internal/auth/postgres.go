package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ UserStore       = (*PGUserStore)(nil)
	_ PermissionStore = (*PGPermissionStore)(nil)
)

// PGUserStore implements UserStore on PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore { return &PGUserStore{db: db} }

func (s *PGUserStore) Create(ctx context.Context, u *User) error {
	if !ValidUsername(u.ID) || u.PasswordHash == "" {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(user_id, pw_hash) values($1,$2)`,
		u.ID, u.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *PGUserStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select user_id, pw_hash, created_at from users where user_id=$1`, id)
	var u User
	if err := row.Scan(&u.ID, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// PGPermissionStore implements PermissionStore on PostgreSQL.
type PGPermissionStore struct {
	db *sql.DB
}

func NewPGPermissionStore(db *sql.DB) *PGPermissionStore { return &PGPermissionStore{db: db} }

// Grant inserts the permission record for (space, user). A second grant
// for the same pair fails rather than widening the existing record.
func (s *PGPermissionStore) Grant(ctx context.Context, spaceID int64, userID string, perms Perms) error {
	if !perms.Valid() {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx,
		`insert into permissions(space_id, user_id, perms) values($1,$2,$3)`,
		spaceID, userID, string(perms),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *PGPermissionStore) Find(ctx context.Context, spaceID int64, userID string) (Perms, error) {
	row := s.db.QueryRowContext(ctx,
		`select perms from permissions where space_id=$1 and user_id=$2`,
		spaceID, userID,
	)
	var perms string
	if err := row.Scan(&perms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return Perms(perms), nil
}

// isUniqueViolation reports whether err is SQLSTATE 23505 from the pgx
// driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
