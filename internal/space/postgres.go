package space

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"parley.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store persists spaces and messages in PostgreSQL.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewStore(db *sql.DB, opts ...Option) *Store {
	store := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Create inserts the space and the owner's full-permission record in one
// transaction, so a space can never exist without an owner who can manage
// it.
func (s *Store) Create(ctx context.Context, name, owner string) (Space, error) {
	name = strings.TrimSpace(name)
	if !validSpaceName(name) || !auth.ValidUsername(owner) {
		return Space{}, ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Space{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx,
		`insert into spaces(name, owner) values($1,$2) returning space_id`,
		name, owner,
	).Scan(&id)
	if err != nil {
		return Space{}, err
	}
	_, err = tx.ExecContext(ctx,
		`insert into permissions(space_id, user_id, perms) values($1,$2,$3)`,
		id, owner, string(auth.FullPerms),
	)
	if err != nil {
		return Space{}, err
	}
	if err := tx.Commit(); err != nil {
		return Space{}, err
	}
	return Space{ID: id, Name: name, Owner: owner}, nil
}

// List returns all spaces ordered by identifier.
func (s *Store) List(ctx context.Context) ([]Space, error) {
	rows, err := s.db.QueryContext(ctx,
		`select space_id, name, owner from spaces order by space_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	spaces := []Space{}
	for rows.Next() {
		var sp Space
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Owner); err != nil {
			return nil, err
		}
		spaces = append(spaces, sp)
	}
	return spaces, rows.Err()
}

// AddMember records a permission set for (space, user). A second grant for
// the same pair fails instead of silently widening the existing record.
func (s *Store) AddMember(ctx context.Context, spaceID int64, userID string, perms auth.Perms) error {
	if !validMember(userID, perms) {
		return ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx,
		`insert into permissions(space_id, user_id, perms) values($1,$2,$3)`,
		spaceID, userID, string(perms),
	)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return ErrAlreadyExists
			case pgErrForeignKeyViolation:
				return ErrNotFound
			}
		}
		return err
	}
	return nil
}

// PostMessage appends a message to the space.
func (s *Store) PostMessage(ctx context.Context, spaceID int64, author, text string) (Message, error) {
	if !auth.ValidUsername(author) || !validMessageText(text) {
		return Message{}, ErrInvalidInput
	}
	msg := Message{SpaceID: spaceID, Author: author, Text: text, CreatedAt: s.now().UTC()}
	err := s.db.QueryRowContext(ctx,
		`insert into messages(space_id, author, msg_text, created_at) values($1,$2,$3,$4) returning msg_id`,
		spaceID, author, text, msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	return msg, nil
}

// ReadMessage fetches a single message scoped to its space. A valid
// message id under the wrong space is treated as absent.
func (s *Store) ReadMessage(ctx context.Context, spaceID, msgID int64) (Message, error) {
	var msg Message
	err := s.db.QueryRowContext(ctx,
		`select msg_id, space_id, author, msg_text, created_at from messages where space_id=$1 and msg_id=$2`,
		spaceID, msgID,
	).Scan(&msg.ID, &msg.SpaceID, &msg.Author, &msg.Text, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListMessages returns messages posted to the space since the given time,
// newest first.
func (s *Store) ListMessages(ctx context.Context, spaceID int64, since time.Time) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`select msg_id, space_id, author, msg_text, created_at
		 from messages where space_id=$1 and created_at >= $2
		 order by created_at desc, msg_id desc`,
		spaceID, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SpaceID, &msg.Author, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	ok := errors.As(err, &pgErr)
	return pgErr, ok
}
