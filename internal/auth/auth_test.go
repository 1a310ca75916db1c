package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPermsAllowsIsSupersetCheck(t *testing.T) {
	cases := []struct {
		held, required Perms
		want           bool
	}{
		{"rwd", "w", true},
		{"rwd", "rwd", true},
		{"r", "w", false},
		{"r", "r", true},
		{"", "r", false},
		{"rw", "rd", false},
		{"rwd", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		if got := c.held.Allows(c.required); got != c.want {
			t.Fatalf("Perms(%q).Allows(%q) = %v, want %v", c.held, c.required, got, c.want)
		}
	}
}

func TestPermsValid(t *testing.T) {
	for _, valid := range []Perms{"r", "w", "d", "rw", "rd", "rwd", "dr"} {
		if !valid.Valid() {
			t.Fatalf("Perms(%q).Valid() = false, want true", valid)
		}
	}
	for _, invalid := range []Perms{"", "x", "rr", "rwx", "rwdd"} {
		if invalid.Valid() {
			t.Fatalf("Perms(%q).Valid() = true, want false", invalid)
		}
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short password: err = %v, want ErrInvalidInput", err)
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("password stored in the clear")
	}
	if err := VerifyPassword(hash, "correct horse"); err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: err = %v, want ErrUnauthorized", err)
	}
	if err := VerifyPassword("", "anything"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty hash: err = %v, want ErrUnauthorized", err)
	}
}

func TestValidUsername(t *testing.T) {
	for _, ok := range []string{"alice", "Bob7", "a", "a12345678901234567890123456789"} {
		if !ValidUsername(ok) {
			t.Fatalf("ValidUsername(%q) = false, want true", ok)
		}
	}
	for _, bad := range []string{"", "7up", "alice bob", "alice!", "0123456789012345678901234567890"} {
		if ValidUsername(bad) {
			t.Fatalf("ValidUsername(%q) = true, want false", bad)
		}
	}
}

func TestPrincipalSlot(t *testing.T) {
	ctx := context.Background()
	SetSubject(ctx, "alice")
	if _, ok := SubjectFromContext(ctx); ok {
		t.Fatal("subject resolved without an installed slot")
	}

	ctx = WithPrincipal(ctx)
	if _, ok := SubjectFromContext(ctx); ok {
		t.Fatal("empty slot resolved a subject")
	}
	SetSubject(ctx, "alice")
	if got, ok := SubjectFromContext(ctx); !ok || got != "alice" {
		t.Fatalf("subject = %q, ok=%v", got, ok)
	}
	SetAttribute(ctx, "space", "42")
	if v, ok := Attribute(ctx, "space"); !ok || v != "42" {
		t.Fatalf("attribute = %q, ok=%v", v, ok)
	}
}

func TestServiceAuthenticateCollapsesFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash, err := HashPassword("password1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now()
	mock.ExpectQuery("select user_id, pw_hash, created_at from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "pw_hash", "created_at"}).AddRow("alice", hash, now))
	mock.ExpectQuery("select user_id, pw_hash, created_at from users").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "pw_hash", "created_at"}).AddRow("alice", hash, now))
	mock.ExpectQuery("select user_id, pw_hash, created_at from users").
		WithArgs("mallory").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "pw_hash", "created_at"}))

	svc := NewService(NewPGUserStore(db), NewPGPermissionStore(db))

	subject, err := svc.Authenticate(context.Background(), "alice", "password1")
	if err != nil || subject != "alice" {
		t.Fatalf("Authenticate = %q, %v", subject, err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong password: err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Authenticate(context.Background(), "mallory", "password1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown user: err = %v, want ErrUnauthorized", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGPermissionStoreAbsentIsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select perms from permissions").
		WithArgs(int64(1), "bob").
		WillReturnRows(sqlmock.NewRows([]string{"perms"}))

	store := NewPGPermissionStore(db)
	perms, err := store.Find(context.Background(), 1, "bob")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if perms != "" {
		t.Fatalf("perms = %q, want empty set", perms)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGUserStoreCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into users").
		WithArgs("alice", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	// Error text containing the code digits is not a constraint violation.
	cause := errors.New("dial tcp: lookup db-23505: no such host")
	mock.ExpectExec("insert into users").
		WithArgs("alice", "hash").
		WillReturnError(cause)

	store := NewPGUserStore(db)
	u := &User{ID: "alice", PasswordHash: "hash"}
	if err := store.Create(context.Background(), u); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate user: err = %v, want ErrAlreadyExists", err)
	}
	if err := store.Create(context.Background(), u); !errors.Is(err, cause) {
		t.Fatalf("storage failure: err = %v, want %v", err, cause)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGPermissionStoreRejectsInvalidGrant(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	store := NewPGPermissionStore(db)
	if err := store.Grant(context.Background(), 1, "bob", "rx"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}
