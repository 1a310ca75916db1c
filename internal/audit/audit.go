// Package audit records request audit trails. Every request produces two
// correlated rows: a start row written before authentication and a
// completion row written after the response, linked by a shared audit id.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"parley.org/internal/obs"
)

type ctxKey string

const (
	auditIDKey   ctxKey = "audit_id"
	requestIDKey ctxKey = "audit_request_id"
)

// WithID attaches the allocated audit id to the context so the completion
// row can be correlated with the start row.
func WithID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, auditIDKey, id)
}

// IDFromContext extracts the audit id from context if present.
func IDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(auditIDKey).(int64)
	return id, ok
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is one audit row. Status and Subject are unset on start rows.
type Entry struct {
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Path    string    `json:"path"`
	Subject string    `json:"user,omitempty"`
	Status  int       `json:"status,omitempty"`
	Time    time.Time `json:"time"`
}

// Recorder persists the audit trail in PostgreSQL and mirrors each row as
// a JSON log line.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewRecorder(db *sql.DB, opts ...Option) *Recorder {
	rec := &Recorder{db: db, now: time.Now}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// Start allocates a fresh audit id and writes the start row in a single
// transaction. The returned id must travel with the request context so End
// can write the matching completion row.
func (r *Recorder) Start(ctx context.Context, method, path string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, `select nextval('audit_id_seq')`).Scan(&id); err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx,
		`insert into audit_log(audit_id, method, path, audit_time) values($1,$2,$3,$4)`,
		id, method, path, r.now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.logRow(ctx, "request_start", Entry{ID: id, Method: method, Path: path})
	return id, nil
}

// End writes the completion row carrying the resolved subject (empty when
// the request never authenticated) and the final response status.
func (r *Recorder) End(ctx context.Context, id int64, method, path, subject string, status int) error {
	user := sql.NullString{String: subject, Valid: subject != ""}
	_, err := r.db.ExecContext(ctx,
		`insert into audit_log(audit_id, method, path, user_id, status, audit_time) values($1,$2,$3,$4,$5,$6)`,
		id, method, path, user, status, r.now().UTC(),
	)
	if err != nil {
		return err
	}
	r.logRow(ctx, "request_end", Entry{ID: id, Method: method, Path: path, Subject: subject, Status: status})
	return nil
}

// Read returns the most recent audit rows from the last hour, newest
// first, capped at 20 entries.
func (r *Recorder) Read(ctx context.Context) ([]Entry, error) {
	since := r.now().UTC().Add(-time.Hour)
	rows, err := r.db.QueryContext(ctx,
		`select audit_id, method, path, user_id, status, audit_time
		 from audit_log where audit_time >= $1
		 order by audit_time desc limit 20`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, 20)
	for rows.Next() {
		var (
			e       Entry
			subject sql.NullString
			status  sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Method, &e.Path, &subject, &status, &e.Time); err != nil {
			return nil, err
		}
		e.Subject = subject.String
		e.Status = int(status.Int64)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// logRow mirrors an audit row onto the process log stream.
func (r *Recorder) logRow(ctx context.Context, event string, e Entry) {
	line := map[string]any{
		"ts":     r.now().UTC().Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  event,
		"id":     e.ID,
		"method": e.Method,
		"path":   e.Path,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		line["request_id"] = rid
	}
	if e.Subject != "" {
		line["user"] = e.Subject
	}
	if e.Status != 0 {
		line["status"] = e.Status
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}
