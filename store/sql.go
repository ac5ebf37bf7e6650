package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStore persists idempotency records in SQL backends (SQLite or
// Postgres). The unique primary key on id plus conditional UPDATEs give
// the atomic insert/claim semantics Store requires; no read-then-write
// sequence is used for any mutation.
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
	now     func() time.Time
}

// NewSQLiteStore creates a SQLite-backed record store.
// dsn can be a file path (e.g. /tmp/records.db) or SQLite DSN.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "idemgw-records.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectSQLite, now: time.Now}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore creates a Postgres-backed record store.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	s := &SQLStore{db: db, dialect: dialectPostgres, now: time.Now}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s store: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS idempotency_records (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	owner TEXT NOT NULL,
	response BLOB NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_idempotency_records_expires ON idempotency_records(expires_at);`

	if s.dialect == dialectPostgres {
		ddl = `
CREATE TABLE IF NOT EXISTS idempotency_records (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	owner TEXT NOT NULL,
	response BYTEA NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_idempotency_records_expires ON idempotency_records(expires_at);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s store schema: %w", s.dialect, err)
	}
	return nil
}

// PutIfAbsent atomically inserts rec unless a live record exists. An
// expired row is reclaimed with a conditional UPDATE keyed on its old
// expiry, so two contenders racing for the same abandoned record cannot
// both win.
func (s *SQLStore) PutIfAbsent(ctx context.Context, rec Record) (PutOutcome, error) {
	insert := s.bind(`
INSERT INTO idempotency_records(id, status, owner, response, created_at, expires_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, insert,
		rec.ID, string(rec.Status), rec.Owner, rec.ResponsePayload, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC())
	if err != nil {
		return PutOutcome{}, fmt.Errorf("insert record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return PutOutcome{Created: true}, nil
	}

	existing, err := s.Get(ctx, rec.ID)
	if err == ErrNotFound {
		// The blocking row is expired: try to reclaim it in place.
		return s.reclaim(ctx, rec)
	}
	if err != nil {
		return PutOutcome{}, err
	}
	return PutOutcome{Existing: existing}, nil
}

func (s *SQLStore) reclaim(ctx context.Context, rec Record) (PutOutcome, error) {
	claim := s.bind(`
UPDATE idempotency_records
SET status = ?, owner = ?, response = NULL, created_at = ?, expires_at = ?
WHERE id = ? AND expires_at <= ?`)

	res, err := s.db.ExecContext(ctx, claim,
		string(rec.Status), rec.Owner, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(), rec.ID, s.now().UTC())
	if err != nil {
		return PutOutcome{}, fmt.Errorf("reclaim expired record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return PutOutcome{Created: true}, nil
	}

	// Lost the reclaim race: another contender now holds a live row.
	existing, err := s.Get(ctx, rec.ID)
	if err != nil {
		return PutOutcome{}, err
	}
	return PutOutcome{Existing: existing}, nil
}

// Get returns the live record for id; expired rows read as absent.
func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	q := s.bind(`
SELECT id, status, owner, response, created_at, expires_at
FROM idempotency_records
WHERE id = ? AND expires_at > ?`)

	var (
		rec     Record
		status  string
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, q, id, s.now().UTC()).Scan(
		&rec.ID, &status, &rec.Owner, &payload, &rec.CreatedAt, &rec.ExpiresAt)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	rec.Status = Status(status)
	rec.ResponsePayload = payload
	return rec, nil
}

// Complete transitions an INPROGRESS record owned by owner to COMPLETED.
func (s *SQLStore) Complete(ctx context.Context, id, owner string, payload []byte, expiresAt time.Time) error {
	q := s.bind(`
UPDATE idempotency_records
SET status = ?, response = ?, expires_at = ?
WHERE id = ? AND owner = ? AND status = ? AND expires_at > ?`)

	res, err := s.db.ExecContext(ctx, q,
		string(StatusCompleted), payload, expiresAt.UTC(),
		id, owner, string(StatusInProgress), s.now().UTC())
	if err != nil {
		return fmt.Errorf("complete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	// Precondition failed: classify why for the caller.
	existing, err := s.Get(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if existing.Status == StatusCompleted {
		return ErrAlreadyCompleted
	}
	return ErrNotOwner
}

// Delete removes the record for id when owned by owner.
func (s *SQLStore) Delete(ctx context.Context, id, owner string) error {
	q := s.bind(`DELETE FROM idempotency_records WHERE id = ? AND owner = ?`)
	if _, err := s.db.ExecContext(ctx, q, id, owner); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// PurgeExpired eagerly removes expired rows. Lazy expiry already keeps
// reads correct; this only reclaims storage.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	q := s.bind(`DELETE FROM idempotency_records WHERE expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, q, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
