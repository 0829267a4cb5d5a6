package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultSQLTable is the table SQLStorage reads and writes.
	DefaultSQLTable = "gosession_storage"
	// DefaultSQLTTL is the lifetime of an idle row.
	DefaultSQLTTL = 12 * time.Hour
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStorage keeps values in one table keyed by (scope, name). It works with
// any sqlx driver that understands INSERT ... ON CONFLICT, which covers
// PostgreSQL ("postgres") and SQLite ("sqlite3"). Rows carry an expiry in Unix
// seconds that is renewed on every write; expired rows read as absent.
type SQLStorage struct {
	db    *sqlx.DB
	table string
	scope string
	ttl   time.Duration
	clock clockwork.Clock
}

// SQLOption customizes an SQLStorage.
type SQLOption func(*SQLStorage)

// WithSQLTable overrides the table name. Names that are not plain identifiers
// are ignored.
func WithSQLTable(table string) SQLOption {
	return func(s *SQLStorage) {
		if tableName.MatchString(table) {
			s.table = table
		}
	}
}

// WithSQLScope resumes an existing scope instead of generating a new one.
func WithSQLScope(scope string) SQLOption {
	return func(s *SQLStorage) {
		if sc := strings.TrimSpace(scope); sc != "" {
			s.scope = sc
		}
	}
}

// WithSQLTTL sets the row lifetime (default 12h).
func WithSQLTTL(ttl time.Duration) SQLOption {
	return func(s *SQLStorage) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSQLClock replaces the clock used for expiry.
func WithSQLClock(clock clockwork.Clock) SQLOption {
	return func(s *SQLStorage) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSQLStorage creates an SQL-backed Storage. Call [SQLStorage.Migrate] once
// before first use.
func NewSQLStorage(db *sqlx.DB, opts ...SQLOption) *SQLStorage {
	s := &SQLStorage{
		db:    db,
		table: DefaultSQLTable,
		ttl:   DefaultSQLTTL,
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scope == "" {
		s.scope = uuid.NewString()
	}
	return s
}

// Scope returns the scope ID, which callers persist to resume later.
func (s *SQLStorage) Scope() string {
	return s.scope
}

type sqlRow struct {
	Value     string `db:"value"`
	ExpiresAt int64  `db:"expires_at"`
}

// Migrate creates the table if it does not exist.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStorageUnavailable
	}
	ddl := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	scope      TEXT   NOT NULL,
	name       TEXT   NOT NULL,
	value      TEXT   NOT NULL,
	expires_at BIGINT NOT NULL,
	PRIMARY KEY (scope, name)
)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, ErrStorageUnavailable
	}
	var row sqlRow
	q := s.db.Rebind(`SELECT value, expires_at FROM ` + s.table + ` WHERE scope = ? AND name = ?`)
	if err := s.db.GetContext(ctx, &row, q, s.scope, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if row.ExpiresAt <= s.clock.Now().Unix() {
		if err := s.Remove(ctx, key); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return row.Value, true, nil
}

func (s *SQLStorage) Set(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return ErrStorageUnavailable
	}
	expires := s.clock.Now().Add(s.ttl).Unix()
	q := s.db.Rebind(`INSERT INTO ` + s.table + ` (scope, name, value, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT (scope, name) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`)
	if _, err := s.db.ExecContext(ctx, q, s.scope, key, value, expires); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Remove deletes the key. Removing a missing key is not an error.
func (s *SQLStorage) Remove(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return ErrStorageUnavailable
	}
	q := s.db.Rebind(`DELETE FROM ` + s.table + ` WHERE scope = ? AND name = ?`)
	if _, err := s.db.ExecContext(ctx, q, s.scope, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DropScope removes every row of the scope, ending the session.
func (s *SQLStorage) DropScope(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrStorageUnavailable
	}
	q := s.db.Rebind(`DELETE FROM ` + s.table + ` WHERE scope = ?`)
	if _, err := s.db.ExecContext(ctx, q, s.scope); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes expired rows of every scope and reports how many went.
func (s *SQLStorage) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrStorageUnavailable
	}
	q := s.db.Rebind(`DELETE FROM ` + s.table + ` WHERE expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, q, s.clock.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return n, nil
}
