/*
Package sqlite provides a SQLite-backed implementation of insurance.TxStore.

PURPOSE:
  Persists every engine entity and provides the storage primitives the
  engine relies on instead of in-process locks. In production, the same
  patterns apply to PostgreSQL with minor dialect differences.

STORAGE PRIMITIVES:
  Atomic increment:     counters upsert ... RETURNING sequence
  Conditional update:   UPDATE ... WHERE status IN (...); zero rows -> ErrInvalidState
  Unique inserts:       policies.name_key, vehicles.plate_number,
                        idx_renewals_live_slot (partial unique index)

KEY TABLES:
  counters:      Named sequences for human codes
  policies:      Insurance products (never deleted, deactivated instead)
  vehicles:      Customer vehicles, plate unique
  premiums:      Priced purchases with payment status
  renewals:      Coverage periods, paired 1:1 with premiums
  claims:        Claims against paid coverage
  notifications: Customer inbox

CRITICAL INDEX:
  idx_renewals_live_slot enforces one pending/approved coverage period per
  (vehicle, coverage type). Expired and rejected rows drop out of the index,
  which is what lets a lapsed vehicle renew.

CONCURRENCY:
  The pool is limited to a single connection. Writers are serialized by
  SQLite itself and ":memory:" databases are shared by every caller.
  Inside WithTx only the transaction handle is used.

ENCODING:
  Times are stored as fixed-width UTC text so lexical order equals time
  order. Money is stored as decimal text. Breakdowns, pricing rules and
  supporting documents are stored as JSON.

USAGE:
  store, err := sqlite.New("./data/insurance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - insurance/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/motor-insurance/insurance"
)

// Store implements insurance.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

var _ insurance.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{c: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		sequence INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Policies (name unique case-insensitively via name_key)
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		coverage_type TEXT NOT NULL,
		duration_months INTEGER NOT NULL,
		base_amount TEXT NOT NULL,
		pricing_rules_json TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_active
		ON policies(is_active, coverage_type);

	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		plate_number TEXT NOT NULL UNIQUE,
		vehicle_type TEXT NOT NULL,
		model TEXT NOT NULL,
		registration_year INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_vehicles_customer
		ON vehicles(customer_id);

	CREATE TABLE IF NOT EXISTS premiums (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		policy_id TEXT NOT NULL REFERENCES policies(id),
		vehicle_id TEXT NOT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		coverage_type TEXT NOT NULL,
		calculated_amount TEXT NOT NULL,
		breakdown_json TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_date TEXT,
		transaction_ref TEXT,
		failure_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_premiums_customer
		ON premiums(customer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_premiums_vehicle
		ON premiums(vehicle_id, payment_status);

	CREATE TABLE IF NOT EXISTS renewals (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		policy_id TEXT NOT NULL REFERENCES policies(id),
		premium_id TEXT NOT NULL UNIQUE REFERENCES premiums(id),
		vehicle_id TEXT NOT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		coverage_type TEXT NOT NULL,
		kind TEXT NOT NULL,
		renewal_date TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reminder_sent BOOLEAN NOT NULL DEFAULT FALSE,
		reminder_sent_at TEXT,
		admin_remarks TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one live coverage period per vehicle and coverage type
	CREATE UNIQUE INDEX IF NOT EXISTS idx_renewals_live_slot
		ON renewals(vehicle_id, coverage_type)
		WHERE status IN ('pending', 'approved');

	-- Expiry sweep and reminder scan (hot path for the scheduler)
	CREATE INDEX IF NOT EXISTS idx_renewals_status_expiry
		ON renewals(status, expiry_date);
	CREATE INDEX IF NOT EXISTS idx_renewals_customer
		ON renewals(customer_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		policy_id TEXT NOT NULL REFERENCES policies(id),
		vehicle_id TEXT NOT NULL,
		premium_id TEXT NOT NULL REFERENCES premiums(id),
		reason TEXT NOT NULL,
		supporting_docs_json TEXT NOT NULL DEFAULT '[]',
		claim_date TEXT NOT NULL,
		claim_amount TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		admin_remarks TEXT,
		processed_date TEXT,
		processed_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_customer
		ON claims(customer_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_claims_vehicle_status
		ON claims(vehicle_id, status);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		policy_id TEXT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		sent_at TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		read_at TEXT,
		delivery_status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_customer_unread
		ON notifications(customer_id, is_read, sent_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (insurance.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store insurance.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{c: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// conn is satisfied by both *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// queries implements insurance.Store against a connection or a transaction.
type queries struct {
	c conn
}

// =============================================================================
// HELPERS
// =============================================================================

const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// insertErr maps unique violations to insurance.ErrConflict.
func insertErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%s: %w", what, insurance.ErrConflict)
	}
	return fmt.Errorf("failed to insert %s: %w", what, err)
}

func noRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return insurance.ErrNotFound
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs[T ~string](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

// conditional turns a zero-row conditional update into ErrNotFound or
// ErrInvalidState depending on whether the row exists.
func (q *queries) conditional(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = q.c.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if err != nil {
		return noRows(err)
	}
	return insurance.ErrInvalidState
}

// where accumulates filter clauses for list queries.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

// search adds a case-insensitive LIKE over cols.
func (w *where) search(term string, cols ...string) {
	if term == "" {
		return
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	pattern := "%" + escaped + "%"
	ors := make([]string, len(cols))
	for i, col := range cols {
		ors[i] = col + ` LIKE ? ESCAPE '\'`
		w.args = append(w.args, pattern)
	}
	w.clauses = append(w.clauses, "("+strings.Join(ors, " OR ")+")")
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// list runs a count and a page query sharing the same filter.
func list[T any](ctx context.Context, c conn, table, cols, orderCol string, w *where, lq insurance.ListQuery, scan func(scanner) (T, error)) ([]T, int, error) {
	lq = lq.Normalize()

	var total int
	if err := c.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}

	dir := "DESC"
	if lq.Sort == insurance.SortOldest {
		dir = "ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s, code %s LIMIT ? OFFSET ?",
		cols, table, w.String(), orderCol, dir, dir)
	args := append(append([]any{}, w.args...), lq.Limit, lq.Skip())

	items, err := queryAll(ctx, c, query, args, scan)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", table, err)
	}
	return items, total, nil
}

func queryAll[T any](ctx context.Context, c conn, query string, args []any, scan func(scanner) (T, error)) ([]T, error) {
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
