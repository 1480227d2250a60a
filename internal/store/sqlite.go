/*
Package store
File: sqlite.go
Description:
    SQLite implementation of the Backend. Two drivers are registered:
    "sqlite3" (github.com/mattn/go-sqlite3, cgo) and "sqlite"
    (modernc.org/sqlite, pure Go). The driver is picked by configuration.

    Queries are built from table and column names, so every identifier is
    checked against a strict pattern before it reaches the SQL text.
    Values are always bound as parameters.
*/

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// tables whose "id" column is a text uuid minted on insert
var uuidTables = map[string]bool{
	"ships":           true,
	"items":           true,
	"space_objects":   true,
	"object_nodes":    true,
	"market_listings": true,
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLite is the embedded collaborator.
type SQLite struct {
	db *sql.DB

	mu    sync.RWMutex
	now   func() time.Time
	procs map[string]procedure
}

// Open connects to dsn with the named driver and applies the schema.
func Open(driver, dsn string) (*SQLite, error) {
	switch driver {
	case "sqlite3", "sqlite":
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database lives and dies with it, and a
	// single-player client never needs more.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: pragma: %w", err)
	}
	if dsn != ":memory:" {
		db.Exec("PRAGMA journal_mode=WAL;")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{db: db, now: time.Now}
	s.procs = s.procedures()
	return s, nil
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SetClock replaces the server clock. Tests use it to drive travel windows.
func (s *SQLite) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *SQLite) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// Session implements Backend.
func (s *SQLite) Session(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}
	rows, err := selectRows(ctx, s.db, "auth_sessions", Filter{"token": token})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	exp := Time(rows[0]["expires_at"])
	if exp == nil || !exp.After(s.clock()) {
		return nil, nil
	}
	return &Session{Token: token, UserID: Text(rows[0]["user_id"]), ExpiresAt: *exp}, nil
}

// CreateSession stores a token for userID valid for ttl.
func (s *SQLite) CreateSession(ctx context.Context, userID string, ttl time.Duration) (*Session, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	sess := &Session{Token: token.String(), UserID: userID, ExpiresAt: s.clock().Add(ttl).UTC()}
	_, err = insertRow(ctx, s.db, "auth_sessions", Row{
		"token":      sess.Token,
		"user_id":    userID,
		"expires_at": sess.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Select implements Backend.
func (s *SQLite) Select(ctx context.Context, table string, where Filter) ([]Row, error) {
	return selectRows(ctx, s.db, table, where)
}

// SelectIn implements Backend.
func (s *SQLite) SelectIn(ctx context.Context, table, column string, values []any, where Filter) ([]Row, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if err := checkIdent(table, column); err != nil {
		return nil, err
	}
	clause, args, err := whereClause(where)
	if err != nil {
		return nil, err
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	if clause == "" {
		clause = " WHERE "
	} else {
		clause += " AND "
	}
	clause += fmt.Sprintf("%s IN (%s)", column, marks)
	for _, v := range values {
		args = append(args, bind(v))
	}
	return queryRows(ctx, s.db, fmt.Sprintf("SELECT * FROM %s%s ORDER BY rowid", table, clause), args...)
}

// Update implements Backend.
func (s *SQLite) Update(ctx context.Context, table string, where Filter, fields Row) (int64, error) {
	return updateRows(ctx, s.db, table, where, fields)
}

// Insert implements Backend.
func (s *SQLite) Insert(ctx context.Context, table string, row Row) (Row, error) {
	return insertRow(ctx, s.db, table, row)
}

// Delete implements Backend.
func (s *SQLite) Delete(ctx context.Context, table string, where Filter) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	clause, args, err := whereClause(where)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", table, clause), args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

// Upsert implements Backend.
func (s *SQLite) Upsert(ctx context.Context, table string, rows []Row, conflict []string) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		if err := upsertRow(ctx, tx, table, r, conflict); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// --- query helpers shared by the public methods and the procedures ---

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identRe.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrBadIdentifier, n)
		}
	}
	return nil
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bind normalises Go values into something both drivers store the same way.
func bind(v any) any {
	switch t := v.(type) {
	case time.Time:
		return Stamp(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return Stamp(*t)
	case *float64:
		if t == nil {
			return nil
		}
		return *t
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func whereClause(where Filter) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	for _, k := range sortedKeys(where) {
		if err := checkIdent(k); err != nil {
			return "", nil, err
		}
		v := bind(where[k])
		if v == nil {
			parts = append(parts, k+" IS NULL")
			continue
		}
		parts = append(parts, k+" = ?")
		args = append(args, v)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func selectRows(ctx context.Context, q querier, table string, where Filter) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	clause, args, err := whereClause(where)
	if err != nil {
		return nil, err
	}
	return queryRows(ctx, q, fmt.Sprintf("SELECT * FROM %s%s ORDER BY rowid", table, clause), args...)
}

// queryRows reads the whole result set before returning so the single
// connection is free for the next statement.
func queryRows(ctx context.Context, q querier, query string, args ...any) ([]Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok && c != "payload_lz4" {
				r[c] = string(b)
				continue
			}
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func updateRows(ctx context.Context, q querier, table string, where Filter, fields Row) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		if err := checkIdent(k); err != nil {
			return 0, err
		}
		sets = append(sets, k+" = ?")
		args = append(args, bind(fields[k]))
	}
	clause, wargs, err := whereClause(where)
	if err != nil {
		return 0, err
	}
	args = append(args, wargs...)
	res, err := q.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(sets, ", "), clause), args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return res.RowsAffected()
}

func insertRow(ctx context.Context, q querier, table string, row Row) (Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	if uuidTables[table] {
		if _, ok := row["id"]; !ok {
			id, err := uuid.NewV4()
			if err != nil {
				return nil, err
			}
			cp := make(Row, len(row)+1)
			for k, v := range row {
				cp[k] = v
			}
			cp["id"] = id.String()
			row = cp
		}
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("insert %s: empty row", table)
	}

	cols := sortedKeys(row)
	args := make([]any, len(cols))
	for i, c := range cols {
		if err := checkIdent(c); err != nil {
			return nil, err
		}
		args[i] = bind(row[c])
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	res, err := q.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks), args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	rowid, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	got, err := queryRows(ctx, q, fmt.Sprintf("SELECT * FROM %s WHERE rowid = ?", table), rowid)
	if err != nil || len(got) == 0 {
		return row, err
	}
	return got[0], nil
}

func upsertRow(ctx context.Context, q querier, table string, row Row, conflict []string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	if err := checkIdent(conflict...); err != nil {
		return err
	}
	key := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		key[c] = true
	}

	cols := sortedKeys(row)
	args := make([]any, len(cols))
	var sets []string
	for i, c := range cols {
		if err := checkIdent(c); err != nil {
			return err
		}
		args[i] = bind(row[c])
		if !key[c] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		table, strings.Join(cols, ", "), marks, strings.Join(conflict, ", "), action)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}
