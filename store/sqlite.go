package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/go-octopus/octopus/types"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "octopus"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite is the embedded persistent backend. One table mirrors the
// request fields; queries/headers/attrs are stored as JSON text, the
// body as a BLOB, booleans as 0/1.
type SQLite struct {
	db    *sql.DB
	table string
}

// SQLiteOption configures the SQLite backend.
type SQLiteOption func(*SQLite)

// WithTable overrides the table name.
func WithTable(name string) SQLiteOption {
	return func(s *SQLite) { s.table = name }
}

// NewSQLite opens (creating if needed) the database at path, ensures the
// schema, and resets any EXECUTING rows left behind by a crash back to
// WAITING.
func NewSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	s := &SQLite{table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	if !tableNameRe.MatchString(s.table) {
		return nil, &types.StoreError{Op: "open", Err: fmt.Errorf("invalid table name %q", s.table)}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &types.StoreError{Op: "open", Err: err}
	}
	// The dispatcher is the only writer; one connection avoids busy errors.
	db.SetMaxOpenConns(1)
	s.db = db

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		url TEXT,
		method TEXT,
		priority INT,
		repeatable INT,
		parent TEXT,
		data BLOB,
		queries TEXT,
		headers TEXT,
		attrs TEXT,
		state TEXT,
		depth INT,
		msg TEXT,
		inherit INT
	)`, s.table)
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, &types.StoreError{Op: "create table", Err: err}
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_priority ON %s (priority)`, s.table, s.table)
	if _, err := db.Exec(idx); err != nil {
		db.Close()
		return nil, &types.StoreError{Op: "create index", Err: err}
	}

	// Crash recovery: rows stuck EXECUTING go back to the frontier.
	reset := fmt.Sprintf(`UPDATE %s SET state = ? WHERE state = ?`, s.table)
	if _, err := db.Exec(reset, string(types.StateWaiting), string(types.StateExecuting)); err != nil {
		db.Close()
		return nil, &types.StoreError{Op: "recover", Err: err}
	}
	return s, nil
}

func (s *SQLite) Put(r *types.Request) error {
	r.State = types.StateWaiting
	queries, headers, attrs, err := marshalMaps(r)
	if err != nil {
		return &types.StoreError{Op: "put", Err: err}
	}
	stmt := fmt.Sprintf(`INSERT OR REPLACE INTO %s
		(id, url, method, priority, repeatable, parent, data, queries, headers, attrs, state, depth, msg, inherit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err = s.db.Exec(stmt,
		r.ID, r.URL, r.Method, r.Priority, boolInt(r.Repeatable), r.Parent, r.Data,
		queries, headers, attrs, string(r.State), r.Depth, r.Msg, boolInt(r.Inherit))
	if err != nil {
		return &types.StoreError{Op: "put", Err: err}
	}
	return nil
}

// Get selects the top WAITING row and flips it to EXECUTING inside one
// transaction, so a row can never be dispatched twice.
func (s *SQLite) Get() (*types.Request, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, &types.StoreError{Op: "get", Err: err}
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT id, url, method, priority, repeatable, parent, data,
		queries, headers, attrs, state, depth, msg, inherit
		FROM %s WHERE state = ? ORDER BY priority DESC LIMIT 1`, s.table)
	r, err := scanRequest(tx.QueryRow(query, string(types.StateWaiting)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StoreError{Op: "get", Err: err}
	}

	update := fmt.Sprintf(`UPDATE %s SET state = ? WHERE id = ?`, s.table)
	if _, err := tx.Exec(update, string(types.StateExecuting), r.ID); err != nil {
		return nil, &types.StoreError{Op: "get", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &types.StoreError{Op: "get", Err: err}
	}
	r.State = types.StateExecuting
	return r, nil
}

func (s *SQLite) Exists(id string) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ? LIMIT 1`, s.table)
	var one int
	err := s.db.QueryRow(query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &types.StoreError{Op: "exists", Err: err}
	}
	return true, nil
}

func (s *SQLite) UpdateState(r *types.Request, state types.State, msg string) error {
	stmt := fmt.Sprintf(`UPDATE %s SET state = ?, msg = ? WHERE id = ?`, s.table)
	if _, err := s.db.Exec(stmt, string(state), msg, r.ID); err != nil {
		return &types.StoreError{Op: "update state", Err: err}
	}
	r.State = state
	r.Msg = msg
	return nil
}

func (s *SQLite) ReplyFailed() (int, error) {
	stmt := fmt.Sprintf(`UPDATE %s SET state = ?, msg = ? WHERE state = ?`, s.table)
	res, err := s.db.Exec(stmt, string(types.StateWaiting), "retry", string(types.StateFailed))
	if err != nil {
		return 0, &types.StoreError{Op: "reply failed", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &types.StoreError{Op: "reply failed", Err: err}
	}
	return int(n), nil
}

func (s *SQLite) Stats() (*Stats, error) {
	query := fmt.Sprintf(`SELECT state, COUNT(*) FROM %s GROUP BY state`, s.table)
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, &types.StoreError{Op: "stats", Err: err}
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, &types.StoreError{Op: "stats", Err: err}
		}
		stats.All += count
		switch types.State(state) {
		case types.StateWaiting:
			stats.Waiting = count
		case types.StateExecuting:
			stats.Executing = count
		case types.StateCompleted:
			stats.Completed = count
		case types.StateFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StoreError{Op: "stats", Err: err}
	}
	return stats, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*types.Request, error) {
	var (
		r                       types.Request
		repeatable, inherit     int
		queries, headers, attrs sql.NullString
		parent, msg             sql.NullString
		state                   string
	)
	err := row.Scan(&r.ID, &r.URL, &r.Method, &r.Priority, &repeatable, &parent, &r.Data,
		&queries, &headers, &attrs, &state, &r.Depth, &msg, &inherit)
	if err != nil {
		return nil, err
	}
	r.Repeatable = repeatable != 0
	r.Inherit = inherit != 0
	r.Parent = parent.String
	r.Msg = msg.String
	r.State = types.State(state)
	if queries.Valid && queries.String != "" {
		if err := json.Unmarshal([]byte(queries.String), &r.Queries); err != nil {
			return nil, err
		}
	}
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &r.Headers); err != nil {
			return nil, err
		}
	}
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &r.Attrs); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func marshalMaps(r *types.Request) (queries, headers, attrs any, err error) {
	if r.Queries != nil {
		b, err := json.Marshal(r.Queries)
		if err != nil {
			return nil, nil, nil, err
		}
		queries = string(b)
	}
	if r.Headers != nil {
		b, err := json.Marshal(r.Headers)
		if err != nil {
			return nil, nil, nil, err
		}
		headers = string(b)
	}
	if r.Attrs != nil {
		b, err := json.Marshal(r.Attrs)
		if err != nil {
			return nil, nil, nil, err
		}
		attrs = string(b)
	}
	return queries, headers, attrs, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
