package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// LibSQLStore implements ElementStore using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/canvas.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db, migrationFS)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return storeError("vacuum", err)
	}
	return nil
}

const elementColumns = "id, type, body, version, source, created_at, updated_at, synced_at"

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, r *Record) error {
	body, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("marshal element %s: %w", r.ID, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO elements (`+elementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Type), string(body), r.Version, nullStr(r.Source), r.CreatedAt, r.UpdatedAt, nullTime(r.SyncedAt),
	)
	if isUniqueViolation(err) {
		return storeConflict(r.ID)
	}
	return err
}

func (s *LibSQLStore) Create(ctx context.Context, r *Record) (*Record, error) {
	c := prepareNew(r, nowUTC())
	if err := insertRecord(ctx, s.db, c); err != nil {
		return nil, wrapStore("create element", err)
	}
	return c, nil
}

func (s *LibSQLStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+elementColumns+` FROM elements WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound(id)
	}
	if err != nil {
		return nil, storeError("get element", err)
	}
	return r, nil
}

func (s *LibSQLStore) Update(ctx context.Context, id string, fields map[string]any) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("begin update", err)
	}
	defer tx.Rollback()

	r, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+elementColumns+` FROM elements WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound(id)
	}
	if err != nil {
		return nil, storeError("read element", err)
	}
	if err := applyUpdate(r, fields, nowUTC()); err != nil {
		return nil, err
	}

	body, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal element %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE elements SET type = ?, body = ?, version = ?, updated_at = ? WHERE id = ?`,
		string(r.Type), string(body), r.Version, r.UpdatedAt, id,
	)
	if err != nil {
		return nil, storeError("update element", err)
	}
	if err := checkRowsAffected(res, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeError("commit update", err)
	}
	return r, nil
}

func (s *LibSQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM elements WHERE id = ?`, id)
	if err != nil {
		return storeError("delete element", err)
	}
	return checkRowsAffected(res, id)
}

func (s *LibSQLStore) List(ctx context.Context, filter ElementFilter) ([]*Record, error) {
	var where []string
	var args []any
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := "SELECT " + elementColumns + " FROM elements"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, rowid"
	// Field conditions are checked in Go, so paging moves there too.
	if len(filter.Fields) == 0 && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("list elements", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, storeError("scan element", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list elements", err)
	}

	if len(filter.Fields) == 0 && filter.Limit > 0 {
		return recs, nil
	}
	return page(recs, filter), nil
}

func (s *LibSQLStore) BatchCreate(ctx context.Context, recs []*Record) ([]*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("begin batch", err)
	}
	defer tx.Rollback()

	now := nowUTC()
	out := make([]*Record, len(recs))
	for i, r := range recs {
		c := prepareNew(r, now)
		if err := insertRecord(ctx, tx, c); err != nil {
			return nil, wrapStore("batch create", err)
		}
		out[i] = c
	}
	if err := tx.Commit(); err != nil {
		return nil, storeError("commit batch", err)
	}
	return out, nil
}

// Upsert runs in one transaction, so a failure leaves the canvas untouched.
func (s *LibSQLStore) Upsert(ctx context.Context, recs []*Record) ([]*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("begin upsert", err)
	}
	defer tx.Rollback()

	now := nowUTC()
	out := make([]*Record, len(recs))
	for i, r := range recs {
		prev, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+elementColumns+` FROM elements WHERE id = ?`, r.ID))
		if errors.Is(err, sql.ErrNoRows) || r.ID == "" {
			c := prepareNew(r, now)
			if err := insertRecord(ctx, tx, c); err != nil {
				return nil, wrapStore("upsert", err)
			}
			out[i] = c
			continue
		}
		if err != nil {
			return nil, storeError("read element", err)
		}
		c := prepareOverwrite(r, prev, now)
		body, err := json.Marshal(c.Fields)
		if err != nil {
			return nil, fmt.Errorf("marshal element %s: %w", c.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE elements SET type = ?, body = ?, version = ?, source = ?, updated_at = ? WHERE id = ?`,
			string(c.Type), string(body), c.Version, nullStr(c.Source), c.UpdatedAt, c.ID,
		); err != nil {
			return nil, storeError("overwrite element", err)
		}
		out[i] = c
	}
	if err := tx.Commit(); err != nil {
		return nil, storeError("commit upsert", err)
	}
	return out, nil
}

func (s *LibSQLStore) Replace(ctx context.Context, recs []*Record) (*SyncResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeError("begin sync", err)
	}
	defer tx.Rollback()

	res := &SyncResult{SyncedAt: nowUTC()}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM elements`).Scan(&res.BeforeCount); err != nil {
		return nil, storeError("count elements", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM elements`); err != nil {
		return nil, storeError("clear elements", err)
	}

	for _, r := range recs {
		c := prepareNew(r, res.SyncedAt)
		c.SyncedAt = &res.SyncedAt
		body, err := json.Marshal(c.Fields)
		if err != nil {
			return nil, fmt.Errorf("marshal element %s: %w", c.ID, err)
		}
		// Later duplicates win, matching a keyed overwrite.
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO elements (`+elementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, string(c.Type), string(body), c.Version, nullStr(c.Source), c.CreatedAt, c.UpdatedAt, c.SyncedAt,
		); err != nil {
			return nil, storeError("insert synced element", err)
		}
	}

	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM elements`).Scan(&res.AfterCount); err != nil {
		return nil, storeError("count elements", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_state (id, before_count, after_count, synced_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET before_count=excluded.before_count, after_count=excluded.after_count, synced_at=excluded.synced_at`,
		res.BeforeCount, res.AfterCount, res.SyncedAt,
	); err != nil {
		return nil, storeError("record sync", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeError("commit sync", err)
	}
	return res, nil
}

func (s *LibSQLStore) LastSync(ctx context.Context) (*SyncResult, error) {
	res := &SyncResult{}
	err := s.db.QueryRowContext(ctx,
		`SELECT before_count, after_count, synced_at FROM sync_state WHERE id = 1`,
	).Scan(&res.BeforeCount, &res.AfterCount, &res.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read sync state", err)
	}
	return res, nil
}

func (s *LibSQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM elements`).Scan(&n); err != nil {
		return 0, storeError("count elements", err)
	}
	return n, nil
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	r := &Record{}
	var (
		typ, body string
		source    sql.NullString
		syncedAt  sql.NullTime
	)
	if err := row.Scan(&r.ID, &typ, &body, &r.Version, &source, &r.CreatedAt, &r.UpdatedAt, &syncedAt); err != nil {
		return nil, err
	}
	r.Type = schema.ElementType(typ)
	r.Source = source.String
	if syncedAt.Valid {
		t := syncedAt.Time
		r.SyncedAt = &t
	}
	if err := json.Unmarshal([]byte(body), &r.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal element %s: %w", r.ID, err)
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	return r, nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func storeError(op string, err error) *schema.FlowError {
	return schema.NewError(schema.ErrCodeStore, op).WithCause(err)
}

// wrapStore passes FlowErrors through and wraps anything else.
func wrapStore(op string, err error) error {
	if schema.CodeOf(err) != "" {
		return err
	}
	return storeError(op, err)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
