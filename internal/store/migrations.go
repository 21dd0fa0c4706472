package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// schemaStep is one numbered script under migrations/, named NNN_label.sql.
type schemaStep struct {
	version int
	label   string
	body    string
}

// schemaSteps reads the embedded scripts in version order.
func schemaSteps(fsys fs.FS) ([]schemaStep, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	steps := make([]schemaStep, 0, len(names))
	for _, name := range names {
		base := strings.TrimSuffix(path.Base(name), ".sql")
		num, label, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: want NNN_label.sql", name)
		}
		v, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", name, err)
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, schemaStep{version: v, label: label, body: string(body)})
	}
	slices.SortFunc(steps, func(a, b schemaStep) int { return a.version - b.version })
	for i := 1; i < len(steps); i++ {
		if steps[i].version == steps[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d", steps[i].version)
		}
	}
	return steps, nil
}

// migrate brings db up to the newest embedded script. Each script and its
// schema_version row commit together.
func migrate(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	steps, err := schemaSteps(fsys)
	if err != nil {
		return err
	}

	const versionTable = `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.ExecContext(ctx, versionTable); err != nil {
		return fmt.Errorf("schema_version: %w", err)
	}

	var applied int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&applied); err != nil {
		return fmt.Errorf("schema_version: %w", err)
	}

	for _, step := range steps {
		if step.version > applied {
			if err := applyStep(ctx, db, step); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyStep(ctx context.Context, db *sql.DB, step schemaStep) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %03d: %w", step.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range splitStatements(step.body) {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %03d_%s: %w", step.version, step.label, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_version (version, name) VALUES (?, ?)`, step.version, step.label); err != nil {
		return fmt.Errorf("migration %03d: record version: %w", step.version, err)
	}
	return tx.Commit()
}

// splitStatements cuts a script on ';'. Lines starting with "--" are removed
// first so semicolons inside comments are ignored.
func splitStatements(script string) []string {
	var kept []string
	for line := range strings.Lines(script) {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}
	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, ""), ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
