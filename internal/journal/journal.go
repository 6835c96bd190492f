// Package journal records runner activity in a local SQLite database: one
// row per step, plus any repairs the validator performed and gate outcomes.
// The document itself is never persisted here; the line array on disk stays
// the single source of truth.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

// Open creates or opens the journal database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document TEXT,
			target TEXT,
			action TEXT,
			detail TEXT,
			changed INTEGER,
			at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS repairs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document TEXT,
			description TEXT,
			at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS gate_results (
			gate TEXT,
			document TEXT,
			passed INTEGER,
			issues INTEGER,
			warnings INTEGER,
			at TEXT,
			PRIMARY KEY (gate, document, at)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_steps_document ON steps(document);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Step is one recorded engine invocation.
type Step struct {
	Document string
	Target   string
	Action   string
	Detail   string
	Changed  bool
}

func (s *Store) RecordStep(ctx context.Context, step Step) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (document, target, action, detail, changed, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, step.Document, step.Target, step.Action, step.Detail, boolInt(step.Changed), now())
	return err
}

func (s *Store) RecordRepairs(ctx context.Context, document string, descriptions []string) error {
	if len(descriptions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO repairs (document, description, at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	at := now()
	for _, d := range descriptions {
		if _, err := stmt.Exec(document, d, at); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RecordGateResult(ctx context.Context, document, gate string, passed bool, issues, warnings int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gate_results (gate, document, passed, issues, warnings, at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, gate, document, boolInt(passed), issues, warnings, now())
	return err
}

// StepHistory returns the recorded steps for a document, newest first.
func (s *Store) StepHistory(ctx context.Context, document string, limit int) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target, action, detail, changed FROM steps
		WHERE document = ? ORDER BY id DESC LIMIT ?
	`, document, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var st Step
		var changed int
		if err := rows.Scan(&st.Target, &st.Action, &st.Detail, &changed); err != nil {
			return nil, err
		}
		st.Document = document
		st.Changed = changed != 0
		out = append(out, st)
	}
	return out, rows.Err()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
