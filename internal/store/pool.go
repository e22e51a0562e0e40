// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// The discovered-term pool lives in a small SQLite table so insertion
// order survives restarts and duplicate terms collapse on insert.

func (s *Store) openPool() error {
	dbPath := filepath.Join(s.dir, poolFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("opening term pool: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS terms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		term TEXT NOT NULL UNIQUE,
		added_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("creating term pool schema: %w", err)
	}

	s.db = db
	return nil
}

// AddTerms inserts terms into the pool, skipping duplicates, and returns
// how many were actually added. Insertion order is preserved.
func (s *Store) AddTerms(terms ...string) (int, error) {
	if len(terms) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO terms (term) VALUES (?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	added := 0
	for _, term := range terms {
		res, err := stmt.Exec(term)
		if err != nil {
			return 0, fmt.Errorf("inserting term %q: %w", term, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing terms: %w", err)
	}
	return added, nil
}

// Terms returns the pool in insertion order.
func (s *Store) Terms() ([]string, error) {
	rows, err := s.db.Query(`SELECT term FROM terms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying terms: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating terms: %w", err)
	}
	return terms, nil
}

// TermCount returns the number of terms in the pool.
func (s *Store) TermCount() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM terms`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting terms: %w", err)
	}
	return count, nil
}

// ClearTerms empties the pool after a completed run so the next day
// starts from fresh trends.
func (s *Store) ClearTerms() error {
	if _, err := s.db.Exec(`DELETE FROM terms`); err != nil {
		return fmt.Errorf("clearing terms: %w", err)
	}
	return nil
}
