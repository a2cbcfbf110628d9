package storage

import (
	"context"
	"fmt"
)

// LoadSemesters returns the catalog newest first.
func (s *Store) LoadSemesters(ctx context.Context) ([]Semester, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT year, semester FROM semesters ORDER BY position ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Semester
	for rows.Next() {
		var sem Semester
		if err := rows.Scan(&sem.Year, &sem.Semester); err != nil {
			return nil, err
		}
		out = append(out, sem)
	}
	return out, rows.Err()
}

// SaveSemesters replaces the stored catalog with list, newest first.
func (s *Store) SaveSemesters(ctx context.Context, list []Semester) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning semester transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM semesters"); err != nil {
		return fmt.Errorf("clearing semesters: %w", err)
	}
	for i, sem := range list {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO semesters (position, year, semester) VALUES (?, ?, ?)",
			i, sem.Year, sem.Semester,
		); err != nil {
			return fmt.Errorf("inserting semester %dS%d: %w", sem.Year, sem.Semester, err)
		}
	}
	return tx.Commit()
}
