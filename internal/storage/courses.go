package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCourse loads the stored assessment table for one offering.
func (s *Store) GetCourse(ctx context.Context, code string, semester, year int) (Course, error) {
	c := Course{Code: code, Semester: semester, Year: year}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT asmts, created_at FROM courses
		WHERE code = ? AND semester = ? AND year = ?`,
		code, semester, year,
	).Scan(&c.Assessments, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrNotFound
	}
	if err != nil {
		return Course{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Course{}, fmt.Errorf("parsing created_at: %w", err)
	}
	c.CreatedAt = t
	return c, nil
}

// InsertCourse stores c unless a row for the same offering already exists.
// The first writer wins; a conflicting insert is not an error and reports
// inserted=false.
func (s *Store) InsertCourse(ctx context.Context, c Course) (inserted bool, err error) {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (code, semester, year, asmts, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (code, semester, year) DO NOTHING`,
		c.Code, c.Semester, c.Year, c.Assessments, createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountCourses returns the number of cached offerings.
func (s *Store) CountCourses(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses").Scan(&n)
	return n, err
}
