package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AppendSearch records a single event. Zero timestamps are stamped with the
// current time and an empty type defaults to EventSearch.
func (s *Store) AppendSearch(ctx context.Context, e SearchEvent) error {
	ts, typ := eventDefaults(e)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_logs (ts, code, semester, year, event_type)
		VALUES (?, ?, ?, ?, ?)`,
		ts.Unix(), e.Code, e.Semester, e.Year, string(typ),
	)
	return err
}

// AppendSearches records events in a single transaction, preserving order.
func (s *Store) AppendSearches(ctx context.Context, events []SearchEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO search_logs (ts, code, semester, year, event_type)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range events {
		ts, typ := eventDefaults(e)
		if _, err := stmt.ExecContext(ctx, ts.Unix(), e.Code, e.Semester, e.Year, string(typ)); err != nil {
			return fmt.Errorf("inserting event %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func eventDefaults(e SearchEvent) (time.Time, EventType) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	typ := e.Type
	if typ == "" {
		typ = EventSearch
	}
	return ts, typ
}

// ListSearches returns matching events ordered by timestamp, then insertion order.
func (s *Store) ListSearches(ctx context.Context, q SearchQuery) ([]SearchEvent, error) {
	var (
		where []string
		args  []any
	)
	if !q.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.From.Unix())
	}
	if !q.To.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.To.Unix())
	}
	if q.Code != "" {
		where = append(where, "code = ?")
		args = append(args, q.Code)
	}
	if q.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, q.Year)
	}
	if q.Semester != 0 {
		where = append(where, "semester = ?")
		args = append(args, q.Semester)
	}
	if q.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(q.Type))
	}

	query := "SELECT id, ts, code, semester, year, event_type FROM search_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchEvent
	for rows.Next() {
		var (
			e   SearchEvent
			ts  int64
			typ string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Code, &e.Semester, &e.Year, &typ); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		e.Type = EventType(typ)
		results = append(results, e)
	}
	return results, rows.Err()
}

// CountSearches returns the total number of logged events.
func (s *Store) CountSearches(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM search_logs").Scan(&n)
	return n, err
}
