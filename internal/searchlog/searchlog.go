// Package searchlog moves search events between the store and the
// pipe-delimited text log, and records live events.
//
// A log line is epoch_seconds|code|semester|year. Events other than
// searches carry their type as a fifth field.
package searchlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/uqmarks/uqmarks/internal/storage"
)

const importBatch = 500

// Appender writes events to the search log.
type Appender interface {
	AppendSearches(ctx context.Context, events []storage.SearchEvent) error
}

// Lister reads events from the search log.
type Lister interface {
	ListSearches(ctx context.Context, q storage.SearchQuery) ([]storage.SearchEvent, error)
}

// ParseLine parses one log line.
func ParseLine(line string) (storage.SearchEvent, error) {
	fields := strings.Split(strings.TrimSpace(line), "|")
	if len(fields) != 4 && len(fields) != 5 {
		return storage.SearchEvent{}, fmt.Errorf("want 4 or 5 fields, got %d", len(fields))
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return storage.SearchEvent{}, fmt.Errorf("invalid timestamp %q", fields[0])
	}
	sem, err := strconv.Atoi(fields[2])
	if err != nil {
		return storage.SearchEvent{}, fmt.Errorf("invalid semester %q", fields[2])
	}
	year, err := strconv.Atoi(fields[3])
	if err != nil {
		return storage.SearchEvent{}, fmt.Errorf("invalid year %q", fields[3])
	}

	e := storage.SearchEvent{
		Timestamp: time.Unix(ts, 0).UTC(),
		Code:      strings.ToUpper(strings.TrimSpace(fields[1])),
		Semester:  sem,
		Year:      year,
		Type:      storage.EventSearch,
	}
	if len(fields) == 5 {
		e.Type = storage.EventType(fields[4])
		if !e.Type.Valid() {
			return storage.SearchEvent{}, fmt.Errorf("unknown event type %q", fields[4])
		}
	}
	return e, nil
}

// FormatLine is the inverse of ParseLine.
func FormatLine(e storage.SearchEvent) string {
	line := fmt.Sprintf("%d|%s|%d|%d", e.Timestamp.Unix(), e.Code, e.Semester, e.Year)
	if e.Type != "" && e.Type != storage.EventSearch {
		line += "|" + string(e.Type)
	}
	return line
}

// Import reads a log and appends its events in order. Blank lines are
// skipped. The whole input is parsed before anything is written, so a
// malformed line leaves the store untouched; the error names its line
// number.
func Import(ctx context.Context, r io.Reader, dst Appender) (int, error) {
	var events []storage.SearchEvent

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := ParseLine(line)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("reading log: %w", err)
	}

	for start := 0; start < len(events); start += importBatch {
		end := min(start+importBatch, len(events))
		if err := dst.AppendSearches(ctx, events[start:end]); err != nil {
			return start, fmt.Errorf("writing events %d-%d: %w", start+1, end, err)
		}
	}
	return len(events), nil
}

// Export writes every event matching q, one line each, oldest first.
func Export(ctx context.Context, w io.Writer, src Lister, q storage.SearchQuery) (int, error) {
	events, err := src.ListSearches(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("listing events: %w", err)
	}

	bw := bufio.NewWriter(w)
	for _, e := range events {
		if _, err := bw.WriteString(FormatLine(e) + "\n"); err != nil {
			return 0, err
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(events), nil
}
