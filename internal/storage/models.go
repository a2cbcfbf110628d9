package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Course is one scraped offering. Assessments holds the table as a JSON
// array of [task, weight] pairs.
type Course struct {
	Code        string
	Semester    int
	Year        int
	Assessments string
	CreatedAt   time.Time
}

// EventType classifies a search log row.
type EventType string

const (
	EventSearch   EventType = "search"
	EventPageLoad EventType = "page_load"
	EventQuiz     EventType = "quiz"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventSearch, EventPageLoad, EventQuiz:
		return true
	}
	return false
}

type SearchEvent struct {
	ID        int64
	Timestamp time.Time
	Code      string
	Semester  int
	Year      int
	Type      EventType
}

// SearchQuery narrows ListSearches. Zero values disable a filter; From and
// To are inclusive.
type SearchQuery struct {
	From     time.Time
	To       time.Time
	Code     string
	Year     int
	Semester int
	Type     EventType
}

// Semester is one catalog row; position 0 is the newest offering.
type Semester struct {
	Year     int
	Semester int
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
