// Package course resolves a course offering to its assessment weightings.
//
// Tables are scraped once per offering and cached in the store; the
// Resolver fronts the store with an expiring in-memory memo and collapses
// concurrent first-time scrapes of the same offering.
package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	codePattern       = regexp.MustCompile(`^[A-Za-z]{4}[0-9]{4}$`)
	semesterIDPattern = regexp.MustCompile(`^(\d{4})S([123])$`)
)

// Key identifies one offering of a course.
type Key struct {
	Code     string
	Semester int
	Year     int
}

// NewKey upper-cases code and validates all three parts.
func NewKey(code string, semester, year int) (Key, error) {
	k := Key{Code: strings.ToUpper(strings.TrimSpace(code)), Semester: semester, Year: year}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// ParseKey builds a Key from a course code and a semester id such as "2025S1".
func ParseKey(code, semesterID string) (Key, error) {
	if strings.TrimSpace(code) == "" || strings.TrimSpace(semesterID) == "" {
		return Key{}, &Error{Kind: InvalidInput, Err: errors.New("course code and semester id are required"), missing: true}
	}
	year, sem, err := ParseSemesterID(semesterID)
	if err != nil {
		return Key{}, &Error{Kind: InvalidInput, Err: err}
	}
	return NewKey(code, sem, year)
}

// ParseSemesterID splits "2025S1" into its year and semester number.
func ParseSemesterID(id string) (year, semester int, err error) {
	m := semesterIDPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(id)))
	if m == nil {
		return 0, 0, fmt.Errorf("invalid semester id %q", id)
	}
	year, _ = strconv.Atoi(m[1])
	semester, _ = strconv.Atoi(m[2])
	return year, semester, nil
}

// ValidCode reports whether code has the four letters, four digits shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Validate re-checks the key shape. It is called on every resolution even
// when the boundary already validated its inputs.
func (k Key) Validate() error {
	if !ValidCode(k.Code) {
		return &Error{Kind: InvalidInput, Key: k, Err: fmt.Errorf("invalid course code %q", k.Code)}
	}
	if k.Semester < 1 || k.Semester > 3 {
		return &Error{Kind: InvalidInput, Key: k, Err: fmt.Errorf("invalid semester %d", k.Semester)}
	}
	if k.Year < 1000 || k.Year > 9999 {
		return &Error{Kind: InvalidInput, Key: k, Err: fmt.Errorf("invalid year %d", k.Year)}
	}
	return nil
}

// SemesterID formats the offering as "2025S1".
func (k Key) SemesterID() string {
	return fmt.Sprintf("%dS%d", k.Year, k.Semester)
}

func (k Key) String() string {
	return k.Code + "/" + k.SemesterID()
}

// Entry is one assessment item. Weight is formatted as "NN%" or "NN.NN%".
type Entry struct {
	Task   string `json:"title"`
	Weight string `json:"weight"`
}

// Table is the ordered list of assessment items of one offering, in the
// order they appear on the course profile. Task names may repeat.
type Table []Entry

// MarshalStored encodes t in the stored [[task, weight], ...] form.
func (t Table) MarshalStored() (string, error) {
	pairs := make([][2]string, len(t))
	for i, e := range t {
		pairs[i] = [2]string{e.Task, e.Weight}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnmarshalStored decodes a table previously written by MarshalStored.
func UnmarshalStored(s string) (Table, error) {
	var pairs [][2]string
	if err := json.Unmarshal([]byte(s), &pairs); err != nil {
		return nil, fmt.Errorf("decoding stored assessments: %w", err)
	}
	t := make(Table, len(pairs))
	for i, p := range pairs {
		t[i] = Entry{Task: p[0], Weight: p[1]}
	}
	return t, nil
}

func (t Table) clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	copy(out, t)
	return out
}

var (
	modernProfileURL = regexp.MustCompile(`^https://course-profiles\.uq\.edu\.au/course-profiles/([A-Za-z]{4}[0-9]{4})-(\d+)-(\d+)(#[-A-Za-z0-9]+)?$`)
	legacyProfileURL = regexp.MustCompile(`^https://archive\.course-profiles\.uq\.edu\.au/student_section_loader/section_\d+/(\d+)$`)
)

// SectionFromURL extracts the site section identifier from a user-supplied
// course profile URL. An unrecognised URL is InvalidInput; a modern profile
// URL for a different course is IncorrectCourseProfile.
func SectionFromURL(k Key, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if m := modernProfileURL.FindStringSubmatch(rawURL); m != nil {
		if !strings.EqualFold(m[1], k.Code) {
			return "", &Error{Kind: IncorrectCourseProfile, Key: k, Err: fmt.Errorf("profile url is for %s", strings.ToUpper(m[1]))}
		}
		return strings.ToUpper(m[1]) + "-" + m[2] + "-" + m[3], nil
	}
	if m := legacyProfileURL.FindStringSubmatch(rawURL); m != nil {
		return m[1], nil
	}
	return "", &Error{Kind: InvalidInput, Key: k, Err: fmt.Errorf("unrecognised course profile url %q", rawURL), badURL: true}
}
