package course

import (
	"errors"
	"fmt"

	"github.com/uqmarks/uqmarks/internal/semester"
)

// Kind is the closed set of resolution outcomes other than success.
type Kind int

const (
	// UpstreamUnavailable covers network failures, unexpected page shapes and
	// anything else that is not a confirmed answer from the course site.
	UpstreamUnavailable Kind = iota
	InvalidInput
	CourseMissing
	CourseNotFound
	WrongSemester
	IncorrectCourseProfile
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case CourseMissing:
		return "course_missing"
	case CourseNotFound:
		return "course_not_found"
	case WrongSemester:
		return "wrong_semester"
	case IncorrectCourseProfile:
		return "incorrect_course_profile"
	default:
		return "upstream_unavailable"
	}
}

// UnavailableMessage is shown for every failure that has no specific explanation.
const UnavailableMessage = "The ECP is currently unavailable or the code is invalid"

// Error is the typed failure returned by Resolve.
type Error struct {
	Kind Kind
	Key  Key
	Err  error

	badURL  bool
	missing bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Key, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, course.ErrWrongSemester).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidInput           = &Error{Kind: InvalidInput}
	ErrCourseMissing          = &Error{Kind: CourseMissing}
	ErrCourseNotFound         = &Error{Kind: CourseNotFound}
	ErrWrongSemester          = &Error{Kind: WrongSemester}
	ErrIncorrectCourseProfile = &Error{Kind: IncorrectCourseProfile}
	ErrUpstreamUnavailable    = &Error{Kind: UpstreamUnavailable}
)

// KindOf classifies err. Errors that are not *Error are UpstreamUnavailable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UpstreamUnavailable
}

// UserMessage is the explanation shown to the end user. It never includes
// scraper or parser internals.
func (e *Error) UserMessage() string {
	label := semester.Label(e.Key.Year, e.Key.Semester)
	switch e.Kind {
	case InvalidInput:
		if e.badURL {
			return "Invalid course profile URL"
		}
		if e.missing {
			return "Missing course code or semester"
		}
		return "Invalid course code or semester"
	case CourseMissing:
		return ""
	case CourseNotFound:
		return fmt.Sprintf("%s does not exist", e.Key.Code)
	case WrongSemester:
		return fmt.Sprintf("%s is not offered in %s", e.Key.Code, label)
	case IncorrectCourseProfile:
		return fmt.Sprintf("The course profile URL does not match %s (%s)", e.Key.Code, label)
	default:
		return UnavailableMessage
	}
}

// NeedsProfileURL reports whether the caller should ask the user for a
// course profile URL and retry.
func (e *Error) NeedsProfileURL() bool {
	return e.Kind == CourseMissing || e.Kind == IncorrectCourseProfile || e.badURL
}
