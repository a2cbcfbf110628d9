package semester

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var idPattern = regexp.MustCompile(`^(\d{4})S([123])$`)

// Offering is one teaching period of a year. Semester 3 is the summer
// semester that starts in December and runs into the next year.
type Offering struct {
	Year     int
	Semester int
}

// ParseID parses "2025S1".
func ParseID(id string) (Offering, error) {
	m := idPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(id)))
	if m == nil {
		return Offering{}, fmt.Errorf("invalid semester id %q", id)
	}
	year, _ := strconv.Atoi(m[1])
	sem, _ := strconv.Atoi(m[2])
	return Offering{Year: year, Semester: sem}, nil
}

// ID formats the offering as "2025S1".
func (o Offering) ID() string {
	return fmt.Sprintf("%dS%d", o.Year, o.Semester)
}

// Label is the display name of the offering.
func (o Offering) Label() string {
	return Label(o.Year, o.Semester)
}

// Label returns "Semester N YEAR", or "Summer Semester YEAR-YEAR+1" for semester 3.
func Label(year, semester int) string {
	if semester == 3 {
		return fmt.Sprintf("Summer Semester %d-%d", year, year+1)
	}
	return fmt.Sprintf("Semester %d %d", semester, year)
}

// DateRange returns the canonical first and last calendar day of the
// offering: S1 is 1 Mar to 10 Jul, S2 is 1 Jul to 10 Dec and S3 is 1 Dec to
// 28 Feb of the following year. Both dates are midnight in loc.
func DateRange(o Offering, loc *time.Location) (start, end time.Time) {
	switch o.Semester {
	case 1:
		return time.Date(o.Year, time.March, 1, 0, 0, 0, 0, loc), time.Date(o.Year, time.July, 10, 0, 0, 0, 0, loc)
	case 2:
		return time.Date(o.Year, time.July, 1, 0, 0, 0, 0, loc), time.Date(o.Year, time.December, 10, 0, 0, 0, 0, loc)
	default:
		return time.Date(o.Year, time.December, 1, 0, 0, 0, 0, loc), time.Date(o.Year+1, time.February, 28, 0, 0, 0, 0, loc)
	}
}

// rolloverTarget returns the offering that should head the catalog at now,
// given its current newest entry. ok is false outside the rollover months
// (July) or when the summer rule does not apply.
func rolloverTarget(now time.Time, newest Offering) (target Offering, ok bool) {
	year, month := now.Year(), now.Month()
	switch {
	case month >= time.March && month < time.July:
		return Offering{Year: year, Semester: 1}, true
	case month >= time.August && month <= time.November:
		return Offering{Year: year, Semester: 2}, true
	case month == time.December:
		if newest.Year == year {
			return Offering{Year: year, Semester: 3}, true
		}
	case month <= time.February:
		if newest.Year == year-1 {
			return Offering{Year: year - 1, Semester: 3}, true
		}
	}
	return Offering{}, false
}
