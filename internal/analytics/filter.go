package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uqmarks/uqmarks/internal/course"
	"github.com/uqmarks/uqmarks/internal/semester"
)

// DefaultRange is the preset used when neither a range nor explicit dates
// are given.
const DefaultRange = "30"

// firstLogDate is where the ALL preset starts.
var firstLogDate = [3]int{2023, 2, 1}

// Params are the raw dashboard controls. Dates use YYYY-MM-DD.
type Params struct {
	Start    string
	End      string
	Range    string
	Semester string
	Lock     bool
	Code     string
	Interval string
}

// ParseFilter turns dashboard controls into a Filter.
//
// The end date defaults to today. A range preset ("30", "90", "180",
// "365" days back or "ALL") sets the start date, otherwise Start is used.
// With Lock set, the selected semester's canonical window overrides both
// dates.
func ParseFilter(p Params, now time.Time, loc *time.Location) (Filter, error) {
	var f Filter
	today := dateOf(now.In(loc), loc)

	g, err := ParseGranularity(strings.ToUpper(strings.TrimSpace(p.Interval)))
	if err != nil {
		return Filter{}, err
	}
	f.Granularity = g

	if code := strings.ToUpper(strings.TrimSpace(p.Code)); code != "" {
		if !course.ValidCode(code) {
			return Filter{}, fmt.Errorf("invalid course code %q", p.Code)
		}
		f.Code = code
		f.Highlight = code
	}

	if s := strings.TrimSpace(p.Semester); s != "" && !strings.EqualFold(s, "NONE") {
		o, err := semester.ParseID(s)
		if err != nil {
			return Filter{}, err
		}
		f.Semester = &o
	}

	f.End = today
	if p.End != "" {
		if f.End, err = parseDate(p.End, loc); err != nil {
			return Filter{}, err
		}
	}

	switch {
	case p.Range != "" && !strings.EqualFold(p.Range, "CUSTOM"):
		if f.Start, err = PresetStart(p.Range, today); err != nil {
			return Filter{}, err
		}
	case p.Start != "":
		if f.Start, err = parseDate(p.Start, loc); err != nil {
			return Filter{}, err
		}
	default:
		f.Start, _ = PresetStart(DefaultRange, today)
	}

	if p.Lock {
		if f.Semester == nil {
			return Filter{}, fmt.Errorf("semester lock requires a semester")
		}
		f.Start, f.End = semester.DateRange(*f.Semester, loc)
	}

	if f.End.Before(f.Start) {
		return Filter{}, fmt.Errorf("end date %s is before start date %s",
			f.End.Format(time.DateOnly), f.Start.Format(time.DateOnly))
	}
	return f, nil
}

// PresetStart returns the first day of a range preset ending today.
func PresetStart(preset string, today time.Time) (time.Time, error) {
	if strings.EqualFold(preset, "ALL") {
		return time.Date(firstLogDate[0], time.Month(firstLogDate[1]), firstLogDate[2], 0, 0, 0, 0, today.Location()), nil
	}
	switch preset {
	case "30", "90", "180", "365":
		days, _ := strconv.Atoi(preset)
		return today.AddDate(0, 0, -days), nil
	}
	return time.Time{}, fmt.Errorf("unknown range %q", preset)
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
