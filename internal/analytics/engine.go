// Package analytics aggregates the search log into time series, rankings,
// hour-of-week heatmaps and summary statistics.
//
// The Engine works on in-memory event slices and never touches storage;
// Service loads the filtered window from the store and feeds the Engine.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/uqmarks/uqmarks/internal/semester"
	"github.com/uqmarks/uqmarks/internal/storage"
)

// Granularity is the width of a time series bucket.
type Granularity int

const (
	Hour Granularity = iota
	Day
	Week
	Month
)

// ParseGranularity accepts the interval codes H, D, W and M. An empty
// string is Day.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "H", "h":
		return Hour, nil
	case "", "D", "d":
		return Day, nil
	case "W", "w":
		return Week, nil
	case "M", "m":
		return Month, nil
	}
	return 0, fmt.Errorf("unknown interval %q", s)
}

func (g Granularity) String() string {
	switch g {
	case Hour:
		return "H"
	case Week:
		return "W"
	case Month:
		return "M"
	default:
		return "D"
	}
}

// truncate returns the start of the bucket containing t. Weeks start on
// Monday.
func (g Granularity) truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch g {
	case Hour:
		// Truncate on the instant so the repeated hour of a daylight saving
		// fall-back yields two buckets, matching next's fixed steps.
		_, off := t.Zone()
		shift := time.Duration(off) * time.Second
		return t.Add(shift).Truncate(time.Hour).Add(-shift)
	case Week:
		return time.Date(y, m, d-mondayIndex(t.Weekday()), 0, 0, 0, 0, loc)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

func (g Granularity) next(t time.Time) time.Time {
	switch g {
	case Hour:
		return t.Add(time.Hour)
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// mondayIndex maps Monday to 0 and Sunday to 6.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Filter selects the events an aggregate covers. Start and End are
// inclusive calendar dates; only their date part is used.
type Filter struct {
	Start       time.Time
	End         time.Time
	Semester    *semester.Offering
	Code        string
	Highlight   string
	Granularity Granularity
	// EventType defaults to search events.
	EventType storage.EventType
}

type Bucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// RankedCode is one row of a frequency ranking. Rank is 1-based.
type RankedCode struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Count int    `json:"count"`
	Rank  int    `json:"rank"`
}

// Ranking is the result of TopCodes. HighlightRank is zero when no
// highlight was requested or the code has no events in the window.
type Ranking struct {
	Rows          []RankedCode `json:"rows"`
	HighlightRank int          `json:"highlightRank,omitempty"`
}

// Heatmap counts events by day of week (row 0 is Monday) and hour of day.
type Heatmap [7][24]int

type Summary struct {
	Total             int     `json:"total"`
	Days              int     `json:"days"`
	AveragePerDay     float64 `json:"averagePerDay"`
	DistinctCodes     int     `json:"distinctCodes"`
	MedianPerCode     float64 `json:"medianPerCode"`
	TopK              int     `json:"topK"`
	TopShare          float64 `json:"topShare"`
	MostSearched      string  `json:"mostSearched,omitempty"`
	MostSearchedCount int     `json:"mostSearchedCount,omitempty"`
}

const DefaultTopK = 50

// Engine aggregates events in a fixed local time zone.
type Engine struct {
	loc *time.Location
}

func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

func (e *Engine) Location() *time.Location { return e.loc }

// window returns the half-open instant range covered by f's dates.
func (e *Engine) window(f Filter) (from, to time.Time) {
	sy, sm, sd := f.Start.Date()
	ey, em, ed := f.End.Date()
	return time.Date(sy, sm, sd, 0, 0, 0, 0, e.loc), time.Date(ey, em, ed+1, 0, 0, 0, 0, e.loc)
}

// selectEvents returns the events inside f's window, semester and event
// type. The code filter is applied only when withCode is set.
func (e *Engine) selectEvents(events []storage.SearchEvent, f Filter, withCode bool) []storage.SearchEvent {
	from, to := e.window(f)
	typ := f.EventType
	if typ == "" {
		typ = storage.EventSearch
	}

	var out []storage.SearchEvent
	for _, ev := range events {
		if ev.Timestamp.Before(from) || !ev.Timestamp.Before(to) {
			continue
		}
		if f.Semester != nil && (ev.Year != f.Semester.Year || ev.Semester != f.Semester.Semester) {
			continue
		}
		evType := ev.Type
		if evType == "" {
			evType = storage.EventSearch
		}
		if evType != typ {
			continue
		}
		if withCode && f.Code != "" && ev.Code != f.Code {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// TimeSeries counts events per bucket over a dense grid covering the whole
// window, so empty buckets appear with a zero count.
func (e *Engine) TimeSeries(events []storage.SearchEvent, f Filter) []Bucket {
	from, to := e.window(f)
	if !from.Before(to) {
		return []Bucket{}
	}

	counts := make(map[int64]int)
	for _, ev := range e.selectEvents(events, f, true) {
		counts[f.Granularity.truncate(ev.Timestamp.In(e.loc)).Unix()]++
	}

	buckets := []Bucket{}
	for b := f.Granularity.truncate(from); b.Before(to); b = f.Granularity.next(b) {
		buckets = append(buckets, Bucket{Start: b, Count: counts[b.Unix()]})
	}
	return buckets
}

type codeCount struct {
	code  string
	count int
}

// rank orders codes by frequency. Ties keep the order in which codes were
// first seen.
func rank(events []storage.SearchEvent) []codeCount {
	index := make(map[string]int)
	var counts []codeCount
	for _, ev := range events {
		i, ok := index[ev.Code]
		if !ok {
			i = len(counts)
			index[ev.Code] = i
			counts = append(counts, codeCount{code: ev.Code})
		}
		counts[i].count++
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].count > counts[j].count })
	return counts
}

// TopCodes returns the n most frequent codes in the window, ignoring
// f.Code. A highlight code ranked below n is appended as an extra row
// labelled with its rank. n <= 0 returns every code.
func (e *Engine) TopCodes(events []storage.SearchEvent, f Filter, n int) Ranking {
	counts := rank(e.selectEvents(events, f, false))
	if n <= 0 || n > len(counts) {
		n = len(counts)
	}

	r := Ranking{Rows: make([]RankedCode, 0, n+1)}
	for i := 0; i < n; i++ {
		c := counts[i]
		r.Rows = append(r.Rows, RankedCode{Code: c.code, Label: c.code, Count: c.count, Rank: i + 1})
	}

	if f.Highlight == "" {
		return r
	}
	for i, c := range counts {
		if c.code != f.Highlight {
			continue
		}
		r.HighlightRank = i + 1
		if i >= n {
			r.Rows = append(r.Rows, RankedCode{
				Code:  c.code,
				Label: fmt.Sprintf("%s (#%d)", c.code, i+1),
				Count: c.count,
				Rank:  i + 1,
			})
		}
		break
	}
	return r
}

// Heatmap counts events by local weekday and hour. The grid is always
// complete.
func (e *Engine) Heatmap(events []storage.SearchEvent, f Filter) Heatmap {
	var h Heatmap
	for _, ev := range e.selectEvents(events, f, true) {
		t := ev.Timestamp.In(e.loc)
		h[mondayIndex(t.Weekday())][t.Hour()]++
	}
	return h
}

// Summarize computes headline statistics. Total and the per-day average
// honour f.Code; the per-code statistics describe the whole window. k is
// the number of top codes whose share of volume is reported.
func (e *Engine) Summarize(events []storage.SearchEvent, f Filter, k int) Summary {
	if k <= 0 {
		k = DefaultTopK
	}
	s := Summary{TopK: k, Days: daysBetween(f.Start, f.End)}

	s.Total = len(e.selectEvents(events, f, true))
	if s.Total > 0 {
		s.AveragePerDay = float64(s.Total) / float64(s.Days)
	}

	all := e.selectEvents(events, f, false)
	counts := rank(all)
	s.DistinctCodes = len(counts)
	if len(counts) == 0 {
		return s
	}

	s.MostSearched = counts[0].code
	s.MostSearchedCount = counts[0].count
	s.MedianPerCode = median(counts)

	top := 0
	for i := 0; i < k && i < len(counts); i++ {
		top += counts[i].count
	}
	s.TopShare = float64(top) / float64(len(all))
	return s
}

// daysBetween is the whole number of calendar days from start to end,
// never less than one.
func daysBetween(start, end time.Time) int {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	a := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ey, em, ed, 0, 0, 0, 0, time.UTC)
	days := int(b.Sub(a).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

func median(counts []codeCount) float64 {
	vals := make([]int, len(counts))
	for i, c := range counts {
		vals[i] = c.count
	}
	sort.Ints(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return float64(vals[mid])
	}
	return float64(vals[mid-1]+vals[mid]) / 2
}
